package workflow

import (
	"strings"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	// 配置错误, 加载阶段直接失败, 运行时不可恢复
	ErrConfiguration = configexpression.ErrConfiguration

	// 下面四个是迁移时的错误, 调用方可以处理
	ErrUnknownTransition          = errors.New("unknown transition")
	ErrNotStartTransition         = errors.New("not start transition")
	ErrStepHasNoAllowedTransition = errors.New("step has no allowed transition")
	ErrConditionsNotMet           = errors.New("some transition conditions are not met")

	ErrWorkflowParamInvalid      = errors.New("workflow param invalid")
	ErrWorkflowNotFound          = errors.New("workflow not found")
	ErrWorkflowInactive          = errors.New("workflow is not active")
	ErrWorkflowItemNotFound      = errors.New("workflow item not found")
	ErrWorkflowItemAlreadyExists = errors.New("workflow item already exists")
	// 实例在加载之后被其他请求迁移过
	ErrWorkflowItemChanged = errors.New("workflow item changed by another transition")
)

// ConditionsNotMetError 条件不满足, Messages 为违规信息
type ConditionsNotMetError struct {
	WorkflowName   string
	TransitionName string
	Messages       []string
}

func (e *ConditionsNotMetError) Error() string {
	if len(e.Messages) == 0 {
		return "transition " + e.TransitionName + ": " + ErrConditionsNotMet.Error()
	}
	return "transition " + e.TransitionName + ": " + strings.Join(e.Messages, "; ")
}

func (e *ConditionsNotMetError) Unwrap() error {
	return ErrConditionsNotMet
}

// IsConfigurationError 配置错误, 需要开发人员修复配置
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsTransitionError 迁移被拒绝的错误, 不会修改工作流状态
func IsTransitionError(err error) bool {
	return errors.Is(err, ErrUnknownTransition) ||
		errors.Is(err, ErrNotStartTransition) ||
		errors.Is(err, ErrStepHasNoAllowedTransition) ||
		errors.Is(err, ErrConditionsNotMet)
}

const (
	// DefaultStartTransitionName 配置了 start_step 时自动生成的开始迁移
	DefaultStartTransitionName = "__start__"
	// DefaultTransitionFormType 使用默认表单的迁移
	DefaultTransitionFormType = "workflow_transition"

	DisplayTypeDialog = "dialog"
	DisplayTypePage   = "page"

	RestrictionModeFull     = "full"
	RestrictionModeAllow    = "allow"
	RestrictionModeDisallow = "disallow"
)

var validatorUtil = validator.New(validator.WithRequiredStructEnabled())

// 辅助函数
func String(s string) *string { return &s }
func Bool(b bool) *bool       { return &b }
func Int64(i int64) *int64    { return &i }
