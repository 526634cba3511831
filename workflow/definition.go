package workflow

import (
	"context"
	"sort"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
)

// WorkflowDefinition 工作流定义, 加载之后只读, 不保存运行时状态
type WorkflowDefinition struct {
	Name            string
	Label           string
	EntityClass     string
	EntityAttribute string
	StartStepName   string
	Active          bool
	Order           int
	Configuration   map[string]any // 原始配置
	Steps           map[string]*WorkflowStep
	Transitions     map[string]*Transition
	Attributes      map[string]*Attribute
	Restrictions    []*EntityRestriction

	transitionNames []string // 声明顺序
}

// EntityKey 实体在 data 中的属性名
func (d *WorkflowDefinition) EntityKey() string {
	if d.EntityAttribute != "" {
		return d.EntityAttribute
	}
	return ItemKeyEntity
}

// WorkflowStep 步骤
type WorkflowStep struct {
	Name               string
	Label              string
	Order              int
	IsFinal            bool
	AllowedTransitions []string
}

func (s *WorkflowStep) IsAllowedTransition(name string) bool {
	for _, allowed := range s.AllowedTransitions {
		if allowed == name {
			return true
		}
	}
	return false
}

// Transition 迁移, 表达式为 nil 表示没有配置
type Transition struct {
	Name             string
	Label            string
	StepTo           string
	IsStart          bool
	PreConditions    configexpression.Expression // 决定迁移是否可见
	Conditions       configexpression.Expression // 决定迁移是否可执行
	PreActions       configexpression.Expression
	Actions          configexpression.Expression
	FormInit         configexpression.Expression // 展示表单前执行
	FormType         string
	FormOptions      map[string]any
	AttributeFields  []*AttributeField
	FrontendOptions  map[string]any
	DisplayType      string
	DialogTemplate   string
	PageTemplate     string
	FormDataProvider string
	Message          string
}

// AttributeField 迁移表单中的一个属性字段
type AttributeField struct {
	Attribute string
	Label     string
	FormType  string
	Required  bool
	Options   map[string]any
}

func (t *Transition) HasForm() bool {
	return len(t.AttributeFields) > 0 || (t.FormType != "" && t.FormType != DefaultTransitionFormType)
}

// IsAvailable 只检查 preconditions, 决定迁移是否展示
func (t *Transition) IsAvailable(ctx context.Context, item *WorkflowItem, errs *configexpression.Errors) (bool, error) {
	return configexpression.IsConditionAllowed(ctx, t.PreConditions, item, errs)
}

// IsAllowed preconditions 和 conditions 都满足
func (t *Transition) IsAllowed(ctx context.Context, item *WorkflowItem, errs *configexpression.Errors) (bool, error) {
	ok, err := t.IsAvailable(ctx, item, errs)
	if err != nil || !ok {
		return ok, err
	}
	return configexpression.IsConditionAllowed(ctx, t.Conditions, item, errs)
}

// IsCustomForm 表单数据由外部 provider 提供
func (t *Transition) IsCustomForm() bool {
	return t.FormDataProvider != "" || (t.FormType != "" && t.FormType != DefaultTransitionFormType)
}

// Attribute 声明 WorkflowData 的字段
type Attribute struct {
	Name    string
	Label   string
	Type    string
	Options map[string]any
}

// EntityRestriction 实体字段限制, Step 为空表示任何步骤都生效
type EntityRestriction struct {
	WorkflowName string
	Attribute    string
	Field        string
	Step         string
	Mode         string
	Values       []any
}

func (d *WorkflowDefinition) GetStep(name string) (*WorkflowStep, bool) {
	step, ok := d.Steps[name]
	return step, ok
}

func (d *WorkflowDefinition) GetTransition(name string) (*Transition, bool) {
	transition, ok := d.Transitions[name]
	return transition, ok
}

func (d *WorkflowDefinition) GetAttribute(name string) (*Attribute, bool) {
	attribute, ok := d.Attributes[name]
	return attribute, ok
}

// OrderedTransitions 按声明顺序
func (d *WorkflowDefinition) OrderedTransitions() []*Transition {
	ret := make([]*Transition, 0, len(d.transitionNames))
	for _, name := range d.transitionNames {
		ret = append(ret, d.Transitions[name])
	}
	return ret
}

// OrderedSteps 按 order 排序, order 相同按名字
func (d *WorkflowDefinition) OrderedSteps() []*WorkflowStep {
	ret := make([]*WorkflowStep, 0, len(d.Steps))
	for _, step := range d.Steps {
		ret = append(ret, step)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Order != ret[j].Order {
			return ret[i].Order < ret[j].Order
		}
		return ret[i].Name < ret[j].Name
	})
	return ret
}

func (d *WorkflowDefinition) GetStartTransitions() []*Transition {
	ret := make([]*Transition, 0)
	for _, transition := range d.OrderedTransitions() {
		if transition.IsStart {
			ret = append(ret, transition)
		}
	}
	return ret
}

// GetDefaultStartTransition 实体创建时自动启动使用的迁移
func (d *WorkflowDefinition) GetDefaultStartTransition() (*Transition, bool) {
	transition, ok := d.Transitions[DefaultStartTransitionName]
	if !ok || !transition.IsStart {
		return nil, false
	}
	return transition, true
}

// clone 浅拷贝, 激活状态变化时使用, 步骤和迁移共享
func (d *WorkflowDefinition) clone() *WorkflowDefinition {
	c := *d
	return &c
}
