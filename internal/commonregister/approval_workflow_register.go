package commonregister

import (
	"context"
	"time"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/blingmoon/simple-fsm-workflow/workflow"
	"github.com/pkg/errors"
)

const (
	ApprovalWorkflowName = "approval_workflow"
	ApprovalEntityClass  = "approval_request"
)

// 工作流结构：提交 -> 审核 -> 批准/驳回
const approvalWorkflowYAML = `
approval_workflow:
  label: 审批工作流
  entity: approval_request
  start_step: submitted
  active: true
  order: 10
  attributes:
    applicant: {type: string}
    amount: {type: float}
    reviewer: {type: string, label: 审核人}
    submit_time: {type: string}
    review_time: {type: string}
    approve_time: {type: string}
    final_status: {type: string}
  steps:
    submitted: {label: 提交申请, order: 10, allowed_transitions: [review]}
    reviewed: {label: 审核, order: 20, allowed_transitions: [approve, reject]}
    approved: {label: 批准, order: 30, is_final: true}
    rejected: {label: 驳回, order: 40, is_final: true}
  transitions:
    __start__:
      step_to: submitted
      is_start: true
      actions:
        - "@stamp_time": [submit_time]
    review:
      label: 审核
      step_to: reviewed
      form_options:
        attribute_fields:
          reviewer: {options: {required: true}}
      conditions:
        "@not_blank":
          parameters: [$submit_time]
          message: 申请还没有提交
      actions:
        - "@stamp_time": [review_time]
    approve:
      label: 批准
      step_to: approved
      preconditions:
        "@not_blank": [$reviewer]
      actions:
        - "@stamp_time": [approve_time]
        - "@assign_value": [$final_status, approved]
    reject:
      label: 驳回
      step_to: rejected
      actions:
        - "@assign_value": [$final_status, rejected]
  entity_restrictions:
    - field: amount
      step: reviewed
      mode: full
`

// ApprovalRequest 审批申请实体
type ApprovalRequest struct {
	ID        string
	Applicant string
	Amount    float64
}

func (r *ApprovalRequest) EntityClass() string { return ApprovalEntityClass }
func (r *ApprovalRequest) EntityID() string    { return r.ID }

// NewApprovalFactory 内置表达式加上审批工作流用到的动作
func NewApprovalFactory() (*configexpression.Factory, error) {
	factory := configexpression.NewDefaultFactory(configexpression.NewContextAccessor())
	// @stamp_time [key] 把当前时间写入实例数据
	err := workflow.RegisterActionWorker(factory, "stamp_time", workflow.NewNormalActionWorker(
		func(ctx context.Context, item *workflow.WorkflowItem, parameters []any) error {
			if len(parameters) != 1 {
				return errors.Errorf("stamp_time needs exactly one key, got %d", len(parameters))
			}
			key, ok := parameters[0].(string)
			if !ok || key == "" {
				return errors.Errorf("stamp_time key must be a string, got %T", parameters[0])
			}
			item.Data.Set(key, time.Now().Format(time.RFC3339))
			return nil
		},
	))
	if err != nil {
		return nil, errors.Wrap(err, "register stamp_time failed")
	}
	return factory, nil
}

func LoadApprovalWorkflow() (*workflow.WorkflowDefinition, error) {
	factory, err := NewApprovalFactory()
	if err != nil {
		return nil, err
	}
	loader := workflow.NewConfigurationLoader(configexpression.NewAssembler(factory, configexpression.NewReplacePropertyPathPass(workflow.ItemKeyData)))
	definitions, err := loader.LoadYAML([]byte(approvalWorkflowYAML))
	if err != nil {
		return nil, errors.Wrap(err, "load approval workflow config failed")
	}
	return definitions[0], nil
}

// RegisterApprovalWorkflow 加载审批工作流并注册
func RegisterApprovalWorkflow(registry *workflow.DefinitionRegistry) error {
	definition, err := LoadApprovalWorkflow()
	if err != nil {
		return err
	}
	if err := registry.Register(definition); err != nil {
		return errors.Wrap(err, "register approval workflow failed")
	}
	return nil
}
