package workflow

import (
	"context"
	"testing"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const autoStartWorkflowsYAML = `
workflows:
  expense_audit:
    entity: expense
    start_step: recorded
    order: 20
    steps:
      recorded: {}
  expense_review:
    entity: expense
    start_step: waiting
    order: 5
    active: false
    steps:
      waiting: {}
  manual_only:
    entity: expense
    order: 1
    steps:
      open: {}
    transitions:
      open:
        step_to: open
        is_start: true
`

func newTestService(t *testing.T, content string) (WorkflowService, *DefinitionRegistry) {
	t.Helper()
	definitions, err := NewDefaultConfigurationLoader().LoadYAML([]byte(content))
	require.NoError(t, err)
	registry, err := NewDefinitionRegistry(definitions...)
	require.NoError(t, err)
	return NewWorkflowService(registry, NewWorkflowRepo(newTestDB(t)), NewLocalWorkflowLock()), registry
}

func TestWorkflowService_StartAndTransit(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, expenseWorkflowYAML)

	t.Run("参数校验", func(t *testing.T) {
		_, err := service.StartWorkflow(ctx, &StartWorkflowReq{WorkflowName: "expense_approval"})
		assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
		_, err = service.TransitWorkflowItem(ctx, &TransitWorkflowItemReq{TransitionName: "submit"})
		assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
		_, err = service.StartWorkflow(ctx, &StartWorkflowReq{WorkflowName: "missing", Entity: newExpense("1")})
		assert.True(t, errors.Is(err, ErrWorkflowNotFound))
	})

	entity := newExpense("1")
	item, err := service.StartWorkflow(ctx, &StartWorkflowReq{
		WorkflowName: "expense_approval",
		Entity:       entity,
		Data:         map[string]any{"reviewer": "钱七"},
	})
	require.NoError(t, err)

	t.Run("条件不满足时返回违规信息", func(t *testing.T) {
		errs := configexpression.NewErrors()
		ok, err := service.IsTransitionAllowed(ctx, item, "submit", errs)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"金额不能为空"}, errs.Messages())

		_, err = service.TransitWorkflowItem(ctx, &TransitWorkflowItemReq{WorkflowItemID: item.ID, TransitionName: "submit"})
		assert.True(t, errors.Is(err, ErrConditionsNotMet))
	})

	t.Run("迁移前合并数据", func(t *testing.T) {
		transited, err := service.TransitWorkflowItem(ctx, &TransitWorkflowItemReq{
			WorkflowItemID: item.ID,
			TransitionName: "submit",
			Entity:         entity,
			Data:           map[string]any{"amount": 50},
		})
		require.NoError(t, err)
		assert.Equal(t, "submitted", transited.CurrentStep)

		loaded, err := service.GetWorkflowItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "submitted", loaded.CurrentStep)
		reviewer, _ := loaded.Data.Get("reviewer")
		assert.Equal(t, "钱七", reviewer)

		transitions, err := service.GetAvailableTransitions(ctx, loaded)
		require.NoError(t, err)
		require.Len(t, transitions, 2)
		assert.Equal(t, "approve", transitions[0].Name)
	})

	t.Run("实体不属于实例", func(t *testing.T) {
		_, err := service.TransitWorkflowItem(ctx, &TransitWorkflowItemReq{
			WorkflowItemID: item.ID,
			TransitionName: "approve",
			Entity:         newExpense("2"),
		})
		assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
	})

	t.Run("迁移记录和按实体查询", func(t *testing.T) {
		records, err := service.GetTransitionRecords(ctx, item.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, DefaultStartTransitionName, records[0].TransitionName)
		assert.Equal(t, "submit", records[1].TransitionName)
		assert.Equal(t, "draft", records[1].StepFrom)
		assert.False(t, records[1].TransitionDate.IsZero())

		items, err := service.GetWorkflowItemsByEntity(ctx, entity)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, item.ID, items[0].ID)

		_, err = service.GetWorkflowItem(ctx, 9999)
		assert.True(t, errors.Is(err, ErrWorkflowItemNotFound))
	})

	t.Run("字段限制", func(t *testing.T) {
		restrictions, err := service.GetEntityRestrictions(ctx, entity)
		require.NoError(t, err)
		assert.Len(t, restrictions, 2)
	})
}

func TestWorkflowService_HandleEntitiesCreated(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, autoStartWorkflowsYAML)

	items, err := service.HandleEntitiesCreated(ctx, newExpense("1"))
	require.NoError(t, err)
	require.Len(t, items, 1, "只启动激活的并且有默认开始迁移的工作流")
	assert.Equal(t, "expense_audit", items[0].WorkflowName)

	t.Run("已经存在的实例跳过", func(t *testing.T) {
		items, err := service.HandleEntitiesCreated(ctx, newExpense("1"))
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("激活之后只影响新实体, 按 order 启动", func(t *testing.T) {
		require.NoError(t, service.ActivateWorkflow(ctx, "expense_review"))
		items, err := service.HandleEntitiesCreated(ctx, newExpense("2"))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "expense_review", items[0].WorkflowName)
		assert.Equal(t, "expense_audit", items[1].WorkflowName)

		existing, err := service.GetWorkflowItemsByEntity(ctx, newExpense("1"))
		require.NoError(t, err)
		assert.Len(t, existing, 1)
	})

	t.Run("未激活的工作流不能手动启动", func(t *testing.T) {
		require.NoError(t, service.DeactivateWorkflow(ctx, "expense_review"))
		_, err := service.StartWorkflow(ctx, &StartWorkflowReq{WorkflowName: "expense_review", Entity: newExpense("3")})
		assert.True(t, errors.Is(err, ErrWorkflowInactive))
	})

	t.Run("没有默认开始迁移的工作流可以手动启动", func(t *testing.T) {
		item, err := service.StartWorkflow(ctx, &StartWorkflowReq{WorkflowName: "manual_only", Entity: newExpense("3"), TransitionName: "open"})
		require.NoError(t, err)
		assert.Equal(t, "open", item.CurrentStep)
	})
}
