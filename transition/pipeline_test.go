package transition

import (
	"context"
	"net/http"
	"testing"

	"github.com/blingmoon/simple-fsm-workflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipeline_Start(t *testing.T) {
	wf := newTestWorkflow(t)
	tc := NewContext(wf, workflow.DefaultStartTransitionName, &Request{Method: http.MethodPost, IsXMLHTTP: true})
	tc.Entity = newLeave("1")

	require.NoError(t, NewDefaultPipeline(nil).Process(context.Background(), tc))
	assert.Equal(t, ResultTypeJSON, tc.ResultType)
	assert.True(t, tc.IsStartTransition)
	assert.True(t, tc.IsSaved)

	result, ok := tc.Result.(*JSONResult)
	require.True(t, ok)
	assert.True(t, result.Saved)
	assert.Nil(t, result.Form)
	require.NotNil(t, result.WorkflowItem)
	assert.Greater(t, result.WorkflowItem.ID, int64(0))
	assert.Equal(t, "draft", result.WorkflowItem.CurrentStep)
	assert.Equal(t, "leave", result.WorkflowItem.EntityClass)
}

func TestDefaultPipeline_Form(t *testing.T) {
	ctx := context.Background()

	t.Run("GET展示表单", func(t *testing.T) {
		wf := newTestWorkflow(t)
		entity := newLeave("1")
		tc := NewContext(wf, "submit", &Request{Method: http.MethodGet})
		tc.WorkflowItem = startedItem(t, wf, entity)
		tc.Entity = entity

		require.NoError(t, NewDefaultPipeline(nil).Process(ctx, tc))
		assert.Equal(t, ResultTypeLayoutDialog, tc.ResultType)
		assert.False(t, tc.IsSaved)

		result, ok := tc.Result.(*TemplateResult)
		require.True(t, ok)
		assert.Equal(t, DefaultDialogTemplate, result.Template)
		assert.Equal(t, "已提交", result.Parameters[BagKeyStepToLabel])
		assert.Equal(t, "确认提交 submit", result.Parameters[BagKeyTransitionMessage])

		view, ok := result.Parameters["form"].(*FormView)
		require.True(t, ok)
		require.Len(t, view.Fields, 2)
		assert.Equal(t, "days", view.Fields[0].Name)
		assert.Equal(t, "天数", view.Fields[0].Label)
		assert.Equal(t, "int", view.Fields[0].Type)
		assert.True(t, view.Fields[0].Required)
		assert.Nil(t, view.Fields[0].Value)
		assert.Equal(t, "reason", view.Fields[1].Name)
		assert.Equal(t, "个人事务", view.Fields[1].Value)
		assert.Equal(t, "draft", tc.WorkflowItem.CurrentStep)
	})

	t.Run("POST缺少必填字段重新展示表单", func(t *testing.T) {
		wf := newTestWorkflow(t)
		entity := newLeave("1")
		tc := NewContext(wf, "submit", &Request{Method: http.MethodPost, Data: map[string]any{"reason": "看病"}})
		tc.WorkflowItem = startedItem(t, wf, entity)
		tc.Entity = entity

		require.NoError(t, NewDefaultPipeline(nil).Process(ctx, tc))
		assert.ErrorIs(t, tc.Error, ErrFormInvalid)
		result, ok := tc.Result.(*TemplateResult)
		require.True(t, ok)
		assert.Equal(t, []string{"天数 is required"}, result.Parameters["messages"])
		assert.Equal(t, false, result.Parameters["saved"])
		assert.Equal(t, "draft", tc.WorkflowItem.CurrentStep)
	})

	t.Run("POST提交并迁移", func(t *testing.T) {
		wf := newTestWorkflow(t)
		entity := newLeave("1")
		tc := NewContext(wf, "submit", &Request{Method: http.MethodPost, IsXMLHTTP: true, Data: map[string]any{"days": 3}})
		tc.WorkflowItem = startedItem(t, wf, entity)
		tc.Entity = entity

		require.NoError(t, NewDefaultPipeline(nil).Process(ctx, tc))
		require.NoError(t, tc.Error)
		result, ok := tc.Result.(*JSONResult)
		require.True(t, ok)
		assert.True(t, result.Saved)
		assert.Equal(t, "submitted", result.WorkflowItem.CurrentStep)
		assert.EqualValues(t, 3, result.WorkflowItem.Data["days"])
		assert.Equal(t, "个人事务", result.WorkflowItem.Data["reason"])
		assert.Empty(t, result.Messages)
	})

	t.Run("条件不满足返回problem", func(t *testing.T) {
		wf := newTestWorkflow(t)
		entity := newLeave("1")
		tc := NewContext(wf, "submit", &Request{Method: http.MethodPost, IsXMLHTTP: true, OriginalURL: "/leave/1/submit", Data: map[string]any{"days": -1}})
		tc.WorkflowItem = startedItem(t, wf, entity)
		tc.Entity = entity

		require.NoError(t, NewDefaultPipeline(nil).Process(ctx, tc))
		assert.ErrorIs(t, tc.Error, workflow.ErrConditionsNotMet)
		result, ok := tc.Result.(*ErrorResult)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, result.Problem.Status)
		assert.Equal(t, "transition_not_allowed", result.Problem.Type)
		assert.Equal(t, "/leave/1/submit", result.Problem.Instance)
		assert.Equal(t, []string{"天数必须大于0"}, result.Messages)
		assert.Equal(t, "draft", tc.WorkflowItem.CurrentStep)
	})
}

func TestDefaultPipeline_CustomForm(t *testing.T) {
	ctx := context.Background()

	t.Run("没有注册provider", func(t *testing.T) {
		wf := newTestWorkflow(t)
		entity := newLeave("1")
		tc := NewContext(wf, "review", &Request{Method: http.MethodGet, IsXMLHTTP: true})
		tc.WorkflowItem = startedItem(t, wf, entity)
		tc.Entity = entity

		err := NewDefaultPipeline(nil).Process(ctx, tc)
		require.Error(t, err)
		assert.True(t, IsMisconfigured(err))
		assert.Contains(t, err.Error(), "leave_review")
	})

	t.Run("provider提供数据并且应用限制", func(t *testing.T) {
		wf := newTestWorkflow(t)
		entity := newLeave("1")
		providers := NewFormDataProviderRegistry()
		require.NoError(t, providers.Register("leave_review", FormDataProviderFunc(func(ctx context.Context, tc *Context) (map[string]any, error) {
			return map[string]any{"reviewer": "王五", "days": 2}, nil
		})))
		pipeline := NewDefaultPipeline(&Options{
			FormDataProviders: providers,
			Restrictions: staticRestrictions{
				{WorkflowName: "leave_request", Field: "days", Mode: workflow.RestrictionModeFull},
			},
		})
		tc := NewContext(wf, "review", &Request{Method: http.MethodGet, IsXMLHTTP: true})
		tc.WorkflowItem = startedItem(t, wf, entity)
		tc.Entity = entity

		require.NoError(t, pipeline.Process(ctx, tc))
		assert.True(t, tc.IsCustomForm)
		result, ok := tc.Result.(*JSONResult)
		require.True(t, ok)
		assert.False(t, result.Saved)
		require.NotNil(t, result.Form)
		assert.Equal(t, "leave_review_form", result.Form.Type)
		require.Len(t, result.Form.Fields, 2)
		assert.Equal(t, "days", result.Form.Fields[0].Name)
		assert.True(t, result.Form.Fields[0].ReadOnly)
		assert.Equal(t, "reviewer", result.Form.Fields[1].Name)
		assert.False(t, result.Form.Fields[1].ReadOnly)
		assert.Equal(t, "王五", result.Form.Fields[1].Value)
	})
}

func TestDefaultPipeline_Responses(t *testing.T) {
	ctx := context.Background()
	submittedItem := func(t *testing.T, wf *workflow.Workflow, entity workflow.Entity) *workflow.WorkflowItem {
		item := startedItem(t, wf, entity)
		item.Data.Set("days", 2)
		require.NoError(t, wf.Transit(ctx, item, "submit"))
		return item
	}

	t.Run("跳转", func(t *testing.T) {
		wf := newTestWorkflow(t)
		entity := newLeave("1")
		tc := NewContext(wf, "approve", &Request{
			Method:      http.MethodPost,
			Params:      map[string]string{"return_url": "/leave/1"},
			OriginalURL: "/leave/1/approve",
		})
		tc.WorkflowItem = submittedItem(t, wf, entity)
		tc.Entity = entity

		require.NoError(t, NewDefaultPipeline(nil).Process(ctx, tc))
		assert.Equal(t, &RedirectResult{URL: "/leave/1", Saved: true}, tc.Result)
		assert.Equal(t, "approved", tc.WorkflowItem.CurrentStep)
	})

	t.Run("layout页面", func(t *testing.T) {
		wf := newTestWorkflow(t)
		entity := newLeave("1")
		tc := NewContext(wf, "approve", &Request{Method: http.MethodPost, IsLayout: true})
		tc.WorkflowItem = submittedItem(t, wf, entity)

		require.NoError(t, NewDefaultPipeline(&Options{PageTemplate: "leave/approve"}).Process(ctx, tc))
		result, ok := tc.Result.(*TemplateResult)
		require.True(t, ok)
		assert.Equal(t, ResultTypeLayoutPage, result.ResultType)
		assert.Equal(t, "leave/approve", result.Template)
		assert.Equal(t, true, result.Parameters["saved"])
	})

	t.Run("widget模板", func(t *testing.T) {
		wf := newTestWorkflow(t)
		entity := newLeave("1")
		tc := NewContext(wf, "submit", &Request{Method: http.MethodGet, WidgetContainer: "dialog"})
		tc.WorkflowItem = startedItem(t, wf, entity)

		require.NoError(t, NewDefaultPipeline(nil).Process(ctx, tc))
		result, ok := tc.Result.(*TemplateResult)
		require.True(t, ok)
		assert.Equal(t, DefaultWidgetTemplate, result.Template)
		assert.Equal(t, "dialog", result.Parameters["widget_container"])
	})

	t.Run("未知迁移", func(t *testing.T) {
		wf := newTestWorkflow(t)
		tc := NewContext(wf, "missing", &Request{Method: http.MethodPost, OriginalURL: "/leave/1/missing"})

		require.NoError(t, NewDefaultPipeline(nil).Process(ctx, tc))
		assert.ErrorIs(t, tc.Error, workflow.ErrUnknownTransition)
		result, ok := tc.Result.(*ErrorResult)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, result.Problem.Status)
		assert.Equal(t, "unknown_transition", result.Problem.Type)
	})

	t.Run("非开始迁移没有实例", func(t *testing.T) {
		wf := newTestWorkflow(t)
		tc := NewContext(wf, "approve", &Request{Method: http.MethodPost})
		tc.Entity = newLeave("1")

		require.NoError(t, NewDefaultPipeline(nil).Process(ctx, tc))
		assert.ErrorIs(t, tc.Error, workflow.ErrNotStartTransition)
		result, ok := tc.Result.(*ErrorResult)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, result.Problem.Status)
	})
}

func TestLabelTranslateProcessor(t *testing.T) {
	wf := newTestWorkflow(t)
	tc := NewContext(wf, "submit", nil)
	tc.Transition, _ = wf.Definition().GetTransition("submit")

	processor := NewLabelTranslateProcessor(MapTranslator{"submit": "提交申请", "已提交": "submitted"})
	require.True(t, processor.Applicable(tc))
	require.NoError(t, processor.Process(context.Background(), tc))
	label, _ := tc.Get(BagKeyTransitionLabel)
	assert.Equal(t, "提交申请", label)
	stepLabel, _ := tc.Get(BagKeyStepToLabel)
	assert.Equal(t, "submitted", stepLabel)
	assert.False(t, processor.Applicable(tc))
}
