package transition

import (
	"context"
	"net/http"

	"github.com/blingmoon/simple-fsm-workflow/workflow"
	"github.com/moogar0880/problems"
	"github.com/pkg/errors"
)

const (
	DefaultDialogTemplate = "transition/dialog"
	DefaultPageTemplate   = "transition/page"
	DefaultWidgetTemplate = "transition/widget"
)

// ItemView 实例的只读视图
type ItemView struct {
	ID           int64          `json:"id"`
	WorkflowName string         `json:"workflow_name"`
	CurrentStep  string         `json:"current_step"`
	EntityClass  string         `json:"entity_class"`
	EntityID     string         `json:"entity_id"`
	Data         map[string]any `json:"data"`
}

func newItemView(item *workflow.WorkflowItem) *ItemView {
	if item == nil {
		return nil
	}
	view := &ItemView{
		ID:           item.ID,
		WorkflowName: item.WorkflowName,
		CurrentStep:  item.CurrentStep,
		EntityClass:  item.EntityClass,
		EntityID:     item.EntityID,
	}
	if item.Data != nil {
		view.Data = item.Data.ToMap()
	}
	return view
}

// ErrorResult 迁移失败并且没有可以重新展示的表单
type ErrorResult struct {
	Problem  *problems.Problem `json:"problem"`
	Messages []string          `json:"messages,omitempty"`
}

type RedirectResult struct {
	URL   string `json:"url"`
	Saved bool   `json:"saved"`
}

type JSONResult struct {
	Saved        bool      `json:"saved"`
	WorkflowItem *ItemView `json:"workflow_item"`
	Form         *FormView `json:"form,omitempty"`
	Messages     []string  `json:"messages,omitempty"`
}

// TemplateResult 交给渲染层的模板和参数
type TemplateResult struct {
	Template   string         `json:"template"`
	ResultType ResultType     `json:"result_type"`
	Parameters map[string]any `json:"parameters"`
}

func isRenderable(resultType ResultType) bool {
	return resultType == ResultTypeTemplate || resultType == ResultTypeLayoutDialog || resultType == ResultTypeLayoutPage
}

// ErrorResponseProcessor 出错并且表单不能重新展示时, 生成 problem 结果
type ErrorResponseProcessor struct{}

func (p *ErrorResponseProcessor) Name() string { return "error_response" }

func (p *ErrorResponseProcessor) Applicable(tc *Context) bool {
	return tc.HasError() && !(tc.Form != nil && isRenderable(tc.ResultType))
}

func (p *ErrorResponseProcessor) Process(ctx context.Context, tc *Context) error {
	status, problemType := errorStatus(tc.Error)
	problem := problems.NewStatusProblem(status).
		WithInstance(tc.Request.OriginalURL).
		WithType(problemType)
	if status == http.StatusInternalServerError {
		problem = problem.WithError(tc.Error)
	} else {
		problem = problem.WithDetail(tc.Error.Error())
	}
	tc.SetResult(&ErrorResult{Problem: problem, Messages: tc.Errors.Messages()})
	return nil
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, workflow.ErrUnknownTransition), errors.Is(err, workflow.ErrWorkflowItemNotFound):
		return http.StatusNotFound, "unknown_transition"
	case errors.Is(err, ErrFormInvalid), errors.Is(err, workflow.ErrWorkflowParamInvalid):
		return http.StatusBadRequest, "validation_error"
	case workflow.IsTransitionError(err):
		return http.StatusBadRequest, "transition_not_allowed"
	case errors.Is(err, workflow.LockFailedError), errors.Is(err, workflow.ErrWorkflowItemAlreadyExists),
		errors.Is(err, workflow.ErrWorkflowItemChanged):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// RedirectResponseProcessor 普通请求执行之后跳转
type RedirectResponseProcessor struct{}

func (p *RedirectResponseProcessor) Name() string { return "redirect_response" }

func (p *RedirectResponseProcessor) Applicable(tc *Context) bool {
	return tc.ResultType == ResultTypeRedirect
}

func (p *RedirectResponseProcessor) Process(ctx context.Context, tc *Context) error {
	url := tc.Request.OriginalURL
	if returnURL, ok := tc.Request.Params["return_url"]; ok && returnURL != "" {
		url = returnURL
	}
	tc.SetResult(&RedirectResult{URL: url, Saved: tc.IsSaved})
	return nil
}

type JSONResponseProcessor struct{}

func (p *JSONResponseProcessor) Name() string { return "json_response" }

func (p *JSONResponseProcessor) Applicable(tc *Context) bool {
	return tc.ResultType == ResultTypeJSON
}

func (p *JSONResponseProcessor) Process(ctx context.Context, tc *Context) error {
	tc.SetResult(&JSONResult{
		Saved:        tc.IsSaved,
		WorkflowItem: newItemView(tc.WorkflowItem),
		Form:         tc.FormView,
		Messages:     tc.Errors.Messages(),
	})
	return nil
}

// templateResponseProcessor 三种模板响应只有模板和响应形式不同
type templateResponseProcessor struct {
	name       string
	resultType ResultType
	template   func(tc *Context) string
}

func (p *templateResponseProcessor) Name() string { return p.name }

func (p *templateResponseProcessor) Applicable(tc *Context) bool {
	return tc.ResultType == p.resultType
}

func (p *templateResponseProcessor) Process(ctx context.Context, tc *Context) error {
	parameters := map[string]any{
		"transition_name": tc.TransitionName,
		"workflow_item":   newItemView(tc.WorkflowItem),
		"form":            tc.FormView,
		"saved":           tc.IsSaved,
		"messages":        tc.Errors.Messages(),
	}
	for _, key := range []string{BagKeyTransitionLabel, BagKeyStepToLabel, BagKeyTransitionMessage} {
		if value, ok := tc.Get(key); ok {
			parameters[key] = value
		}
	}
	if tc.Transition != nil {
		parameters["frontend_options"] = tc.Transition.FrontendOptions
	}
	if tc.Request.WidgetContainer != "" {
		parameters["widget_container"] = tc.Request.WidgetContainer
	}
	tc.SetResult(&TemplateResult{
		Template:   p.template(tc),
		ResultType: p.resultType,
		Parameters: parameters,
	})
	return nil
}

func NewLayoutDialogResponseProcessor(defaultTemplate string) Processor {
	return &templateResponseProcessor{
		name:       "layout_dialog_response",
		resultType: ResultTypeLayoutDialog,
		template: func(tc *Context) string {
			if tc.Transition != nil && tc.Transition.DialogTemplate != "" {
				return tc.Transition.DialogTemplate
			}
			return defaultTemplate
		},
	}
}

func NewLayoutPageResponseProcessor(defaultTemplate string) Processor {
	return &templateResponseProcessor{
		name:       "layout_page_response",
		resultType: ResultTypeLayoutPage,
		template: func(tc *Context) string {
			if tc.Transition != nil && tc.Transition.PageTemplate != "" {
				return tc.Transition.PageTemplate
			}
			return defaultTemplate
		},
	}
}

func NewTemplateResponseProcessor(defaultTemplate string) Processor {
	return &templateResponseProcessor{
		name:       "template_response",
		resultType: ResultTypeTemplate,
		template: func(tc *Context) string {
			return defaultTemplate
		},
	}
}
