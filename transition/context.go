package transition

import (
	"net/http"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/blingmoon/simple-fsm-workflow/workflow"
)

// ResultType 迁移请求的响应形式
type ResultType string

const (
	ResultTypeTemplate     ResultType = "template"      // 对话框 widget 渲染
	ResultTypeLayoutPage   ResultType = "layout_page"   // layout 页面
	ResultTypeLayoutDialog ResultType = "layout_dialog" // layout 对话框
	ResultTypeRedirect     ResultType = "redirect"
	ResultTypeJSON         ResultType = "json"
)

// Request 和 HTTP 无关的迁移请求
type Request struct {
	Method          string
	Params          map[string]string
	Data            map[string]any // 提交的表单数据
	WidgetContainer string
	IsLayout        bool
	IsXMLHTTP       bool
	OriginalURL     string
}

func (r *Request) IsSubmit() bool {
	return r != nil && r.Method == http.MethodPost
}

// Context 一次迁移请求的上下文, 只在一次 Pipeline.Process 中使用, 不能在请求之间共享
type Context struct {
	Workflow          *workflow.Workflow
	WorkflowItem      *workflow.WorkflowItem
	Entity            workflow.Entity
	InitData          map[string]any
	TransitionName    string
	Transition        *workflow.Transition
	Request           *Request
	ResultType        ResultType
	Form              *Form
	FormView          *FormView
	FormData          map[string]any
	IsCustomForm      bool
	IsStartTransition bool
	IsSaved           bool
	Errors            *configexpression.Errors
	Error             error
	Result            any

	processed bool
	bag       map[string]any
}

func NewContext(wf *workflow.Workflow, transitionName string, request *Request) *Context {
	if request == nil {
		request = &Request{Method: http.MethodGet}
	}
	return &Context{
		Workflow:       wf,
		TransitionName: transitionName,
		Request:        request,
		Errors:         configexpression.NewErrors(),
		bag:            make(map[string]any),
	}
}

func (c *Context) IsProcessed() bool {
	return c.processed
}

// SetResult 设置结果并结束 pipeline
func (c *Context) SetResult(result any) {
	c.Result = result
	c.processed = true
}

func (c *Context) HasError() bool {
	return c.Error != nil
}

func (c *Context) Get(key string) (any, bool) {
	v, ok := c.bag[key]
	return v, ok
}

func (c *Context) Set(key string, value any) {
	c.bag[key] = value
}

func (c *Context) Has(key string) bool {
	_, ok := c.bag[key]
	return ok
}

func (c *Context) Remove(key string) {
	delete(c.bag, key)
}
