package transition

import (
	"context"
	"sort"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/blingmoon/simple-fsm-workflow/workflow"
	"github.com/pkg/errors"
)

// bag 中的 key
const (
	BagKeyTransitionLabel   = "transition_label"
	BagKeyStepToLabel       = "step_to_label"
	BagKeyTransitionMessage = "transition_message"
	BagKeyRestrictions      = "restrictions"
)

func ready(tc *Context) bool {
	return tc.Transition != nil && !tc.HasError()
}

// TransitionResolveProcessor 根据名字找到迁移
type TransitionResolveProcessor struct{}

func (p *TransitionResolveProcessor) Name() string { return "transition_resolve" }

func (p *TransitionResolveProcessor) Applicable(tc *Context) bool {
	return tc.Transition == nil && !tc.HasError()
}

func (p *TransitionResolveProcessor) Process(ctx context.Context, tc *Context) error {
	if tc.Workflow == nil {
		return errors.WithMessage(ErrProcessorMisconfigured, "workflow is required")
	}
	transition, ok := tc.Workflow.Definition().GetTransition(tc.TransitionName)
	if !ok {
		return errors.Wrapf(workflow.ErrUnknownTransition, "workflow %s transition %s", tc.Workflow.Name(), tc.TransitionName)
	}
	tc.Transition = transition
	tc.Workflow.BindItem(tc.WorkflowItem)
	tc.IsCustomForm = transition.IsCustomForm()
	tc.IsStartTransition = transition.IsStart && (tc.WorkflowItem == nil || tc.WorkflowItem.IsNew())
	return nil
}

// StartItemProcessor 开始迁移并且还没有实例时, 创建内存中的实例
type StartItemProcessor struct{}

func (p *StartItemProcessor) Name() string { return "start_item" }

func (p *StartItemProcessor) Applicable(tc *Context) bool {
	return ready(tc) && tc.WorkflowItem == nil
}

func (p *StartItemProcessor) Process(ctx context.Context, tc *Context) error {
	if !tc.Transition.IsStart {
		return errors.Wrapf(workflow.ErrNotStartTransition, "transition %s needs a workflow item", tc.Transition.Name)
	}
	item, err := tc.Workflow.CreateWorkflowItem(tc.Entity, tc.InitData)
	if err != nil {
		return err
	}
	tc.WorkflowItem = item
	tc.IsStartTransition = true
	return nil
}

// ResultTypeProcessor 没有指定响应形式时根据请求推断
type ResultTypeProcessor struct{}

func (p *ResultTypeProcessor) Name() string { return "result_type" }

func (p *ResultTypeProcessor) Applicable(tc *Context) bool {
	return tc.ResultType == ""
}

func (p *ResultTypeProcessor) Process(ctx context.Context, tc *Context) error {
	request := tc.Request
	switch {
	case request.IsLayout && tc.Transition != nil && tc.Transition.DisplayType == workflow.DisplayTypePage:
		tc.ResultType = ResultTypeLayoutPage
	case request.IsLayout:
		tc.ResultType = ResultTypeLayoutDialog
	case request.WidgetContainer != "":
		tc.ResultType = ResultTypeTemplate
	case request.IsXMLHTTP:
		tc.ResultType = ResultTypeJSON
	case tc.Transition != nil && tc.Transition.HasForm():
		if tc.Transition.DisplayType == workflow.DisplayTypePage {
			tc.ResultType = ResultTypeLayoutPage
		} else {
			tc.ResultType = ResultTypeLayoutDialog
		}
	default:
		tc.ResultType = ResultTypeRedirect
	}
	return nil
}

// LabelTranslateProcessor 翻译迁移和目标步骤的标签
type LabelTranslateProcessor struct {
	translator Translator
}

func NewLabelTranslateProcessor(translator Translator) *LabelTranslateProcessor {
	if translator == nil {
		translator = NewIdentityTranslator()
	}
	return &LabelTranslateProcessor{translator: translator}
}

func (p *LabelTranslateProcessor) Name() string { return "label_translate" }

func (p *LabelTranslateProcessor) Applicable(tc *Context) bool {
	return tc.Transition != nil && !tc.Has(BagKeyTransitionLabel)
}

func (p *LabelTranslateProcessor) Process(ctx context.Context, tc *Context) error {
	transition := tc.Transition
	tc.Set(BagKeyTransitionLabel, p.translator.Trans(defaultString(transition.Label, transition.Name), nil))
	if step, ok := tc.Workflow.Definition().GetStep(transition.StepTo); ok {
		tc.Set(BagKeyStepToLabel, p.translator.Trans(defaultString(step.Label, step.Name), nil))
	}
	if transition.Message != "" {
		tc.Set(BagKeyTransitionMessage, p.translator.Trans(transition.Message, map[string]any{"transition": transition.Name}))
	}
	return nil
}

// DefaultFormDataProcessor 默认表单, 执行 form_init 之后从实例数据取字段的值
type DefaultFormDataProcessor struct{}

func (p *DefaultFormDataProcessor) Name() string { return "default_form_data" }

func (p *DefaultFormDataProcessor) Applicable(tc *Context) bool {
	return ready(tc) && tc.WorkflowItem != nil && !tc.IsCustomForm && tc.FormData == nil && tc.Transition.HasForm()
}

func (p *DefaultFormDataProcessor) Process(ctx context.Context, tc *Context) error {
	item := tc.WorkflowItem
	if _, err := configexpression.Execute(ctx, tc.Transition.FormInit, item, tc.Errors); err != nil {
		return errors.WithMessagef(err, "transition %s form_init", tc.Transition.Name)
	}
	formData := make(map[string]any, len(tc.Transition.AttributeFields))
	for _, field := range tc.Transition.AttributeFields {
		value, _ := item.Data.Get(field.Attribute)
		formData[field.Attribute] = value
	}
	tc.FormData = formData
	return nil
}

// CustomFormDataProcessor 自定义表单, 数据由注册的 FormDataProvider 提供
type CustomFormDataProcessor struct {
	providers *FormDataProviderRegistry
}

func NewCustomFormDataProcessor(providers *FormDataProviderRegistry) *CustomFormDataProcessor {
	return &CustomFormDataProcessor{providers: providers}
}

func (p *CustomFormDataProcessor) Name() string { return "custom_form_data" }

func (p *CustomFormDataProcessor) Applicable(tc *Context) bool {
	return ready(tc) && tc.WorkflowItem != nil && tc.IsCustomForm && tc.FormData == nil
}

func (p *CustomFormDataProcessor) Process(ctx context.Context, tc *Context) error {
	name := tc.Transition.FormDataProvider
	if name == "" {
		return errors.WithMessagef(ErrProcessorMisconfigured, "transition %s has custom form %s without form_data_provider", tc.Transition.Name, tc.Transition.FormType)
	}
	if p.providers == nil {
		return errors.WithMessagef(ErrProcessorMisconfigured, "no form data provider registry for %s", name)
	}
	provider, err := p.providers.Get(name)
	if err != nil {
		return errors.WithMessagef(ErrProcessorMisconfigured, "transition %s: %v", tc.Transition.Name, err)
	}
	data, err := provider.GetData(ctx, tc)
	if err != nil {
		return errors.WithMessagef(err, "form data provider %s", name)
	}
	if data == nil {
		data = make(map[string]any)
	}
	tc.FormData = data
	return nil
}

// FormBuildProcessor 创建表单, 受限制的字段只读
type FormBuildProcessor struct {
	restrictions workflow.RestrictionProvider
	translator   Translator
}

func NewFormBuildProcessor(restrictions workflow.RestrictionProvider, translator Translator) *FormBuildProcessor {
	if translator == nil {
		translator = NewIdentityTranslator()
	}
	return &FormBuildProcessor{restrictions: restrictions, translator: translator}
}

func (p *FormBuildProcessor) Name() string { return "form_build" }

func (p *FormBuildProcessor) Applicable(tc *Context) bool {
	return ready(tc) && tc.Form == nil && tc.FormData != nil
}

func (p *FormBuildProcessor) Process(ctx context.Context, tc *Context) error {
	restrictions := make([]*workflow.EntityRestriction, 0)
	if p.restrictions != nil && tc.Entity != nil && !tc.IsStartTransition {
		var err error
		restrictions, err = p.restrictions.GetEntityRestrictions(ctx, tc.Entity)
		if err != nil {
			return errors.WithMessage(err, "get entity restrictions failed")
		}
	}
	tc.Set(BagKeyRestrictions, restrictions)

	transition := tc.Transition
	form := NewForm(transition.Name, defaultString(transition.FormType, workflow.DefaultTransitionFormType))
	if len(transition.AttributeFields) > 0 {
		for _, attributeField := range transition.AttributeFields {
			form.Fields = append(form.Fields, &FormField{
				Name:     attributeField.Attribute,
				Label:    p.translator.Trans(defaultString(attributeField.Label, attributeField.Attribute), nil),
				Type:     fieldType(tc.Workflow.Definition(), attributeField),
				Required: attributeField.Required,
				ReadOnly: workflow.IsFieldReadOnly(restrictions, attributeField.Attribute),
				Options:  attributeField.Options,
				Value:    tc.FormData[attributeField.Attribute],
			})
		}
	} else {
		// 自定义表单没有声明字段时, 按 provider 返回的数据生成
		keys := make([]string, 0, len(tc.FormData))
		for key := range tc.FormData {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			form.Fields = append(form.Fields, &FormField{
				Name:     key,
				Label:    p.translator.Trans(key, nil),
				ReadOnly: workflow.IsFieldReadOnly(restrictions, key),
				Value:    tc.FormData[key],
			})
		}
	}
	tc.Form = form
	tc.FormView = form.CreateView()
	return nil
}

func fieldType(definition *workflow.WorkflowDefinition, field *workflow.AttributeField) string {
	if field.FormType != "" {
		return field.FormType
	}
	if attribute, ok := definition.GetAttribute(field.Attribute); ok {
		return attribute.Type
	}
	return ""
}

// FormSubmitProcessor POST 请求绑定并校验表单, 通过之后写入实例数据
type FormSubmitProcessor struct{}

func (p *FormSubmitProcessor) Name() string { return "form_submit" }

func (p *FormSubmitProcessor) Applicable(tc *Context) bool {
	return ready(tc) && tc.Form != nil && tc.Request.IsSubmit() && !tc.Form.IsSubmitted()
}

func (p *FormSubmitProcessor) Process(ctx context.Context, tc *Context) error {
	valid := tc.Form.Submit(tc.Request.Data)
	tc.FormView = tc.Form.CreateView()
	if !valid {
		for _, message := range sortedValues(tc.Form.Errors()) {
			tc.Errors.Add(message, nil)
		}
		return errors.WithMessagef(ErrFormInvalid, "transition %s", tc.Transition.Name)
	}
	for _, field := range tc.Form.Fields {
		if field.ReadOnly {
			continue
		}
		tc.WorkflowItem.Data.Set(field.Name, field.Value)
	}
	return nil
}

// TransitProcessor 执行迁移, 有表单时必须提交并校验通过
type TransitProcessor struct{}

func (p *TransitProcessor) Name() string { return "transit" }

func (p *TransitProcessor) Applicable(tc *Context) bool {
	return ready(tc) && tc.WorkflowItem != nil && !tc.IsSaved && (tc.Form == nil || tc.Form.IsValid())
}

func (p *TransitProcessor) Process(ctx context.Context, tc *Context) error {
	var err error
	if tc.IsStartTransition {
		err = tc.Workflow.StartWorkflowItem(ctx, tc.WorkflowItem, tc.Transition.Name)
	} else {
		err = tc.Workflow.Transit(ctx, tc.WorkflowItem, tc.Transition.Name)
	}
	if err != nil {
		var notMet *workflow.ConditionsNotMetError
		if errors.As(err, &notMet) {
			for _, message := range notMet.Messages {
				tc.Errors.Add(message, nil)
			}
		}
		return err
	}
	tc.IsSaved = true
	return nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func sortedValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	ret := make([]string, 0, len(keys))
	for _, key := range keys {
		ret = append(ret, m[key])
	}
	return ret
}
