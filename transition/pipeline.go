package transition

import (
	"github.com/blingmoon/simple-fsm-workflow/workflow"
)

type Options struct {
	Translator        Translator
	FormDataProviders *FormDataProviderRegistry
	Restrictions      workflow.RestrictionProvider
	DialogTemplate    string
	PageTemplate      string
	WidgetTemplate    string
}

func (o *Options) withDefaults() *Options {
	ret := Options{}
	if o != nil {
		ret = *o
	}
	if ret.Translator == nil {
		ret.Translator = NewIdentityTranslator()
	}
	if ret.FormDataProviders == nil {
		ret.FormDataProviders = NewFormDataProviderRegistry()
	}
	ret.DialogTemplate = defaultString(ret.DialogTemplate, DefaultDialogTemplate)
	ret.PageTemplate = defaultString(ret.PageTemplate, DefaultPageTemplate)
	ret.WidgetTemplate = defaultString(ret.WidgetTemplate, DefaultWidgetTemplate)
	return &ret
}

// NewDefaultPipeline 内置的 processor, 顺序固定
func NewDefaultPipeline(opts *Options) *Pipeline {
	opts = opts.withDefaults()
	return NewPipeline(
		&TransitionResolveProcessor{},
		&StartItemProcessor{},
		&ResultTypeProcessor{},
		NewLabelTranslateProcessor(opts.Translator),
		&DefaultFormDataProcessor{},
		NewCustomFormDataProcessor(opts.FormDataProviders),
		NewFormBuildProcessor(opts.Restrictions, opts.Translator),
		&FormSubmitProcessor{},
		&TransitProcessor{},
		&ErrorResponseProcessor{},
		&RedirectResponseProcessor{},
		&JSONResponseProcessor{},
		NewLayoutDialogResponseProcessor(opts.DialogTemplate),
		NewLayoutPageResponseProcessor(opts.PageTemplate),
		NewTemplateResponseProcessor(opts.WidgetTemplate),
	)
}
