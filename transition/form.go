package transition

import (
	"github.com/go-playground/validator/v10"
)

var validatorUtil = validator.New(validator.WithRequiredStructEnabled())

type FormField struct {
	Name     string         `json:"name"`
	Label    string         `json:"label"`
	Type     string         `json:"type"`
	Required bool           `json:"required"`
	ReadOnly bool           `json:"read_only"`
	Options  map[string]any `json:"options,omitempty"`
	Value    any            `json:"value"`
}

// Form 迁移表单
type Form struct {
	Name      string
	Type      string
	Fields    []*FormField
	errors    map[string]string
	submitted bool
}

func NewForm(name, formType string) *Form {
	return &Form{Name: name, Type: formType, errors: make(map[string]string)}
}

func (f *Form) Field(name string) (*FormField, bool) {
	for _, field := range f.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return nil, false
}

// Submit 绑定提交的数据并校验, 只读字段忽略提交的值
func (f *Form) Submit(data map[string]any) bool {
	f.submitted = true
	f.errors = make(map[string]string)
	for _, field := range f.Fields {
		if value, ok := data[field.Name]; ok && !field.ReadOnly {
			field.Value = value
		}
		if field.Required {
			if err := validatorUtil.Var(field.Value, "required"); err != nil {
				f.errors[field.Name] = field.Label + " is required"
			}
		}
	}
	return f.IsValid()
}

func (f *Form) IsSubmitted() bool {
	return f.submitted
}

func (f *Form) IsValid() bool {
	return f.submitted && len(f.errors) == 0
}

func (f *Form) Errors() map[string]string {
	ret := make(map[string]string, len(f.errors))
	for k, v := range f.errors {
		ret[k] = v
	}
	return ret
}

// Values 表单字段的值
func (f *Form) Values() map[string]any {
	ret := make(map[string]any, len(f.Fields))
	for _, field := range f.Fields {
		ret[field.Name] = field.Value
	}
	return ret
}

// FormView 渲染用的表单快照
type FormView struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Fields []*FormField      `json:"fields"`
	Errors map[string]string `json:"errors,omitempty"`
}

func (f *Form) CreateView() *FormView {
	fields := make([]*FormField, 0, len(f.Fields))
	for _, field := range f.Fields {
		c := *field
		fields = append(fields, &c)
	}
	return &FormView{Name: f.Name, Type: f.Type, Fields: fields, Errors: f.Errors()}
}
