package transition

import (
	"github.com/blingmoon/simple-fsm-workflow/configexpression"
)

// Translator 翻译标签和违规信息, 参数占位符格式 {{ name }}
type Translator interface {
	Trans(message string, parameters map[string]any) string
}

type identityTranslator struct{}

// NewIdentityTranslator 不翻译, 只替换占位符
func NewIdentityTranslator() Translator {
	return identityTranslator{}
}

func (identityTranslator) Trans(message string, parameters map[string]any) string {
	return configexpression.Error{Message: message, Parameters: parameters}.String()
}

// MapTranslator 按 key 查表, 没有找到时使用原文
type MapTranslator map[string]string

func (m MapTranslator) Trans(message string, parameters map[string]any) string {
	if translated, ok := m[message]; ok {
		message = translated
	}
	return configexpression.Error{Message: message, Parameters: parameters}.String()
}
