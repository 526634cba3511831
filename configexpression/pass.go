package configexpression

import (
	"strings"

	"github.com/pkg/errors"
)

// ReplacePropertyPathPass 把 $ 开头的字符串替换成属性路径
// $x 解析为 prefix.x, $.x 解析为从上下文根开始的 x
type ReplacePropertyPathPass struct {
	prefix string
}

func NewReplacePropertyPathPass(prefix string) *ReplacePropertyPathPass {
	return &ReplacePropertyPathPass{prefix: prefix}
}

func (p *ReplacePropertyPathPass) PassThrough(parameters []any) ([]any, error) {
	ret := make([]any, 0, len(parameters))
	for _, parameter := range parameters {
		v, err := p.replace(parameter)
		if err != nil {
			return nil, err
		}
		ret = append(ret, v)
	}
	return ret, nil
}

func (p *ReplacePropertyPathPass) replace(v any) (any, error) {
	switch value := v.(type) {
	case string:
		if !strings.HasPrefix(value, "$") || len(value) == 1 {
			return value, nil
		}
		return p.toPath(value)
	case []any:
		return p.PassThrough(value)
	case map[string]any:
		// 嵌套的 @ 配置在自己组装时再处理
		if IsExpressionConfig(value) {
			return value, nil
		}
		ret := make(map[string]any, len(value))
		for key, item := range value {
			replaced, err := p.replace(item)
			if err != nil {
				return nil, err
			}
			ret[key] = replaced
		}
		return ret, nil
	}
	return v, nil
}

func (p *ReplacePropertyPathPass) toPath(original string) (*PropertyPath, error) {
	path := original[1:]
	if strings.HasPrefix(path, ".") {
		path = path[1:]
	} else if p.prefix != "" {
		if strings.HasPrefix(path, "[") {
			path = p.prefix + path
		} else {
			path = p.prefix + "." + path
		}
	}
	pp, err := NewPropertyPath(path, original)
	if err != nil {
		return nil, errors.WithMessagef(ErrConfiguration, "invalid property path %q: %v", original, err)
	}
	return pp, nil
}
