package configexpression

import (
	"strings"

	"github.com/pkg/errors"
)

// PropertyPath 属性路径, 支持 a.b.c 以及 a[0].b / a[key] 两种写法
type PropertyPath struct {
	path     string
	original string
	elements []string
}

// NewPropertyPath 解析属性路径, original 为配置中的原始写法(通常以 $ 开头), 为空时使用 path
func NewPropertyPath(path string, original ...string) (*PropertyPath, error) {
	elements, err := parsePropertyPath(path)
	if err != nil {
		return nil, err
	}
	p := &PropertyPath{path: path, original: path, elements: elements}
	if len(original) > 0 && original[0] != "" {
		p.original = original[0]
	}
	return p, nil
}

// MustPropertyPath 用于静态路径, 格式错误直接 panic
func MustPropertyPath(path string, original ...string) *PropertyPath {
	p, err := NewPropertyPath(path, original...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *PropertyPath) String() string {
	return p.path
}

// Original 配置中的原始写法, ToArray 使用它还原配置
func (p *PropertyPath) Original() string {
	return p.original
}

func (p *PropertyPath) Elements() []string {
	ret := make([]string, len(p.elements))
	copy(ret, p.elements)
	return ret
}

func parsePropertyPath(path string) ([]string, error) {
	if path == "" {
		return nil, errors.WithMessage(ErrInvalidPropertyPath, "empty path")
	}
	elements := make([]string, 0, 4)
	var current strings.Builder
	// afterBracket: 上一个字符是 ], 后面只能跟 . 或者 [
	afterBracket := false
	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch ch {
		case '.':
			if current.Len() == 0 && !afterBracket {
				return nil, errors.WithMessagef(ErrInvalidPropertyPath, "empty segment in path %q", path)
			}
			if current.Len() > 0 {
				elements = append(elements, current.String())
				current.Reset()
			}
			afterBracket = false
			if i == len(path)-1 {
				return nil, errors.WithMessagef(ErrInvalidPropertyPath, "path %q ends with dot", path)
			}
		case '[':
			if current.Len() > 0 {
				elements = append(elements, current.String())
				current.Reset()
			} else if i == 0 {
				return nil, errors.WithMessagef(ErrInvalidPropertyPath, "path %q starts with bracket", path)
			}
			end := strings.IndexByte(path[i+1:], ']')
			if end < 0 {
				return nil, errors.WithMessagef(ErrInvalidPropertyPath, "unclosed bracket in path %q", path)
			}
			key := path[i+1 : i+1+end]
			if key == "" {
				return nil, errors.WithMessagef(ErrInvalidPropertyPath, "empty bracket in path %q", path)
			}
			elements = append(elements, key)
			i += end + 1
			afterBracket = true
		case ']':
			return nil, errors.WithMessagef(ErrInvalidPropertyPath, "unexpected ] in path %q", path)
		default:
			if afterBracket {
				return nil, errors.WithMessagef(ErrInvalidPropertyPath, "unexpected %q after ] in path %q", ch, path)
			}
			current.WriteByte(ch)
		}
	}
	if current.Len() > 0 {
		elements = append(elements, current.String())
	}
	return elements, nil
}
