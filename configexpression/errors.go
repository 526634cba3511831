package configexpression

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrConfiguration 表达式配置错误,加载阶段的致命错误,运行时不可恢复
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidPropertyPath 属性路径格式错误
	ErrInvalidPropertyPath = errors.New("invalid property path")
	// ErrPropertyPathNotFound 必须存在的属性路径不存在
	ErrPropertyPathNotFound = errors.New("property path not found")
	// ErrPropertyNotWritable 属性路径无法写入
	ErrPropertyNotWritable = errors.New("property not writable")
)

// Error 单条违规信息
type Error struct {
	Message    string
	Parameters map[string]any
}

// String 返回替换了占位符之后的信息, 占位符格式 {{ name }}
func (e Error) String() string {
	if len(e.Parameters) == 0 {
		return e.Message
	}
	pairs := make([]string, 0, len(e.Parameters)*2)
	for key, value := range e.Parameters {
		pairs = append(pairs, "{{ "+key+" }}", fmt.Sprint(value))
	}
	return strings.NewReplacer(pairs...).Replace(e.Message)
}

// Errors 条件不满足时收集违规信息, nil 接收者上的方法都是安全的
type Errors struct {
	items []Error
}

func NewErrors() *Errors {
	return &Errors{items: make([]Error, 0)}
}

func (e *Errors) Add(message string, params map[string]any) {
	if e == nil {
		return
	}
	e.items = append(e.items, Error{Message: message, Parameters: params})
}

func (e *Errors) Len() int {
	if e == nil {
		return 0
	}
	return len(e.items)
}

func (e *Errors) All() []Error {
	if e == nil {
		return nil
	}
	ret := make([]Error, len(e.items))
	copy(ret, e.items)
	return ret
}

// Messages 返回替换占位符之后的信息列表
func (e *Errors) Messages() []string {
	if e == nil {
		return nil
	}
	ret := make([]string, 0, len(e.items))
	for _, item := range e.items {
		ret = append(ret, item.String())
	}
	return ret
}

func (e *Errors) Merge(other *Errors) {
	if e == nil || other == nil {
		return
	}
	e.items = append(e.items, other.items...)
}

func (e *Errors) Clear() {
	if e == nil {
		return
	}
	e.items = e.items[:0]
}
