package configexpression

import (
	"context"
	"reflect"
)

type Kind int

const (
	KindCondition Kind = iota + 1
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindCondition:
		return "condition"
	case KindFunction:
		return "function"
	}
	return "unknown"
}

// Expression 由配置组装出来的表达式节点
// 条件节点 Evaluate 返回 bool, 函数节点修改上下文或者返回一个值
type Expression interface {
	Name() string
	Kind() Kind
	// Initialize 使用配置里的 parameters 初始化, 参数不合法返回 ErrConfiguration
	Initialize(options []any) error
	SetMessage(message string)
	Message() string
	// Evaluate errs 可以为 nil, 条件不满足且配置了 message 时写入 errs
	Evaluate(ctx context.Context, data any, errs *Errors) (any, error)
	// ToArray 还原成 {"@name": {...}} 形式的配置
	ToArray() map[string]any
	// Compile 生成通过 factoryAccessor 重建当前节点的 Go 表达式源码
	Compile(factoryAccessor string) string
}

// ConditionAware 函数节点可以挂一个前置条件, 条件不满足时函数不执行
type ConditionAware interface {
	SetCondition(condition Expression)
	Condition() Expression
}

// IsConditionAllowed expr 为 nil 视为通过
func IsConditionAllowed(ctx context.Context, expr Expression, data any, errs *Errors) (bool, error) {
	if expr == nil {
		return true, nil
	}
	result, err := expr.Evaluate(ctx, data, errs)
	if err != nil {
		return false, err
	}
	return ToBool(result), nil
}

// Execute expr 为 nil 时什么都不做
func Execute(ctx context.Context, expr Expression, data any, errs *Errors) (any, error) {
	if expr == nil {
		return nil, nil
	}
	return expr.Evaluate(ctx, data, errs)
}

// ToBool 表达式结果转成布尔值
func ToBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != "" && b != "0"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// baseExpression 保存节点的原始参数, 用于 ToArray 和 Compile
type baseExpression struct {
	name     string
	options  []any
	message  string
	accessor *ContextAccessor
}

func (b *baseExpression) Name() string {
	return b.name
}

func (b *baseExpression) SetMessage(message string) {
	b.message = message
}

func (b *baseExpression) Message() string {
	return b.message
}

func (b *baseExpression) setOptions(options []any) {
	b.options = options
}

// resolve 计算参数的实际值: 嵌套表达式求值, 属性路径取值, 其他原样返回
func (b *baseExpression) resolve(ctx context.Context, data any, v any, errs *Errors) (any, error) {
	switch value := v.(type) {
	case Expression:
		if value.Kind() == KindCondition {
			return IsConditionAllowed(ctx, value, data, errs)
		}
		return value.Evaluate(ctx, data, errs)
	case *PropertyPath:
		return b.accessor.GetValue(data, value), nil
	}
	return v, nil
}

func (b *baseExpression) toArray(condition Expression) map[string]any {
	if len(b.options) == 0 && b.message == "" && condition == nil {
		return map[string]any{"@" + b.name: nil}
	}
	body := map[string]any{"parameters": optionsToArray(b.options)}
	if b.message != "" {
		body["message"] = b.message
	}
	if condition != nil {
		body["conditions"] = condition.ToArray()
	}
	return map[string]any{"@" + b.name: body}
}

func optionsToArray(options []any) []any {
	ret := make([]any, 0, len(options))
	for _, option := range options {
		ret = append(ret, valueToArray(option))
	}
	return ret
}

func valueToArray(v any) any {
	switch value := v.(type) {
	case Expression:
		return value.ToArray()
	case *PropertyPath:
		return value.Original()
	case []any:
		return optionsToArray(value)
	case map[string]any:
		ret := make(map[string]any, len(value))
		for k, item := range value {
			ret[k] = valueToArray(item)
		}
		return ret
	}
	return v
}

// conditionExpression 条件节点公共部分
type conditionExpression struct {
	baseExpression
}

func (c *conditionExpression) Kind() Kind {
	return KindCondition
}

func (c *conditionExpression) ToArray() map[string]any {
	return c.toArray(nil)
}

func (c *conditionExpression) Compile(factoryAccessor string) string {
	return compileExpression(factoryAccessor, c.name, c.options, c.message, nil)
}

// result 条件不满足且配置了 message 时写入 errs
func (c *conditionExpression) result(ok bool, errs *Errors, params map[string]any) (any, error) {
	if !ok && c.message != "" {
		errs.Add(c.message, params)
	}
	return ok, nil
}

// functionExpression 函数节点公共部分
type functionExpression struct {
	baseExpression
	condition Expression
}

func (f *functionExpression) Kind() Kind {
	return KindFunction
}

func (f *functionExpression) SetCondition(condition Expression) {
	f.condition = condition
}

func (f *functionExpression) Condition() Expression {
	return f.condition
}

func (f *functionExpression) ToArray() map[string]any {
	return f.toArray(f.condition)
}

func (f *functionExpression) Compile(factoryAccessor string) string {
	return compileExpression(factoryAccessor, f.name, f.options, f.message, f.condition)
}

// allowed 前置条件检查
func (f *functionExpression) allowed(ctx context.Context, data any, errs *Errors) (bool, error) {
	return IsConditionAllowed(ctx, f.condition, data, errs)
}
