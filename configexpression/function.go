package configexpression

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// assignValueFunction @assign_value: [$path, value] 或 {attribute: $path, value: ...}
type assignValueFunction struct {
	functionExpression
	attribute *PropertyPath
	value     any
}

func newAssignValueFunction(accessor *ContextAccessor) Expression {
	f := &assignValueFunction{}
	f.name, f.accessor = "assign_value", accessor
	return f
}

func (f *assignValueFunction) Initialize(options []any) error {
	var attribute, value any
	switch {
	case len(options) == 2:
		attribute, value = options[0], options[1]
	case len(options) == 1:
		m, ok := options[0].(map[string]any)
		if !ok {
			return errors.WithMessage(ErrConfiguration, "@assign_value requires attribute and value")
		}
		if _, ok := m["value"]; !ok {
			return errors.WithMessage(ErrConfiguration, "@assign_value requires value")
		}
		attribute, value = m["attribute"], m["value"]
	default:
		return errors.WithMessagef(ErrConfiguration, "@assign_value requires 2 parameters, got %d", len(options))
	}
	path, ok := attribute.(*PropertyPath)
	if !ok {
		return errors.WithMessage(ErrConfiguration, "@assign_value attribute must be a property path")
	}
	f.attribute, f.value = path, value
	f.setOptions(options)
	return nil
}

func (f *assignValueFunction) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	if ok, err := f.allowed(ctx, data, errs); err != nil || !ok {
		return nil, err
	}
	value, err := f.resolve(ctx, data, f.value, errs)
	if err != nil {
		return nil, err
	}
	if err := f.accessor.SetValue(data, f.attribute, value); err != nil {
		return nil, errors.WithMessage(err, "@assign_value failed")
	}
	return nil, nil
}

// unsetValueFunction @unset_value: 把属性置为 nil
type unsetValueFunction struct {
	functionExpression
	attribute *PropertyPath
}

func newUnsetValueFunction(accessor *ContextAccessor) Expression {
	f := &unsetValueFunction{}
	f.name, f.accessor = "unset_value", accessor
	return f
}

func (f *unsetValueFunction) Initialize(options []any) error {
	if len(options) != 1 {
		return errors.WithMessagef(ErrConfiguration, "@unset_value requires 1 parameter, got %d", len(options))
	}
	attribute := options[0]
	if m, ok := attribute.(map[string]any); ok {
		attribute = m["attribute"]
	}
	path, ok := attribute.(*PropertyPath)
	if !ok {
		return errors.WithMessage(ErrConfiguration, "@unset_value attribute must be a property path")
	}
	f.attribute = path
	f.setOptions(options)
	return nil
}

func (f *unsetValueFunction) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	if ok, err := f.allowed(ctx, data, errs); err != nil || !ok {
		return nil, err
	}
	if err := f.accessor.SetValue(data, f.attribute, nil); err != nil {
		return nil, errors.WithMessage(err, "@unset_value failed")
	}
	return nil, nil
}

// increaseValueFunction @increase_value: [$path] 或 [$path, step], 默认步长 1
type increaseValueFunction struct {
	functionExpression
	attribute *PropertyPath
	step      any
}

func newIncreaseValueFunction(accessor *ContextAccessor) Expression {
	f := &increaseValueFunction{}
	f.name, f.accessor = "increase_value", accessor
	return f
}

func (f *increaseValueFunction) Initialize(options []any) error {
	if len(options) == 0 || len(options) > 2 {
		return errors.WithMessagef(ErrConfiguration, "@increase_value requires 1 or 2 parameters, got %d", len(options))
	}
	path, ok := options[0].(*PropertyPath)
	if !ok {
		return errors.WithMessage(ErrConfiguration, "@increase_value attribute must be a property path")
	}
	f.attribute, f.step = path, 1
	if len(options) == 2 {
		f.step = options[1]
	}
	f.setOptions(options)
	return nil
}

func (f *increaseValueFunction) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	if ok, err := f.allowed(ctx, data, errs); err != nil || !ok {
		return nil, err
	}
	step, err := f.resolve(ctx, data, f.step, errs)
	if err != nil {
		return nil, err
	}
	current := f.accessor.GetValue(data, f.attribute)
	if current == nil {
		current = 0
	}
	var next any
	ci, cok := toInt64(current)
	si, sok := toInt64(step)
	if cok && sok {
		next = ci + si
	} else {
		cf, cok := toFloat(current)
		sf, sok := toFloat(step)
		if !cok || !sok {
			return nil, errors.Errorf("@increase_value cannot add %T to %T", step, current)
		}
		next = cf + sf
	}
	if err := f.accessor.SetValue(data, f.attribute, next); err != nil {
		return nil, errors.WithMessage(err, "@increase_value failed")
	}
	return next, nil
}

// concatFunction @concat: 返回各参数拼接后的字符串
// 命名参数 {attribute: $path, values: [...]} 时同时写入 attribute
type concatFunction struct {
	functionExpression
	attribute *PropertyPath
	values    []any
}

func newConcatFunction(accessor *ContextAccessor) Expression {
	f := &concatFunction{}
	f.name, f.accessor = "concat", accessor
	return f
}

func (f *concatFunction) Initialize(options []any) error {
	if len(options) == 1 {
		if m, ok := options[0].(map[string]any); ok {
			values, ok := m["values"].([]any)
			if !ok {
				return errors.WithMessage(ErrConfiguration, "@concat values must be a list")
			}
			if attribute, exists := m["attribute"]; exists {
				path, ok := attribute.(*PropertyPath)
				if !ok {
					return errors.WithMessage(ErrConfiguration, "@concat attribute must be a property path")
				}
				f.attribute = path
			}
			f.values = values
			f.setOptions(options)
			return nil
		}
	}
	if len(options) == 0 {
		return errors.WithMessage(ErrConfiguration, "@concat requires parameters")
	}
	f.values = options
	f.setOptions(options)
	return nil
}

func (f *concatFunction) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	if ok, err := f.allowed(ctx, data, errs); err != nil || !ok {
		return nil, err
	}
	var b strings.Builder
	for _, value := range f.values {
		resolved, err := f.resolve(ctx, data, value, errs)
		if err != nil {
			return nil, err
		}
		b.WriteString(toString(resolved))
	}
	ret := b.String()
	if f.attribute != nil {
		if err := f.accessor.SetValue(data, f.attribute, ret); err != nil {
			return nil, errors.WithMessage(err, "@concat failed")
		}
	}
	return ret, nil
}

// treeFunction @tree: 按顺序执行一组函数
type treeFunction struct {
	functionExpression
	actions []Expression
}

func newTreeFunction(accessor *ContextAccessor) Expression {
	f := &treeFunction{}
	f.name, f.accessor = "tree", accessor
	return f
}

func (f *treeFunction) Initialize(options []any) error {
	actions := make([]Expression, 0, len(options))
	for i, option := range options {
		expr, ok := option.(Expression)
		if !ok || expr.Kind() != KindFunction {
			return errors.WithMessagef(ErrConfiguration, "@tree parameter %d must be a function", i)
		}
		actions = append(actions, expr)
	}
	f.actions = actions
	f.setOptions(options)
	return nil
}

func (f *treeFunction) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	if ok, err := f.allowed(ctx, data, errs); err != nil || !ok {
		return nil, err
	}
	for _, action := range f.actions {
		if _, err := action.Evaluate(ctx, data, errs); err != nil {
			return nil, errors.WithMessagef(err, "@tree action @%s", action.Name())
		}
	}
	return nil, nil
}

// CallbackFunc 外部实现的函数, parameters 中的属性路径和子表达式已经求值
type CallbackFunc func(ctx context.Context, data any, parameters []any) (any, error)

// callbackFunction 把外部函数包装成表达式节点
type callbackFunction struct {
	functionExpression
	callback CallbackFunc
}

// NewCallbackConstructor 用于注册业务自定义的动作
func NewCallbackConstructor(name string, callback CallbackFunc) Constructor {
	return func(accessor *ContextAccessor) Expression {
		f := &callbackFunction{callback: callback}
		f.name, f.accessor = strings.TrimPrefix(name, "@"), accessor
		return f
	}
}

func (f *callbackFunction) Initialize(options []any) error {
	if f.callback == nil {
		return errors.WithMessagef(ErrConfiguration, "@%s has no callback", f.name)
	}
	f.setOptions(options)
	return nil
}

func (f *callbackFunction) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	if ok, err := f.allowed(ctx, data, errs); err != nil || !ok {
		return nil, err
	}
	parameters := make([]any, 0, len(f.options))
	for _, option := range f.options {
		value, err := f.resolve(ctx, data, option, errs)
		if err != nil {
			return nil, err
		}
		parameters = append(parameters, value)
	}
	return f.callback(ctx, data, parameters)
}

type builtinExpression struct {
	constructor Constructor
	names       []string
}

func builtinExpressions() []builtinExpression {
	return []builtinExpression{
		{newTrueCondition, []string{"true"}},
		{newFalseCondition, []string{"false"}},
		{newAndCondition, []string{"and"}},
		{newOrCondition, []string{"or"}},
		{newNotCondition, []string{"not"}},
		{newBinaryConstructor("equal", operatorEqual), []string{"equal", "eq"}},
		{newBinaryConstructor("not_equal", operatorNotEqual), []string{"not_equal", "neq"}},
		{newBinaryConstructor("greater", operatorGreater), []string{"greater", "gt"}},
		{newBinaryConstructor("greater_or_equal", operatorGreaterOrEqual), []string{"greater_or_equal", "gte"}},
		{newBinaryConstructor("less", operatorLess), []string{"less", "lt"}},
		{newBinaryConstructor("less_or_equal", operatorLessOrEqual), []string{"less_or_equal", "lte"}},
		{newBinaryConstructor("in", operatorIn), []string{"in"}},
		{newBinaryConstructor("not_in", operatorNotIn), []string{"not_in"}},
		{newBlankCondition, []string{"blank", "empty"}},
		{newNotBlankCondition, []string{"not_blank", "not_empty"}},
		{newHasValueCondition, []string{"has_value"}},
		{newAssignValueFunction, []string{"assign_value"}},
		{newUnsetValueFunction, []string{"unset_value"}},
		{newIncreaseValueFunction, []string{"increase_value"}},
		{newConcatFunction, []string{"concat"}},
		{newTreeFunction, []string{"tree"}},
	}
}
