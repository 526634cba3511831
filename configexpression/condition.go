package configexpression

import (
	"context"

	"github.com/pkg/errors"
)

// trueCondition @true
type trueCondition struct {
	conditionExpression
	value bool
}

func newTrueCondition(accessor *ContextAccessor) Expression {
	c := &trueCondition{value: true}
	c.name, c.accessor = "true", accessor
	return c
}

func newFalseCondition(accessor *ContextAccessor) Expression {
	c := &trueCondition{value: false}
	c.name, c.accessor = "false", accessor
	return c
}

func (c *trueCondition) Initialize(options []any) error {
	if len(options) != 0 {
		return errors.WithMessagef(ErrConfiguration, "@%s does not accept parameters", c.name)
	}
	c.setOptions(options)
	return nil
}

func (c *trueCondition) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	return c.result(c.value, errs, nil)
}

// compositeCondition @and / @or, 子节点从左到右短路求值
type compositeCondition struct {
	conditionExpression
	isOr     bool
	children []Expression
}

func newAndCondition(accessor *ContextAccessor) Expression {
	c := &compositeCondition{}
	c.name, c.accessor = "and", accessor
	return c
}

func newOrCondition(accessor *ContextAccessor) Expression {
	c := &compositeCondition{isOr: true}
	c.name, c.accessor = "or", accessor
	return c
}

func (c *compositeCondition) Initialize(options []any) error {
	if len(options) == 0 {
		return errors.WithMessagef(ErrConfiguration, "@%s requires at least one condition", c.name)
	}
	children, err := conditionOptions(c.name, options)
	if err != nil {
		return err
	}
	c.children = children
	c.setOptions(options)
	return nil
}

func (c *compositeCondition) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	if c.isOr {
		// 任意一个成立就丢弃其他分支的错误
		buffered := NewErrors()
		for _, child := range c.children {
			ok, err := IsConditionAllowed(ctx, child, data, buffered)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		errs.Merge(buffered)
		return c.result(false, errs, nil)
	}
	for _, child := range c.children {
		ok, err := IsConditionAllowed(ctx, child, data, errs)
		if err != nil {
			return false, err
		}
		if !ok {
			return c.result(false, errs, nil)
		}
	}
	return true, nil
}

func conditionOptions(name string, options []any) ([]Expression, error) {
	ret := make([]Expression, 0, len(options))
	for i, option := range options {
		expr, ok := option.(Expression)
		if !ok || expr.Kind() != KindCondition {
			return nil, errors.WithMessagef(ErrConfiguration, "@%s parameter %d must be a condition", name, i)
		}
		ret = append(ret, expr)
	}
	return ret, nil
}

// notCondition @not
type notCondition struct {
	conditionExpression
	child Expression
}

func newNotCondition(accessor *ContextAccessor) Expression {
	c := &notCondition{}
	c.name, c.accessor = "not", accessor
	return c
}

func (c *notCondition) Initialize(options []any) error {
	if len(options) != 1 {
		return errors.WithMessagef(ErrConfiguration, "@not requires exactly one condition, got %d", len(options))
	}
	children, err := conditionOptions(c.name, options)
	if err != nil {
		return err
	}
	c.child = children[0]
	c.setOptions(options)
	return nil
}

func (c *notCondition) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	// 子条件的错误与 not 的结果无关
	ok, err := IsConditionAllowed(ctx, c.child, data, nil)
	if err != nil {
		return false, err
	}
	return c.result(!ok, errs, nil)
}

type compareOperator int

const (
	operatorEqual compareOperator = iota
	operatorNotEqual
	operatorGreater
	operatorGreaterOrEqual
	operatorLess
	operatorLessOrEqual
	operatorIn
	operatorNotIn
)

// binaryCondition 比较类条件, 参数 [left, right] 或者 {left: ..., right: ...}
type binaryCondition struct {
	conditionExpression
	operator    compareOperator
	left, right any
}

func newBinaryConstructor(name string, operator compareOperator) Constructor {
	return func(accessor *ContextAccessor) Expression {
		c := &binaryCondition{operator: operator}
		c.name, c.accessor = name, accessor
		return c
	}
}

func (c *binaryCondition) Initialize(options []any) error {
	left, right, err := binaryOptions(c.name, options)
	if err != nil {
		return err
	}
	c.left, c.right = left, right
	c.setOptions(options)
	return nil
}

func binaryOptions(name string, options []any) (any, any, error) {
	if len(options) == 2 {
		return options[0], options[1], nil
	}
	if len(options) == 1 {
		if m, ok := options[0].(map[string]any); ok {
			left, hasLeft := m["left"]
			right, hasRight := m["right"]
			if hasLeft && hasRight && len(m) == 2 {
				return left, right, nil
			}
		}
	}
	return nil, nil, errors.WithMessagef(ErrConfiguration, "@%s requires left and right parameters", name)
}

func (c *binaryCondition) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	left, err := c.resolve(ctx, data, c.left, errs)
	if err != nil {
		return false, err
	}
	right, err := c.resolve(ctx, data, c.right, errs)
	if err != nil {
		return false, err
	}
	ok := c.compare(left, right)
	return c.result(ok, errs, map[string]any{"left": left, "right": right})
}

func (c *binaryCondition) compare(left, right any) bool {
	switch c.operator {
	case operatorEqual:
		return valuesEqual(left, right)
	case operatorNotEqual:
		return !valuesEqual(left, right)
	case operatorIn, operatorNotIn:
		found := false
		if list, ok := toSlice(right); ok {
			for _, item := range list {
				if valuesEqual(left, item) {
					found = true
					break
				}
			}
		}
		return found == (c.operator == operatorIn)
	}
	result, ok := compareValues(left, right)
	if !ok {
		return false
	}
	switch c.operator {
	case operatorGreater:
		return result > 0
	case operatorGreaterOrEqual:
		return result >= 0
	case operatorLess:
		return result < 0
	case operatorLessOrEqual:
		return result <= 0
	}
	return false
}

// unaryCondition @blank / @not_blank / @has_value
type unaryCondition struct {
	conditionExpression
	target   any
	checkFn  func(c *unaryCondition, ctx context.Context, data any, errs *Errors) (bool, error)
	needPath bool
}

func newBlankCondition(accessor *ContextAccessor) Expression {
	c := &unaryCondition{checkFn: func(c *unaryCondition, ctx context.Context, data any, errs *Errors) (bool, error) {
		v, err := c.resolve(ctx, data, c.target, errs)
		return isBlank(v), err
	}}
	c.name, c.accessor = "blank", accessor
	return c
}

func newNotBlankCondition(accessor *ContextAccessor) Expression {
	c := &unaryCondition{checkFn: func(c *unaryCondition, ctx context.Context, data any, errs *Errors) (bool, error) {
		v, err := c.resolve(ctx, data, c.target, errs)
		return !isBlank(v), err
	}}
	c.name, c.accessor = "not_blank", accessor
	return c
}

func newHasValueCondition(accessor *ContextAccessor) Expression {
	c := &unaryCondition{needPath: true, checkFn: func(c *unaryCondition, ctx context.Context, data any, errs *Errors) (bool, error) {
		return c.accessor.HasValue(data, c.target.(*PropertyPath)), nil
	}}
	c.name, c.accessor = "has_value", accessor
	return c
}

func (c *unaryCondition) Initialize(options []any) error {
	if len(options) != 1 {
		return errors.WithMessagef(ErrConfiguration, "@%s requires exactly one parameter, got %d", c.name, len(options))
	}
	if _, ok := options[0].(*PropertyPath); c.needPath && !ok {
		return errors.WithMessagef(ErrConfiguration, "@%s parameter must be a property path", c.name)
	}
	c.target = options[0]
	c.setOptions(options)
	return nil
}

func (c *unaryCondition) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	ok, err := c.checkFn(c, ctx, data, errs)
	if err != nil {
		return false, err
	}
	return c.result(ok, errs, nil)
}
