package configexpression

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	optionParameters = "parameters"
	optionMessage    = "message"
	optionConditions = "conditions"
)

// ConfigurationPass 节点创建前对原始参数做转换, 必须返回新的数据而不是修改入参
type ConfigurationPass interface {
	PassThrough(parameters []any) ([]any, error)
}

// Assembler 把 {"@name": ...} 形式的配置组装成表达式树
type Assembler struct {
	factory *Factory
	passes  []ConfigurationPass
}

func NewAssembler(factory *Factory, passes ...ConfigurationPass) *Assembler {
	return &Assembler{factory: factory, passes: passes}
}

// AddPass 按注册顺序执行
func (a *Assembler) AddPass(pass ConfigurationPass) {
	a.passes = append(a.passes, pass)
}

func (a *Assembler) Factory() *Factory {
	return a.factory
}

// Assemble 空配置返回 nil, 不是错误
func (a *Assembler) Assemble(config any) (Expression, error) {
	if config == nil {
		return nil, nil
	}
	m, ok := toStringMap(config)
	if !ok {
		return nil, errors.WithMessagef(ErrConfiguration, "expression config must be a map, got %T", config)
	}
	if len(m) == 0 {
		return nil, nil
	}
	if len(m) != 1 {
		return nil, errors.WithMessagef(ErrConfiguration, "expression config must have exactly one @type key, got %d keys", len(m))
	}
	for key, value := range m {
		if !strings.HasPrefix(key, "@") || len(key) == 1 {
			return nil, errors.WithMessagef(ErrConfiguration, "expression type %q must start with @", key)
		}
		return a.assembleNode(key[1:], value)
	}
	return nil, nil
}

func (a *Assembler) assembleNode(name string, value any) (Expression, error) {
	parameters, message, conditionConfig, err := parseNodeOptions(name, value)
	if err != nil {
		return nil, err
	}
	for _, pass := range a.passes {
		parameters, err = pass.PassThrough(parameters)
		if err != nil {
			return nil, errors.WithMessagef(err, "pass through @%s failed", name)
		}
	}
	parameters, err = a.assembleParameters(parameters)
	if err != nil {
		return nil, errors.WithMessagef(err, "@%s", name)
	}
	expr, err := a.factory.Create(name, parameters)
	if err != nil {
		return nil, err
	}
	expr.SetMessage(message)
	if conditionConfig != nil {
		aware, ok := expr.(ConditionAware)
		if !ok {
			return nil, errors.WithMessagef(ErrConfiguration, "@%s does not accept conditions", name)
		}
		condition, err := a.Assemble(conditionConfig)
		if err != nil {
			return nil, errors.WithMessagef(err, "@%s conditions", name)
		}
		if condition != nil && condition.Kind() != KindCondition {
			return nil, errors.WithMessagef(ErrConfiguration, "@%s conditions must be a condition, got @%s", name, condition.Name())
		}
		aware.SetCondition(condition)
	}
	return expr, nil
}

// parseNodeOptions 解析 @type 对应的值:
// nil 无参数, 标量包装成单个参数, 列表即参数列表,
// 含 parameters 的 map 为完整写法, 其他 map 作为一个命名参数
func parseNodeOptions(name string, value any) ([]any, string, any, error) {
	if value == nil {
		return []any{}, "", nil, nil
	}
	if list, ok := value.([]any); ok {
		return list, "", nil, nil
	}
	m, ok := toStringMap(value)
	if !ok {
		return []any{value}, "", nil, nil
	}
	if _, ok := m[optionParameters]; !ok {
		return []any{m}, "", nil, nil
	}
	var (
		parameters []any
		message    string
		condition  any
	)
	for key, option := range m {
		switch key {
		case optionParameters:
			switch p := option.(type) {
			case nil:
				parameters = []any{}
			case []any:
				parameters = p
			default:
				parameters = []any{p}
			}
		case optionMessage:
			if option == nil {
				continue
			}
			s, ok := option.(string)
			if !ok {
				return nil, "", nil, errors.WithMessagef(ErrConfiguration, "@%s message must be a string", name)
			}
			message = s
		case optionConditions:
			condition = option
		default:
			return nil, "", nil, errors.WithMessagef(ErrConfiguration, "@%s has unknown option %q", name, key)
		}
	}
	return parameters, message, condition, nil
}

// assembleParameters 参数或者命名参数的值是 @ 配置时递归组装, 其余原样保留
func (a *Assembler) assembleParameters(parameters []any) ([]any, error) {
	ret := make([]any, 0, len(parameters))
	for i, parameter := range parameters {
		if IsExpressionConfig(parameter) {
			expr, err := a.Assemble(parameter)
			if err != nil {
				return nil, errors.WithMessagef(err, "parameter %d", i)
			}
			ret = append(ret, expr)
			continue
		}
		if m, ok := parameter.(map[string]any); ok {
			named := make(map[string]any, len(m))
			for key, value := range m {
				if IsExpressionConfig(value) {
					expr, err := a.Assemble(value)
					if err != nil {
						return nil, errors.WithMessagef(err, "parameter %s", key)
					}
					named[key] = expr
					continue
				}
				named[key] = value
			}
			ret = append(ret, named)
			continue
		}
		ret = append(ret, parameter)
	}
	return ret, nil
}

// IsExpressionConfig 只有一个以 @ 开头的 key 的 map
func IsExpressionConfig(v any) bool {
	m, ok := toStringMap(v)
	if !ok || len(m) != 1 {
		return false
	}
	for key := range m {
		return len(key) > 1 && strings.HasPrefix(key, "@")
	}
	return false
}

// toStringMap 兼容 map[any]any 形式的配置
func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		ret := make(map[string]any, len(m))
		for k, item := range m {
			ret[fmt.Sprint(k)] = item
		}
		return ret, true
	}
	return nil, false
}
