package configexpression

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Constructor 创建一个未初始化的表达式节点
type Constructor func(accessor *ContextAccessor) Expression

// Factory 表达式类型注册表, 按名字(不带 @)创建节点
type Factory struct {
	mu           sync.RWMutex
	accessor     *ContextAccessor
	constructors map[string]Constructor
}

func NewFactory(accessor *ContextAccessor) *Factory {
	if accessor == nil {
		accessor = NewContextAccessor()
	}
	return &Factory{
		accessor:     accessor,
		constructors: make(map[string]Constructor),
	}
}

// NewDefaultFactory 注册了全部内置条件和函数
func NewDefaultFactory(accessor *ContextAccessor) *Factory {
	f := NewFactory(accessor)
	for _, item := range builtinExpressions() {
		if err := f.Register(item.constructor, item.names...); err != nil {
			panic(err)
		}
	}
	return f
}

func (f *Factory) Accessor() *ContextAccessor {
	return f.accessor
}

// Register 注册构造函数, names 中第一个为主名字, 其余为别名
func (f *Factory) Register(constructor Constructor, names ...string) error {
	if constructor == nil {
		return errors.WithMessage(ErrConfiguration, "nil constructor")
	}
	if len(names) == 0 {
		return errors.WithMessage(ErrConfiguration, "expression name is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		name = strings.TrimPrefix(name, "@")
		if name == "" {
			return errors.WithMessage(ErrConfiguration, "expression name is empty")
		}
		if _, ok := f.constructors[name]; ok {
			return errors.WithMessagef(ErrConfiguration, "expression %q already registered", name)
		}
	}
	for _, name := range names {
		f.constructors[strings.TrimPrefix(name, "@")] = constructor
	}
	return nil
}

func (f *Factory) Has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[strings.TrimPrefix(name, "@")]
	return ok
}

// Names 所有已注册的名字, 包含别名
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ret := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Create 创建并初始化节点, 未知类型返回 ErrConfiguration
func (f *Factory) Create(name string, options []any) (Expression, error) {
	name = strings.TrimPrefix(name, "@")
	f.mu.RLock()
	constructor, ok := f.constructors[name]
	f.mu.RUnlock()
	if !ok {
		return nil, errors.WithMessagef(ErrConfiguration, "unknown expression type @%s", name)
	}
	expr := constructor(f.accessor)
	if err := expr.Initialize(options); err != nil {
		return nil, errors.WithMessagef(err, "initialize @%s failed", name)
	}
	return expr, nil
}

// MustCreate 预编译表达式使用, 创建失败直接 panic
func (f *Factory) MustCreate(name string, options []any, message string, condition ...Expression) Expression {
	expr, err := f.Create(name, options)
	if err != nil {
		panic(err)
	}
	expr.SetMessage(message)
	if len(condition) > 0 && condition[0] != nil {
		aware, ok := expr.(ConditionAware)
		if !ok {
			panic(errors.WithMessagef(ErrConfiguration, "@%s does not accept conditions", name))
		}
		aware.SetCondition(condition[0])
	}
	return expr
}

// Path 预编译表达式使用, 重建属性路径
func (f *Factory) Path(path string, original string) *PropertyPath {
	return MustPropertyPath(path, original)
}
