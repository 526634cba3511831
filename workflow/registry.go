package workflow

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// DefinitionRegistry 已加载的工作流定义, 激活状态可以在运行时修改
type DefinitionRegistry struct {
	mu          sync.RWMutex
	definitions map[string]*WorkflowDefinition
}

func NewDefinitionRegistry(definitions ...*WorkflowDefinition) (*DefinitionRegistry, error) {
	r := &DefinitionRegistry{definitions: make(map[string]*WorkflowDefinition)}
	for _, definition := range definitions {
		if err := r.Register(definition); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 同名的定义只能注册一次
func (r *DefinitionRegistry) Register(definition *WorkflowDefinition) error {
	if definition == nil || definition.Name == "" {
		return errors.WithMessage(ErrConfiguration, "workflow definition must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.definitions[definition.Name]; ok {
		return errors.WithMessagef(ErrConfiguration, "workflow %s is already registered", definition.Name)
	}
	r.definitions[definition.Name] = definition
	return nil
}

func (r *DefinitionRegistry) Get(name string) (*WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	definition, ok := r.definitions[name]
	if !ok {
		return nil, errors.WithMessagef(ErrWorkflowNotFound, "workflow %s", name)
	}
	return definition, nil
}

// All 按 order 升序, order 相同按名字
func (r *DefinitionRegistry) All() []*WorkflowDefinition {
	r.mu.RLock()
	ret := make([]*WorkflowDefinition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		ret = append(ret, definition)
	}
	r.mu.RUnlock()
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Order != ret[j].Order {
			return ret[i].Order < ret[j].Order
		}
		return ret[i].Name < ret[j].Name
	})
	return ret
}

// GetActiveForEntity 实体类型对应的激活工作流, 按 order 升序
func (r *DefinitionRegistry) GetActiveForEntity(entityClass string) []*WorkflowDefinition {
	ret := make([]*WorkflowDefinition, 0)
	for _, definition := range r.All() {
		if definition.Active && definition.EntityClass == entityClass {
			ret = append(ret, definition)
		}
	}
	return ret
}

func (r *DefinitionRegistry) Activate(name string) error {
	return r.setActive(name, true)
}

func (r *DefinitionRegistry) Deactivate(name string) error {
	return r.setActive(name, false)
}

// setActive 替换成新的定义, 正在使用旧定义的调用不受影响
func (r *DefinitionRegistry) setActive(name string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	definition, ok := r.definitions[name]
	if !ok {
		return errors.WithMessagef(ErrWorkflowNotFound, "workflow %s", name)
	}
	if definition.Active == active {
		return nil
	}
	updated := definition.clone()
	updated.Active = active
	r.definitions[name] = updated
	return nil
}
