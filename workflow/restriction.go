package workflow

import (
	"context"

	"github.com/pkg/errors"
)

// RestrictionProvider 给渲染层提供字段只读限制, 引擎本身不强制
type RestrictionProvider interface {
	GetEntityRestrictions(ctx context.Context, entity Entity) ([]*EntityRestriction, error)
}

// RestrictionManager 根据实体上工作流实例的当前步骤计算限制
type RestrictionManager struct {
	registry *DefinitionRegistry
	repo     WorkflowRepo
}

func NewRestrictionManager(registry *DefinitionRegistry, repo WorkflowRepo) *RestrictionManager {
	return &RestrictionManager{registry: registry, repo: repo}
}

func (m *RestrictionManager) GetEntityRestrictions(ctx context.Context, entity Entity) ([]*EntityRestriction, error) {
	if entity == nil {
		return nil, errors.WithMessage(ErrWorkflowParamInvalid, "entity is nil")
	}
	definitions := m.registry.GetActiveForEntity(entity.EntityClass())
	if len(definitions) == 0 {
		return []*EntityRestriction{}, nil
	}
	names := make([]string, 0, len(definitions))
	for _, definition := range definitions {
		if len(definition.Restrictions) > 0 {
			names = append(names, definition.Name)
		}
	}
	if len(names) == 0 {
		return []*EntityRestriction{}, nil
	}
	pos, err := m.repo.QueryWorkflowItem(ctx, &QueryWorkflowItemParams{
		WorkflowNameIn: names,
		EntityClass:    String(entity.EntityClass()),
		EntityIDIn:     []string{entity.EntityID()},
		Page:           &Pager{IsNoLimit: Bool(true)},
	})
	if err != nil {
		return nil, errors.WithMessage(err, "query workflow items failed")
	}
	currentSteps := make(map[string]string, len(pos))
	for _, po := range pos {
		currentSteps[po.WorkflowName] = po.CurrentStep
	}
	ret := make([]*EntityRestriction, 0)
	for _, definition := range definitions {
		currentStep, ok := currentSteps[definition.Name]
		if !ok {
			continue
		}
		ret = append(ret, FilterRestrictions(definition.Restrictions, currentStep)...)
	}
	return ret, nil
}

// FilterRestrictions 没有配置 step 的限制在任何步骤都生效
func FilterRestrictions(restrictions []*EntityRestriction, currentStep string) []*EntityRestriction {
	ret := make([]*EntityRestriction, 0)
	for _, restriction := range restrictions {
		if restriction.Step == "" || restriction.Step == currentStep {
			ret = append(ret, restriction)
		}
	}
	return ret
}

// IsFieldReadOnly full 模式整个字段只读, 其他模式字段仍可编辑, 只限制可选值
func IsFieldReadOnly(restrictions []*EntityRestriction, field string) bool {
	for _, restriction := range restrictions {
		if restriction.Field == field && restriction.Mode == RestrictionModeFull {
			return true
		}
	}
	return false
}
