package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/pkg/errors"
)

// WorkflowServiceImpl 工作流服务
type WorkflowServiceImpl struct {
	registry     *DefinitionRegistry
	repo         WorkflowRepo
	lock         WorkflowLock
	restrictions *RestrictionManager
	opts         []WorkflowOption
}

func NewWorkflowService(registry *DefinitionRegistry, repo WorkflowRepo, lock WorkflowLock, opts ...WorkflowOption) WorkflowService {
	return &WorkflowServiceImpl{
		registry:     registry,
		repo:         repo,
		lock:         lock,
		restrictions: NewRestrictionManager(registry, repo),
		opts:         opts,
	}
}

func (s *WorkflowServiceImpl) newWorkflow(definition *WorkflowDefinition) *Workflow {
	return NewWorkflow(definition, s.repo, s.lock, s.opts...)
}

func (s *WorkflowServiceImpl) GetWorkflow(name string) (*Workflow, error) {
	definition, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return s.newWorkflow(definition), nil
}

func (s *WorkflowServiceImpl) GetApplicableWorkflows(entityClass string) []*Workflow {
	definitions := s.registry.GetActiveForEntity(entityClass)
	ret := make([]*Workflow, 0, len(definitions))
	for _, definition := range definitions {
		ret = append(ret, s.newWorkflow(definition))
	}
	return ret
}

func (s *WorkflowServiceImpl) ActivateWorkflow(ctx context.Context, name string) error {
	if err := s.registry.Activate(name); err != nil {
		return err
	}
	slog.InfoContext(ctx, "workflow activated", slog.String("workflow", name))
	return nil
}

func (s *WorkflowServiceImpl) DeactivateWorkflow(ctx context.Context, name string) error {
	if err := s.registry.Deactivate(name); err != nil {
		return err
	}
	slog.InfoContext(ctx, "workflow deactivated", slog.String("workflow", name))
	return nil
}

func (s *WorkflowServiceImpl) StartWorkflow(ctx context.Context, req *StartWorkflowReq) (*WorkflowItem, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "StartWorkflow failed, req: %+v, err: %v", req, err)
	}
	workflow, err := s.GetWorkflow(req.WorkflowName)
	if err != nil {
		return nil, err
	}
	if !workflow.Definition().Active {
		return nil, errors.WithMessagef(ErrWorkflowInactive, "StartWorkflow failed, workflow: %s", req.WorkflowName)
	}
	item, err := workflow.Start(ctx, req.Entity, req.Data, req.TransitionName)
	if err != nil {
		return nil, errors.WithMessagef(err, "StartWorkflow failed, workflow: %s", req.WorkflowName)
	}
	return item, nil
}

func (s *WorkflowServiceImpl) TransitWorkflowItem(ctx context.Context, req *TransitWorkflowItemReq) (*WorkflowItem, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "TransitWorkflowItem failed, req: %+v, err: %v", req, err)
	}
	item, err := s.GetWorkflowItem(ctx, req.WorkflowItemID)
	if err != nil {
		return nil, err
	}
	if err := item.SetEntity(req.Entity); err != nil {
		return nil, err
	}
	workflow, err := s.GetWorkflow(item.WorkflowName)
	if err != nil {
		return nil, err
	}
	if len(req.Data) > 0 {
		item.Data.Add(req.Data)
	}
	if err := workflow.Transit(ctx, item, req.TransitionName); err != nil {
		return nil, errors.WithMessagef(err, "TransitWorkflowItem failed, workflowItemID: %d", req.WorkflowItemID)
	}
	return item, nil
}

func (s *WorkflowServiceImpl) IsTransitionAllowed(ctx context.Context, item *WorkflowItem, transitionName string, errs *configexpression.Errors) (bool, error) {
	if item == nil {
		return false, errors.Wrapf(ErrWorkflowParamInvalid, "IsTransitionAllowed failed, item is nil")
	}
	workflow, err := s.GetWorkflow(item.WorkflowName)
	if err != nil {
		return false, err
	}
	return workflow.IsTransitionAllowed(ctx, item, transitionName, errs, true)
}

func (s *WorkflowServiceImpl) GetWorkflowItem(ctx context.Context, workflowItemID int64) (*WorkflowItem, error) {
	if workflowItemID <= 0 {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "GetWorkflowItem failed, workflowItemID: %d", workflowItemID)
	}
	pos, err := s.repo.QueryWorkflowItem(ctx, &QueryWorkflowItemParams{
		WorkflowItemID: &workflowItemID,
		Page: &Pager{
			Page: 1,
			Size: 1,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowItem failed, workflowItemID: %d", workflowItemID)
	}
	if len(pos) == 0 {
		return nil, errors.WithMessagef(ErrWorkflowItemNotFound, "workflowItemID: %d", workflowItemID)
	}
	item, err := workflowItemFromPo(pos[0])
	if err != nil {
		return nil, err
	}
	s.bindItem(item)
	return item, nil
}

// bindItem 工作流定义已经不存在时保持默认的实体属性名
func (s *WorkflowServiceImpl) bindItem(item *WorkflowItem) {
	if workflow, err := s.GetWorkflow(item.WorkflowName); err == nil {
		workflow.BindItem(item)
	}
}

func (s *WorkflowServiceImpl) GetWorkflowItemsByEntity(ctx context.Context, entity Entity) ([]*WorkflowItem, error) {
	if entity == nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "GetWorkflowItemsByEntity failed, entity is nil")
	}
	pos, err := s.repo.QueryWorkflowItem(ctx, &QueryWorkflowItemParams{
		EntityClass:  String(entity.EntityClass()),
		EntityIDIn:   []string{entity.EntityID()},
		OrderbyIDAsc: Bool(true),
		Page:         &Pager{IsNoLimit: Bool(true)},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowItem failed, entity: %s#%s", entity.EntityClass(), entity.EntityID())
	}
	ret := make([]*WorkflowItem, 0, len(pos))
	for _, po := range pos {
		item, err := workflowItemFromPo(po)
		if err != nil {
			return nil, err
		}
		item.Entity = entity
		s.bindItem(item)
		ret = append(ret, item)
	}
	return ret, nil
}

func (s *WorkflowServiceImpl) GetTransitionRecords(ctx context.Context, workflowItemID int64) ([]*WorkflowTransitionRecord, error) {
	pos, err := s.repo.QueryTransitionRecord(ctx, &QueryTransitionRecordParams{
		WorkflowItemIDIn: []int64{workflowItemID},
		OrderbyIDAsc:     Bool(true),
		Page:             &Pager{IsNoLimit: Bool(true)},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryTransitionRecord failed, workflowItemID: %d", workflowItemID)
	}
	ret := make([]*WorkflowTransitionRecord, 0, len(pos))
	for _, po := range pos {
		ret = append(ret, transitionRecordFromPo(po))
	}
	return ret, nil
}

func (s *WorkflowServiceImpl) GetAvailableTransitions(ctx context.Context, item *WorkflowItem) ([]*Transition, error) {
	if item == nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "GetAvailableTransitions failed, item is nil")
	}
	workflow, err := s.GetWorkflow(item.WorkflowName)
	if err != nil {
		return nil, err
	}
	return workflow.GetTransitionsByWorkflowItem(ctx, item)
}

func (s *WorkflowServiceImpl) HandleEntitiesCreated(ctx context.Context, entities ...Entity) ([]*WorkflowItem, error) {
	started := make([]*WorkflowItem, 0)
	if len(entities) == 0 {
		return started, nil
	}
	err := runInTransaction(ctx, s.repo, func(ctx context.Context) error {
		for _, entity := range entities {
			if entity == nil {
				continue
			}
			for _, workflow := range s.GetApplicableWorkflows(entity.EntityClass()) {
				item, err := s.autoStart(ctx, workflow, entity)
				if err != nil {
					return err
				}
				if item != nil {
					started = append(started, item)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessage(err, "HandleEntitiesCreated failed")
	}
	return started, nil
}

// autoStart 不能启动时返回 nil, nil
func (s *WorkflowServiceImpl) autoStart(ctx context.Context, workflow *Workflow, entity Entity) (*WorkflowItem, error) {
	if _, ok := workflow.Definition().GetDefaultStartTransition(); !ok {
		return nil, nil
	}
	item, err := workflow.CreateWorkflowItem(entity, nil)
	if err != nil {
		return nil, err
	}
	allowed, err := workflow.IsTransitionAllowed(ctx, item, DefaultStartTransitionName, nil, false)
	if err != nil {
		return nil, err
	}
	if !allowed {
		slog.WarnContext(ctx, fmt.Sprintf("auto start skipped, conditions not met, workflow: %s, entity: %s#%s", workflow.Name(), entity.EntityClass(), entity.EntityID()))
		return nil, nil
	}
	if err := workflow.StartWorkflowItem(ctx, item, DefaultStartTransitionName); err != nil {
		if errors.Is(err, ErrWorkflowItemAlreadyExists) {
			slog.InfoContext(ctx, fmt.Sprintf("auto start skipped, item exists, workflow: %s, entity: %s#%s", workflow.Name(), entity.EntityClass(), entity.EntityID()))
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (s *WorkflowServiceImpl) GetEntityRestrictions(ctx context.Context, entity Entity) ([]*EntityRestriction, error) {
	return s.restrictions.GetEntityRestrictions(ctx, entity)
}
