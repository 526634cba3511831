package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/blingmoon/simple-fsm-workflow/workflow"

// Workflow 一个工作流定义的运行时, 负责迁移检查和执行
type Workflow struct {
	definition *WorkflowDefinition
	repo       WorkflowRepo
	lock       WorkflowLock
	dispatcher EventDispatcher
	lockTTL    time.Duration
	tracer     trace.Tracer
}

type WorkflowOption func(w *Workflow)

func WithEventDispatcher(dispatcher EventDispatcher) WorkflowOption {
	return func(w *Workflow) {
		if dispatcher != nil {
			w.dispatcher = dispatcher
		}
	}
}

func WithLockTTL(ttl time.Duration) WorkflowOption {
	return func(w *Workflow) {
		if ttl > 0 {
			w.lockTTL = ttl
		}
	}
}

func WithTracer(tracer trace.Tracer) WorkflowOption {
	return func(w *Workflow) {
		if tracer != nil {
			w.tracer = tracer
		}
	}
}

func NewWorkflow(definition *WorkflowDefinition, repo WorkflowRepo, lock WorkflowLock, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		definition: definition,
		repo:       repo,
		lock:       lock,
		dispatcher: noopEventDispatcher{},
		lockTTL:    DefaultLockTTL,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workflow) Name() string {
	return w.definition.Name
}

func (w *Workflow) Definition() *WorkflowDefinition {
	return w.definition
}

// CreateWorkflowItem 创建内存中的实例, 当前步骤为开始步骤, 需要通过开始迁移保存
func (w *Workflow) CreateWorkflowItem(entity Entity, data map[string]any) (*WorkflowItem, error) {
	if entity != nil && entity.EntityClass() != w.definition.EntityClass {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "workflow %s does not support entity %s", w.definition.Name, entity.EntityClass())
	}
	item := NewWorkflowItem(w.definition.Name, entity, data)
	if entity == nil {
		item.EntityClass = w.definition.EntityClass
	}
	item.CurrentStep = w.definition.StartStepName
	item.EntityAttribute = w.definition.EntityKey()
	return item, nil
}

// BindItem 让实例的表达式上下文使用本工作流的实体属性名, 从存储加载的实例需要调用
func (w *Workflow) BindItem(item *WorkflowItem) {
	if item != nil && item.EntityAttribute == "" {
		item.EntityAttribute = w.definition.EntityKey()
	}
}

// IsTransitionAllowed
//
//	@Description: 检查迁移是否可以执行
//	              1. 传了 errs 时条件不满足只返回 false, 违规信息写入 errs
//	              2. 没有传 errs 且 fireExceptions 为 true 时返回 *ConditionsNotMetError
//	              3. fireExceptions 为 false 时所有拒绝都只返回 false, 表达式执行错误仍然返回
func (w *Workflow) IsTransitionAllowed(ctx context.Context, item *WorkflowItem, transitionName string, errs *configexpression.Errors, fireExceptions bool) (bool, error) {
	transition, ok := w.definition.GetTransition(transitionName)
	if !ok {
		return rejected(fireExceptions, errors.WithMessagef(ErrUnknownTransition, "workflow %s has no transition %s", w.definition.Name, transitionName))
	}
	return w.isTransitionAllowed(ctx, item, transition, errs, fireExceptions)
}

func rejected(fireExceptions bool, err error) (bool, error) {
	if fireExceptions {
		return false, err
	}
	return false, nil
}

func (w *Workflow) checkStep(item *WorkflowItem, transition *Transition) error {
	if item.IsNew() {
		if !transition.IsStart {
			return errors.WithMessagef(ErrNotStartTransition, "transition %s can not start workflow %s", transition.Name, w.definition.Name)
		}
		return nil
	}
	if item.CurrentStep == "" {
		return errors.WithMessagef(ErrNotStartTransition, "workflow item %d has no current step", item.ID)
	}
	step, ok := w.definition.GetStep(item.CurrentStep)
	if !ok || !step.IsAllowedTransition(transition.Name) {
		return errors.WithMessagef(ErrStepHasNoAllowedTransition, "step %s does not allow transition %s", item.CurrentStep, transition.Name)
	}
	return nil
}

func (w *Workflow) isTransitionAllowed(ctx context.Context, item *WorkflowItem, transition *Transition, errs *configexpression.Errors, fireExceptions bool) (bool, error) {
	w.BindItem(item)
	if err := w.checkStep(item, transition); err != nil {
		return rejected(fireExceptions, err)
	}
	collector := errs
	if collector == nil {
		collector = configexpression.NewErrors()
	}
	ok, err := transition.IsAllowed(ctx, item, collector)
	if err != nil {
		return false, errors.WithMessagef(err, "evaluate conditions of transition %s failed", transition.Name)
	}
	if ok {
		return true, nil
	}
	if errs != nil {
		// 调用方自己处理违规信息
		return false, nil
	}
	return rejected(fireExceptions, &ConditionsNotMetError{
		WorkflowName:   w.definition.Name,
		TransitionName: transition.Name,
		Messages:       collector.Messages(),
	})
}

// IsTransitionAvailable 迁移是否展示, 只检查步骤和 preconditions
func (w *Workflow) IsTransitionAvailable(ctx context.Context, item *WorkflowItem, transitionName string, errs *configexpression.Errors) (bool, error) {
	transition, ok := w.definition.GetTransition(transitionName)
	if !ok {
		return false, nil
	}
	if err := w.checkStep(item, transition); err != nil {
		return false, nil
	}
	w.BindItem(item)
	ok, err := transition.IsAvailable(ctx, item, errs)
	if err != nil {
		return false, errors.WithMessagef(err, "evaluate preconditions of transition %s failed", transition.Name)
	}
	return ok, nil
}

// GetTransitionsByWorkflowItem 当前步骤可以展示的迁移, 新实例返回开始迁移
func (w *Workflow) GetTransitionsByWorkflowItem(ctx context.Context, item *WorkflowItem) ([]*Transition, error) {
	w.BindItem(item)
	candidates := make([]*Transition, 0)
	if item.IsNew() {
		candidates = w.definition.GetStartTransitions()
	} else if step, ok := w.definition.GetStep(item.CurrentStep); ok {
		for _, name := range step.AllowedTransitions {
			if transition, ok := w.definition.GetTransition(name); ok {
				candidates = append(candidates, transition)
			}
		}
	}
	ret := make([]*Transition, 0, len(candidates))
	for _, transition := range candidates {
		ok, err := transition.IsAvailable(ctx, item, nil)
		if err != nil {
			return nil, errors.WithMessagef(err, "evaluate preconditions of transition %s failed", transition.Name)
		}
		if ok {
			ret = append(ret, transition)
		}
	}
	return ret, nil
}

// Start 创建实例并执行开始迁移, transitionName 为空时使用默认开始迁移
func (w *Workflow) Start(ctx context.Context, entity Entity, data map[string]any, transitionName string) (*WorkflowItem, error) {
	item, err := w.CreateWorkflowItem(entity, data)
	if err != nil {
		return nil, err
	}
	if err := w.StartWorkflowItem(ctx, item, transitionName); err != nil {
		return nil, err
	}
	return item, nil
}

// StartWorkflowItem 对 CreateWorkflowItem 创建的实例执行开始迁移
func (w *Workflow) StartWorkflowItem(ctx context.Context, item *WorkflowItem, transitionName string) error {
	if item == nil || !item.IsNew() {
		return errors.Wrapf(ErrWorkflowParamInvalid, "StartWorkflowItem need a new workflow item")
	}
	if transitionName == "" {
		transitionName = DefaultStartTransitionName
	}
	return w.Transit(ctx, item, transitionName)
}

// Transit 执行迁移, 失败时实例恢复到迁移前的状态
func (w *Workflow) Transit(ctx context.Context, item *WorkflowItem, transitionName string) error {
	if item == nil {
		return errors.Wrapf(ErrWorkflowParamInvalid, "Transit failed, item is nil")
	}
	if item.WorkflowName != w.definition.Name {
		return errors.Wrapf(ErrWorkflowParamInvalid, "workflow item %d belongs to workflow %s, not %s", item.ID, item.WorkflowName, w.definition.Name)
	}
	transition, ok := w.definition.GetTransition(transitionName)
	if !ok {
		return errors.WithMessagef(ErrUnknownTransition, "workflow %s has no transition %s", w.definition.Name, transitionName)
	}
	return w.transit(ctx, item, transition)
}

func (w *Workflow) transit(ctx context.Context, item *WorkflowItem, transition *Transition) error {
	ctx, span := w.tracer.Start(ctx, "workflow.transit", trace.WithAttributes(
		attribute.String("workflow.name", w.definition.Name),
		attribute.String("workflow.transition", transition.Name),
		attribute.Int64("workflow.item_id", item.ID),
	))
	defer span.End()

	w.BindItem(item)
	snapshot := item.snapshot()
	event := &Event{
		Workflow:   w.definition,
		Item:       item,
		Transition: transition,
		StepTo:     transition.StepTo,
		IsStart:    item.IsNew(),
	}
	if !item.IsNew() {
		event.StepFrom = item.CurrentStep
	}
	err := w.lock.NonBlockingSynchronized(ctx, itemLockKey(item), w.lockTTL, func(ctx context.Context) error {
		return runInTransaction(ctx, w.repo, func(ctx context.Context) error {
			return w.doTransit(ctx, item, transition, event)
		})
	})
	if err != nil {
		item.restore(snapshot)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		event.Err = err
		if dispatchErr := w.dispatcher.Dispatch(ctx, EventTransitionFailed, event); dispatchErr != nil {
			slog.WarnContext(ctx, fmt.Sprintf("dispatch %s failed, workflow: %s, transition: %s, err: %v", EventTransitionFailed, w.definition.Name, transition.Name, dispatchErr))
		}
		return err
	}
	span.SetAttributes(attribute.Int64("workflow.item_id", item.ID))
	return nil
}

func (w *Workflow) doTransit(ctx context.Context, item *WorkflowItem, transition *Transition, event *Event) error {
	isStart := item.IsNew()
	if isStart {
		count, err := w.repo.CountWorkflowItem(ctx, &QueryWorkflowItemParams{
			WorkflowNameIn: []string{w.definition.Name},
			EntityClass:    String(item.EntityClass),
			EntityIDIn:     []string{item.EntityID},
		})
		if err != nil {
			return errors.WithMessage(err, "CountWorkflowItem failed")
		}
		if count > 0 {
			return errors.WithMessagef(ErrWorkflowItemAlreadyExists, "workflow %s, entity %s#%s", w.definition.Name, item.EntityClass, item.EntityID)
		}
	}
	if _, err := w.isTransitionAllowed(ctx, item, transition, nil, true); err != nil {
		return err
	}

	preEvent := EventTransitionPre
	if isStart {
		preEvent = EventStartPre
	}
	if err := w.dispatcher.Dispatch(ctx, preEvent, event); err != nil {
		return err
	}
	if _, err := configexpression.Execute(ctx, transition.PreActions, item, nil); err != nil {
		return errors.WithMessagef(err, "execute preactions of transition %s failed", transition.Name)
	}
	if _, err := configexpression.Execute(ctx, transition.Actions, item, nil); err != nil {
		return errors.WithMessagef(err, "execute actions of transition %s failed", transition.Name)
	}

	item.CurrentStep = transition.StepTo
	if err := w.persistItem(ctx, item, event.StepFrom); err != nil {
		return err
	}
	record := &WorkflowTransitionRecord{
		WorkflowItemID: item.ID,
		TransitionName: transition.Name,
		StepFrom:       event.StepFrom,
		StepTo:         transition.StepTo,
		TransitionDate: time.Now(),
	}
	recordPo, err := w.repo.CreateTransitionRecord(ctx, transitionRecordToPo(record))
	if err != nil {
		return errors.WithMessagef(err, "CreateTransitionRecord failed, workflowItemID: %d", item.ID)
	}
	record.ID = recordPo.ID
	item.TransitionRecords = append(item.TransitionRecords, record)

	if err := w.dispatcher.Dispatch(ctx, EventTransition, event); err != nil {
		return err
	}
	completedEvent := EventTransitionCompleted
	if isStart {
		completedEvent = EventStartCompleted
	}
	afterCommit(ctx, func(ctx context.Context) {
		if err := w.dispatcher.Dispatch(ctx, completedEvent, event); err != nil {
			// 已经提交了, 只记录日志
			slog.ErrorContext(ctx, fmt.Sprintf("dispatch %s failed, workflow: %s, workflowItemID: %d, err: %v", completedEvent, w.definition.Name, item.ID, err))
		}
	})
	return nil
}

// persistItem 更新时要求数据库中的步骤还是 stepFrom, 防止用旧的实例覆盖别人的迁移
func (w *Workflow) persistItem(ctx context.Context, item *WorkflowItem, stepFrom string) error {
	if item.Data == nil {
		item.Data = NewWorkflowData(nil)
	}
	data, err := item.Data.MarshalJSON()
	if err != nil {
		return errors.Wrapf(err, "marshal workflow data failed, workflow: %s", w.definition.Name)
	}
	if item.IsNew() {
		po, err := w.repo.CreateWorkflowItem(ctx, &WorkflowItemPo{
			WorkflowName: item.WorkflowName,
			EntityClass:  item.EntityClass,
			EntityID:     item.EntityID,
			CurrentStep:  item.CurrentStep,
			Data:         data,
		})
		if err != nil {
			return errors.WithMessagef(err, "CreateWorkflowItem failed, workflow: %s", w.definition.Name)
		}
		item.ID = po.ID
		item.CreatedAt = po.CreatedAt
		item.UpdatedAt = po.UpdatedAt
		item.Version = po.Version
		return nil
	}
	err = w.repo.UpdateWorkflowItem(ctx, &UpdateWorkflowItemParams{
		Where: &UpdateWorkflowItemWhere{
			IDIn:          []int64{item.ID},
			CurrentStepIn: []string{stepFrom},
			Version:       Int64(item.Version),
		},
		Fields: &UpdateWorkflowItemField{
			CurrentStep: String(item.CurrentStep),
			Data:        item.Data,
		},
		LimitMax: 1,
	})
	if errors.Is(err, ErrWorkflowItemNotFound) {
		return errors.Wrapf(ErrWorkflowItemChanged, "workflow item %d is no longer at step %s version %d", item.ID, stepFrom, item.Version)
	}
	if err != nil {
		return errors.WithMessagef(err, "UpdateWorkflowItem failed, workflowItemID: %d", item.ID)
	}
	item.UpdatedAt = time.Now().Unix()
	item.Version++
	return nil
}

type commitHooksContextKey struct{}

type commitHooks struct {
	hooks []func(ctx context.Context)
}

// runInTransaction 最外层事务提交之后执行 afterCommit 注册的回调
func runInTransaction(ctx context.Context, repo WorkflowRepo, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(commitHooksContextKey{}).(*commitHooks); ok {
		return repo.Transaction(ctx, fn)
	}
	hooks := &commitHooks{}
	txCtx := context.WithValue(ctx, commitHooksContextKey{}, hooks)
	if err := repo.Transaction(txCtx, fn); err != nil {
		return err
	}
	for _, hook := range hooks.hooks {
		hook(ctx)
	}
	return nil
}

func afterCommit(ctx context.Context, hook func(ctx context.Context)) {
	hooks, ok := ctx.Value(commitHooksContextKey{}).(*commitHooks)
	if !ok {
		hook(ctx)
		return
	}
	hooks.hooks = append(hooks.hooks, hook)
}

func transitionRecordToPo(record *WorkflowTransitionRecord) *WorkflowTransitionRecordPo {
	return &WorkflowTransitionRecordPo{
		ID:             record.ID,
		WorkflowItemID: record.WorkflowItemID,
		TransitionName: record.TransitionName,
		StepFrom:       record.StepFrom,
		StepTo:         record.StepTo,
		TransitionDate: record.TransitionDate.UnixMilli(),
	}
}

func transitionRecordFromPo(po *WorkflowTransitionRecordPo) *WorkflowTransitionRecord {
	return &WorkflowTransitionRecord{
		ID:             po.ID,
		WorkflowItemID: po.WorkflowItemID,
		TransitionName: po.TransitionName,
		StepFrom:       po.StepFrom,
		StepTo:         po.StepTo,
		TransitionDate: time.UnixMilli(po.TransitionDate),
	}
}

func workflowItemFromPo(po *WorkflowItemPo) (*WorkflowItem, error) {
	data, err := newWorkflowDataFromBytes(po.Data)
	if err != nil {
		return nil, errors.WithMessagef(err, "decode data of workflow item %d failed", po.ID)
	}
	return &WorkflowItem{
		ID:           po.ID,
		WorkflowName: po.WorkflowName,
		CurrentStep:  po.CurrentStep,
		Data:         data,
		EntityClass:  po.EntityClass,
		EntityID:     po.EntityID,
		Result:       make(map[string]any),
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
		Version:      po.Version,
	}, nil
}
