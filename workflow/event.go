package workflow

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// 事件名称
const (
	EventStartPre            = "workflow.start.pre"
	EventTransitionPre       = "workflow.transition.pre"
	EventTransition          = "workflow.transition" // 事务内, 监听者返回错误会回滚
	EventTransitionCompleted = "workflow.transition.completed"
	EventStartCompleted      = "workflow.start.completed"
	EventTransitionFailed    = "workflow.transition.failed"
)

// Event 迁移过程中派发的事件
type Event struct {
	Workflow   *WorkflowDefinition
	Item       *WorkflowItem
	Transition *Transition
	StepFrom   string
	StepTo     string
	IsStart    bool
	Err        error // 只有 failed 事件有
}

type EventListener interface {
	HandleEvent(ctx context.Context, name string, event *Event) error
}

// EventListenerFunc 函数形式的监听者
type EventListenerFunc func(ctx context.Context, name string, event *Event) error

func (f EventListenerFunc) HandleEvent(ctx context.Context, name string, event *Event) error {
	return f(ctx, name, event)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, name string, event *Event) error
}

// LocalEventDispatcher 进程内同步派发, 按注册顺序调用
type LocalEventDispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]EventListener
	all       []EventListener
}

func NewLocalEventDispatcher() *LocalEventDispatcher {
	return &LocalEventDispatcher{listeners: make(map[string][]EventListener)}
}

// AddListener names 为空时监听所有事件
func (d *LocalEventDispatcher) AddListener(listener EventListener, names ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(names) == 0 {
		d.all = append(d.all, listener)
		return
	}
	for _, name := range names {
		d.listeners[name] = append(d.listeners[name], listener)
	}
}

// Dispatch 第一个错误会中断派发
func (d *LocalEventDispatcher) Dispatch(ctx context.Context, name string, event *Event) error {
	d.mu.RLock()
	listeners := make([]EventListener, 0, len(d.all)+len(d.listeners[name]))
	listeners = append(listeners, d.listeners[name]...)
	listeners = append(listeners, d.all...)
	d.mu.RUnlock()
	for _, listener := range listeners {
		if err := listener.HandleEvent(ctx, name, event); err != nil {
			return errors.WithMessagef(err, "event %s listener failed", name)
		}
	}
	return nil
}

type noopEventDispatcher struct{}

func (noopEventDispatcher) Dispatch(context.Context, string, *Event) error {
	return nil
}
