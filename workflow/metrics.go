package workflow

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsListener 统计开始, 迁移和失败的次数
type MetricsListener struct {
	StartsTotal      *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
}

func NewMetricsListener(registerer prometheus.Registerer) (*MetricsListener, error) {
	m := &MetricsListener{
		StartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_starts_total",
			Help: "Number of started workflow items",
		}, []string{"workflow"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Number of committed workflow transitions",
		}, []string{"workflow", "transition"}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transition_failures_total",
			Help: "Number of rejected or failed workflow transitions",
		}, []string{"workflow", "transition", "reason"}),
	}
	if registerer != nil {
		for _, c := range []prometheus.Collector{m.StartsTotal, m.TransitionsTotal, m.FailuresTotal} {
			if err := registerer.Register(c); err != nil {
				return nil, errors.Wrap(err, "register workflow metrics failed")
			}
		}
	}
	return m, nil
}

// Listen 注册到 dispatcher
func (m *MetricsListener) Listen(dispatcher *LocalEventDispatcher) {
	dispatcher.AddListener(m, EventStartCompleted, EventTransitionCompleted, EventTransitionFailed)
}

func (m *MetricsListener) HandleEvent(_ context.Context, name string, event *Event) error {
	workflowName, transitionName := "", ""
	if event.Workflow != nil {
		workflowName = event.Workflow.Name
	}
	if event.Transition != nil {
		transitionName = event.Transition.Name
	}
	switch name {
	case EventStartCompleted:
		m.StartsTotal.WithLabelValues(workflowName).Inc()
		m.TransitionsTotal.WithLabelValues(workflowName, transitionName).Inc()
	case EventTransitionCompleted:
		m.TransitionsTotal.WithLabelValues(workflowName, transitionName).Inc()
	case EventTransitionFailed:
		m.FailuresTotal.WithLabelValues(workflowName, transitionName, failureReason(event.Err)).Inc()
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, ErrConditionsNotMet):
		return "conditions_not_met"
	case errors.Is(err, ErrStepHasNoAllowedTransition):
		return "step_has_no_allowed_transition"
	case errors.Is(err, ErrNotStartTransition):
		return "not_start_transition"
	case errors.Is(err, ErrUnknownTransition):
		return "unknown_transition"
	case errors.Is(err, LockFailedError):
		return "lock_failed"
	}
	return "error"
}
