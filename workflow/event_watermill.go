package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

const (
	// DefaultEventTopic watermill 发布的 topic
	DefaultEventTopic = "workflow.events"

	EventNameMetadataKey    = "event_name"
	WorkflowNameMetadataKey = "workflow_name"
)

// EventMessage 发布到消息总线的内容
type EventMessage struct {
	Event          string    `json:"event"`
	WorkflowName   string    `json:"workflow_name"`
	WorkflowItemID int64     `json:"workflow_item_id"`
	TransitionName string    `json:"transition_name"`
	StepFrom       string    `json:"step_from"`
	StepTo         string    `json:"step_to"`
	EntityClass    string    `json:"entity_class"`
	EntityID       string    `json:"entity_id"`
	IsStart        bool      `json:"is_start"`
	Error          string    `json:"error,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type watermillEventListener struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillEventListener 把事件发布到 watermill, 一般只监听 completed 和 failed 事件
func NewWatermillEventListener(publisher message.Publisher, topic string) EventListener {
	if topic == "" {
		topic = DefaultEventTopic
	}
	return &watermillEventListener{publisher: publisher, topic: topic}
}

func newEventMessage(name string, event *Event) *EventMessage {
	m := &EventMessage{
		Event:      name,
		StepFrom:   event.StepFrom,
		StepTo:     event.StepTo,
		IsStart:    event.IsStart,
		OccurredAt: time.Now(),
	}
	if event.Workflow != nil {
		m.WorkflowName = event.Workflow.Name
	}
	if event.Transition != nil {
		m.TransitionName = event.Transition.Name
	}
	if event.Item != nil {
		m.WorkflowItemID = event.Item.ID
		m.EntityClass = event.Item.EntityClass
		m.EntityID = event.Item.EntityID
	}
	if event.Err != nil {
		m.Error = event.Err.Error()
	}
	return m
}

func (l *watermillEventListener) HandleEvent(ctx context.Context, name string, event *Event) error {
	eventMessage := newEventMessage(name, event)
	payload, err := json.Marshal(eventMessage)
	if err != nil {
		return errors.Wrap(err, "marshal workflow event failed")
	}
	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(EventNameMetadataKey, name)
	msg.Metadata.Set(WorkflowNameMetadataKey, eventMessage.WorkflowName)
	msg.SetContext(ctx)
	if err := l.publisher.Publish(l.topic, msg); err != nil {
		return errors.Wrapf(err, "publish workflow event %s failed", name)
	}
	return nil
}
