// Package events fans dispatch lifecycle events out to subscribers such
// as WebSocket clients
package events

import (
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/topic"

	"github.com/weave-services/weave/engine/pkg/api"
)

// Hub broadcasts dispatch events. Every consumer sees every event
// published after it subscribes
type Hub struct {
	queue     topic.Topic[*api.DispatchEvent]
	prod      topic.Producer[*api.DispatchEvent]
	closeOnce sync.Once
}

// NewHub creates an event hub
func NewHub() *Hub {
	queue := caravan.NewTopic[*api.DispatchEvent]()
	return &Hub{
		queue: queue,
		prod:  queue.NewProducer(),
	}
}

// Publish sends an event to all subscribers, stamping it if needed
func (h *Hub) Publish(ev *api.DispatchEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	h.prod.Send() <- ev
}

// StepStarted publishes a step.started event
func (h *Hub) StepStarted(wf api.WorkflowID, step int) {
	h.Publish(&api.DispatchEvent{
		Type:       api.EventStepStarted,
		WorkflowID: wf,
		StepIndex:  step,
	})
}

// StepCompleted publishes a step.completed event
func (h *Hub) StepCompleted(wf api.WorkflowID, step int) {
	h.Publish(&api.DispatchEvent{
		Type:       api.EventStepCompleted,
		WorkflowID: wf,
		StepIndex:  step,
	})
}

// StepFailed publishes a step.failed event
func (h *Hub) StepFailed(wf api.WorkflowID, step int, err error) {
	ev := &api.DispatchEvent{
		Type:       api.EventStepFailed,
		WorkflowID: wf,
		StepIndex:  step,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Publish(ev)
}

// StreamCompleted publishes a stream.completed event
func (h *Hub) StreamCompleted(wf api.WorkflowID, step int) {
	h.Publish(&api.DispatchEvent{
		Type:       api.EventStreamCompleted,
		WorkflowID: wf,
		StepIndex:  step,
	})
}

// NewConsumer subscribes to the event feed. The caller owns the consumer
// and must Close it
func (h *Hub) NewConsumer() topic.Consumer[*api.DispatchEvent] {
	return h.queue.NewConsumer()
}

// Close shuts down the hub's producer side
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.prod.Close()
	})
}
