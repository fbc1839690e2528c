package wsobserver

import (
	"context"

	"github.com/smilemakc/mbflow/internal/sink"
)

// Observer implements sink.Sink by broadcasting each callback to the
// Hub's subscribed clients. It never returns an error: a client being
// offline or slow is not a durability failure, so it must not cause the
// Scheduler to log a sink error on every run.
type Observer struct {
	hub *Hub
}

var _ sink.Sink = (*Observer)(nil)

// NewObserver builds an Observer broadcasting through hub.
func NewObserver(hub *Hub) *Observer {
	return &Observer{hub: hub}
}

func (o *Observer) CreateExecution(_ context.Context, p sink.CreateExecutionParams) error {
	o.hub.Broadcast(p.WorkflowID, p.RunID, newEvent(EventExecutionStarted, p.WorkflowID, p.RunID))
	return nil
}

func (o *Observer) StoreNodeResult(_ context.Context, p sink.StoreNodeResultParams) error {
	eventType := EventNodeCompleted
	if p.Status == "failed" {
		eventType = EventNodeFailed
	}
	event := newEvent(eventType, p.WorkflowID, "")
	event.NodeID = p.NodeID
	event.DurationMs = p.CompletedAt.Sub(p.StartedAt).Milliseconds()
	event.Output = p.Output
	if p.Err != nil {
		event.Error = p.Err.Error()
	}
	o.hub.Broadcast(p.WorkflowID, "", event)
	return nil
}

func (o *Observer) UpdateStatus(_ context.Context, p sink.UpdateStatusParams) error {
	eventType := EventExecutionCompleted
	if p.Status == "failed" {
		eventType = EventExecutionFailed
	}
	event := newEvent(eventType, p.WorkflowID, "")
	if p.Err != nil {
		event.Error = p.Err.Error()
	}
	o.hub.Broadcast(p.WorkflowID, "", event)
	return nil
}
