// Package sink defines the Persistence Sink Interface the Scheduler
// invokes for durability (spec §6.3). Sink failures are logged by the
// caller and never abort a run.
package sink

import (
	"context"
	"time"
)

// CreateExecutionParams is the payload of the run-start callback.
type CreateExecutionParams struct {
	RoutineID   string
	UserID      string
	WorkflowID  string
	RunID       string
	TriggerType string
	TriggerData any
}

// StoreNodeResultParams is the payload of the per-task completion callback.
type StoreNodeResultParams struct {
	WorkflowID  string
	NodeID      string
	Status      string // "succeeded", "failed", "cancelled"
	Input       any
	Output      any
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
}

// UpdateStatusParams is the payload of the run-status callback.
type UpdateStatusParams struct {
	WorkflowID    string
	Status        string // "running", "completed", "failed", "cancelled"
	ExecutionPath []string
	Err           error
	CompletedAt   *time.Time
}

// Sink is the durability boundary consumed by the Scheduler. A failure
// returned from any method is logged by the caller and does not abort
// the run (spec §6.3, §5 "Durability boundary").
type Sink interface {
	CreateExecution(ctx context.Context, p CreateExecutionParams) error
	StoreNodeResult(ctx context.Context, p StoreNodeResultParams) error
	UpdateStatus(ctx context.Context, p UpdateStatusParams) error
}

// Noop is a Sink that discards every call, the default when the engine
// is embedded without a durable backend.
type Noop struct{}

func (Noop) CreateExecution(context.Context, CreateExecutionParams) error { return nil }
func (Noop) StoreNodeResult(context.Context, StoreNodeResultParams) error { return nil }
func (Noop) UpdateStatus(context.Context, UpdateStatusParams) error       { return nil }

// Multi fans a single call out to every underlying Sink, continuing
// past a failing one so a slow or down observer never blocks the
// durable store (or vice versa). It returns the first error seen, if
// any.
type Multi []Sink

func (m Multi) CreateExecution(ctx context.Context, p CreateExecutionParams) error {
	var first error
	for _, s := range m {
		if err := s.CreateExecution(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) StoreNodeResult(ctx context.Context, p StoreNodeResultParams) error {
	var first error
	for _, s := range m {
		if err := s.StoreNodeResult(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) UpdateStatus(ctx context.Context, p UpdateStatusParams) error {
	var first error
	for _, s := range m {
		if err := s.UpdateStatus(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}
