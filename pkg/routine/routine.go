// Package routine is the standalone SDK facade for embedding the
// routine execution engine without the HTTP server: a single Execute
// call wraps graph validation, scheduling, and sink durability behind
// the same callbacks the REST and WebSocket layers use internally.
package routine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/mbflow/internal/credential"
	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
	"github.com/smilemakc/mbflow/internal/engine"
	"github.com/smilemakc/mbflow/internal/plugin"
	"github.com/smilemakc/mbflow/internal/sink"
	"github.com/smilemakc/mbflow/internal/state"
)

// Callbacks are optional observers notified as a run progresses. Any
// field left nil is simply not invoked.
type Callbacks struct {
	OnNodeStart    func(nodeID string)
	OnNodeComplete func(nodeID string, result state.NodeResult)
	OnNodeError    func(nodeID string, err *engerrors.EngineError)
}

// Options configures one Execute call. The zero value runs with no
// retries visible to the caller, the engine's default concurrency cap
// of 8, a no-op sink, and a silent logger.
type Options struct {
	UserID      string
	WorkflowID  string
	RunID       string
	TriggerType string

	Variables map[string]any

	MaxConcurrency   int
	MaxExecutionTime time.Duration
	MaxExecutions    int

	Sink   sink.Sink
	Logger *zerolog.Logger
}

// Result is the terminal summary of a run.
type Result = engine.Result

// Runner is a configured, reusable entry point into the engine, built
// once per process and shared across Execute calls. It is the facade
// an embedder constructs directly instead of standing up the HTTP
// server in cmd/server.
type Runner struct {
	eng *engine.Engine
}

// NewRunner builds a Runner dispatching through registry, resolving
// stored credentials through credentials (may be nil when no routine run
// through this Runner has nodes with credential mappings).
func NewRunner(registry *plugin.Registry, credentials credential.Loader) *Runner {
	return &Runner{eng: engine.New(registry, credentials)}
}

// Execute drives r to completion. triggerData, when nil, falls back to
// the value recorded on the routine itself. callbacks may be nil.
func (rn *Runner) Execute(ctx context.Context, r *domain.Routine, triggerData any, callbacks *Callbacks, opts Options) (*Result, error) {
	if callbacks == nil {
		callbacks = &Callbacks{}
	}
	return rn.eng.Execute(ctx, r, triggerData, opts.Variables, engine.Options{
		UserID:           opts.UserID,
		WorkflowID:       opts.WorkflowID,
		RunID:            opts.RunID,
		TriggerType:      opts.TriggerType,
		MaxConcurrency:   opts.MaxConcurrency,
		MaxExecutionTime: opts.MaxExecutionTime,
		MaxExecutions:    opts.MaxExecutions,
		OnNodeStart:      callbacks.OnNodeStart,
		OnNodeComplete:   callbacks.OnNodeComplete,
		OnNodeError:      callbacks.OnNodeError,
		Sink:             opts.Sink,
		Logger:           opts.Logger,
	})
}

// Execute is the package-level convenience form of Runner.Execute for
// embedders that only ever run one routine at a time and don't want to
// hold onto a Runner: it builds a throwaway Runner around registry and
// credentials for the single call.
func Execute(ctx context.Context, r *domain.Routine, registry *plugin.Registry, credentials credential.Loader, triggerData any, callbacks *Callbacks, opts Options) (*Result, error) {
	return NewRunner(registry, credentials).Execute(ctx, r, triggerData, callbacks, opts)
}
