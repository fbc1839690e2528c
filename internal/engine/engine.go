// Package engine implements the Graph Iterator / Scheduler of spec
// §4.6: it drives a validated routine to completion, dispatching ready
// tasks to plugins, recording results, and computing successors,
// including loop re-entries with incremented iteration contexts.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/mbflow/internal/credential"
	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
	"github.com/smilemakc/mbflow/internal/graph"
	"github.com/smilemakc/mbflow/internal/plugin"
	"github.com/smilemakc/mbflow/internal/resolver"
	"github.com/smilemakc/mbflow/internal/sink"
	"github.com/smilemakc/mbflow/internal/state"
	"github.com/smilemakc/mbflow/internal/validator"
)

// Options configures one Execute call.
type Options struct {
	UserID      string
	WorkflowID  string
	RunID       string
	TriggerType string

	MaxConcurrency   int           // default 8
	MaxExecutionTime time.Duration // 0 = unbounded
	MaxExecutions    int           // 0 = unbounded, total plugin dispatches

	OnNodeStart    func(nodeID string)
	OnNodeComplete func(nodeID string, result state.NodeResult)
	OnNodeError    func(nodeID string, err *engerrors.EngineError)

	Sink   sink.Sink
	Logger *zerolog.Logger // nil falls back to a silent logger
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 8
	}
	if o.Sink == nil {
		o.Sink = sink.Noop{}
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Result is the terminal summary of one Execute call (spec §4.6,§6.4).
type Result struct {
	Status        Status
	ExecutionPath []state.PathEntry
	NodeResults   map[string]state.NodeResult
	Errors        map[string]*engerrors.EngineError
}

// Engine owns the collaborators the Scheduler dispatches through:
// plugin registry, credential loader, expression resolver. It holds no
// per-run state; Execute constructs a fresh State for each call.
type Engine struct {
	registry    *plugin.Registry
	credentials credential.Loader
	resolve     *resolver.Resolver
}

// New builds an Engine. credentials may be nil if no routine in this
// process uses credential mappings.
func New(registry *plugin.Registry, credentials credential.Loader) *Engine {
	return &Engine{registry: registry, credentials: credentials, resolve: resolver.New()}
}

// Execute validates r and, if valid, drives it to completion per
// Options. Validation failures return before any plugin is dispatched.
func (e *Engine) Execute(ctx context.Context, r *domain.Routine, triggerData any, vars map[string]any, opts Options) (*Result, error) {
	vr := validator.Validate(r)
	if !vr.Valid {
		return nil, &RoutineInvalidError{Issues: vr.Errors}
	}

	opts = opts.withDefaults()
	g := graph.New(r)
	if triggerData == nil {
		triggerData = g.TriggerData()
	}
	mergedVars := make(map[string]any, len(g.Variables())+len(vars))
	for name, v := range g.Variables() {
		mergedVars[name] = v.Value
	}
	for k, v := range vars {
		mergedVars[k] = v
	}

	sch := newScheduler(e, g, opts, mergedVars, triggerData)
	return sch.run(ctx)
}

// RoutineInvalidError is returned by Execute when the routine fails
// structural or expression validation; the Scheduler never dispatches a
// single task in this case.
type RoutineInvalidError struct {
	Issues []engerrors.ValidationIssue
}

func (e *RoutineInvalidError) Error() string {
	if len(e.Issues) == 0 {
		return "routine invalid"
	}
	msg := "routine invalid: "
	for i, issue := range e.Issues {
		if i > 0 {
			msg += "; "
		}
		msg += issue.String()
	}
	return msg
}
