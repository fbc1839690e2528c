// Package tracing emits OpenTelemetry spans around a routine run and
// its node dispatches, the structured descendant of the teacher's
// hand-rolled ExecutionTrace.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
	"github.com/smilemakc/mbflow/internal/state"
)

const instrumentationName = "github.com/smilemakc/mbflow/internal/engine"

// Tracer wraps an OpenTelemetry tracer scoped to routine execution. The
// zero value uses the global tracer provider, so it works unconfigured
// (spans become no-ops) and picks up a real exporter the moment one is
// registered with otel.SetTracerProvider.
type Tracer struct {
	tracer trace.Tracer
}

// New builds a Tracer. provider may be nil to use the globally
// registered provider.
func New(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(instrumentationName)}
}

// StartExecution opens the root span for one routine run. Callers must
// call the returned function when the run reaches a terminal status.
func (t *Tracer) StartExecution(ctx context.Context, routineID, runID string) (context.Context, func(status string)) {
	ctx, span := t.tracer.Start(ctx, "routine.execute",
		trace.WithAttributes(
			attribute.String("routine.id", routineID),
			attribute.String("routine.run_id", runID),
		),
	)
	return ctx, func(status string) {
		span.SetAttributes(attribute.String("routine.status", status))
		if status == "failed" {
			span.SetStatus(codes.Error, "routine execution failed")
		}
		span.End()
	}
}

// NodeSpans tracks the open span per node id for one run, since the
// engine's start/complete/error callbacks fire as separate events
// rather than bracketing a single call.
type NodeSpans struct {
	ctx    context.Context
	tracer trace.Tracer
	spans  map[string]trace.Span
}

// NewNodeSpans builds a NodeSpans bound to ctx (the execution span's
// context, so node spans nest under it).
func (t *Tracer) NewNodeSpans(ctx context.Context) *NodeSpans {
	return &NodeSpans{ctx: ctx, tracer: t.tracer, spans: make(map[string]trace.Span)}
}

// Start opens a span for nodeID, called from engine.Options.OnNodeStart.
func (ns *NodeSpans) Start(nodeID string) {
	_, span := ns.tracer.Start(ns.ctx, "node.dispatch", trace.WithAttributes(attribute.String("node.id", nodeID)))
	ns.spans[nodeID] = span
}

// Complete ends nodeID's span successfully, called from
// engine.Options.OnNodeComplete.
func (ns *NodeSpans) Complete(nodeID string, result state.NodeResult) {
	span, ok := ns.spans[nodeID]
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("node.status", "succeeded"))
	span.End()
	delete(ns.spans, nodeID)
}

// Error ends nodeID's span with an error status, called from
// engine.Options.OnNodeError.
func (ns *NodeSpans) Error(nodeID string, err *engerrors.EngineError) {
	span, ok := ns.spans[nodeID]
	if !ok {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	span.End()
	delete(ns.spans, nodeID)
}
