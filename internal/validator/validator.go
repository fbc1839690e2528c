// Package validator implements the Graph Validator of spec §4.1: it
// rejects any routine that cannot be executed deterministically before
// any side effects occur.
package validator

import (
	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
)

// Result is the validator's output: spec §4.1's `{valid, errors[], warnings[]}`.
type Result struct {
	Valid    bool
	Errors   []engerrors.ValidationIssue
	Warnings []engerrors.ValidationIssue
}

// Validate runs every structural and expression check from spec §4.1
// against r and returns the aggregated result. The engine refuses to
// execute a routine with any errors.
func Validate(r *domain.Routine) Result {
	var errs, warnings []engerrors.ValidationIssue

	nodeSet := make(map[string]struct{}, len(r.Nodes))
	for _, n := range r.Nodes {
		nodeSet[n.ID] = struct{}{}
	}

	// Every connection's endpoints must resolve to a declared node.
	for i := range r.Connections {
		c := &r.Connections[i]
		if _, ok := nodeSet[c.SourceNodeID]; !ok {
			errs = append(errs, engerrors.ValidationIssue{
				Kind: engerrors.KindUnknownNodeRef, EdgeID: c.ID,
				Message: "sourceNodeId does not reference a declared node: " + c.SourceNodeID,
			})
		}
		if _, ok := nodeSet[c.TargetNodeID]; !ok {
			errs = append(errs, engerrors.ValidationIssue{
				Kind: engerrors.KindUnknownNodeRef, EdgeID: c.ID,
				Message: "targetNodeId does not reference a declared node: " + c.TargetNodeID,
			})
		}
	}

	// Loop edges must carry loopConfig.maxIterations in [1, 1000].
	for i := range r.Connections {
		c := &r.Connections[i]
		if c.Condition == nil || c.Condition.Type != domain.ConditionLoop {
			continue
		}
		if c.Condition.Loop == nil {
			errs = append(errs, engerrors.ValidationIssue{
				Kind: engerrors.KindMissingLoopConfig, EdgeID: c.ID,
				Message: "loop edge missing loopConfig",
			})
			continue
		}
		if c.Condition.Loop.MaxIterations < 1 || c.Condition.Loop.MaxIterations > 1000 {
			errs = append(errs, engerrors.ValidationIssue{
				Kind: engerrors.KindLoopIterationsRange, EdgeID: c.ID,
				Message: "loopConfig.maxIterations must be in [1, 1000]",
			})
		}
	}

	// The subgraph induced by non-loop edges must be acyclic.
	if cycleIssue, found := detectCycle(r, nodeSet); found {
		errs = append(errs, cycleIssue)
	}

	// Branch coverage: warn (never reject) when it cannot be statically proven.
	warnings = append(warnings, branchCoverageWarnings(r)...)

	// Disconnected nodes, only meaningful when there is more than one node.
	if len(r.Nodes) > 1 {
		errs = append(errs, disconnectedNodeIssues(r)...)
	}

	// Expression validation.
	exprErrs, exprWarnings := validateExpressions(r, nodeSet)
	errs = append(errs, exprErrs...)
	warnings = append(warnings, exprWarnings...)

	return Result{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}
