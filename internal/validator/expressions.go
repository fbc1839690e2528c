package validator

import (
	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
	"github.com/smilemakc/mbflow/internal/resolver"
)

// validateExpressions enforces that every `{{ vars.NAME }}` resolves to
// a declared variable and that every `{{ nodes.ID.* }}` references a
// node that is a topological ancestor of the referrer via non-loop
// edges (spec §4.1).
func validateExpressions(r *domain.Routine, nodeSet map[string]struct{}) (errs, warnings []engerrors.ValidationIssue) {
	varNames := make(map[string]struct{}, len(r.Variables))
	for _, v := range r.Variables {
		varNames[v.Name] = struct{}{}
	}

	ancestors := ancestorSets(r, nodeSet)

	for i := range r.Nodes {
		n := &r.Nodes[i]
		refs := resolver.ExtractReferences(n.Parameters)
		for _, ref := range refs {
			switch ref.Source {
			case resolver.SourceVars:
				if len(ref.Path) == 0 {
					continue
				}
				name := ref.Path[0].Name
				if _, ok := varNames[name]; !ok {
					errs = append(errs, engerrors.ValidationIssue{
						Kind: engerrors.KindUndefinedVariable, NodeID: n.ID,
						Message: "undefined variable referenced: " + name,
					})
				}

			case resolver.SourceNodes:
				if ref.NodeID == n.ID {
					errs = append(errs, engerrors.ValidationIssue{
						Kind: engerrors.KindSelfReference, NodeID: n.ID,
						Message: "node references its own output",
					})
					continue
				}
				if _, ok := nodeSet[ref.NodeID]; !ok {
					errs = append(errs, engerrors.ValidationIssue{
						Kind: engerrors.KindInvalidNodeRef, NodeID: n.ID,
						Message: "reference to undeclared node: " + ref.NodeID,
					})
					continue
				}
				if _, ok := ancestors[n.ID][ref.NodeID]; !ok {
					errs = append(errs, engerrors.ValidationIssue{
						Kind: engerrors.KindNotUpstream, NodeID: n.ID,
						Message: "referenced node " + ref.NodeID + " is not a topological ancestor",
					})
				}

			case resolver.SourceUnknown:
				warnings = append(warnings, engerrors.ValidationIssue{
					Kind: engerrors.KindInvalidNodeRef, NodeID: n.ID,
					Message: "unrecognized expression source: " + ref.Raw,
				})
			}
		}
	}
	return errs, warnings
}

// ancestorSets returns, for every node, the set of node ids reachable
// by walking non-loop edges backward from it (its topological
// ancestors).
func ancestorSets(r *domain.Routine, nodeSet map[string]struct{}) map[string]map[string]struct{} {
	reverse := make(map[string][]string)
	for i := range r.Connections {
		c := &r.Connections[i]
		if c.Condition.IsLoop() {
			continue
		}
		if _, ok := nodeSet[c.SourceNodeID]; !ok {
			continue
		}
		if _, ok := nodeSet[c.TargetNodeID]; !ok {
			continue
		}
		reverse[c.TargetNodeID] = append(reverse[c.TargetNodeID], c.SourceNodeID)
	}

	out := make(map[string]map[string]struct{}, len(r.Nodes))
	for _, n := range r.Nodes {
		visited := make(map[string]struct{})
		var stack []string
		stack = append(stack, reverse[n.ID]...)
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := visited[id]; ok {
				continue
			}
			visited[id] = struct{}{}
			stack = append(stack, reverse[id]...)
		}
		out[n.ID] = visited
	}
	return out
}
