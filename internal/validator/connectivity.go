package validator

import (
	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
)

// disconnectedNodeIssues reports nodes that are neither the source nor
// the target of any connection (loop edges included), per spec §4.1.
func disconnectedNodeIssues(r *domain.Routine) []engerrors.ValidationIssue {
	touched := make(map[string]struct{}, len(r.Nodes))
	for i := range r.Connections {
		c := &r.Connections[i]
		touched[c.SourceNodeID] = struct{}{}
		touched[c.TargetNodeID] = struct{}{}
	}

	var issues []engerrors.ValidationIssue
	for _, n := range r.Nodes {
		if _, ok := touched[n.ID]; !ok {
			issues = append(issues, engerrors.ValidationIssue{
				Kind:    engerrors.KindDisconnectedNode,
				NodeID:  n.ID,
				Message: "node is neither the source nor target of any connection",
			})
		}
	}
	return issues
}
