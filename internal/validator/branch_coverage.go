package validator

import (
	"fmt"
	"sort"

	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
)

// branchCoverageWarnings checks every node with more than one outgoing
// branch-conditioned edge. The universe of branch values a plugin may
// emit is not known to the validator (plugins declare it only at
// dispatch time via their metadata), so coverage is treated as proven
// only when the node also has a default or unconditioned outgoing edge.
// Otherwise a warning is reported; per spec §4.1 this is never a
// rejection.
func branchCoverageWarnings(r *domain.Routine) []engerrors.ValidationIssue {
	bySource := make(map[string][]*domain.Connection)
	for i := range r.Connections {
		c := &r.Connections[i]
		if c.Condition != nil && c.Condition.Type == domain.ConditionBranch {
			bySource[c.SourceNodeID] = append(bySource[c.SourceNodeID], c)
		}
	}

	var warnings []engerrors.ValidationIssue
	for nodeID, edges := range bySource {
		if len(edges) < 2 {
			continue
		}
		hasDefault := false
		values := make([]string, 0, len(edges))
		for _, e := range r.Connections {
			if e.SourceNodeID != nodeID {
				continue
			}
			if e.Condition == nil || e.Condition.Type == domain.ConditionDefault {
				hasDefault = true
			}
		}
		for _, e := range edges {
			values = append(values, e.Condition.Value)
		}
		sort.Strings(values)
		if !hasDefault {
			warnings = append(warnings, engerrors.ValidationIssue{
				Kind:   engerrors.KindBranchCoverageUnproven,
				NodeID: nodeID,
				Message: fmt.Sprintf(
					"branch coverage cannot be proven statically for node %s (declared branch values: %v, no default edge)",
					nodeID, values,
				),
			})
		}
	}
	return warnings
}
