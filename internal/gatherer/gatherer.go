// Package gatherer implements the Input Gatherer of spec §4.5: it turns
// a node's incoming connections into the flat input record its plugin
// receives, merging upstream output ports and tracking where each
// field came from.
package gatherer

import (
	"github.com/smilemakc/mbflow/internal/domain"
	engerrors "github.com/smilemakc/mbflow/internal/domain/errors"
	"github.com/smilemakc/mbflow/internal/graph"
	"github.com/smilemakc/mbflow/internal/state"
)

// Result is the assembled inputs for one node dispatch, plus a parallel
// lineage record keyed by the same input field for observability.
type Result struct {
	Inputs  map[string]any
	Lineage map[string]domain.ItemMetadata
}

// Gather assembles nodeID's inputs at the given loop-stack context by
// walking its incoming connections (spec §4.5 algorithm):
//
//  1. Locate the source's outputs via the loop-stack closure rule. A
//     source that has not produced output for this context (not yet
//     executed, disabled, or a loop back-edge awaiting its first
//     iteration) is skipped rather than treated as an error; the
//     Scheduler's readiness check already guarantees eligibility for
//     non-loop edges.
//  2. If sourceHandle is set, take that port's value; an unknown
//     sourceHandle also skips rather than fails. Otherwise merge every
//     output port into one object keyed by port name.
//  3. If targetHandle is set, place the value under that key;
//     INPUT_KEY_CONFLICT if a prior connection already used it.
//  4. Otherwise, shallow-merge an object value's keys into the inputs
//     record, or wrap a primitive/array under from_<sourceNodeId>.
func Gather(g *graph.Graph, st *state.State, nodeID string, stack state.Stack) (*Result, *engerrors.EngineError) {
	inputs := make(map[string]any)
	lineage := make(map[string]domain.ItemMetadata)

	for _, c := range g.EdgesByTarget(nodeID) {
		outputs, _, ok := st.FindOutputsByClosure(c.SourceNodeID, stack)
		if !ok {
			continue
		}

		var value any
		var meta domain.ItemMetadata

		if c.SourceHandle != "" {
			port, present := outputs[c.SourceHandle]
			if !present {
				continue
			}
			value = portValue(port)
			meta = lineageOf(port, c.SourceNodeID, c.SourceHandle)
		} else {
			value = mergedObject(outputs)
			meta = domain.ItemMetadata{SourceNode: c.SourceNodeID}
		}

		if c.TargetHandle != "" {
			if _, exists := inputs[c.TargetHandle]; exists {
				return nil, conflictErr(nodeID, stack, c.TargetHandle)
			}
			inputs[c.TargetHandle] = value
			lineage[c.TargetHandle] = meta
			continue
		}

		if obj, isObject := value.(map[string]any); isObject {
			for k, v := range obj {
				if _, exists := inputs[k]; exists {
					return nil, conflictErr(nodeID, stack, k)
				}
				inputs[k] = v
				lineage[k] = meta
			}
			continue
		}

		key := "from_" + c.SourceNodeID
		if _, exists := inputs[key]; exists {
			return nil, conflictErr(nodeID, stack, key)
		}
		inputs[key] = value
		lineage[key] = meta
	}

	return &Result{Inputs: inputs, Lineage: lineage}, nil
}

func conflictErr(nodeID string, stack state.Stack, key string) *engerrors.EngineError {
	k := state.Key{NodeID: nodeID, Stack: stack}
	return engerrors.ForNode(engerrors.KindInputKeyConflict, "input key \""+key+"\" is already set by another connection", nodeID, k.String(), nil)
}

// portValue collapses a port's items to the value an input field or
// expression reference sees: nil for no items, the bare item for one,
// an ordered slice of item data for several.
func portValue(p domain.Port) any {
	switch len(p.Items) {
	case 0:
		return nil
	case 1:
		return p.Items[0].Data
	default:
		out := make([]any, len(p.Items))
		for i, it := range p.Items {
			out[i] = it.Data
		}
		return out
	}
}

// mergedObject collapses a whole PortSet to a port-name-keyed object,
// the "merge all of the source node's output ports" branch of step 2.
func mergedObject(ps domain.PortSet) map[string]any {
	out := make(map[string]any, len(ps))
	for name, p := range ps {
		out[name] = portValue(p)
	}
	return out
}

func lineageOf(p domain.Port, sourceNode, sourcePort string) domain.ItemMetadata {
	if len(p.Items) == 0 {
		return domain.ItemMetadata{SourceNode: sourceNode, SourcePort: sourcePort}
	}
	m := p.Items[0].Metadata
	m.SourceNode = sourceNode
	m.SourcePort = sourcePort
	return m
}
