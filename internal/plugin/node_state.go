package plugin

// NodeState is the mutable scratch bag the Scheduler hands to a plugin
// on every dispatch of the same node id (spec §5: "a mutable reference
// to their own nodeStates[nodeId] scratch bag"). The same pointer is
// returned across iterations, so a plugin may keep private bookkeeping
// in Scratch across loop re-entries.
type NodeState struct {
	Scratch map[string]any

	loopAccumulator func(edgeID string) map[string]any
}

// NewNodeState builds a NodeState backed by loopAccumulator, the
// Execution State's read accessor for a loop edge's running
// accumulator.
func NewNodeState(loopAccumulator func(edgeID string) map[string]any) *NodeState {
	return &NodeState{Scratch: make(map[string]any), loopAccumulator: loopAccumulator}
}

// GetLoopContext returns the accumulator of the loop edge identified by
// edgeID as it stood after the previous iteration's completion (spec
// §4.6 "available to downstream plugins via getLoopContext"). Returns
// nil if no completion has reached edgeID yet or n is nil; once one
// has, the result is non-nil even if the loop never advanced.
func (n *NodeState) GetLoopContext(edgeID string) map[string]any {
	if n == nil || n.loopAccumulator == nil {
		return nil
	}
	return n.loopAccumulator(edgeID)
}
