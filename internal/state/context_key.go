package state

import (
	"strconv"
	"strings"
)

// LoopFrame is one entry of the explicit loop stack model from spec §9:
// `{edgeId, iteration}`. A context's stack records every enclosing loop
// back-edge and which iteration it is currently on.
type LoopFrame struct {
	EdgeID    string
	Iteration int
}

// Stack is an ordered list of loop frames, outermost first.
type Stack []LoopFrame

// Push returns a new stack with frame appended; the receiver is never
// mutated, so a completer's stack may be shared by several successors.
func (s Stack) Push(frame LoopFrame) Stack {
	out := make(Stack, len(s)+1)
	copy(out, s)
	out[len(s)] = frame
	return out
}

// Bump returns a new stack with the innermost frame matching edgeID
// advanced to iteration, leaving everything else untouched. If edgeID is
// not already on the stack, Bump pushes a new frame instead.
func (s Stack) Bump(edgeID string, iteration int) Stack {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].EdgeID == edgeID {
			out := make(Stack, len(s))
			copy(out, s)
			out[i].Iteration = iteration
			return out
		}
	}
	return s.Push(LoopFrame{EdgeID: edgeID, Iteration: iteration})
}

// Innermost returns the frame for edgeID nearest the top of the stack,
// resolving the "nested loops return the innermost frame" requirement
// from spec §9 (superseding the source's first-match behavior).
func (s Stack) Innermost(edgeID string) (LoopFrame, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].EdgeID == edgeID {
			return s[i], true
		}
	}
	return LoopFrame{}, false
}

// Key is the scheduler's unique identifier for a node execution: a node
// id plus its enclosing loop stack.
type Key struct {
	NodeID string
	Stack  Stack
}

// String renders the stable context-key hash described in spec §3:
// "nodeId" with no loops, "nodeId|edgeId:iter|..." under loop contexts.
func (k Key) String() string {
	if len(k.Stack) == 0 {
		return k.NodeID
	}
	var b strings.Builder
	b.WriteString(k.NodeID)
	for _, f := range k.Stack {
		b.WriteByte('|')
		b.WriteString(f.EdgeID)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Iteration))
	}
	return b.String()
}
