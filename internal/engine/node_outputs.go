package engine

import (
	"github.com/smilemakc/mbflow/internal/domain"
	"github.com/smilemakc/mbflow/internal/state"
)

// closureLookup adapts the Execution State's loop-stack closure rule to
// the resolver.NodeOutputs interface the Expression Resolver consumes.
type closureLookup struct {
	st    *state.State
	stack state.Stack
}

func (l closureLookup) Lookup(nodeID string) (domain.PortSet, bool) {
	outputs, _, ok := l.st.FindOutputsByClosure(nodeID, l.stack)
	return outputs, ok
}
