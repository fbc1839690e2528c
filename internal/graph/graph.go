// Package graph builds the immutable, index-optimized view of a
// validated routine that the scheduler queries during a run.
package graph

import "github.com/smilemakc/mbflow/internal/domain"

// Graph is the Execution Graph of spec §4.2: O(1) lookups over a
// validated routine. It is immutable after construction.
type Graph struct {
	nodes         map[string]*domain.Node
	edgesBySource map[string][]*domain.Connection
	edgesByTarget map[string][]*domain.Connection
	variables     map[string]domain.Variable
	triggerData   any
	order         []string // node ids in routine declaration order, for deterministic iteration
}

// New builds a Graph from a routine. The routine is assumed already
// validated; New performs no validation of its own.
func New(r *domain.Routine) *Graph {
	g := &Graph{
		nodes:         make(map[string]*domain.Node, len(r.Nodes)),
		edgesBySource: make(map[string][]*domain.Connection),
		edgesByTarget: make(map[string][]*domain.Connection),
		variables:     make(map[string]domain.Variable, len(r.Variables)),
		triggerData:   r.TriggerData,
		order:         make([]string, 0, len(r.Nodes)),
	}

	for i := range r.Nodes {
		n := &r.Nodes[i]
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}

	for i := range r.Connections {
		c := &r.Connections[i]
		g.edgesBySource[c.SourceNodeID] = append(g.edgesBySource[c.SourceNodeID], c)
		g.edgesByTarget[c.TargetNodeID] = append(g.edgesByTarget[c.TargetNodeID], c)
	}

	for _, v := range r.Variables {
		g.variables[v.Name] = v
	}

	return g
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*domain.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in declaration order.
func (g *Graph) Nodes() []*domain.Node {
	out := make([]*domain.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// EdgesBySource returns the outgoing connections of a node.
func (g *Graph) EdgesBySource(nodeID string) []*domain.Connection {
	return g.edgesBySource[nodeID]
}

// EdgesByTarget returns the incoming connections of a node.
func (g *Graph) EdgesByTarget(nodeID string) []*domain.Connection {
	return g.edgesByTarget[nodeID]
}

// Variable looks up a routine-level variable by name.
func (g *Graph) Variable(name string) (domain.Variable, bool) {
	v, ok := g.variables[name]
	return v, ok
}

// Variables returns the full variable mapping.
func (g *Graph) Variables() map[string]domain.Variable {
	return g.variables
}

// TriggerData returns the routine's trigger payload.
func (g *Graph) TriggerData() any {
	return g.triggerData
}

// NonLoopIncoming returns the incoming connections of a node excluding
// loop back-edges, i.e. the edges that gate readiness.
func (g *Graph) NonLoopIncoming(nodeID string) []*domain.Connection {
	all := g.edgesByTarget[nodeID]
	out := make([]*domain.Connection, 0, len(all))
	for _, c := range all {
		if !c.Condition.IsLoop() {
			out = append(out, c)
		}
	}
	return out
}

// EntryNodes returns every node with no incoming non-loop edge: the
// seed of the initial ready set (spec §4.6).
func (g *Graph) EntryNodes() []*domain.Node {
	var out []*domain.Node
	for _, id := range g.order {
		if len(g.NonLoopIncoming(id)) == 0 {
			out = append(out, g.nodes[id])
		}
	}
	return out
}
