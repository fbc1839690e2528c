// Package visualize renders a routine's Execution Graph as Mermaid or
// plain ASCII, for diagnostics only: it never influences execution
// semantics.
package visualize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smilemakc/mbflow/internal/domain"
	"github.com/smilemakc/mbflow/internal/graph"
)

// Mermaid renders r as a Mermaid flowchart definition. Branch edges are
// labeled with their expected value, loop edges are dashed.
func Mermaid(r *domain.Routine) string {
	g := graph.New(r)
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	for _, n := range g.Nodes() {
		label := n.Label
		if label == "" {
			label = n.PluginID
		}
		shape := "[%s]"
		if n.Disabled {
			shape = "(%s)"
		}
		fmt.Fprintf(&b, "    %s%s\n", mermaidID(n.ID), fmt.Sprintf(shape, mermaidEscape(fmt.Sprintf("%s: %s", n.ID, label))))
	}

	for _, n := range g.Nodes() {
		for _, c := range g.EdgesBySource(n.ID) {
			writeMermaidEdge(&b, c)
		}
	}

	return b.String()
}

func writeMermaidEdge(b *strings.Builder, c *domain.Connection) {
	from, to := mermaidID(c.SourceNodeID), mermaidID(c.TargetNodeID)
	switch {
	case c.Condition.IsLoop():
		max := 0
		if c.Condition.Loop != nil {
			max = c.Condition.Loop.MaxIterations
		}
		fmt.Fprintf(b, "    %s -. \"loop (max %d)\" .-> %s\n", from, max, to)
	case c.Condition != nil && c.Condition.Type == domain.ConditionBranch:
		fmt.Fprintf(b, "    %s -- %q --> %s\n", from, c.Condition.Value, to)
	default:
		fmt.Fprintf(b, "    %s --> %s\n", from, to)
	}
}

// ASCII renders r as an indented adjacency list, deterministic by node
// ID for diffable output.
func ASCII(r *domain.Routine) string {
	g := graph.New(r)
	ids := make([]string, 0, len(g.Nodes()))
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		n, _ := g.Node(id)
		label := n.Label
		if label == "" {
			label = n.PluginID
		}
		status := ""
		if n.Disabled {
			status = " [disabled]"
		}
		fmt.Fprintf(&b, "%s (%s)%s\n", id, label, status)

		edges := g.EdgesBySource(id)
		sort.Slice(edges, func(i, j int) bool { return edges[i].TargetNodeID < edges[j].TargetNodeID })
		for _, c := range edges {
			fmt.Fprintf(&b, "  -> %s%s\n", c.TargetNodeID, edgeSuffix(c))
		}
	}
	return b.String()
}

func edgeSuffix(c *domain.Connection) string {
	switch {
	case c.Condition.IsLoop():
		return fmt.Sprintf(" [loop, max=%d]", c.Condition.Loop.MaxIterations)
	case c.Condition != nil && c.Condition.Type == domain.ConditionBranch:
		return fmt.Sprintf(" [branch=%s]", c.Condition.Value)
	default:
		return ""
	}
}

func mermaidID(id string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(id)
}

func mermaidEscape(s string) string {
	return strings.NewReplacer("\"", "'", "\n", " ").Replace(s)
}
