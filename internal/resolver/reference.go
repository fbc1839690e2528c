package resolver

import (
	"strconv"
	"strings"
)

// Source is one of the four roots the expression grammar in spec §6.6
// allows: vars, nodes, trigger, execution.
type Source string

const (
	SourceVars      Source = "vars"
	SourceNodes     Source = "nodes"
	SourceTrigger   Source = "trigger"
	SourceExecution Source = "execution"
	SourceUnknown   Source = ""
)

// Segment is one "." component of a path, optionally bracket-indexed:
// `foo` or `foo[0]`.
type Segment struct {
	Name  string
	Index *int // non-nil when the segment carried a bracket index
}

// Reference is one `{{ source.path }}` occurrence, parsed and, for
// SourceNodes, split into NodeID/Port so the Validator can check
// upstream-ancestry and the Resolver can look up outputs.
type Reference struct {
	Raw     string // the full text between "{{" and "}}", trimmed
	Source  Source
	NodeID  string    // populated when Source == SourceNodes
	Port    string    // populated when Source == SourceNodes and a port segment is present
	Path    []Segment // remaining path after source (and, for nodes, node/port)
}

// parseSegment splits "name[12]" into ("name", 12) or leaves "name" bare.
func parseSegment(tok string) Segment {
	tok = strings.TrimSpace(tok)
	open := strings.IndexByte(tok, '[')
	if open < 0 || !strings.HasSuffix(tok, "]") {
		return Segment{Name: tok}
	}
	name := tok[:open]
	idxStr := tok[open+1 : len(tok)-1]
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return Segment{Name: tok}
	}
	return Segment{Name: name, Index: &idx}
}

// ParseReference parses the inner text of a `{{ ... }}` expression into a
// Reference. It never errors: an expression with no recognized source
// yields Source == SourceUnknown, which the Resolver treats as an
// unresolved warning token and the Validator flags as INVALID_NODE_REF
// or similar depending on context.
func ParseReference(raw string) Reference {
	trimmed := strings.TrimSpace(raw)
	parts := splitPath(trimmed)
	if len(parts) == 0 {
		return Reference{Raw: trimmed}
	}

	ref := Reference{Raw: trimmed}
	switch Source(parts[0]) {
	case SourceVars:
		ref.Source = SourceVars
		for _, p := range parts[1:] {
			ref.Path = append(ref.Path, parseSegment(p))
		}
	case SourceNodes:
		ref.Source = SourceNodes
		if len(parts) > 1 {
			ref.NodeID = parts[1]
		}
		if len(parts) > 2 {
			ref.Port = parts[2]
		}
		for _, p := range parts[3:] {
			ref.Path = append(ref.Path, parseSegment(p))
		}
	case SourceTrigger:
		ref.Source = SourceTrigger
		for _, p := range parts[1:] {
			ref.Path = append(ref.Path, parseSegment(p))
		}
	case SourceExecution:
		ref.Source = SourceExecution
		for _, p := range parts[1:] {
			ref.Path = append(ref.Path, parseSegment(p))
		}
	default:
		ref.Source = SourceUnknown
	}
	return ref
}

// splitPath splits "a.b[0].c" on top-level dots. Brackets never contain
// dots in this grammar, so a plain strings.Split suffices.
func splitPath(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}
