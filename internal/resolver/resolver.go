// Package resolver implements the Expression Resolver of spec §4.4: it
// substitutes `{{ source.path }}` occurrences inside node parameters
// against routine variables, upstream node outputs, trigger data, and
// execution metadata. Resolution is path-based, never arbitrary code.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
)

var exprPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// NodeOutputs resolves a node id to its latest outputs visible from the
// resolving context. Implementations apply the loop-stack closure rule
// from spec §4.6: look in the current context first, then walk outward.
type NodeOutputs interface {
	Lookup(nodeID string) (domain.PortSet, bool)
}

// ExecutionMeta backs the `execution.*` source.
type ExecutionMeta struct {
	ID        string
	RoutineID string
	StartedAt time.Time
}

// Context is everything a resolve pass reads from.
type Context struct {
	Vars      map[string]any
	Nodes     NodeOutputs
	Trigger   any
	Execution ExecutionMeta
}

// Warning records an unresolvable reference encountered during
// resolution; these never abort resolution (spec §4.4: "resolve to
// undefined without raising").
type Warning struct {
	Reference Reference
	Reason    string
}

// Resolver substitutes expressions inside arbitrary parameter trees.
type Resolver struct{}

// New returns a Resolver. It is stateless and safe for concurrent use.
func New() *Resolver {
	return &Resolver{}
}

// Resolve recursively substitutes expressions inside value. Objects and
// arrays are walked; primitives with no `{{` are returned unchanged.
func (r *Resolver) Resolve(value any, ctx Context) (any, []Warning) {
	var warnings []Warning
	out := r.resolveValue(value, ctx, &warnings)
	return out, warnings
}

func (r *Resolver) resolveValue(value any, ctx Context, warnings *[]Warning) any {
	switch v := value.(type) {
	case string:
		return r.resolveString(v, ctx, warnings)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = r.resolveValue(val, ctx, warnings)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = r.resolveValue(val, ctx, warnings)
		}
		return out
	default:
		return value
	}
}

// resolveString applies the type-preserving rule: a string that is
// exactly one `{{ ... }}` expression (no surrounding characters) yields
// the resolved value as-is, preserving its type. Otherwise every match
// is string-interpolated in place.
func (r *Resolver) resolveString(s string, ctx Context, warnings *[]Warning) any {
	matches := exprPattern.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		inner := s[matches[0][2]:matches[0][3]]
		ref := ParseReference(inner)
		value, ok := r.lookup(ref, ctx)
		if !ok {
			*warnings = append(*warnings, Warning{Reference: ref, Reason: "unresolved reference"})
			return nil
		}
		return value
	}

	result := make([]byte, 0, len(s))
	last := 0
	for _, m := range matches {
		result = append(result, s[last:m[0]]...)
		inner := s[m[2]:m[3]]
		ref := ParseReference(inner)
		value, ok := r.lookup(ref, ctx)
		if !ok {
			*warnings = append(*warnings, Warning{Reference: ref, Reason: "unresolved reference"})
			value = nil
		}
		result = append(result, []byte(stringify(value))...)
		last = m[1]
	}
	result = append(result, s[last:]...)
	return string(result)
}

// stringify renders a resolved value for string interpolation: objects
// as JSON, nil as empty string, primitives in their canonical form.
func stringify(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// lookup resolves one parsed Reference against ctx. Missing paths and
// unknown sources resolve to (nil, false) rather than raising, per
// spec §4.4/§9.
func (r *Resolver) lookup(ref Reference, ctx Context) (any, bool) {
	switch ref.Source {
	case SourceVars:
		if len(ref.Path) == 0 {
			return nil, false
		}
		v, ok := ctx.Vars[ref.Path[0].Name]
		if !ok {
			return nil, false
		}
		return walk(v, ref.Path[1:])

	case SourceNodes:
		if ref.NodeID == "" || ctx.Nodes == nil {
			return nil, false
		}
		ports, ok := ctx.Nodes.Lookup(ref.NodeID)
		if !ok {
			return nil, false
		}
		if ref.Port == "" {
			return ports.FirstDataByPort(), true
		}
		v := ports.FirstData(ref.Port)
		if v == nil {
			if _, has := ports[ref.Port]; !has {
				return nil, false
			}
		}
		return walk(v, ref.Path)

	case SourceTrigger:
		return walk(ctx.Trigger, ref.Path)

	case SourceExecution:
		if len(ref.Path) == 0 {
			return nil, false
		}
		switch ref.Path[0].Name {
		case "id":
			return ctx.Execution.ID, true
		case "routineId":
			return ctx.Execution.RoutineID, true
		case "startedAt":
			return ctx.Execution.StartedAt, true
		default:
			return nil, false
		}

	default:
		return nil, false
	}
}

// walk descends into v following path, indexing into maps by key and
// into slices by the segment's bracket index.
func walk(v any, path []Segment) (any, bool) {
	cur := v
	for _, seg := range path {
		if seg.Name != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[seg.Name]
			if !ok {
				return nil, false
			}
		}
		if seg.Index != nil {
			slice, ok := cur.([]any)
			if !ok || *seg.Index < 0 || *seg.Index >= len(slice) {
				return nil, false
			}
			cur = slice[*seg.Index]
		}
	}
	return cur, true
}

// ExtractReferences returns every `{{ ... }}` reference found inside
// value, recursing into objects and arrays. The Validator uses this to
// enforce upstream-only node references and defined-variable checks.
func ExtractReferences(value any) []Reference {
	var out []Reference
	collectReferences(value, &out)
	return out
}

func collectReferences(value any, out *[]Reference) {
	switch v := value.(type) {
	case string:
		for _, m := range exprPattern.FindAllStringSubmatch(v, -1) {
			if len(m) < 2 {
				continue
			}
			*out = append(*out, ParseReference(m[1]))
		}
	case map[string]any:
		for _, val := range v {
			collectReferences(val, out)
		}
	case []any:
		for _, val := range v {
			collectReferences(val, out)
		}
	}
}
