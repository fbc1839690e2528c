// Package yamlimport decodes a routine authored as YAML (the wire
// format the teacher's pkg/workflow.Definition used) into a
// domain.Routine, the engine's native in-memory representation.
package yamlimport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smilemakc/mbflow/internal/domain"
)

// RetryPolicy is the YAML-facing retry declaration on a node.
type RetryPolicy struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Backoff     string `yaml:"backoff"` // "<initial>,<max>,<multiplier>[,jitter]", e.g. "500ms,30s,2.0,jitter"
}

// Node is the YAML-facing declaration of one routine node.
type Node struct {
	ID       string         `yaml:"id"`
	Plugin   string         `yaml:"plugin"`
	Label    string         `yaml:"label"`
	Params   map[string]any `yaml:"params"`
	Retry    *RetryPolicy   `yaml:"retry"`
	Disabled bool           `yaml:"disabled"`
}

// Connection is the YAML-facing declaration of one edge between nodes.
//
// Type selects the edge kind: "default" (always follow, the zero
// value), "branch" (follow only when the source's branch output equals
// Value), or "loop" (a back-edge; MaxIterations and AccumulatorFields
// configure the loop).
type Connection struct {
	ID                string   `yaml:"id"`
	From              string   `yaml:"from"`
	FromHandle        string   `yaml:"from_handle"`
	To                string   `yaml:"to"`
	ToHandle          string   `yaml:"to_handle"`
	Type              string   `yaml:"type"`
	Value             string   `yaml:"value"`
	MaxIterations     int      `yaml:"max_iterations"`
	AccumulatorFields []string `yaml:"accumulator_fields"`
}

// Variable is the YAML-facing declaration of a routine-scoped variable.
type Variable struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// Definition is the top-level YAML document: a complete routine.
type Definition struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Nodes       []Node       `yaml:"nodes"`
	Connections []Connection `yaml:"connections"`
	Variables   []Variable   `yaml:"variables"`
	TriggerData any          `yaml:"trigger_data"`
}

// Decode parses YAML bytes into a Definition.
func Decode(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("yamlimport: parse: %w", err)
	}
	return &def, nil
}

// ToRoutine converts a parsed Definition into the engine's domain.Routine.
func (d *Definition) ToRoutine() (*domain.Routine, error) {
	r := &domain.Routine{
		ID:          d.ID,
		Name:        d.Name,
		TriggerData: d.TriggerData,
	}

	for _, n := range d.Nodes {
		retry, err := toRetryPolicy(n.Retry)
		if err != nil {
			return nil, fmt.Errorf("yamlimport: node %q: %w", n.ID, err)
		}
		r.Nodes = append(r.Nodes, domain.Node{
			ID:         n.ID,
			PluginID:   n.Plugin,
			Label:      n.Label,
			Parameters: n.Params,
			Disabled:   n.Disabled,
			Retry:      retry,
		})
	}

	for _, c := range d.Connections {
		cond, err := toCondition(c)
		if err != nil {
			return nil, fmt.Errorf("yamlimport: connection %q: %w", c.ID, err)
		}
		r.Connections = append(r.Connections, domain.Connection{
			ID:           c.ID,
			SourceNodeID: c.From,
			TargetNodeID: c.To,
			SourceHandle: c.FromHandle,
			TargetHandle: c.ToHandle,
			Condition:    cond,
		})
	}

	for _, v := range d.Variables {
		r.Variables = append(r.Variables, domain.Variable{Name: v.Name, Value: v.Value})
	}

	return r, nil
}

// Load is the convenience entry point: parse and convert in one call.
func Load(data []byte) (*domain.Routine, error) {
	def, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return def.ToRoutine()
}

func toCondition(c Connection) (*domain.Condition, error) {
	switch c.Type {
	case "", "default":
		return &domain.Condition{Type: domain.ConditionDefault}, nil
	case "branch":
		return &domain.Condition{Type: domain.ConditionBranch, Value: c.Value}, nil
	case "loop":
		max := c.MaxIterations
		if max <= 0 {
			max = 1
		}
		return &domain.Condition{
			Type: domain.ConditionLoop,
			Loop: &domain.LoopConfig{MaxIterations: max, AccumulatorFields: c.AccumulatorFields},
		}, nil
	default:
		return nil, fmt.Errorf("unknown connection type %q", c.Type)
	}
}

func toRetryPolicy(r *RetryPolicy) (*domain.RetryPolicy, error) {
	if r == nil || r.MaxAttempts <= 0 {
		return nil, nil
	}
	initial, maxDelay, multiplier, jitter, err := parseBackoff(r.Backoff)
	if err != nil {
		return nil, err
	}
	return &domain.RetryPolicy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Multiplier:   multiplier,
		Jitter:       jitter,
	}, nil
}

// parseBackoff reads "<initial>,<max>,<multiplier>[,jitter]", e.g.
// "500ms,30s,2.0,jitter". Any field may be empty to take its engine
// default.
func parseBackoff(spec string) (initial, maxDelay time.Duration, multiplier float64, jitter bool, err error) {
	if spec == "" {
		return 0, 0, 0, false, nil
	}
	parts := strings.Split(spec, ",")
	if len(parts) > 0 && parts[0] != "" {
		if initial, err = time.ParseDuration(parts[0]); err != nil {
			return 0, 0, 0, false, fmt.Errorf("invalid initial delay %q: %w", parts[0], err)
		}
	}
	if len(parts) > 1 && parts[1] != "" {
		if maxDelay, err = time.ParseDuration(parts[1]); err != nil {
			return 0, 0, 0, false, fmt.Errorf("invalid max delay %q: %w", parts[1], err)
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if multiplier, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return 0, 0, 0, false, fmt.Errorf("invalid multiplier %q: %w", parts[2], err)
		}
	}
	for _, p := range parts[min(3, len(parts)):] {
		if p == "jitter" {
			jitter = true
		}
	}
	return initial, maxDelay, multiplier, jitter, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
