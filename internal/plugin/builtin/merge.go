package builtin

import (
	"context"
	"fmt"

	"github.com/smilemakc/mbflow/internal/plugin"
)

// MergePlugin combines several named inputs into one result, following
// config.strategy: "firstAvailable" (first non-nil input, in the order
// config.sources lists) or "mergeAll" (an object keyed by source name).
type MergePlugin struct{}

// NewMergePlugin builds a MergePlugin.
func NewMergePlugin() *MergePlugin { return &MergePlugin{} }

func (p *MergePlugin) ID() string { return "merge" }

func (p *MergePlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{ID: "merge", Name: "Merge", Version: "1.0.0", Tags: []string{"data"}}
}

func (p *MergePlugin) DefineSchemas() plugin.Schemas {
	return plugin.Schemas{
		Outputs: map[string]plugin.PortSchema{
			"result": {Label: "Merged value"},
		},
		Config: map[string]any{
			"strategy": map[string]any{"type": "string", "enum": []string{"firstAvailable", "mergeAll"}},
			"sources":  map[string]any{"type": "array"},
		},
	}
}

func (p *MergePlugin) Execute(_ context.Context, inputs map[string]any, config map[string]any, _ plugin.ExecutionContext, _ any) (plugin.Output, error) {
	strategy, _ := config["strategy"].(string)
	if strategy == "" {
		strategy = "firstAvailable"
	}

	sources, err := stringSlice(config["sources"])
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if len(sources) == 0 {
		for k := range inputs {
			sources = append(sources, k)
		}
	}

	switch strategy {
	case "firstAvailable":
		for _, src := range sources {
			if v, ok := inputs[src]; ok && v != nil {
				return plugin.Output{"result": v}, nil
			}
		}
		return plugin.Output{"result": nil}, nil

	case "mergeAll":
		merged := make(map[string]any, len(sources))
		for _, src := range sources {
			merged[src] = inputs[src]
		}
		return plugin.Output{"result": merged}, nil

	default:
		return nil, fmt.Errorf("merge: unknown strategy %q", strategy)
	}
}

func stringSlice(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("config.sources must be an array")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("config.sources entries must be strings")
		}
		out = append(out, s)
	}
	return out, nil
}
