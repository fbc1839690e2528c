package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/smilemakc/mbflow/internal/plugin"
)

// TransformPlugin evaluates a user-authored expr-lang expression against
// the node's inputs, with its own compiled-program cache mirroring the
// engine's expression evaluator.
type TransformPlugin struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewTransformPlugin builds a TransformPlugin with an empty compile cache.
func NewTransformPlugin() *TransformPlugin {
	return &TransformPlugin{cache: make(map[string]*vm.Program)}
}

func (p *TransformPlugin) ID() string { return "transform" }

func (p *TransformPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{ID: "transform", Name: "Transform", Version: "1.0.0", Tags: []string{"data"}}
}

func (p *TransformPlugin) DefineSchemas() plugin.Schemas {
	return plugin.Schemas{
		Outputs: map[string]plugin.PortSchema{
			"result": {Label: "Transformed value"},
		},
		Config: map[string]any{
			"expression": map[string]any{"type": "string"},
		},
	}
}

func (p *TransformPlugin) Execute(_ context.Context, inputs map[string]any, config map[string]any, _ plugin.ExecutionContext, _ any) (plugin.Output, error) {
	exprStr, _ := config["expression"].(string)
	if exprStr == "" {
		return nil, fmt.Errorf("transform: config.expression is required")
	}

	env := make(map[string]any, len(inputs)+1)
	for k, v := range inputs {
		env[k] = v
	}
	env["inputs"] = inputs

	program, err := p.compile(exprStr, env)
	if err != nil {
		return nil, fmt.Errorf("transform: compile expression: %w", err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("transform: evaluate expression: %w", err)
	}

	return plugin.Output{"result": result}, nil
}

func (p *TransformPlugin) compile(exprStr string, env map[string]any) (*vm.Program, error) {
	p.mu.RLock()
	if program, ok := p.cache[exprStr]; ok {
		p.mu.RUnlock()
		return program, nil
	}
	p.mu.RUnlock()

	program, err := expr.Compile(exprStr, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[exprStr] = program
	p.mu.Unlock()
	return program, nil
}
