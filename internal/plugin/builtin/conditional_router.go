package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/smilemakc/mbflow/internal/plugin"
)

// Rule is one entry of a conditional-router's config.rules: if Condition
// evaluates truthy against the node's inputs, Branch is emitted.
type Rule struct {
	Branch    string
	Condition string
}

// ConditionalRouterPlugin evaluates config.rules in order and emits the
// first matching rule's branch value; config.defaultBranch is used when
// no rule matches.
type ConditionalRouterPlugin struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewConditionalRouterPlugin builds a ConditionalRouterPlugin.
func NewConditionalRouterPlugin() *ConditionalRouterPlugin {
	return &ConditionalRouterPlugin{cache: make(map[string]*vm.Program)}
}

func (p *ConditionalRouterPlugin) ID() string { return "conditional-router" }

func (p *ConditionalRouterPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{ID: "conditional-router", Name: "Conditional Router", Version: "1.0.0", Tags: []string{"control-flow"}}
}

func (p *ConditionalRouterPlugin) DefineSchemas() plugin.Schemas {
	return plugin.Schemas{
		Outputs: map[string]plugin.PortSchema{
			"branch": {Label: "Selected branch"},
		},
		Config: map[string]any{
			"rules":         map[string]any{"type": "array"},
			"defaultBranch": map[string]any{"type": "string"},
		},
	}
}

func (p *ConditionalRouterPlugin) Execute(_ context.Context, inputs map[string]any, config map[string]any, _ plugin.ExecutionContext, _ any) (plugin.Output, error) {
	rules, err := parseRules(config["rules"])
	if err != nil {
		return nil, fmt.Errorf("conditional-router: %w", err)
	}

	env := make(map[string]any, len(inputs))
	for k, v := range inputs {
		env[k] = v
	}
	env["inputs"] = inputs

	for _, rule := range rules {
		program, err := p.compile(rule.Condition, env)
		if err != nil {
			return nil, fmt.Errorf("conditional-router: compile rule %q: %w", rule.Branch, err)
		}
		result, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("conditional-router: evaluate rule %q: %w", rule.Branch, err)
		}
		if matched, _ := result.(bool); matched {
			return plugin.Output{"branch": rule.Branch}, nil
		}
	}

	if def, ok := config["defaultBranch"].(string); ok && def != "" {
		return plugin.Output{"branch": def}, nil
	}

	return nil, fmt.Errorf("conditional-router: no rule matched and no defaultBranch configured")
}

func (p *ConditionalRouterPlugin) compile(exprStr string, env map[string]any) (*vm.Program, error) {
	p.mu.RLock()
	if program, ok := p.cache[exprStr]; ok {
		p.mu.RUnlock()
		return program, nil
	}
	p.mu.RUnlock()

	program, err := expr.Compile(exprStr, expr.Env(env), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[exprStr] = program
	p.mu.Unlock()
	return program, nil
}

func parseRules(raw any) ([]Rule, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("config.rules must be an array")
	}
	rules := make([]Rule, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("rule %d is not an object", i)
		}
		branch, _ := m["branch"].(string)
		condition, _ := m["condition"].(string)
		if branch == "" || condition == "" {
			return nil, fmt.Errorf("rule %d missing branch or condition", i)
		}
		rules = append(rules, Rule{Branch: branch, Condition: condition})
	}
	return rules, nil
}
