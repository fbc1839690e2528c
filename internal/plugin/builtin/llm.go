package builtin

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smilemakc/mbflow/internal/plugin"
)

// LLMPlugin sends a single-turn chat completion request to OpenAI. The
// access token comes from the credential the node maps under alias
// "openai"; config.prompt is resolved before dispatch, so it already
// carries substituted expression values.
type LLMPlugin struct{}

// NewLLMPlugin builds an LLMPlugin.
func NewLLMPlugin() *LLMPlugin { return &LLMPlugin{} }

func (p *LLMPlugin) ID() string { return "llm" }

func (p *LLMPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		ID: "llm", Name: "LLM Completion", Version: "1.0.0", Tags: []string{"ai"},
		CredentialRequirements: []plugin.CredentialRequirement{{ID: "openai", Alias: "openai", Required: true}},
	}
}

func (p *LLMPlugin) DefineSchemas() plugin.Schemas {
	return plugin.Schemas{
		Inputs: map[string]plugin.PortSchema{
			"prompt": {Label: "Prompt override", Schema: map[string]any{"type": "string"}},
		},
		Outputs: map[string]plugin.PortSchema{
			"text":         {Label: "Completion text", Schema: map[string]any{"type": "string"}},
			"finishReason": {Label: "Finish reason", Schema: map[string]any{"type": "string"}},
		},
		Config: map[string]any{
			"model":       map[string]any{"type": "string"},
			"prompt":      map[string]any{"type": "string"},
			"maxTokens":   map[string]any{"type": "integer"},
			"temperature": map[string]any{"type": "number"},
		},
	}
}

func (p *LLMPlugin) Execute(ctx context.Context, inputs map[string]any, config map[string]any, execCtx plugin.ExecutionContext, _ any) (plugin.Output, error) {
	cred, ok := execCtx.Credentials["openai"]
	if !ok {
		return nil, fmt.Errorf("llm: no credential mapped under alias \"openai\"")
	}
	apiKey, _ := cred["access_token"].(string)
	if apiKey == "" {
		apiKey, _ = cred["api_key"].(string)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("llm: credential carries no access_token or api_key")
	}

	prompt, _ := config["prompt"].(string)
	if override, ok := inputs["prompt"].(string); ok && override != "" {
		prompt = override
	}
	if prompt == "" {
		return nil, fmt.Errorf("llm: no prompt resolved from config or inputs")
	}

	model, _ := config["model"].(string)
	if model == "" {
		model = openai.GPT4o
	}
	maxTokens, _ := config["maxTokens"].(int)
	temperature, _ := config["temperature"].(float64)

	client := openai.NewClient(apiKey)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               model,
		MaxCompletionTokens: maxTokens,
		Temperature:         float32(temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: openai returned no choices")
	}

	return plugin.Output{
		"text":         resp.Choices[0].Message.Content,
		"finishReason": string(resp.Choices[0].FinishReason),
	}, nil
}
