// Package presenter applies the final voice transform to agent output.
// Update confirmations bypass it so the confirmation text stays literal.
package presenter

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
)

const (
	moduleName = "ORCHESTRATOR"

	presentTemperature = 0.7
	presentMaxTokens   = 400
)

type Presenter struct {
	completion contract.CompletionService
	prompts    prompt.PromptSet
	model      string
	enabled    bool
}

func New(completion contract.CompletionService, prompts prompt.PromptSet, model string) *Presenter {
	return &Presenter{
		completion: completion,
		prompts:    prompts,
		model:      model,
		enabled:    true,
	}
}

// SetEnabled turns the voice transform on or off process-wide.
func (p *Presenter) SetEnabled(enabled bool) {
	p.enabled = enabled
}

// Present rewrites content in the assistant's voice. skipForUpdates makes
// it a passthrough so mutation confirmations reach the teacher verbatim.
func (p *Presenter) Present(ctx context.Context, query, content string, skipForUpdates bool, tr *tracex.Collector) (string, error) {
	if !p.enabled || skipForUpdates || strings.TrimSpace(content) == "" {
		return content, nil
	}

	userPrompt := prompt.Render(p.prompts.Presenter, map[string]string{
		"query":   query,
		"content": content,
	})

	resp, err := p.completion.Complete(ctx, llmodx.CompletionRequest{
		Messages:    []*schema.Message{schema.UserMessage(userPrompt)},
		Temperature: presentTemperature,
		MaxTokens:   presentMaxTokens,
		Model:       p.model,
	})
	if err != nil {
		return "", fmt.Errorf("presentation completion: %w", err)
	}

	tr.Append(moduleName,
		map[string]any{"action": "present_response", "query": tracex.Snippet(query, 50), "original_length": len(content)},
		map[string]any{"content": tracex.Snippet(resp.Content, 200)},
	)

	if strings.TrimSpace(resp.Content) == "" {
		return content, nil
	}
	return resp.Content, nil
}
