package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	cachex "github.com/tanpawarit/co-teacher-agent/agent/cache"
	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
)

const (
	documentModule = "DOCUMENT"

	documentTemperature = 0.6
	documentMaxTokens   = 700
)

// DocumentHandler drafts administrative documents: parent letters,
// incident reports, IEP summaries.
type DocumentHandler struct {
	completion contract.CompletionService
	prompts    prompt.PromptSet
	model      string
	cache      *cachex.Cache
}

func NewDocumentHandler(completion contract.CompletionService, prompts prompt.PromptSet, model string, cache *cachex.Cache) *DocumentHandler {
	return &DocumentHandler{completion: completion, prompts: prompts, model: model, cache: cache}
}

func (h *DocumentHandler) Category() contract.Category {
	return contract.CategoryDocument
}

func (h *DocumentHandler) Run(ctx context.Context, input contract.HandlerInput) (contract.HandlerResult, error) {
	// The task already carries dependency outputs from earlier steps, so the
	// supporting material is just the student record; anything more would
	// reach the model twice.
	materialText := "none"
	if input.Student != nil {
		materialText = "Student:\n" + formatProfile(input.Student)
	}

	kind := documentKind(input.Task)

	// The task string embeds dependency context and the material embeds the
	// profile, so the key covers everything that shapes the draft.
	cacheKey := cachex.Key(documentModule, kind+"|"+input.Task+"|"+materialText)
	if cached, ok := h.cache.Get(cacheKey); ok {
		input.Trace.Append(documentModule,
			map[string]any{"action": "draft_document", "kind": kind, "cache_hit": true},
			map[string]any{"content": tracex.Snippet(cached, 200)},
		)
		return h.result(cached, input), nil
	}

	systemPrompt := prompt.Render(h.prompts.DocumentSystem, map[string]string{
		"kind":     kind,
		"material": materialText,
	})

	resp, err := h.completion.Complete(ctx, llmodx.CompletionRequest{
		Messages: []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(input.Task),
		},
		Temperature: documentTemperature,
		MaxTokens:   documentMaxTokens,
		Model:       h.model,
	})
	if err != nil {
		return contract.HandlerResult{}, fmt.Errorf("document draft: %w", err)
	}

	input.Trace.Append(documentModule,
		map[string]any{"action": "draft_document", "kind": kind, "task": tracex.Snippet(input.Task, 100)},
		map[string]any{"content": tracex.Snippet(resp.Content, 200)},
	)

	h.cache.Set(cacheKey, resp.Content)
	return h.result(resp.Content, input), nil
}

func (h *DocumentHandler) result(content string, input contract.HandlerInput) contract.HandlerResult {
	result := contract.HandlerResult{
		Response:    content,
		ActionTaken: contract.ActionAnswered,
	}
	if input.Student != nil {
		result.StudentID = input.Student.ID
		result.StudentName = input.Student.Name
	}
	return result
}

// documentKind classifies what the teacher wants drafted. Checked in order
// of specificity; IEP language beats the generic report words it often
// appears next to.
func documentKind(task string) string {
	lower := strings.ToLower(task)
	switch {
	case strings.Contains(lower, "iep"):
		return "IEP progress summary"
	case strings.Contains(lower, "incident"):
		return "incident report"
	case strings.Contains(lower, "parent") || strings.Contains(lower, "email") || strings.Contains(lower, "letter"):
		return "parent communication"
	case strings.Contains(lower, "summary") || strings.Contains(lower, "daily") || strings.Contains(lower, "weekly"):
		return "progress summary"
	default:
		return "general document"
	}
}
