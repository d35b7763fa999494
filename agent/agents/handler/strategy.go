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
	strategyModule = "STRATEGY"

	strategyTopK        = 5
	strategyTemperature = 0.6
	strategyMaxTokens   = 500
)

// StrategyHandler recommends teaching strategies grounded in the method
// index. Retrieval misses degrade to general advice, never to an error.
type StrategyHandler struct {
	completion contract.CompletionService
	embedding  contract.EmbeddingService
	searcher   contract.MethodSearcher
	prompts    prompt.PromptSet
	model      string
	cache      *cachex.Cache
}

func NewStrategyHandler(completion contract.CompletionService, embedding contract.EmbeddingService, searcher contract.MethodSearcher, prompts prompt.PromptSet, model string, cache *cachex.Cache) *StrategyHandler {
	return &StrategyHandler{
		completion: completion,
		embedding:  embedding,
		searcher:   searcher,
		prompts:    prompts,
		model:      model,
		cache:      cache,
	}
}

func (h *StrategyHandler) Category() contract.Category {
	return contract.CategoryStrategy
}

func (h *StrategyHandler) Run(ctx context.Context, input contract.HandlerInput) (contract.HandlerResult, error) {
	disability := ""
	if input.Student != nil {
		disability = input.Student.DisabilityType
	}

	// The cache check sits before the embed call so a hit spends nothing.
	// Teaching methods change rarely, so same task plus same disability
	// scope means the same advice.
	cacheKey := cachex.Key(strategyModule, input.Task+"|"+disability)
	if cached, ok := h.cache.Get(cacheKey); ok {
		input.Trace.Append(strategyModule,
			map[string]any{"action": "recommend_strategies", "task": tracex.Snippet(input.Task, 100), "cache_hit": true},
			map[string]any{"content": tracex.Snippet(cached, 200)},
		)
		return h.result(cached, input), nil
	}

	vector, err := h.embedding.Embed(ctx, input.Task)
	if err != nil {
		return contract.HandlerResult{}, fmt.Errorf("embed strategy query: %w", err)
	}

	// Narrow retrieval to methods tagged for the student's disability when
	// we know it; untagged queries search the whole index.
	var filter map[string]any
	if disability != "" {
		filter = map[string]any{"disability_type": disability}
	}

	matches, err := h.searcher.Query(ctx, vector, strategyTopK, filter)
	if err != nil {
		return contract.HandlerResult{}, fmt.Errorf("search methods: %w", err)
	}

	methods := "none found"
	if len(matches) > 0 {
		var blocks []string
		for _, m := range matches {
			name, _ := m.Metadata["name"].(string)
			if name == "" {
				name = m.ID
			}
			description, _ := m.Metadata["description"].(string)
			blocks = append(blocks, fmt.Sprintf("- %s (relevance %.2f): %s", name, m.Score, description))
		}
		methods = strings.Join(blocks, "\n")
	}

	profileText := "none"
	if input.Student != nil {
		profileText = formatProfile(input.Student)
	}

	systemPrompt := prompt.Render(h.prompts.StrategySystem, map[string]string{
		"methods": methods,
		"profile": profileText,
	})

	resp, err := h.completion.Complete(ctx, llmodx.CompletionRequest{
		Messages: []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(input.Task),
		},
		Temperature: strategyTemperature,
		MaxTokens:   strategyMaxTokens,
		Model:       h.model,
	})
	if err != nil {
		return contract.HandlerResult{}, fmt.Errorf("strategy answer: %w", err)
	}

	input.Trace.Append(strategyModule,
		map[string]any{"action": "recommend_strategies", "task": tracex.Snippet(input.Task, 100), "methods_found": len(matches)},
		map[string]any{"content": tracex.Snippet(resp.Content, 200)},
	)

	h.cache.Set(cacheKey, resp.Content)
	return h.result(resp.Content, input), nil
}

func (h *StrategyHandler) result(content string, input contract.HandlerInput) contract.HandlerResult {
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
