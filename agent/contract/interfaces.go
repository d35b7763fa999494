package contract

import (
	"context"

	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
	pineconex "github.com/tanpawarit/co-teacher-agent/pkg/pinecone"
)

// CompletionService runs chat completions. Implemented by pkg/llmod;
// faked in tests.
type CompletionService interface {
	Complete(ctx context.Context, req llmodx.CompletionRequest) (llmodx.Completion, error)
}

// EmbeddingService turns text into a vector for method retrieval.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// MethodSearcher queries the teaching-method index. Implemented by
// pkg/pinecone.
type MethodSearcher interface {
	Query(ctx context.Context, embedding []float64, topK int, filter map[string]any) ([]pineconex.Match, error)
}

// TaskHandler executes plan steps for one category.
type TaskHandler interface {
	Category() Category
	Run(ctx context.Context, input HandlerInput) (HandlerResult, error)
}
