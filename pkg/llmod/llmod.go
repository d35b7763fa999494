// Package llmod is the client for the LLMod.ai OpenAI-compatible API.
// Chat completions and embeddings both flow through the shared budget meter,
// so a request that would cross the spend ceiling fails before the network
// call is made.
package llmod

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	budgetx "github.com/tanpawarit/co-teacher-agent/pkg/budget"
	logx "github.com/tanpawarit/co-teacher-agent/pkg/logger"
)

var (
	// ErrTransport covers network failures and non-2xx responses from the
	// completion/embedding endpoint. Not retried at this layer.
	ErrTransport = errors.New("llm transport failure")

	// ErrBudgetExceeded is returned when a call would cross the process-wide
	// spend ceiling. Callers must not attempt further LLM calls for the
	// current request after seeing it.
	ErrBudgetExceeded = budgetx.ErrExceeded
)

type Config struct {
	BaseURL        string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.llmod.ai/v1"`
	APIKey         string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	ChatModel      string        `envconfig:"CHAT_MODEL" split_words:"true" default:"gpt-4o-mini"`
	EmbeddingModel string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	Timeout        time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`

	// Approximate pricing per 1K tokens, used for pre-call estimates and
	// post-call accounting when the API does not report cost.
	CostPer1KPrompt     float64 `envconfig:"COST_PER_1K_PROMPT" split_words:"true" default:"0.00015"`
	CostPer1KCompletion float64 `envconfig:"COST_PER_1K_COMPLETION" split_words:"true" default:"0.0006"`
	CostPer1KEmbedding  float64 `envconfig:"COST_PER_1K_EMBEDDING" split_words:"true" default:"0.00002"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("llmod api key is required")
	}
	if strings.TrimSpace(c.ChatModel) == "" {
		return errors.New("llmod chat model is required")
	}
	return nil
}

// CompletionRequest is one chat completion call. Model overrides the
// configured default when non-empty.
type CompletionRequest struct {
	Messages    []*schema.Message
	Temperature float32
	MaxTokens   int
	Model       string
}

// Completion is the result of a chat completion call.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Client talks to the LLMod.ai API with budget enforcement.
type Client struct {
	api   *openaisdk.Client
	cfg   Config
	meter *budgetx.Meter
	log   zerolog.Logger
}

func NewClient(cfg Config, meter *budgetx.Meter) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, errors.New("budget meter is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}

	api := openaisdk.NewClient(opts...)
	return &Client{
		api:   &api,
		cfg:   cfg,
		meter: meter,
		log:   logx.Component("llmod"),
	}, nil
}

// Complete runs one chat completion. It fails with ErrBudgetExceeded before
// the network call when the estimate would cross the ceiling, and with
// ErrTransport on any API failure.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if len(req.Messages) == 0 {
		return Completion{}, errors.New("completion request has no messages")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 400
	}

	promptChars := 0
	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		promptChars += len(m.Content)
		switch m.Role {
		case schema.System:
			msgs = append(msgs, openaisdk.SystemMessage(m.Content))
		case schema.Assistant:
			msgs = append(msgs, openaisdk.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openaisdk.UserMessage(m.Content))
		}
	}

	estimated := c.estimateCost(promptChars/4, maxTokens)
	if err := c.meter.Reserve(estimated); err != nil {
		return Completion{}, err
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.cfg.ChatModel
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(model),
		Messages:    msgs,
		Temperature: openaisdk.Float(float64(req.Temperature)),
		MaxTokens:   openaisdk.Int(int64(maxTokens)),
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("%w: chat completion: %v", ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%w: chat completion returned no choices", ErrTransport)
	}

	out := Completion{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	out.CostUSD = c.estimateCost(out.PromptTokens, out.CompletionTokens)
	c.meter.Spend(out.CostUSD)

	c.log.Debug().
		Str("model", model).
		Int("prompt_tokens", out.PromptTokens).
		Int("completion_tokens", out.CompletionTokens).
		Float64("cost_usd", out.CostUSD).
		Msg("chat completion")

	return out, nil
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("embedding input is empty")
	}

	estimated := float64(len(text)/4) / 1000 * c.cfg.CostPer1KEmbedding
	if err := c.meter.Reserve(estimated); err != nil {
		return nil, err
	}

	resp, err := c.api.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(c.cfg.EmbeddingModel),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", ErrTransport, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: embedding returned no data", ErrTransport)
	}

	cost := float64(resp.Usage.PromptTokens) / 1000 * c.cfg.CostPer1KEmbedding
	c.meter.Spend(cost)

	return resp.Data[0].Embedding, nil
}

func (c *Client) estimateCost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*c.cfg.CostPer1KPrompt +
		float64(completionTokens)/1000*c.cfg.CostPer1KCompletion
}
