// Package planner turns a teacher query into an ExecutionPlan via one LLM
// call. Malformed or invalid plans never propagate; every parse or
// validation failure falls back to a single strategy step, so the executor
// always receives a valid plan.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
	logx "github.com/tanpawarit/co-teacher-agent/pkg/logger"
)

const (
	moduleName = "PLANNER"

	planTemperature = 0.3
	planMaxTokens   = 400
)

const contextBlock = `- Recently discussed student: {recent_student}
- History: {history}
- Categories already used: {previous_categories}
- Class-wide discussion: {class_wide}
- Students mentioned: {mentioned_students}`

// Planner decomposes queries into execution plans.
type Planner struct {
	completion contract.CompletionService
	prompts    prompt.PromptSet
	model      string
	log        zerolog.Logger
}

// New builds a planner. model may be empty to use the client's default.
func New(completion contract.CompletionService, prompts prompt.PromptSet, model string) *Planner {
	return &Planner{
		completion: completion,
		prompts:    prompts,
		model:      model,
		log:        logx.Component("planner"),
	}
}

// CreatePlan asks the model for a step decomposition. It returns an error
// only when the completion call itself fails; any malformed model output
// yields the fallback plan instead.
func (p *Planner) CreatePlan(ctx context.Context, query string, convCtx contract.ConversationContext, tr *tracex.Collector) (contract.ExecutionPlan, error) {
	// Fresh conversations keep the short prompt; the context block is only
	// rendered when something non-trivial was extracted.
	contextText := "none"
	if !convCtx.IsEmpty() {
		contextText = prompt.Render(contextBlock, map[string]string{
			"recent_student":      orDefault(convCtx.RecentStudent, "unknown"),
			"history":             orDefault(convCtx.HistoryDigest, "no prior messages"),
			"previous_categories": joinCategories(convCtx.PreviousCategories),
			"class_wide":          strconv.FormatBool(convCtx.ClassWide),
			"mentioned_students":  orDefault(strings.Join(convCtx.MentionedStudents, ", "), "none"),
		})
	}
	userPrompt := prompt.Render(p.prompts.Planner, map[string]string{
		"query":   query,
		"context": contextText,
	})

	resp, err := p.completion.Complete(ctx, llmodx.CompletionRequest{
		Messages:    []*schema.Message{schema.UserMessage(userPrompt)},
		Temperature: planTemperature,
		MaxTokens:   planMaxTokens,
		Model:       p.model,
	})
	if err != nil {
		return contract.ExecutionPlan{}, fmt.Errorf("planner completion: %w", err)
	}

	tr.Append(moduleName,
		map[string]any{"action": "create_plan", "query": tracex.Snippet(query, 100)},
		map[string]any{"content": tracex.Snippet(resp.Content, 300), "prompt_tokens": resp.PromptTokens, "completion_tokens": resp.CompletionTokens},
	)

	plan, err := parsePlan(resp.Content)
	if err != nil {
		p.log.Debug().Err(err).Msg("plan rejected, using fallback")
		return FallbackPlan(query), nil
	}
	return plan, nil
}

// FallbackPlan is the guaranteed-valid plan used when the model's output
// cannot be trusted: one strategy step carrying the raw query.
func FallbackPlan(query string) contract.ExecutionPlan {
	return contract.ExecutionPlan{
		Steps: []contract.PlanStep{{
			Index:     0,
			Category:  contract.CategoryStrategy,
			Task:      query,
			DependsOn: nil,
		}},
		Fallback: true,
	}
}

type rawPlan struct {
	Steps       []rawStep `json:"steps"`
	StudentName string    `json:"student_name"`
}

type rawStep struct {
	StepIndex int    `json:"step_index"`
	Agent     string `json:"agent"`
	Task      string `json:"task"`
	DependsOn []int  `json:"depends_on"`
}

func parsePlan(content string) (contract.ExecutionPlan, error) {
	cleaned := stripCodeFence(content)

	var raw rawPlan
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return contract.ExecutionPlan{}, fmt.Errorf("%w: %v", contract.ErrSchemaViolation, err)
	}
	if len(raw.Steps) == 0 {
		return contract.ExecutionPlan{}, fmt.Errorf("%w: plan has no steps", contract.ErrSchemaViolation)
	}

	steps := make([]contract.PlanStep, 0, len(raw.Steps))
	for i, rs := range raw.Steps {
		category, err := contract.ParseCategory(rs.Agent)
		if err != nil {
			return contract.ExecutionPlan{}, fmt.Errorf("%w: %v", contract.ErrSchemaViolation, err)
		}
		if rs.StepIndex != i {
			return contract.ExecutionPlan{}, fmt.Errorf("%w: step_index %d at position %d", contract.ErrSchemaViolation, rs.StepIndex, i)
		}
		if strings.TrimSpace(rs.Task) == "" {
			return contract.ExecutionPlan{}, fmt.Errorf("%w: step %d has no task", contract.ErrSchemaViolation, i)
		}
		// Dependencies must point strictly backwards. The executor trusts
		// index order as topological order and does no cycle detection.
		for _, dep := range rs.DependsOn {
			if dep < 0 || dep >= rs.StepIndex {
				return contract.ExecutionPlan{}, fmt.Errorf("%w: step %d depends on step %d", contract.ErrSchemaViolation, rs.StepIndex, dep)
			}
		}
		steps = append(steps, contract.PlanStep{
			Index:     rs.StepIndex,
			Category:  category,
			Task:      rs.Task,
			DependsOn: rs.DependsOn,
		})
	}

	return contract.ExecutionPlan{
		Steps:       steps,
		StudentName: strings.TrimSpace(raw.StudentName),
	}, nil
}

func stripCodeFence(content string) string {
	cleaned := strings.TrimSpace(content)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	parts := strings.SplitN(cleaned, "```", 3)
	if len(parts) < 2 {
		return cleaned
	}
	cleaned = parts[1]
	cleaned = strings.TrimPrefix(cleaned, "json")
	return strings.TrimSpace(cleaned)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func joinCategories(categories []contract.Category) string {
	if len(categories) == 0 {
		return "none"
	}
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
