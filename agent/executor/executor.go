// Package executor runs execution plans step by step. Steps run strictly
// in index order; the planner guarantees dependencies only point backwards,
// so index order is a valid topological order.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/co-teacher-agent/agent/agents/handler"
	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	"github.com/tanpawarit/co-teacher-agent/agent/presenter"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
	logx "github.com/tanpawarit/co-teacher-agent/pkg/logger"
)

const (
	moduleName = "EXECUTOR"

	synthesisTemperature = 0.7
	synthesisMaxTokens   = 600

	// Only the first few entries of each profile list go into step input;
	// full lists belong to the profile handler, not every step.
	profileDigestItems = 3
)

// Request carries the per-request inputs that are not part of the plan.
type Request struct {
	OriginalQuery string
	TeacherID     string
	Student       *storex.StudentProfile
	AllStudents   []storex.StudentProfile
}

type Executor struct {
	registry   *handler.Registry
	completion contract.CompletionService
	presenter  *presenter.Presenter
	prompts    prompt.PromptSet
	log        zerolog.Logger
}

func New(registry *handler.Registry, completion contract.CompletionService, pres *presenter.Presenter, prompts prompt.PromptSet) *Executor {
	return &Executor{
		registry:   registry,
		completion: completion,
		presenter:  pres,
		prompts:    prompts,
		log:        logx.Component("executor"),
	}
}

// Execute runs every step of the plan in order and produces the final
// response. Handler errors are not caught here; they abort the whole plan
// and propagate to the orchestrator's boundary.
func (e *Executor) Execute(ctx context.Context, plan contract.ExecutionPlan, req Request, tr *tracex.Collector) (contract.ExecutionResult, error) {
	results := make([]*contract.HandlerResult, len(plan.Steps))

	out := contract.ExecutionResult{StudentName: plan.StudentName}
	markCategory := func(c contract.Category) {
		for _, used := range out.CategoriesUsed {
			if used == c {
				return
			}
		}
		out.CategoriesUsed = append(out.CategoriesUsed, c)
	}

	for i, step := range plan.Steps {
		h, ok := e.registry.Handler(step.Category)
		if !ok {
			// Planner drift, not an error. The step is skipped and the
			// rest of the plan still runs.
			e.log.Warn().Str("category", string(step.Category)).Msg("no handler for step, skipping")
			continue
		}

		input := contract.HandlerInput{
			Task:          e.enrichTask(step, plan, results, req.Student),
			OriginalQuery: req.OriginalQuery,
			StudentName:   plan.StudentName,
			Student:       req.Student,
			AllStudents:   req.AllStudents,
			TeacherID:     req.TeacherID,
			Trace:         tr,
		}

		result, err := h.Run(ctx, input)
		if err != nil {
			return contract.ExecutionResult{}, fmt.Errorf("step %d (%s): %w", i, step.Category, err)
		}
		results[i] = &result

		markCategory(step.Category)
		if result.StudentName != "" {
			out.StudentName = result.StudentName
		}
		if len(result.UpdatesApplied) > 0 {
			out.UpdatesApplied = result.UpdatesApplied
		}

		// A teacher stating an observation wants a plain acknowledgment,
		// not a strategy lecture from speculative later steps.
		if step.Category == contract.CategoryProfile &&
			result.ActionTaken == contract.ActionUpdateApplied &&
			!asksQuestion(req.OriginalQuery) {
			final, err := e.presenter.Present(ctx, req.OriginalQuery, result.Response, true, tr)
			if err != nil {
				return contract.ExecutionResult{}, err
			}
			out.Response = final
			return out, nil
		}
	}

	raw := ""
	if plan.IsMultiStep() {
		synthesized, err := e.synthesize(ctx, plan, results, req.OriginalQuery, tr)
		if err != nil {
			return contract.ExecutionResult{}, err
		}
		raw = synthesized
	} else if len(plan.Steps) == 1 && results[0] != nil {
		raw = results[0].Response
	}

	// Update confirmations stay literal even at the end of a multi-step
	// plan.
	skipPresentation := false
	if n := len(results); n > 0 {
		last := results[n-1]
		skipPresentation = last != nil && last.ActionTaken == contract.ActionUpdateApplied
	}

	final, err := e.presenter.Present(ctx, req.OriginalQuery, raw, skipPresentation, tr)
	if err != nil {
		return contract.ExecutionResult{}, err
	}
	out.Response = final
	out.Presented = !skipPresentation
	return out, nil
}

// enrichTask appends dependency outputs and a compact profile digest to the
// step's task string.
func (e *Executor) enrichTask(step contract.PlanStep, plan contract.ExecutionPlan, results []*contract.HandlerResult, student *storex.StudentProfile) string {
	if len(step.DependsOn) == 0 && student == nil {
		return step.Task
	}

	parts := []string{step.Task}
	for _, dep := range step.DependsOn {
		if dep < 0 || dep >= len(results) || results[dep] == nil {
			continue
		}
		if results[dep].Response == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("\n--- Context from %s (step %d) ---\n%s",
			plan.Steps[dep].Category, dep, results[dep].Response))
	}

	if len(step.DependsOn) > 0 && student != nil {
		if digest := profileDigest(student); digest != "" {
			parts = append(parts, fmt.Sprintf("\n--- Student profile (%s) ---\n%s", student.Name, digest))
		}
	}

	return strings.Join(parts, "\n")
}

func profileDigest(student *storex.StudentProfile) string {
	var lines []string
	if student.DisabilityType != "" {
		lines = append(lines, "Disability: "+student.DisabilityType)
	}
	if student.LearningStyle != "" {
		lines = append(lines, "Learning style: "+student.LearningStyle)
	}
	if s := firstN(student.Triggers, profileDigestItems); s != "" {
		lines = append(lines, "Triggers: "+s)
	}
	if s := firstN(student.SuccessfulMethods, profileDigestItems); s != "" {
		lines = append(lines, "What works: "+s)
	}
	if s := firstN(student.FailedMethods, profileDigestItems); s != "" {
		lines = append(lines, "Avoid: "+s)
	}
	return strings.Join(lines, "\n")
}

func firstN(items []string, n int) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, ", ")
}

func (e *Executor) synthesize(ctx context.Context, plan contract.ExecutionPlan, results []*contract.HandlerResult, query string, tr *tracex.Collector) (string, error) {
	var blocks []string
	for i, step := range plan.Steps {
		text := "(no response)"
		if results[i] != nil && results[i].Response != "" {
			text = results[i].Response
		}
		blocks = append(blocks, fmt.Sprintf("[%s - step %d]\n%s", step.Category, i, text))
	}

	userPrompt := prompt.Render(e.prompts.Synthesis, map[string]string{
		"query":   query,
		"results": strings.Join(blocks, "\n\n"),
	})

	resp, err := e.completion.Complete(ctx, llmodx.CompletionRequest{
		Messages:    []*schema.Message{schema.UserMessage(userPrompt)},
		Temperature: synthesisTemperature,
		MaxTokens:   synthesisMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis completion: %w", err)
	}

	tr.Append(moduleName,
		map[string]any{"action": "synthesize_plan_results", "query": tracex.Snippet(query, 100), "num_steps": len(plan.Steps)},
		map[string]any{"content": tracex.Snippet(resp.Content, 200)},
	)

	return resp.Content, nil
}

// asksQuestion reports whether the query reads as a question rather than a
// shared observation. Known heuristic, not a guarantee.
func asksQuestion(query string) bool {
	if strings.Contains(query, "?") {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, starter := range []string{"how", "what", "can you", "could you", "help me"} {
		if strings.HasPrefix(lower, starter) {
			return true
		}
	}
	return false
}
