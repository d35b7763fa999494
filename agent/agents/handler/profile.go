package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
	logx "github.com/tanpawarit/co-teacher-agent/pkg/logger"
)

const (
	profileModule = "PROFILE"

	// Structured extraction wants near-deterministic output.
	extractTemperature = 0.1
	extractMaxTokens   = 500

	answerTemperature = 0.5
	answerMaxTokens   = 400
)

const rephraseResponse = "I had trouble understanding that request. Could you rephrase what you'd like to update?"

// ProfileHandler answers questions about a student's record and applies
// updates the teacher reports in passing.
type ProfileHandler struct {
	completion contract.CompletionService
	students   storex.StudentStore
	prompts    prompt.PromptSet
	model      string
	log        zerolog.Logger
}

func NewProfileHandler(completion contract.CompletionService, students storex.StudentStore, prompts prompt.PromptSet, model string) *ProfileHandler {
	return &ProfileHandler{
		completion: completion,
		students:   students,
		prompts:    prompts,
		model:      model,
		log:        logx.Component("profile-handler"),
	}
}

func (h *ProfileHandler) Category() contract.Category {
	return contract.CategoryProfile
}

func (h *ProfileHandler) Run(ctx context.Context, input contract.HandlerInput) (contract.HandlerResult, error) {
	if input.Student == nil {
		return h.notFound(ctx, input)
	}

	// Every profile task first checks whether the teacher is reporting new
	// information; "Alex had a meltdown during the fire drill" is an update
	// even though it reads like small talk.
	patch, parseOK, err := h.extractPatch(ctx, input)
	if err != nil {
		return contract.HandlerResult{}, err
	}
	if !parseOK {
		return contract.HandlerResult{
			Response:    rephraseResponse,
			ActionTaken: contract.ActionAnswered,
			StudentID:   input.Student.ID,
			StudentName: input.Student.Name,
		}, nil
	}

	if patch.IsEmpty() {
		return h.answerQuery(ctx, input)
	}

	if dupes := duplicateAdditions(patch, input.Student); len(dupes) > 0 && onlyAdditions(patch) && len(dupes) == additionCount(patch) {
		return contract.HandlerResult{
			Response: fmt.Sprintf("%s is already in %s's profile. Anything else you'd like me to update?",
				quoteJoin(dupes), input.Student.Name),
			ActionTaken: contract.ActionAlreadyExists,
			StudentID:   input.Student.ID,
			StudentName: input.Student.Name,
		}, nil
	}

	updated, err := h.students.ApplyProfileUpdate(ctx, input.Student.ID, patch)
	if err != nil {
		return contract.HandlerResult{}, fmt.Errorf("apply profile update: %w", err)
	}

	summary := patch.Summary()
	response := fmt.Sprintf("Got it, I updated %s's profile:\n- %s", updated.Name, strings.Join(summary, "\n- "))
	return contract.HandlerResult{
		Response:       response,
		ActionTaken:    contract.ActionUpdateApplied,
		StudentID:      updated.ID,
		StudentName:    updated.Name,
		UpdatesApplied: summary,
	}, nil
}

// extractPatch asks the model whether the task carries profile changes.
// parseOK is false when the model's JSON is unusable; that is a recoverable
// outcome, not an error.
func (h *ProfileHandler) extractPatch(ctx context.Context, input contract.HandlerInput) (storex.ProfilePatch, bool, error) {
	statement := input.OriginalQuery
	if strings.TrimSpace(statement) == "" {
		statement = input.Task
	}
	userPrompt := prompt.Render(h.prompts.ProfileUpdate, map[string]string{
		"statement": statement,
	})

	resp, err := h.completion.Complete(ctx, llmodx.CompletionRequest{
		Messages: []*schema.Message{
			schema.SystemMessage(prompt.Render(h.prompts.ProfileSystem, map[string]string{"profile": formatProfile(input.Student)})),
			schema.UserMessage(userPrompt),
		},
		Temperature: extractTemperature,
		MaxTokens:   extractMaxTokens,
		Model:       h.model,
	})
	if err != nil {
		return storex.ProfilePatch{}, false, fmt.Errorf("update extraction: %w", err)
	}

	input.Trace.Append(profileModule,
		map[string]any{"action": "extract_update_info", "student": input.Student.Name, "query": tracex.Snippet(statement, 100)},
		map[string]any{"content": tracex.Snippet(resp.Content, 200)},
	)

	var patch storex.ProfilePatch
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &patch); err != nil {
		h.log.Debug().Err(err).Msg("update extraction produced invalid json")
		return storex.ProfilePatch{}, false, nil
	}
	return patch, true, nil
}

func (h *ProfileHandler) answerQuery(ctx context.Context, input contract.HandlerInput) (contract.HandlerResult, error) {
	resp, err := h.completion.Complete(ctx, llmodx.CompletionRequest{
		Messages: []*schema.Message{
			schema.SystemMessage(prompt.Render(h.prompts.ProfileSystem, map[string]string{"profile": formatProfile(input.Student)})),
			schema.UserMessage(input.Task),
		},
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
		Model:       h.model,
	})
	if err != nil {
		return contract.HandlerResult{}, fmt.Errorf("profile answer: %w", err)
	}

	input.Trace.Append(profileModule,
		map[string]any{"action": "answer_profile_query", "student": input.Student.Name, "task": tracex.Snippet(input.Task, 100)},
		map[string]any{"content": tracex.Snippet(resp.Content, 200)},
	)

	return contract.HandlerResult{
		Response:    resp.Content,
		ActionTaken: contract.ActionAnswered,
		StudentID:   input.Student.ID,
		StudentName: input.Student.Name,
	}, nil
}

// notFound answers when no student could be resolved, suggesting close
// matches from the roster. A missing student is a normal outcome here.
func (h *ProfileHandler) notFound(ctx context.Context, input contract.HandlerInput) (contract.HandlerResult, error) {
	name := strings.TrimSpace(input.StudentName)
	if name == "" || name == contract.StudentAll {
		return contract.HandlerResult{
			Response:    "I need to know which student you mean. Could you give me their name?",
			ActionTaken: contract.ActionNotFound,
		}, nil
	}

	matches, err := h.students.SearchStudentsByName(ctx, name)
	if err != nil {
		return contract.HandlerResult{}, fmt.Errorf("search students: %w", err)
	}
	if len(matches) == 0 {
		return contract.HandlerResult{
			Response:    fmt.Sprintf("I couldn't find %s in your class roster. Could you check the spelling?", name),
			ActionTaken: contract.ActionNotFound,
			StudentName: name,
		}, nil
	}

	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return contract.HandlerResult{
		Response:    fmt.Sprintf("I couldn't find %s, but I do have: %s. Did you mean one of them?", name, strings.Join(names, ", ")),
		ActionTaken: contract.ActionNotFound,
		StudentName: name,
	}, nil
}

func formatProfile(p *storex.StudentProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	if p.Grade != "" {
		fmt.Fprintf(&b, "Grade: %s\n", p.Grade)
	}
	if p.DisabilityType != "" {
		fmt.Fprintf(&b, "Disability: %s\n", p.DisabilityType)
	}
	if p.LearningStyle != "" {
		fmt.Fprintf(&b, "Learning style: %s\n", p.LearningStyle)
	}
	if len(p.Triggers) > 0 {
		fmt.Fprintf(&b, "Triggers: %s\n", strings.Join(p.Triggers, ", "))
	}
	if len(p.SuccessfulMethods) > 0 {
		fmt.Fprintf(&b, "Successful methods: %s\n", strings.Join(p.SuccessfulMethods, ", "))
	}
	if len(p.FailedMethods) > 0 {
		fmt.Fprintf(&b, "Failed methods: %s\n", strings.Join(p.FailedMethods, ", "))
	}
	if len(p.Notes) > 0 {
		fmt.Fprintf(&b, "Notes: %s\n", strings.Join(p.Notes, "; "))
	}
	return strings.TrimSpace(b.String())
}

func duplicateAdditions(patch storex.ProfilePatch, profile *storex.StudentProfile) []string {
	var dupes []string
	check := func(additions, existing []string) {
		for _, add := range additions {
			for _, item := range existing {
				if strings.EqualFold(strings.TrimSpace(add), item) {
					dupes = append(dupes, add)
					break
				}
			}
		}
	}
	check(patch.AddTriggers, profile.Triggers)
	check(patch.AddSuccessfulMethods, profile.SuccessfulMethods)
	check(patch.AddFailedMethods, profile.FailedMethods)
	return dupes
}

func onlyAdditions(patch storex.ProfilePatch) bool {
	return len(patch.RemoveTriggers) == 0 && len(patch.RemoveSuccessfulMethods) == 0 &&
		len(patch.RemoveFailedMethods) == 0 && strings.TrimSpace(patch.Note) == ""
}

func additionCount(patch storex.ProfilePatch) int {
	return len(patch.AddTriggers) + len(patch.AddSuccessfulMethods) + len(patch.AddFailedMethods)
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = `"` + item + `"`
	}
	return strings.Join(quoted, ", ")
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
	cleaned = strings.TrimPrefix(parts[1], "json")
	return strings.TrimSpace(cleaned)
}
