package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	cachex "github.com/tanpawarit/co-teacher-agent/agent/cache"
	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
)

const (
	predictionModule = "PREDICTION"

	predictionTemperature = 0.4
	predictionMaxTokens   = 600
)

// PredictionHandler compares today's schedule against student triggers and
// flags likely trouble spots.
type PredictionHandler struct {
	completion contract.CompletionService
	events     storex.EventStore
	prompts    prompt.PromptSet
	model      string
	cache      *cachex.Cache
}

func NewPredictionHandler(completion contract.CompletionService, events storex.EventStore, prompts prompt.PromptSet, model string, cache *cachex.Cache) *PredictionHandler {
	return &PredictionHandler{completion: completion, events: events, prompts: prompts, model: model, cache: cache}
}

func (h *PredictionHandler) Category() contract.Category {
	return contract.CategoryPrediction
}

func (h *PredictionHandler) Run(ctx context.Context, input contract.HandlerInput) (contract.HandlerResult, error) {
	events, err := h.events.TodaysEvents(ctx, input.TeacherID)
	if err != nil {
		return contract.HandlerResult{}, fmt.Errorf("load todays events: %w", err)
	}

	// Nothing scheduled means nothing to assess; no LLM call needed.
	if len(events) == 0 {
		return contract.HandlerResult{
			Response:    "There are no special events on today's schedule, so I don't expect elevated risk beyond the usual routine.",
			ActionTaken: contract.ActionAnswered,
		}, nil
	}

	students := input.AllStudents
	if len(students) == 0 && input.Student != nil {
		students = []storex.StudentProfile{*input.Student}
	}
	if len(students) == 0 {
		return contract.HandlerResult{
			Response:    "I don't have any student profiles to assess against today's schedule.",
			ActionTaken: contract.ActionNotFound,
		}, nil
	}

	risks := assessRisk(students, events)
	if len(risks) == 0 {
		return contract.HandlerResult{
			Response:    "I checked today's schedule against everyone's triggers and found no matches, so I don't expect elevated risk.",
			ActionTaken: contract.ActionAnswered,
		}, nil
	}

	eventsText := formatEvents(events)
	risksText := formatRisks(risks)

	// The schedule and the assessments pin the briefing to today's facts,
	// so they belong in the key alongside the question itself.
	cacheKey := cachex.Key(predictionModule, input.Task+"|"+eventsText+"|"+risksText)
	if cached, ok := h.cache.Get(cacheKey); ok {
		input.Trace.Append(predictionModule,
			map[string]any{"action": "assess_risk", "events": len(events), "students": len(students), "flagged": len(risks), "cache_hit": true},
			map[string]any{"content": tracex.Snippet(cached, 200)},
		)
		return contract.HandlerResult{
			Response:    cached,
			ActionTaken: contract.ActionAnswered,
		}, nil
	}

	systemPrompt := prompt.Render(h.prompts.PredictionSystem, map[string]string{
		"events":      eventsText,
		"assessments": risksText,
	})

	resp, err := h.completion.Complete(ctx, llmodx.CompletionRequest{
		Messages: []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(input.Task),
		},
		Temperature: predictionTemperature,
		MaxTokens:   predictionMaxTokens,
		Model:       h.model,
	})
	if err != nil {
		return contract.HandlerResult{}, fmt.Errorf("prediction briefing: %w", err)
	}

	input.Trace.Append(predictionModule,
		map[string]any{"action": "assess_risk", "events": len(events), "students": len(students), "flagged": len(risks)},
		map[string]any{"content": tracex.Snippet(resp.Content, 200)},
	)

	// Briefings are built from today's schedule; they go stale at midnight,
	// not after the default TTL.
	h.cache.SetWithTTL(cacheKey, resp.Content, cachex.UntilMidnight(time.Now()))

	return contract.HandlerResult{
		Response:    resp.Content,
		ActionTaken: contract.ActionAnswered,
	}, nil
}

func formatEvents(events []storex.SchoolEvent) string {
	var lines []string
	for _, e := range events {
		line := "- " + e.Title
		if e.StartTime != "" {
			line += " at " + e.StartTime
		}
		if e.EventType != "" {
			line += " (" + e.EventType + ")"
		}
		if len(e.SensoryFactors) > 0 {
			line += "; sensory factors: " + strings.Join(e.SensoryFactors, ", ")
		}
		if e.Description != "" {
			line += "; " + e.Description
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// riskAssessment pairs one student with one event they may react to.
type riskAssessment struct {
	student  *storex.StudentProfile
	event    *storex.SchoolEvent
	triggers []string
	score    float64
}

// Event types that disrupt routine badly enough to raise risk on their own.
var highRiskEventTypes = map[string]struct{}{
	"fire_drill":      {},
	"assembly":        {},
	"field_trip":      {},
	"schedule_change": {},
	"substitute":      {},
}

// assessRisk scores every student/event pair deterministically: matched
// triggers dominate, disruptive event types and early starts add a margin.
// Pairs with no trigger match are dropped.
func assessRisk(students []storex.StudentProfile, events []storex.SchoolEvent) []riskAssessment {
	var out []riskAssessment
	for i := range students {
		student := &students[i]
		for j := range events {
			event := &events[j]
			matched := matchedTriggers(student.Triggers, event)
			if len(matched) == 0 {
				continue
			}
			score := 0.3 * float64(len(matched))
			if _, ok := highRiskEventTypes[strings.ToLower(event.EventType)]; ok {
				score += 0.2
			}
			if isMorning(event.StartTime) {
				score += 0.1
			}
			if score > 1.0 {
				score = 1.0
			}
			out = append(out, riskAssessment{
				student:  student,
				event:    event,
				triggers: matched,
				score:    score,
			})
		}
	}
	return out
}

// matchedTriggers compares triggers against the event's sensory factors and
// free text, case-insensitively in both containment directions, so "loud
// noises" still matches a "loud noise" factor.
func matchedTriggers(triggers []string, event *storex.SchoolEvent) []string {
	haystack := strings.ToLower(strings.Join(append(append([]string{},
		event.SensoryFactors...), event.Title, event.EventType, event.Description), " "))

	var matched []string
	for _, trigger := range triggers {
		t := strings.ToLower(strings.TrimSpace(trigger))
		if t == "" {
			continue
		}
		hit := strings.Contains(haystack, t)
		if !hit {
			for _, factor := range event.SensoryFactors {
				if strings.Contains(t, strings.ToLower(strings.TrimSpace(factor))) {
					hit = true
					break
				}
			}
		}
		if hit {
			matched = append(matched, trigger)
		}
	}
	return matched
}

func isMorning(startTime string) bool {
	hhmm := strings.TrimSpace(startTime)
	if len(hhmm) < 2 {
		return false
	}
	switch hhmm[:2] {
	case "07", "08", "09":
		return true
	}
	return false
}

func riskLevel(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

func formatRisks(risks []riskAssessment) string {
	var lines []string
	for _, r := range risks {
		line := fmt.Sprintf("- %s / %s: %s risk (%.1f); triggers: %s",
			r.student.Name, r.event.Title, riskLevel(r.score), r.score, strings.Join(r.triggers, ", "))
		if len(r.student.SuccessfulMethods) > 0 {
			line += "; what has worked: " + strings.Join(r.student.SuccessfulMethods, ", ")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
