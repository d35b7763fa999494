// Package contract holds the shared types that cross module boundaries:
// routing results, execution plans, conversation context, and the
// handler input/output envelopes.
package contract

import (
	"fmt"
	"strings"

	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
)

// Category identifies one of the four specialist handlers.
type Category string

const (
	CategoryProfile    Category = "PROFILE"
	CategoryStrategy   Category = "STRATEGY"
	CategoryDocument   Category = "DOCUMENT"
	CategoryPrediction Category = "PREDICTION"
)

// AllCategories lists every known category in routing priority order.
func AllCategories() []Category {
	return []Category{CategoryPrediction, CategoryStrategy, CategoryDocument, CategoryProfile}
}

// ParseCategory normalizes a raw category string. It fails on anything
// outside the known set.
func ParseCategory(raw string) (Category, error) {
	switch Category(strings.ToUpper(strings.TrimSpace(raw))) {
	case CategoryProfile:
		return CategoryProfile, nil
	case CategoryStrategy:
		return CategoryStrategy, nil
	case CategoryDocument:
		return CategoryDocument, nil
	case CategoryPrediction:
		return CategoryPrediction, nil
	default:
		return "", fmt.Errorf("unknown category %q", raw)
	}
}

// StudentAll is the sentinel student name for class-wide requests. Steps
// carrying it run against the full roster instead of a single student.
const StudentAll = "ALL"

// RoutingResult is the deterministic router's verdict on a query.
// Categories is ordered; the first entry is the primary category.
type RoutingResult struct {
	Categories    []Category        `json:"categories"`
	Confidence    float64           `json:"confidence"`
	Entities      map[string]string `json:"entities,omitempty"`
	NeedsFallback bool              `json:"needs_fallback"`
}

// Primary returns the first routed category, or "" when routing found none.
func (r RoutingResult) Primary() Category {
	if len(r.Categories) == 0 {
		return ""
	}
	return r.Categories[0]
}

// StudentName returns the extracted name entity, if any.
func (r RoutingResult) StudentName() string {
	return r.Entities["name"]
}

// PlanStep is one unit of work in an execution plan. DependsOn holds
// zero-based indexes of earlier steps whose responses feed this one.
type PlanStep struct {
	Index     int      `json:"step_index"`
	Category  Category `json:"agent"`
	Task      string   `json:"task"`
	DependsOn []int    `json:"depends_on"`
}

// ExecutionPlan is an ordered list of steps plus the student scope they
// share. StudentName is empty when no student applies, or StudentAll for
// class-wide work.
type ExecutionPlan struct {
	Steps       []PlanStep `json:"steps"`
	StudentName string     `json:"student_name,omitempty"`
	Fallback    bool       `json:"-"`
}

func (p ExecutionPlan) IsMultiStep() bool {
	return len(p.Steps) > 1
}

func (p ExecutionPlan) ClassWide() bool {
	return p.StudentName == StudentAll
}

// Categories returns distinct step categories in plan order.
func (p ExecutionPlan) Categories() []Category {
	seen := make(map[Category]struct{}, len(p.Steps))
	var out []Category
	for _, step := range p.Steps {
		if _, ok := seen[step.Category]; ok {
			continue
		}
		seen[step.Category] = struct{}{}
		out = append(out, step.Category)
	}
	return out
}

// NeedsStudentContext reports whether any step operates on student data.
func (p ExecutionPlan) NeedsStudentContext() bool {
	for _, step := range p.Steps {
		switch step.Category {
		case CategoryProfile, CategoryPrediction:
			return true
		}
	}
	return strings.TrimSpace(p.StudentName) != ""
}

// ConversationContext is what the history extractor recovers from recent
// messages: the student under discussion and a digest of the exchange.
type ConversationContext struct {
	RecentStudent      string     `json:"recent_student,omitempty"`
	MentionedStudents  []string   `json:"mentioned_students,omitempty"`
	ClassWide          bool       `json:"class_wide"`
	PreviousCategories []Category `json:"previous_categories,omitempty"`
	HistoryDigest      string     `json:"history_digest,omitempty"`
}

func (c ConversationContext) IsEmpty() bool {
	return c.RecentStudent == "" && len(c.MentionedStudents) == 0 &&
		!c.ClassWide && len(c.PreviousCategories) == 0 && c.HistoryDigest == ""
}

// ActionTaken labels what a handler did, beyond its textual response.
type ActionTaken string

const (
	ActionAnswered      ActionTaken = "answered"
	ActionUpdateApplied ActionTaken = "update_applied"
	ActionAlreadyExists ActionTaken = "already_exists"
	ActionNotFound      ActionTaken = "not_found"
)

// HandlerInput is the envelope a handler receives for one plan step.
// Student is resolved before dispatch; AllStudents is populated only for
// class-wide steps.
type HandlerInput struct {
	Task          string
	OriginalQuery string
	StudentName   string
	Student       *storex.StudentProfile
	AllStudents   []storex.StudentProfile
	TeacherID     string
	Trace         *tracex.Collector
}

// HandlerResult is what a handler returns for one plan step.
type HandlerResult struct {
	Response       string
	ActionTaken    ActionTaken
	StudentID      string
	StudentName    string
	UpdatesApplied []string
}

// ExecutionResult is the outcome of running a full plan.
type ExecutionResult struct {
	Response       string
	CategoriesUsed []Category
	StudentName    string
	UpdatesApplied []string
	Presented      bool
}
