package storex

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// StudentProfile is the externally owned student record. The agent core
// treats it as an opaque bag of fields; only the handlers read into it.
type StudentProfile struct {
	bun.BaseModel `bun:"table:students,alias:st"`

	ID                string    `bun:"id,pk" json:"id"`
	Name              string    `bun:"name,notnull" json:"name"`
	Grade             string    `bun:"grade" json:"grade,omitempty"`
	DisabilityType    string    `bun:"disability_type" json:"disability_type,omitempty"`
	LearningStyle     string    `bun:"learning_style" json:"learning_style,omitempty"`
	Triggers          []string  `bun:"triggers,array" json:"triggers,omitempty"`
	SuccessfulMethods []string  `bun:"successful_methods,array" json:"successful_methods,omitempty"`
	FailedMethods     []string  `bun:"failed_methods,array" json:"failed_methods,omitempty"`
	Notes             []string  `bun:"notes,array" json:"notes,omitempty"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,default:now()" json:"updated_at"`
}

type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID        string    `bun:"id,pk" json:"id"`
	SessionID string    `bun:"session_id,notnull,unique" json:"session_id"`
	TeacherID string    `bun:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:now()" json:"created_at"`
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	ConversationID string    `bun:"conversation_id,notnull" json:"conversation_id"`
	Role           string    `bun:"role,notnull" json:"role"`
	Content        string    `bun:"content,notnull" json:"content"`
	CategoryUsed   string    `bun:"category_used" json:"category_used,omitempty"`
	CreatedAt      time.Time `bun:"created_at,nullzero,default:now()" json:"created_at"`
}

// SchoolEvent is a scheduled event the prediction handler assesses against
// student triggers.
type SchoolEvent struct {
	bun.BaseModel `bun:"table:school_events,alias:e"`

	ID             string    `bun:"id,pk" json:"id"`
	TeacherID      string    `bun:"teacher_id" json:"teacher_id,omitempty"`
	Title          string    `bun:"title,notnull" json:"title"`
	EventType      string    `bun:"event_type" json:"event_type,omitempty"`
	Date           time.Time `bun:"date,notnull" json:"date"`
	StartTime      string    `bun:"start_time" json:"start_time,omitempty"`
	SensoryFactors []string  `bun:"sensory_factors,array" json:"sensory_factors,omitempty"`
	Description    string    `bun:"description" json:"description,omitempty"`
}

// ProfilePatch is a partial update to a student profile, produced by the
// profile handler's structured extraction.
type ProfilePatch struct {
	AddTriggers             []string `json:"add_triggers,omitempty"`
	RemoveTriggers          []string `json:"remove_triggers,omitempty"`
	AddSuccessfulMethods    []string `json:"add_successful_methods,omitempty"`
	RemoveSuccessfulMethods []string `json:"remove_successful_methods,omitempty"`
	AddFailedMethods        []string `json:"add_failed_methods,omitempty"`
	RemoveFailedMethods     []string `json:"remove_failed_methods,omitempty"`
	Note                    string   `json:"note,omitempty"`
}

func (p ProfilePatch) IsEmpty() bool {
	return len(p.AddTriggers) == 0 && len(p.RemoveTriggers) == 0 &&
		len(p.AddSuccessfulMethods) == 0 && len(p.RemoveSuccessfulMethods) == 0 &&
		len(p.AddFailedMethods) == 0 && len(p.RemoveFailedMethods) == 0 &&
		strings.TrimSpace(p.Note) == ""
}

// Summary lists the applied changes in a human-readable form, used for
// update confirmations.
func (p ProfilePatch) Summary() []string {
	var out []string
	appendChanges := func(verb, field string, items []string) {
		if len(items) > 0 {
			out = append(out, verb+" "+field+": "+strings.Join(items, ", "))
		}
	}
	appendChanges("added", "triggers", p.AddTriggers)
	appendChanges("removed", "triggers", p.RemoveTriggers)
	appendChanges("added", "successful methods", p.AddSuccessfulMethods)
	appendChanges("removed", "successful methods", p.RemoveSuccessfulMethods)
	appendChanges("added", "methods to avoid", p.AddFailedMethods)
	appendChanges("removed", "methods to avoid", p.RemoveFailedMethods)
	if strings.TrimSpace(p.Note) != "" {
		out = append(out, "noted: "+strings.TrimSpace(p.Note))
	}
	return out
}

// Apply mutates the profile in place. Additions are deduplicated and
// removals matched case-insensitively.
func (p ProfilePatch) Apply(profile *StudentProfile, now time.Time) {
	profile.Triggers = addItems(removeItems(profile.Triggers, p.RemoveTriggers), p.AddTriggers)
	profile.SuccessfulMethods = addItems(removeItems(profile.SuccessfulMethods, p.RemoveSuccessfulMethods), p.AddSuccessfulMethods)
	profile.FailedMethods = addItems(removeItems(profile.FailedMethods, p.RemoveFailedMethods), p.AddFailedMethods)
	if note := strings.TrimSpace(p.Note); note != "" {
		profile.Notes = append(profile.Notes, note)
	}
	profile.UpdatedAt = now.UTC()
}

func addItems(items []string, additions []string) []string {
	for _, add := range additions {
		add = strings.TrimSpace(add)
		if add == "" {
			continue
		}
		exists := false
		for _, item := range items {
			if strings.EqualFold(item, add) {
				exists = true
				break
			}
		}
		if !exists {
			items = append(items, add)
		}
	}
	return items
}

func removeItems(items []string, removals []string) []string {
	if len(removals) == 0 {
		return items
	}
	kept := items[:0]
	for _, item := range items {
		remove := false
		for _, r := range removals {
			if strings.EqualFold(strings.TrimSpace(r), item) {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, item)
		}
	}
	return kept
}
