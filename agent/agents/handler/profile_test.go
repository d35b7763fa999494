package handler

import (
	"context"
	"strings"
	"testing"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
)

type scriptedCompletion struct {
	responses []string
	calls     int
	reqs      []llmodx.CompletionRequest
}

func (f *scriptedCompletion) Complete(ctx context.Context, req llmodx.CompletionRequest) (llmodx.Completion, error) {
	content := ""
	if f.calls < len(f.responses) {
		content = f.responses[f.calls]
	}
	f.calls++
	f.reqs = append(f.reqs, req)
	return llmodx.Completion{Content: content}, nil
}

type fakeStudentStore struct {
	students map[string]*storex.StudentProfile
	updates  []storex.ProfilePatch
}

func (f *fakeStudentStore) GetStudent(ctx context.Context, id string) (*storex.StudentProfile, error) {
	if p, ok := f.students[id]; ok {
		return p, nil
	}
	return nil, storex.ErrStudentNotFound
}

func (f *fakeStudentStore) SearchStudentsByName(ctx context.Context, name string) ([]storex.StudentProfile, error) {
	var out []storex.StudentProfile
	for _, p := range f.students {
		if strings.HasPrefix(strings.ToLower(p.Name), strings.ToLower(name)) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStudentStore) ListStudents(ctx context.Context, limit int) ([]storex.StudentProfile, error) {
	return nil, nil
}

func (f *fakeStudentStore) ApplyProfileUpdate(ctx context.Context, id string, patch storex.ProfilePatch) (*storex.StudentProfile, error) {
	f.updates = append(f.updates, patch)
	p, err := f.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(p, p.UpdatedAt)
	return p, nil
}

func alexProfile() *storex.StudentProfile {
	return &storex.StudentProfile{
		ID:       "s1",
		Name:     "Alex",
		Triggers: []string{"loud noises"},
	}
}

func TestProfileRunAppliesUpdate(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{
		`{"add_triggers": ["fire alarms"]}`,
	}}
	store := &fakeStudentStore{students: map[string]*storex.StudentProfile{"s1": alexProfile()}}
	h := NewProfileHandler(completion, store, prompt.LoadPromptSet(), "")

	result, err := h.Run(context.Background(), contract.HandlerInput{
		Task:          "record the fire alarm incident",
		OriginalQuery: "Alex had a meltdown when the fire alarm went off",
		Student:       store.students["s1"],
		Trace:         tracex.NewCollector(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ActionTaken != contract.ActionUpdateApplied {
		t.Fatalf("expected update_applied, got %s", result.ActionTaken)
	}
	if len(store.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(store.updates))
	}
	if len(result.UpdatesApplied) == 0 || !strings.Contains(result.UpdatesApplied[0], "fire alarms") {
		t.Fatalf("unexpected updates summary: %v", result.UpdatesApplied)
	}
	if !strings.Contains(result.Response, "Alex") {
		t.Fatalf("confirmation must name the student: %q", result.Response)
	}
}

func TestProfileRunDetectsDuplicate(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{
		`{"add_triggers": ["Loud Noises"]}`,
	}}
	store := &fakeStudentStore{students: map[string]*storex.StudentProfile{"s1": alexProfile()}}
	h := NewProfileHandler(completion, store, prompt.LoadPromptSet(), "")

	result, err := h.Run(context.Background(), contract.HandlerInput{
		Task:          "note the loud noise trigger",
		OriginalQuery: "Loud noises set Alex off",
		Student:       store.students["s1"],
		Trace:         tracex.NewCollector(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ActionTaken != contract.ActionAlreadyExists {
		t.Fatalf("expected already_exists, got %s", result.ActionTaken)
	}
	if len(store.updates) != 0 {
		t.Fatalf("duplicate must not write, got %d updates", len(store.updates))
	}
}

func TestProfileRunAnswersWhenNoUpdate(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{
		`{}`,
		"Alex is sensitive to loud noises.",
	}}
	store := &fakeStudentStore{students: map[string]*storex.StudentProfile{"s1": alexProfile()}}
	h := NewProfileHandler(completion, store, prompt.LoadPromptSet(), "")

	result, err := h.Run(context.Background(), contract.HandlerInput{
		Task:          "what are Alex's triggers?",
		OriginalQuery: "What are Alex's triggers?",
		Student:       store.students["s1"],
		Trace:         tracex.NewCollector(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ActionTaken != contract.ActionAnswered {
		t.Fatalf("expected answered, got %s", result.ActionTaken)
	}
	if result.Response != "Alex is sensitive to loud noises." {
		t.Fatalf("unexpected response %q", result.Response)
	}
	if completion.calls != 2 {
		t.Fatalf("expected extraction then answer, got %d calls", completion.calls)
	}
}

func TestProfileRunMalformedExtractionRecovers(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{"not json"}}
	store := &fakeStudentStore{students: map[string]*storex.StudentProfile{"s1": alexProfile()}}
	h := NewProfileHandler(completion, store, prompt.LoadPromptSet(), "")

	result, err := h.Run(context.Background(), contract.HandlerInput{
		Task:          "update something",
		OriginalQuery: "update Alex with the new thing",
		Student:       store.students["s1"],
		Trace:         tracex.NewCollector(),
	})
	if err != nil {
		t.Fatalf("malformed extraction must not error, got %v", err)
	}
	if !strings.Contains(result.Response, "rephrase") {
		t.Fatalf("expected rephrase response, got %q", result.Response)
	}
}

func TestProfileRunNotFoundSuggestsMatches(t *testing.T) {
	completion := &scriptedCompletion{}
	store := &fakeStudentStore{students: map[string]*storex.StudentProfile{"s1": alexProfile()}}
	h := NewProfileHandler(completion, store, prompt.LoadPromptSet(), "")

	result, err := h.Run(context.Background(), contract.HandlerInput{
		Task:        "tell me about Al",
		StudentName: "Al",
		Trace:       tracex.NewCollector(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ActionTaken != contract.ActionNotFound {
		t.Fatalf("expected not_found, got %s", result.ActionTaken)
	}
	if !strings.Contains(result.Response, "Alex") {
		t.Fatalf("expected suggestion naming Alex, got %q", result.Response)
	}
	if completion.calls != 0 {
		t.Fatalf("not-found path must not call the model, got %d calls", completion.calls)
	}
}

func TestProfileRunNoNameAsksForOne(t *testing.T) {
	completion := &scriptedCompletion{}
	store := &fakeStudentStore{students: map[string]*storex.StudentProfile{}}
	h := NewProfileHandler(completion, store, prompt.LoadPromptSet(), "")

	result, err := h.Run(context.Background(), contract.HandlerInput{
		Task:  "check their profile",
		Trace: tracex.NewCollector(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ActionTaken != contract.ActionNotFound {
		t.Fatalf("expected not_found, got %s", result.ActionTaken)
	}
	if !strings.Contains(result.Response, "name") {
		t.Fatalf("expected prompt for a name, got %q", result.Response)
	}
}
