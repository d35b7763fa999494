package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tanpawarit/co-teacher-agent/agent/agents/handler"
	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	executorx "github.com/tanpawarit/co-teacher-agent/agent/executor"
	"github.com/tanpawarit/co-teacher-agent/agent/presenter"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	budgetx "github.com/tanpawarit/co-teacher-agent/pkg/budget"
	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
)

type memStore struct {
	students      []storex.StudentProfile
	conversations map[string]*storex.Conversation
	messages      map[string][]storex.Message
}

func newMemStore(students ...storex.StudentProfile) *memStore {
	return &memStore{
		students:      students,
		conversations: map[string]*storex.Conversation{},
		messages:      map[string][]storex.Message{},
	}
}

func (s *memStore) GetStudent(ctx context.Context, id string) (*storex.StudentProfile, error) {
	for i := range s.students {
		if s.students[i].ID == id {
			p := s.students[i]
			return &p, nil
		}
	}
	return nil, storex.ErrStudentNotFound
}

func (s *memStore) SearchStudentsByName(ctx context.Context, name string) ([]storex.StudentProfile, error) {
	var out []storex.StudentProfile
	for _, p := range s.students {
		if strings.HasPrefix(strings.ToLower(p.Name), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) ListStudents(ctx context.Context, limit int) ([]storex.StudentProfile, error) {
	return s.students, nil
}

func (s *memStore) ApplyProfileUpdate(ctx context.Context, id string, patch storex.ProfilePatch) (*storex.StudentProfile, error) {
	return s.GetStudent(ctx, id)
}

func (s *memStore) GetOrCreateConversation(ctx context.Context, sessionID, teacherID string) (*storex.Conversation, error) {
	if conv, ok := s.conversations[sessionID]; ok {
		return conv, nil
	}
	conv := &storex.Conversation{ID: "conv-" + sessionID, SessionID: sessionID, TeacherID: teacherID}
	s.conversations[sessionID] = conv
	return conv, nil
}

func (s *memStore) AppendMessage(ctx context.Context, conversationID, role, content, categoryUsed string) error {
	s.messages[conversationID] = append(s.messages[conversationID], storex.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CategoryUsed:   categoryUsed,
	})
	return nil
}

func (s *memStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]storex.Message, error) {
	return s.messages[conversationID], nil
}

type fakePlanner struct {
	plan  contract.ExecutionPlan
	err   error
	calls int
}

func (f *fakePlanner) CreatePlan(ctx context.Context, query string, convCtx contract.ConversationContext, tr *tracex.Collector) (contract.ExecutionPlan, error) {
	f.calls++
	if f.err != nil {
		return contract.ExecutionPlan{}, f.err
	}
	return f.plan, nil
}

type fakeCompletion struct {
	content string
}

func (f *fakeCompletion) Complete(ctx context.Context, req llmodx.CompletionRequest) (llmodx.Completion, error) {
	return llmodx.Completion{Content: f.content}, nil
}

type fakeHandler struct {
	category contract.Category
	run      func(contract.HandlerInput) contract.HandlerResult
	inputs   []contract.HandlerInput
}

func (f *fakeHandler) Category() contract.Category {
	return f.category
}

func (f *fakeHandler) Run(ctx context.Context, input contract.HandlerInput) (contract.HandlerResult, error) {
	f.inputs = append(f.inputs, input)
	return f.run(input), nil
}

func newTestOrchestrator(t *testing.T, store *memStore, plannerSvc *fakePlanner, handlers ...contract.TaskHandler) *Orchestrator {
	t.Helper()
	prompts := prompt.LoadPromptSet()
	completion := &fakeCompletion{content: "presented"}
	pres := presenter.New(completion, prompts, "")
	pres.SetEnabled(false)
	exec := executorx.New(handler.NewRegistry(handlers...), completion, pres, prompts)

	orch, err := New(store, store, plannerSvc, exec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return orch
}

func TestHandleQueryInvalidInput(t *testing.T) {
	orch := newTestOrchestrator(t, newMemStore(), &fakePlanner{})

	if _, err := orch.HandleQuery(context.Background(), "", "t1", "hello", ""); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if _, err := orch.HandleQuery(context.Background(), "s1", "t1", "   ", ""); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestHandleQuerySingleProfileStep(t *testing.T) {
	alex := storex.StudentProfile{ID: "s1", Name: "Alex", Triggers: []string{"fire alarms"}}
	store := newMemStore(alex)

	profileHandler := &fakeHandler{
		category: contract.CategoryProfile,
		run: func(input contract.HandlerInput) contract.HandlerResult {
			if input.Student == nil {
				return contract.HandlerResult{Response: "not found", ActionTaken: contract.ActionNotFound}
			}
			return contract.HandlerResult{
				Response:    fmt.Sprintf("%s is sensitive to %s.", input.Student.Name, input.Student.Triggers[0]),
				ActionTaken: contract.ActionAnswered,
				StudentID:   input.Student.ID,
				StudentName: input.Student.Name,
			}
		},
	}
	plannerSvc := &fakePlanner{plan: contract.ExecutionPlan{
		Steps:       []contract.PlanStep{{Index: 0, Category: contract.CategoryProfile, Task: "tell me about Alex"}},
		StudentName: "Alex",
	}}

	orch := newTestOrchestrator(t, store, plannerSvc, profileHandler)

	result, err := orch.HandleQuery(context.Background(), "sess-1", "t1", "Tell me about Alex", "")
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if result.Status != "ok" {
		t.Fatalf("expected ok status, got %s", result.Status)
	}
	if result.Response != "Alex is sensitive to fire alarms." {
		t.Fatalf("unexpected response %q", result.Response)
	}
	if result.StudentName != "Alex" {
		t.Fatalf("expected student Alex, got %q", result.StudentName)
	}
	if len(result.CategoriesUsed) != 1 || result.CategoriesUsed[0] != "PROFILE" {
		t.Fatalf("unexpected categories %v", result.CategoriesUsed)
	}
	if len(profileHandler.inputs) != 1 || profileHandler.inputs[0].Student == nil {
		t.Fatalf("expected handler to receive resolved student")
	}

	// Both sides of the exchange must be persisted, the reply tagged with
	// its category.
	msgs := store.messages["conv-sess-1"]
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].CategoryUsed != "PROFILE" {
		t.Fatalf("expected assistant message tagged PROFILE, got %q", msgs[1].CategoryUsed)
	}
}

func TestHandleQueryClassWideResolvesRoster(t *testing.T) {
	store := newMemStore(
		storex.StudentProfile{ID: "s1", Name: "Alex"},
		storex.StudentProfile{ID: "s2", Name: "Maya"},
		storex.StudentProfile{ID: "s3", Name: "Jordan"},
	)

	prediction := &fakeHandler{
		category: contract.CategoryPrediction,
		run: func(input contract.HandlerInput) contract.HandlerResult {
			return contract.HandlerResult{
				Response:    fmt.Sprintf("assessed %d students", len(input.AllStudents)),
				ActionTaken: contract.ActionAnswered,
			}
		},
	}
	plannerSvc := &fakePlanner{plan: contract.ExecutionPlan{
		Steps:       []contract.PlanStep{{Index: 0, Category: contract.CategoryPrediction, Task: "assess today"}},
		StudentName: contract.StudentAll,
	}}

	orch := newTestOrchestrator(t, store, plannerSvc, prediction)

	result, err := orch.HandleQuery(context.Background(), "sess-2", "t1", "Who might struggle today?", "")
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if result.Response != "assessed 3 students" {
		t.Fatalf("expected full roster passed to handler, got %q", result.Response)
	}
}

func TestHandleQueryBudgetExceededSurfaced(t *testing.T) {
	plannerSvc := &fakePlanner{err: fmt.Errorf("planner completion: %w", budgetx.ErrExceeded)}
	orch := newTestOrchestrator(t, newMemStore(), plannerSvc)

	result, err := orch.HandleQuery(context.Background(), "sess-3", "t1", "anything at all", "")
	if err != nil {
		t.Fatalf("HandleQuery() must not return pipeline errors, got %v", err)
	}
	if result.Status != "error" {
		t.Fatalf("expected error status, got %s", result.Status)
	}
	if !strings.Contains(result.Response, "usage limit") {
		t.Fatalf("expected budget message, got %q", result.Response)
	}
}

func TestHandleQueryGenericFailureMasked(t *testing.T) {
	plannerSvc := &fakePlanner{err: errors.New("backend exploded")}
	orch := newTestOrchestrator(t, newMemStore(), plannerSvc)

	result, err := orch.HandleQuery(context.Background(), "sess-4", "t1", "anything", "")
	if err != nil {
		t.Fatalf("HandleQuery() must not return pipeline errors, got %v", err)
	}
	if result.Status != "error" {
		t.Fatalf("expected error status, got %s", result.Status)
	}
	if strings.Contains(result.Response, "exploded") {
		t.Fatalf("internal detail leaked to user: %q", result.Response)
	}
}
