package handler

import (
	"context"
	"strings"
	"testing"

	cachex "github.com/tanpawarit/co-teacher-agent/agent/cache"
	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	pineconex "github.com/tanpawarit/co-teacher-agent/pkg/pinecone"
)

type fakeEmbedding struct {
	calls int
}

func (f *fakeEmbedding) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	return []float64{0.1, 0.2}, nil
}

type fakeSearcher struct {
	matches []pineconex.Match
	filters []map[string]any
}

func (f *fakeSearcher) Query(ctx context.Context, embedding []float64, topK int, filter map[string]any) ([]pineconex.Match, error) {
	f.filters = append(f.filters, filter)
	return f.matches, nil
}

func TestStrategyRunFiltersByDisability(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{"Try a visual schedule."}}
	searcher := &fakeSearcher{matches: []pineconex.Match{
		{ID: "m1", Score: 0.92, Metadata: map[string]any{"name": "Visual schedules", "description": "picture-based daily plan"}},
	}}
	h := NewStrategyHandler(completion, &fakeEmbedding{}, searcher, prompt.LoadPromptSet(), "", nil)

	student := alexProfile()
	student.DisabilityType = "autism"

	result, err := h.Run(context.Background(), contract.HandlerInput{
		Task:    "how can I help Alex with transitions?",
		Student: student,
		Trace:   tracex.NewCollector(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(searcher.filters) != 1 {
		t.Fatalf("expected one search, got %d", len(searcher.filters))
	}
	if got := searcher.filters[0]["disability_type"]; got != "autism" {
		t.Fatalf("expected disability filter, got %v", searcher.filters[0])
	}
	if result.Response != "Try a visual schedule." {
		t.Fatalf("unexpected response %q", result.Response)
	}
	// Retrieved methods belong in the system prompt the model answers from.
	system := completion.reqs[0].Messages[0].Content
	if !strings.Contains(system, "Visual schedules") {
		t.Fatalf("expected retrieved method in system prompt: %q", system)
	}
}

func TestStrategyRunNoStudentSearchesUnfiltered(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{"General advice."}}
	searcher := &fakeSearcher{}
	h := NewStrategyHandler(completion, &fakeEmbedding{}, searcher, prompt.LoadPromptSet(), "", nil)

	_, err := h.Run(context.Background(), contract.HandlerInput{
		Task:  "reading strategies for the class",
		Trace: tracex.NewCollector(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(searcher.filters) != 1 || searcher.filters[0] != nil {
		t.Fatalf("expected one unfiltered search, got %v", searcher.filters)
	}
}

func TestStrategyRunReusesCachedAdvice(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{"Try a visual schedule."}}
	embedding := &fakeEmbedding{}
	searcher := &fakeSearcher{}
	h := NewStrategyHandler(completion, embedding, searcher, prompt.LoadPromptSet(), "", cachex.New(cachex.Config{}))

	student := alexProfile()
	student.DisabilityType = "autism"
	input := contract.HandlerInput{
		Task:    "how can I help Alex with transitions?",
		Student: student,
		Trace:   tracex.NewCollector(),
	}

	first, err := h.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	second, err := h.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	// A hit spends nothing: no embed, no search, no completion.
	if embedding.calls != 1 {
		t.Fatalf("expected one embed call, got %d", embedding.calls)
	}
	if len(searcher.filters) != 1 {
		t.Fatalf("expected one search, got %d", len(searcher.filters))
	}
	if completion.calls != 1 {
		t.Fatalf("expected one completion call, got %d", completion.calls)
	}
	if second.Response != first.Response {
		t.Fatalf("cached advice %q differs from original %q", second.Response, first.Response)
	}
}

func TestStrategyRunDifferentDisabilityMissesCache(t *testing.T) {
	completion := &scriptedCompletion{responses: []string{"autism advice", "adhd advice"}}
	h := NewStrategyHandler(completion, &fakeEmbedding{}, &fakeSearcher{}, prompt.LoadPromptSet(), "", cachex.New(cachex.Config{}))

	autism := alexProfile()
	autism.DisabilityType = "autism"
	adhd := &storex.StudentProfile{ID: "s2", Name: "Maya", DisabilityType: "adhd"}

	task := "help with transitions"
	if _, err := h.Run(context.Background(), contract.HandlerInput{Task: task, Student: autism, Trace: tracex.NewCollector()}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	result, err := h.Run(context.Background(), contract.HandlerInput{Task: task, Student: adhd, Trace: tracex.NewCollector()})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if completion.calls != 2 {
		t.Fatalf("different disability scope must not share cached advice, got %d calls", completion.calls)
	}
	if result.Response != "adhd advice" {
		t.Fatalf("unexpected response %q", result.Response)
	}
}
