// Package orchestrator wires the full query pipeline: validation, history
// context, routing, planning, student resolution, execution, persistence.
// It is the only entry point the API layer talks to.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"

	executorx "github.com/tanpawarit/co-teacher-agent/agent/executor"
	"github.com/tanpawarit/co-teacher-agent/agent/history"
	nodex "github.com/tanpawarit/co-teacher-agent/agent/nodes/orchestrator"
	routerx "github.com/tanpawarit/co-teacher-agent/agent/router"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
	budgetx "github.com/tanpawarit/co-teacher-agent/pkg/budget"
	logx "github.com/tanpawarit/co-teacher-agent/pkg/logger"
)

var (
	ErrInvalidQuery   = nodex.ErrInvalidQuery
	ErrInvalidSession = nodex.ErrInvalidSession
)

const (
	budgetExceededMessage = "I've hit my usage limit for now, so I can't take on new requests. Please try again later."
	genericErrorMessage   = "Sorry, something went wrong while handling that. Please try again."
)

// QueryResult is what HandleQuery returns to the API layer. Status is "ok"
// or "error"; on error Response still carries a user-facing message.
type QueryResult struct {
	Response       string        `json:"response"`
	CategoriesUsed []string      `json:"categories_used,omitempty"`
	Steps          []tracex.Step `json:"steps,omitempty"`
	StudentName    string        `json:"student_name,omitempty"`
	UpdatesApplied []string      `json:"updates_applied,omitempty"`
	Status         string        `json:"status"`
}

type Orchestrator struct {
	conversations storex.ConversationStore
	students      storex.StudentStore
	extractor     *history.Extractor
	router        *routerx.Router
	planner       nodex.PlannerService
	executor      *executorx.Executor

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
	log zerolog.Logger
}

func New(
	conversations storex.ConversationStore,
	students storex.StudentStore,
	planner nodex.PlannerService,
	exec *executorx.Executor,
) (*Orchestrator, error) {
	if conversations == nil {
		return nil, errors.New("conversation store is required")
	}
	if students == nil {
		return nil, errors.New("student store is required")
	}
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if exec == nil {
		return nil, errors.New("executor is required")
	}

	o := &Orchestrator{
		conversations: conversations,
		students:      students,
		extractor:     history.NewExtractor(),
		router:        routerx.New(),
		planner:       planner,
		executor:      exec,
		now:           time.Now,
		log:           logx.Component("orchestrator"),
	}

	graphRunner, err := o.compileHandleQueryGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleQuery runs one teacher query through the pipeline. It never
// returns an error for pipeline failures; the catch-all boundary converts
// them into an error-status result with a user-facing message. Validation
// failures are the exception, those return an error so the API layer can
// reply 400.
func (o *Orchestrator) HandleQuery(ctx context.Context, sessionID, teacherID, query, studentHint string) (QueryResult, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID:   sessionID,
		TeacherID:   teacherID,
		Query:       query,
		StudentHint: studentHint,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) || errors.Is(err, ErrInvalidSession) {
			return QueryResult{}, err
		}

		o.log.Error().Err(err).Str("session_id", sessionID).Msg("query pipeline failed")

		// A tripped budget must be visible to the teacher, not disguised
		// as a generic failure, and nothing downstream may call the LLM
		// again for this request.
		if errors.Is(err, budgetx.ErrExceeded) {
			return QueryResult{Response: budgetExceededMessage, Status: "error"}, nil
		}
		return QueryResult{Response: genericErrorMessage, Status: "error"}, nil
	}

	return QueryResult{
		Response:       out.Response,
		CategoriesUsed: out.CategoriesUsed,
		Steps:          out.Steps,
		StudentName:    out.StudentName,
		UpdatesApplied: out.UpdatesApplied,
		Status:         "ok",
	}, nil
}
