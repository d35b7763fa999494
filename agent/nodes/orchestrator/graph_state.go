// Package orchestratornode holds the graph state and node functions for
// the query-handling pipeline. Each node is a pure-ish function over
// *GraphState so it can be tested without compiling the graph.
package orchestratornode

import (
	"errors"
	"strings"
	"time"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
)

var (
	ErrInvalidQuery   = errors.New("query is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID   string
	TeacherID   string
	Query       string
	StudentHint string
}

type GraphOutput struct {
	Response       string
	CategoriesUsed []string
	Steps          []tracex.Step
	StudentName    string
	UpdatesApplied []string
}

type GraphState struct {
	SessionID   string
	TeacherID   string
	Query       string
	StudentHint string
	Now         time.Time

	Conversation *storex.Conversation
	Messages     []storex.Message
	Roster       []storex.StudentProfile

	ConvCtx contract.ConversationContext
	Routing contract.RoutingResult
	Plan    contract.ExecutionPlan

	Student     *storex.StudentProfile
	AllStudents []storex.StudentProfile

	Result contract.ExecutionResult
	Trace  *tracex.Collector
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, ErrInvalidQuery
	}

	return &GraphState{
		SessionID:   sessionID,
		TeacherID:   strings.TrimSpace(in.TeacherID),
		Query:       query,
		StudentHint: strings.TrimSpace(in.StudentHint),
		Now:         nowFn().UTC(),
		Trace:       tracex.NewCollector(),
	}, nil
}
