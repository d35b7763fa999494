package orchestratornode

import (
	"context"

	executorx "github.com/tanpawarit/co-teacher-agent/agent/executor"
)

// ExecutePlan runs the plan through the executor.
func ExecutePlan(ctx context.Context, state *GraphState, exec *executorx.Executor) (*GraphState, error) {
	result, err := exec.Execute(ctx, state.Plan, executorx.Request{
		OriginalQuery: state.Query,
		TeacherID:     state.TeacherID,
		Student:       state.Student,
		AllStudents:   state.AllStudents,
	}, state.Trace)
	if err != nil {
		return nil, err
	}
	state.Result = result
	return state, nil
}
