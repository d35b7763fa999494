package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
)

// ResolveStudent loads the student scope the plan calls for. The ALL
// sentinel resolves to the full roster; a named student resolves to the
// best roster match. A name with no match is not an error, the profile
// handler owns the "couldn't find" response.
func ResolveStudent(ctx context.Context, state *GraphState, students storex.StudentStore) (*GraphState, error) {
	name := strings.TrimSpace(state.Plan.StudentName)

	if name == "" && state.Plan.NeedsStudentContext() && state.ConvCtx.RecentStudent != "" {
		name = state.ConvCtx.RecentStudent
		state.Plan.StudentName = name
	}

	switch {
	case name == contract.StudentAll:
		state.AllStudents = state.Roster
	case name != "":
		matches, err := students.SearchStudentsByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve student %q: %w", name, err)
		}
		if len(matches) > 0 {
			state.Student = &matches[0]
		}
	}
	return state, nil
}
