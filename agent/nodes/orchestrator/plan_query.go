package orchestratornode

import (
	"context"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	routerx "github.com/tanpawarit/co-teacher-agent/agent/router"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
)

// PlannerService is what PlanQuery needs from the LLM planner.
type PlannerService interface {
	CreatePlan(ctx context.Context, query string, convCtx contract.ConversationContext, tr *tracex.Collector) (contract.ExecutionPlan, error)
}

// PlanQuery runs the deterministic router first, then the LLM planner. The
// router's extracted name and the caller's explicit hint backfill the plan
// when the model leaves student_name empty.
func PlanQuery(ctx context.Context, state *GraphState, router *routerx.Router, planner PlannerService) (*GraphState, error) {
	state.Routing = router.Classify(state.Query, state.ConvCtx)
	state.Trace.Append("ROUTER",
		map[string]any{"query": state.Query},
		map[string]any{
			"categories":     categoryStrings(state.Routing.Categories),
			"confidence":     state.Routing.Confidence,
			"needs_fallback": state.Routing.NeedsFallback,
		},
	)

	plan, err := planner.CreatePlan(ctx, state.Query, state.ConvCtx, state.Trace)
	if err != nil {
		return nil, err
	}

	if plan.StudentName == "" {
		if state.StudentHint != "" {
			plan.StudentName = state.StudentHint
		} else if name := state.Routing.StudentName(); name != "" {
			plan.StudentName = name
		}
	}
	state.Plan = plan
	return state, nil
}

func categoryStrings(categories []contract.Category) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}
