package orchestratornode

import (
	"github.com/tanpawarit/co-teacher-agent/agent/history"
)

// ExtractContext recovers conversation context from the loaded history.
func ExtractContext(state *GraphState, extractor *history.Extractor) (*GraphState, error) {
	names := make([]string, len(state.Roster))
	for i, s := range state.Roster {
		names[i] = s.Name
	}
	state.ConvCtx = extractor.Extract(state.Messages, names)
	return state, nil
}
