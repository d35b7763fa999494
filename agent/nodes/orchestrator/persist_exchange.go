package orchestratornode

import (
	"context"
	"fmt"

	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
)

// PersistExchange records the assistant's reply, tagged with the primary
// category so later context extraction knows which handler answered.
func PersistExchange(ctx context.Context, state *GraphState, conversations storex.ConversationStore) (*GraphState, error) {
	category := ""
	if len(state.Result.CategoriesUsed) > 0 {
		category = string(state.Result.CategoriesUsed[0])
	}
	if err := conversations.AppendMessage(ctx, state.Conversation.ID, "assistant", state.Result.Response, category); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}
	return state, nil
}
