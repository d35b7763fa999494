package orchestratornode

import (
	"context"
	"fmt"

	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
)

const recentMessageLimit = 6

// LoadConversation resolves the conversation for the session, loads recent
// history plus the class roster, and records the incoming query as the
// newest user message.
func LoadConversation(ctx context.Context, state *GraphState, conversations storex.ConversationStore, students storex.StudentStore) (*GraphState, error) {
	conv, err := conversations.GetOrCreateConversation(ctx, state.SessionID, state.TeacherID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	state.Conversation = conv

	messages, err := conversations.RecentMessages(ctx, conv.ID, recentMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	if err := conversations.AppendMessage(ctx, conv.ID, "user", state.Query, ""); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	state.Messages = append(messages, storex.Message{
		ConversationID: conv.ID,
		Role:           "user",
		Content:        state.Query,
		CreatedAt:      state.Now,
	})

	roster, err := students.ListStudents(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	state.Roster = roster

	return state, nil
}
