package history

import (
	"strings"
	"testing"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
)

var roster = []string{"Alex", "Maya", "Jordan", "Sam"}

func msg(role, content, category string) storex.Message {
	return storex.Message{Role: role, Content: content, CategoryUsed: category}
}

func TestExtractEmptyForShortHistory(t *testing.T) {
	e := NewExtractor()

	if ctx := e.Extract(nil, roster); !ctx.IsEmpty() {
		t.Fatalf("expected empty context for nil history, got %+v", ctx)
	}
	single := []storex.Message{msg("user", "Tell me about Alex", "")}
	if ctx := e.Extract(single, roster); !ctx.IsEmpty() {
		t.Fatalf("expected empty context for single message, got %+v", ctx)
	}
}

func TestExtractRecentStudentAndCategories(t *testing.T) {
	e := NewExtractor()

	messages := []storex.Message{
		msg("user", "Tell me about Maya", ""),
		msg("assistant", "Maya is a visual learner who responds well to routine.", "PROFILE"),
		msg("user", "What strategies help her?", ""),
		msg("assistant", "Try visual schedules and advance warnings.", "STRATEGY"),
		msg("user", "what about her triggers", ""),
	}

	ctx := e.Extract(messages, roster)

	if ctx.RecentStudent != "Maya" {
		t.Fatalf("expected recent student Maya, got %q", ctx.RecentStudent)
	}
	if len(ctx.PreviousCategories) != 2 {
		t.Fatalf("expected 2 categories, got %v", ctx.PreviousCategories)
	}
	// Newest first: the strategy reply is the most recent tagged message.
	if ctx.PreviousCategories[0] != contract.CategoryStrategy || ctx.PreviousCategories[1] != contract.CategoryProfile {
		t.Fatalf("unexpected category order: %v", ctx.PreviousCategories)
	}
}

func TestExtractClassWideThreshold(t *testing.T) {
	e := NewExtractor()

	two := []storex.Message{
		msg("user", "How did the morning go?", ""),
		msg("assistant", "Alex and Maya both did well during circle time.", "PROFILE"),
		msg("user", "anything to watch this afternoon?", ""),
	}
	if ctx := e.Extract(two, roster); ctx.ClassWide {
		t.Fatalf("two names must not flag class-wide discussion")
	}

	three := []storex.Message{
		msg("user", "How did the morning go?", ""),
		msg("assistant", "Alex did well, Maya needed a break, and Jordan was restless.", "PROFILE"),
		msg("user", "anything to watch this afternoon?", ""),
	}
	ctx := e.Extract(three, roster)
	if !ctx.ClassWide {
		t.Fatalf("three names must flag class-wide discussion")
	}
	if len(ctx.MentionedStudents) != 3 {
		t.Fatalf("expected 3 mentioned students, got %v", ctx.MentionedStudents)
	}
	if ctx.MentionedStudents[0] != "Alex" || ctx.MentionedStudents[1] != "Maya" || ctx.MentionedStudents[2] != "Jordan" {
		t.Fatalf("unexpected order: %v", ctx.MentionedStudents)
	}
}

func TestExtractOnlyLatestAssistantTurnChecked(t *testing.T) {
	e := NewExtractor()

	messages := []storex.Message{
		msg("assistant", "Alex, Maya, and Jordan all struggled with the assembly.", "PREDICTION"),
		msg("user", "thanks", ""),
		msg("assistant", "You're welcome.", ""),
		msg("user", "what about tomorrow", ""),
	}

	ctx := e.Extract(messages, roster)
	if ctx.ClassWide {
		t.Fatalf("stale group mention must not flag class-wide; only the latest assistant turn counts")
	}
}

func TestExtractDigestTruncation(t *testing.T) {
	e := NewExtractor()

	longUser := strings.Repeat("u", 150)
	longAssistant := strings.Repeat("a", 400)
	messages := []storex.Message{
		msg("user", longUser, ""),
		msg("assistant", longAssistant, "STRATEGY"),
		msg("user", "next query", ""),
	}

	ctx := e.Extract(messages, roster)

	lines := strings.Split(ctx.HistoryDigest, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 digest lines, got %d: %q", len(lines), ctx.HistoryDigest)
	}
	if len(lines[0]) != len("user: ")+100+3 {
		t.Fatalf("user line not truncated to 100 chars: %d", len(lines[0]))
	}
	if len(lines[1]) != len("assistant: ")+300+3 {
		t.Fatalf("assistant line not truncated to 300 chars: %d", len(lines[1]))
	}
	if !strings.HasSuffix(lines[0], "...") || !strings.HasSuffix(lines[1], "...") {
		t.Fatalf("expected ellipsis markers in digest: %q", ctx.HistoryDigest)
	}
}

func TestNameMatcherWholeWordOnly(t *testing.T) {
	m := newNameMatcher([]string{"Sam", "Alex"})

	if names := m.find("The same assembly upset everyone"); len(names) != 0 {
		t.Fatalf("substring must not match a name, got %v", names)
	}
	if names := m.find("sam was calm today"); len(names) != 1 || names[0] != "Sam" {
		t.Fatalf("expected case-insensitive whole-word match, got %v", names)
	}
}
