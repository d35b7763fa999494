// Package history recovers conversation context from recent messages:
// which student is under discussion, which categories already ran, and a
// short digest of the exchange.
package history

import (
	"regexp"
	"strings"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	tracex "github.com/tanpawarit/co-teacher-agent/agent/trace"
)

const (
	userDigestLimit      = 100
	assistantDigestLimit = 300
	digestMessages       = 3

	// Three or more students in one assistant reply means the discussion
	// had moved to the whole class.
	classWideThreshold = 3
)

// Extractor derives a ConversationContext from message history. Stateless
// and safe for concurrent use.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract inspects history against the student roster. The final message
// is the just-submitted query and is excluded from every scan. A history
// of one message or fewer yields an empty context.
func (e *Extractor) Extract(messages []storex.Message, roster []string) contract.ConversationContext {
	if len(messages) <= 1 {
		return contract.ConversationContext{}
	}
	prior := messages[:len(messages)-1]
	matcher := newNameMatcher(roster)

	ctx := contract.ConversationContext{}
	seenCategory := map[contract.Category]struct{}{}
	for i := len(prior) - 1; i >= 0; i-- {
		msg := prior[i]
		if ctx.RecentStudent == "" {
			if names := matcher.find(msg.Content); len(names) > 0 {
				ctx.RecentStudent = names[0]
			}
		}
		if cat, err := contract.ParseCategory(msg.CategoryUsed); err == nil {
			if _, ok := seenCategory[cat]; !ok {
				seenCategory[cat] = struct{}{}
				ctx.PreviousCategories = append(ctx.PreviousCategories, cat)
			}
		}
	}

	// Multi-student summaries show up in assistant replies, not in the
	// teacher's short directives, so only the latest assistant turn is
	// checked for class-wide discussion.
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].Role != "assistant" {
			continue
		}
		names := matcher.find(prior[i].Content)
		if len(names) >= classWideThreshold {
			ctx.ClassWide = true
			ctx.MentionedStudents = names
		}
		break
	}

	ctx.HistoryDigest = digest(prior)
	return ctx
}

func digest(prior []storex.Message) string {
	start := len(prior) - digestMessages
	if start < 0 {
		start = 0
	}
	var lines []string
	for _, msg := range prior[start:] {
		limit := assistantDigestLimit
		if msg.Role == "user" {
			limit = userDigestLimit
		}
		lines = append(lines, msg.Role+": "+tracex.Snippet(msg.Content, limit))
	}
	return strings.Join(lines, "\n")
}

// nameMatcher finds roster names in free text by whole-word match,
// case-insensitively, reporting each name once in order of appearance.
type nameMatcher struct {
	re        *regexp.Regexp
	canonical map[string]string
}

func newNameMatcher(roster []string) *nameMatcher {
	canonical := make(map[string]string, len(roster))
	var alternates []string
	for _, name := range roster {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		// First name only; replies usually drop the surname.
		first := strings.Fields(name)[0]
		key := strings.ToLower(first)
		if _, ok := canonical[key]; ok {
			continue
		}
		canonical[key] = first
		alternates = append(alternates, regexp.QuoteMeta(first))
	}
	if len(alternates) == 0 {
		return &nameMatcher{canonical: canonical}
	}
	re := regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternates, "|") + `)\b`)
	return &nameMatcher{re: re, canonical: canonical}
}

func (m *nameMatcher) find(text string) []string {
	if m.re == nil {
		return nil
	}
	var names []string
	seen := map[string]struct{}{}
	for _, hit := range m.re.FindAllString(text, -1) {
		key := strings.ToLower(hit)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, m.canonical[key])
	}
	return names
}
