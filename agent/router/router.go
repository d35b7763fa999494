// Package router is the deterministic first stage of query handling. It
// classifies a query into task categories from keyword and regex tables,
// extracting a student name when one is present. No I/O, no LLM calls;
// low-confidence results tell the caller to defer to the planner.
package router

import (
	"regexp"
	"strings"

	"github.com/tanpawarit/co-teacher-agent/agent/contract"
)

const (
	highConfidence   = 0.9
	mediumConfidence = 0.7
	fallbackScore    = 0.3
)

var profileKeywords = []string{
	"profile", "triggers", "trigger", "history",
	"what works for", "learning style",
	"iep goal", "struggling with",
	"their profile", "his profile", "her profile",
	"their triggers", "his triggers", "her triggers",
}

var profilePatternSrc = []string{
	`\b(?P<name>[A-Za-z]+)'s\s+(?:profile|triggers?|history|behavior|parents?)`,
	`(?i)profile\s+(?:for|of)\s+(?P<name>[A-Za-z]+)`,
	`(?i)(?:about|check\s+on|how\s+is|update\s+on)\s+(?P<name>[A-Za-z]+)\b`,
	`(?i)what\s+works\s+for\s+(?P<name>[A-Za-z]+)\b`,
	`\b(?P<name>[A-Za-z]+)\s+(?:is\s+having|had\s+a|has\s+been|was\s+having|started\s+having)`,
	`(?i)help\s+(?P<name>[A-Za-z]+)\s+with`,
	`(?i)(?:strategies?|methods?|tips?|advice)\s+for\s+(?P<name>[A-Za-z]+)\s*[?.]?\s*$`,
}

var strategyKeywords = []string{
	"strategy", "strategies", "method", "methods", "technique",
	"how to teach", "suggest", "recommend", "approach", "intervention",
	"accommodate", "adaptation", "modify", "differentiate",
	"best practice", "evidence-based", "research", "effective",
	"meltdown", "crisis", "behavior", "de-escalation", "calm down",
	"sensory overload", "outburst", "tantrum", "dysregulation",
}

var strategyPatternSrc = []string{
	`(?i)how\s+(?:do\s+i|can\s+i|should\s+i)\s+(?:teach|help|support|engage|motivate|accommodate)`,
	`(?i)what(?:'s|\s+is)\s+the\s+best\s+(?:way|approach|method)\s+to`,
	`(?i)what\s+(?:strategies?|methods?|techniques?)\s+(?:work|help)`,
	`(?i)how\s+to\s+(?:handle|manage|deal\s+with|address)`,
	`(?i)help\s+(?:me\s+)?with\s+(?:a\s+)?(?:meltdown|crisis|behavior|outburst|tantrum|situation)`,
	`(?i)techniques?\s+(?:for|that\s+help\s+with)\s+.+`,
	`(?i)(?:suggest|recommend)\s+(?:some\s+)?(?:methods?|strategies?|techniques?)`,
}

var documentKeywords = []string{
	"draft", "iep", "report", "parent", "email", "message",
	"summary", "documentation", "letter", "meeting",
	"write", "prepare", "create", "send", "communicate",
	"progress report", "incident", "daily summary",
}

var documentPatternSrc = []string{
	`(?i)(?:draft|write|prepare|create)\s+(?:a\s+)?(?:report|email|letter|message|summary|iep)`,
	`(?i)(?:send|prepare)\s+.+?\s+(?:to|for)\s+(?:the\s+)?parent`,
	`(?i)parent\s+(?:communication|update|message|email)`,
	`(?i)iep\s+(?:report|update|draft|summary|meeting|goal)`,
	`(?i)summary\s+(?:of|for)\s+(?:the\s+)?(?:day|week|month|today|yesterday)`,
	`(?i)(?:daily|weekly|monthly)\s+(?:report|summary|update)`,
}

var predictionKeywords = []string{
	"predict", "forecast", "warning", "heads up", "watch for",
	"today's schedule", "upcoming", "any concerns", "prepare for",
	"morning briefing", "daily briefing", "what's happening today",
	"what should i watch", "what to expect", "any risks",
	"who might struggle", "potential issues", "fire drill",
	"field trip", "assembly",
}

var predictionPatternSrc = []string{
	`(?i)what.*(?:watch|prepare|expect).*today`,
	`(?i)any.*(?:concerns?|issues?|challenges?|risks?).*(?:today|this week)`,
	`(?i)(?:daily|morning)\s+(?:briefing|summary|heads\s+up)`,
	`(?i)who\s+(?:might|may|could|will)\s+(?:struggle|have\s+trouble|be\s+affected)`,
	`(?i)predictions?\s+for\s+(?:today|tomorrow|this\s+week)`,
	`(?i)what(?:'s|\s+is)\s+happening\s+today`,
	`(?i)prepare\s+(?:me\s+)?for\s+today`,
}

// Capitalized words that look like names but never are. Captured names in
// this set are discarded and the pattern match skipped.
var nameStoplist = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"i", "me", "my", "he", "she", "they", "we", "you", "it", "him", "her", "them",
		"their", "theirs", "your", "yours", "our", "ours", "its", "his", "hers",
		"what", "who", "where", "when", "how", "why", "which",
		"students", "student", "adhd", "autism", "autistic", "dyslexia",
		"children", "kids", "learners", "teachers", "parents", "class",
		"iep", "goals", "reading", "math", "writing", "behavior",
		"monday", "tuesday", "wednesday", "thursday", "friday",
		"saturday", "sunday", "january", "february", "march", "april",
		"may", "june", "july", "august", "september", "october",
		"november", "december", "today", "yesterday", "tomorrow",
		"check", "update", "draft", "write", "prepare", "create", "send",
		"get", "show", "tell", "help", "suggest", "recommend",
		"the", "a", "an", "this", "that", "meeting", "had", "have", "with",
	} {
		nameStoplist[w] = struct{}{}
	}
}

var followupIndicators = []string{
	"their ", "his ", "her ", "them ",
	"the student", "this student",
	"what about ", "how about ", "what else",
	"any other", "anything else",
	"and what", "also ", "another ",
	"triggers", "what works", "what doesn't",
	"successful methods", "failed methods",
	"profile", "learning style",
}

// Router classifies queries without touching the LLM. Immutable after New,
// safe for concurrent use.
type Router struct {
	profilePatterns    []*regexp.Regexp
	strategyPatterns   []*regexp.Regexp
	documentPatterns   []*regexp.Regexp
	predictionPatterns []*regexp.Regexp

	nameTrailing   *regexp.Regexp
	namePossessive *regexp.Regexp
}

func New() *Router {
	compile := func(srcs []string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, 0, len(srcs))
		for _, src := range srcs {
			out = append(out, regexp.MustCompile(src))
		}
		return out
	}
	return &Router{
		profilePatterns:    compile(profilePatternSrc),
		strategyPatterns:   compile(strategyPatternSrc),
		documentPatterns:   compile(documentPatternSrc),
		predictionPatterns: compile(predictionPatternSrc),

		// Case-sensitive: names are capitalized proper nouns.
		nameTrailing:   regexp.MustCompile(`(?:for|with)\s+(?P<name>[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\s*\??\s*$`),
		namePossessive: regexp.MustCompile(`\b(?P<name>[A-Z][a-z]+)'s\b`),
	}
}

// Classify routes a query to one or more categories. Confidence is the
// maximum across all matched rules, never a combination. A result with
// NeedsFallback set carries no categories and must go to the planner.
func (r *Router) Classify(query string, convCtx contract.ConversationContext) contract.RoutingResult {
	queryLower := strings.ToLower(strings.TrimSpace(query))

	var categories []contract.Category
	entities := map[string]string{}
	confidence := 0.0
	has := func(c contract.Category) bool {
		for _, existing := range categories {
			if existing == c {
				return true
			}
		}
		return false
	}

	// 1. Profile-specific patterns carry the most signal, so they go first.
	if name, ok := matchPatterns(query, r.profilePatterns); ok {
		categories = append(categories, contract.CategoryProfile)
		if name != "" {
			entities["name"] = name
		}
		confidence = max(confidence, highConfidence)
	}

	// 2. Generic name detection, only when no profile pattern hit.
	if !has(contract.CategoryProfile) {
		if name := r.extractNameGeneral(query); name != "" {
			categories = append(categories, contract.CategoryProfile)
			entities["name"] = name
			confidence = max(confidence, highConfidence)
		}
	}

	// 2b. Follow-up about the student from earlier in the conversation.
	if !has(contract.CategoryProfile) && entities["name"] == "" {
		if convCtx.RecentStudent != "" && isFollowup(queryLower) {
			categories = append(categories, contract.CategoryProfile)
			entities["name"] = convCtx.RecentStudent
			confidence = max(confidence, mediumConfidence)
		}
	}

	// 3. Prediction before strategy; briefing queries overlap strategy words.
	if _, ok := matchPatterns(query, r.predictionPatterns); ok {
		categories = append(categories, contract.CategoryPrediction)
		confidence = max(confidence, highConfidence)
	} else if hasKeyword(queryLower, predictionKeywords) {
		categories = append(categories, contract.CategoryPrediction)
		confidence = max(confidence, mediumConfidence)
	}

	// 4. Strategy.
	if _, ok := matchPatterns(query, r.strategyPatterns); ok {
		categories = append(categories, contract.CategoryStrategy)
		confidence = max(confidence, highConfidence)
	} else if hasKeyword(queryLower, strategyKeywords) {
		categories = append(categories, contract.CategoryStrategy)
		confidence = max(confidence, mediumConfidence)
	}

	// 5. Document.
	if _, ok := matchPatterns(query, r.documentPatterns); ok {
		categories = append(categories, contract.CategoryDocument)
		confidence = max(confidence, highConfidence)
	} else if hasKeyword(queryLower, documentKeywords) {
		categories = append(categories, contract.CategoryDocument)
		confidence = max(confidence, mediumConfidence)
	}

	// 6. Bare profile keywords, last resort for the profile category.
	if !has(contract.CategoryProfile) && hasKeyword(queryLower, profileKeywords) {
		categories = append(categories, contract.CategoryProfile)
		confidence = max(confidence, mediumConfidence)
	}

	if len(categories) == 0 {
		return contract.RoutingResult{
			Confidence:    fallbackScore,
			NeedsFallback: true,
		}
	}
	if len(entities) == 0 {
		entities = nil
	}
	return contract.RoutingResult{
		Categories: categories,
		Confidence: confidence,
		Entities:   entities,
	}
}

// ExtractStudentName returns a student name from the query, or "".
func (r *Router) ExtractStudentName(query string) string {
	if name := r.extractNameGeneral(query); name != "" {
		return name
	}
	name, _ := matchPatterns(query, r.profilePatterns)
	return name
}

// matchPatterns returns the first pattern hit. A hit whose captured name is
// in the stoplist is skipped entirely, letting a later pattern still match.
func matchPatterns(query string, patterns []*regexp.Regexp) (name string, matched bool) {
	for _, pattern := range patterns {
		m := pattern.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		idx := pattern.SubexpIndex("name")
		if idx < 0 {
			return "", true
		}
		captured := m[idx]
		if captured == "" {
			return "", true
		}
		if _, stopped := nameStoplist[strings.ToLower(captured)]; stopped {
			continue
		}
		return titleCase(captured), true
	}
	return "", false
}

func (r *Router) extractNameGeneral(query string) string {
	if m := r.nameTrailing.FindStringSubmatch(query); m != nil {
		name := m[r.nameTrailing.SubexpIndex("name")]
		if _, stopped := nameStoplist[strings.ToLower(name)]; !stopped {
			return name
		}
	}

	// Possessive form. Go regexp has no lookbehind, so sentence-initial
	// capitalized words ("Check Alex's" matching "Check") are filtered by
	// inspecting what precedes each match instead.
	for _, loc := range r.namePossessive.FindAllStringSubmatchIndex(query, -1) {
		start := loc[0]
		if start == 0 || sentenceInitial(query, start) {
			continue
		}
		name := query[loc[2]:loc[3]]
		if _, stopped := nameStoplist[strings.ToLower(name)]; stopped {
			continue
		}
		return name
	}
	return ""
}

// sentenceInitial reports whether the text at start immediately follows a
// sentence boundary.
func sentenceInitial(s string, start int) bool {
	i := start - 1
	for i >= 0 && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
		i--
	}
	if i < 0 {
		return true
	}
	switch s[i] {
	case '.', '?', '!':
		return true
	}
	return false
}

func hasKeyword(queryLower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(queryLower, kw) {
			return true
		}
	}
	return false
}

func isFollowup(queryLower string) bool {
	for _, indicator := range followupIndicators {
		if strings.Contains(queryLower, indicator) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
