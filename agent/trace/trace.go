// Package trace collects the per-request step log surfaced to API callers.
//
// A Collector belongs to exactly one request and is passed explicitly down
// the call chain. It is not safe for concurrent appends; plan steps execute
// sequentially so none happen.
package trace

import "strings"

// Step records one LLM-backed action: which module ran it, a digest of what
// was sent, and a digest of what came back. Observability only, no
// behavioral weight.
type Step struct {
	Module   string         `json:"module"`
	Prompt   map[string]any `json:"prompt"`
	Response map[string]any `json:"response"`
}

type Collector struct {
	steps []Step
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Append(module string, prompt, response map[string]any) {
	if c == nil {
		return
	}
	c.steps = append(c.steps, Step{Module: module, Prompt: prompt, Response: response})
}

func (c *Collector) Steps() []Step {
	if c == nil {
		return nil
	}
	return c.steps
}

func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	return len(c.steps)
}

// ModulesUsed returns distinct module names in order of first appearance.
func (c *Collector) ModulesUsed() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(c.steps))
	var modules []string
	for _, step := range c.steps {
		if _, ok := seen[step.Module]; ok {
			continue
		}
		seen[step.Module] = struct{}{}
		modules = append(modules, step.Module)
	}
	return modules
}

// Snippet truncates s to at most n runes for step digests.
func Snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
