package prompt

import (
	"strings"
	"testing"
)

func TestLoadPromptSetNonEmpty(t *testing.T) {
	set := LoadPromptSet()

	prompts := map[string]string{
		"planner":           set.Planner,
		"synthesis":         set.Synthesis,
		"presenter":         set.Presenter,
		"profile_system":    set.ProfileSystem,
		"profile_update":    set.ProfileUpdate,
		"strategy_system":   set.StrategySystem,
		"document_system":   set.DocumentSystem,
		"prediction_system": set.PredictionSystem,
	}
	for name, content := range prompts {
		if strings.TrimSpace(content) == "" {
			t.Fatalf("prompt %s is empty", name)
		}
		if content != strings.TrimSpace(content) {
			t.Fatalf("prompt %s not trimmed", name)
		}
	}
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	out := Render("hello {name}, today is {day}", map[string]string{
		"name": "Alex",
		"day":  "Friday",
	})
	if out != "hello Alex, today is Friday" {
		t.Fatalf("unexpected render: %q", out)
	}
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	out := Render("value: {missing}", map[string]string{"other": "x"})
	if out != "value: {missing}" {
		t.Fatalf("unknown placeholder must stay visible, got %q", out)
	}
}
