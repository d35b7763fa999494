package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/planner.txt
	plannerRaw string

	//go:embed template/synthesis.txt
	synthesisRaw string

	//go:embed template/presenter.txt
	presenterRaw string

	//go:embed template/profile_system.txt
	profileSystemRaw string

	//go:embed template/profile_update.txt
	profileUpdateRaw string

	//go:embed template/strategy_system.txt
	strategySystemRaw string

	//go:embed template/document_system.txt
	documentSystemRaw string

	//go:embed template/prediction_system.txt
	predictionSystemRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Planner          string
	Synthesis        string
	Presenter        string
	ProfileSystem    string
	ProfileUpdate    string
	StrategySystem   string
	DocumentSystem   string
	PredictionSystem string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Planner:          strings.TrimSpace(plannerRaw),
		Synthesis:        strings.TrimSpace(synthesisRaw),
		Presenter:        strings.TrimSpace(presenterRaw),
		ProfileSystem:    strings.TrimSpace(profileSystemRaw),
		ProfileUpdate:    strings.TrimSpace(profileUpdateRaw),
		StrategySystem:   strings.TrimSpace(strategySystemRaw),
		DocumentSystem:   strings.TrimSpace(documentSystemRaw),
		PredictionSystem: strings.TrimSpace(predictionSystemRaw),
	}
}

// Render substitutes {key} placeholders. Unknown placeholders are left
// untouched so a missing variable is visible in the prompt, not silent.
func Render(tpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
