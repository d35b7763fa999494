// Package llm holds per-module model selection. Every module defaults to
// the client's configured chat model; overrides let the planner run on a
// cheaper model than the specialists, or vice versa.
package llm

import (
	"github.com/tanpawarit/co-teacher-agent/agent/contract"
)

type Config struct {
	PlannerModel    string `envconfig:"PLANNER_MODEL" split_words:"true"`
	PresenterModel  string `envconfig:"PRESENTER_MODEL" split_words:"true"`
	ProfileModel    string `envconfig:"PROFILE_MODEL" split_words:"true"`
	StrategyModel   string `envconfig:"STRATEGY_MODEL" split_words:"true"`
	DocumentModel   string `envconfig:"DOCUMENT_MODEL" split_words:"true"`
	PredictionModel string `envconfig:"PREDICTION_MODEL" split_words:"true"`
}

// Models resolves which model each module should use. An empty string
// defers to the llmod client's default.
type Models struct {
	cfg Config
}

func NewModels(cfg Config) Models {
	return Models{cfg: cfg}
}

func (m Models) Planner() string {
	return m.cfg.PlannerModel
}

func (m Models) Presenter() string {
	return m.cfg.PresenterModel
}

func (m Models) ForCategory(c contract.Category) string {
	switch c {
	case contract.CategoryProfile:
		return m.cfg.ProfileModel
	case contract.CategoryStrategy:
		return m.cfg.StrategyModel
	case contract.CategoryDocument:
		return m.cfg.DocumentModel
	case contract.CategoryPrediction:
		return m.cfg.PredictionModel
	default:
		return ""
	}
}
