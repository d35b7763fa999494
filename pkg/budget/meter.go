// Package budget tracks cumulative LLM spend for the whole process.
//
// Every completion and embedding call draws from the same ceiling, so the
// meter is the one piece of shared mutable state in the system. The counter
// only ever increases; ordering of increments across concurrent requests does
// not affect correctness, only which request trips the ceiling first.
package budget

import (
	"errors"
	"fmt"
	"sync"

	logx "github.com/tanpawarit/co-teacher-agent/pkg/logger"
)

var ErrExceeded = errors.New("llm budget exceeded")

type Config struct {
	LimitUSD         float64 `envconfig:"LIMIT_USD" split_words:"true" default:"5.0"`
	WarningThreshold float64 `envconfig:"WARNING_THRESHOLD" split_words:"true" default:"0.8"`
}

// Meter is a mutex-guarded cumulative cost counter with a hard ceiling.
type Meter struct {
	mu       sync.Mutex
	limitUSD float64
	warnAt   float64
	spentUSD float64
	warned   bool
}

func NewMeter(cfg Config) *Meter {
	limit := cfg.LimitUSD
	if limit <= 0 {
		limit = 5.0
	}
	warnAt := cfg.WarningThreshold
	if warnAt <= 0 || warnAt >= 1 {
		warnAt = 0.8
	}
	return &Meter{limitUSD: limit, warnAt: warnAt}
}

// Reserve fails with ErrExceeded when the estimated cost would cross the
// ceiling. Call before every external LLM call.
func (m *Meter) Reserve(estimatedUSD float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spentUSD+estimatedUSD > m.limitUSD {
		return fmt.Errorf("%w: spent=%.4f estimated=%.4f limit=%.4f",
			ErrExceeded, m.spentUSD, estimatedUSD, m.limitUSD)
	}
	return nil
}

// Spend records the actual cost of a completed call.
func (m *Meter) Spend(actualUSD float64) {
	if actualUSD <= 0 {
		return
	}
	m.mu.Lock()
	m.spentUSD += actualUSD
	crossed := !m.warned && m.spentUSD >= m.limitUSD*m.warnAt
	if crossed {
		m.warned = true
	}
	spent := m.spentUSD
	m.mu.Unlock()

	if crossed {
		lg := logx.Component("budget")
		lg.Warn().
			Float64("spent_usd", spent).
			Float64("limit_usd", m.limitUSD).
			Msg("llm spend crossed warning threshold")
	}
}

// SpentUSD reports the cumulative spend so far.
func (m *Meter) SpentUSD() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spentUSD
}
