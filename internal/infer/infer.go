// Package infer turns consecutive snapshot quartets into higher-level
// events: hits with attribution, phases, readiness, timing advantage and
// combos.
//
// Nothing in this package can abort a cycle. Missing or unreliable input
// degrades to "no event", an unchanged phase or "not ready".
package infer

import (
	"log/slog"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/model"
)

// Outcome is everything inferred for one cycle.
type Outcome struct {
	// Hits are ordered by victim slot index.
	Hits      []model.HitEvent
	Phases    [model.SlotCount]model.PhaseState
	Readiness [model.SlotCount]model.ReadinessState
	Advantage *model.AdvantageResult
	Combos    []model.ComboSummary
	TeamGuess string
}

// Inferencer holds the cross-cycle state of event inference.
//
// Thread-safety: not safe for concurrent use; owned by the engine loop.
type Inferencer struct {
	table     *config.Table
	logger    *slog.Logger
	phases    PhaseSource
	frameData FrameDataSource

	hits      *hitDetector
	advantage *AdvantageTracker
	combos    *comboTracker

	lastBase [model.SlotCount]model.Address
}

// Option configures an Inferencer.
type Option func(*Inferencer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Inferencer) {
		i.logger = l
	}
}

// WithPhaseSource replaces the default TablePhaseMachine.
func WithPhaseSource(p PhaseSource) Option {
	return func(i *Inferencer) {
		i.phases = p
	}
}

// New creates an Inferencer for table.
func New(table *config.Table, opts ...Option) *Inferencer {
	i := &Inferencer{
		table:  table,
		logger: slog.Default(),
		hits:   newHitDetector(table.Hit),
		combos: newComboTracker(table.Combo.TimeoutCycles),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.phases == nil {
		i.phases = NewTablePhaseMachine(table.Phases)
	}
	i.advantage = NewAdvantageTracker(table, i.logger)
	return i
}

// SetFrameData installs runtime frame data consulted before the static
// duration table. Passing nil removes it.
func (i *Inferencer) SetFrameData(src FrameDataSource) {
	i.frameData = src
}

// Step infers the events of one cycle from the current and previous
// snapshots of all four slots.
func (i *Inferencer) Step(cur, prev [model.SlotCount]model.EntitySnapshot, cycle int64) Outcome {
	var out Outcome

	for _, s := range model.AllSlots {
		if cur[s].Present && cur[s].Base != i.lastBase[s] {
			if !i.lastBase[s].IsZero() {
				i.phases.Reset(s)
			}
			i.lastBase[s] = cur[s].Base
		}
	}

	out.TeamGuess = GuessTeam(cur, prev, i.table.Hit.TeamDeltaMin)

	for _, s := range model.AllSlots {
		h, ok := i.hits.detect(s, cur[s], prev[s], cycle)
		if !ok {
			continue
		}
		attribute(&h, cur, i.table)
		h.TeamGuess = out.TeamGuess
		h.CapturedAt = cur[s].CapturedAt

		i.logger.Debug("hit", "event", h.String(), "source", h.Source)
		i.advantage.Open(h)
		i.combos.add(cur[s].Base, h)
		out.Hits = append(out.Hits, h)
	}

	for _, s := range model.AllSlots {
		out.Phases[s] = i.phases.Phase(s, cur[s])
		out.Readiness[s] = Readiness(cur[s])
	}

	out.Advantage = i.advantage.Observe(cur, cycle, i.frameData)
	out.Combos = i.combos.expire(cycle)
	return out
}

// Flush closes and returns every open combo, for use at shutdown.
func (i *Inferencer) Flush() []model.ComboSummary {
	return i.combos.flush()
}

// Reset clears all cross-cycle state.
func (i *Inferencer) Reset() {
	i.hits.reset()
	i.advantage.Reset()
	i.combos.flush()
	for _, s := range model.AllSlots {
		i.phases.Reset(s)
	}
	i.lastBase = [model.SlotCount]model.Address{}
}
