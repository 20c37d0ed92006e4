package model

import (
	"fmt"
	"time"
)

// HitSource records which signal produced a hit.
type HitSource string

const (
	// HitSourceLastDelta: the last-delta-received field pulsed to a new value.
	HitSourceLastDelta HitSource = "last_delta"

	// HitSourceValueDrop: the current value fell by more than the noise threshold.
	HitSourceValueDrop HitSource = "value_drop"
)

// HitEvent is an inferred hit on a victim slot.
//
// Attacker is SlotNone when no opponent could be attributed; DistanceSquared
// is then -1. Hit events are only constructed by the inferencer and are
// never mutated after emission.
type HitEvent struct {
	Victim          SlotID        `json:"victim"`
	Attacker        SlotID        `json:"attacker"`
	Delta           int64         `json:"delta"`
	ValueBefore     int64         `json:"value_before"`
	ValueAfter      int64         `json:"value_after"`
	Cycle           int64         `json:"cycle"`
	DistanceSquared float64       `json:"distance_squared"`
	Source          HitSource     `json:"source"`
	MoveID          Field[uint32] `json:"move_id"`
	MoveName        string        `json:"move_name,omitempty"`
	TeamGuess       string        `json:"team_guess,omitempty"`
	CapturedAt      time.Time     `json:"captured_at"`
}

// String renders a one-line log form of the hit.
func (h HitEvent) String() string {
	return fmt.Sprintf("HIT %s dmg=%d hp:%d->%d from %s move=%s d2=%.3f",
		h.Victim, h.Delta, h.ValueBefore, h.ValueAfter, h.Attacker, h.MoveID, h.DistanceSquared)
}

// PhaseState is the coarse activity phase of a slot's transient sub-entity.
type PhaseState int

const (
	PhaseNone PhaseState = iota
	PhaseEngagingIn
	PhaseActing
	PhaseRecovering
)

// PhaseCount is the number of phases in the cycle.
const PhaseCount = 4

var phaseNames = [PhaseCount]string{"none", "engaging_in", "acting", "recovering"}

// String returns the snake_case phase name.
func (p PhaseState) String() string {
	if p < 0 || int(p) >= PhaseCount {
		return fmt.Sprintf("PhaseState(%d)", int(p))
	}
	return phaseNames[p]
}

// Next returns the successor along the fixed cycle
// None -> EngagingIn -> Acting -> Recovering -> None.
func (p PhaseState) Next() PhaseState {
	return (p + 1) % PhaseCount
}

// ParsePhase maps a phase name back to its value.
func ParsePhase(name string) (PhaseState, error) {
	for i, n := range phaseNames {
		if n == name {
			return PhaseState(i), nil
		}
	}
	return PhaseNone, fmt.Errorf("unknown phase %q", name)
}

// MarshalText renders the phase name for JSON output.
func (p PhaseState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ReadinessState is derived from two same-cycle fields of one snapshot.
// IsReady holds iff PrimaryValue != PoolValue.
type ReadinessState struct {
	Known          bool    `json:"known"`
	PrimaryValue   int64   `json:"primary_value"`
	PoolValue      int64   `json:"pool_value"`
	IsReady        bool    `json:"is_ready"`
	ReserveAmount  int64   `json:"reserve_amount"`
	ReservePercent float64 `json:"reserve_percent"`
}

// Composite holds the shared-base condition per side, indexed by Side.
type Composite [2]bool

// AdvantageResult is a finalized timing-advantage measurement for one
// attacker/victim interaction. Positive values mean the attacker recovered
// first.
type AdvantageResult struct {
	Attacker      SlotID        `json:"attacker"`
	Victim        SlotID        `json:"victim"`
	MoveID        Field[uint32] `json:"move_id"`
	Raw           int64         `json:"raw"`
	Predicted     int64         `json:"predicted"`
	HasPrediction bool          `json:"has_prediction"`
	Value         int64         `json:"value"`
	Corrected     bool          `json:"corrected"`
	Cycle         int64         `json:"cycle"`
}

// ComboSummary aggregates consecutive hits on one victim.
type ComboSummary struct {
	Victim     SlotID `json:"victim"`
	Attacker   SlotID `json:"attacker"`
	Hits       int    `json:"hits"`
	Total      int64  `json:"total"`
	ValueStart int64  `json:"value_start"`
	ValueEnd   int64  `json:"value_end"`
	StartCycle int64  `json:"start_cycle"`
	EndCycle   int64  `json:"end_cycle"`
	TeamGuess  string `json:"team_guess,omitempty"`
}
