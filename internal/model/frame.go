package model

import "time"

// Frame is the complete output of one polling cycle.
type Frame struct {
	Session    string                    `json:"session,omitempty"`
	Cycle      int64                     `json:"cycle"`
	CapturedAt time.Time                 `json:"captured_at"`
	Snapshots  [SlotCount]EntitySnapshot `json:"snapshots"`
	Hits       []HitEvent                `json:"hits,omitempty"`
	Phases     [SlotCount]PhaseState     `json:"phases"`
	Readiness  [SlotCount]ReadinessState `json:"readiness"`
	Composite  Composite                 `json:"composite"`
	Advantage  *AdvantageResult          `json:"advantage,omitempty"`
	Combos     []ComboSummary            `json:"combos,omitempty"`

	// MoveTableGeneration counts deep-scan results applied so far.
	MoveTableGeneration int `json:"move_table_generation"`
}

// Snapshot returns the snapshot for a slot.
func (f *Frame) Snapshot(s SlotID) EntitySnapshot {
	return f.Snapshots[s]
}
