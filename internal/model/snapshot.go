package model

import "time"

// EntitySnapshot is one slot's decoded state for one cycle.
//
// A snapshot with Present == false means the slot did not resolve this
// cycle; every field is then unknown. Present snapshots may still carry
// faults; Reliable reports whether the core value fields can be trusted.
type EntitySnapshot struct {
	Slot    SlotID  `json:"slot"`
	Present bool    `json:"present"`
	Base    Address `json:"base"`

	EntityTypeID Field[uint32] `json:"entity_type_id"`
	EntityName   string        `json:"entity_name"`

	MaxValue          Field[int64] `json:"max_value"`
	CurrentValue      Field[int64] `json:"current_value"`
	AuxValue          Field[int64] `json:"aux_value"`
	LastDeltaReceived Field[int64] `json:"last_delta_received"`
	ResourcePrimary   Field[int64] `json:"resource_primary"`

	PositionX Field[float64] `json:"position_x"`
	PositionY Field[float64] `json:"position_y"`

	AnimationID Field[uint32] `json:"animation_id"`
	SubActionID Field[uint32] `json:"sub_action_id"`
	StateCode   Field[uint8]  `json:"state_code"`

	Cycle      int64     `json:"cycle"`
	CapturedAt time.Time `json:"captured_at"`
	Faults     FaultSet  `json:"faults"`
}

// Absent returns the snapshot of a slot that did not resolve.
func Absent(slot SlotID, cycle int64, at time.Time) EntitySnapshot {
	return EntitySnapshot{
		Slot:       slot,
		Cycle:      cycle,
		CapturedAt: at,
		Faults:     FaultSet(0).Add(KindInvalidPointer),
	}
}

// Reliable reports whether the snapshot's value fields may be surfaced as
// true state: present, max and current both valid, and 0 <= current <= max.
func (s EntitySnapshot) Reliable() bool {
	if !s.Present || !s.MaxValue.Valid || !s.CurrentValue.Valid {
		return false
	}
	return s.CurrentValue.Value >= 0 && s.CurrentValue.Value <= s.MaxValue.Value
}

// HasPosition reports whether both coordinates are known.
func (s EntitySnapshot) HasPosition() bool {
	return s.PositionX.Valid && s.PositionY.Valid
}

// DistanceSquared returns the squared Euclidean distance between two
// snapshots and whether it could be computed.
func DistanceSquared(a, b EntitySnapshot) (float64, bool) {
	if !a.HasPosition() || !b.HasPosition() {
		return 0, false
	}
	dx := a.PositionX.Value - b.PositionX.Value
	dy := a.PositionY.Value - b.PositionY.Value
	return dx*dx + dy*dy, true
}

// ValuePercent returns current/max as a percentage when both are known.
func (s EntitySnapshot) ValuePercent() (float64, bool) {
	if !s.Reliable() || s.MaxValue.Value == 0 {
		return 0, false
	}
	return float64(s.CurrentValue.Value) * 100 / float64(s.MaxValue.Value), true
}
