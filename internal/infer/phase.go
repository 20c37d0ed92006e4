package infer

import (
	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/model"
)

// PhaseSource produces the phase of each slot's transient sub-entity.
//
// TablePhaseMachine is a best-effort heuristic; a more precise source can
// replace it without touching the rest of the inferencer.
type PhaseSource interface {
	Phase(slot model.SlotID, snap model.EntitySnapshot) model.PhaseState
	Reset(slot model.SlotID)
}

// Transitions maps (current phase, classified target) to the next phase.
type Transitions map[model.PhaseState]map[model.PhaseState]model.PhaseState

// CycleTransitions builds the fixed-cycle table: staying put when the
// target is the current phase, otherwise moving exactly one step along
// None -> EngagingIn -> Acting -> Recovering -> None.
func CycleTransitions() Transitions {
	t := make(Transitions, model.PhaseCount)
	for from := model.PhaseState(0); from < model.PhaseCount; from++ {
		row := make(map[model.PhaseState]model.PhaseState, model.PhaseCount)
		for target := model.PhaseState(0); target < model.PhaseCount; target++ {
			if target == from {
				row[target] = from
			} else {
				row[target] = from.Next()
			}
		}
		t[from] = row
	}
	return t
}

// TablePhaseMachine classifies a slot's animation id against the
// configured id sets and steps along the transition table.
//
// An id outside every set, an unknown id or an absent snapshot leaves the
// phase unchanged.
type TablePhaseMachine struct {
	phases      config.Phases
	transitions Transitions
	current     [model.SlotCount]model.PhaseState
}

// NewTablePhaseMachine creates a machine with the fixed-cycle transitions.
func NewTablePhaseMachine(phases config.Phases) *TablePhaseMachine {
	return &TablePhaseMachine{
		phases:      phases,
		transitions: CycleTransitions(),
	}
}

// Phase advances and returns the slot's phase for this cycle.
func (m *TablePhaseMachine) Phase(slot model.SlotID, snap model.EntitySnapshot) model.PhaseState {
	if !slot.Valid() {
		return model.PhaseNone
	}
	cur := m.current[slot]
	if !snap.Present {
		return cur
	}
	id, ok := snap.AnimationID.Get()
	if !ok {
		return cur
	}
	target, mapped := m.phases.Classify(id)
	if !mapped {
		return cur
	}
	if next, ok := m.transitions[cur][target]; ok {
		m.current[slot] = next
	}
	return m.current[slot]
}

// Reset returns the slot to PhaseNone.
func (m *TablePhaseMachine) Reset(slot model.SlotID) {
	if slot.Valid() {
		m.current[slot] = model.PhaseNone
	}
}
