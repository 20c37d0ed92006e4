package model

import "fmt"

// SlotID identifies one of the four tracked entity positions.
type SlotID int

const (
	// SlotNone marks the absence of a slot (e.g. no attributable attacker).
	SlotNone SlotID = -1

	SlotP1C1 SlotID = 0
	SlotP1C2 SlotID = 1
	SlotP2C1 SlotID = 2
	SlotP2C2 SlotID = 3
)

// SlotCount is the fixed number of tracked slots.
const SlotCount = 4

// AllSlots lists the slots in index order. Iteration order is significant:
// hits are emitted and ties are broken in this order.
var AllSlots = [SlotCount]SlotID{SlotP1C1, SlotP1C2, SlotP2C1, SlotP2C2}

var slotLabels = [SlotCount]string{"P1-C1", "P1-C2", "P2-C1", "P2-C2"}

// Side is one of the two opposing teams.
type Side int

const (
	SideP1 Side = 0
	SideP2 Side = 1
)

// String returns "P1" or "P2".
func (s Side) String() string {
	switch s {
	case SideP1:
		return "P1"
	case SideP2:
		return "P2"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Slots returns the lead and partner slots of the side.
func (s Side) Slots() [2]SlotID {
	if s == SideP1 {
		return [2]SlotID{SlotP1C1, SlotP1C2}
	}
	return [2]SlotID{SlotP2C1, SlotP2C2}
}

// Valid reports whether the slot is one of the four tracked slots.
func (s SlotID) Valid() bool {
	return s >= 0 && s < SlotCount
}

// String returns the display label ("P1-C1" ... "P2-C2"), or "--" for SlotNone.
func (s SlotID) String() string {
	if !s.Valid() {
		return "--"
	}
	return slotLabels[s]
}

// Side returns the team the slot belongs to.
func (s SlotID) Side() Side {
	if s == SlotP1C1 || s == SlotP1C2 {
		return SideP1
	}
	return SideP2
}

// Partner returns the other slot on the same side.
func (s SlotID) Partner() SlotID {
	switch s {
	case SlotP1C1:
		return SlotP1C2
	case SlotP1C2:
		return SlotP1C1
	case SlotP2C1:
		return SlotP2C2
	case SlotP2C2:
		return SlotP2C1
	}
	return SlotNone
}

// Opponents returns the two slots of the opposing side, lowest index first.
func (s SlotID) Opponents() [2]SlotID {
	if s.Side() == SideP1 {
		return SideP2.Slots()
	}
	return SideP1.Slots()
}

// ParseSlot maps a label such as "P2-C1" back to its SlotID.
func ParseSlot(label string) (SlotID, error) {
	for i, l := range slotLabels {
		if l == label {
			return SlotID(i), nil
		}
	}
	return SlotNone, fmt.Errorf("unknown slot %q", label)
}
