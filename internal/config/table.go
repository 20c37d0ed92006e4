package config

import (
	"fmt"
	"time"

	"github.com/roach88/framewatch/internal/model"
)

// Kind is the declared encoding of a fixed-offset field. All kinds are
// big-endian.
type Kind string

const (
	KindU8  Kind = "u8"
	KindU32 Kind = "u32"
	KindI32 Kind = "i32"
	KindF32 Kind = "f32"
)

// Size returns the field width in bytes.
func (k Kind) Size() uint32 {
	if k == KindU8 {
		return 1
	}
	return 4
}

// FieldSpec locates one field relative to a resolved base.
type FieldSpec struct {
	Offset uint32
	Kind   Kind
}

// Window is a half-open guest address range [Lo, Hi).
type Window struct {
	Lo uint32
	Hi uint32
}

// Contains reports whether addr lies in [Lo, Hi).
func (w Window) Contains(addr uint32) bool {
	return addr >= w.Lo && addr < w.Hi
}

// Len returns the window size in bytes.
func (w Window) Len() uint32 {
	return w.Hi - w.Lo
}

// String formats the window as [lo, hi).
func (w Window) String() string {
	return fmt.Sprintf("[0x%08X, 0x%08X)", w.Lo, w.Hi)
}

// Resolver holds pointer validation parameters.
type Resolver struct {
	Windows      []Window
	BadPointers  map[uint32]struct{}
	Alignment    uint32
	ProbeOffsets []uint32
	GraceCycles  int
}

// Layout is the struct field layout of an entity record.
type Layout struct {
	EntityTypeID FieldSpec
	MaxValue     FieldSpec
	CurrentValue FieldSpec
	AuxValue     FieldSpec
	LastDelta    FieldSpec
	PositionX    FieldSpec

	// PositionYKind and PositionYCandidates describe the ambiguous
	// vertical coordinate; the decoder picks one candidate at runtime.
	PositionYKind       Kind
	PositionYCandidates []uint32

	// ResourceBanks are alternative offsets of the same resource counter.
	ResourceKind  Kind
	ResourceBanks []uint32

	AnimationID FieldSpec
	SubActionID FieldSpec
	StateCode   FieldSpec
}

// Bands are plausibility ranges applied by the decoder.
type Bands struct {
	MaxValueMin int64
	MaxValueMax int64
	DeltaMax    int64
	ResourceMax int64
	FloatAbsMax float64
}

// Variance tunes ambiguous-offset selection.
type Variance struct {
	SampleWindow     int
	AnomalyThreshold float64
}

// Hit tunes hit detection and attribution.
type Hit struct {
	NoiseThreshold       int64
	CooldownCycles       int
	MaxContactDistanceSq float64
	TeamDeltaMin         int64
}

// Combo tunes combo aggregation.
type Combo struct {
	TimeoutCycles int
}

// Advantage holds the state-code sets and tunables of the timing
// advantage tracker.
type Advantage struct {
	ContactTimeoutCycles    int
	Tolerance               int64
	IdleStates              StateSet
	AttackingStates         StateSet
	LockedStates            StateSet
	AttackerRecoveredStates []uint8
	VictimRecoveredStates   []uint8
}

// StateSet is a set of state codes.
type StateSet map[uint8]struct{}

// Has reports whether code is in the set.
func (s StateSet) Has(code uint8) bool {
	_, ok := s[code]
	return ok
}

// Phases maps animation ids to the phase they classify as.
type Phases struct {
	byID map[uint32]model.PhaseState
}

// NewPhases builds a phase mapping from an id->phase map. The map is copied.
func NewPhases(byID map[uint32]model.PhaseState) Phases {
	cp := make(map[uint32]model.PhaseState, len(byID))
	for id, ph := range byID {
		cp[id] = ph
	}
	return Phases{byID: cp}
}

// Classify returns the phase an animation id belongs to, and false when
// the id is outside every configured set.
func (p Phases) Classify(id uint32) (model.PhaseState, bool) {
	ph, ok := p.byID[id]
	return ph, ok
}

// Len returns the number of mapped animation ids.
func (p Phases) Len() int {
	return len(p.byID)
}

// FrameData is the timing of one move, in frames.
type FrameData struct {
	MoveID    uint32 `json:"move_id"`
	Startup   int64  `json:"startup"`
	Active    int64  `json:"active"`
	Recovery  int64  `json:"recovery"`
	Hitstun   int64  `json:"hitstun"`
	Blockstun int64  `json:"blockstun"`
}

// AdvantageOnHit is hitstun minus recovery.
func (f FrameData) AdvantageOnHit() int64 {
	return f.Hitstun - f.Recovery
}

// AdvantageOnBlock is blockstun minus recovery.
func (f FrameData) AdvantageOnBlock() int64 {
	return f.Blockstun - f.Recovery
}

// DebugFlag is a writable byte exposed for guarded debug pokes.
type DebugFlag struct {
	Name string
	Addr uint32
	Note string
}

// Debug holds the poke allowlist.
type Debug struct {
	RevertAfter time.Duration
	Flags       []DebugFlag
}

// Flag looks a debug flag up by name.
func (d Debug) Flag(name string) (DebugFlag, bool) {
	for _, f := range d.Flags {
		if f.Name == name {
			return f, true
		}
	}
	return DebugFlag{}, false
}

// Allowed reports whether addr is on the allowlist.
func (d Debug) Allowed(addr uint32) bool {
	for _, f := range d.Flags {
		if f.Addr == addr {
			return true
		}
	}
	return false
}

// Scan configures the deep move-table scan.
type Scan struct {
	Region      Window
	EveryCycles int
}

// Table is the complete, immutable per-build configuration.
//
// A Table is produced once by Load and shared read-only by every
// component; nothing mutates it after construction.
type Table struct {
	Name     string
	Anchors  [model.SlotCount]uint32
	Resolver Resolver
	Layout   Layout
	Bands    Bands
	Variance Variance

	// StaleCycles is the number of identical consecutive reads tolerated
	// before a snapshot is flagged stale. Zero disables the check.
	StaleCycles int

	Hit       Hit
	Combo     Combo
	Advantage Advantage
	Phases    Phases

	EntityNames map[uint32]string
	MoveLabels  *MoveLabels
	Durations   map[uint32]FrameData
	Debug       Debug
	Scan        Scan
}

// EntityName returns the display name of an entity type id, or ID_<n>.
func (t *Table) EntityName(id uint32) string {
	if name, ok := t.EntityNames[id]; ok {
		return name
	}
	return fmt.Sprintf("ID_%d", id)
}

// Duration returns the static frame data of a move.
func (t *Table) Duration(move uint32) (FrameData, bool) {
	fd, ok := t.Durations[move]
	return fd, ok
}

// InWindow reports whether addr lies in any configured window.
func (t *Table) InWindow(addr uint32) bool {
	for _, w := range t.Resolver.Windows {
		if w.Contains(addr) {
			return true
		}
	}
	return false
}
