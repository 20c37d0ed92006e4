package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/memory"
	"github.com/roach88/framewatch/internal/model"
)

// EntitySpan is how many bytes World maps per entity: enough to cover the
// mirrored resource bank.
const EntitySpan = 0x9400

// Entity is the raw state World writes into an entity record.
type Entity struct {
	TypeID    uint32
	Max       uint32
	Current   uint32
	Aux       uint32
	LastDelta uint32
	Resource  uint32
	X, Y      float32
	Anim      uint32
	Sub       uint32
	State     uint8

	// YAt overrides the value written at individual vertical-coordinate
	// candidates; candidates not listed receive Y.
	YAt map[uint32]float32

	// MirroredResource writes Resource into the second bank and leaves the
	// first bank at an implausible value.
	MirroredResource bool
}

// Healthy returns a plausible full-health entity of the given type.
func Healthy(typeID uint32) Entity {
	return Entity{TypeID: typeID, Max: 50000, Current: 50000, Aux: 50000, State: 160}
}

// World lays entity records out in a memory Image according to a Table.
type World struct {
	table *config.Table
	img   *memory.Image
}

// NewWorld creates a world over the default table with the anchor block
// mapped and every anchor word zero.
func NewWorld(t testing.TB) *World {
	t.Helper()
	table, err := config.LoadDefault()
	require.NoError(t, err)
	return NewWorldWith(table)
}

// NewWorldWith creates a world over a specific table. The scenario
// harness uses it outside of tests.
func NewWorldWith(table *config.Table) *World {
	w := &World{table: table, img: memory.NewImage()}
	for _, a := range table.Anchors {
		w.img.PutU32(a, 0)
	}
	return w
}

// Table returns the world's configuration.
func (w *World) Table() *config.Table {
	return w.table
}

// Image returns the backing memory.
func (w *World) Image() *memory.Image {
	return w.img
}

// Place points the slot's anchor directly at base and writes e there.
func (w *World) Place(slot model.SlotID, base uint32, e Entity) {
	w.img.PutU32(w.table.Anchors[slot], base)
	w.Write(base, e)
}

// PlaceIndirect points the anchor at holder and stores base at
// holder+probe, so resolution needs one indirection hop.
func (w *World) PlaceIndirect(slot model.SlotID, holder, probe, base uint32, e Entity) {
	w.img.PutU32(w.table.Anchors[slot], holder)
	w.img.Zero(holder, 0x100)
	w.img.PutU32(holder+probe, base)
	w.Write(base, e)
}

// SetAnchor writes a raw anchor word.
func (w *World) SetAnchor(slot model.SlotID, word uint32) {
	w.img.PutU32(w.table.Anchors[slot], word)
}

// Write (re)writes the entity record at base, mapping it on first use.
func (w *World) Write(base uint32, e Entity) {
	if _, err := w.img.ReadRange(base, EntitySpan); err != nil {
		w.img.Zero(base, EntitySpan)
	}
	l := w.table.Layout

	w.img.PutU32(base+l.EntityTypeID.Offset, e.TypeID)
	w.img.PutU32(base+l.MaxValue.Offset, e.Max)
	w.img.PutU32(base+l.CurrentValue.Offset, e.Current)
	w.img.PutU32(base+l.AuxValue.Offset, e.Aux)
	w.img.PutU32(base+l.LastDelta.Offset, e.LastDelta)
	w.img.PutF32(base+l.PositionX.Offset, e.X)
	for _, off := range l.PositionYCandidates {
		y := e.Y
		if v, ok := e.YAt[off]; ok {
			y = v
		}
		w.img.PutF32(base+off, y)
	}

	banks := l.ResourceBanks
	if e.MirroredResource && len(banks) > 1 {
		w.img.PutU32(base+banks[0], 0xFFFFFFFF)
		w.img.PutU32(base+banks[1], e.Resource)
	} else if len(banks) > 0 {
		w.img.PutU32(base+banks[0], e.Resource)
	}

	w.img.PutU32(base+l.AnimationID.Offset, e.Anim)
	w.img.PutU32(base+l.SubActionID.Offset, e.Sub)
	w.img.PutU8(base+l.StateCode.Offset, e.State)
}
