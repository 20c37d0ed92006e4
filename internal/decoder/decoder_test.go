package decoder

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/testutil"
)

const base = 0x9246B9C0

var addrCmp = cmp.Comparer(func(a, b model.Address) bool { return a == b })

func TestDecode_AllFields(t *testing.T) {
	w := testutil.NewWorld(t)
	w.Place(model.SlotP1C1, base, testutil.Entity{
		TypeID:    12,
		Max:       50000,
		Current:   42000,
		Aux:       45000,
		LastDelta: 3000,
		Resource:  15000,
		X:         -120.5,
		Y:         0,
		Anim:      0x111,
		Sub:       2,
		State:     32,
	})

	d := New(w.Image(), w.Table())
	got := d.Decode(model.SlotP1C1, model.AddressOf(base))

	want := model.EntitySnapshot{
		Slot:              model.SlotP1C1,
		Present:           true,
		Base:              model.AddressOf(base),
		EntityTypeID:      model.Known[uint32](12),
		EntityName:        "Ryu",
		MaxValue:          model.Known[int64](50000),
		CurrentValue:      model.Known[int64](42000),
		AuxValue:          model.Known[int64](45000),
		LastDeltaReceived: model.Known[int64](3000),
		ResourcePrimary:   model.Known[int64](15000),
		PositionX:         model.Known(-120.5),
		PositionY:         model.Known(0.0),
		AnimationID:       model.Known[uint32](0x111),
		SubActionID:       model.Known[uint32](2),
		StateCode:         model.Known[uint8](32),
		Faults:            model.FaultSet(0).Add(model.KindAmbiguousField),
	}
	if diff := cmp.Diff(want, got, addrCmp); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.Reliable())
}

func TestDecode_ZeroBaseIsAbsent(t *testing.T) {
	w := testutil.NewWorld(t)
	d := New(w.Image(), w.Table())

	snap := d.Decode(model.SlotP2C2, model.Address{})
	assert.False(t, snap.Present)
	assert.False(t, snap.Reliable())
	assert.True(t, snap.Faults.Has(model.KindInvalidPointer))
}

func TestDecode_RangeChecks(t *testing.T) {
	tests := []struct {
		name   string
		entity testutil.Entity
		check  func(t *testing.T, s model.EntitySnapshot)
	}{
		{
			name:   "max below band",
			entity: testutil.Entity{Max: 5000, Current: 4000},
			check: func(t *testing.T, s model.EntitySnapshot) {
				assert.False(t, s.MaxValue.Valid)
				assert.True(t, s.Faults.Has(model.KindOutOfRange))
				assert.False(t, s.Reliable())
			},
		},
		{
			name:   "current above max",
			entity: testutil.Entity{Max: 30000, Current: 35000},
			check: func(t *testing.T, s model.EntitySnapshot) {
				assert.True(t, s.Faults.Has(model.KindOutOfRange))
				assert.False(t, s.Reliable(), "values are not surfaced as true state")
			},
		},
		{
			name:   "last delta above band",
			entity: testutil.Entity{Max: 30000, Current: 30000, LastDelta: 250000},
			check: func(t *testing.T, s model.EntitySnapshot) {
				assert.False(t, s.LastDeltaReceived.Valid)
				assert.True(t, s.Reliable(), "a bad delta does not taint the value fields")
			},
		},
		{
			name:   "non-finite position",
			entity: testutil.Entity{Max: 30000, Current: 30000, X: float32(math.Inf(1))},
			check: func(t *testing.T, s model.EntitySnapshot) {
				assert.False(t, s.PositionX.Valid)
				assert.True(t, s.Faults.Has(model.KindOutOfRange))
			},
		},
		{
			name:   "huge position",
			entity: testutil.Entity{Max: 30000, Current: 30000, X: 5e8},
			check: func(t *testing.T, s model.EntitySnapshot) {
				assert.False(t, s.PositionX.Valid)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.NewWorld(t)
			w.Place(model.SlotP1C1, base, tt.entity)
			d := New(w.Image(), w.Table())
			tt.check(t, d.Decode(model.SlotP1C1, model.AddressOf(base)))
		})
	}
}

func TestDecode_UnknownEntityName(t *testing.T) {
	w := testutil.NewWorld(t)
	w.Place(model.SlotP1C1, base, testutil.Healthy(77))

	snap := New(w.Image(), w.Table()).Decode(model.SlotP1C1, model.AddressOf(base))
	assert.Equal(t, "ID_77", snap.EntityName)
}

func TestDecode_MirroredResourceBank(t *testing.T) {
	w := testutil.NewWorld(t)
	e := testutil.Healthy(12)
	e.Resource = 7000
	e.MirroredResource = true
	w.Place(model.SlotP1C1, base, e)

	d := New(w.Image(), w.Table())
	snap := d.Decode(model.SlotP1C1, model.AddressOf(base))
	assert.Equal(t, model.Known[int64](7000), snap.ResourcePrimary)

	// Cached bank sticks while plausible.
	e.Resource = 7100
	w.Write(base, e)
	snap = d.Decode(model.SlotP1C1, model.AddressOf(base))
	assert.Equal(t, model.Known[int64](7100), snap.ResourcePrimary)
}

func TestDecode_VarianceSelectsStableY(t *testing.T) {
	w := testutil.NewWorld(t)
	table := w.Table()
	table.Variance.SampleWindow = 4
	table.Variance.AnomalyThreshold = 10

	d := New(w.Image(), table)
	noisy := []float32{0, 40, -30, 55}

	var snap model.EntitySnapshot
	for i := 0; i < 4; i++ {
		e := testutil.Healthy(12)
		e.Y = noisy[i]
		e.YAt = map[uint32]float32{0xEC: 12.0 + float32(i%2)*0.1}
		w.Place(model.SlotP1C1, base, e)
		snap = d.Decode(model.SlotP1C1, model.AddressOf(base))
		if i < 3 {
			assert.True(t, snap.Faults.Has(model.KindAmbiguousField), "cycle %d still sampling", i)
		}
	}

	assert.False(t, snap.Faults.Has(model.KindAmbiguousField))
	require.True(t, snap.PositionY.Valid)
	assert.InDelta(t, 12.1, snap.PositionY.Value, 1e-4)
}

func TestDecode_BaseChangeResetsSelection(t *testing.T) {
	w := testutil.NewWorld(t)
	table := w.Table()
	table.Variance.SampleWindow = 2
	d := New(w.Image(), table)

	w.Place(model.SlotP1C1, base, testutil.Healthy(12))
	d.Decode(model.SlotP1C1, model.AddressOf(base))
	snap := d.Decode(model.SlotP1C1, model.AddressOf(base))
	require.False(t, snap.Faults.Has(model.KindAmbiguousField))

	const other = 0x92500000
	w.Place(model.SlotP1C1, other, testutil.Healthy(13))
	snap = d.Decode(model.SlotP1C1, model.AddressOf(other))
	assert.True(t, snap.Faults.Has(model.KindAmbiguousField), "new base starts sampling again")
}

func TestDecode_StaleRead(t *testing.T) {
	w := testutil.NewWorld(t)
	table := w.Table()
	table.StaleCycles = 2
	w.Place(model.SlotP1C1, base, testutil.Healthy(12))

	d := New(w.Image(), table)
	for i := 0; i < 3; i++ {
		snap := d.Decode(model.SlotP1C1, model.AddressOf(base))
		assert.False(t, snap.Faults.Has(model.KindStaleRead), "cycle %d", i)
	}
	snap := d.Decode(model.SlotP1C1, model.AddressOf(base))
	assert.True(t, snap.Faults.Has(model.KindStaleRead))
	assert.Equal(t, model.Known[int64](50000), snap.CurrentValue, "values are kept")

	e := testutil.Healthy(12)
	e.Current = 49000
	w.Write(base, e)
	snap = d.Decode(model.SlotP1C1, model.AddressOf(base))
	assert.False(t, snap.Faults.Has(model.KindStaleRead))
}

func TestDecode_Idempotent(t *testing.T) {
	w := testutil.NewWorld(t)
	w.Place(model.SlotP1C1, base, testutil.Healthy(12))

	a := New(w.Image(), w.Table()).Decode(model.SlotP1C1, model.AddressOf(base))
	b := New(w.Image(), w.Table()).Decode(model.SlotP1C1, model.AddressOf(base))
	assert.Empty(t, cmp.Diff(a, b, addrCmp))
}
