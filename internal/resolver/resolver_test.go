package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/testutil"
)

const (
	baseA = 0x9246B9C0
	baseB = 0x9246CB00
	baseC = 0x92470000
	baseD = 0x92480000
)

func defaultTable(t *testing.T) *config.Table {
	t.Helper()
	table, err := config.LoadDefault()
	require.NoError(t, err)
	return table
}

func TestValidPointer(t *testing.T) {
	table := defaultTable(t)

	tests := []struct {
		name string
		addr uint32
		want bool
	}{
		{"null", 0x00000000, false},
		{"bad sentinel inside MEM1", 0x80520000, false},
		{"MEM1 low edge", 0x80000000, true},
		{"MEM1 high edge excluded", 0x81800000, false},
		{"last aligned MEM1 word", 0x817FFFFC, true},
		{"between windows", 0x8F000000, false},
		{"MEM2 low edge", 0x90000000, true},
		{"MEM2 high edge excluded", 0x94000000, false},
		{"misaligned", 0x90000002, false},
		{"above everything", 0xFFFFFFF0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidPointer(table, tt.addr))
		})
	}
}

func TestResolve_Direct(t *testing.T) {
	w := testutil.NewWorld(t)
	w.Place(model.SlotP1C1, baseA, testutil.Healthy(12))

	r := New(w.Image(), w.Table())
	base, err := r.Resolve(model.SlotP1C1)
	require.NoError(t, err)
	assert.Equal(t, model.AddressOf(baseA), base)
}

func TestResolve_OneIndirectionHop(t *testing.T) {
	w := testutil.NewWorld(t)
	w.PlaceIndirect(model.SlotP2C1, 0x91000000, 0x18, baseB, testutil.Healthy(13))

	r := New(w.Image(), w.Table())
	base, err := r.Resolve(model.SlotP2C1)
	require.NoError(t, err)
	assert.Equal(t, model.AddressOf(baseB), base)
}

func TestResolve_Failures(t *testing.T) {
	w := testutil.NewWorld(t)
	r := New(w.Image(), w.Table())

	// Null anchor.
	_, err := r.Resolve(model.SlotP1C2)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInvalidPointer))

	// Bad sentinel.
	w.SetAnchor(model.SlotP1C2, 0x80520000)
	_, err = r.Resolve(model.SlotP1C2)
	assert.True(t, model.IsKind(err, model.KindInvalidPointer))

	// Valid pointer without a plausible header.
	w.Place(model.SlotP1C2, baseC, testutil.Entity{Max: 5, Current: 5})
	_, err = r.Resolve(model.SlotP1C2)
	assert.True(t, model.IsKind(err, model.KindInvalidPointer))

	// Current above max is not an entity header.
	w.Place(model.SlotP1C2, baseC, testutil.Entity{Max: 20000, Current: 30000})
	_, err = r.Resolve(model.SlotP1C2)
	assert.True(t, model.IsKind(err, model.KindInvalidPointer))
}

func TestResolveAll_Composite(t *testing.T) {
	w := testutil.NewWorld(t)
	w.Place(model.SlotP1C1, baseA, testutil.Healthy(12))
	w.Place(model.SlotP1C2, baseA, testutil.Healthy(12))
	w.Place(model.SlotP2C1, baseC, testutil.Healthy(13))
	w.Place(model.SlotP2C2, baseD, testutil.Healthy(14))

	r := New(w.Image(), w.Table())
	res := r.ResolveAll()

	assert.Equal(t, model.Composite{true, false}, res.Composite)
	for _, s := range model.AllSlots {
		assert.True(t, res.Resolved(s), "slot %s", s)
		assert.NoError(t, res.Errs[s])
	}
}

func TestComposite_BitIdentical(t *testing.T) {
	var bases [model.SlotCount]model.Address
	bases[model.SlotP1C1] = model.AddressOf(baseA)
	bases[model.SlotP1C2] = model.AddressOf(baseA + 4)
	bases[model.SlotP2C1] = model.AddressOf(baseC)
	bases[model.SlotP2C2] = model.AddressOf(baseC)

	assert.Equal(t, model.Composite{false, true}, Composite(bases))

	// Two unresolved slots are never composite.
	assert.Equal(t, model.Composite{false, false}, Composite([model.SlotCount]model.Address{}))
}

func TestResolveAll_GraceHoldsLastGood(t *testing.T) {
	w := testutil.NewWorld(t)
	w.Place(model.SlotP1C1, baseA, testutil.Healthy(12))
	w.Place(model.SlotP1C2, baseA, testutil.Healthy(12))

	table := w.Table()
	table.Resolver.GraceCycles = 2
	r := New(w.Image(), table)

	res := r.ResolveAll()
	require.True(t, res.Resolved(model.SlotP1C1))
	assert.True(t, res.Composite[model.SideP1])

	w.SetAnchor(model.SlotP1C1, 0)

	for i := 0; i < 2; i++ {
		res = r.ResolveAll()
		assert.True(t, res.Held[model.SlotP1C1], "cycle %d within grace", i)
		assert.Equal(t, model.AddressOf(baseA), res.Bases[model.SlotP1C1])
		assert.Error(t, res.Errs[model.SlotP1C1])
		assert.False(t, res.Composite[model.SideP1], "held bases never count as composite")
	}

	res = r.ResolveAll()
	assert.False(t, res.Resolved(model.SlotP1C1), "grace expired")
	assert.False(t, res.Held[model.SlotP1C1])
}

func TestResolveAll_GraceDisabled(t *testing.T) {
	w := testutil.NewWorld(t)
	w.Place(model.SlotP1C1, baseA, testutil.Healthy(12))

	table := w.Table()
	table.Resolver.GraceCycles = 0
	r := New(w.Image(), table)

	res := r.ResolveAll()
	require.True(t, res.Resolved(model.SlotP1C1))
	w.SetAnchor(model.SlotP1C1, 0)
	res = r.ResolveAll()
	assert.False(t, res.Resolved(model.SlotP1C1))
}
