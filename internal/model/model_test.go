package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlot_SidesAndOpponents(t *testing.T) {
	tests := []struct {
		slot      SlotID
		side      Side
		partner   SlotID
		opponents [2]SlotID
		label     string
	}{
		{SlotP1C1, SideP1, SlotP1C2, [2]SlotID{SlotP2C1, SlotP2C2}, "P1-C1"},
		{SlotP1C2, SideP1, SlotP1C1, [2]SlotID{SlotP2C1, SlotP2C2}, "P1-C2"},
		{SlotP2C1, SideP2, SlotP2C2, [2]SlotID{SlotP1C1, SlotP1C2}, "P2-C1"},
		{SlotP2C2, SideP2, SlotP2C1, [2]SlotID{SlotP1C1, SlotP1C2}, "P2-C2"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.True(t, tt.slot.Valid())
			assert.Equal(t, tt.side, tt.slot.Side())
			assert.Equal(t, tt.partner, tt.slot.Partner())
			assert.Equal(t, tt.opponents, tt.slot.Opponents())
			assert.Equal(t, tt.label, tt.slot.String())

			parsed, err := ParseSlot(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.slot, parsed)
		})
	}
}

func TestSlot_None(t *testing.T) {
	assert.False(t, SlotNone.Valid())
	assert.Equal(t, "--", SlotNone.String())

	_, err := ParseSlot("P3-C1")
	assert.Error(t, err)
}

func TestField_UnknownRendersAsDashes(t *testing.T) {
	f := Unknown[int64]()
	assert.Equal(t, "--", f.String())
	assert.Equal(t, int64(7), f.Or(7))

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	k := Known[int64](42)
	assert.Equal(t, "42", k.String())
	b, err = json.Marshal(k)
	require.NoError(t, err)
	assert.Equal(t, "42", string(b))
}

func TestAddress_Offset(t *testing.T) {
	a := AddressOf(0x9246B9C0)
	assert.False(t, a.IsZero())
	assert.Equal(t, uint32(0x9246B9E8), a.Offset(0x28))
	assert.Equal(t, "0x9246B9C0", a.String())
	assert.Equal(t, "--", Address{}.String())
}

func TestFaultSet(t *testing.T) {
	var f FaultSet
	assert.True(t, f.Empty())
	assert.Equal(t, "ok", f.String())

	f = f.Add(KindOutOfRange).Add(KindStaleRead)
	assert.True(t, f.Has(KindOutOfRange))
	assert.True(t, f.Has(KindStaleRead))
	assert.False(t, f.Has(KindInvalidPointer))
	assert.Equal(t, "OUT_OF_RANGE|STALE_READ", f.String())
}

func TestParseErrorKind(t *testing.T) {
	k, ok := ParseErrorKind("STALE_READ")
	assert.True(t, ok)
	assert.Equal(t, KindStaleRead, k)

	_, ok = ParseErrorKind("stale_read")
	assert.False(t, ok)
}

func TestError_IsKind(t *testing.T) {
	err := NewError(KindInvalidPointer, 0x80520000, "anchor word rejected")
	wrapped := errorsJoin(err)

	assert.True(t, IsKind(wrapped, KindInvalidPointer))
	assert.False(t, IsKind(wrapped, KindOutOfRange))
	assert.Contains(t, err.Error(), "INVALID_POINTER")
	assert.Contains(t, err.Error(), "@0x80520000")
}

func errorsJoin(err error) error {
	return &wrapErr{err}
}

type wrapErr struct{ inner error }

func (w *wrapErr) Error() string { return "resolve: " + w.inner.Error() }
func (w *wrapErr) Unwrap() error { return w.inner }

func TestSnapshot_Reliable(t *testing.T) {
	snap := EntitySnapshot{
		Present:      true,
		MaxValue:     Known[int64](50000),
		CurrentValue: Known[int64](42000),
	}
	assert.True(t, snap.Reliable())

	pct, ok := snap.ValuePercent()
	require.True(t, ok)
	assert.InDelta(t, 84.0, pct, 0.001)

	snap.CurrentValue = Known[int64](60000)
	assert.False(t, snap.Reliable(), "current above max is never reliable")

	absent := Absent(SlotP2C1, 3, time.Time{})
	assert.False(t, absent.Reliable())
	assert.True(t, absent.Faults.Has(KindInvalidPointer))
}

func TestDistanceSquared(t *testing.T) {
	a := EntitySnapshot{PositionX: Known(0.0), PositionY: Known(0.0)}
	b := EntitySnapshot{PositionX: Known(3.0), PositionY: Known(4.0)}

	d2, ok := DistanceSquared(a, b)
	require.True(t, ok)
	assert.Equal(t, 25.0, d2)

	b.PositionY = Unknown[float64]()
	_, ok = DistanceSquared(a, b)
	assert.False(t, ok)
}

func TestPhaseState_Cycle(t *testing.T) {
	p := PhaseNone
	seen := []PhaseState{p}
	for i := 0; i < PhaseCount; i++ {
		p = p.Next()
		seen = append(seen, p)
	}
	assert.Equal(t, []PhaseState{PhaseNone, PhaseEngagingIn, PhaseActing, PhaseRecovering, PhaseNone}, seen)

	parsed, err := ParsePhase("recovering")
	require.NoError(t, err)
	assert.Equal(t, PhaseRecovering, parsed)

	_, err = ParsePhase("flying")
	assert.Error(t, err)
}
