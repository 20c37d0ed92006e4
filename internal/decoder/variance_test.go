package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleVariance(t *testing.T) {
	v, ok := SampleVariance([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.True(t, ok)
	assert.InDelta(t, 32.0/7.0, v, 1e-9, "n-1 denominator")

	_, ok = SampleVariance([]float64{1})
	assert.False(t, ok)
}

func TestChoose_LowestVarianceWins(t *testing.T) {
	samples := [][]float64{
		{0, 10, 0, 10},
		{5, 5.1, 5, 5.1},
		{1, 2, 3, 4},
	}
	idx, _, ok := Choose(samples)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestChoose_TieGoesToEarlier(t *testing.T) {
	samples := [][]float64{
		{1, 2, 1, 2},
		{7, 8, 7, 8},
	}
	idx, _, ok := Choose(samples)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestChoose_SkipsUnderSampled(t *testing.T) {
	samples := [][]float64{
		{3},
		{},
		{1, 9, 1, 9},
	}
	idx, _, ok := Choose(samples)
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, _, ok = Choose([][]float64{{}, {1}})
	assert.False(t, ok, "no candidate had two readings")
}

func TestChoose_IdempotentOverUnchangedWindow(t *testing.T) {
	samples := [][]float64{
		{0.5, 0.7, 0.4, 0.9, 0.6},
		{100, 120, 80, 140, 60},
		{0.5, 0.7, 0.4, 0.9, 0.6},
		{-3, -3, -3.1, -3, -2.9},
	}
	first, firstVar, ok := Choose(samples)
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		idx, v, ok := Choose(samples)
		require.True(t, ok)
		assert.Equal(t, first, idx)
		assert.Equal(t, firstVar, v)
	}
}

func feed(s *Selector, vals ...float64) Observation {
	ok := make([]bool, len(vals))
	for i := range ok {
		ok[i] = true
	}
	return s.Observe(vals, ok)
}

func TestSelector_LocksAfterWindow(t *testing.T) {
	s := NewSelector(2, 4, 1.0)

	for i := 0; i < 3; i++ {
		obs := feed(s, float64(i*10), 1)
		assert.False(t, obs.Resolved)
		assert.Equal(t, 0, obs.Index, "provisional value comes from the first candidate")
	}

	obs := feed(s, 30, 1)
	assert.True(t, obs.Resolved)
	assert.Equal(t, Selected, obs.Event)
	assert.Equal(t, 1, obs.Index)

	idx, locked := s.Chosen()
	assert.True(t, locked)
	assert.Equal(t, 1, idx)
}

func TestSelector_RetriggersOnAnomaly(t *testing.T) {
	s := NewSelector(2, 3, 1.0)
	for i := 0; i < 3; i++ {
		feed(s, float64(i*100), 5)
	}
	require.Equal(t, Locked, s.State())
	idx, _ := s.Chosen()
	require.Equal(t, 1, idx)

	feed(s, 0, 5)
	feed(s, 0, 50)
	s.Observe([]float64{0, 0}, []bool{true, false})
	assert.Equal(t, 2, s.Held(), "invalid chosen readings are not counted")

	obs := s.Monitor([]float64{5, 50})
	assert.True(t, obs.Resolved, "fewer than a window of readings never retriggers")

	obs = s.Monitor([]float64{5, 50, -50})
	assert.Equal(t, Retriggered, obs.Event)
	assert.False(t, obs.Resolved)
	assert.Equal(t, Sampling, s.State())
	assert.Equal(t, 0, s.Held())
}

func TestSelector_MonitorStableStreamStaysLocked(t *testing.T) {
	s := NewSelector(1, 3, 1.0)
	for i := 0; i < 3; i++ {
		feed(s, 5)
	}
	require.Equal(t, Locked, s.State())

	obs := s.Monitor([]float64{100, 5, 5.1, 5})
	assert.Equal(t, NoEvent, obs.Event, "only the last window counts")
	assert.True(t, obs.Resolved)
	assert.Equal(t, Locked, s.State())
}

func TestSelector_InconclusiveWindowRestarts(t *testing.T) {
	s := NewSelector(2, 2, 1.0)
	none := []bool{false, false}

	s.Observe([]float64{0, 0}, none)
	obs := s.Observe([]float64{0, 0}, none)
	assert.Equal(t, Inconclusive, obs.Event)
	assert.Equal(t, Sampling, s.State())
}
