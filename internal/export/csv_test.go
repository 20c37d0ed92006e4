package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/testutil"
)

func hit(cycle int64, victim, attacker model.SlotID, delta int64) model.HitEvent {
	h := model.HitEvent{
		Victim:          victim,
		Attacker:        attacker,
		Delta:           delta,
		ValueBefore:     50000,
		ValueAfter:      50000 - delta,
		Cycle:           cycle,
		DistanceSquared: 25,
		CapturedAt:      testutil.Epoch.Add(time.Duration(cycle) * time.Second / 60),
	}
	if attacker == model.SlotNone {
		h.DistanceSquared = -1
	}
	return h
}

func TestHitRecord(t *testing.T) {
	got := HitRecord(hit(42, model.SlotP1C1, model.SlotP2C1, 1200))
	assert.Equal(t, []string{
		"42", "2025-01-01T00:00:00.7Z", "P1-C1", "P2-C1", "1200", "50000", "48800", "25.000",
	}, got)
}

func TestHitRecord_Unattributed(t *testing.T) {
	got := HitRecord(hit(1, model.SlotP2C2, model.SlotNone, 30))
	assert.Equal(t, "", got[3])
	assert.Equal(t, "", got[7])
}

func TestHitWriter_Consume(t *testing.T) {
	var buf bytes.Buffer
	hw, err := NewHitWriter(&buf)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, hw.Consume(ctx, model.Frame{Cycle: 1}))
	require.NoError(t, hw.Consume(ctx, model.Frame{
		Cycle: 2,
		Hits: []model.HitEvent{
			hit(2, model.SlotP1C1, model.SlotP2C1, 1200),
			hit(2, model.SlotP2C1, model.SlotNone, 800),
		},
	}))
	require.NoError(t, hw.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(HitHeader, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2,"))
	assert.True(t, strings.HasSuffix(lines[2], ",800,50000,49200,"))
	assert.Equal(t, 2, hw.Rows())
}

func TestReadHits_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	hw, err := NewHitWriter(&buf)
	require.NoError(t, err)

	in := []model.HitEvent{
		hit(7, model.SlotP1C2, model.SlotP2C2, 900),
		hit(9, model.SlotP2C1, model.SlotNone, 40),
	}
	require.NoError(t, hw.Consume(context.Background(), model.Frame{Hits: in}))

	got, err := ReadHits(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range in {
		assert.Equal(t, in[i].Cycle, got[i].Cycle)
		assert.True(t, in[i].CapturedAt.Equal(got[i].CapturedAt))
		assert.Equal(t, in[i].Victim, got[i].Victim)
		assert.Equal(t, in[i].Attacker, got[i].Attacker)
		assert.Equal(t, in[i].Delta, got[i].Delta)
		assert.Equal(t, in[i].ValueAfter, got[i].ValueAfter)
		assert.InDelta(t, in[i].DistanceSquared, got[i].DistanceSquared, 1e-3)
	}
}

func TestReadHits_BadHeader(t *testing.T) {
	_, err := ReadHits(strings.NewReader("a,b,c,d,e,f,g,h\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected column 0")
}

func TestReadHits_BadRow(t *testing.T) {
	data := strings.Join(HitHeader, ",") + "\nx,2025-01-01T00:00:00Z,P1-C1,,1,2,1,\n"
	_, err := ReadHits(strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle_index")
}

func TestCreate_AppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hits.csv")
	ctx := context.Background()

	hw, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, hw.Consume(ctx, model.Frame{Hits: []model.HitEvent{hit(1, model.SlotP1C1, model.SlotP2C1, 100)}}))
	require.NoError(t, hw.Close())

	hw, err = Create(path)
	require.NoError(t, err)
	require.NoError(t, hw.Consume(ctx, model.Frame{Hits: []model.HitEvent{hit(2, model.SlotP1C1, model.SlotP2C1, 100)}}))
	require.NoError(t, hw.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadHits(f)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Cycle)
	assert.Equal(t, int64(2), got[1].Cycle)
}
