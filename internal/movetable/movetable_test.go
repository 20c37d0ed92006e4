package movetable

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/memory"
	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/testutil"
)

const slabBase = 0x90000000

// slab builds a synthetic region with one cluster holding a normal (5B)
// and a special fragment (0x105).
type slab struct {
	buf []byte
}

func newSlab(n int) *slab {
	return &slab{buf: make([]byte, n)}
}

func (s *slab) put(off int, p pattern) {
	for i, b := range p {
		if b >= 0 {
			s.buf[off+i] = byte(b)
		}
	}
}

func (s *slab) bytes(off int, b ...byte) {
	copy(s.buf[off:], b)
}

func (s *slab) tail(off int) {
	copy(s.buf[off:], tailMarker)
}

func (s *slab) anim(off int, id uint16) {
	s.put(off, animHdr)
	s.bytes(off+len(animHdr), byte(id>>8), byte(id), 0x01, 0x3C)
}

func (s *slab) active(off int, first, last byte) {
	s.put(off, activeHdr)
	s.buf[off+8] = first - 1
	s.buf[off+16] = last - 1
}

func (s *slab) stun(off int, hit, block, stop byte) {
	s.put(off, stunHdr)
	s.buf[off+15] = hit
	s.buf[off+31] = block
	s.buf[off+39] = stop
}

func (s *slab) damage(off int, v uint32, flag byte) {
	s.put(off, damageHdr)
	s.bytes(off+5, byte(v>>16), byte(v>>8), byte(v))
	s.buf[off+15] = flag
}

func fixtureSlab() *slab {
	s := newSlab(0x3000)
	s.tail(0x1000)
	s.anim(0xD00, 0x0001)
	s.active(0xD40, 5, 8)
	s.stun(0xD80, 17, 14, 9)
	s.damage(0xDC0, 1000, 2)
	s.bytes(0xE00, 0x01, 0x05, 0x01, 0x3C)
	return s
}

var (
	ignoreHitbox = cmpopts.IgnoreFields(Move{}, "HitboxX", "HitboxY")
	addrCmp      = cmp.Comparer(func(a, b model.Address) bool { return a == b })
)

func TestExtract_NormalMove(t *testing.T) {
	tbl := Extract(fixtureSlab().buf, slabBase, nil)
	require.Equal(t, 1, tbl.Clusters)

	moves := tbl.Slots[model.SlotP1C1].Moves
	require.Len(t, moves, 2)

	want := Move{
		Kind:        KindNormal,
		Addr:        model.AddressOf(slabBase + 0xD00),
		ID:          model.Known[uint32](0x0001),
		Name:        "5B",
		Meter:       model.Known[uint8](0x64),
		ActiveStart: model.Known(5),
		ActiveEnd:   model.Known(8),
		Damage:      model.Known[uint32](1000),
		DamageFlag:  model.Known[uint8](2),
		Hitstun:     model.Known(17),
		Blockstun:   model.Known(14),
		Hitstop:     model.Known(9),
		Recovery:    0x3C - 8,
		AdvHit:      17 - 52,
		AdvBlock:    14 - 52,
	}
	if diff := cmp.Diff(want, moves[1], ignoreHitbox, addrCmp); diff != "" {
		t.Errorf("normal move mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_SpecialFragmentSortsFirst(t *testing.T) {
	tbl := Extract(fixtureSlab().buf, slabBase, nil)
	moves := tbl.Slots[model.SlotP1C1].Moves
	require.NotEmpty(t, moves)

	sp := moves[0]
	assert.Equal(t, KindSpecial, sp.Kind)
	assert.Equal(t, model.Known[uint32](0x0105), sp.ID)
	assert.Equal(t, "anim_0105", sp.Name)
	assert.Equal(t, model.Known[uint8](0xC8), sp.Meter)
	// Nothing follows the fragment, so the nearest preceding blocks pair.
	assert.Equal(t, model.Known[uint32](1000), sp.Damage)
}

func TestExtract_Deterministic(t *testing.T) {
	buf := fixtureSlab().buf
	a := Extract(buf, slabBase, nil)
	b := Extract(buf, slabBase, nil)
	if diff := cmp.Diff(a, b, addrCmp); diff != "" {
		t.Errorf("extraction is not deterministic:\n%s", diff)
	}
}

func TestExtract_ClusterToSlot(t *testing.T) {
	s := newSlab(0xA000)
	s.tail(0x1000)
	s.anim(0xD00, 0x0002)
	s.tail(0x7000)
	s.anim(0x7100, 0x0003)

	tbl := Extract(s.buf, slabBase, nil)
	require.Equal(t, 2, tbl.Clusters)

	require.Len(t, tbl.Slots[model.SlotP1C1].Moves, 1)
	assert.Equal(t, "5C", tbl.Slots[model.SlotP1C1].Moves[0].Name)

	require.Len(t, tbl.Slots[model.SlotP2C1].Moves, 1, "second cluster belongs to P2-C1")
	assert.Equal(t, "2A", tbl.Slots[model.SlotP2C1].Moves[0].Name)

	assert.Empty(t, tbl.Slots[model.SlotP1C2].Moves)
}

func TestExtract_CommandPrefix(t *testing.T) {
	s := newSlab(0x3000)
	s.tail(0x1000)
	s.put(0xD00, cmdHdr)
	s.anim(0xD00+len(cmdHdr)+3+4, 0x0112)

	moves := Extract(s.buf, slabBase, nil).Slots[model.SlotP1C1].Moves
	require.Len(t, moves, 1)
	assert.Equal(t, model.AddressOf(slabBase+0xD00+uint32(len(cmdHdr))+7), moves[0].Addr)
	assert.Equal(t, KindSpecial, moves[0].Kind)
}

func TestExtract_NoTails(t *testing.T) {
	tbl := Extract(make([]byte, 0x100), slabBase, nil)
	assert.Equal(t, 0, tbl.Clusters)
	assert.Equal(t, 0, tbl.Len())
}

func TestExtract_Namer(t *testing.T) {
	namer := func(slot model.SlotID, move uint32) (string, bool) {
		if move == 0x0105 {
			return "Hadouken", true
		}
		return "", false
	}
	moves := Extract(fixtureSlab().buf, slabBase, namer).Slots[model.SlotP1C1].Moves
	assert.Equal(t, "Hadouken", moves[0].Name)
	assert.Equal(t, "5B", moves[1].Name)
}

func TestAnimIDAfter(t *testing.T) {
	s := newSlab(0x100)
	s.put(0, animHdr)
	s.bytes(12+5, 0x06, 0x00, 0x01, 0x3C) // 0x600 is out of range
	s.bytes(12+9, 0x00, 0x0E, 0x04, 0x3C)

	id, ok := animIDAfter(s.buf, 0)
	require.True(t, ok)
	assert.Equal(t, uint32(0x0E), id)

	_, ok = animIDAfter(make([]byte, 0x40), 0)
	assert.False(t, ok)
}

func TestPickBest(t *testing.T) {
	blocks := []block[int]{
		{addr: 0x1000 - 0x10, data: 1},
		{addr: 0x1000 + 0x100, data: 2},
		{addr: 0x1000 + 0x700, data: 3},
	}

	b, ok := pickBest(0x1000, blocks)
	require.True(t, ok)
	assert.Equal(t, 2, b.data, "forward block preferred over a closer one behind")

	b, ok = pickBest(0x1000, blocks[:1])
	require.True(t, ok)
	assert.Equal(t, 1, b.data)

	_, ok = pickBest(0x1000, blocks[2:])
	assert.False(t, ok, "beyond pairing range")
}

func TestClusterTails(t *testing.T) {
	got := clusterTails([]int{0x100, 0x200, 0x4200, 0x9000})
	want := [][]int{{0x100, 0x200, 0x4200}, {0x9000}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("clusters mismatch (-want +got):\n%s", diff)
	}
}

func TestTable_FrameData(t *testing.T) {
	tbl := Extract(fixtureSlab().buf, slabBase, nil)

	fd, ok := tbl.FrameData(model.SlotP1C1, 0x0001)
	require.True(t, ok)
	assert.Equal(t, config.FrameData{
		MoveID: 1, Startup: 5, Active: 4, Recovery: 52, Hitstun: 17, Blockstun: 14,
	}, fd)
	assert.Equal(t, int64(17-52), fd.AdvantageOnHit())

	_, ok = tbl.FrameData(model.SlotP2C1, 0x0001)
	assert.False(t, ok)

	var nilTable *Table
	_, ok = nilTable.FrameData(model.SlotP1C1, 1)
	assert.False(t, ok)
}

func scanFixture(t *testing.T) (*memory.Image, *config.Table) {
	t.Helper()
	table, err := config.LoadDefault()
	require.NoError(t, err)

	s := fixtureSlab()
	table.Scan.Region = config.Window{Lo: slabBase, Hi: slabBase + uint32(len(s.buf))}
	mem := memory.NewImage()
	mem.Map(slabBase, s.buf)
	return mem, table
}

func TestScanner_Scan(t *testing.T) {
	mem, table := scanFixture(t)
	clock := testutil.NewFrameClock(time.Second)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	sc := NewScanner(mem, table, WithTracer(tp.Tracer("test")), WithNow(clock.Now))
	var ents [model.SlotCount]model.Field[uint32]
	ents[model.SlotP1C1] = model.Known[uint32](1)

	tbl, err := sc.Scan(context.Background(), ents)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, testutil.Epoch, tbl.ScannedAt)
	assert.Equal(t, table.EntityName(1), tbl.Slots[model.SlotP1C1].Entity)
	assert.Empty(t, tbl.Slots[model.SlotP2C1].Entity)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "movetable.Scan", spans[0].Name())
}

func TestScanner_UnmappedRegion(t *testing.T) {
	_, table := scanFixture(t)
	sc := NewScanner(memory.NewImage(), table)

	_, err := sc.Scan(context.Background(), [model.SlotCount]model.Field[uint32]{})
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrUnmapped)
}

func TestScanner_Cancelled(t *testing.T) {
	mem, table := scanFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(mem, table).Scan(ctx, [model.SlotCount]model.Field[uint32]{})
	assert.ErrorIs(t, err, context.Canceled)
}
