package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/testutil"
)

func TestWriteHit_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "sess-1")

	want := createTestHit(10, model.SlotP1C1, model.SlotP2C1, 1200)
	want.TeamGuess = "P2"
	if err := s.WriteHit(ctx, "sess-1", want); err != nil {
		t.Fatalf("WriteHit() failed: %v", err)
	}

	got, err := s.ReadHits(ctx, "sess-1", HitFilter{})
	if err != nil {
		t.Fatalf("ReadHits() failed: %v", err)
	}
	if diff := cmp.Diff([]model.HitEvent{want}, got); diff != "" {
		t.Errorf("ReadHits() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteHit_Unattributed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "sess-1")

	h := createTestHit(3, model.SlotP2C2, model.SlotNone, 40)
	h.DistanceSquared = -1
	h.MoveID = model.Unknown[uint32]()
	h.MoveName = ""
	if err := s.WriteHit(ctx, "sess-1", h); err != nil {
		t.Fatalf("WriteHit() failed: %v", err)
	}

	var attackerNull, distNull, moveNull bool
	err := s.db.QueryRow(`SELECT attacker IS NULL, distance_sq IS NULL, move_id IS NULL FROM hits`).
		Scan(&attackerNull, &distNull, &moveNull)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !attackerNull || !distNull || !moveNull {
		t.Errorf("expected NULL attacker/distance/move, got %v %v %v", attackerNull, distNull, moveNull)
	}

	got, err := s.ReadHits(ctx, "sess-1", HitFilter{})
	if err != nil {
		t.Fatalf("ReadHits() failed: %v", err)
	}
	if diff := cmp.Diff([]model.HitEvent{h}, got); diff != "" {
		t.Errorf("ReadHits() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteHit_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "sess-1")

	h := createTestHit(10, model.SlotP1C1, model.SlotP2C1, 1200)
	for i := 0; i < 3; i++ {
		if err := s.WriteHit(ctx, "sess-1", h); err != nil {
			t.Fatalf("WriteHit() #%d failed: %v", i, err)
		}
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM hits").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("hit count = %d, want 1", count)
	}
}

func TestWriteHit_RequiresSession(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteHit(context.Background(), "missing", createTestHit(1, model.SlotP1C1, model.SlotP2C1, 10))
	if err == nil {
		t.Fatal("expected foreign key error for unknown session")
	}
}

func TestWriteSession_FirstWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "sess-1")

	err := s.WriteSession(ctx, Session{ID: "sess-1", TableName: "other", StartedAt: testutil.Epoch, FirstCycle: 99})
	if err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}

	got, err := s.ReadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}
	if got.TableName != "tvc_us" || got.FirstCycle != 1 {
		t.Errorf("session overwritten: %+v", got)
	}
	if !got.StartedAt.Equal(testutil.Epoch) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, testutil.Epoch)
	}
}

func TestWriteFrame_AllEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "sess-1")

	adv := model.AdvantageResult{
		Attacker:  model.SlotP2C1,
		Victim:    model.SlotP1C1,
		MoveID:    model.Known[uint32](0x111),
		Raw:       7,
		Predicted: 2,
		Value:     2,
		Corrected: true,
		Cycle:     40,
	}
	combo := model.ComboSummary{
		Victim: model.SlotP1C1, Attacker: model.SlotP2C1,
		Hits: 3, Total: 3600, ValueStart: 50000, ValueEnd: 46400,
		StartCycle: 10, EndCycle: 22,
	}
	f := model.Frame{
		Session:   "sess-1",
		Cycle:     40,
		Hits:      []model.HitEvent{createTestHit(40, model.SlotP2C2, model.SlotP1C2, 500)},
		Combos:    []model.ComboSummary{combo},
		Advantage: &adv,
	}
	if err := s.WriteFrame(ctx, f); err != nil {
		t.Fatalf("WriteFrame() failed: %v", err)
	}

	combos, err := s.ReadCombos(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ReadCombos() failed: %v", err)
	}
	if diff := cmp.Diff([]StoredCombo{{Cycle: 40, ComboSummary: combo}}, combos); diff != "" {
		t.Errorf("ReadCombos() mismatch (-want +got):\n%s", diff)
	}

	advs, err := s.ReadAdvantage(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ReadAdvantage() failed: %v", err)
	}
	if diff := cmp.Diff([]model.AdvantageResult{adv}, advs); diff != "" {
		t.Errorf("ReadAdvantage() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFrame_AtomicOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// No session row: the first insert fails and nothing is committed.
	f := model.Frame{
		Session: "missing",
		Cycle:   5,
		Combos:  []model.ComboSummary{{Victim: model.SlotP1C1, Attacker: model.SlotNone, Hits: 1}},
		Hits:    []model.HitEvent{createTestHit(5, model.SlotP1C1, model.SlotP2C1, 10)},
	}
	if err := s.WriteFrame(ctx, f); err == nil {
		t.Fatal("expected error")
	}

	var count int
	if err := s.db.QueryRow("SELECT (SELECT COUNT(*) FROM hits) + (SELECT COUNT(*) FROM combos)").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("rows after failed frame = %d, want 0", count)
	}
}

func TestConsume_RegistersSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	frames := []model.Frame{
		{Session: "sess-x", Cycle: 1, CapturedAt: testutil.Epoch},
		{Session: "sess-x", Cycle: 2, CapturedAt: testutil.Epoch, Hits: []model.HitEvent{
			createTestHit(2, model.SlotP1C1, model.SlotP2C1, 700),
		}},
	}
	for _, f := range frames {
		if err := s.Consume(ctx, f); err != nil {
			t.Fatalf("Consume(cycle %d) failed: %v", f.Cycle, err)
		}
	}

	sess, err := s.ReadSession(ctx, "sess-x")
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}
	if sess.FirstCycle != 1 {
		t.Errorf("FirstCycle = %d, want 1", sess.FirstCycle)
	}

	hits, err := s.ReadHits(ctx, "sess-x", HitFilter{})
	if err != nil {
		t.Fatalf("ReadHits() failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1", len(hits))
	}
}
