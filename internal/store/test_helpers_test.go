package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/testutil"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session starting at testutil.Epoch.
func createTestSession(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.WriteSession(context.Background(), Session{ID: id, TableName: "tvc_us", StartedAt: testutil.Epoch, FirstCycle: 1})
	if err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
}

// createTestHit creates an attributed hit with minimal required fields.
func createTestHit(cycle int64, victim, attacker model.SlotID, delta int64) model.HitEvent {
	return model.HitEvent{
		Victim:          victim,
		Attacker:        attacker,
		Delta:           delta,
		ValueBefore:     50000,
		ValueAfter:      50000 - delta,
		Cycle:           cycle,
		DistanceSquared: 25,
		Source:          model.HitSourceValueDrop,
		MoveID:          model.Known[uint32](0x111),
		MoveName:        "5A",
		CapturedAt:      testutil.Epoch.Add(time.Duration(cycle) * time.Second / 60),
	}
}
