// Package history keeps a bounded, per-slot ring of recent snapshots.
//
// The Store exclusively owns its ring buffers: it alone decides eviction
// (oldest first, fixed capacity) and hands out copies, never views.
package history

import "github.com/roach88/framewatch/internal/model"

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 240

type ring struct {
	buf  []model.EntitySnapshot
	head int // index of the next write
	n    int
}

func (r *ring) push(s model.EntitySnapshot) {
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// at returns the i-th element, 0 being the oldest retained.
func (r *ring) at(i int) model.EntitySnapshot {
	start := (r.head - r.n + len(r.buf)) % len(r.buf)
	return r.buf[(start+i)%len(r.buf)]
}

// Store is the SnapshotStore: one fixed-capacity ring per slot with O(1)
// insertion.
//
// Thread-safety: not safe for concurrent use; owned by the engine loop.
type Store struct {
	capacity int
	rings    [model.SlotCount]ring
}

// New creates a Store holding up to capacity snapshots per slot.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{capacity: capacity}
	for i := range s.rings {
		s.rings[i].buf = make([]model.EntitySnapshot, capacity)
	}
	return s
}

// Capacity returns the per-slot capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Push appends a snapshot, evicting the oldest when full.
func (s *Store) Push(slot model.SlotID, snap model.EntitySnapshot) {
	if !slot.Valid() {
		return
	}
	s.rings[slot].push(snap)
}

// Len returns how many snapshots are retained for slot.
func (s *Store) Len(slot model.SlotID) int {
	if !slot.Valid() {
		return 0
	}
	return s.rings[slot].n
}

// History returns a copy of the slot's snapshots, oldest first.
func (s *Store) History(slot model.SlotID) []model.EntitySnapshot {
	if !slot.Valid() {
		return nil
	}
	r := &s.rings[slot]
	out := make([]model.EntitySnapshot, r.n)
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}

// Latest returns the newest snapshot.
func (s *Store) Latest(slot model.SlotID) (model.EntitySnapshot, bool) {
	return s.back(slot, 0)
}

// Previous returns the snapshot before the newest.
func (s *Store) Previous(slot model.SlotID) (model.EntitySnapshot, bool) {
	return s.back(slot, 1)
}

func (s *Store) back(slot model.SlotID, k int) (model.EntitySnapshot, bool) {
	if !slot.Valid() {
		return model.EntitySnapshot{}, false
	}
	r := &s.rings[slot]
	if r.n <= k {
		return model.EntitySnapshot{}, false
	}
	return r.at(r.n - 1 - k), true
}

// Reset drops everything retained for slot.
func (s *Store) Reset(slot model.SlotID) {
	if !slot.Valid() {
		return
	}
	r := &s.rings[slot]
	clear(r.buf)
	r.head, r.n = 0, 0
}

// Series extracts one numeric stream from the slot's history, oldest
// first. Snapshots for which fn reports false are skipped.
func (s *Store) Series(slot model.SlotID, fn func(model.EntitySnapshot) (float64, bool)) []float64 {
	hist := s.History(slot)
	out := make([]float64, 0, len(hist))
	for _, snap := range hist {
		if v, ok := fn(snap); ok {
			out = append(out, v)
		}
	}
	return out
}

// Rate returns the mean change per sample of a series over the retained
// window, and false when fewer than two samples exist.
func (s *Store) Rate(slot model.SlotID, fn func(model.EntitySnapshot) (float64, bool)) (float64, bool) {
	xs := s.Series(slot, fn)
	if len(xs) < 2 {
		return 0, false
	}
	return (xs[len(xs)-1] - xs[0]) / float64(len(xs)-1), true
}

// CurrentValue is a Series extractor for the reliable current value.
func CurrentValue(s model.EntitySnapshot) (float64, bool) {
	if !s.Reliable() {
		return 0, false
	}
	return float64(s.CurrentValue.Value), true
}

// PositionX is a Series extractor for the horizontal coordinate.
func PositionX(s model.EntitySnapshot) (float64, bool) {
	return s.PositionX.Get()
}
