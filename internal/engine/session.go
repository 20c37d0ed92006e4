package engine

import "github.com/google/uuid"

// SessionGenerator produces the id stamped on every frame of a run.
// Implemented by UUIDv7Generator (production) and
// testutil.FixedSessionGenerator (tests).
type SessionGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids, so session
// rows in the event log sort by start time.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
