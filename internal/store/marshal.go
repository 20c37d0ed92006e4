package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/framewatch/internal/model"
)

// timeLayout is used for every TEXT timestamp column.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// slotValue stores a slot by label; SlotNone becomes NULL.
func slotValue(s model.SlotID) sql.NullString {
	if !s.Valid() {
		return sql.NullString{}
	}
	return sql.NullString{String: s.String(), Valid: true}
}

func parseSlotValue(v sql.NullString) (model.SlotID, error) {
	if !v.Valid {
		return model.SlotNone, nil
	}
	return model.ParseSlot(v.String)
}

// moveValue stores an unknown move id as NULL.
func moveValue(f model.Field[uint32]) sql.NullInt64 {
	v, ok := f.Get()
	return sql.NullInt64{Int64: int64(v), Valid: ok}
}

func parseMoveValue(v sql.NullInt64) model.Field[uint32] {
	if !v.Valid {
		return model.Unknown[uint32]()
	}
	return model.Known(uint32(v.Int64))
}

// distanceValue stores the -1 "no attacker" distance as NULL.
func distanceValue(h model.HitEvent) sql.NullFloat64 {
	if h.Attacker == model.SlotNone || h.DistanceSquared < 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: h.DistanceSquared, Valid: true}
}

func parseDistanceValue(v sql.NullFloat64) float64 {
	if !v.Valid {
		return -1
	}
	return v.Float64
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
