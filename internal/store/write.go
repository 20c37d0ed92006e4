package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/framewatch/internal/model"
)

// Session is one engine run.
type Session struct {
	ID         string
	TableName  string
	StartedAt  time.Time
	FirstCycle int64
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - the first write wins.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, table_name, started_at, first_cycle)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.TableName,
		formatTime(sess.StartedAt),
		sess.FirstCycle,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = true
	s.mu.Unlock()
	return nil
}

// WriteHit inserts a hit record.
// A second hit for the same (session, cycle, victim) is silently ignored.
//
// Note: The session must exist (foreign key constraint).
func (s *Store) WriteHit(ctx context.Context, session string, h model.HitEvent) error {
	return writeHit(ctx, s.db, session, h)
}

func writeHit(ctx context.Context, db execer, session string, h model.HitEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO hits
		(session_id, cycle, victim, attacker, delta, value_before, value_after,
		 distance_sq, source, move_id, move_name, team_guess, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, cycle, victim) DO NOTHING
	`,
		session,
		h.Cycle,
		h.Victim.String(),
		slotValue(h.Attacker),
		h.Delta,
		h.ValueBefore,
		h.ValueAfter,
		distanceValue(h),
		string(h.Source),
		moveValue(h.MoveID),
		h.MoveName,
		h.TeamGuess,
		formatTime(h.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("write hit: %w", err)
	}
	return nil
}

// WriteCombo inserts a closed combo emitted at cycle.
func (s *Store) WriteCombo(ctx context.Context, session string, cycle int64, c model.ComboSummary) error {
	return writeCombo(ctx, s.db, session, cycle, c)
}

func writeCombo(ctx context.Context, db execer, session string, cycle int64, c model.ComboSummary) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO combos
		(session_id, cycle, victim, attacker, hits, total, value_start, value_end,
		 start_cycle, end_cycle, team_guess)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session,
		cycle,
		c.Victim.String(),
		slotValue(c.Attacker),
		c.Hits,
		c.Total,
		c.ValueStart,
		c.ValueEnd,
		c.StartCycle,
		c.EndCycle,
		c.TeamGuess,
	)
	if err != nil {
		return fmt.Errorf("write combo: %w", err)
	}
	return nil
}

// WriteAdvantage inserts a finalized advantage measurement.
func (s *Store) WriteAdvantage(ctx context.Context, session string, a model.AdvantageResult) error {
	return writeAdvantage(ctx, s.db, session, a)
}

func writeAdvantage(ctx context.Context, db execer, session string, a model.AdvantageResult) error {
	predicted := sql.NullInt64{Int64: a.Predicted, Valid: a.HasPrediction}
	_, err := db.ExecContext(ctx, `
		INSERT INTO advantage
		(session_id, cycle, attacker, victim, move_id, raw, predicted, value, corrected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session,
		a.Cycle,
		a.Attacker.String(),
		a.Victim.String(),
		moveValue(a.MoveID),
		a.Raw,
		predicted,
		a.Value,
		boolValue(a.Corrected),
	)
	if err != nil {
		return fmt.Errorf("write advantage: %w", err)
	}
	return nil
}

// WriteFrame stores every event of a frame in one transaction. Frames
// without events are not written.
func (s *Store) WriteFrame(ctx context.Context, f model.Frame) error {
	if len(f.Hits) == 0 && len(f.Combos) == 0 && f.Advantage == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write frame: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, h := range f.Hits {
		if err := writeHit(ctx, tx, f.Session, h); err != nil {
			return fmt.Errorf("write frame %d: %w", f.Cycle, err)
		}
	}
	for _, c := range f.Combos {
		if err := writeCombo(ctx, tx, f.Session, f.Cycle, c); err != nil {
			return fmt.Errorf("write frame %d: %w", f.Cycle, err)
		}
	}
	if f.Advantage != nil {
		if err := writeAdvantage(ctx, tx, f.Session, *f.Advantage); err != nil {
			return fmt.Errorf("write frame %d: %w", f.Cycle, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write frame %d: commit: %w", f.Cycle, err)
	}
	return nil
}

// Consume makes the store an engine sink. The frame's session is
// registered on first sight, then its events are written.
func (s *Store) Consume(ctx context.Context, f model.Frame) error {
	s.mu.Lock()
	known := s.sessions[f.Session]
	s.mu.Unlock()

	if !known {
		err := s.WriteSession(ctx, Session{
			ID:         f.Session,
			StartedAt:  f.CapturedAt,
			FirstCycle: f.Cycle,
		})
		if err != nil {
			return err
		}
	}
	return s.WriteFrame(ctx, f)
}
