package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/framewatch/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadSessions returns every session, oldest first.
//
// Returns an empty slice (not nil) when the log is empty.
func (s *Store) ReadSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_name, started_at, first_cycle
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession retrieves a single session by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, table_name, started_at, first_cycle
		FROM sessions
		WHERE id = ?
	`, id)
	return scanSession(row)
}

// LatestSession returns the most recently started session.
// Returns sql.ErrNoRows if the log is empty.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, table_name, started_at, first_cycle
		FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	return scanSession(row)
}

func scanSession(r rowScanner) (Session, error) {
	var sess Session
	var started string
	if err := r.Scan(&sess.ID, &sess.TableName, &started, &sess.FirstCycle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	t, err := parseTime(started)
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = t
	return sess, nil
}

// HitFilter narrows ReadHits. Zero values match everything.
type HitFilter struct {
	Victim    *model.SlotID
	FromCycle int64
	Limit     int
}

// ReadHits returns the hits of a session ordered by cycle ASC, id ASC.
//
// Returns an empty slice (not nil) if the session has no hits.
func (s *Store) ReadHits(ctx context.Context, session string, filter HitFilter) ([]model.HitEvent, error) {
	where := and{equals{"session_id", session}, atLeast{"cycle", filter.FromCycle}}
	if filter.Victim != nil {
		where = append(where, equals{"victim", filter.Victim.String()})
	}
	query, args, err := eventQuery{
		Columns: []string{"cycle", "victim", "attacker", "delta", "value_before", "value_after",
			"distance_sq", "source", "move_id", "move_name", "team_guess", "captured_at"},
		From:    "hits",
		Where:   where,
		OrderBy: []string{"cycle"},
		Limit:   filter.Limit,
	}.compile()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hits: %w", err)
	}
	defer rows.Close()

	hits := []model.HitEvent{}
	for rows.Next() {
		h, err := scanHit(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hits: %w", err)
	}
	return hits, nil
}

func scanHit(r rowScanner) (model.HitEvent, error) {
	var (
		h        model.HitEvent
		victim   string
		attacker sql.NullString
		dist     sql.NullFloat64
		source   string
		move     sql.NullInt64
		captured string
	)
	err := r.Scan(&h.Cycle, &victim, &attacker, &h.Delta, &h.ValueBefore, &h.ValueAfter,
		&dist, &source, &move, &h.MoveName, &h.TeamGuess, &captured)
	if err != nil {
		return h, fmt.Errorf("scan hit: %w", err)
	}

	if h.Victim, err = model.ParseSlot(victim); err != nil {
		return h, fmt.Errorf("scan hit: %w", err)
	}
	if h.Attacker, err = parseSlotValue(attacker); err != nil {
		return h, fmt.Errorf("scan hit: %w", err)
	}
	if h.CapturedAt, err = parseTime(captured); err != nil {
		return h, fmt.Errorf("scan hit: %w", err)
	}
	h.DistanceSquared = parseDistanceValue(dist)
	h.Source = model.HitSource(source)
	h.MoveID = parseMoveValue(move)
	return h, nil
}

// StoredCombo is a combo with the cycle it was emitted at.
type StoredCombo struct {
	Cycle int64
	model.ComboSummary
}

// ReadCombos returns the combos of a session ordered by cycle ASC, id ASC.
func (s *Store) ReadCombos(ctx context.Context, session string) ([]StoredCombo, error) {
	query, args, err := eventQuery{
		Columns: []string{"cycle", "victim", "attacker", "hits", "total", "value_start", "value_end",
			"start_cycle", "end_cycle", "team_guess"},
		From:    "combos",
		Where:   equals{"session_id", session},
		OrderBy: []string{"cycle"},
	}.compile()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query combos: %w", err)
	}
	defer rows.Close()

	combos := []StoredCombo{}
	for rows.Next() {
		var (
			c        StoredCombo
			victim   string
			attacker sql.NullString
		)
		err := rows.Scan(&c.Cycle, &victim, &attacker, &c.Hits, &c.Total, &c.ValueStart,
			&c.ValueEnd, &c.StartCycle, &c.EndCycle, &c.TeamGuess)
		if err != nil {
			return nil, fmt.Errorf("scan combo: %w", err)
		}
		if c.Victim, err = model.ParseSlot(victim); err != nil {
			return nil, fmt.Errorf("scan combo: %w", err)
		}
		if c.Attacker, err = parseSlotValue(attacker); err != nil {
			return nil, fmt.Errorf("scan combo: %w", err)
		}
		combos = append(combos, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate combos: %w", err)
	}
	return combos, nil
}

// ReadAdvantage returns the advantage results of a session ordered by
// cycle ASC, id ASC.
func (s *Store) ReadAdvantage(ctx context.Context, session string) ([]model.AdvantageResult, error) {
	query, args, err := eventQuery{
		Columns: []string{"cycle", "attacker", "victim", "move_id", "raw", "predicted", "value", "corrected"},
		From:    "advantage",
		Where:   equals{"session_id", session},
		OrderBy: []string{"cycle"},
	}.compile()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query advantage: %w", err)
	}
	defer rows.Close()

	results := []model.AdvantageResult{}
	for rows.Next() {
		var (
			a                model.AdvantageResult
			attacker, victim string
			move, predicted  sql.NullInt64
			corrected        int
		)
		if err := rows.Scan(&a.Cycle, &attacker, &victim, &move, &a.Raw, &predicted, &a.Value, &corrected); err != nil {
			return nil, fmt.Errorf("scan advantage: %w", err)
		}
		var err error
		if a.Attacker, err = model.ParseSlot(attacker); err != nil {
			return nil, fmt.Errorf("scan advantage: %w", err)
		}
		if a.Victim, err = model.ParseSlot(victim); err != nil {
			return nil, fmt.Errorf("scan advantage: %w", err)
		}
		a.MoveID = parseMoveValue(move)
		a.Predicted, a.HasPrediction = predicted.Int64, predicted.Valid
		a.Corrected = corrected != 0
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate advantage: %w", err)
	}
	return results, nil
}

// SlotStats summarizes the hits taken by one victim slot.
type SlotStats struct {
	Victim    model.SlotID
	Hits      int
	Total     int64
	MaxDelta  int64
	LastCycle int64
}

// HitStats aggregates a session's hits per victim, in slot order. Slots
// that were never hit are omitted.
func (s *Store) HitStats(ctx context.Context, session string) ([]SlotStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT victim, COUNT(*), SUM(delta), MAX(delta), MAX(cycle)
		FROM hits
		WHERE session_id = ?
		GROUP BY victim
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query hit stats: %w", err)
	}
	defer rows.Close()

	var bySlot [model.SlotCount]*SlotStats
	for rows.Next() {
		var st SlotStats
		var victim string
		if err := rows.Scan(&victim, &st.Hits, &st.Total, &st.MaxDelta, &st.LastCycle); err != nil {
			return nil, fmt.Errorf("scan hit stats: %w", err)
		}
		slot, err := model.ParseSlot(victim)
		if err != nil {
			return nil, fmt.Errorf("scan hit stats: %w", err)
		}
		st.Victim = slot
		bySlot[slot] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hit stats: %w", err)
	}

	out := []SlotStats{}
	for _, st := range bySlot {
		if st != nil {
			out = append(out, *st)
		}
	}
	return out, nil
}
