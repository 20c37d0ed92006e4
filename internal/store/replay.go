package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/framewatch/internal/model"
)

// Consumer receives replayed frames. engine.Sink satisfies it.
type Consumer interface {
	Consume(ctx context.Context, f model.Frame) error
}

// ReplayFrames rebuilds the event-bearing frames of a session from the
// log, in cycle order.
//
// Replayed frames carry hits, combos and advantage results only;
// snapshots, phases and readiness are not persisted. A cycle with more
// than one stored advantage result yields one frame per result, the
// extras carrying nothing else.
func (s *Store) ReplayFrames(ctx context.Context, session string) ([]model.Frame, error) {
	hits, err := s.ReadHits(ctx, session, HitFilter{})
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", session, err)
	}
	combos, err := s.ReadCombos(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", session, err)
	}
	advs, err := s.ReadAdvantage(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", session, err)
	}

	byCycle := make(map[int64]*model.Frame)
	var extras []model.Frame
	frame := func(cycle int64) *model.Frame {
		f, ok := byCycle[cycle]
		if !ok {
			f = &model.Frame{Session: session, Cycle: cycle}
			byCycle[cycle] = f
		}
		return f
	}

	for _, h := range hits {
		f := frame(h.Cycle)
		if f.CapturedAt.IsZero() {
			f.CapturedAt = h.CapturedAt
		}
		f.Hits = append(f.Hits, h)
	}
	for _, c := range combos {
		f := frame(c.Cycle)
		f.Combos = append(f.Combos, c.ComboSummary)
	}
	for i := range advs {
		a := advs[i]
		f := frame(a.Cycle)
		if f.Advantage == nil {
			f.Advantage = &a
			continue
		}
		extras = append(extras, model.Frame{Session: session, Cycle: a.Cycle, Advantage: &a})
	}

	out := make([]model.Frame, 0, len(byCycle)+len(extras))
	for _, f := range byCycle {
		out = append(out, *f)
	}
	out = append(out, extras...)
	// Stable so extras stay after the primary frame of their cycle.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cycle < out[j].Cycle })
	return out, nil
}

// Replay feeds a session's frames to c in cycle order and returns how
// many were delivered. The first consumer error stops the replay.
func (s *Store) Replay(ctx context.Context, session string, c Consumer) (int, error) {
	frames, err := s.ReplayFrames(ctx, session)
	if err != nil {
		return 0, err
	}
	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := c.Consume(ctx, f); err != nil {
			return i, fmt.Errorf("replay %s cycle %d: %w", session, f.Cycle, err)
		}
	}
	return len(frames), nil
}
