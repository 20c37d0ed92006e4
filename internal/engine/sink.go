package engine

import (
	"context"

	"github.com/roach88/framewatch/internal/model"
)

// Sink receives every frame the engine produces.
//
// Consume is called synchronously from the engine loop, so implementations
// must not block for long. A returned error is logged by the engine and
// never aborts the cycle.
type Sink interface {
	Consume(ctx context.Context, f model.Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f model.Frame) error

// Consume calls fn.
func (fn SinkFunc) Consume(ctx context.Context, f model.Frame) error {
	return fn(ctx, f)
}

// Recorder is a Sink that keeps every frame in memory. Used by tests and
// the scenario harness.
type Recorder struct {
	Frames []model.Frame
}

// Consume appends f.
func (r *Recorder) Consume(_ context.Context, f model.Frame) error {
	r.Frames = append(r.Frames, f)
	return nil
}

// Hits returns every recorded hit in frame order.
func (r *Recorder) Hits() []model.HitEvent {
	var out []model.HitEvent
	for _, f := range r.Frames {
		out = append(out, f.Hits...)
	}
	return out
}
