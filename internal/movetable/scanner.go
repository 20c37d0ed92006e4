package movetable

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/memory"
	"github.com/roach88/framewatch/internal/model"
)

const tracerName = "github.com/roach88/framewatch/internal/movetable"

// Scanner reads the configured scan region and extracts a Table.
//
// Thread-safety: Scan may run on a worker goroutine concurrently with the
// engine loop as long as the underlying memory.Access is safe for
// concurrent reads (memory.Image is).
type Scanner struct {
	mem    memory.Access
	table  *config.Table
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scanner) {
		s.tracer = t
	}
}

// WithNow sets the clock used to stamp ScannedAt.
func WithNow(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// NewScanner creates a Scanner over mem.
func NewScanner(mem memory.Access, table *config.Table, opts ...Option) *Scanner {
	s := &Scanner{
		mem:    mem,
		table:  table,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Scan reads the scan region and extracts move tables. entities carries
// the entity type id currently occupying each slot, used for display
// names and labels; unknown ids are allowed.
func (s *Scanner) Scan(ctx context.Context, entities [model.SlotCount]model.Field[uint32]) (*Table, error) {
	region := s.table.Scan.Region
	ctx, span := s.tracer.Start(ctx, "movetable.Scan",
		trace.WithAttributes(
			attribute.String("region", region.String()),
			attribute.Int64("bytes", int64(region.Len())),
		))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	buf, err := s.mem.ReadRange(region.Lo, int(region.Len()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read scan region")
		return nil, fmt.Errorf("read scan region %s: %w", region, err)
	}
	span.AddEvent("region read")

	t := Extract(buf, region.Lo, s.namer(entities))
	t.ScannedAt = s.now()
	for _, slot := range model.AllSlots {
		if id, ok := entities[slot].Get(); ok {
			t.Slots[slot].Entity = s.table.EntityName(id)
		}
	}

	span.SetAttributes(
		attribute.Int("clusters", t.Clusters),
		attribute.Int("moves", t.Len()),
	)
	s.logger.Info("move table scanned",
		"clusters", t.Clusters,
		"moves", t.Len(),
		"elapsed", time.Since(start))
	return t, nil
}

func (s *Scanner) namer(entities [model.SlotCount]model.Field[uint32]) Namer {
	if s.table.MoveLabels == nil {
		return nil
	}
	return func(slot model.SlotID, move uint32) (string, bool) {
		return s.table.MoveLabels.Label(move, entities[slot].Or(0))
	}
}
