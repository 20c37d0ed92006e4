package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/decoder"
	"github.com/roach88/framewatch/internal/history"
	"github.com/roach88/framewatch/internal/infer"
	"github.com/roach88/framewatch/internal/memory"
	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/movetable"
	"github.com/roach88/framewatch/internal/resolver"
)

// DefaultInterval is one 60 Hz cycle.
const DefaultInterval = time.Second / 60

// Engine is the single-writer polling loop.
//
// Each cycle resolves the four slots, decodes a snapshot per slot, pushes
// it into history, runs inference over the newest and previous history
// entries and hands the resulting Frame to every sink in registration
// order.
//
// CRITICAL: resolver, decoder, history and inferencer state is touched
// only by the goroutine calling Step (directly or through Run).
//
// Thread-safety model:
//   - Step(), Run(), Flush(): one goroutine at a time
//   - Session(): safe from any goroutine
//   - RequestScan(): from the loop goroutine, e.g. between Steps
//
// INVARIANTS:
//   - cycle indices are strictly increasing within a session
//   - hits in a frame are ordered by victim slot
//   - a sink error never aborts a cycle
type Engine struct {
	table    *config.Table
	logger   *slog.Logger
	resolver *resolver.Resolver
	decoder  *decoder.Decoder
	history  *history.Store
	infer    *infer.Inferencer

	clock     *CycleClock
	now       func() time.Time
	interval  time.Duration
	session   string
	sinks     []Sink
	scans     *ScanWorker
	scanEvery int

	moveTable  *movetable.Table
	generation int
	entities   [model.SlotCount]model.Field[uint32]

	historyCap int
	phases     infer.PhaseSource
	sessionGen SessionGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by the engine and its components.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithNow sets the wall clock used for CapturedAt. Tests and replay pass a
// testutil.FrameClock.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithInterval sets the Run tick interval.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithClock resumes cycle numbering from an existing clock.
func WithClock(c *CycleClock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSessionGenerator sets the session id source.
//
// Default: UUIDv7Generator.
func WithSessionGenerator(g SessionGenerator) Option {
	return func(e *Engine) {
		e.sessionGen = g
	}
}

// WithSinks appends frame consumers.
func WithSinks(sinks ...Sink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

// WithScanWorker attaches a deep-scan worker. With every > 0 a scan is
// requested every that many cycles; 0 means only on RequestScan.
func WithScanWorker(w *ScanWorker, every int) Option {
	return func(e *Engine) {
		e.scans = w
		e.scanEvery = every
	}
}

// WithHistoryCapacity sets the per-slot history size.
func WithHistoryCapacity(n int) Option {
	return func(e *Engine) {
		e.historyCap = n
	}
}

// WithPhaseSource replaces the default table-driven phase machine.
func WithPhaseSource(p infer.PhaseSource) Option {
	return func(e *Engine) {
		e.phases = p
	}
}

// New creates an Engine reading mem with the given table.
func New(mem memory.Access, table *config.Table, opts ...Option) *Engine {
	e := &Engine{
		table:      table,
		logger:     slog.Default(),
		clock:      NewCycleClock(),
		now:        time.Now,
		interval:   DefaultInterval,
		historyCap: history.DefaultCapacity,
		sessionGen: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.session = e.sessionGen.Generate()
	e.resolver = resolver.New(mem, table, resolver.WithLogger(e.logger))
	e.history = history.New(e.historyCap)
	e.decoder = decoder.New(mem, table, decoder.WithLogger(e.logger), decoder.WithHistory(e.history))

	inferOpts := []infer.Option{infer.WithLogger(e.logger)}
	if e.phases != nil {
		inferOpts = append(inferOpts, infer.WithPhaseSource(e.phases))
	}
	e.infer = infer.New(table, inferOpts...)
	return e
}

// Session returns the id stamped on every frame.
func (e *Engine) Session() string {
	return e.session
}

// History returns the snapshot store. Read it only from the loop goroutine.
func (e *Engine) History() *history.Store {
	return e.history
}

// MoveTable returns the deep-scan result currently in use, or nil.
func (e *Engine) MoveTable() *movetable.Table {
	return e.moveTable
}

// Cycle returns the last completed cycle index.
func (e *Engine) Cycle() int64 {
	return e.clock.Current()
}

// RequestScan asks the attached worker for a deep scan using the entity
// ids from the last cycle. It reports whether the request was accepted.
func (e *Engine) RequestScan() bool {
	if e.scans == nil {
		return false
	}
	return e.scans.Request(ScanRequest{Entities: e.entities})
}

// Run steps once per interval until ctx is cancelled.
//
// Returns ctx.Err() on cancellation; open combos are flushed to the sinks
// before returning.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("engine started",
		"session", e.session,
		"table", e.table.Name,
		"interval", e.interval)

	for {
		select {
		case <-ctx.Done():
			e.Flush(context.WithoutCancel(ctx))
			e.logger.Info("engine stopped", "session", e.session, "cycles", e.clock.Current())
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Step(ctx); err != nil {
				return err
			}
		}
	}
}

// Step runs exactly one cycle and returns its frame.
//
// The only error is ctx cancellation observed before the cycle starts;
// everything inside the cycle degrades instead of failing.
func (e *Engine) Step(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}

	cycle := e.clock.Next()
	at := e.now()

	e.applyScanResult()

	res := e.resolver.ResolveAll()
	var snaps, prev [model.SlotCount]model.EntitySnapshot
	for _, s := range model.AllSlots {
		snap := e.decoder.Decode(s, res.Bases[s])
		snap.Cycle = cycle
		snap.CapturedAt = at
		if res.Held[s] {
			snap.Faults = snap.Faults.Add(model.KindStaleRead)
		}
		snaps[s] = snap
		e.history.Push(s, snap)
		prev[s], _ = e.history.Previous(s)
	}

	out := e.infer.Step(snaps, prev, cycle)
	e.entities = entityIDs(snaps)

	f := model.Frame{
		Session:             e.session,
		Cycle:               cycle,
		CapturedAt:          at,
		Snapshots:           snaps,
		Hits:                out.Hits,
		Phases:              out.Phases,
		Readiness:           out.Readiness,
		Composite:           res.Composite,
		Advantage:           out.Advantage,
		Combos:              out.Combos,
		MoveTableGeneration: e.generation,
	}
	for _, h := range f.Hits {
		e.logger.Info("hit", "event", h.String(), "cycle", cycle)
	}

	if e.scanEvery > 0 && cycle%int64(e.scanEvery) == 0 {
		e.RequestScan()
	}

	e.dispatch(ctx, f)
	return f, nil
}

// Flush closes every open combo and delivers them in a final frame that
// carries no snapshots. It is a no-op when nothing is open.
func (e *Engine) Flush(ctx context.Context) {
	combos := e.infer.Flush()
	if len(combos) == 0 {
		return
	}
	e.dispatch(ctx, model.Frame{
		Session:             e.session,
		Cycle:               e.clock.Current(),
		CapturedAt:          e.now(),
		Combos:              combos,
		MoveTableGeneration: e.generation,
	})
}

func (e *Engine) applyScanResult() {
	if e.scans == nil {
		return
	}
	t, ok := e.scans.Results().TryTake()
	if !ok || t == nil {
		return
	}
	e.generation++
	t.Generation = e.generation
	e.moveTable = t
	e.infer.SetFrameData(t)
	e.logger.Info("move table applied", "generation", e.generation, "moves", t.Len())
}

func (e *Engine) dispatch(ctx context.Context, f model.Frame) {
	for i, s := range e.sinks {
		if err := s.Consume(ctx, f); err != nil {
			e.logger.Error("sink failed",
				"sink", fmt.Sprintf("%d:%T", i, s),
				"cycle", f.Cycle,
				"error", err)
		}
	}
}

func entityIDs(snaps [model.SlotCount]model.EntitySnapshot) [model.SlotCount]model.Field[uint32] {
	var ids [model.SlotCount]model.Field[uint32]
	for i, s := range snaps {
		if s.Present {
			ids[i] = s.EntityTypeID
		}
	}
	return ids
}
