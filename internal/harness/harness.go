package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/engine"
	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/testutil"
)

// DefaultSession is the session id used when a scenario names none.
const DefaultSession = "scenario-session"

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
	table  *config.Table
	sinks  []engine.Sink
}

// WithLogger sets the engine logger. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithTable overrides the scenario's configuration table.
func WithTable(t *config.Table) Option {
	return func(c *runConfig) {
		c.table = t
	}
}

// WithSinks attaches extra sinks that receive every frame of the run.
func WithSinks(sinks ...engine.Sink) Option {
	return func(c *runConfig) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// entity tracks where a slot's record lives in the synthetic image.
type entity struct {
	base  uint32
	state testutil.Entity
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the table and build a fresh memory image
//  2. Place the scenario's entities
//  3. Apply each step's patches and run its cycles
//  4. Flush open combos
//  5. Build the trace and evaluate assertions
//
// A returned error means the scenario could not be executed; failed
// assertions are reported in Result.Errors instead.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	table := cfg.table
	if table == nil {
		var err error
		if path := s.ConfigPath(); path != "" {
			table, err = config.Load(path)
		} else {
			table, err = config.LoadDefault()
		}
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	session := s.Session
	if session == "" {
		session = DefaultSession
	}

	world := testutil.NewWorldWith(table)
	entities := make(map[model.SlotID]*entity)
	for _, p := range s.Entities {
		slot, err := model.ParseSlot(p.Slot)
		if err != nil {
			return nil, err
		}
		e := testutil.Healthy(p.TypeID)
		p.EntityFields.apply(&e)
		entities[slot] = &entity{base: p.Base, state: e}
		world.Place(slot, p.Base, e)
	}

	rec := &engine.Recorder{}
	clock := testutil.NewFrameClock(0)
	eng := engine.New(world.Image(), table,
		engine.WithLogger(cfg.logger),
		engine.WithNow(clock.Now),
		engine.WithSessionGenerator(testutil.NewFixedSessionGenerator(session)),
		engine.WithSinks(append([]engine.Sink{rec}, cfg.sinks...)...),
	)

	ctx := context.Background()
	for i, st := range s.Cycles {
		for n := 0; n < st.Count(); n++ {
			if n == 0 || st.Each {
				if err := applyPatches(world, entities, st.Set); err != nil {
					return nil, fmt.Errorf("cycles[%d]: %w", i, err)
				}
			}
			if _, err := eng.Step(ctx); err != nil {
				return nil, fmt.Errorf("cycles[%d]: %w", i, err)
			}
		}
	}
	steps := len(rec.Frames)
	eng.Flush(ctx)

	result := NewResult()
	result.Session = eng.Session()
	result.Cycles = eng.Cycle()
	result.Frames = rec.Frames[:steps]
	result.Flushed = rec.Frames[steps:]
	result.Trace = BuildTrace(result.Frames, result.Flushed)

	for i, a := range s.Assertions {
		if err := evaluateAssertion(result, a); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return result, nil
}

func applyPatches(world *testutil.World, entities map[model.SlotID]*entity, patches []Patch) error {
	for _, p := range patches {
		slot, err := model.ParseSlot(p.Slot)
		if err != nil {
			return err
		}
		e := entities[slot]
		if e == nil {
			if p.Base == nil {
				if p.Anchor != nil {
					world.SetAnchor(slot, *p.Anchor)
					continue
				}
				return fmt.Errorf("slot %s has no entity", p.Slot)
			}
			e = &entity{base: *p.Base, state: testutil.Healthy(0)}
			entities[slot] = e
		}

		p.EntityFields.apply(&e.state)
		if p.CurrentAdd != 0 {
			cur := int64(e.state.Current) + p.CurrentAdd
			e.state.Current = uint32(max(cur, 0))
		}

		switch {
		case p.Base != nil:
			e.base = *p.Base
			world.Place(slot, e.base, e.state)
		default:
			world.Write(e.base, e.state)
		}
		if p.Anchor != nil {
			world.SetAnchor(slot, *p.Anchor)
		}
	}
	return nil
}

func (f EntityFields) apply(e *testutil.Entity) {
	if f.Max != nil {
		e.Max = *f.Max
	}
	if f.Current != nil {
		e.Current = *f.Current
	}
	if f.Aux != nil {
		e.Aux = *f.Aux
	}
	if f.LastDelta != nil {
		e.LastDelta = *f.LastDelta
	}
	if f.Resource != nil {
		e.Resource = *f.Resource
	}
	if f.X != nil {
		e.X = *f.X
	}
	if f.Y != nil {
		e.Y = *f.Y
	}
	if f.Anim != nil {
		e.Anim = *f.Anim
	}
	if f.Sub != nil {
		e.Sub = *f.Sub
	}
	if f.State != nil {
		e.State = *f.State
	}
	if f.MirroredResource != nil {
		e.MirroredResource = *f.MirroredResource
	}
}

// BuildTrace reduces frames to trace events. Presence, phase and composite
// events are emitted on change only, starting from an all-absent state.
// Flushed frames contribute their combos.
func BuildTrace(frames, flushed []model.Frame) []TraceEvent {
	trace := []TraceEvent{}

	var (
		present   [model.SlotCount]bool
		phases    [model.SlotCount]model.PhaseState
		composite model.Composite
	)
	for _, f := range frames {
		for _, s := range model.AllSlots {
			snap := f.Snapshots[s]
			if snap.Present == present[s] {
				continue
			}
			present[s] = snap.Present
			if snap.Present {
				detail := "base " + snap.Base.String()
				if snap.EntityName != "" {
					detail += " entity " + snap.EntityName
				}
				trace = append(trace, TraceEvent{Cycle: f.Cycle, Kind: EventPresent, Slot: s.String(), Detail: detail})
			} else {
				trace = append(trace, TraceEvent{Cycle: f.Cycle, Kind: EventAbsent, Slot: s.String(), Detail: "lost"})
			}
		}
		for _, s := range model.AllSlots {
			if f.Phases[s] == phases[s] {
				continue
			}
			trace = append(trace, TraceEvent{
				Cycle:  f.Cycle,
				Kind:   EventPhase,
				Slot:   s.String(),
				Detail: phases[s].String() + " to " + f.Phases[s].String(),
			})
			phases[s] = f.Phases[s]
		}
		for _, side := range []model.Side{model.SideP1, model.SideP2} {
			if f.Composite[side] == composite[side] {
				continue
			}
			composite[side] = f.Composite[side]
			trace = append(trace, TraceEvent{
				Cycle:  f.Cycle,
				Kind:   EventComposite,
				Detail: side.String() + " shared " + strconv.FormatBool(composite[side]),
			})
		}
		trace = appendEvents(trace, f)
	}
	for _, f := range flushed {
		trace = appendEvents(trace, f)
	}
	return trace
}

func appendEvents(trace []TraceEvent, f model.Frame) []TraceEvent {
	for _, h := range f.Hits {
		trace = append(trace, TraceEvent{Cycle: f.Cycle, Kind: EventHit, Slot: h.Victim.String(), Detail: hitDetail(h)})
	}
	if a := f.Advantage; a != nil {
		trace = append(trace, TraceEvent{
			Cycle: f.Cycle,
			Kind:  EventAdvantage,
			Slot:  a.Attacker.String(),
			Detail: fmt.Sprintf("victim %s raw %d value %d corrected %t",
				a.Victim, a.Raw, a.Value, a.Corrected),
		})
	}
	for _, c := range f.Combos {
		trace = append(trace, TraceEvent{
			Cycle: f.Cycle,
			Kind:  EventCombo,
			Slot:  c.Victim.String(),
			Detail: fmt.Sprintf("attacker %s hits %d total %d cycles %d to %d",
				slotLabel(c.Attacker), c.Hits, c.Total, c.StartCycle, c.EndCycle),
		})
	}
	return trace
}

func hitDetail(h model.HitEvent) string {
	return fmt.Sprintf("attacker %s delta %d value %d to %d d2 %s source %s",
		slotLabel(h.Attacker), h.Delta, h.ValueBefore, h.ValueAfter,
		strconv.FormatFloat(h.DistanceSquared, 'f', -1, 64), h.Source)
}

func slotLabel(s model.SlotID) string {
	if s == model.SlotNone {
		return "none"
	}
	return s.String()
}
