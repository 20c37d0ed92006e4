// Package decoder reads typed fields from a resolved entity base and
// applies plausibility checks.
//
// Fixed-offset fields are read by their declared kind. The vertical
// coordinate has several candidate offsets and is resolved statistically
// by a per-base Selector; once an offset is locked, its recent readings are
// read back from the slot's snapshot history to watch for anomalies. The
// resource counter lives in one of several
// mirrored banks; the first plausible bank is cached per base.
package decoder

import (
	"log/slog"
	"math"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/memory"
	"github.com/roach88/framewatch/internal/model"
)

// slotState is everything the decoder remembers about one slot. It is
// reset whenever the slot's base changes.
type slotState struct {
	base     model.Address
	selector *Selector
	bank     int // -1 until a plausible bank is seen

	staleKey [4]uint32
	staleRun int
}

// Decoder turns (slot, base) into an EntitySnapshot.
//
// Thread-safety: not safe for concurrent use; owned by the engine loop.
type Decoder struct {
	mem     memory.Access
	table   *config.Table
	logger  *slog.Logger
	history SeriesReader

	slots [model.SlotCount]slotState
}

// SeriesReader is the read side of the snapshot history.
type SeriesReader interface {
	Series(slot model.SlotID, fn func(model.EntitySnapshot) (float64, bool)) []float64
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		d.logger = l
	}
}

// WithHistory attaches the snapshot history the decoder's output is pushed
// into. Without one a locked offset is kept until the base changes.
func WithHistory(h SeriesReader) Option {
	return func(d *Decoder) {
		d.history = h
	}
}

// New creates a Decoder.
func New(mem memory.Access, table *config.Table, opts ...Option) *Decoder {
	d := &Decoder{
		mem:    mem,
		table:  table,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) state(slot model.SlotID, base model.Address) *slotState {
	st := &d.slots[slot]
	if st.base != base {
		*st = slotState{
			base: base,
			bank: -1,
			selector: NewSelector(
				len(d.table.Layout.PositionYCandidates),
				d.table.Variance.SampleWindow,
				d.table.Variance.AnomalyThreshold,
			),
		}
	}
	return st
}

// Reset forgets all per-slot state.
func (d *Decoder) Reset() {
	d.slots = [model.SlotCount]slotState{}
}

// Decode reads one slot's record. Cycle and CapturedAt are left for the
// caller to stamp. A zero base yields an absent snapshot.
func (d *Decoder) Decode(slot model.SlotID, base model.Address) model.EntitySnapshot {
	if base.IsZero() {
		snap := model.EntitySnapshot{Slot: slot}
		snap.Faults = snap.Faults.Add(model.KindInvalidPointer)
		return snap
	}

	st := d.state(slot, base)
	l := d.table.Layout
	b := d.table.Bands
	snap := model.EntitySnapshot{Slot: slot, Present: true, Base: base}

	if id, err := memory.ReadU32(d.mem, base.Offset(l.EntityTypeID.Offset)); err == nil {
		snap.EntityTypeID = model.Known(id)
		snap.EntityName = d.table.EntityName(id)
	}

	snap.MaxValue = d.readInt(base, l.MaxValue)
	if v, ok := snap.MaxValue.Get(); ok && (v < b.MaxValueMin || v > b.MaxValueMax) {
		snap.MaxValue = model.Unknown[int64]()
		snap.Faults = snap.Faults.Add(model.KindOutOfRange)
	}

	snap.CurrentValue = d.readInt(base, l.CurrentValue)
	if v, ok := snap.CurrentValue.Get(); ok {
		if v < 0 {
			snap.CurrentValue = model.Unknown[int64]()
			snap.Faults = snap.Faults.Add(model.KindOutOfRange)
		} else if m, mok := snap.MaxValue.Get(); mok && v > m {
			// Kept for diagnostics; Reliable() is false from here on.
			snap.Faults = snap.Faults.Add(model.KindOutOfRange)
		}
	}

	snap.AuxValue = d.readInt(base, l.AuxValue)
	if v, ok := snap.AuxValue.Get(); ok && (v < 0 || v > b.MaxValueMax) {
		snap.AuxValue = model.Unknown[int64]()
		snap.Faults = snap.Faults.Add(model.KindOutOfRange)
	}

	snap.LastDeltaReceived = d.readInt(base, l.LastDelta)
	if v, ok := snap.LastDeltaReceived.Get(); ok && (v < 0 || v > b.DeltaMax) {
		snap.LastDeltaReceived = model.Unknown[int64]()
		snap.Faults = snap.Faults.Add(model.KindOutOfRange)
	}

	var fault bool
	snap.PositionX, fault = d.readFloat(base, l.PositionX)
	if fault {
		snap.Faults = snap.Faults.Add(model.KindOutOfRange)
	}

	snap.PositionY = d.decodeY(slot, st, base, &snap.Faults)
	snap.ResourcePrimary = d.decodeResource(slot, st, base)

	if v, err := memory.ReadU32(d.mem, base.Offset(l.AnimationID.Offset)); err == nil {
		snap.AnimationID = model.Known(v)
	}
	if v, err := memory.ReadU32(d.mem, base.Offset(l.SubActionID.Offset)); err == nil {
		snap.SubActionID = model.Known(v)
	}
	if v, err := memory.ReadU8(d.mem, base.Offset(l.StateCode.Offset)); err == nil {
		snap.StateCode = model.Known(v)
	}

	if d.stale(st, base) {
		snap.Faults = snap.Faults.Add(model.KindStaleRead)
	}

	return snap
}

// readInt reads an integer field by kind. A failed read or a float kind
// yields an unknown field.
func (d *Decoder) readInt(base model.Address, f config.FieldSpec) model.Field[int64] {
	addr := base.Offset(f.Offset)
	switch f.Kind {
	case config.KindU8:
		if v, err := memory.ReadU8(d.mem, addr); err == nil {
			return model.Known(int64(v))
		}
	case config.KindU32:
		if v, err := memory.ReadU32(d.mem, addr); err == nil {
			return model.Known(int64(v))
		}
	case config.KindI32:
		if v, err := memory.ReadI32(d.mem, addr); err == nil {
			return model.Known(int64(v))
		}
	}
	return model.Unknown[int64]()
}

// readFloat reads a float field and reports whether it was rejected as
// implausible (as opposed to unreadable).
func (d *Decoder) readFloat(base model.Address, f config.FieldSpec) (model.Field[float64], bool) {
	v, err := memory.ReadF32(d.mem, base.Offset(f.Offset))
	if err != nil {
		return model.Unknown[float64](), false
	}
	x := float64(v)
	if !d.plausibleFloat(x) {
		return model.Unknown[float64](), true
	}
	return model.Known(x), false
}

func (d *Decoder) plausibleFloat(x float64) bool {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return false
	}
	return math.Abs(x) <= d.table.Bands.FloatAbsMax
}

func (d *Decoder) decodeY(slot model.SlotID, st *slotState, base model.Address, faults *model.FaultSet) model.Field[float64] {
	cands := d.table.Layout.PositionYCandidates
	if len(cands) == 0 {
		return model.Unknown[float64]()
	}
	vals := make([]float64, len(cands))
	ok := make([]bool, len(cands))
	for i, off := range cands {
		f, _ := d.readFloat(base, config.FieldSpec{Offset: off, Kind: d.table.Layout.PositionYKind})
		vals[i], ok[i] = f.Get()
	}

	obs := st.selector.Observe(vals, ok)
	if obs.Event == NoEvent && obs.Resolved && ok[obs.Index] && d.history != nil {
		obs = st.selector.Monitor(d.recentY(slot, base, st.selector, vals[obs.Index]))
	}
	switch obs.Event {
	case Selected:
		d.logger.Info("position_y offset selected",
			"slot", slot.String(), "base", base.String(),
			"offset", cands[obs.Index], "variance", obs.Variance)
	case Retriggered:
		d.logger.Info("position_y anomaly, re-sampling", "slot", slot.String(), "base", base.String())
	case Inconclusive:
		d.logger.Debug("position_y window inconclusive", "slot", slot.String())
	}

	if !obs.Resolved {
		*faults = faults.Add(model.KindAmbiguousField)
	}
	if !ok[obs.Index] {
		return model.Unknown[float64]()
	}
	return model.Known(vals[obs.Index])
}

// recentY returns the chosen vertical stream since the lock, oldest first,
// ending with cur. Earlier readings come from the history, which holds
// every snapshot decoded before this one.
func (d *Decoder) recentY(slot model.SlotID, base model.Address, sel *Selector, cur float64) []float64 {
	n := min(sel.Held()-1, sel.Window()-1)
	if n <= 0 {
		return []float64{cur}
	}
	series := d.history.Series(slot, func(s model.EntitySnapshot) (float64, bool) {
		if s.Base != base || s.Faults.Has(model.KindAmbiguousField) {
			return 0, false
		}
		return s.PositionY.Get()
	})
	n = min(n, len(series))
	return append(series[len(series)-n:], cur)
}

func (d *Decoder) decodeResource(slot model.SlotID, st *slotState, base model.Address) model.Field[int64] {
	l := d.table.Layout
	read := func(i int) (int64, bool) {
		f := d.readInt(base, config.FieldSpec{Offset: l.ResourceBanks[i], Kind: l.ResourceKind})
		v, ok := f.Get()
		if !ok || v < 0 || v > d.table.Bands.ResourceMax {
			return 0, false
		}
		return v, true
	}

	if st.bank >= 0 {
		if v, ok := read(st.bank); ok {
			return model.Known(v)
		}
	}
	for i := range l.ResourceBanks {
		if v, ok := read(i); ok {
			if st.bank != i {
				d.logger.Debug("resource bank selected", "slot", slot.String(), "offset", l.ResourceBanks[i])
			}
			st.bank = i
			return model.Known(v)
		}
	}
	return model.Unknown[int64]()
}

// stale reports whether the raw core words have been identical for more
// than the configured number of cycles.
func (d *Decoder) stale(st *slotState, base model.Address) bool {
	if d.table.StaleCycles <= 0 {
		return false
	}
	l := d.table.Layout
	var key [4]uint32
	for i, off := range []uint32{l.MaxValue.Offset, l.CurrentValue.Offset, l.AuxValue.Offset, l.PositionX.Offset} {
		w, err := memory.ReadU32(d.mem, base.Offset(off))
		if err != nil {
			st.staleRun = 0
			return false
		}
		key[i] = w
	}
	if key == st.staleKey {
		st.staleRun++
	} else {
		st.staleKey = key
		st.staleRun = 0
	}
	return st.staleRun > d.table.StaleCycles
}
