// Package resolver turns the per-slot anchor words into validated entity
// base addresses.
package resolver

import (
	"log/slog"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/memory"
	"github.com/roach88/framewatch/internal/model"
)

// Resolution is the result of resolving all four slots in one cycle.
type Resolution struct {
	Bases [model.SlotCount]model.Address

	// Held marks slots whose base is a last-known-good reuse rather than a
	// fresh resolution.
	Held [model.SlotCount]bool

	// Errs holds the resolution error of each unresolved slot.
	Errs [model.SlotCount]error

	Composite model.Composite
}

// Resolved reports whether the slot has a base this cycle.
func (r *Resolution) Resolved(s model.SlotID) bool {
	return !r.Bases[s].IsZero()
}

// Resolver validates anchors and follows at most one indirection hop.
//
// Resolution is retried every cycle with no backoff. A slot that fails
// keeps its previous base for up to the table's grace cycles, flagged as
// Held.
//
// Thread-safety: not safe for concurrent use; owned by the engine loop.
type Resolver struct {
	mem    memory.Access
	table  *config.Table
	logger *slog.Logger

	lastGood [model.SlotCount]model.Address
	misses   [model.SlotCount]int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver.
func New(mem memory.Access, table *config.Table, opts ...Option) *Resolver {
	r := &Resolver{
		mem:    mem,
		table:  table,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidPointer reports whether addr may be dereferenced as an entity
// pointer: inside one of the half-open windows, not a known-bad sentinel,
// and aligned.
func ValidPointer(table *config.Table, addr uint32) bool {
	if _, bad := table.Resolver.BadPointers[addr]; bad {
		return false
	}
	if !table.InWindow(addr) {
		return false
	}
	align := table.Resolver.Alignment
	if align > 1 && addr%align != 0 {
		return false
	}
	return true
}

// looksLikeEntity checks the header fields of a candidate base.
func (r *Resolver) looksLikeEntity(base uint32) bool {
	l := r.table.Layout
	b := r.table.Bands

	maxV, err := memory.ReadU32(r.mem, base+l.MaxValue.Offset)
	if err != nil {
		return false
	}
	curV, err := memory.ReadU32(r.mem, base+l.CurrentValue.Offset)
	if err != nil {
		return false
	}
	auxV, err := memory.ReadU32(r.mem, base+l.AuxValue.Offset)
	if err != nil {
		return false
	}

	m := int64(maxV)
	if m < b.MaxValueMin || m > b.MaxValueMax {
		return false
	}
	return int64(curV) <= m && int64(auxV) <= m
}

// Resolve returns the entity base of one slot.
//
// The anchor word is validated and verified directly first; failing that,
// each probe offset is tried as one indirection hop. Errors are
// *model.Error of kind KindInvalidPointer; Resolve never panics.
func (r *Resolver) Resolve(slot model.SlotID) (model.Address, error) {
	anchor := r.table.Anchors[slot]
	word, err := memory.ReadU32(r.mem, anchor)
	if err != nil {
		return model.Address{}, &model.Error{
			Kind: model.KindInvalidPointer, Slot: slot, Field: "anchor", Addr: anchor,
			Message: "anchor unreadable: " + err.Error(),
		}
	}

	if !ValidPointer(r.table, word) {
		return model.Address{}, &model.Error{
			Kind: model.KindInvalidPointer, Slot: slot, Field: "anchor", Addr: word,
			Message: "anchor word outside valid windows",
		}
	}
	if r.looksLikeEntity(word) {
		return model.AddressOf(word), nil
	}

	for _, probe := range r.table.Resolver.ProbeOffsets {
		cand, err := memory.ReadU32(r.mem, word+probe)
		if err != nil || !ValidPointer(r.table, cand) {
			continue
		}
		if r.looksLikeEntity(cand) {
			return model.AddressOf(cand), nil
		}
	}

	return model.Address{}, &model.Error{
		Kind: model.KindInvalidPointer, Slot: slot, Field: "anchor", Addr: word,
		Message: "no entity header at anchor or probes",
	}
}

// ResolveAll resolves the four slots and derives the composite flags.
func (r *Resolver) ResolveAll() Resolution {
	var res Resolution

	for _, slot := range model.AllSlots {
		base, err := r.Resolve(slot)
		if err == nil {
			if base != r.lastGood[slot] {
				r.logger.Info("slot base changed", "slot", slot.String(), "from", r.lastGood[slot].String(), "to", base.String())
			}
			r.lastGood[slot] = base
			r.misses[slot] = 0
			res.Bases[slot] = base
			continue
		}

		res.Errs[slot] = err
		r.misses[slot]++
		if !r.lastGood[slot].IsZero() && r.misses[slot] <= r.table.Resolver.GraceCycles {
			res.Bases[slot] = r.lastGood[slot]
			res.Held[slot] = true
			r.logger.Debug("holding last good base", "slot", slot.String(), "misses", r.misses[slot], "error", err)
			continue
		}
		if !r.lastGood[slot].IsZero() {
			r.logger.Info("slot lost", "slot", slot.String(), "last", r.lastGood[slot].String(), "error", err)
			r.lastGood[slot] = model.Address{}
		}
	}

	fresh := res.Bases
	for i, held := range res.Held {
		if held {
			fresh[i] = model.Address{}
		}
	}
	res.Composite = Composite(fresh)
	return res
}

// Composite reports, per side, whether both slots resolved to the
// bit-identical base.
func Composite(bases [model.SlotCount]model.Address) model.Composite {
	var c model.Composite
	for _, side := range []model.Side{model.SideP1, model.SideP2} {
		s := side.Slots()
		a, b := bases[s[0]], bases[s[1]]
		c[side] = !a.IsZero() && a == b
	}
	return c
}

// Reset forgets last-known-good bases.
func (r *Resolver) Reset() {
	r.lastGood = [model.SlotCount]model.Address{}
	r.misses = [model.SlotCount]int{}
}
