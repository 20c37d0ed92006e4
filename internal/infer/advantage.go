package infer

import (
	"log/slog"
	"sort"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/model"
)

// FrameDataSource supplies per-slot frame data discovered at runtime,
// typically the latest deep move-table scan.
type FrameDataSource interface {
	FrameData(slot model.SlotID, move uint32) (config.FrameData, bool)
}

type pairKey struct {
	attacker model.SlotID
	victim   model.SlotID
}

// side tracks one participant of a contact.
type side struct {
	busy bool
	free int64 // first recovered cycle, -1 until stamped
}

func (s *side) observe(code uint8, idle config.StateSet, recovered []uint8, cycle int64) {
	if s.free >= 0 {
		return
	}
	if containsState(recovered, code) {
		if s.busy {
			s.free = cycle
		}
		return
	}
	if !idle.Has(code) {
		s.busy = true
	}
}

type contact struct {
	key       pairKey
	move      model.Field[uint32]
	lastTouch int64
	armed     bool
	atk       side
	vic       side
}

func (c *contact) restart(move model.Field[uint32], cycle int64) {
	c.move = move
	c.lastTouch = cycle
	c.armed = false
	c.atk = side{free: -1}
	c.vic = side{free: -1}
}

// AdvantageTracker measures who recovers first after a hit.
//
// A contact opens on every attributed hit and is keyed by (attacker,
// victim). Another hit on the same pair restarts the measurement. At most
// one result is finalized per cycle; other completed contacts wait for the
// next cycle in (attacker, victim) order.
//
// Thread-safety: not safe for concurrent use; owned by the engine loop.
type AdvantageTracker struct {
	cfg      config.Advantage
	table    *config.Table
	logger   *slog.Logger
	contacts map[pairKey]*contact
}

// NewAdvantageTracker creates an empty tracker.
func NewAdvantageTracker(table *config.Table, logger *slog.Logger) *AdvantageTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvantageTracker{
		cfg:      table.Advantage,
		table:    table,
		logger:   logger,
		contacts: make(map[pairKey]*contact),
	}
}

// Open starts or restarts the contact for an attributed hit.
func (t *AdvantageTracker) Open(h model.HitEvent) {
	if h.Attacker == model.SlotNone {
		return
	}
	key := pairKey{attacker: h.Attacker, victim: h.Victim}
	c, ok := t.contacts[key]
	if !ok {
		c = &contact{key: key}
		t.contacts[key] = c
	}
	c.restart(h.MoveID, h.Cycle)
}

// Len reports how many contacts are being tracked.
func (t *AdvantageTracker) Len() int {
	return len(t.contacts)
}

// Observe feeds one cycle of state codes to every contact and returns the
// finalized result, if any.
func (t *AdvantageTracker) Observe(cur [model.SlotCount]model.EntitySnapshot, cycle int64, frames FrameDataSource) *model.AdvantageResult {
	var result *model.AdvantageResult

	for _, c := range t.ordered() {
		if t.cfg.ContactTimeoutCycles > 0 && cycle-c.lastTouch > int64(t.cfg.ContactTimeoutCycles) {
			t.logger.Debug("contact timed out",
				"attacker", c.key.attacker, "victim", c.key.victim, "cycle", cycle)
			delete(t.contacts, c.key)
			continue
		}

		a, okA := cur[c.key.attacker].StateCode.Get()
		v, okV := cur[c.key.victim].StateCode.Get()
		if !okA || !okV || !cur[c.key.attacker].Present || !cur[c.key.victim].Present {
			continue
		}

		if !c.armed {
			if !t.cfg.AttackingStates.Has(a) || !t.cfg.LockedStates.Has(v) {
				continue
			}
			c.armed = true
			c.atk.busy = true
			c.vic.busy = true
			continue
		}

		c.atk.observe(a, t.cfg.IdleStates, t.cfg.AttackerRecoveredStates, cycle)
		c.vic.observe(v, t.cfg.IdleStates, t.cfg.VictimRecoveredStates, cycle)

		if result != nil || c.atk.free < 0 || c.vic.free < 0 {
			continue
		}
		r := t.finalize(c, cycle, frames)
		result = &r
		delete(t.contacts, c.key)
	}
	return result
}

func (t *AdvantageTracker) finalize(c *contact, cycle int64, frames FrameDataSource) model.AdvantageResult {
	r := model.AdvantageResult{
		Attacker: c.key.attacker,
		Victim:   c.key.victim,
		MoveID:   c.move,
		Raw:      c.vic.free - c.atk.free,
		Cycle:    cycle,
	}
	r.Value = r.Raw

	if fd, ok := t.lookup(c.key.attacker, c.move, frames); ok {
		r.Predicted = fd.AdvantageOnHit()
		r.HasPrediction = true
		diff := r.Raw - r.Predicted
		if diff < 0 {
			diff = -diff
		}
		if diff > t.cfg.Tolerance {
			r.Value = r.Predicted
			r.Corrected = true
		}
	}

	t.logger.Info("advantage",
		"attacker", r.Attacker, "victim", r.Victim, "move", r.MoveID,
		"raw", r.Raw, "value", r.Value, "corrected", r.Corrected)
	return r
}

// lookup prefers scanned frame data over the static table.
func (t *AdvantageTracker) lookup(slot model.SlotID, move model.Field[uint32], frames FrameDataSource) (config.FrameData, bool) {
	id, ok := move.Get()
	if !ok {
		return config.FrameData{}, false
	}
	if frames != nil {
		if fd, ok := frames.FrameData(slot, id); ok {
			return fd, true
		}
	}
	return t.table.Duration(id)
}

// Reset drops every open contact.
func (t *AdvantageTracker) Reset() {
	clear(t.contacts)
}

func (t *AdvantageTracker) ordered() []*contact {
	out := make([]*contact, 0, len(t.contacts))
	for _, c := range t.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key.attacker != out[j].key.attacker {
			return out[i].key.attacker < out[j].key.attacker
		}
		return out[i].key.victim < out[j].key.victim
	})
	return out
}

func containsState(set []uint8, code uint8) bool {
	for _, s := range set {
		if s == code {
			return true
		}
	}
	return false
}
