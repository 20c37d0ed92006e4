package infer

import (
	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/model"
)

// hitDetector applies the per-slot hit rules and cooldown.
type hitDetector struct {
	cfg config.Hit

	// cooldownUntil is the last cycle (inclusive) during which the slot's
	// hits are suppressed. -1 means no cooldown.
	cooldownUntil [model.SlotCount]int64
}

func newHitDetector(cfg config.Hit) *hitDetector {
	d := &hitDetector{cfg: cfg}
	d.reset()
	return d
}

func (d *hitDetector) reset() {
	for i := range d.cooldownUntil {
		d.cooldownUntil[i] = -1
	}
}

// detect returns a victim-side hit for slot, or false.
//
// Only Victim, Delta, ValueBefore, ValueAfter and Source are filled in;
// attribution happens afterwards with the whole cycle in view.
func (d *hitDetector) detect(slot model.SlotID, cur, prev model.EntitySnapshot, cycle int64) (model.HitEvent, bool) {
	if !cur.Present || !prev.Present {
		return model.HitEvent{}, false
	}
	// A new base means the previous reading belongs to another entity.
	if cur.Base != prev.Base {
		return model.HitEvent{}, false
	}
	if cycle <= d.cooldownUntil[slot] {
		return model.HitEvent{}, false
	}

	hit, ok := lastDeltaHit(cur, prev)
	if !ok {
		hit, ok = valueDropHit(cur, prev, d.cfg.NoiseThreshold)
	}
	if !ok {
		return model.HitEvent{}, false
	}

	hit.Victim = slot
	hit.Cycle = cycle
	d.cooldownUntil[slot] = cycle + int64(d.cfg.CooldownCycles)
	return hit, true
}

func lastDeltaHit(cur, prev model.EntitySnapshot) (model.HitEvent, bool) {
	now, ok1 := cur.LastDeltaReceived.Get()
	was, ok2 := prev.LastDeltaReceived.Get()
	if !ok1 || !ok2 || now == 0 || now == was {
		return model.HitEvent{}, false
	}

	h := model.HitEvent{Delta: now, Source: model.HitSourceLastDelta}
	switch {
	case prev.Reliable() && cur.Reliable():
		h.ValueBefore = prev.CurrentValue.Value
		h.ValueAfter = cur.CurrentValue.Value
	case cur.Reliable():
		h.ValueAfter = cur.CurrentValue.Value
		h.ValueBefore = h.ValueAfter + now
	case prev.Reliable():
		h.ValueBefore = prev.CurrentValue.Value
		h.ValueAfter = max(h.ValueBefore-now, 0)
	}
	return h, true
}

func valueDropHit(cur, prev model.EntitySnapshot, noise int64) (model.HitEvent, bool) {
	if !cur.Reliable() || !prev.Reliable() {
		return model.HitEvent{}, false
	}
	before, after := prev.CurrentValue.Value, cur.CurrentValue.Value
	drop := before - after
	if drop <= noise {
		return model.HitEvent{}, false
	}
	return model.HitEvent{
		Delta:       drop,
		ValueBefore: before,
		ValueAfter:  after,
		Source:      model.HitSourceValueDrop,
	}, true
}

// attribute fills in the attacker, distance, move and label of a hit.
func attribute(h *model.HitEvent, cur [model.SlotCount]model.EntitySnapshot, table *config.Table) {
	h.Attacker, h.DistanceSquared = Attribute(h.Victim, cur, table.Hit.MaxContactDistanceSq)
	if h.Attacker == model.SlotNone {
		return
	}
	atk := cur[h.Attacker]
	h.MoveID = atk.AnimationID
	move, ok := atk.AnimationID.Get()
	if !ok || table.MoveLabels == nil {
		return
	}
	h.MoveName = table.MoveLabels.Lookup(move, atk.EntityTypeID.Or(0))
}
