package infer

import "github.com/roach88/framewatch/internal/model"

// Attribute picks the opposing slot nearest to the victim.
//
// Only opponents whose snapshot is present, reliable and has both
// coordinates take part. Ties go to the lower slot index. When maxDistSq
// is positive and the nearest opponent is farther than that, nobody is
// attributed. The returned distance is -1 whenever the slot is SlotNone.
func Attribute(victim model.SlotID, snaps [model.SlotCount]model.EntitySnapshot, maxDistSq float64) (model.SlotID, float64) {
	v := snaps[victim]
	if !v.HasPosition() {
		return model.SlotNone, -1
	}

	best := model.SlotNone
	bestD2 := 0.0
	for _, opp := range victim.Opponents() {
		o := snaps[opp]
		if !o.Present || !o.Reliable() {
			continue
		}
		d2, ok := model.DistanceSquared(v, o)
		if !ok {
			continue
		}
		if best == model.SlotNone || d2 < bestD2 {
			best, bestD2 = opp, d2
		}
	}

	if best == model.SlotNone {
		return model.SlotNone, -1
	}
	if maxDistSq > 0 && bestD2 > maxDistSq {
		return model.SlotNone, -1
	}
	return best, bestD2
}

// GuessTeam compares the resource gain of both sides' lead slots since
// the previous cycle. The side that gained at least minDelta more than the
// other is returned; otherwise "".
func GuessTeam(cur, prev [model.SlotCount]model.EntitySnapshot, minDelta int64) string {
	gain := func(s model.SlotID) (int64, bool) {
		c, p := cur[s], prev[s]
		if c.Base != p.Base {
			return 0, false
		}
		cv, ok1 := c.ResourcePrimary.Get()
		pv, ok2 := p.ResourcePrimary.Get()
		if !ok1 || !ok2 {
			return 0, false
		}
		return cv - pv, true
	}

	g1, ok1 := gain(model.SideP1.Slots()[0])
	g2, ok2 := gain(model.SideP2.Slots()[0])
	if !ok1 || !ok2 {
		return ""
	}
	switch {
	case g1-g2 >= minDelta && g1 > g2:
		return model.SideP1.String()
	case g2-g1 >= minDelta && g2 > g1:
		return model.SideP2.String()
	}
	return ""
}
