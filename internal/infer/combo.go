package infer

import (
	"sort"

	"github.com/roach88/framewatch/internal/model"
)

type combo struct {
	summary model.ComboSummary
	lastHit int64
}

// comboTracker groups consecutive hits on one victim base.
type comboTracker struct {
	timeout int64
	open    map[model.Address]*combo
}

func newComboTracker(timeoutCycles int) *comboTracker {
	return &comboTracker{
		timeout: int64(timeoutCycles),
		open:    make(map[model.Address]*combo),
	}
}

// add opens or extends the combo on the victim's base.
func (t *comboTracker) add(base model.Address, h model.HitEvent) {
	c, ok := t.open[base]
	if !ok {
		c = &combo{summary: model.ComboSummary{
			Victim:     h.Victim,
			Attacker:   h.Attacker,
			ValueStart: h.ValueBefore,
			StartCycle: h.Cycle,
		}}
		t.open[base] = c
	}
	c.summary.Hits++
	c.summary.Total += h.Delta
	c.summary.ValueEnd = h.ValueAfter
	c.summary.EndCycle = h.Cycle
	if h.Attacker != model.SlotNone {
		c.summary.Attacker = h.Attacker
	}
	if h.TeamGuess != "" {
		c.summary.TeamGuess = h.TeamGuess
	}
	c.lastHit = h.Cycle
}

// expire closes every combo idle for more than the timeout, ordered by
// start cycle then victim slot.
func (t *comboTracker) expire(cycle int64) []model.ComboSummary {
	var done []model.ComboSummary
	for base, c := range t.open {
		if cycle-c.lastHit > t.timeout {
			done = append(done, c.summary)
			delete(t.open, base)
		}
	}
	sortCombos(done)
	return done
}

// flush closes every open combo.
func (t *comboTracker) flush() []model.ComboSummary {
	done := make([]model.ComboSummary, 0, len(t.open))
	for base, c := range t.open {
		done = append(done, c.summary)
		delete(t.open, base)
	}
	sortCombos(done)
	return done
}

func sortCombos(cs []model.ComboSummary) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].StartCycle != cs[j].StartCycle {
			return cs[i].StartCycle < cs[j].StartCycle
		}
		return cs[i].Victim < cs[j].Victim
	})
}
