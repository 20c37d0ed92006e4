package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/framewatch/internal/model"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", ev.Cycle, ev.Kind, ev.Slot, ev.Detail)
		}
	}
	return buf.String()
}

func evaluateAssertion(r *Result, a Assertion) error {
	switch a.Type {
	case AssertHit:
		return assertHit(r, a)
	case AssertHitCount:
		return assertHitCount(r, a)
	case AssertCombo:
		return assertCombo(r, a)
	case AssertAdvantage:
		return assertAdvantage(r, a)
	case AssertPhase:
		return assertPhase(r, a)
	case AssertReadiness:
		return assertReadiness(r, a)
	case AssertComposite:
		return assertComposite(r, a)
	case AssertSnapshot:
		return assertSnapshot(r, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// slotMatches reports whether s matches label; "" matches anything and
// "none" matches SlotNone.
func slotMatches(s model.SlotID, label string) bool {
	switch label {
	case "":
		return true
	case "none":
		return s == model.SlotNone
	}
	return s.String() == label
}

func hitMatches(h model.HitEvent, a Assertion) bool {
	if a.Cycle != 0 && h.Cycle != a.Cycle {
		return false
	}
	if !slotMatches(h.Victim, a.Victim) || !slotMatches(h.Attacker, a.Attacker) {
		return false
	}
	if a.Delta != 0 && h.Delta != a.Delta {
		return false
	}
	if a.Source != "" && string(h.Source) != a.Source {
		return false
	}
	return true
}

func hits(r *Result) []model.HitEvent {
	var out []model.HitEvent
	for _, f := range r.Frames {
		out = append(out, f.Hits...)
	}
	return out
}

func assertHit(r *Result, a Assertion) error {
	for _, h := range hits(r) {
		if hitMatches(h, a) {
			return nil
		}
	}
	return &AssertionError{
		Type: AssertHit,
		Expected: fmt.Sprintf("hit cycle=%d victim=%q attacker=%q delta=%d source=%q",
			a.Cycle, a.Victim, a.Attacker, a.Delta, a.Source),
		Actual: "not found in trace",
		Trace:  r.Trace,
	}
}

func assertHitCount(r *Result, a Assertion) error {
	n := 0
	for _, h := range hits(r) {
		if !slotMatches(h.Victim, a.Victim) || !slotMatches(h.Attacker, a.Attacker) {
			continue
		}
		if a.FromCycle != 0 && h.Cycle < a.FromCycle {
			continue
		}
		if a.ToCycle != 0 && h.Cycle > a.ToCycle {
			continue
		}
		n++
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertHitCount,
			Expected: fmt.Sprintf("%d hits", *a.Count),
			Actual:   fmt.Sprintf("%d hits", n),
			Trace:    r.Trace,
		}
	}
	return nil
}

func assertCombo(r *Result, a Assertion) error {
	var seen []string
	for _, f := range r.AllFrames() {
		for _, c := range f.Combos {
			seen = append(seen, fmt.Sprintf("%s hits=%d total=%d", c.Victim, c.Hits, c.Total))
			if !slotMatches(c.Victim, a.Victim) || !slotMatches(c.Attacker, a.Attacker) {
				continue
			}
			if a.Hits != 0 && c.Hits != a.Hits {
				continue
			}
			if a.Total != 0 && c.Total != a.Total {
				continue
			}
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertCombo,
		Expected: fmt.Sprintf("combo on %s hits=%d total=%d", a.Victim, a.Hits, a.Total),
		Actual:   describe(seen),
	}
}

func assertAdvantage(r *Result, a Assertion) error {
	var seen []string
	for _, f := range r.Frames {
		adv := f.Advantage
		if adv == nil {
			continue
		}
		seen = append(seen, fmt.Sprintf("%s on %s value=%d raw=%d", adv.Attacker, adv.Victim, adv.Value, adv.Raw))
		if !slotMatches(adv.Attacker, a.Attacker) || !slotMatches(adv.Victim, a.Victim) {
			continue
		}
		if a.Cycle != 0 && adv.Cycle != a.Cycle {
			continue
		}
		if a.Value != nil && adv.Value != *a.Value {
			continue
		}
		if a.Raw != nil && adv.Raw != *a.Raw {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertAdvantage,
		Expected: fmt.Sprintf("advantage %s on %s value=%s raw=%s", a.Attacker, a.Victim, optInt(a.Value), optInt(a.Raw)),
		Actual:   describe(seen),
	}
}

func frameAt(r *Result, a Assertion) (model.Frame, model.SlotID, error) {
	f, ok := r.Frame(a.Cycle)
	if !ok {
		return model.Frame{}, model.SlotNone, fmt.Errorf("cycle %d not reached (ran %d)", a.Cycle, r.Cycles)
	}
	if a.Slot == "" {
		return f, model.SlotNone, nil
	}
	slot, err := model.ParseSlot(a.Slot)
	if err != nil {
		return model.Frame{}, model.SlotNone, err
	}
	return f, slot, nil
}

func assertPhase(r *Result, a Assertion) error {
	f, slot, err := frameAt(r, a)
	if err != nil {
		return err
	}
	if got := f.Phases[slot].String(); got != a.Phase {
		return &AssertionError{
			Type:     AssertPhase,
			Expected: fmt.Sprintf("%s phase %s at cycle %d", a.Slot, a.Phase, a.Cycle),
			Actual:   got,
		}
	}
	return nil
}

func assertReadiness(r *Result, a Assertion) error {
	f, slot, err := frameAt(r, a)
	if err != nil {
		return err
	}
	if got := f.Readiness[slot].IsReady; got != *a.Ready {
		return &AssertionError{
			Type:     AssertReadiness,
			Expected: fmt.Sprintf("%s ready=%t at cycle %d", a.Slot, *a.Ready, a.Cycle),
			Actual:   fmt.Sprintf("ready=%t", got),
		}
	}
	return nil
}

func assertComposite(r *Result, a Assertion) error {
	f, _, err := frameAt(r, a)
	if err != nil {
		return err
	}
	side := model.SideP1
	if a.Side == "P2" {
		side = model.SideP2
	}
	if got := f.Composite[side]; got != *a.Shared {
		return &AssertionError{
			Type:     AssertComposite,
			Expected: fmt.Sprintf("%s shared=%t at cycle %d", a.Side, *a.Shared, a.Cycle),
			Actual:   fmt.Sprintf("shared=%t", got),
		}
	}
	return nil
}

func assertSnapshot(r *Result, a Assertion) error {
	f, slot, err := frameAt(r, a)
	if err != nil {
		return err
	}
	snap := f.Snapshots[slot]
	if a.Present != nil && snap.Present != *a.Present {
		return &AssertionError{
			Type:     AssertSnapshot,
			Expected: fmt.Sprintf("%s present=%t at cycle %d", a.Slot, *a.Present, a.Cycle),
			Actual:   fmt.Sprintf("present=%t", snap.Present),
		}
	}
	if a.Fault != "" {
		kind, _ := model.ParseErrorKind(a.Fault)
		if !snap.Faults.Has(kind) {
			return &AssertionError{
				Type:     AssertSnapshot,
				Expected: fmt.Sprintf("%s fault %s at cycle %d", a.Slot, a.Fault, a.Cycle),
				Actual:   snap.Faults.String(),
			}
		}
	}
	return nil
}

func describe(seen []string) string {
	if len(seen) == 0 {
		return "none recorded"
	}
	return strings.Join(seen, "; ")
}

func optInt(v *int64) string {
	if v == nil {
		return "*"
	}
	return fmt.Sprint(*v)
}
