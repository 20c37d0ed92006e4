package config

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/framewatch/internal/model"
)

// CompileError reports a table value that passed the schema but could not
// be turned into a Table, with the CUE position when one is known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile converts a validated CUE table value into a Table.
//
// The value must already be unified with #Table and concrete; Compile
// only checks what the schema cannot express (slot labels, duplicate
// phase ids).
func Compile(v cue.Value) (*Table, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &Table{
		EntityNames: make(map[uint32]string),
		Durations:   make(map[uint32]FrameData),
	}

	var err error
	if t.Name, err = v.LookupPath(cue.ParsePath("name")).String(); err != nil {
		return nil, formatCUEError(err)
	}

	steps := []struct {
		field string
		fn    func(cue.Value, *Table) error
	}{
		{"anchors", compileAnchors},
		{"resolver", compileResolver},
		{"layout", compileLayout},
		{"bands", compileBands},
		{"variance", compileVariance},
		{"hit", compileHit},
		{"combo", compileCombo},
		{"advantage", compileAdvantage},
		{"phases", compilePhases},
		{"entity_names", compileEntityNames},
		{"move_labels", compileMoveLabels},
		{"active_durations", compileDurations},
		{"debug", compileDebug},
		{"scan", compileScan},
	}
	for _, s := range steps {
		fv := v.LookupPath(cue.ParsePath(s.field))
		if !fv.Exists() {
			return nil, &CompileError{Field: s.field, Message: "field is required", Pos: v.Pos()}
		}
		if err := s.fn(fv, t); err != nil {
			return nil, err
		}
	}

	stale, err := intAt(v, "stale_cycles")
	if err != nil {
		return nil, err
	}
	t.StaleCycles = int(stale)

	return t, nil
}

func compileAnchors(v cue.Value, t *Table) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	seen := 0
	for iter.Next() {
		slot, err := model.ParseSlot(iter.Label())
		if err != nil {
			return &CompileError{Field: "anchors", Message: err.Error(), Pos: iter.Value().Pos()}
		}
		addr, err := u32(iter.Value(), "anchors."+iter.Label())
		if err != nil {
			return err
		}
		t.Anchors[slot] = addr
		seen++
	}
	if seen != model.SlotCount {
		return &CompileError{Field: "anchors", Message: fmt.Sprintf("expected %d anchors, got %d", model.SlotCount, seen), Pos: v.Pos()}
	}
	return nil
}

func compileResolver(v cue.Value, t *Table) error {
	windows, err := windowList(v.LookupPath(cue.ParsePath("windows")), "resolver.windows")
	if err != nil {
		return err
	}
	bad, err := u32List(v.LookupPath(cue.ParsePath("bad_pointers")), "resolver.bad_pointers")
	if err != nil {
		return err
	}
	probes, err := u32List(v.LookupPath(cue.ParsePath("probe_offsets")), "resolver.probe_offsets")
	if err != nil {
		return err
	}
	align, err := intAt(v, "alignment")
	if err != nil {
		return err
	}
	grace, err := intAt(v, "grace_cycles")
	if err != nil {
		return err
	}

	t.Resolver = Resolver{
		Windows:      windows,
		BadPointers:  make(map[uint32]struct{}, len(bad)),
		Alignment:    uint32(align),
		ProbeOffsets: probes,
		GraceCycles:  int(grace),
	}
	for _, b := range bad {
		t.Resolver.BadPointers[b] = struct{}{}
	}
	return nil
}

func compileLayout(v cue.Value, t *Table) error {
	fixed := []struct {
		name string
		dst  *FieldSpec
	}{
		{"entity_type_id", &t.Layout.EntityTypeID},
		{"max_value", &t.Layout.MaxValue},
		{"current_value", &t.Layout.CurrentValue},
		{"aux_value", &t.Layout.AuxValue},
		{"last_delta", &t.Layout.LastDelta},
		{"position_x", &t.Layout.PositionX},
		{"animation_id", &t.Layout.AnimationID},
		{"sub_action_id", &t.Layout.SubActionID},
		{"state_code", &t.Layout.StateCode},
	}
	for _, f := range fixed {
		spec, err := fieldSpec(v.LookupPath(cue.ParsePath(f.name)), "layout."+f.name)
		if err != nil {
			return err
		}
		*f.dst = spec
	}

	var err error
	py := v.LookupPath(cue.ParsePath("position_y"))
	if t.Layout.PositionYKind, err = kindAt(py, "layout.position_y"); err != nil {
		return err
	}
	if t.Layout.PositionYCandidates, err = u32List(py.LookupPath(cue.ParsePath("candidates")), "layout.position_y.candidates"); err != nil {
		return err
	}

	res := v.LookupPath(cue.ParsePath("resource"))
	if t.Layout.ResourceKind, err = kindAt(res, "layout.resource"); err != nil {
		return err
	}
	if t.Layout.ResourceBanks, err = u32List(res.LookupPath(cue.ParsePath("banks")), "layout.resource.banks"); err != nil {
		return err
	}
	return nil
}

func compileBands(v cue.Value, t *Table) error {
	var err error
	b := &t.Bands
	if b.MaxValueMin, err = intAt(v, "max_value_min"); err != nil {
		return err
	}
	if b.MaxValueMax, err = intAt(v, "max_value_max"); err != nil {
		return err
	}
	if b.DeltaMax, err = intAt(v, "delta_max"); err != nil {
		return err
	}
	if b.ResourceMax, err = intAt(v, "resource_max"); err != nil {
		return err
	}
	if b.FloatAbsMax, err = floatAt(v, "float_abs_max"); err != nil {
		return err
	}
	return nil
}

func compileVariance(v cue.Value, t *Table) error {
	n, err := intAt(v, "sample_window")
	if err != nil {
		return err
	}
	th, err := floatAt(v, "anomaly_threshold")
	if err != nil {
		return err
	}
	t.Variance = Variance{SampleWindow: int(n), AnomalyThreshold: th}
	return nil
}

func compileHit(v cue.Value, t *Table) error {
	var err error
	h := &t.Hit
	if h.NoiseThreshold, err = intAt(v, "noise_threshold"); err != nil {
		return err
	}
	cd, err := intAt(v, "cooldown_cycles")
	if err != nil {
		return err
	}
	h.CooldownCycles = int(cd)
	if h.MaxContactDistanceSq, err = floatAt(v, "max_contact_distance_sq"); err != nil {
		return err
	}
	if h.TeamDeltaMin, err = intAt(v, "team_delta_min"); err != nil {
		return err
	}
	return nil
}

func compileCombo(v cue.Value, t *Table) error {
	n, err := intAt(v, "timeout_cycles")
	if err != nil {
		return err
	}
	t.Combo.TimeoutCycles = int(n)
	return nil
}

func compileAdvantage(v cue.Value, t *Table) error {
	timeout, err := intAt(v, "contact_timeout_cycles")
	if err != nil {
		return err
	}
	tol, err := intAt(v, "tolerance")
	if err != nil {
		return err
	}

	lists := map[string][]uint8{}
	for _, name := range []string{"idle_states", "attacking_states", "locked_states", "attacker_recovered_states", "victim_recovered_states"} {
		codes, err := u8List(v.LookupPath(cue.ParsePath(name)), "advantage."+name)
		if err != nil {
			return err
		}
		lists[name] = codes
	}

	t.Advantage = Advantage{
		ContactTimeoutCycles:    int(timeout),
		Tolerance:               tol,
		IdleStates:              toSet(lists["idle_states"]),
		AttackingStates:         toSet(lists["attacking_states"]),
		LockedStates:            toSet(lists["locked_states"]),
		AttackerRecoveredStates: lists["attacker_recovered_states"],
		VictimRecoveredStates:   lists["victim_recovered_states"],
	}
	return nil
}

func compilePhases(v cue.Value, t *Table) error {
	byID := make(map[uint32]model.PhaseState)
	sets := []struct {
		name  string
		phase model.PhaseState
	}{
		{"none", model.PhaseNone},
		{"engaging_in", model.PhaseEngagingIn},
		{"acting", model.PhaseActing},
		{"recovering", model.PhaseRecovering},
	}
	for _, s := range sets {
		field := "phases." + s.name
		ids, err := u32List(v.LookupPath(cue.ParsePath(s.name)), field)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if prev, dup := byID[id]; dup && prev != s.phase {
				return &CompileError{
					Field:   field,
					Message: fmt.Sprintf("animation id %d already mapped to %s", id, prev),
					Pos:     v.Pos(),
				}
			}
			byID[id] = s.phase
		}
	}
	t.Phases = NewPhases(byID)
	return nil
}

func compileEntityNames(v cue.Value, t *Table) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		id, err := strconv.ParseUint(iter.Label(), 10, 32)
		if err != nil {
			return &CompileError{Field: "entity_names", Message: fmt.Sprintf("invalid id %q", iter.Label()), Pos: iter.Value().Pos()}
		}
		name, err := iter.Value().String()
		if err != nil {
			return formatCUEError(err)
		}
		t.EntityNames[uint32(id)] = norm.NFC.String(name)
	}
	return nil
}

func compileMoveLabels(v cue.Value, t *Table) error {
	labels := NewMoveLabels()

	gen, err := v.LookupPath(cue.ParsePath("generic")).Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for gen.Next() {
		id, err := strconv.ParseUint(gen.Label(), 10, 32)
		if err != nil {
			return &CompileError{Field: "move_labels.generic", Message: fmt.Sprintf("invalid id %q", gen.Label()), Pos: gen.Value().Pos()}
		}
		label, err := gen.Value().String()
		if err != nil {
			return formatCUEError(err)
		}
		labels.SetGeneric(uint32(id), label)
	}

	pairs, err := v.LookupPath(cue.ParsePath("pairs")).List()
	if err != nil {
		return formatCUEError(err)
	}
	for pairs.Next() {
		p := pairs.Value()
		move, err := u32(p.LookupPath(cue.ParsePath("move")), "move_labels.pairs.move")
		if err != nil {
			return err
		}
		entity, err := u32(p.LookupPath(cue.ParsePath("entity")), "move_labels.pairs.entity")
		if err != nil {
			return err
		}
		label, err := p.LookupPath(cue.ParsePath("label")).String()
		if err != nil {
			return formatCUEError(err)
		}
		labels.SetPair(move, entity, label)
	}

	flags, err := v.LookupPath(cue.ParsePath("flag_ids")).List()
	if err != nil {
		return formatCUEError(err)
	}
	for flags.Next() {
		n, err := flags.Value().Int64()
		if err != nil {
			return formatCUEError(err)
		}
		labels.MarkFlag(uint32(n))
	}

	t.MoveLabels = labels
	return nil
}

func compileDurations(v cue.Value, t *Table) error {
	iter, err := v.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		d := iter.Value()
		move, err := u32(d.LookupPath(cue.ParsePath("move")), "active_durations.move")
		if err != nil {
			return err
		}
		fd := FrameData{MoveID: move}
		for _, f := range []struct {
			name string
			dst  *int64
		}{
			{"startup", &fd.Startup},
			{"active", &fd.Active},
			{"recovery", &fd.Recovery},
			{"hitstun", &fd.Hitstun},
			{"blockstun", &fd.Blockstun},
		} {
			if *f.dst, err = intAt(d, f.name); err != nil {
				return err
			}
		}
		if _, dup := t.Durations[move]; dup {
			return &CompileError{Field: "active_durations", Message: fmt.Sprintf("duplicate move %d", move), Pos: d.Pos()}
		}
		t.Durations[move] = fd
	}
	return nil
}

func compileDebug(v cue.Value, t *Table) error {
	ms, err := intAt(v, "revert_after_ms")
	if err != nil {
		return err
	}
	t.Debug.RevertAfter = time.Duration(ms) * time.Millisecond

	iter, err := v.LookupPath(cue.ParsePath("flags")).List()
	if err != nil {
		return formatCUEError(err)
	}
	names := make(map[string]bool)
	for iter.Next() {
		f := iter.Value()
		name, err := f.LookupPath(cue.ParsePath("name")).String()
		if err != nil {
			return formatCUEError(err)
		}
		if names[name] {
			return &CompileError{Field: "debug.flags", Message: fmt.Sprintf("duplicate flag %q", name), Pos: f.Pos()}
		}
		names[name] = true
		addr, err := u32(f.LookupPath(cue.ParsePath("addr")), "debug.flags.addr")
		if err != nil {
			return err
		}
		note, _ := f.LookupPath(cue.ParsePath("note")).String()
		t.Debug.Flags = append(t.Debug.Flags, DebugFlag{Name: name, Addr: addr, Note: note})
	}
	return nil
}

func compileScan(v cue.Value, t *Table) error {
	w, err := window(v.LookupPath(cue.ParsePath("region")), "scan.region")
	if err != nil {
		return err
	}
	every, err := intAt(v, "every_cycles")
	if err != nil {
		return err
	}
	t.Scan = Scan{Region: w, EveryCycles: int(every)}
	return nil
}

// --- scalar helpers ---

func u32(v cue.Value, field string) (uint32, error) {
	n, err := v.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, &CompileError{Field: field, Message: fmt.Sprintf("%d does not fit in 32 bits", n), Pos: v.Pos()}
	}
	return uint32(n), nil
}

func intAt(v cue.Value, path string) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	n, err := fv.Int64()
	if err != nil {
		return 0, &CompileError{Field: path, Message: err.Error(), Pos: fv.Pos()}
	}
	return n, nil
}

func floatAt(v cue.Value, path string) (float64, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	f, err := fv.Float64()
	if err != nil {
		return 0, &CompileError{Field: path, Message: err.Error(), Pos: fv.Pos()}
	}
	return f, nil
}

func kindAt(v cue.Value, field string) (Kind, error) {
	kv := v.LookupPath(cue.ParsePath("kind"))
	s, err := kv.String()
	if err != nil {
		return "", &CompileError{Field: field + ".kind", Message: err.Error(), Pos: kv.Pos()}
	}
	switch k := Kind(s); k {
	case KindU8, KindU32, KindI32, KindF32:
		return k, nil
	}
	return "", &CompileError{Field: field + ".kind", Message: fmt.Sprintf("unknown kind %q", s), Pos: kv.Pos()}
}

func fieldSpec(v cue.Value, field string) (FieldSpec, error) {
	off, err := u32(v.LookupPath(cue.ParsePath("offset")), field+".offset")
	if err != nil {
		return FieldSpec{}, err
	}
	kind, err := kindAt(v, field)
	if err != nil {
		return FieldSpec{}, err
	}
	return FieldSpec{Offset: off, Kind: kind}, nil
}

func u32List(v cue.Value, field string) ([]uint32, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	var out []uint32
	for iter.Next() {
		n, err := u32(iter.Value(), field)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func u8List(v cue.Value, field string) ([]uint8, error) {
	words, err := u32List(v, field)
	if err != nil {
		return nil, err
	}
	out := make([]uint8, 0, len(words))
	for _, w := range words {
		if w > math.MaxUint8 {
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("state code %d does not fit in a byte", w), Pos: v.Pos()}
		}
		out = append(out, uint8(w))
	}
	return out, nil
}

func window(v cue.Value, field string) (Window, error) {
	lo, err := u32(v.LookupPath(cue.ParsePath("lo")), field+".lo")
	if err != nil {
		return Window{}, err
	}
	hi, err := u32(v.LookupPath(cue.ParsePath("hi")), field+".hi")
	if err != nil {
		return Window{}, err
	}
	return Window{Lo: lo, Hi: hi}, nil
}

func windowList(v cue.Value, field string) ([]Window, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	var out []Window
	for iter.Next() {
		w, err := window(iter.Value(), field)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func toSet(codes []uint8) StateSet {
	s := make(StateSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
