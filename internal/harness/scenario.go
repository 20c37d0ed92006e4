package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/framewatch/internal/model"
)

// Scenario is a scripted capture run.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Config is an optional path to a CUE table, relative to the scenario
	// file. Empty means the built-in default table.
	Config string `yaml:"config,omitempty"`

	// Session is the fixed session id. Empty defaults to "scenario-session".
	Session string `yaml:"session,omitempty"`

	// Entities are placed before the first cycle.
	Entities []Placement `yaml:"entities"`

	// Cycles drive the engine.
	Cycles []Step `yaml:"cycles"`

	Assertions []Assertion `yaml:"assertions"`

	// dir is the directory of the scenario file, for resolving Config.
	dir string
}

// Placement puts an entity record at Base and points the slot's anchor at
// it. Unset fields take the values of testutil.Healthy.
type Placement struct {
	Slot   string `yaml:"slot"`
	Base   uint32 `yaml:"base"`
	TypeID uint32 `yaml:"type_id"`

	EntityFields `yaml:",inline"`
}

// EntityFields are the optional per-field overrides shared by placements
// and patches.
type EntityFields struct {
	Max       *uint32  `yaml:"max,omitempty"`
	Current   *uint32  `yaml:"current,omitempty"`
	Aux       *uint32  `yaml:"aux,omitempty"`
	LastDelta *uint32  `yaml:"last_delta,omitempty"`
	Resource  *uint32  `yaml:"resource,omitempty"`
	X         *float32 `yaml:"x,omitempty"`
	Y         *float32 `yaml:"y,omitempty"`
	Anim      *uint32  `yaml:"anim,omitempty"`
	Sub       *uint32  `yaml:"sub,omitempty"`
	State     *uint8   `yaml:"state,omitempty"`

	MirroredResource *bool `yaml:"mirrored_resource,omitempty"`
}

// Patch changes a placed entity between cycles.
type Patch struct {
	Slot string `yaml:"slot"`

	EntityFields `yaml:",inline"`

	// CurrentAdd adjusts the current value by a signed amount, clamped at 0.
	CurrentAdd int64 `yaml:"current_add,omitempty"`

	// Anchor overwrites the raw anchor word. 0 detaches the slot.
	Anchor *uint32 `yaml:"anchor,omitempty"`

	// Base moves the entity to a new record address.
	Base *uint32 `yaml:"base,omitempty"`
}

// Step applies patches and runs Repeat cycles.
type Step struct {
	Set    []Patch `yaml:"set,omitempty"`
	Repeat int     `yaml:"repeat,omitempty"`
	Each   bool    `yaml:"each,omitempty"`
}

// Count returns the number of cycles the step runs.
func (s Step) Count() int {
	if s.Repeat <= 0 {
		return 1
	}
	return s.Repeat
}

// Assertion checks the recorded frames.
type Assertion struct {
	Type string `yaml:"type"`

	Cycle    int64  `yaml:"cycle,omitempty"`
	Slot     string `yaml:"slot,omitempty"`
	Victim   string `yaml:"victim,omitempty"`
	Attacker string `yaml:"attacker,omitempty"`
	Delta    int64  `yaml:"delta,omitempty"`
	Source   string `yaml:"source,omitempty"`

	// hit_count
	Count     *int  `yaml:"count,omitempty"`
	FromCycle int64 `yaml:"from_cycle,omitempty"`
	ToCycle   int64 `yaml:"to_cycle,omitempty"`

	// combo
	Hits  int   `yaml:"hits,omitempty"`
	Total int64 `yaml:"total,omitempty"`

	// advantage
	Value *int64 `yaml:"value,omitempty"`
	Raw   *int64 `yaml:"raw,omitempty"`

	Phase   string `yaml:"phase,omitempty"`
	Side    string `yaml:"side,omitempty"`
	Shared  *bool  `yaml:"shared,omitempty"`
	Ready   *bool  `yaml:"ready,omitempty"`
	Present *bool  `yaml:"present,omitempty"`
	Fault   string `yaml:"fault,omitempty"`
}

// Assertion type constants.
const (
	AssertHit       = "hit"
	AssertHitCount  = "hit_count"
	AssertCombo     = "combo"
	AssertAdvantage = "advantage"
	AssertPhase     = "phase"
	AssertReadiness = "readiness"
	AssertComposite = "composite"
	AssertSnapshot  = "snapshot"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// ConfigPath returns Config resolved against the scenario's directory.
func (s *Scenario) ConfigPath() string {
	if s.Config == "" || filepath.IsAbs(s.Config) || s.dir == "" {
		return s.Config
	}
	return filepath.Join(s.dir, s.Config)
}

// TotalCycles returns how many engine cycles the scenario runs.
func (s *Scenario) TotalCycles() int64 {
	var n int64
	for _, st := range s.Cycles {
		n += int64(st.Count())
	}
	return n
}

var validAssertions = map[string]bool{
	AssertHit:       true,
	AssertHitCount:  true,
	AssertCombo:     true,
	AssertAdvantage: true,
	AssertPhase:     true,
	AssertReadiness: true,
	AssertComposite: true,
	AssertSnapshot:  true,
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Cycles) == 0 {
		return fmt.Errorf("cycles must contain at least one step")
	}

	placed := make(map[model.SlotID]bool)
	for i, p := range s.Entities {
		slot, err := model.ParseSlot(p.Slot)
		if err != nil {
			return fmt.Errorf("entities[%d]: %w", i, err)
		}
		if placed[slot] {
			return fmt.Errorf("entities[%d]: slot %s placed twice", i, p.Slot)
		}
		if p.Base == 0 {
			return fmt.Errorf("entities[%d]: base is required", i)
		}
		placed[slot] = true
	}

	for i, st := range s.Cycles {
		if st.Repeat < 0 {
			return fmt.Errorf("cycles[%d]: repeat must not be negative", i)
		}
		for j, p := range st.Set {
			slot, err := model.ParseSlot(p.Slot)
			if err != nil {
				return fmt.Errorf("cycles[%d].set[%d]: %w", i, j, err)
			}
			if !placed[slot] && p.Base == nil && p.Anchor == nil {
				return fmt.Errorf("cycles[%d].set[%d]: slot %s has no entity", i, j, p.Slot)
			}
			if p.Base != nil {
				placed[slot] = true
			}
		}
	}

	for i, a := range s.Assertions {
		if !validAssertions[a.Type] {
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d] (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	for _, label := range []string{a.Slot, a.Victim} {
		if label == "" {
			continue
		}
		if _, err := model.ParseSlot(label); err != nil {
			return err
		}
	}
	if a.Attacker != "" && a.Attacker != "none" {
		if _, err := model.ParseSlot(a.Attacker); err != nil {
			return err
		}
	}

	switch a.Type {
	case AssertHitCount:
		if a.Count == nil {
			return fmt.Errorf("count is required")
		}
	case AssertCombo:
		if a.Victim == "" {
			return fmt.Errorf("victim is required")
		}
	case AssertAdvantage:
		if a.Attacker == "" || a.Victim == "" {
			return fmt.Errorf("attacker and victim are required")
		}
	case AssertPhase:
		if a.Cycle == 0 || a.Slot == "" {
			return fmt.Errorf("cycle and slot are required")
		}
		if _, err := model.ParsePhase(a.Phase); err != nil {
			return err
		}
	case AssertReadiness:
		if a.Cycle == 0 || a.Slot == "" || a.Ready == nil {
			return fmt.Errorf("cycle, slot and ready are required")
		}
	case AssertComposite:
		if a.Cycle == 0 || a.Shared == nil {
			return fmt.Errorf("cycle and shared are required")
		}
		if a.Side != "P1" && a.Side != "P2" {
			return fmt.Errorf("side must be P1 or P2, got %q", a.Side)
		}
	case AssertSnapshot:
		if a.Cycle == 0 || a.Slot == "" {
			return fmt.Errorf("cycle and slot are required")
		}
		if a.Present == nil && a.Fault == "" {
			return fmt.Errorf("present or fault is required")
		}
		if a.Fault != "" {
			if _, ok := model.ParseErrorKind(a.Fault); !ok {
				return fmt.Errorf("unknown fault %q", a.Fault)
			}
		}
	}
	return nil
}
