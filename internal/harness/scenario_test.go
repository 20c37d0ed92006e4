package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "drain"
session: s-1
entities:
  - slot: P1-C1
    base: 0x9246B9C0
    type_id: 12
    current: 40000
    x: 1.5
cycles:
  - repeat: 3
  - set:
      - slot: P1-C1
        current_add: -500
    each: true
    repeat: 4
assertions:
  - type: hit_count
    count: 0
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", s.Name)
	assert.Equal(t, "s-1", s.Session)
	require.Len(t, s.Entities, 1)
	p := s.Entities[0]
	assert.Equal(t, uint32(0x9246B9C0), p.Base)
	assert.Equal(t, uint32(12), p.TypeID)
	require.NotNil(t, p.Current)
	assert.Equal(t, uint32(40000), *p.Current)
	require.NotNil(t, p.X)
	assert.Equal(t, float32(1.5), *p.X)
	assert.Nil(t, p.Max)

	require.Len(t, s.Cycles, 2)
	assert.Equal(t, int64(-500), s.Cycles[1].Set[0].CurrentAdd)
	assert.True(t, s.Cycles[1].Each)
	assert.Equal(t, int64(7), s.TotalCycles())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
cycles:
  - repeat: 1
assertion:
  - type: hit_count
    count: 0
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_ConfigRelativeToFile(t *testing.T) {
	path := writeScenario(t, `
name: cfg
config: tables/alt.cue
cycles:
  - repeat: 1
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "tables/alt.cue"), s.ConfigPath())
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "cycles: [{repeat: 1}]",
			want: "name is required",
		},
		{
			name: "no cycles",
			yaml: "name: x",
			want: "at least one step",
		},
		{
			name: "bad slot",
			yaml: "name: x\nentities: [{slot: P3-C1, base: 0x9246B9C0}]\ncycles: [{repeat: 1}]",
			want: "unknown slot",
		},
		{
			name: "missing base",
			yaml: "name: x\nentities: [{slot: P1-C1}]\ncycles: [{repeat: 1}]",
			want: "base is required",
		},
		{
			name: "double placement",
			yaml: "name: x\nentities: [{slot: P1-C1, base: 0x9246B9C0}, {slot: P1-C1, base: 0x92500000}]\ncycles: [{repeat: 1}]",
			want: "placed twice",
		},
		{
			name: "patch without entity",
			yaml: "name: x\ncycles: [{set: [{slot: P2-C1, current: 1}]}]",
			want: "has no entity",
		},
		{
			name: "negative repeat",
			yaml: "name: x\ncycles: [{repeat: -1}]",
			want: "must not be negative",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ncycles: [{repeat: 1}]\nassertions: [{type: final_state}]",
			want: `unknown type "final_state"`,
		},
		{
			name: "hit_count needs count",
			yaml: "name: x\ncycles: [{repeat: 1}]\nassertions: [{type: hit_count}]",
			want: "count is required",
		},
		{
			name: "bad phase",
			yaml: "name: x\ncycles: [{repeat: 1}]\nassertions: [{type: phase, cycle: 1, slot: P1-C1, phase: idle}]",
			want: `unknown phase "idle"`,
		},
		{
			name: "bad side",
			yaml: "name: x\ncycles: [{repeat: 1}]\nassertions: [{type: composite, cycle: 1, side: P3, shared: true}]",
			want: "side must be P1 or P2",
		},
		{
			name: "bad fault",
			yaml: "name: x\ncycles: [{repeat: 1}]\nassertions: [{type: snapshot, cycle: 1, slot: P1-C1, fault: BROKEN}]",
			want: `unknown fault "BROKEN"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_AnchorPatchNeedsNoEntity(t *testing.T) {
	_, err := ParseScenario([]byte("name: x\ncycles: [{set: [{slot: P2-C2, anchor: 0}]}]"))
	assert.NoError(t, err)
}

func TestStep_CountDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, Step{}.Count())
	assert.Equal(t, 5, Step{Repeat: 5}.Count())
}
