package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden-file form of a run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Session      string       `json:"session"`
	Cycles       int64        `json:"cycles"`
	Trace        []TraceEvent `json:"trace"`
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
func (s TraceSnapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := TraceSnapshot{
		ScenarioName: scenarioName,
		Session:      result.Session,
		Cycles:       result.Cycles,
		Trace:        result.Trace,
	}.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
