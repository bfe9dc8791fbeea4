package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/critq/internal/ir"
)

// Snapshot is the golden form of a scenario run: every rendering plus the
// parameter list it binds.
type Snapshot struct {
	Name       string
	Outputs    map[string]*Output
	Parameters []SnapshotParameter
}

// SnapshotParameter is one model parameter.
type SnapshotParameter struct {
	Name  string
	Value ir.IRValue
}

// NewSnapshot captures result.
func NewSnapshot(result *Result) *Snapshot {
	s := &Snapshot{Name: result.Name, Outputs: result.Outputs}
	if result.Model != nil {
		for _, p := range result.Model.Parameters {
			s.Parameters = append(s.Parameters, SnapshotParameter{Name: p.Name, Value: p.Value})
		}
	}
	return s
}

// toCanonicalMap converts a Snapshot for ir.MarshalCanonical, which only
// handles IR values, primitives, maps and slices.
func (s *Snapshot) toCanonicalMap() map[string]any {
	outputs := make(map[string]any, len(s.Outputs))
	for dialect, out := range s.Outputs {
		entry := map[string]any{"text": out.Text}
		if len(out.Params) > 0 {
			entry["params"] = toAnySlice(out.Params)
		}
		outputs[dialect] = entry
	}

	params := make([]any, len(s.Parameters))
	for i, p := range s.Parameters {
		var value any = ir.IRNull{}
		if p.Value != nil {
			value = p.Value
		}
		params[i] = map[string]any{"name": p.Name, "value": value}
	}

	return map[string]any{
		"name":       s.Name,
		"outputs":    outputs,
		"parameters": params,
	}
}

// MarshalSnapshot returns the canonical JSON golden form of result.
func MarshalSnapshot(result *Result) ([]byte, error) {
	return ir.MarshalCanonical(NewSnapshot(result).toCanonicalMap())
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// RunWithGolden runs scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden. The run must pass its own
// expectations first.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, h *Harness, scenario *Scenario) error {
	t.Helper()

	result, err := h.Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares result's snapshot against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
