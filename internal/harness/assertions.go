package harness

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/querymodel"
)

// EvaluateAssertions checks every assertion against m and returns one
// message per failure.
func EvaluateAssertions(m *querymodel.Model, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(m, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluateAssertion(m *querymodel.Model, a Assertion) error {
	switch a.Type {
	case AssertJoins:
		aliases := make([]string, len(m.Joins))
		for i, j := range m.Joins {
			aliases[i] = j.Alias
		}
		if err := checkCount(a.Count, len(aliases)); err != nil {
			return err
		}
		if a.Aliases != nil {
			return diff(a.Aliases, aliases)
		}
	case AssertParameters:
		if err := checkCount(a.Count, len(m.Parameters)); err != nil {
			return err
		}
		if a.Values == nil {
			return nil
		}
		want := make([]ir.IRValue, len(a.Values))
		for i, v := range a.Values {
			iv, err := ir.FromGo(v)
			if err != nil {
				return fmt.Errorf("values[%d]: %w", i, err)
			}
			want[i] = iv
		}
		got := make([]ir.IRValue, len(m.Parameters))
		for i, p := range m.Parameters {
			got[i] = p.Value
			if got[i] == nil {
				got[i] = ir.IRNull{}
			}
		}
		return diff(want, got)
	case AssertCriteria:
		ops := make([]string, len(m.Criteria))
		for i, c := range m.Criteria {
			ops[i] = string(c.Op)
		}
		if err := checkCount(a.Count, len(ops)); err != nil {
			return err
		}
		if a.Operators != nil {
			want := make([]string, len(a.Operators))
			for i, op := range a.Operators {
				want[i] = operatorKey(op)
			}
			return diff(want, ops)
		}
	case AssertFilter:
		if m.Filter == nil {
			return fmt.Errorf("statement has no WHERE clause")
		}
		if got := m.Filter.Op.String(); got != strings.ToUpper(a.Op) {
			return fmt.Errorf("top-level group is %s, want %s", got, strings.ToUpper(a.Op))
		}
		if m.Filter.Negated != a.Negated {
			return fmt.Errorf("top-level group negated = %t, want %t", m.Filter.Negated, a.Negated)
		}
	}
	return nil
}

func checkCount(want *int, got int) error {
	if want != nil && *want != got {
		return fmt.Errorf("count is %d, want %d", got, *want)
	}
	return nil
}

var irTime = cmp.Comparer(func(a, b ir.IRTime) bool { return a.Time().Equal(b.Time()) })

func diff(want, got any) error {
	if d := cmp.Diff(want, got, irTime); d != "" {
		return fmt.Errorf("mismatch (-want +got):\n%s", d)
	}
	return nil
}
