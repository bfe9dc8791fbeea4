package harness

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/metadata"
	"github.com/roach88/critq/internal/querymodel"
	"github.com/roach88/critq/internal/testutil"
)

func TestScenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	h := New(WithCheck(true))
	for _, file := range files {
		t.Run(file, func(t *testing.T) {
			s, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := h.Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

// groupedScenario needs a registry; it names no schema.
func groupedScenario() *Scenario {
	return &Scenario{
		Name:           "grouped",
		Description:    "disjunction inside a conjunction",
		InlineLiterals: true,
		Statement: Statement{
			Query:  "Book",
			Select: []Expr{{Path: "id"}},
			Where: []Predicate{
				{Op: opOr, Children: []Predicate{
					{Op: "EQUALS", Operands: Operands{Path: "isbn", Value: "1"}},
					{Op: "EQUALS", Operands: Operands{Path: "isbn", Value: "2"}},
				}},
				{Op: "IS_NULL", Operands: Operands{Path: "published"}},
			},
		},
		Expect: map[string]DialectExpect{
			"sqlite": {Text: "SELECT book.id FROM books AS book WHERE (book.isbn = '1' OR book.isbn = '2') AND book.published IS NULL"},
		},
	}
}

func TestRun_WithRegistry(t *testing.T) {
	result, err := Run(groupedScenario(), WithRegistry(testutil.Library(t)))
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	require.NotNil(t, result.Model)
	assert.Empty(t, result.Model.Parameters)
	assert.Contains(t, result.Outputs, "sqlite")
	assert.NotContains(t, result.Outputs, "postgres")
}

func TestRun_NoRegistry(t *testing.T) {
	_, err := Run(groupedScenario())
	assert.ErrorContains(t, err, "no schema and no registry")
}

func TestRun_RecordsMismatches(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{
			name: "text",
			mutate: func(s *Scenario) {
				s.Expect["sqlite"] = DialectExpect{Text: "SELECT 1"}
			},
			wantErr: "sqlite: text mismatch",
		},
		{
			name: "params",
			mutate: func(s *Scenario) {
				s.Expect["sqlite"] = DialectExpect{Text: s.Expect["sqlite"].Text, Params: []string{"p1"}}
			},
			wantErr: "sqlite: params []",
		},
		{
			name: "expected render error",
			mutate: func(s *Scenario) {
				s.Expect["sqlite"] = DialectExpect{Error: "UNSUPPORTED"}
			},
			wantErr: "sqlite: expected error UNSUPPORTED",
		},
		{
			name: "expected compile error",
			mutate: func(s *Scenario) {
				s.Error = "UNKNOWN_PROPERTY"
			},
			wantErr: "expected error UNKNOWN_PROPERTY, statement compiled",
		},
		{
			name: "assertion",
			mutate: func(s *Scenario) {
				count := 1
				s.Assertions = []Assertion{{Type: AssertJoins, Count: &count}}
			},
			wantErr: "assertions[0] (joins): count is 0, want 1",
		},
		{
			name: "unknown property",
			mutate: func(s *Scenario) {
				s.Statement.Select = []Expr{{Path: "subtitle"}}
			},
			wantErr: "subtitle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := groupedScenario()
			tt.mutate(s)

			result, err := Run(s, WithRegistry(testutil.Library(t)))
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, strings.Join(result.Errors, "\n"), tt.wantErr)
		})
	}
}

func TestRun_WithDialects(t *testing.T) {
	h := New(WithRegistry(testutil.Library(t)), WithDialects("postgres", "mongo"))
	result, err := h.Run(groupedScenario())
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	assert.Len(t, result.Outputs, 3)
	assert.Equal(t,
		"SELECT book.id FROM books AS book WHERE (book.isbn = '1' OR book.isbn = '2') AND book.published IS NULL",
		result.Outputs["postgres"].Text)
}

func TestEvaluateAssertions(t *testing.T) {
	m := &querymodel.Model{
		Joins:    []querymodel.Join{{Alias: "book_author"}},
		Criteria: []querymodel.Criterion{{Op: "EQUALS"}, {Op: "IS_NULL"}},
		Filter:   &querymodel.Group{Op: criteria.OpAnd, Negated: true},
	}
	two := 2

	tests := []struct {
		name       string
		assertions []Assertion
		wantErrs   int
	}{
		{"joins match", []Assertion{{Type: AssertJoins, Aliases: []string{"book_author"}}}, 0},
		{"joins differ", []Assertion{{Type: AssertJoins, Aliases: []string{"book_tags"}}}, 1},
		{"criteria by key", []Assertion{{Type: AssertCriteria, Operators: []string{"equals", "isNull"}}}, 0},
		{"criteria count", []Assertion{{Type: AssertCriteria, Count: &two}}, 0},
		{"parameters count", []Assertion{{Type: AssertParameters, Count: &two}}, 1},
		{"filter", []Assertion{{Type: AssertFilter, Op: "and", Negated: true}}, 0},
		{"filter not negated", []Assertion{{Type: AssertFilter, Op: "and"}}, 1},
		{"filter op", []Assertion{{Type: AssertFilter, Op: "or", Negated: true}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, EvaluateAssertions(m, tt.assertions), tt.wantErrs)
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&criteria.Error{Code: criteria.ErrCodeUnknownProperty, Message: "x"}, "UNKNOWN_PROPERTY"},
		{fmt.Errorf("wrapped: %w", &criteria.Error{Code: criteria.ErrCodeUnsupported, Message: "x"}), "UNSUPPORTED"},
		{&metadata.Error{Code: metadata.ErrCodeDuplicateRole, Message: "x"}, "DUPLICATE_ROLE"},
		{errors.New("plain"), "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
