package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critq/internal/ir"
)

func TestBuilder_OperandValidation(t *testing.T) {
	b, _, root := bookRoot(t)
	title := root.MustGet("title")
	price := root.MustGet("price")
	id := root.MustGet("id")
	available := root.MustGet("available")
	labels := root.MustGet("labels")
	published := root.MustGet("published")
	author, err := root.Association("author")
	require.NoError(t, err)

	str := b.Literal(ir.NewIRString("x"))
	num := b.Literal(ir.NewIRInt(3))
	flag := b.Literal(ir.NewIRBool(true))
	untyped := b.Parameter(ir.Unknown, "p", nil)

	tests := []struct {
		name    string
		build   func() (Predicate, error)
		wantErr bool
	}{
		{"ordering on strings", func() (Predicate, error) { return b.GreaterThan(title, str) }, false},
		{"ordering int vs float", func() (Predicate, error) { return b.LessThan(price, num) }, false},
		{"ordering on bool", func() (Predicate, error) { return b.GreaterThan(available, flag) }, true},
		{"ordering on collection", func() (Predicate, error) { return b.GreaterThan(labels, str) }, true},
		{"ordering string vs int", func() (Predicate, error) { return b.GreaterThan(title, num) }, true},
		{"ordering untyped parameter", func() (Predicate, error) { return b.GreaterThan(published, untyped) }, false},
		{"string op on int", func() (Predicate, error) { return b.StartsWith(id, num) }, true},
		{"string op on strings", func() (Predicate, error) { return b.Contains(title, str) }, false},
		{"regex on bool", func() (Predicate, error) { return b.Regex(title, flag) }, true},
		{"equals mismatched", func() (Predicate, error) { return b.Equal(title, num) }, true},
		{"equals null", func() (Predicate, error) { return b.Equal(published, b.Literal(ir.IRNull{})) }, false},
		{"equals association", func() (Predicate, error) { return b.Equal(author, untyped) }, true},
		{"array contains", func() (Predicate, error) { return b.ArrayContains(labels, str) }, false},
		{"array contains scalar left", func() (Predicate, error) { return b.ArrayContains(title, str) }, true},
		{"array contains wrong element", func() (Predicate, error) { return b.ArrayContains(labels, num) }, true},
		{"between comparable", func() (Predicate, error) { return b.Between(price, num, num) }, false},
		{"between on bool", func() (Predicate, error) { return b.Between(available, flag, flag) }, true},
		{"between mismatched bound", func() (Predicate, error) { return b.Between(price, num, str) }, true},
		{"between missing bound", func() (Predicate, error) { return b.Between(price, num, nil) }, true},
		{"like on int", func() (Predicate, error) { return b.Like(id, str) }, true},
		{"like escape", func() (Predicate, error) { return b.LikeEscape(title, str, str, false) }, false},
		{"like bad escape", func() (Predicate, error) { return b.LikeEscape(title, str, num, false) }, true},
		{"is true on string", func() (Predicate, error) { return b.IsTrue(title) }, true},
		{"is empty on int", func() (Predicate, error) { return b.IsEmpty(id) }, true},
		{"in with nil", func() (Predicate, error) { return b.In(title, str, nil) }, true},
		{"in with collection literal", func() (Predicate, error) {
			return b.In(title, b.Literal(ir.NewIRArray(ir.NewIRString("a"), ir.NewIRString("b"))))
		}, true},
		{"in collection with collection literal", func() (Predicate, error) {
			return b.InCollection(title, b.Literal(ir.NewIRArray(ir.NewIRString("a"), ir.NewIRString("b"))))
		}, false},
		{"unresolved path", func() (Predicate, error) { return b.IsNull(PropertyPath{Path: "ghost"}) }, true},
		{"nil operand", func() (Predicate, error) { return b.Equal(title, nil) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.build()
			if tt.wantErr {
				assert.True(t, IsInvalidOperand(err), "expected INVALID_OPERAND, got %v", err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

type strayPredicate struct{ Comparison }

func TestValidate_UnknownVariantIsDefect(t *testing.T) {
	err := Validate(strayPredicate{})
	assert.True(t, IsCompilerDefect(err))
}

func TestValidate_Recurses(t *testing.T) {
	b, _, root := bookRoot(t)
	bad := Comparison{Op: OpGreaterThan, Left: root.MustGet("available"), Right: b.Literal(ir.NewIRBool(true))}

	err := Validate(Negated{Predicate: Junction{Op: OpAnd, Predicates: []Predicate{bad}}})
	assert.True(t, IsInvalidOperand(err))

	assert.True(t, IsInvalidOperand(Validate(nil)))
	assert.True(t, IsInvalidOperand(Validate(Negated{})))
}
