package criteria

import (
	"fmt"

	"github.com/roach88/critq/internal/ir"
)

// Builder is the entry point for constructing criteria. It holds only the
// metadata lookup; every statement and node it returns carries its own
// state, so one Builder may be shared by goroutines building independent
// statements.
type Builder struct {
	registry EntityLookup
}

// NewBuilder returns a builder resolving entities through registry.
func NewBuilder(registry EntityLookup) *Builder {
	return &Builder{registry: registry}
}

// Registry returns the metadata lookup the builder resolves against.
func (b *Builder) Registry() EntityLookup { return b.registry }

// CreateQuery starts a select statement producing resultType.
func (b *Builder) CreateQuery(resultType ir.Type) *QuerySpec {
	return &QuerySpec{base: base{builder: b}, resultType: resultType}
}

// CreateUpdate starts an update of the named entity.
func (b *Builder) CreateUpdate(target string) *UpdateSpec {
	return &UpdateSpec{base: base{builder: b}, target: target}
}

// CreateDelete starts a delete of the named entity.
func (b *Builder) CreateDelete(target string) *DeleteSpec {
	return &DeleteSpec{base: base{builder: b}, target: target}
}

// Literal inlines v, typed from its value.
func (b *Builder) Literal(v ir.IRValue) Literal {
	if v == nil {
		v = ir.IRNull{}
	}
	return Literal{Value: v, ValueType: ir.TypeOf(v)}
}

// LiteralOf converts a Go value with ir.FromGo and inlines it.
func (b *Builder) LiteralOf(v any) (Literal, error) {
	val, err := ir.FromGo(v)
	if err != nil {
		return Literal{}, invalidOperand("", "literal: %v", err)
	}
	return b.Literal(val), nil
}

// Parameter declares a named placeholder. value may be nil.
func (b *Builder) Parameter(t ir.Type, name string, value ir.IRValue) Parameter {
	return Parameter{Name: name, ValueType: t, Value: value}
}

func validated(p Predicate) (Predicate, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Compare builds a binary comparison after validating its operands.
func (b *Builder) Compare(op ComparisonOp, left, right Expression) (Predicate, error) {
	if int(op) >= len(comparisonNames) {
		return nil, invalidOperand(pathOf(left), "unknown comparison operator %d", op)
	}
	return validated(Comparison{Op: op, Left: left, Right: right})
}

func (b *Builder) Equal(l, r Expression) (Predicate, error)    { return b.Compare(OpEquals, l, r) }
func (b *Builder) NotEqual(l, r Expression) (Predicate, error) { return b.Compare(OpNotEquals, l, r) }
func (b *Builder) EqualIgnoreCase(l, r Expression) (Predicate, error) {
	return b.Compare(OpEqualsIgnoreCase, l, r)
}
func (b *Builder) GreaterThan(l, r Expression) (Predicate, error) {
	return b.Compare(OpGreaterThan, l, r)
}
func (b *Builder) GreaterThanOrEqual(l, r Expression) (Predicate, error) {
	return b.Compare(OpGreaterThanOrEquals, l, r)
}
func (b *Builder) LessThan(l, r Expression) (Predicate, error) { return b.Compare(OpLessThan, l, r) }
func (b *Builder) LessThanOrEqual(l, r Expression) (Predicate, error) {
	return b.Compare(OpLessThanOrEquals, l, r)
}
func (b *Builder) StartsWith(l, r Expression) (Predicate, error) { return b.Compare(OpStartsWith, l, r) }
func (b *Builder) EndsWith(l, r Expression) (Predicate, error)   { return b.Compare(OpEndsWith, l, r) }
func (b *Builder) Contains(l, r Expression) (Predicate, error)   { return b.Compare(OpContains, l, r) }
func (b *Builder) Regex(l, r Expression) (Predicate, error)      { return b.Compare(OpRegex, l, r) }
func (b *Builder) ArrayContains(l, r Expression) (Predicate, error) {
	return b.Compare(OpArrayContains, l, r)
}

// Test builds a unary test.
func (b *Builder) Test(op UnaryOp, p PropertyPath) (Predicate, error) {
	if int(op) >= len(unaryNames) {
		return nil, invalidOperand(p.Path, "unknown unary operator %d", op)
	}
	return validated(Unary{Op: op, Path: p})
}

func (b *Builder) IsNull(p PropertyPath) (Predicate, error)     { return b.Test(OpIsNull, p) }
func (b *Builder) IsNotNull(p PropertyPath) (Predicate, error)  { return b.Test(OpIsNonNull, p) }
func (b *Builder) IsTrue(p PropertyPath) (Predicate, error)     { return b.Test(OpIsTrue, p) }
func (b *Builder) IsFalse(p PropertyPath) (Predicate, error)    { return b.Test(OpIsFalse, p) }
func (b *Builder) IsEmpty(p PropertyPath) (Predicate, error)    { return b.Test(OpIsEmpty, p) }
func (b *Builder) IsNotEmpty(p PropertyPath) (Predicate, error) { return b.Test(OpIsNotEmpty, p) }

// Between builds from <= p <= to.
func (b *Builder) Between(p PropertyPath, from, to Expression) (Predicate, error) {
	return validated(Between{Path: p, From: from, To: to})
}

// In builds a membership test over explicit values, kept in order.
func (b *Builder) In(p PropertyPath, values ...Expression) (Predicate, error) {
	return validated(In{Path: p, Values: append([]Expression(nil), values...)})
}

// InCollection builds a membership test over one collection-valued expression.
func (b *Builder) InCollection(p PropertyPath, collection Expression) (Predicate, error) {
	return validated(InCollection{Path: p, Collection: collection})
}

// Like builds a case-sensitive LIKE.
func (b *Builder) Like(e, pattern Expression) (Predicate, error) {
	return validated(Like{Expr: e, Pattern: pattern})
}

// ILike builds a case-insensitive LIKE.
func (b *Builder) ILike(e, pattern Expression) (Predicate, error) {
	return validated(Like{Expr: e, Pattern: pattern, CaseInsensitive: true})
}

// LikeEscape builds a LIKE with an explicit escape character.
func (b *Builder) LikeEscape(e, pattern, escape Expression, caseInsensitive bool) (Predicate, error) {
	return validated(Like{Expr: e, Pattern: pattern, Escape: escape, CaseInsensitive: caseInsensitive})
}

// And builds a conjunction in the order given. Nil predicates are skipped.
func (b *Builder) And(ps ...Predicate) Predicate { return junction(OpAnd, ps) }

// Or builds a disjunction in the order given. Nil predicates are skipped.
func (b *Builder) Or(ps ...Predicate) Predicate { return junction(OpOr, ps) }

// Not negates p. See the package-level Not.
func (b *Builder) Not(p Predicate) Predicate { return Not(p) }

func junction(op LogicalOp, ps []Predicate) Junction {
	j := Junction{Op: op}
	for _, p := range ps {
		if p != nil {
			j.Predicates = append(j.Predicates, p)
		}
	}
	return j
}

// Function applies fn to args, checking operand types and deriving the
// result type.
func (b *Builder) Function(fn FunctionName, args ...Expression) (Function, error) {
	f := Function{Name: fn, Args: append([]Expression(nil), args...)}
	path := ""
	if len(args) > 0 {
		path = pathOf(args[0])
	}
	for _, a := range args {
		if a == nil {
			return Function{}, invalidOperand(path, "%s argument is nil", fn)
		}
		if err := requireExpr(a); err != nil {
			return Function{}, err
		}
	}

	arity := func(n int) error {
		if len(args) != n {
			return invalidOperand(path, "%s takes %d argument(s), got %d", fn, n, len(args))
		}
		return nil
	}

	switch fn {
	case FuncUpper, FuncLower:
		if err := arity(1); err != nil {
			return Function{}, err
		}
		if !stringish(args[0].Type()) {
			return Function{}, invalidOperand(path, "%s requires a string, got %s", fn, args[0].Type())
		}
		f.ResultType = ir.String
	case FuncLength:
		if err := arity(1); err != nil {
			return Function{}, err
		}
		if !stringish(args[0].Type()) {
			return Function{}, invalidOperand(path, "%s requires a string, got %s", fn, args[0].Type())
		}
		f.ResultType = ir.Int
	case FuncAbs, FuncSum, FuncAvg:
		if err := arity(1); err != nil {
			return Function{}, err
		}
		t := args[0].Type()
		if !t.IsNumeric() && t != ir.Unknown {
			return Function{}, invalidOperand(path, "%s requires a number, got %s", fn, t)
		}
		f.ResultType = t
		if fn == FuncAvg {
			f.ResultType = ir.Float
		}
	case FuncMin, FuncMax:
		if err := arity(1); err != nil {
			return Function{}, err
		}
		if !args[0].Type().Comparable() {
			return Function{}, invalidOperand(path, "%s requires a comparable operand, got %s", fn, args[0].Type())
		}
		f.ResultType = args[0].Type()
	case FuncCount:
		if len(args) > 1 {
			return Function{}, invalidOperand(path, "%s takes at most one argument", fn)
		}
		f.ResultType = ir.Int
	case FuncCountDistinct:
		if err := arity(1); err != nil {
			return Function{}, err
		}
		f.ResultType = ir.Int
	default:
		return Function{}, invalidOperand(path, "unknown function %q", string(fn))
	}
	return f, nil
}

// Upper is Function(FuncUpper, e).
func (b *Builder) Upper(e Expression) (Function, error) { return b.Function(FuncUpper, e) }

// Lower is Function(FuncLower, e).
func (b *Builder) Lower(e Expression) (Function, error) { return b.Function(FuncLower, e) }

// CountAll counts rows.
func (b *Builder) CountAll() Function {
	return Function{Name: FuncCount, ResultType: ir.Int}
}

// Count counts non-null values of e.
func (b *Builder) Count(e Expression) (Function, error) { return b.Function(FuncCount, e) }

// MustPredicate panics when err is non-nil and returns p otherwise.
// Use only in tests or when the operands are known to be valid.
func MustPredicate(p Predicate, err error) Predicate {
	if err != nil {
		panic(fmt.Sprintf("criteria: %v", err))
	}
	return p
}
