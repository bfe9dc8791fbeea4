package criteria

import (
	"github.com/roach88/critq/internal/ir"
)

// Validate checks the operand types of p and, recursively, of its
// sub-predicates. Builder constructors call it before returning, so a
// tree assembled through the Builder is always valid; trees assembled
// by hand can be checked with it before compiling.
//
// The switch is exhaustive over the Predicate variants; an unknown
// variant is a COMPILER_DEFECT.
func Validate(p Predicate) error {
	switch v := p.(type) {
	case nil:
		return invalidOperand("", "nil predicate")
	case Comparison:
		return validateComparison(v)
	case Unary:
		return validateUnary(v)
	case Between:
		return validateBetween(v)
	case In:
		if err := requirePath(v.Path); err != nil {
			return err
		}
		for i, e := range v.Values {
			if e == nil {
				return invalidOperand(v.Path.Path, "IN value %d is nil", i)
			}
			if lit, ok := e.(Literal); ok && lit.Type().Collection && !v.Path.Type().Collection {
				return invalidOperand(v.Path.Path, "IN value %d is a collection literal (%s); use InCollection", i, lit.Type())
			}
		}
		return nil
	case InCollection:
		if err := requirePath(v.Path); err != nil {
			return err
		}
		if v.Collection == nil {
			return invalidOperand(v.Path.Path, "IN collection is nil")
		}
		return nil
	case Like:
		return validateLike(v)
	case Junction:
		for _, sub := range v.Predicates {
			if err := Validate(sub); err != nil {
				return err
			}
		}
		return nil
	case Negated:
		if v.Predicate == nil {
			return invalidOperand("", "negation of nil predicate")
		}
		return Validate(v.Predicate)
	default:
		return Defect("unhandled predicate %T", p)
	}
}

func validateComparison(c Comparison) error {
	if c.Left == nil || c.Right == nil {
		return invalidOperand(pathOf(c.Left), "%s requires two operands", c.Op)
	}
	if err := requireExpr(c.Left); err != nil {
		return err
	}
	if err := requireExpr(c.Right); err != nil {
		return err
	}
	lt, rt := c.Left.Type(), c.Right.Type()
	path := pathOf(c.Left)

	switch {
	case c.Op == OpArrayContains:
		if !lt.Collection && lt.Kind != ir.KindUnknown {
			return invalidOperand(path, "%s requires a collection on the left, got %s", c.Op, lt)
		}
		if lt.Collection && !rt.AssignableTo(lt.Elem()) {
			return invalidOperand(path, "%s element %s does not match %s", c.Op, rt, lt.Elem())
		}
	case c.Op.Ordering():
		if !lt.Comparable() || !rt.Comparable() {
			return invalidOperand(path, "%s requires comparable operands, got %s and %s", c.Op, lt, rt)
		}
		if !rt.AssignableTo(lt) {
			return invalidOperand(path, "%s operands %s and %s are not compatible", c.Op, lt, rt)
		}
	case c.Op.StringOp():
		if !stringish(lt) || !stringish(rt) {
			return invalidOperand(path, "%s requires string operands, got %s and %s", c.Op, lt, rt)
		}
	default:
		if lt.Kind == ir.KindEntity || rt.Kind == ir.KindEntity {
			return invalidOperand(path, "%s cannot compare associations; compare their properties instead", c.Op)
		}
		if !rt.AssignableTo(lt) {
			return invalidOperand(path, "%s operands %s and %s are not compatible", c.Op, lt, rt)
		}
	}
	return nil
}

func validateUnary(u Unary) error {
	if err := requirePath(u.Path); err != nil {
		return err
	}
	t := u.Path.Type()
	switch u.Op {
	case OpIsTrue, OpIsFalse:
		if t.Kind != ir.KindBool || t.Collection {
			return invalidOperand(u.Path.Path, "%s requires a bool property, got %s", u.Op, t)
		}
	case OpIsEmpty, OpIsNotEmpty:
		if !t.Collection && !t.IsString() {
			return invalidOperand(u.Path.Path, "%s requires a collection or string property, got %s", u.Op, t)
		}
	}
	return nil
}

func validateBetween(b Between) error {
	if err := requirePath(b.Path); err != nil {
		return err
	}
	if b.From == nil || b.To == nil {
		return invalidOperand(b.Path.Path, "BETWEEN requires both bounds")
	}
	pt := b.Path.Type()
	if !pt.Comparable() {
		return invalidOperand(b.Path.Path, "BETWEEN requires a comparable property, got %s", pt)
	}
	for _, bound := range []Expression{b.From, b.To} {
		if err := requireExpr(bound); err != nil {
			return err
		}
		bt := bound.Type()
		if !bt.Comparable() || !bt.AssignableTo(pt) {
			return invalidOperand(b.Path.Path, "BETWEEN bound %s is not comparable with %s", bt, pt)
		}
	}
	return nil
}

func validateLike(l Like) error {
	if l.Expr == nil || l.Pattern == nil {
		return invalidOperand(pathOf(l.Expr), "LIKE requires an expression and a pattern")
	}
	operands := []Expression{l.Expr, l.Pattern}
	if l.Escape != nil {
		operands = append(operands, l.Escape)
	}
	for _, e := range operands {
		if err := requireExpr(e); err != nil {
			return err
		}
		if !stringish(e.Type()) {
			return invalidOperand(pathOf(l.Expr), "LIKE requires string operands, got %s", e.Type())
		}
	}
	return nil
}

// stringish accepts strings and untyped scalars.
func stringish(t ir.Type) bool {
	return t.IsString() || (t.Kind == ir.KindUnknown && !t.Collection)
}

func requirePath(p PropertyPath) error {
	if !p.Resolved() {
		return invalidOperand(p.Path, "property path was not resolved by a root")
	}
	return nil
}

func requireExpr(e Expression) error {
	switch v := e.(type) {
	case PropertyPath:
		return requirePath(v)
	case AssociationPath:
		return requirePath(v.PropertyPath)
	}
	return nil
}

func pathOf(e Expression) string {
	switch v := e.(type) {
	case PropertyPath:
		return v.Path
	case AssociationPath:
		return v.Path
	case Function:
		if len(v.Args) > 0 {
			return pathOf(v.Args[0])
		}
	}
	return ""
}
