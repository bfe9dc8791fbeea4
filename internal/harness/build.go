package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
)

// Build turns a scenario statement into a criteria statement using b.
// Literal values are inlined; rewriting them to parameters is left to the
// caller.
func Build(b *criteria.Builder, s *Statement) (criteria.Statement, error) {
	bld := &builder{b: b}
	switch {
	case s.Query != "":
		return bld.query(s)
	case s.Update != "":
		return bld.update(s)
	case s.Delete != "":
		return bld.delete(s)
	}
	return nil, fmt.Errorf("statement needs one of query, update or delete")
}

type builder struct {
	b    *criteria.Builder
	root *criteria.Root
}

func (bld *builder) query(s *Statement) (criteria.Statement, error) {
	q := bld.b.CreateQuery(ir.EntityType(s.Query))
	root, err := q.From(s.Query)
	if err != nil {
		return nil, err
	}
	bld.root = root

	if err := bld.joins(s.Joins); err != nil {
		return nil, err
	}
	for _, sel := range s.Select {
		e, err := bld.expr(sel)
		if err != nil {
			return nil, err
		}
		if sel.Alias != "" {
			q.SelectAs(sel.Alias, e)
		} else {
			q.Select(e)
		}
	}
	if s.Distinct {
		q.Distinct()
	}

	where, err := bld.predicates(s.Where)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		q.Where(where...)
	}

	for _, g := range s.GroupBy {
		e, err := bld.expr(g)
		if err != nil {
			return nil, err
		}
		q.GroupBy(e)
	}
	having, err := bld.predicates(s.Having)
	if err != nil {
		return nil, err
	}
	if len(having) > 0 {
		q.Having(having...)
	}

	for _, o := range s.OrderBy {
		e, err := bld.expr(o.expr())
		if err != nil {
			return nil, err
		}
		if o.Desc {
			q.OrderBy(criteria.Desc(e))
		} else {
			q.OrderBy(criteria.Asc(e))
		}
	}
	if s.Limit > 0 {
		q.Limit(s.Limit)
	}
	if s.Offset > 0 {
		q.Offset(s.Offset)
	}
	return q, nil
}

func (bld *builder) update(s *Statement) (criteria.Statement, error) {
	u := bld.b.CreateUpdate(s.Update)
	root, err := u.From(s.Update)
	if err != nil {
		return nil, err
	}
	bld.root = root

	for _, set := range s.Set {
		path, err := root.Get(set.Path)
		if err != nil {
			return nil, err
		}
		var value criteria.Expression
		if set.Param != nil {
			value, err = bld.param(set.Param, path.Type())
		} else {
			value, err = bld.b.LiteralOf(set.Value)
		}
		if err != nil {
			return nil, err
		}
		if err := u.Set(path, value); err != nil {
			return nil, err
		}
	}
	where, err := bld.predicates(s.Where)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		u.Where(where...)
	}
	return u, nil
}

func (bld *builder) delete(s *Statement) (criteria.Statement, error) {
	d := bld.b.CreateDelete(s.Delete)
	root, err := d.From(s.Delete)
	if err != nil {
		return nil, err
	}
	bld.root = root

	where, err := bld.predicates(s.Where)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		d.Where(where...)
	}
	return d, nil
}

func (bld *builder) joins(steps []JoinStep) error {
	for _, j := range steps {
		jt, ok := criteria.ParseJoinType(j.Type)
		if !ok {
			return fmt.Errorf("join %s: unknown join type %q", j.Path, j.Type)
		}
		if _, err := bld.root.Join(j.Path, jt, j.Alias); err != nil {
			return err
		}
	}
	return nil
}

func (bld *builder) predicates(ps []Predicate) ([]criteria.Predicate, error) {
	out := make([]criteria.Predicate, 0, len(ps))
	for _, p := range ps {
		built, err := bld.predicate(p)
		if err != nil {
			return nil, err
		}
		out = append(out, built)
	}
	return out, nil
}

func (bld *builder) predicate(p Predicate) (criteria.Predicate, error) {
	b := bld.b
	switch p.Op {
	case opAnd, opOr:
		children, err := bld.predicates(p.Children)
		if err != nil {
			return nil, err
		}
		if p.Op == opAnd {
			return b.And(children...), nil
		}
		return b.Or(children...), nil
	case opNot:
		child, err := bld.predicate(p.Children[0])
		if err != nil {
			return nil, err
		}
		return b.Not(child), nil
	}

	o := p.Operands
	if op, ok := criteria.ParseUnaryOp(p.Op); ok {
		path, err := bld.testPath(o.Path)
		if err != nil {
			return nil, err
		}
		return b.Test(op, path)
	}

	switch p.Op {
	case opBetween:
		path, err := bld.root.Get(o.Path)
		if err != nil {
			return nil, err
		}
		from, err := b.LiteralOf(o.From)
		if err != nil {
			return nil, err
		}
		to, err := b.LiteralOf(o.To)
		if err != nil {
			return nil, err
		}
		return b.Between(path, from, to)
	case opIn:
		path, err := bld.root.Get(o.Path)
		if err != nil {
			return nil, err
		}
		if o.Param != nil {
			param, err := bld.param(o.Param, ir.CollectionOf(path.Type()))
			if err != nil {
				return nil, err
			}
			return b.InCollection(path, param)
		}
		values := make([]criteria.Expression, len(o.Values))
		for i, v := range o.Values {
			lit, err := b.LiteralOf(v)
			if err != nil {
				return nil, err
			}
			values[i] = lit
		}
		return b.In(path, values...)
	case opLike, opILike:
		left, err := bld.expr(o.left())
		if err != nil {
			return nil, err
		}
		pattern, err := bld.right(o, ir.String)
		if err != nil {
			return nil, err
		}
		ignoreCase := o.IgnoreCase || p.Op == opILike
		if o.Escape != "" {
			return b.LikeEscape(left, pattern, b.Literal(ir.NewIRString(o.Escape)), ignoreCase)
		}
		if ignoreCase {
			return b.ILike(left, pattern)
		}
		return b.Like(left, pattern)
	}

	op, ok := criteria.ParseComparisonOp(p.Op)
	if !ok {
		return nil, fmt.Errorf("unknown predicate operator %q", p.Op)
	}
	left, err := bld.expr(o.left())
	if err != nil {
		return nil, err
	}
	rightType := left.Type()
	if op == criteria.OpArrayContains {
		rightType = rightType.Elem()
	}
	right, err := bld.right(o, rightType)
	if err != nil {
		return nil, err
	}
	return b.Compare(op, left, right)
}

// testPath resolves the operand of a unary test. Paths ending at an
// association are resolved without joining it, so emptiness tests on
// collections compile to relation tests.
func (bld *builder) testPath(path string) (criteria.PropertyPath, error) {
	res, err := criteria.ResolvePath(bld.b.Registry(), bld.root.Entity(), path)
	if err != nil {
		return criteria.PropertyPath{}, err
	}
	if res.IsAssociation() {
		a, err := bld.root.Association(path)
		return a.PropertyPath, err
	}
	return bld.root.Get(path)
}

// right builds the right-hand operand of a comparison or LIKE.
func (bld *builder) right(o Operands, t ir.Type) (criteria.Expression, error) {
	switch {
	case o.Ref != "":
		return bld.root.Get(o.Ref)
	case o.Param != nil:
		return bld.param(o.Param, t)
	case o.Pattern != "":
		return bld.b.Literal(ir.NewIRString(o.Pattern)), nil
	}
	return bld.b.LiteralOf(o.Value)
}

func (bld *builder) param(p *Param, fallback ir.Type) (criteria.Parameter, error) {
	t := fallback
	if p.Type != "" {
		var err error
		if t, err = ir.ParseType(p.Type); err != nil {
			return criteria.Parameter{}, fmt.Errorf("param %s: %w", p.Name, err)
		}
	}
	var value ir.IRValue
	if p.Value != nil {
		v, err := ir.FromGo(p.Value)
		if err != nil {
			return criteria.Parameter{}, fmt.Errorf("param %s: %w", p.Name, err)
		}
		value = v
	}
	return bld.b.Parameter(t, p.Name, value), nil
}

// expr resolves a path, applying the named function when set.
func (bld *builder) expr(e Expr) (criteria.Expression, error) {
	if e.Func == "" {
		return bld.root.Get(e.Path)
	}
	fn := criteria.FunctionName(strings.ToUpper(e.Func))
	if e.Path == "" {
		if fn == criteria.FuncCount {
			return bld.b.CountAll(), nil
		}
		return nil, fmt.Errorf("function %s needs a path", fn)
	}
	arg, err := bld.root.Get(e.Path)
	if err != nil {
		return nil, err
	}
	return bld.b.Function(fn, arg)
}
