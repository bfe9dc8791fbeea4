// Package rewrite replaces inlined literals in criteria with bound parameters.
//
// Rewriting runs when a statement is prepared for execution. It produces a
// new tree of exactly the same shape: only Literal operands change, each
// becoming a Parameter that carries the literal's value and type. NULL
// literals stay inline. An IN
// predicate whose values are all literals collapses into a single
// collection-typed parameter.
package rewrite

import (
	"strconv"

	"github.com/rs/zerolog"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
)

// Option configures a rewrite.
type Option func(*rewriter)

// WithLogger logs rewrite counts at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(r *rewriter) { r.log = l }
}

// WithPrefix sets the generated parameter name prefix (default "p").
func WithPrefix(prefix string) Option {
	return func(r *rewriter) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

type rewriter struct {
	log      zerolog.Logger
	prefix   string
	taken    map[string]bool
	next     int
	replaced int
}

func newRewriter(opts []Option) *rewriter {
	r := &rewriter{log: zerolog.Nop(), prefix: "p", taken: map[string]bool{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply rewrites every predicate operand and update assignment of stmt.
// Generated names (p1, p2, ...) follow depth-first, left-to-right order
// and skip names already used by parameters in stmt.
//
// The input statement is not modified. Projection, grouping and ordering
// expressions keep their literals.
func Apply(stmt criteria.Statement, opts ...Option) (criteria.Statement, error) {
	r := newRewriter(opts)
	collectStatement(stmt, r.reserve)

	var (
		out criteria.Statement
		err error
	)
	switch s := stmt.(type) {
	case *criteria.QuerySpec:
		out, err = r.query(s)
	case *criteria.UpdateSpec:
		out, err = r.update(s)
	case *criteria.DeleteSpec:
		out, err = r.delete(s)
	default:
		return nil, criteria.Defect("rewrite: unhandled statement %T", stmt)
	}
	if err != nil {
		return nil, err
	}
	r.log.Debug().Int("literals", r.replaced).Str("kind", stmt.Kind().String()).Msg("rewrote literals to parameters")
	return out, nil
}

// Predicate rewrites a single predicate tree.
func Predicate(p criteria.Predicate, opts ...Option) (criteria.Predicate, error) {
	r := newRewriter(opts)
	collectPredicate(p, r.reserve)
	return r.predicate(p)
}

func (r *rewriter) reserve(e criteria.Expression) {
	if p, ok := e.(criteria.Parameter); ok {
		r.taken[p.Name] = true
	}
}

func (r *rewriter) fresh() string {
	for {
		r.next++
		name := r.prefix + strconv.Itoa(r.next)
		if !r.taken[name] {
			r.taken[name] = true
			return name
		}
	}
}

func (r *rewriter) query(q *criteria.QuerySpec) (*criteria.QuerySpec, error) {
	where, err := r.predicate(q.Restriction())
	if err != nil {
		return nil, err
	}
	having, err := r.predicate(q.GroupRestriction())
	if err != nil {
		return nil, err
	}
	return q.Clone().Where(where).Having(having), nil
}

func (r *rewriter) update(u *criteria.UpdateSpec) (*criteria.UpdateSpec, error) {
	assignments := u.Assignments()
	for i, a := range assignments {
		v, err := r.expr(a.Value)
		if err != nil {
			return nil, err
		}
		assignments[i].Value = v
	}
	where, err := r.predicate(u.Restriction())
	if err != nil {
		return nil, err
	}
	return u.WithAssignments(assignments).Where(where), nil
}

func (r *rewriter) delete(d *criteria.DeleteSpec) (*criteria.DeleteSpec, error) {
	where, err := r.predicate(d.Restriction())
	if err != nil {
		return nil, err
	}
	return d.Clone().Where(where), nil
}

func (r *rewriter) predicate(p criteria.Predicate) (criteria.Predicate, error) {
	var err error
	switch v := p.(type) {
	case nil:
		return nil, nil
	case criteria.Comparison:
		if v.Left, err = r.expr(v.Left); err != nil {
			return nil, err
		}
		if v.Right, err = r.expr(v.Right); err != nil {
			return nil, err
		}
		return v, nil
	case criteria.Unary:
		return v, nil
	case criteria.Between:
		if v.From, err = r.expr(v.From); err != nil {
			return nil, err
		}
		if v.To, err = r.expr(v.To); err != nil {
			return nil, err
		}
		return v, nil
	case criteria.In:
		return r.in(v)
	case criteria.InCollection:
		if v.Collection, err = r.expr(v.Collection); err != nil {
			return nil, err
		}
		return v, nil
	case criteria.Like:
		if v.Expr, err = r.expr(v.Expr); err != nil {
			return nil, err
		}
		if v.Pattern, err = r.expr(v.Pattern); err != nil {
			return nil, err
		}
		if v.Escape, err = r.expr(v.Escape); err != nil {
			return nil, err
		}
		return v, nil
	case criteria.Junction:
		children := make([]criteria.Predicate, len(v.Predicates))
		for i, c := range v.Predicates {
			if children[i], err = r.predicate(c); err != nil {
				return nil, err
			}
		}
		v.Predicates = children
		return v, nil
	case criteria.Negated:
		if v.Predicate, err = r.predicate(v.Predicate); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, criteria.Defect("rewrite: unhandled predicate %T", p)
	}
}

// in collapses an all-literal value list into one collection parameter.
// Mixed lists have each literal replaced in place.
func (r *rewriter) in(v criteria.In) (criteria.Predicate, error) {
	if err := criteria.Validate(v); err != nil {
		return nil, err
	}
	allLiterals := len(v.Values) > 0
	for _, e := range v.Values {
		if _, ok := e.(criteria.Literal); !ok {
			allLiterals = false
			break
		}
	}

	if allLiterals {
		values := make(ir.IRArray, len(v.Values))
		for i, e := range v.Values {
			values[i] = e.(criteria.Literal).Value
		}
		r.replaced += len(values)
		v.Values = []criteria.Expression{criteria.Parameter{
			Name:      r.fresh(),
			ValueType: ir.CollectionOf(v.Path.Type()),
			Value:     values,
		}}
		return v, nil
	}

	values := make([]criteria.Expression, len(v.Values))
	for i, e := range v.Values {
		var err error
		if values[i], err = r.expr(e); err != nil {
			return nil, err
		}
	}
	v.Values = values
	return v, nil
}

func (r *rewriter) expr(e criteria.Expression) (criteria.Expression, error) {
	switch v := e.(type) {
	case nil:
		return nil, nil
	case criteria.Literal:
		// NULL stays inline so renderers can emit IS NULL.
		if _, null := v.Value.(ir.IRNull); null {
			return v, nil
		}
		r.replaced++
		return criteria.Parameter{Name: r.fresh(), ValueType: v.ValueType, Value: v.Value}, nil
	case criteria.Parameter, criteria.PropertyPath, criteria.AssociationPath:
		return v, nil
	case criteria.Function:
		args := make([]criteria.Expression, len(v.Args))
		for i, a := range v.Args {
			var err error
			if args[i], err = r.expr(a); err != nil {
				return nil, err
			}
		}
		v.Args = args
		return v, nil
	case criteria.Subquery:
		if v.Query == nil {
			return nil, criteria.Defect("rewrite: subquery without query")
		}
		q, err := r.query(v.Query)
		if err != nil {
			return nil, err
		}
		return criteria.Subquery{Query: q}, nil
	default:
		return nil, criteria.Defect("rewrite: unrecognized expression %T in operand position", e)
	}
}
