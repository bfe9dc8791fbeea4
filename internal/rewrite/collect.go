package rewrite

import (
	"github.com/roach88/critq/internal/criteria"
)

// collectStatement calls fn for every expression reachable from stmt,
// including projections and nested subqueries.
func collectStatement(stmt criteria.Statement, fn func(criteria.Expression)) {
	switch s := stmt.(type) {
	case *criteria.QuerySpec:
		collectQuery(s, fn)
	case *criteria.UpdateSpec:
		for _, a := range s.Assignments() {
			collectExpr(a.Value, fn)
		}
		collectPredicate(s.Restriction(), fn)
	case *criteria.DeleteSpec:
		collectPredicate(s.Restriction(), fn)
	}
}

func collectQuery(q *criteria.QuerySpec, fn func(criteria.Expression)) {
	for _, s := range q.Selections() {
		collectExpr(s.Expr, fn)
	}
	collectPredicate(q.Restriction(), fn)
	for _, g := range q.Grouping() {
		collectExpr(g, fn)
	}
	collectPredicate(q.GroupRestriction(), fn)
	for _, o := range q.Orderings() {
		collectExpr(o.Expr, fn)
	}
}

func collectPredicate(p criteria.Predicate, fn func(criteria.Expression)) {
	switch v := p.(type) {
	case criteria.Comparison:
		collectExpr(v.Left, fn)
		collectExpr(v.Right, fn)
	case criteria.Unary:
		collectExpr(v.Path, fn)
	case criteria.Between:
		collectExpr(v.Path, fn)
		collectExpr(v.From, fn)
		collectExpr(v.To, fn)
	case criteria.In:
		collectExpr(v.Path, fn)
		for _, e := range v.Values {
			collectExpr(e, fn)
		}
	case criteria.InCollection:
		collectExpr(v.Path, fn)
		collectExpr(v.Collection, fn)
	case criteria.Like:
		collectExpr(v.Expr, fn)
		collectExpr(v.Pattern, fn)
		collectExpr(v.Escape, fn)
	case criteria.Junction:
		for _, c := range v.Predicates {
			collectPredicate(c, fn)
		}
	case criteria.Negated:
		collectPredicate(v.Predicate, fn)
	}
}

func collectExpr(e criteria.Expression, fn func(criteria.Expression)) {
	if e == nil {
		return
	}
	fn(e)
	switch v := e.(type) {
	case criteria.Function:
		for _, a := range v.Args {
			collectExpr(a, fn)
		}
	case criteria.Subquery:
		if v.Query != nil {
			collectQuery(v.Query, fn)
		}
	}
}
