package querydoc

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/querymodel"
)

var comparisonOps = map[querymodel.Operator]string{
	querymodel.OpEquals:              "$eq",
	querymodel.OpNotEquals:           "$ne",
	querymodel.OpGreaterThan:         "$gt",
	querymodel.OpGreaterThanOrEquals: "$gte",
	querymodel.OpLessThan:            "$lt",
	querymodel.OpLessThanOrEquals:    "$lte",
}

// criterion renders a WHERE criterion as a query filter. Criteria over
// plain columns and values use field operators; anything else falls back
// to $expr.
func (w *walker) criterion(c querymodel.Criterion) (bson.D, error) {
	if _, ok := c.Left.(querymodel.Relation); ok {
		return w.relationTest(c)
	}
	col, ok := c.Left.(querymodel.Column)
	if !ok || !w.valueOperands(c) {
		return w.exprCriterion(c)
	}
	f := w.field(col.Alias, col.Name)

	switch c.Op {
	case querymodel.OpIsNull:
		return eq(f, nil), nil
	case querymodel.OpIsNonNull:
		return op(f, "$ne", nil), nil
	case querymodel.OpIsTrue:
		return eq(f, true), nil
	case querymodel.OpIsFalse:
		return eq(f, false), nil
	case querymodel.OpIsEmpty:
		if col.Type.Collection {
			return op(f, "$size", 0), nil
		}
		return eq(f, ""), nil
	case querymodel.OpIsNotEmpty:
		if col.Type.Collection {
			return op(f+".0", "$exists", true), nil
		}
		return op(f, "$nin", bson.A{"", nil}), nil
	case querymodel.OpBetween:
		return w.between(f, c)
	case querymodel.OpIn:
		return w.in(f, c)
	case querymodel.OpLike:
		return w.like(f, c)
	}

	if len(c.Operands) != 1 {
		return nil, criteria.Defect("render: %s needs one operand, got %d", c.Op, len(c.Operands))
	}
	v, err := w.value(c.Operands[0])
	if err != nil {
		return nil, err
	}
	if name, ok := comparisonOps[c.Op]; ok {
		return op(f, name, v), nil
	}
	if c.Op == querymodel.OpArrayContains {
		return op(f, "$all", bson.A{v}), nil
	}

	s, ok := v.(string)
	if !ok {
		return nil, criteria.Unsupported("%s needs a string operand, got %T", c.Op, v)
	}
	q := regexp.QuoteMeta(s)
	switch c.Op {
	case querymodel.OpEqualsIgnoreCase:
		return eq(f, regex("^"+q+"$", true)), nil
	case querymodel.OpNotEqualsIgnoreCase:
		return op(f, "$not", regex("^"+q+"$", true)), nil
	case querymodel.OpRegex:
		return eq(f, regex(s, false)), nil
	case querymodel.OpContains, querymodel.OpContainsIgnoreCase:
		return eq(f, regex(q, c.Op == querymodel.OpContainsIgnoreCase)), nil
	case querymodel.OpStartsWith, querymodel.OpStartsWithIgnoreCase:
		return eq(f, regex("^"+q, c.Op == querymodel.OpStartsWithIgnoreCase)), nil
	case querymodel.OpEndsWith, querymodel.OpEndsWithIgnoreCase:
		return eq(f, regex(q+"$", c.Op == querymodel.OpEndsWithIgnoreCase)), nil
	}
	return nil, criteria.Defect("render: unhandled operator %s", c.Op)
}

// valueOperands reports whether every right-hand operand is a Param or a
// Literal.
func (w *walker) valueOperands(c querymodel.Criterion) bool {
	for _, o := range c.Operands {
		switch o.(type) {
		case querymodel.Param, querymodel.Literal:
		default:
			return false
		}
	}
	return true
}

func eq(field string, v any) bson.D {
	return bson.D{{Key: field, Value: v}}
}

func op(field, name string, v any) bson.D {
	return bson.D{{Key: field, Value: bson.D{{Key: name, Value: v}}}}
}

func regex(pattern string, ignoreCase bool) primitive.Regex {
	if ignoreCase {
		return primitive.Regex{Pattern: pattern, Options: "i"}
	}
	return primitive.Regex{Pattern: pattern}
}

func (w *walker) between(f string, c querymodel.Criterion) (bson.D, error) {
	if len(c.Operands) != 2 {
		return nil, criteria.Defect("render: BETWEEN needs two bounds, got %d", len(c.Operands))
	}
	from, err := w.value(c.Operands[0])
	if err != nil {
		return nil, err
	}
	to, err := w.value(c.Operands[1])
	if err != nil {
		return nil, err
	}
	return eq(f, bson.D{{Key: "$gte", Value: from}, {Key: "$lte", Value: to}}), nil
}

// in renders IN. A single collection-typed operand supplies the whole list.
func (w *walker) in(f string, c querymodel.Criterion) (bson.D, error) {
	if len(c.Operands) == 1 && w.m.OperandType(c.Operands[0]).Collection {
		v, err := w.value(c.Operands[0])
		if err != nil {
			return nil, err
		}
		list, ok := v.(bson.A)
		if !ok {
			return nil, criteria.Unsupported("collection operand of IN is %T, not a list", v)
		}
		return op(f, "$in", list), nil
	}
	list := make(bson.A, len(c.Operands))
	for i, o := range c.Operands {
		v, err := w.value(o)
		if err != nil {
			return nil, err
		}
		list[i] = v
	}
	return op(f, "$in", list), nil
}

func (w *walker) like(f string, c querymodel.Criterion) (bson.D, error) {
	if len(c.Operands) == 0 || len(c.Operands) > 2 {
		return nil, criteria.Defect("render: LIKE needs a pattern and an optional escape, got %d operands", len(c.Operands))
	}
	pv, err := w.value(c.Operands[0])
	if err != nil {
		return nil, err
	}
	pattern, ok := pv.(string)
	if !ok {
		return nil, criteria.Unsupported("LIKE pattern must be a string, got %T", pv)
	}
	var escape rune
	if len(c.Operands) == 2 {
		ev, err := w.value(c.Operands[1])
		if err != nil {
			return nil, err
		}
		s, ok := ev.(string)
		if !ok || len([]rune(s)) != 1 {
			return nil, criteria.Unsupported("LIKE escape must be a single character")
		}
		escape = []rune(s)[0]
	}
	// Negation is applied by the caller with $nor.
	return eq(f, regex(likePattern(pattern, escape), c.CaseInsensitive)), nil
}

// likePattern translates a LIKE pattern into an anchored regular
// expression. escape is zero when the pattern has no escape character.
func likePattern(pattern string, escape rune) string {
	var b strings.Builder
	b.WriteString("^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case escape != 0 && r == escape:
			escaped = true
		case r == '%':
			b.WriteString("(?s:.*)")
		case r == '_':
			b.WriteString("(?s:.)")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// relationTest renders an emptiness test on an association by looking the
// related documents up into a temporary field.
func (w *walker) relationTest(c querymodel.Criterion) (bson.D, error) {
	if w.m.Kind != criteria.KindQuery {
		return nil, criteria.Unsupported("%s cannot test associations as a document command", w.m.Kind)
	}
	rel := c.Left.(querymodel.Relation).Join
	if !w.looked[rel.Alias] {
		local := w.field(rel.ParentAlias, rel.ParentColumn)
		if l := rel.Link; l != nil {
			w.lookup(l.Table, local, l.OwnerColumn, rel.Alias)
		} else {
			w.lookup(rel.Table, local, rel.Column, rel.Alias)
		}
		w.relation = append(w.relation, rel.Alias)
	}

	switch c.Op {
	case querymodel.OpIsEmpty:
		return op(rel.Alias, "$size", 0), nil
	case querymodel.OpIsNotEmpty:
		return op(rel.Alias+".0", "$exists", true), nil
	}
	return nil, criteria.Defect("render: %s cannot test a relation", c.Op)
}

var exprOps = map[querymodel.Operator]string{
	querymodel.OpEquals:              "$eq",
	querymodel.OpNotEquals:           "$ne",
	querymodel.OpGreaterThan:         "$gt",
	querymodel.OpGreaterThanOrEquals: "$gte",
	querymodel.OpLessThan:            "$lt",
	querymodel.OpLessThanOrEquals:    "$lte",
	querymodel.OpEqualsIgnoreCase:    "$eq",
	querymodel.OpNotEqualsIgnoreCase: "$ne",
}

// exprCriterion renders a criterion as an aggregation expression inside
// $expr. HAVING always takes this path.
func (w *walker) exprCriterion(c querymodel.Criterion) (bson.D, error) {
	left, err := w.expr(c.Left)
	if err != nil {
		return nil, err
	}
	rights := make(bson.A, len(c.Operands))
	for i, o := range c.Operands {
		if rights[i], err = w.expr(o); err != nil {
			return nil, err
		}
	}

	var e any
	switch c.Op {
	case querymodel.OpIsNull:
		e = bson.D{{Key: "$eq", Value: bson.A{ifNull(left), nil}}}
	case querymodel.OpIsNonNull:
		e = bson.D{{Key: "$ne", Value: bson.A{ifNull(left), nil}}}
	case querymodel.OpIsTrue:
		e = bson.D{{Key: "$eq", Value: bson.A{left, true}}}
	case querymodel.OpIsFalse:
		e = bson.D{{Key: "$eq", Value: bson.A{left, false}}}
	case querymodel.OpBetween:
		if len(rights) != 2 {
			return nil, criteria.Defect("render: BETWEEN needs two bounds, got %d", len(rights))
		}
		e = bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$gte", Value: bson.A{left, rights[0]}}},
			bson.D{{Key: "$lte", Value: bson.A{left, rights[1]}}},
		}}}
	case querymodel.OpIn:
		if len(rights) == 1 && w.m.OperandType(c.Operands[0]).Collection {
			e = bson.D{{Key: "$in", Value: bson.A{left, rights[0]}}}
		} else {
			e = bson.D{{Key: "$in", Value: bson.A{left, rights}}}
		}
	default:
		name, ok := exprOps[c.Op]
		if !ok {
			return nil, criteria.Unsupported("%s cannot be rendered as an aggregation expression", c.Op)
		}
		if len(rights) != 1 {
			return nil, criteria.Defect("render: %s needs one operand, got %d", c.Op, len(rights))
		}
		l, r := left, rights[0]
		if c.Op == querymodel.OpEqualsIgnoreCase || c.Op == querymodel.OpNotEqualsIgnoreCase {
			l, r = bson.D{{Key: "$toLower", Value: l}}, bson.D{{Key: "$toLower", Value: r}}
		}
		e = bson.D{{Key: name, Value: bson.A{l, r}}}
	}
	return bson.D{{Key: "$expr", Value: e}}, nil
}

func ifNull(e any) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{e, nil}}}
}

var scalarFuncs = map[criteria.FunctionName]string{
	criteria.FuncUpper:  "$toUpper",
	criteria.FuncLower:  "$toLower",
	criteria.FuncLength: "$strLenCP",
	criteria.FuncAbs:    "$abs",
}

// expr translates an operand into an aggregation expression.
func (w *walker) expr(o querymodel.Operand) (any, error) {
	if w.post {
		ref, ok, err := w.groupRef(o)
		if err != nil {
			return nil, err
		}
		if ok {
			return ref, nil
		}
	}

	switch v := o.(type) {
	case querymodel.Column:
		if w.post {
			return nil, criteria.Unsupported("column %s is neither grouped nor aggregated", v.Path)
		}
		return "$" + w.field(v.Alias, v.Name), nil

	case querymodel.Param, querymodel.Literal:
		val, err := w.value(v)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$literal", Value: val}}, nil

	case querymodel.Func:
		if v.Name.Aggregate() {
			if !w.post {
				return nil, criteria.Unsupported("aggregate %s outside HAVING or the projection", v.Name)
			}
			name, err := w.accumulate(v)
			if err != nil {
				return nil, err
			}
			return "$" + name, nil
		}
		fn, ok := scalarFuncs[v.Name]
		if !ok || len(v.Args) != 1 {
			return nil, criteria.Defect("render: unhandled function %s/%d", v.Name, len(v.Args))
		}
		arg, err := w.expr(v.Args[0])
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: fn, Value: arg}}, nil

	case querymodel.Subquery:
		return nil, criteria.Unsupported("subqueries cannot be rendered as a document command")

	case querymodel.Relation:
		return nil, criteria.Defect("render: relation %s used as a value", v.Join.Path)
	}
	return nil, criteria.Defect("render: unhandled operand %T", o)
}

// value resolves a Param or Literal to the Go value stored in the command.
func (w *walker) value(o querymodel.Operand) (any, error) {
	var v ir.IRValue
	switch x := o.(type) {
	case querymodel.Param:
		p, ok := w.m.Param(x)
		if !ok {
			return nil, criteria.Defect("render: parameter %d of %d", x.Index, len(w.m.Parameters))
		}
		if !p.Bound() {
			return nil, criteria.Unsupported("parameter %q must be bound before rendering a document command", p.Name)
		}
		v = p.Value
	case querymodel.Literal:
		v = x.Value
	case querymodel.Subquery:
		return nil, criteria.Unsupported("subqueries cannot be rendered as a document command")
	default:
		return nil, criteria.Unsupported("%T cannot be used as a value in a document command", o)
	}
	return bsonValue(v)
}

func bsonValue(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRArray:
		out := make(bson.A, len(val))
		for i, elem := range val {
			e, err := bsonValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case ir.IRObject:
		return nil, criteria.Unsupported("object values cannot be used in a document command")
	}
	return ir.ToGo(v), nil
}
