package querysql

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/querymodel"
)

var comparisonSQL = map[querymodel.Operator]string{
	querymodel.OpEquals:              "=",
	querymodel.OpNotEquals:           "<>",
	querymodel.OpGreaterThan:         ">",
	querymodel.OpGreaterThanOrEquals: ">=",
	querymodel.OpLessThan:            "<",
	querymodel.OpLessThanOrEquals:    "<=",
}

func (w *walker) criterion(c querymodel.Criterion) (string, error) {
	if _, ok := c.Left.(querymodel.Relation); ok {
		return w.relation(c)
	}
	left, err := w.operand(c.Left)
	if err != nil {
		return "", err
	}

	var s string
	switch c.Op {
	case querymodel.OpIsNull:
		s = left + " IS NULL"
	case querymodel.OpIsNonNull:
		s = left + " IS NOT NULL"
	case querymodel.OpIsTrue:
		s = left + " IS TRUE"
	case querymodel.OpIsFalse:
		s = left + " IS FALSE"
	case querymodel.OpIsEmpty, querymodel.OpIsNotEmpty:
		s = w.emptiness(c, left)
	case querymodel.OpBetween:
		s, err = w.between(c, left)
	case querymodel.OpIn:
		s, err = w.in(c, left)
	case querymodel.OpLike:
		return w.like(c, left)
	default:
		s, err = w.comparison(c, left)
	}
	if err != nil {
		return "", err
	}
	if c.Negated {
		return "NOT (" + s + ")", nil
	}
	return s, nil
}

func (w *walker) comparison(c querymodel.Criterion, left string) (string, error) {
	if len(c.Operands) != 1 {
		return "", criteria.Defect("render: %s needs one operand, got %d", c.Op, len(c.Operands))
	}
	if lit, ok := c.Operands[0].(querymodel.Literal); ok && isNull(lit.Value) {
		switch c.Op {
		case querymodel.OpEquals:
			return left + " IS NULL", nil
		case querymodel.OpNotEquals:
			return left + " IS NOT NULL", nil
		}
	}
	right, err := w.operand(c.Operands[0])
	if err != nil {
		return "", err
	}

	if op, ok := comparisonSQL[c.Op]; ok {
		return left + " " + op + " " + right, nil
	}
	wild := w.literalString("%")
	switch c.Op {
	case querymodel.OpEqualsIgnoreCase:
		return "LOWER(" + left + ") = LOWER(" + right + ")", nil
	case querymodel.OpNotEqualsIgnoreCase:
		return "LOWER(" + left + ") <> LOWER(" + right + ")", nil
	case querymodel.OpRegex:
		return w.d.regex(left, right, false), nil
	case querymodel.OpContains:
		return left + " LIKE " + w.d.concat(wild, right, wild), nil
	case querymodel.OpContainsIgnoreCase:
		return w.d.ilike(left, w.d.concat(wild, right, wild), false), nil
	case querymodel.OpStartsWith:
		return left + " LIKE " + w.d.concat(right, wild), nil
	case querymodel.OpStartsWithIgnoreCase:
		return w.d.ilike(left, w.d.concat(right, wild), false), nil
	case querymodel.OpEndsWith:
		return left + " LIKE " + w.d.concat(wild, right), nil
	case querymodel.OpEndsWithIgnoreCase:
		return w.d.ilike(left, w.d.concat(wild, right), false), nil
	case querymodel.OpArrayContains:
		return w.d.arrayContains(left, right), nil
	}
	return "", criteria.Defect("render: unhandled operator %s", c.Op)
}

func (w *walker) emptiness(c querymodel.Criterion, left string) string {
	t := w.m.OperandType(c.Left)
	empty := c.Op == querymodel.OpIsEmpty
	switch {
	case t.Collection && empty:
		return w.d.cardinality(left) + " = 0"
	case t.Collection:
		return w.d.cardinality(left) + " > 0"
	case empty:
		return left + " = ''"
	default:
		return left + " <> ''"
	}
}

func (w *walker) between(c querymodel.Criterion, left string) (string, error) {
	if len(c.Operands) != 2 {
		return "", criteria.Defect("render: BETWEEN needs two bounds, got %d", len(c.Operands))
	}
	from, err := w.operand(c.Operands[0])
	if err != nil {
		return "", err
	}
	to, err := w.operand(c.Operands[1])
	if err != nil {
		return "", err
	}
	return left + " BETWEEN " + from + " AND " + to, nil
}

// in renders IN. A single collection operand is bound as an array where
// the dialect allows it and expanded to one placeholder per element
// otherwise; an empty list is always false.
func (w *walker) in(c querymodel.Criterion, left string) (string, error) {
	if len(c.Operands) == 1 {
		switch v := c.Operands[0].(type) {
		case querymodel.Subquery:
			sub, err := w.operand(v)
			if err != nil {
				return "", err
			}
			return left + " IN " + sub, nil

		case querymodel.Param:
			p, err := w.st.param(v.Index)
			if err != nil {
				return "", err
			}
			if p.Type.Collection {
				return w.inCollectionParam(p, left)
			}

		case querymodel.Literal:
			if arr, ok := v.Value.(ir.IRArray); ok {
				if len(arr) == 0 {
					return "1 = 0", nil
				}
				items := make([]string, len(arr))
				for i, elem := range arr {
					s, err := w.literal(elem)
					if err != nil {
						return "", err
					}
					items[i] = s
				}
				return left + " IN (" + strings.Join(items, ", ") + ")", nil
			}

		case querymodel.Column:
			if v.Type.Collection {
				col, err := w.operand(v)
				if err != nil {
					return "", err
				}
				return w.d.arrayContains(col, left), nil
			}
		}
	}
	if len(c.Operands) == 0 {
		return "1 = 0", nil
	}

	items := make([]string, len(c.Operands))
	for i, op := range c.Operands {
		s, err := w.operand(op)
		if err != nil {
			return "", err
		}
		items[i] = s
	}
	return left + " IN (" + strings.Join(items, ", ") + ")", nil
}

func (w *walker) inCollectionParam(p querymodel.Parameter, left string) (string, error) {
	if w.d.arrayBinding() {
		return left + " = ANY(" + w.st.bind(p, -1) + ")", nil
	}
	arr, ok := p.Value.(ir.IRArray)
	if !ok {
		return "", criteria.Unsupported("collection parameter %q must be bound before rendering for %s", p.Name, w.d)
	}
	if len(arr) == 0 {
		return "1 = 0", nil
	}
	marks := make([]string, len(arr))
	for i := range arr {
		marks[i] = w.st.bind(p, i)
	}
	return left + " IN (" + strings.Join(marks, ", ") + ")", nil
}

func (w *walker) like(c querymodel.Criterion, left string) (string, error) {
	if len(c.Operands) == 0 || len(c.Operands) > 2 {
		return "", criteria.Defect("render: LIKE needs a pattern and an optional escape, got %d operands", len(c.Operands))
	}
	pattern, err := w.operand(c.Operands[0])
	if err != nil {
		return "", err
	}
	var s string
	switch {
	case c.CaseInsensitive:
		s = w.d.ilike(left, pattern, c.Negated)
	case c.Negated:
		s = left + " NOT LIKE " + pattern
	default:
		s = left + " LIKE " + pattern
	}
	if len(c.Operands) == 2 {
		esc, err := w.operand(c.Operands[1])
		if err != nil {
			return "", err
		}
		s += " ESCAPE " + esc
	}
	return s, nil
}

// relation renders an emptiness test on an association as a correlated
// EXISTS sub-select.
func (w *walker) relation(c querymodel.Criterion) (string, error) {
	rel := c.Left.(querymodel.Relation).Join
	parent := w.ref(rel.ParentAlias, rel.ParentColumn)

	var sub string
	if l := rel.Link; l != nil {
		sub = "SELECT 1 FROM " + w.table(l.Table, l.Alias) + " WHERE " + w.ref(l.Alias, l.OwnerColumn) + " = " + parent
	} else {
		sub = "SELECT 1 FROM " + w.table(rel.Table, rel.Alias) + " WHERE " + w.ref(rel.Alias, rel.Column) + " = " + parent
	}

	switch c.Op {
	case querymodel.OpIsEmpty:
		return "NOT EXISTS (" + sub + ")", nil
	case querymodel.OpIsNotEmpty:
		return "EXISTS (" + sub + ")", nil
	}
	return "", criteria.Defect("render: %s cannot test a relation", c.Op)
}

func (w *walker) operand(op querymodel.Operand) (string, error) {
	switch v := op.(type) {
	case querymodel.Column:
		return w.ref(v.Alias, v.Name), nil

	case querymodel.Param:
		p, err := w.st.param(v.Index)
		if err != nil {
			return "", err
		}
		if p.Type.Collection && !w.d.arrayBinding() {
			return "", criteria.Unsupported("%s cannot bind collection parameter %q outside IN", w.d, p.Name)
		}
		return w.st.bind(p, -1), nil

	case querymodel.Literal:
		return w.literal(v.Value)

	case querymodel.Func:
		return w.function(v)

	case querymodel.Subquery:
		if v.Model == nil {
			return "", criteria.Defect("render: subquery without model")
		}
		sub := newWalker(w.st, v.Model)
		sub.depth = w.depth + 1
		s, err := sub.render()
		if err != nil {
			return "", err
		}
		return "(" + s + ")", nil

	case querymodel.Relation:
		return "", criteria.Defect("render: relation %s used as a value", v.Join.Path)

	default:
		return "", criteria.Defect("render: unhandled operand %T", op)
	}
}

func (w *walker) function(f querymodel.Func) (string, error) {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		s, err := w.operand(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	switch {
	case f.Name == criteria.FuncCount && len(args) == 0:
		return "COUNT(*)", nil
	case f.Name == criteria.FuncCountDistinct:
		return "COUNT(DISTINCT " + strings.Join(args, ", ") + ")", nil
	}
	return w.d.function(string(f.Name)) + "(" + strings.Join(args, ", ") + ")", nil
}

// literal inlines a scalar value.
func (w *walker) literal(v ir.IRValue) (string, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return "NULL", nil
	case ir.IRString:
		return w.literalString(string(val)), nil
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10), nil
	case ir.IRFloat:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), nil
	case ir.IRBool:
		return w.d.boolean(bool(val)), nil
	case ir.IRTime:
		return w.literalString(val.Time().UTC().Format(time.RFC3339Nano)), nil
	}
	return "", criteria.Unsupported("%T literals cannot be inlined into SQL; bind them as parameters", v)
}

func (w *walker) literalString(s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	if w.d == MySQL {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + s + "'"
}

func isNull(v ir.IRValue) bool {
	_, null := v.(ir.IRNull)
	return v == nil || null
}
