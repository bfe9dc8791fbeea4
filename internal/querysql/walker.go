package querysql

import (
	"strings"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/querymodel"
)

// state is shared by the walker of a statement and the walkers of its
// subqueries: one placeholder sequence, one parameter list.
type state struct {
	dialect  Dialect
	params   []querymodel.Parameter
	bindings []Binding

	// qualify maps the root alias of an UPDATE or DELETE to its table
	// name; those statements carry no alias of their own.
	qualify map[string]string
}

func (st *state) param(idx int) (querymodel.Parameter, error) {
	if idx < 1 || idx > len(st.params) {
		return querymodel.Parameter{}, criteria.Defect("render: parameter %d of %d", idx, len(st.params))
	}
	return st.params[idx-1], nil
}

// bind appends a binding and returns its placeholder text.
func (st *state) bind(p querymodel.Parameter, element int) string {
	st.bindings = append(st.bindings, Binding{Parameter: p, Element: element})
	return st.dialect.placeholder(len(st.bindings))
}

type frame struct {
	group *querymodel.Group
	parts []part
}

// part is a rendered group child; compound children need parentheses
// when they sit next to siblings.
type part struct {
	text     string
	compound bool
}

// walker renders one model as a querymodel.Visitor. Clause fragments are
// collected in visitation order and assembled at the end.
type walker struct {
	st        *state
	d         Dialect
	m         *querymodel.Model
	depth     int
	stableKey string

	projection []string
	joins      []string
	sets       []string
	where      string
	groupBy    []string
	having     string
	orders     []string
	page       string

	clause querymodel.Clause
	frames []*frame
}

var _ querymodel.Visitor = (*walker)(nil)

func newWalker(st *state, m *querymodel.Model) *walker {
	return &walker{st: st, d: st.dialect, m: m}
}

func (w *walker) render() (string, error) {
	if err := querymodel.Walk(w.m, w); err != nil {
		return "", err
	}
	return w.assemble()
}

func (w *walker) VisitRoot(m *querymodel.Model) error {
	if m.Kind != criteria.KindQuery && len(m.Joins) > 0 {
		return criteria.Unsupported("%s with joins cannot be rendered as SQL; restrict through a subquery instead", m.Kind)
	}
	return nil
}

func (w *walker) VisitProjection(_ int, p querymodel.Projection) error {
	s, err := w.operand(p.Operand)
	if err != nil {
		return err
	}
	if p.Alias != "" {
		s += " AS " + w.d.quote(p.Alias)
	}
	w.projection = append(w.projection, s)
	return nil
}

func (w *walker) VisitJoin(_ int, j querymodel.Join) error {
	var kw string
	switch j.Type {
	case criteria.JoinInner:
		kw = "INNER JOIN"
	case criteria.JoinLeft:
		kw = "LEFT JOIN"
	case criteria.JoinRight:
		kw = "RIGHT JOIN"
	case criteria.JoinFull:
		if !w.d.supportsFullJoin() {
			return criteria.Unsupported("%s does not support FULL joins (%s)", w.d, j.Path)
		}
		kw = "FULL JOIN"
	default:
		return criteria.Defect("render: unhandled join type %v", j.Type)
	}

	parent := w.ref(j.ParentAlias, j.ParentColumn)
	if l := j.Link; l != nil {
		w.joins = append(w.joins,
			kw+" "+w.table(l.Table, l.Alias)+" ON "+parent+" = "+w.ref(l.Alias, l.OwnerColumn),
			kw+" "+w.table(j.Table, j.Alias)+" ON "+w.ref(l.Alias, l.TargetColumn)+" = "+w.ref(j.Alias, j.Column),
		)
		return nil
	}
	w.joins = append(w.joins, kw+" "+w.table(j.Table, j.Alias)+" ON "+parent+" = "+w.ref(j.Alias, j.Column))
	return nil
}

func (w *walker) VisitAssignment(_ int, a querymodel.Assignment) error {
	v, err := w.operand(a.Value)
	if err != nil {
		return err
	}
	w.sets = append(w.sets, w.d.quote(a.Column.Name)+" = "+v)
	return nil
}

func (w *walker) EnterClause(c querymodel.Clause) error {
	w.clause = c
	w.frames = w.frames[:0]
	return nil
}

func (w *walker) LeaveClause(querymodel.Clause) error { return nil }

func (w *walker) EnterGroup(g *querymodel.Group) error {
	w.frames = append(w.frames, &frame{group: g})
	return nil
}

func (w *walker) LeaveGroup(*querymodel.Group) error {
	f := w.frames[len(w.frames)-1]
	w.frames = w.frames[:len(w.frames)-1]

	text := combine(f)
	if len(w.frames) > 0 {
		parent := w.frames[len(w.frames)-1]
		parent.parts = append(parent.parts, part{text: text, compound: len(f.parts) > 1 && !f.group.Negated})
		return nil
	}
	if w.clause == querymodel.ClauseHaving {
		w.having = text
	} else {
		w.where = text
	}
	return nil
}

// combine joins a group's rendered children. Empty AND is true and empty
// OR is false.
func combine(f *frame) string {
	g := f.group
	texts := make([]string, len(f.parts))
	for i, p := range f.parts {
		texts[i] = p.text
		if p.compound && len(f.parts) > 1 {
			texts[i] = "(" + p.text + ")"
		}
	}
	var text string
	switch {
	case len(texts) == 0 && g.Op == criteria.OpOr:
		text = "1 = 0"
	case len(texts) == 0:
		text = "1 = 1"
	case g.Op == criteria.OpOr:
		text = strings.Join(texts, " OR ")
	default:
		text = strings.Join(texts, " AND ")
	}
	if g.Negated {
		return "NOT (" + text + ")"
	}
	return text
}

func (w *walker) VisitCriterion(_ int, c querymodel.Criterion) error {
	s, err := w.criterion(c)
	if err != nil {
		return err
	}
	if len(w.frames) == 0 {
		return criteria.Defect("render: criterion outside a group")
	}
	top := w.frames[len(w.frames)-1]
	top.parts = append(top.parts, part{text: s})
	return nil
}

func (w *walker) VisitGroupBy(_ int, op querymodel.Operand) error {
	s, err := w.operand(op)
	if err != nil {
		return err
	}
	w.groupBy = append(w.groupBy, s)
	return nil
}

func (w *walker) VisitOrdering(_ int, o querymodel.Ordering) error {
	s, err := w.operand(o.Operand)
	if err != nil {
		return err
	}
	if o.Descending {
		s += " DESC"
	} else {
		s += " ASC"
	}
	w.orders = append(w.orders, s)
	return nil
}

func (w *walker) VisitPage(limit, offset int) error {
	w.page = w.d.page(limit, offset)
	return nil
}

func (w *walker) assemble() (string, error) {
	var b strings.Builder
	m := w.m
	switch m.Kind {
	case criteria.KindQuery:
		b.WriteString("SELECT ")
		if m.Distinct {
			b.WriteString("DISTINCT ")
		}
		if len(w.projection) == 0 {
			b.WriteString("*")
		}
		b.WriteString(strings.Join(w.projection, ", "))
		b.WriteString(" FROM " + w.table(m.Table, m.Alias))
		for _, j := range w.joins {
			b.WriteString(" " + j)
		}
		w.writeWhere(&b)
		if len(w.groupBy) > 0 {
			b.WriteString(" GROUP BY " + strings.Join(w.groupBy, ", "))
		}
		if w.having != "" {
			b.WriteString(" HAVING " + w.having)
		}
		orders := w.stableOrders()
		if len(orders) > 0 {
			b.WriteString(" ORDER BY " + strings.Join(orders, ", "))
		}
		b.WriteString(w.page)

	case criteria.KindUpdate:
		if len(w.sets) == 0 {
			return "", criteria.Unsupported("update of %s has no assignments", m.Entity)
		}
		b.WriteString("UPDATE " + w.d.quote(m.Table) + " SET " + strings.Join(w.sets, ", "))
		w.writeWhere(&b)

	case criteria.KindDelete:
		b.WriteString("DELETE FROM " + w.d.quote(m.Table))
		w.writeWhere(&b)

	default:
		return "", criteria.Defect("render: unhandled statement kind %v", m.Kind)
	}
	return b.String(), nil
}

func (w *walker) writeWhere(b *strings.Builder) {
	if w.where != "" {
		b.WriteString(" WHERE " + w.where)
	}
}

// stableOrders appends the stable tiebreaker when it applies.
func (w *walker) stableOrders() []string {
	if w.depth > 0 || w.stableKey == "" || w.m.Distinct || len(w.groupBy) > 0 || w.aggregateOnly() {
		return w.orders
	}
	key := w.ref(w.m.Alias, w.stableKey)
	for _, o := range w.orders {
		if o == key+" ASC" || o == key+" DESC" {
			return w.orders
		}
	}
	return append(w.orders, key+" ASC")
}

func (w *walker) aggregateOnly() bool {
	if len(w.m.Projection) == 0 {
		return false
	}
	for _, p := range w.m.Projection {
		f, ok := p.Operand.(querymodel.Func)
		if !ok || !f.Name.Aggregate() {
			return false
		}
	}
	return true
}

// table renders "table AS alias".
func (w *walker) table(name, alias string) string {
	return w.d.quote(name) + " AS " + w.d.quote(alias)
}

// ref renders a qualified column reference.
func (w *walker) ref(alias, column string) string {
	if table, ok := w.st.qualify[alias]; ok {
		alias = table
	}
	return w.d.quote(alias) + "." + w.d.quote(column)
}
