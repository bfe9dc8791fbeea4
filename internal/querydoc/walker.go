package querydoc

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/querymodel"
)

type frame struct {
	group    *querymodel.Group
	children bson.A
}

// accumulator is one $group output. Post, when set, is applied to the
// accumulated value in a $set stage right after $group.
type accumulator struct {
	name string
	key  string
	expr bson.D
	post any
}

type walker struct {
	querymodel.BaseVisitor

	m *querymodel.Model

	lookups  []bson.D
	looked   map[string]bool
	match    bson.D
	having   bson.D
	sets     bson.D
	groupBy  []string
	keys     bson.D
	accs     []accumulator
	page     []bson.D
	clause   querymodel.Clause
	frames   []*frame
	relation []string

	// grouped is set when the pipeline needs a $group stage; post is set
	// while translating expressions that run after it.
	grouped bool
	post    bool
}

var _ querymodel.Visitor = (*walker)(nil)

func newWalker(m *querymodel.Model) *walker {
	return &walker{m: m, looked: map[string]bool{}}
}

func (w *walker) VisitRoot(m *querymodel.Model) error {
	if m.Kind != criteria.KindQuery && len(m.Joins) > 0 {
		return criteria.Unsupported("%s with joins cannot be rendered as a document command", m.Kind)
	}
	for _, p := range m.Projection {
		if f, ok := p.Operand.(querymodel.Func); ok && f.Name.Aggregate() {
			w.grouped = true
		}
	}
	if m.Having != nil {
		w.grouped = true
	}
	return nil
}

func (w *walker) VisitJoin(_ int, j querymodel.Join) error {
	var preserve bool
	switch j.Type {
	case criteria.JoinInner:
	case criteria.JoinLeft:
		preserve = true
	default:
		return criteria.Unsupported("%s joins cannot be rendered as $lookup (%s)", j.Type, j.Path)
	}

	local := w.field(j.ParentAlias, j.ParentColumn)
	if l := j.Link; l != nil {
		w.lookup(l.Table, local, l.OwnerColumn, l.Alias)
		w.unwind(l.Alias, preserve)
		local = l.Alias + "." + l.TargetColumn
	}
	w.lookup(j.Table, local, j.Column, j.Alias)
	w.unwind(j.Alias, preserve)
	return nil
}

func (w *walker) lookup(from, local, foreign, as string) {
	w.looked[as] = true
	w.lookups = append(w.lookups, bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: from},
		{Key: "localField", Value: local},
		{Key: "foreignField", Value: foreign},
		{Key: "as", Value: as},
	}}})
}

func (w *walker) unwind(alias string, preserve bool) {
	spec := bson.D{{Key: "path", Value: "$" + alias}}
	if preserve {
		spec = append(spec, bson.E{Key: "preserveNullAndEmptyArrays", Value: true})
	}
	w.lookups = append(w.lookups, bson.D{{Key: "$unwind", Value: spec}})
}

func (w *walker) VisitAssignment(_ int, a querymodel.Assignment) error {
	v, err := w.value(a.Value)
	if err != nil {
		return err
	}
	w.sets = append(w.sets, bson.E{Key: a.Column.Name, Value: v})
	return nil
}

func (w *walker) EnterClause(c querymodel.Clause) error {
	w.clause = c
	w.frames = w.frames[:0]
	w.post = c == querymodel.ClauseHaving
	return nil
}

func (w *walker) EnterGroup(g *querymodel.Group) error {
	w.frames = append(w.frames, &frame{group: g})
	return nil
}

func (w *walker) LeaveGroup(*querymodel.Group) error {
	f := w.frames[len(w.frames)-1]
	w.frames = w.frames[:len(w.frames)-1]

	doc := combine(f)
	if len(w.frames) > 0 {
		parent := w.frames[len(w.frames)-1]
		parent.children = append(parent.children, doc)
		return nil
	}
	if w.clause == querymodel.ClauseHaving {
		w.having = doc
	} else {
		w.match = doc
	}
	return nil
}

// combine folds a group's children. Empty AND matches everything and
// empty OR matches nothing.
func combine(f *frame) bson.D {
	g := f.group
	var doc bson.D
	switch {
	case len(f.children) == 0 && g.Op == criteria.OpOr:
		doc = bson.D{{Key: "$expr", Value: false}}
	case len(f.children) == 0:
		doc = bson.D{}
	case len(f.children) == 1:
		doc = f.children[0].(bson.D)
	case g.Op == criteria.OpOr:
		doc = bson.D{{Key: "$or", Value: f.children}}
	default:
		doc = bson.D{{Key: "$and", Value: f.children}}
	}
	if g.Negated {
		return nor(doc)
	}
	return doc
}

func nor(doc bson.D) bson.D {
	return bson.D{{Key: "$nor", Value: bson.A{doc}}}
}

func (w *walker) VisitCriterion(_ int, c querymodel.Criterion) error {
	if len(w.frames) == 0 {
		return criteria.Defect("render: criterion outside a group")
	}
	var (
		doc bson.D
		err error
	)
	if c.Clause == querymodel.ClauseHaving {
		doc, err = w.exprCriterion(c)
	} else {
		doc, err = w.criterion(c)
	}
	if err != nil {
		return err
	}
	if c.Negated {
		doc = nor(doc)
	}
	top := w.frames[len(w.frames)-1]
	top.children = append(top.children, doc)
	return nil
}

func (w *walker) VisitGroupBy(i int, op querymodel.Operand) error {
	w.grouped = true
	e, err := w.expr(op)
	if err != nil {
		return err
	}
	k, err := operandKey(op)
	if err != nil {
		return err
	}
	w.groupBy = append(w.groupBy, k)
	w.keys = append(w.keys, bson.E{Key: fmt.Sprintf("g%d", i), Value: e})
	return nil
}

func (w *walker) VisitPage(limit, offset int) error {
	if offset > 0 {
		w.page = append(w.page, bson.D{{Key: "$skip", Value: offset}})
	}
	if limit > 0 {
		w.page = append(w.page, bson.D{{Key: "$limit", Value: limit}})
	}
	return nil
}

// field returns the document path of a column.
func (w *walker) field(alias, column string) string {
	if alias == w.m.Alias {
		return column
	}
	return alias + "." + column
}

// operandKey identifies an operand structurally so grouped references can
// be matched to their $group outputs.
func operandKey(op querymodel.Operand) (string, error) {
	b, err := json.Marshal(op)
	if err != nil {
		return "", criteria.Defect("render: key operand: %v", err)
	}
	return string(b), nil
}

func (w *walker) groupRef(op querymodel.Operand) (string, bool, error) {
	k, err := operandKey(op)
	if err != nil {
		return "", false, err
	}
	for i, g := range w.groupBy {
		if g == k {
			return fmt.Sprintf("$_id.g%d", i), true, nil
		}
	}
	return "", false, nil
}

// accumulate returns the $group output name for an aggregate, adding it on
// first use.
func (w *walker) accumulate(f querymodel.Func) (string, error) {
	k, err := operandKey(f)
	if err != nil {
		return "", err
	}
	for _, a := range w.accs {
		if a.key == k {
			return a.name, nil
		}
	}
	name := fmt.Sprintf("a%d", len(w.accs))
	acc := accumulator{name: name, key: k}

	var arg any
	if len(f.Args) > 0 {
		// Aggregate arguments are evaluated per input document.
		prev := w.post
		w.post = false
		arg, err = w.expr(f.Args[0])
		w.post = prev
		if err != nil {
			return "", err
		}
	}
	switch f.Name {
	case criteria.FuncCount:
		if arg == nil {
			acc.expr = bson.D{{Key: "$sum", Value: 1}}
			break
		}
		acc.expr = bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{arg, nil}}}, nil}}},
			0,
			1,
		}}}}}
	case criteria.FuncCountDistinct:
		acc.expr = bson.D{{Key: "$addToSet", Value: arg}}
		acc.post = bson.D{{Key: "$size", Value: "$" + name}}
	case criteria.FuncSum:
		acc.expr = bson.D{{Key: "$sum", Value: arg}}
	case criteria.FuncAvg:
		acc.expr = bson.D{{Key: "$avg", Value: arg}}
	case criteria.FuncMin:
		acc.expr = bson.D{{Key: "$min", Value: arg}}
	case criteria.FuncMax:
		acc.expr = bson.D{{Key: "$max", Value: arg}}
	default:
		return "", criteria.Defect("render: %s is not an aggregate", f.Name)
	}
	w.accs = append(w.accs, acc)
	return name, nil
}

func (w *walker) assemble() (*Statement, error) {
	m := w.m
	stmt := &Statement{Kind: m.Kind, Collection: m.Table}
	switch m.Kind {
	case criteria.KindUpdate:
		if len(w.sets) == 0 {
			return nil, criteria.Unsupported("update of %s has no assignments", m.Entity)
		}
		stmt.Filter = w.match
		stmt.Update = bson.D{{Key: "$set", Value: w.sets}}
		return stmt, nil
	case criteria.KindDelete:
		stmt.Filter = w.match
		return stmt, nil
	case criteria.KindQuery:
	default:
		return nil, criteria.Defect("render: unhandled statement kind %v", m.Kind)
	}
	if m.Distinct && len(m.Orders) > 0 {
		return nil, criteria.Unsupported("DISTINCT with ORDER BY cannot be rendered as a pipeline")
	}

	// Projection and ordering may introduce accumulators, so they are
	// translated before the $group stage is built.
	w.post = w.grouped
	project, err := w.projection()
	if err != nil {
		return nil, err
	}
	sort, err := w.sort()
	if err != nil {
		return nil, err
	}

	p := append([]bson.D(nil), w.lookups...)
	if w.match != nil {
		p = append(p, bson.D{{Key: "$match", Value: w.match}})
	}
	if w.grouped {
		p = append(p, w.groupStages()...)
	}
	if w.having != nil {
		p = append(p, bson.D{{Key: "$match", Value: w.having}})
	}
	if len(sort) > 0 {
		p = append(p, bson.D{{Key: "$sort", Value: sort}})
	}
	if !m.Distinct {
		p = append(p, w.page...)
	}
	switch {
	case project != nil:
		p = append(p, bson.D{{Key: "$project", Value: project}})
	case len(w.relation) > 0:
		p = append(p, bson.D{{Key: "$unset", Value: w.relation}})
	}
	if m.Distinct {
		p = append(p,
			bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$$ROOT"}}}},
			bson.D{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$_id"}}}},
		)
		p = append(p, w.page...)
	}
	stmt.Pipeline = p
	return stmt, nil
}

func (w *walker) groupStages() []bson.D {
	var id any
	if len(w.keys) > 0 {
		id = w.keys
	}
	group := bson.D{{Key: "_id", Value: id}}
	var post bson.D
	for _, a := range w.accs {
		group = append(group, bson.E{Key: a.name, Value: a.expr})
		if a.post != nil {
			post = append(post, bson.E{Key: a.name, Value: a.post})
		}
	}
	stages := []bson.D{{{Key: "$group", Value: group}}}
	if len(post) > 0 {
		stages = append(stages, bson.D{{Key: "$set", Value: post}})
	}
	return stages
}

// projection builds the $project document. Output names are the
// projection alias, else the property path with dots replaced.
func (w *walker) projection() (bson.D, error) {
	if len(w.m.Projection) == 0 {
		return nil, nil
	}
	doc := bson.D{{Key: "_id", Value: 0}}
	seen := map[string]bool{"_id": true}
	for i, p := range w.m.Projection {
		v, err := w.expr(p.Operand)
		if err != nil {
			return nil, err
		}
		name := p.Alias
		if name == "" {
			if c, ok := p.Operand.(querymodel.Column); ok {
				name = c.Path
				if name == "" {
					name = c.Name
				}
				name = strings.ReplaceAll(name, ".", "_")
			} else {
				name = fmt.Sprintf("expr%d", i)
			}
		}
		if seen[name] {
			name = fmt.Sprintf("%s_%d", name, i)
		}
		seen[name] = true
		doc = append(doc, bson.E{Key: name, Value: v})
	}
	return doc, nil
}

func (w *walker) sort() (bson.D, error) {
	var doc bson.D
	for _, o := range w.m.Orders {
		e, err := w.expr(o.Operand)
		if err != nil {
			return nil, err
		}
		ref, ok := e.(string)
		if !ok || !strings.HasPrefix(ref, "$") {
			return nil, criteria.Unsupported("ordering by a computed expression cannot be rendered as $sort")
		}
		dir := 1
		if o.Descending {
			dir = -1
		}
		doc = append(doc, bson.E{Key: strings.TrimPrefix(ref, "$"), Value: dir})
	}
	return doc, nil
}
