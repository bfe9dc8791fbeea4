package querymodel

import (
	"github.com/rs/zerolog"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/metadata"
)

// Compiler turns criteria statements into Models.
// A Compiler holds no per-statement state and may be shared.
type Compiler struct {
	log zerolog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger logs join registration and parameter emission at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Compiler) { c.log = l }
}

// NewCompiler creates a Compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile is NewCompiler(opts...).Compile(stmt).
func Compile(stmt criteria.Statement, opts ...Option) (*Model, error) {
	return NewCompiler(opts...).Compile(stmt)
}

// Compile walks stmt in the fixed clause order (projection, assignments,
// WHERE, GROUP BY, HAVING, ORDER BY) and returns its Model.
//
// An unrecognized node is a COMPILER_DEFECT: no partial model is returned.
// A path owned by a root outside stmt (and its enclosing statements) is a
// FOREIGN_PATH error.
func (c *Compiler) Compile(stmt criteria.Statement) (*Model, error) {
	if stmt == nil {
		return nil, criteria.Defect("compile: nil statement")
	}
	var params []Parameter
	m, err := c.compile(stmt, nil, &params)
	if err != nil {
		return nil, err
	}
	m.Parameters = params
	c.log.Debug().
		Str("kind", m.Kind.String()).
		Str("entity", m.Entity).
		Int("criteria", len(m.Criteria)).
		Int("joins", len(m.Joins)).
		Int("parameters", len(m.Parameters)).
		Msg("compiled statement")
	return m, nil
}

// scope is the compilation state of one statement; subqueries get a
// child scope linked through outer.
type scope struct {
	c       *Compiler
	stmt    criteria.Statement
	root    *criteria.Root
	model   *Model
	emitted map[int]int
	params  *[]Parameter
	outer   *scope
}

func (c *Compiler) compile(stmt criteria.Statement, outer *scope, params *[]Parameter) (*Model, error) {
	root := stmt.Root()
	if root == nil {
		return nil, &criteria.Error{Code: criteria.ErrCodeMissingRoot, Message: stmt.Kind().String() + " has no root; call From first"}
	}
	ent := root.Entity()
	s := &scope{
		c:       c,
		stmt:    stmt,
		root:    root,
		model:   &Model{Kind: stmt.Kind(), Entity: ent.Name(), Table: ent.PersistedName(), Alias: root.Alias()},
		emitted: map[int]int{},
		params:  params,
		outer:   outer,
	}

	var err error
	switch st := stmt.(type) {
	case *criteria.QuerySpec:
		err = s.query(st)
	case *criteria.UpdateSpec:
		err = s.update(st)
	case *criteria.DeleteSpec:
		s.model.Filter, err = s.clause(st.Restriction(), ClauseWhere)
	default:
		err = criteria.Defect("compile: unhandled statement %T", stmt)
	}
	if err != nil {
		return nil, err
	}

	// Explicit joins stay in the model even when nothing references them:
	// an inner join still restricts the result.
	for i, n := range root.Nodes() {
		if n.Explicit && !n.Embedded() {
			if _, err := s.join(i); err != nil {
				return nil, err
			}
		}
	}

	if s.model.Kind == criteria.KindQuery && positionsApply(s.model) {
		for _, j := range s.model.Joins {
			if j.Ordered() && projects(s.model, j.Alias) {
				s.model.Orders = append(s.model.Orders, Ordering{Operand: orderingColumn(j)})
			}
		}
	}
	return s.model, nil
}

// positionsApply reports whether list positions can be appended to ORDER
// BY. DISTINCT, grouped and aggregate-only queries reject ordering by a
// column outside the select list.
func positionsApply(m *Model) bool {
	if m.Distinct || len(m.GroupBy) > 0 || m.Having != nil {
		return false
	}
	for _, p := range m.Projection {
		if f, ok := p.Operand.(Func); !ok || !f.Name.Aggregate() {
			return true
		}
	}
	return false
}

// projects reports whether a column of the joined alias is selected.
func projects(m *Model, alias string) bool {
	for _, p := range m.Projection {
		if c, ok := p.Operand.(Column); ok && c.Alias == alias {
			return true
		}
	}
	return false
}

func (s *scope) query(q *criteria.QuerySpec) error {
	m := s.model
	m.Distinct = q.IsDistinct()

	selections := q.Selections()
	if len(selections) == 0 {
		cols, err := s.entityColumns(s.root.Alias(), s.root.Entity(), "", "")
		if err != nil {
			return err
		}
		for _, col := range cols {
			m.Projection = append(m.Projection, Projection{Operand: col})
		}
	}
	for _, sel := range selections {
		if p, ok := asPath(sel.Expr); ok && p.IsAssociation() {
			cols, err := s.associationColumns(p)
			if err != nil {
				return err
			}
			for _, col := range cols {
				m.Projection = append(m.Projection, Projection{Operand: col})
			}
			continue
		}
		op, err := s.operand(sel.Expr, "")
		if err != nil {
			return err
		}
		m.Projection = append(m.Projection, Projection{Operand: op, Alias: sel.Alias})
	}

	var err error
	if m.Filter, err = s.clause(q.Restriction(), ClauseWhere); err != nil {
		return err
	}
	for _, g := range q.Grouping() {
		op, err := s.operand(g, "")
		if err != nil {
			return err
		}
		m.GroupBy = append(m.GroupBy, op)
	}
	if m.Having, err = s.clause(q.GroupRestriction(), ClauseHaving); err != nil {
		return err
	}
	for _, o := range q.Orderings() {
		op, err := s.operand(o.Expr, "")
		if err != nil {
			return err
		}
		m.Orders = append(m.Orders, Ordering{Operand: op, Descending: o.Descending})
	}
	m.Limit, m.Offset = q.Page()
	return nil
}

func (s *scope) update(u *criteria.UpdateSpec) error {
	for _, a := range u.Assignments() {
		col, err := s.column(a.Path)
		if err != nil {
			return err
		}
		if col.Alias != s.root.Alias() {
			return &criteria.Error{Code: criteria.ErrCodeInvalidOperand, Path: a.Path.Path, Message: "assignment must target the root table"}
		}
		val, err := s.operand(a.Value, a.Path.Path)
		if err != nil {
			return err
		}
		s.model.Assignments = append(s.model.Assignments, Assignment{Column: col, Value: val})
	}
	var err error
	s.model.Filter, err = s.clause(u.Restriction(), ClauseWhere)
	return err
}

// clause compiles a WHERE or HAVING predicate. The result is always a
// group so renderers see one shape.
func (s *scope) clause(p criteria.Predicate, c Clause) (*Group, error) {
	if p == nil {
		return nil, nil
	}
	if err := criteria.Validate(p); err != nil {
		return nil, err
	}
	node, err := s.predicate(p, c)
	if err != nil {
		return nil, err
	}
	if node.Group != nil {
		return node.Group, nil
	}
	return &Group{Op: criteria.OpAnd, Children: []Node{node}}, nil
}

func (s *scope) predicate(p criteria.Predicate, c Clause) (Node, error) {
	switch v := p.(type) {
	case criteria.Junction:
		g := &Group{Op: v.Op, Children: []Node{}}
		for _, child := range v.Predicates {
			n, err := s.predicate(child, c)
			if err != nil {
				return Node{}, err
			}
			g.Children = append(g.Children, n)
		}
		return Node{Group: g}, nil

	case criteria.Negated:
		inner, err := s.predicate(v.Predicate, c)
		if err != nil {
			return Node{}, err
		}
		return Node{Group: &Group{Op: criteria.OpAnd, Negated: true, Children: []Node{inner}}}, nil

	case criteria.Comparison:
		left, err := s.operand(v.Left, pathOf(v.Right))
		if err != nil {
			return Node{}, err
		}
		right, err := s.operand(v.Right, pathOf(v.Left))
		if err != nil {
			return Node{}, err
		}
		return s.criterion(Criterion{Clause: c, Op: Operator(v.Op.String()), Left: left, Operands: []Operand{right}, Path: pathOf(v.Left)}), nil

	case criteria.Unary:
		return s.unary(v, c)

	case criteria.Between:
		left, err := s.column(v.Path)
		if err != nil {
			return Node{}, err
		}
		ops, err := s.operands(v.Path.Path, v.From, v.To)
		if err != nil {
			return Node{}, err
		}
		return s.criterion(Criterion{Clause: c, Op: OpBetween, Left: left, Operands: ops, Path: v.Path.Path}), nil

	case criteria.In:
		left, err := s.column(v.Path)
		if err != nil {
			return Node{}, err
		}
		ops, err := s.operands(v.Path.Path, v.Values...)
		if err != nil {
			return Node{}, err
		}
		return s.criterion(Criterion{Clause: c, Op: OpIn, Left: left, Operands: ops, Path: v.Path.Path}), nil

	case criteria.InCollection:
		left, err := s.column(v.Path)
		if err != nil {
			return Node{}, err
		}
		ops, err := s.operands(v.Path.Path, v.Collection)
		if err != nil {
			return Node{}, err
		}
		return s.criterion(Criterion{Clause: c, Op: OpIn, Left: left, Operands: ops, Path: v.Path.Path}), nil

	case criteria.Like:
		left, err := s.operand(v.Expr, "")
		if err != nil {
			return Node{}, err
		}
		path := pathOf(v.Expr)
		ops, err := s.operands(path, v.Pattern)
		if err != nil {
			return Node{}, err
		}
		if v.Escape != nil {
			esc, err := s.operand(v.Escape, path)
			if err != nil {
				return Node{}, err
			}
			ops = append(ops, esc)
		}
		return s.criterion(Criterion{
			Clause:          c,
			Op:              OpLike,
			Left:            left,
			Operands:        ops,
			Negated:         v.Negated,
			CaseInsensitive: v.CaseInsensitive,
			Path:            path,
		}), nil

	default:
		return Node{}, criteria.Defect("compile: unhandled predicate %T", p)
	}
}

func (s *scope) criterion(cr Criterion) Node {
	s.model.Criteria = append(s.model.Criteria, cr)
	return Node{Criterion: len(s.model.Criteria) - 1}
}

func (s *scope) unary(u criteria.Unary, c Clause) (Node, error) {
	op := Operator(u.Op.String())
	p := u.Path
	if !p.IsAssociation() {
		col, err := s.column(p)
		if err != nil {
			return Node{}, err
		}
		return s.criterion(Criterion{Clause: c, Op: op, Left: col, Path: p.Path}), nil
	}

	owner, err := s.owner(p)
	if err != nil {
		return Node{}, err
	}
	idx := p.Traversal[len(p.Traversal)-1]
	n, ok := owner.root.Node(idx)
	if !ok {
		return Node{}, criteria.Defect("compile: path %s references missing node %d", p.Path, idx)
	}
	parentAlias, prefix, err := owner.locate(p.Traversal[:len(p.Traversal)-1], p.Path)
	if err != nil {
		return Node{}, err
	}
	if n.Embedded() || prefix != "" {
		return Node{}, criteria.Unsupported("cannot test embedded association %s with %s", p.Path, u.Op)
	}
	parent := owner.root.Entity()
	if n.Parent >= 0 {
		pn, _ := owner.root.Node(n.Parent)
		parent = pn.Target
	}

	a := n.Association
	if a.IsToMany() || a.MappedBy != "" {
		switch u.Op {
		case criteria.OpIsEmpty, criteria.OpIsNotEmpty:
		case criteria.OpIsNull:
			if a.IsToMany() {
				return Node{}, criteria.Unsupported("collection %s is never null; use IS_EMPTY", p.Path)
			}
			op = OpIsEmpty
		case criteria.OpIsNonNull:
			if a.IsToMany() {
				return Node{}, criteria.Unsupported("collection %s is never null; use IS_NOT_EMPTY", p.Path)
			}
			op = OpIsNotEmpty
		default:
			return Node{}, criteria.Unsupported("%s cannot test association %s", u.Op, p.Path)
		}
		n.Alias += "_rel"
		rel, err := deriveJoin(parent, parentAlias, n)
		if err != nil {
			return Node{}, err
		}
		return s.criterion(Criterion{Clause: c, Op: op, Left: Relation{Join: rel}, Path: p.Path}), nil
	}

	// Owning to-one: test the foreign key on the parent row.
	tid, err := identity(n.Target, p.Path)
	if err != nil {
		return Node{}, err
	}
	col := Column{Alias: parentAlias, Name: foreignKey(a, tid), Path: p.Path, Type: tid.Type}
	return s.criterion(Criterion{Clause: c, Op: op, Left: col, Path: p.Path}), nil
}

func (s *scope) operands(path string, exprs ...criteria.Expression) ([]Operand, error) {
	out := make([]Operand, 0, len(exprs))
	for _, e := range exprs {
		op, err := s.operand(e, path)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// operand compiles an expression. path names the property the operand is
// compared against and is recorded on emitted parameters.
func (s *scope) operand(e criteria.Expression, path string) (Operand, error) {
	switch v := e.(type) {
	case criteria.Literal:
		return Literal{Value: v.Value, Type: v.ValueType}, nil

	case criteria.Parameter:
		idx := len(*s.params) + 1
		*s.params = append(*s.params, Parameter{Index: idx, Name: v.Name, Path: path, Type: v.ValueType, Value: v.Value})
		s.c.log.Debug().Int("index", idx).Str("name", v.Name).Str("path", path).Msg("emitted parameter")
		return Param{Index: idx}, nil

	case criteria.PropertyPath:
		if v.IsAssociation() {
			return s.associationKey(v)
		}
		return s.column(v)

	case criteria.AssociationPath:
		return s.associationKey(v.PropertyPath)

	case criteria.Function:
		f := Func{Name: v.Name, Type: v.ResultType}
		for _, a := range v.Args {
			op, err := s.operand(a, path)
			if err != nil {
				return nil, err
			}
			f.Args = append(f.Args, op)
		}
		return f, nil

	case criteria.Subquery:
		if v.Query == nil {
			return nil, criteria.Defect("compile: subquery without query")
		}
		sub, err := s.c.compile(v.Query, s, s.params)
		if err != nil {
			return nil, err
		}
		return Subquery{Model: sub}, nil

	default:
		return nil, criteria.Defect("compile: unhandled expression %T", e)
	}
}

// associationKey compiles a to-one owning association used as a value:
// the foreign key column on the parent row.
func (s *scope) associationKey(p criteria.PropertyPath) (Operand, error) {
	owner, err := s.owner(p)
	if err != nil {
		return nil, err
	}
	n, ok := owner.root.Node(p.Traversal[len(p.Traversal)-1])
	if !ok {
		return nil, criteria.Defect("compile: path %s references a missing node", p.Path)
	}
	if n.Association.IsToMany() || n.Association.MappedBy != "" || n.Embedded() {
		return nil, criteria.Unsupported("association %s cannot be used as a value", p.Path)
	}
	alias, prefix, err := owner.locate(p.Traversal[:len(p.Traversal)-1], p.Path)
	if err != nil {
		return nil, err
	}
	if prefix != "" {
		return nil, criteria.Unsupported("association %s inside an embedded value", p.Path)
	}
	tid, err := identity(n.Target, p.Path)
	if err != nil {
		return nil, err
	}
	return Column{Alias: alias, Name: foreignKey(n.Association, tid), Path: p.Path, Type: tid.Type}, nil
}

// column compiles a scalar property path, emitting the joins it needs.
func (s *scope) column(p criteria.PropertyPath) (Column, error) {
	owner, err := s.owner(p)
	if err != nil {
		return Column{}, err
	}
	if p.IsAssociation() {
		return Column{}, &criteria.Error{Code: criteria.ErrCodeInvalidOperand, Path: p.Path, Message: "expected a scalar property, got an association"}
	}
	alias, prefix, err := owner.locate(p.Traversal, p.Path)
	if err != nil {
		return Column{}, err
	}
	return Column{Alias: alias, Name: prefix + p.Property.PersistedName, Path: p.Path, Type: p.Type()}, nil
}

// owner finds the scope whose root created p: this statement or one it is
// nested in.
func (s *scope) owner(p criteria.PropertyPath) (*scope, error) {
	for sc := s; sc != nil; sc = sc.outer {
		if sc.root.Owns(p) {
			return sc, nil
		}
	}
	return nil, &criteria.Error{Code: criteria.ErrCodeForeignPath, Path: p.Path, Message: "path was created by a root outside this statement"}
}

// locate follows traversal, emitting joins for non-embedded nodes, and
// returns the alias of the last joined table plus the column prefix
// contributed by trailing embedded associations.
func (s *scope) locate(traversal []int, path string) (string, string, error) {
	alias := s.root.Alias()
	prefix := ""
	for _, idx := range traversal {
		n, ok := s.root.Node(idx)
		if !ok {
			return "", "", criteria.Defect("compile: path %s references missing node %d", path, idx)
		}
		if n.Embedded() {
			prefix += n.Association.PersistedName + "_"
			continue
		}
		if prefix != "" {
			return "", "", criteria.Unsupported("association %s inside an embedded value", n.Path)
		}
		j, err := s.join(idx)
		if err != nil {
			return "", "", err
		}
		alias = j.Alias
	}
	return alias, prefix, nil
}

// join emits arena node idx (and its parents) on first sight and returns it.
func (s *scope) join(idx int) (Join, error) {
	if pos, ok := s.emitted[idx]; ok {
		return s.model.Joins[pos], nil
	}
	n, ok := s.root.Node(idx)
	if !ok {
		return Join{}, criteria.Defect("compile: missing join node %d", idx)
	}

	parentAlias := s.root.Alias()
	parent := s.root.Entity()
	if n.Parent >= 0 {
		pn, _ := s.root.Node(n.Parent)
		if pn.Embedded() {
			return Join{}, criteria.Unsupported("association %s inside an embedded value", n.Path)
		}
		pj, err := s.join(n.Parent)
		if err != nil {
			return Join{}, err
		}
		parentAlias = pj.Alias
		parent = pn.Target
	}

	j, err := deriveJoin(parent, parentAlias, n)
	if err != nil {
		return Join{}, err
	}
	s.emitted[idx] = len(s.model.Joins)
	s.model.Joins = append(s.model.Joins, j)
	s.c.log.Debug().Str("alias", j.Alias).Str("path", j.Path).Str("type", j.Type.String()).Msg("registered join")
	return j, nil
}

// entityColumns lists the columns of entity under alias, expanding
// embedded associations into prefixed columns.
func (s *scope) entityColumns(alias string, entity metadata.Entity, path, prefix string) ([]Column, error) {
	var cols []Column
	for _, p := range entity.PersistentProperties() {
		cols = append(cols, Column{Alias: alias, Name: prefix + p.PersistedName, Path: joinPath(path, p.Name), Type: p.Type})
	}
	for _, a := range entity.Associations() {
		if a.Kind != metadata.Embedded {
			continue
		}
		target, err := s.stmt.Builder().Registry().Lookup(a.Target)
		if err != nil {
			return nil, err
		}
		nested, err := s.entityColumns(alias, target, joinPath(path, a.Name), prefix+a.PersistedName+"_")
		if err != nil {
			return nil, err
		}
		cols = append(cols, nested...)
	}
	return cols, nil
}

// associationColumns joins the association at p and lists its target's columns.
func (s *scope) associationColumns(p criteria.PropertyPath) ([]Column, error) {
	owner, err := s.owner(p)
	if err != nil {
		return nil, err
	}
	alias, prefix, err := owner.locate(p.Traversal, p.Path)
	if err != nil {
		return nil, err
	}
	n, _ := owner.root.Node(p.Traversal[len(p.Traversal)-1])
	return s.entityColumns(alias, n.Target, p.Path, prefix)
}

func asPath(e criteria.Expression) (criteria.PropertyPath, bool) {
	switch v := e.(type) {
	case criteria.PropertyPath:
		return v, true
	case criteria.AssociationPath:
		return v.PropertyPath, true
	}
	return criteria.PropertyPath{}, false
}

func pathOf(e criteria.Expression) string {
	switch v := e.(type) {
	case criteria.PropertyPath:
		return v.Path
	case criteria.AssociationPath:
		return v.Path
	case criteria.Function:
		for _, a := range v.Args {
			if p := pathOf(a); p != "" {
				return p
			}
		}
	}
	return ""
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
