package criteria

import (
	"strconv"

	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/metadata"
)

// StatementKind distinguishes query, update and delete specifications.
type StatementKind uint8

const (
	KindQuery StatementKind = iota
	KindUpdate
	KindDelete
)

func (k StatementKind) String() string {
	switch k {
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	}
	return "QUERY"
}

func (k StatementKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Statement is the common view of QuerySpec, UpdateSpec and DeleteSpec.
type Statement interface {
	Kind() StatementKind

	// Root returns the bound entity root, or nil before From is called.
	Root() *Root

	// Restriction returns the WHERE predicate, or nil.
	Restriction() Predicate

	// Parent returns the enclosing statement of a subquery, or nil.
	Parent() Statement

	Builder() *Builder
}

// Selection is one item of a projection list.
type Selection struct {
	Expr  Expression
	Alias string
}

// Order is one ORDER BY item.
type Order struct {
	Expr       Expression
	Descending bool
}

// Asc orders by e ascending.
func Asc(e Expression) Order { return Order{Expr: e} }

// Desc orders by e descending.
func Desc(e Expression) Order { return Order{Expr: e, Descending: true} }

// Assignment is one SET item of an update.
type Assignment struct {
	Path  PropertyPath
	Value Expression
}

// base holds the state shared by every statement kind.
type base struct {
	builder *Builder
	parent  Statement
	depth   int
	root    *Root
	where   Predicate
}

func (b *base) Root() *Root            { return b.root }
func (b *base) Restriction() Predicate { return b.where }
func (b *base) Parent() Statement      { return b.parent }
func (b *base) Builder() *Builder      { return b.builder }

// from binds the root exactly once. Subquery roots get a depth suffix so
// their aliases never collide with an enclosing statement's.
func (b *base) from(entity string) (*Root, error) {
	if b.root != nil {
		return nil, &Error{
			Code:    ErrCodeDuplicateRoot,
			Message: "entity root already specified: " + b.root.Entity().Name(),
		}
	}
	ent, err := b.builder.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	alias := metadata.Alias(ent.Name())
	if b.depth > 0 {
		alias += "_" + strconv.Itoa(b.depth)
	}
	b.root = newRoot(b.builder.registry, ent, alias)
	return b.root, nil
}

func (b *base) subquery(self Statement, resultType ir.Type) *QuerySpec {
	return &QuerySpec{
		base:       base{builder: b.builder, parent: self, depth: b.depth + 1},
		resultType: resultType,
	}
}

func and(ps []Predicate) Predicate {
	var kept []Predicate
	for _, p := range ps {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Junction{Op: OpAnd, Predicates: kept}
}

// QuerySpec is a select statement under construction.
type QuerySpec struct {
	base

	resultType ir.Type
	selections []Selection
	distinct   bool
	groupBy    []Expression
	having     Predicate
	orders     []Order
	limit      int
	offset     int
}

var (
	_ Statement = (*QuerySpec)(nil)
	_ Statement = (*UpdateSpec)(nil)
	_ Statement = (*DeleteSpec)(nil)
)

func (q *QuerySpec) Kind() StatementKind { return KindQuery }

// From binds the query root. A second call fails with DUPLICATE_ROOT.
func (q *QuerySpec) From(entity string) (*Root, error) { return q.from(entity) }

// ResultType returns the declared result type.
func (q *QuerySpec) ResultType() ir.Type { return q.resultType }

// Select replaces the projection list.
func (q *QuerySpec) Select(exprs ...Expression) *QuerySpec {
	q.selections = q.selections[:0:0]
	for _, e := range exprs {
		q.selections = append(q.selections, Selection{Expr: e})
	}
	return q
}

// SelectAs appends an aliased projection item.
func (q *QuerySpec) SelectAs(alias string, e Expression) *QuerySpec {
	q.selections = append(q.selections, Selection{Expr: e, Alias: alias})
	return q
}

// Distinct removes duplicate result rows.
func (q *QuerySpec) Distinct() *QuerySpec {
	q.distinct = true
	return q
}

// Where replaces the restriction with the conjunction of ps.
// Nil predicates are skipped; no predicates clears the restriction.
func (q *QuerySpec) Where(ps ...Predicate) *QuerySpec {
	q.where = and(ps)
	return q
}

// GroupBy replaces the grouping list.
func (q *QuerySpec) GroupBy(exprs ...Expression) *QuerySpec {
	q.groupBy = append([]Expression(nil), exprs...)
	return q
}

// Having replaces the group restriction with the conjunction of ps.
func (q *QuerySpec) Having(ps ...Predicate) *QuerySpec {
	q.having = and(ps)
	return q
}

// OrderBy replaces the ordering list.
func (q *QuerySpec) OrderBy(orders ...Order) *QuerySpec {
	q.orders = append([]Order(nil), orders...)
	return q
}

// Limit caps the number of rows; zero means no limit.
func (q *QuerySpec) Limit(n int) *QuerySpec {
	q.limit = max(n, 0)
	return q
}

// Offset skips rows.
func (q *QuerySpec) Offset(n int) *QuerySpec {
	q.offset = max(n, 0)
	return q
}

// Subquery starts a nested query sharing this query's builder.
func (q *QuerySpec) Subquery(resultType ir.Type) *QuerySpec { return q.subquery(q, resultType) }

// Expression wraps the query for use as an operand.
func (q *QuerySpec) Expression() Subquery { return Subquery{Query: q} }

func (q *QuerySpec) Selections() []Selection     { return append([]Selection(nil), q.selections...) }
func (q *QuerySpec) IsDistinct() bool            { return q.distinct }
func (q *QuerySpec) Grouping() []Expression      { return append([]Expression(nil), q.groupBy...) }
func (q *QuerySpec) GroupRestriction() Predicate { return q.having }
func (q *QuerySpec) Orderings() []Order          { return append([]Order(nil), q.orders...) }
func (q *QuerySpec) Page() (limit, offset int)   { return q.limit, q.offset }
func (q *QuerySpec) Depth() int                  { return q.depth }

// Clone returns a shallow copy sharing the root. Setters on the copy do
// not affect the original.
func (q *QuerySpec) Clone() *QuerySpec {
	cp := *q
	cp.selections = q.Selections()
	cp.groupBy = q.Grouping()
	cp.orders = q.Orderings()
	return &cp
}

// UpdateSpec is an update statement under construction.
type UpdateSpec struct {
	base

	target      string
	assignments []Assignment
}

func (u *UpdateSpec) Kind() StatementKind { return KindUpdate }

// Target returns the entity name the update was created for.
func (u *UpdateSpec) Target() string { return u.target }

// From binds the update root, which must be the target entity.
func (u *UpdateSpec) From(entity string) (*Root, error) {
	if entity != u.target {
		return nil, invalidOperand("", "update of %s cannot use root %s", u.target, entity)
	}
	return u.from(entity)
}

// Set appends an assignment. The path must be a scalar property of the
// root entity or of one of its embedded associations; identity properties
// cannot be assigned.
func (u *UpdateSpec) Set(path PropertyPath, value Expression) error {
	if u.root == nil {
		return &Error{Code: ErrCodeMissingRoot, Message: "Set called before From"}
	}
	if !u.root.Owns(path) {
		return &Error{Code: ErrCodeForeignPath, Path: path.Path, Message: "assignment path belongs to another root"}
	}
	if path.IsAssociation() {
		return invalidOperand(path.Path, "cannot assign an association")
	}
	for _, idx := range path.Traversal {
		if n, _ := u.root.Node(idx); !n.Embedded() {
			return invalidOperand(path.Path, "cannot assign through joined association %s", n.Path)
		}
	}
	if path.Property.Roles.Has(metadata.RoleIdentity) {
		return invalidOperand(path.Path, "identity property cannot be updated")
	}
	if value == nil {
		return invalidOperand(path.Path, "assignment value is nil")
	}
	if err := requireExpr(value); err != nil {
		return err
	}
	vt := value.Type()
	if vt.Kind == ir.KindNull && !path.Property.Nullable {
		return invalidOperand(path.Path, "property is not nullable")
	}
	if !vt.AssignableTo(path.Type()) {
		return invalidOperand(path.Path, "cannot assign %s to %s", vt, path.Type())
	}
	u.assignments = append(u.assignments, Assignment{Path: path, Value: value})
	return nil
}

// Where replaces the restriction with the conjunction of ps.
func (u *UpdateSpec) Where(ps ...Predicate) *UpdateSpec {
	u.where = and(ps)
	return u
}

// Assignments returns the SET list in the order given.
func (u *UpdateSpec) Assignments() []Assignment { return append([]Assignment(nil), u.assignments...) }

// Subquery starts a nested query sharing this update's builder.
func (u *UpdateSpec) Subquery(resultType ir.Type) *QuerySpec { return u.subquery(u, resultType) }

// Clone returns a shallow copy sharing the root.
func (u *UpdateSpec) Clone() *UpdateSpec {
	cp := *u
	cp.assignments = u.Assignments()
	return &cp
}

// WithAssignments returns a copy whose SET list is replaced without
// re-validation. Used by tree rewriters that preserve operand types.
func (u *UpdateSpec) WithAssignments(as []Assignment) *UpdateSpec {
	cp := u.Clone()
	cp.assignments = append([]Assignment(nil), as...)
	return cp
}

// DeleteSpec is a delete statement under construction.
type DeleteSpec struct {
	base

	target string
}

func (d *DeleteSpec) Kind() StatementKind { return KindDelete }

// Target returns the entity name the delete was created for.
func (d *DeleteSpec) Target() string { return d.target }

// From binds the delete root, which must be the target entity.
func (d *DeleteSpec) From(entity string) (*Root, error) {
	if entity != d.target {
		return nil, invalidOperand("", "delete of %s cannot use root %s", d.target, entity)
	}
	return d.from(entity)
}

// Where replaces the restriction with the conjunction of ps.
func (d *DeleteSpec) Where(ps ...Predicate) *DeleteSpec {
	d.where = and(ps)
	return d
}

// Subquery starts a nested query sharing this delete's builder.
func (d *DeleteSpec) Subquery(resultType ir.Type) *QuerySpec { return d.subquery(d, resultType) }

// Clone returns a shallow copy sharing the root.
func (d *DeleteSpec) Clone() *DeleteSpec {
	cp := *d
	return &cp
}
