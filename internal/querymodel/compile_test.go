package querymodel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/metadata"
	"github.com/roach88/critq/internal/rewrite"
	"github.com/roach88/critq/internal/testutil"
)

type fixture struct {
	b    *criteria.Builder
	q    *criteria.QuerySpec
	root *criteria.Root
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	b := criteria.NewBuilder(testutil.Library(t))
	q := b.CreateQuery(ir.EntityType("Book"))
	root, err := q.From("Book")
	require.NoError(t, err)
	return fixture{b: b, q: q, root: root}
}

func (f fixture) str(s string) criteria.Literal { return f.b.Literal(ir.NewIRString(s)) }

func (f fixture) must(p criteria.Predicate, err error) criteria.Predicate {
	return criteria.MustPredicate(p, err)
}

// bookScenario builds: title STARTS_WITH "Foo" AND author.name EQUALS "X".
func bookScenario(t *testing.T) fixture {
	f := newFixture(t)
	f.q.Where(f.b.And(
		f.must(f.b.StartsWith(f.root.MustGet("title"), f.str("Foo"))),
		f.must(f.b.Equal(f.root.MustGet("author.name"), f.str("X"))),
	))
	return f
}

func TestCompile_BookScenario(t *testing.T) {
	f := bookScenario(t)

	stmt, err := rewrite.Apply(f.q)
	require.NoError(t, err)
	m, err := Compile(stmt)
	require.NoError(t, err)

	require.Len(t, m.Joins, 1)
	assert.Equal(t, Join{
		Type:         criteria.JoinInner,
		Path:         "author",
		Association:  "author",
		Kind:         metadata.ManyToOne,
		Entity:       "Author",
		Table:        "authors",
		Alias:        "book_author",
		ParentAlias:  "book",
		ParentColumn: "author_id",
		Column:       "id",
	}, m.Joins[0])

	require.Len(t, m.Criteria, 2)
	assert.Equal(t, OpStartsWith, m.Criteria[0].Op)
	assert.Equal(t, Column{Alias: "book", Name: "title", Path: "title", Type: ir.String}, m.Criteria[0].Left)
	assert.Equal(t, OpEquals, m.Criteria[1].Op)
	assert.Equal(t, Column{Alias: "book_author", Name: "name", Path: "author.name", Type: ir.String}, m.Criteria[1].Left)

	want := []Parameter{
		{Index: 1, Name: "p1", Path: "title", Type: ir.String, Value: ir.NewIRString("Foo")},
		{Index: 2, Name: "p2", Path: "author.name", Type: ir.String, Value: ir.NewIRString("X")},
	}
	if diff := cmp.Diff(want, m.Parameters); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []Operand{Param{Index: 1}}, m.Criteria[0].Operands)
	assert.Equal(t, []Operand{Param{Index: 2}}, m.Criteria[1].Operands)

	assert.Equal(t, &Group{Op: criteria.OpAnd, Children: []Node{{Criterion: 0}, {Criterion: 1}}}, m.Filter)

	negated := criteria.Not(f.q.Restriction())
	_, wrapped := negated.(criteria.Negated)
	assert.True(t, wrapped, "negating the conjunction wraps it")
}

func TestCompile_RewriteIsShapePreserving(t *testing.T) {
	f := bookScenario(t)

	inline, err := Compile(f.q)
	require.NoError(t, err)
	stmt, err := rewrite.Apply(f.q)
	require.NoError(t, err)
	bound, err := Compile(stmt)
	require.NoError(t, err)

	assert.Len(t, inline.Criteria, len(bound.Criteria))
	assert.Equal(t, inline.Joins, bound.Joins)
	assert.Equal(t, inline.Filter, bound.Filter)
	assert.Empty(t, inline.Parameters)
	assert.Len(t, bound.Parameters, 2)

	for i := range inline.Criteria {
		assert.Equal(t, inline.Criteria[i].Op, bound.Criteria[i].Op)
		assert.IsType(t, Literal{}, inline.Criteria[i].Operands[0])
		assert.IsType(t, Param{}, bound.Criteria[i].Operands[0])
	}
}

func TestCompile_Stable(t *testing.T) {
	f := bookScenario(t)
	f.q.OrderBy(criteria.Desc(f.root.MustGet("chapters.position")))

	first, err := Compile(f.q)
	require.NoError(t, err)
	second, err := Compile(f.q)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("compilations differ (-first +second):\n%s", diff)
	}

	fp1, err := Fingerprint(first)
	require.NoError(t, err)
	fp2, err := Fingerprint(second)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)
}

func TestFingerprint_IgnoresParameterValues(t *testing.T) {
	compileWith := func(value string) *Model {
		f := newFixture(t)
		f.q.Where(f.must(f.b.Equal(f.root.MustGet("title"), f.b.Parameter(ir.String, "t", ir.NewIRString(value)))))
		m, err := Compile(f.q)
		require.NoError(t, err)
		return m
	}

	a, err := Fingerprint(compileWith("A"))
	require.NoError(t, err)
	b, err := Fingerprint(compileWith("B"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	f := newFixture(t)
	f.q.Where(f.must(f.b.Equal(f.root.MustGet("isbn"), f.b.Parameter(ir.String, "t", nil))))
	m, err := Compile(f.q)
	require.NoError(t, err)
	c, err := Fingerprint(m)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestCompile_JoinDeduplication(t *testing.T) {
	f := newFixture(t)
	f.q.Where(f.b.Or(
		f.must(f.b.Equal(f.root.MustGet("author.name"), f.str("A"))),
		f.must(f.b.Equal(f.root.MustGet("author.name"), f.str("B"))),
		f.must(f.b.IsNull(f.root.MustGet("author.born"))),
	))

	m, err := Compile(f.q)
	require.NoError(t, err)
	assert.Len(t, m.Joins, 1)
	assert.Len(t, m.Criteria, 3)
	assert.Equal(t, criteria.OpOr, m.Filter.Op)
}

func TestCompile_JoinKinds(t *testing.T) {
	f := newFixture(t)
	f.q.Select(f.root.MustGet("title"), f.root.MustGet("chapters.title"))
	f.q.Where(f.b.And(
		f.must(f.b.Equal(f.root.MustGet("chapters.title"), f.str("Intro"))),
		f.must(f.b.Equal(f.root.MustGet("tags.label"), f.str("go"))),
		f.must(f.b.Equal(f.root.MustGet("author.books.isbn"), f.str("123"))),
	))

	m, err := Compile(f.q)
	require.NoError(t, err)
	require.Len(t, m.Joins, 4)

	chapters, ok := m.JoinByAlias("book_chapters")
	require.True(t, ok)
	assert.Equal(t, "id", chapters.ParentColumn)
	assert.Equal(t, "book_id", chapters.Column)
	assert.True(t, chapters.Ordered())

	tags, ok := m.JoinByAlias("book_tags")
	require.True(t, ok)
	assert.Equal(t, &JoinTable{Table: "book_tags", Alias: "book_tags_link", OwnerColumn: "book_id", TargetColumn: "tag_id"}, tags.Link)
	assert.False(t, tags.Ordered())

	assert.Equal(t, "book_author", m.Joins[2].Alias)
	books := m.Joins[3]
	assert.Equal(t, "book_author_books", books.Alias)
	assert.Equal(t, "book_author", books.ParentAlias)
	assert.Equal(t, "author_id", books.Column)

	require.Len(t, m.Orders, 1, "ordered join appends its position column")
	assert.Equal(t, Column{Alias: "book_chapters", Name: "position", Path: "chapters", Type: ir.Int}, m.Orders[0].Operand)
}

func TestCompile_ListPositions(t *testing.T) {
	tests := []struct {
		name      string
		build     func(f fixture)
		positions int
	}{
		{
			name: "list columns projected",
			build: func(f fixture) {
				f.q.Select(f.root.MustGet("title"), f.root.MustGet("chapters.title"))
			},
			positions: 1,
		},
		{
			name: "list columns not projected",
			build: func(f fixture) {
				f.q.Select(f.root.MustGet("title"))
			},
		},
		{
			name: "aggregate only",
			build: func(f fixture) {
				f.q.Select(f.b.CountAll())
			},
		},
		{
			name: "distinct",
			build: func(f fixture) {
				f.q.Select(f.root.MustGet("title"), f.root.MustGet("chapters.title")).Distinct()
			},
		},
		{
			name: "grouped",
			build: func(f fixture) {
				title := f.root.MustGet("chapters.title")
				f.q.Select(title).GroupBy(title)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.build(f)
			f.q.Where(f.must(f.b.Equal(f.root.MustGet("chapters.title"), f.str("Intro"))))

			m, err := Compile(f.q)
			require.NoError(t, err)
			require.Len(t, m.Joins, 1)
			assert.True(t, m.Joins[0].Ordered())
			assert.Len(t, m.Orders, tt.positions)
		})
	}
}

func TestCompile_EmbeddedNeverJoins(t *testing.T) {
	f := newFixture(t)
	f.q.Where(f.must(f.b.Equal(f.root.MustGet("location.room"), f.str("B2"))))

	m, err := Compile(f.q)
	require.NoError(t, err)
	assert.Empty(t, m.Joins)
	assert.Equal(t, Column{Alias: "book", Name: "location_room", Path: "location.room", Type: ir.String}, m.Criteria[0].Left)
}

func TestCompile_DefaultProjection(t *testing.T) {
	f := newFixture(t)
	m, err := Compile(f.q)
	require.NoError(t, err)

	var names []string
	for _, p := range m.Projection {
		names = append(names, p.Operand.(Column).Name)
	}
	assert.Equal(t, []string{
		"id", "title", "isbn", "price", "published", "available", "labels", "version",
		"location_room", "location_row",
	}, names)
	assert.Nil(t, m.Filter)
}

func TestCompile_AssociationProjection(t *testing.T) {
	f := newFixture(t)
	author, err := f.root.Association("author")
	require.NoError(t, err)
	f.q.Select(author, f.root.MustGet("title"))

	m, err := Compile(f.q)
	require.NoError(t, err)
	require.Len(t, m.Projection, 4)
	assert.Equal(t, Column{Alias: "book_author", Name: "id", Path: "author.id", Type: ir.Int}, m.Projection[0].Operand)
	assert.Equal(t, "book", m.Projection[3].Operand.(Column).Alias)
	assert.Len(t, m.Joins, 1)
}

func TestCompile_AssociationTests(t *testing.T) {
	f := newFixture(t)
	chapters, err := f.root.Association("chapters")
	require.NoError(t, err)
	author, err := f.root.Association("author")
	require.NoError(t, err)

	f.q.Where(
		f.must(f.b.IsNotEmpty(chapters.PropertyPath)),
		f.must(f.b.IsNull(author.PropertyPath)),
	)

	m, err := Compile(f.q)
	require.NoError(t, err)
	assert.Empty(t, m.Joins, "emptiness and null tests never join")

	rel, ok := m.Criteria[0].Left.(Relation)
	require.True(t, ok)
	assert.Equal(t, OpIsNotEmpty, m.Criteria[0].Op)
	assert.Equal(t, "book_chapters_rel", rel.Join.Alias)
	assert.Equal(t, "book_id", rel.Join.Column)

	assert.Equal(t, OpIsNull, m.Criteria[1].Op)
	assert.Equal(t, Column{Alias: "book", Name: "author_id", Path: "author", Type: ir.Int}, m.Criteria[1].Left)
}

func TestCompile_ExplicitJoinKept(t *testing.T) {
	f := newFixture(t)
	_, err := f.root.Join("tags", criteria.JoinLeft, "t")
	require.NoError(t, err)
	f.q.Where(f.must(f.b.Equal(f.root.MustGet("author.name"), f.str("X"))))

	m, err := Compile(f.q)
	require.NoError(t, err)
	require.Len(t, m.Joins, 2)
	assert.Equal(t, "book_author", m.Joins[0].Alias)
	assert.Equal(t, "t", m.Joins[1].Alias)
	assert.Equal(t, criteria.JoinLeft, m.Joins[1].Type)
}

func TestCompile_SubquerySharesParameters(t *testing.T) {
	f := newFixture(t)
	sub := f.q.Subquery(ir.Int)
	subRoot, err := sub.From("Author")
	require.NoError(t, err)
	sub.Select(subRoot.MustGet("id")).
		Where(f.must(f.b.Equal(subRoot.MustGet("name"), f.b.Parameter(ir.String, "name", nil))))

	f.q.Where(
		f.must(f.b.Equal(f.root.MustGet("title"), f.b.Parameter(ir.String, "title", nil))),
		f.must(f.b.InCollection(f.root.MustGet("author.id"), sub.Expression())),
		f.must(f.b.GreaterThan(f.root.MustGet("price"), f.b.Parameter(ir.Float, "min", nil))),
	)

	m, err := Compile(f.q)
	require.NoError(t, err)

	names := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"title", "name", "min"}, names)

	inner := m.Criteria[1].Operands[0].(Subquery).Model
	assert.Equal(t, "author_1", inner.Alias)
	assert.Empty(t, inner.Parameters)
	assert.Equal(t, []Operand{Param{Index: 2}}, inner.Criteria[0].Operands)
	assert.Equal(t, ir.CollectionOf(ir.Int), m.OperandType(m.Criteria[1].Operands[0]))
}

func TestCompile_CorrelatedSubqueryJoinsOuter(t *testing.T) {
	f := newFixture(t)
	sub := f.q.Subquery(ir.Int)
	subRoot, err := sub.From("Chapter")
	require.NoError(t, err)
	sub.Select(f.b.CountAll()).
		Where(f.must(f.b.Equal(subRoot.MustGet("title"), f.root.MustGet("author.name"))))

	f.q.Where(f.must(f.b.GreaterThan(sub.Expression(), f.b.Literal(ir.NewIRInt(2)))))

	m, err := Compile(f.q)
	require.NoError(t, err)
	assert.Len(t, m.Joins, 1, "outer path registers its join on the outer statement")
	inner := m.Criteria[0].Left.(Subquery).Model
	assert.Empty(t, inner.Joins)
	assert.Equal(t, Column{Alias: "book_author", Name: "name", Path: "author.name", Type: ir.String}, inner.Criteria[0].Operands[0])
}

func TestCompile_Update(t *testing.T) {
	b := criteria.NewBuilder(testutil.Library(t))
	u := b.CreateUpdate("Book")
	root, err := u.From("Book")
	require.NoError(t, err)
	require.NoError(t, u.Set(root.MustGet("title"), b.Parameter(ir.String, "title", nil)))
	require.NoError(t, u.Set(root.MustGet("location.row"), b.Parameter(ir.Int, "row", nil)))
	u.Where(criteria.MustPredicate(b.Equal(root.MustGet("id"), b.Parameter(ir.Int, "id", nil))))

	m, err := Compile(u)
	require.NoError(t, err)
	assert.Equal(t, criteria.KindUpdate, m.Kind)
	require.Len(t, m.Assignments, 2)
	assert.Equal(t, Column{Alias: "book", Name: "location_row", Path: "location.row", Type: ir.Int}, m.Assignments[1].Column)
	assert.Equal(t, []string{"title", "row", "id"}, []string{m.Parameters[0].Name, m.Parameters[1].Name, m.Parameters[2].Name})
	assert.Empty(t, m.Projection)
}

func TestCompile_Errors(t *testing.T) {
	b := criteria.NewBuilder(testutil.Library(t))

	_, err := Compile(b.CreateQuery(ir.Unknown))
	assert.True(t, criteria.IsMissingRoot(err))

	f := newFixture(t)
	other := newFixture(t)
	f.q.Where(f.must(f.b.Equal(other.root.MustGet("title"), f.str("x"))))
	m, err := Compile(f.q)
	assert.True(t, criteria.IsForeignPath(err))
	assert.Nil(t, m)

	g := newFixture(t)
	g.q.Where(strayPredicate{})
	m, err = Compile(g.q)
	assert.True(t, criteria.IsCompilerDefect(err))
	assert.Nil(t, m, "no partial model on defect")

	h := newFixture(t)
	h.q.Where(criteria.Comparison{Op: criteria.OpEquals, Left: h.root.MustGet("title"), Right: strayExpr{h.str("x")}})
	_, err = Compile(h.q)
	assert.True(t, criteria.IsCompilerDefect(err))

	_, err = Compile(nil)
	assert.True(t, criteria.IsCompilerDefect(err))
}

type strayPredicate struct{ criteria.Comparison }

type strayExpr struct{ criteria.Literal }
