package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/querymodel"
	"github.com/roach88/critq/internal/rewrite"
	"github.com/roach88/critq/internal/testutil"
)

type library struct {
	b    *criteria.Builder
	q    *criteria.QuerySpec
	root *criteria.Root
}

func newLibrary(t *testing.T) library {
	t.Helper()
	b := criteria.NewBuilder(testutil.Library(t))
	q := b.CreateQuery(ir.EntityType("Book"))
	root, err := q.From("Book")
	require.NoError(t, err)
	return library{b: b, q: q, root: root}
}

func (l library) path(p string) criteria.PropertyPath { return l.root.MustGet(p) }

func (l library) str(s string) criteria.Literal { return l.b.Literal(ir.NewIRString(s)) }

func (l library) num(n int64) criteria.Literal { return l.b.Literal(ir.NewIRInt(n)) }

func must(p criteria.Predicate, err error) criteria.Predicate { return criteria.MustPredicate(p, err) }

// render compiles stmt (after rewriting literals when bind is set) and
// renders it for d.
func render(t *testing.T, stmt criteria.Statement, bind bool, d Dialect, opts ...Option) (*Statement, error) {
	t.Helper()
	if bind {
		var err error
		stmt, err = rewrite.Apply(stmt)
		require.NoError(t, err)
	}
	m, err := querymodel.Compile(stmt)
	require.NoError(t, err)
	return New(d, opts...).Render(m)
}

func paramNames(s *Statement) []string {
	names := make([]string, len(s.Bindings))
	for i, b := range s.Bindings {
		names[i] = b.Parameter.Name
	}
	return names
}

func TestRender_Dialects(t *testing.T) {
	const authorJoin = " INNER JOIN authors AS book_author ON book.author_id = book_author.id"

	tests := []struct {
		name   string
		bind   bool
		build  func(l library) criteria.Statement
		want   map[Dialect]string
		params map[Dialect][]string
	}{
		{
			name: "starts with and joined equality",
			bind: true,
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("title")).Where(l.b.And(
					must(l.b.StartsWith(l.path("title"), l.str("Foo"))),
					must(l.b.Equal(l.path("author.name"), l.str("X"))),
				))
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.title FROM books AS book" + authorJoin + " WHERE book.title LIKE $1 || '%' AND book_author.name = $2",
				MySQL:    "SELECT book.title FROM books AS book" + authorJoin + " WHERE book.title LIKE CONCAT(?, '%') AND book_author.name = ?",
				SQLite:   "SELECT book.title FROM books AS book" + authorJoin + " WHERE book.title LIKE ? || '%' AND book_author.name = ?",
			},
			params: map[Dialect][]string{Postgres: {"p1", "p2"}, MySQL: {"p1", "p2"}, SQLite: {"p1", "p2"}},
		},
		{
			name: "collapsed IN list",
			bind: true,
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("id")).Where(must(l.b.In(l.path("isbn"), l.str("111"), l.str("333"))))
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.id FROM books AS book WHERE book.isbn = ANY($1)",
				MySQL:    "SELECT book.id FROM books AS book WHERE book.isbn IN (?, ?)",
				SQLite:   "SELECT book.id FROM books AS book WHERE book.isbn IN (?, ?)",
			},
			params: map[Dialect][]string{Postgres: {"p1"}, MySQL: {"p1", "p1"}, SQLite: {"p1", "p1"}},
		},
		{
			name: "negated disjunction with inline literals",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("id")).Where(l.b.Not(l.b.Or(
					must(l.b.IsTrue(l.path("available"))),
					must(l.b.Equal(l.path("isbn"), l.str("222"))),
				)))
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.id FROM books AS book WHERE NOT (book.available IS TRUE OR book.isbn = '222')",
				MySQL:    "SELECT book.id FROM books AS book WHERE NOT (book.available IS TRUE OR book.isbn = '222')",
				SQLite:   "SELECT book.id FROM books AS book WHERE NOT (book.available IS TRUE OR book.isbn = '222')",
			},
		},
		{
			name: "nested groups keep precedence",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("id")).Where(
					l.b.Or(
						must(l.b.Equal(l.path("isbn"), l.str("1"))),
						must(l.b.Equal(l.path("isbn"), l.str("2"))),
					),
					must(l.b.IsNull(l.path("published"))),
				)
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.id FROM books AS book WHERE (book.isbn = '1' OR book.isbn = '2') AND book.published IS NULL",
				MySQL:    "SELECT book.id FROM books AS book WHERE (book.isbn = '1' OR book.isbn = '2') AND book.published IS NULL",
				SQLite:   "SELECT book.id FROM books AS book WHERE (book.isbn = '1' OR book.isbn = '2') AND book.published IS NULL",
			},
		},
		{
			name: "collection emptiness renders EXISTS",
			build: func(l library) criteria.Statement {
				chapters, err := l.root.Association("chapters")
				if err != nil {
					panic(err)
				}
				return l.q.Select(l.path("id")).Where(must(l.b.IsEmpty(chapters.PropertyPath)))
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.id FROM books AS book WHERE NOT EXISTS (SELECT 1 FROM chapters AS book_chapters_rel WHERE book_chapters_rel.book_id = book.id)",
				MySQL:    "SELECT book.id FROM books AS book WHERE NOT EXISTS (SELECT 1 FROM chapters AS book_chapters_rel WHERE book_chapters_rel.book_id = book.id)",
				SQLite:   "SELECT book.id FROM books AS book WHERE NOT EXISTS (SELECT 1 FROM chapters AS book_chapters_rel WHERE book_chapters_rel.book_id = book.id)",
			},
		},
		{
			name: "many-to-many through link table",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("id")).Where(must(l.b.Equal(l.path("tags.label"), l.str("db"))))
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.id FROM books AS book INNER JOIN book_tags AS book_tags_link ON book.id = book_tags_link.book_id INNER JOIN tags AS book_tags ON book_tags_link.tag_id = book_tags.id WHERE book_tags.label = 'db'",
				MySQL:    "SELECT book.id FROM books AS book INNER JOIN book_tags AS book_tags_link ON book.id = book_tags_link.book_id INNER JOIN tags AS book_tags ON book_tags_link.tag_id = book_tags.id WHERE book_tags.label = 'db'",
				SQLite:   "SELECT book.id FROM books AS book INNER JOIN book_tags AS book_tags_link ON book.id = book_tags_link.book_id INNER JOIN tags AS book_tags ON book_tags_link.tag_id = book_tags.id WHERE book_tags.label = 'db'",
			},
		},
		{
			name: "ordered join with page",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("title"), l.path("chapters.title")).
					Where(must(l.b.GreaterThan(l.path("chapters.position"), l.num(0)))).
					Limit(5).
					Offset(10)
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.title, book_chapters.title FROM books AS book INNER JOIN chapters AS book_chapters ON book.id = book_chapters.book_id WHERE book_chapters.position > 0 ORDER BY book_chapters.position ASC LIMIT 5 OFFSET 10",
				MySQL:    "SELECT book.title, book_chapters.title FROM books AS book INNER JOIN chapters AS book_chapters ON book.id = book_chapters.book_id WHERE book_chapters.position > 0 ORDER BY book_chapters.position ASC LIMIT 5 OFFSET 10",
				SQLite:   "SELECT book.title, book_chapters.title FROM books AS book INNER JOIN chapters AS book_chapters ON book.id = book_chapters.book_id WHERE book_chapters.position > 0 ORDER BY book_chapters.position ASC LIMIT 5 OFFSET 10",
			},
		},
		{
			name: "count over ordered join",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.b.CountAll()).Where(must(l.b.Equal(l.path("chapters.title"), l.str("Intro"))))
			},
			want: map[Dialect]string{
				Postgres: "SELECT COUNT(*) FROM books AS book INNER JOIN chapters AS book_chapters ON book.id = book_chapters.book_id WHERE book_chapters.title = 'Intro'",
				MySQL:    "SELECT COUNT(*) FROM books AS book INNER JOIN chapters AS book_chapters ON book.id = book_chapters.book_id WHERE book_chapters.title = 'Intro'",
				SQLite:   "SELECT COUNT(*) FROM books AS book INNER JOIN chapters AS book_chapters ON book.id = book_chapters.book_id WHERE book_chapters.title = 'Intro'",
			},
		},
		{
			name: "distinct over ordered join",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("title")).Distinct().Where(must(l.b.Equal(l.path("chapters.title"), l.str("Intro"))))
			},
			want: map[Dialect]string{
				Postgres: "SELECT DISTINCT book.title FROM books AS book INNER JOIN chapters AS book_chapters ON book.id = book_chapters.book_id WHERE book_chapters.title = 'Intro'",
				MySQL:    "SELECT DISTINCT book.title FROM books AS book INNER JOIN chapters AS book_chapters ON book.id = book_chapters.book_id WHERE book_chapters.title = 'Intro'",
				SQLite:   "SELECT DISTINCT book.title FROM books AS book INNER JOIN chapters AS book_chapters ON book.id = book_chapters.book_id WHERE book_chapters.title = 'Intro'",
			},
		},
		{
			name: "array contains",
			bind: true,
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("id")).Where(must(l.b.ArrayContains(l.path("labels"), l.str("go"))))
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.id FROM books AS book WHERE $1 = ANY(book.labels)",
				MySQL:    "SELECT book.id FROM books AS book WHERE JSON_CONTAINS(book.labels, JSON_ARRAY(?))",
				SQLite:   "SELECT book.id FROM books AS book WHERE EXISTS (SELECT 1 FROM json_each(book.labels) WHERE json_each.value = ?)",
			},
			params: map[Dialect][]string{Postgres: {"p1"}, MySQL: {"p1"}, SQLite: {"p1"}},
		},
		{
			name: "ignore case",
			bind: true,
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("id")).Where(
					must(l.b.EqualIgnoreCase(l.path("title"), l.str("foo"))),
					must(l.b.ILike(l.path("isbn"), l.str("9%"))),
				)
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.id FROM books AS book WHERE LOWER(book.title) = LOWER($1) AND book.isbn ILIKE $2",
				MySQL:    "SELECT book.id FROM books AS book WHERE LOWER(book.title) = LOWER(?) AND LOWER(book.isbn) LIKE LOWER(?)",
				SQLite:   "SELECT book.id FROM books AS book WHERE LOWER(book.title) = LOWER(?) AND LOWER(book.isbn) LIKE LOWER(?)",
			},
			params: map[Dialect][]string{Postgres: {"p1", "p2"}, MySQL: {"p1", "p2"}, SQLite: {"p1", "p2"}},
		},
		{
			name: "aggregate with having",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("author.name"), l.b.CountAll()).
					GroupBy(l.path("author.name")).
					Having(must(l.b.GreaterThan(l.b.CountAll(), l.num(1))))
			},
			want: map[Dialect]string{
				Postgres: "SELECT book_author.name, COUNT(*) FROM books AS book" + authorJoin + " GROUP BY book_author.name HAVING COUNT(*) > 1",
				MySQL:    "SELECT book_author.name, COUNT(*) FROM books AS book" + authorJoin + " GROUP BY book_author.name HAVING COUNT(*) > 1",
				SQLite:   "SELECT book_author.name, COUNT(*) FROM books AS book" + authorJoin + " GROUP BY book_author.name HAVING COUNT(*) > 1",
			},
		},
		{
			name: "subquery shares the placeholder sequence",
			bind: true,
			build: func(l library) criteria.Statement {
				sub := l.q.Subquery(ir.Int)
				author, err := sub.From("Author")
				if err != nil {
					panic(err)
				}
				sub.Select(author.MustGet("id")).Where(must(l.b.Equal(author.MustGet("name"), l.str("Y"))))
				return l.q.Select(l.path("id")).Where(
					must(l.b.InCollection(l.path("author.id"), sub.Expression())),
					must(l.b.GreaterThan(l.path("price"), l.b.Literal(ir.NewIRFloat(9.5)))),
				)
			},
			want: map[Dialect]string{
				Postgres: "SELECT book.id FROM books AS book" + authorJoin + " WHERE book_author.id IN (SELECT author_1.id FROM authors AS author_1 WHERE author_1.name = $1) AND book.price > $2",
				MySQL:    "SELECT book.id FROM books AS book" + authorJoin + " WHERE book_author.id IN (SELECT author_1.id FROM authors AS author_1 WHERE author_1.name = ?) AND book.price > ?",
				SQLite:   "SELECT book.id FROM books AS book" + authorJoin + " WHERE book_author.id IN (SELECT author_1.id FROM authors AS author_1 WHERE author_1.name = ?) AND book.price > ?",
			},
			params: map[Dialect][]string{Postgres: {"p1", "p2"}, MySQL: {"p1", "p2"}, SQLite: {"p1", "p2"}},
		},
		{
			name: "update qualifies by table name",
			bind: true,
			build: func(l library) criteria.Statement {
				u := l.b.CreateUpdate("Book")
				root, err := u.From("Book")
				if err != nil {
					panic(err)
				}
				if err := u.Set(root.MustGet("title"), l.str("New")); err != nil {
					panic(err)
				}
				return u.Where(must(l.b.Equal(root.MustGet("id"), l.num(2))))
			},
			want: map[Dialect]string{
				Postgres: "UPDATE books SET title = $1 WHERE books.id = $2",
				MySQL:    "UPDATE books SET title = ? WHERE books.id = ?",
				SQLite:   "UPDATE books SET title = ? WHERE books.id = ?",
			},
			params: map[Dialect][]string{Postgres: {"p1", "p2"}, MySQL: {"p1", "p2"}, SQLite: {"p1", "p2"}},
		},
		{
			name: "delete",
			build: func(l library) criteria.Statement {
				d := l.b.CreateDelete("Book")
				root, err := d.From("Book")
				if err != nil {
					panic(err)
				}
				return d.Where(must(l.b.Equal(root.MustGet("isbn"), l.str("O'Reilly"))))
			},
			want: map[Dialect]string{
				Postgres: "DELETE FROM books WHERE books.isbn = 'O''Reilly'",
				MySQL:    "DELETE FROM books WHERE books.isbn = 'O''Reilly'",
				SQLite:   "DELETE FROM books WHERE books.isbn = 'O''Reilly'",
			},
		},
	}

	for _, tt := range tests {
		for _, d := range Dialects {
			t.Run(tt.name+"/"+d.String(), func(t *testing.T) {
				stmt, err := render(t, tt.build(newLibrary(t)), tt.bind, d)
				require.NoError(t, err)
				assert.Equal(t, tt.want[d], stmt.SQL)
				if tt.params != nil {
					assert.Equal(t, tt.params[d], paramNames(stmt))
				} else {
					assert.Empty(t, stmt.Bindings)
				}
				if d != SQLite {
					assert.NoError(t, Check(d, stmt.SQL), "rendered text must parse")
				}
			})
		}
	}
}

func TestRender_Args(t *testing.T) {
	l := newLibrary(t)
	l.q.Where(l.b.And(
		must(l.b.StartsWith(l.path("title"), l.str("Foo"))),
		must(l.b.In(l.path("isbn"), l.str("111"), l.str("333"))),
	))

	t.Run("values in placeholder order", func(t *testing.T) {
		stmt, err := render(t, l.q, true, MySQL)
		require.NoError(t, err)
		args, err := stmt.Args(nil)
		require.NoError(t, err)
		assert.Equal(t, []any{"Foo", "111", "333"}, args)
	})

	t.Run("postgres binds collections as one array", func(t *testing.T) {
		stmt, err := render(t, l.q, true, Postgres)
		require.NoError(t, err)
		args, err := stmt.Args(nil)
		require.NoError(t, err)
		assert.Equal(t, []any{"Foo", []string{"111", "333"}}, args)
	})

	t.Run("overrides by name", func(t *testing.T) {
		stmt, err := render(t, l.q, true, SQLite)
		require.NoError(t, err)
		args, err := stmt.Args(map[string]ir.IRValue{"p1": ir.NewIRString("Bar")})
		require.NoError(t, err)
		assert.Equal(t, "Bar", args[0])
	})

	t.Run("expanded collection shorter than rendered", func(t *testing.T) {
		stmt, err := render(t, l.q, true, SQLite)
		require.NoError(t, err)
		_, err = stmt.Args(map[string]ir.IRValue{"p2": ir.NewIRArray(ir.NewIRString("111"))})
		assert.ErrorContains(t, err, "has 1 elements")
	})
}

func TestRender_UnboundParameters(t *testing.T) {
	l := newLibrary(t)
	l.q.Where(
		must(l.b.Equal(l.path("title"), l.b.Parameter(ir.String, "title", nil))),
		must(l.b.Equal(l.path("isbn"), l.b.Parameter(ir.String, "isbn", nil))),
	)
	stmt, err := render(t, l.q, false, Postgres)
	require.NoError(t, err)

	_, err = stmt.Args(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"title"`)
	assert.Contains(t, err.Error(), `"isbn"`)

	args, err := stmt.Args(map[string]ir.IRValue{"title": ir.NewIRString("A"), "isbn": ir.NewIRString("1")})
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "1"}, args)
}

func TestRender_CollectionParameter(t *testing.T) {
	build := func(value ir.IRValue) criteria.Statement {
		l := newLibrary(t)
		isbns := l.b.Parameter(ir.CollectionOf(ir.String), "isbns", value)
		return l.q.Select(l.path("id")).Where(must(l.b.InCollection(l.path("isbn"), isbns)))
	}

	stmt, err := render(t, build(nil), false, Postgres)
	require.NoError(t, err)
	assert.Equal(t, "SELECT book.id FROM books AS book WHERE book.isbn = ANY($1)", stmt.SQL)

	_, err = render(t, build(nil), false, MySQL)
	assert.True(t, criteria.IsUnsupported(err), "unbound collection cannot be expanded")

	stmt, err = render(t, build(ir.NewIRArray()), false, SQLite)
	require.NoError(t, err)
	assert.Equal(t, "SELECT book.id FROM books AS book WHERE 1 = 0", stmt.SQL)
}

func TestRender_StableOrder(t *testing.T) {
	tests := []struct {
		name  string
		build func(l library) criteria.Statement
		want  string
	}{
		{
			name:  "appended",
			build: func(l library) criteria.Statement { return l.q.Select(l.path("id")) },
			want:  "SELECT book.id FROM books AS book ORDER BY book.id ASC",
		},
		{
			name: "after explicit orderings",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("id")).OrderBy(criteria.Desc(l.path("price")))
			},
			want: "SELECT book.id FROM books AS book ORDER BY book.price DESC, book.id ASC",
		},
		{
			name: "not duplicated",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.path("id")).OrderBy(criteria.Desc(l.path("id")))
			},
			want: "SELECT book.id FROM books AS book ORDER BY book.id DESC",
		},
		{
			name: "skipped for aggregates",
			build: func(l library) criteria.Statement {
				return l.q.Select(l.b.CountAll())
			},
			want: "SELECT COUNT(*) FROM books AS book",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := render(t, tt.build(newLibrary(t)), false, SQLite, WithStableOrder("id"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, stmt.SQL)
		})
	}
}

func TestRender_Unsupported(t *testing.T) {
	t.Run("delete with join", func(t *testing.T) {
		l := newLibrary(t)
		d := l.b.CreateDelete("Book")
		root, err := d.From("Book")
		require.NoError(t, err)
		d.Where(must(l.b.Equal(root.MustGet("author.name"), l.str("X"))))

		_, err = render(t, d, false, Postgres)
		assert.True(t, criteria.IsUnsupported(err))
	})

	t.Run("full join on mysql", func(t *testing.T) {
		l := newLibrary(t)
		_, err := l.root.Join("author", criteria.JoinFull, "")
		require.NoError(t, err)
		l.q.Select(l.path("id"))

		_, err = render(t, l.q, false, MySQL)
		assert.True(t, criteria.IsUnsupported(err))

		stmt, err := render(t, l.q, false, Postgres)
		require.NoError(t, err)
		assert.Contains(t, stmt.SQL, "FULL JOIN authors AS book_author")
	})

	t.Run("nil model", func(t *testing.T) {
		_, err := New(Postgres).Render(nil)
		assert.True(t, criteria.IsCompilerDefect(err))
	})
}

func TestDialect_Page(t *testing.T) {
	tests := []struct {
		limit, offset int
		want          map[Dialect]string
	}{
		{0, 0, map[Dialect]string{Postgres: "", MySQL: "", SQLite: ""}},
		{5, 0, map[Dialect]string{Postgres: " LIMIT 5", MySQL: " LIMIT 5", SQLite: " LIMIT 5"}},
		{0, 10, map[Dialect]string{Postgres: " OFFSET 10", MySQL: " LIMIT 18446744073709551615 OFFSET 10", SQLite: " LIMIT -1 OFFSET 10"}},
	}
	for _, tt := range tests {
		for _, d := range Dialects {
			assert.Equal(t, tt.want[d], d.page(tt.limit, tt.offset), "%s limit=%d offset=%d", d, tt.limit, tt.offset)
		}
	}
}

func TestDialect_Quote(t *testing.T) {
	assert.Equal(t, "title", Postgres.quote("title"))
	assert.Equal(t, `"order"`, Postgres.quote("order"))
	assert.Equal(t, "`order`", MySQL.quote("order"))
	assert.Equal(t, `"Title"`, SQLite.quote("Title"))
	assert.Equal(t, `"a""b"`, Postgres.quote(`a"b`))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"postgresql": Postgres, "MySQL": MySQL, "sqlite3": SQLite} {
		got, err := ParseDialect(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDialect("oracle")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(Postgres, "SELECT book.id FROM books AS book WHERE book.id = $1"))
	assert.Error(t, Check(Postgres, "SELECT FROM WHERE"))
	assert.NoError(t, Check(MySQL, "SELECT book.id FROM books AS book WHERE book.id = ?"))
	assert.Error(t, Check(MySQL, "SELECT FROM WHERE"))
	assert.True(t, criteria.IsUnsupported(Check(SQLite, "SELECT 1")))
}
