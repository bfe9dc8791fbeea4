package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/metadata"
	"github.com/roach88/critq/internal/testutil"
)

func bookRoot(t *testing.T) (*Builder, *QuerySpec, *Root) {
	t.Helper()
	b := NewBuilder(testutil.Library(t))
	q := b.CreateQuery(ir.EntityType("Book"))
	root, err := q.From("Book")
	require.NoError(t, err)
	return b, q, root
}

func TestRoot_GetScalar(t *testing.T) {
	_, _, root := bookRoot(t)

	p, err := root.Get("title")
	require.NoError(t, err)
	assert.Equal(t, root.ID(), p.Owner)
	assert.Empty(t, p.Traversal)
	assert.Equal(t, "title", p.Path)
	assert.Equal(t, ir.String, p.Type())
	assert.Empty(t, root.Nodes())
}

func TestRoot_DottedPathRegistersImplicitJoinOnce(t *testing.T) {
	_, _, root := bookRoot(t)

	name := root.MustGet("author.name")
	id := root.MustGet("author.id")
	again := root.MustGet("author.name")

	nodes := root.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, JoinNode{
		Parent:      -1,
		Association: nodes[0].Association,
		Target:      nodes[0].Target,
		Type:        JoinInner,
		Alias:       "book_author",
		Path:        "author",
	}, nodes[0])
	assert.Equal(t, "Author", nodes[0].Target.Name())

	assert.Equal(t, []int{0}, name.Traversal)
	assert.Equal(t, []int{0}, id.Traversal)
	assert.True(t, name.Equal(again))
	assert.False(t, name.Equal(id))
}

func TestRoot_NestedTraversal(t *testing.T) {
	_, _, root := bookRoot(t)

	p := root.MustGet("author.books.title")
	require.Len(t, p.Traversal, 2)

	inner, ok := root.Node(p.Traversal[1])
	require.True(t, ok)
	assert.Equal(t, p.Traversal[0], inner.Parent)
	assert.Equal(t, "book_author_books", inner.Alias)
	assert.Equal(t, "author.books", inner.Path)
}

func TestRoot_JoinUpgradesImplicitNode(t *testing.T) {
	_, _, root := bookRoot(t)

	root.MustGet("author.name")
	join, err := root.Join("author", JoinLeft, "a")
	require.NoError(t, err)

	assert.Equal(t, JoinLeft, join.Join)
	assert.Equal(t, "a", join.Alias)
	assert.Equal(t, 0, join.Index())
	require.Len(t, root.Nodes(), 1)
	assert.True(t, root.Nodes()[0].Explicit)

	// Paths obtained after the join see the same node.
	assert.Equal(t, []int{0}, root.MustGet("author.name").Traversal)
}

func TestRoot_JoinCannotRenameIssuedPath(t *testing.T) {
	_, _, root := bookRoot(t)

	author, err := root.Association("author")
	require.NoError(t, err)
	assert.Equal(t, "book_author", author.Alias)

	_, err = root.Join("author", JoinLeft, "a")
	assert.True(t, IsInvalidOperand(err), "renaming would leave author with a stale alias, got %v", err)
	assert.Equal(t, "book_author", root.Nodes()[0].Alias)

	// Keeping the alias still upgrades the join type.
	join, err := root.Join("author", JoinLeft, "")
	require.NoError(t, err)
	assert.Equal(t, author.Alias, join.Alias)
	assert.Equal(t, JoinLeft, join.Join)
}

func TestRoot_JoinConflicts(t *testing.T) {
	_, _, root := bookRoot(t)

	_, err := root.Join("author", JoinLeft, "")
	require.NoError(t, err)

	_, err = root.Join("author", JoinInner, "")
	assert.True(t, IsInvalidOperand(err), "join type conflict")

	_, err = root.Join("chapters", JoinInner, "book_author")
	assert.True(t, IsInvalidOperand(err), "alias conflict")

	_, err = root.Join("chapters", JoinInner, "book")
	assert.True(t, IsInvalidOperand(err), "root alias conflict")

	_, err = root.Join("title", JoinInner, "")
	assert.True(t, IsInvalidOperand(err), "scalar join")

	same, err := root.Join("author", JoinLeft, "")
	require.NoError(t, err)
	assert.Equal(t, "book_author", same.Alias)
}

func TestRoot_AssociationShapes(t *testing.T) {
	_, _, root := bookRoot(t)

	tests := []struct {
		path    string
		shape   metadata.Shape
		ordered bool
	}{
		{"author", metadata.ShapeSingle, false},
		{"chapters", metadata.ShapeList, true},
		{"tags", metadata.ShapeSet, false},
		{"location", metadata.ShapeSingle, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			a, err := root.Association(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, a.Shape)
			assert.Equal(t, tt.ordered, a.Ordered())
			assert.True(t, a.IsAssociation())
		})
	}

	_, err := root.Association("title")
	assert.True(t, IsInvalidOperand(err))
}

func TestRoot_EmbeddedNode(t *testing.T) {
	_, _, root := bookRoot(t)

	p := root.MustGet("location.room")
	n, ok := root.Node(p.Traversal[0])
	require.True(t, ok)
	assert.True(t, n.Embedded())
	assert.Equal(t, ir.String, p.Type())
}

func TestRoot_GetFrom(t *testing.T) {
	b, _, root := bookRoot(t)

	author, err := root.Join("author", JoinLeft, "")
	require.NoError(t, err)
	name, err := root.GetFrom(author, "name")
	require.NoError(t, err)
	assert.Equal(t, "author.name", name.Path)
	assert.Equal(t, []int{author.Index()}, name.Traversal)

	other, err := b.CreateQuery(ir.Int).From("Book")
	require.NoError(t, err)
	_, err = other.GetFrom(author, "name")
	assert.True(t, IsForeignPath(err))
}

func TestRoot_Identity(t *testing.T) {
	_, _, root := bookRoot(t)

	id, err := root.Identity()
	require.NoError(t, err)
	assert.Equal(t, "id", id.Path)

	b := NewBuilder(testutil.Library(t))
	shelfRoot, err := b.CreateQuery(ir.Unknown).From("Shelf")
	require.NoError(t, err)
	_, err = shelfRoot.Identity()
	assert.True(t, IsUnknownProperty(err))
}

func TestRoot_UnknownProperty(t *testing.T) {
	_, _, root := bookRoot(t)

	p, err := root.Get("nonexistent")
	assert.True(t, IsUnknownProperty(err))
	assert.False(t, p.Resolved())
	assert.Empty(t, root.Nodes())
}
