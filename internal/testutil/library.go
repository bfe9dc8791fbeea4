package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/metadata"
)

// LibraryDefinitions returns the entity definitions used across package
// tests: Book, Author, Chapter, Tag and the embeddable Shelf.
//
//	Book    id, title, isbn, price, published?, available, labels[], version
//	        author -> Author (many_to_one)
//	        chapters -> []Chapter (one_to_many, mapped_by book, ordered by position)
//	        tags -> set of Tag (many_to_many through book_tags)
//	        location -> Shelf (embedded)
//	Author  id, name, born?; books -> []Book (one_to_many, mapped_by author)
//	Chapter id, title, position; book -> Book
//	Tag     id, label
//	Shelf   room, row
func LibraryDefinitions() []metadata.Definition {
	id := metadata.Property{Name: "id", Type: ir.Int, Roles: metadata.RoleIdentity}
	return []metadata.Definition{
		{
			Name: "Book",
			Properties: []metadata.Property{
				id,
				{Name: "title", Type: ir.String},
				{Name: "isbn", Type: ir.String},
				{Name: "price", Type: ir.Float},
				{Name: "published", Type: ir.Time, Nullable: true},
				{Name: "available", Type: ir.Bool},
				{Name: "labels", Type: ir.CollectionOf(ir.String)},
				{Name: "version", Type: ir.Int, Roles: metadata.RoleVersion},
			},
			Associations: []metadata.Association{
				{Property: metadata.Property{Name: "author"}, Kind: metadata.ManyToOne, Target: "Author"},
				{
					Property:    metadata.Property{Name: "chapters"},
					Kind:        metadata.OneToMany,
					Shape:       metadata.ShapeList,
					Target:      "Chapter",
					MappedBy:    "book",
					OrderColumn: "position",
				},
				{
					Property:  metadata.Property{Name: "tags"},
					Kind:      metadata.ManyToMany,
					Shape:     metadata.ShapeSet,
					Target:    "Tag",
					JoinTable: "book_tags",
				},
				{Property: metadata.Property{Name: "location"}, Kind: metadata.Embedded, Target: "Shelf"},
			},
		},
		{
			Name: "Author",
			Properties: []metadata.Property{
				id,
				{Name: "name", Type: ir.String},
				{Name: "born", Type: ir.Time, Nullable: true},
			},
			Associations: []metadata.Association{
				{Property: metadata.Property{Name: "books"}, Kind: metadata.OneToMany, Shape: metadata.ShapeList, Target: "Book", MappedBy: "author"},
			},
		},
		{
			Name: "Chapter",
			Properties: []metadata.Property{
				id,
				{Name: "title", Type: ir.String},
				{Name: "position", Type: ir.Int},
			},
			Associations: []metadata.Association{
				{Property: metadata.Property{Name: "book"}, Kind: metadata.ManyToOne, Target: "Book"},
			},
		},
		{
			Name: "Tag",
			Properties: []metadata.Property{
				id,
				{Name: "label", Type: ir.String},
			},
		},
		{
			Name:       "Shelf",
			Embeddable: true,
			Properties: []metadata.Property{
				{Name: "room", Type: ir.String},
				{Name: "row", Type: ir.Int},
			},
		},
	}
}

// Library returns a registry populated with LibraryDefinitions.
func Library(tb testing.TB, opts ...metadata.RegistryOption) *metadata.Registry {
	tb.Helper()
	reg := metadata.NewRegistry(opts...)
	for _, def := range LibraryDefinitions() {
		_, err := reg.Define(def)
		require.NoError(tb, err, "define %s", def.Name)
	}
	return reg
}
