package metadata

import (
	"fmt"

	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"
)

// NamingStrategy derives persisted names for entities and properties that
// do not declare one explicitly.
type NamingStrategy interface {
	Table(entity string) string
	Column(property string) string
}

// UnderscorePlural maps Book to books and authorName to author_name.
type UnderscorePlural struct{}

func (UnderscorePlural) Table(entity string) string {
	return inflection.Plural(strcase.ToSnake(entity))
}

func (UnderscorePlural) Column(property string) string {
	return strcase.ToSnake(property)
}

// Underscore maps BookTag to book_tag without pluralising.
type Underscore struct{}

func (Underscore) Table(entity string) string {
	return strcase.ToSnake(entity)
}

func (Underscore) Column(property string) string {
	return strcase.ToSnake(property)
}

// Raw keeps declared names unchanged.
type Raw struct{}

func (Raw) Table(entity string) string     { return entity }
func (Raw) Column(property string) string { return property }

// Naming strategy identifiers accepted by ParseNaming.
const (
	NamingUnderscorePlural = "underscore_plural"
	NamingUnderscore       = "underscore"
	NamingRaw              = "raw"
)

// ParseNaming returns the strategy registered under name.
func ParseNaming(name string) (NamingStrategy, error) {
	switch name {
	case "", NamingUnderscorePlural:
		return UnderscorePlural{}, nil
	case NamingUnderscore:
		return Underscore{}, nil
	case NamingRaw:
		return Raw{}, nil
	}
	return nil, fmt.Errorf("unknown naming strategy %q (want %s, %s or %s)",
		name, NamingUnderscorePlural, NamingUnderscore, NamingRaw)
}

// Alias derives a query alias from a declared entity or path name.
// "Book" → "book", "author.address" → "author_address".
func Alias(name string) string {
	return strcase.ToSnake(name)
}
