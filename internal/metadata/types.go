package metadata

import (
	"fmt"

	"github.com/roach88/critq/internal/ir"
)

// AssociationKind is the cardinality of a relationship between two entities.
type AssociationKind uint8

const (
	ManyToOne AssociationKind = iota
	OneToOne
	OneToMany
	ManyToMany
	Embedded
)

var associationKindNames = [...]string{
	ManyToOne:  "many_to_one",
	OneToOne:   "one_to_one",
	OneToMany:  "one_to_many",
	ManyToMany: "many_to_many",
	Embedded:   "embedded",
}

func (k AssociationKind) String() string {
	if int(k) < len(associationKindNames) {
		return associationKindNames[k]
	}
	return fmt.Sprintf("association_kind(%d)", uint8(k))
}

func (k AssociationKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *AssociationKind) UnmarshalText(data []byte) error {
	parsed, ok := ParseAssociationKind(string(data))
	if !ok {
		return fmt.Errorf("unknown association kind %q", data)
	}
	*k = parsed
	return nil
}

// ParseAssociationKind maps a declared kind name to an AssociationKind.
func ParseAssociationKind(s string) (AssociationKind, bool) {
	for i, name := range associationKindNames {
		if name == s {
			return AssociationKind(i), true
		}
	}
	return 0, false
}

// Shape is the container shape of an association.
// LIST associations need position-preserving joins; SET and COLLECTION do not.
type Shape uint8

const (
	ShapeSingle Shape = iota
	ShapeList
	ShapeSet
	ShapeCollection
)

var shapeNames = [...]string{
	ShapeSingle:     "single",
	ShapeList:       "list",
	ShapeSet:        "set",
	ShapeCollection: "collection",
}

func (s Shape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Shape) UnmarshalText(data []byte) error {
	parsed, ok := ParseShape(string(data))
	if !ok {
		return fmt.Errorf("unknown shape %q", data)
	}
	*s = parsed
	return nil
}

// ParseShape maps a declared shape name to a Shape.
func ParseShape(s string) (Shape, bool) {
	for i, name := range shapeNames {
		if name == s {
			return Shape(i), true
		}
	}
	return 0, false
}

// Role marks a property as playing a unique part in the entity mapping.
type Role uint8

const (
	RoleIdentity Role = 1 << iota
	RoleVersion
	RolePartition
)

// Has reports whether r includes role.
func (r Role) Has(role Role) bool {
	return r&role != 0
}

// Property is a persistent attribute of an entity.
type Property struct {
	// Name is the declared (code-level) name used in criteria paths.
	Name string `json:"name"`

	// PersistedName is the column or field name in the store.
	PersistedName string `json:"persisted_name"`

	Type     ir.Type `json:"type"`
	Roles    Role    `json:"roles,omitempty"`
	Nullable bool    `json:"nullable,omitempty"`
}

// Association is a property whose value is another entity (or a collection of them).
type Association struct {
	Property

	Kind   AssociationKind `json:"kind"`
	Shape  Shape           `json:"shape"`
	Target string          `json:"target"`

	// MappedBy names the property on Target that owns the relationship.
	MappedBy string `json:"mapped_by,omitempty"`

	// JoinColumn overrides the foreign key column name.
	JoinColumn string `json:"join_column,omitempty"`

	// JoinTable overrides the link table name for many-to-many and
	// unidirectional one-to-many associations.
	JoinTable string `json:"join_table,omitempty"`

	// OrderColumn holds element positions for LIST associations.
	OrderColumn string `json:"order_column,omitempty"`
}

// IsToMany reports whether the association yields a collection.
func (a Association) IsToMany() bool {
	return a.Kind == OneToMany || a.Kind == ManyToMany
}

// IsOwning reports whether the owner's table holds the foreign key.
func (a Association) IsOwning() bool {
	switch a.Kind {
	case ManyToOne:
		return true
	case OneToOne:
		return a.MappedBy == ""
	}
	return false
}

// UsesJoinTable reports whether the association is stored in a link table.
func (a Association) UsesJoinTable() bool {
	return a.Kind == ManyToMany || (a.Kind == OneToMany && a.MappedBy == "")
}
