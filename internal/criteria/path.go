package criteria

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/metadata"
)

// JoinType is the join requested for an association.
type JoinType uint8

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
)

func (j JoinType) String() string {
	switch j {
	case JoinInner:
		return "INNER"
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	}
	return fmt.Sprintf("JOIN(%d)", uint8(j))
}

func (j JoinType) MarshalText() ([]byte, error) { return []byte(j.String()), nil }

// ParseJoinType maps inner|left|right|full to a JoinType.
func ParseJoinType(s string) (JoinType, bool) {
	switch s {
	case "", "inner", "INNER":
		return JoinInner, true
	case "left", "LEFT":
		return JoinLeft, true
	case "right", "RIGHT":
		return JoinRight, true
	case "full", "FULL":
		return JoinFull, true
	}
	return 0, false
}

// PropertyPath is a resolved property reached from a root, possibly through
// associations.
//
// Traversal holds indices into the owning Root's join arena, outermost
// first; it is empty for a property of the root entity itself. When the
// path names an association, the association's own index is the last
// element of Traversal.
type PropertyPath struct {
	Owner     uuid.UUID
	Traversal []int
	Property  metadata.Property

	// Path is the dotted declared path, e.g. "author.name".
	Path string
}

func (p PropertyPath) Type() ir.Type { return p.Property.Type }
func (PropertyPath) expressionNode() {}

// Equal reports whether two paths share owner, traversal and terminal property.
func (p PropertyPath) Equal(o PropertyPath) bool {
	return p.Owner == o.Owner && slices.Equal(p.Traversal, o.Traversal) && p.Property == o.Property
}

// IsAssociation reports whether the path ends at an association rather than
// a scalar property.
func (p PropertyPath) IsAssociation() bool {
	return p.Property.Type.Kind == ir.KindEntity
}

// Resolved reports whether the path was produced by a root.
func (p PropertyPath) Resolved() bool {
	return p.Owner != uuid.Nil && p.Property.Name != ""
}

// AssociationPath is a PropertyPath ending at an association, carrying the
// join request and the container shape. LIST shapes need position-preserving
// joins; SET and COLLECTION shapes do not.
type AssociationPath struct {
	PropertyPath

	Association metadata.Association
	Join        JoinType
	Alias       string
	Shape       metadata.Shape
}

// Index returns the association's position in the owning root's arena.
func (a AssociationPath) Index() int {
	if len(a.Traversal) == 0 {
		return -1
	}
	return a.Traversal[len(a.Traversal)-1]
}

// Ordered reports whether the association preserves element positions.
func (a AssociationPath) Ordered() bool {
	return a.Shape == metadata.ShapeList
}
