package criteria

import (
	"strings"

	"github.com/roach88/critq/internal/metadata"
)

// EntityLookup finds entity metadata by declared name.
// *metadata.Registry satisfies it.
type EntityLookup interface {
	Lookup(name string) (metadata.Entity, error)
}

// Resolution is the outcome of resolving one path segment.
type Resolution struct {
	// Property is the terminal property, or the property view of an association.
	Property metadata.Property

	// Association is set when the segment names an association.
	Association *metadata.Association

	// Target is the entity reached through Association.
	Target metadata.Entity

	// Traversal is path_so_far, extended with Association when set.
	Traversal []metadata.Association
}

// IsAssociation reports whether the resolved segment is an association.
func (r Resolution) IsAssociation() bool {
	return r.Association != nil
}

// Shape is the container shape of the resolved association, or ShapeSingle.
func (r Resolution) Shape() metadata.Shape {
	if r.Association == nil {
		return metadata.ShapeSingle
	}
	return r.Association.Shape
}

// Resolve resolves name against entity, which was reached by following
// pathSoFar from the root. It has no side effects and never mutates pathSoFar.
//
// Associations take precedence over scalar properties of the same name.
// An unknown name fails with UNKNOWN_PROPERTY.
func Resolve(lookup EntityLookup, entity metadata.Entity, pathSoFar []metadata.Association, name string) (Resolution, error) {
	traversal := make([]metadata.Association, len(pathSoFar), len(pathSoFar)+1)
	copy(traversal, pathSoFar)

	if assoc, ok := entity.AssociationByName(name); ok {
		target, err := lookup.Lookup(assoc.Target)
		if err != nil {
			return Resolution{}, &Error{
				Code:    ErrCodeUnknownProperty,
				Path:    dotted(pathSoFar, name),
				Message: "association target " + assoc.Target + " cannot be resolved",
				Err:     err,
			}
		}
		return Resolution{
			Property:    assoc.Property,
			Association: &assoc,
			Target:      target,
			Traversal:   append(traversal, assoc),
		}, nil
	}

	if prop, ok := entity.PropertyByName(name); ok {
		return Resolution{Property: prop, Traversal: traversal}, nil
	}

	return Resolution{}, &Error{
		Code:    ErrCodeUnknownProperty,
		Path:    dotted(pathSoFar, name),
		Message: "no property " + name + " on entity " + entity.Name(),
	}
}

// ResolvePath resolves a dotted path from root, one segment at a time.
// Every segment except the last must name an association.
func ResolvePath(lookup EntityLookup, root metadata.Entity, path string) (Resolution, error) {
	if path == "" {
		return Resolution{}, &Error{Code: ErrCodeUnknownProperty, Message: "empty property path"}
	}
	segments := strings.Split(path, ".")
	entity := root
	var traversal []metadata.Association
	var res Resolution
	for i, seg := range segments {
		var err error
		res, err = Resolve(lookup, entity, traversal, seg)
		if err != nil {
			return Resolution{}, err
		}
		if i < len(segments)-1 {
			if !res.IsAssociation() {
				return Resolution{}, &Error{
					Code:    ErrCodeUnknownProperty,
					Path:    strings.Join(segments[:i+2], "."),
					Message: seg + " is not an association and cannot be traversed",
				}
			}
			entity = res.Target
		}
		traversal = res.Traversal
	}
	return res, nil
}

func dotted(assocs []metadata.Association, name string) string {
	parts := make([]string, 0, len(assocs)+1)
	for _, a := range assocs {
		parts = append(parts, a.Name)
	}
	return strings.Join(append(parts, name), ".")
}
