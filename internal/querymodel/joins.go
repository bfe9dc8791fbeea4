package querymodel

import (
	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/metadata"
)

// deriveJoin computes the join condition for arena node n reached from
// parent (aliased parentAlias). Column names follow the mapping:
//
//   - owning to-one: parent.<fk> = target.<id>, fk = join_column or <assoc>_<id>
//   - inverse (mapped_by): parent.<id> = target.<fk of the owning side>
//   - many-to-many and unidirectional one-to-many: through a link table with
//     <owner>_<id> and <target>_<id> columns
func deriveJoin(parent metadata.Entity, parentAlias string, n criteria.JoinNode) (Join, error) {
	a := n.Association
	target := n.Target
	j := Join{
		Type:        n.Type,
		Path:        n.Path,
		Association: a.Name,
		Kind:        a.Kind,
		Entity:      target.Name(),
		Table:       target.PersistedName(),
		Alias:       n.Alias,
		ParentAlias: parentAlias,
	}
	if a.Shape == metadata.ShapeList {
		j.OrderColumn = a.OrderColumn
	}

	switch {
	case a.Kind == metadata.Embedded:
		return Join{}, criteria.Defect("embedded association %s cannot be joined", n.Path)

	case a.UsesJoinTable():
		pid, err := identity(parent, n.Path)
		if err != nil {
			return Join{}, err
		}
		tid, err := identity(target, n.Path)
		if err != nil {
			return Join{}, err
		}
		table := a.JoinTable
		if a.MappedBy != "" {
			owning, ok := target.AssociationByName(a.MappedBy)
			if !ok {
				return Join{}, unknownMappedBy(n, target)
			}
			table = owning.JoinTable
			if table == "" {
				table = target.PersistedName() + "_" + parent.PersistedName()
			}
		} else if table == "" {
			table = parent.PersistedName() + "_" + target.PersistedName()
		}
		j.Link = &JoinTable{
			Table:        table,
			Alias:        n.Alias + "_link",
			OwnerColumn:  metadata.Alias(parent.Name()) + "_" + pid.PersistedName,
			TargetColumn: metadata.Alias(target.Name()) + "_" + tid.PersistedName,
		}
		j.ParentColumn = pid.PersistedName
		j.Column = tid.PersistedName

	case a.MappedBy == "":
		tid, err := identity(target, n.Path)
		if err != nil {
			return Join{}, err
		}
		j.ParentColumn = foreignKey(a, tid)
		j.Column = tid.PersistedName

	default:
		owning, ok := target.AssociationByName(a.MappedBy)
		if !ok {
			return Join{}, unknownMappedBy(n, target)
		}
		pid, err := identity(parent, n.Path)
		if err != nil {
			return Join{}, err
		}
		j.ParentColumn = pid.PersistedName
		j.Column = foreignKey(owning, pid)
	}
	return j, nil
}

// foreignKey is the column holding the owning side's reference.
func foreignKey(a metadata.Association, targetID metadata.Property) string {
	if a.JoinColumn != "" {
		return a.JoinColumn
	}
	return a.PersistedName + "_" + targetID.PersistedName
}

func identity(e metadata.Entity, path string) (metadata.Property, error) {
	id, ok := e.Identity()
	if !ok {
		return metadata.Property{}, &criteria.Error{
			Code:    criteria.ErrCodeUnsupported,
			Path:    path,
			Message: "entity " + e.Name() + " declares no identity and cannot be joined",
		}
	}
	return id, nil
}

func unknownMappedBy(n criteria.JoinNode, target metadata.Entity) error {
	return &criteria.Error{
		Code:    criteria.ErrCodeUnknownProperty,
		Path:    n.Path,
		Message: "mapped_by " + n.Association.MappedBy + " is not an association of " + target.Name(),
	}
}

// orderingColumn is the position column of an ordered join.
func orderingColumn(j Join) Column {
	alias := j.Alias
	if j.Link != nil {
		alias = j.Link.Alias
	}
	return Column{Alias: alias, Name: j.OrderColumn, Path: j.Path, Type: ir.Int}
}
