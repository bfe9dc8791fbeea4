package metadata

import (
	"fmt"

	"github.com/roach88/critq/internal/ir"
)

// Entity is the metadata provider contract consumed by criteria resolution.
//
// Implementations must be safe for unsynchronized concurrent reads once
// constructed; PersistentEntity is immutable after NewPersistentEntity returns.
type Entity interface {
	// Name is the declared entity name used by criteria builders.
	Name() string

	// PersistedName is the table or collection name.
	PersistedName() string

	Identity() (Property, bool)
	Version() (Property, bool)
	Partition() (Property, bool)

	// PersistentProperties returns the non-association properties in declaration order.
	PersistentProperties() []Property

	// Associations returns the associations in declaration order.
	Associations() []Association

	// PropertyByName finds a property or the property view of an association.
	PropertyByName(name string) (Property, bool)

	// AssociationByName finds an association.
	AssociationByName(name string) (Association, bool)

	// Embeddable reports whether the entity only exists inside an owner.
	Embeddable() bool
}

// Definition declares an entity before naming and validation are applied.
type Definition struct {
	Name          string
	PersistedName string
	Embeddable    bool
	Properties    []Property
	Associations  []Association
}

// PersistentEntity is the immutable Entity built from a Definition.
type PersistentEntity struct {
	name          string
	persistedName string
	embeddable    bool
	properties    []Property
	associations  []Association
	byName        map[string]int // index into properties, or -(i+1) into associations
	identity      *Property
	version       *Property
	partition     *Property
}

var _ Entity = (*PersistentEntity)(nil)

// NewPersistentEntity validates def, fills missing persisted names from naming,
// and returns the resulting entity.
//
// Fails with DUPLICATE_ROLE when more than one property claims the identity,
// version or partition role, DUPLICATE_PROPERTY when two properties share a
// name, and INVALID_MAPPING for inconsistent associations.
func NewPersistentEntity(def Definition, naming NamingStrategy) (*PersistentEntity, error) {
	if def.Name == "" {
		return nil, &Error{Code: ErrCodeInvalidMapping, Message: "entity name is required"}
	}
	if naming == nil {
		naming = UnderscorePlural{}
	}

	e := &PersistentEntity{
		name:          def.Name,
		persistedName: def.PersistedName,
		embeddable:    def.Embeddable,
		properties:    make([]Property, len(def.Properties)),
		associations:  make([]Association, len(def.Associations)),
		byName:        make(map[string]int, len(def.Properties)+len(def.Associations)),
	}
	if e.persistedName == "" {
		e.persistedName = naming.Table(def.Name)
	}

	for i, p := range def.Properties {
		if err := e.checkName(p.Name); err != nil {
			return nil, err
		}
		if p.PersistedName == "" {
			p.PersistedName = naming.Column(p.Name)
		}
		if p.Type.Kind == ir.KindEntity {
			return nil, e.mappingError(p.Name, "entity-typed property must be declared as an association")
		}
		e.properties[i] = p
		e.byName[p.Name] = i
	}

	for i, a := range def.Associations {
		if err := e.checkName(a.Name); err != nil {
			return nil, err
		}
		normalized, err := e.normalizeAssociation(a, naming)
		if err != nil {
			return nil, err
		}
		e.associations[i] = normalized
		e.byName[a.Name] = -(i + 1)
	}

	if err := e.assignRoles(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *PersistentEntity) checkName(name string) error {
	if name == "" {
		return e.mappingError("", "property name is required")
	}
	if _, dup := e.byName[name]; dup {
		return &Error{
			Code:     ErrCodeDuplicateProperty,
			Entity:   e.name,
			Property: name,
			Message:  "property declared more than once",
		}
	}
	return nil
}

func (e *PersistentEntity) normalizeAssociation(a Association, naming NamingStrategy) (Association, error) {
	if a.Target == "" {
		return a, e.mappingError(a.Name, "association target is required")
	}
	if a.PersistedName == "" {
		a.PersistedName = naming.Column(a.Name)
	}

	switch {
	case a.IsToMany():
		if a.Shape == ShapeSingle {
			a.Shape = ShapeCollection
		}
	case a.Shape != ShapeSingle:
		return a, e.mappingError(a.Name, fmt.Sprintf("%s association cannot have %s shape", a.Kind, a.Shape))
	}

	if a.Kind == Embedded && a.MappedBy != "" {
		return a, e.mappingError(a.Name, "embedded association cannot be mapped by another property")
	}
	if a.Kind == ManyToOne && a.MappedBy != "" {
		return a, e.mappingError(a.Name, "many_to_one association always owns its foreign key")
	}
	if a.OrderColumn != "" && a.Shape != ShapeList {
		return a, e.mappingError(a.Name, "order column requires list shape")
	}

	a.Type = ir.Type{Kind: ir.KindEntity, Entity: a.Target, Collection: a.Shape != ShapeSingle}
	return a, nil
}

// assignRoles records the unique-role properties, rejecting duplicates.
func (e *PersistentEntity) assignRoles() error {
	claim := func(slot **Property, role string, p Property) error {
		if *slot != nil {
			return &Error{
				Code:     ErrCodeDuplicateRole,
				Entity:   e.name,
				Property: p.Name,
				Message:  fmt.Sprintf("%s role already claimed by %q", role, (*slot).Name),
			}
		}
		cp := p
		*slot = &cp
		return nil
	}

	check := func(p Property) error {
		if p.Roles.Has(RoleIdentity) {
			if err := claim(&e.identity, "identity", p); err != nil {
				return err
			}
		}
		if p.Roles.Has(RoleVersion) {
			if p.Type.Kind != ir.KindInt && p.Type.Kind != ir.KindTime {
				return e.mappingError(p.Name, "version property must be int or time")
			}
			if err := claim(&e.version, "version", p); err != nil {
				return err
			}
		}
		if p.Roles.Has(RolePartition) {
			if err := claim(&e.partition, "partition", p); err != nil {
				return err
			}
		}
		return nil
	}

	for _, p := range e.properties {
		if err := check(p); err != nil {
			return err
		}
	}
	for _, a := range e.associations {
		if a.Roles.Has(RoleVersion) || a.Roles.Has(RolePartition) {
			return e.mappingError(a.Name, "only the identity role may be held by an association")
		}
		if a.Roles.Has(RoleIdentity) && a.Kind != Embedded {
			return e.mappingError(a.Name, "composite identity must be an embedded association")
		}
		if err := check(a.Property); err != nil {
			return err
		}
	}
	return nil
}

func (e *PersistentEntity) mappingError(property, msg string) *Error {
	return &Error{Code: ErrCodeInvalidMapping, Entity: e.name, Property: property, Message: msg}
}

func (e *PersistentEntity) Name() string          { return e.name }
func (e *PersistentEntity) PersistedName() string { return e.persistedName }
func (e *PersistentEntity) Embeddable() bool      { return e.embeddable }

func (e *PersistentEntity) Identity() (Property, bool)  { return deref(e.identity) }
func (e *PersistentEntity) Version() (Property, bool)   { return deref(e.version) }
func (e *PersistentEntity) Partition() (Property, bool) { return deref(e.partition) }

func deref(p *Property) (Property, bool) {
	if p == nil {
		return Property{}, false
	}
	return *p, true
}

// PersistentProperties returns a copy of the scalar properties.
func (e *PersistentEntity) PersistentProperties() []Property {
	return append([]Property(nil), e.properties...)
}

// Associations returns a copy of the associations.
func (e *PersistentEntity) Associations() []Association {
	return append([]Association(nil), e.associations...)
}

func (e *PersistentEntity) PropertyByName(name string) (Property, bool) {
	idx, ok := e.byName[name]
	if !ok {
		return Property{}, false
	}
	if idx >= 0 {
		return e.properties[idx], true
	}
	return e.associations[-idx-1].Property, true
}

func (e *PersistentEntity) AssociationByName(name string) (Association, bool) {
	idx, ok := e.byName[name]
	if !ok || idx >= 0 {
		return Association{}, false
	}
	return e.associations[-idx-1], true
}
