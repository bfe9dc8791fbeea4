package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/roach88/critq/internal/ir"
)

// TagName is the struct tag key read by Registry.Introspect.
//
// Recognised options (comma separated, first match wins for kinds):
//
//	critq:"-"                          skip the field
//	critq:"id"                         identity role
//	critq:"version"                    optimistic-locking version role
//	critq:"partition"                  partition key role
//	critq:"nullable"                   nullable column (pointer fields are nullable implicitly)
//	critq:"name=title_text"            persisted name override
//	critq:"many_to_one"                association kinds; struct fields default to
//	critq:"one_to_one"                 many_to_one, slices and maps of structs to
//	critq:"one_to_many,mapped_by=book" one_to_many
//	critq:"many_to_many,join_table=book_tags"
//	critq:"embedded"                   columns stored inline with an owner prefix
//	critq:"join_column=writer_id"      foreign key override
//	critq:"order_column=position"      position column for list associations
//	critq:"shape=set"                  container shape override (list|set|collection)
//
// An entity type may declare its table, or mark itself embeddable, with a
// blank field:
//
//	_ struct{} `critq:"table=library_books"`
//	_ struct{} `critq:"embeddable"`
const TagName = "critq"

var timeType = reflect.TypeOf(time.Time{})

type fieldTag struct {
	skip     bool
	roles    Role
	nullable bool
	kind     *AssociationKind
	opts     map[string]string
}

func parseTag(raw string) (fieldTag, error) {
	var ft fieldTag
	if raw == "-" {
		ft.skip = true
		return ft, nil
	}
	ft.opts = map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if key, value, ok := strings.Cut(part, "="); ok {
			ft.opts[key] = value
			continue
		}
		switch part {
		case "id":
			ft.roles |= RoleIdentity
		case "version":
			ft.roles |= RoleVersion
		case "partition":
			ft.roles |= RolePartition
		case "nullable":
			ft.nullable = true
		case "embeddable":
			ft.opts["embeddable"] = "true"
		default:
			k, ok := ParseAssociationKind(part)
			if !ok {
				return ft, fmt.Errorf("unknown tag option %q", part)
			}
			ft.kind = &k
		}
	}
	return ft, nil
}

// describeStruct builds a Definition from a struct type. It also returns the
// struct types referenced by associations so the caller can register them.
func describeStruct(t reflect.Type) (Definition, []reflect.Type, error) {
	def := Definition{Name: t.Name()}
	var targets []reflect.Type

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		raw := f.Tag.Get(TagName)

		if f.Name == "_" {
			ft, err := parseTag(raw)
			if err != nil {
				return def, nil, fieldError(t, f, err)
			}
			def.PersistedName = ft.opts["table"]
			_, def.Embeddable = ft.opts["embeddable"]
			continue
		}
		if !f.IsExported() {
			continue
		}

		ft, err := parseTag(raw)
		if err != nil {
			return def, nil, fieldError(t, f, err)
		}
		if ft.skip {
			continue
		}

		ftype := f.Type
		nullable := ft.nullable
		if ftype.Kind() == reflect.Pointer {
			ftype = ftype.Elem()
			nullable = true
		}

		prop := Property{
			Name:          lowerFirst(f.Name),
			PersistedName: ft.opts["name"],
			Roles:         ft.roles,
			Nullable:      nullable,
		}

		if target, shape, isAssoc := associationTarget(ftype); isAssoc || ft.kind != nil {
			if !isAssoc {
				return def, nil, fieldError(t, f, fmt.Errorf("%s requires a struct-typed field", *ft.kind))
			}
			assoc, err := buildAssociation(prop, ft, target, shape)
			if err != nil {
				return def, nil, fieldError(t, f, err)
			}
			def.Associations = append(def.Associations, assoc)
			targets = append(targets, target)
			continue
		}

		typ, err := scalarType(ftype)
		if err != nil {
			return def, nil, fieldError(t, f, err)
		}
		prop.Type = typ
		def.Properties = append(def.Properties, prop)
	}
	return def, targets, nil
}

func buildAssociation(prop Property, ft fieldTag, target reflect.Type, shape Shape) (Association, error) {
	assoc := Association{
		Property:    prop,
		Target:      target.Name(),
		Shape:       shape,
		MappedBy:    ft.opts["mapped_by"],
		JoinColumn:  ft.opts["join_column"],
		JoinTable:   ft.opts["join_table"],
		OrderColumn: ft.opts["order_column"],
	}

	switch {
	case ft.kind != nil:
		assoc.Kind = *ft.kind
	case shape == ShapeSingle:
		assoc.Kind = ManyToOne
	default:
		assoc.Kind = OneToMany
	}

	if s, ok := ft.opts["shape"]; ok {
		parsed, valid := ParseShape(s)
		if !valid {
			return assoc, fmt.Errorf("unknown shape %q", s)
		}
		assoc.Shape = parsed
	}
	if assoc.IsToMany() && assoc.Shape == ShapeSingle {
		return assoc, fmt.Errorf("%s association needs a slice or map field", assoc.Kind)
	}
	if !assoc.IsToMany() && assoc.Shape != ShapeSingle {
		return assoc, fmt.Errorf("%s association cannot be a container", assoc.Kind)
	}
	return assoc, nil
}

// associationTarget reports whether t refers to another struct entity and
// derives the container shape: slices are lists, maps with struct{} or bool
// values are sets, other maps are plain collections.
func associationTarget(t reflect.Type) (reflect.Type, Shape, bool) {
	elem := func(e reflect.Type) (reflect.Type, bool) {
		for e.Kind() == reflect.Pointer {
			e = e.Elem()
		}
		return e, e.Kind() == reflect.Struct && e != timeType
	}

	switch t.Kind() {
	case reflect.Struct:
		if t == timeType {
			return nil, ShapeSingle, false
		}
		return t, ShapeSingle, true
	case reflect.Slice, reflect.Array:
		if e, ok := elem(t.Elem()); ok {
			return e, ShapeList, true
		}
	case reflect.Map:
		v := t.Elem()
		if v.Kind() == reflect.Bool || (v.Kind() == reflect.Struct && v.NumField() == 0) {
			if e, ok := elem(t.Key()); ok {
				return e, ShapeSet, true
			}
			return nil, ShapeSingle, false
		}
		if e, ok := elem(v); ok {
			return e, ShapeCollection, true
		}
	}
	return nil, ShapeSingle, false
}

func scalarType(t reflect.Type) (ir.Type, error) {
	if t == timeType {
		return ir.Time, nil
	}
	switch t.Kind() {
	case reflect.String:
		return ir.String, nil
	case reflect.Bool:
		return ir.Bool, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return ir.Int, nil
	case reflect.Float32, reflect.Float64:
		return ir.Float, nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return ir.Bytes, nil
		}
		elem, err := scalarType(t.Elem())
		if err != nil {
			return ir.Type{}, err
		}
		if elem.Collection {
			return ir.Type{}, fmt.Errorf("nested collections are not supported")
		}
		return ir.CollectionOf(elem), nil
	}
	return ir.Type{}, fmt.Errorf("unsupported field type %s", t)
}

func fieldError(t reflect.Type, f reflect.StructField, err error) error {
	return &Error{
		Code:     ErrCodeInvalidMapping,
		Entity:   t.Name(),
		Property: f.Name,
		Message:  err.Error(),
	}
}

// lowerFirst turns an exported Go field name into the criteria property name:
// Title → title, ISBN → isbn, AuthorName → authorName.
func lowerFirst(s string) string {
	runes := []rune(s)
	i := 0
	for i < len(runes) && runes[i] >= 'A' && runes[i] <= 'Z' {
		i++
	}
	if i == 0 {
		return s
	}
	if i > 1 && i < len(runes) {
		// Keep the capital that starts the next word: URLPath → urlPath.
		i--
	}
	return strings.ToLower(string(runes[:i])) + string(runes[i:])
}
