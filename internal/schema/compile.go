package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"go.uber.org/multierr"

	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/metadata"
)

// Compile extracts entity definitions from the `entity` struct of v.
//
//	entity: Book: {
//		table: "books"                      // optional
//		properties: {
//			id:        {type: "int", id: true}
//			title:     string
//			price:     float
//			published: "time?"
//			labels:    [...string]
//			version:   {type: "int", version: true}
//		}
//		associations: {
//			author:   {kind: "many_to_one", target: "Author"}
//			chapters: {kind: "one_to_many", target: "Chapter", mapped_by: "book", shape: "list", order_column: "position"}
//			location: {kind: "embedded", target: "Shelf"}
//		}
//	}
//
// A property is a CUE type (string, int, float, bool, [...T]), a type name
// string ("time", "[]int", with a trailing "?" for nullable), or a struct
// with a type field and optional id, version, partition, nullable and
// column fields.
func Compile(v cue.Value, mode Mode) ([]metadata.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, fromCUE(err, "", "")
	}
	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, nil
	}
	iter, err := entities.Fields()
	if err != nil {
		return nil, fromCUE(err, "", "entity")
	}

	var (
		defs []metadata.Definition
		errs error
	)
	for iter.Next() {
		def, err := compileEntity(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			if mode == FailFast {
				return nil, err
			}
			errs = multierr.Append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}

func compileEntity(name string, v cue.Value) (metadata.Definition, error) {
	def := metadata.Definition{Name: name}
	var err error
	if def.PersistedName, err = optString(v, name, "table"); err != nil {
		return def, err
	}
	if def.Embeddable, err = optBool(v, name, "embeddable"); err != nil {
		return def, err
	}

	if props := v.LookupPath(cue.ParsePath("properties")); props.Exists() {
		iter, err := props.Fields()
		if err != nil {
			return def, fromCUE(err, name, "properties")
		}
		for iter.Next() {
			p, err := compileProperty(name, iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return def, err
			}
			def.Properties = append(def.Properties, p)
		}
	}

	if assocs := v.LookupPath(cue.ParsePath("associations")); assocs.Exists() {
		iter, err := assocs.Fields()
		if err != nil {
			return def, fromCUE(err, name, "associations")
		}
		for iter.Next() {
			a, err := compileAssociation(name, iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return def, err
			}
			def.Associations = append(def.Associations, a)
		}
	}
	return def, nil
}

func compileProperty(entity, name string, v cue.Value) (metadata.Property, error) {
	p := metadata.Property{Name: name}
	field := "properties." + name

	if v.IncompleteKind() != cue.StructKind {
		t, nullable, err := typeOf(v, entity, field)
		if err != nil {
			return p, err
		}
		p.Type, p.Nullable = t, nullable
		return p, nil
	}

	tv := v.LookupPath(cue.ParsePath("type"))
	if !tv.Exists() {
		return p, &Error{Code: ErrCodeInvalidEntity, Entity: entity, Field: field, Message: "type is required", Pos: v.Pos()}
	}
	t, nullable, err := typeOf(tv, entity, field+".type")
	if err != nil {
		return p, err
	}
	p.Type = t

	flags := []struct {
		name string
		role metadata.Role
	}{
		{"id", metadata.RoleIdentity},
		{"version", metadata.RoleVersion},
		{"partition", metadata.RolePartition},
	}
	for _, f := range flags {
		set, err := optBool(v, entity, field+"."+f.name)
		if err != nil {
			return p, err
		}
		if set {
			p.Roles |= f.role
		}
	}
	if p.Nullable, err = optBool(v, entity, field+".nullable"); err != nil {
		return p, err
	}
	p.Nullable = p.Nullable || nullable
	if p.PersistedName, err = optString(v, entity, field+".column"); err != nil {
		return p, err
	}
	return p, nil
}

// typeOf reads a property type from a CUE kind or a type name string.
func typeOf(v cue.Value, entity, field string) (ir.Type, bool, error) {
	if v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return ir.Type{}, false, fromCUE(err, entity, field)
		}
		nullable := strings.HasSuffix(s, "?")
		t, err := ir.ParseType(strings.TrimSuffix(s, "?"))
		if err != nil {
			return ir.Type{}, false, &Error{Code: ErrCodeInvalidEntity, Entity: entity, Field: field, Message: err.Error(), Pos: v.Pos(), Err: err}
		}
		return t, nullable, nil
	}

	switch k := v.IncompleteKind(); k {
	case cue.StringKind:
		return ir.String, false, nil
	case cue.IntKind:
		return ir.Int, false, nil
	case cue.FloatKind, cue.NumberKind:
		return ir.Float, false, nil
	case cue.BoolKind:
		return ir.Bool, false, nil
	case cue.BytesKind:
		return ir.Type{Kind: ir.KindBytes}, false, nil
	case cue.ListKind:
		elem := v.LookupPath(cue.MakePath(cue.AnyIndex))
		if !elem.Exists() {
			return ir.Type{}, false, &Error{Code: ErrCodeInvalidEntity, Entity: entity, Field: field, Message: "list type needs an element type ([...T])", Pos: v.Pos()}
		}
		et, _, err := typeOf(elem, entity, field)
		if err != nil {
			return ir.Type{}, false, err
		}
		if et.Collection {
			return ir.Type{}, false, &Error{Code: ErrCodeInvalidEntity, Entity: entity, Field: field, Message: "nested list types are not supported", Pos: v.Pos()}
		}
		return ir.CollectionOf(et), false, nil
	default:
		if k&cue.NullKind != 0 && k != cue.NullKind {
			// string | null and friends.
			t, _, err := typeOf(nonNull(v), entity, field)
			return t, true, err
		}
		return ir.Type{}, false, &Error{Code: ErrCodeInvalidEntity, Entity: entity, Field: field, Message: fmt.Sprintf("unsupported type kind %v", k), Pos: v.Pos()}
	}
}

// nonNull drops the null disjunct of a nullable type.
func nonNull(v cue.Value) cue.Value {
	op, args := v.Expr()
	if op != cue.OrOp {
		return v
	}
	for _, a := range args {
		if a.IncompleteKind() != cue.NullKind {
			return a
		}
	}
	return v
}

func compileAssociation(entity, name string, v cue.Value) (metadata.Association, error) {
	a := metadata.Association{Property: metadata.Property{Name: name}}
	field := "associations." + name

	kind, err := optString(v, entity, field+".kind")
	if err != nil {
		return a, err
	}
	k, ok := metadata.ParseAssociationKind(kind)
	if !ok {
		return a, &Error{Code: ErrCodeInvalidEntity, Entity: entity, Field: field + ".kind", Message: fmt.Sprintf("unknown association kind %q", kind), Pos: v.Pos()}
	}
	a.Kind = k

	if shape, err := optString(v, entity, field+".shape"); err != nil {
		return a, err
	} else if shape != "" {
		s, ok := metadata.ParseShape(shape)
		if !ok {
			return a, &Error{Code: ErrCodeInvalidEntity, Entity: entity, Field: field + ".shape", Message: fmt.Sprintf("unknown shape %q", shape), Pos: v.Pos()}
		}
		a.Shape = s
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"target", &a.Target},
		{"mapped_by", &a.MappedBy},
		{"join_column", &a.JoinColumn},
		{"join_table", &a.JoinTable},
		{"order_column", &a.OrderColumn},
		{"column", &a.PersistedName},
	}
	for _, s := range strs {
		if *s.dst, err = optString(v, entity, field+"."+s.name); err != nil {
			return a, err
		}
	}
	if a.Target == "" {
		return a, &Error{Code: ErrCodeInvalidEntity, Entity: entity, Field: field, Message: "target is required", Pos: v.Pos()}
	}

	id, err := optBool(v, entity, field+".id")
	if err != nil {
		return a, err
	}
	if id {
		a.Roles |= metadata.RoleIdentity
	}
	return a, nil
}

// optString reads the optional string field named by the last segment of
// path; the full path is only used in errors.
func optString(v cue.Value, entity, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(lastSegment(path)))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", fromCUE(err, entity, path)
	}
	return s, nil
}

func optBool(v cue.Value, entity, path string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(lastSegment(path)))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, fromCUE(err, entity, path)
	}
	return b, nil
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}
