package ir

import (
	"fmt"
	"strings"
)

// Kind is the scalar category of an expression result.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNull
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindBytes
	KindEntity
)

var kindNames = [...]string{
	KindUnknown: "unknown",
	KindNull:    "null",
	KindString:  "string",
	KindInt:     "int",
	KindFloat:   "float",
	KindBool:    "bool",
	KindTime:    "time",
	KindBytes:   "bytes",
	KindEntity:  "entity",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a declared type name to a Kind.
// Accepts the names produced by Kind.String plus a few common aliases.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "string", "text":
		return KindString, true
	case "int", "int64", "integer", "long":
		return KindInt, true
	case "float", "float64", "double", "number", "decimal":
		return KindFloat, true
	case "bool", "boolean":
		return KindBool, true
	case "time", "timestamp", "datetime":
		return KindTime, true
	case "bytes", "binary":
		return KindBytes, true
	}
	return KindUnknown, false
}

// Type is the result type tag carried by every expression.
// It is used for operand validation only, never for runtime coercion.
type Type struct {
	Kind Kind

	// Collection marks a multi-valued result (IN lists, to-many associations,
	// subqueries used as sets).
	Collection bool

	// Entity names the entity for KindEntity types.
	Entity string
}

// Common scalar types.
var (
	Unknown = Type{Kind: KindUnknown}
	Null    = Type{Kind: KindNull}
	String  = Type{Kind: KindString}
	Int     = Type{Kind: KindInt}
	Float   = Type{Kind: KindFloat}
	Bool    = Type{Kind: KindBool}
	Time    = Type{Kind: KindTime}
	Bytes   = Type{Kind: KindBytes}
)

// EntityType returns the type of a single entity result.
func EntityType(name string) Type {
	return Type{Kind: KindEntity, Entity: name}
}

// CollectionOf returns the collection type whose elements are t.
func CollectionOf(t Type) Type {
	t.Collection = true
	return t
}

// Elem returns the element type of a collection type, or t itself.
func (t Type) Elem() Type {
	t.Collection = false
	return t
}

// IsNumeric reports whether t is a scalar int or float.
func (t Type) IsNumeric() bool {
	return !t.Collection && (t.Kind == KindInt || t.Kind == KindFloat)
}

// IsString reports whether t is a scalar string.
func (t Type) IsString() bool {
	return !t.Collection && t.Kind == KindString
}

// Comparable reports whether values of t have a total order usable by
// GREATER_THAN and friends. Unknown is accepted so untyped parameters
// are not rejected before their value is known.
func (t Type) Comparable() bool {
	if t.Collection {
		return false
	}
	switch t.Kind {
	case KindString, KindInt, KindFloat, KindTime, KindUnknown:
		return true
	}
	return false
}

// AssignableTo reports whether a value of type t may be compared for
// equality with, or assigned to, a value of type other.
func (t Type) AssignableTo(other Type) bool {
	if t.Kind == KindNull || other.Kind == KindNull {
		return true
	}
	if t.Kind == KindUnknown || other.Kind == KindUnknown {
		return t.Collection == other.Collection
	}
	if t.Collection != other.Collection {
		return false
	}
	if t.Kind == KindEntity || other.Kind == KindEntity {
		return t.Kind == other.Kind && t.Entity == other.Entity
	}
	if t.IsNumeric() && other.IsNumeric() {
		return true
	}
	return t.Kind == other.Kind
}

func (t Type) String() string {
	s := t.Kind.String()
	if t.Kind == KindEntity && t.Entity != "" {
		s = t.Entity
	}
	if t.Collection {
		return "[]" + s
	}
	return s
}

// TypeOf returns the type tag of a value.
// Arrays take the type of their first non-null element.
func TypeOf(v IRValue) Type {
	switch val := v.(type) {
	case nil, IRNull:
		return Null
	case IRString:
		return String
	case IRInt:
		return Int
	case IRFloat:
		return Float
	case IRBool:
		return Bool
	case IRTime:
		return Time
	case IRArray:
		for _, elem := range val {
			if et := TypeOf(elem); et.Kind != KindNull {
				return CollectionOf(et)
			}
		}
		return CollectionOf(Unknown)
	default:
		return Unknown
	}
}

// ParseType parses the form produced by Type.String: a kind name such as
// "int", an entity name such as "Book", either optionally prefixed by "[]".
func ParseType(s string) (Type, error) {
	collection := strings.HasPrefix(s, "[]")
	name := strings.TrimPrefix(s, "[]")
	if name == "" {
		return Type{}, fmt.Errorf("empty type name %q", s)
	}
	if strings.HasPrefix(name, "[]") {
		return Type{}, fmt.Errorf("nested collection type %q", s)
	}

	var t Type
	switch name {
	case "unknown":
		t = Unknown
	case "null":
		t = Null
	case "entity":
		t = Type{Kind: KindEntity}
	default:
		if k, ok := ParseKind(name); ok {
			t = Type{Kind: k}
		} else {
			t = EntityType(name)
		}
	}
	t.Collection = collection
	return t, nil
}

// MarshalText encodes the type as its String form.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes the String form via ParseType.
func (t *Type) UnmarshalText(data []byte) error {
	parsed, err := ParseType(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
