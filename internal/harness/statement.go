package harness

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	"gopkg.in/yaml.v3"
)

// Statement describes one criteria statement as a structured tree.
// Exactly one of Query, Update and Delete names the root entity.
type Statement struct {
	Query  string `yaml:"query,omitempty"`
	Update string `yaml:"update,omitempty"`
	Delete string `yaml:"delete,omitempty"`

	Select   []Expr     `yaml:"select,omitempty"`
	Distinct bool       `yaml:"distinct,omitempty"`
	Joins    []JoinStep `yaml:"joins,omitempty"`

	// Where and Having are conjunctions of their items.
	Where   []Predicate `yaml:"where,omitempty"`
	GroupBy []Expr      `yaml:"group_by,omitempty"`
	Having  []Predicate `yaml:"having,omitempty"`
	OrderBy []OrderStep `yaml:"order_by,omitempty"`
	Limit   int         `yaml:"limit,omitempty"`
	Offset  int         `yaml:"offset,omitempty"`

	// Set lists update assignments in order.
	Set []SetStep `yaml:"set,omitempty"`
}

// Entity returns the root entity name.
func (s *Statement) Entity() string {
	switch {
	case s.Query != "":
		return s.Query
	case s.Update != "":
		return s.Update
	}
	return s.Delete
}

// JoinStep registers an explicit join.
type JoinStep struct {
	Path  string `yaml:"path"`
	Type  string `yaml:"type,omitempty"`
	Alias string `yaml:"alias,omitempty"`
}

// OrderStep is one ORDER BY item.
type OrderStep struct {
	Path string `yaml:"path,omitempty"`
	Func string `yaml:"func,omitempty"`
	Desc bool   `yaml:"desc,omitempty"`
}

func (o OrderStep) expr() Expr { return Expr{Path: o.Path, Func: o.Func} }

// SetStep assigns a value to a root property.
type SetStep struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
	Param *Param `yaml:"param,omitempty"`
}

// Param declares a named parameter operand.
type Param struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// Expr is a property path, optionally wrapped in a function. A bare
// scalar is shorthand for {path: <scalar>}. COUNT without a path counts
// rows.
type Expr struct {
	Path  string `yaml:"path,omitempty"`
	Func  string `yaml:"func,omitempty"`
	Alias string `yaml:"alias,omitempty"`
}

func (e *Expr) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		e.Path = value.Value
		return nil
	}
	type plain Expr
	return value.Decode((*plain)(e))
}

// Operands are the arguments of a leaf predicate. The right-hand side of a
// comparison is Ref (another path), Param, or the literal Value, in that
// order of precedence.
type Operands struct {
	// Path and Func give the left-hand side.
	Path string `yaml:"path,omitempty"`
	Func string `yaml:"func,omitempty"`

	Value any    `yaml:"value,omitempty"`
	Ref   string `yaml:"ref,omitempty"`
	Param *Param `yaml:"param,omitempty"`

	// Values holds IN list items; a Param here is an IN-collection operand.
	Values []any `yaml:"values,omitempty"`

	From any `yaml:"from,omitempty"`
	To   any `yaml:"to,omitempty"`

	Pattern    string `yaml:"pattern,omitempty"`
	Escape     string `yaml:"escape,omitempty"`
	IgnoreCase bool   `yaml:"ignore_case,omitempty"`
}

func (o Operands) left() Expr { return Expr{Path: o.Path, Func: o.Func} }

// Predicate is one node of a restriction tree, written as a single-key
// mapping:
//
//	and: [<predicate>...]
//	or: [<predicate>...]
//	not: <predicate>
//	is_null: author.born                      # any unary operator
//	equals: {path: title, value: Foo}         # any comparison operator
//	between: {path: price, from: 10, to: 20}
//	in: {path: isbn, values: ["111", "222"]}
//	like: {path: title, pattern: "F%"}
//
// Operator keys are matched case-insensitively against the comparison
// and unary operator names, so starts_with, startsWith and STARTS_WITH
// are the same key.
type Predicate struct {
	// Op is the upper snake case operator name: AND, OR, NOT, BETWEEN,
	// IN, LIKE, or a comparison or unary operator.
	Op       string
	Children []Predicate
	Operands Operands
}

const (
	opAnd     = "AND"
	opOr      = "OR"
	opNot     = "NOT"
	opBetween = "BETWEEN"
	opIn      = "IN"
	opLike    = "LIKE"
	opILike   = "ILIKE"
)

func (p *Predicate) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf("line %d: predicate must be a mapping with exactly one operator key", value.Line)
	}
	key, body := value.Content[0], value.Content[1]
	p.Op = operatorKey(key.Value)

	switch p.Op {
	case opAnd, opOr:
		if body.Kind != yaml.SequenceNode {
			return fmt.Errorf("line %d: %s takes a list of predicates", body.Line, key.Value)
		}
		return body.Decode(&p.Children)
	case opNot:
		var child Predicate
		if err := body.Decode(&child); err != nil {
			return err
		}
		p.Children = []Predicate{child}
		return nil
	}

	if body.Kind == yaml.ScalarNode {
		p.Operands.Path = body.Value
		return nil
	}
	return body.Decode(&p.Operands)
}

// operatorKey normalizes a YAML operator key. IS_NOT_NULL is accepted for
// IS_NON_NULL.
func operatorKey(key string) string {
	op := strcase.ToScreamingSnake(strings.TrimSpace(key))
	if op == "IS_NOT_NULL" {
		return "IS_NON_NULL"
	}
	return op
}
