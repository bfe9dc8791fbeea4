package querymodel

import (
	"encoding/json"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/metadata"
)

// Model is the compiled, dialect-neutral form of one statement.
//
// Every slice is ordered by visitation: Criteria and Parameters follow the
// depth-first, left-to-right walk of the predicate trees, and Joins follow
// first reference. Compiling the same statement twice yields equal models.
type Model struct {
	Kind   criteria.StatementKind `json:"kind"`
	Entity string                 `json:"entity"`
	Table  string                 `json:"table"`
	Alias  string                 `json:"alias"`

	Distinct    bool         `json:"distinct,omitempty"`
	Projection  []Projection `json:"projection,omitempty"`
	Joins       []Join       `json:"joins,omitempty"`
	Assignments []Assignment `json:"assignments,omitempty"`

	// Criteria holds every leaf predicate of WHERE and HAVING.
	Criteria []Criterion `json:"criteria,omitempty"`

	// Filter and Having give the boolean structure over Criteria.
	Filter *Group `json:"filter,omitempty"`
	Having *Group `json:"having,omitempty"`

	GroupBy []Operand  `json:"group_by,omitempty"`
	Orders  []Ordering `json:"orders,omitempty"`
	Limit   int        `json:"limit,omitempty"`
	Offset  int        `json:"offset,omitempty"`

	// Parameters is shared with nested subquery models: a subquery's Param
	// operands index into the outermost model's list.
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Projection is one result column.
type Projection struct {
	Operand Operand `json:"operand"`
	Alias   string  `json:"alias,omitempty"`
}

// Assignment is one SET item; Column is always on the root table.
type Assignment struct {
	Column Column  `json:"column"`
	Value  Operand `json:"value"`
}

// Ordering is one ORDER BY item.
type Ordering struct {
	Operand    Operand `json:"operand"`
	Descending bool    `json:"descending,omitempty"`
}

// Clause identifies the predicate clause a criterion belongs to.
type Clause uint8

const (
	ClauseWhere Clause = iota
	ClauseHaving
)

func (c Clause) String() string {
	if c == ClauseHaving {
		return "HAVING"
	}
	return "WHERE"
}

func (c Clause) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Operator names a criterion test. Comparison and unary operators keep
// their criteria names; BETWEEN, IN and LIKE are added.
type Operator string

const (
	OpEquals               Operator = "EQUALS"
	OpNotEquals            Operator = "NOT_EQUALS"
	OpEqualsIgnoreCase     Operator = "EQUALS_IGNORE_CASE"
	OpNotEqualsIgnoreCase  Operator = "NOT_EQUALS_IGNORE_CASE"
	OpGreaterThan          Operator = "GREATER_THAN"
	OpGreaterThanOrEquals  Operator = "GREATER_THAN_OR_EQUALS"
	OpLessThan             Operator = "LESS_THAN"
	OpLessThanOrEquals     Operator = "LESS_THAN_OR_EQUALS"
	OpRegex                Operator = "REGEX"
	OpContains             Operator = "CONTAINS"
	OpContainsIgnoreCase   Operator = "CONTAINS_IGNORE_CASE"
	OpStartsWith           Operator = "STARTS_WITH"
	OpStartsWithIgnoreCase Operator = "STARTS_WITH_IGNORE_CASE"
	OpEndsWith             Operator = "ENDS_WITH"
	OpEndsWithIgnoreCase   Operator = "ENDS_WITH_IGNORE_CASE"
	OpArrayContains        Operator = "ARRAY_CONTAINS"
	OpIsNull               Operator = "IS_NULL"
	OpIsNonNull            Operator = "IS_NON_NULL"
	OpIsTrue               Operator = "IS_TRUE"
	OpIsFalse              Operator = "IS_FALSE"
	OpIsEmpty              Operator = "IS_EMPTY"
	OpIsNotEmpty           Operator = "IS_NOT_EMPTY"
	OpBetween              Operator = "BETWEEN"
	OpIn                   Operator = "IN"
	OpLike                 Operator = "LIKE"
)

// Criterion is one flattened leaf predicate.
//
// Operands holds the right-hand side: one operand for comparisons, From
// and To for BETWEEN, the values for IN (a single collection-typed operand
// or subquery for collection membership), and the pattern plus optional
// escape for LIKE. Unary tests have none.
type Criterion struct {
	Clause          Clause    `json:"clause"`
	Op              Operator  `json:"op"`
	Left            Operand   `json:"left"`
	Operands        []Operand `json:"operands,omitempty"`
	Negated         bool      `json:"negated,omitempty"`
	CaseInsensitive bool      `json:"case_insensitive,omitempty"`

	// Path is the dotted property path the criterion tests, if any.
	Path string `json:"path,omitempty"`
}

// Node is a child of a Group: either a nested group or a criterion index.
type Node struct {
	Group     *Group `json:"group,omitempty"`
	Criterion int    `json:"criterion"`
}

// Group is a boolean combination of nodes. A Negated group renders as
// NOT (...); an empty AND group is always true and an empty OR group is
// always false.
type Group struct {
	Op       criteria.LogicalOp `json:"op"`
	Negated  bool               `json:"negated,omitempty"`
	Children []Node             `json:"children"`
}

// JoinTable is the link table hop of a many-to-many or unidirectional
// one-to-many join: parent.ParentColumn = link.OwnerColumn and
// link.TargetColumn = target.Column.
type JoinTable struct {
	Table        string `json:"table"`
	Alias        string `json:"alias"`
	OwnerColumn  string `json:"owner_column"`
	TargetColumn string `json:"target_column"`
}

// Join is one association join, unique by Alias.
//
// Without Link the join condition is ParentAlias.ParentColumn = Alias.Column.
type Join struct {
	Type        criteria.JoinType        `json:"type"`
	Path        string                   `json:"path"`
	Association string                   `json:"association"`
	Kind        metadata.AssociationKind `json:"association_kind"`
	Entity      string                   `json:"entity"`
	Table       string                   `json:"table"`
	Alias       string                   `json:"alias"`

	ParentAlias  string `json:"parent_alias"`
	ParentColumn string `json:"parent_column"`
	Column       string `json:"column"`

	Link *JoinTable `json:"link,omitempty"`

	// OrderColumn is set for list associations that preserve positions.
	OrderColumn string `json:"order_column,omitempty"`
}

// Ordered reports whether the join must preserve element positions.
func (j Join) Ordered() bool {
	return j.OrderColumn != ""
}

// Parameter is one placeholder occurrence, numbered from 1 in emission order.
type Parameter struct {
	Index int        `json:"index"`
	Name  string     `json:"name,omitempty"`
	Path  string     `json:"path,omitempty"`
	Type  ir.Type    `json:"type"`
	Value ir.IRValue `json:"value,omitempty"`
}

// Bound reports whether the parameter carries a value.
func (p Parameter) Bound() bool {
	return p.Value != nil
}

// Param returns the parameter record for op, if op is a Param.
func (m *Model) Param(op Operand) (Parameter, bool) {
	p, ok := op.(Param)
	if !ok || p.Index < 1 || p.Index > len(m.Parameters) {
		return Parameter{}, false
	}
	return m.Parameters[p.Index-1], true
}

// JoinByAlias finds a join.
func (m *Model) JoinByAlias(alias string) (Join, bool) {
	for _, j := range m.Joins {
		if j.Alias == alias {
			return j, true
		}
	}
	return Join{}, false
}

// Operand is a sealed interface over criterion operands:
// Column, Param, Literal, Func, Subquery and Relation.
type Operand interface {
	operand()
}

// Column is a column reference qualified by a table alias.
type Column struct {
	Alias string  `json:"alias"`
	Name  string  `json:"name"`
	Path  string  `json:"path,omitempty"`
	Type  ir.Type `json:"type"`
}

// Param references Model.Parameters by 1-based index.
type Param struct {
	Index int `json:"index"`
}

// Literal is a value inlined into the query text.
type Literal struct {
	Value ir.IRValue `json:"value"`
	Type  ir.Type    `json:"type"`
}

// Func applies a scalar or aggregate function. COUNT with no arguments
// counts rows.
type Func struct {
	Name criteria.FunctionName `json:"name"`
	Args []Operand             `json:"args,omitempty"`
	Type ir.Type               `json:"type"`
}

// Subquery is a nested statement model.
type Subquery struct {
	Model *Model `json:"model"`
}

// Relation tests a collection or inverse association for existence
// without joining it. The Join describes the correlated relation; its
// Type is unused.
type Relation struct {
	Join Join `json:"join"`
}

func (Column) operand()   {}
func (Param) operand()    {}
func (Literal) operand()  {}
func (Func) operand()     {}
func (Subquery) operand() {}
func (Relation) operand() {}

// OperandType returns the type of op. Params take the parameter's type.
func (m *Model) OperandType(op Operand) ir.Type {
	switch v := op.(type) {
	case Column:
		return v.Type
	case Param:
		if p, ok := m.Param(v); ok {
			return p.Type
		}
	case Literal:
		return v.Type
	case Func:
		return v.Type
	case Subquery:
		if v.Model != nil && len(v.Model.Projection) == 1 {
			return ir.CollectionOf(v.Model.OperandType(v.Model.Projection[0].Operand))
		}
	}
	return ir.Unknown
}

type taggedOperand struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

func (c Column) MarshalJSON() ([]byte, error) {
	type plain Column
	return json.Marshal(taggedOperand{"column", plain(c)})
}

func (p Param) MarshalJSON() ([]byte, error) {
	type plain Param
	return json.Marshal(taggedOperand{"param", plain(p)})
}

func (l Literal) MarshalJSON() ([]byte, error) {
	type plain Literal
	return json.Marshal(taggedOperand{"literal", plain(l)})
}

func (f Func) MarshalJSON() ([]byte, error) {
	type plain Func
	return json.Marshal(taggedOperand{"func", plain(f)})
}

func (s Subquery) MarshalJSON() ([]byte, error) {
	type plain Subquery
	return json.Marshal(taggedOperand{"subquery", plain(s)})
}

func (r Relation) MarshalJSON() ([]byte, error) {
	type plain Relation
	return json.Marshal(taggedOperand{"relation", plain(r)})
}
