package criteria

import "fmt"

// Predicate is the closed set of boolean criteria nodes:
// Comparison, Unary, Between, In, InCollection, Like, Junction and Negated.
type Predicate interface {
	// Operator is AND or OR for a Junction; leaves report AND.
	Operator() LogicalOp

	// IsNegated reports whether the node itself carries negation.
	IsNegated() bool

	// Not returns the logical negation: the opposite variant when one
	// exists, otherwise a Negated wrapper.
	Not() Predicate

	predicateNode()
}

// LogicalOp combines sub-predicates of a Junction.
type LogicalOp uint8

const (
	OpAnd LogicalOp = iota
	OpOr
)

func (o LogicalOp) String() string {
	if o == OpOr {
		return "OR"
	}
	return "AND"
}

func (o LogicalOp) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// ComparisonOp is the operator of a binary Comparison.
type ComparisonOp uint8

const (
	OpEquals ComparisonOp = iota
	OpNotEquals
	OpEqualsIgnoreCase
	OpNotEqualsIgnoreCase
	OpGreaterThan
	OpGreaterThanOrEquals
	OpLessThan
	OpLessThanOrEquals
	OpRegex
	OpContains
	OpContainsIgnoreCase
	OpStartsWith
	OpStartsWithIgnoreCase
	OpEndsWith
	OpEndsWithIgnoreCase
	OpArrayContains
)

var comparisonNames = [...]string{
	OpEquals:               "EQUALS",
	OpNotEquals:            "NOT_EQUALS",
	OpEqualsIgnoreCase:     "EQUALS_IGNORE_CASE",
	OpNotEqualsIgnoreCase:  "NOT_EQUALS_IGNORE_CASE",
	OpGreaterThan:          "GREATER_THAN",
	OpGreaterThanOrEquals:  "GREATER_THAN_OR_EQUALS",
	OpLessThan:             "LESS_THAN",
	OpLessThanOrEquals:     "LESS_THAN_OR_EQUALS",
	OpRegex:                "REGEX",
	OpContains:             "CONTAINS",
	OpContainsIgnoreCase:   "CONTAINS_IGNORE_CASE",
	OpStartsWith:           "STARTS_WITH",
	OpStartsWithIgnoreCase: "STARTS_WITH_IGNORE_CASE",
	OpEndsWith:             "ENDS_WITH",
	OpEndsWithIgnoreCase:   "ENDS_WITH_IGNORE_CASE",
	OpArrayContains:        "ARRAY_CONTAINS",
}

func (o ComparisonOp) String() string {
	if int(o) < len(comparisonNames) {
		return comparisonNames[o]
	}
	return fmt.Sprintf("ComparisonOp(%d)", uint8(o))
}

// ParseComparisonOp maps an operator name such as "STARTS_WITH" to its value.
func ParseComparisonOp(name string) (ComparisonOp, bool) {
	for i, n := range comparisonNames {
		if n == name {
			return ComparisonOp(i), true
		}
	}
	return 0, false
}

// Ordering reports whether the operator compares by order.
func (o ComparisonOp) Ordering() bool {
	switch o {
	case OpGreaterThan, OpGreaterThanOrEquals, OpLessThan, OpLessThanOrEquals:
		return true
	}
	return false
}

// StringOp reports whether the operator requires string operands.
func (o ComparisonOp) StringOp() bool {
	switch o {
	case OpEqualsIgnoreCase, OpNotEqualsIgnoreCase, OpRegex,
		OpContains, OpContainsIgnoreCase,
		OpStartsWith, OpStartsWithIgnoreCase,
		OpEndsWith, OpEndsWithIgnoreCase:
		return true
	}
	return false
}

// IgnoreCase reports whether the operator compares case-insensitively.
func (o ComparisonOp) IgnoreCase() bool {
	switch o {
	case OpEqualsIgnoreCase, OpNotEqualsIgnoreCase, OpContainsIgnoreCase,
		OpStartsWithIgnoreCase, OpEndsWithIgnoreCase:
		return true
	}
	return false
}

// UnaryOp is the operator of a Unary test.
type UnaryOp uint8

const (
	OpIsNull UnaryOp = iota
	OpIsNonNull
	OpIsTrue
	OpIsFalse
	OpIsEmpty
	OpIsNotEmpty
)

var unaryNames = [...]string{
	OpIsNull:     "IS_NULL",
	OpIsNonNull:  "IS_NON_NULL",
	OpIsTrue:     "IS_TRUE",
	OpIsFalse:    "IS_FALSE",
	OpIsEmpty:    "IS_EMPTY",
	OpIsNotEmpty: "IS_NOT_EMPTY",
}

func (o UnaryOp) String() string {
	if int(o) < len(unaryNames) {
		return unaryNames[o]
	}
	return fmt.Sprintf("UnaryOp(%d)", uint8(o))
}

// ParseUnaryOp maps an operator name such as "IS_NULL" to its value.
func ParseUnaryOp(name string) (UnaryOp, bool) {
	for i, n := range unaryNames {
		if n == name {
			return UnaryOp(i), true
		}
	}
	return 0, false
}

// Opposite returns the operator testing the inverse condition.
func (o UnaryOp) Opposite() UnaryOp {
	switch o {
	case OpIsNull:
		return OpIsNonNull
	case OpIsNonNull:
		return OpIsNull
	case OpIsTrue:
		return OpIsFalse
	case OpIsFalse:
		return OpIsTrue
	case OpIsEmpty:
		return OpIsNotEmpty
	default:
		return OpIsEmpty
	}
}

// Comparison compares two expressions.
type Comparison struct {
	Op          ComparisonOp
	Left, Right Expression
}

// Unary tests a property for null, boolean value or emptiness.
type Unary struct {
	Op   UnaryOp
	Path PropertyPath
}

// Between tests From <= Path <= To.
type Between struct {
	Path     PropertyPath
	From, To Expression
}

// In tests membership in an explicit list of values.
type In struct {
	Path   PropertyPath
	Values []Expression
}

// InCollection tests membership in a single collection-valued expression.
type InCollection struct {
	Path       PropertyPath
	Collection Expression
}

// Like matches Expr against an SQL LIKE pattern. Escape is optional.
type Like struct {
	Expr            Expression
	Pattern         Expression
	Escape          Expression
	CaseInsensitive bool
	Negated         bool
}

// Junction is a conjunction or disjunction of sub-predicates, kept in
// the order given.
type Junction struct {
	Op         LogicalOp
	Predicates []Predicate
}

// Negated wraps a predicate that has no direct opposite.
type Negated struct {
	Predicate Predicate
}

// Unwrap returns the wrapped predicate.
func (n Negated) Unwrap() Predicate { return n.Predicate }

func (Comparison) Operator() LogicalOp   { return OpAnd }
func (Unary) Operator() LogicalOp        { return OpAnd }
func (Between) Operator() LogicalOp      { return OpAnd }
func (In) Operator() LogicalOp           { return OpAnd }
func (InCollection) Operator() LogicalOp { return OpAnd }
func (Like) Operator() LogicalOp         { return OpAnd }
func (j Junction) Operator() LogicalOp   { return j.Op }
func (Negated) Operator() LogicalOp      { return OpAnd }

func (Comparison) IsNegated() bool   { return false }
func (Unary) IsNegated() bool        { return false }
func (Between) IsNegated() bool      { return false }
func (In) IsNegated() bool           { return false }
func (InCollection) IsNegated() bool { return false }
func (l Like) IsNegated() bool       { return l.Negated }
func (Junction) IsNegated() bool     { return false }
func (Negated) IsNegated() bool      { return true }

func (Comparison) predicateNode()   {}
func (Unary) predicateNode()        {}
func (Between) predicateNode()      {}
func (In) predicateNode()           {}
func (InCollection) predicateNode() {}
func (Like) predicateNode()         {}
func (Junction) predicateNode()     {}
func (Negated) predicateNode()      {}
