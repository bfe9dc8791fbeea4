package criteria

import (
	"github.com/roach88/critq/internal/ir"
)

// Expression is a sealed interface over typed query expressions.
// Only Literal, Parameter, PropertyPath, AssociationPath, Function and
// Subquery implement it.
//
// Expressions are immutable values: builders return new nodes, and a tree
// can be shared or rewritten by producing a new tree.
type Expression interface {
	// Type is the result type tag, used for validation only.
	Type() ir.Type

	expressionNode()
}

// Literal is a constant value inlined into the tree.
type Literal struct {
	Value     ir.IRValue
	ValueType ir.Type
}

func (l Literal) Type() ir.Type { return l.ValueType }
func (Literal) expressionNode() {}

// Parameter is a named placeholder. Value is nil when the value is supplied
// at execution time.
type Parameter struct {
	Name      string
	ValueType ir.Type
	Value     ir.IRValue
}

func (p Parameter) Type() ir.Type { return p.ValueType }
func (Parameter) expressionNode() {}

// Bound reports whether the parameter carries a value.
func (p Parameter) Bound() bool {
	return p.Value != nil
}

// FunctionName identifies a scalar or aggregate function.
type FunctionName string

const (
	FuncUpper         FunctionName = "UPPER"
	FuncLower         FunctionName = "LOWER"
	FuncLength        FunctionName = "LENGTH"
	FuncAbs           FunctionName = "ABS"
	FuncCount         FunctionName = "COUNT"
	FuncCountDistinct FunctionName = "COUNT_DISTINCT"
	FuncSum           FunctionName = "SUM"
	FuncAvg           FunctionName = "AVG"
	FuncMin           FunctionName = "MIN"
	FuncMax           FunctionName = "MAX"
)

// Aggregate reports whether the function folds many rows into one value.
func (f FunctionName) Aggregate() bool {
	switch f {
	case FuncCount, FuncCountDistinct, FuncSum, FuncAvg, FuncMin, FuncMax:
		return true
	}
	return false
}

// Function applies a named function to its arguments.
// COUNT with no arguments counts rows.
type Function struct {
	Name       FunctionName
	Args       []Expression
	ResultType ir.Type
}

func (f Function) Type() ir.Type { return f.ResultType }
func (Function) expressionNode() {}

// Subquery embeds a nested query as an expression.
type Subquery struct {
	Query *QuerySpec
}

func (s Subquery) Type() ir.Type {
	if s.Query == nil {
		return ir.Unknown
	}
	return s.Query.ResultType()
}
func (Subquery) expressionNode() {}
