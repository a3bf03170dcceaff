package ast

import "github.com/datasetq/dsq/value"

// Expr represents a node of a parsed filter expression. Nodes are built once
// by the parser, are immutable, and may be reused across many inputs.
type Expr interface {
	exprNode()
}

// IdentityExpr is the bare `.` filter.
type IdentityExpr struct{}

func (e *IdentityExpr) exprNode() {}

// FieldExpr is a chained field access: `.a.b` carries ["a", "b"].
type FieldExpr struct {
	Names []string
}

func (e *FieldExpr) exprNode() {}

// IndexExpr is `.[expr]` where the bracket expression evaluates to an
// integer position.
type IndexExpr struct {
	Index Expr
}

func (e *IndexExpr) exprNode() {}

// SliceExpr is `.[from:to]`. A nil bound is open.
type SliceExpr struct {
	From Expr
	To   Expr
}

func (e *SliceExpr) exprNode() {}

// IterateExpr is `.[]`: arrays yield elements, objects yield values, tables
// yield rows.
type IterateExpr struct{}

func (e *IterateExpr) exprNode() {}

// PipeExpr chains stages with `|`; each stage consumes the previous stage's
// output.
type PipeExpr struct {
	Stages []Expr
}

func (e *PipeExpr) exprNode() {}

// LiteralExpr holds a constant value.
type LiteralExpr struct {
	Val value.Value
}

func (e *LiteralExpr) exprNode() {}

// VarExpr references a bound variable: `$name`.
type VarExpr struct {
	Name string
}

func (e *VarExpr) exprNode() {}

// BinaryExpr represents a binary operation: a op b.
type BinaryExpr struct {
	Op    string // +, -, *, /, ==, !=, <, >, <=, >=, and, or
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) exprNode() {}

// UnaryExpr represents a unary operation (not, unary minus).
type UnaryExpr struct {
	Op      string // "not", "-"
	Operand Expr
}

func (e *UnaryExpr) exprNode() {}

// ObjectEntry is one `key: value` pair of an object construction. A nil
// Value is the shorthand `{k}`, meaning "the input's field named by the key".
type ObjectEntry struct {
	Key   Expr
	Value Expr
}

// ObjectExpr constructs an object: `{k: v, ...}`.
type ObjectExpr struct {
	Entries []ObjectEntry
}

func (e *ObjectExpr) exprNode() {}

// ArrayExpr constructs an array: `[e1, e2, ...]`.
type ArrayExpr struct {
	Items []Expr
}

func (e *ArrayExpr) exprNode() {}

// FuncCallExpr represents a function call: name(arg1, arg2, ...).
type FuncCallExpr struct {
	Name string
	Args []Expr
}

func (e *FuncCallExpr) exprNode() {}

// AssignExpr represents `target = value` or `target += value`. The target
// must be a field access.
type AssignExpr struct {
	Target Expr
	Op     string // "=", "+="
	Value  Expr
}

func (e *AssignExpr) exprNode() {}

// TryExpr is the `?` suffix: failures of the operand collapse to null.
type TryExpr struct {
	Operand Expr
}

func (e *TryExpr) exprNode() {}
