package engine

import (
	"fmt"

	"github.com/datasetq/dsq/ast"
	"github.com/datasetq/dsq/funcs"
	"github.com/datasetq/dsq/parser"
	"github.com/datasetq/dsq/value"
)

// DefaultMaxDepth bounds expression nesting during compilation.
const DefaultMaxDepth = 1000

// FunctionDef is a user-supplied function: a named filter body with
// positional parameters bound as variables at call time.
type FunctionDef struct {
	Name   string
	Params []string
	Body   ast.Expr
}

// StackFrame holds the definitions visible at one nesting level.
type StackFrame struct {
	Funcs map[string]FunctionDef
	Vars  map[string]value.Value
}

// Scope resolves names during compilation. Lookup walks frames from the
// innermost outwards and falls through to the builtin registry.
type Scope struct {
	frames   []*StackFrame
	registry *funcs.Registry
	maxDepth int
}

// NewScope returns a scope with one empty frame backed by the given
// registry. A nil registry means the global builtin catalog.
func NewScope(registry *funcs.Registry) *Scope {
	if registry == nil {
		registry = funcs.Global()
	}
	return &Scope{
		frames:   []*StackFrame{{Funcs: map[string]FunctionDef{}, Vars: map[string]value.Value{}}},
		registry: registry,
		maxDepth: DefaultMaxDepth,
	}
}

// Push adds an inner frame and returns a child scope; the receiver is
// unchanged.
func (s *Scope) Push(frame *StackFrame) *Scope {
	frames := make([]*StackFrame, len(s.frames)+1)
	copy(frames, s.frames)
	frames[len(s.frames)] = frame
	return &Scope{frames: frames, registry: s.registry, maxDepth: s.maxDepth}
}

// DefineFunc registers a user function in the innermost frame.
func (s *Scope) DefineFunc(def FunctionDef) {
	s.frames[len(s.frames)-1].Funcs[def.Name] = def
}

// BindVar binds a variable in the innermost frame.
func (s *Scope) BindVar(name string, v value.Value) {
	s.frames[len(s.frames)-1].Vars[name] = v
}

func (s *Scope) lookupFunc(name string) (FunctionDef, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if def, ok := s.frames[i].Funcs[name]; ok {
			return def, true
		}
	}
	return FunctionDef{}, false
}

func (s *Scope) lookupVar(name string) (value.Value, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].Vars[name]; ok {
			return v, true
		}
	}
	return value.Null(), false
}

// CompileErrorKind classifies compile-time failures.
type CompileErrorKind int

const (
	UnknownFunction CompileErrorKind = iota
	UnknownVariable
	ArityMismatch
	TooDeep
)

// CompileError is raised before any value is touched.
type CompileError struct {
	Kind     CompileErrorKind
	Name     string
	Expected string
	Got      int
}

func (e *CompileError) Error() string {
	switch e.Kind {
	case UnknownFunction:
		return fmt.Sprintf("unknown function %q", e.Name)
	case UnknownVariable:
		return fmt.Sprintf("unknown variable $%s", e.Name)
	case ArityMismatch:
		return fmt.Sprintf("%s expects %s arguments, got %d", e.Name, e.Expected, e.Got)
	case TooDeep:
		return "expression nesting too deep"
	default:
		return "compile error"
	}
}

// CompileFilter parses and compiles filter text in one step.
func CompileFilter(text string, scope *Scope) (Operation, error) {
	f, err := parser.ParseFilter(text)
	if err != nil {
		return nil, err
	}
	return Compile(f.Root, scope)
}

// Compile turns an expression tree into an operation tree. All name and
// arity resolution happens here; Apply never fails on an unknown name.
func Compile(expr ast.Expr, scope *Scope) (Operation, error) {
	if scope == nil {
		scope = NewScope(nil)
	}
	return compile(expr, scope, 0)
}

func compile(expr ast.Expr, scope *Scope, depth int) (Operation, error) {
	if depth > scope.maxDepth {
		return nil, &CompileError{Kind: TooDeep}
	}
	switch e := expr.(type) {
	case *ast.IdentityExpr:
		return identityOp{}, nil
	case *ast.LiteralExpr:
		return &literalOp{val: e.Val}, nil
	case *ast.FieldExpr:
		return &fieldOp{names: e.Names}, nil
	case *ast.IndexExpr:
		idx, err := compile(e.Index, scope, depth+1)
		if err != nil {
			return nil, err
		}
		return &indexOp{idx: idx}, nil
	case *ast.SliceExpr:
		var from, to Operation
		var err error
		if e.From != nil {
			if from, err = compile(e.From, scope, depth+1); err != nil {
				return nil, err
			}
		}
		if e.To != nil {
			if to, err = compile(e.To, scope, depth+1); err != nil {
				return nil, err
			}
		}
		return &sliceOp{from: from, to: to}, nil
	case *ast.IterateExpr:
		return iterateOp{}, nil
	case *ast.PipeExpr:
		stages := make([]Operation, len(e.Stages))
		for i, s := range e.Stages {
			op, err := compile(s, scope, depth+1)
			if err != nil {
				return nil, err
			}
			stages[i] = op
		}
		return &pipeOp{stages: stages}, nil
	case *ast.VarExpr:
		v, ok := scope.lookupVar(e.Name)
		if !ok {
			return nil, &CompileError{Kind: UnknownVariable, Name: e.Name}
		}
		return &literalOp{val: v}, nil
	case *ast.BinaryExpr:
		left, err := compile(e.Left, scope, depth+1)
		if err != nil {
			return nil, err
		}
		right, err := compile(e.Right, scope, depth+1)
		if err != nil {
			return nil, err
		}
		return &binaryOp{op: e.Op, left: left, right: right}, nil
	case *ast.UnaryExpr:
		operand, err := compile(e.Operand, scope, depth+1)
		if err != nil {
			return nil, err
		}
		return &unaryOp{op: e.Op, operand: operand}, nil
	case *ast.ObjectExpr:
		entries := make([]objectEntry, len(e.Entries))
		for i, ent := range e.Entries {
			key, err := compile(ent.Key, scope, depth+1)
			if err != nil {
				return nil, err
			}
			var val Operation
			if ent.Value != nil {
				if val, err = compile(ent.Value, scope, depth+1); err != nil {
					return nil, err
				}
			}
			entries[i] = objectEntry{key: key, val: val}
		}
		return &objectOp{entries: entries}, nil
	case *ast.ArrayExpr:
		items := make([]Operation, len(e.Items))
		for i, item := range e.Items {
			op, err := compile(item, scope, depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = op
		}
		return &arrayOp{items: items}, nil
	case *ast.TryExpr:
		inner, err := compile(e.Operand, scope, depth+1)
		if err != nil {
			return nil, err
		}
		return &tryOp{inner: inner}, nil
	case *ast.AssignExpr:
		target, ok := e.Target.(*ast.FieldExpr)
		if !ok {
			return nil, fmt.Errorf("assignment target must be a field access")
		}
		val, err := compile(e.Value, scope, depth+1)
		if err != nil {
			return nil, err
		}
		return &assignOp{fields: target.Names, op: e.Op, val: val}, nil
	case *ast.FuncCallExpr:
		return compileCall(e, scope, depth)
	default:
		return nil, fmt.Errorf("unknown expression type %T", expr)
	}
}

func compileCall(e *ast.FuncCallExpr, scope *Scope, depth int) (Operation, error) {
	// Filter-argument builtins compile their arguments as operations, not
	// values.
	switch e.Name {
	case "select", "map", "sort_by", "group_by":
		if len(e.Args) != 1 {
			return nil, &CompileError{Kind: ArityMismatch, Name: e.Name, Expected: "1", Got: len(e.Args)}
		}
		arg, err := compile(e.Args[0], scope, depth+1)
		if err != nil {
			return nil, err
		}
		switch e.Name {
		case "select":
			return &selectOp{cond: arg}, nil
		case "map":
			return &mapOp{inner: arg}, nil
		case "sort_by":
			return &sortByOp{key: arg}, nil
		default:
			return &groupByOp{key: arg}, nil
		}
	case "iferror":
		if len(e.Args) != 2 {
			return nil, &CompileError{Kind: ArityMismatch, Name: e.Name, Expected: "2", Got: len(e.Args)}
		}
		primary, err := compile(e.Args[0], scope, depth+1)
		if err != nil {
			return nil, err
		}
		fallback, err := compile(e.Args[1], scope, depth+1)
		if err != nil {
			return nil, err
		}
		return &iferrorOp{primary: primary, fallback: fallback}, nil
	}

	if def, ok := scope.lookupFunc(e.Name); ok {
		return compileUserCall(def, e, scope, depth)
	}

	fn, ok := scope.registry.Lookup(e.Name)
	if !ok {
		return nil, &CompileError{Kind: UnknownFunction, Name: e.Name}
	}
	min, max := fn.Arity()
	if len(e.Args) < min || (max >= 0 && len(e.Args) > max) {
		return nil, &CompileError{
			Kind:     ArityMismatch,
			Name:     e.Name,
			Expected: arityString(min, max),
			Got:      len(e.Args),
		}
	}
	args := make([]Operation, len(e.Args))
	for i, a := range e.Args {
		op, err := compile(a, scope, depth+1)
		if err != nil {
			return nil, err
		}
		args[i] = op
	}
	return &callOp{fn: fn, name: e.Name, args: args}, nil
}

func compileUserCall(def FunctionDef, e *ast.FuncCallExpr, scope *Scope, depth int) (Operation, error) {
	if len(e.Args) != len(def.Params) {
		return nil, &CompileError{
			Kind:     ArityMismatch,
			Name:     e.Name,
			Expected: fmt.Sprintf("%d", len(def.Params)),
			Got:      len(e.Args),
		}
	}
	args := make([]Operation, len(e.Args))
	for i, a := range e.Args {
		op, err := compile(a, scope, depth+1)
		if err != nil {
			return nil, err
		}
		args[i] = op
	}
	// Validate the body now with parameters bound to placeholder values;
	// the real bindings only exist once the arguments are evaluated.
	probe := &StackFrame{Funcs: map[string]FunctionDef{}, Vars: map[string]value.Value{}}
	for _, p := range def.Params {
		probe.Vars[p] = value.Null()
	}
	if _, err := compile(def.Body, scope.Push(probe), depth+1); err != nil {
		return nil, err
	}
	return &userCallOp{def: def, args: args, scope: scope, depth: depth}, nil
}

// userCallOp evaluates its arguments, binds them as variables, and compiles
// the body against that binding frame on each application.
type userCallOp struct {
	def   FunctionDef
	args  []Operation
	scope *Scope
	depth int
}

func (o *userCallOp) Apply(input value.Value) (value.Value, error) {
	frame := &StackFrame{Funcs: map[string]FunctionDef{}, Vars: map[string]value.Value{}}
	for i, a := range o.args {
		v, err := a.Apply(input.Clone())
		if err != nil {
			return value.Null(), err
		}
		frame.Vars[o.def.Params[i]] = v
	}
	body, err := compile(o.def.Body, o.scope.Push(frame), o.depth+1)
	if err != nil {
		return value.Null(), err
	}
	return body.Apply(input)
}

func (o *userCallOp) Describe() string { return o.def.Name + "(...)" }

func arityString(min, max int) string {
	switch {
	case max < 0:
		return fmt.Sprintf("at least %d", min)
	case min == max:
		return fmt.Sprintf("%d", min)
	default:
		return fmt.Sprintf("%d to %d", min, max)
	}
}
