// Package funcs holds the builtin function registry consumed by the
// compiler and execution engine.
package funcs

import (
	"sort"
	"sync"

	"github.com/datasetq/dsq/value"
)

// Function is a callable builtin. Input is the value flowing through the
// filter at the call site; args are the evaluated call arguments.
type Function interface {
	// Name returns the function name. Lookup is case-sensitive.
	Name() string
	// Arity returns the accepted argument count range; max of -1 means
	// variadic.
	Arity() (min, max int)
	// Call evaluates the function.
	Call(input value.Value, args []value.Value) (value.Value, error)
}

type builtin struct {
	name     string
	min, max int
	fn       func(input value.Value, args []value.Value) (value.Value, error)
}

func (b *builtin) Name() string      { return b.name }
func (b *builtin) Arity() (int, int) { return b.min, b.max }
func (b *builtin) Call(input value.Value, args []value.Value) (value.Value, error) {
	return b.fn(input, args)
}

// New wraps a plain function in the Function interface.
func New(name string, min, max int, fn func(value.Value, []value.Value) (value.Value, error)) Function {
	return &builtin{name: name, min: min, max: max, fn: fn}
}

// Registry maps names to builtin implementations. It is populated during
// setup and read-only afterwards; the engine never mutates it.
type Registry struct {
	funcs map[string]Function
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Function)}
}

// Register adds a function. Registering a name twice replaces the earlier
// entry: last registration wins.
func (r *Registry) Register(f Function) {
	r.funcs[f.Name()] = f
}

// Lookup retrieves a function by exact name.
func (r *Registry) Lookup(name string) (Function, bool) {
	f, ok := r.funcs[name]
	return f, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry, built once from the static
// builtin catalog. Registration order inside the catalog is fixed, so
// duplicate-name resolution is deterministic.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
		for _, f := range catalog() {
			global.Register(f)
		}
	})
	return global
}
