package engine

import (
	"container/list"

	"github.com/datasetq/dsq/value"
)

// ErrorMode selects how the executor treats runtime failures.
type ErrorMode int

const (
	// Strict propagates the first error.
	Strict ErrorMode = iota
	// Collect records a warning and substitutes Null.
	Collect
	// Ignore substitutes Null silently.
	Ignore
)

// DefaultCacheSize bounds the compiled-filter cache.
const DefaultCacheSize = 1000

// ExecutorConfig configures an Executor. Zero values pick the defaults:
// Strict mode, depth 1000, cache 1000 entries.
type ExecutorConfig struct {
	ErrorMode ErrorMode
	Variables map[string]value.Value
	Functions map[string]FunctionDef
	MaxDepth  int
	CacheSize int
}

// Executor parses, compiles, and applies filters, caching compiled
// operation trees by filter text. It is not safe for concurrent use.
type Executor struct {
	mode      ErrorMode
	scope     *Scope
	cacheSize int
	cache     map[string]*list.Element
	order     *list.List // front = most recently used
	warnings  []string
}

type cacheEntry struct {
	text string
	op   Operation
}

// NewExecutor builds an executor from a config. Variables and user
// functions are bound into the root scope once.
func NewExecutor(cfg ExecutorConfig) *Executor {
	scope := NewScope(nil)
	if cfg.MaxDepth > 0 {
		scope.maxDepth = cfg.MaxDepth
	}
	for name, v := range cfg.Variables {
		scope.BindVar(name, v)
	}
	for _, def := range cfg.Functions {
		scope.DefineFunc(def)
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Executor{
		mode:      cfg.ErrorMode,
		scope:     scope,
		cacheSize: size,
		cache:     make(map[string]*list.Element),
		order:     list.New(),
	}
}

// Execute runs the filter against the input. Parse and compile errors
// always propagate; runtime errors follow the configured ErrorMode.
func (e *Executor) Execute(filter string, input value.Value) (value.Value, error) {
	op, err := e.compiled(filter)
	if err != nil {
		return value.Null(), err
	}
	out, err := op.Apply(input)
	if err != nil {
		switch e.mode {
		case Collect:
			e.warnings = append(e.warnings, err.Error())
			return value.Null(), nil
		case Ignore:
			return value.Null(), nil
		default:
			return value.Null(), err
		}
	}
	return out, nil
}

// Warnings returns the messages collected so far in Collect mode.
func (e *Executor) Warnings() []string {
	return e.warnings
}

func (e *Executor) compiled(filter string) (Operation, error) {
	if el, ok := e.cache[filter]; ok {
		e.order.MoveToFront(el)
		return el.Value.(*cacheEntry).op, nil
	}
	op, err := CompileFilter(filter, e.scope)
	if err != nil {
		return nil, err
	}
	e.cache[filter] = e.order.PushFront(&cacheEntry{text: filter, op: op})
	if e.order.Len() > e.cacheSize {
		oldest := e.order.Back()
		e.order.Remove(oldest)
		delete(e.cache, oldest.Value.(*cacheEntry).text)
	}
	return op, nil
}
