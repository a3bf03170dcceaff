// Package engine compiles parsed filter expressions into operation trees and
// executes them against runtime values.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datasetq/dsq/funcs"
	"github.com/datasetq/dsq/value"
)

// Operation is one compiled step of a filter. Apply never mutates its input;
// it returns a newly built value. Describe is for diagnostics only.
type Operation interface {
	Apply(input value.Value) (value.Value, error)
	Describe() string
}

// InvalidKeyError reports an object-construction key that did not evaluate
// to a string.
type InvalidKeyError struct {
	Type string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("object key must be a string, got %s", e.Type)
}

type identityOp struct{}

func (identityOp) Apply(input value.Value) (value.Value, error) { return input, nil }
func (identityOp) Describe() string                             { return "." }

type literalOp struct {
	val value.Value
}

func (o *literalOp) Apply(value.Value) (value.Value, error) { return o.val, nil }
func (o *literalOp) Describe() string                       { return o.val.AsString() }

type fieldOp struct {
	names []string
}

func (o *fieldOp) Apply(input value.Value) (value.Value, error) {
	cur := input
	for _, name := range o.names {
		next, err := cur.Field(name)
		if err != nil {
			return value.Null(), err
		}
		cur = next
	}
	return cur, nil
}

func (o *fieldOp) Describe() string { return "." + strings.Join(o.names, ".") }

type indexOp struct {
	idx Operation
}

func (o *indexOp) Apply(input value.Value) (value.Value, error) {
	iv, err := o.idx.Apply(input.Clone())
	if err != nil {
		return value.Null(), err
	}
	switch iv.Kind {
	case value.KindInt:
		return input.Index(iv.Int)
	case value.KindString:
		return input.Field(iv.Str)
	default:
		return value.Null(), &value.TypeError{Operation: "index", Type: iv.TypeName()}
	}
}

func (o *indexOp) Describe() string { return ".[" + o.idx.Describe() + "]" }

type sliceOp struct {
	from Operation // nil when the bound is open
	to   Operation
}

func (o *sliceOp) Apply(input value.Value) (value.Value, error) {
	var from, to int64
	hasFrom, hasTo := false, false
	if o.from != nil {
		v, err := o.from.Apply(input.Clone())
		if err != nil {
			return value.Null(), err
		}
		if v.Kind != value.KindInt {
			return value.Null(), &value.TypeError{Operation: "slice", Type: v.TypeName()}
		}
		from, hasFrom = v.Int, true
	}
	if o.to != nil {
		v, err := o.to.Apply(input.Clone())
		if err != nil {
			return value.Null(), err
		}
		if v.Kind != value.KindInt {
			return value.Null(), &value.TypeError{Operation: "slice", Type: v.TypeName()}
		}
		to, hasTo = v.Int, true
	}
	return input.SliceRange(from, to, hasFrom, hasTo)
}

func (o *sliceOp) Describe() string { return ".[:]" }

type iterateOp struct{}

func (iterateOp) Apply(input value.Value) (value.Value, error) {
	switch input.Kind {
	case value.KindNull:
		return value.Null(), nil
	case value.KindArray:
		return input, nil
	case value.KindObject:
		keys := make([]string, 0, len(input.Obj))
		for k := range input.Obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i] = input.Obj[k]
		}
		return value.ArrayVal(out...), nil
	case value.KindSeries:
		return value.ArrayVal(input.Ser.Vals...), nil
	case value.KindTable:
		rows := make([]value.Value, input.Tab.Height())
		for i := range rows {
			rows[i] = input.Tab.Row(i)
		}
		return value.ArrayVal(rows...), nil
	case value.KindLazy:
		mat, err := value.Materialize(input)
		if err != nil {
			return value.Null(), err
		}
		return iterateOp{}.Apply(mat)
	default:
		return value.Null(), &value.TypeError{Operation: "iterate", Type: input.TypeName()}
	}
}

func (iterateOp) Describe() string { return ".[]" }

type pipeOp struct {
	stages []Operation
}

func (o *pipeOp) Apply(input value.Value) (value.Value, error) {
	cur := input
	for _, s := range o.stages {
		next, err := s.Apply(cur)
		if err != nil {
			return value.Null(), err
		}
		cur = next
	}
	return cur, nil
}

func (o *pipeOp) Describe() string {
	parts := make([]string, len(o.stages))
	for i, s := range o.stages {
		parts[i] = s.Describe()
	}
	return strings.Join(parts, " | ")
}

// binaryOp evaluates both sides against clones of the same original input.
// The right side never observes the left side's output.
type binaryOp struct {
	op    string
	left  Operation
	right Operation
}

func (o *binaryOp) Apply(input value.Value) (value.Value, error) {
	left, err := o.left.Apply(input.Clone())
	if err != nil {
		return value.Null(), err
	}
	// and/or short-circuit without touching the right side.
	switch o.op {
	case "and":
		if !left.Truthy() {
			return value.BoolVal(false), nil
		}
		right, err := o.right.Apply(input.Clone())
		if err != nil {
			return value.Null(), err
		}
		return value.BoolVal(right.Truthy()), nil
	case "or":
		if left.Truthy() {
			return value.BoolVal(true), nil
		}
		right, err := o.right.Apply(input.Clone())
		if err != nil {
			return value.Null(), err
		}
		return value.BoolVal(right.Truthy()), nil
	}
	right, err := o.right.Apply(input.Clone())
	if err != nil {
		return value.Null(), err
	}
	switch o.op {
	case "+", "-", "*", "/":
		return value.Arith(o.op, left, right)
	case "==", "!=", "<", "<=", ">", ">=":
		return value.CompareOp(o.op, left, right)
	default:
		return value.Null(), fmt.Errorf("unknown operator %q", o.op)
	}
}

func (o *binaryOp) Describe() string {
	return o.left.Describe() + " " + o.op + " " + o.right.Describe()
}

type unaryOp struct {
	op      string
	operand Operation
}

func (o *unaryOp) Apply(input value.Value) (value.Value, error) {
	v, err := o.operand.Apply(input)
	if err != nil {
		return value.Null(), err
	}
	switch o.op {
	case "not":
		return value.BoolVal(!v.Truthy()), nil
	case "-":
		return value.Negate(v)
	default:
		return value.Null(), fmt.Errorf("unknown unary operator %q", o.op)
	}
}

func (o *unaryOp) Describe() string { return o.op + " " + o.operand.Describe() }

type objectEntry struct {
	key Operation
	val Operation // nil means shorthand: take the input's field named by the key
}

type objectOp struct {
	entries []objectEntry
}

func (o *objectOp) Apply(input value.Value) (value.Value, error) {
	if input.IsNull() {
		return value.Null(), nil
	}
	out := make(map[string]value.Value, len(o.entries))
	for _, e := range o.entries {
		kv, err := e.key.Apply(input.Clone())
		if err != nil {
			return value.Null(), err
		}
		if kv.Kind != value.KindString {
			return value.Null(), &InvalidKeyError{Type: kv.TypeName()}
		}
		var vv value.Value
		if e.val == nil {
			vv, err = input.Field(kv.Str)
		} else {
			vv, err = e.val.Apply(input.Clone())
		}
		if err != nil {
			return value.Null(), err
		}
		out[kv.Str] = vv
	}
	return value.ObjectVal(out), nil
}

func (o *objectOp) Describe() string { return "{...}" }

type arrayOp struct {
	items []Operation
}

func (o *arrayOp) Apply(input value.Value) (value.Value, error) {
	out := make([]value.Value, len(o.items))
	for i, item := range o.items {
		v, err := item.Apply(input.Clone())
		if err != nil {
			return value.Null(), err
		}
		out[i] = v
	}
	return value.ArrayVal(out...), nil
}

func (o *arrayOp) Describe() string { return "[...]" }

type tryOp struct {
	inner Operation
}

func (o *tryOp) Apply(input value.Value) (value.Value, error) {
	v, err := o.inner.Apply(input)
	if err != nil {
		return value.Null(), nil
	}
	return v, nil
}

func (o *tryOp) Describe() string { return o.inner.Describe() + "?" }

type assignOp struct {
	fields []string
	op     string // "=" or "+="
	val    Operation
}

func (o *assignOp) Apply(input value.Value) (value.Value, error) {
	nv, err := o.val.Apply(input.Clone())
	if err != nil {
		return value.Null(), err
	}
	return setField(input, o.fields, o.op, nv)
}

func setField(v value.Value, fields []string, op string, nv value.Value) (value.Value, error) {
	if v.Kind != value.KindObject {
		return value.Null(), &value.TypeError{Operation: "assign", Type: v.TypeName()}
	}
	out := make(map[string]value.Value, len(v.Obj)+1)
	for k, ov := range v.Obj {
		out[k] = ov
	}
	name := fields[0]
	if len(fields) > 1 {
		child, ok := out[name]
		if !ok {
			child = value.ObjectVal(map[string]value.Value{})
		}
		updated, err := setField(child, fields[1:], op, nv)
		if err != nil {
			return value.Null(), err
		}
		out[name] = updated
		return value.ObjectVal(out), nil
	}
	if op == "+=" {
		old, ok := out[name]
		if !ok {
			old = value.Null()
		}
		sum, err := value.Arith("+", old, nv)
		if err != nil {
			return value.Null(), err
		}
		out[name] = sum
	} else {
		out[name] = nv
	}
	return value.ObjectVal(out), nil
}

func (o *assignOp) Describe() string {
	return "." + strings.Join(o.fields, ".") + " " + o.op + " " + o.val.Describe()
}

type callOp struct {
	fn   funcs.Function
	name string
	args []Operation
}

func (o *callOp) Apply(input value.Value) (value.Value, error) {
	args := make([]value.Value, len(o.args))
	for i, a := range o.args {
		v, err := a.Apply(input.Clone())
		if err != nil {
			return value.Null(), err
		}
		args[i] = v
	}
	return o.fn.Call(input, args)
}

func (o *callOp) Describe() string { return o.name + "(...)" }

// selectOp keeps table rows matched by an elementwise boolean mask, or the
// whole value when the condition is truthy.
type selectOp struct {
	cond Operation
}

func (o *selectOp) Apply(input value.Value) (value.Value, error) {
	recv := input
	if recv.Kind == value.KindLazy {
		mat, err := value.Materialize(recv)
		if err != nil {
			return value.Null(), err
		}
		recv = mat
	}
	cond, err := o.cond.Apply(recv.Clone())
	if err != nil {
		return value.Null(), err
	}
	if recv.Kind == value.KindTable && cond.Kind == value.KindSeries &&
		cond.Ser.Len() == recv.Tab.Height() {
		return value.TableVal(recv.Tab.FilterRows(cond.Ser.Mask())), nil
	}
	// Length mismatch and every non-table receiver fall back to
	// whole-value truthiness.
	if cond.Truthy() {
		return recv, nil
	}
	return value.Null(), nil
}

func (o *selectOp) Describe() string { return "select(" + o.cond.Describe() + ")" }

type mapOp struct {
	inner Operation
}

func (o *mapOp) Apply(input value.Value) (value.Value, error) {
	switch input.Kind {
	case value.KindArray:
		out := make([]value.Value, len(input.Arr))
		for i, v := range input.Arr {
			mv, err := o.inner.Apply(v.Clone())
			if err != nil {
				return value.Null(), err
			}
			out[i] = mv
		}
		return value.ArrayVal(out...), nil
	case value.KindSeries:
		out := make([]value.Value, input.Ser.Len())
		for i, v := range input.Ser.Vals {
			mv, err := o.inner.Apply(v.Clone())
			if err != nil {
				return value.Null(), err
			}
			out[i] = mv
		}
		return value.SeriesVal(value.NewSeries(input.Ser.Name, out)), nil
	default:
		return value.Null(), &value.TypeError{Operation: "map", Type: input.TypeName()}
	}
}

func (o *mapOp) Describe() string { return "map(" + o.inner.Describe() + ")" }

type sortByOp struct {
	key Operation
}

func (o *sortByOp) Apply(input value.Value) (value.Value, error) {
	switch input.Kind {
	case value.KindArray:
		keys, err := o.keysFor(input.Arr)
		if err != nil {
			return value.Null(), err
		}
		order := sortedOrder(keys)
		out := make([]value.Value, len(input.Arr))
		for i, j := range order {
			out[i] = input.Arr[j]
		}
		return value.ArrayVal(out...), nil
	case value.KindTable, value.KindLazy:
		tab, err := asTable(input)
		if err != nil {
			return value.Null(), err
		}
		rows := make([]value.Value, tab.Height())
		for i := range rows {
			rows[i] = tab.Row(i)
		}
		keys, err := o.keysFor(rows)
		if err != nil {
			return value.Null(), err
		}
		return value.TableVal(tab.Gather(sortedOrder(keys))), nil
	default:
		return value.Null(), &value.TypeError{Operation: "sort_by", Type: input.TypeName()}
	}
}

func (o *sortByOp) keysFor(items []value.Value) ([]value.Value, error) {
	keys := make([]value.Value, len(items))
	for i, v := range items {
		k, err := o.key.Apply(v.Clone())
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

// sortedOrder returns indices that order the keys ascending, stably.
func sortedOrder(keys []value.Value) []int {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return value.Compare(keys[order[a]], keys[order[b]]) < 0
	})
	return order
}

func (o *sortByOp) Describe() string { return "sort_by(" + o.key.Describe() + ")" }

// groupByOp buckets elements (or table rows) by the key filter, keeping
// first-seen key order.
type groupByOp struct {
	key Operation
}

func (o *groupByOp) Apply(input value.Value) (value.Value, error) {
	switch input.Kind {
	case value.KindArray:
		order, buckets, err := o.bucket(input.Arr)
		if err != nil {
			return value.Null(), err
		}
		out := make([]value.Value, len(order))
		for i, k := range order {
			out[i] = value.ArrayVal(buckets[k]...)
		}
		return value.ArrayVal(out...), nil
	case value.KindTable, value.KindLazy:
		tab, err := asTable(input)
		if err != nil {
			return value.Null(), err
		}
		rows := make([]value.Value, tab.Height())
		idx := make(map[string][]int)
		var order []string
		for i := range rows {
			rows[i] = tab.Row(i)
			k, err := o.key.Apply(rows[i].Clone())
			if err != nil {
				return value.Null(), err
			}
			key := k.Key()
			if _, seen := idx[key]; !seen {
				order = append(order, key)
			}
			idx[key] = append(idx[key], i)
		}
		out := make([]value.Value, len(order))
		for i, k := range order {
			out[i] = value.TableVal(tab.Gather(idx[k]))
		}
		return value.ArrayVal(out...), nil
	default:
		return value.Null(), &value.TypeError{Operation: "group_by", Type: input.TypeName()}
	}
}

func (o *groupByOp) bucket(items []value.Value) ([]string, map[string][]value.Value, error) {
	buckets := make(map[string][]value.Value)
	var order []string
	for _, v := range items {
		k, err := o.key.Apply(v.Clone())
		if err != nil {
			return nil, nil, err
		}
		key := k.Key()
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], v)
	}
	return order, buckets, nil
}

func (o *groupByOp) Describe() string { return "group_by(" + o.key.Describe() + ")" }

type iferrorOp struct {
	primary  Operation
	fallback Operation
}

func (o *iferrorOp) Apply(input value.Value) (value.Value, error) {
	v, err := o.primary.Apply(input.Clone())
	if err == nil && !v.IsNull() {
		return v, nil
	}
	return o.fallback.Apply(input.Clone())
}

func (o *iferrorOp) Describe() string {
	return "iferror(" + o.primary.Describe() + ", " + o.fallback.Describe() + ")"
}

func asTable(v value.Value) (*value.Table, error) {
	if v.Kind == value.KindLazy {
		return v.Lazy.Collect()
	}
	return v.Tab, nil
}
