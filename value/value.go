package value

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"unicode/utf8"
)

// Kind identifies the runtime type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindBigInt
	KindFloat
	KindString
	KindArray
	KindObject
	KindSeries
	KindTable
	KindLazy
)

var kindNames = map[Kind]string{
	KindNull: "null", KindBool: "boolean", KindInt: "integer", KindBigInt: "biginteger",
	KindFloat: "float", KindString: "string", KindArray: "array", KindObject: "object",
	KindSeries: "series", KindTable: "table", KindLazy: "lazytable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is the dynamically-typed unit all data flows through. Exactly one
// payload field is meaningful, selected by Kind. Values are immutable once
// produced: operations take a Value and return a newly built one.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Big   *big.Int
	Arr   []Value
	Obj   map[string]Value
	Ser   *Series
	Tab   *Table
	Lazy  *LazyTable
}

// Null returns a null value.
func Null() Value {
	return Value{Kind: KindNull}
}

// BoolVal creates a boolean value.
func BoolVal(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

// IntVal creates an integer value.
func IntVal(v int64) Value {
	return Value{Kind: KindInt, Int: v}
}

// BigVal creates an arbitrary-precision integer value.
func BigVal(v *big.Int) Value {
	return Value{Kind: KindBigInt, Big: v}
}

// FloatVal creates a float value.
func FloatVal(v float64) Value {
	return Value{Kind: KindFloat, Float: v}
}

// StrVal creates a string value.
func StrVal(v string) Value {
	return Value{Kind: KindString, Str: v}
}

// ArrayVal creates an array value.
func ArrayVal(items ...Value) Value {
	return Value{Kind: KindArray, Arr: items}
}

// ObjectVal creates an object value from a key/value map.
func ObjectVal(m map[string]Value) Value {
	return Value{Kind: KindObject, Obj: m}
}

// SeriesVal wraps a Series.
func SeriesVal(s *Series) Value {
	return Value{Kind: KindSeries, Ser: s}
}

// TableVal wraps a Table.
func TableVal(t *Table) Value {
	return Value{Kind: KindTable, Tab: t}
}

// LazyVal wraps a LazyTable.
func LazyVal(l *LazyTable) Value {
	return Value{Kind: KindLazy, Lazy: l}
}

// TypeName returns the runtime type name used in error messages.
func (v Value) TypeName() string {
	return v.Kind.String()
}

// IsNull returns true if the value is null.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Truthy reports whether the value counts as true in logical contexts.
// Null, BigInt, Series, Table, and LazyTable are never truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0.0
	case KindString:
		return v.Str != ""
	case KindArray:
		return len(v.Arr) != 0
	case KindObject:
		return len(v.Obj) != 0
	default:
		return false
	}
}

// AsFloat attempts to coerce to float64 for arithmetic.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	case KindBigInt:
		f, _ := new(big.Float).SetInt(v.Big).Float64()
		return f, true
	default:
		return 0, false
	}
}

// IsNumeric reports whether the value is Int, Float, or BigInt.
func (v Value) IsNumeric() bool {
	return v.Kind == KindInt || v.Kind == KindFloat || v.Kind == KindBigInt
}

// Len returns the element count for sized values: rune count for strings,
// element count for arrays, key count for objects, length for series, and
// row count for tables.
func (v Value) Len() (int, bool) {
	switch v.Kind {
	case KindString:
		return utf8.RuneCountInString(v.Str), true
	case KindArray:
		return len(v.Arr), true
	case KindObject:
		return len(v.Obj), true
	case KindSeries:
		return v.Ser.Len(), true
	case KindTable:
		return v.Tab.Height(), true
	default:
		return 0, false
	}
}

// Field accesses a named member. Null passes through, missing object keys
// yield Null, arrays map the access over their elements, and tables return
// the column as a Series (Null when absent).
func (v Value) Field(name string) (Value, error) {
	switch v.Kind {
	case KindNull:
		return Null(), nil
	case KindObject:
		if f, ok := v.Obj[name]; ok {
			return f, nil
		}
		return Null(), nil
	case KindArray:
		out := make([]Value, len(v.Arr))
		for i, item := range v.Arr {
			f, err := item.Field(name)
			if err != nil {
				return Null(), err
			}
			out[i] = f
		}
		return ArrayVal(out...), nil
	case KindTable:
		if col := v.Tab.Column(name); col != nil {
			return SeriesVal(col), nil
		}
		return Null(), nil
	case KindLazy:
		t, err := v.Lazy.Collect()
		if err != nil {
			return Null(), err
		}
		return TableVal(t).Field(name)
	default:
		return Null(), &TypeError{Operation: "field", Type: v.TypeName()}
	}
}

// Index accesses by position. Negative indices count from the end;
// out-of-range access yields Null. String indexing yields a one-rune
// string, table indexing yields the row as an object.
func (v Value) Index(idx int64) (Value, error) {
	switch v.Kind {
	case KindNull:
		return Null(), nil
	case KindArray:
		i, ok := normalizeIndex(idx, len(v.Arr))
		if !ok {
			return Null(), nil
		}
		return v.Arr[i], nil
	case KindString:
		runes := []rune(v.Str)
		i, ok := normalizeIndex(idx, len(runes))
		if !ok {
			return Null(), nil
		}
		return StrVal(string(runes[i])), nil
	case KindSeries:
		i, ok := normalizeIndex(idx, v.Ser.Len())
		if !ok {
			return Null(), nil
		}
		return v.Ser.Vals[i], nil
	case KindTable:
		i, ok := normalizeIndex(idx, v.Tab.Height())
		if !ok {
			return Null(), nil
		}
		return v.Tab.Row(i), nil
	case KindLazy:
		t, err := v.Lazy.Collect()
		if err != nil {
			return Null(), err
		}
		return TableVal(t).Index(idx)
	default:
		return Null(), &TypeError{Operation: "index", Type: v.TypeName()}
	}
}

func normalizeIndex(idx int64, length int) (int, bool) {
	if idx < 0 {
		idx += int64(length)
	}
	if idx < 0 || idx >= int64(length) {
		return 0, false
	}
	return int(idx), true
}

// SliceRange returns the half-open range [from,to) of an array, string, or
// table. Negative offsets count from the end and bounds are clamped; an
// unset bound defaults to the corresponding end.
func (v Value) SliceRange(from, to int64, hasFrom, hasTo bool) (Value, error) {
	length, ok := v.Len()
	if v.Kind == KindString {
		length = len([]rune(v.Str))
		ok = true
	}
	switch v.Kind {
	case KindNull:
		return Null(), nil
	case KindArray:
		lo, hi := clampRange(from, to, hasFrom, hasTo, length)
		return ArrayVal(v.Arr[lo:hi:hi]...), nil
	case KindString:
		runes := []rune(v.Str)
		lo, hi := clampRange(from, to, hasFrom, hasTo, length)
		return StrVal(string(runes[lo:hi])), nil
	case KindTable:
		lo, hi := clampRange(from, to, hasFrom, hasTo, length)
		return TableVal(v.Tab.SliceRows(lo, hi)), nil
	default:
		_ = ok
		return Null(), &TypeError{Operation: "slice", Type: v.TypeName()}
	}
}

func clampRange(from, to int64, hasFrom, hasTo bool, length int) (int, int) {
	n := int64(length)
	lo, hi := int64(0), n
	if hasFrom {
		lo = from
		if lo < 0 {
			lo += n
		}
	}
	if hasTo {
		hi = to
		if hi < 0 {
			hi += n
		}
	}
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo > hi {
		lo = hi
	}
	return int(lo), int(hi)
}

// Clone returns a value safe to hand to an independent consumer. Arrays and
// objects are copied; Series, Table, and LazyTable share their backing
// storage, which callers must treat as read-only.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindArray:
		out := make([]Value, len(v.Arr))
		for i, item := range v.Arr {
			out[i] = item.Clone()
		}
		return ArrayVal(out...)
	case KindObject:
		out := make(map[string]Value, len(v.Obj))
		for k, f := range v.Obj {
			out[k] = f.Clone()
		}
		return ObjectVal(out)
	case KindSeries:
		return SeriesVal(v.Ser.Clone())
	case KindTable:
		return TableVal(v.Tab.Clone())
	default:
		return v
	}
}

// AsString returns a display representation. Object keys print sorted so
// the output is deterministic.
func (v Value) AsString() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindBigInt:
		return v.Big.String()
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	case KindArray:
		parts := make([]string, len(v.Arr))
		for i, item := range v.Arr {
			parts[i] = item.AsString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		keys := make([]string, 0, len(v.Obj))
		for k := range v.Obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.Obj[k].AsString()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindSeries:
		parts := make([]string, v.Ser.Len())
		for i, item := range v.Ser.Vals {
			parts[i] = item.AsString()
		}
		return v.Ser.Name + ": [" + strings.Join(parts, ", ") + "]"
	case KindTable:
		return v.Tab.String()
	case KindLazy:
		return fmt.Sprintf("lazytable(%d pending)", len(v.Lazy.stages))
	default:
		return "?"
	}
}

// Materialize collects a LazyTable into a Table and passes every other
// value through unchanged.
func Materialize(v Value) (Value, error) {
	if v.Kind != KindLazy {
		return v, nil
	}
	t, err := v.Lazy.Collect()
	if err != nil {
		return Null(), err
	}
	return TableVal(t), nil
}

// FromGo converts a decoded JSON-style Go value into a Value.
func FromGo(v interface{}) Value {
	switch val := v.(type) {
	case nil:
		return Null()
	case bool:
		return BoolVal(val)
	case float64:
		// JSON numbers decode as float64; keep integral values as Int
		if val == float64(int64(val)) {
			return IntVal(int64(val))
		}
		return FloatVal(val)
	case int:
		return IntVal(int64(val))
	case int64:
		return IntVal(val)
	case string:
		return StrVal(val)
	case []interface{}:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromGo(item)
		}
		return ArrayVal(items...)
	case map[string]interface{}:
		m := make(map[string]Value, len(val))
		for k, item := range val {
			m[k] = FromGo(item)
		}
		return ObjectVal(m)
	default:
		return StrVal(fmt.Sprintf("%v", val))
	}
}

// ToGo converts a Value into plain Go data suitable for encoding. Tables
// become slices of row maps, Series become slices.
func (v Value) ToGo() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindBigInt:
		return v.Big
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindArray:
		out := make([]interface{}, len(v.Arr))
		for i, item := range v.Arr {
			out[i] = item.ToGo()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.Obj))
		for k, f := range v.Obj {
			out[k] = f.ToGo()
		}
		return out
	case KindSeries:
		out := make([]interface{}, v.Ser.Len())
		for i, item := range v.Ser.Vals {
			out[i] = item.ToGo()
		}
		return out
	case KindTable:
		rows := make([]interface{}, v.Tab.Height())
		for i := 0; i < v.Tab.Height(); i++ {
			rows[i] = v.Tab.Row(i).ToGo()
		}
		return rows
	case KindLazy:
		t, err := v.Lazy.Collect()
		if err != nil {
			return nil
		}
		return TableVal(t).ToGo()
	default:
		return nil
	}
}
