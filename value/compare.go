package value

import (
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Kind rank used for cross-type ordering. All numeric kinds share one rank
// and compare numerically among themselves.
func rank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat, KindBigInt:
		return 2
	case KindString:
		return 3
	case KindArray:
		return 4
	case KindObject:
		return 5
	case KindSeries:
		return 6
	case KindTable:
		return 7
	default:
		return 8
	}
}

// Compare defines the total order used for sort and group keys:
// Null < Bool (false < true) < numbers < String < Array < Object < Series <
// Table < LazyTable. Numbers compare numerically across Int, Float, and
// BigInt, with NaN below every other number. The order is total and
// deterministic for every pair of values.
func Compare(a, b Value) int {
	ra, rb := rank(a.Kind), rank(b.Kind)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch a.Kind {
	case KindNull:
		return 0
	case KindBool:
		return cmpBool(a.Bool, b.Bool)
	case KindInt, KindFloat, KindBigInt:
		return compareNumeric(a, b)
	case KindString:
		return strings.Compare(a.Str, b.Str)
	case KindArray:
		n := len(a.Arr)
		if len(b.Arr) < n {
			n = len(b.Arr)
		}
		for i := 0; i < n; i++ {
			if c := Compare(a.Arr[i], b.Arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.Arr), len(b.Arr))
	case KindObject:
		ka, kb := sortedKeys(a.Obj), sortedKeys(b.Obj)
		n := len(ka)
		if len(kb) < n {
			n = len(kb)
		}
		for i := 0; i < n; i++ {
			if c := strings.Compare(ka[i], kb[i]); c != 0 {
				return c
			}
			if c := Compare(a.Obj[ka[i]], b.Obj[kb[i]]); c != 0 {
				return c
			}
		}
		return cmpInt(len(ka), len(kb))
	case KindSeries:
		if c := strings.Compare(a.Ser.Name, b.Ser.Name); c != 0 {
			return c
		}
		return Compare(ArrayVal(a.Ser.Vals...), ArrayVal(b.Ser.Vals...))
	case KindTable:
		na, nb := a.Tab.Names(), b.Tab.Names()
		if c := Compare(strsToArray(na), strsToArray(nb)); c != 0 {
			return c
		}
		for i := range a.Tab.Columns() {
			if c := Compare(SeriesVal(a.Tab.Columns()[i]), SeriesVal(b.Tab.Columns()[i])); c != 0 {
				return c
			}
		}
		return 0
	default:
		// Deferred computations are never ordered against each other;
		// callers materialize before sorting on table contents.
		return 0
	}
}

func compareNumeric(a, b Value) int {
	// NaN sorts below every other number and equal to itself.
	aNaN := a.Kind == KindFloat && math.IsNaN(a.Float)
	bNaN := b.Kind == KindFloat && math.IsNaN(b.Float)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		return cmpInt64(a.Int, b.Int)
	}
	if a.Kind != KindFloat && b.Kind != KindFloat {
		return toBig(a).Cmp(toBig(b))
	}
	if a.Kind == KindBigInt || b.Kind == KindBigInt {
		fa := new(big.Float)
		fb := new(big.Float)
		setBigFloat(fa, a)
		setBigFloat(fb, b)
		return fa.Cmp(fb)
	}
	fa, fb := toFloat(a), toFloat(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return 0
	}
}

func setBigFloat(f *big.Float, v Value) {
	switch v.Kind {
	case KindBigInt:
		f.SetInt(v.Big)
	case KindInt:
		f.SetInt64(v.Int)
	default:
		f.SetFloat64(v.Float)
	}
}

// Equal reports structural equality; numeric kinds compare numerically
// across variants, so Int(1), Float(1.0), and BigInt(1) are all equal.
func Equal(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return compareNumeric(a, b) == 0
	}
	if a.Kind != b.Kind {
		return false
	}
	return Compare(a, b) == 0
}

// Key returns a canonical grouping key. The kind prefix keeps values of
// different types from colliding on their display form. Numeric kinds share
// one prefix and a canonical rendering so that values equal under Equal
// (Int(1), Float(1.0), BigInt(1)) produce the same key.
func (v Value) Key() string {
	if v.IsNumeric() {
		return "number\x00" + canonicalNumber(v)
	}
	return v.Kind.String() + "\x00" + v.AsString()
}

func canonicalNumber(v Value) string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindBigInt:
		return v.Big.String()
	default:
		f := v.Float
		if math.IsNaN(f) {
			return "NaN"
		}
		// Integral floats render as exact integers so they collide with
		// the Int and BigInt they equal.
		if !math.IsInf(f, 0) && math.Trunc(f) == f {
			i, _ := new(big.Float).SetFloat64(f).Int(nil)
			return i.String()
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func strsToArray(ss []string) Value {
	out := make([]Value, len(ss))
	for i, s := range ss {
		out[i] = StrVal(s)
	}
	return ArrayVal(out...)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
