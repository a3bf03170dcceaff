package funcs

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/datasetq/dsq/value"
)

// catalog returns every builtin in registration order. The compiler
// special-cases select, map, sort_by, group_by, and iferror because their
// arguments are filters, not values; the registry entries below exist so
// name and arity resolution stays uniform.
func catalog() []Function {
	return []Function{
		New("length", 0, 0, fnLength),
		New("keys", 0, 0, fnKeys),
		New("values", 0, 0, fnValues),
		New("has", 1, 1, fnHas),
		New("type", 0, 0, fnType),
		New("first", 0, 0, fnFirst),
		New("last", 0, 0, fnLast),
		New("reverse", 0, 0, fnReverse),
		New("unique", 0, 0, fnUnique),
		New("flatten", 0, 0, fnFlatten),
		New("range", 1, 3, fnRange),
		New("add", 0, 0, fnAdd),
		New("min", 0, -1, fnMin),
		New("max", 0, -1, fnMax),
		New("sum", 0, 0, fnSum),
		New("mean", 0, 0, fnMean),
		New("median", 0, 0, fnMedian),
		New("floor", 0, 1, numericFn("floor", math.Floor)),
		New("ceil", 0, 1, numericFn("ceil", math.Ceil)),
		New("round", 0, 1, numericFn("round", math.Round)),
		New("abs", 0, 1, fnAbs),
		New("sqrt", 0, 1, fnSqrt),
		New("pow", 2, 2, fnPow),
		New("tostring", 0, 0, fnToString),
		New("tonumber", 0, 0, fnToNumber),
		New("upper", 0, 1, stringFn("upper", strings.ToUpper)),
		New("lower", 0, 1, stringFn("lower", strings.ToLower)),
		New("trim", 0, 1, stringFn("trim", strings.TrimSpace)),
		New("lstrip", 0, 1, stringFn("lstrip", func(s string) string {
			return strings.TrimLeft(s, " \t\n\r")
		})),
		New("rstrip", 0, 1, stringFn("rstrip", func(s string) string {
			return strings.TrimRight(s, " \t\n\r")
		})),
		New("split", 1, 1, fnSplit),
		New("join", 1, 1, fnJoin),
		New("contains", 1, 1, fnContains),
		New("startswith", 1, 1, fnStartsWith),
		New("endswith", 1, 1, fnEndsWith),
		New("replace", 2, 2, fnReplace),
		New("error", 0, 1, fnError),
		New("coalesce", 0, -1, fnCoalesce),
		New("tojson", 0, 0, fnToJSON),
		New("fromjson", 0, 0, fnFromJSON),
		New("uuid", 0, 0, fnUUID),
		New("sha256", 0, 1, fnSha256),
		New("now", 0, 0, fnNow),
		New("today", 0, 0, fnToday),
		New("sort", 0, 0, fnSort),

		// Filter-argument builtins; the engine compiles dedicated
		// operations for these and never reaches the fallback below.
		New("select", 1, 1, filterArgOnly("select")),
		New("map", 1, 1, filterArgOnly("map")),
		New("sort_by", 1, 1, filterArgOnly("sort_by")),
		New("group_by", 1, 1, filterArgOnly("group_by")),
		New("iferror", 2, 2, filterArgOnly("iferror")),
	}
}

func filterArgOnly(name string) func(value.Value, []value.Value) (value.Value, error) {
	return func(value.Value, []value.Value) (value.Value, error) {
		return value.Null(), value.Errorf("%s takes a filter argument and cannot be called dynamically", name)
	}
}

// subject picks the operand: the single argument when present, otherwise
// the input flowing through the filter.
func subject(input value.Value, args []value.Value) value.Value {
	if len(args) > 0 {
		return args[0]
	}
	return input
}

func fnLength(input value.Value, _ []value.Value) (value.Value, error) {
	if input.IsNull() {
		return value.IntVal(0), nil
	}
	if n, ok := input.Len(); ok {
		return value.IntVal(int64(n)), nil
	}
	return value.Null(), &value.TypeError{Operation: "length", Type: input.TypeName()}
}

func fnKeys(input value.Value, _ []value.Value) (value.Value, error) {
	switch input.Kind {
	case value.KindObject:
		keys := make([]string, 0, len(input.Obj))
		for k := range input.Obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i] = value.StrVal(k)
		}
		return value.ArrayVal(out...), nil
	case value.KindTable:
		names := input.Tab.Names()
		out := make([]value.Value, len(names))
		for i, n := range names {
			out[i] = value.StrVal(n)
		}
		return value.ArrayVal(out...), nil
	default:
		return value.Null(), &value.TypeError{Operation: "keys", Type: input.TypeName()}
	}
}

func fnValues(input value.Value, _ []value.Value) (value.Value, error) {
	switch input.Kind {
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
	case value.KindArray:
		return input, nil
	default:
		return value.Null(), &value.TypeError{Operation: "values", Type: input.TypeName()}
	}
}

func fnHas(input value.Value, args []value.Value) (value.Value, error) {
	switch input.Kind {
	case value.KindObject:
		if args[0].Kind != value.KindString {
			return value.Null(), value.Errorf("has: expected a string key, got %s", args[0].TypeName())
		}
		_, ok := input.Obj[args[0].Str]
		return value.BoolVal(ok), nil
	case value.KindArray:
		if args[0].Kind != value.KindInt {
			return value.Null(), value.Errorf("has: expected an integer index, got %s", args[0].TypeName())
		}
		i := args[0].Int
		return value.BoolVal(i >= 0 && i < int64(len(input.Arr))), nil
	default:
		return value.Null(), &value.TypeError{Operation: "has", Type: input.TypeName()}
	}
}

func fnType(input value.Value, _ []value.Value) (value.Value, error) {
	return value.StrVal(input.TypeName()), nil
}

func fnFirst(input value.Value, _ []value.Value) (value.Value, error) {
	return edgeElement(input, "first", 0)
}

func fnLast(input value.Value, _ []value.Value) (value.Value, error) {
	return edgeElement(input, "last", -1)
}

func edgeElement(input value.Value, op string, idx int64) (value.Value, error) {
	switch input.Kind {
	case value.KindArray, value.KindSeries, value.KindTable, value.KindString:
		return input.Index(idx)
	default:
		return value.Null(), &value.TypeError{Operation: op, Type: input.TypeName()}
	}
}

func fnReverse(input value.Value, _ []value.Value) (value.Value, error) {
	switch input.Kind {
	case value.KindArray:
		out := make([]value.Value, len(input.Arr))
		for i, v := range input.Arr {
			out[len(input.Arr)-1-i] = v
		}
		return value.ArrayVal(out...), nil
	case value.KindString:
		runes := []rune(input.Str)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return value.StrVal(string(runes)), nil
	default:
		return value.Null(), &value.TypeError{Operation: "reverse", Type: input.TypeName()}
	}
}

func fnUnique(input value.Value, _ []value.Value) (value.Value, error) {
	if input.Kind != value.KindArray {
		return value.Null(), &value.TypeError{Operation: "unique", Type: input.TypeName()}
	}
	out := append([]value.Value(nil), input.Arr...)
	sort.SliceStable(out, func(i, j int) bool { return value.Compare(out[i], out[j]) < 0 })
	dedup := out[:0]
	for i, v := range out {
		if i == 0 || value.Compare(out[i-1], v) != 0 {
			dedup = append(dedup, v)
		}
	}
	return value.ArrayVal(dedup...), nil
}

func fnFlatten(input value.Value, _ []value.Value) (value.Value, error) {
	if input.Kind != value.KindArray {
		return value.Null(), &value.TypeError{Operation: "flatten", Type: input.TypeName()}
	}
	var out []value.Value
	for _, v := range input.Arr {
		if v.Kind == value.KindArray {
			out = append(out, v.Arr...)
		} else {
			out = append(out, v)
		}
	}
	return value.ArrayVal(out...), nil
}

func fnRange(_ value.Value, args []value.Value) (value.Value, error) {
	var from, to, step int64 = 0, 0, 1
	for _, a := range args {
		if a.Kind != value.KindInt {
			return value.Null(), value.Errorf("range: expected integer arguments, got %s", a.TypeName())
		}
	}
	switch len(args) {
	case 1:
		to = args[0].Int
	case 2:
		from, to = args[0].Int, args[1].Int
	case 3:
		from, to, step = args[0].Int, args[1].Int, args[2].Int
	}
	if step == 0 {
		return value.Null(), value.Errorf("range: step must not be zero")
	}
	var out []value.Value
	if step > 0 {
		for i := from; i < to; i += step {
			out = append(out, value.IntVal(i))
		}
	} else {
		for i := from; i > to; i += step {
			out = append(out, value.IntVal(i))
		}
	}
	return value.ArrayVal(out...), nil
}

func fnAdd(input value.Value, _ []value.Value) (value.Value, error) {
	if input.Kind != value.KindArray {
		return value.Null(), &value.TypeError{Operation: "add", Type: input.TypeName()}
	}
	if len(input.Arr) == 0 {
		return value.Null(), nil
	}
	acc := input.Arr[0]
	for _, v := range input.Arr[1:] {
		var err error
		acc, err = value.Arith("+", acc, v)
		if err != nil {
			return value.Null(), err
		}
	}
	return acc, nil
}

func fnMin(input value.Value, args []value.Value) (value.Value, error) {
	return extremum(input, args, "min", -1)
}

func fnMax(input value.Value, args []value.Value) (value.Value, error) {
	return extremum(input, args, "max", 1)
}

func extremum(input value.Value, args []value.Value, op string, sign int) (value.Value, error) {
	vals := args
	if len(vals) == 0 {
		v, err := elements(input, op)
		if err != nil {
			return value.Null(), err
		}
		vals = v
	}
	best := value.Null()
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		if best.IsNull() || value.Compare(v, best)*sign > 0 {
			best = v
		}
	}
	return best, nil
}

func elements(input value.Value, op string) ([]value.Value, error) {
	switch input.Kind {
	case value.KindArray:
		return input.Arr, nil
	case value.KindSeries:
		return input.Ser.Vals, nil
	default:
		return nil, &value.TypeError{Operation: op, Type: input.TypeName()}
	}
}

func fnSum(input value.Value, _ []value.Value) (value.Value, error) {
	vals, err := elements(input, "sum")
	if err != nil {
		return value.Null(), err
	}
	acc := value.Null()
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		if acc.IsNull() {
			acc = v
			continue
		}
		acc, err = value.Arith("+", acc, v)
		if err != nil {
			return value.Null(), err
		}
	}
	return acc, nil
}

func fnMean(input value.Value, _ []value.Value) (value.Value, error) {
	vals, err := elements(input, "mean")
	if err != nil {
		return value.Null(), err
	}
	var sum float64
	count := 0
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			return value.Null(), value.Errorf("mean: non-numeric value %s", v.AsString())
		}
		sum += f
		count++
	}
	if count == 0 {
		return value.Null(), nil
	}
	return value.FloatVal(sum / float64(count)), nil
}

func fnMedian(input value.Value, _ []value.Value) (value.Value, error) {
	vals, err := elements(input, "median")
	if err != nil {
		return value.Null(), err
	}
	var nums []float64
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			return value.Null(), value.Errorf("median: non-numeric value %s", v.AsString())
		}
		nums = append(nums, f)
	}
	if len(nums) == 0 {
		return value.Null(), nil
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return value.FloatVal(nums[mid]), nil
	}
	return value.FloatVal((nums[mid-1] + nums[mid]) / 2), nil
}

func numericFn(op string, fn func(float64) float64) func(value.Value, []value.Value) (value.Value, error) {
	return func(input value.Value, args []value.Value) (value.Value, error) {
		v := subject(input, args)
		if v.IsNull() {
			return value.Null(), nil
		}
		if v.Kind == value.KindInt {
			return v, nil
		}
		f, ok := v.AsFloat()
		if !ok {
			return value.Null(), &value.TypeError{Operation: op, Type: v.TypeName()}
		}
		return value.FloatVal(fn(f)), nil
	}
}

func fnAbs(input value.Value, args []value.Value) (value.Value, error) {
	v := subject(input, args)
	switch v.Kind {
	case value.KindNull:
		return value.Null(), nil
	case value.KindInt:
		if v.Int < 0 {
			return value.Negate(v)
		}
		return v, nil
	case value.KindFloat:
		return value.FloatVal(math.Abs(v.Float)), nil
	case value.KindBigInt:
		if v.Big.Sign() < 0 {
			return value.Negate(v)
		}
		return v, nil
	default:
		return value.Null(), &value.TypeError{Operation: "abs", Type: v.TypeName()}
	}
}

func fnSqrt(input value.Value, args []value.Value) (value.Value, error) {
	v := subject(input, args)
	if v.IsNull() {
		return value.Null(), nil
	}
	f, ok := v.AsFloat()
	if !ok {
		return value.Null(), &value.TypeError{Operation: "sqrt", Type: v.TypeName()}
	}
	if f < 0 {
		return value.Null(), value.Errorf("sqrt: negative argument %g", f)
	}
	return value.FloatVal(math.Sqrt(f)), nil
}

func fnPow(_ value.Value, args []value.Value) (value.Value, error) {
	base, ok1 := args[0].AsFloat()
	exp, ok2 := args[1].AsFloat()
	if !ok1 || !ok2 {
		return value.Null(), value.Errorf("pow: expected numeric arguments")
	}
	return value.FloatVal(math.Pow(base, exp)), nil
}

func fnToString(input value.Value, _ []value.Value) (value.Value, error) {
	return value.StrVal(input.AsString()), nil
}

func fnToNumber(input value.Value, _ []value.Value) (value.Value, error) {
	switch input.Kind {
	case value.KindInt, value.KindFloat, value.KindBigInt:
		return input, nil
	case value.KindString:
		s := strings.TrimSpace(input.Str)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return value.IntVal(i), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return value.FloatVal(f), nil
		}
		return value.Null(), value.Errorf("tonumber: cannot parse %q", input.Str)
	default:
		return value.Null(), &value.TypeError{Operation: "tonumber", Type: input.TypeName()}
	}
}

func stringFn(op string, fn func(string) string) func(value.Value, []value.Value) (value.Value, error) {
	return func(input value.Value, args []value.Value) (value.Value, error) {
		v := subject(input, args)
		if v.IsNull() {
			return value.Null(), nil
		}
		if v.Kind != value.KindString {
			return value.Null(), &value.TypeError{Operation: op, Type: v.TypeName()}
		}
		return value.StrVal(fn(v.Str)), nil
	}
}

func fnSplit(input value.Value, args []value.Value) (value.Value, error) {
	if input.Kind != value.KindString || args[0].Kind != value.KindString {
		return value.Null(), &value.TypeError{Operation: "split", Type: input.TypeName()}
	}
	parts := strings.Split(input.Str, args[0].Str)
	out := make([]value.Value, len(parts))
	for i, p := range parts {
		out[i] = value.StrVal(p)
	}
	return value.ArrayVal(out...), nil
}

func fnJoin(input value.Value, args []value.Value) (value.Value, error) {
	if input.Kind != value.KindArray || args[0].Kind != value.KindString {
		return value.Null(), &value.TypeError{Operation: "join", Type: input.TypeName()}
	}
	parts := make([]string, len(input.Arr))
	for i, v := range input.Arr {
		parts[i] = v.AsString()
	}
	return value.StrVal(strings.Join(parts, args[0].Str)), nil
}

func fnContains(input value.Value, args []value.Value) (value.Value, error) {
	switch input.Kind {
	case value.KindString:
		if args[0].Kind != value.KindString {
			return value.Null(), value.Errorf("contains: expected a string argument")
		}
		return value.BoolVal(strings.Contains(input.Str, args[0].Str)), nil
	case value.KindArray:
		for _, v := range input.Arr {
			if value.Equal(v, args[0]) {
				return value.BoolVal(true), nil
			}
		}
		return value.BoolVal(false), nil
	default:
		return value.Null(), &value.TypeError{Operation: "contains", Type: input.TypeName()}
	}
}

func fnStartsWith(input value.Value, args []value.Value) (value.Value, error) {
	if input.Kind != value.KindString || args[0].Kind != value.KindString {
		return value.Null(), &value.TypeError{Operation: "startswith", Type: input.TypeName()}
	}
	return value.BoolVal(strings.HasPrefix(input.Str, args[0].Str)), nil
}

func fnEndsWith(input value.Value, args []value.Value) (value.Value, error) {
	if input.Kind != value.KindString || args[0].Kind != value.KindString {
		return value.Null(), &value.TypeError{Operation: "endswith", Type: input.TypeName()}
	}
	return value.BoolVal(strings.HasSuffix(input.Str, args[0].Str)), nil
}

func fnReplace(input value.Value, args []value.Value) (value.Value, error) {
	if input.Kind != value.KindString || args[0].Kind != value.KindString || args[1].Kind != value.KindString {
		return value.Null(), &value.TypeError{Operation: "replace", Type: input.TypeName()}
	}
	return value.StrVal(strings.ReplaceAll(input.Str, args[0].Str, args[1].Str)), nil
}

func fnError(input value.Value, args []value.Value) (value.Value, error) {
	msg := input.AsString()
	if len(args) > 0 {
		msg = args[0].AsString()
	}
	return value.Null(), &value.OperationError{Msg: msg}
}

func fnCoalesce(input value.Value, args []value.Value) (value.Value, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	if len(args) == 0 && !input.IsNull() {
		return input, nil
	}
	return value.Null(), nil
}

func fnToJSON(input value.Value, _ []value.Value) (value.Value, error) {
	b, err := json.Marshal(input.ToGo())
	if err != nil {
		return value.Null(), value.Errorf("tojson: %v", err)
	}
	return value.StrVal(string(b)), nil
}

func fnFromJSON(input value.Value, _ []value.Value) (value.Value, error) {
	if input.Kind != value.KindString {
		return value.Null(), &value.TypeError{Operation: "fromjson", Type: input.TypeName()}
	}
	var out interface{}
	if err := json.Unmarshal([]byte(input.Str), &out); err != nil {
		return value.Null(), value.Errorf("fromjson: %v", err)
	}
	return value.FromGo(out), nil
}

func fnUUID(_ value.Value, _ []value.Value) (value.Value, error) {
	return value.StrVal(uuid.NewString()), nil
}

func fnSha256(input value.Value, args []value.Value) (value.Value, error) {
	v := subject(input, args)
	if v.Kind != value.KindString {
		return value.Null(), &value.TypeError{Operation: "sha256", Type: v.TypeName()}
	}
	sum := sha256.Sum256([]byte(v.Str))
	return value.StrVal(hex.EncodeToString(sum[:])), nil
}

func fnNow(_ value.Value, _ []value.Value) (value.Value, error) {
	return value.FloatVal(float64(time.Now().UnixNano()) / 1e9), nil
}

func fnToday(_ value.Value, _ []value.Value) (value.Value, error) {
	return value.StrVal(time.Now().Format("2006-01-02")), nil
}

func fnSort(input value.Value, _ []value.Value) (value.Value, error) {
	if input.Kind != value.KindArray {
		return value.Null(), &value.TypeError{Operation: "sort", Type: input.TypeName()}
	}
	out := append([]value.Value(nil), input.Arr...)
	sort.SliceStable(out, func(i, j int) bool { return value.Compare(out[i], out[j]) < 0 })
	return value.ArrayVal(out...), nil
}
