package value

import (
	"math"
	"math/big"
)

var arithNames = map[string]string{"+": "add", "-": "sub", "*": "mul", "/": "div"}

// OpName maps an operator symbol to the name used in error messages.
func OpName(op string) string {
	if n, ok := arithNames[op]; ok {
		return n
	}
	return op
}

// Arith applies an arithmetic operator with numeric promotion: Int op Int
// stays Int unless the result is unrepresentable (then BigInt), division
// always yields Float, Int and Float mix as Float, BigInt combines exactly,
// String + String concatenates, Array + Array appends, and Series broadcast
// element-wise against scalars and equal-length Series.
func Arith(op string, a, b Value) (Value, error) {
	if a.Kind == KindSeries || b.Kind == KindSeries {
		return broadcast(a, b, func(x, y Value) (Value, error) {
			return Arith(op, x, y)
		})
	}

	if op == "+" {
		if a.Kind == KindString && b.Kind == KindString {
			return StrVal(a.Str + b.Str), nil
		}
		if a.Kind == KindArray && b.Kind == KindArray {
			out := make([]Value, 0, len(a.Arr)+len(b.Arr))
			out = append(out, a.Arr...)
			out = append(out, b.Arr...)
			return ArrayVal(out...), nil
		}
	}

	if !a.IsNumeric() {
		return Null(), &TypeError{Operation: OpName(op), Type: a.TypeName()}
	}
	if !b.IsNumeric() {
		return Null(), &TypeError{Operation: OpName(op), Type: b.TypeName()}
	}

	if op == "/" {
		return divide(a, b)
	}

	// Exact path when a big integer is involved.
	if a.Kind == KindBigInt || b.Kind == KindBigInt {
		if a.Kind == KindFloat || b.Kind == KindFloat {
			return floatArith(op, toFloat(a), toFloat(b)), nil
		}
		return normalizeBig(bigArith(op, toBig(a), toBig(b))), nil
	}

	if a.Kind == KindInt && b.Kind == KindInt {
		if r, ok := intArith(op, a.Int, b.Int); ok {
			return IntVal(r), nil
		}
		// Overflow: redo exactly.
		return normalizeBig(bigArith(op, big.NewInt(a.Int), big.NewInt(b.Int))), nil
	}

	return floatArith(op, toFloat(a), toFloat(b)), nil
}

func divide(a, b Value) (Value, error) {
	if (b.Kind == KindInt && b.Int == 0) ||
		(b.Kind == KindBigInt && b.Big.Sign() == 0) {
		return Null(), ErrDivisionByZero
	}
	return FloatVal(toFloat(a) / toFloat(b)), nil
}

func intArith(op string, a, b int64) (int64, bool) {
	switch op {
	case "+":
		r := a + b
		if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
			return 0, false
		}
		return r, true
	case "-":
		r := a - b
		if (a >= 0 && b < 0 && r < 0) || (a < 0 && b > 0 && r >= 0) {
			return 0, false
		}
		return r, true
	case "*":
		if a == 0 || b == 0 {
			return 0, true
		}
		r := a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return 0, false
		}
		return r, true
	}
	return 0, false
}

func bigArith(op string, a, b *big.Int) *big.Int {
	r := new(big.Int)
	switch op {
	case "+":
		return r.Add(a, b)
	case "-":
		return r.Sub(a, b)
	case "*":
		return r.Mul(a, b)
	}
	return r
}

// normalizeBig demotes a big integer back to Int when it fits in 64 bits.
func normalizeBig(b *big.Int) Value {
	if b.IsInt64() {
		return IntVal(b.Int64())
	}
	return BigVal(b)
}

func floatArith(op string, a, b float64) Value {
	switch op {
	case "+":
		return FloatVal(a + b)
	case "-":
		return FloatVal(a - b)
	case "*":
		return FloatVal(a * b)
	}
	return Null()
}

func toFloat(v Value) float64 {
	f, _ := v.AsFloat()
	return f
}

func toBig(v Value) *big.Int {
	if v.Kind == KindBigInt {
		return v.Big
	}
	return big.NewInt(v.Int)
}

// CompareOp applies a comparison operator. Equality is structural; ordering
// follows the total order of Compare, so cross-type comparisons are
// deterministic. Series broadcast element-wise and yield a boolean Series
// usable as a row mask.
func CompareOp(op string, a, b Value) (Value, error) {
	if a.Kind == KindSeries || b.Kind == KindSeries {
		return broadcast(a, b, func(x, y Value) (Value, error) {
			return CompareOp(op, x, y)
		})
	}
	switch op {
	case "==":
		return BoolVal(Equal(a, b)), nil
	case "!=":
		return BoolVal(!Equal(a, b)), nil
	}
	cmp := Compare(a, b)
	switch op {
	case "<":
		return BoolVal(cmp < 0), nil
	case "<=":
		return BoolVal(cmp <= 0), nil
	case ">":
		return BoolVal(cmp > 0), nil
	case ">=":
		return BoolVal(cmp >= 0), nil
	}
	return Null(), Errorf("unknown comparison operator %q", op)
}

// broadcast maps a binary function over one or two series.
func broadcast(a, b Value, fn func(Value, Value) (Value, error)) (Value, error) {
	switch {
	case a.Kind == KindSeries && b.Kind == KindSeries:
		if a.Ser.Len() != b.Ser.Len() {
			return Null(), Errorf("series length mismatch: %d vs %d", a.Ser.Len(), b.Ser.Len())
		}
		out := make([]Value, a.Ser.Len())
		for i := range out {
			r, err := fn(a.Ser.Vals[i], b.Ser.Vals[i])
			if err != nil {
				return Null(), err
			}
			out[i] = r
		}
		return SeriesVal(NewSeries(a.Ser.Name, out)), nil
	case a.Kind == KindSeries:
		out := make([]Value, a.Ser.Len())
		for i, x := range a.Ser.Vals {
			r, err := fn(x, b)
			if err != nil {
				return Null(), err
			}
			out[i] = r
		}
		return SeriesVal(NewSeries(a.Ser.Name, out)), nil
	default:
		out := make([]Value, b.Ser.Len())
		for i, y := range b.Ser.Vals {
			r, err := fn(a, y)
			if err != nil {
				return Null(), err
			}
			out[i] = r
		}
		return SeriesVal(NewSeries(b.Ser.Name, out)), nil
	}
}

// Negate returns the arithmetic negation. Series negate element-wise.
func Negate(v Value) (Value, error) {
	switch v.Kind {
	case KindInt:
		if v.Int == math.MinInt64 {
			return BigVal(new(big.Int).Neg(big.NewInt(v.Int))), nil
		}
		return IntVal(-v.Int), nil
	case KindFloat:
		return FloatVal(-v.Float), nil
	case KindBigInt:
		return normalizeBig(new(big.Int).Neg(v.Big)), nil
	case KindSeries:
		out := make([]Value, v.Ser.Len())
		for i, x := range v.Ser.Vals {
			r, err := Negate(x)
			if err != nil {
				return Null(), err
			}
			out[i] = r
		}
		return SeriesVal(NewSeries(v.Ser.Name, out)), nil
	default:
		return Null(), &TypeError{Operation: "negate", Type: v.TypeName()}
	}
}
