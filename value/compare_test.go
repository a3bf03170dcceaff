package value

import (
	"math"
	"math/big"
	"sort"
	"testing"
)

func TestTotalOrderRanks(t *testing.T) {
	// Every adjacent pair must order strictly by kind rank.
	ladder := []Value{
		Null(),
		BoolVal(false),
		BoolVal(true),
		FloatVal(math.NaN()),
		IntVal(-1),
		FloatVal(0.5),
		IntVal(1),
		StrVal(""),
		StrVal("a"),
		ArrayVal(),
		ArrayVal(IntVal(1)),
		ObjectVal(map[string]Value{}),
		SeriesVal(NewSeries("s", nil)),
		TableVal(EmptyTable()),
	}
	for i := 0; i < len(ladder)-1; i++ {
		if Compare(ladder[i], ladder[i+1]) >= 0 {
			t.Errorf("ladder[%d] (%s) should sort before ladder[%d] (%s)",
				i, ladder[i].AsString(), i+1, ladder[i+1].AsString())
		}
		if Compare(ladder[i+1], ladder[i]) <= 0 {
			t.Errorf("ordering not antisymmetric at %d", i)
		}
	}
}

func TestNaNOrdering(t *testing.T) {
	nan := FloatVal(math.NaN())
	if Compare(nan, nan) != 0 {
		t.Error("NaN must compare equal to itself")
	}
	if Compare(nan, FloatVal(math.Inf(-1))) != -1 {
		t.Error("NaN must sort below -Inf")
	}
	if Compare(IntVal(0), nan) != 1 {
		t.Error("every number must sort above NaN")
	}
}

func TestNumericCrossKindEquality(t *testing.T) {
	if !Equal(IntVal(1), FloatVal(1.0)) {
		t.Error("Int(1) should equal Float(1.0)")
	}
	if Equal(IntVal(1), StrVal("1")) {
		t.Error("Int(1) must not equal String(\"1\")")
	}
	if Compare(IntVal(2), FloatVal(2.5)) != -1 {
		t.Error("Int(2) should sort before Float(2.5)")
	}
}

func TestSortIsStableAndDeterministic(t *testing.T) {
	vals := []Value{
		StrVal("b"), IntVal(3), Null(), FloatVal(math.NaN()),
		StrVal("a"), IntVal(1), BoolVal(true),
	}
	a := append([]Value(nil), vals...)
	b := append([]Value(nil), vals...)
	sort.SliceStable(a, func(i, j int) bool { return Compare(a[i], a[j]) < 0 })
	sort.SliceStable(b, func(i, j int) bool { return Compare(b[i], b[j]) < 0 })
	for i := range a {
		if Compare(a[i], b[i]) != 0 {
			t.Fatalf("sort not deterministic at %d: %s vs %s", i, a[i].AsString(), b[i].AsString())
		}
	}
	if !a[0].IsNull() || a[1].Kind != KindBool {
		t.Errorf("unexpected sorted head: %s, %s", a[0].AsString(), a[1].AsString())
	}
	if !math.IsNaN(a[2].Float) {
		t.Errorf("NaN should lead the numbers, got %s", a[2].AsString())
	}
}

func TestKeyDistinguishesTypes(t *testing.T) {
	if IntVal(1).Key() == StrVal("1").Key() {
		t.Error("grouping keys must not collide across types")
	}
	if IntVal(1).Key() == BoolVal(true).Key() {
		t.Error("Int(1) and Bool(true) must key differently")
	}
}

func TestKeyMatchesNumericEquality(t *testing.T) {
	big26 := BigVal(new(big.Int).Lsh(big.NewInt(1), 26))
	cases := []struct {
		a, b Value
	}{
		{IntVal(1), FloatVal(1.0)},
		{IntVal(0), FloatVal(0.0)},
		{IntVal(-3), FloatVal(-3.0)},
		{IntVal(1), BigVal(big.NewInt(1))},
		{FloatVal(1 << 26), big26},
		{FloatVal(math.NaN()), FloatVal(math.NaN())},
	}
	for _, c := range cases {
		if !Equal(c.a, c.b) {
			t.Fatalf("%s and %s should be equal", c.a.AsString(), c.b.AsString())
		}
		if c.a.Key() != c.b.Key() {
			t.Errorf("equal values %s and %s key differently (%q vs %q)",
				c.a.AsString(), c.b.AsString(), c.a.Key(), c.b.Key())
		}
	}
	if IntVal(1).Key() == FloatVal(1.5).Key() {
		t.Error("unequal numbers must not share a key")
	}
}
