package value

import (
	"math/big"
	"testing"
)

func mustTable(t *testing.T, cols ...*Series) *Table {
	t.Helper()
	tab, err := NewTable(cols...)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	return tab
}

func TestTruthiness(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"null", Null(), false},
		{"true", BoolVal(true), true},
		{"false", BoolVal(false), false},
		{"int zero", IntVal(0), false},
		{"int nonzero", IntVal(-3), true},
		{"float zero", FloatVal(0.0), false},
		{"float nonzero", FloatVal(0.1), true},
		{"empty string", StrVal(""), false},
		{"string", StrVal("x"), true},
		{"empty array", ArrayVal(), false},
		{"array of null", ArrayVal(Null()), true},
		{"empty object", ObjectVal(map[string]Value{}), false},
		{"object", ObjectVal(map[string]Value{"a": Null()}), true},
		{"bigint", BigVal(big.NewInt(5)), false},
		{"series", SeriesVal(NewSeries("s", []Value{IntVal(1)})), false},
		{"table", TableVal(EmptyTable()), false},
		{"lazytable", LazyVal(NewLazy(EmptyTable())), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Truthy(); got != tt.want {
				t.Errorf("Truthy(%s) = %v, want %v", tt.v.TypeName(), got, tt.want)
			}
		})
	}
}

func TestSeriesMask(t *testing.T) {
	s := NewSeries("m", []Value{
		BoolVal(true), BoolVal(false),
		IntVal(2), IntVal(0),
		BigVal(big.NewInt(3)), BigVal(big.NewInt(0)),
		FloatVal(0.5), FloatVal(0.0),
		StrVal("x"), StrVal(""),
		Null(),
	})
	want := []bool{true, false, true, false, true, false, true, false, true, false, false}
	got := s.Mask()
	if len(got) != len(want) {
		t.Fatalf("mask length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mask[%d] (%s) = %v, want %v", i, s.Vals[i].AsString(), got[i], want[i])
		}
	}
}

func TestFieldAccess(t *testing.T) {
	obj := ObjectVal(map[string]Value{"name": StrVal("Alice"), "age": IntVal(30)})

	v, err := obj.Field("name")
	if err != nil {
		t.Fatal(err)
	}
	if v.Str != "Alice" {
		t.Errorf("expected Alice, got %q", v.Str)
	}

	// Missing key yields null, not an error.
	v, err = obj.Field("missing")
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsNull() {
		t.Errorf("expected null for missing key, got %s", v.AsString())
	}

	// Null passes through.
	v, err = Null().Field("anything")
	if err != nil || !v.IsNull() {
		t.Errorf("expected null passthrough, got %s, %v", v.AsString(), err)
	}

	// Arrays map the access over elements.
	arr := ArrayVal(obj, Null())
	v, err = arr.Field("age")
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Arr) != 2 || v.Arr[0].Int != 30 || !v.Arr[1].IsNull() {
		t.Errorf("unexpected array field result: %s", v.AsString())
	}

	// Scalars reject field access.
	if _, err := IntVal(1).Field("x"); err == nil {
		t.Error("expected TypeError for field access on integer")
	}
}

func TestTableFieldReturnsSeries(t *testing.T) {
	tab := mustTable(t,
		NewSeries("name", []Value{StrVal("a"), StrVal("b")}),
		NewSeries("age", []Value{IntVal(1), IntVal(2)}),
	)
	v, err := TableVal(tab).Field("age")
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindSeries || v.Ser.Len() != 2 || v.Ser.Vals[1].Int != 2 {
		t.Errorf("expected age series, got %s", v.AsString())
	}
	v, err = TableVal(tab).Field("missing")
	if err != nil || !v.IsNull() {
		t.Errorf("expected null for missing column, got %s, %v", v.AsString(), err)
	}
}

func TestIndexing(t *testing.T) {
	arr := ArrayVal(IntVal(10), IntVal(20), IntVal(30))

	tests := []struct {
		idx  int64
		want Value
	}{
		{0, IntVal(10)},
		{2, IntVal(30)},
		{-1, IntVal(30)},
		{-3, IntVal(10)},
		{3, Null()},
		{-4, Null()},
	}
	for _, tt := range tests {
		got, err := arr.Index(tt.idx)
		if err != nil {
			t.Fatalf("index %d: %v", tt.idx, err)
		}
		if !Equal(got, tt.want) {
			t.Errorf("index %d = %s, want %s", tt.idx, got.AsString(), tt.want.AsString())
		}
	}

	s, err := StrVal("héllo").Index(1)
	if err != nil || s.Str != "é" {
		t.Errorf("string index: got %q, %v", s.Str, err)
	}

	tab := mustTable(t, NewSeries("x", []Value{IntVal(1), IntVal(2)}))
	row, err := TableVal(tab).Index(1)
	if err != nil {
		t.Fatal(err)
	}
	if row.Kind != KindObject || row.Obj["x"].Int != 2 {
		t.Errorf("table row index: got %s", row.AsString())
	}
}

func TestSlicing(t *testing.T) {
	arr := ArrayVal(IntVal(0), IntVal(1), IntVal(2), IntVal(3))

	v, err := arr.SliceRange(1, 3, true, true)
	if err != nil || len(v.Arr) != 2 || v.Arr[0].Int != 1 {
		t.Errorf("slice [1:3]: got %s, %v", v.AsString(), err)
	}

	v, err = arr.SliceRange(-2, 0, true, false)
	if err != nil || len(v.Arr) != 2 || v.Arr[0].Int != 2 {
		t.Errorf("slice [-2:]: got %s, %v", v.AsString(), err)
	}

	// Bounds clamp rather than fail.
	v, err = arr.SliceRange(2, 100, true, true)
	if err != nil || len(v.Arr) != 2 {
		t.Errorf("slice [2:100]: got %s, %v", v.AsString(), err)
	}

	s, err := StrVal("hello").SliceRange(0, 2, true, true)
	if err != nil || s.Str != "he" {
		t.Errorf("string slice: got %q, %v", s.Str, err)
	}
}

func TestCloneIndependence(t *testing.T) {
	obj := ObjectVal(map[string]Value{"a": IntVal(1)})
	clone := obj.Clone()
	clone.Obj["a"] = IntVal(2)
	if obj.Obj["a"].Int != 1 {
		t.Error("object clone shares storage with the original")
	}

	arr := ArrayVal(IntVal(1))
	ac := arr.Clone()
	ac.Arr[0] = IntVal(9)
	if arr.Arr[0].Int != 9 && arr.Arr[0].Int != 1 {
		t.Fatal("unreachable")
	}
	if arr.Arr[0].Int != 1 {
		t.Error("array clone shares storage with the original")
	}
}

func TestLazyCollect(t *testing.T) {
	tab := mustTable(t, NewSeries("x", []Value{IntVal(1), IntVal(2), IntVal(3)}))
	lazy := NewLazy(tab).With(func(t *Table) (*Table, error) {
		return t.SliceRows(0, 2), nil
	})

	got, err := lazy.Collect()
	if err != nil {
		t.Fatal(err)
	}
	if got.Height() != 2 {
		t.Errorf("expected 2 rows after collect, got %d", got.Height())
	}

	// The base is untouched and Collect is repeatable.
	if tab.Height() != 3 {
		t.Error("collect mutated the base table")
	}
	again, err := lazy.Collect()
	if err != nil || again.Height() != 2 {
		t.Errorf("second collect: %d rows, %v", again.Height(), err)
	}
}

func TestTableFromObjects(t *testing.T) {
	rows := []Value{
		ObjectVal(map[string]Value{"a": IntVal(1), "b": StrVal("x")}),
		ObjectVal(map[string]Value{"a": IntVal(2)}),
	}
	tab, err := TableFromObjects(rows)
	if err != nil {
		t.Fatal(err)
	}
	if tab.Height() != 2 || tab.Width() != 2 {
		t.Fatalf("expected 2x2 table, got %dx%d", tab.Height(), tab.Width())
	}
	if !tab.Column("b").Vals[1].IsNull() {
		t.Error("missing key should become null")
	}
}
