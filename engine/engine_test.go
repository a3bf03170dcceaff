package engine

import (
	"errors"
	"testing"

	"github.com/datasetq/dsq/funcs"
	"github.com/datasetq/dsq/parser"
	"github.com/datasetq/dsq/value"
)

func usersTable(t *testing.T) *value.Table {
	t.Helper()
	tab, err := value.NewTable(
		value.NewSeries("name", []value.Value{
			value.StrVal("Alice"), value.StrVal("Bob"), value.StrVal("Charlie"),
		}),
		value.NewSeries("age", []value.Value{
			value.IntVal(30), value.IntVal(25), value.IntVal(35),
		}),
		value.NewSeries("city", []value.Value{
			value.StrVal("NY"), value.StrVal("LA"), value.StrVal("NY"),
		}),
	)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	return tab
}

func run(t *testing.T, filter string, input value.Value) value.Value {
	t.Helper()
	op, err := CompileFilter(filter, nil)
	if err != nil {
		t.Fatalf("compile %q: %v", filter, err)
	}
	out, err := op.Apply(input)
	if err != nil {
		t.Fatalf("apply %q: %v", filter, err)
	}
	return out
}

func TestIdentity(t *testing.T) {
	inputs := []value.Value{
		value.Null(),
		value.BoolVal(true),
		value.IntVal(42),
		value.FloatVal(1.5),
		value.StrVal("x"),
		value.ArrayVal(value.IntVal(1)),
		value.ObjectVal(map[string]value.Value{"a": value.Null()}),
		value.TableVal(usersTable(t)),
	}
	for _, in := range inputs {
		got := run(t, ".", in)
		if value.Compare(got, in) != 0 {
			t.Errorf("identity changed %s", in.AsString())
		}
	}
}

func TestFieldChain(t *testing.T) {
	in := value.ObjectVal(map[string]value.Value{
		"user": value.ObjectVal(map[string]value.Value{"name": value.StrVal("ada")}),
	})
	got := run(t, ".user.name", in)
	if got.Str != "ada" {
		t.Fatalf("got %s", got.AsString())
	}
	if got := run(t, ".missing.name", in); !got.IsNull() {
		t.Fatalf("missing field should flow to null, got %s", got.AsString())
	}
}

func TestTableColumnAccess(t *testing.T) {
	got := run(t, ".age", value.TableVal(usersTable(t)))
	if got.Kind != value.KindSeries || got.Ser.Len() != 3 || got.Ser.Vals[2].Int != 35 {
		t.Fatalf("got %s", got.AsString())
	}
}

func TestIndexAndSlice(t *testing.T) {
	arr := value.ArrayVal(value.IntVal(10), value.IntVal(20), value.IntVal(30))
	if got := run(t, ".[1]", arr); got.Int != 20 {
		t.Errorf(".[1] = %s", got.AsString())
	}
	if got := run(t, ".[-1]", arr); got.Int != 30 {
		t.Errorf(".[-1] = %s", got.AsString())
	}
	if got := run(t, ".[9]", arr); !got.IsNull() {
		t.Errorf(".[9] = %s, want null", got.AsString())
	}
	if got := run(t, ".[1:]", arr); len(got.Arr) != 2 || got.Arr[0].Int != 20 {
		t.Errorf(".[1:] = %s", got.AsString())
	}
}

func TestIterate(t *testing.T) {
	obj := value.ObjectVal(map[string]value.Value{
		"b": value.IntVal(2), "a": value.IntVal(1),
	})
	got := run(t, ".[]", obj)
	if len(got.Arr) != 2 || got.Arr[0].Int != 1 || got.Arr[1].Int != 2 {
		t.Fatalf("object iterate = %s", got.AsString())
	}
	rows := run(t, ".[]", value.TableVal(usersTable(t)))
	if len(rows.Arr) != 3 || rows.Arr[1].Obj["name"].Str != "Bob" {
		t.Fatalf("table iterate = %s", rows.AsString())
	}
}

func TestPipeline(t *testing.T) {
	in := value.ObjectVal(map[string]value.Value{
		"items": value.ArrayVal(value.StrVal("a"), value.StrVal("b")),
	})
	got := run(t, ".items | length", in)
	if got.Int != 2 {
		t.Fatalf("got %s", got.AsString())
	}
}

// Both operands of a binary operator must see the original input, never
// the other side's output.
func TestBinaryOperandIndependence(t *testing.T) {
	in := value.ObjectVal(map[string]value.Value{
		"a": value.IntVal(1),
		"b": value.IntVal(2),
	})
	if got := run(t, ".a + .b", in); got.Int != 3 {
		t.Fatalf(".a + .b = %s", got.AsString())
	}
	// If the right side saw the left result (10) instead of the original
	// input (5), this would be 30.
	if got := run(t, ". * 2 + .", value.IntVal(5)); got.Int != 15 {
		t.Fatalf(". * 2 + . = %s", got.AsString())
	}
}

func TestArithmeticPromotion(t *testing.T) {
	if got := run(t, "2 + 3", value.Null()); got.Kind != value.KindInt || got.Int != 5 {
		t.Errorf("2 + 3 = %s", got.AsString())
	}
	if got := run(t, "1 / 2", value.Null()); got.Kind != value.KindFloat || got.Float != 0.5 {
		t.Errorf("1 / 2 = %s", got.AsString())
	}
	got := run(t, "9223372036854775807 + 1", value.Null())
	if got.Kind != value.KindBigInt {
		t.Errorf("maxint + 1 = %s (%s), want biginteger", got.AsString(), got.TypeName())
	}
}

func TestArithmeticTypeError(t *testing.T) {
	op, err := CompileFilter(". + 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = op.Apply(value.ObjectVal(map[string]value.Value{}))
	var typeErr *value.TypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("got %v, want TypeError", err)
	}
	if typeErr.Operation != "add" || typeErr.Type != "object" {
		t.Fatalf("TypeError = %+v", typeErr)
	}
}

func countingRegistry(counter *int) *funcs.Registry {
	r := funcs.NewRegistry()
	for _, f := range funcs.Global().Names() {
		fn, _ := funcs.Global().Lookup(f)
		r.Register(fn)
	}
	r.Register(funcs.New("tick", 0, 0, func(value.Value, []value.Value) (value.Value, error) {
		*counter++
		return value.BoolVal(true), nil
	}))
	return r
}

func TestAndShortCircuits(t *testing.T) {
	calls := 0
	scope := NewScope(countingRegistry(&calls))
	op, err := CompileFilter("false and tick()", scope)
	if err != nil {
		t.Fatal(err)
	}
	got, err := op.Apply(value.Null())
	if err != nil || got.Bool {
		t.Fatalf("got %s, %v", got.AsString(), err)
	}
	if calls != 0 {
		t.Fatalf("right side evaluated %d times, want 0", calls)
	}
}

func TestOrShortCircuits(t *testing.T) {
	calls := 0
	scope := NewScope(countingRegistry(&calls))
	op, err := CompileFilter("true or tick()", scope)
	if err != nil {
		t.Fatal(err)
	}
	got, err := op.Apply(value.Null())
	if err != nil || !got.Bool {
		t.Fatalf("got %s, %v", got.AsString(), err)
	}
	if calls != 0 {
		t.Fatalf("right side evaluated %d times, want 0", calls)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		filter string
		kind   CompileErrorKind
	}{
		{"$undefined_var", UnknownVariable},
		{"unknown_fn()", UnknownFunction},
		{"length(1, 2)", ArityMismatch},
		{"select(.a, .b)", ArityMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			_, err := CompileFilter(tt.filter, nil)
			var cerr *CompileError
			if !errors.As(err, &cerr) {
				t.Fatalf("got %v, want CompileError", err)
			}
			if cerr.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", cerr.Kind, tt.kind)
			}
		})
	}
}

func TestObjectConstruct(t *testing.T) {
	in := value.ObjectVal(map[string]value.Value{
		"name": value.StrVal("ada"),
		"age":  value.IntVal(36),
	})
	got := run(t, `{name, grown: .age >= 18}`, in)
	if got.Obj["name"].Str != "ada" || !got.Obj["grown"].Bool {
		t.Fatalf("got %s", got.AsString())
	}
	if got := run(t, `{x: 1}`, value.Null()); !got.IsNull() {
		t.Fatalf("null input should yield null, got %s", got.AsString())
	}
}

func TestObjectConstructRejectsNonStringKey(t *testing.T) {
	op, err := CompileFilter(`{(.n): 1}`, nil)
	if err != nil {
		t.Fatal(err)
	}
	in := value.ObjectVal(map[string]value.Value{"n": value.IntVal(1)})
	_, err = op.Apply(in)
	var keyErr *InvalidKeyError
	if !errors.As(err, &keyErr) || keyErr.Type != "integer" {
		t.Fatalf("got %v, want InvalidKeyError for integer", err)
	}
}

func TestArrayConstruct(t *testing.T) {
	in := value.ObjectVal(map[string]value.Value{"a": value.IntVal(1)})
	got := run(t, "[.a, .a + 1]", in)
	if len(got.Arr) != 2 || got.Arr[1].Int != 2 {
		t.Fatalf("got %s", got.AsString())
	}
}

func TestAssignment(t *testing.T) {
	in := value.ObjectVal(map[string]value.Value{"n": value.IntVal(1)})
	got := run(t, ".n = 5", in)
	if got.Obj["n"].Int != 5 {
		t.Errorf("= gave %s", got.AsString())
	}
	got = run(t, ".n += 2", in)
	if got.Obj["n"].Int != 3 {
		t.Errorf("+= gave %s", got.AsString())
	}
	// Input untouched.
	if in.Obj["n"].Int != 1 {
		t.Errorf("input mutated: %s", in.AsString())
	}
	got = run(t, ".meta.tag = \"x\"", in)
	if got.Obj["meta"].Obj["tag"].Str != "x" {
		t.Errorf("nested assign gave %s", got.AsString())
	}
}

func TestTryCollapsesErrors(t *testing.T) {
	got := run(t, "(. + 1)?", value.ObjectVal(map[string]value.Value{}))
	if !got.IsNull() {
		t.Fatalf("got %s, want null", got.AsString())
	}
}

func TestIfError(t *testing.T) {
	got := run(t, "iferror(. + 1, 0)", value.ObjectVal(map[string]value.Value{}))
	if got.Int != 0 {
		t.Errorf("error fallback gave %s", got.AsString())
	}
	got = run(t, "iferror(.x, \"none\")", value.ObjectVal(map[string]value.Value{}))
	if got.Str != "none" {
		t.Errorf("null fallback gave %s", got.AsString())
	}
	got = run(t, "iferror(. * 2, 0)", value.IntVal(21))
	if got.Int != 42 {
		t.Errorf("primary gave %s", got.AsString())
	}
}

func TestSelectTableMask(t *testing.T) {
	got := run(t, `select(.city == "NY")`, value.TableVal(usersTable(t)))
	if got.Kind != value.KindTable || got.Tab.Height() != 2 {
		t.Fatalf("got %s", got.AsString())
	}
	names := got.Tab.Column("name")
	if names.Vals[0].Str != "Alice" || names.Vals[1].Str != "Charlie" {
		t.Fatalf("kept wrong rows: %s", got.AsString())
	}
}

func TestSelectMaskLengthMismatchFallsBack(t *testing.T) {
	// A condition series shorter than the table cannot mask; the table's
	// own truthiness (false) decides, so the result is null.
	calls := 0
	r := countingRegistry(&calls)
	r.Register(funcs.New("shortmask", 0, 0, func(value.Value, []value.Value) (value.Value, error) {
		return value.SeriesVal(value.NewSeries("m", []value.Value{value.BoolVal(true)})), nil
	}))
	op, err := CompileFilter("select(shortmask())", NewScope(r))
	if err != nil {
		t.Fatal(err)
	}
	got, err := op.Apply(value.TableVal(usersTable(t)))
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsNull() {
		t.Fatalf("got %s, want null", got.AsString())
	}
}

func TestSelectScalar(t *testing.T) {
	if got := run(t, "select(. > 3)", value.IntVal(5)); got.Int != 5 {
		t.Errorf("truthy select gave %s", got.AsString())
	}
	if got := run(t, "select(. > 3)", value.IntVal(1)); !got.IsNull() {
		t.Errorf("falsy select gave %s", got.AsString())
	}
}

func TestMap(t *testing.T) {
	arr := value.ArrayVal(value.IntVal(1), value.IntVal(2), value.IntVal(3))
	got := run(t, "map(. * 2)", arr)
	if len(got.Arr) != 3 || got.Arr[2].Int != 6 {
		t.Fatalf("got %s", got.AsString())
	}
}

func TestSortBy(t *testing.T) {
	arr := value.ArrayVal(
		value.ObjectVal(map[string]value.Value{"k": value.IntVal(2), "v": value.StrVal("b")}),
		value.ObjectVal(map[string]value.Value{"k": value.IntVal(1), "v": value.StrVal("a")}),
		value.ObjectVal(map[string]value.Value{"k": value.IntVal(2), "v": value.StrVal("c")}),
	)
	got := run(t, "sort_by(.k)", arr)
	if got.Arr[0].Obj["v"].Str != "a" {
		t.Fatalf("got %s", got.AsString())
	}
	// Equal keys keep input order.
	if got.Arr[1].Obj["v"].Str != "b" || got.Arr[2].Obj["v"].Str != "c" {
		t.Fatalf("unstable sort: %s", got.AsString())
	}
}

func TestGroupBy(t *testing.T) {
	got := run(t, "group_by(.city)", value.TableVal(usersTable(t)))
	if len(got.Arr) != 2 {
		t.Fatalf("got %d groups", len(got.Arr))
	}
	// First-seen key order: NY before LA.
	if got.Arr[0].Tab.Height() != 2 || got.Arr[1].Tab.Height() != 1 {
		t.Fatalf("group sizes: %s", got.AsString())
	}
}

func TestUserFunction(t *testing.T) {
	if _, err := CompileFilter("double(.n)", nil); err == nil {
		t.Fatal("double should be unknown without a definition")
	}
	exec := NewExecutor(ExecutorConfig{
		Functions: map[string]FunctionDef{
			"double": mustDef(t, "double", []string{"x"}, "$x * 2"),
		},
	})
	got, err := exec.Execute("double(.n)", value.ObjectVal(map[string]value.Value{"n": value.IntVal(21)}))
	if err != nil {
		t.Fatal(err)
	}
	if got.Int != 42 {
		t.Fatalf("got %s", got.AsString())
	}
}

func mustDef(t *testing.T, name string, params []string, body string) FunctionDef {
	t.Helper()
	f, err := parser.ParseFilter(body)
	if err != nil {
		t.Fatalf("parse body: %v", err)
	}
	return FunctionDef{Name: name, Params: params, Body: f.Root}
}

func TestExecutorVariables(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{
		Variables: map[string]value.Value{"min": value.IntVal(3)},
	})
	got, err := exec.Execute(". > $min", value.IntVal(5))
	if err != nil || !got.Bool {
		t.Fatalf("got %s, %v", got.AsString(), err)
	}
}

func TestExecutorErrorModes(t *testing.T) {
	bad := value.ObjectVal(map[string]value.Value{})

	strict := NewExecutor(ExecutorConfig{ErrorMode: Strict})
	if _, err := strict.Execute(". + 1", bad); err == nil {
		t.Error("strict mode should propagate")
	}

	collect := NewExecutor(ExecutorConfig{ErrorMode: Collect})
	got, err := collect.Execute(". + 1", bad)
	if err != nil || !got.IsNull() {
		t.Errorf("collect: got %s, %v", got.AsString(), err)
	}
	if len(collect.Warnings()) != 1 {
		t.Errorf("collect: %d warnings", len(collect.Warnings()))
	}

	ignore := NewExecutor(ExecutorConfig{ErrorMode: Ignore})
	got, err = ignore.Execute(". + 1", bad)
	if err != nil || !got.IsNull() || len(ignore.Warnings()) != 0 {
		t.Errorf("ignore: got %s, %v", got.AsString(), err)
	}
}

func TestExecutorCacheReuse(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{CacheSize: 2})
	for i := 0; i < 3; i++ {
		got, err := exec.Execute(". + 1", value.IntVal(int64(i)))
		if err != nil || got.Int != int64(i)+1 {
			t.Fatalf("run %d: %s, %v", i, got.AsString(), err)
		}
	}
	// Evictions keep execution correct.
	for _, f := range []string{". + 1", ". + 2", ". + 3"} {
		if _, err := exec.Execute(f, value.IntVal(0)); err != nil {
			t.Fatalf("%s: %v", f, err)
		}
	}
}
