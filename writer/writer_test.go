package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/datasetq/dsq/loader"
	"github.com/datasetq/dsq/value"
)

func sample(t *testing.T) *value.Table {
	t.Helper()
	tab, err := value.NewTable(
		value.NewSeries("name", []value.Value{value.StrVal("Alice"), value.StrVal("Bob")}),
		value.NewSeries("age", []value.Value{value.IntVal(30), value.Null()}),
		value.NewSeries("score", []value.Value{value.FloatVal(1.5), value.FloatVal(2.0)}),
	)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	return tab
}

func TestWriteJSONScalar(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, value.IntVal(42), Options{}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestWriteJSONRawString(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, value.StrVal("plain"), Options{Raw: true}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "plain\n" {
		t.Fatalf("got %q", buf.String())
	}
	buf.Reset()
	if err := Write(&buf, value.StrVal("quoted"), Options{}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != `"quoted"` {
		t.Fatalf("got %q", buf.String())
	}
}

func TestWriteJSONTableAsRows(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, value.TableVal(sample(t)), Options{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"Alice"`) || !strings.HasPrefix(strings.TrimSpace(out), "[") {
		t.Fatalf("got %q", out)
	}
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, value.TableVal(sample(t)), Options{Format: "jsonl"}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"Bob"`) {
		t.Fatalf("got %q", buf.String())
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, value.TableVal(sample(t)), Options{Format: "csv"}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "name,age,score" {
		t.Fatalf("header = %q", lines[0])
	}
	// Null cell renders empty.
	if lines[2] != "Bob,,2" && lines[2] != "Bob,,2.0" {
		t.Fatalf("row = %q", lines[2])
	}
}

func TestWriteCSVRejectsScalar(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, value.IntVal(1), Options{Format: "csv"}); err == nil {
		t.Fatal("want error for scalar csv")
	}
}

func TestWriteTableFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, value.TableVal(sample(t)), Options{Format: "table"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "name") || !strings.Contains(out, "Alice") {
		t.Fatalf("got %q", out)
	}
}

func TestWriteTableTruncatesCells(t *testing.T) {
	tab, err := value.NewTable(
		value.NewSeries("text", []value.Value{value.StrVal(strings.Repeat("x", 100))}),
	)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, value.TableVal(tab), Options{Format: "table", MaxCellWidth: 10}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), strings.Repeat("x", 20)) {
		t.Fatalf("cell not truncated: %q", buf.String())
	}
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(f, value.TableVal(sample(t)), Options{Format: "parquet"}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := loader.Load(path, loader.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindTable || got.Tab.Height() != 2 {
		t.Fatalf("got %s", got.AsString())
	}
	if got.Tab.Column("age").Vals[0].Int != 30 {
		t.Errorf("age = %s", got.Tab.Column("age").Vals[0].AsString())
	}
	if !got.Tab.Column("age").Vals[1].IsNull() {
		t.Errorf("null cell lost: %s", got.Tab.Column("age").Vals[1].AsString())
	}
}

func TestArrowRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.arrow")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(f, value.TableVal(sample(t)), Options{Format: "arrow"}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := loader.Load(path, loader.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindTable || got.Tab.Height() != 2 {
		t.Fatalf("got %s", got.AsString())
	}
	if got.Tab.Column("score").Vals[1].Float != 2.0 {
		t.Errorf("score = %s", got.Tab.Column("score").Vals[1].AsString())
	}
}

func TestMsgpackOutput(t *testing.T) {
	var buf bytes.Buffer
	obj := value.ObjectVal(map[string]value.Value{
		"n": value.IntVal(7),
		"s": value.StrVal("x"),
	})
	if err := Write(&buf, obj, Options{Format: "msgpack"}); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := msgpack.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["s"] != "x" {
		t.Fatalf("decoded = %v", decoded)
	}
}

func TestUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, value.Null(), Options{Format: "yaml"}); err == nil {
		t.Fatal("want error for unknown format")
	}
}
