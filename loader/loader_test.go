package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	goavro "github.com/linkedin/goavro/v2"

	"github.com/datasetq/dsq/value"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCSVInfersTypes(t *testing.T) {
	path := writeFile(t, "data.csv", "name,age,score,active,note\nAlice,30,1.5,true,\nBob,25,2.0,false,hi\n")
	got, err := Load(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindTable || got.Tab.Height() != 2 {
		t.Fatalf("got %s", got.AsString())
	}
	age := got.Tab.Column("age")
	if age.Vals[0].Kind != value.KindInt || age.Vals[0].Int != 30 {
		t.Errorf("age[0] = %s (%s)", age.Vals[0].AsString(), age.Vals[0].TypeName())
	}
	if got.Tab.Column("score").Vals[1].Kind != value.KindFloat {
		t.Errorf("score not float")
	}
	if !got.Tab.Column("active").Vals[0].Bool {
		t.Errorf("active not bool")
	}
	if !got.Tab.Column("note").Vals[0].IsNull() {
		t.Errorf("empty cell not null")
	}
}

func TestLoadJSONArrayOfObjects(t *testing.T) {
	path := writeFile(t, "data.json", `[{"n": 1, "s": "a"}, {"n": 2}]`)
	got, err := Load(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindTable || got.Tab.Height() != 2 {
		t.Fatalf("got %s (%s)", got.AsString(), got.TypeName())
	}
	if !got.Tab.Column("s").Vals[1].IsNull() {
		t.Errorf("missing key not null")
	}
}

func TestLoadJSONScalarDocument(t *testing.T) {
	path := writeFile(t, "doc.json", `{"name": "ada", "tags": ["x", "y"]}`)
	got, err := Load(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindObject || got.Obj["name"].Str != "ada" {
		t.Fatalf("got %s", got.AsString())
	}
	if len(got.Obj["tags"].Arr) != 2 {
		t.Fatalf("tags = %s", got.Obj["tags"].AsString())
	}
}

func TestLoadJSONL(t *testing.T) {
	path := writeFile(t, "data.jsonl", "{\"n\": 1}\n\n{\"n\": 2}\n{\"n\": 3}\n")
	got, err := Load(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindTable || got.Tab.Height() != 3 {
		t.Fatalf("got %s", got.AsString())
	}
}

func TestLoadGzipCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte("a,b\n1,2\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := Load(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindTable || got.Tab.Column("b").Vals[0].Int != 2 {
		t.Fatalf("got %s", got.AsString())
	}
}

func TestLoadCSVThroughMmap(t *testing.T) {
	path := writeFile(t, "data.csv", "x\n1\n2\n")
	got, err := Load(path, Options{MmapThreshold: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindTable || got.Tab.Height() != 2 {
		t.Fatalf("got %s", got.AsString())
	}
}

func TestLoadAvro(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.avro")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W: f,
		Schema: `{"type": "record", "name": "rec", "fields": [
			{"name": "id", "type": "long"},
			{"name": "label", "type": "string"}
		]}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = w.Append([]interface{}{
		map[string]interface{}{"id": int64(1), "label": "one"},
		map[string]interface{}{"id": int64(2), "label": "two"},
	})
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := Load(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindTable || got.Tab.Height() != 2 {
		t.Fatalf("got %s", got.AsString())
	}
	if got.Tab.Column("label").Vals[1].Str != "two" {
		t.Fatalf("label = %s", got.Tab.Column("label").Vals[1].AsString())
	}
}

func TestUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "data.xyz", "junk")
	if _, err := Load(path, Options{}); err == nil {
		t.Fatal("want format error")
	}
}

func TestFormatOverride(t *testing.T) {
	path := writeFile(t, "data.txt", "a,b\n1,2\n")
	got, err := Load(path, Options{Format: "csv"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != value.KindTable || got.Tab.Height() != 1 {
		t.Fatalf("got %s", got.AsString())
	}
}
