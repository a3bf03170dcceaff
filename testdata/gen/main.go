// Command gen regenerates the sample datasets under testdata/ in every
// format the loader understands. Run it from the repository root:
//
//	go run ./testdata/gen
package main

import (
	"log"
	"os"

	"github.com/datasetq/dsq/value"
	"github.com/datasetq/dsq/writer"
)

func main() {
	names := []string{"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank"}
	ages := []int64{30, 25, 35, 28, 22, 40}
	cities := []string{"NY", "LA", "NY", "SF", "LA", "NY"}

	nameVals := make([]value.Value, len(names))
	ageVals := make([]value.Value, len(names))
	cityVals := make([]value.Value, len(names))
	for i := range names {
		nameVals[i] = value.StrVal(names[i])
		ageVals[i] = value.IntVal(ages[i])
		cityVals[i] = value.StrVal(cities[i])
	}

	t, err := value.NewTable(
		value.NewSeries("name", nameVals),
		value.NewSeries("age", ageVals),
		value.NewSeries("city", cityVals),
	)
	if err != nil {
		log.Fatal(err)
	}
	users := value.TableVal(t)

	outputs := map[string]string{
		"testdata/users.csv":     "csv",
		"testdata/users.json":    "json",
		"testdata/users.jsonl":   "jsonl",
		"testdata/users.parquet": "parquet",
		"testdata/users.arrow":   "arrow",
	}
	for path, format := range outputs {
		if err := write(path, format, users); err != nil {
			log.Fatal(err)
		}
	}
}

func write(path, format string, v value.Value) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writer.Write(f, v, writer.Options{Format: format})
}
