// Package writer renders values to output formats. Tabular formats require
// a Table, Series, or array of objects; document formats take any value.
package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/big"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/segmentio/encoding/json"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/datasetq/dsq/value"
)

// DefaultMaxCellWidth bounds cell width in the table format.
const DefaultMaxCellWidth = 40

// Options select the output format.
type Options struct {
	// Format: json (default), jsonl, csv, table, parquet, arrow, msgpack.
	Format string
	// Raw prints string results without JSON quoting.
	Raw bool
	// MaxCellWidth truncates table cells; zero means DefaultMaxCellWidth.
	MaxCellWidth int
}

// Write renders v to w. LazyTables are collected first.
func Write(w io.Writer, v value.Value, opts Options) error {
	v, err := value.Materialize(v)
	if err != nil {
		return err
	}
	switch opts.Format {
	case "", "json":
		return writeJSON(w, v, opts.Raw)
	case "jsonl":
		return writeJSONL(w, v)
	case "csv":
		return writeCSV(w, v)
	case "table":
		return writeTable(w, v, opts)
	case "parquet":
		return writeParquet(w, v)
	case "arrow":
		return writeArrow(w, v)
	case "msgpack":
		return writeMsgpack(w, v)
	default:
		return fmt.Errorf("unsupported output format %q", opts.Format)
	}
}

func writeJSON(w io.Writer, v value.Value, raw bool) error {
	if raw && v.Kind == value.KindString {
		_, err := fmt.Fprintln(w, v.Str)
		return err
	}
	b, err := json.MarshalIndent(v.ToGo(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// writeJSONL emits one document per table row or array element.
func writeJSONL(w io.Writer, v value.Value) error {
	docs := documents(v)
	for _, d := range docs {
		b, err := json.Marshal(d.ToGo())
		if err != nil {
			return fmt.Errorf("encoding jsonl: %w", err)
		}
		b = append(b, '\n')
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func documents(v value.Value) []value.Value {
	switch v.Kind {
	case value.KindTable:
		docs := make([]value.Value, v.Tab.Height())
		for i := range docs {
			docs[i] = v.Tab.Row(i)
		}
		return docs
	case value.KindArray:
		return v.Arr
	default:
		return []value.Value{v}
	}
}

func writeCSV(w io.Writer, v value.Value) error {
	t, err := tabular(v)
	if err != nil {
		return fmt.Errorf("csv output: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	record := make([]string, t.Width())
	for i := 0; i < t.Height(); i++ {
		for ci, s := range t.Columns() {
			if s.Vals[i].IsNull() {
				record[ci] = ""
			} else {
				record[ci] = s.Vals[i].AsString()
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, v value.Value, opts Options) error {
	width := opts.MaxCellWidth
	if width <= 0 {
		width = DefaultMaxCellWidth
	}
	t, err := tabular(v)
	if err != nil {
		// Scalars still render, as a single unnamed cell.
		_, werr := fmt.Fprintln(w, v.AsString())
		if werr != nil {
			return werr
		}
		return nil
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.Names())
	tw.SetAutoFormatHeaders(false)
	row := make([]string, t.Width())
	for i := 0; i < t.Height(); i++ {
		for ci, s := range t.Columns() {
			row[ci] = runewidth.Truncate(s.Vals[i].AsString(), width, "…")
		}
		tw.Append(row)
	}
	tw.Render()
	return nil
}

func writeMsgpack(w io.Writer, v value.Value) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(encodable(v.ToGo())); err != nil {
		return fmt.Errorf("encoding msgpack: %w", err)
	}
	return nil
}

// encodable rewrites values the msgpack codec has no representation for.
func encodable(v interface{}) interface{} {
	switch val := v.(type) {
	case *big.Int:
		return val.String()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = encodable(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = encodable(item)
		}
		return out
	default:
		return v
	}
}

// tabular coerces the value to a table, converting an array of objects
// row-wise.
func tabular(v value.Value) (*value.Table, error) {
	switch v.Kind {
	case value.KindTable:
		return v.Tab, nil
	case value.KindSeries:
		return value.NewTable(v.Ser)
	case value.KindArray:
		return value.TableFromObjects(v.Arr)
	default:
		return nil, &value.TypeError{Operation: "tabulate", Type: v.TypeName()}
	}
}
