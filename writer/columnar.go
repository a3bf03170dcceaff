package writer

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/parquet-go/parquet-go"

	"github.com/datasetq/dsq/value"
)

// colType is the physical type a column is written as. Columns with mixed
// or non-scalar cells fall back to strings.
type colType int

const (
	colInt colType = iota
	colFloat
	colBool
	colString
)

func columnType(s *value.Series) colType {
	switch s.Elem {
	case value.KindInt:
		return colInt
	case value.KindFloat:
		return colFloat
	case value.KindBool:
		return colBool
	default:
		return colString
	}
}

func writeParquet(w io.Writer, v value.Value) error {
	t, err := tabular(v)
	if err != nil {
		return fmt.Errorf("parquet output: %w", err)
	}

	group := parquet.Group{}
	types := make([]colType, t.Width())
	for i, s := range t.Columns() {
		types[i] = columnType(s)
		var node parquet.Node
		switch types[i] {
		case colInt:
			node = parquet.Leaf(parquet.Int64Type)
		case colFloat:
			node = parquet.Leaf(parquet.DoubleType)
		case colBool:
			node = parquet.Leaf(parquet.BooleanType)
		default:
			node = parquet.String()
		}
		group[s.Name] = parquet.Optional(node)
	}
	schema := parquet.NewSchema("table", group)

	pw := parquet.NewGenericWriter[map[string]any](w, schema)
	rows := make([]map[string]any, t.Height())
	for i := range rows {
		row := make(map[string]any, t.Width())
		for ci, s := range t.Columns() {
			row[s.Name] = cellValue(s.Vals[i], types[ci])
		}
		rows[i] = row
	}
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("writing parquet rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}

// cellValue coerces a cell to the column's physical type; incompatible
// cells become null.
func cellValue(v value.Value, ct colType) any {
	if v.IsNull() {
		return nil
	}
	switch ct {
	case colInt:
		if v.Kind == value.KindInt {
			return v.Int
		}
		return nil
	case colFloat:
		if f, ok := v.AsFloat(); ok {
			return f
		}
		return nil
	case colBool:
		if v.Kind == value.KindBool {
			return v.Bool
		}
		return nil
	default:
		return v.AsString()
	}
}

func writeArrow(w io.Writer, v value.Value) error {
	t, err := tabular(v)
	if err != nil {
		return fmt.Errorf("arrow output: %w", err)
	}

	types := make([]colType, t.Width())
	fields := make([]arrow.Field, t.Width())
	for i, s := range t.Columns() {
		types[i] = columnType(s)
		var dt arrow.DataType
		switch types[i] {
		case colInt:
			dt = arrow.PrimitiveTypes.Int64
		case colFloat:
			dt = arrow.PrimitiveTypes.Float64
		case colBool:
			dt = arrow.FixedWidthTypes.Boolean
		default:
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: s.Name, Type: dt, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()
	for ri := 0; ri < t.Height(); ri++ {
		for ci, s := range t.Columns() {
			appendArrowCell(builder.Field(ci), s.Vals[ri])
		}
	}
	record := builder.NewRecordBatch()
	defer record.Release()

	aw := ipc.NewWriter(w, ipc.WithSchema(schema))
	if err := aw.Write(record); err != nil {
		aw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

func appendArrowCell(b array.Builder, v value.Value) {
	if v.IsNull() {
		b.AppendNull()
		return
	}
	switch fb := b.(type) {
	case *array.Int64Builder:
		if v.Kind == value.KindInt {
			fb.Append(v.Int)
		} else {
			fb.AppendNull()
		}
	case *array.Float64Builder:
		if f, ok := v.AsFloat(); ok {
			fb.Append(f)
		} else {
			fb.AppendNull()
		}
	case *array.BooleanBuilder:
		if v.Kind == value.KindBool {
			fb.Append(v.Bool)
		} else {
			fb.AppendNull()
		}
	case *array.StringBuilder:
		fb.Append(v.AsString())
	default:
		b.AppendNull()
	}
}
