package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	goavro "github.com/linkedin/goavro/v2"
	"github.com/parquet-go/parquet-go"
	"github.com/segmentio/encoding/json"

	"github.com/datasetq/dsq/value"
)

func loadAvro(path string) (value.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return value.Null(), fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()
	return avroFromReader(f, path)
}

func avroFromReader(r io.Reader, path string) (value.Value, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return value.Null(), fmt.Errorf("cannot read Avro OCF from %s: %w", path, err)
	}

	// Column order comes from the writer schema, not from map iteration.
	var schemaDef struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(ocfr.Codec().Schema()), &schemaDef); err != nil {
		return value.Null(), fmt.Errorf("cannot parse Avro schema: %w", err)
	}
	columns := make([]string, len(schemaDef.Fields))
	for i, field := range schemaDef.Fields {
		columns[i] = field.Name
	}

	cols := make([][]value.Value, len(columns))
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return value.Null(), fmt.Errorf("error reading Avro record: %w", err)
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return value.Null(), fmt.Errorf("unexpected Avro record type %T", datum)
		}
		for i, col := range columns {
			cols[i] = append(cols[i], avroValue(rec[col]))
		}
	}
	if err := ocfr.Err(); err != nil {
		return value.Null(), fmt.Errorf("error reading Avro file: %w", err)
	}

	series := make([]*value.Series, len(columns))
	for i, name := range columns {
		series[i] = value.NewSeries(name, cols[i])
	}
	t, err := value.NewTable(series...)
	if err != nil {
		return value.Null(), err
	}
	return value.TableVal(t), nil
}

func avroValue(v interface{}) value.Value {
	switch val := v.(type) {
	case nil:
		return value.Null()
	case int32:
		return value.IntVal(int64(val))
	case int64:
		return value.IntVal(val)
	case float32:
		return value.FloatVal(float64(val))
	case float64:
		return value.FloatVal(val)
	case string:
		return value.StrVal(val)
	case bool:
		return value.BoolVal(val)
	case []byte:
		return value.StrVal(string(val))
	case map[string]interface{}:
		// Unions decode as a single {"type": value} wrapper.
		for _, inner := range val {
			return avroValue(inner)
		}
		return value.Null()
	default:
		return value.StrVal(fmt.Sprintf("%v", val))
	}
}

func loadParquet(path, compression string) (value.Value, error) {
	data, err := decompressed(path, compression)
	if err != nil {
		return value.Null(), err
	}
	return parquetFromBytes(data, path)
}

func parquetFromBytes(data []byte, path string) (value.Value, error) {
	pf, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return value.Null(), fmt.Errorf("cannot read Parquet from %s: %w", path, err)
	}

	fields := pf.Schema().Fields()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name()
	}
	cols := make([][]value.Value, len(columns))

	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		buf := make([]parquet.Row, 128)
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				for _, pv := range row {
					ci := int(pv.Column())
					if ci >= 0 && ci < len(cols) {
						cols[ci] = append(cols[ci], parquetValue(pv))
					}
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return value.Null(), fmt.Errorf("error reading Parquet rows: %w", err)
			}
		}
		rows.Close()
	}

	series := make([]*value.Series, len(columns))
	for i, name := range columns {
		series[i] = value.NewSeries(name, cols[i])
	}
	t, err := value.NewTable(series...)
	if err != nil {
		return value.Null(), err
	}
	return value.TableVal(t), nil
}

func parquetValue(v parquet.Value) value.Value {
	if v.IsNull() {
		return value.Null()
	}
	switch v.Kind() {
	case parquet.Boolean:
		return value.BoolVal(v.Boolean())
	case parquet.Int32:
		return value.IntVal(int64(v.Int32()))
	case parquet.Int64:
		return value.IntVal(v.Int64())
	case parquet.Float:
		return value.FloatVal(float64(v.Float()))
	case parquet.Double:
		return value.FloatVal(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return value.StrVal(string(v.ByteArray()))
	default:
		return value.StrVal(v.String())
	}
}

func loadArrow(path, compression string) (value.Value, error) {
	data, err := decompressed(path, compression)
	if err != nil {
		return value.Null(), err
	}
	return arrowFromBytes(data, path)
}

func arrowFromBytes(data []byte, path string) (value.Value, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return value.Null(), fmt.Errorf("cannot read Arrow IPC from %s: %w", path, err)
	}
	defer reader.Release()

	schema := reader.Schema()
	columns := make([]string, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		columns[i] = schema.Field(i).Name
	}
	cols := make([][]value.Value, len(columns))

	for reader.Next() {
		rec := reader.RecordBatch()
		for ci := 0; ci < int(rec.NumCols()); ci++ {
			arr := rec.Column(ci)
			for ri := 0; ri < arr.Len(); ri++ {
				cols[ci] = append(cols[ci], arrowValue(arr, ri))
			}
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return value.Null(), fmt.Errorf("error reading Arrow batches: %w", err)
	}

	series := make([]*value.Series, len(columns))
	for i, name := range columns {
		series[i] = value.NewSeries(name, cols[i])
	}
	t, err := value.NewTable(series...)
	if err != nil {
		return value.Null(), err
	}
	return value.TableVal(t), nil
}

func arrowValue(arr arrow.Array, i int) value.Value {
	if arr.IsNull(i) {
		return value.Null()
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return value.BoolVal(a.Value(i))
	case *array.Int8:
		return value.IntVal(int64(a.Value(i)))
	case *array.Int16:
		return value.IntVal(int64(a.Value(i)))
	case *array.Int32:
		return value.IntVal(int64(a.Value(i)))
	case *array.Int64:
		return value.IntVal(a.Value(i))
	case *array.Uint8:
		return value.IntVal(int64(a.Value(i)))
	case *array.Uint16:
		return value.IntVal(int64(a.Value(i)))
	case *array.Uint32:
		return value.IntVal(int64(a.Value(i)))
	case *array.Uint64:
		return value.IntVal(int64(a.Value(i)))
	case *array.Float32:
		return value.FloatVal(float64(a.Value(i)))
	case *array.Float64:
		return value.FloatVal(a.Value(i))
	case *array.String:
		return value.StrVal(a.Value(i))
	case *array.Binary:
		return value.StrVal(string(a.Value(i)))
	default:
		return value.StrVal(fmt.Sprintf("%v", arr.ValueStr(i)))
	}
}
