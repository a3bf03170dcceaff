// Package loader reads scalar and tabular inputs from files. Format is
// picked by extension, with transparent decompression for .gz and .zst.
package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/encoding/json"

	"github.com/datasetq/dsq/value"
)

// DefaultMmapThreshold is the file size above which CSV and JSONL inputs
// are memory-mapped instead of read through the page cache twice.
const DefaultMmapThreshold = 32 << 20

// Options control loading. The zero value detects the format from the
// file extension and uses the default mmap threshold.
type Options struct {
	// Format overrides extension detection: csv, json, jsonl, avro,
	// parquet, arrow.
	Format string
	// MmapThreshold is the minimum size in bytes for the mmap path;
	// zero means DefaultMmapThreshold, negative disables mmap.
	MmapThreshold int64
}

// Load reads the file and returns a Table for tabular formats, or the
// decoded scalar value for a single JSON document.
func Load(path string, opts Options) (value.Value, error) {
	format, compression := detect(path, opts.Format)

	switch format {
	case "csv", "json", "jsonl":
		r, closer, err := openText(path, compression, opts)
		if err != nil {
			return value.Null(), err
		}
		defer closer()
		switch format {
		case "csv":
			return loadCSV(r, path)
		case "json":
			return loadJSON(r, path)
		default:
			return loadJSONL(r, path)
		}
	case "avro":
		return loadAvro(path)
	case "parquet":
		return loadParquet(path, compression)
	case "arrow":
		return loadArrow(path, compression)
	default:
		return value.Null(), fmt.Errorf(
			"unsupported file format %q (supported: .csv, .json, .jsonl, .avro, .parquet, .arrow, .feather)", format)
	}
}

// LoadReader decodes a stream, typically stdin. The format cannot be
// detected from a filename, so opts.Format applies; empty means json.
func LoadReader(r io.Reader, opts Options) (value.Value, error) {
	format := opts.Format
	if format == "" {
		format = "json"
	}
	switch format {
	case "csv":
		return loadCSV(r, "stdin")
	case "json":
		return loadJSON(r, "stdin")
	case "jsonl", "ndjson":
		return loadJSONL(r, "stdin")
	case "avro":
		return avroFromReader(r, "stdin")
	case "parquet", "arrow", "feather":
		data, err := io.ReadAll(r)
		if err != nil {
			return value.Null(), fmt.Errorf("cannot read stdin: %w", err)
		}
		if format == "parquet" {
			return parquetFromBytes(data, "stdin")
		}
		return arrowFromBytes(data, "stdin")
	default:
		return value.Null(), fmt.Errorf("unsupported input format %q", format)
	}
}

// detect splits "data.csv.gz" into format "csv" and compression "gz".
func detect(path, override string) (format, compression string) {
	name := strings.ToLower(path)
	switch {
	case strings.HasSuffix(name, ".gz"):
		compression = "gz"
		name = strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".zst"):
		compression = "zst"
		name = strings.TrimSuffix(name, ".zst")
	}
	if override != "" {
		switch override {
		case "ndjson":
			override = "jsonl"
		case "feather":
			override = "arrow"
		}
		return override, compression
	}
	switch filepath.Ext(name) {
	case ".csv":
		format = "csv"
	case ".json":
		format = "json"
	case ".jsonl", ".ndjson":
		format = "jsonl"
	case ".avro":
		format = "avro"
	case ".parquet":
		format = "parquet"
	case ".arrow", ".feather":
		format = "arrow"
	default:
		format = strings.TrimPrefix(filepath.Ext(name), ".")
	}
	return format, compression
}

// openText opens a line-oriented input, decompressing when needed and
// memory-mapping large uncompressed files.
func openText(path, compression string, opts Options) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", path, err)
	}

	switch compression {
	case "gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("cannot read gzip from %s: %w", path, err)
		}
		return zr, func() { zr.Close(); f.Close() }, nil
	case "zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("cannot read zstd from %s: %w", path, err)
		}
		return zr, func() { zr.Close(); f.Close() }, nil
	}

	threshold := opts.MmapThreshold
	if threshold == 0 {
		threshold = DefaultMmapThreshold
	}
	if threshold > 0 {
		if info, err := f.Stat(); err == nil && info.Size() >= threshold {
			m, err := mmap.Map(f, mmap.RDONLY, 0)
			if err == nil {
				return bytes.NewReader(m), func() { m.Unmap(); f.Close() }, nil
			}
			// Map failure falls through to plain reads.
		}
	}
	return f, func() { f.Close() }, nil
}

func loadCSV(r io.Reader, path string) (value.Value, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return value.Null(), fmt.Errorf("cannot read CSV header from %s: %w", path, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	cols := make([][]value.Value, len(columns))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return value.Null(), fmt.Errorf("error reading CSV row: %w", err)
		}
		for i := range columns {
			if i < len(record) {
				cols[i] = append(cols[i], parseCell(strings.TrimSpace(record[i])))
			} else {
				cols[i] = append(cols[i], value.Null())
			}
		}
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

// parseCell infers int, float, bool, and null from CSV text.
func parseCell(s string) value.Value {
	if s == "" || strings.EqualFold(s, "null") {
		return value.Null()
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.IntVal(v)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return value.FloatVal(v)
	}
	switch strings.ToLower(s) {
	case "true":
		return value.BoolVal(true)
	case "false":
		return value.BoolVal(false)
	}
	return value.StrVal(s)
}

// loadJSON decodes one document: an array of objects becomes a Table,
// anything else stays a scalar value.
func loadJSON(r io.Reader, path string) (value.Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return value.Null(), fmt.Errorf("cannot read %s: %w", path, err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return value.Null(), fmt.Errorf("cannot parse JSON from %s: %w", path, err)
	}
	v := value.FromGo(doc)
	if v.Kind == value.KindArray && allObjects(v.Arr) {
		t, err := value.TableFromObjects(v.Arr)
		if err != nil {
			return value.Null(), err
		}
		return value.TableVal(t), nil
	}
	return v, nil
}

func loadJSONL(r io.Reader, path string) (value.Value, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var rows []value.Value
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec interface{}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return value.Null(), fmt.Errorf("invalid JSON on line %d: %w", lineNum, err)
		}
		rows = append(rows, value.FromGo(rec))
	}
	if err := scanner.Err(); err != nil {
		return value.Null(), fmt.Errorf("error reading %s: %w", path, err)
	}
	if !allObjects(rows) {
		return value.ArrayVal(rows...), nil
	}
	t, err := value.TableFromObjects(rows)
	if err != nil {
		return value.Null(), err
	}
	return value.TableVal(t), nil
}

func allObjects(vals []value.Value) bool {
	if len(vals) == 0 {
		return false
	}
	for _, v := range vals {
		if v.Kind != value.KindObject {
			return false
		}
	}
	return true
}

// decompressed reads the whole input through the configured decompressor.
// Columnar formats need random access, so they cannot stream.
func decompressed(path, compression string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch compression {
	case "gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("cannot read gzip from %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	case "zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("cannot read zstd from %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(r)
}
