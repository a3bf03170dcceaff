package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/datasetq/dsq/value"
)

// AggFn selects an aggregation function.
type AggFn int

const (
	Count AggFn = iota
	Sum
	Mean
	Min
	Max
	First
	Last
	Median
	Std
	Var
	List
	CountUnique
	Concat
)

var aggNames = map[AggFn]string{
	Count: "count", Sum: "sum", Mean: "mean", Min: "min", Max: "max",
	First: "first", Last: "last", Median: "median", Std: "std", Var: "var",
	List: "list", CountUnique: "count_unique", Concat: "concat",
}

func (f AggFn) String() string {
	if n, ok := aggNames[f]; ok {
		return n
	}
	return "unknown"
}

// Agg is one aggregation over one column. Count ignores Col.
type Agg struct {
	Fn  AggFn
	Col string
}

// ColumnName is the output column: the function name for Count, otherwise
// function underscore column ("mean_age").
func (a Agg) ColumnName() string {
	if a.Fn == Count {
		return "count"
	}
	return a.Fn.String() + "_" + a.Col
}

// aggregate reduces a table to aggregate columns. A table carrying the
// nested group column yields one row per group plus the key columns;
// otherwise the whole table collapses to a single row.
func aggregate(t *value.Table, aggs []Agg) (*value.Table, error) {
	grouped := t.Column(GroupedColumn)
	if grouped == nil {
		row, err := aggregateRows(t, aggs)
		if err != nil {
			return nil, err
		}
		cols := make([]*value.Series, len(aggs))
		for i, a := range aggs {
			cols[i] = value.NewSeries(a.ColumnName(), []value.Value{row[i]})
		}
		return value.NewTable(cols...)
	}

	var keyCols []*value.Series
	for _, s := range t.Columns() {
		if s.Name != GroupedColumn {
			keyCols = append(keyCols, s)
		}
	}
	aggVals := make([][]value.Value, len(aggs))
	for i := range aggVals {
		aggVals[i] = make([]value.Value, t.Height())
	}
	for gi := 0; gi < t.Height(); gi++ {
		nested := grouped.Vals[gi]
		if nested.Kind != value.KindTable {
			return nil, fmt.Errorf("aggregate: %q is not a nested table", GroupedColumn)
		}
		row, err := aggregateRows(nested.Tab, aggs)
		if err != nil {
			return nil, err
		}
		for i := range aggs {
			aggVals[i][gi] = row[i]
		}
	}
	out := make([]*value.Series, 0, len(keyCols)+len(aggs))
	out = append(out, keyCols...)
	for i, a := range aggs {
		out = append(out, value.NewSeries(a.ColumnName(), aggVals[i]))
	}
	return value.NewTable(out...)
}

// aggregateRows computes one value per aggregation over the table's rows.
func aggregateRows(t *value.Table, aggs []Agg) ([]value.Value, error) {
	out := make([]value.Value, len(aggs))
	for i, a := range aggs {
		if a.Fn == Count {
			out[i] = value.IntVal(int64(t.Height()))
			continue
		}
		col := t.Column(a.Col)
		if col == nil {
			return nil, fmt.Errorf("aggregate: column %q not found", a.Col)
		}
		v, err := applyAgg(a.Fn, col.Vals)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", a.ColumnName(), err)
		}
		out[i] = v
	}
	return out, nil
}

// applyAgg folds non-null values; an all-null or empty input yields Null.
func applyAgg(fn AggFn, vals []value.Value) (value.Value, error) {
	kept := make([]value.Value, 0, len(vals))
	for _, v := range vals {
		if !v.IsNull() {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 && fn != List {
		return value.Null(), nil
	}
	switch fn {
	case Sum:
		acc := kept[0]
		for _, v := range kept[1:] {
			var err error
			acc, err = value.Arith("+", acc, v)
			if err != nil {
				return value.Null(), err
			}
		}
		return acc, nil
	case Mean:
		f, err := floatSum(kept)
		if err != nil {
			return value.Null(), err
		}
		return value.FloatVal(f / float64(len(kept))), nil
	case Min:
		return fold(kept, func(a, b value.Value) value.Value {
			if value.Compare(b, a) < 0 {
				return b
			}
			return a
		}), nil
	case Max:
		return fold(kept, func(a, b value.Value) value.Value {
			if value.Compare(b, a) > 0 {
				return b
			}
			return a
		}), nil
	case First:
		return kept[0], nil
	case Last:
		return kept[len(kept)-1], nil
	case Median:
		return median(kept)
	case Std:
		v, err := variance(kept)
		if err != nil || v.IsNull() {
			return v, err
		}
		return value.FloatVal(math.Sqrt(v.Float)), nil
	case Var:
		return variance(kept)
	case List:
		return value.ArrayVal(kept...), nil
	case CountUnique:
		seen := make(map[string]bool, len(kept))
		for _, v := range kept {
			seen[v.Key()] = true
		}
		return value.IntVal(int64(len(seen))), nil
	case Concat:
		parts := make([]string, len(kept))
		for i, v := range kept {
			parts[i] = v.AsString()
		}
		return value.StrVal(strings.Join(parts, ",")), nil
	default:
		return value.Null(), fmt.Errorf("unknown aggregation %v", fn)
	}
}

func fold(vals []value.Value, pick func(a, b value.Value) value.Value) value.Value {
	acc := vals[0]
	for _, v := range vals[1:] {
		acc = pick(acc, v)
	}
	return acc
}

func floatSum(vals []value.Value) (float64, error) {
	var sum float64
	for _, v := range vals {
		f, ok := v.AsFloat()
		if !ok {
			return 0, fmt.Errorf("non-numeric value %s", v.AsString())
		}
		sum += f
	}
	return sum, nil
}

func median(vals []value.Value) (value.Value, error) {
	nums := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := v.AsFloat()
		if !ok {
			return value.Null(), fmt.Errorf("non-numeric value %s", v.AsString())
		}
		nums[i] = f
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return value.FloatVal(nums[mid]), nil
	}
	return value.FloatVal((nums[mid-1] + nums[mid]) / 2), nil
}

// variance is the sample variance; fewer than two values yield Null.
func variance(vals []value.Value) (value.Value, error) {
	if len(vals) < 2 {
		return value.Null(), nil
	}
	sum, err := floatSum(vals)
	if err != nil {
		return value.Null(), err
	}
	mean := sum / float64(len(vals))
	var acc float64
	for _, v := range vals {
		f, _ := v.AsFloat()
		d := f - mean
		acc += d * d
	}
	return value.FloatVal(acc / float64(len(vals)-1)), nil
}
