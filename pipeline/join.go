package pipeline

import (
	"fmt"

	"github.com/datasetq/dsq/value"
)

// JoinKind selects the join behavior for unmatched left rows.
type JoinKind int

const (
	// InnerJoin drops left rows with no right match.
	InnerJoin JoinKind = iota
	// LeftJoin keeps them, null-filling the right columns.
	LeftJoin
)

// join matches rows by key equality. The output carries the left columns
// first, then the right table's non-key columns; a right column whose name
// collides with a left column is suffixed "_right". A left row matching
// several right rows emits one output row per match.
func join(left, right *value.Table, kind JoinKind, keys []string) (*value.Table, error) {
	leftKeys := make([]*value.Series, len(keys))
	rightKeys := make([]*value.Series, len(keys))
	for i, k := range keys {
		if leftKeys[i] = left.Column(k); leftKeys[i] == nil {
			return nil, fmt.Errorf("join: column %q not found in left table", k)
		}
		if rightKeys[i] = right.Column(k); rightKeys[i] == nil {
			return nil, fmt.Errorf("join: column %q not found in right table", k)
		}
	}

	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	leftNames := make(map[string]bool)
	for _, s := range left.Columns() {
		leftNames[s.Name] = true
	}
	var rightCols []*value.Series
	var rightOutNames []string
	for _, s := range right.Columns() {
		if keySet[s.Name] {
			continue
		}
		name := s.Name
		if leftNames[name] {
			name += "_right"
		}
		rightCols = append(rightCols, s)
		rightOutNames = append(rightOutNames, name)
	}

	index := make(map[string][]int, right.Height())
	for i := 0; i < right.Height(); i++ {
		index[rowKey(rightKeys, i)] = append(index[rowKey(rightKeys, i)], i)
	}

	var leftIdx, rightIdx []int // rightIdx entry -1 means null-fill
	for i := 0; i < left.Height(); i++ {
		matches := index[rowKey(leftKeys, i)]
		if len(matches) == 0 {
			if kind == LeftJoin {
				leftIdx = append(leftIdx, i)
				rightIdx = append(rightIdx, -1)
			}
			continue
		}
		for _, m := range matches {
			leftIdx = append(leftIdx, i)
			rightIdx = append(rightIdx, m)
		}
	}

	out := make([]*value.Series, 0, left.Width()+len(rightCols))
	for _, s := range left.Columns() {
		out = append(out, s.Gather(leftIdx))
	}
	for ci, s := range rightCols {
		vals := make([]value.Value, len(rightIdx))
		for i, ri := range rightIdx {
			if ri < 0 {
				vals[i] = value.Null()
			} else {
				vals[i] = s.Vals[ri]
			}
		}
		out = append(out, value.NewSeries(rightOutNames[ci], vals))
	}
	return value.NewTable(out...)
}

func rowKey(cols []*value.Series, i int) string {
	key := ""
	for _, s := range cols {
		key += s.Vals[i].Key() + "\x1f"
	}
	return key
}

// unpivot melts the value columns into variable/value pairs. Each source
// row emits one output row per value column, replicating the id columns.
func unpivot(t *value.Table, idCols, valueCols []string, varName, valueName string) (*value.Table, error) {
	ids := make([]*value.Series, len(idCols))
	for i, c := range idCols {
		if ids[i] = t.Column(c); ids[i] == nil {
			return nil, fmt.Errorf("unpivot: column %q not found", c)
		}
	}
	vals := make([]*value.Series, len(valueCols))
	for i, c := range valueCols {
		if vals[i] = t.Column(c); vals[i] == nil {
			return nil, fmt.Errorf("unpivot: column %q not found", c)
		}
	}

	n := t.Height() * len(valueCols)
	outIds := make([][]value.Value, len(ids))
	for i := range outIds {
		outIds[i] = make([]value.Value, 0, n)
	}
	outVar := make([]value.Value, 0, n)
	outVal := make([]value.Value, 0, n)
	for row := 0; row < t.Height(); row++ {
		for ci, s := range vals {
			for ii, id := range ids {
				outIds[ii] = append(outIds[ii], id.Vals[row])
			}
			outVar = append(outVar, value.StrVal(valueCols[ci]))
			outVal = append(outVal, s.Vals[row])
		}
	}

	out := make([]*value.Series, 0, len(ids)+2)
	for i, c := range idCols {
		out = append(out, value.NewSeries(c, outIds[i]))
	}
	out = append(out, value.NewSeries(varName, outVar))
	out = append(out, value.NewSeries(valueName, outVal))
	return value.NewTable(out...)
}
