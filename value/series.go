package value

import (
	"fmt"
	"strings"
)

// Series is a single named column. Elem records the declared element kind,
// which is distinct from the dynamic kind of individual cells (a null cell in
// an integer column keeps Elem == KindInt).
type Series struct {
	Name string
	Elem Kind
	Vals []Value
}

// NewSeries builds a series, inferring the element kind from the first
// non-null value.
func NewSeries(name string, vals []Value) *Series {
	elem := KindNull
	for _, v := range vals {
		if v.Kind != KindNull {
			elem = v.Kind
			break
		}
	}
	return &Series{Name: name, Elem: elem, Vals: vals}
}

// Len returns the number of elements.
func (s *Series) Len() int {
	return len(s.Vals)
}

// Clone returns a series sharing the backing slice. Callers must treat the
// elements as read-only.
func (s *Series) Clone() *Series {
	return &Series{Name: s.Name, Elem: s.Elem, Vals: s.Vals}
}

// Rename returns a series with a new name over the same backing slice.
func (s *Series) Rename(name string) *Series {
	return &Series{Name: name, Elem: s.Elem, Vals: s.Vals}
}

// Gather returns a new series holding the elements at the given positions.
func (s *Series) Gather(idx []int) *Series {
	vals := make([]Value, len(idx))
	for i, j := range idx {
		vals[i] = s.Vals[j]
	}
	return &Series{Name: s.Name, Elem: s.Elem, Vals: vals}
}

// Mask reports the element-wise truthiness of the series: Bool elements keep
// their value, numerics test against zero, strings against emptiness,
// everything else is false.
func (s *Series) Mask() []bool {
	mask := make([]bool, len(s.Vals))
	for i, v := range s.Vals {
		switch v.Kind {
		case KindBool:
			mask[i] = v.Bool
		case KindInt:
			mask[i] = v.Int != 0
		case KindBigInt:
			mask[i] = v.Big.Sign() != 0
		case KindFloat:
			mask[i] = v.Float != 0.0
		case KindString:
			mask[i] = v.Str != ""
		}
	}
	return mask
}

// Table is an eager collection of named, equal-length columns. Column order
// is significant for display and output.
type Table struct {
	cols []*Series
}

// NewTable builds a table from columns, verifying they share one length.
func NewTable(cols ...*Series) (*Table, error) {
	for i := 1; i < len(cols); i++ {
		if cols[i].Len() != cols[0].Len() {
			return nil, Errorf("column %q has %d rows, expected %d",
				cols[i].Name, cols[i].Len(), cols[0].Len())
		}
	}
	return &Table{cols: cols}, nil
}

// EmptyTable returns a table with no columns and no rows.
func EmptyTable() *Table {
	return &Table{}
}

// Height returns the row count.
func (t *Table) Height() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// Width returns the column count.
func (t *Table) Width() int {
	return len(t.cols)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the column slice. Callers must not mutate it.
func (t *Table) Columns() []*Series {
	return t.cols
}

// Column returns the named column, or nil when absent.
func (t *Table) Column(name string) *Series {
	for _, c := range t.cols {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Row returns row i as an Object value.
func (t *Table) Row(i int) Value {
	m := make(map[string]Value, len(t.cols))
	for _, c := range t.cols {
		m[c.Name] = c.Vals[i]
	}
	return ObjectVal(m)
}

// Clone returns a table sharing the column storage.
func (t *Table) Clone() *Table {
	cols := make([]*Series, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.Clone()
	}
	return &Table{cols: cols}
}

// WithColumn returns a table with the column appended, or replaced when a
// column of the same name exists.
func (t *Table) WithColumn(s *Series) (*Table, error) {
	if len(t.cols) > 0 && s.Len() != t.Height() {
		return nil, Errorf("column %q has %d rows, expected %d", s.Name, s.Len(), t.Height())
	}
	cols := make([]*Series, 0, len(t.cols)+1)
	replaced := false
	for _, c := range t.cols {
		if c.Name == s.Name {
			cols = append(cols, s)
			replaced = true
		} else {
			cols = append(cols, c)
		}
	}
	if !replaced {
		cols = append(cols, s)
	}
	return &Table{cols: cols}, nil
}

// SliceRows returns rows [lo,hi) sharing element storage.
func (t *Table) SliceRows(lo, hi int) *Table {
	cols := make([]*Series, len(t.cols))
	for i, c := range t.cols {
		cols[i] = &Series{Name: c.Name, Elem: c.Elem, Vals: c.Vals[lo:hi:hi]}
	}
	return &Table{cols: cols}
}

// FilterRows keeps the rows where mask is true. The mask length must equal
// the table height.
func (t *Table) FilterRows(mask []bool) *Table {
	var idx []int
	for i, keep := range mask {
		if keep {
			idx = append(idx, i)
		}
	}
	return t.Gather(idx)
}

// Gather returns a table holding the rows at the given positions, in order.
func (t *Table) Gather(idx []int) *Table {
	cols := make([]*Series, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.Gather(idx)
	}
	return &Table{cols: cols}
}

// String returns a compact one-line representation used in diagnostics.
func (t *Table) String() string {
	if t.Height() == 0 {
		return "[" + strings.Join(t.Names(), ", ") + "] (0 rows)"
	}
	var sb strings.Builder
	sb.WriteString("[ ")
	for i := 0; i < t.Height(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("{")
		for j, c := range t.cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.Name)
			sb.WriteString(":")
			sb.WriteString(c.Vals[i].AsString())
		}
		sb.WriteString("}")
	}
	sb.WriteString(" ]")
	return sb.String()
}

// TableFromObjects builds a table from an array of row objects. Column order
// is the first-seen key order across rows; missing keys become nulls.
func TableFromObjects(rows []Value) (*Table, error) {
	var names []string
	seen := make(map[string]bool)
	for _, r := range rows {
		if r.Kind != KindObject {
			return nil, &TypeError{Operation: "tabulate", Type: r.TypeName()}
		}
		for _, k := range sortedKeys(r.Obj) {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	cols := make([]*Series, len(names))
	for i, name := range names {
		vals := make([]Value, len(rows))
		for j, r := range rows {
			if v, ok := r.Obj[name]; ok {
				vals[j] = v
			} else {
				vals[j] = Null()
			}
		}
		cols[i] = NewSeries(name, vals)
	}
	return NewTable(cols...)
}

// LazyStage is one deferred transform over a materialized table.
type LazyStage func(*Table) (*Table, error)

// LazyTable is a deferred table computation: a base table plus pending
// stages applied on Collect. A LazyTable never re-runs stages already
// collected; Collect is repeatable and deterministic.
type LazyTable struct {
	base   *Table
	stages []LazyStage
}

// NewLazy wraps a table in a deferred computation with no pending stages.
func NewLazy(t *Table) *LazyTable {
	return &LazyTable{base: t}
}

// With returns a lazy table with one more pending stage. The receiver is not
// modified.
func (l *LazyTable) With(stage LazyStage) *LazyTable {
	stages := make([]LazyStage, len(l.stages)+1)
	copy(stages, l.stages)
	stages[len(l.stages)] = stage
	return &LazyTable{base: l.base, stages: stages}
}

// Pending returns the number of stages not yet materialized.
func (l *LazyTable) Pending() int {
	return len(l.stages)
}

// Collect materializes the table, threading the base through every pending
// stage in order.
func (l *LazyTable) Collect() (*Table, error) {
	t := l.base
	for i, stage := range l.stages {
		var err error
		t, err = stage(t)
		if err != nil {
			return nil, fmt.Errorf("lazy stage %d: %w", i, err)
		}
	}
	return t, nil
}
