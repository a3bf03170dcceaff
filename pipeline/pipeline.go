// Package pipeline provides a fluent builder for table transforms running
// on the same value substrate as compiled filters.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/datasetq/dsq/engine"
	"github.com/datasetq/dsq/value"
)

// GroupedColumn names the nested column produced by GroupBy and consumed
// by Aggregate.
const GroupedColumn = "grouped"

type stage struct {
	name string
	// materialize marks stages that cannot run deferred on a LazyTable.
	materialize bool
	apply       value.LazyStage
}

// Pipeline is an ordered list of table transforms. The zero pipeline is the
// identity. Builder methods append a stage and return the pipeline.
type Pipeline struct {
	stages []stage
}

// New returns an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) add(name string, fn value.LazyStage) *Pipeline {
	p.stages = append(p.stages, stage{name: name, apply: fn})
	return p
}

func (p *Pipeline) addEager(name string, fn value.LazyStage) *Pipeline {
	p.stages = append(p.stages, stage{name: name, materialize: true, apply: fn})
	return p
}

// Select keeps the named columns, in the given order.
func (p *Pipeline) Select(cols ...string) *Pipeline {
	return p.add("select", func(t *value.Table) (*value.Table, error) {
		picked := make([]*value.Series, len(cols))
		for i, c := range cols {
			s := t.Column(c)
			if s == nil {
				return nil, fmt.Errorf("select: column %q not found", c)
			}
			picked[i] = s
		}
		return value.NewTable(picked...)
	})
}

// Filter keeps the rows for which the condition, applied to the row as an
// object, is truthy.
func (p *Pipeline) Filter(cond engine.Operation) *Pipeline {
	return p.add("filter", func(t *value.Table) (*value.Table, error) {
		mask := make([]bool, t.Height())
		for i := range mask {
			v, err := cond.Apply(t.Row(i))
			if err != nil {
				return nil, fmt.Errorf("filter: %w", err)
			}
			mask[i] = v.Truthy()
		}
		return t.FilterRows(mask), nil
	})
}

// Sort orders rows by the key columns, ascending unless descending is set.
// The sort is stable.
func (p *Pipeline) Sort(keys []string, descending bool) *Pipeline {
	return p.add("sort", func(t *value.Table) (*value.Table, error) {
		cols := make([]*value.Series, len(keys))
		for i, k := range keys {
			s := t.Column(k)
			if s == nil {
				return nil, fmt.Errorf("sort: column %q not found", k)
			}
			cols[i] = s
		}
		order := make([]int, t.Height())
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			a, b := order[i], order[j]
			for _, s := range cols {
				cmp := value.Compare(s.Vals[a], s.Vals[b])
				if cmp != 0 {
					if descending {
						return cmp > 0
					}
					return cmp < 0
				}
			}
			return false
		})
		return t.Gather(order), nil
	})
}

// Head keeps the first n rows.
func (p *Pipeline) Head(n int) *Pipeline {
	return p.add("head", func(t *value.Table) (*value.Table, error) {
		// Cap into a local; the closure runs once per Execute and the
		// captured n must survive a short table.
		m := n
		if m > t.Height() {
			m = t.Height()
		}
		return t.SliceRows(0, m), nil
	})
}

// Tail keeps the last n rows.
func (p *Pipeline) Tail(n int) *Pipeline {
	return p.add("tail", func(t *value.Table) (*value.Table, error) {
		m := n
		if m > t.Height() {
			m = t.Height()
		}
		return t.SliceRows(t.Height()-m, t.Height()), nil
	})
}

// GroupBy buckets rows by the key columns. The result has one row per
// distinct key combination in first-seen order, the key columns, and a
// nested table column holding each group's remaining rows.
func (p *Pipeline) GroupBy(cols ...string) *Pipeline {
	return p.addEager("group_by", func(t *value.Table) (*value.Table, error) {
		return groupRows(t, cols)
	})
}

// Aggregate reduces groups (or the whole table when no GroupBy precedes it)
// to one row of aggregate columns.
func (p *Pipeline) Aggregate(aggs ...Agg) *Pipeline {
	return p.addEager("aggregate", func(t *value.Table) (*value.Table, error) {
		return aggregate(t, aggs)
	})
}

// Join merges another table into the pipeline's rows by key equality.
func (p *Pipeline) Join(other value.Value, kind JoinKind, keys ...string) *Pipeline {
	return p.addEager("join", func(t *value.Table) (*value.Table, error) {
		right, err := tableOf(other)
		if err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
		return join(t, right, kind, keys)
	})
}

// Pivot is group-by plus one aggregation over valueCol. pivotCol is
// validated but does not spread into columns; the result is the grouped
// aggregate keyed by indexCols.
func (p *Pipeline) Pivot(indexCols []string, pivotCol, valueCol string, agg AggFn) *Pipeline {
	return p.addEager("pivot", func(t *value.Table) (*value.Table, error) {
		if t.Column(pivotCol) == nil {
			return nil, fmt.Errorf("pivot: column %q not found", pivotCol)
		}
		grouped, err := groupRows(t, indexCols)
		if err != nil {
			return nil, err
		}
		return aggregate(grouped, []Agg{{Fn: agg, Col: valueCol}})
	})
}

// Unpivot melts valueCols into varName/valueName pairs, replicating idCols
// per emitted row. Empty names default to "variable" and "value".
func (p *Pipeline) Unpivot(idCols, valueCols []string, varName, valueName string) *Pipeline {
	if varName == "" {
		varName = "variable"
	}
	if valueName == "" {
		valueName = "value"
	}
	return p.addEager("unpivot", func(t *value.Table) (*value.Table, error) {
		return unpivot(t, idCols, valueCols, varName, valueName)
	})
}

// Execute threads the input through the stages in order. The first failing
// stage aborts with its error and no partial result; the input is never
// mutated. A LazyTable input stays lazy until a stage requires
// materialization.
func (p *Pipeline) Execute(v value.Value) (value.Value, error) {
	if len(p.stages) == 0 {
		return v, nil
	}
	switch v.Kind {
	case value.KindLazy:
		return p.executeLazy(v.Lazy)
	case value.KindTable:
		t, err := p.run(v.Tab, 0)
		if err != nil {
			return value.Null(), err
		}
		return value.TableVal(t), nil
	case value.KindArray:
		t, err := value.TableFromObjects(v.Arr)
		if err != nil {
			return value.Null(), fmt.Errorf("pipeline input: %w", err)
		}
		out, err := p.run(t, 0)
		if err != nil {
			return value.Null(), err
		}
		return value.TableVal(out), nil
	default:
		return value.Null(), &value.TypeError{Operation: "pipeline", Type: v.TypeName()}
	}
}

func (p *Pipeline) run(t *value.Table, from int) (*value.Table, error) {
	cur := t
	for _, s := range p.stages[from:] {
		next, err := s.apply(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (p *Pipeline) executeLazy(l *value.LazyTable) (value.Value, error) {
	for i, s := range p.stages {
		if s.materialize {
			t, err := l.Collect()
			if err != nil {
				return value.Null(), err
			}
			out, err := p.run(t, i)
			if err != nil {
				return value.Null(), err
			}
			return value.TableVal(out), nil
		}
		l = l.With(s.apply)
	}
	return value.LazyVal(l), nil
}

func tableOf(v value.Value) (*value.Table, error) {
	switch v.Kind {
	case value.KindTable:
		return v.Tab, nil
	case value.KindLazy:
		return v.Lazy.Collect()
	case value.KindArray:
		return value.TableFromObjects(v.Arr)
	default:
		return nil, &value.TypeError{Operation: "pipeline", Type: v.TypeName()}
	}
}

func groupRows(t *value.Table, cols []string) (*value.Table, error) {
	keyCols := make([]*value.Series, len(cols))
	for i, c := range cols {
		s := t.Column(c)
		if s == nil {
			return nil, fmt.Errorf("group: column %q not found", c)
		}
		keyCols[i] = s
	}
	keySet := make(map[string]bool, len(cols))
	for _, c := range cols {
		keySet[c] = true
	}
	var rest []*value.Series
	for _, s := range t.Columns() {
		if !keySet[s.Name] {
			rest = append(rest, s)
		}
	}

	var order []string
	groups := make(map[string][]int)
	for i := 0; i < t.Height(); i++ {
		key := ""
		for _, s := range keyCols {
			key += s.Vals[i].Key() + "\x1f"
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	out := make([]*value.Series, 0, len(cols)+1)
	for ci, s := range keyCols {
		vals := make([]value.Value, len(order))
		for gi, key := range order {
			vals[gi] = s.Vals[groups[key][0]]
		}
		out = append(out, value.NewSeries(cols[ci], vals))
	}

	nested := make([]value.Value, len(order))
	for gi, key := range order {
		idx := groups[key]
		sub := make([]*value.Series, len(rest))
		for si, s := range rest {
			sub[si] = s.Gather(idx)
		}
		subTab, err := value.NewTable(sub...)
		if err != nil {
			return nil, err
		}
		nested[gi] = value.TableVal(subTab)
	}
	out = append(out, value.NewSeries(GroupedColumn, nested))
	return value.NewTable(out...)
}
