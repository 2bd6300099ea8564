// Package grouping builds GridKit's row hierarchy: leaf rows bucketed by
// one or more grouping columns into synthetic group rows, recursively, with
// aggregates computed over every descendant leaf.
//
// Bucket keys are type-qualified so values of different kinds never share a
// bucket, and buckets keep first-seen order so grouping after a sort yields
// groups ordered by their first sorted member.
package grouping

import (
	"github.com/gridkit/gridkit/pkg/aggregate"
	"github.com/gridkit/gridkit/pkg/models"
)

// Engine groups leaf rows and computes per-bucket aggregates. It is
// stateless apart from the column set and registry, and safe for concurrent
// use.
type Engine struct {
	columns  map[string]*models.Column
	ordered  []*models.Column
	registry *aggregate.Registry
}

// resolvedAgg binds a column to its resolved aggregator.
type resolvedAgg struct {
	col  *models.Column
	fn   aggregate.Func
	name string
}

// NewEngine creates a grouping engine over the table's columns.
func NewEngine(columns []*models.Column, registry *aggregate.Registry) *Engine {
	byID := make(map[string]*models.Column, len(columns))
	for _, c := range columns {
		byID[c.ID] = c
	}
	return &Engine{columns: byID, ordered: columns, registry: registry}
}

// Group buckets the leaf rows by the ordered grouping column ids and returns
// the top-level rows of the hierarchy. Unknown column ids are skipped so
// stale state stays harmless. An unresolvable aggregator key is a
// configuration error and aborts the whole grouping.
func (e *Engine) Group(leaves []*models.Row, groupBy []string) ([]*models.Row, error) {
	cols := make([]*models.Column, 0, len(groupBy))
	for _, id := range groupBy {
		if col, ok := e.columns[id]; ok {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		for _, leaf := range leaves {
			leaf.Depth = 0
			leaf.Parent = nil
		}
		return leaves, nil
	}
	aggs, err := e.resolveAggregators()
	if err != nil {
		return nil, err
	}
	return e.groupLevel("", 0, nil, leaves, cols, aggs)
}

// Totals computes the table-level aggregates over all leaf rows, one value
// per column, using the same resolution order as group rows.
func (e *Engine) Totals(leaves []*models.Row) (map[string]models.Value, error) {
	aggs, err := e.resolveAggregators()
	if err != nil {
		return nil, err
	}
	totals := make(map[string]models.Value, len(aggs))
	for _, a := range aggs {
		totals[a.col.ID] = e.registry.Apply(a.fn, a.name, collectValues(leaves, a.col))
	}
	return totals, nil
}

// resolveAggregators resolves every column's aggregator up front so a
// configuration error surfaces before any bucket is built.
func (e *Engine) resolveAggregators() ([]resolvedAgg, error) {
	aggs := make([]resolvedAgg, 0, len(e.ordered))
	for _, col := range e.ordered {
		fn, name, err := e.registry.Resolve(col)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, resolvedAgg{col: col, fn: fn, name: name})
	}
	return aggs, nil
}

// bucket accumulates the leaves of one group key at one level.
type bucket struct {
	key    models.Value
	leaves []*models.Row
}

// groupLevel buckets the leaves by the first grouping column, recurses into
// the remaining columns, and synthesizes one group row per bucket. Parent,
// depth, and ordinal positions are assigned here.
func (e *Engine) groupLevel(parentID string, depth int, parent *models.Row, leaves []*models.Row, cols []*models.Column, aggs []resolvedAgg) ([]*models.Row, error) {
	col := cols[0]
	buckets := map[string]*bucket{}
	order := []string{}
	for _, leaf := range leaves {
		key := leaf.CellValue(col)
		qualified := key.TypeQualifiedKey()
		b, ok := buckets[qualified]
		if !ok {
			b = &bucket{key: key}
			buckets[qualified] = b
			order = append(order, qualified)
		}
		b.leaves = append(b.leaves, leaf)
	}

	rows := make([]*models.Row, 0, len(order))
	for ordinal, qualified := range order {
		b := buckets[qualified]
		group := &models.Row{
			ID:     models.GroupRowID(parentID, col.ID, ordinal),
			Depth:  depth,
			Parent: parent,
			Group: &models.GroupData{
				ColumnID:   col.ID,
				Key:        b.key,
				Ordinal:    ordinal,
				Aggregates: make(map[string]models.Value, len(aggs)),
				LeafCount:  len(b.leaves),
			},
		}
		for _, a := range aggs {
			if a.col.ID == col.ID {
				continue
			}
			group.Group.Aggregates[a.col.ID] = e.registry.Apply(a.fn, a.name, collectValues(b.leaves, a.col))
		}

		var children []*models.Row
		if len(cols) > 1 {
			var err error
			children, err = e.groupLevel(group.ID, depth+1, group, b.leaves, cols[1:], aggs)
			if err != nil {
				return nil, err
			}
		} else {
			children = b.leaves
			for _, leaf := range children {
				leaf.Depth = depth + 1
				leaf.Parent = group
			}
		}
		group.Group.Children = children
		group.Group.ChildCount = len(children)
		rows = append(rows, group)
	}
	return rows, nil
}

// Flatten walks the hierarchy depth-first and returns every row, group rows
// before their children. Positions in the result are the caller's to index;
// the rows are not written to.
func Flatten(top []*models.Row) []*models.Row {
	out := make([]*models.Row, 0, len(top))
	var walk func(rows []*models.Row)
	walk = func(rows []*models.Row) {
		for _, r := range rows {
			out = append(out, r)
			if r.IsGroup() {
				walk(r.Group.Children)
			}
		}
	}
	walk(top)
	return out
}

// collectValues projects one column's cell values across a leaf set.
func collectValues(leaves []*models.Row, col *models.Column) []models.Value {
	values := make([]models.Value, len(leaves))
	for i, leaf := range leaves {
		values[i] = leaf.CellValue(col)
	}
	return values
}
