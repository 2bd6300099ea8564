// Package pipeline implements the staged row-model recompute: leaf
// materialization, filter, sort, group+aggregate, expansion flatten, and
// pagination, with a dirty-from marker so a state change recomputes only
// from the first affected step onward.
//
// Every step is a pure function of (state, upstream model); cached step
// outputs upstream of the dirty marker are reused as-is. A recompute either
// commits every step output at once or returns an error leaving all cached
// outputs untouched.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gridkit/gridkit/pkg/aggregate"
	"github.com/gridkit/gridkit/pkg/filter"
	"github.com/gridkit/gridkit/pkg/grouping"
	"github.com/gridkit/gridkit/pkg/logger"
	"github.com/gridkit/gridkit/pkg/metrics"
	"github.com/gridkit/gridkit/pkg/models"
	"github.com/gridkit/gridkit/pkg/sorting"
)

// Stage identifies what a state change invalidated. Stages form a ladder:
// invalidating a stage recomputes it and every step downstream of it.
type Stage int

const (
	// StageEverything rebuilds leaf rows from the record set.
	StageEverything Stage = iota
	// StageFilter re-evaluates filters and everything after.
	StageFilter
	// StageSort re-sorts the filtered rows and everything after.
	StageSort
	// StageGroup rebuilds the group hierarchy and everything after.
	StageGroup
	// StageAggregate recomputes aggregates; buckets are rebuilt with them.
	StageAggregate
	// StageMap re-flattens the tree for the current expansion state.
	StageMap
	// StagePaginate re-slices the visible rows to the current page.
	StagePaginate
	// StageNothing invalidates nothing.
	StageNothing
)

// String returns the stage name used in logs and metric labels.
func (s Stage) String() string {
	switch s {
	case StageEverything:
		return "everything"
	case StageFilter:
		return "filter"
	case StageSort:
		return "sort"
	case StageGroup:
		return "group"
	case StageAggregate:
		return "aggregate"
	case StageMap:
		return "map"
	case StagePaginate:
		return "paginate"
	default:
		return "nothing"
	}
}

// step is an execution position in the recompute sequence.
type step int

const (
	stepLeaves step = iota
	stepFilter
	stepSort
	stepGroup
	stepMap
	stepPaginate
	stepDone
)

// entryStep maps an invalidated stage to the first execution step that must
// rerun. Aggregates are computed inside the grouping step, so invalidating
// either rebuilds the hierarchy.
func entryStep(s Stage) step {
	switch s {
	case StageEverything:
		return stepLeaves
	case StageFilter:
		return stepFilter
	case StageSort:
		return stepSort
	case StageGroup, StageAggregate:
		return stepGroup
	case StageMap:
		return stepMap
	case StagePaginate:
		return stepPaginate
	default:
		return stepDone
	}
}

// Pipeline holds the cached output of every step plus the dirty marker. It
// is not safe for concurrent use; the owning table serializes recomputes.
type Pipeline struct {
	columns   []*models.Column
	evaluator *filter.Evaluator
	engine    *grouping.Engine

	records []*models.Record
	dirty   step

	leaves   *models.RowModel // pre-filter
	filtered *models.RowModel // pre-sort
	sorted   *models.RowModel // pre-group
	grouped  *models.RowModel // pre-expand, full hierarchy
	expanded *models.RowModel // pre-pagination, visible rows
	final    *models.RowModel

	totals map[string]models.Value
}

// New creates a pipeline over the column set. Everything is dirty until the
// first recompute.
func New(columns []*models.Column, registry *aggregate.Registry) *Pipeline {
	return &Pipeline{
		columns:   columns,
		evaluator: filter.NewEvaluator(columns),
		engine:    grouping.NewEngine(columns, registry),
		dirty:     stepLeaves,
		leaves:    models.EmptyRowModel(),
		filtered:  models.EmptyRowModel(),
		sorted:    models.EmptyRowModel(),
		grouped:   models.EmptyRowModel(),
		expanded:  models.EmptyRowModel(),
		final:     models.EmptyRowModel(),
		totals:    map[string]models.Value{},
	}
}

// SetRecords replaces the record set and marks everything dirty.
func (p *Pipeline) SetRecords(records []*models.Record) {
	p.records = records
	p.Invalidate(StageEverything)
}

// Invalidate lowers the dirty marker to the given stage's entry step. It
// never raises the marker.
func (p *Pipeline) Invalidate(stage Stage) {
	if entry := entryStep(stage); entry < p.dirty {
		p.dirty = entry
	}
}

// InvalidatedStage diffs two state snapshots and returns the highest stage
// that still covers every change, so the recompute reuses as much cached
// output as possible.
func InvalidatedStage(prev, next models.TableState) Stage {
	if !filtersEqual(prev, next) {
		return StageFilter
	}
	// Visibility feeds the global filter's OR across visible columns.
	if hasGlobalQuery(prev) || hasGlobalQuery(next) {
		if !boolMapsEqual(prev.Hidden, next.Hidden) {
			return StageFilter
		}
	}
	if !sortKeysEqual(prev.Sorting, next.Sorting) {
		return StageSort
	}
	if !stringSlicesEqual(prev.Grouping, next.Grouping) {
		return StageGroup
	}
	if !expansionEqual(prev, next) {
		return StageMap
	}
	if prev.Pagination != next.Pagination {
		return StagePaginate
	}
	return StageNothing
}

// RefreshModel invalidates the given stage and recomputes every dirty step.
// On success all step outputs are replaced together and the dirty marker
// clears; on error no cached output changes. The context carries log
// correlation values (logger.TableIDKey); recomputes themselves never block.
func (p *Pipeline) RefreshModel(ctx context.Context, stage Stage, state models.TableState) error {
	p.Invalidate(stage)
	if p.dirty >= stepDone {
		return nil
	}
	start := time.Now()

	out := struct {
		leaves, filtered, sorted, grouped, expanded, final *models.RowModel
		totals                                             map[string]models.Value
	}{p.leaves, p.filtered, p.sorted, p.grouped, p.expanded, p.final, p.totals}

	if p.dirty <= stepLeaves {
		out.leaves = p.buildLeaves()
	}
	if p.dirty <= stepFilter {
		out.filtered = p.runFilter(out.leaves, state)
	}
	if p.dirty <= stepSort {
		out.sorted = p.runSort(out.filtered, state)
	}
	if p.dirty <= stepGroup {
		grouped, totals, err := p.runGroup(out.sorted, state)
		if err != nil {
			return err
		}
		out.grouped, out.totals = grouped, totals
	}
	if p.dirty <= stepMap {
		out.expanded = p.runExpand(out.grouped, state)
	}
	out.final = p.runPaginate(out.expanded, state)

	p.leaves, p.filtered, p.sorted = out.leaves, out.filtered, out.sorted
	p.grouped, p.expanded, p.final = out.grouped, out.expanded, out.final
	p.totals = out.totals
	p.dirty = stepDone

	metrics.VisibleRows.Set(float64(p.final.Len()))
	logger.WithContext(context.WithValue(ctx, logger.StageKey, stage.String())).
		Debug("row model recomputed",
			zap.Int("visible_rows", p.final.Len()),
			zap.Duration("elapsed", time.Since(start)))
	return nil
}

// buildLeaves materializes one leaf row per record.
func (p *Pipeline) buildLeaves() *models.RowModel {
	timer := metrics.NewStageTimer(StageEverything.String())
	defer timer.Stop()

	rows := make([]*models.Row, len(p.records))
	for i, rec := range p.records {
		rows[i] = models.NewLeafRow(rec)
	}
	return models.NewRowModel(rows)
}

// runFilter keeps the leaf rows passing the global and column filters.
func (p *Pipeline) runFilter(upstream *models.RowModel, state models.TableState) *models.RowModel {
	timer := metrics.NewStageTimer(StageFilter.String())
	defer timer.Stop()

	kept := make([]*models.Row, 0, len(upstream.FlatRows))
	for _, row := range upstream.FlatRows {
		if p.evaluator.RowPasses(row, state) {
			kept = append(kept, row)
		}
	}
	return models.NewRowModel(kept)
}

// runSort orders the filtered rows by the sort model.
func (p *Pipeline) runSort(upstream *models.RowModel, state models.TableState) *models.RowModel {
	timer := metrics.NewStageTimer(StageSort.String())
	defer timer.Stop()

	cmp := sorting.NewComparator(p.columns, state.Sorting)
	return models.NewRowModel(cmp.Sort(upstream.FlatRows))
}

// runGroup builds the group hierarchy and the global totals snapshot over
// the filtered+sorted leaves.
func (p *Pipeline) runGroup(upstream *models.RowModel, state models.TableState) (*models.RowModel, map[string]models.Value, error) {
	timer := metrics.NewStageTimer(StageGroup.String())
	defer timer.Stop()

	totals, err := p.engine.Totals(upstream.FlatRows)
	if err != nil {
		return nil, nil, err
	}
	top, err := p.engine.Group(upstream.FlatRows, state.Grouping)
	if err != nil {
		return nil, nil, err
	}
	return models.NewHierarchicalRowModel(top, grouping.Flatten(top)), totals, nil
}

// runExpand projects the visible flat sequence: every top-level row, plus
// the children of group rows the expansion state marks open.
func (p *Pipeline) runExpand(upstream *models.RowModel, state models.TableState) *models.RowModel {
	timer := metrics.NewStageTimer(StageMap.String())
	defer timer.Stop()

	visible := make([]*models.Row, 0, len(upstream.FlatRows))
	var walk func(rows []*models.Row)
	walk = func(rows []*models.Row) {
		for _, r := range rows {
			visible = append(visible, r)
			if r.IsGroup() && state.IsExpanded(r.ID) {
				walk(r.Group.Children)
			}
		}
	}
	walk(upstream.Rows)
	// Index is defined on the visible sequence only. Upstream stage views
	// share these row pointers and resolve positions through their own
	// RowsByID, so this is the single write per recompute.
	for i, r := range visible {
		r.Index = i
	}
	return models.NewHierarchicalRowModel(upstream.Rows, visible)
}

// runPaginate slices the visible rows to the current page window. Indexes
// keep their visible positions; only the window changes.
func (p *Pipeline) runPaginate(upstream *models.RowModel, state models.TableState) *models.RowModel {
	timer := metrics.NewStageTimer(StagePaginate.String())
	defer timer.Stop()

	size := state.Pagination.PageSize
	if size <= 0 {
		return upstream
	}
	total := len(upstream.FlatRows)
	start := state.Pagination.PageIndex * size
	if start >= total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	page := upstream.FlatRows[start:end]
	m := &models.RowModel{
		Rows:     page,
		FlatRows: page,
		RowsByID: make(map[string]int, len(page)),
	}
	for i, r := range page {
		m.RowsByID[r.ID] = i
	}
	return m
}

// Stage views. Each returns the cached output computed by the most recent
// successful recompute.

// PreFilter returns the leaf model before filtering.
func (p *Pipeline) PreFilter() *models.RowModel { return p.leaves }

// PreSort returns the filtered model before sorting.
func (p *Pipeline) PreSort() *models.RowModel { return p.filtered }

// PreGroup returns the filtered+sorted model before grouping.
func (p *Pipeline) PreGroup() *models.RowModel { return p.sorted }

// PreExpand returns the full hierarchy before expansion filtering.
func (p *Pipeline) PreExpand() *models.RowModel { return p.grouped }

// PrePagination returns the visible rows before page slicing.
func (p *Pipeline) PrePagination() *models.RowModel { return p.expanded }

// Final returns the displayed row model.
func (p *Pipeline) Final() *models.RowModel { return p.final }

// Totals returns the ungrouped global totals snapshot, column id to total.
// It stays queryable whether or not grouping is active.
func (p *Pipeline) Totals() map[string]models.Value { return p.totals }

// filtersEqual reports whether the filtering inputs of two snapshots match.
// Custom predicates compare by presence only; replacing one forces a
// refilter via the query field or an explicit refresh.
func filtersEqual(prev, next models.TableState) bool {
	if (prev.GlobalFilter == nil) != (next.GlobalFilter == nil) {
		return false
	}
	if prev.GlobalFilter != nil {
		if prev.GlobalFilter.Query != next.GlobalFilter.Query {
			return false
		}
		if (prev.GlobalFilter.Predicate == nil) != (next.GlobalFilter.Predicate == nil) {
			return false
		}
	}
	if len(prev.ColumnFilters) != len(next.ColumnFilters) {
		return false
	}
	for i := range prev.ColumnFilters {
		if prev.ColumnFilters[i].ColumnID != next.ColumnFilters[i].ColumnID {
			return false
		}
		if !filterValueEqual(prev.ColumnFilters[i].Value, next.ColumnFilters[i].Value) {
			return false
		}
	}
	return true
}

// filterValueEqual compares two filter values variant by variant. The union
// cannot be compared with == because the set variant carries a slice.
func filterValueEqual(a, b models.FilterValue) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case models.ScalarFilter:
		bv, ok := b.(models.ScalarFilter)
		return ok && av.Value == bv.Value
	case models.TextFilter:
		bv, ok := b.(models.TextFilter)
		return ok && av == bv
	case models.SetFilter:
		bv, ok := b.(models.SetFilter)
		return ok && av.Operator == bv.Operator &&
			av.IncludeBlanks == bv.IncludeBlanks &&
			stringSlicesEqual(av.SelectedValues, bv.SelectedValues)
	case models.RangeFilter:
		bv, ok := b.(models.RangeFilter)
		return ok && floatPtrEqual(av.Min, bv.Min) && floatPtrEqual(av.Max, bv.Max)
	default:
		return false
	}
}

func floatPtrEqual(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func sortKeysEqual(a, b []models.SortKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func expansionEqual(prev, next models.TableState) bool {
	if prev.ExpandedDefault != next.ExpandedDefault {
		return false
	}
	return boolMapsEqual(prev.Expanded, next.Expanded)
}

func hasGlobalQuery(s models.TableState) bool {
	return s.GlobalFilter != nil && s.GlobalFilter.Predicate == nil && s.GlobalFilter.Query != ""
}

func boolMapsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
