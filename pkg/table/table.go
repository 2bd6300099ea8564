// Package table exposes the engine's public entry point: the Table wraps
// the record set, column definitions, and state container, funnels every
// mutation through one Update entry point, and serves the computed row
// model views.
//
// Recomputes run synchronously on the mutating goroutine under a mutex;
// state snapshots are immutable, so readers never observe a half-applied
// update.
package table

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gridkit/gridkit/internal/pipeline"
	"github.com/gridkit/gridkit/pkg/aggregate"
	"github.com/gridkit/gridkit/pkg/config"
	"github.com/gridkit/gridkit/pkg/errors"
	"github.com/gridkit/gridkit/pkg/logger"
	"github.com/gridkit/gridkit/pkg/models"
)

// Options configures a Table.
type Options struct {
	// Name identifies the table instance in log output. Optional.
	Name string

	// Columns are the immutable column definitions. Required.
	Columns []*models.Column

	// Records is the initial record set. May be empty.
	Records []*models.Record

	// Registry supplies named aggregators. Defaults to the built-ins.
	Registry *aggregate.Registry

	// Config supplies pagination and logging defaults. Defaults to
	// config.Default().
	Config *config.Config

	// OnChange is invoked after every successful state mutation, with the
	// table itself so the host can read the fresh views. Optional.
	OnChange func(*Table)
}

// Table is one grid instance. All mutations funnel through Update; reads
// return the views computed by the most recent successful recompute.
type Table struct {
	mu       sync.Mutex
	columns  []*models.Column
	byID     map[string]*models.Column
	registry *aggregate.Registry
	pipe     *pipeline.Pipeline
	state    models.TableState
	onChange func(*Table)
	log      *zap.Logger
	baseCtx  context.Context
}

// New validates the options, runs the initial recompute, and returns the
// table. Misconfiguration (no columns, duplicate ids, an unregistered
// aggregator key) fails here, never later.
func New(opts Options) (*Table, error) {
	if len(opts.Columns) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "table requires at least one column")
	}
	byID := make(map[string]*models.Column, len(opts.Columns))
	for _, col := range opts.Columns {
		if col.ID == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "column id cannot be empty")
		}
		if _, dup := byID[col.ID]; dup {
			return nil, errors.New(errors.ErrorTypeConfig, "duplicate column id").
				WithDetail("column", col.ID)
		}
		if col.Accessor == nil {
			return nil, errors.New(errors.ErrorTypeConfig, "column accessor cannot be nil").
				WithDetail("column", col.ID)
		}
		byID[col.ID] = col
	}

	registry := opts.Registry
	if registry == nil {
		registry = aggregate.NewRegistry()
	}
	// Resolve every column's aggregator now so a bad key is a setup error.
	for _, col := range opts.Columns {
		if _, _, err := registry.Resolve(col); err != nil {
			return nil, err
		}
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	state := models.NewTableState()
	state.Pagination.PageSize = cfg.Pagination.PageSize

	baseCtx := context.Background()
	log := logger.With(zap.Int("columns", len(opts.Columns)))
	if opts.Name != "" {
		baseCtx = context.WithValue(baseCtx, logger.TableIDKey, opts.Name)
		log = log.With(zap.String("table_id", opts.Name))
	}

	t := &Table{
		columns:  opts.Columns,
		byID:     byID,
		registry: registry,
		pipe:     pipeline.New(opts.Columns, registry),
		state:    state,
		onChange: opts.OnChange,
		log:      log,
		baseCtx:  baseCtx,
	}
	t.pipe.SetRecords(opts.Records)
	if err := t.pipe.RefreshModel(t.baseCtx, pipeline.StageEverything, t.state); err != nil {
		return nil, err
	}
	t.log.Debug("table created", zap.Int("records", len(opts.Records)))
	return t, nil
}

// Update is the single state-mutation entry point. The updater receives a
// deep copy of the current state and returns the desired next state; the
// recompute runs from the lowest stage the change invalidated. On error the
// previous state and every cached view stay in place and no notification
// fires.
func (t *Table) Update(updater func(models.TableState) models.TableState) error {
	t.mu.Lock()
	next := updater(t.state.Clone())
	stage := pipeline.InvalidatedStage(t.state, next)
	if err := t.pipe.RefreshModel(t.baseCtx, stage, next); err != nil {
		t.mu.Unlock()
		return err
	}
	t.state = next
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(t)
	}
	return nil
}

// SetRecords replaces the record set and recomputes everything.
func (t *Table) SetRecords(records []*models.Record) error {
	t.mu.Lock()
	t.pipe.SetRecords(records)
	if err := t.pipe.RefreshModel(t.baseCtx, pipeline.StageEverything, t.state); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(t)
	}
	return nil
}

// State returns a deep copy of the current state snapshot.
func (t *Table) State() models.TableState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// Columns returns the column definitions in definition order.
func (t *Table) Columns() []*models.Column {
	return t.columns
}

// Column returns a column definition by id.
func (t *Table) Column(id string) (*models.Column, bool) {
	col, ok := t.byID[id]
	return col, ok
}

// Stage views, computed by the most recent successful recompute.

// PreFilter returns the leaf rows before filtering.
func (t *Table) PreFilter() *models.RowModel { return t.view((*pipeline.Pipeline).PreFilter) }

// PreSort returns the filtered rows before sorting.
func (t *Table) PreSort() *models.RowModel { return t.view((*pipeline.Pipeline).PreSort) }

// PreGroup returns the filtered and sorted rows before grouping.
func (t *Table) PreGroup() *models.RowModel { return t.view((*pipeline.Pipeline).PreGroup) }

// PreExpand returns the full hierarchy before expansion filtering.
func (t *Table) PreExpand() *models.RowModel { return t.view((*pipeline.Pipeline).PreExpand) }

// PrePagination returns the visible rows before page slicing.
func (t *Table) PrePagination() *models.RowModel { return t.view((*pipeline.Pipeline).PrePagination) }

// RowModel returns the final displayed row model.
func (t *Table) RowModel() *models.RowModel { return t.view((*pipeline.Pipeline).Final) }

func (t *Table) view(get func(*pipeline.Pipeline) *models.RowModel) *models.RowModel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return get(t.pipe)
}

// Totals returns the ungrouped global totals snapshot together with the
// active grouping columns. It is queryable whether or not grouping is on.
func (t *Table) Totals() (map[string]models.Value, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	totals := make(map[string]models.Value, len(t.pipe.Totals()))
	for k, v := range t.pipe.Totals() {
		totals[k] = v
	}
	grouping := append([]string(nil), t.state.Grouping...)
	return totals, grouping
}

// ColumnState is the derived display state of one column.
type ColumnState struct {
	ID          string
	Sorted      bool
	SortDesc    bool
	SortIndex   int
	Filtered    bool
	FilterValue models.FilterValue
	Hidden      bool
	Width       int
	Pinned      models.PinSide
}

// ColumnState returns the derived display state for a column id.
func (t *Table) ColumnState(id string) (ColumnState, bool) {
	col, ok := t.byID[id]
	if !ok {
		return ColumnState{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cs := ColumnState{ID: id}
	if i, sorted := t.state.SortIndexOf(id); sorted {
		cs.Sorted = true
		cs.SortIndex = i
		cs.SortDesc = t.state.Sorting[i].Desc
	}
	if fv := t.state.FilterFor(id); fv != nil {
		cs.Filtered = true
		cs.FilterValue = fv
	}
	cs.Hidden = t.state.IsHidden(id, col.DefaultHidden)
	cs.Width = col.DefaultWidth
	if w, ok := t.state.Sizing[id]; ok {
		cs.Width = w
	}
	cs.Pinned = t.state.Pinning[id]
	return cs, true
}

// ColumnOrder returns the effective display order: explicitly ordered
// columns first, then the rest in definition order.
func (t *Table) ColumnOrder() []string {
	t.mu.Lock()
	ordered := append([]string(nil), t.state.ColumnOrder...)
	t.mu.Unlock()

	seen := make(map[string]bool, len(ordered))
	out := make([]string, 0, len(t.columns))
	for _, id := range ordered {
		if _, ok := t.byID[id]; ok && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	for _, col := range t.columns {
		if !seen[col.ID] {
			out = append(out, col.ID)
		}
	}
	return out
}

// ExportState serializes the current state snapshot to JSON.
func (t *Table) ExportState() ([]byte, error) {
	return models.EncodeState(t.State())
}

// ImportState restores a serialized state snapshot and recomputes.
func (t *Table) ImportState(data []byte) error {
	restored, err := models.DecodeState(data)
	if err != nil {
		return err
	}
	return t.Update(func(models.TableState) models.TableState {
		return restored
	})
}
