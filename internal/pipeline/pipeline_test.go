package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridkit/gridkit/pkg/aggregate"
	"github.com/gridkit/gridkit/pkg/models"
	"github.com/gridkit/gridkit/pkg/testutil"
)

func testColumns() []*models.Column {
	return []*models.Column{
		models.NewColumn("dept", models.FieldAccessor("dept")),
		models.NewColumn("amount", models.FieldAccessor("amount")),
	}
}

func testRecords() []*models.Record {
	return testutil.Records("id",
		map[string]interface{}{"id": "r1", "dept": "Eng", "amount": 30},
		map[string]interface{}{"id": "r2", "dept": "HR", "amount": 10},
		map[string]interface{}{"id": "r3", "dept": "Eng", "amount": 20},
		map[string]interface{}{"id": "r4", "dept": "Ops", "amount": 40},
	)
}

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := New(testColumns(), aggregate.NewRegistry())
	p.SetRecords(testRecords())
	return p
}

func TestRefreshModelBasic(t *testing.T) {
	p := newPipeline(t)
	state := models.NewTableState()
	require.NoError(t, p.RefreshModel(context.Background(), StageEverything, state))

	assert.Equal(t, 4, p.Final().Len())
	require.NoError(t, p.Final().Validate())

	// No filters active: pre-filter equals the filtered model.
	assert.Equal(t, testutil.RowIDs(p.PreFilter().FlatRows), testutil.RowIDs(p.PreSort().FlatRows))
}

func TestRefreshModelFilterAndSort(t *testing.T) {
	p := newPipeline(t)
	state := models.NewTableState()
	state.ColumnFilters = []models.ColumnFilter{
		{ColumnID: "amount", Value: models.ScalarFilter{Value: models.NewString(">15")}},
	}
	state.Sorting = []models.SortKey{{ColumnID: "amount", Desc: true}}
	require.NoError(t, p.RefreshModel(context.Background(), StageEverything, state))

	assert.Equal(t, []string{"r4", "r1", "r3"}, testutil.RowIDs(p.Final().FlatRows))
	// Pre-sort view keeps filtered input order.
	assert.Equal(t, []string{"r1", "r3", "r4"}, testutil.RowIDs(p.PreSort().FlatRows))
	// Pre-filter view keeps all rows.
	assert.Equal(t, 4, p.PreFilter().Len())
}

func TestRefreshModelGrouping(t *testing.T) {
	p := newPipeline(t)
	state := models.NewTableState()
	state.Grouping = []string{"dept"}
	state.ExpandedDefault = true
	require.NoError(t, p.RefreshModel(context.Background(), StageEverything, state))

	final := p.Final()
	require.NoError(t, final.Validate())
	assert.Len(t, final.Rows, 3)
	assert.Equal(t, 7, final.Len()) // 3 groups + 4 leaves
	assert.GreaterOrEqual(t, len(final.FlatRows), len(final.Rows))

	// Collapsed default hides leaves.
	state.ExpandedDefault = false
	require.NoError(t, p.RefreshModel(context.Background(), StageMap, state))
	assert.Equal(t, 3, p.Final().Len())
	// The pre-expand view still carries the whole tree.
	assert.Equal(t, 7, p.PreExpand().Len())

	// Expanding one group surfaces only its leaves.
	state.Expanded["group|dept|0"] = true
	require.NoError(t, p.RefreshModel(context.Background(), StageMap, state))
	assert.Equal(t, []string{"group|dept|0", "r1", "r3", "group|dept|1", "group|dept|2"},
		testutil.RowIDs(p.Final().FlatRows))
}

func TestDeterministicRecompute(t *testing.T) {
	state := models.NewTableState()
	state.Grouping = []string{"dept"}
	state.Sorting = []models.SortKey{{ColumnID: "amount"}}
	state.ExpandedDefault = true

	a := newPipeline(t)
	require.NoError(t, a.RefreshModel(context.Background(), StageEverything, state))
	b := newPipeline(t)
	require.NoError(t, b.RefreshModel(context.Background(), StageEverything, state))

	assert.Equal(t, testutil.RowIDs(a.Final().FlatRows), testutil.RowIDs(b.Final().FlatRows))

	// Recomputing the same pipeline from scratch yields identical ids.
	first := testutil.RowIDs(a.Final().FlatRows)
	require.NoError(t, a.RefreshModel(context.Background(), StageEverything, state))
	assert.Equal(t, first, testutil.RowIDs(a.Final().FlatRows))
}

func TestStagedRecomputeReusesUpstream(t *testing.T) {
	p := newPipeline(t)
	state := models.NewTableState()
	require.NoError(t, p.RefreshModel(context.Background(), StageEverything, state))
	preFilter := p.PreFilter()

	// A sort-only change must not rebuild the leaf or filtered models.
	state.Sorting = []models.SortKey{{ColumnID: "amount"}}
	require.NoError(t, p.RefreshModel(context.Background(), StageSort, state))
	assert.Same(t, preFilter, p.PreFilter())
	assert.Equal(t, []string{"r2", "r3", "r1", "r4"}, testutil.RowIDs(p.Final().FlatRows))
}

func TestStageViewsKeepTheirOwnOrder(t *testing.T) {
	p := newPipeline(t)
	state := models.NewTableState()
	require.NoError(t, p.RefreshModel(context.Background(), StageEverything, state))

	// A sort reorders only its own output; the pre-filter view keeps the
	// source order and its id index still resolves source positions.
	state.Sorting = []models.SortKey{{ColumnID: "amount"}}
	require.NoError(t, p.RefreshModel(context.Background(), StageSort, state))

	assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, testutil.RowIDs(p.PreFilter().FlatRows))
	assert.Equal(t, 2, p.PreFilter().RowsByID["r3"])
	assert.Equal(t, 2, p.PreSort().RowsByID["r3"])
	assert.Equal(t, 1, p.PreGroup().RowsByID["r3"])

	// Index reflects the visible position, nothing else writes it.
	for i, r := range p.Final().FlatRows {
		assert.Equal(t, i, r.Index)
	}
	r3, ok := p.Final().RowByID("r3")
	require.True(t, ok)
	assert.Equal(t, 1, r3.Index)
}

func TestFailedRecomputeLeavesOutputsUntouched(t *testing.T) {
	cols := testColumns()
	p := New(cols, aggregate.NewRegistry())
	p.SetRecords(testRecords())
	state := models.NewTableState()
	require.NoError(t, p.RefreshModel(context.Background(), StageEverything, state))
	before := p.Final()

	// An unregistered aggregator key fails the grouping step.
	cols[1].AggregateKey = "median"
	state.Grouping = []string{"dept"}
	err := p.RefreshModel(context.Background(), StageGroup, state)
	require.Error(t, err)
	assert.Same(t, before, p.Final())
}

func TestPagination(t *testing.T) {
	p := newPipeline(t)
	state := models.NewTableState()
	state.Pagination = models.Pagination{PageIndex: 1, PageSize: 3}
	require.NoError(t, p.RefreshModel(context.Background(), StageEverything, state))

	assert.Equal(t, []string{"r4"}, testutil.RowIDs(p.Final().FlatRows))
	assert.Equal(t, 4, p.PrePagination().Len())

	// A page past the end is empty, not an error.
	state.Pagination.PageIndex = 9
	require.NoError(t, p.RefreshModel(context.Background(), StagePaginate, state))
	assert.Equal(t, 0, p.Final().Len())
}

func TestTotalsIndependentOfGrouping(t *testing.T) {
	p := newPipeline(t)
	state := models.NewTableState()
	require.NoError(t, p.RefreshModel(context.Background(), StageEverything, state))
	assert.Equal(t, models.NewFloat(100), p.Totals()["amount"])

	state.Grouping = []string{"dept"}
	require.NoError(t, p.RefreshModel(context.Background(), StageGroup, state))
	assert.Equal(t, models.NewFloat(100), p.Totals()["amount"])
}

func TestInvalidatedStage(t *testing.T) {
	base := models.NewTableState()

	tests := []struct {
		name   string
		mutate func(models.TableState) models.TableState
		want   Stage
	}{
		{"no change", func(s models.TableState) models.TableState { return s }, StageNothing},
		{"filter change", func(s models.TableState) models.TableState {
			s.ColumnFilters = []models.ColumnFilter{{ColumnID: "a", Value: models.ScalarFilter{Value: models.NewInt(1)}}}
			return s
		}, StageFilter},
		{"global filter change", func(s models.TableState) models.TableState {
			s.GlobalFilter = &models.GlobalFilter{Query: "x"}
			return s
		}, StageFilter},
		{"sort change", func(s models.TableState) models.TableState {
			s.Sorting = []models.SortKey{{ColumnID: "a"}}
			return s
		}, StageSort},
		{"grouping change", func(s models.TableState) models.TableState {
			s.Grouping = []string{"dept"}
			return s
		}, StageGroup},
		{"expansion change", func(s models.TableState) models.TableState {
			s.Expanded["g"] = true
			return s
		}, StageMap},
		{"pagination change", func(s models.TableState) models.TableState {
			s.Pagination.PageSize = 10
			return s
		}, StagePaginate},
		{"selection change recomputes nothing", func(s models.TableState) models.TableState {
			s.RowSelection["r1"] = true
			return s
		}, StageNothing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := tt.mutate(base.Clone())
			assert.Equal(t, tt.want, InvalidatedStage(base, next))
		})
	}

	t.Run("hiding a column refilters under a global query", func(t *testing.T) {
		prev := base.Clone()
		prev.GlobalFilter = &models.GlobalFilter{Query: "x"}
		next := prev.Clone()
		next.Hidden["a"] = true
		assert.Equal(t, StageFilter, InvalidatedStage(prev, next))
	})
}
