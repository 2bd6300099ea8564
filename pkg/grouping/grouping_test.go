package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridkit/gridkit/pkg/aggregate"
	"github.com/gridkit/gridkit/pkg/errors"
	"github.com/gridkit/gridkit/pkg/models"
)

func testColumns() []*models.Column {
	dept := models.NewColumn("dept", models.FieldAccessor("dept"))
	region := models.NewColumn("region", models.FieldAccessor("region"))
	amount := models.NewColumn("amount", models.FieldAccessor("amount"))
	return []*models.Column{dept, region, amount}
}

func leaf(key string, fields map[string]interface{}) *models.Row {
	return models.NewLeafRow(models.NewRecord(key, fields))
}

func deptLeaves() []*models.Row {
	return []*models.Row{
		leaf("r1", map[string]interface{}{"dept": "Eng", "region": "west", "amount": 10}),
		leaf("r2", map[string]interface{}{"dept": "Eng", "region": "east", "amount": 20}),
		leaf("r3", map[string]interface{}{"dept": "HR", "region": "west", "amount": 5}),
	}
}

func TestGroupFirstSeenOrder(t *testing.T) {
	e := NewEngine(testColumns(), aggregate.NewRegistry())

	top, err := e.Group(deptLeaves(), []string{"dept"})
	require.NoError(t, err)
	require.Len(t, top, 2)

	eng, hr := top[0], top[1]
	assert.Equal(t, "Eng", eng.Group.Key.AsString())
	assert.Equal(t, "HR", hr.Group.Key.AsString())
	assert.Equal(t, 2, eng.Group.ChildCount)
	assert.Equal(t, 1, hr.Group.ChildCount)
	assert.Equal(t, 2, eng.Group.LeafCount)

	// Deterministic ids from parent chain, column, and bucket ordinal.
	assert.Equal(t, "group|dept|0", eng.ID)
	assert.Equal(t, "group|dept|1", hr.ID)

	// Leaves keep identity, get reassigned depth and parent.
	require.Len(t, eng.Group.Children, 2)
	assert.Equal(t, "r1", eng.Group.Children[0].ID)
	assert.Equal(t, 1, eng.Group.Children[0].Depth)
	assert.Same(t, eng, eng.Group.Children[0].Parent)
}

func TestGroupAggregates(t *testing.T) {
	e := NewEngine(testColumns(), aggregate.NewRegistry())

	top, err := e.Group(deptLeaves(), []string{"dept"})
	require.NoError(t, err)

	eng := top[0]
	assert.Equal(t, models.NewFloat(30), eng.Group.Aggregates["amount"])
	// The grouping column itself carries the bucket key, not an aggregate.
	_, ok := eng.Group.Aggregates["dept"]
	assert.False(t, ok)
	// Text column: sum yields nothing, falls back to count.
	assert.Equal(t, models.NewInt(2), eng.Group.Aggregates["region"])
}

func TestNestedGrouping(t *testing.T) {
	e := NewEngine(testColumns(), aggregate.NewRegistry())

	top, err := e.Group(deptLeaves(), []string{"dept", "region"})
	require.NoError(t, err)
	require.Len(t, top, 2)

	eng := top[0]
	require.Len(t, eng.Group.Children, 2)
	west := eng.Group.Children[0]
	require.True(t, west.IsGroup())
	assert.Equal(t, "west", west.Group.Key.AsString())
	assert.Equal(t, "group|dept|0|group|region|0", west.ID)
	assert.Equal(t, 1, west.Depth)
	assert.Equal(t, 1, west.Group.LeafCount)
	assert.Equal(t, 2, west.Group.Children[0].Depth)
}

func TestTypeQualifiedBuckets(t *testing.T) {
	e := NewEngine(testColumns(), aggregate.NewRegistry())
	leaves := []*models.Row{
		leaf("a", map[string]interface{}{"dept": 1}),
		leaf("b", map[string]interface{}{"dept": "1"}),
	}
	top, err := e.Group(leaves, []string{"dept"})
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestGroupWithoutColumnsReturnsLeaves(t *testing.T) {
	e := NewEngine(testColumns(), aggregate.NewRegistry())
	leaves := deptLeaves()

	top, err := e.Group(leaves, nil)
	require.NoError(t, err)
	assert.Equal(t, leaves, top)

	// Unknown grouping ids are skipped, not errors.
	top, err = e.Group(leaves, []string{"removed"})
	require.NoError(t, err)
	assert.Equal(t, leaves, top)
}

func TestUnregisteredAggregatorKeyFailsGrouping(t *testing.T) {
	cols := testColumns()
	cols[2].AggregateKey = "median"
	e := NewEngine(cols, aggregate.NewRegistry())

	_, err := e.Group(deptLeaves(), []string{"dept"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = e.Totals(deptLeaves())
	require.Error(t, err)
}

func TestTotals(t *testing.T) {
	e := NewEngine(testColumns(), aggregate.NewRegistry())
	totals, err := e.Totals(deptLeaves())
	require.NoError(t, err)

	assert.Equal(t, models.NewFloat(35), totals["amount"])
	// Text columns fall back to count.
	assert.Equal(t, models.NewInt(3), totals["dept"])
}

func TestFlatten(t *testing.T) {
	e := NewEngine(testColumns(), aggregate.NewRegistry())
	top, err := e.Group(deptLeaves(), []string{"dept"})
	require.NoError(t, err)

	flat := Flatten(top)
	require.Len(t, flat, 5)
	assert.Equal(t, "group|dept|0", flat[0].ID)
	assert.Equal(t, "r1", flat[1].ID)
	assert.Equal(t, "r2", flat[2].ID)
	assert.Equal(t, "group|dept|1", flat[3].ID)
	assert.Equal(t, "r3", flat[4].ID)
	// Flatten does not write positions into the rows.
	for _, r := range flat {
		assert.Zero(t, r.Index)
	}
}
