package serverside

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridkit/gridkit/pkg/config"
	"github.com/gridkit/gridkit/pkg/models"
	"github.com/gridkit/gridkit/pkg/testutil"
)

// fakeSource serves synthetic rows for any window. When gate is non-nil
// every fetch blocks until the gate closes or the context is cancelled;
// ignoreCancel makes the source sit on the gate regardless of cancellation,
// like a driver that cannot abort a query mid-flight.
type fakeSource struct {
	mu           sync.Mutex
	requests     []Request
	cancelled    int
	total        int64 // -1 means open-ended (nil LastRow)
	gate         chan struct{}
	ignoreCancel bool
}

func (s *fakeSource) GetRows(ctx context.Context, req Request) (Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	gate := s.gate
	s.mu.Unlock()

	if gate != nil && s.ignoreCancel {
		<-gate
	} else if gate != nil {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cancelled++
			s.mu.Unlock()
			return Result{}, ctx.Err()
		case <-gate:
		}
	}

	end := req.EndRow
	if s.total >= 0 && end > s.total {
		end = s.total
	}
	var rows []*models.Row
	for i := req.StartRow; i < end; i++ {
		rows = append(rows, models.NewLeafRow(models.NewRecord(
			fmt.Sprintf("row-%d", i), map[string]interface{}{"n": i})))
	}
	if s.total < 0 {
		return Result{Rows: rows}, nil
	}
	total := s.total
	return Result{Rows: rows, LastRow: &total}, nil
}

func (s *fakeSource) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func testConfig() config.ServerSideConfig {
	return config.ServerSideConfig{BlockSize: 50, MarginBlocks: 0, MaxResidentBlocks: 16}
}

func TestNewModelValidation(t *testing.T) {
	_, err := NewModel(nil, testConfig())
	require.Error(t, err)

	_, err = NewModel(&fakeSource{total: 10}, config.ServerSideConfig{BlockSize: 0})
	require.Error(t, err)
}

func TestViewportLoadsBlocks(t *testing.T) {
	src := &fakeSource{total: 200}
	m, err := NewModel(src, testConfig())
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, m.SetViewport(ctx, 0, 100))

	testutil.AssertEventually(t, func() bool {
		return m.LoadedCount() == 100
	}, 2*time.Second, "blocks never loaded")

	row, ok := m.Row(75)
	require.True(t, ok)
	assert.Equal(t, "row-75", row.ID)
	assert.True(t, m.IsLoaded(0))
	assert.False(t, m.IsLoaded(150))

	total, known := m.KnownTotal()
	assert.True(t, known)
	assert.EqualValues(t, 200, total)
	assert.InDelta(t, 0.5, m.Progress(), 0.001)
}

func TestResidentWindowNotRefetched(t *testing.T) {
	src := &fakeSource{total: 200}
	m, err := NewModel(src, testConfig())
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, m.SetViewport(ctx, 0, 50))
	testutil.AssertEventually(t, func() bool {
		return m.LoadedCount() == 50
	}, 2*time.Second, "block never loaded")

	// Re-requesting the same window fetches nothing and the loaded count
	// does not double.
	require.NoError(t, m.SetViewport(ctx, 0, 50))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, src.requestCount())
	assert.EqualValues(t, 50, m.LoadedCount())
}

func TestSupersededFetchIsCancelled(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{total: 200, gate: gate}
	m, err := NewModel(src, testConfig())
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	// Request A for [0, 50) blocks inside the source.
	require.NoError(t, m.SetViewport(ctx, 0, 50))
	testutil.AssertEventually(t, func() bool {
		return src.requestCount() == 1
	}, 2*time.Second, "first fetch never started")

	// Request B for [100, 150) does not overlap A: A must be cancelled
	// and its result never applied.
	require.NoError(t, m.SetViewport(ctx, 100, 150))
	close(gate)

	testutil.AssertEventually(t, func() bool {
		return m.IsLoaded(100)
	}, 2*time.Second, "second fetch never applied")

	assert.False(t, m.IsLoaded(0), "cancelled fetch result must be discarded")
	assert.EqualValues(t, 50, m.LoadedCount())
}

func TestViewportBounceRelaunchesCancelledFetch(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{total: 200, gate: gate, ignoreCancel: true}
	m, err := NewModel(src, testConfig())
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	// The fetch for block 0 blocks inside the source and never observes
	// its cancellation.
	require.NoError(t, m.SetViewport(ctx, 0, 50))
	testutil.AssertEventually(t, func() bool {
		return src.requestCount() == 1
	}, 2*time.Second, "first fetch never started")

	// Moving away cancels block 0; bouncing back must launch a fresh fetch
	// for it even though the dead one is still sitting in the source.
	require.NoError(t, m.SetViewport(ctx, 100, 150))
	testutil.AssertEventually(t, func() bool {
		return src.requestCount() == 2
	}, 2*time.Second, "second fetch never started")
	require.NoError(t, m.SetViewport(ctx, 0, 50))
	testutil.AssertEventually(t, func() bool {
		return src.requestCount() == 3
	}, 2*time.Second, "block 0 was never refetched after the bounce")

	close(gate)
	testutil.AssertEventually(t, func() bool {
		return m.IsLoaded(0)
	}, 2*time.Second, "relaunched fetch never loaded the viewport")

	// The superseded fetches resolved late; neither result was applied.
	assert.False(t, m.IsLoaded(100))
	assert.EqualValues(t, 50, m.LoadedCount())
}

func TestRetentionEvictsFarthestBlocks(t *testing.T) {
	src := &fakeSource{total: 1000}
	cfg := config.ServerSideConfig{BlockSize: 50, MarginBlocks: 0, MaxResidentBlocks: 2}
	m, err := NewModel(src, cfg)
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	view := func(start, end int64) {
		require.NoError(t, m.SetViewport(ctx, start, end))
		testutil.AssertEventually(t, func() bool {
			return m.IsLoaded(start)
		}, 2*time.Second, "viewport never loaded")
	}

	view(0, 50)
	view(50, 100)
	view(100, 150)

	assert.LessOrEqual(t, m.ResidentBlocks(), 2)
	// Block 0 is farthest from the viewport and must be gone.
	assert.False(t, m.IsLoaded(0))
	assert.True(t, m.IsLoaded(100))
	// The known total survives eviction.
	total, known := m.KnownTotal()
	assert.True(t, known)
	assert.EqualValues(t, 1000, total)

	// Revisiting the evicted window refetches it.
	before := src.requestCount()
	view(0, 50)
	assert.Greater(t, src.requestCount(), before)
}

func TestLazyGrowthOpenEnded(t *testing.T) {
	src := &fakeSource{total: -1}
	m, err := NewModel(src, testConfig())
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, m.SetViewport(ctx, 0, 150))

	testutil.AssertEventually(t, func() bool {
		return m.LoadedCount() == 150
	}, 2*time.Second, "blocks never loaded")

	// The source never fixed the total: the backing size only reflects the
	// furthest window seen.
	total, known := m.KnownTotal()
	assert.False(t, known)
	assert.EqualValues(t, 150, total)

	require.NoError(t, m.SetViewport(ctx, 150, 300))
	testutil.AssertEventually(t, func() bool {
		total, _ := m.KnownTotal()
		return total == 300
	}, 2*time.Second, "backing size never grew")
}

func TestFilterModelChangePurgesCache(t *testing.T) {
	src := &fakeSource{total: 200}
	m, err := NewModel(src, testConfig())
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, m.SetViewport(ctx, 0, 50))
	testutil.AssertEventually(t, func() bool {
		return m.LoadedCount() == 50
	}, 2*time.Second, "block never loaded")

	m.SetFilterModel(map[string]models.FilterValue{
		"dept":          models.TextFilter{Query: "Eng", Mode: models.MatchContains},
		GlobalFilterKey: models.ScalarFilter{Value: models.NewString("west")},
	})

	assert.EqualValues(t, 0, m.LoadedCount())
	_, known := m.KnownTotal()
	assert.False(t, known)

	// The next fetch carries the filter model.
	require.NoError(t, m.SetViewport(ctx, 0, 50))
	testutil.AssertEventually(t, func() bool {
		return m.LoadedCount() == 50
	}, 2*time.Second, "refetch never happened")
	src.mu.Lock()
	last := src.requests[len(src.requests)-1]
	src.mu.Unlock()
	assert.Contains(t, last.FilterModel, GlobalFilterKey)
	assert.Contains(t, last.FilterModel, "dept")
}

func TestBlockLoadedCallback(t *testing.T) {
	src := &fakeSource{total: 100}
	var mu sync.Mutex
	var loaded []int64
	m, err := NewModel(src, testConfig(), WithBlockLoaded(func(idx int64) {
		mu.Lock()
		loaded = append(loaded, idx)
		mu.Unlock()
	}))
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, m.SetViewport(ctx, 0, 100))

	testutil.AssertEventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(loaded) == 2
	}, 2*time.Second, "callbacks never fired")

	mu.Lock()
	assert.ElementsMatch(t, []int64{0, 1}, loaded)
	mu.Unlock()
}
