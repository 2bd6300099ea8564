// Package serverside implements the windowed row model for virtualized
// datasets that are not client-resident: rows arrive in fixed-size blocks
// from an external asynchronous source, pre-filtered and pre-sorted.
//
// The model keeps a bounded block cache guarded by a mutex. Fetches run
// concurrently; a fetch superseded by a newer, non-overlapping viewport is
// cancelled through its context, and a late result from a cancelled fetch
// is discarded, never applied to the cache.
package serverside

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gridkit/gridkit/pkg/config"
	"github.com/gridkit/gridkit/pkg/errors"
	"github.com/gridkit/gridkit/pkg/logger"
	"github.com/gridkit/gridkit/pkg/metrics"
	"github.com/gridkit/gridkit/pkg/models"
)

// GlobalFilterKey is the reserved FilterModel key carrying the global
// filter; every other key is a column id.
const GlobalFilterKey = "__global__"

// Request describes one window fetch. The window is [StartRow, EndRow).
type Request struct {
	StartRow    int64
	EndRow      int64
	SortModel   []models.SortKey
	FilterModel map[string]models.FilterValue
}

// Result is the source's answer to one window fetch. A nil LastRow means
// more data may exist in either direction (open-ended scroll); a non-nil
// LastRow fixes the dataset size.
type Result struct {
	Rows    []*models.Row
	LastRow *int64
}

// Source is the external asynchronous data source. GetRows must honor
// context cancellation; rows are expected already filtered and sorted per
// the request's models.
type Source interface {
	GetRows(ctx context.Context, req Request) (Result, error)
}

// block is one resident row window.
type block struct {
	index int64
	start int64
	rows  []*models.Row
}

// fetch is one in-flight window request.
type fetch struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Model is the server-side row model. All cache state is guarded by mu;
// fetch completions take the lock before touching it, so concurrent
// completions cannot corrupt the cache.
type Model struct {
	source  Source
	cfg     config.ServerSideConfig
	onBlock func(blockIndex int64)

	mu         sync.Mutex
	blocks     map[int64]*block
	inflight   map[int64]*fetch
	viewFirst  int64 // first viewport block
	viewLast   int64 // last viewport block
	knownTotal int64
	totalKnown bool

	sortModel   []models.SortKey
	filterModel map[string]models.FilterValue
}

// Option configures a Model.
type Option func(*Model)

// WithBlockLoaded installs a callback invoked after a block is applied to
// the cache. Hosts marshal it into their state-mutation entry point so
// recompute ordering stays consistent with other mutations.
func WithBlockLoaded(fn func(blockIndex int64)) Option {
	return func(m *Model) { m.onBlock = fn }
}

// NewModel creates a server-side model over a source. A nil source is a
// configuration error.
func NewModel(source Source, cfg config.ServerSideConfig, opts ...Option) (*Model, error) {
	if source == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "server-side source cannot be nil")
	}
	if cfg.BlockSize <= 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "server-side block size must be positive").
			WithDetail("block_size", cfg.BlockSize)
	}
	m := &Model{
		source:   source,
		cfg:      cfg,
		blocks:   map[int64]*block{},
		inflight: map[int64]*fetch{},
		viewLast: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SetSortModel replaces the sort model pushed to the source. The cache is
// purged: externally sorted blocks are only valid for the model that
// produced them.
func (m *Model) SetSortModel(keys []models.SortKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sortModel = keys
	m.purgeLocked()
}

// SetFilterModel replaces the filter model pushed to the source and purges
// the cache. The known total is also dropped: filtering changes it.
func (m *Model) SetFilterModel(filters map[string]models.FilterValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filterModel = filters
	m.purgeLocked()
	m.knownTotal = 0
	m.totalKnown = false
}

// purgeLocked drops every resident block and cancels every in-flight fetch.
func (m *Model) purgeLocked() {
	for _, f := range m.inflight {
		f.cancel()
	}
	m.inflight = map[int64]*fetch{}
	m.blocks = map[int64]*block{}
	metrics.ResidentBlocks.Set(0)
}

// SetViewport moves the visible window to [startRow, endRow) and fetches
// the blocks covering it that are not already resident or in flight.
// In-flight fetches that no longer overlap the protected range around the
// new viewport are cancelled. The call returns once the fetches are
// launched; completions are reported through the block-loaded callback.
func (m *Model) SetViewport(ctx context.Context, startRow, endRow int64) error {
	if startRow < 0 || endRow < startRow {
		return errors.Newf(errors.ErrorTypeValidation, "invalid viewport [%d, %d)", startRow, endRow)
	}

	m.mu.Lock()
	size := int64(m.cfg.BlockSize)
	m.viewFirst = startRow / size
	m.viewLast = (endRow - 1) / size
	if endRow == startRow {
		m.viewLast = m.viewFirst
	}

	// Lazy growth: the backing size extends to cover the requested window
	// until the source fixes the real total.
	if !m.totalKnown && endRow > m.knownTotal {
		m.knownTotal = endRow
	}

	margin := int64(m.cfg.MarginBlocks)
	protectFirst := m.viewFirst - margin
	protectLast := m.viewLast + margin

	// Cancel superseded fetches outside the protected range and drop their
	// entries, so a viewport bouncing back to the block launches a fresh
	// fetch instead of waiting on a dead one. The late completion misses the
	// identity check in fetchBlock and discards its result.
	for idx, f := range m.inflight {
		if idx < protectFirst || idx > protectLast {
			f.cancel()
			delete(m.inflight, idx)
		}
	}

	var launch []int64
	for idx := m.viewFirst; idx <= m.viewLast; idx++ {
		if m.totalKnown && idx*size >= m.knownTotal {
			break
		}
		if _, resident := m.blocks[idx]; resident {
			continue
		}
		if _, pending := m.inflight[idx]; pending {
			continue
		}
		fctx, cancel := context.WithCancel(ctx)
		m.inflight[idx] = &fetch{ctx: fctx, cancel: cancel}
		launch = append(launch, idx)
	}
	m.evictLocked()
	m.mu.Unlock()

	if len(launch) == 0 {
		return nil
	}
	var g errgroup.Group
	for _, idx := range launch {
		idx := idx
		g.Go(func() error { return m.fetchBlock(idx) })
	}
	go func() {
		if err := g.Wait(); err != nil {
			logger.WithContext(ctx).Error("server-side fetch failed", zap.Error(err))
		}
	}()
	return nil
}

// fetchBlock runs one window fetch and applies the result unless the fetch
// was cancelled in the meantime.
func (m *Model) fetchBlock(idx int64) error {
	m.mu.Lock()
	f, ok := m.inflight[idx]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	size := int64(m.cfg.BlockSize)
	req := Request{
		StartRow:    idx * size,
		EndRow:      (idx + 1) * size,
		SortModel:   m.sortModel,
		FilterModel: m.filterModel,
	}
	m.mu.Unlock()

	timer := metrics.NewFetchTimer()
	res, err := m.source.GetRows(f.ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.inflight[idx]; !ok || current != f {
		// A purge or a newer viewport removed or replaced this fetch; its
		// result is stale.
		timer.Stop("stale")
		return nil
	}
	delete(m.inflight, idx)
	f.cancel()

	if err != nil {
		if stderrors.Is(err, context.Canceled) || f.ctx.Err() != nil {
			timer.Stop("cancelled")
			logger.WithContext(f.ctx).Debug("fetch cancelled", zap.Int64("block", idx))
			return nil
		}
		timer.Stop("error")
		return errors.Wrap(err, errors.ErrorTypeQuery, "window fetch failed").
			WithDetail("block", idx)
	}
	if f.ctx.Err() != nil {
		// Late result from a cancelled fetch: discard, never apply.
		timer.Stop("stale")
		return nil
	}

	m.applyLocked(idx, req, res)
	timer.Stop("success")

	if m.onBlock != nil {
		// Callback runs outside the lock via goroutine to avoid re-entrant
		// deadlock when the host reads the model from it.
		go m.onBlock(idx)
	}
	return nil
}

// applyLocked stores a fetched block, updates the known total, and enforces
// retention. Caller holds mu.
func (m *Model) applyLocked(idx int64, req Request, res Result) {
	m.blocks[idx] = &block{index: idx, start: req.StartRow, rows: res.Rows}
	if res.LastRow != nil {
		m.knownTotal = *res.LastRow
		m.totalKnown = true
	} else if req.StartRow+int64(len(res.Rows)) > m.knownTotal {
		m.knownTotal = req.StartRow + int64(len(res.Rows))
	}
	m.evictLocked()
	metrics.ResidentBlocks.Set(float64(len(m.blocks)))
}

// evictLocked enforces the retention policy: blocks inside the viewport
// plus margin are protected; past the max resident count, unprotected
// blocks farthest from the viewport are discarded. The known total always
// survives eviction. Caller holds mu.
func (m *Model) evictLocked() {
	max := m.cfg.MaxResidentBlocks
	if max <= 0 || len(m.blocks) <= max {
		return
	}
	margin := int64(m.cfg.MarginBlocks)
	protectFirst := m.viewFirst - margin
	protectLast := m.viewLast + margin

	for len(m.blocks) > max {
		var victim int64
		var victimDist int64 = -1
		for idx := range m.blocks {
			if idx >= protectFirst && idx <= protectLast {
				continue
			}
			d := distance(idx, m.viewFirst, m.viewLast)
			if d > victimDist {
				victim, victimDist = idx, d
			}
		}
		if victimDist < 0 {
			// Everything left is protected.
			return
		}
		delete(m.blocks, victim)
		metrics.BlockEvictionsTotal.Inc()
		logger.Get().Debug("block evicted", zap.Int64("block", victim))
	}
}

// distance is the block-index distance from the viewport range.
func distance(idx, first, last int64) int64 {
	if idx < first {
		return first - idx
	}
	if idx > last {
		return idx - last
	}
	return 0
}

// Row returns the row at an absolute index if it is resident.
func (m *Model) Row(index int64) (*models.Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 {
		return nil, false
	}
	b, ok := m.blocks[index/int64(m.cfg.BlockSize)]
	if !ok {
		return nil, false
	}
	offset := index - b.start
	if offset < 0 || offset >= int64(len(b.rows)) {
		return nil, false
	}
	return b.rows[offset], true
}

// IsLoaded reports whether an absolute row index is resident.
func (m *Model) IsLoaded(index int64) bool {
	_, ok := m.Row(index)
	return ok
}

// LoadedCount returns the number of resident rows. Re-requesting an
// already-loaded window never inflates this: residency is per block, not
// per request.
func (m *Model) LoadedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.blocks {
		n += int64(len(b.rows))
	}
	return n
}

// KnownTotal returns the current backing size and whether the source has
// fixed it. While the second value is false the dataset is open-ended and
// the size only reflects the furthest window seen.
func (m *Model) KnownTotal() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.knownTotal, m.totalKnown
}

// Progress reports the resident fraction of the known total, for load
// progress display. Zero while nothing is known.
func (m *Model) Progress() float64 {
	m.mu.Lock()
	total := m.knownTotal
	m.mu.Unlock()
	if total <= 0 {
		return 0
	}
	return float64(m.LoadedCount()) / float64(total)
}

// ResidentBlocks returns the resident block count.
func (m *Model) ResidentBlocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}
