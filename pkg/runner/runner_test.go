package runner

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/config"
	"github.com/vdbdiff/vdbdiff/pkg/difftest"
	"github.com/vdbdiff/vdbdiff/pkg/fuzzgen"
	"github.com/vdbdiff/vdbdiff/pkg/health"
	"github.com/vdbdiff/vdbdiff/pkg/metrics"
	"github.com/vdbdiff/vdbdiff/pkg/report"
	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

// memoryAdapter is a self-consistent in-memory target: it stores what it
// is given and answers searches from its store. Two of them always agree,
// which keeps the loop's happy path deterministic.
type memoryAdapter struct {
	name    string
	up      bool
	store   map[string][]float32
	dropped atomic.Int32
	closed  atomic.Int32
}

func newMemoryAdapter(name string) *memoryAdapter {
	return &memoryAdapter{name: name, up: true, store: make(map[string][]float32)}
}

func (m *memoryAdapter) Name() string                      { return m.name }
func (m *memoryAdapter) Connect(ctx context.Context) error { return nil }
func (m *memoryAdapter) Close() error                      { m.closed.Add(1); return nil }

func (m *memoryAdapter) HealthCheck(ctx context.Context) (*vdb.HealthStatus, error) {
	if !m.up {
		return nil, &vdb.Error{Service: m.name, Op: "health", Kind: vdb.KindConnection}
	}
	return &vdb.HealthStatus{Reachable: true}, nil
}

func (m *memoryAdapter) EnsureCollection(ctx context.Context, name string, dimension int) error {
	return nil
}

func (m *memoryAdapter) DropCollection(ctx context.Context, name string) error {
	m.dropped.Add(1)
	return nil
}

func (m *memoryAdapter) Insert(ctx context.Context, collection string, vectors [][]float32, ids []string, metadata []map[string]any) (*vdb.InsertResult, error) {
	stored := make([]string, 0, len(ids))
	for i, id := range ids {
		if i < len(vectors) {
			m.store[id] = vectors[i]
		}
		stored = append(stored, id)
	}
	return &vdb.InsertResult{IDs: stored}, nil
}

func (m *memoryAdapter) Search(ctx context.Context, collection string, query []float32, k int, metric vdb.Metric) (*vdb.SearchResult, error) {
	hits := make([]vdb.SearchHit, 0, k)
	for id := range m.store {
		if len(hits) == k {
			break
		}
		hits = append(hits, vdb.SearchHit{ID: id})
	}
	return &vdb.SearchResult{Hits: hits}, nil
}

func (m *memoryAdapter) Delete(ctx context.Context, collection string, ids []string) (*vdb.DeleteResult, error) {
	removed := 0
	for _, id := range ids {
		if _, ok := m.store[id]; ok {
			delete(m.store, id)
			removed++
		}
	}
	return &vdb.DeleteResult{Removed: removed}, nil
}

func testRunner(t *testing.T, adapters []vdb.Adapter, tests int) (*Runner, string) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Run.Tests = tests
	cfg.Run.Seed = 42
	cfg.Run.OperationTimeout = time.Second
	cfg.Metrics.Address = "" // no scrape server in tests
	cfg.Report.Dir = t.TempDir()
	// Keep generated cases well-formed so the memory adapters agree.
	cfg.Fuzz.MissingCollProb = 0
	cfg.Fuzz.MalformedIDProb = 0

	gen, err := fuzzgen.New(cfg.Fuzz, cfg.Run.Seed)
	require.NoError(t, err)

	log := zap.NewNop()
	r := New(Options{
		Config:     cfg,
		Adapters:   adapters,
		Generator:  gen,
		Dispatcher: difftest.NewDispatcher(adapters, cfg.Run.OperationTimeout, log),
		Comparator: difftest.NewComparator(cfg.Compare.OverlapThreshold),
		Monitor:    health.NewMonitor(cfg.Health, adapters, log),
		Writer:     report.NewWriter(cfg.Report, log),
		Metrics:    metrics.NewMetrics(cfg.Metrics),
		Log:        log,
	})
	return r, cfg.Report.Dir
}

func TestRunCompletesAndSaves(t *testing.T) {
	a := newMemoryAdapter("alpha")
	b := newMemoryAdapter("beta")

	r, dir := testRunner(t, []vdb.Adapter{a, b}, 20)
	run, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, run.Summary.Tests)
	assert.Len(t, run.Results, 20)
	assert.Equal(t, int64(42), run.Seed)
	assert.False(t, run.FinishedAt.IsZero())

	// Identical stores never split on success, so every case is either
	// consistent or at most content-divergent on unordered search fills.
	assert.Zero(t, run.Summary.BySeverity[string(difftest.SeverityErrorDivergent)])

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ".json", filepath.Ext(files[0].Name()))

	// Teardown dropped the collection and closed the sessions.
	assert.Equal(t, int32(1), a.dropped.Load())
	assert.Equal(t, int32(1), a.closed.Load())
}

func TestRunAbortsWithoutHealthyDatabases(t *testing.T) {
	a := newMemoryAdapter("alpha")
	a.up = false
	b := newMemoryAdapter("beta")
	b.up = false

	r, dir := testRunner(t, []vdb.Adapter{a, b}, 5)
	run, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoHealthyDatabases)
	assert.Zero(t, run.Summary.Tests)

	// The aborted run is still persisted.
	files, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Len(t, files, 1)
}

func TestRunRecordsExclusions(t *testing.T) {
	a := newMemoryAdapter("alpha")
	b := newMemoryAdapter("beta")
	down := newMemoryAdapter("gamma")
	down.up = false

	r, _ := testRunner(t, []vdb.Adapter{a, b, down}, 10)
	run, err := r.Run(context.Background())
	require.NoError(t, err)

	for _, res := range run.Results {
		assert.Equal(t, []string{"gamma"}, res.Excluded)
		// Exactly one exclusion surfaces as an informational note.
		var informational int
		for _, inc := range res.Inconsistencies {
			if inc.Severity == difftest.SeverityInformational {
				informational++
			}
		}
		assert.Equal(t, 1, informational)
	}
}
