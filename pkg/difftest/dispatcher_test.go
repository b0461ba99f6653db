package difftest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

// fakeAdapter stubs the capability contract with function fields so each
// test wires only the behavior it exercises.
type fakeAdapter struct {
	name     string
	insertFn func(ctx context.Context, collection string, vectors [][]float32, ids []string, metadata []map[string]any) (*vdb.InsertResult, error)
	searchFn func(ctx context.Context, collection string, query []float32, k int, metric vdb.Metric) (*vdb.SearchResult, error)
	deleteFn func(ctx context.Context, collection string, ids []string) (*vdb.DeleteResult, error)
}

func (f *fakeAdapter) Name() string                                            { return f.name }
func (f *fakeAdapter) Connect(ctx context.Context) error                       { return nil }
func (f *fakeAdapter) EnsureCollection(ctx context.Context, name string, dimension int) error {
	return nil
}
func (f *fakeAdapter) DropCollection(ctx context.Context, name string) error { return nil }
func (f *fakeAdapter) Close() error                                          { return nil }

func (f *fakeAdapter) HealthCheck(ctx context.Context) (*vdb.HealthStatus, error) {
	return &vdb.HealthStatus{Reachable: true}, nil
}

func (f *fakeAdapter) Insert(ctx context.Context, collection string, vectors [][]float32, ids []string, metadata []map[string]any) (*vdb.InsertResult, error) {
	if f.insertFn != nil {
		return f.insertFn(ctx, collection, vectors, ids, metadata)
	}
	return &vdb.InsertResult{IDs: ids}, nil
}

func (f *fakeAdapter) Search(ctx context.Context, collection string, query []float32, k int, metric vdb.Metric) (*vdb.SearchResult, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, collection, query, k, metric)
	}
	return &vdb.SearchResult{}, nil
}

func (f *fakeAdapter) Delete(ctx context.Context, collection string, ids []string) (*vdb.DeleteResult, error) {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, collection, ids)
	}
	return &vdb.DeleteResult{Removed: len(ids)}, nil
}

func TestDispatchCollectsAllResults(t *testing.T) {
	ok := &fakeAdapter{name: "alpha"}
	failing := &fakeAdapter{
		name: "beta",
		insertFn: func(ctx context.Context, collection string, vectors [][]float32, ids []string, metadata []map[string]any) (*vdb.InsertResult, error) {
			return nil, &vdb.Error{Service: "beta", Op: "insert", Kind: vdb.KindService, Status: 400, Body: `{"error":"bad vector"}`}
		},
	}

	d := NewDispatcher([]vdb.Adapter{ok, failing}, time.Second, zap.NewNop())
	tc := TestCase{
		ID: 1,
		Op: OpInsert,
		Params: Parameters{
			Collection: "c",
			Vectors:    [][]float32{{1, 2}},
			IDs:        []string{"id_1"},
		},
	}

	results := d.Dispatch(context.Background(), tc, []string{"alpha", "beta"})
	require.Len(t, results, 2)

	assert.Equal(t, "alpha", results[0].Service)
	assert.True(t, results[0].Success)
	assert.Equal(t, []string{"id_1"}, results[0].Data.InsertedIDs)

	assert.Equal(t, "beta", results[1].Service)
	assert.False(t, results[1].Success)
	require.NotNil(t, results[1].Error)
	assert.Equal(t, vdb.KindService, results[1].Error.Kind)
	assert.Contains(t, results[1].Error.Body, "bad vector")
}

func TestDispatchSlowServiceDoesNotSuppressOthers(t *testing.T) {
	fast := &fakeAdapter{name: "fast"}
	slow := &fakeAdapter{
		name: "slow",
		searchFn: func(ctx context.Context, collection string, query []float32, k int, metric vdb.Metric) (*vdb.SearchResult, error) {
			<-ctx.Done()
			return nil, vdb.Classify("slow", "search", ctx.Err())
		},
	}

	d := NewDispatcher([]vdb.Adapter{fast, slow}, 50*time.Millisecond, zap.NewNop())
	tc := TestCase{
		ID: 2,
		Op: OpSearch,
		Params: Parameters{
			Collection: "c",
			Queries:    [][]float32{{0.1, 0.2}},
			K:          5,
			Metric:     vdb.MetricCosine,
		},
	}

	start := time.Now()
	results := d.Dispatch(context.Background(), tc, []string{"fast", "slow"})
	require.Len(t, results, 2)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, vdb.KindTimeout, results[1].Error.Kind)
}

func TestDispatchDropsUnregisteredServices(t *testing.T) {
	known := &fakeAdapter{name: "alpha"}

	d := NewDispatcher([]vdb.Adapter{known}, time.Second, zap.NewNop())
	tc := TestCase{
		ID: 7,
		Op: OpInsert,
		Params: Parameters{
			Collection: "c",
			Vectors:    [][]float32{{1, 2}},
			IDs:        []string{"id_1"},
		},
	}

	results := d.Dispatch(context.Background(), tc, []string{"alpha", "ghost"})
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].Service)
	assert.True(t, results[0].Success)

	// No zero-value slot reaches the comparator.
	for _, r := range results {
		require.NotEmpty(t, r.Service)
		if !r.Success {
			require.NotNil(t, r.Error)
		}
	}
	incs := NewComparator(DefaultOverlapThreshold).Compare(tc, results, nil)
	assert.Empty(t, incs)
}

func TestDispatchMixedStopsAtFirstFailure(t *testing.T) {
	calls := 0
	a := &fakeAdapter{
		name: "alpha",
		searchFn: func(ctx context.Context, collection string, query []float32, k int, metric vdb.Metric) (*vdb.SearchResult, error) {
			calls++
			return nil, &vdb.Error{Service: "alpha", Op: "search", Kind: vdb.KindService, Status: 422}
		},
	}

	d := NewDispatcher([]vdb.Adapter{a}, time.Second, zap.NewNop())
	tc := TestCase{
		ID: 3,
		Op: OpMixed,
		Params: Parameters{
			Collection: "c",
			Ops: []SubOp{
				{Op: OpInsert, Vector: []float32{1}, ID: "a"},
				{Op: OpSearch, Query: []float32{1}, K: 3},
				{Op: OpDelete, IDs: []string{"a"}},
			},
		},
	}

	results := d.Dispatch(context.Background(), tc, []string{"alpha"})
	require.Len(t, results, 1)
	require.True(t, results[0].Success)

	sub := results[0].Data.Sub
	require.Len(t, sub, 2)
	assert.True(t, sub[0].Success)
	assert.False(t, sub[1].Success)
	assert.Equal(t, 1, calls)
}
