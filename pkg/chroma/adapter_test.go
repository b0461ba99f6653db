package chroma

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

func adapterFor(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return NewAdapter(Config{Host: u.Hostname(), Port: port}, zap.NewNop())
}

func TestSearchOnlyHonorsCollectionMetric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an unsupported metric")
	}))
	defer srv.Close()

	a := adapterFor(t, srv)
	for _, metric := range []vdb.Metric{vdb.MetricCosine, vdb.MetricInnerProduct} {
		_, err := a.Search(context.Background(), "c", []float32{1}, 3, metric)
		require.Error(t, err)
		assert.True(t, vdb.IsUnsupportedMetric(err))
	}
}

func TestSearchParsesNestedResultArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/collections/c/query", r.URL.Path)
		_, _ = w.Write([]byte(`{"ids":[["a","b"]],"distances":[[0.1,0.4]]}`))
	}))
	defer srv.Close()

	a := adapterFor(t, srv)
	res, err := a.Search(context.Background(), "c", []float32{0.1, 0.2}, 2, vdb.MetricL2)
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "a", res.Hits[0].ID)
	assert.InDelta(t, 0.1, float64(res.Hits[0].Score), 1e-6)
}

func TestInsertEchoesSubmittedIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/collections/c/add", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, []string{"x", "y"}, body.IDs)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	a := adapterFor(t, srv)
	res, err := a.Insert(context.Background(), "c",
		[][]float32{{1}, {2}}, []string{"x", "y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, res.IDs)
}

func TestInsertFallsBackToUpsert(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/v2/collections/c/add" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := adapterFor(t, srv)
	_, err := a.Insert(context.Background(), "c", [][]float32{{1}}, []string{"x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/v2/collections/c/add", "/api/v2/collections/c/upsert"}, paths)
}

func TestDeletePrefersEchoedIDList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/collections/c/get":
			_, _ = w.Write([]byte(`{"ids":["x","y","z"]}`))
		case "/api/v2/collections/c/delete":
			_, _ = w.Write([]byte(`["x","y"]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := adapterFor(t, srv)
	res, err := a.Delete(context.Background(), "c", []string{"x", "y", "z"})
	require.NoError(t, err)
	// The service's own id list wins over the preflight count.
	assert.Equal(t, 2, res.Removed)
}

func TestDeleteFallsBackToPreflightCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/collections/c/get":
			_, _ = w.Write([]byte(`{"ids":["x"]}`))
		case "/api/v2/collections/c/delete":
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := adapterFor(t, srv)
	res, err := a.Delete(context.Background(), "c", []string{"x", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
}

func TestEnsureCollectionDemotesToV1(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/api/v2/tenants/default/collections", "/api/v2/collections":
			w.WriteHeader(http.StatusGone)
		case "/api/v1/collections":
			w.WriteHeader(http.StatusConflict)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := adapterFor(t, srv)
	require.NoError(t, a.EnsureCollection(context.Background(), "c", 8))
	assert.Len(t, paths, 3)

	// The session stays demoted: data paths now use v1.
	assert.Equal(t, "/api/v1/collections/c", a.collectionPath("c"))
}
