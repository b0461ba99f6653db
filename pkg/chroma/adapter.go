// Package chroma implements the capability contract against the Chroma
// REST-JSON dialect: the v2 tenant API where available, falling back to the
// deprecated v1 collection API.
package chroma

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

const serviceName = "chroma"

// healthEndpoints is the ranked probe list; the v2 heartbeat is
// authoritative when present.
var healthEndpoints = []string{
	"/api/v2/heartbeat",
	"/api/v1/heartbeat",
	"/api/v1",
	"/api/v2/collections",
	"/api/v1/collections",
}

// collectionMetric is the distance the test collection is created with.
// Chroma fixes the metric per collection, so only searches requesting it
// can be honored.
const collectionMetric = vdb.MetricL2

// Adapter speaks the Chroma REST dialect.
type Adapter struct {
	cfg  Config
	http *vdb.Client
	log  *zap.Logger

	// useV1 flips after the v2 surface 404s/410s once.
	useV1 bool
}

// NewAdapter builds an unconnected adapter.
func NewAdapter(cfg Config, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		cfg:  cfg,
		http: vdb.NewClient(fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)),
		log:  log.With(zap.String("service", serviceName)),
	}
}

func (a *Adapter) Name() string { return serviceName }

func (a *Adapter) Connect(ctx context.Context) error {
	status, err := a.HealthCheck(ctx)
	if err != nil {
		return err
	}
	if !status.Reachable {
		return &vdb.Error{Service: serviceName, Op: "connect", Kind: vdb.KindConnection,
			Err: fmt.Errorf("no heartbeat endpoint answered")}
	}
	a.log.Debug("connected", zap.String("endpoint", status.Endpoint))
	return nil
}

func (a *Adapter) Close() error {
	a.http.Close()
	return nil
}

// HealthCheck probes the ranked endpoint list; the first 200 wins.
func (a *Adapter) HealthCheck(ctx context.Context) (*vdb.HealthStatus, error) {
	for _, ep := range healthEndpoints {
		resp, err := a.http.Do(ctx, http.MethodGet, ep, nil)
		if err != nil {
			if vdb.IsTimeout(vdb.Classify(serviceName, "health", err)) {
				return nil, vdb.Classify(serviceName, "health", err)
			}
			continue
		}
		if resp.OK() {
			dialect := "rest-v1"
			if ep == "/api/v2/heartbeat" || ep == "/api/v2/collections" {
				dialect = "rest-v2"
			}
			return &vdb.HealthStatus{Reachable: true, Endpoint: ep, Dialect: dialect}, nil
		}
	}
	return &vdb.HealthStatus{Reachable: false}, nil
}

// EnsureCollection creates the collection, tolerating 409 as success. The
// v2 tenant path is preferred; a 404/410 demotes the session to v1.
func (a *Adapter) EnsureCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]any{
		"name": name,
		"metadata": map[string]any{
			"dimension": dimension,
			"hnsw:space": "l2",
		},
	}
	if !a.useV1 {
		for _, path := range []string{"/api/v2/tenants/default/collections", "/api/v2/collections"} {
			resp, err := a.http.Do(ctx, http.MethodPost, path, body)
			if err != nil {
				return vdb.Classify(serviceName, "ensure_collection", err)
			}
			switch {
			case resp.OK(), resp.Status == http.StatusConflict:
				return nil
			case resp.Status == http.StatusNotFound, resp.Status == http.StatusGone:
				continue
			default:
				return vdb.ServiceErr(serviceName, "ensure_collection", resp)
			}
		}
		a.useV1 = true
	}

	resp, err := a.http.Do(ctx, http.MethodPost, "/api/v1/collections", body)
	if err != nil {
		return vdb.Classify(serviceName, "ensure_collection", err)
	}
	if resp.OK() || resp.Status == http.StatusConflict {
		return nil
	}
	return vdb.ServiceErr(serviceName, "ensure_collection", resp)
}

// DropCollection removes the collection; absence is not an error.
func (a *Adapter) DropCollection(ctx context.Context, name string) error {
	resp, err := a.http.Do(ctx, http.MethodDelete, a.collectionPath(name), nil)
	if err != nil {
		return vdb.Classify(serviceName, "drop_collection", err)
	}
	if resp.OK() || resp.Status == http.StatusNotFound {
		return nil
	}
	return vdb.ServiceErr(serviceName, "drop_collection", resp)
}

// Insert adds embeddings via the add endpoint. Chroma echoes no ids back;
// a 2xx acknowledges the whole batch, so the submitted ids are the stored
// ids. Cardinality mismatches are forwarded for the service to judge.
func (a *Adapter) Insert(ctx context.Context, collection string, vectors [][]float32, ids []string, metadata []map[string]any) (*vdb.InsertResult, error) {
	body := map[string]any{
		"ids":        ids,
		"embeddings": vdb.WireVectors(vectors),
	}
	if len(metadata) > 0 {
		body["metadatas"] = metadata
	}
	resp, err := a.http.Do(ctx, http.MethodPost, a.collectionPath(collection)+"/add", body)
	if err != nil {
		return nil, vdb.Classify(serviceName, "insert", err)
	}
	if resp.Status == http.StatusNotFound || resp.Status == http.StatusGone || resp.Status == http.StatusMethodNotAllowed {
		// Some versions only expose upsert.
		resp, err = a.http.Do(ctx, http.MethodPost, a.collectionPath(collection)+"/upsert", body)
		if err != nil {
			return nil, vdb.Classify(serviceName, "insert", err)
		}
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "insert", resp)
	}
	stored := make([]string, len(ids))
	copy(stored, ids)
	return &vdb.InsertResult{IDs: stored}, nil
}

// Search queries by embedding. Chroma takes no per-query metric: anything
// other than the collection's own distance is unsupported, not substituted.
func (a *Adapter) Search(ctx context.Context, collection string, query []float32, k int, metric vdb.Metric) (*vdb.SearchResult, error) {
	if metric != collectionMetric {
		return nil, &vdb.Error{Service: serviceName, Op: "search", Kind: vdb.KindUnsupportedMetric,
			Err: fmt.Errorf("metric %q not available, collection is %q", metric, collectionMetric)}
	}
	body := map[string]any{
		"query_embeddings": [][]vdb.Num{vdb.WireVector(query)},
		"n_results":        k,
	}
	resp, err := a.http.Do(ctx, http.MethodPost, a.collectionPath(collection)+"/query", body)
	if err != nil {
		return nil, vdb.Classify(serviceName, "search", err)
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "search", resp)
	}
	var out struct {
		IDs       [][]string    `json:"ids"`
		Distances [][]float64   `json:"distances"`
	}
	if decErr := resp.Decode(&out); decErr != nil {
		return nil, vdb.ProtocolErr(serviceName, "search", resp, decErr)
	}
	if len(out.IDs) == 0 {
		return &vdb.SearchResult{Hits: []vdb.SearchHit{}}, nil
	}
	hits := make([]vdb.SearchHit, 0, len(out.IDs[0]))
	for i, id := range out.IDs[0] {
		hit := vdb.SearchHit{ID: id}
		if len(out.Distances) > 0 && i < len(out.Distances[0]) {
			hit.Score = float32(out.Distances[0][i])
		}
		hits = append(hits, hit)
	}
	return &vdb.SearchResult{Hits: hits}, nil
}

// Delete removes ids. Chroma's delete response does not report a count, so
// the adapter asks which of the ids exist first and reports that number;
// deleting absent ids reads zero.
func (a *Adapter) Delete(ctx context.Context, collection string, ids []string) (*vdb.DeleteResult, error) {
	existing, err := a.countExisting(ctx, collection, ids)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, http.MethodPost, a.collectionPath(collection)+"/delete",
		map[string]any{"ids": ids})
	if err != nil {
		return nil, vdb.Classify(serviceName, "delete", err)
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "delete", resp)
	}
	// Some versions return the deleted id list; prefer it when parseable.
	var deleted []string
	if decErr := resp.Decode(&deleted); decErr == nil && deleted != nil {
		return &vdb.DeleteResult{Removed: len(deleted)}, nil
	}
	return &vdb.DeleteResult{Removed: existing}, nil
}

func (a *Adapter) countExisting(ctx context.Context, collection string, ids []string) (int, error) {
	resp, err := a.http.Do(ctx, http.MethodPost, a.collectionPath(collection)+"/get",
		map[string]any{"ids": ids})
	if err != nil {
		return 0, vdb.Classify(serviceName, "delete", err)
	}
	if !resp.OK() {
		return 0, nil
	}
	var out struct {
		IDs []string `json:"ids"`
	}
	if decErr := resp.Decode(&out); decErr != nil {
		return 0, nil
	}
	return len(out.IDs), nil
}

func (a *Adapter) collectionPath(name string) string {
	if a.useV1 {
		return "/api/v1/collections/" + name
	}
	return "/api/v2/collections/" + name
}
