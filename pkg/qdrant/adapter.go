// Package qdrant implements the capability contract against the Qdrant
// REST-JSON dialect, covering both the current vectors-config schema and the
// legacy flat schema older servers still expect.
package qdrant

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

const serviceName = "qdrant"

// healthEndpoints is the ranked probe list. The root endpoint reports
// title and version; /collections confirms the API is serving.
var healthEndpoints = []string{"/", "/healthz", "/collections"}

// collectionMetric is the distance the test collection is created with.
// Qdrant fixes the distance per collection, so only searches requesting it
// can be honored.
const collectionMetric = vdb.MetricCosine

// Adapter speaks the Qdrant REST dialect.
type Adapter struct {
	cfg  Config
	http *vdb.Client
	log  *zap.Logger
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
			Err: fmt.Errorf("no endpoint answered")}
	}
	a.log.Debug("connected", zap.String("version", status.Version))
	return nil
}

func (a *Adapter) Close() error {
	a.http.Close()
	return nil
}

// HealthCheck probes the ranked endpoint list; the first 200 wins. The
// root endpoint's version field is captured when present.
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
			status := &vdb.HealthStatus{Reachable: true, Endpoint: ep, Dialect: "rest"}
			var meta struct {
				Version string `json:"version"`
			}
			if resp.Decode(&meta) == nil {
				status.Version = meta.Version
			}
			return status, nil
		}
	}
	return &vdb.HealthStatus{Reachable: false}, nil
}

// envelope is the { result, status, time } wrapper current servers return.
type envelope struct {
	Result any    `json:"result"`
	Status any    `json:"status"`
	Time   float64 `json:"time"`
}

// EnsureCollection creates the collection with the current vectors-config
// schema, retrying with the legacy flat schema on a 400. A 409 is success.
func (a *Adapter) EnsureCollection(ctx context.Context, name string, dimension int) error {
	current := map[string]any{
		"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
	}
	legacy := map[string]any{
		"vector_size": dimension,
		"distance":    "Cosine",
	}
	for _, schema := range []map[string]any{current, legacy} {
		resp, err := a.http.Do(ctx, http.MethodPut, "/collections/"+name, schema)
		if err != nil {
			return vdb.Classify(serviceName, "ensure_collection", err)
		}
		switch {
		case resp.OK(), resp.Status == http.StatusConflict:
			return nil
		case resp.Status == http.StatusBadRequest:
			continue
		default:
			return vdb.ServiceErr(serviceName, "ensure_collection", resp)
		}
	}
	// Both schemas rejected: the collection may simply exist already with
	// an incompatible config, which is still usable.
	resp, err := a.http.Do(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return vdb.Classify(serviceName, "ensure_collection", err)
	}
	if resp.OK() {
		return nil
	}
	return vdb.ServiceErr(serviceName, "ensure_collection", resp)
}

// DropCollection removes the collection; absence is not an error.
func (a *Adapter) DropCollection(ctx context.Context, name string) error {
	resp, err := a.http.Do(ctx, http.MethodDelete, "/collections/"+name, nil)
	if err != nil {
		return vdb.Classify(serviceName, "drop_collection", err)
	}
	if resp.OK() || resp.Status == http.StatusNotFound {
		return nil
	}
	return vdb.ServiceErr(serviceName, "drop_collection", resp)
}

// Insert upserts points. Qdrant point ids must be unsigned ints or UUIDs,
// so arbitrary fuzz ids are coerced by stable hash; the coerced ids are the
// stored ids and what gets reported back.
func (a *Adapter) Insert(ctx context.Context, collection string, vectors [][]float32, ids []string, metadata []map[string]any) (*vdb.InsertResult, error) {
	points := make([]map[string]any, 0, len(vectors))
	stored := make([]string, 0, len(vectors))
	for i, vec := range vectors {
		id := uint64(i)
		if i < len(ids) {
			id = coercePointID(ids[i])
		}
		point := map[string]any{"id": id, "vector": vdb.WireVector(vec)}
		if i < len(metadata) && metadata[i] != nil {
			point["payload"] = metadata[i]
		}
		points = append(points, point)
		stored = append(stored, strconv.FormatUint(id, 10))
	}
	body := map[string]any{"points": points}

	resp, err := a.http.Do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body)
	if err != nil {
		return nil, vdb.Classify(serviceName, "insert", err)
	}
	if resp.Status == http.StatusMethodNotAllowed {
		// Legacy servers take POST on the same path.
		resp, err = a.http.Do(ctx, http.MethodPost, "/collections/"+collection+"/points?wait=true", body)
		if err != nil {
			return nil, vdb.Classify(serviceName, "insert", err)
		}
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "insert", resp)
	}
	var env envelope
	if decErr := resp.Decode(&env); decErr != nil {
		return nil, vdb.ProtocolErr(serviceName, "insert", resp, decErr)
	}
	return &vdb.InsertResult{IDs: stored}, nil
}

// Search runs a points search. Qdrant fixes distance per collection;
// requests for any other metric are unsupported, not substituted.
func (a *Adapter) Search(ctx context.Context, collection string, query []float32, k int, metric vdb.Metric) (*vdb.SearchResult, error) {
	if metric != collectionMetric {
		return nil, &vdb.Error{Service: serviceName, Op: "search", Kind: vdb.KindUnsupportedMetric,
			Err: fmt.Errorf("metric %q not available, collection is %q", metric, collectionMetric)}
	}
	body := map[string]any{
		"vector":       vdb.WireVector(query),
		"limit":        k,
		"with_payload": false,
	}
	resp, err := a.http.Do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body)
	if err != nil {
		return nil, vdb.Classify(serviceName, "search", err)
	}
	if resp.Status == http.StatusNotFound {
		// Legacy path.
		resp, err = a.http.Do(ctx, http.MethodPost, "/collections/"+collection+"/search", body)
		if err != nil {
			return nil, vdb.Classify(serviceName, "search", err)
		}
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "search", resp)
	}
	var out struct {
		Result []struct {
			ID    any     `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}
	if decErr := resp.Decode(&out); decErr != nil {
		return nil, vdb.ProtocolErr(serviceName, "search", resp, decErr)
	}
	hits := make([]vdb.SearchHit, 0, len(out.Result))
	for _, r := range out.Result {
		hits = append(hits, vdb.SearchHit{ID: fmt.Sprint(r.ID), Score: float32(r.Score)})
	}
	return &vdb.SearchResult{Hits: hits}, nil
}

// Delete removes points by id. The delete response acknowledges but does
// not count, so the adapter retrieves the matching points first and reports
// how many existed; deleting absent ids reads zero.
func (a *Adapter) Delete(ctx context.Context, collection string, ids []string) (*vdb.DeleteResult, error) {
	pointIDs := make([]uint64, len(ids))
	for i, id := range ids {
		pointIDs[i] = coercePointID(id)
	}

	existing, err := a.countExisting(ctx, collection, pointIDs)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"points": pointIDs}
	resp, err := a.http.Do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body)
	if err != nil {
		return nil, vdb.Classify(serviceName, "delete", err)
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "delete", resp)
	}
	return &vdb.DeleteResult{Removed: existing}, nil
}

func (a *Adapter) countExisting(ctx context.Context, collection string, ids []uint64) (int, error) {
	resp, err := a.http.Do(ctx, http.MethodPost, "/collections/"+collection+"/points",
		map[string]any{"ids": ids})
	if err != nil {
		return 0, vdb.Classify(serviceName, "delete", err)
	}
	if !resp.OK() {
		return 0, nil
	}
	var out struct {
		Result []map[string]any `json:"result"`
	}
	if decErr := resp.Decode(&out); decErr != nil {
		return 0, nil
	}
	return len(out.Result), nil
}

// coercePointID maps arbitrary fuzz ids onto Qdrant's unsigned ids:
// numeric strings pass through, everything else hashes to a stable value.
func coercePointID(id string) uint64 {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return n
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64() % 1_000_000
}
