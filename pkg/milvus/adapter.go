// Package milvus implements the capability contract against the Milvus
// REST-JSON dialect. Milvus has shipped several incompatible REST surfaces;
// the adapter detects the one that answers (v2 vectordb API or the legacy
// v1 vector API) and sticks with it for the session.
package milvus

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

const serviceName = "milvus"

// healthEndpoints is the ranked probe list, newest dialect last so plain
// health endpoints win when present.
var healthEndpoints = []string{
	"/health",
	"/api/v1/health",
	"/v1/health",
	"/api/v2/vectordb/collections",
	"/v2/vectordb/collections",
}

// Adapter speaks the Milvus REST dialect. It owns its HTTP session
// exclusively and keeps the detected API prefix as its only state.
type Adapter struct {
	cfg  Config
	http *vdb.Client
	log  *zap.Logger

	// apiPrefix is "/v2" or "/api/v2" once detected; empty means the v2
	// probe has not succeeded yet and the legacy surface is in play.
	apiPrefix string
}

// NewAdapter builds an unconnected adapter. Connect must be called before
// any data operation.
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

// Connect verifies the proxy answers. Safe to call repeatedly; the session
// is created at construction and only validated here.
func (a *Adapter) Connect(ctx context.Context) error {
	status, err := a.HealthCheck(ctx)
	if err != nil {
		return err
	}
	if !status.Reachable {
		return &vdb.Error{Service: serviceName, Op: "connect", Kind: vdb.KindConnection,
			Err: fmt.Errorf("no health endpoint answered")}
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
			if strings.Contains(ep, "v2") {
				dialect = "rest-v2"
			}
			return &vdb.HealthStatus{Reachable: true, Endpoint: ep, Dialect: dialect}, nil
		}
	}
	return &vdb.HealthStatus{Reachable: false}, nil
}

// milvusEnvelope is the { code, message, data } wrapper every v2 response
// carries.
type milvusEnvelope struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    milvusData `json:"data"`
}

type milvusData struct {
	InsertCount int64 `json:"insertCount"`
	InsertIDs   []any `json:"insertIds"`
	DeleteCount int64 `json:"deleteCount"`
}

// EnsureCollection creates the collection via the v2 simple format, falling
// back to the legacy v1 schema format. "Already exists" is success.
func (a *Adapter) EnsureCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]any{
		"collectionName": name,
		"dimension":      dimension,
		"metricType":     "L2",
	}
	for _, prefix := range []string{"/v2", "/api/v2"} {
		resp, err := a.http.Do(ctx, http.MethodPost, prefix+"/vectordb/collections/create", body)
		if err != nil {
			return vdb.Classify(serviceName, "ensure_collection", err)
		}
		if resp.Status == http.StatusNotFound {
			continue
		}
		var env milvusEnvelope
		if decErr := resp.Decode(&env); decErr != nil {
			return vdb.ProtocolErr(serviceName, "ensure_collection", resp, decErr)
		}
		if resp.OK() && (env.Code == 0 || alreadyExists(env.Message)) {
			a.apiPrefix = prefix
			return nil
		}
		if alreadyExists(env.Message) {
			a.apiPrefix = prefix
			return nil
		}
		return vdb.ServiceErr(serviceName, "ensure_collection", resp)
	}

	// Legacy v1 schema format.
	legacy := map[string]any{
		"collectionName": name,
		"fields": []map[string]any{
			{"fieldName": "id", "dataType": "Int64", "isPrimary": true},
			{"fieldName": "vector", "dataType": "FloatVector",
				"elementTypeParams": map[string]any{"dim": dimension}},
		},
	}
	for _, path := range []string{"/api/v1/vector/collections/create", "/v1/vector/collections/create"} {
		resp, err := a.http.Do(ctx, http.MethodPost, path, legacy)
		if err != nil {
			return vdb.Classify(serviceName, "ensure_collection", err)
		}
		if resp.Status == http.StatusNotFound {
			continue
		}
		if resp.OK() {
			return nil
		}
		return vdb.ServiceErr(serviceName, "ensure_collection", resp)
	}
	return &vdb.Error{Service: serviceName, Op: "ensure_collection", Kind: vdb.KindProtocol,
		Err: fmt.Errorf("no collection API answered")}
}

// DropCollection removes the collection; absence is not an error.
func (a *Adapter) DropCollection(ctx context.Context, name string) error {
	body := map[string]any{"collectionName": name}
	resp, err := a.http.Do(ctx, http.MethodPost, a.prefix()+"/vectordb/collections/drop", body)
	if err != nil {
		return vdb.Classify(serviceName, "drop_collection", err)
	}
	if resp.OK() || resp.Status == http.StatusNotFound {
		return nil
	}
	return vdb.ServiceErr(serviceName, "drop_collection", resp)
}

// Insert forwards the rows as-is. Milvus primary keys are Int64, so
// non-numeric ids are coerced by stable hash; the coerced ids are what the
// service stored and what gets reported back.
func (a *Adapter) Insert(ctx context.Context, collection string, vectors [][]float32, ids []string, metadata []map[string]any) (*vdb.InsertResult, error) {
	rows := make([]map[string]any, 0, len(vectors))
	coerced := make([]string, 0, len(vectors))
	for i, vec := range vectors {
		id := int64(i)
		if i < len(ids) {
			id = coerceID(ids[i])
		}
		row := map[string]any{"id": id, "vector": vdb.WireVector(vec)}
		if i < len(metadata) && metadata[i] != nil {
			row["meta"] = metadata[i]
		}
		rows = append(rows, row)
		coerced = append(coerced, strconv.FormatInt(id, 10))
	}
	body := map[string]any{"collectionName": collection, "data": rows}

	resp, err := a.http.Do(ctx, http.MethodPost, a.prefix()+"/vectordb/insert", body)
	if err != nil {
		return nil, vdb.Classify(serviceName, "insert", err)
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "insert", resp)
	}
	var env milvusEnvelope
	if decErr := resp.Decode(&env); decErr != nil {
		return nil, vdb.ProtocolErr(serviceName, "insert", resp, decErr)
	}
	if env.Code != 0 {
		return nil, vdb.ServiceErr(serviceName, "insert", resp)
	}
	if len(env.Data.InsertIDs) > 0 {
		stored := make([]string, len(env.Data.InsertIDs))
		for i, raw := range env.Data.InsertIDs {
			stored[i] = fmt.Sprint(raw)
		}
		return &vdb.InsertResult{IDs: stored}, nil
	}
	if env.Data.InsertCount > 0 && int(env.Data.InsertCount) <= len(coerced) {
		return &vdb.InsertResult{IDs: coerced[:env.Data.InsertCount]}, nil
	}
	return &vdb.InsertResult{IDs: []string{}}, nil
}

var metricNames = map[vdb.Metric]string{
	vdb.MetricL2:           "L2",
	vdb.MetricCosine:       "COSINE",
	vdb.MetricInnerProduct: "IP",
}

// Search issues an ANN search. Milvus accepts a per-request metric, so all
// three contract metrics map directly.
func (a *Adapter) Search(ctx context.Context, collection string, query []float32, k int, metric vdb.Metric) (*vdb.SearchResult, error) {
	name, ok := metricNames[metric]
	if !ok {
		return nil, &vdb.Error{Service: serviceName, Op: "search", Kind: vdb.KindUnsupportedMetric,
			Err: fmt.Errorf("metric %q", metric)}
	}
	body := map[string]any{
		"collectionName": collection,
		"data":           [][]vdb.Num{vdb.WireVector(query)},
		"annsField":      "vector",
		"limit":          k,
		"outputFields":   []string{"id"},
		"searchParams": map[string]any{
			"metricType": name,
			"params":     map[string]any{"nprobe": 10},
		},
	}
	resp, err := a.http.Do(ctx, http.MethodPost, a.prefix()+"/vectordb/search", body)
	if err != nil {
		return nil, vdb.Classify(serviceName, "search", err)
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "search", resp)
	}
	var out struct {
		Code int              `json:"code"`
		Data []map[string]any `json:"data"`
	}
	if decErr := resp.Decode(&out); decErr != nil {
		return nil, vdb.ProtocolErr(serviceName, "search", resp, decErr)
	}
	if out.Code != 0 {
		return nil, vdb.ServiceErr(serviceName, "search", resp)
	}
	hits := make([]vdb.SearchHit, 0, len(out.Data))
	for _, row := range out.Data {
		hit := vdb.SearchHit{ID: fmt.Sprint(row["id"])}
		if d, ok := row["distance"].(float64); ok {
			hit.Score = float32(d)
		}
		hits = append(hits, hit)
	}
	return &vdb.SearchResult{Hits: hits}, nil
}

// Delete removes the given ids. The REST dialect deletes by filter and does
// not always report a count, so the adapter counts the matching rows first
// and reports that as the removed count; deleting absent ids reads zero.
func (a *Adapter) Delete(ctx context.Context, collection string, ids []string) (*vdb.DeleteResult, error) {
	coerced := make([]string, len(ids))
	for i, id := range ids {
		coerced[i] = strconv.FormatInt(coerceID(id), 10)
	}
	filter := fmt.Sprintf("id in [%s]", strings.Join(coerced, ", "))

	existing, err := a.countMatching(ctx, collection, filter)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"collectionName": collection, "filter": filter}
	resp, err := a.http.Do(ctx, http.MethodPost, a.prefix()+"/vectordb/delete", body)
	if err != nil {
		return nil, vdb.Classify(serviceName, "delete", err)
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "delete", resp)
	}
	var env milvusEnvelope
	if decErr := resp.Decode(&env); decErr != nil {
		return nil, vdb.ProtocolErr(serviceName, "delete", resp, decErr)
	}
	if env.Code != 0 {
		return nil, vdb.ServiceErr(serviceName, "delete", resp)
	}
	if env.Data.DeleteCount > 0 {
		return &vdb.DeleteResult{Removed: int(env.Data.DeleteCount)}, nil
	}
	return &vdb.DeleteResult{Removed: existing}, nil
}

func (a *Adapter) countMatching(ctx context.Context, collection, filter string) (int, error) {
	body := map[string]any{
		"collectionName": collection,
		"filter":         filter,
		"outputFields":   []string{"id"},
	}
	resp, err := a.http.Do(ctx, http.MethodPost, a.prefix()+"/vectordb/query", body)
	if err != nil {
		return 0, vdb.Classify(serviceName, "delete", err)
	}
	if !resp.OK() {
		// A query surface that is missing should not fail the delete.
		return 0, nil
	}
	var out struct {
		Data []map[string]any `json:"data"`
	}
	if decErr := resp.Decode(&out); decErr != nil {
		return 0, nil
	}
	return len(out.Data), nil
}

func (a *Adapter) prefix() string {
	if a.apiPrefix != "" {
		return a.apiPrefix
	}
	return "/v2"
}

// coerceID maps arbitrary fuzz ids onto Milvus Int64 primary keys: numeric
// strings pass through, everything else hashes to a stable small int64.
func coerceID(id string) int64 {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	return int64(h.Sum64() % 1_000_000)
}

func alreadyExists(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "exist")
}
