// Package weaviate implements the capability contract against Weaviate's
// split surface: GraphQL for queries, REST for schema management and object
// writes. Weaviate object ids must be UUIDs, so arbitrary fuzz ids are
// mapped through a deterministic UUIDv5 derivation; the derived ids are the
// service-visible outcome.
package weaviate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

const serviceName = "weaviate"

// healthEndpoints is the ranked probe list; the readiness endpoint is
// authoritative, /v1/meta adds version info when it answers first.
var healthEndpoints = []string{"/.well-known/ready", "/v1/meta", "/v1/schema", "/"}

// idNamespace seeds the UUIDv5 derivation so the same fuzz id always maps
// to the same Weaviate object id across runs.
var idNamespace = uuid.MustParse("8c1f0d3e-4b2a-4e71-9f5c-2d94a1c7b6e0")

// collectionMetric is the distance classes are created with. Weaviate
// fixes the distance per class, so only searches requesting it can be
// honored.
const collectionMetric = vdb.MetricCosine

// Adapter speaks Weaviate's GraphQL + REST dialect.
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
			Err: fmt.Errorf("no readiness endpoint answered")}
	}
	a.log.Debug("connected", zap.String("version", status.Version))
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
			status := &vdb.HealthStatus{Reachable: true, Endpoint: ep, Dialect: "graphql"}
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

// EnsureCollection declares the class with vectorizer "none" so raw
// vectors are accepted. A 422 naming an existing class is success.
func (a *Adapter) EnsureCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]any{
		"class":      className(name),
		"vectorizer": "none",
		"properties": []map[string]any{
			{"name": "meta", "dataType": []string{"text"}},
		},
	}
	resp, err := a.http.Do(ctx, http.MethodPost, "/v1/schema", body)
	if err != nil {
		return vdb.Classify(serviceName, "ensure_collection", err)
	}
	if resp.OK() {
		return nil
	}
	if resp.Status == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(string(resp.Body)), "exist") {
		return nil
	}
	return vdb.ServiceErr(serviceName, "ensure_collection", resp)
}

// DropCollection deletes the class; absence is not an error.
func (a *Adapter) DropCollection(ctx context.Context, name string) error {
	resp, err := a.http.Do(ctx, http.MethodDelete, "/v1/schema/"+className(name), nil)
	if err != nil {
		return vdb.Classify(serviceName, "drop_collection", err)
	}
	if resp.OK() || resp.Status == http.StatusNotFound {
		return nil
	}
	return vdb.ServiceErr(serviceName, "drop_collection", resp)
}

// Insert writes objects through the batch endpoint, falling back to
// per-object writes when batching is unavailable. The response's per-object
// status decides which ids count as stored.
func (a *Adapter) Insert(ctx context.Context, collection string, vectors [][]float32, ids []string, metadata []map[string]any) (*vdb.InsertResult, error) {
	objects := make([]map[string]any, 0, len(vectors))
	derived := make([]string, 0, len(vectors))
	for i, vec := range vectors {
		id := fmt.Sprintf("%d", i)
		if i < len(ids) {
			id = ids[i]
		}
		oid := deriveID(id)
		obj := map[string]any{
			"class":  className(collection),
			"id":     oid,
			"vector": vdb.WireVector(vec),
		}
		if i < len(metadata) && metadata[i] != nil {
			obj["properties"] = map[string]any{"meta": fmt.Sprint(metadata[i])}
		}
		objects = append(objects, obj)
		derived = append(derived, oid)
	}

	resp, err := a.http.Do(ctx, http.MethodPost, "/v1/batch/objects",
		map[string]any{"objects": objects})
	if err != nil {
		return nil, vdb.Classify(serviceName, "insert", err)
	}
	if resp.Status == http.StatusNotFound || resp.Status == http.StatusMethodNotAllowed {
		return a.insertIndividually(ctx, objects, derived)
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "insert", resp)
	}

	// Batch responses report per-object success; failed objects carry an
	// errors block. Only acknowledged ids count as stored.
	var results []struct {
		ID     string `json:"id"`
		Result struct {
			Status string `json:"status"`
			Errors *struct {
				Error []struct {
					Message string `json:"message"`
				} `json:"error"`
			} `json:"errors"`
		} `json:"result"`
	}
	if decErr := resp.Decode(&results); decErr != nil {
		return nil, vdb.ProtocolErr(serviceName, "insert", resp, decErr)
	}
	stored := make([]string, 0, len(results))
	for _, r := range results {
		if r.Result.Errors == nil {
			stored = append(stored, r.ID)
		}
	}
	if len(stored) == 0 && len(results) > 0 {
		// Every object rejected: that is the service's verdict.
		return nil, vdb.ServiceErr(serviceName, "insert", resp)
	}
	return &vdb.InsertResult{IDs: stored}, nil
}

func (a *Adapter) insertIndividually(ctx context.Context, objects []map[string]any, derived []string) (*vdb.InsertResult, error) {
	stored := make([]string, 0, len(objects))
	var lastResp *vdb.Response
	for i, obj := range objects {
		resp, err := a.http.Do(ctx, http.MethodPost, "/v1/objects", obj)
		if err != nil {
			return nil, vdb.Classify(serviceName, "insert", err)
		}
		lastResp = resp
		if resp.OK() {
			stored = append(stored, derived[i])
		}
	}
	if len(stored) == 0 && lastResp != nil {
		return nil, vdb.ServiceErr(serviceName, "insert", lastResp)
	}
	return &vdb.InsertResult{IDs: stored}, nil
}

// Search issues a GraphQL nearVector query. Weaviate fixes distance per
// class; requests for any other metric are unsupported, not substituted.
func (a *Adapter) Search(ctx context.Context, collection string, query []float32, k int, metric vdb.Metric) (*vdb.SearchResult, error) {
	if metric != collectionMetric {
		return nil, &vdb.Error{Service: serviceName, Op: "search", Kind: vdb.KindUnsupportedMetric,
			Err: fmt.Errorf("metric %q not available, class distance is %q", metric, collectionMetric)}
	}
	class := className(collection)
	gql := fmt.Sprintf(
		`{ Get { %s(nearVector: {vector: %s}, limit: %d) { _additional { id distance } } } }`,
		class, vdb.GraphQLVector(query), k)

	resp, err := a.http.Do(ctx, http.MethodPost, "/v1/graphql", map[string]any{"query": gql})
	if err != nil {
		return nil, vdb.Classify(serviceName, "search", err)
	}
	if !resp.OK() {
		return nil, vdb.ServiceErr(serviceName, "search", resp)
	}
	var out struct {
		Data struct {
			Get map[string][]struct {
				Additional struct {
					ID       string  `json:"id"`
					Distance float64 `json:"distance"`
				} `json:"_additional"`
			} `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if decErr := resp.Decode(&out); decErr != nil {
		return nil, vdb.ProtocolErr(serviceName, "search", resp, decErr)
	}
	if len(out.Errors) > 0 {
		// GraphQL errors arrive with HTTP 200; they are still the
		// service's structured rejection.
		return nil, vdb.ServiceErr(serviceName, "search", resp)
	}
	rows, ok := out.Data.Get[class]
	if !ok {
		return nil, vdb.ProtocolErr(serviceName, "search", resp,
			fmt.Errorf("class %q missing from Get payload", class))
	}
	hits := make([]vdb.SearchHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, vdb.SearchHit{ID: r.Additional.ID, Score: float32(r.Additional.Distance)})
	}
	return &vdb.SearchResult{Hits: hits}, nil
}

// Delete removes objects one by one: 204 counts as removed, 404 counts as
// already absent, matching idempotent-delete semantics.
func (a *Adapter) Delete(ctx context.Context, collection string, ids []string) (*vdb.DeleteResult, error) {
	removed := 0
	for _, id := range ids {
		path := fmt.Sprintf("/v1/objects/%s/%s", className(collection), deriveID(id))
		resp, err := a.http.Do(ctx, http.MethodDelete, path, nil)
		if err != nil {
			return nil, vdb.Classify(serviceName, "delete", err)
		}
		switch {
		case resp.Status == http.StatusNoContent || resp.OK():
			removed++
		case resp.Status == http.StatusNotFound:
			// Absent already; not counted, not an error.
		default:
			return nil, vdb.ServiceErr(serviceName, "delete", resp)
		}
	}
	return &vdb.DeleteResult{Removed: removed}, nil
}

// className maps a logical collection name to Weaviate's class form.
// The server capitalizes class names on creation, so every request must
// use the capitalized form or GraphQL Get lookups miss the class.
func className(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// deriveID maps an arbitrary fuzz id to a stable UUID. Ids that already
// are UUIDs pass through unchanged.
func deriveID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(idNamespace, []byte(id)).String()
}
