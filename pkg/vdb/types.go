package vdb

// Metric identifies the similarity function requested for a search.
type Metric string

const (
	// MetricL2 is euclidean distance (lower = closer).
	MetricL2 Metric = "L2"

	// MetricCosine is cosine similarity (higher = closer).
	MetricCosine Metric = "cosine"

	// MetricInnerProduct is dot-product similarity.
	MetricInnerProduct Metric = "inner_product"
)

// Metrics lists every metric a generator may request.
var Metrics = []Metric{MetricL2, MetricCosine, MetricInnerProduct}

// InsertResult is the normalized outcome of an insert operation.
type InsertResult struct {
	// IDs are the identifiers the service actually stored, after any
	// dialect-required coercion (e.g. Milvus int64 keys, Weaviate UUIDs).
	IDs []string `json:"ids"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	// ID is the stored identifier of the matched point.
	ID string `json:"id"`

	// Score is the service-reported similarity or distance value.
	// Its direction depends on the metric; it is recorded for
	// diagnostics, comparison operates on id sets.
	Score float32 `json:"score"`
}

// SearchResult is the normalized outcome of a search operation.
type SearchResult struct {
	// Hits are ordered as the service returned them, length <= k.
	Hits []SearchHit `json:"hits"`
}

// IDs returns the hit ids in rank order.
func (r *SearchResult) IDs() []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ID
	}
	return ids
}

// DeleteResult is the normalized outcome of a delete operation.
type DeleteResult struct {
	// Removed is the count of points the service reported removed.
	// Services that do not report a count get the count the adapter
	// could confirm (acknowledged ids), never an assumed input count.
	Removed int `json:"removed"`
}

// HealthStatus is the outcome of a health probe.
type HealthStatus struct {
	// Reachable reports whether any ranked endpoint answered with a
	// recognized ready shape.
	Reachable bool `json:"reachable"`

	// Endpoint is the probe path that won, e.g. "/.well-known/ready".
	Endpoint string `json:"endpoint,omitempty"`

	// Version is the service version if the winning endpoint exposed one.
	Version string `json:"version,omitempty"`

	// Dialect describes the API flavor detected, e.g. "rest-v2".
	Dialect string `json:"dialect,omitempty"`
}
