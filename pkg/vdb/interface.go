package vdb

import "context"

// Adapter is the common interface for all vector-database adapters.
// One implementation exists per target service; each owns its own HTTP
// session and dialect-detection state exclusively, so adapters are never
// shared across services.
//
// Example usage:
//
//	func NewDispatcher(adapters []vdb.Adapter) *Dispatcher {
//	    return &Dispatcher{adapters: adapters}
//	}
//
//	// Works with any implementation:
//	// - milvus.NewAdapter(cfg, log)
//	// - chroma.NewAdapter(cfg, log)
//	// - qdrant.NewAdapter(cfg, log)
//	// - weaviate.NewAdapter(cfg, log)
type Adapter interface {
	// Name returns the stable service identifier used in results,
	// logs and statistics (e.g. "milvus").
	Name() string

	// Connect establishes the reusable HTTP session and verifies the
	// service answers at the transport level. Safe to call when already
	// connected. Fails with a connection-kind *Error on refusal.
	Connect(ctx context.Context) error

	// EnsureCollection creates the service's container abstraction
	// (collection or class) if absent. "Already exists" is success.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// DropCollection removes the collection. Absence is not an error.
	DropCollection(ctx context.Context, name string) error

	// Insert stores len(vectors) vectors under the given ids and returns
	// the ids the service actually stored, after any service-side or
	// dialect-required coercion. Malformed input (dimension mismatch,
	// NaN/Inf components, illegal ids, mismatched cardinalities) is
	// forwarded as-is; the service's own decision is the result.
	Insert(ctx context.Context, collection string, vectors [][]float32, ids []string, metadata []map[string]any) (*InsertResult, error)

	// Search returns up to k hits ordered by similarity under the given
	// metric. Metrics the service cannot honor fail with an
	// unsupported-metric *Error, never a silent substitution.
	Search(ctx context.Context, collection string, query []float32, k int, metric Metric) (*SearchResult, error)

	// Delete removes the given ids and reports how many points the
	// service actually removed. Deleting a nonexistent id yields zero
	// removed where the service's delete is idempotent; otherwise the
	// service's native error is surfaced.
	Delete(ctx context.Context, collection string, ids []string) (*DeleteResult, error)

	// HealthCheck probes the service's ranked endpoint list with the
	// first responding endpoint winning, and reports reachability plus
	// whatever version/dialect info that endpoint exposed.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Close releases the HTTP session. Idempotent.
	Close() error
}
