package difftest

import (
	"encoding/json"
	"time"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

// ---------------------------
// Test case model
// ---------------------------

type Operation string

const (
	OpInsert      Operation = "insert"
	OpBatchInsert Operation = "batch_insert"
	OpSearch      Operation = "search"
	OpBatchSearch Operation = "batch_search"
	OpDelete      Operation = "delete"
	OpMixed       Operation = "mixed"
)

// Operations lists every dispatchable operation in a fixed order.
var Operations = []Operation{OpInsert, OpBatchInsert, OpSearch, OpBatchSearch, OpDelete, OpMixed}

// SubOp is a single step inside an OpMixed case. Only insert, search and
// delete appear as sub-operations.
type SubOp struct {
	Op     Operation        `json:"op"`
	Vector []float32        `json:"vector,omitempty"`
	ID     string           `json:"id,omitempty"`
	Meta   map[string]any   `json:"meta,omitempty"`
	Query  []float32        `json:"query,omitempty"`
	K      int              `json:"k,omitempty"`
	IDs    []string         `json:"ids,omitempty"`
}

// Parameters carries the operation payload. Which fields are populated
// depends on the operation; the dispatcher trusts the generator to have
// filled in the right ones.
type Parameters struct {
	Collection string           `json:"collection"`
	Vectors    [][]float32      `json:"vectors,omitempty"`
	IDs        []string         `json:"ids,omitempty"`
	Metadata   []map[string]any `json:"metadata,omitempty"`
	Queries    [][]float32      `json:"queries,omitempty"`
	K          int              `json:"k,omitempty"`
	Metric     vdb.Metric       `json:"metric,omitempty"`
	Ops        []SubOp          `json:"ops,omitempty"`
}

// MarshalJSON preserves non-finite vector components as bare NaN and
// Infinity tokens instead of failing, so saved reports can replay the
// exact payload that was on the wire.
func (p Parameters) MarshalJSON() ([]byte, error) {
	type alias Parameters
	return json.Marshal(struct {
		alias
		Vectors [][]vdb.Num `json:"vectors,omitempty"`
		Queries [][]vdb.Num `json:"queries,omitempty"`
	}{
		alias:   alias(p),
		Vectors: vdb.WireVectors(p.Vectors),
		Queries: vdb.WireVectors(p.Queries),
	})
}

func (s SubOp) MarshalJSON() ([]byte, error) {
	type alias SubOp
	return json.Marshal(struct {
		alias
		Vector []vdb.Num `json:"vector,omitempty"`
		Query  []vdb.Num `json:"query,omitempty"`
	}{
		alias:  alias(s),
		Vector: vdb.WireVector(s.Vector),
		Query:  vdb.WireVector(s.Query),
	})
}

// TestCase is one generated operation, dispatched identically to every
// healthy service.
type TestCase struct {
	ID     int64      `json:"id"`
	Op     Operation  `json:"operation"`
	Params Parameters `json:"parameters"`
}

// ---------------------------
// Per-service results
// ---------------------------

// SubOutcome records one sub-operation of a mixed case as executed by one
// service. A sub-operation failure stops the sequence on that service, so
// services may disagree on how many sub-operations ran.
type SubOutcome struct {
	Op      Operation `json:"op"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// Outcome is the normalized success payload of an operation. Exactly one
// group of fields is populated, matching the operation kind.
type Outcome struct {
	InsertedIDs []string           `json:"inserted_ids,omitempty"`
	Searches    [][]vdb.SearchHit  `json:"searches,omitempty"`
	Removed     *int               `json:"removed,omitempty"`
	Sub         []SubOutcome       `json:"sub,omitempty"`
}

// ResultError preserves a service failure as data. Body carries the raw
// response verbatim when one exists.
type ResultError struct {
	Kind    vdb.Kind `json:"kind"`
	Message string   `json:"message"`
	Body    string   `json:"body,omitempty"`
}

// DatabaseResult is the outcome of one test case on one service.
type DatabaseResult struct {
	Service  string        `json:"service"`
	Success  bool          `json:"success"`
	Data     *Outcome      `json:"data,omitempty"`
	Error    *ResultError  `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// ---------------------------
// Comparison output
// ---------------------------

type Severity string

const (
	SeverityInformational  Severity = "informational"
	SeverityDivergent      Severity = "divergent"
	SeverityErrorDivergent Severity = "error-divergent"
)

type InconsistencyKind string

const (
	// KindSuccessDivergence marks cases where some services succeeded and
	// others failed. The highest-signal finding the comparator produces.
	KindSuccessDivergence InconsistencyKind = "success_divergence"
	// KindResultDivergence marks successful results that disagree on
	// content: search overlap below threshold, mismatched insert or
	// delete counts, diverging mixed-sequence execution.
	KindResultDivergence InconsistencyKind = "result_divergence"
	// KindServiceExcluded notes that exactly one service sat out a case
	// due to health, leaving the comparison one column short.
	KindServiceExcluded InconsistencyKind = "service_excluded"
)

// Inconsistency is one classified disagreement between services on a
// single test case.
type Inconsistency struct {
	Kind        InconsistencyKind `json:"kind"`
	Services    []string          `json:"services"`
	Description string            `json:"description"`
	Severity    Severity          `json:"severity"`
}

// TestResult bundles a case with everything observed about it.
type TestResult struct {
	Case            TestCase        `json:"case"`
	Results         []DatabaseResult `json:"results"`
	Excluded        []string        `json:"excluded,omitempty"`
	Inconsistencies []Inconsistency `json:"inconsistencies,omitempty"`
}

// Consistent reports whether the case produced no divergent findings.
// Informational notes do not make a case inconsistent.
func (r *TestResult) Consistent() bool {
	for _, inc := range r.Inconsistencies {
		if inc.Severity != SeverityInformational {
			return false
		}
	}
	return true
}
