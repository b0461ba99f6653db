// Package vdb defines the common capability contract implemented by every
// vector-database adapter in this project.
//
// # Overview
//
// Each target service (Milvus, Chroma, Qdrant, Weaviate) speaks its own wire
// dialect: REST-JSON in one or more API versions, or GraphQL plus a REST
// schema API. The [Adapter] interface normalizes those dialects into a single
// set of operations so the differential dispatcher can issue one generated
// test case identically against every reachable service.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                Differential Dispatcher                      │
//	│          (uses vdb.Adapter - no dialect imports)            │
//	└──────────────────────────┬──────────────────────────────────┘
//	                           │
//	                           ▼
//	┌─────────────────────────────────────────────────────────────┐
//	│                       vdb.Adapter                           │
//	│        (capability contract + normalized result types)      │
//	└──────────────────────────┬──────────────────────────────────┘
//	                           │
//	     ┌──────────────┬──────┼────────┬────────────────┐
//	     ▼              ▼               ▼                ▼
//	┌──────────┐  ┌──────────┐  ┌──────────┐  ┌────────────┐
//	│  milvus  │  │  chroma  │  │  qdrant  │  │  weaviate  │
//	│ REST v2+ │  │ REST v2  │  │ REST cur │  │ GraphQL +  │
//	│ legacy v1│  │ v1 fall  │  │ + legacy │  │ REST schema│
//	└──────────┘  └──────────┘  └──────────┘  └────────────┘
//
// # Contract rules
//
// Adapters translate, they do not judge. A malformed input (NaN component,
// empty vector, dimension mismatch, illegal id) is forwarded to the service
// and the service's own verdict - accept, reject, or coerce - is surfaced as
// the normalized outcome. An adapter must never pre-validate a payload away
// and must never swallow a service's native error body: the body itself is
// comparison material.
//
// Errors carry a [Kind] from the fixed taxonomy (connection, protocol,
// timeout, service, unsupported metric) so the dispatcher can classify
// outcomes without inspecting dialect-specific failures.
package vdb
