package vdb

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures into the fixed taxonomy the dispatcher
// and comparator operate on.
type Kind string

const (
	// KindConnection: the service was unreachable at the transport level
	// (refused, DNS failure, broken session, auth rejection).
	KindConnection Kind = "connection"

	// KindProtocol: the service answered but the response did not match
	// the expected shape for its dialect.
	KindProtocol Kind = "protocol"

	// KindTimeout: the bounded per-call wait was exceeded.
	KindTimeout Kind = "timeout"

	// KindService: the service returned a structured rejection. The raw
	// body is preserved verbatim - it is comparison material.
	KindService Kind = "service"

	// KindUnsupportedMetric: the requested similarity metric is not
	// available on this service and was not silently substituted.
	KindUnsupportedMetric Kind = "unsupported_metric"
)

// Error is the failure type every adapter surfaces. It never propagates as
// a process-level failure; the dispatcher records it as data.
type Error struct {
	// Service is the adapter name that produced the error.
	Service string

	// Op is the capability that failed ("insert", "search", ...).
	Op string

	// Kind places the failure in the taxonomy.
	Kind Kind

	// Status is the HTTP status code, when one was received.
	Status int

	// Body is the service's raw response body, preserved verbatim.
	Body string

	// Err is the underlying transport or decoding error, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Service, e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the taxonomy kind from any error chain. Errors outside
// the taxonomy (context cancellation that escaped a deadline, programming
// errors) classify as protocol failures so they still become data.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindProtocol
}

// IsTimeout checks whether the error chain is a bounded-wait expiry.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsConnection checks whether the error chain is a transport-level failure.
func IsConnection(err error) bool { return KindOf(err) == KindConnection }

// IsService checks whether the error chain is a structured service rejection.
func IsService(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == KindService
}

// IsUnsupportedMetric checks whether the error chain is a metric the
// service cannot honor.
func IsUnsupportedMetric(err error) bool { return KindOf(err) == KindUnsupportedMetric }
