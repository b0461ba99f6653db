// Package difftest contains the differential execution and comparison
// engine: the test-case data model, the concurrent dispatcher that issues
// one case against every healthy service, and the comparator that
// classifies cross-service disagreement.
//
// # Lifecycle
//
// A TestCase is created by the generator, consumed exactly once by the
// Dispatcher, and never mutated. The Dispatcher fans the case out to every
// adapter healthy at dispatch time, each invocation bounded by its own
// timeout, and waits for all of them to settle - it never short-circuits,
// so the Comparator always observes the complete result set. Adapter
// failures become DatabaseResults, not errors: a service rejecting a
// malformed vector is a data point, and the difference between "service B
// rejected it" and "service C accepted it" is the signal this whole
// project exists to find.
//
// Services unhealthy at dispatch time are excluded, not failed. The
// distinction matters: excluded services produce no DatabaseResult and do
// not count toward consistency statistics.
package difftest
