// Package logger provides the structured zap logger the fuzzer runs on.
//
// Output is JSON on stderr with ISO8601 timestamps, tagged with the pid
// and a fixed service field so runs interleaved with the target databases'
// own logs stay attributable. The level comes from configuration; debug
// level turns on per-request logging in the service adapters and the
// dispatcher, which is noisy but invaluable when chasing a divergence.
//
// The package integrates with fx:
//
//	app := fx.New(
//		logger.FXModule,
//		// ...
//	)
//
// FXModule provides both the *Logger wrapper and the underlying
// *zap.Logger, and syncs buffered output on shutdown.
package logger
