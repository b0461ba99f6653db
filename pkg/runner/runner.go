// Package runner drives a differential fuzz run end to end: health
// probing, collection setup, the generate/dispatch/compare loop, and
// teardown with a persisted report.
package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/config"
	"github.com/vdbdiff/vdbdiff/pkg/difftest"
	"github.com/vdbdiff/vdbdiff/pkg/fuzzgen"
	"github.com/vdbdiff/vdbdiff/pkg/health"
	"github.com/vdbdiff/vdbdiff/pkg/metrics"
	"github.com/vdbdiff/vdbdiff/pkg/report"
	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

// ErrNoHealthyDatabases aborts a run that has no targets left to compare.
var ErrNoHealthyDatabases = errors.New("runner: no healthy databases")

type Options struct {
	Config     config.Config
	Adapters   []vdb.Adapter
	Generator  *fuzzgen.Generator
	Dispatcher *difftest.Dispatcher
	Comparator *difftest.Comparator
	Monitor    *health.Monitor
	Writer     *report.Writer
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

type Runner struct {
	cfg  config.Config
	opts Options
	log  *zap.Logger
}

func New(opts Options) *Runner {
	return &Runner{cfg: opts.Config, opts: opts, log: opts.Log}
}

// Run executes the configured number of test cases and returns the run
// document. The document holds whatever completed even when Run returns
// an error, so partial runs still get saved.
func (r *Runner) Run(ctx context.Context) (*report.Run, error) {
	run := &report.Run{
		StartedAt: time.Now().UTC(),
		Seed:      r.opts.Generator.Seed(),
		Summary:   report.NewSummary(),
	}
	defer func() {
		run.FinishedAt = time.Now().UTC()
		if _, err := r.opts.Writer.Save(run); err != nil {
			r.log.Error("saving results failed", zap.Error(err))
		}
	}()

	r.connectAll(ctx)
	defer r.teardown()

	r.opts.Monitor.ProbeAll(ctx)
	r.logHealthSummary()
	if len(r.opts.Monitor.Healthy()) == 0 {
		return run, ErrNoHealthyDatabases
	}

	r.setupCollections(ctx)

	r.opts.Monitor.Start(ctx)
	defer r.opts.Monitor.Stop()

	for i := 0; i < r.cfg.Run.Tests; i++ {
		if err := ctx.Err(); err != nil {
			return run, err
		}

		r.opts.Monitor.Refresh(ctx)
		healthy, excluded := r.opts.Monitor.Snapshot()
		r.updateHealthGauges(healthy, excluded)
		if len(healthy) == 0 {
			return run, ErrNoHealthyDatabases
		}

		tc := r.opts.Generator.Next()
		r.opts.Metrics.TestsTotal.WithLabelValues(string(tc.Op)).Inc()

		results := r.opts.Dispatcher.Dispatch(ctx, tc, healthy)
		for _, dr := range results {
			status := "success"
			if !dr.Success {
				status = string(dr.Error.Kind)
			}
			r.opts.Metrics.ObserveRequest(dr.Service, status, dr.Duration)
		}

		incs := r.opts.Comparator.Compare(tc, results, excluded)
		for _, inc := range incs {
			r.opts.Metrics.InconsistenciesTotal.WithLabelValues(string(inc.Kind), string(inc.Severity)).Inc()
			r.logInconsistency(tc, inc)
		}

		result := difftest.TestResult{
			Case:            tc,
			Results:         results,
			Excluded:        excluded,
			Inconsistencies: incs,
		}
		run.Summary.Observe(&result)
		run.Results = append(run.Results, result)
	}

	r.log.Info("run complete",
		zap.Int("tests", run.Summary.Tests),
		zap.Int("inconsistent", run.Summary.Inconsistent),
		zap.Float64("consistency_rate", run.Summary.ConsistencyRate))
	return run, nil
}

// connectAll establishes sessions. A database that refuses the handshake
// is left to the health probe to exclude.
func (r *Runner) connectAll(ctx context.Context) {
	for _, a := range r.opts.Adapters {
		if err := a.Connect(ctx); err != nil {
			r.log.Warn("connect failed",
				zap.String("database", a.Name()),
				zap.Error(err))
		}
	}
}

// setupCollections creates the shared target collection on every healthy
// database. Failure here is logged and left in place: a database that
// cannot create the collection will fail its operations, and those
// failures are findings.
func (r *Runner) setupCollections(ctx context.Context) {
	healthy := asSet(r.opts.Monitor.Healthy())
	for _, a := range r.opts.Adapters {
		if !healthy[a.Name()] {
			continue
		}
		if err := a.EnsureCollection(ctx, r.cfg.Fuzz.Collection, r.cfg.Fuzz.Dimension); err != nil {
			r.log.Warn("collection setup failed",
				zap.String("database", a.Name()),
				zap.String("collection", r.cfg.Fuzz.Collection),
				zap.Error(err))
		}
	}
}

// teardown drops the shared collection and closes every session. Cleanup
// runs on a fresh context so a canceled run still releases resources.
func (r *Runner) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	healthy := asSet(r.opts.Monitor.Healthy())
	for _, a := range r.opts.Adapters {
		if healthy[a.Name()] {
			if err := a.DropCollection(ctx, r.cfg.Fuzz.Collection); err != nil {
				r.log.Debug("collection cleanup failed",
					zap.String("database", a.Name()),
					zap.Error(err))
			}
		}
		if err := a.Close(); err != nil {
			r.log.Debug("close failed",
				zap.String("database", a.Name()),
				zap.Error(err))
		}
	}
}

func (r *Runner) logHealthSummary() {
	r.log.Info("health summary",
		zap.Strings("healthy", r.opts.Monitor.Healthy()),
		zap.Strings("excluded", r.opts.Monitor.Excluded()))
}

func (r *Runner) updateHealthGauges(healthy, excluded []string) {
	for _, name := range healthy {
		r.opts.Metrics.ServiceHealthy.WithLabelValues(name).Set(1)
	}
	for _, name := range excluded {
		r.opts.Metrics.ServiceHealthy.WithLabelValues(name).Set(0)
	}
}

func (r *Runner) logInconsistency(tc difftest.TestCase, inc difftest.Inconsistency) {
	fields := []zap.Field{
		zap.Int64("case", tc.ID),
		zap.String("operation", string(tc.Op)),
		zap.String("kind", string(inc.Kind)),
		zap.Strings("databases", inc.Services),
		zap.String("detail", inc.Description),
	}
	switch inc.Severity {
	case difftest.SeverityErrorDivergent:
		r.log.Error("inconsistency", fields...)
	case difftest.SeverityDivergent:
		r.log.Warn("inconsistency", fields...)
	default:
		r.log.Info("inconsistency", fields...)
	}
}

func asSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
