// Command vdbdiff runs differential fuzz tests against a set of vector
// databases and reports where their behavior diverges.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/config"
	"github.com/vdbdiff/vdbdiff/pkg/logger"
	"github.com/vdbdiff/vdbdiff/pkg/metrics"
	"github.com/vdbdiff/vdbdiff/pkg/report"
	"github.com/vdbdiff/vdbdiff/pkg/runner"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML configuration file")
		tests      = flag.Int("tests", 0, "override the number of test cases to run")
		seed       = flag.Int64("seed", 0, "override the random seed (0 keeps the configured one)")
		out        = flag.String("out", "", "override the results directory")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *tests > 0 {
		cfg.Run.Tests = *tests
	}
	if *seed != 0 {
		cfg.Run.Seed = *seed
	}
	if *out != "" {
		cfg.Report.Dir = *out
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			func(c config.Config) logger.Config { return c.Logger },
			func(c config.Config) metrics.Config { return c.Metrics },
		),
		logger.FXModule,
		metrics.FXModule,
		runner.FXModule,
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l}
		}),
		fx.Invoke(startRun),
	)
	app.Run()
}

// startRun launches the fuzz loop once the app is up and shuts the app
// down when it finishes. Signal-triggered shutdown cancels the loop,
// which still saves whatever completed.
func startRun(lc fx.Lifecycle, r *runner.Runner, log *zap.Logger, sd fx.Shutdowner) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				run, err := r.Run(runCtx)
				switch {
				case errors.Is(err, runner.ErrNoHealthyDatabases):
					log.Error("no databases reachable, nothing to compare")
					_ = sd.Shutdown(fx.ExitCode(2))
				case err != nil:
					log.Error("run aborted", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				default:
					fmt.Print(report.Render(run))
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}
