package runner

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/chroma"
	"github.com/vdbdiff/vdbdiff/pkg/config"
	"github.com/vdbdiff/vdbdiff/pkg/difftest"
	"github.com/vdbdiff/vdbdiff/pkg/fuzzgen"
	"github.com/vdbdiff/vdbdiff/pkg/health"
	"github.com/vdbdiff/vdbdiff/pkg/metrics"
	"github.com/vdbdiff/vdbdiff/pkg/milvus"
	"github.com/vdbdiff/vdbdiff/pkg/qdrant"
	"github.com/vdbdiff/vdbdiff/pkg/report"
	"github.com/vdbdiff/vdbdiff/pkg/vdb"
	"github.com/vdbdiff/vdbdiff/pkg/weaviate"
)

// FXModule assembles the full run pipeline from configuration.
var FXModule = fx.Module("runner",
	fx.Provide(
		NewAdapters,
		NewGenerator,
		NewDispatcher,
		NewComparator,
		NewMonitor,
		NewReportWriter,
		NewRunner,
	),
)

// NewAdapters instantiates one adapter per enabled database, in the
// order configured.
func NewAdapters(cfg config.Config, log *zap.Logger) []vdb.Adapter {
	adapters := make([]vdb.Adapter, 0, len(cfg.Run.Databases))
	for _, name := range cfg.Run.Databases {
		switch name {
		case "milvus":
			adapters = append(adapters, milvus.NewAdapter(cfg.Milvus, log))
		case "chroma":
			adapters = append(adapters, chroma.NewAdapter(cfg.Chroma, log))
		case "qdrant":
			adapters = append(adapters, qdrant.NewAdapter(cfg.Qdrant, log))
		case "weaviate":
			adapters = append(adapters, weaviate.NewAdapter(cfg.Weaviate, log))
		}
	}
	return adapters
}

func NewGenerator(cfg config.Config) (*fuzzgen.Generator, error) {
	return fuzzgen.New(cfg.Fuzz, cfg.Run.Seed)
}

func NewDispatcher(cfg config.Config, adapters []vdb.Adapter, log *zap.Logger) *difftest.Dispatcher {
	return difftest.NewDispatcher(adapters, cfg.Run.OperationTimeout, log)
}

func NewComparator(cfg config.Config) *difftest.Comparator {
	return difftest.NewComparator(cfg.Compare.OverlapThreshold)
}

func NewMonitor(cfg config.Config, adapters []vdb.Adapter, log *zap.Logger) *health.Monitor {
	return health.NewMonitor(cfg.Health, adapters, log)
}

func NewReportWriter(cfg config.Config, log *zap.Logger) *report.Writer {
	return report.NewWriter(cfg.Report, log)
}

// RunnerParams collects the pipeline dependencies for injection.
type RunnerParams struct {
	fx.In

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

func NewRunner(p RunnerParams) *Runner {
	return New(Options{
		Config:     p.Config,
		Adapters:   p.Adapters,
		Generator:  p.Generator,
		Dispatcher: p.Dispatcher,
		Comparator: p.Comparator,
		Monitor:    p.Monitor,
		Writer:     p.Writer,
		Metrics:    p.Metrics,
		Log:        p.Log,
	})
}
