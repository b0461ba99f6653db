// Package report persists run output: a JSON dump of every test result
// for replay and offline analysis, and a human-readable summary for the
// terminal.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/difftest"
	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

type Config struct {
	// Dir is where result files land. Created on first save.
	Dir string `yaml:"dir" envconfig:"REPORT_DIR"`
}

func DefaultConfig() Config {
	return Config{Dir: "results"}
}

// Run is the top-level document written to disk. Seed and config identity
// are enough to regenerate the exact same case sequence.
type Run struct {
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Seed       int64                 `json:"seed"`
	Summary    *Summary              `json:"summary"`
	Results    []difftest.TestResult `json:"results"`
}

// ServiceStats aggregates one database's run.
type ServiceStats struct {
	Requests  int `json:"requests"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// OpStats aggregates one operation kind.
type OpStats struct {
	Cases        int `json:"cases"`
	Inconsistent int `json:"inconsistent"`
}

// Summary is the run-level aggregate.
type Summary struct {
	Tests           int                      `json:"tests"`
	Consistent      int                      `json:"consistent"`
	Inconsistent    int                      `json:"inconsistent"`
	ConsistencyRate float64                  `json:"consistency_rate"`
	BySeverity      map[string]int           `json:"by_severity"`
	ByService       map[string]*ServiceStats `json:"by_service"`
	ByOperation     map[string]*OpStats      `json:"by_operation"`
}

func NewSummary() *Summary {
	return &Summary{
		BySeverity:  make(map[string]int),
		ByService:   make(map[string]*ServiceStats),
		ByOperation: make(map[string]*OpStats),
	}
}

// Observe folds one settled test result into the aggregate.
func (s *Summary) Observe(r *difftest.TestResult) {
	s.Tests++
	if r.Consistent() {
		s.Consistent++
	} else {
		s.Inconsistent++
	}
	if s.Tests > 0 {
		s.ConsistencyRate = float64(s.Consistent) / float64(s.Tests)
	}

	op := s.ByOperation[string(r.Case.Op)]
	if op == nil {
		op = &OpStats{}
		s.ByOperation[string(r.Case.Op)] = op
	}
	op.Cases++
	if !r.Consistent() {
		op.Inconsistent++
	}

	for _, inc := range r.Inconsistencies {
		s.BySeverity[string(inc.Severity)]++
	}

	for _, dr := range r.Results {
		svc := s.ByService[dr.Service]
		if svc == nil {
			svc = &ServiceStats{}
			s.ByService[dr.Service] = svc
		}
		svc.Requests++
		if dr.Success {
			svc.Successes++
		} else {
			svc.Failures++
		}
	}
}

// Writer saves runs to the configured directory.
type Writer struct {
	cfg Config
	log *zap.Logger
}

func NewWriter(cfg Config, log *zap.Logger) *Writer {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	return &Writer{cfg: cfg, log: log}
}

// Save writes the run document and returns the file path. The document
// may contain bare NaN and Infinity tokens wherever generated vectors
// carried them; consumers must parse it the way dynamic-language JSON
// readers do.
func (w *Writer) Save(run *Run) (string, error) {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create dir: %w", err)
	}
	name := fmt.Sprintf("fuzz_results_%s.json", run.StartedAt.Format("20060102_150405"))
	path := filepath.Join(w.cfg.Dir, name)

	data, err := vdb.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("report: write: %w", err)
	}
	w.log.Info("results saved", zap.String("path", path), zap.Int("tests", run.Summary.Tests))
	return path, nil
}

// Render produces the terminal summary.
func Render(run *Run) string {
	s := run.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "Differential fuzz run (seed %d)\n", run.Seed)
	fmt.Fprintf(&b, "  started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "  finished: %s\n", run.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "  tests: %d  consistent: %d  inconsistent: %d  (%.1f%% consistent)\n",
		s.Tests, s.Consistent, s.Inconsistent, s.ConsistencyRate*100)

	if len(s.BySeverity) > 0 {
		b.WriteString("  findings by severity:\n")
		for _, sev := range sortedKeys(s.BySeverity) {
			fmt.Fprintf(&b, "    %-16s %d\n", sev, s.BySeverity[sev])
		}
	}

	b.WriteString("  per database:\n")
	for _, name := range sortedServiceKeys(s.ByService) {
		svc := s.ByService[name]
		rate := 0.0
		if svc.Requests > 0 {
			rate = float64(svc.Successes) / float64(svc.Requests) * 100
		}
		fmt.Fprintf(&b, "    %-10s %4d requests, %4d ok, %4d failed (%.1f%% ok)\n",
			name, svc.Requests, svc.Successes, svc.Failures, rate)
	}

	b.WriteString("  per operation:\n")
	for _, name := range sortedOpKeys(s.ByOperation) {
		op := s.ByOperation[name]
		fmt.Fprintf(&b, "    %-14s %4d cases, %4d inconsistent\n", name, op.Cases, op.Inconsistent)
	}
	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedServiceKeys(m map[string]*ServiceStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedOpKeys(m map[string]*OpStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
