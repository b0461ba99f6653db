// Package config assembles the full runner configuration from defaults, a
// YAML file and environment overrides, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/vdbdiff/vdbdiff/pkg/chroma"
	"github.com/vdbdiff/vdbdiff/pkg/difftest"
	"github.com/vdbdiff/vdbdiff/pkg/fuzzgen"
	"github.com/vdbdiff/vdbdiff/pkg/health"
	"github.com/vdbdiff/vdbdiff/pkg/logger"
	"github.com/vdbdiff/vdbdiff/pkg/metrics"
	"github.com/vdbdiff/vdbdiff/pkg/milvus"
	"github.com/vdbdiff/vdbdiff/pkg/qdrant"
	"github.com/vdbdiff/vdbdiff/pkg/report"
	"github.com/vdbdiff/vdbdiff/pkg/weaviate"
)

// RunConfig controls the test loop itself.
type RunConfig struct {
	// Tests is the number of cases to generate and dispatch.
	Tests int `yaml:"tests" envconfig:"RUN_TESTS"`

	// Seed makes the generated sequence reproducible. Zero draws a
	// fresh seed and logs it.
	Seed int64 `yaml:"seed" envconfig:"RUN_SEED"`

	// OperationTimeout bounds a single operation on a single database.
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"RUN_OPERATION_TIMEOUT"`

	// Databases selects which targets participate. Valid entries:
	// milvus, chroma, qdrant, weaviate.
	Databases []string `yaml:"databases" envconfig:"RUN_DATABASES"`
}

// UnmarshalYAML accepts human-readable timeouts ("10s") and leaves
// fields absent from the document untouched.
func (c *RunConfig) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		Tests            *int     `yaml:"tests"`
		Seed             *int64   `yaml:"seed"`
		OperationTimeout *string  `yaml:"operation_timeout"`
		Databases        []string `yaml:"databases"`
	}
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	if r.Tests != nil {
		c.Tests = *r.Tests
	}
	if r.Seed != nil {
		c.Seed = *r.Seed
	}
	if r.OperationTimeout != nil {
		d, err := time.ParseDuration(*r.OperationTimeout)
		if err != nil {
			return fmt.Errorf("config: run.operation_timeout: %w", err)
		}
		c.OperationTimeout = d
	}
	if r.Databases != nil {
		c.Databases = r.Databases
	}
	return nil
}

// CompareConfig tunes the comparator.
type CompareConfig struct {
	// OverlapThreshold is the minimum Jaccard overlap between two
	// services' search results before the pair counts as divergent.
	OverlapThreshold float64 `yaml:"overlap_threshold" envconfig:"COMPARE_OVERLAP_THRESHOLD"`
}

type Config struct {
	Run     RunConfig      `yaml:"run"`
	Compare CompareConfig  `yaml:"compare"`
	Fuzz    fuzzgen.Config `yaml:"fuzz"`
	Health  health.Config  `yaml:"health"`
	Report  report.Config  `yaml:"report"`
	Logger  logger.Config  `yaml:"logger"`
	Metrics metrics.Config `yaml:"metrics"`

	Milvus   milvus.Config   `yaml:"milvus"`
	Chroma   chroma.Config   `yaml:"chroma"`
	Qdrant   qdrant.Config   `yaml:"qdrant"`
	Weaviate weaviate.Config `yaml:"weaviate"`
}

func DefaultConfig() Config {
	return Config{
		Run: RunConfig{
			Tests:            100,
			OperationTimeout: 10 * time.Second,
			Databases:        []string{"milvus", "chroma", "qdrant", "weaviate"},
		},
		Compare: CompareConfig{
			OverlapThreshold: difftest.DefaultOverlapThreshold,
		},
		Fuzz:     fuzzgen.DefaultConfig(),
		Health:   health.DefaultConfig(),
		Report:   report.DefaultConfig(),
		Logger:   logger.DefaultConfig(),
		Metrics:  metrics.DefaultConfig(),
		Milvus:   milvus.DefaultConfig(),
		Chroma:   chroma.DefaultConfig(),
		Qdrant:   qdrant.DefaultConfig(),
		Weaviate: weaviate.DefaultConfig(),
	}
}

// Load builds the effective configuration. A missing path is not an
// error; defaults plus environment apply.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Run.Tests < 1 {
		return errors.New("config: run.tests must be positive")
	}
	if c.Run.OperationTimeout <= 0 {
		return errors.New("config: run.operation_timeout must be positive")
	}
	if len(c.Run.Databases) == 0 {
		return errors.New("config: run.databases must name at least one target")
	}
	for _, name := range c.Run.Databases {
		switch name {
		case "milvus", "chroma", "qdrant", "weaviate":
		default:
			return fmt.Errorf("config: unknown database %q", name)
		}
	}
	if c.Compare.OverlapThreshold <= 0 || c.Compare.OverlapThreshold > 1 {
		return fmt.Errorf("config: compare.overlap_threshold %v outside (0, 1]", c.Compare.OverlapThreshold)
	}
	if err := c.Fuzz.Validate(); err != nil {
		return err
	}
	return nil
}
