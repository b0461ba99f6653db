package metrics

// Default port for metrics server if none is specified.
const DefaultMetricsAddress = ":9090"

// Config controls the Prometheus metrics endpoint.
type Config struct {
	// Address the metrics HTTP server listens on, e.g. ":9090" or
	// "127.0.0.1:9100". Empty disables the server; instruments still
	// collect and tests can read them off the registry.
	Address string `yaml:"address" envconfig:"METRICS_ADDRESS"`

	// EnableDefaultCollectors registers the Go runtime and process
	// collectors alongside the fuzzer's own instruments.
	EnableDefaultCollectors bool `yaml:"enable_default_collectors" envconfig:"METRICS_ENABLE_DEFAULT_COLLECTORS"`

	// Namespace prefixes every metric name, e.g. "vdbdiff" turns
	// "tests_total" into "vdbdiff_tests_total".
	Namespace string `yaml:"namespace" envconfig:"METRICS_NAMESPACE"`

	// ServiceName is attached as a constant service label to every
	// metric, distinguishing concurrent fuzzer deployments.
	ServiceName string `yaml:"service_name" envconfig:"METRICS_SERVICE_NAME"`
}

func DefaultConfig() Config {
	return Config{
		Address:                 DefaultMetricsAddress,
		EnableDefaultCollectors: true,
		Namespace:               "vdbdiff",
		ServiceName:             "vdbdiff",
	}
}
