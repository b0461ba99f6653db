package milvus

// Config holds connection settings for the Milvus REST adapter.
//
// Example:
//
//	cfg := milvus.DefaultConfig()
//	cfg.Host = "milvus.internal"
type Config struct {
	// Hostname of the Milvus proxy, e.g. "localhost".
	Host string `yaml:"host" envconfig:"MILVUS_HOST"`

	// REST port of the Milvus proxy. Defaults to 19530.
	Port int `yaml:"port" envconfig:"MILVUS_PORT"`
}

// DefaultConfig returns settings for a local single-node deployment.
func DefaultConfig() Config {
	return Config{
		Host: "localhost",
		Port: 19530,
	}
}
