package qdrant

// Config holds connection settings for the Qdrant REST adapter.
type Config struct {
	// Hostname of the Qdrant server, e.g. "localhost".
	Host string `yaml:"host" envconfig:"QDRANT_HOST"`

	// REST port of the Qdrant server. Defaults to 6333.
	Port int `yaml:"port" envconfig:"QDRANT_PORT"`
}

// DefaultConfig returns settings for a local single-node deployment.
func DefaultConfig() Config {
	return Config{
		Host: "localhost",
		Port: 6333,
	}
}
