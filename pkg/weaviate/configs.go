package weaviate

// Config holds connection settings for the Weaviate adapter.
type Config struct {
	// Hostname of the Weaviate server, e.g. "localhost".
	Host string `yaml:"host" envconfig:"WEAVIATE_HOST"`

	// HTTP port of the Weaviate server. Defaults to 8080.
	Port int `yaml:"port" envconfig:"WEAVIATE_PORT"`
}

// DefaultConfig returns settings for a local single-node deployment.
func DefaultConfig() Config {
	return Config{
		Host: "localhost",
		Port: 8080,
	}
}
