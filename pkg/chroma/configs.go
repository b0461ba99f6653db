package chroma

// Config holds connection settings for the Chroma REST adapter.
type Config struct {
	// Hostname of the Chroma server, e.g. "localhost".
	Host string `yaml:"host" envconfig:"CHROMA_HOST"`

	// HTTP port of the Chroma server. Defaults to 8000.
	Port int `yaml:"port" envconfig:"CHROMA_PORT"`
}

// DefaultConfig returns settings for a local single-node deployment.
func DefaultConfig() Config {
	return Config{
		Host: "localhost",
		Port: 8000,
	}
}
