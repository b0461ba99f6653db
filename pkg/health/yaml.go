package health

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts human-readable durations ("3s", "500ms") and
// leaves fields absent from the document untouched, so file values
// overlay defaults instead of zeroing them.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		ProbeTimeout *string `yaml:"probe_timeout"`
		Interval     *string `yaml:"interval"`
		Strict       *bool   `yaml:"strict"`
	}
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	if r.ProbeTimeout != nil {
		d, err := time.ParseDuration(*r.ProbeTimeout)
		if err != nil {
			return fmt.Errorf("health: probe_timeout: %w", err)
		}
		c.ProbeTimeout = d
	}
	if r.Interval != nil {
		d, err := time.ParseDuration(*r.Interval)
		if err != nil {
			return fmt.Errorf("health: interval: %w", err)
		}
		c.Interval = d
	}
	if r.Strict != nil {
		c.Strict = *r.Strict
	}
	return nil
}
