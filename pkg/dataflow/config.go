package dataflow

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"sigs.k8s.io/yaml"
)

const (
	// DefaultTraceMergeThreshold is the number of batches a trace may hold before the runtime
	// compacts it.
	DefaultTraceMergeThreshold = 64
)

// Config holds the static settings of a dataflow.
type Config struct {
	// Workers is the number of workers (partitions) the dataflow is built for.
	Workers int `json:"workers,omitempty"`
	// AsyncConcurrency bounds the number of in-flight record computations of an asynchronous
	// map per worker. Zero means unbounded: the whole batch is launched at once.
	AsyncConcurrency int `json:"asyncConcurrency,omitempty"`
	// TraceMergeThreshold is the number of batches after which a trace is compacted. Zero
	// disables compaction.
	TraceMergeThreshold int `json:"traceMergeThreshold,omitempty"`
	// Logger is the base logger of the dataflow.
	Logger logr.Logger `json:"-"`
}

// DefaultConfig returns a single-worker configuration.
func DefaultConfig() Config {
	return Config{
		Workers:             1,
		TraceMergeThreshold: DefaultTraceMergeThreshold,
		Logger:              logr.Discard(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return NewInvalidConfigError(fmt.Sprintf("workers must be positive, got %d", c.Workers))
	}
	if c.AsyncConcurrency < 0 {
		return NewInvalidConfigError(fmt.Sprintf("asyncConcurrency must not be negative, got %d",
			c.AsyncConcurrency))
	}
	if c.TraceMergeThreshold < 0 {
		return NewInvalidConfigError(fmt.Sprintf("traceMergeThreshold must not be negative, got %d",
			c.TraceMergeThreshold))
	}
	return nil
}

// LoadConfig reads a YAML (or JSON) config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(b, &config); err != nil {
		return config, NewInvalidConfigError(fmt.Sprintf("failed to parse %q: %s", path, err))
	}

	return config, config.Validate()
}
