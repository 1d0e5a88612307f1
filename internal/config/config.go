// Package config loads and validates the engine configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/runlog/internal/errors"
)

// EnvDataDir overrides the data directory. EnvBackend (consumed by the
// backend factory, repeated here for validation) overrides the backend.
const (
	EnvDataDir = "RUNLOG_DATA_DIR"
	EnvBackend = "RUNLOG_BACKEND"
)

// Config represents the complete engine configuration.
type Config struct {
	// DataDir is the root directory for all run data.
	DataDir string `yaml:"data_dir"`

	// Backend is the default storage backend: append or hybrid.
	Backend string `yaml:"backend"`

	// Hybrid configures the hybrid backend.
	Hybrid HybridConfig `yaml:"hybrid"`

	// Query configures the aggregate query service.
	Query QueryConfig `yaml:"query"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// HybridConfig configures the hybrid backend.
type HybridConfig struct {
	// ArchiveThreshold is the WAL size in bytes that triggers compaction.
	ArchiveThreshold int64 `yaml:"archive_threshold"`

	// Compression configures archive partition compression.
	Compression CompressionConfig `yaml:"compression"`
}

// CompressionConfig configures Parquet compression.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: snappy, zstd, lz4, gzip, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// QueryConfig configures the aggregate query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Backend: "hybrid",
		Hybrid: HybridConfig{
			ArchiveThreshold: 32 * 1024 * 1024, // 32MB
			Compression: CompressionConfig{
				Algorithm: "zstd",
				Level:     3,
			},
		},
		Query: QueryConfig{
			MemoryLimit: "1GB",
			Timeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".runlog"
	}
	return home + "/.runlog"
}

// Load loads configuration from a YAML file, applies environment overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv applies environment variable overrides.
func (c *Config) ApplyEnv() {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		c.DataDir = dir
	}
	if backend := os.Getenv(EnvBackend); backend != "" {
		c.Backend = backend
	}
}

// Validate checks the configuration, failing at load time rather than at
// first use.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set: %w", errors.ErrInvalidConfig)
	}

	switch c.Backend {
	case "append", "hybrid":
	default:
		return errors.NewUnknownBackend(c.Backend)
	}

	if c.Hybrid.ArchiveThreshold <= 0 {
		return fmt.Errorf("hybrid.archive_threshold must be positive, got %d: %w",
			c.Hybrid.ArchiveThreshold, errors.ErrInvalidConfig)
	}

	switch c.Hybrid.Compression.Algorithm {
	case "", "none", "snappy", "zstd", "lz4", "gzip":
	default:
		return fmt.Errorf("unknown compression algorithm '%s': %w",
			c.Hybrid.Compression.Algorithm, errors.ErrInvalidConfig)
	}

	return nil
}
