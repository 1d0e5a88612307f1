package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/runlog/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Backend != "hybrid" {
		t.Errorf("backend: got %q", cfg.Backend)
	}
	if cfg.Hybrid.ArchiveThreshold != 32*1024*1024 {
		t.Errorf("threshold: got %d", cfg.Hybrid.ArchiveThreshold)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /data/runlog
backend: append
hybrid:
  archive_threshold: 1048576
  compression:
    algorithm: snappy
query:
  timeout: 10s
logging:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir != "/data/runlog" {
		t.Errorf("data_dir: got %q", cfg.DataDir)
	}
	if cfg.Backend != "append" {
		t.Errorf("backend: got %q", cfg.Backend)
	}
	if cfg.Hybrid.ArchiveThreshold != 1048576 {
		t.Errorf("threshold: got %d", cfg.Hybrid.ArchiveThreshold)
	}
	if cfg.Hybrid.Compression.Algorithm != "snappy" {
		t.Errorf("compression: got %q", cfg.Hybrid.Compression.Algorithm)
	}
	// Unset fields keep their defaults.
	if cfg.Hybrid.Compression.Level != 3 {
		t.Errorf("compression level: got %d, want default 3", cfg.Hybrid.Compression.Level)
	}
	if cfg.Query.Timeout != 10*time.Second {
		t.Errorf("timeout: got %v", cfg.Query.Timeout)
	}
	if cfg.Query.MemoryLimit != "1GB" {
		t.Errorf("memory limit: got %q, want default", cfg.Query.MemoryLimit)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("logging: %+v", cfg.Logging)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDataDir, "/env/dir")
	t.Setenv(EnvBackend, "append")

	path := writeConfig(t, "data_dir: /file/dir\nbackend: hybrid\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/env/dir" {
		t.Errorf("data_dir: got %q, env must win", cfg.DataDir)
	}
	if cfg.Backend != "append" {
		t.Errorf("backend: got %q, env must win", cfg.Backend)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "data_dir: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown backend", func(c *Config) { c.Backend = "bogus" }},
		{"zero threshold", func(c *Config) { c.Hybrid.ArchiveThreshold = 0 }},
		{"negative threshold", func(c *Config) { c.Hybrid.ArchiveThreshold = -1 }},
		{"unknown compression", func(c *Config) { c.Hybrid.Compression.Algorithm = "brotli" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.IsConfig(err) {
				t.Errorf("error is not a config error: %v", err)
			}
		})
	}
}
