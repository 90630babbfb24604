package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/INLOpen/atomindex/store/leveldb"
	"gopkg.in/yaml.v3"
)

// LevelDBConfig tunes the leveldb store backend.
type LevelDBConfig struct {
	BlockCacheCapacity  int    `yaml:"block_cache_capacity"`
	WriteBuffer         int    `yaml:"write_buffer"`
	Compression         string `yaml:"compression"` // "snappy" or "none"
	RecoverOnCorruption bool   `yaml:"recover_on_corruption"`
}

// StoreConfig selects and configures the store backend.
type StoreConfig struct {
	Backend string        `yaml:"backend"` // "leveldb" or "memory"
	DataDir string        `yaml:"data_dir"`
	LevelDB LevelDBConfig `yaml:"leveldb"`
}

// IndexConfig holds index manager configurations.
type IndexConfig struct {
	ManifestPath     string `yaml:"manifest_path"` // defaults to <data_dir>/INDEX_MANIFEST.json
	StatsConcurrency int    `yaml:"stats_concurrency"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol        string `yaml:"protocol"` // "grpc" or "http"
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// Config is the top-level configuration struct.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Index   IndexConfig   `yaml:"index"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

func defaults() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "leveldb",
			DataDir: "./data",
			LevelDB: LevelDBConfig{
				BlockCacheCapacity:  8 * 1024 * 1024, // 8 MiB
				WriteBuffer:         4 * 1024 * 1024, // 4 MiB
				Compression:         "snappy",
				RecoverOnCorruption: true,
			},
		},
		Index: IndexConfig{
			StatsConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			ShutdownTimeout: "5s",
		},
	}
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "leveldb", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch strings.ToLower(c.Store.LevelDB.Compression) {
	case "", "none", "snappy":
	default:
		return fmt.Errorf("unknown leveldb compression %q", c.Store.LevelDB.Compression)
	}
	if c.Tracing.Enabled && c.Tracing.Protocol != "grpc" && c.Tracing.Protocol != "http" {
		return fmt.Errorf("unknown tracing protocol %q", c.Tracing.Protocol)
	}
	if c.Index.StatsConcurrency < 1 {
		return fmt.Errorf("index.stats_concurrency must be positive, got %d", c.Index.StatsConcurrency)
	}
	return nil
}

// ManifestPath returns the configured manifest path, defaulting to a file
// in the data directory.
func (c *Config) ManifestPath() string {
	if c.Index.ManifestPath != "" {
		return c.Index.ManifestPath
	}
	return filepath.Join(c.Store.DataDir, "INDEX_MANIFEST.json")
}

// LevelDBOptions converts the leveldb section into store options.
func (c *Config) LevelDBOptions() leveldb.Options {
	return leveldb.Options{
		BlockCacheCapacity:  c.Store.LevelDB.BlockCacheCapacity,
		WriteBuffer:         c.Store.LevelDB.WriteBuffer,
		Compression:         c.Store.LevelDB.Compression,
		RecoverOnCorruption: c.Store.LevelDB.RecoverOnCorruption,
	}
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := defaults()

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
