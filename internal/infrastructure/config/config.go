// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for libris configuration.
	DefaultConfigDir = ".libris"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultEnvFile is loaded from the base path before the config file.
	DefaultEnvFile = ".env"
)

// Environment variables that override the config file.
const (
	EnvDBPath    = "LIBRIS_DB_PATH"
	EnvBackupDir = "LIBRIS_BACKUP_DIR"
	EnvLogLevel  = "LIBRIS_LOG_LEVEL"
	EnvActor     = "LIBRIS_ACTOR"
)

// Compression modes for snapshot files.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	SQLite  SQLiteConfig  `yaml:"sqlite,omitempty"`
	Backup  BackupConfig  `yaml:"backup,omitempty"`
	Revert  RevertConfig  `yaml:"revert,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	// Actor is recorded on every log record when --actor is not given.
	Actor string `yaml:"actor,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite relational database.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database, or ":memory:".
	Path string `yaml:"path,omitempty"`
}

// BackupConfig configures the snapshot facility.
type BackupConfig struct {
	// Dir is where snapshots are written, in YYYY/MM subdirectories.
	Dir string `yaml:"dir,omitempty"`
	// Format of the dump. Only "json" is supported.
	Format string `yaml:"format,omitempty"`
	// Compression is "none" or "zstd".
	Compression string `yaml:"compression,omitempty"`
	// Collections are dumped and flushed in this order.
	Collections []string `yaml:"collections,omitempty"`
	// MaxFlushRetries bounds the retries of collections blocked by foreign keys.
	MaxFlushRetries int `yaml:"max_flush_retries,omitempty"`
	// BulkDeleteThreshold is the batch size above which a bulk delete takes a snapshot first.
	BulkDeleteThreshold int `yaml:"bulk_delete_threshold,omitempty"`
}

// RevertConfig configures the reversion engine.
type RevertConfig struct {
	SnapshotEveryRevert bool `yaml:"snapshot_every_revert,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives the metrics in Prometheus text format after each command.
	Textfile string `yaml:"textfile,omitempty"`
}

// DefaultCollections lists the tracked collections in dump/flush order.
var DefaultCollections = []string{"subjects", "books", "book_instances", "readers", "reader_books"}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		SQLite: SQLiteConfig{
			Path: filepath.Join(DefaultConfigDir, "libris.db"),
		},
		Backup: BackupConfig{
			Dir:                 filepath.Join(DefaultConfigDir, "backups"),
			Format:              "json",
			Compression:         CompressionZstd,
			Collections:         append([]string(nil), DefaultCollections...),
			MaxFlushRetries:     50,
			BulkDeleteThreshold: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the .libris directory in the given path.
// A .env file in basePath is loaded first; relative paths are resolved
// against basePath.
func Load(basePath string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(basePath, DefaultEnvFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", DefaultEnvFile, err)
	}

	configFile := ConfigFilePath(basePath)
	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'libris init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(basePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.SQLite.Path = v
	}
	if v := os.Getenv(EnvBackupDir); v != "" {
		c.Backup.Dir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvActor); v != "" {
		c.Actor = v
	}
}

func (c *Config) resolvePaths(basePath string) {
	resolve := func(p string) string {
		if p == "" || p == ":memory:" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(basePath, p)
	}
	c.SQLite.Path = resolve(c.SQLite.Path)
	c.Backup.Dir = resolve(c.Backup.Dir)
	c.Metrics.Textfile = resolve(c.Metrics.Textfile)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.SQLite.Path == "" {
		return errors.New("sqlite.path is required")
	}
	if c.Backup.Dir == "" {
		return errors.New("backup.dir is required")
	}
	if c.Backup.Format != "" && c.Backup.Format != "json" {
		return fmt.Errorf("backup.format %q is not supported", c.Backup.Format)
	}
	switch c.Backup.Compression {
	case "", CompressionNone, CompressionZstd:
	default:
		return fmt.Errorf("backup.compression must be %q or %q, got %q", CompressionNone, CompressionZstd, c.Backup.Compression)
	}
	if len(c.Backup.Collections) == 0 {
		return errors.New("backup.collections must not be empty")
	}
	if c.Backup.MaxFlushRetries < 0 {
		return errors.New("backup.max_flush_retries must not be negative")
	}
	if c.Backup.BulkDeleteThreshold < 0 {
		return errors.New("backup.bulk_delete_threshold must not be negative")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ConfigDir returns the path to the .libris config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}
