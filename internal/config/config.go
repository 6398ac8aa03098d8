// Package config provides unified configuration for the urlvtab tools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sergimayol/sqlite-virtual-url/internal/catalog"
)

// Config holds the unified configuration for the CLI and the query server.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HostDB is the host SQLite database virtual tables are declared in.
	// Empty keeps it in memory.
	HostDB string `json:"host_db" yaml:"host_db"`

	// Reader configuration
	Reader ReaderConfig `json:"reader" yaml:"reader"`

	// Storage configuration for materialized copies
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Fetch configuration for remote payloads
	Fetch FetchConfig `json:"fetch" yaml:"fetch"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`
}

// ReaderConfig holds reader configuration.
type ReaderConfig struct {
	// SampleRows is the number of records used for type inference.
	// Zero or less samples every record.
	SampleRows int `json:"sample_rows" yaml:"sample_rows"`
}

// StorageConfig holds the persisted-copy configuration.
type StorageConfig struct {
	// Mode is the default storage mode: SQLITE, MEM or OBJECT
	Mode string `json:"mode" yaml:"mode"`

	// SQLitePath is the database file holding SQLITE copies
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`

	// BatchSize is the number of rows written per batch
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Object configures the object store behind OBJECT copies
	Object ObjectConfig `json:"object" yaml:"object"`
}

// ObjectConfig holds object storage configuration.
type ObjectConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every snapshot path
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// FetchConfig holds remote fetch configuration.
type FetchConfig struct {
	// Timeout bounds a single HTTP request
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// CacheBytes is the payload cache capacity; zero disables the cache
	CacheBytes int64 `json:"cache_bytes" yaml:"cache_bytes"`

	// S3 configures s3:// URLs
	S3 S3Config `json:"s3" yaml:"s3"`

	// AllowLocal enables file:// URLs and plain filesystem paths
	AllowLocal bool `json:"allow_local" yaml:"allow_local"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP address of the query API
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/urlvtab",
		Reader: ReaderConfig{
			SampleRows: 1000,
		},
		Storage: StorageConfig{
			Mode:      catalog.ModeSQLite.String(),
			BatchSize: catalog.DefaultBatchSize,
			Object: ObjectConfig{
				Type:   "local",
				Prefix: "snapshots",
			},
		},
		Fetch: FetchConfig{
			Timeout:    30 * time.Second,
			CacheBytes: 256 * 1024 * 1024,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/urlvtab"
	}

	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.DataDir, "cache.db")
	}

	if c.Storage.Object.Path == "" {
		c.Storage.Object.Path = filepath.Join(c.DataDir, "objects")
	}

	if c.Storage.BatchSize <= 0 {
		c.Storage.BatchSize = catalog.DefaultBatchSize
	}
}

// StorageMode parses the configured default storage mode.
func (c *Config) StorageMode() (catalog.Mode, error) {
	return catalog.ParseMode(c.Storage.Mode)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if _, err := c.StorageMode(); err != nil {
		return fmt.Errorf("invalid storage mode: %s (must be SQLITE, MEM, or OBJECT)", c.Storage.Mode)
	}

	if c.Storage.Object.Type != "local" && c.Storage.Object.Type != "s3" {
		return fmt.Errorf("invalid object storage type: %s (must be local or s3)", c.Storage.Object.Type)
	}

	if c.Storage.Object.Type == "s3" && c.Storage.Object.S3.Bucket == "" {
		return fmt.Errorf("storage.object.s3.bucket is required when object storage type is s3")
	}

	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must not be negative, got %s", c.Fetch.Timeout)
	}

	if c.Fetch.CacheBytes < 0 {
		return fmt.Errorf("fetch.cache_bytes must not be negative, got %d", c.Fetch.CacheBytes)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the URLVTAB_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("URLVTAB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("URLVTAB_HOST_DB"); v != "" {
		cfg.HostDB = v
	}

	// Reader configuration
	if v := os.Getenv("URLVTAB_READER_SAMPLE_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reader.SampleRows = n
		}
	}

	// Storage configuration
	if v := os.Getenv("URLVTAB_STORAGE_MODE"); v != "" {
		cfg.Storage.Mode = v
	}
	if v := os.Getenv("URLVTAB_STORAGE_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("URLVTAB_STORAGE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.BatchSize = n
		}
	}
	if v := os.Getenv("URLVTAB_OBJECT_TYPE"); v != "" {
		cfg.Storage.Object.Type = v
	}
	if v := os.Getenv("URLVTAB_OBJECT_PATH"); v != "" {
		cfg.Storage.Object.Path = v
	}
	if v := os.Getenv("URLVTAB_S3_BUCKET"); v != "" {
		cfg.Storage.Object.S3.Bucket = v
	}
	if v := os.Getenv("URLVTAB_S3_REGION"); v != "" {
		cfg.Storage.Object.S3.Region = v
		cfg.Fetch.S3.Region = v
	}
	if v := os.Getenv("URLVTAB_S3_ENDPOINT"); v != "" {
		cfg.Storage.Object.S3.Endpoint = v
		cfg.Fetch.S3.Endpoint = v
	}

	// Fetch configuration
	if v := os.Getenv("URLVTAB_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fetch.Timeout = d
		}
	}
	if v := os.Getenv("URLVTAB_FETCH_CACHE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Fetch.CacheBytes = n
		}
	}
	if v := os.Getenv("URLVTAB_FETCH_ALLOW_LOCAL"); v != "" {
		cfg.Fetch.AllowLocal = v == "true" || v == "1"
	}

	// HTTP configuration
	if v := os.Getenv("URLVTAB_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// gRPC configuration
	if v := os.Getenv("URLVTAB_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("URLVTAB_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Storage.SQLitePath),
	}
	if c.HostDB != "" {
		dirs = append(dirs, filepath.Dir(c.HostDB))
	}
	if c.Storage.Object.Type == "local" {
		dirs = append(dirs, c.Storage.Object.Path)
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
