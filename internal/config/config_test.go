package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sergimayol/sqlite-virtual-url/internal/catalog"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	require.NoError(t, cfg.Validate())

	mode, err := cfg.StorageMode()
	require.NoError(t, err)
	assert.Equal(t, catalog.ModeSQLite, mode)
	assert.Equal(t, filepath.Join("./data/urlvtab", "cache.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, filepath.Join("./data/urlvtab", "objects"), cfg.Storage.Object.Path)
	assert.False(t, cfg.Fetch.AllowLocal)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown mode", func(c *Config) { c.Storage.Mode = "DISK" }},
		{"unknown object type", func(c *Config) { c.Storage.Object.Type = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Object.Type = "s3" }},
		{"negative timeout", func(c *Config) { c.Fetch.Timeout = -time.Second }},
		{"negative cache", func(c *Config) { c.Fetch.CacheBytes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Storage.Mode = " mem "
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urlvtab.yaml")
	content := `data_dir: /tmp/urlvtab
reader:
  sample_rows: 50
storage:
  mode: OBJECT
  batch_size: 200
  object:
    type: s3
    s3:
      bucket: snapshots
fetch:
  timeout: 5s
http:
  addr: ":9999"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/urlvtab", cfg.DataDir)
	assert.Equal(t, 50, cfg.Reader.SampleRows)
	assert.Equal(t, "OBJECT", cfg.Storage.Mode)
	assert.Equal(t, 200, cfg.Storage.BatchSize)
	assert.Equal(t, "s3", cfg.Storage.Object.Type)
	assert.Equal(t, "snapshots", cfg.Storage.Object.S3.Bucket)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	// untouched sections keep their defaults
	assert.Equal(t, ":9090", cfg.GRPC.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urlvtab.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"storage": {"mode": "MEM"}, "grpc": {"enabled": false}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "MEM", cfg.Storage.Mode)
	assert.False(t, cfg.GRPC.Enabled)
	assert.True(t, cfg.Fetch.AllowLocal)
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	toml := filepath.Join(dir, "urlvtab.toml")
	require.NoError(t, os.WriteFile(toml, []byte("x = 1"), 0644))
	_, err = LoadFromFile(toml)
	assert.ErrorContains(t, err, "unsupported config file format")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("reader: [unclosed"), 0644))
	_, err = LoadFromFile(bad)
	assert.ErrorContains(t, err, "failed to parse YAML config")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("URLVTAB_DATA_DIR", "/srv/urlvtab")
	t.Setenv("URLVTAB_READER_SAMPLE_ROWS", "0")
	t.Setenv("URLVTAB_STORAGE_MODE", "MEM")
	t.Setenv("URLVTAB_STORAGE_BATCH_SIZE", "not-a-number")
	t.Setenv("URLVTAB_S3_REGION", "eu-west-1")
	t.Setenv("URLVTAB_FETCH_TIMEOUT", "2s")
	t.Setenv("URLVTAB_FETCH_CACHE_BYTES", "1024")
	t.Setenv("URLVTAB_GRPC_ENABLED", "0")
	t.Setenv("URLVTAB_FETCH_ALLOW_LOCAL", "true")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, "/srv/urlvtab", cfg.DataDir)
	assert.Equal(t, 0, cfg.Reader.SampleRows)
	assert.Equal(t, "MEM", cfg.Storage.Mode)
	assert.Equal(t, catalog.DefaultBatchSize, cfg.Storage.BatchSize)
	assert.Equal(t, "eu-west-1", cfg.Storage.Object.S3.Region)
	assert.Equal(t, "eu-west-1", cfg.Fetch.S3.Region)
	assert.Equal(t, 2*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(1024), cfg.Fetch.CacheBytes)
	assert.False(t, cfg.GRPC.Enabled)
	assert.True(t, cfg.Fetch.AllowLocal)
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.Storage.SQLitePath = filepath.Join(root, "db", "cache.db")
	cfg.Resolve()

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{cfg.DataDir, filepath.Join(root, "db"), cfg.Storage.Object.Path} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}
