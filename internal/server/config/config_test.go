package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 3001, cfg.MetricsPort)
	assert.Equal(t, "*", cfg.CorsOrigin)
	assert.Equal(t, 100, cfg.SingleFileLimitMB)
	assert.Equal(t, "memory", cfg.CacheStrategy)
	assert.Equal(t, "file_cache", cfg.CacheDir)
	assert.Equal(t, "files", cfg.LocalStorageDir)
}

func TestLoadConfig_EnvOverlay(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGIN", "https://a.example,https://b.example")
	t.Setenv("STORAGE_PROVIDER", "local")
	t.Setenv("CACHE_STRATEGY", "hybrid")
	t.Setenv("CACHE_MEMORY_LIMIT_MB", "64")
	t.Setenv("CACHE_DISK_LIMIT_MB", "512")
	t.Setenv("LOCAL_STORAGE_DIR", "/var/lib/cipherdrop")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://a.example,https://b.example", cfg.CorsOrigin)
	assert.Equal(t, "local", cfg.StorageProvider)
	assert.Equal(t, "hybrid", cfg.CacheStrategy)
	assert.Equal(t, 64, cfg.CacheMemoryLimitMB)
	assert.Equal(t, 512, cfg.CacheDiskLimitMB)
	assert.Equal(t, "/var/lib/cipherdrop", cfg.LocalStorageDir)
}

func TestLoadConfig_InvalidIntKeepsDefault(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadConfig_SingleFileLimitClamped(t *testing.T) {
	t.Setenv("SINGLE_FILE_LIMIT_MB", "1024")

	cfg := LoadConfig()

	assert.Equal(t, MaxSingleFileLimitMB, cfg.SingleFileLimitMB)
}
