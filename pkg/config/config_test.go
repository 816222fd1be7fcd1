package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	assert.Equal(t, int64(50<<20), Default().Assets.MaxUploadBytes)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stepwise.yaml")
	err := os.WriteFile(path, []byte(`
log_mode: prod
server:
  addr: ":9090"
  session_ttl: 2h
layout:
  strategy: hierarchical
assets:
  max_upload_bytes: 1024
`), 0o600)
	require.NoError(t, err)

	t.Setenv("STEPWISE_SERVER_ADDR", ":7070")
	t.Setenv("STEPWISE_TESSELLATE_CELLS", "32")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Server.SessionTTL)
	assert.Equal(t, "hierarchical", cfg.Layout.Strategy)
	assert.Equal(t, int64(1024), cfg.Assets.MaxUploadBytes)
	assert.Equal(t, 32, cfg.Tessellate.Cells)
	// untouched defaults survive
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMissingEnvFileFallsBack(t *testing.T) {
	t.Setenv(EnvPath, filepath.Join(t.TempDir(), "nope.yaml"))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"strategy", func(c *Config) { c.Layout.Strategy = "radial" }},
		{"upload limit", func(c *Config) { c.Assets.MaxUploadBytes = 0 }},
		{"cells", func(c *Config) { c.Tessellate.Cells = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
