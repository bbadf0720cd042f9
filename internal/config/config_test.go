package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "./pereval.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.DBBusyTimeout)
	assert.Equal(t, 15*time.Second, cfg.OpTimeout)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "@daily", cfg.OptimizeSchedule)
	assert.Equal(t, 50, cfg.Log.MaxSizeMB)
	assert.True(t, cfg.Log.Compress)
	assert.Nil(t, cfg.AllowedNet())
	assert.Equal(t, ":8001", cfg.Addr())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FSTR_DB_PATH", "/var/lib/pereval/pereval.db")
	t.Setenv("FSTR_OP_TIMEOUT", "2s")
	t.Setenv("PORT", "9000")
	t.Setenv("FSTR_BIND", "127.0.0.1")
	t.Setenv("FSTR_ALLOW_SUBNET", "10.0.0.0/8")
	t.Setenv("FSTR_LOG_COMPRESS", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pereval/pereval.db", cfg.DBPath)
	assert.Equal(t, 2*time.Second, cfg.OpTimeout)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.False(t, cfg.Log.Compress)
	require.NotNil(t, cfg.AllowedNet())
	assert.Equal(t, "10.0.0.0/8", cfg.AllowedNet().String())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DotenvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FSTR_LOG_LEVEL=debug\nFSTR_DB_BUSY_TIMEOUT=9s\n"), 0o600))
	t.Setenv("FSTR_LOG_LEVEL", "warn")
	// restored on cleanup after the dotenv file sets it
	t.Setenv("FSTR_DB_BUSY_TIMEOUT", "")
	require.NoError(t, os.Unsetenv("FSTR_DB_BUSY_TIMEOUT"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 9*time.Second, cfg.DBBusyTimeout)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("PORT", "eighty")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{DBPath: "p.db", Port: 8001, LogLevel: "info"}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty db path", mutate: func(c *Config) { c.DBPath = "" }},
		{name: "port zero", mutate: func(c *Config) { c.Port = 0 }},
		{name: "port too large", mutate: func(c *Config) { c.Port = 70000 }},
		{name: "bad bind", mutate: func(c *Config) { c.Bind = "localhost" }},
		{name: "bad subnet", mutate: func(c *Config) { c.AllowSubnet = "10.0.0.0" }},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "verbose" }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
