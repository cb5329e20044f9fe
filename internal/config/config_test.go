package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyatra/voyatra/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	require.NoError(t, cfg.Validate())

	assert.Equal(t, "voyatra", cfg.App.Name)
	assert.True(t, cfg.App.IsRealMode())
	assert.False(t, cfg.App.IsMockMode())
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "voyatra", cfg.MongoDB.Database)
	assert.Equal(t, config.DefaultAppendRetries, cfg.Store.AppendRetries)
	assert.Equal(t, config.DefaultQueryLimit, cfg.Store.QueryLimit)
	assert.True(t, cfg.Publisher.Enabled)
	assert.Equal(t, "events:", cfg.Publisher.ChannelPrefix)
	assert.Equal(t, 30*time.Second, cfg.Repair.PollInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromPath_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
app:
  name: voyatra-test
  mode: mock
server:
  port: 9090
mongodb:
  database: voyatra_custom
store:
  append_retries: 5
  query_limit: 50
repair:
  enabled: false
log:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "voyatra-test", cfg.App.Name)
	assert.True(t, cfg.App.IsMockMode())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "voyatra_custom", cfg.MongoDB.Database)
	assert.Equal(t, 5, cfg.Store.AppendRetries)
	assert.Equal(t, 50, cfg.Store.QueryLimit)
	assert.False(t, cfg.Repair.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	// Values the file does not mention keep their defaults.
	assert.Equal(t, config.DefaultHost, cfg.Server.Host)
	assert.Equal(t, "events:", cfg.Publisher.ChannelPrefix)
}

func TestLoadFromPath_MissingExplicitFile(t *testing.T) {
	_, err := config.LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.ErrorIs(t, err, config.ErrConfigNotFound)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("MONGODB_URI", "mongodb://mongo.internal:27017")
	t.Setenv("MONGODB_TIMEOUT", "5s")
	t.Setenv("STORE_APPEND_RETRIES", "7")
	t.Setenv("PUBLISHER_ENABLED", "false")
	t.Setenv("REPAIR_POLL_INTERVAL", "2m")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "mongodb://mongo.internal:27017", cfg.MongoDB.URI)
	assert.Equal(t, 5*time.Second, cfg.MongoDB.Timeout)
	assert.Equal(t, 7, cfg.Store.AppendRetries)
	assert.False(t, cfg.Publisher.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Repair.PollInterval)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_PORT", "6060")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port, "environment must win over the file")
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	t.Setenv("MONGODB_TIMEOUT", "not-a-duration")

	_, err := config.Load()
	require.Error(t, err)
	require.ErrorIs(t, err, config.ErrInvalidDuration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{
			name:    "invalid port",
			mutate:  func(c *config.Config) { c.Server.Port = 0 },
			wantErr: config.ErrConfigInvalid,
		},
		{
			name:    "missing mongodb uri",
			mutate:  func(c *config.Config) { c.MongoDB.URI = "" },
			wantErr: config.ErrConfigInvalid,
		},
		{
			name:    "missing redis addr with publisher enabled",
			mutate:  func(c *config.Config) { c.Redis.Addr = "" },
			wantErr: config.ErrConfigInvalid,
		},
		{
			name: "missing redis addr with publisher disabled is fine",
			mutate: func(c *config.Config) {
				c.Redis.Addr = ""
				c.Publisher.Enabled = false
			},
		},
		{
			name:    "zero append retries",
			mutate:  func(c *config.Config) { c.Store.AppendRetries = 0 },
			wantErr: config.ErrConfigInvalid,
		},
		{
			name:    "zero repair batch size",
			mutate:  func(c *config.Config) { c.Repair.BatchSize = 0 },
			wantErr: config.ErrConfigInvalid,
		},
		{
			name: "repair disabled skips repair validation",
			mutate: func(c *config.Config) {
				c.Repair.Enabled = false
				c.Repair.BatchSize = 0
			},
		},
		{
			name:    "unknown log level",
			mutate:  func(c *config.Config) { c.Log.Level = "verbose" },
			wantErr: config.ErrInvalidLogLevel,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *config.Config) { c.Log.Format = "xml" },
			wantErr: config.ErrInvalidLogFormat,
		},
		{
			name:    "unknown app mode",
			mutate:  func(c *config.Config) { c.App.Mode = "hybrid" },
			wantErr: config.ErrInvalidAppMode,
		},
		{
			name: "mock mode in production",
			mutate: func(c *config.Config) {
				c.App.Mode = config.AppModeMock
				c.App.Environment = "production"
			},
			wantErr: config.ErrMockModeInProd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEnvironmentHelpers(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.App.Environment = "Production"
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
