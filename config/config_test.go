package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/routeplanner/e2e/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
	assert.Equal(t, "/api/routes", cfg.Backend.RoutesPath)
	assert.Equal(t, config.BackendExternal, cfg.Backend.Mode)
	assert.Equal(t, 5, cfg.Cleanup.BatchSize)
	assert.Zero(t, cfg.Backend.Timeout)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "http://localhost:8080/api/routes", cfg.RoutesURL())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://backend.test:9090/
  routes_path: v2/routes
  timeout: 15s
cleanup:
  batch_size: 3
  requests_per_second: 20
browser:
  name: firefox
log_level: debug
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/v2/routes", cfg.Backend.RoutesPath)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 3, cfg.Cleanup.BatchSize)
	assert.Equal(t, 100, cfg.Cleanup.PageSize, "unset keys keep their defaults")
	assert.InDelta(t, 20.0, cfg.Cleanup.RequestsPerSecond, 0.001)
	assert.Equal(t, "firefox", cfg.Browser.Name)
	assert.Equal(t, "http://backend.test:9090/v2/routes", cfg.RoutesURL())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: http://from-file:8080\n")
	t.Setenv(config.EnvBackendURL, "http://from-env:7070")
	t.Setenv(config.EnvFrontendURL, "http://ui.test:3000")
	t.Setenv(config.EnvHeadful, "1")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:7070", cfg.Backend.BaseURL)
	assert.Equal(t, "http://ui.test:3000", cfg.Frontend.BaseURL)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoad_BackendImageSwitchesToContainerMode(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvBackendImage, "ghcr.io/example/route-backend:latest")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.BackendContainer, cfg.Backend.Mode)
	assert.Equal(t, "ghcr.io/example/route-backend:latest", cfg.Backend.Image)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "backend: [unterminated"},
		{"bad scheme", "backend:\n  base_url: ftp://x\n"},
		{"zero batch", "cleanup:\n  batch_size: 0\n"},
		{"unknown mode", "backend:\n  mode: magic\n"},
		{"container without image", "backend:\n  mode: container\n"},
		{"bad log level", "log_level: loud\n"},
		{"bad frontend url", "frontend:\n  base_url: localhost:5173\n"},
		{"stub with real frontend", "backend:\n  mode: stub\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_StubModeWithMockedFrontend(t *testing.T) {
	t.Setenv(config.EnvBackendImage, "")
	cfg, err := config.Load(writeConfig(t, "backend:\n  mode: stub\nfrontend:\n  skip_wait: true\n"))
	require.NoError(t, err)
	assert.Equal(t, config.BackendStub, cfg.Backend.Mode)
}

func TestLoadBackend_IgnoresFrontendSettings(t *testing.T) {
	t.Setenv(config.EnvBackendURL, "")
	t.Setenv(config.EnvFrontendURL, "::not a url")

	_, err := config.Load(writeConfig(t, ""))
	require.Error(t, err)

	cfg, err := config.LoadBackend(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/routes", cfg.RoutesURL())

	_, err = config.LoadBackend(writeConfig(t, "cleanup:\n  batch_size: 0\n"))
	assert.Error(t, err, "backend and cleanup keys are still validated")
}

func TestNewLogger(t *testing.T) {
	logger, err := config.NewLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel), "debug must be disabled at warn level")

	_, err = config.NewLogger("nope")
	assert.Error(t, err)
}
