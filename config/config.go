package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Environment variable names that override values read from the YAML file.
const (
	EnvConfigPath   = "ROUTEPLANNER_CONFIG"
	EnvBackendURL   = "ROUTEPLANNER_BACKEND_URL"
	EnvBackendImage = "ROUTEPLANNER_BACKEND_IMAGE"
	EnvFrontendURL  = "ROUTEPLANNER_FRONTEND_URL"
	EnvBrowser      = "BROWSER"
	EnvHeadful      = "HEADFUL"
	EnvLogLevel     = "LOG_LEVEL"
)

const (
	DefaultBackendURL  = "http://localhost:8080"
	DefaultRoutesPath  = "/api/routes"
	DefaultFrontendURL = "http://localhost:5173"
	DefaultBatchSize   = 5
	DefaultPageSize    = 100
)

// Backend mode values.
const (
	BackendExternal  = "external"
	BackendContainer = "container"
	BackendStub      = "stub"
)

// Backend describes how the routes REST backend is reached.
type Backend struct {
	BaseURL    string `yaml:"base_url"`
	RoutesPath string `yaml:"routes_path"`
	// Timeout of 0 leaves the HTTP client without a deadline.
	Timeout time.Duration `yaml:"timeout"`
	// Mode is one of external, container or stub. Empty means external.
	// The stub serves from this process on a random port, so it is only
	// usable when the frontend's /api/routes traffic is mocked as well
	// (frontend.skip_wait).
	Mode  string            `yaml:"mode"`
	Image string            `yaml:"image"`
	Port  int               `yaml:"port"`
	Env   map[string]string `yaml:"env"`
	// Database enables a PostgreSQL container for the backend in container mode.
	Database bool `yaml:"database"`
}

// Frontend is the route planner UI under test.
type Frontend struct {
	BaseURL string `yaml:"base_url"`
	// SkipWait disables the readiness check (useful when the UI is fully mocked).
	SkipWait bool `yaml:"skip_wait"`
}

// Cleanup tunes the route cleanup utility.
type Cleanup struct {
	BatchSize         int     `yaml:"batch_size"`
	PageSize          int     `yaml:"page_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type Browser struct {
	Name     string `yaml:"name"`
	Headless bool   `yaml:"headless"`
}

type Artifacts struct {
	Dir string `yaml:"dir"`
}

// Config is the full harness configuration.
type Config struct {
	Backend   Backend   `yaml:"backend"`
	Frontend  Frontend  `yaml:"frontend"`
	Cleanup   Cleanup   `yaml:"cleanup"`
	Browser   Browser   `yaml:"browser"`
	Artifacts Artifacts `yaml:"artifacts"`
	LogLevel  string    `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Backend: Backend{
			BaseURL:    DefaultBackendURL,
			RoutesPath: DefaultRoutesPath,
			Mode:       BackendExternal,
			Port:       8080,
		},
		Frontend: Frontend{BaseURL: DefaultFrontendURL},
		Cleanup: Cleanup{
			BatchSize: DefaultBatchSize,
			PageSize:  DefaultPageSize,
		},
		Browser:   Browser{Name: "chromium", Headless: true},
		Artifacts: Artifacts{Dir: "artifacts"},
		LogLevel:  "info",
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result for a full test run. An empty path
// falls back to ROUTEPLANNER_CONFIG; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBackend is Load for tools that only talk to the routes backend. The
// frontend and browser settings are not validated.
func LoadBackend(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateBackend(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.loadEnv()
	return cfg, nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv(EnvBackendImage); v != "" {
		c.Backend.Image = v
		c.Backend.Mode = BackendContainer
	}
	if v := os.Getenv(EnvFrontendURL); v != "" {
		c.Frontend.BaseURL = v
	}
	if v := os.Getenv(EnvBrowser); v != "" {
		c.Browser.Name = v
	}
	if v := os.Getenv(EnvHeadful); v != "" {
		if headful, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = !headful
		} else {
			c.Browser.Headless = false
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate fills derived defaults and rejects values a test run cannot
// work with.
func (c *Config) Validate() error {
	if err := c.ValidateBackend(); err != nil {
		return err
	}
	if err := checkURL("frontend.base_url", c.Frontend.BaseURL); err != nil {
		return err
	}
	// A real frontend calls its own backend and never reaches the stub.
	if c.Backend.Mode == BackendStub && !c.Frontend.SkipWait {
		return fmt.Errorf("backend.mode %s requires frontend.skip_wait: the frontend must be fully mocked", BackendStub)
	}
	return nil
}

// ValidateBackend fills derived defaults and checks the backend, cleanup and
// logging settings only.
func (c *Config) ValidateBackend() error {
	if c.Backend.Mode == "" {
		c.Backend.Mode = BackendExternal
	}
	if c.Backend.RoutesPath == "" {
		c.Backend.RoutesPath = DefaultRoutesPath
	}
	if !strings.HasPrefix(c.Backend.RoutesPath, "/") {
		c.Backend.RoutesPath = "/" + c.Backend.RoutesPath
	}

	switch c.Backend.Mode {
	case BackendExternal:
		if err := checkURL("backend.base_url", c.Backend.BaseURL); err != nil {
			return err
		}
	case BackendContainer:
		if c.Backend.Image == "" {
			return fmt.Errorf("backend.image is required in %s mode", BackendContainer)
		}
		if c.Backend.Port <= 0 {
			return fmt.Errorf("backend.port must be positive")
		}
	case BackendStub:
	default:
		return fmt.Errorf("unknown backend.mode %q", c.Backend.Mode)
	}

	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout cannot be negative")
	}
	if c.Cleanup.BatchSize < 1 {
		return fmt.Errorf("cleanup.batch_size must be positive")
	}
	if c.Cleanup.PageSize < 1 {
		return fmt.Errorf("cleanup.page_size must be positive")
	}
	if c.Cleanup.RequestsPerSecond < 0 {
		return fmt.Errorf("cleanup.requests_per_second cannot be negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// RoutesURL is the absolute URL of the routes collection.
func (c *Config) RoutesURL() string {
	return strings.TrimRight(c.Backend.BaseURL, "/") + c.Backend.RoutesPath
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: missing host", key, raw)
	}
	return nil
}

// NewLogger builds the zap logger used by the harness and the CLI.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	zapCfg.DisableStacktrace = true
	return zapCfg.Build()
}
