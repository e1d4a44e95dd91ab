//go:build e2e

package e2e

import (
	"context"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/routeplanner/e2e/cleanup"
	"github.com/routeplanner/e2e/config"
	"github.com/routeplanner/e2e/env"
	"go.uber.org/zap"
)

// Populated by TestMain once the environment is up.
var (
	cfg         *config.Config
	logger      *zap.Logger
	pw          *playwright.Playwright
	frontendURL string
	backendURL  string
	tracker     *cleanup.Tracker
	routes      *cleanup.Client
	cleaner     *cleanup.Cleaner
)

func TestMain(m *testing.M) {
	os.Exit(runSuite(m))
}

func runSuite(m *testing.M) int {
	var err error
	cfg, err = config.Load("")
	if err != nil {
		log.Printf("FATAL: failed to load config: %v", err)
		return 1
	}
	logger, err = config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Printf("FATAL: failed to create logger: %v", err)
		return 1
	}
	defer logger.Sync()

	envs := env.NewEnvs(logger)
	envs.Register(
		env.NewPlaywrightEnv(logger, cfg.Browser.Name),
		env.NewBackendEnv(cfg.Backend, logger),
		env.NewFrontendEnv(cfg.Frontend, logger),
	)
	if cfg.Backend.Mode == config.BackendContainer && cfg.Backend.Database {
		envs.Register(env.NewDatabaseEnv(logger))
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := envs.Execute(setupCtx); err != nil {
		logger.Error("Test environment setup failed", zap.Error(err))
		return 1
	}
	defer envs.StopAll()

	frontendURL = envs.GetURL(env.FrontendComponentName)
	backendURL = envs.GetURL(env.BackendComponentName)
	if p, ok := envs.GetDetails(env.PlaywrightComponentName).(*playwright.Playwright); ok {
		pw = p
	} else {
		logger.Error("Playwright instance not available")
		return 1
	}

	for _, name := range envs.Names() {
		logger.Info("Component startup time", zap.String("component", name), zap.Duration("took", envs.GetStartDuration(name)))
	}

	routes, err = cleanup.NewClient(backendURL, cleanup.ClientOptions{
		RoutesPath:        cfg.Backend.RoutesPath,
		HTTPClient:        &http.Client{Timeout: cfg.Backend.Timeout},
		BatchSize:         cfg.Cleanup.BatchSize,
		PageSize:          cfg.Cleanup.PageSize,
		RequestsPerSecond: cfg.Cleanup.RequestsPerSecond,
	}, logger)
	if err != nil {
		logger.Error("Failed to create routes client", zap.Error(err))
		return 1
	}
	tracker = cleanup.NewTracker(logger)
	cleaner = cleanup.NewCleaner(tracker, routes, logger)

	logger.Info("Running tests", zap.String("frontend", frontendURL), zap.String("backend", backendURL))
	code := m.Run()

	// Global teardown: cleanup is advisory and never changes the exit code.
	cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), time.Minute)
	defer cancelCleanup()
	result := cleaner.CleanupTestRoutes(cleanupCtx)
	logger.Info("Test route cleanup finished",
		zap.Int("deleted", len(result.Success)),
		zap.Int("failed", len(result.Failed)))

	return code
}
