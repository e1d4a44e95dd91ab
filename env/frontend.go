package env

import (
	"context"
	"strings"
	"time"

	"github.com/routeplanner/e2e/config"
	"go.uber.org/zap"
)

const FrontendComponentName = "frontend"

// FrontendEnv waits for the route planner UI. The UI itself is started
// outside the suite.
type FrontendEnv struct {
	BaseEnv
	cfg    config.Frontend
	logger *zap.Logger
}

func NewFrontendEnv(cfg config.Frontend, logger *zap.Logger) *FrontendEnv {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrontendEnv{
		BaseEnv: BaseEnv{name: FrontendComponentName},
		cfg:     cfg,
		logger:  logger.Named(FrontendComponentName),
	}
}

// Configure makes the frontend wait for the backend so the UI does not
// render API errors on first load.
func (e *FrontendEnv) Configure(envs *Envs) ([]string, error) {
	if _, ok := envs.GetComponent(BackendComponentName); ok {
		return []string{BackendComponentName}, nil
	}
	return []string{}, nil
}

func (e *FrontendEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	resultChan := make(chan error, 1)
	go func() {
		defer close(resultChan)
		if e.cfg.SkipWait {
			e.logger.Info("Skipping frontend readiness check", zap.String("url", e.URL()))
			resultChan <- nil
			return
		}
		resultChan <- waitForServer(ctx, e.logger, e.URL(), 2*time.Minute)
	}()
	return resultChan
}

func (e *FrontendEnv) URL() string {
	return strings.TrimRight(e.cfg.BaseURL, "/")
}
