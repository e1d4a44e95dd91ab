package env

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/routeplanner/e2e/config"
	"github.com/routeplanner/e2e/stubbackend"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const BackendComponentName = "backend"

// BackendEnv provides the routes REST backend. Depending on the configured
// mode it waits for an external server, runs a container image, or serves
// the in-memory stub from this process.
//
// The stub listens on a random local port that only this process knows. A
// real frontend keeps calling its own backend, so stub mode is only useful
// when every /api/routes request of the page is mocked; config.Validate
// rejects it unless frontend.skip_wait is set.
type BackendEnv struct {
	BaseEnv
	cfg    config.Backend
	logger *zap.Logger

	mu        sync.RWMutex
	url       string
	container testcontainers.Container
	stub      *stubbackend.Server
	stubAddr  string
}

func NewBackendEnv(cfg config.Backend, logger *zap.Logger) *BackendEnv {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackendEnv{
		BaseEnv: BaseEnv{name: BackendComponentName},
		cfg:     cfg,
		logger:  logger.Named(BackendComponentName).With(zap.String("mode", cfg.Mode)),
	}
}

func (e *BackendEnv) Configure(envs *Envs) ([]string, error) {
	switch e.cfg.Mode {
	case config.BackendExternal, "":
		e.setURL(strings.TrimRight(e.cfg.BaseURL, "/"))
		return []string{}, nil
	case config.BackendContainer:
		if e.cfg.Database {
			return []string{DatabaseComponentName}, nil
		}
		return []string{}, nil
	case config.BackendStub:
		port, err := envs.GetFreePort()
		if err != nil {
			return nil, err
		}
		e.stubAddr = fmt.Sprintf("127.0.0.1:%d", port)
		e.setURL("http://" + e.stubAddr)
		return []string{}, nil
	default:
		return nil, fmt.Errorf("unknown backend mode %q", e.cfg.Mode)
	}
}

func (e *BackendEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	resultChan := make(chan error, 1)

	go func() {
		defer close(resultChan)
		switch e.cfg.Mode {
		case config.BackendContainer:
			resultChan <- e.startContainer(ctx, envs)
		case config.BackendStub:
			resultChan <- e.startStub()
		default:
			resultChan <- waitForServer(ctx, e.logger, e.URL()+e.cfg.RoutesPath, 60*time.Second)
		}
	}()

	return resultChan
}

func (e *BackendEnv) startStub() error {
	stub := stubbackend.New(e.logger, stubbackend.WithRoutesPath(e.cfg.RoutesPath))
	url, err := stub.Start(e.stubAddr)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.stub = stub
	e.url = url
	e.mu.Unlock()
	return nil
}

func (e *BackendEnv) startContainer(ctx context.Context, envs *Envs) error {
	port := nat.Port(fmt.Sprintf("%d/tcp", e.cfg.Port))
	containerEnv := make(map[string]string, len(e.cfg.Env)+5)

	req := testcontainers.ContainerRequest{
		Image:        e.cfg.Image,
		ExposedPorts: []string{string(port)},
		WaitingFor: wait.ForHTTP(e.cfg.RoutesPath).
			WithPort(port).
			WithStartupTimeout(3 * time.Minute),
	}

	if e.cfg.Database {
		db, ok := envs.GetDetails(DatabaseComponentName).(DatabaseDetails)
		if !ok {
			return fmt.Errorf("database details not available")
		}
		containerEnv["DATABASE_URL"] = db.InternalDSN
		containerEnv["SPRING_DATASOURCE_URL"] = db.JDBCURL
		containerEnv["SPRING_DATASOURCE_USERNAME"] = db.User
		containerEnv["SPRING_DATASOURCE_PASSWORD"] = db.Password
		req.Networks = []string{db.Network}
	}
	// Explicit configuration wins over derived values.
	for k, v := range e.cfg.Env {
		containerEnv[k] = v
	}
	req.Env = containerEnv

	e.logger.Info("Starting backend container", zap.String("image", e.cfg.Image))
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled during container start: %w", ctx.Err())
		}
		return fmt.Errorf("failed to start backend container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return fmt.Errorf("failed to get backend host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(context.Background())
		return fmt.Errorf("failed to get backend port: %w", err)
	}

	e.mu.Lock()
	e.container = container
	e.url = fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
	e.mu.Unlock()

	e.logger.Info("Backend container started", zap.String("url", e.URL()))
	return nil
}

func (e *BackendEnv) Stop() error {
	e.mu.Lock()
	container, stub := e.container, e.stub
	e.container, e.stub = nil, nil
	e.mu.Unlock()

	if container != nil {
		if err := container.Terminate(context.Background()); err != nil {
			return fmt.Errorf("failed to stop %s container: %w", e.Name(), err)
		}
	}
	if stub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stub.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop %s stub: %w", e.Name(), err)
		}
	}
	return nil
}

func (e *BackendEnv) setURL(url string) {
	e.mu.Lock()
	e.url = url
	e.mu.Unlock()
}

// URL returns the backend base URL (without the routes path).
func (e *BackendEnv) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.url
}

// GetDetails returns the *stubbackend.Server in stub mode, nil otherwise.
func (e *BackendEnv) GetDetails() interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stub == nil {
		return nil
	}
	return e.stub
}
