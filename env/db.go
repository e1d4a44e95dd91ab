package env

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gopkg.in/cenkalti/backoff.v1"
)

const DatabaseComponentName = "database"

const (
	databaseAlias    = "postgres"
	databaseName     = "routes"
	databaseUser     = "postgres"
	databasePassword = "password"
)

// DatabaseDetails tells the backend container how to reach PostgreSQL.
type DatabaseDetails struct {
	// DSN is reachable from the test process.
	DSN string
	// InternalDSN is reachable from containers on Network.
	InternalDSN string
	// JDBCURL is InternalDSN in JDBC form for JVM backends.
	JDBCURL  string
	User     string
	Password string
	Network  string
}

// DatabaseEnv runs the PostgreSQL container backing the routes backend.
type DatabaseEnv struct {
	BaseEnv
	logger       *zap.Logger
	container    testcontainers.Container
	network      *testcontainers.DockerNetwork
	details      DatabaseDetails
	containerMux sync.RWMutex
}

func NewDatabaseEnv(logger *zap.Logger) *DatabaseEnv {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabaseEnv{
		BaseEnv: BaseEnv{name: DatabaseComponentName},
		logger:  logger.Named(DatabaseComponentName),
	}
}

// Start creates a dedicated network, launches PostgreSQL on it and waits
// until the database accepts connections.
func (e *DatabaseEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	resultChan := make(chan error, 1)

	go func() {
		defer close(resultChan)

		nw, err := network.New(ctx)
		if err != nil {
			resultChan <- fmt.Errorf("failed to create container network: %w", err)
			return
		}

		req := testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     databaseUser,
				"POSTGRES_PASSWORD": databasePassword,
				"POSTGRES_DB":       databaseName,
			},
			Networks:       []string{nw.Name},
			NetworkAliases: map[string][]string{nw.Name: {databaseAlias}},
			WaitingFor:     wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		}

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			_ = nw.Remove(context.Background())
			if ctx.Err() != nil {
				resultChan <- fmt.Errorf("context cancelled during container start: %w", ctx.Err())
				return
			}
			resultChan <- fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		fail := func(err error) {
			_ = container.Terminate(context.Background())
			_ = nw.Remove(context.Background())
			resultChan <- err
		}

		host, err := container.Host(ctx)
		if err != nil {
			fail(fmt.Errorf("failed to get container host: %w", err))
			return
		}
		mappedPort, err := container.MappedPort(ctx, "5432")
		if err != nil {
			fail(fmt.Errorf("failed to get mapped port: %w", err))
			return
		}

		details := DatabaseDetails{
			DSN: fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
				databaseUser, databasePassword, host, mappedPort.Port(), databaseName),
			InternalDSN: fmt.Sprintf("postgresql://%s:%s@%s:5432/%s?sslmode=disable",
				databaseUser, databasePassword, databaseAlias, databaseName),
			JDBCURL:  fmt.Sprintf("jdbc:postgresql://%s:5432/%s", databaseAlias, databaseName),
			User:     databaseUser,
			Password: databasePassword,
			Network:  nw.Name,
		}

		if err := pingDatabase(ctx, details.DSN, 30*time.Second); err != nil {
			fail(err)
			return
		}

		e.containerMux.Lock()
		e.container = container
		e.network = nw
		e.details = details
		e.containerMux.Unlock()

		e.logger.Info("PostgreSQL container started", zap.String("dsn", details.DSN))
		resultChan <- nil
	}()

	return resultChan
}

// pingDatabase retries until PostgreSQL answers a ping. The listening
// port opens before the server accepts queries.
func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = timeout

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (e *DatabaseEnv) Stop() error {
	e.containerMux.Lock()
	container, nw := e.container, e.network
	e.container, e.network = nil, nil
	e.containerMux.Unlock()

	if container != nil {
		if err := container.Terminate(context.Background()); err != nil {
			return fmt.Errorf("failed to stop %s container: %w", e.Name(), err)
		}
	}
	if nw != nil {
		if err := nw.Remove(context.Background()); err != nil {
			return fmt.Errorf("failed to remove %s network: %w", e.Name(), err)
		}
	}
	return nil
}

// URL returns the DSN usable from the test process.
func (e *DatabaseEnv) URL() string {
	e.containerMux.RLock()
	defer e.containerMux.RUnlock()
	return e.details.DSN
}

// GetDetails returns DatabaseDetails once started.
func (e *DatabaseEnv) GetDetails() interface{} {
	e.containerMux.RLock()
	defer e.containerMux.RUnlock()
	if e.container == nil {
		return nil
	}
	return e.details
}
