package env

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/routeplanner/e2e/config"
	"github.com/routeplanner/e2e/stubbackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recorder collects start and stop events across fake components.
type recorder struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (r *recorder) start(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, name)
}

func (r *recorder) stop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, name)
}

func (r *recorder) startIndex(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.started {
		if n == name {
			return i
		}
	}
	return -1
}

type fakeEnv struct {
	BaseEnv
	deps     []string
	startErr error
	delay    time.Duration
	rec      *recorder
}

func newFake(rec *recorder, name string, deps ...string) *fakeEnv {
	return &fakeEnv{BaseEnv: BaseEnv{name: name}, deps: deps, rec: rec}
}

func (f *fakeEnv) Configure(envs *Envs) ([]string, error) {
	return f.deps, nil
}

func (f *fakeEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if f.startErr == nil {
			f.rec.start(f.Name())
		}
		ch <- f.startErr
	}()
	return ch
}

func (f *fakeEnv) Stop() error {
	f.rec.stop(f.Name())
	return nil
}

func TestExecuteStartsInDependencyOrder(t *testing.T) {
	rec := &recorder{}
	envs := NewEnvs(zaptest.NewLogger(t))

	db := newFake(rec, "db")
	db.delay = 20 * time.Millisecond
	envs.Register(
		newFake(rec, "frontend", "backend"),
		newFake(rec, "backend", "db"),
		db,
		newFake(rec, "browser"),
	)

	require.NoError(t, envs.Execute(context.Background()))

	assert.Len(t, rec.started, 4)
	assert.Less(t, rec.startIndex("db"), rec.startIndex("backend"))
	assert.Less(t, rec.startIndex("backend"), rec.startIndex("frontend"))
	assert.Positive(t, envs.GetStartDuration("db"))

	envs.StopAll()
	assert.ElementsMatch(t, []string{"db", "backend", "frontend", "browser"}, rec.stopped)
}

func TestExecuteDetectsCycle(t *testing.T) {
	rec := &recorder{}
	envs := NewEnvs(zaptest.NewLogger(t))
	envs.Register(newFake(rec, "a", "b"), newFake(rec, "b", "a"))

	err := envs.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
	assert.Empty(t, rec.started)
}

func TestExecuteRejectsUnknownDependency(t *testing.T) {
	rec := &recorder{}
	envs := NewEnvs(zaptest.NewLogger(t))
	envs.Register(newFake(rec, "backend", "missing"))

	err := envs.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestExecuteStopsStartedComponentsOnFailure(t *testing.T) {
	rec := &recorder{}
	envs := NewEnvs(zaptest.NewLogger(t))

	broken := newFake(rec, "backend", "db")
	broken.startErr = errors.New("image not found")
	envs.Register(newFake(rec, "db"), broken, newFake(rec, "frontend", "backend"))

	err := envs.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "image not found")
	assert.Equal(t, []string{"db"}, rec.started)
	assert.Equal(t, []string{"db"}, rec.stopped)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	rec := &recorder{}
	envs := NewEnvs(zaptest.NewLogger(t))
	envs.Register(newFake(rec, "db"))
	assert.Panics(t, func() { envs.Register(newFake(rec, "db")) })
	assert.Equal(t, []string{"db"}, envs.Names())
}

func TestGetFreePortIsUnique(t *testing.T) {
	envs := NewEnvs(zaptest.NewLogger(t))
	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		port, err := envs.GetFreePort()
		require.NoError(t, err)
		assert.False(t, seen[port], "port %d handed out twice", port)
		seen[port] = true
	}
}

func TestBackendEnvStubMode(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := config.Default()
	cfg.Backend.Mode = config.BackendStub

	envs := NewEnvs(logger)
	backend := NewBackendEnv(cfg.Backend, logger)
	envs.Register(backend, NewFrontendEnv(config.Frontend{BaseURL: "http://127.0.0.1:1", SkipWait: true}, logger))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, envs.Execute(ctx))
	defer envs.StopAll()

	stub, ok := envs.GetDetails(BackendComponentName).(*stubbackend.Server)
	require.True(t, ok)
	stub.SeedNames("Test Route 1")

	resp, err := http.Get(envs.GetURL(BackendComponentName) + cfg.Backend.RoutesPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBackendEnvExternalModeWaitsForServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	stub := stubbackend.New(logger)
	url, err := stub.Start("127.0.0.1:0")
	require.NoError(t, err)
	defer stub.Shutdown(context.Background())

	envs := NewEnvs(logger)
	envs.Register(NewBackendEnv(config.Backend{
		BaseURL:    url + "/",
		RoutesPath: config.DefaultRoutesPath,
		Mode:       config.BackendExternal,
	}, logger))

	require.NoError(t, envs.Execute(context.Background()))
	assert.Equal(t, url, envs.GetURL(BackendComponentName))
	assert.Nil(t, envs.GetDetails(BackendComponentName))
}

func TestBackendEnvUnknownMode(t *testing.T) {
	envs := NewEnvs(zaptest.NewLogger(t))
	envs.Register(NewBackendEnv(config.Backend{Mode: "k8s"}, nil))
	require.Error(t, envs.Execute(context.Background()))
}

func TestBaseEnvDefaults(t *testing.T) {
	b := &BaseEnv{name: "plain"}

	deps, err := b.Configure(nil)
	require.NoError(t, err)
	assert.Empty(t, deps)
	assert.NoError(t, <-b.Start(context.Background(), nil))
	assert.NoError(t, b.Stop())
	assert.Equal(t, "plain", b.Name())
	assert.Empty(t, b.URL())
	assert.Nil(t, b.GetDetails())

	b.SetStartDuration(time.Second)
	assert.Equal(t, time.Second, b.GetStartDuration())
}
