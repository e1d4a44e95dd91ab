package env

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Envs manages the lifecycle of the registered environment components.
type Envs struct {
	logger     *zap.Logger
	components map[string]Environment
	order      []string
	portMu     sync.Mutex
	usedPorts  map[int]struct{}
}

// NewEnvs creates an empty environment manager.
func NewEnvs(logger *zap.Logger) *Envs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Envs{
		logger:     logger.Named("env"),
		components: make(map[string]Environment),
		usedPorts:  make(map[int]struct{}),
	}
}

// Register adds components. Panics on a duplicate name.
func (e *Envs) Register(envs ...Environment) {
	for _, env := range envs {
		name := env.Name()
		if _, exists := e.components[name]; exists {
			panic(fmt.Sprintf("environment component with name '%s' already registered", name))
		}
		e.components[name] = env
		e.order = append(e.order, name)
		e.logger.Debug("Registered component", zap.String("component", name))
	}
}

// Names returns the registered component names in registration order.
func (e *Envs) Names() []string {
	return append([]string(nil), e.order...)
}

// GetFreePort finds and reserves an available TCP port.
func (e *Envs) GetFreePort() (int, error) {
	e.portMu.Lock()
	defer e.portMu.Unlock()

	for i := 0; i < 100; i++ {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			continue
		}
		port := listener.Addr().(*net.TCPAddr).Port
		listener.Close()

		if _, used := e.usedPorts[port]; !used {
			e.usedPorts[port] = struct{}{}
			e.logger.Debug("Allocated port", zap.Int("port", port))
			return port, nil
		}
	}
	return 0, fmt.Errorf("failed to find an available free port after multiple attempts")
}

// Execute configures every component, then starts them in dependency
// order. Components whose dependencies are met start concurrently. On
// failure the components that did start are stopped again.
func (e *Envs) Execute(ctx context.Context) error {
	startTime := time.Now()
	if len(e.components) == 0 {
		e.logger.Info("No components registered, setup complete")
		return nil
	}

	// Configure phase.
	var depMu sync.Mutex
	dependencies := make(map[string][]string, len(e.components))
	configureGroup, configureCtx := errgroup.WithContext(ctx)
	for _, env := range e.components {
		configureGroup.Go(func() error {
			if err := configureCtx.Err(); err != nil {
				return err
			}
			deps, err := env.Configure(e)
			if err != nil {
				e.logger.Error("Failed to configure component", zap.String("component", env.Name()), zap.Error(err))
				return fmt.Errorf("configure %s failed: %w", env.Name(), err)
			}
			depMu.Lock()
			dependencies[env.Name()] = deps
			depMu.Unlock()
			e.logger.Debug("Component configured", zap.String("component", env.Name()), zap.Strings("dependencies", deps))
			return nil
		})
	}
	if err := configureGroup.Wait(); err != nil {
		return err
	}

	// Dependency graph.
	dependents := make(map[string][]string)
	pending := make(map[string]int)
	var initial []string
	for name := range e.components {
		deps := dependencies[name]
		pending[name] = len(deps)
		if len(deps) == 0 {
			initial = append(initial, name)
			continue
		}
		for _, dep := range deps {
			if _, exists := e.components[dep]; !exists {
				return fmt.Errorf("component '%s' configured dependency '%s' which is not registered", name, dep)
			}
			dependents[dep] = append(dependents[dep], name)
		}
	}
	if cycle := findCycle(dependencies); cycle != "" {
		return fmt.Errorf("dependency cycle detected: %s", cycle)
	}
	sort.Strings(initial)

	// Start phase.
	var startMu sync.Mutex
	started := make(map[string]struct{})
	startGroup, startCtx := errgroup.WithContext(ctx)

	var launch func(name string)
	launch = func(name string) {
		env := e.components[name]
		startGroup.Go(func() error {
			logger := e.logger.With(zap.String("component", name))
			logger.Info("Starting component")
			began := time.Now()

			var err error
			select {
			case result, ok := <-env.Start(startCtx, e):
				if ok {
					err = result
				} else if startCtx.Err() != nil {
					err = fmt.Errorf("context cancelled during start of %s: %w", name, startCtx.Err())
				}
			case <-startCtx.Done():
				err = fmt.Errorf("context cancelled waiting for start of %s: %w", name, startCtx.Err())
			}
			took := time.Since(began)
			if err != nil {
				logger.Error("Component failed to start", zap.Duration("took", took), zap.Error(err))
				return fmt.Errorf("start %s failed: %w", name, err)
			}

			logger.Info("Component started", zap.Duration("took", took))
			env.SetStartDuration(took)

			startMu.Lock()
			defer startMu.Unlock()
			started[name] = struct{}{}
			for _, dependent := range dependents[name] {
				pending[dependent]--
				if pending[dependent] == 0 && startCtx.Err() == nil {
					launch(dependent)
				}
			}
			return nil
		})
	}

	// Initial launches hold startMu so a fast component cannot launch its
	// dependents while the loop still reads the graph.
	startMu.Lock()
	for _, name := range initial {
		launch(name)
	}
	startMu.Unlock()

	err := startGroup.Wait()

	startMu.Lock()
	startedCount := len(started)
	startMu.Unlock()

	if err == nil && startedCount != len(e.components) {
		err = fmt.Errorf("environment setup finished inconsistently: %d components registered, %d started", len(e.components), startedCount)
	}
	if err != nil {
		e.logger.Error("Environment setup failed, stopping started components", zap.Error(err))
		e.stop(started)
		return err
	}

	e.logger.Info("Environment setup complete", zap.Duration("took", time.Since(startTime)), zap.Int("components", startedCount))
	return nil
}

// StopAll stops every registered component concurrently, logging errors.
func (e *Envs) StopAll() {
	all := make(map[string]struct{}, len(e.components))
	for name := range e.components {
		all[name] = struct{}{}
	}
	e.stop(all)
}

func (e *Envs) stop(names map[string]struct{}) {
	var wg sync.WaitGroup
	for name := range names {
		env, ok := e.components[name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.Stop(); err != nil {
				e.logger.Error("Error stopping component", zap.String("component", name), zap.Error(err))
				return
			}
			e.logger.Debug("Component stopped", zap.String("component", name))
		}()
	}
	wg.Wait()
}

// findCycle returns a description of a dependency cycle, or "".
func findCycle(deps map[string][]string) string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var visit func(node string) string
	visit = func(node string) string {
		visited[node] = true
		onStack[node] = true
		defer func() { onStack[node] = false }()

		for _, dep := range deps[node] {
			if onStack[dep] {
				return fmt.Sprintf("%s -> %s", node, dep)
			}
			if !visited[dep] {
				if cycle := visit(dep); cycle != "" {
					return fmt.Sprintf("%s -> %s", node, cycle)
				}
			}
		}
		return ""
	}

	for _, name := range names {
		if !visited[name] {
			if cycle := visit(name); cycle != "" {
				return cycle
			}
		}
	}
	return ""
}

// GetComponent returns the registered component by name.
func (e *Envs) GetComponent(name string) (Environment, bool) {
	env, ok := e.components[name]
	return env, ok
}

// GetURL returns the URL of a component, or "" if it is not registered.
func (e *Envs) GetURL(name string) string {
	env, ok := e.components[name]
	if !ok {
		e.logger.Warn("Component not found when getting URL", zap.String("component", name))
		return ""
	}
	return env.URL()
}

// GetDetails returns the details of a component, or nil if it is not registered.
func (e *Envs) GetDetails(name string) interface{} {
	env, ok := e.components[name]
	if !ok {
		e.logger.Warn("Component not found when getting details", zap.String("component", name))
		return nil
	}
	return env.GetDetails()
}

// GetStartDuration returns how long Start of a component took.
func (e *Envs) GetStartDuration(name string) time.Duration {
	env, ok := e.components[name]
	if !ok {
		return 0
	}
	return env.GetStartDuration()
}
