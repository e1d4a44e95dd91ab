package env

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gopkg.in/cenkalti/backoff.v1"
)

// Environment is one component of the e2e environment (browser driver,
// backend, database, ...). Each component owns its own state such as URLs,
// containers or driver handles.
type Environment interface {
	// Name returns the unique name used for dependency lookup.
	Name() string

	// Configure is called synchronously for every component before any
	// Start. It decides the intended URL (allocating ports through
	// envs.GetFreePort if needed), rejects unusable settings early and
	// returns the names of the components whose Start must finish first.
	Configure(envs *Envs) (dependencies []string, err error)

	// Start runs on its own goroutine once every dependency has started.
	// Dependency data is read through envs.GetURL and envs.GetDetails. The
	// returned channel receives exactly one value (nil on success) and is
	// then closed.
	Start(ctx context.Context, envs *Envs) <-chan error

	// Stop releases whatever Start acquired. It is called once during
	// teardown, also for components whose Start failed.
	Stop() error

	// URL returns the base URL of the component: the intended one after
	// Configure, the final one after Start, or "" when not applicable.
	URL() string

	// GetDetails returns component-specific data for tests, e.g.
	// *playwright.Playwright. Nil until Start succeeded.
	GetDetails() interface{}

	// GetStartDuration reports how long a successful Start took.
	GetStartDuration() time.Duration
	SetStartDuration(d time.Duration)
}

// BaseEnv provides no-op defaults for Environment implementations. Embedding
// types set name in their constructor and override the methods below for
// every concern they actually have.
type BaseEnv struct {
	// startDuration is recorded by Envs after a successful Start.
	startDuration time.Duration
	name          string
}

// Name returns the name given by the embedding type's constructor.
func (b *BaseEnv) Name() string {
	return b.name
}

// Configure reports no dependencies. Components that allocate ports, pick a
// URL or depend on other components must override it.
func (b *BaseEnv) Configure(envs *Envs) (dependencies []string, err error) {
	return []string{}, nil
}

// Start succeeds immediately. Components that launch a process, container or
// server must override it.
func (b *BaseEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	resultChan := make(chan error, 1)
	resultChan <- nil
	close(resultChan)
	return resultChan
}

// Stop does nothing. Components holding containers, servers or driver
// handles must override it.
func (b *BaseEnv) Stop() error {
	return nil
}

// URL returns "". Components reachable over HTTP must override it.
func (b *BaseEnv) URL() string {
	return ""
}

// GetDetails returns nil. Components that hand objects to tests must
// override it.
func (b *BaseEnv) GetDetails() interface{} {
	return nil
}

// GetStartDuration returns the duration recorded by Envs.
func (b *BaseEnv) GetStartDuration() time.Duration {
	return b.startDuration
}

// SetStartDuration is called by Envs after a successful Start. Embedding
// types do not override it.
func (b *BaseEnv) SetStartDuration(d time.Duration) {
	b.startDuration = d
}

// waitForServer polls url until it answers 2xx or timeout elapses.
func waitForServer(ctx context.Context, logger *zap.Logger, url string, timeout time.Duration) error {
	logger = logger.With(zap.String("url", url))
	logger.Info("Waiting for server", zap.Duration("timeout", timeout))
	startTime := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpClient := &http.Client{
		Timeout: 2 * time.Second,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}

	check := func() error {
		req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = timeout

	err := backoff.RetryNotify(check, backoff.WithContext(policy, checkCtx), func(err error, next time.Duration) {
		logger.Debug("Server not ready, retrying", zap.Error(err), zap.Duration("next", next))
	})
	if err != nil {
		if checkCtx.Err() != nil {
			return fmt.Errorf("timed out waiting for server at %s after %s: %w", url, time.Since(startTime).Round(time.Millisecond), checkCtx.Err())
		}
		return fmt.Errorf("server at %s not ready after %s: %w", url, time.Since(startTime).Round(time.Millisecond), err)
	}
	logger.Info("Server is ready", zap.Duration("took", time.Since(startTime)))
	return nil
}
