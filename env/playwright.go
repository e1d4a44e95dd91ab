package env

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const PlaywrightComponentName = "playwright"

// PlaywrightEnv runs the Playwright driver shared by all tests.
type PlaywrightEnv struct {
	BaseEnv
	logger     *zap.Logger
	browsers   []string
	pwInstance *playwright.Playwright
	pwMux      sync.RWMutex
}

// NewPlaywrightEnv creates the Playwright component. browser names the
// browser to install when the driver is missing ("" installs chromium).
func NewPlaywrightEnv(logger *zap.Logger, browser string) *PlaywrightEnv {
	if logger == nil {
		logger = zap.NewNop()
	}
	if browser == "" {
		browser = "chromium"
	}
	return &PlaywrightEnv{
		BaseEnv:  BaseEnv{name: PlaywrightComponentName},
		logger:   logger.Named(PlaywrightComponentName),
		browsers: []string{browser},
	}
}

// Start installs the driver if needed and launches it.
func (e *PlaywrightEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	resultChan := make(chan error, 1)

	go func() {
		defer close(resultChan)

		// playwright.Run can block while downloading browsers; the parent
		// context bounds the whole setup.
		e.logger.Debug("Installing Playwright driver", zap.Strings("browsers", e.browsers))
		if err := playwright.Install(&playwright.RunOptions{Browsers: e.browsers, Verbose: false}); err != nil {
			resultChan <- fmt.Errorf("failed to install playwright: %w", err)
			return
		}

		pw, err := playwright.Run()
		if err != nil {
			if ctx.Err() != nil {
				resultChan <- fmt.Errorf("context cancelled during playwright start: %w", ctx.Err())
				return
			}
			resultChan <- fmt.Errorf("failed to run playwright: %w", err)
			return
		}

		e.pwMux.Lock()
		e.pwInstance = pw
		e.pwMux.Unlock()

		e.logger.Info("Playwright driver running")
		resultChan <- nil
	}()

	return resultChan
}

// Stop shuts the driver down.
func (e *PlaywrightEnv) Stop() error {
	e.pwMux.Lock()
	pw := e.pwInstance
	e.pwInstance = nil
	e.pwMux.Unlock()

	if pw == nil {
		return nil
	}
	if err := pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop %s: %w", e.Name(), err)
	}
	e.logger.Info("Playwright driver stopped")
	return nil
}

// GetDetails returns the *playwright.Playwright instance.
func (e *PlaywrightEnv) GetDetails() interface{} {
	e.pwMux.RLock()
	defer e.pwMux.RUnlock()
	if e.pwInstance == nil {
		return nil
	}
	return e.pwInstance
}
