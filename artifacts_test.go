//go:build e2e

package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/routeplanner/e2e/mocks"
	"github.com/routeplanner/e2e/pages"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// ArtifactManager owns the browser of one test and stores screenshots,
// HTML and console output below the run's artifact directory.
type ArtifactManager struct {
	T           *testing.T
	Logger      *zap.Logger
	ArtifactDir string
	Browser     playwright.Browser
	Context     playwright.BrowserContext
	Page        playwright.Page
	Mocks       *mocks.Manager

	consoleMu   sync.Mutex
	consoleFile *os.File
}

func browserType(name string) playwright.BrowserType {
	switch name {
	case "firefox":
		return pw.Firefox
	case "webkit":
		return pw.WebKit
	default:
		return pw.Chromium
	}
}

// NewArtifactManager launches an isolated browser for t. Every route the
// page creates is recorded by the suite's tracker.
func NewArtifactManager(t *testing.T) *ArtifactManager {
	t.Helper()

	artifactDir := ArtifactPath(cfg.Artifacts.Dir, t.Name())
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		t.Fatalf("Failed to create artifact directory: %v", err)
	}

	testLogger := zaptest.NewLogger(t)
	headless := cfg.Browser.Headless && !DebuggerAttached()

	browser, err := browserType(cfg.Browser.Name).Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		t.Fatalf("could not launch browser: %v", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		BaseURL:  playwright.String(frontendURL),
		Viewport: &playwright.Size{Width: 1280, Height: 800},
	})
	if err != nil {
		browser.Close()
		t.Fatalf("could not create browser context: %v", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		t.Fatalf("could not create page: %v", err)
	}
	page.SetDefaultNavigationTimeout(30000)
	page.SetDefaultTimeout(pages.DefaultTimeout)

	am := &ArtifactManager{
		T:           t,
		Logger:      testLogger,
		ArtifactDir: artifactDir,
		Browser:     browser,
		Context:     bctx,
		Page:        page,
		Mocks:       mocks.NewManager(testLogger),
	}
	tracker.Attach(page, cfg.Backend.RoutesPath)
	am.setupConsoleLogging()

	t.Cleanup(am.Close)
	return am
}

// Close saves failure artifacts and shuts the browser down.
func (am *ArtifactManager) Close() {
	if am.T.Failed() {
		am.SaveScreenshot("failure")
		am.SaveHTML("failure")
	}
	if err := am.Context.Close(); err != nil {
		am.T.Logf("Error closing playwright context: %v", err)
	}
	if err := am.Browser.Close(); err != nil {
		am.T.Logf("Error closing browser: %v", err)
	}

	am.consoleMu.Lock()
	if am.consoleFile != nil {
		am.consoleFile.Close()
		am.consoleFile = nil
	}
	am.consoleMu.Unlock()
	am.Logger.Sync()
}

func (am *ArtifactManager) MapPage() *pages.MapPage {
	return pages.NewMapPage(am.Page, frontendURL)
}

func (am *ArtifactManager) SavedRoutesPage() *pages.SavedRoutesPage {
	return pages.NewSavedRoutesPage(am.Page, frontendURL)
}

// InstallMocks fails the test when a mock cannot be routed.
func (am *ArtifactManager) InstallMocks(list ...mocks.Mock) {
	am.T.Helper()
	if err := am.Mocks.Install(am.Page, list...); err != nil {
		am.T.Fatalf("install mocks: %v", err)
	}
}

func (am *ArtifactManager) SaveScreenshot(name string) string {
	filename := filepath.Join(am.ArtifactDir, name+".png")
	if _, err := am.Page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(filename),
		FullPage: playwright.Bool(true),
	}); err != nil {
		am.T.Logf("Failed to save screenshot: %v", err)
		return ""
	}
	am.T.Logf("Screenshot saved to %s", filename)
	return filename
}

func (am *ArtifactManager) SaveHTML(name string) string {
	content, err := am.Page.Content()
	if err != nil {
		am.T.Logf("Failed to get page content: %v", err)
		return ""
	}
	filename := filepath.Join(am.ArtifactDir, name+".html")
	if err := os.WriteFile(filename, []byte(content), 0o644); err != nil {
		am.T.Logf("Failed to save HTML content: %v", err)
		return ""
	}
	return filename
}

// Must stops the test on err after saving the page state under step.
func (am *ArtifactManager) Must(step string, err error) {
	am.T.Helper()
	if err == nil {
		return
	}
	am.SaveScreenshot(step + "_error")
	am.SaveHTML(step + "_error")
	am.T.Fatalf("%s: %v", step, err)
}

func (am *ArtifactManager) setupConsoleLogging() {
	logFile := filepath.Join(am.ArtifactDir, "console.log")
	file, err := os.Create(logFile)
	if err != nil {
		am.T.Logf("Failed to create console log file: %v", err)
		return
	}
	am.consoleFile = file

	am.Page.On("console", func(msg playwright.ConsoleMessage) {
		entry := fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format(time.RFC3339), msg.Type(), msg.Text())
		am.consoleMu.Lock()
		defer am.consoleMu.Unlock()
		if am.consoleFile == nil {
			return
		}
		if _, err := am.consoleFile.WriteString(entry); err != nil {
			am.Logger.Warn("Failed to write console log", zap.Error(err))
		}
	})
}
