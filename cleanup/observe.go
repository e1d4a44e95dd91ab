package cleanup

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// DefaultRoutesPath is the path of the routes collection on the backend.
const DefaultRoutesPath = "/api/routes"

// IsRouteCreation reports whether a request of method to rawURL targets the
// routes collection itself (not a single route below it).
func IsRouteCreation(method, rawURL, routesPath string) bool {
	if !strings.EqualFold(method, http.MethodPost) {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if routesPath == "" {
		routesPath = DefaultRoutesPath
	}
	return strings.TrimRight(u.Path, "/") == strings.TrimRight(routesPath, "/")
}

// ObserveResponse inspects a browser response and tracks the created route
// when it is a successful (201) POST to the routes collection.
func (t *Tracker) ObserveResponse(response playwright.Response) {
	t.observe(response, DefaultRoutesPath)
}

func (t *Tracker) observe(response playwright.Response, routesPath string) {
	req := response.Request()
	if req == nil || !IsRouteCreation(req.Method(), response.URL(), routesPath) {
		return
	}
	if response.Status() != http.StatusCreated {
		t.logger.Debug("Route creation not confirmed, nothing to track",
			zap.String("url", response.URL()), zap.Int("status", response.Status()))
		return
	}
	body, err := response.Body()
	if err != nil {
		t.logger.Warn("Could not read route creation response body", zap.String("url", response.URL()), zap.Error(err))
		return
	}
	t.TrackRouteCreation(body)
}

// Attach registers the tracker on page so every route created through the
// UI is recorded. routesPath may be empty for the default collection path.
func (t *Tracker) Attach(page playwright.Page, routesPath string) {
	page.On("response", func(response playwright.Response) {
		// Reading the body from inside the event callback blocks the
		// driver connection, so it happens on its own goroutine.
		t.pending.Add(1)
		go func() {
			defer t.pending.Done()
			t.observe(response, routesPath)
		}()
	})
}
