// Package mocks intercepts the route planner's outbound API calls in the
// browser and answers them from canned JSON fixtures.
package mocks

import (
	"embed"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

//go:embed fixtures/*.json
var fixtureFS embed.FS

// Fixture names available through LoadFixture.
const (
	FixtureGeocode      = "geocode"
	FixtureGeocodeEmpty = "geocode_empty"
	FixtureRouteSuccess = "route_success"
	FixtureRouteError   = "route_error"
	FixtureRoutesPage   = "routes_page"
	FixtureRouteCreated = "route_created"
)

// URL globs of the services the frontend talks to.
const (
	PatternRouting   = "**/route/v1/**"
	PatternGeocoding = "**/search?**"
	PatternRoutes    = "**/api/routes"
	PatternRoutesAny = "**/api/routes?**"
)

// Fixture is a canned HTTP response.
type Fixture struct {
	Name        string
	Status      int
	ContentType string
	Body        []byte
}

// LoadFixture reads an embedded fixture by name. The returned fixture
// answers 200 with application/json; adjust Status as needed.
func LoadFixture(name string) (Fixture, error) {
	body, err := fixtureFS.ReadFile(path.Join("fixtures", name+".json"))
	if err != nil {
		return Fixture{}, fmt.Errorf("fixture %q: %w", name, err)
	}
	return Fixture{
		Name:        name,
		Status:      http.StatusOK,
		ContentType: "application/json",
		Body:        body,
	}, nil
}

// MustFixture is LoadFixture for fixtures known to be embedded.
func MustFixture(name string) Fixture {
	f, err := LoadFixture(name)
	if err != nil {
		panic(err)
	}
	return f
}

// WithStatus returns a copy of f answering with status.
func (f Fixture) WithStatus(status int) Fixture {
	f.Status = status
	return f
}

// Mock binds a fixture to a URL glob. An empty Method matches any method;
// otherwise requests with other methods go on to the network.
type Mock struct {
	Name    string
	Pattern string
	Method  string
	Fixture Fixture
}

// Manager installs mocks on pages and counts how often each one answered.
type Manager struct {
	logger *zap.Logger
	mu     sync.Mutex
	hits   map[string]int
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger.Named("mocks"),
		hits:   make(map[string]int),
	}
}

// Install registers every mock on page. Later mocks take precedence over
// earlier ones for the same URL, following Playwright's routing order.
func (m *Manager) Install(page playwright.Page, mocks ...Mock) error {
	for _, mock := range mocks {
		if err := page.Route(mock.Pattern, m.Handler(mock)); err != nil {
			return fmt.Errorf("failed to install mock %s: %w", mock.Name, err)
		}
		m.logger.Debug("Installed mock",
			zap.String("mock", mock.Name),
			zap.String("pattern", mock.Pattern),
			zap.String("method", mock.Method))
	}
	return nil
}

// Handler returns the Playwright route handler serving mock.
func (m *Manager) Handler(mock Mock) func(playwright.Route) {
	return func(route playwright.Route) {
		req := route.Request()
		if mock.Method != "" && !strings.EqualFold(req.Method(), mock.Method) {
			if err := route.Fallback(); err != nil {
				m.logger.Warn("Failed to fall back", zap.String("mock", mock.Name), zap.Error(err))
			}
			return
		}

		m.mu.Lock()
		m.hits[mock.Name]++
		m.mu.Unlock()

		err := route.Fulfill(playwright.RouteFulfillOptions{
			Status:      playwright.Int(mock.Fixture.Status),
			ContentType: playwright.String(mock.Fixture.ContentType),
			Headers:     map[string]string{"Access-Control-Allow-Origin": "*"},
			Body:        mock.Fixture.Body,
		})
		if err != nil {
			m.logger.Warn("Failed to fulfill mocked request",
				zap.String("mock", mock.Name),
				zap.String("url", req.URL()),
				zap.Error(err))
			return
		}
		m.logger.Debug("Served mock", zap.String("mock", mock.Name), zap.String("url", req.URL()))
	}
}

// Hits reports how many requests the named mock answered.
func (m *Manager) Hits(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[name]
}

// Reset zeroes all hit counters.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.hits)
}

func RoutingSuccess() Mock {
	return Mock{Name: "routing-success", Pattern: PatternRouting, Method: http.MethodGet, Fixture: MustFixture(FixtureRouteSuccess)}
}

// RoutingFailure answers routing requests the way OSRM does when no route
// connects the points.
func RoutingFailure() Mock {
	return Mock{
		Name:    "routing-failure",
		Pattern: PatternRouting,
		Method:  http.MethodGet,
		Fixture: MustFixture(FixtureRouteError).WithStatus(http.StatusBadRequest),
	}
}

func Geocoding() Mock {
	return Mock{Name: "geocoding", Pattern: PatternGeocoding, Method: http.MethodGet, Fixture: MustFixture(FixtureGeocode)}
}

func GeocodingEmpty() Mock {
	return Mock{Name: "geocoding-empty", Pattern: PatternGeocoding, Method: http.MethodGet, Fixture: MustFixture(FixtureGeocodeEmpty)}
}

// SavedRoutes serves the saved-routes listing. Both the bare collection URL
// and its paginated form are covered.
func SavedRoutes() []Mock {
	f := MustFixture(FixtureRoutesPage)
	return []Mock{
		{Name: "saved-routes", Pattern: PatternRoutes, Method: http.MethodGet, Fixture: f},
		{Name: "saved-routes-paged", Pattern: PatternRoutesAny, Method: http.MethodGet, Fixture: f},
	}
}

// RouteCreated answers route creation without touching the backend.
func RouteCreated() Mock {
	return Mock{
		Name:    "route-created",
		Pattern: PatternRoutes,
		Method:  http.MethodPost,
		Fixture: MustFixture(FixtureRouteCreated).WithStatus(http.StatusCreated),
	}
}
