package pages

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// DefaultTimeout bounds every wait of the page objects, in milliseconds.
const DefaultTimeout = 10000

// RouteSummary is what the UI shows for a calculated route.
type RouteSummary struct {
	DistanceText string
	DurationText string
	// Distance in meters and Duration parsed from the texts above.
	Distance float64
	Duration time.Duration
}

// MapPage is the main planner view.
type MapPage struct {
	page    playwright.Page
	baseURL string
	timeout float64
}

func NewMapPage(page playwright.Page, baseURL string) *MapPage {
	return &MapPage{page: page, baseURL: strings.TrimRight(baseURL, "/"), timeout: DefaultTimeout}
}

// Page exposes the underlying Playwright page.
func (m *MapPage) Page() playwright.Page {
	return m.page
}

// Goto opens the planner and waits until the map is usable.
func (m *MapPage) Goto() error {
	if _, err := m.page.Goto(m.baseURL+"/", playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigate to planner: %w", err)
	}
	return m.WaitForMapReady()
}

// WaitForMapReady waits for the map container and the first tile. The
// loading overlay is only awaited when it is actually shown.
func (m *MapPage) WaitForMapReady() error {
	if err := m.waitVisible(selMapContainer); err != nil {
		return fmt.Errorf("map container: %w", err)
	}
	if err := m.page.Locator(selMapTile).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(m.timeout),
	}); err != nil {
		return fmt.Errorf("map tiles: %w", err)
	}
	return m.waitLoadingDone()
}

func (m *MapPage) waitLoadingDone() error {
	overlay := m.page.Locator(selLoading)
	visible, err := overlay.IsVisible()
	if err != nil || !visible {
		return nil
	}
	return overlay.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateHidden,
		Timeout: playwright.Float(m.timeout),
	})
}

// ClickMap adds a waypoint at the given offset inside the map container.
func (m *MapPage) ClickMap(x, y float64) error {
	before, err := m.WaypointCount()
	if err != nil {
		return err
	}
	if err := m.page.Locator(selMapContainer).Click(playwright.LocatorClickOptions{
		Position: &playwright.Position{X: x, Y: y},
	}); err != nil {
		return fmt.Errorf("click map at %.0f,%.0f: %w", x, y, err)
	}
	return m.page.Locator(selWaypoint).Nth(before).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(m.timeout),
	})
}

func (m *MapPage) WaypointCount() (int, error) {
	return m.page.Locator(selWaypoint).Count()
}

// SetStart types query into the start field and picks the first suggestion.
func (m *MapPage) SetStart(query string) error {
	return m.fillLocation(selStartInput, query)
}

// SetEnd types query into the end field and picks the first suggestion.
func (m *MapPage) SetEnd(query string) error {
	return m.fillLocation(selEndInput, query)
}

func (m *MapPage) fillLocation(selector, query string) error {
	input := m.page.Locator(selector)
	if err := input.Fill(query); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	suggestion := m.page.Locator(selSuggestion).First()
	if err := suggestion.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(m.timeout),
	}); err != nil {
		return fmt.Errorf("no suggestion for %q: %w", query, err)
	}
	return suggestion.Click()
}

// SuggestionCount waits briefly for suggestions after typing and counts them.
func (m *MapPage) SuggestionCount() (int, error) {
	_ = m.page.Locator(selSuggestion).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(2000),
	})
	return m.page.Locator(selSuggestion).Count()
}

// TypeStart fills the start field without picking a suggestion.
func (m *MapPage) TypeStart(query string) error {
	return m.page.Locator(selStartInput).Fill(query)
}

// Calculate requests a route for the current inputs. Some layouts
// calculate automatically and hide the button; then this is a no-op.
func (m *MapPage) Calculate() error {
	button := m.page.Locator(selCalculate)
	visible, err := button.IsVisible()
	if err != nil || !visible {
		return nil
	}
	return button.Click()
}

// WaitForRoute waits for the polyline and returns the displayed summary.
func (m *MapPage) WaitForRoute() (*RouteSummary, error) {
	if err := m.page.Locator(selPolyline).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(m.timeout),
	}); err != nil {
		return nil, fmt.Errorf("route polyline: %w", err)
	}
	if err := m.waitVisible(selDistance); err != nil {
		return nil, fmt.Errorf("route summary: %w", err)
	}
	return m.Summary()
}

// Summary reads the distance and duration texts.
func (m *MapPage) Summary() (*RouteSummary, error) {
	distance, err := m.page.Locator(selDistance).TextContent()
	if err != nil {
		return nil, err
	}
	duration, err := m.page.Locator(selDuration).TextContent()
	if err != nil {
		return nil, err
	}
	s := &RouteSummary{
		DistanceText: strings.TrimSpace(distance),
		DurationText: strings.TrimSpace(duration),
	}
	if s.Distance, err = ParseDistance(s.DistanceText); err != nil {
		return s, err
	}
	if s.Duration, err = ParseDuration(s.DurationText); err != nil {
		return s, err
	}
	return s, nil
}

// HasRoute reports whether a polyline is drawn.
func (m *MapPage) HasRoute() (bool, error) {
	n, err := m.page.Locator(selPolyline).Count()
	return n > 0, err
}

// WaitForError waits for the routing error banner and returns its text.
func (m *MapPage) WaitForError() (string, error) {
	if err := m.waitVisible(selError); err != nil {
		return "", fmt.Errorf("route error banner: %w", err)
	}
	text, err := m.page.Locator(selError).TextContent()
	return strings.TrimSpace(text), err
}

// Clear removes all waypoints and the route.
func (m *MapPage) Clear() error {
	if err := m.page.Locator(selClear).Click(); err != nil {
		return err
	}
	return m.page.Locator(selWaypoint).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateDetached,
		Timeout: playwright.Float(m.timeout),
	})
}

// SaveRoute stores the current route under name and waits for the
// confirmation. The matching POST is what the cleanup tracker observes.
func (m *MapPage) SaveRoute(name string) error {
	if err := m.page.Locator(selSaveButton).Click(); err != nil {
		return fmt.Errorf("open save dialog: %w", err)
	}
	if err := m.page.Locator(selRouteName).Fill(name); err != nil {
		return fmt.Errorf("fill route name: %w", err)
	}
	if err := m.page.Locator(selConfirmSave).Click(); err != nil {
		return fmt.Errorf("confirm save: %w", err)
	}
	if err := m.waitVisible(selSaveSuccess); err != nil {
		if text, _ := m.page.Locator(selError).TextContent(); text != "" {
			return fmt.Errorf("save failed: %s", strings.TrimSpace(text))
		}
		return fmt.Errorf("save confirmation: %w", err)
	}
	return nil
}

func (m *MapPage) waitVisible(selector string) error {
	return m.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(m.timeout),
	})
}

var (
	distanceRe = regexp.MustCompile(`^([\d.,]+)\s*(km|m)$`)
	durationRe = regexp.MustCompile(`(\d+)\s*(h|hr|hrs|min|s|sec)\b`)
)

// ParseDistance converts "2.9 km" or "850 m" to meters.
func ParseDistance(text string) (float64, error) {
	match := distanceRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(text)))
	if match == nil {
		return 0, fmt.Errorf("unrecognized distance %q", text)
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized distance %q: %w", text, err)
	}
	if match[2] == "km" {
		value *= 1000
	}
	return value, nil
}

// ParseDuration converts texts like "1 h 5 min" or "7 min" to a duration.
func ParseDuration(text string) (time.Duration, error) {
	matches := durationRe.FindAllStringSubmatch(strings.ToLower(text), -1)
	if len(matches) == 0 {
		return 0, errors.New("unrecognized duration " + strconv.Quote(text))
	}
	var d time.Duration
	for _, match := range matches {
		n, _ := strconv.Atoi(match[1])
		switch match[2] {
		case "h", "hr", "hrs":
			d += time.Duration(n) * time.Hour
		case "min":
			d += time.Duration(n) * time.Minute
		default:
			d += time.Duration(n) * time.Second
		}
	}
	return d, nil
}
