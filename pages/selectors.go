// Package pages wraps the route planner UI in page objects for the e2e
// suite.
package pages

// DOM selectors of the route planner UI. The app exposes data-testid
// attributes for everything the tests touch; Leaflet classes are used for
// map internals.
const (
	selMapContainer  = "[data-testid='map-container']"
	selMapTile       = ".leaflet-tile-loaded"
	selLoading       = "[data-testid='loading-overlay']"
	selWaypoint      = "[data-testid='waypoint-marker']"
	selPolyline      = "[data-testid='route-polyline']"
	selStartInput    = "[data-testid='start-input']"
	selEndInput      = "[data-testid='end-input']"
	selSuggestion    = "[data-testid='location-suggestion']"
	selCalculate     = "[data-testid='calculate-route']"
	selClear         = "[data-testid='clear-route']"
	selDistance      = "[data-testid='route-distance']"
	selDuration      = "[data-testid='route-duration']"
	selError         = "[data-testid='route-error']"
	selSaveButton    = "[data-testid='save-route']"
	selRouteName     = "[data-testid='route-name-input']"
	selConfirmSave   = "[data-testid='confirm-save']"
	selSaveSuccess   = "[data-testid='save-success']"
	selSavedRoute    = "[data-testid='saved-route-item']"
	selSavedName     = "[data-testid='saved-route-name']"
	selOpenRoute     = "[data-testid='open-route']"
	selDeleteRoute   = "[data-testid='delete-route']"
	selConfirmDelete = "[data-testid='confirm-delete']"
	selEmptyState    = "[data-testid='routes-empty']"
)
