package cleanup_test

import (
	"regexp"
	"testing"

	"github.com/routeplanner/e2e/cleanup"
	"github.com/stretchr/testify/assert"
)

func TestIsTestRoute(t *testing.T) {
	for _, name := range []string{
		"Test Route 1",
		"test route foo",
		"E2E waypoint route",
		"e2e-save",
		"Playwright smoke",
		"Berlin loop [test]",
		"Route 1718000000000",
	} {
		assert.True(t, cleanup.IsTestRoute(name), name)
	}

	for _, name := range []string{
		"Production Route",
		"My Test Route",
		"Testroute",
		"Route 66",
		"",
	} {
		assert.False(t, cleanup.IsTestRoute(name), name)
	}
}

func TestMatchRoutes(t *testing.T) {
	routes := []cleanup.Route{
		{ID: "1", Name: "Test Route 1"},
		{ID: "2", Name: "Production Route"},
		{ID: "3", Name: "test route foo"},
	}

	matching := cleanup.MatchRoutes(routes, regexp.MustCompile(`(?i)^Test Route`))
	assert.Equal(t, []cleanup.Route{routes[0], routes[2]}, matching)

	assert.Empty(t, cleanup.MatchRoutes(routes))
	assert.Empty(t, cleanup.MatchRoutes(routes, nil))
}
