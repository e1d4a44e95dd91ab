package e2e

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/routeplanner/e2e/cleanup"
	"github.com/stretchr/testify/assert"
)

func TestUniqueRouteNameIsRecognisedAsTestData(t *testing.T) {
	seen := make(map[string]bool)
	for _, label := range []string{"waypoints", "", "  save  "} {
		name := UniqueRouteName(label)
		assert.True(t, cleanup.IsTestRoute(name), name)
		assert.False(t, seen[name])
		seen[name] = true
	}
	assert.True(t, strings.HasPrefix(UniqueRouteName(""), "E2E route "))
}

func TestArtifactPath(t *testing.T) {
	path := ArtifactPath("artifacts", "TestSaveRoute/with spaces:and#chars")
	assert.Equal(t, filepath.Join("artifacts", RunTimestamp(), "TestSaveRoute_with_spaces_and_chars"), path)
	assert.Equal(t, RunTimestamp(), RunTimestamp())
}
