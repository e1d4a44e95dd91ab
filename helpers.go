// Package e2e holds the browser end-to-end suite of the route planner. The
// suite itself is built with the e2e tag:
//
//	go test -tags e2e ./...
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
)

var (
	runTimestamp     string
	runTimestampOnce sync.Once
)

// RunTimestamp identifies the current test run; artifacts of all tests of
// one run share it.
func RunTimestamp() string {
	runTimestampOnce.Do(func() {
		runTimestamp = time.Now().Format("20060102150405")
	})
	return runTimestamp
}

// UniqueRouteName returns a route name the cleanup test patterns recognise,
// e.g. "E2E waypoints 1f3a9c2e".
func UniqueRouteName(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "route"
	}
	return fmt.Sprintf("E2E %s %s", label, uuid.NewString()[:8])
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArtifactPath is the directory for the artifacts of testName within the
// run directory below baseDir.
func ArtifactPath(baseDir, testName string) string {
	return filepath.Join(baseDir, RunTimestamp(), unsafePathChars.ReplaceAllString(testName, "_"))
}

// DebuggerAttached reports whether the tests run under delve, in which case
// the browser is shown.
func DebuggerAttached() bool {
	parent, err := process.NewProcess(int32(os.Getppid()))
	if err != nil {
		return false
	}
	if name, err := parent.Name(); err == nil && (name == "dlv" || strings.HasPrefix(name, "__debug_bin")) {
		return true
	}
	cmdline, err := parent.CmdlineSlice()
	if err != nil {
		return false
	}
	for _, arg := range cmdline {
		if strings.Contains(arg, "dlv") {
			return true
		}
	}
	return false
}
