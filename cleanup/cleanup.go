package cleanup

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

// Policy decides what happens when a bulk deletion partially fails.
type Policy int

const (
	// BestEffort logs failures and never returns them. Used from teardown
	// hooks that must not fail the test run.
	BestEffort Policy = iota
	// Authoritative returns an error when any deletion fails. Used for
	// operator-invoked destructive commands.
	Authoritative
)

func (p Policy) String() string {
	switch p {
	case BestEffort:
		return "best-effort"
	case Authoritative:
		return "authoritative"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ErrDeletionFailed is matched by every *DeletionError.
var ErrDeletionFailed = errors.New("route deletion failed")

// DeletionError reports how many deletions of an authoritative bulk
// operation failed.
type DeletionError struct {
	Failed int
	Total  int
	IDs    []string
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("failed to delete %d of %d routes", e.Failed, e.Total)
}

func (e *DeletionError) Unwrap() error {
	return ErrDeletionFailed
}

// Cleaner deletes routes created by tests, either from the tracker or by
// inspecting the backend collection.
type Cleaner struct {
	tracker *Tracker
	client  *Client
	logger  *zap.Logger
}

// NewCleaner wires a tracker and a backend client together. tracker may be
// nil for tools that only operate on the remote collection.
func NewCleaner(tracker *Tracker, client *Client, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{
		tracker: tracker,
		client:  client,
		logger:  logger.Named("cleanup"),
	}
}

// CleanupTestRoutes deletes every tracked route and clears the tracker,
// whatever the outcome. Failures are logged, not returned.
func (c *Cleaner) CleanupTestRoutes(ctx context.Context) Result {
	if c.tracker == nil {
		c.logger.Debug("No tracker configured, nothing to clean up")
		return Result{}
	}
	c.tracker.Wait()

	ids := c.tracker.IDs()
	if len(ids) == 0 {
		c.logger.Info("No test routes to clean up")
		c.tracker.Clear()
		return Result{}
	}

	c.logger.Info("Cleaning up test routes", zap.Int("count", len(ids)))
	result, _ := c.deleteAll(ctx, ids, BestEffort)
	c.tracker.Clear()
	return result
}

// DeleteAllRoutes deletes every route of the backend collection. A listing
// failure or any failed deletion is returned as an error.
func (c *Cleaner) DeleteAllRoutes(ctx context.Context) (Result, error) {
	routes, err := c.client.ListRoutes(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list routes for deletion: %w", err)
	}
	if len(routes) == 0 {
		c.logger.Info("Backend has no routes to delete")
		return Result{}, nil
	}
	return c.deleteAll(ctx, routeIDs(routes), Authoritative)
}

// DeleteRoutesByPattern deletes every remote route whose name matches at
// least one of patterns. Listing and deletion failures are logged only.
func (c *Cleaner) DeleteRoutesByPattern(ctx context.Context, patterns ...*regexp.Regexp) Result {
	routes := c.client.AllRoutesOrEmpty(ctx)
	matching := MatchRoutes(routes, patterns...)

	c.logger.Info("Routes matching test patterns",
		zap.Int("matching", len(matching)),
		zap.Int("total", len(routes)),
		zap.Strings("patterns", patternStrings(patterns)))
	if len(matching) == 0 {
		return Result{}
	}

	result, _ := c.deleteAll(ctx, routeIDs(matching), BestEffort)
	return result
}

// deleteAll is the single path every bulk deletion takes; policy decides
// whether failures become an error.
func (c *Cleaner) deleteAll(ctx context.Context, ids []string, policy Policy) (Result, error) {
	result := c.client.DeleteRoutes(ctx, ids)

	logger := c.logger.With(zap.Stringer("policy", policy))
	if len(result.Success) > 0 {
		logger.Info("Deleted routes", zap.Int("count", len(result.Success)))
	}
	if len(result.Failed) == 0 {
		return result, nil
	}

	logger.Warn("Failed to delete routes",
		zap.Int("count", len(result.Failed)),
		zap.Strings("routeIDs", result.Failed))
	if policy == Authoritative {
		return result, &DeletionError{Failed: len(result.Failed), Total: result.Total(), IDs: result.Failed}
	}
	return result, nil
}

// MatchRoutes returns the routes whose name matches any of patterns.
func MatchRoutes(routes []Route, patterns ...*regexp.Regexp) []Route {
	var matching []Route
	for _, r := range routes {
		if MatchesAny(r.Name, patterns...) {
			matching = append(matching, r)
		}
	}
	return matching
}

func routeIDs(routes []Route) []string {
	ids := make([]string, 0, len(routes))
	for _, r := range routes {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func patternStrings(patterns []*regexp.Regexp) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p != nil {
			out = append(out, p.String())
		}
	}
	return out
}
