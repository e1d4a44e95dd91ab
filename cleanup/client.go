package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBatchSize caps the number of concurrent deletions.
const DefaultBatchSize = 5

// MaxPages bounds the number of page requests a single ListRoutes issues.
const MaxPages = 1000

// Result partitions route ids by deletion outcome.
type Result struct {
	Success []string
	Failed  []string
}

// Total is the number of ids the result covers.
func (r Result) Total() int {
	return len(r.Success) + len(r.Failed)
}

// ClientOptions configures a Client. Zero values select the defaults.
type ClientOptions struct {
	// RoutesPath is the path of the routes collection, default /api/routes.
	RoutesPath string
	// HTTPClient performs the requests, default http.DefaultClient.
	HTTPClient *http.Client
	// BatchSize bounds concurrent deletions, default 5.
	BatchSize int
	// PageSize is requested when listing routes, default 100.
	PageSize int
	// RequestsPerSecond throttles all requests when positive.
	RequestsPerSecond float64
}

// Client talks to the backend's routes collection.
type Client struct {
	collection string
	http       *http.Client
	batchSize  int
	pageSize   int
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ClientOptions, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme and host are required", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RoutesPath == "" {
		opts.RoutesPath = DefaultRoutesPath
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.PageSize < 1 {
		opts.PageSize = 100
	}

	c := &Client{
		collection: strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(opts.RoutesPath, "/"),
		http:       opts.HTTPClient,
		batchSize:  opts.BatchSize,
		pageSize:   opts.PageSize,
		logger:     logger.Named("backend").With(zap.String("backend", baseURL)),
	}
	if opts.RequestsPerSecond > 0 {
		burst := max(int(opts.RequestsPerSecond), 1)
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// CollectionURL returns the absolute URL of the routes collection.
func (c *Client) CollectionURL() string {
	return c.collection
}

// BatchSize returns the concurrency bound used by DeleteRoutes.
func (c *Client) BatchSize() int {
	return c.batchSize
}

// ListRoutes fetches every route of the collection, following pagination.
// Unlike AllRoutesOrEmpty it reports transport and decoding failures, so an
// empty result always means the backend has no routes.
//
// Paging stops at the last page, once totalElements routes were collected,
// when the backend answers with a different page than requested (it ignores
// the page parameter), or after MaxPages requests.
func (c *Client) ListRoutes(ctx context.Context) ([]Route, error) {
	var routes []Route
	for pageNumber := 0; ; pageNumber++ {
		page, err := c.fetchPage(ctx, pageNumber)
		if err != nil {
			return nil, err
		}
		if page.Number != pageNumber {
			if pageNumber == 0 {
				routes = append(routes, page.Content...)
			}
			c.logger.Debug("Backend does not page routes",
				zap.Int("requested", pageNumber), zap.Int("returned", page.Number))
			break
		}
		routes = append(routes, page.Content...)
		if page.Last() || (page.TotalElements > 0 && len(routes) >= page.TotalElements) {
			break
		}
		if pageNumber+1 >= MaxPages {
			c.logger.Warn("Stopped listing routes at page limit",
				zap.Int("pages", MaxPages), zap.Int("count", len(routes)))
			break
		}
	}
	c.logger.Debug("Listed routes", zap.Int("count", len(routes)))
	if routes == nil {
		routes = []Route{}
	}
	return routes, nil
}

// AllRoutesOrEmpty is ListRoutes for best-effort callers: failures are logged
// and an empty slice is returned.
func (c *Client) AllRoutesOrEmpty(ctx context.Context) []Route {
	routes, err := c.ListRoutes(ctx)
	if err != nil {
		c.logger.Error("Failed to fetch routes, continuing with none", zap.Error(err))
		return []Route{}
	}
	return routes
}

func (c *Client) fetchPage(ctx context.Context, number int) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(number))
	q.Set("size", strconv.Itoa(c.pageSize))
	pageURL := c.collection + "?" + q.Encode()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Method: http.MethodGet, URL: pageURL, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode routes page %d: %w", number, err)
	}
	return &page, nil
}

// DeleteRoute deletes a single route. A 2xx answer and 404 (already gone)
// both count as success; any other status or a transport error is a
// failure. It never returns an error.
func (c *Client) DeleteRoute(ctx context.Context, id string) bool {
	logger := c.logger.With(zap.String("routeID", id))
	start := time.Now()

	if err := c.wait(ctx); err != nil {
		logger.Warn("Delete not attempted", zap.Error(err))
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.collection+"/"+url.PathEscape(id), nil)
	if err != nil {
		logger.Error("Failed to create delete request", zap.Error(err))
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error("Delete request failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		logger.Debug("Route deleted", zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))
		return true
	case resp.StatusCode == http.StatusNotFound:
		logger.Debug("Route already gone", zap.Int("status", resp.StatusCode))
		return true
	default:
		logger.Warn("Unexpected delete status", zap.Int("status", resp.StatusCode))
		return false
	}
}

// DeleteRoutes deletes ids in batches of BatchSize. Deletions within a batch
// run concurrently; batches run one after another. The result covers every
// id exactly once.
func (c *Client) DeleteRoutes(ctx context.Context, ids []string) Result {
	if len(ids) == 0 {
		return Result{}
	}
	c.logger.Info("Deleting routes",
		zap.Int("count", len(ids)),
		zap.Int("batchSize", c.batchSize),
		zap.Int("batches", len(Batches(ids, c.batchSize))))

	succeeded, failed := RunBatched(ctx, ids, c.batchSize, c.DeleteRoute)
	return Result{Success: succeeded, Failed: failed}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// StatusError is returned when the backend answers with an unexpected status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
