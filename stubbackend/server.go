// Package stubbackend is an in-memory implementation of the route planner's
// routes REST API. Tests use it in place of the real backend, and the e2e
// environment falls back to it when no backend is configured.
package stubbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/routeplanner/e2e/cleanup"
	"go.uber.org/zap"
)

const defaultPageSize = 20

// Server serves /api/routes from memory.
type Server struct {
	logger     *zap.Logger
	routesPath string
	mux        *http.ServeMux

	mu           sync.Mutex
	order        []string
	routes       map[string]cleanup.Route
	failDeletes  map[string]int
	listFailure  int
	deleteDelay  time.Duration
	requests     map[string]int
	deletedIDs   []string
	inFlight     atomic.Int32
	peakInFlight atomic.Int32

	httpServer *http.Server
	listener   net.Listener
}

// Option customizes a Server.
type Option func(*Server)

// WithRoutesPath mounts the collection somewhere other than /api/routes.
func WithRoutesPath(path string) Option {
	return func(s *Server) {
		s.routesPath = "/" + strings.Trim(path, "/")
	}
}

// WithDeleteDelay makes every DELETE take at least d.
func WithDeleteDelay(d time.Duration) Option {
	return func(s *Server) {
		s.deleteDelay = d
	}
}

// New creates an empty stub backend.
func New(logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:      logger.Named("stub-backend"),
		routesPath:  cleanup.DefaultRoutesPath,
		routes:      make(map[string]cleanup.Route),
		failDeletes: make(map[string]int),
		requests:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET "+s.routesPath, s.handleList)
	s.mux.HandleFunc("POST "+s.routesPath, s.handleCreate)
	s.mux.HandleFunc("GET "+s.routesPath+"/{id}", s.handleGet)
	s.mux.HandleFunc("DELETE "+s.routesPath+"/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.Method]++
	s.mu.Unlock()
	s.mux.ServeHTTP(w, r)
}

// Start listens on addr (":0" for a free port) and serves in the background.
// It returns the base URL of the server.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Stub backend stopped unexpectedly", zap.Error(err))
		}
	}()

	url := "http://" + listener.Addr().String()
	s.logger.Info("Stub backend listening", zap.String("url", url))
	return url, nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Seed stores routes as if they had been created through the API and
// returns their ids. Routes without an id get a generated one.
func (s *Server) Seed(routes ...cleanup.Route) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(routes))
	for _, r := range routes {
		ids = append(ids, s.storeLocked(r))
	}
	return ids
}

// SeedNames is Seed for routes that only need a name.
func (s *Server) SeedNames(names ...string) []string {
	routes := make([]cleanup.Route, 0, len(names))
	for _, n := range names {
		routes = append(routes, cleanup.Route{Name: n})
	}
	return s.Seed(routes...)
}

// FailDelete makes DELETE of id answer status until cleared with status 0.
func (s *Server) FailDelete(id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failDeletes, id)
		return
	}
	s.failDeletes[id] = status
}

// FailList makes listing answer status; 0 restores normal behaviour.
func (s *Server) FailList(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listFailure = status
}

// Routes returns the stored routes in creation order.
func (s *Server) Routes() []cleanup.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cleanup.Route, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.routes[id])
	}
	return out
}

// Has reports whether a route with id is stored.
func (s *Server) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.routes[id]
	return ok
}

// Requests returns how many requests with method were received.
func (s *Server) Requests(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method]
}

// TotalRequests returns the number of requests of any method.
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.requests {
		total += n
	}
	return total
}

// DeletedIDs returns the ids removed by DELETE, in completion order.
func (s *Server) DeletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletedIDs...)
}

// PeakConcurrentDeletes is the highest number of DELETEs seen in flight.
func (s *Server) PeakConcurrentDeletes() int {
	return int(s.peakInFlight.Load())
}

func (s *Server) storeLocked(r cleanup.Route) string {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt == nil {
		now := time.Now().UTC()
		r.CreatedAt = &now
	}
	if _, exists := s.routes[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.routes[r.ID] = r
	return r.ID
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	failure := s.listFailure
	s.mu.Unlock()
	if failure != 0 {
		writeError(w, failure, "listing disabled")
		return
	}

	pageNumber, err := queryInt(r, "page", 0)
	if err != nil || pageNumber < 0 {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	size, err := queryInt(r, "size", defaultPageSize)
	if err != nil || size < 1 {
		writeError(w, http.StatusBadRequest, "invalid size")
		return
	}

	all := s.Routes()
	start := min(pageNumber*size, len(all))
	end := min(start+size, len(all))
	page := cleanup.Page{
		Content:       all[start:end],
		TotalElements: len(all),
		TotalPages:    (len(all) + size - 1) / size,
		Number:        pageNumber,
		Size:          size,
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var route cleanup.Route
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(route.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	route.ID = ""
	route.CreatedAt = nil

	s.mu.Lock()
	id := s.storeLocked(route)
	created := s.routes[id]
	s.mu.Unlock()

	s.logger.Debug("Route created", zap.String("routeID", id), zap.String("name", created.Name))
	w.Header().Set("Location", s.routesPath+"/"+id)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	route, ok := s.routes[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "route not found")
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peakInFlight.Load()
		if current <= peak || s.peakInFlight.CompareAndSwap(peak, current) {
			break
		}
	}

	if s.deleteDelay > 0 {
		select {
		case <-time.After(s.deleteDelay):
		case <-r.Context().Done():
			return
		}
	}

	id := r.PathValue("id")
	s.mu.Lock()
	if status, fail := s.failDeletes[id]; fail {
		s.mu.Unlock()
		writeError(w, status, "deletion rejected")
		return
	}
	if _, ok := s.routes[id]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "route not found")
		return
	}
	delete(s.routes, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.deletedIDs = append(s.deletedIDs, id)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": status, "message": message})
}
