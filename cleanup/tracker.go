package cleanup

import (
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Tracker records the identifiers of routes created by the running test
// process so they can be deleted at the end of the run. One Tracker is
// constructed per run and passed to every hook that needs it.
type Tracker struct {
	mu      sync.Mutex
	ids     map[string]struct{}
	pending sync.WaitGroup
	logger  *zap.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		ids:    make(map[string]struct{}),
		logger: logger.Named("tracker"),
	}
}

// Add records id. Adding the same id twice keeps a single entry.
func (t *Tracker) Add(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	_, exists := t.ids[id]
	t.ids[id] = struct{}{}
	total := len(t.ids)
	t.mu.Unlock()

	if exists {
		t.logger.Debug("Route already tracked", zap.String("routeID", id))
		return
	}
	t.logger.Info("Tracking route for cleanup", zap.String("routeID", id), zap.Int("tracked", total))
}

// IDs returns a sorted snapshot of the tracked identifiers.
func (t *Tracker) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.ids))
	for id := range t.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked identifiers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// Clear forgets every tracked identifier.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.ids = make(map[string]struct{})
	t.mu.Unlock()
	t.logger.Debug("Tracked routes cleared")
}

// TrackRouteCreation extracts the id of a route-creation response body and
// tracks it. Malformed bodies and bodies without an id are logged and
// ignored; this never fails the calling test.
func (t *Tracker) TrackRouteCreation(body []byte) {
	var created struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.logger.Warn("Could not parse route creation response", zap.Error(err), zap.Int("bodySize", len(body)))
		return
	}
	id, err := parseID(created.ID)
	if err != nil {
		t.logger.Warn("Route creation response has an unusable id", zap.Error(err))
		return
	}
	if id == "" {
		t.logger.Warn("Route creation response has no id", zap.ByteString("body", truncate(body, 256)))
		return
	}
	t.Add(id)
}

// Wait blocks until response observations started by Attach have finished.
func (t *Tracker) Wait() {
	t.pending.Wait()
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
