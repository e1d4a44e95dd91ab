package cleanup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Waypoint is a single point of a saved route.
type Waypoint struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label,omitempty"`
}

// Route is a route record owned by the backend. Only ID and Name drive
// cleanup decisions; the other fields are informational.
type Route struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	StartLocation string     `json:"startLocation,omitempty"`
	EndLocation   string     `json:"endLocation,omitempty"`
	Waypoints     []Waypoint `json:"waypoints,omitempty"`
	Distance      float64    `json:"distance,omitempty"` // meters
	Duration      float64    `json:"duration,omitempty"` // seconds
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
}

// UnmarshalJSON accepts both string and numeric identifiers.
func (r *Route) UnmarshalJSON(data []byte) error {
	type plain Route
	aux := struct {
		ID json.RawMessage `json:"id"`
		*plain
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := parseID(aux.ID)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// Page is the paginated envelope returned by the routes collection.
type Page struct {
	Content       []Route `json:"content"`
	TotalElements int     `json:"totalElements"`
	TotalPages    int     `json:"totalPages"`
	Number        int     `json:"number"`
	Size          int     `json:"size"`
}

// Last reports whether no further pages follow this one.
func (p *Page) Last() bool {
	return p.Number+1 >= p.TotalPages || len(p.Content) == 0
}

// parseID turns a JSON id value (string or number) into its string form.
// A missing or null id yields an empty string without error.
func parseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("id is neither a string nor a number: %s", raw)
		}
		return n.String(), nil
	}
}
