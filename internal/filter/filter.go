// Package filter decides which alerts are visible to the operator and
// derives the per-category badge counts shown next to the filter toggles.
package filter

import (
	"strings"
	"time"

	"github.com/linnemanlabs/dispatch/internal/alert"
)

// RecentWindow is the horizon of the "only last 24 hours" toggle.
const RecentWindow = 24 * time.Hour

// State is the set of filter toggles plus the free-text search.
type State struct {
	AllCategories   bool                    `json:"all_categories"`
	OnlyLast24Hours bool                    `json:"only_last_24_hours"`
	Categories      map[alert.Category]bool `json:"categories"`
	Search          string                  `json:"search"`
}

// Default returns the baseline state: every category on, last 24 hours on,
// no search.
func Default() State {
	s := State{
		AllCategories:   true,
		OnlyLast24Hours: true,
		Categories:      make(map[alert.Category]bool),
	}
	for _, c := range alert.Categories() {
		s.Categories[c] = true
	}
	return s
}

// Clone returns a deep copy so callers can't mutate shared toggle maps.
func (s State) Clone() State {
	cp := s
	cp.Categories = make(map[alert.Category]bool, len(s.Categories))
	for k, v := range s.Categories {
		cp.Categories[k] = v
	}
	return cp
}

// Active reports whether the state narrows the view relative to the
// "show everything" baseline (all categories and last 24 hours both on).
func (s State) Active() bool {
	return !(s.AllCategories && s.OnlyLast24Hours)
}

// Evaluate reports whether a is visible under s at time now. Rules are
// applied in fixed order and the first failing rule excludes the alert.
func Evaluate(a alert.Alert, s State, now time.Time) bool {
	if s.OnlyLast24Hours && now.Sub(a.ReportedAt) > RecentWindow {
		return false
	}

	if q := strings.ToLower(strings.TrimSpace(s.Search)); q != "" {
		if !strings.Contains(strings.ToLower(string(a.Category)), q) &&
			!strings.Contains(strings.ToLower(a.Category.BackendLabel()), q) {
			return false
		}
	}

	if !s.AllCategories && !s.Categories[a.Category] {
		return false
	}

	return true
}

// Apply filters alerts under s, preserving input order.
func Apply(alerts []alert.Alert, s State, now time.Time) []alert.Alert {
	out := make([]alert.Alert, 0, len(alerts))
	for _, a := range alerts {
		if Evaluate(a, s, now) {
			out = append(out, a)
		}
	}
	return out
}
