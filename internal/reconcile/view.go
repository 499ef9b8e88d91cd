package reconcile

import (
	"time"

	"github.com/linnemanlabs/dispatch/internal/alert"
	"github.com/linnemanlabs/dispatch/internal/assignment"
	"github.com/linnemanlabs/dispatch/internal/filter"
	"github.com/linnemanlabs/dispatch/internal/geo"
)

// AlertView is a visible alert decorated with its assignment state.
type AlertView struct {
	alert.Alert
	Assignment assignment.State `json:"assignment"`
}

// View is the materialized operator view.
type View struct {
	Alerts      []AlertView  `json:"alerts"`
	Stats       filter.Stats `json:"stats"`
	Total       int          `json:"total"`
	WorkingSet  int          `json:"working_set"`
	Filter      filter.State `json:"filter"`
	Bounds      *geo.Box     `json:"bounds,omitempty"`
	LastRefresh time.Time    `json:"last_refresh,omitzero"`
	LastError   string       `json:"last_error,omitempty"`
}

// RefreshResult reports one refresh.
type RefreshResult struct {
	Alerts int     `json:"alerts"`
	Errors []error `json:"-"`
}
