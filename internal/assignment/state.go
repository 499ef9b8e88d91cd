package assignment

import "time"

// Kind tracks where an alert is in the assignment lifecycle.
type Kind string

const (
	// KindUnassigned means no team has been requested. Absent entries read as this.
	KindUnassigned Kind = "unassigned"

	// KindAssigning means a request is in flight
	KindAssigning Kind = "assigning"

	// KindAssigned means the backend created an intervention
	KindAssigned Kind = "assigned"

	// KindFailed means the last request was refused or errored
	KindFailed Kind = "failed"
)

// State is the assignment status of one alert.
type State struct {
	Kind           Kind      `json:"kind"`
	TeamID         string    `json:"team_id,omitempty"`
	InterventionID string    `json:"intervention_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
}

// Unassigned is the zero-information state.
func Unassigned() State { return State{Kind: KindUnassigned} }

// Settled reports whether s is a terminal outcome of a request.
func (s State) Settled() bool {
	return s.Kind == KindAssigned || s.Kind == KindFailed
}

// Intervention is what the backend returns for an accepted assignment.
type Intervention struct {
	ID      string `json:"id"`
	AlertID string `json:"alert_id"`
	TeamID  string `json:"team_id"`
}

// Event describes a settled assignment. It is handed to notifiers.
type Event struct {
	ID       string        `json:"id"`
	AlertID  string        `json:"alert_id"`
	State    State         `json:"state"`
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration_ns"`
}
