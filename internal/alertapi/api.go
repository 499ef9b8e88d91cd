// Package alertapi exposes the operator view and assignment actions over HTTP.
package alertapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/dispatch/internal/assignment"
	"github.com/linnemanlabs/dispatch/internal/filter"
	"github.com/linnemanlabs/dispatch/internal/reconcile"
	"github.com/linnemanlabs/dispatch/internal/roster"
)

// Service defines the operations alertapi needs. *reconcile.Orchestrator
// implements it.
type Service interface {
	View() reconcile.View
	Refresh(ctx context.Context) (reconcile.RefreshResult, error)
	Filter() filter.State
	SetFilter(p filter.Patch) (filter.State, error)
	Alert(id string) (reconcile.AlertView, bool)
	Status(alertID string) assignment.State
	Assign(ctx context.Context, alertID, teamID string) (assignment.State, error)
	Retry(ctx context.Context, alertID, teamID string) (assignment.State, error)
	Teams(ctx context.Context) ([]roster.Team, error)
}

var _ Service = (*reconcile.Orchestrator)(nil)

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    Service
}

// New creates a new API handler.
func New(logger log.Logger, svc Service) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("reconcile service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router. mw wraps every
// /api/v1 route, typically with bearer auth.
func (a *API) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw...)

		r.Get("/alerts", a.handleView)
		r.Get("/alerts/{id}", a.handleGetAlert)
		r.Get("/alerts/{id}/assignment", a.handleGetAssignment)
		r.Post("/alerts/{id}/assignment", a.handleAssign)
		r.Post("/alerts/{id}/assignment/retry", a.handleRetry)

		r.Post("/refresh", a.handleRefresh)

		r.Get("/filters", a.handleGetFilter)
		r.Patch("/filters", a.handlePatchFilter)

		r.Get("/teams", a.handleTeams)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func annotateAlert(r *http.Request, id string) {
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("dispatch.alert.id", id))
}
