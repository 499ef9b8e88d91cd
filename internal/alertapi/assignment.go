package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/dispatch/internal/assignment"
)

type assignRequest struct {
	TeamID string `json:"team_id"`
}

func (a *API) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	annotateAlert(r, id)
	writeJSON(w, http.StatusOK, a.svc.Status(id))
}

func (a *API) handleAssign(w http.ResponseWriter, r *http.Request) {
	a.assign(w, r, a.svc.Assign)
}

func (a *API) handleRetry(w http.ResponseWriter, r *http.Request) {
	a.assign(w, r, a.svc.Retry)
}

type assignFunc func(ctx context.Context, alertID, teamID string) (assignment.State, error)

func (a *API) assign(w http.ResponseWriter, r *http.Request, fn assignFunc) {
	id := chi.URLParam(r, "id")
	annotateAlert(r, id)

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	req.TeamID = strings.TrimSpace(req.TeamID)

	st, err := fn(r.Context(), id, req.TeamID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, assignment.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, assignment.ErrConflict), errors.Is(err, assignment.ErrNotRetryable):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "assignment": st})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// still in flight; the client polls the assignment endpoint
		writeJSON(w, http.StatusAccepted, st)
	default:
		a.logger.Error(r.Context(), err, "assignment failed", "alert_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
