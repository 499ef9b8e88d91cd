package alertapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/dispatch/internal/filter"
	"github.com/linnemanlabs/dispatch/internal/reconcile"
)

func (a *API) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.View())
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	annotateAlert(r, id)

	av, ok := a.svc.Alert(id)
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, av)
}

type refreshResponse struct {
	Alerts   int      `json:"alerts"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Refresh(r.Context())
	if errors.Is(err, reconcile.ErrTransport) {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "refresh failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	resp := refreshResponse{Alerts: res.Alerts, Rejected: len(res.Errors)}
	for _, e := range res.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetFilter(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Filter())
}

func (a *API) handlePatchFilter(w http.ResponseWriter, r *http.Request) {
	var p filter.Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	st, err := a.svc.SetFilter(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.svc.Teams(r.Context())
	resp := map[string]any{"teams": teams}
	if err != nil {
		a.logger.Warn(r.Context(), "team roster unavailable", "err", err)
		resp["error"] = "team roster unavailable"
	}
	writeJSON(w, http.StatusOK, resp)
}
