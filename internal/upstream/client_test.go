package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linnemanlabs/dispatch/internal/assignment"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Token: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestFetchAlerts_NestedEnvelope(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathAlerts {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = fmt.Fprint(w, `{"data":{"data":{"data":[{"id":"1","category":"Incendies"},{"id":"2"}]}}}`)
	})

	raws, err := c.FetchAlerts(context.Background())
	if err != nil {
		t.Fatalf("FetchAlerts: %v", err)
	}
	if len(raws) != 2 || raws[0]["id"] != "1" || raws[0]["category"] != "Incendies" {
		t.Errorf("raws = %v", raws)
	}
}

func TestFetchAlerts_ShallowEnvelope(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"data":{"data":[{"id":"1"}]}}`)
	})
	raws, err := c.FetchAlerts(context.Background())
	if err != nil {
		t.Fatalf("FetchAlerts: %v", err)
	}
	if len(raws) != 1 {
		t.Errorf("len = %d, want 1", len(raws))
	}
}

func TestFetchAlerts_TransportErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}},
		{"not json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, `<html>`)
		}},
		{"no list", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, `{"data":{"data":{"data":{"x":1}}}}`)
		}},
		{"empty body", func(w http.ResponseWriter, _ *http.Request) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, tt.handler)
			_, err := c.FetchAlerts(context.Background())
			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("err = %v, want *TransportError", err)
			}
		})
	}
}

func TestFetchAlerts_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.FetchAlerts(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestFetchAvailableTeams(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathTeams {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = fmt.Fprint(w, `{"data":[{"id":"T1","first_name":"Ama","last_name":"Owusu"},{"first_name":"no id"}]}`)
	})
	teams, err := c.FetchAvailableTeams(context.Background())
	if err != nil {
		t.Fatalf("FetchAvailableTeams: %v", err)
	}
	if len(teams) != 1 || teams[0].ID != "T1" || teams[0].Name() != "Ama Owusu" {
		t.Errorf("teams = %+v", teams)
	}
}

func TestAssignTeam_Created(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != pathIntervention {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["alertId"] != "A1" || body["rescueMemberId"] != "T1" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"data":{"id":99}}`)
	})

	iv, err := c.AssignTeam(context.Background(), "A1", "T1")
	if err != nil {
		t.Fatalf("AssignTeam: %v", err)
	}
	if iv.ID != "99" || iv.AlertID != "A1" || iv.TeamID != "T1" {
		t.Errorf("intervention = %+v", iv)
	}
}

func TestAssignTeam_Rejected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = fmt.Fprint(w, `{"message":"no capacity"}`)
	})

	_, err := c.AssignTeam(context.Background(), "A1", "T1")
	if !errors.Is(err, assignment.ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	var re *RejectedError
	if !errors.As(err, &re) || re.Reason() != "no capacity" || re.StatusCode != http.StatusConflict {
		t.Errorf("RejectedError = %+v", re)
	}
}

func TestAssignTeam_MissingID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"data":{}}`)
	})
	_, err := c.AssignTeam(context.Background(), "A1", "T1")
	var re *RejectedError
	if !errors.As(err, &re) || re.Reason() != "" {
		t.Errorf("err = %v, want RejectedError without message", err)
	}
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"", "ftp://x", "://bad"} {
		if _, err := New(Config{BaseURL: u}); err == nil {
			t.Errorf("New(%q) expected error", u)
		}
	}
}
