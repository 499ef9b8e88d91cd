// Package upstream talks to the dispatch REST backend: the alert feed, the
// available-team roster, and intervention creation.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/spf13/cast"

	"github.com/linnemanlabs/dispatch/internal/alert"
	"github.com/linnemanlabs/dispatch/internal/assignment"
	"github.com/linnemanlabs/dispatch/internal/roster"
)

const (
	pathAlerts       = "/admin/all-alerts"
	pathTeams        = "/admin/available-rescue-members"
	pathIntervention = "/intervention/create"

	maxBody = 8 << 20
)

var (
	_ assignment.Assigner = (*Client)(nil)
	_ roster.Source       = (*Client)(nil)
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is an HTTP client for the backend.
type Client struct {
	base       *url.URL
	token      string
	httpClient *http.Client
}

// New validates c and builds a Client.
func New(c Config) (*Client, error) {
	if c.BaseURL == "" {
		return nil, errors.New("upstream: base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream: base URL must be http or https, got %q", u.Scheme)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:  u,
		token: c.Token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// FetchAlerts returns the raw alert entries of the feed.
func (c *Client) FetchAlerts(ctx context.Context) ([]alert.Raw, error) {
	const op = "fetch alerts"
	body, err := c.get(ctx, op, pathAlerts)
	if err != nil {
		return nil, err
	}

	// The feed nests the list as data.data.data; older deployments answer
	// with data.data.
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	items, err := unwrapList(env.Data, 2)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	out := make([]alert.Raw, 0, len(items))
	for _, it := range items {
		m, _ := it.(map[string]any)
		out = append(out, alert.Raw(m))
	}
	return out, nil
}

// FetchAvailableTeams returns the current roster.
func (c *Client) FetchAvailableTeams(ctx context.Context) ([]roster.Team, error) {
	const op = "fetch teams"
	body, err := c.get(ctx, op, pathTeams)
	if err != nil {
		return nil, err
	}
	var env struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("decode roster: %w", err)}
	}
	teams := make([]roster.Team, 0, len(env.Data))
	for _, raw := range env.Data {
		if t, ok := roster.TeamFromRaw(raw); ok {
			teams = append(teams, t)
		}
	}
	return teams, nil
}

// AssignTeam asks the backend to create an intervention. A non-2xx answer
// yields a RejectedError carrying the backend message.
func (c *Client) AssignTeam(ctx context.Context, alertID, teamID string) (assignment.Intervention, error) {
	const op = "create intervention"
	payload, err := json.Marshal(map[string]string{
		"alertId":        alertID,
		"rescueMemberId": teamID,
	})
	if err != nil {
		return assignment.Intervention{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, pathIntervention, bytes.NewReader(payload))
	if err != nil {
		return assignment.Intervention{}, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return assignment.Intervention{}, &TransportError{Op: op, Err: err}
	}

	var resp struct {
		Message string `json:"message"`
		Data    struct {
			ID any `json:"id"`
		} `json:"data"`
	}
	_ = json.Unmarshal(body, &resp)

	if status < 200 || status >= 300 {
		return assignment.Intervention{}, &RejectedError{StatusCode: status, Message: strings.TrimSpace(resp.Message)}
	}

	id := strings.TrimSpace(cast.ToString(resp.Data.ID))
	if id == "" {
		return assignment.Intervention{}, &RejectedError{StatusCode: status, Message: resp.Message}
	}
	return assignment.Intervention{ID: id, AlertID: alertID, TeamID: teamID}, nil
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	status, body, err := c.do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if status != http.StatusOK {
		return nil, &TransportError{Op: op, StatusCode: status, Err: fmt.Errorf("%s", truncate(body, 256))}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &TransportError{Op: op, Err: errEmptyBody}
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req) //nolint:gosec // base URL is from trusted config
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// unwrapList descends through up to depth nested "data" objects until it
// finds a JSON array.
func unwrapList(raw json.RawMessage, depth int) ([]any, error) {
	for {
		var list []any
		if err := json.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
		if depth == 0 {
			return nil, errors.New("alert list not found in response")
		}
		var next struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &next); err != nil || len(next.Data) == 0 {
			return nil, errors.New("alert list not found in response")
		}
		raw = next.Data
		depth--
	}
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
