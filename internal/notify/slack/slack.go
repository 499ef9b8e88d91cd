// Package slack posts assignment outcomes to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/dispatch/internal/alert"
	"github.com/linnemanlabs/dispatch/internal/assignment"
)

const (
	maxDescriptionLen = 500
	httpTimeout       = 10 * time.Second
)

// AlertLookup resolves an alert id to its record, for richer messages.
type AlertLookup func(id string) (alert.Alert, bool)

// Notifier sends assignment events to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
	lookup     AlertLookup
}

var _ assignment.Notifier = (*Notifier)(nil)

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// SetAlertLookup lets messages include the alert category and description.
func (n *Notifier) SetAlertLookup(fn AlertLookup) { n.lookup = fn }

// Notify posts e to the configured webhook.
func (n *Notifier) Notify(ctx context.Context, e assignment.Event) error {
	if n.webhookURL == "" {
		return nil
	}

	var al *alert.Alert
	if n.lookup != nil {
		if a, ok := n.lookup(e.AlertID); ok {
			al = &a
		}
	}

	body, err := json.Marshal(buildMessage(e, al))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	n.logger.Info(ctx, "slack notification sent", "alert_id", e.AlertID, "kind", e.State.Kind)
	return nil
}

func buildMessage(e assignment.Event, al *alert.Alert) map[string]any {
	blocks := []map[string]any{
		headerBlock(e, al),
		fieldsBlock(e),
	}
	if al != nil && al.Description != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": truncate(al.Description, maxDescriptionLen),
			},
		})
	}
	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(e))
	return map[string]any{"blocks": blocks}
}

func headerBlock(e assignment.Event, al *alert.Alert) map[string]any {
	title := "Team assigned"
	if e.State.Kind == assignment.KindFailed {
		title = "Assignment failed"
	}
	subject := "alert " + e.AlertID
	if al != nil {
		subject = fmt.Sprintf("%s alert %s", al.Category, e.AlertID)
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s: %s", kindEmoji(e.State.Kind), title, subject),
		},
	}
}

func fieldsBlock(e assignment.Event) map[string]any {
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Team:* %s", e.State.TeamID)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Attempt:* %d", e.Attempt)},
	}
	if e.State.InterventionID != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Intervention:* %s", e.State.InterventionID)})
	}
	if e.State.Reason != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", e.State.Reason)})
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func contextBlock(e assignment.Event) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{{
			"type": "mrkdwn",
			"text": fmt.Sprintf("dispatch • event %s • %s", e.ID, e.State.UpdatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		}},
	}
}

func kindEmoji(k assignment.Kind) string {
	if k == assignment.KindFailed {
		return "\U0001f534" // red circle
	}
	return "\U0001f7e2" // green circle
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
