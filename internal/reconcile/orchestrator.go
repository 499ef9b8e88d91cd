// Package reconcile keeps the operator view consistent with the alert feed,
// the filter state, and the assignment tracker.
//
// The Orchestrator owns the working set of alerts. Refresh replaces it
// wholesale from the feed; SetFilter changes what is visible. Both
// recompute the cached filtered set and category stats in the same critical
// section, so readers never observe a half-updated view. Assignment states
// are read from the Tracker at View time.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/dispatch/internal/alert"
	"github.com/linnemanlabs/dispatch/internal/assignment"
	"github.com/linnemanlabs/dispatch/internal/filter"
	"github.com/linnemanlabs/dispatch/internal/geo"
	"github.com/linnemanlabs/dispatch/internal/roster"
)

const tracerName = "github.com/linnemanlabs/dispatch/internal/reconcile"

// DefaultRefreshDelay is how long after a successful assignment the feed is
// re-read, giving the backend time to reflect the new intervention.
const DefaultRefreshDelay = 1500 * time.Millisecond

// ErrTransport wraps every feed failure returned by Refresh.
var ErrTransport = errors.New("reconcile: feed unavailable")

// FeedSource produces the raw alert feed.
type FeedSource interface {
	FetchAlerts(ctx context.Context) ([]alert.Raw, error)
}

// TeamLister returns the teams that can be assigned.
type TeamLister interface {
	Teams(ctx context.Context) ([]roster.Team, error)
}

// Hooks are optional callbacks, used for metrics.
type Hooks struct {
	OnRefresh func(d time.Duration, alerts, rejected int, err error)
	OnView    func(visible int)
}

// Orchestrator coordinates the feed, filter, and tracker.
type Orchestrator struct {
	feed    FeedSource
	tracker *assignment.Tracker
	teams   TeamLister
	logger  log.Logger
	tracer  trace.Tracer

	hooks        Hooks
	refreshDelay time.Duration
	now          func() time.Time

	mu          sync.RWMutex
	all         []alert.Alert
	filter      filter.State
	visible     []alert.Alert
	stats       filter.Stats
	lastRefresh time.Time
	lastErr     error

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	closed   bool
}

// New creates an Orchestrator with the default filter and an empty working
// set. teams may be nil, in which case Teams returns an empty list.
func New(feed FeedSource, tracker *assignment.Tracker, teams TeamLister, logger log.Logger) *Orchestrator {
	if feed == nil {
		panic(xerrors.New("feed source is required"))
	}
	if tracker == nil {
		panic(xerrors.New("assignment tracker is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	o := &Orchestrator{
		feed:         feed,
		tracker:      tracker,
		teams:        teams,
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		refreshDelay: DefaultRefreshDelay,
		now:          time.Now,
		filter:       filter.Default(),
		timers:       make(map[*time.Timer]struct{}),
	}
	o.recomputeLocked()
	return o
}

// SetRefreshDelay overrides DefaultRefreshDelay. Zero refreshes immediately.
func (o *Orchestrator) SetRefreshDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	o.refreshDelay = d
}

// SetHooks installs metric callbacks. Call before use.
func (o *Orchestrator) SetHooks(h Hooks) { o.hooks = h }

// Refresh reads the feed, normalizes it and replaces the working set. On a
// feed failure the previous working set stays in place and the error wraps
// ErrTransport. Per-entry normalization failures are returned in the
// result; they do not fail the refresh.
//
// Concurrent refreshes are not cancelled; whichever finishes last wins.
func (o *Orchestrator) Refresh(ctx context.Context) (RefreshResult, error) {
	ctx, span := o.tracer.Start(ctx, "reconcile.Refresh")
	defer span.End()

	start := o.now()
	raws, err := o.feed.FetchAlerts(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		o.mu.Lock()
		o.lastErr = err
		o.mu.Unlock()

		o.logger.Warn(ctx, "alert feed fetch failed", "err", err)
		o.refreshed(o.now().Sub(start), 0, 0, err)
		return RefreshResult{}, err
	}

	alerts, errs := alert.NormalizeBatch(raws)
	for _, e := range errs {
		o.logger.Warn(ctx, "dropping malformed alert", "err", e)
	}

	o.mu.Lock()
	o.all = alerts
	o.lastRefresh = o.now()
	o.lastErr = nil
	o.recomputeLocked()
	visible := len(o.visible)
	o.mu.Unlock()

	span.SetAttributes(
		attribute.Int("dispatch.refresh.alerts", len(alerts)),
		attribute.Int("dispatch.refresh.rejected", len(errs)),
		attribute.Int("dispatch.refresh.visible", visible),
	)
	o.logger.Info(ctx, "alerts refreshed",
		"alerts", len(alerts),
		"rejected", len(errs),
		"visible", visible,
	)
	o.refreshed(o.now().Sub(start), len(alerts), len(errs), nil)
	return RefreshResult{Alerts: len(alerts), Errors: errs}, nil
}

func (o *Orchestrator) refreshed(d time.Duration, n, rejected int, err error) {
	if o.hooks.OnRefresh != nil {
		o.hooks.OnRefresh(d, n, rejected, err)
	}
}

// SetFilter applies p and recomputes the view before returning.
func (o *Orchestrator) SetFilter(p filter.Patch) (filter.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	next, err := o.filter.Apply(p)
	if err != nil {
		return o.filter.Clone(), err
	}
	o.filter = next
	o.recomputeLocked()
	return o.filter.Clone(), nil
}

// Filter returns the current filter state.
func (o *Orchestrator) Filter() filter.State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.filter.Clone()
}

func (o *Orchestrator) recomputeLocked() {
	o.visible = filter.Apply(o.all, o.filter, o.now())
	o.stats = filter.Aggregate(o.all, o.visible, o.filter)
	if o.hooks.OnView != nil {
		o.hooks.OnView(len(o.visible))
	}
}

// View returns the current materialized view. With the 24 hour toggle on,
// the filtered set is re-evaluated against the current time first, so
// alerts age out without waiting for the next refresh.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	if o.filter.OnlyLast24Hours {
		o.recomputeLocked()
	}
	v := View{
		Alerts:      make([]AlertView, 0, len(o.visible)),
		Stats:       make(filter.Stats, len(o.stats)),
		WorkingSet:  len(o.all),
		Filter:      o.filter.Clone(),
		LastRefresh: o.lastRefresh,
	}
	for c, n := range o.stats {
		v.Stats[c] = n
	}
	if o.lastErr != nil {
		v.LastError = o.lastErr.Error()
	}
	visible := o.visible
	o.mu.Unlock()

	for _, a := range visible {
		v.Alerts = append(v.Alerts, AlertView{Alert: a, Assignment: o.tracker.Status(a.ID)})
	}
	v.Total = v.Stats.Total()
	if box, ok := geo.Bounds(visible); ok {
		v.Bounds = &box
	}
	return v
}

// Alert looks up one alert of the working set.
func (o *Orchestrator) Alert(id string) (AlertView, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, a := range o.all {
		if a.ID == id {
			return AlertView{Alert: a, Assignment: o.tracker.Status(id)}, true
		}
	}
	return AlertView{}, false
}

// Status returns the assignment state of alertID.
func (o *Orchestrator) Status(alertID string) assignment.State {
	return o.tracker.Status(alertID)
}

// Assign requests teamID for alertID and waits for the outcome. A
// successful assignment schedules a refresh after the refresh delay.
func (o *Orchestrator) Assign(ctx context.Context, alertID, teamID string) (assignment.State, error) {
	ctx, span := o.tracer.Start(ctx, "reconcile.Assign", trace.WithAttributes(
		attribute.String("dispatch.alert.id", alertID),
		attribute.String("dispatch.team.id", teamID),
	))
	defer span.End()

	p, err := o.tracker.Request(ctx, alertID, teamID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.tracker.Status(alertID), err
	}
	return o.settle(ctx, span, p)
}

// Retry re-requests an alert whose last assignment failed.
func (o *Orchestrator) Retry(ctx context.Context, alertID, teamID string) (assignment.State, error) {
	ctx, span := o.tracer.Start(ctx, "reconcile.Retry", trace.WithAttributes(
		attribute.String("dispatch.alert.id", alertID),
		attribute.String("dispatch.team.id", teamID),
	))
	defer span.End()

	p, err := o.tracker.Retry(ctx, alertID, teamID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.tracker.Status(alertID), err
	}
	return o.settle(ctx, span, p)
}

func (o *Orchestrator) settle(ctx context.Context, span trace.Span, p *assignment.Pending) (assignment.State, error) {
	st, err := p.Wait(ctx)
	if err != nil {
		// caller gave up; the request keeps running and will be picked up
		// by the next View
		return o.tracker.Status(p.AlertID), err
	}
	span.SetAttributes(attribute.String("dispatch.assignment.kind", string(st.Kind)))
	if st.Kind == assignment.KindFailed {
		span.SetAttributes(attribute.String("dispatch.assignment.reason", st.Reason))
		span.SetStatus(codes.Error, st.Reason)
	}
	if st.Kind == assignment.KindAssigned {
		if inv, ok := o.teams.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
		o.scheduleRefresh(context.WithoutCancel(ctx))
	}
	return st, nil
}

func (o *Orchestrator) scheduleRefresh(ctx context.Context) {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	if o.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(o.refreshDelay, func() {
		o.timersMu.Lock()
		delete(o.timers, t)
		o.timersMu.Unlock()
		if _, err := o.Refresh(ctx); err != nil {
			o.logger.Warn(ctx, "post-assignment refresh failed", "err", err)
		}
	})
	o.timers[t] = struct{}{}
}

// Teams returns the assignable teams, empty on failure.
func (o *Orchestrator) Teams(ctx context.Context) ([]roster.Team, error) {
	if o.teams == nil {
		return []roster.Team{}, nil
	}
	return o.teams.Teams(ctx)
}

// Close stops pending delayed refreshes.
func (o *Orchestrator) Close() {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	o.closed = true
	for t := range o.timers {
		t.Stop()
	}
	clear(o.timers)
}
