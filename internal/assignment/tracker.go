// Package assignment tracks the lifecycle of team-to-alert assignments.
//
// A Tracker holds one State per alert. Request moves an alert to Assigning
// and calls the Assigner in the background; the outcome (Assigned or Failed)
// is written to a durable Slot so it survives a restart. At most one request
// per alert is in flight at any time.
package assignment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"
)

// Per-alert states and the index live under disjoint prefixes so no alert
// id can collide with the index key.
const (
	statePrefix = "assignment:state:"
	indexKey    = "assignment:meta:index"
)

func stateKey(alertID string) string { return statePrefix + alertID }

// Slot is a small durable key/value store for settled states.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Assigner asks the backend to create an intervention for alertID.
type Assigner interface {
	AssignTeam(ctx context.Context, alertID, teamID string) (Intervention, error)
}

// Notifier is told about every settled assignment.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Hooks are optional callbacks, used for metrics.
type Hooks struct {
	OnRequest  func(alertID string, retry bool)
	OnConflict func(alertID string)
	OnSettle   func(e Event)
}

// Pending is a request in flight.
type Pending struct {
	AlertID string
	TeamID  string

	done  chan struct{}
	state State
}

// Done is closed once the request has settled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the request settles or ctx ends. Cancelling ctx does not
// cancel the request itself.
func (p *Pending) Wait(ctx context.Context) (State, error) {
	select {
	case <-p.done:
		return p.state, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Tracker owns the per-alert assignment table.
type Tracker struct {
	slot     Slot
	assigner Assigner
	logger   log.Logger

	hooks     Hooks
	notifiers []Notifier
	now       func() time.Time

	mu       sync.Mutex
	states   map[string]State
	attempts map[string]int

	// serializes read-modify-write of the persisted index
	indexMu sync.Mutex
	indexed map[string]struct{}
}

// New creates a Tracker. slot and assigner are required.
func New(slot Slot, assigner Assigner, logger log.Logger) *Tracker {
	if slot == nil {
		panic(xerrors.New("assignment slot is required"))
	}
	if assigner == nil {
		panic(xerrors.New("assigner is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Tracker{
		slot:     slot,
		assigner: assigner,
		logger:   logger,
		now:      time.Now,
		states:   make(map[string]State),
		attempts: make(map[string]int),
		indexed:  make(map[string]struct{}),
	}
}

// SetHooks installs metric callbacks. Call before the first Request.
func (t *Tracker) SetHooks(h Hooks) { t.hooks = h }

// AddNotifier registers n for settled events. Call before the first Request.
func (t *Tracker) AddNotifier(n Notifier) {
	if n != nil {
		t.notifiers = append(t.notifiers, n)
	}
}

// Status returns the current state of alertID, Unassigned if unknown.
func (t *Tracker) Status(alertID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked(alertID)
}

// Snapshot returns a copy of every known state.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]State, len(t.states))
	for k, v := range t.states {
		out[k] = v
	}
	return out
}

func (t *Tracker) statusLocked(alertID string) State {
	if s, ok := t.states[alertID]; ok {
		return s
	}
	return Unassigned()
}

// Request starts assigning teamID to alertID. It returns a ConflictError
// without contacting the backend if the alert is already Assigning or
// Assigned.
func (t *Tracker) Request(ctx context.Context, alertID, teamID string) (*Pending, error) {
	return t.request(ctx, alertID, teamID, false)
}

// Retry is Request for an alert whose last attempt failed. Any other state
// yields ErrNotRetryable.
func (t *Tracker) Retry(ctx context.Context, alertID, teamID string) (*Pending, error) {
	return t.request(ctx, alertID, teamID, true)
}

func (t *Tracker) request(ctx context.Context, alertID, teamID string, retry bool) (*Pending, error) {
	if alertID == "" || teamID == "" {
		return nil, ErrInvalidRequest
	}

	t.mu.Lock()
	cur := t.statusLocked(alertID)
	if retry && cur.Kind != KindFailed {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: alert %s is %s", ErrNotRetryable, alertID, cur.Kind)
	}
	if cur.Kind == KindAssigning || cur.Kind == KindAssigned {
		t.mu.Unlock()
		if t.hooks.OnConflict != nil {
			t.hooks.OnConflict(alertID)
		}
		return nil, &ConflictError{AlertID: alertID, Current: cur}
	}
	t.states[alertID] = State{Kind: KindAssigning, TeamID: teamID, UpdatedAt: t.now()}
	t.attempts[alertID]++
	attempt := t.attempts[alertID]
	t.mu.Unlock()

	if t.hooks.OnRequest != nil {
		t.hooks.OnRequest(alertID, retry)
	}

	p := &Pending{AlertID: alertID, TeamID: teamID, done: make(chan struct{})}
	go t.run(context.WithoutCancel(ctx), p, attempt)
	return p, nil
}

func (t *Tracker) run(ctx context.Context, p *Pending, attempt int) {
	L := t.logger.With("alert_id", p.AlertID, "team_id", p.TeamID, "attempt", attempt)
	start := t.now()

	var next State
	iv, err := t.assigner.AssignTeam(ctx, p.AlertID, p.TeamID)
	if err != nil {
		next = State{Kind: KindFailed, TeamID: p.TeamID, Reason: failureReason(err), UpdatedAt: t.now()}
		L.Warn(ctx, "assignment failed", "reason", next.Reason, "err", err)
	} else {
		next = State{Kind: KindAssigned, TeamID: p.TeamID, InterventionID: iv.ID, UpdatedAt: t.now()}
		L.Info(ctx, "assignment accepted", "intervention_id", iv.ID)
	}

	t.mu.Lock()
	t.states[p.AlertID] = next
	t.mu.Unlock()

	if err := t.persist(ctx, p.AlertID, next); err != nil {
		L.Error(ctx, err, "failed to persist assignment state")
	}

	p.state = next
	close(p.done)

	ev := Event{
		ID:       ulid.Make().String(),
		AlertID:  p.AlertID,
		State:    next,
		Attempt:  attempt,
		Duration: next.UpdatedAt.Sub(start),
	}
	if t.hooks.OnSettle != nil {
		t.hooks.OnSettle(ev)
	}
	for _, n := range t.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			L.Warn(ctx, "assignment notification failed", "err", err)
		}
	}
}

func (t *Tracker) persist(ctx context.Context, alertID string, s State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := t.slot.Set(ctx, stateKey(alertID), b); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	t.indexMu.Lock()
	defer t.indexMu.Unlock()
	if _, ok := t.indexed[alertID]; ok {
		return nil
	}
	ids, err := t.loadIndex(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(ids)+1)
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	if _, ok := seen[alertID]; !ok {
		ids = append(ids, alertID)
	}
	b, err = json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := t.slot.Set(ctx, indexKey, b); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	for _, id := range ids {
		t.indexed[id] = struct{}{}
	}
	return nil
}

func (t *Tracker) loadIndex(ctx context.Context) ([]string, error) {
	b, ok, err := t.slot.Get(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if !ok || len(b) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		// treated as empty; the next persist rewrites it
		t.logger.Warn(ctx, "discarding undecodable assignment index", "err", err)
		return nil, nil
	}
	return ids, nil
}

// Restore reloads settled states from the slot. Entries currently in flight
// are left alone. It returns the number of states loaded.
func (t *Tracker) Restore(ctx context.Context) (int, error) {
	t.indexMu.Lock()
	ids, err := t.loadIndex(ctx)
	if err == nil {
		for _, id := range ids {
			t.indexed[id] = struct{}{}
		}
	}
	t.indexMu.Unlock()
	if err != nil {
		return 0, err
	}

	loaded := make(map[string]State, len(ids))
	for _, id := range ids {
		b, ok, err := t.slot.Get(ctx, stateKey(id))
		if err != nil {
			return 0, fmt.Errorf("read state %s: %w", id, err)
		}
		if !ok {
			continue
		}
		var s State
		if err := json.Unmarshal(b, &s); err != nil {
			t.logger.Warn(ctx, "skipping undecodable assignment state", "alert_id", id, "err", err)
			continue
		}
		if !s.Settled() {
			continue
		}
		loaded[id] = s
	}

	t.mu.Lock()
	for id, s := range loaded {
		if t.states[id].Kind == KindAssigning {
			continue
		}
		t.states[id] = s
	}
	t.mu.Unlock()

	t.logger.Info(ctx, "assignment states restored", "count", len(loaded))
	return len(loaded), nil
}
