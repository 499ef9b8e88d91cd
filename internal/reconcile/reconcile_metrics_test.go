package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linnemanlabs/dispatch/internal/assignment"
)

func TestMetrics_Hooks(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	h := m.Hooks()

	h.OnRefresh(100*time.Millisecond, 5, 2, nil)
	h.OnRefresh(time.Second, 0, 0, errors.New("feed down"))
	h.OnView(3)

	if got := testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("success refreshes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error refreshes = %v, want 1", got)
	}
	// a failed refresh keeps the previous working set
	if got := testutil.ToFloat64(m.WorkingSetSize); got != 5 {
		t.Errorf("working set = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.NormalizeRejects); got != 2 {
		t.Errorf("rejects = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VisibleAlerts); got != 3 {
		t.Errorf("visible = %v, want 3", got)
	}
}

func TestMetrics_AssignmentHooks(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	h := m.AssignmentHooks()

	h.OnRequest("1", false)
	h.OnRequest("1", true)
	h.OnConflict("1")
	h.OnSettle(assignment.Event{AlertID: "1", State: assignment.State{Kind: assignment.KindFailed}, Duration: time.Second})
	h.OnSettle(assignment.Event{AlertID: "1", State: assignment.State{Kind: assignment.KindAssigned}, Duration: time.Second})

	for _, kind := range []string{"request", "retry"} {
		if got := testutil.ToFloat64(m.AssignRequests.WithLabelValues(kind)); got != 1 {
			t.Errorf("%s requests = %v, want 1", kind, got)
		}
	}
	if got := testutil.ToFloat64(m.AssignConflicts); got != 1 {
		t.Errorf("conflicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AssignmentsTotal.WithLabelValues("assigned")); got != 1 {
		t.Errorf("assigned = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.AssignmentDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	defer func() {
		if recover() == nil {
			t.Error("second NewMetrics on the same registry did not panic")
		}
	}()
	NewMetrics(reg)
}
