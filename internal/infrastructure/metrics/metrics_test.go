package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/messaging"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/scheduler"
	"github.com/wellness-escape/vitality-hub/pkg/circuitbreaker"
)

type brokenMedium struct{}

func (brokenMedium) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("down")
}

func (brokenMedium) Set(context.Context, string, string) error { return errors.New("down") }

func TestMetrics_RequestsAndDenials(t *testing.T) {
	m := New()
	m.ObserveRequest("GET /api/v1/sessions/{sessionId}", http.MethodGet, 200, 30*time.Millisecond)
	m.ObserveRequest("", http.MethodGet, 404, time.Millisecond)
	m.Denied("gate")
	m.Flushed(0)
	m.Flushed(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET /api/v1/sessions/{sessionId}", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("unmatched", "GET", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.policyDenials.WithLabelValues("gate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.flushedWrites))
}

func TestMetrics_StoreFailuresAndPending(t *testing.T) {
	m := New()
	store := progress.NewStore(brokenMedium{}, progress.WithFailureHandler(func(op progress.Op, _ string, _ error) {
		m.MediumFailure(op)
	}))
	m.TrackPending(store)

	_, err := store.MarkSessionComplete(context.Background(), "alice", "1")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.mediumFailures.WithLabelValues("save")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.mediumFailures.WithLabelValues("load")), 1.0)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "vitality_hub_progress_pending_writes 1")
}

func TestMetrics_SubscribeCountsEvents(t *testing.T) {
	m := New()
	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	require.NoError(t, m.Subscribe(bus))

	require.NoError(t, bus.Publish(shared.NewWeekCompletedEvent("alice", "1", 1)))
	require.NoError(t, bus.Publish(shared.NewWeekCompletedEvent("bob", "1", 1)))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues(string(shared.EventWeekCompleted))))
}

func TestMetrics_BreakerState(t *testing.T) {
	m := New()
	cb := circuitbreaker.ProgressMediumBreaker(1, time.Hour, m.BreakerStateChanged)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })

	assert.Equal(t, float64(circuitbreaker.StateOpen), testutil.ToFloat64(m.breakerState.WithLabelValues("progress-medium")))
}

func TestMetrics_JobFinished(t *testing.T) {
	m := New()
	m.JobFinished(scheduler.JobResult{JobName: "flush-pending-progress"})
	m.JobFinished(scheduler.JobResult{JobName: "flush-pending-progress"})
	m.JobFinished(scheduler.JobResult{JobName: "flush-pending-progress", Err: errors.New("boom")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("flush-pending-progress", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("flush-pending-progress", "failure")))
}
