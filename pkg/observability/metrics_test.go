package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
)

func nodeEvent(t domain.EventType, id string, d time.Duration, err error) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: domain.EventBase{Type: t, Workflow: "flow"},
		NodeID:    id,
		NodeType:  "prompt",
		Duration:  d,
		Err:       err,
	}
}

func stateEvent(t domain.EventType, status domain.Status) *domain.StateEvent {
	return &domain.StateEvent{
		EventBase: domain.EventBase{Type: t, Workflow: "flow"},
		NodeID:    "ask",
		Status:    status,
	}
}

func TestMetricsHooks(t *testing.T) {
	ctx := context.Background()
	m := observability.NewMetrics(prometheus.NewRegistry())
	hooks := m.Hooks()

	hooks.OnNodeEnter(ctx, nodeEvent(domain.EventNodeEnter, "greet", 0, nil))
	hooks.OnNodeLeave(ctx, nodeEvent(domain.EventNodeLeave, "greet", 20*time.Millisecond, nil))
	hooks.OnNodeEnter(ctx, nodeEvent(domain.EventNodeEnter, "greet", 0, nil))
	hooks.OnNodeLeave(ctx, nodeEvent(domain.EventNodeLeave, "greet", time.Millisecond, errors.New("boom")))
	hooks.OnSnapshot(ctx, stateEvent(domain.EventSnapshot, domain.StatusRunning))
	hooks.OnSuspend(ctx, stateEvent(domain.EventSuspend, domain.StatusAwaitingInput))
	hooks.OnResume(ctx, stateEvent(domain.EventResume, domain.StatusRunning))
	hooks.OnFail(ctx, stateEvent(domain.EventFail, domain.StatusFailed))
	hooks.OnRecover(ctx, stateEvent(domain.EventRecover, domain.StatusFailed))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodeVisits.WithLabelValues("flow", "greet", "prompt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeErrors.WithLabelValues("flow", "greet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("flow", "AWAITING_INPUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("flow", "FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resumes.WithLabelValues("flow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recoveries.WithLabelValues("flow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Snapshots.WithLabelValues("flow")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.NodeDuration))
}

func TestMetricsHandler(t *testing.T) {
	m := observability.NewMetrics(nil)
	m.Hooks().OnTerminate(context.Background(), stateEvent(domain.EventTerminate, domain.StatusTerminated))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `arbor_run_outcomes_total{status="TERMINATED",workflow="flow"} 1`)
}

func TestMergedHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := observability.NewMetrics(nil)

	hooks := m.Hooks().Merge(observability.LogHooks(logger))
	hooks.OnNodeEnter(context.Background(), nodeEvent(domain.EventNodeEnter, "greet", 0, nil))
	hooks.OnFail(context.Background(), stateEvent(domain.EventFail, domain.StatusFailed))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeVisits.WithLabelValues("flow", "greet", "prompt")))
	out := buf.String()
	assert.Contains(t, out, "node=greet")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "status=FAILED")
}
