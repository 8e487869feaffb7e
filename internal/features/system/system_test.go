package system

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/engine"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu     sync.Mutex
	got    []engine.TransitionEvent
	fail   error
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.got = append(f.got, v.(engine.TransitionEvent))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []engine.TransitionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.TransitionEvent(nil), f.got...)
}

// stalledConn blocks every write until the hub closes it, like a peer whose
// TCP window is full.
type stalledConn struct {
	release chan struct{}
	once    sync.Once
}

func newStalledConn() *stalledConn {
	return &stalledConn{release: make(chan struct{})}
}

func (s *stalledConn) WriteJSON(any) error {
	<-s.release
	return errors.New("use of closed connection")
}

func (s *stalledConn) Close() error {
	s.once.Do(func() { close(s.release) })
	return nil
}

func (s *stalledConn) isClosed() bool {
	select {
	case <-s.release:
		return true
	default:
		return false
	}
}

func TestEventHubRoutesByTenant(t *testing.T) {
	hub := NewEventHub(zap.NewNop())
	a, b, other := &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.register("t1", a)
	hub.register("t1", b)
	hub.register("t2", other)

	hub.OnTransition(context.Background(), engine.TransitionEvent{TenantID: "t1", CaseID: "c1", ToStage: "review"})

	assert.Eventually(t, func() bool { return len(a.received()) == 1 && len(b.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, other.received())
	assert.Equal(t, "review", a.received()[0].ToStage)
}

func TestEventHubDropsBrokenConnections(t *testing.T) {
	hub := NewEventHub(zap.NewNop())
	broken := &fakeConn{fail: errors.New("closed")}
	healthy := &fakeConn{}
	hub.register("t1", broken)
	healthySub := hub.register("t1", healthy)

	hub.OnTransition(context.Background(), engine.TransitionEvent{TenantID: "t1"})

	assert.Eventually(t, func() bool { return hub.Subscribers("t1") == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(healthy.received()) == 1 }, time.Second, 5*time.Millisecond)

	hub.unregister("t1", healthySub)
	assert.Zero(t, hub.Subscribers("t1"))
	assert.True(t, healthy.closed)
}

func TestEventHubDoesNotWaitOnStalledSubscriber(t *testing.T) {
	hub := NewEventHub(zap.NewNop())
	stalled := newStalledConn()
	hub.register("t1", stalled)

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < subscriberBuffer+2; i++ {
			hub.OnTransition(context.Background(), engine.TransitionEvent{TenantID: "t1", CaseID: "c1"})
		}
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a stalled subscriber")
	}
	assert.Eventually(t, func() bool { return hub.Subscribers("t1") == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, stalled.isClosed(), "the stalled connection is closed")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestApp(h *HealthController) *fiber.App {
	app := fiber.New()
	NewSystemApi(h, prometheus.NewRegistry(), &config.Config{SkipAuth: true}).Setup(app)
	return app
}

func TestHealthReportsComponents(t *testing.T) {
	h := &HealthController{checks: map[string]Pinger{
		"mongodb": pingFunc(func(context.Context) error { return nil }),
	}}
	app := newTestApp(h)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	h.AddCheck("postgres", pingFunc(func(context.Context) error { return errors.New("connection refused") }))
	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Components["mongodb"])
	assert.Equal(t, "connection refused", body.Components["postgres"])
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine.NewMetrics(reg).ObserveTransition("success", 0)

	app := fiber.New()
	NewSystemApi(&HealthController{checks: map[string]Pinger{}}, reg, &config.Config{}).Setup(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `workflow_transitions_total{outcome="success"} 1`))
}

func TestEventsRouteRequiresUpgrade(t *testing.T) {
	app := fiber.New()
	NewWebSocketApi(NewEventHub(zap.NewNop()), &config.Config{SkipAuth: true}).Setup(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/tenants/t1/events", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
