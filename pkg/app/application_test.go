package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"licensedesk/internal/session"
	"licensedesk/pkg/config"
	"licensedesk/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type whoAmI struct{}

func (whoAmI) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/whoami", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(session.FromContext(r.Context()).UserID))
	})
}

func newTestApp(t *testing.T) (*Application, *session.Verifier) {
	t.Helper()
	cfg := config.FromEnv()
	cfg.Log = logger.Nop()
	cfg.Port = "0"
	cfg.RateLimitRequests = 100
	cfg.ShutdownTimeout = time.Second

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_requests_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	verifier := session.NewVerifier(testSecret)
	a := NewApplication(cfg, verifier, reg)
	a.SetApp(whoAmI{})
	return a, verifier
}

func TestApplication_Routes(t *testing.T) {
	a, verifier := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token, err := verifier.Issue(session.Session{UserID: "alice", Role: session.RoleUser}, time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/whoami", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err = http.NewRequest(http.MethodPost, srv.URL+"/api/v1/whoami", strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestCallerKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	assert.Equal(t, "ip:192.0.2.1", callerKey(req))

	ctx := session.WithSession(req.Context(), &session.Session{UserID: "alice", Role: session.RoleUser})
	assert.Equal(t, "user:alice", callerKey(req.WithContext(ctx)))
}

func TestServe_StopsWorkersOnCancel(t *testing.T) {
	a, _ := newTestApp(t)

	var started, stopped atomic.Bool
	a.AddWorker("probe", func(ctx context.Context) {
		started.Store(true)
		<-ctx.Done()
		stopped.Store(true)
	})
	var closed atomic.Bool
	a.OnShutdown(func() error {
		closed.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, started.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.True(t, stopped.Load())
	assert.True(t, closed.Load())
}
