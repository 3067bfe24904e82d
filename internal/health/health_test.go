package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func healthy(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("down") }

func TestChecker_Register(t *testing.T) {
	t.Parallel()

	c := NewChecker("1.0.0", nil)
	c.Register("b", healthy)
	c.Register("a", healthy)
	c.Register("a", failing)
	assert.Equal(t, []string{"a", "b"}, c.Names())

	c.Unregister("a")
	c.Unregister("missing")
	assert.Equal(t, []string{"b"}, c.Names())
}

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()

	report := NewChecker("1.2.3", nil).Liveness()
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, "1.2.3", report.Version)
	assert.NotEmpty(t, report.Uptime)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		checks   map[string]CheckFunc
		expected Status
		failed   []string
	}{
		{name: "no checks", checks: nil, expected: StatusOK},
		{name: "all healthy", checks: map[string]CheckFunc{"a": healthy, "b": healthy}, expected: StatusOK},
		{
			name:     "one failing",
			checks:   map[string]CheckFunc{"a": healthy, "b": failing},
			expected: StatusError,
			failed:   []string{"b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("dev", nil)
			for name, check := range tt.checks {
				c.Register(name, check)
			}

			report := c.Readiness(context.Background())
			assert.Equal(t, tt.expected, report.Status)
			assert.Len(t, report.Checks, len(tt.checks))
			for _, name := range tt.failed {
				require.Contains(t, report.Checks, name)
				assert.Equal(t, StatusError, report.Checks[name].Status)
				assert.Equal(t, "down", report.Checks[name].Error)
			}
		})
	}
}

func TestChecker_ReadinessTimeout(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	c := NewChecker("dev", zap.New(core), WithTimeout(20*time.Millisecond), WithTimeout(-time.Second))
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	report := c.Readiness(context.Background())
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Checks["slow"].Error)

	entries := logs.FilterMessage("health check failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "slow", entries[0].ContextMap()["check"])
}

func TestChecker_Metrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := NewMetrics("avaretry")
	m.MustRegister(registry)
	m.MustRegister(registry)

	c := NewChecker("dev", nil, WithMetrics(m))
	c.Register("ok", healthy)
	c.Register("bad", failing)
	c.Readiness(context.Background())
	c.Readiness(context.Background())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("ok", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("bad", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkStatus.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.checkStatus.WithLabelValues("bad")))
}

func TestChecker_Routes(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)
	engine := gin.New()

	c := NewChecker("dev", nil)
	c.RegisterRoutes(engine)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, LivenessPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ReadinessPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("breaker", failing)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ReadinessPath, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, StatusError, report.Checks["breaker"].Status)
}

func TestBreakerCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state   gobreaker.State
		wantErr bool
	}{
		{state: gobreaker.StateClosed},
		{state: gobreaker.StateHalfOpen},
		{state: gobreaker.StateOpen, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			t.Parallel()

			err := BreakerCheck(func() gobreaker.State { return tt.state })(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCircuitOpen)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRedisCheck(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()

	assert.NoError(t, RedisCheck(client)(context.Background()))

	mr.Close()
	err := RedisCheck(client)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestTCPCheck(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	assert.NoError(t, TCPCheck(addr)(context.Background()))

	require.NoError(t, ln.Close())
	assert.Error(t, TCPCheck(addr)(context.Background()))
}
