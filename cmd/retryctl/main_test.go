package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaretry/internal/config"
	"github.com/vyrodovalexey/avaretry/internal/health"
	"github.com/vyrodovalexey/avaretry/internal/observability"
)

const fastConfigYAML = `
policy:
  max_attempts: 3
  backoff:
    type: constant
    base: 1ms
observability:
  log_level: error
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "retryctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func countLines(t *testing.T, path string) int {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("RETRYCTL_TEST_SET", "value")
	t.Setenv("RETRYCTL_TEST_EMPTY", "")

	assert.Equal(t, "value", getEnvOrDefault("RETRYCTL_TEST_SET", "default"))
	assert.Equal(t, "default", getEnvOrDefault("RETRYCTL_TEST_EMPTY", "default"))
	assert.Equal(t, "default", getEnvOrDefault("RETRYCTL_TEST_UNSET", "default"))
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		expected bool
	}{
		{value: "", fallback: true, expected: true},
		{value: "yes", fallback: false, expected: true},
		{value: "ON", fallback: false, expected: true},
		{value: "0", fallback: true, expected: false},
		{value: "off", fallback: true, expected: false},
		{value: "maybe", fallback: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("RETRYCTL_TEST_BOOL", tt.value)
			assert.Equal(t, tt.expected, getEnvBool("RETRYCTL_TEST_BOOL", tt.fallback))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{value: "", expected: time.Minute},
		{value: "5s", expected: 5 * time.Second},
		{value: "-5s", expected: time.Minute},
		{value: "soon", expected: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("RETRYCTL_TEST_DURATION", tt.value)
			assert.Equal(t, tt.expected, getEnvDuration("RETRYCTL_TEST_DURATION", time.Minute))
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, f cliFlags)
		wantErr bool
	}{
		{
			name: "command",
			args: []string{"-log-level", "debug", "--", "sh", "-c", "true"},
			check: func(t *testing.T, f cliFlags) {
				assert.Equal(t, []string{"sh", "-c", "true"}, f.command)
				assert.Equal(t, "debug", f.logLevel)
				assert.Equal(t, defaultInterval, f.interval)
			},
		},
		{
			name: "url with watch",
			args: []string{"-url", "http://localhost/health", "-watch", "-interval", "2s"},
			check: func(t *testing.T, f cliFlags) {
				assert.Equal(t, "http://localhost/health", f.url)
				assert.True(t, f.watch)
				assert.Equal(t, 2*time.Second, f.interval)
			},
		},
		{
			name: "redis",
			args: []string{"-redis", "localhost:6379", "-config", "retryctl.yaml"},
			check: func(t *testing.T, f cliFlags) {
				assert.Equal(t, "localhost:6379", f.redisAddr)
				assert.Equal(t, "retryctl.yaml", f.configPath)
			},
		},
		{
			name: "version needs no target",
			args: []string{"-version"},
			check: func(t *testing.T, f cliFlags) {
				assert.True(t, f.showVersion)
			},
		},
		{name: "no target", args: []string{}, wantErr: true},
		{name: "two targets", args: []string{"-url", "http://x", "-redis", "x:1"}, wantErr: true},
		{name: "url and command", args: []string{"-url", "http://x", "true"}, wantErr: true},
		{name: "zero interval", args: []string{"-watch", "-interval", "0s", "true"}, wantErr: true},
		{name: "unknown flag", args: []string{"-retries", "3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, err := parseFlags([]string{"-h"}, &out)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, out.String(), "Usage: retryctl")
}

func TestRun_VersionAndUsage(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitSuccess, run([]string{"-version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "retryctl version dev")

	stderr.Reset()
	assert.Equal(t, exitFailure, run([]string{}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "nothing to run")

	assert.Equal(t, exitSuccess, run([]string{"-help"}, io.Discard, io.Discard))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, exitSuccess, exitCode(context.Background(), nil))
	assert.Equal(t, exitFailure, exitCode(context.Background(), assert.AnError))
	assert.Equal(t, exitCancelled, exitCode(cancelled, assert.AnError))
	assert.Equal(t, exitCancelled, exitCode(context.Background(), context.Canceled))
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(cliFlags{})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	cfg, err = loadConfig(cliFlags{configPath: writeConfig(t, fastConfigYAML)})
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Observability.LogLevel)

	_, err = loadConfig(cliFlags{configPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = loadConfig(cliFlags{configPath: writeConfig(t, "policy:\n  max_attempts: -3\n")})
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	logger, err := initLogger(cfg, cliFlags{})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = initLogger(cfg, cliFlags{logLevel: "debug", logFormat: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Zap().Core().Enabled(-1))

	_, err = initLogger(cfg, cliFlags{logFormat: "xml"})
	assert.Error(t, err)
}

func TestRunContext_Command(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, fastConfigYAML)

	tests := []struct {
		name     string
		script   string
		exitCode int
		attempts int
	}{
		{name: "success", script: "exit 0", exitCode: exitSuccess, attempts: 1},
		{name: "temporary failure is retried", script: "exit 75", exitCode: exitFailure, attempts: 3},
		{name: "permanent failure is not retried", script: "exit 1", exitCode: exitFailure, attempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			marker := filepath.Join(t.TempDir(), "attempts")
			script := "echo x >> " + marker + "; " + tt.script
			flags := cliFlags{configPath: cfgPath, command: []string{"sh", "-c", script}}

			code := runContext(context.Background(), flags, io.Discard, io.Discard)
			assert.Equal(t, tt.exitCode, code)
			assert.Equal(t, tt.attempts, countLines(t, marker))
		})
	}
}

func TestRunContext_CommandRule(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, `
policy:
  max_attempts: 4
  backoff:
    type: constant
    base: 1ms
  retry_on:
    rules:
      - name: exit-3
        when: err.exit_code == 3
        action: retry
observability:
  log_level: error
`)
	marker := filepath.Join(t.TempDir(), "attempts")
	flags := cliFlags{configPath: cfgPath, command: []string{"sh", "-c", "echo x >> " + marker + "; exit 3"}}

	assert.Equal(t, exitFailure, runContext(context.Background(), flags, io.Discard, io.Discard))
	assert.Equal(t, 4, countLines(t, marker))
}

func TestRunContext_AttemptTimeout(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, `
policy:
  max_attempts: 2
  attempt_timeout: 50ms
  backoff:
    type: constant
    base: 1ms
observability:
  log_level: error
`)
	marker := filepath.Join(t.TempDir(), "attempts")
	flags := cliFlags{configPath: cfgPath, command: []string{"sh", "-c", "echo x >> " + marker + "; exec sleep 5"}}

	start := time.Now()
	assert.Equal(t, exitFailure, runContext(context.Background(), flags, io.Discard, io.Discard))
	assert.Equal(t, 2, countLines(t, marker))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRunContext_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flags := cliFlags{configPath: writeConfig(t, fastConfigYAML), command: []string{"sh", "-c", "exit 0"}}
	assert.Equal(t, exitCancelled, runContext(ctx, flags, io.Discard, io.Discard))
}

func TestRunContext_InvalidConfig(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	flags := cliFlags{configPath: writeConfig(t, "policy: [\n"), command: []string{"true"}}
	assert.Equal(t, exitFailure, runContext(context.Background(), flags, io.Discard, &stderr))
	assert.Contains(t, stderr.String(), "retryctl:")
}

func TestRunContext_HTTP(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var sawRunID atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") != "" {
			sawRunID.Store(true)
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	flags := cliFlags{configPath: writeConfig(t, fastConfigYAML), url: srv.URL}
	assert.Equal(t, exitSuccess, runContext(context.Background(), flags, io.Discard, io.Discard))
	assert.Equal(t, int32(3), hits.Load())
	assert.True(t, sawRunID.Load())
}

func TestRunContext_HTTPNotRetryable(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	flags := cliFlags{configPath: writeConfig(t, fastConfigYAML), url: srv.URL}
	assert.Equal(t, exitFailure, runContext(context.Background(), flags, io.Discard, io.Discard))
	assert.Equal(t, int32(1), hits.Load())
}

func TestRunContext_Redis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	flags := cliFlags{configPath: writeConfig(t, fastConfigYAML), redisAddr: mr.Addr()}
	assert.Equal(t, exitSuccess, runContext(context.Background(), flags, io.Discard, io.Discard))

	addr := mr.Addr()
	mr.Close()
	flags.redisAddr = addr
	assert.Equal(t, exitFailure, runContext(context.Background(), flags, io.Discard, io.Discard))
}

func TestRunContext_Watch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) >= 3 {
			cancel()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	flags := cliFlags{
		configPath: writeConfig(t, fastConfigYAML),
		url:        srv.URL,
		watch:      true,
		interval:   5 * time.Millisecond,
	}
	assert.Equal(t, exitCancelled, runContext(ctx, flags, io.Discard, io.Discard))
	assert.GreaterOrEqual(t, hits.Load(), int32(3))
}

func TestApplication_MetricsAndReload(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, fastConfigYAML+`  metrics_addr: "127.0.0.1:0"
`))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := newHTTPTarget(srv.URL, srv.Client())
	app, err := newApplication(context.Background(), cfg, target, observability.NopLogger())
	require.NoError(t, err)
	defer app.shutdown()

	policy, breaker, attemptTimeout := app.current()
	assert.Equal(t, "GET "+srv.URL, policy.Operation())
	assert.Nil(t, breaker)
	assert.Zero(t, attemptTimeout)

	require.NoError(t, app.invoke(context.Background()))

	resp, err := http.Get("http://" + app.metricsServer.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), "avaretry_retry_invocations_total")
	assert.Contains(t, string(body), `result="success"`)

	resp, err = http.Get("http://" + app.metricsServer.Addr() + health.ReadinessPath)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	updated := config.DefaultConfig()
	five := 5
	updated.Policy.Name = "nightly-sync"
	updated.Policy.MaxAttempts = &five
	updated.Policy.AttemptTimeout = config.Duration(time.Second)
	updated.Policy.CircuitBreaker = &config.CircuitBreakerConfig{Enabled: true}
	require.NoError(t, app.applyConfig(updated))

	policy, breaker, attemptTimeout = app.current()
	assert.Equal(t, time.Second, attemptTimeout)
	n, _ := policy.MaxAttempts()
	assert.Equal(t, 5, n)
	assert.Equal(t, "nightly-sync", policy.Operation())
	require.NotNil(t, breaker)
	assert.Equal(t, "nightly-sync", breaker.Name())

	require.NoError(t, app.invoke(context.Background()))
}

func TestApplication_HealthChecks(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	target := newRedisTarget(mr.Addr())
	app, err := newApplication(context.Background(), config.DefaultConfig(), target, observability.NopLogger())
	require.NoError(t, err)
	defer app.shutdown()

	assert.Equal(t, []string{"circuit_breaker", "target"}, app.health.Names())
	assert.Equal(t, gobreaker.StateClosed, app.breakerState())
	assert.Equal(t, health.StatusOK, app.health.Readiness(context.Background()).Status)

	mr.Close()
	report := app.health.Readiness(context.Background())
	assert.Equal(t, health.StatusError, report.Status)
	assert.Equal(t, health.StatusError, report.Checks["target"].Status)
	assert.Equal(t, health.StatusOK, report.Checks["circuit_breaker"].Status)
}

func TestApplication_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Policy.RetryOn.GRPCCodes = []string{"sometimes"}

	_, err := newApplication(context.Background(), cfg, &commandTarget{args: []string{"true"}}, observability.NopLogger())
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Observability.MetricsAddr = "256.0.0.1:bad"
	_, err = newApplication(context.Background(), cfg, &commandTarget{args: []string{"true"}}, observability.NopLogger())
	assert.Error(t, err)
}
