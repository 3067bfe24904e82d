package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avaretry/internal/classify"
	"github.com/vyrodovalexey/avaretry/internal/health"
	"github.com/vyrodovalexey/avaretry/internal/idempotent"
	"github.com/vyrodovalexey/avaretry/internal/observability"
)

// exitTempFail is EX_TEMPFAIL from sysexits.h. A command exiting with it
// asks to be retried.
const exitTempFail = 75

// defaultHTTPTimeout bounds a single HTTP attempt.
const defaultHTTPTimeout = 30 * time.Second

// target is what retryctl retries.
type target interface {
	// Name labels the operation.
	Name() string

	// Attempt performs one try.
	Attempt(ctx context.Context) error

	// Classifiers are failure sources specific to the target, consulted
	// after the configured ones.
	Classifiers() []classify.Classifier

	io.Closer
}

// requestTarget is a target whose retries are gated on idempotency.
type requestTarget interface {
	target
	Request() idempotent.Request
}

// healthTarget is a target that can report readiness without running an
// attempt.
type healthTarget interface {
	target
	HealthCheck() health.CheckFunc
}

func newTarget(flags cliFlags, stdout, stderr io.Writer) target {
	switch {
	case flags.url != "":
		return newHTTPTarget(flags.url, &http.Client{Timeout: defaultHTTPTimeout})
	case flags.redisAddr != "":
		return newRedisTarget(flags.redisAddr)
	default:
		return &commandTarget{args: flags.command, stdout: stdout, stderr: stderr}
	}
}

// commandTarget runs a command.
type commandTarget struct {
	args   []string
	stdout io.Writer
	stderr io.Writer
}

func (t *commandTarget) Name() string {
	return "exec " + t.args[0]
}

func (t *commandTarget) Attempt(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.args[0], t.args[1:]...) //nolint:gosec // running the command is the point
	cmd.Stdout = t.stdout
	cmd.Stderr = t.stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", strings.Join(t.args, " "), err)
	}
	return nil
}

func (t *commandTarget) Classifiers() []classify.Classifier {
	return []classify.Classifier{classify.Predicate(isTempFail)}
}

func (t *commandTarget) Close() error { return nil }

func isTempFail(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == exitTempFail
}

// httpTarget issues GET requests.
type httpTarget struct {
	url    string
	client *http.Client
}

func newHTTPTarget(url string, client *http.Client) *httpTarget {
	return &httpTarget{url: url, client: client}
}

func (t *httpTarget) Name() string {
	return "GET " + t.url
}

func (t *httpTarget) Attempt(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	observability.InjectTraceContext(ctx, req)
	if runID := observability.RunIDFromContext(ctx); runID != "" {
		req.Header.Set("X-Request-ID", runID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return classify.CheckResponse(resp)
}

func (t *httpTarget) Classifiers() []classify.Classifier {
	return []classify.Classifier{classify.HTTP(nil)}
}

func (t *httpTarget) Request() idempotent.Request {
	return idempotent.HTTPRequest{Method: http.MethodGet}
}

func (t *httpTarget) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// redisTarget pings a Redis server.
type redisTarget struct {
	addr   string
	client *redis.Client
}

func newRedisTarget(addr string) *redisTarget {
	return &redisTarget{
		addr: addr,
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			// Retries are ours.
			MaxRetries: -1,
		}),
	}
}

func (t *redisTarget) Name() string {
	return "PING " + t.addr
}

func (t *redisTarget) Attempt(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *redisTarget) Classifiers() []classify.Classifier {
	return []classify.Classifier{classify.Redis()}
}

func (t *redisTarget) HealthCheck() health.CheckFunc {
	return health.RedisCheck(t.client)
}

func (t *redisTarget) Close() error {
	return t.client.Close()
}
