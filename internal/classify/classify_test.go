package classify

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/avaretry/internal/clock"
	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// mockNetError implements net.Error for testing.
type mockNetError struct {
	timeout bool
	msg     string
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }

func mockOpError() *net.OpError {
	return &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: errors.New("connection failed"),
	}
}

func mockURLError(timeout bool) *url.Error {
	return &url.Error{
		Op:  "Get",
		URL: "http://example.com",
		Err: &mockNetError{timeout: timeout, msg: "mock url error"},
	}
}

var errPlain = errors.New("plain")

func newFakeClock() *clock.Fake {
	return clock.NewFake()
}

func TestIsNetwork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errPlain, false},
		{"timeout net.Error", &mockNetError{timeout: true, msg: "timeout"}, true},
		{"permanent net.Error", &mockNetError{msg: "permanent"}, false},
		{"op error", mockOpError(), true},
		{"wrapped op error", fmt.Errorf("query: %w", mockOpError()), true},
		{"url timeout", mockURLError(true), true},
		{"url without timeout", mockURLError(false), false},
		{"temporary dns", &net.DNSError{Err: "server misbehaving", IsTemporary: true}, true},
		{"not found dns", &net.DNSError{Err: "no such host", IsNotFound: true}, false},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"broken pipe", syscall.EPIPE, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsNetwork(tt.err))
			want := retry.ActionGiveUp
			if tt.want {
				want = retry.ActionRetry
			}
			assert.Equal(t, want, Network().Classify(tt.err).Action)
		})
	}
}

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTimeout(&mockNetError{timeout: true}))
	assert.True(t, IsTimeout(mockURLError(true)))
	assert.False(t, IsTimeout(mockOpError()))
	assert.False(t, IsTimeout(errPlain))
	assert.False(t, IsTimeout(nil))
}

func TestAlwaysAndNever(t *testing.T) {
	t.Parallel()

	assert.Equal(t, retry.ActionRetry, Always().Classify(errPlain).Action)
	assert.Equal(t, retry.ActionGiveUp, Never().Classify(errPlain).Action)
}

func TestErrors(t *testing.T) {
	t.Parallel()

	target := errors.New("target")
	c := Errors(target, io.EOF)

	assert.Equal(t, retry.ActionRetry, c.Classify(fmt.Errorf("wrap: %w", target)).Action)
	assert.Equal(t, retry.ActionRetry, c.Classify(io.EOF).Action)
	assert.Equal(t, retry.ActionGiveUp, c.Classify(errPlain).Action)
	assert.Equal(t, retry.ActionGiveUp, Errors().Classify(target).Action)
}

func TestFirst(t *testing.T) {
	t.Parallel()

	at := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	after := Func(func(error) Decision { return retry.RetryAfter(at) })

	tests := []struct {
		name        string
		classifiers []Classifier
		want        Decision
	}{
		{"empty", nil, retry.GiveUp[time.Time]()},
		{"all give up", []Classifier{Never(), Never()}, retry.GiveUp[time.Time]()},
		{"first retry wins", []Classifier{Never(), Always(), after}, retry.Retry[time.Time]()},
		{"retry after kept", []Classifier{Never(), after, Always()}, retry.RetryAfter(at)},
		{"nil skipped", []Classifier{nil, Always()}, retry.Retry[time.Time]()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, First(tt.classifiers...).Classify(errPlain))
		})
	}
}

func TestAll(t *testing.T) {
	t.Parallel()

	early := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)
	afterEarly := Func(func(error) Decision { return retry.RetryAfter(early) })
	afterLate := Func(func(error) Decision { return retry.RetryAfter(late) })

	assert.Equal(t, retry.ActionGiveUp, All().Classify(errPlain).Action)
	assert.Equal(t, retry.ActionGiveUp, All(Always(), Never()).Classify(errPlain).Action)
	assert.Equal(t, retry.Retry[time.Time](), All(Always(), Always()).Classify(errPlain))
	assert.Equal(t, retry.RetryAfter(late), All(afterEarly, Always(), afterLate).Classify(errPlain))
	assert.Equal(t, retry.RetryAfter(late), All(afterLate, afterEarly).Classify(errPlain))
}

func TestWithClock(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	o := newOptions([]Option{WithClock(clk), WithClock(nil)})
	assert.Same(t, clk, o.now)

	assert.Equal(t, retry.Retry[time.Time](), retryAfter(clk, 0))
	assert.Equal(t, retry.RetryAfter(clk.Now().Add(time.Second)), retryAfter(clk, time.Second))
}
