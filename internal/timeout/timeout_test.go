package timeout

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAttempt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		limit       time.Duration
		op          func(ctx context.Context) error
		wantErr     error
		wantTimeout bool
	}{
		{
			name:  "success",
			limit: time.Second,
			op:    func(context.Context) error { return nil },
		},
		{
			name:    "failure within limit",
			limit:   time.Second,
			op:      func(context.Context) error { return errBoom },
			wantErr: errBoom,
		},
		{
			name:        "runs past limit",
			limit:       10 * time.Millisecond,
			op:          blockUntilDone,
			wantErr:     context.DeadlineExceeded,
			wantTimeout: true,
		},
		{
			name:  "operation error after limit is kept",
			limit: 10 * time.Millisecond,
			op: func(ctx context.Context) error {
				<-ctx.Done()
				return errBoom
			},
			wantErr:     errBoom,
			wantTimeout: true,
		},
		{
			name:    "no limit",
			limit:   0,
			op:      func(context.Context) error { return errBoom },
			wantErr: errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Attempt(tt.limit, tt.op)(context.Background())
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantTimeout, IsTimeout(err))
		})
	}
}

func TestAttempt_NoLimitKeepsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := Attempt(-time.Second, func(got context.Context) error {
		_, hasDeadline := got.Deadline()
		assert.False(t, hasDeadline)
		return nil
	})(ctx)
	assert.NoError(t, err)
}

func TestAttempt_CallerCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Attempt(time.Minute, blockUntilDone)(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTimeout(err))
}

func TestAttempt_CallerDeadline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Attempt(time.Minute, blockUntilDone)(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsTimeout(err))
}

func TestError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "deadline",
			err:      &Error{Phase: PhaseAttempt, Limit: time.Second, Err: context.DeadlineExceeded},
			expected: "attempt timeout after 1s",
		},
		{
			name:     "with cause",
			err:      &Error{Phase: PhaseAttempt, Limit: 2 * time.Second, Err: errBoom},
			expected: "attempt timeout after 2s: boom",
		},
		{
			name:     "without cause",
			err:      &Error{Phase: PhaseAttempt, Limit: time.Millisecond},
			expected: "attempt timeout after 1ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_IsNetworkTimeout(t *testing.T) {
	t.Parallel()

	var err error = &Error{Phase: PhaseAttempt, Limit: time.Second}

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
	assert.False(t, IsTimeout(errBoom))
	assert.False(t, IsTimeout(nil))
}
