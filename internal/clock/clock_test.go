package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystem_MinimumResolution(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Nanosecond, System{}.MinimumResolution())
}

func TestSystem_NowIsNonDecreasing(t *testing.T) {
	t.Parallel()

	c := System{}
	prev := c.Now()
	for i := 0; i < 100; i++ {
		next := c.Now()
		assert.False(t, next.Before(prev))
		prev = next
	}
}

func TestSystem_SleepUntil(t *testing.T) {
	t.Parallel()

	c := System{}
	start := time.Now()
	err := c.SleepUntil(context.Background(), start.Add(20*time.Millisecond))

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSystem_SleepUntil_PastDeadline(t *testing.T) {
	t.Parallel()

	err := System{}.SleepUntil(context.Background(), time.Now().Add(-time.Hour))
	assert.NoError(t, err)
}

func TestSystem_SleepUntil_AlreadyCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := System{}.SleepUntil(ctx, time.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSystem_SleepUntil_CancelledDuringSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := System{}.SleepUntil(ctx, start.Add(time.Minute))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFake_AutoAdvance(t *testing.T) {
	t.Parallel()

	f := NewFake()
	start := f.Now()

	require.NoError(t, f.SleepUntil(context.Background(), start.Add(3*time.Second)))
	require.NoError(t, f.SleepUntil(context.Background(), f.Now().Add(time.Second)))

	assert.Equal(t, start.Add(4*time.Second), f.Now())
	assert.Equal(t, []time.Duration{3 * time.Second, time.Second}, f.Sleeps())
}

func TestFake_SleepUntilPastRecordsZero(t *testing.T) {
	t.Parallel()

	f := NewFake()
	start := f.Now()

	require.NoError(t, f.SleepUntil(context.Background(), start.Add(-time.Second)))

	assert.Equal(t, start, f.Now())
	assert.Equal(t, []time.Duration{0}, f.Sleeps())
}

func TestFake_Options(t *testing.T) {
	t.Parallel()

	start := time.Date(2030, time.June, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(WithStart(start), WithResolution(time.Millisecond), WithResolution(-1))

	assert.Equal(t, start, f.Now())
	assert.Equal(t, time.Millisecond, f.MinimumResolution())
}

func TestFake_CancelledContext(t *testing.T) {
	t.Parallel()

	f := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.SleepUntil(ctx, f.Now().Add(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.Sleeps())
}

func TestFake_Manual_AdvanceWakesSleeper(t *testing.T) {
	t.Parallel()

	f := NewManualFake()
	deadline := f.Now().Add(5 * time.Second)
	done := make(chan error, 1)

	go func() {
		done <- f.SleepUntil(context.Background(), deadline)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.BlockUntil(ctx, 1))

	f.Advance(4 * time.Second)
	select {
	case <-done:
		t.Fatal("sleeper woke before its deadline")
	case <-time.After(10 * time.Millisecond):
	}

	f.Advance(time.Second)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sleeper did not wake")
	}
	assert.Equal(t, 0, f.Waiters())
}

func TestFake_Manual_CancelWhileParked(t *testing.T) {
	t.Parallel()

	f := NewManualFake()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- f.SleepUntil(ctx, f.Now().Add(time.Hour))
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, f.BlockUntil(waitCtx, 1))

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not wake the sleeper")
	}
	assert.Equal(t, 0, f.Waiters())
}

func TestFake_SetIgnoresBackwards(t *testing.T) {
	t.Parallel()

	f := NewManualFake()
	start := f.Now()

	f.Set(start.Add(-time.Hour))
	assert.Equal(t, start, f.Now())

	f.Set(start.Add(time.Hour))
	assert.Equal(t, start.Add(time.Hour), f.Now())
}

// tick is a minimal non-time instant used to show that the abstraction is
// not tied to time.Time.
type tick int64

func (t tick) Add(d ticks) tick   { return t + tick(d) }
func (t tick) Sub(o tick) ticks   { return ticks(t - o) }
func (t tick) Before(o tick) bool { return t < o }

type ticks int64

type tickClock struct{ now tick }

func (c *tickClock) Now() tick                { return c.now }
func (c *tickClock) MinimumResolution() ticks { return 1 }
func (c *tickClock) SleepUntil(ctx context.Context, deadline tick) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.now.Before(deadline) {
		c.now = deadline
	}
	return nil
}

func TestClock_CustomInstantType(t *testing.T) {
	t.Parallel()

	var c Clock[tick, ticks] = &tickClock{}

	require.NoError(t, c.SleepUntil(context.Background(), c.Now().Add(7)))
	assert.Equal(t, tick(7), c.Now())
	assert.Equal(t, ticks(7), c.Now().Sub(0))
}
