package clock

import (
	"context"
	"sync"
	"time"
)

// DefaultFakeStart is the instant a Fake starts at unless WithStart is used.
var DefaultFakeStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Fake is a deterministic Clock for tests. It records every requested sleep.
//
// In auto-advance mode (NewFake) SleepUntil moves the fake time to the
// deadline and returns without real waiting. In manual mode (NewManualFake)
// sleepers stay parked until Advance or Set moves time past their deadline,
// or until their context is done.
//
// Fake is safe for concurrent use.
type Fake struct {
	mu         sync.Mutex
	now        time.Time
	resolution time.Duration
	manual     bool
	sleeps     []time.Duration
	waiters    []*fakeWaiter
	changed    chan struct{}
}

type fakeWaiter struct {
	deadline time.Time
	done     chan struct{}
}

var _ Clock[time.Time, time.Duration] = (*Fake)(nil)

// FakeOption configures a Fake.
type FakeOption func(*Fake)

// WithStart sets the initial fake time.
func WithStart(t time.Time) FakeOption {
	return func(f *Fake) {
		f.now = t
	}
}

// WithResolution sets the minimum resolution reported by the fake.
// Non-positive values are ignored.
func WithResolution(d time.Duration) FakeOption {
	return func(f *Fake) {
		if d > 0 {
			f.resolution = d
		}
	}
}

// NewFake returns an auto-advancing fake clock.
func NewFake(opts ...FakeOption) *Fake {
	f := &Fake{
		now:        DefaultFakeStart,
		resolution: time.Nanosecond,
		changed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewManualFake returns a fake clock whose time only moves through Advance
// and Set.
func NewManualFake(opts ...FakeOption) *Fake {
	f := NewFake(opts...)
	f.manual = true
	return f
}

// Now implements Clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// MinimumResolution implements Clock.
func (f *Fake) MinimumResolution() time.Duration {
	return f.resolution
}

// SleepUntil implements Clock.
func (f *Fake) SleepUntil(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	d := deadline.Sub(f.now)
	if d < 0 {
		d = 0
	}
	f.sleeps = append(f.sleeps, d)

	if !f.manual {
		if deadline.After(f.now) {
			f.now = deadline
		}
		f.mu.Unlock()
		return nil
	}

	if !deadline.After(f.now) {
		f.mu.Unlock()
		return nil
	}

	w := &fakeWaiter{deadline: deadline, done: make(chan struct{})}
	f.waiters = append(f.waiters, w)
	f.notifyLocked()
	f.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		f.mu.Lock()
		f.removeLocked(w)
		f.mu.Unlock()
		return ctx.Err()
	}
}

// Advance moves the fake time forward by d and wakes every sleeper whose
// deadline has been reached.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.releaseLocked()
}

// Set moves the fake time to t. Moving backwards is ignored so that Now
// stays non-decreasing.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.After(f.now) {
		f.now = t
	}
	f.releaseLocked()
}

// Sleeps returns a copy of every sleep duration requested so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

// Waiters returns the number of goroutines parked in SleepUntil.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// BlockUntil waits until at least n goroutines are parked in SleepUntil or
// ctx is done.
func (f *Fake) BlockUntil(ctx context.Context, n int) error {
	for {
		f.mu.Lock()
		if len(f.waiters) >= n {
			f.mu.Unlock()
			return nil
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Fake) releaseLocked() {
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.deadline.After(f.now) {
			kept = append(kept, w)
			continue
		}
		close(w.done)
	}
	for i := len(kept); i < len(f.waiters); i++ {
		f.waiters[i] = nil
	}
	f.waiters = kept
	f.notifyLocked()
}

func (f *Fake) removeLocked(target *fakeWaiter) {
	for i, w := range f.waiters {
		if w == target {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			f.notifyLocked()
			return
		}
	}
}

func (f *Fake) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}
