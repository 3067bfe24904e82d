// Package backoff computes the delays the retry engine waits between
// attempts.
//
// A Backoff is an immutable factory. The engine calls Make once per retry
// invocation, binding a fresh stateful Algorithm to the clock's minimum
// resolution. All arithmetic is done in integer ticks of that resolution so
// that no duration-to-float conversion is needed.
package backoff

import (
	"math"
	"math/rand/v2"

	"github.com/vyrodovalexey/avaretry/internal/clock"
)

// Algorithm generates successive delays. Each call advances internal state,
// so an Algorithm must not be shared between retry invocations.
type Algorithm[D clock.Duration] interface {
	// NextDelay returns the delay to wait before the next attempt.
	NextDelay() D
}

// AlgorithmFunc adapts a function to Algorithm.
type AlgorithmFunc[D clock.Duration] func() D

// NextDelay implements Algorithm.
func (f AlgorithmFunc[D]) NextDelay() D {
	return f()
}

// Backoff builds Algorithm instances bound to a clock. It is a value type,
// safe to copy and to share between goroutines.
type Backoff[D clock.Duration] struct {
	build func(r clock.Resolver[D]) Algorithm[D]
}

// New wraps an algorithm constructor in a Backoff.
func New[D clock.Duration](build func(r clock.Resolver[D]) Algorithm[D]) Backoff[D] {
	return Backoff[D]{build: build}
}

// Make returns a fresh Algorithm bound to the resolution of r.
func (b Backoff[D]) Make(r clock.Resolver[D]) Algorithm[D] {
	if b.build == nil {
		panic("backoff: Make called on zero Backoff")
	}
	return b.build(r)
}

// IsZero reports whether b was never initialised.
func (b Backoff[D]) IsZero() bool {
	return b.build == nil
}

// RandomSource draws uniformly distributed integers in [0, n).
// *rand.Rand from math/rand/v2 satisfies it. A source captured by a shared
// Backoff is used by every invocation, so it must be safe for concurrent use.
type RandomSource interface {
	Int64N(n int64) int64
}

// defaultSource uses the concurrency-safe top-level math/rand/v2 generator.
type defaultSource struct{}

//nolint:gosec // G404: jitter for retry timing is not security-sensitive
func (defaultSource) Int64N(n int64) int64 {
	return rand.Int64N(n)
}

// draw returns a value in [0, upper] inclusive, clamping misbehaving sources.
func draw(src RandomSource, upper int64) int64 {
	if upper <= 0 {
		return 0
	}
	r := src.Int64N(upper + 1)
	switch {
	case r < 0:
		return 0
	case r > upper:
		return upper
	default:
		return r
	}
}

// grid converts durations to and from whole ticks of a clock resolution.
type grid struct {
	res int64
	// limit is the largest tick count t for which t*res and t+1 both fit
	// in an int64.
	limit int64
}

func newGrid[D clock.Duration](r clock.Resolver[D]) grid {
	res := int64(r.MinimumResolution())
	if res <= 0 {
		res = 1
	}
	limit := math.MaxInt64/res - 1
	if limit < 1 {
		limit = 1
	}
	return grid{res: res, limit: limit}
}

// ticks rounds d to the nearest whole tick, clamped to [0, limit].
func (g grid) ticks(d int64) int64 {
	if d <= 0 {
		return 0
	}
	q, rem := d/g.res, d%g.res
	if rem >= g.res-rem {
		q++
	}
	if q > g.limit {
		return g.limit
	}
	return q
}

// capTicks converts an optional maximum delay to ticks; zero means the
// largest representable cap.
func (g grid) capTicks(maxDelay int64) int64 {
	if maxDelay <= 0 {
		return g.limit
	}
	c := g.ticks(maxDelay)
	if c < 1 {
		return 1
	}
	return c
}

func toDuration[D clock.Duration](g grid, t int64) D {
	return D(t * g.res)
}

// maxExponent returns the smallest e such that base<<e >= limit, without
// overflowing.
func maxExponent(base, limit int64) int {
	e := 0
	for v := base; v < limit; e++ {
		if v > math.MaxInt64>>1 {
			e++
			break
		}
		v <<= 1
	}
	return e
}

// exponentialCap returns min(base << n, limit) for a saturated exponent
// bound maxExp.
func exponentialCap(base, limit int64, n, maxExp int) int64 {
	if n >= maxExp {
		return limit
	}
	return base << n
}
