package backoff

import (
	"math"

	"github.com/vyrodovalexey/avaretry/internal/clock"
)

// Constant returns a backoff that always waits d, rounded to the clock
// resolution. It suits cases where jitter and growth are provably
// unnecessary, such as a guaranteed single consumer. Negative delays are
// treated as zero.
func Constant[D clock.Duration](d D) Backoff[D] {
	return New(func(r clock.Resolver[D]) Algorithm[D] {
		g := newGrid(r)
		delay := toDuration[D](g, g.ticks(int64(d)))
		return AlgorithmFunc[D](func() D { return delay })
	})
}

// Exponential returns a backoff that doubles from base up to maxDelay
// without jitter. A zero maxDelay means no explicit cap.
func Exponential[D clock.Duration](base, maxDelay D) Backoff[D] {
	return New(func(r clock.Resolver[D]) Algorithm[D] {
		e := newExponent(r, base, maxDelay)
		return AlgorithmFunc[D](func() D {
			return toDuration[D](e.grid, e.next())
		})
	})
}

// EqualJitter returns a backoff that keeps half of the exponential delay
// and randomises the other half:
// sleep = cap/2 + random_between(0, cap/2)
func EqualJitter[D clock.Duration](base, maxDelay D) Backoff[D] {
	return EqualJitterWithSource(base, maxDelay, nil)
}

// EqualJitterWithSource is EqualJitter with an injectable random source.
func EqualJitterWithSource[D clock.Duration](base, maxDelay D, src RandomSource) Backoff[D] {
	if src == nil {
		src = defaultSource{}
	}
	return New(func(r clock.Resolver[D]) Algorithm[D] {
		e := newExponent(r, base, maxDelay)
		return AlgorithmFunc[D](func() D {
			upper := e.next()
			half := upper / 2
			return toDuration[D](e.grid, half+draw(src, upper-half))
		})
	})
}

// DecorrelatedJitter returns AWS-style decorrelated jitter backoff:
// the first delay is base, then sleep = min(max, random_between(base, prev*3)).
func DecorrelatedJitter[D clock.Duration](base, maxDelay D) Backoff[D] {
	return DecorrelatedJitterWithSource(base, maxDelay, nil)
}

// DecorrelatedJitterWithSource is DecorrelatedJitter with an injectable
// random source.
func DecorrelatedJitterWithSource[D clock.Duration](base, maxDelay D, src RandomSource) Backoff[D] {
	if src == nil {
		src = defaultSource{}
	}
	return New(func(r clock.Resolver[D]) Algorithm[D] {
		g := newGrid(r)
		limit := g.capTicks(int64(maxDelay))
		b := clampTicks(g.ticks(int64(base)), 1, limit)
		var current int64
		return AlgorithmFunc[D](func() D {
			if current == 0 {
				current = b
				return toDuration[D](g, current)
			}
			upper := limit
			if current <= limit/3 {
				upper = current * 3
			}
			next := b + draw(src, upper-b)
			if next > limit {
				next = limit
			}
			current = next
			return toDuration[D](g, current)
		})
	})
}

// Linear returns a backoff that grows by increment on every call starting
// from initial, capped at maxDelay. A zero maxDelay means no explicit cap.
func Linear[D clock.Duration](initial, increment, maxDelay D) Backoff[D] {
	return New(func(r clock.Resolver[D]) Algorithm[D] {
		g := newGrid(r)
		limit := g.capTicks(int64(maxDelay))
		current := clampTicks(g.ticks(int64(initial)), 0, limit)
		step := g.ticks(int64(increment))
		return AlgorithmFunc[D](func() D {
			delay := current
			if step > 0 && current < limit {
				if current > math.MaxInt64-step || current+step > limit {
					current = limit
				} else {
					current += step
				}
			}
			return toDuration[D](g, delay)
		})
	})
}

// exponent tracks a saturating base*2^n sequence in ticks.
type exponent struct {
	grid        grid
	base        int64
	limit       int64
	maxExponent int
	attempt     int
}

func newExponent[D clock.Duration](r clock.Resolver[D], base, maxDelay D) *exponent {
	g := newGrid(r)
	limit := g.capTicks(int64(maxDelay))
	b := clampTicks(g.ticks(int64(base)), 1, limit)
	return &exponent{
		grid:        g,
		base:        b,
		limit:       limit,
		maxExponent: maxExponent(b, limit),
	}
}

func (e *exponent) next() int64 {
	n := e.attempt
	if e.attempt < e.maxExponent {
		e.attempt++
	}
	return exponentialCap(e.base, e.limit, n, e.maxExponent)
}

func clampTicks(v, lo, hi int64) int64 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
