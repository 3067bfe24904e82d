package backoff

import (
	"github.com/vyrodovalexey/avaretry/internal/clock"
)

// FullJitter returns the default exponential backoff with full jitter.
//
// The n-th delay (zero-based) is drawn uniformly from
// [0, min(base * 2^n, maxDelay)] and rounded to the clock resolution. A zero maxDelay
// means no explicit cap: the implicit cap is the largest delay representable
// as D, which the exponent still saturates against.
//
// FullJitter panics if base is not positive or if maxDelay is set and smaller
// than base.
func FullJitter[D clock.Duration](base, maxDelay D) Backoff[D] {
	return FullJitterWithSource(base, maxDelay, nil)
}

// FullJitterWithSource is FullJitter with an injectable random source.
// A nil source selects the default generator.
func FullJitterWithSource[D clock.Duration](base, maxDelay D, src RandomSource) Backoff[D] {
	if base <= 0 {
		panic("backoff: full jitter base delay must be positive")
	}
	if maxDelay != 0 && maxDelay < base {
		panic("backoff: full jitter max delay must not be smaller than base delay")
	}
	if src == nil {
		src = defaultSource{}
	}

	return New(func(r clock.Resolver[D]) Algorithm[D] {
		return &fullJitter[D]{
			exp: newExponent(r, base, maxDelay),
			src: src,
		}
	})
}

type fullJitter[D clock.Duration] struct {
	exp *exponent
	src RandomSource
}

// NextDelay implements Algorithm.
func (a *fullJitter[D]) NextDelay() D {
	return toDuration[D](a.exp.grid, draw(a.src, a.exp.next()))
}
