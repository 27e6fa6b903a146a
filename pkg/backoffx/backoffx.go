// Package backoffx provides the delay strategies used for broker reconnects
// and job retries. Strategies are immutable values, safe for concurrent use.
package backoffx

import (
	"math"
	"time"
)

// Linear grows the delay by Unit per attempt.
// Delay = min(Unit * attempt, Max).
type Linear struct {
	Unit time.Duration
	Max  time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(unit, maxDelay time.Duration) Linear {
	return Linear{Unit: unit, Max: maxDelay}
}

// Delay returns Unit * attempt, capped at Max.
func (l Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if l.Max > 0 && l.Unit > 0 && int64(attempt) > int64(l.Max/l.Unit) {
		return l.Max
	}
	return l.Unit * time.Duration(attempt)
}

// Exponential doubles the delay each attempt.
// Delay = min(Base * 2^(attempt-1), Max). A zero Max means uncapped.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(base, maxDelay time.Duration) Exponential {
	return Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^(attempt-1), capped at Max.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Base) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
