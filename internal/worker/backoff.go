package worker

import (
	"math"
	"time"
)

// Backoff schedules redelivery of index tasks that failed against the
// listing index. Attempt numbers are 1-based.
type Backoff struct {
	Attempts   int           // deliveries before a task is dead-lettered
	Base       time.Duration // wait after the first failure
	Ceiling    time.Duration // no wait exceeds this
	Multiplier float64
}

func (b Backoff) normalize() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 5
	}
	if b.Base <= 0 {
		b.Base = 2 * time.Second
	}
	if b.Ceiling <= 0 {
		b.Ceiling = time.Minute
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	return b
}

// Exhausted reports whether a task that just failed its attempt-th delivery
// should stop being retried.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.normalize().Attempts
}

// Delay is Base * Multiplier^(attempt-1), never above Ceiling.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalize()
	if attempt < 1 {
		attempt = 1
	}
	exp := math.Pow(b.Multiplier, float64(attempt-1))
	if math.IsInf(exp, 0) || float64(b.Base)*exp >= float64(b.Ceiling) {
		return b.Ceiling
	}
	return time.Duration(float64(b.Base) * exp)
}
