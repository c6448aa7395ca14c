package toast

import "time"

// Countdown tracks how much of a toast's lifetime has been spent on
// screen. It holds no timers; callers pass the current time in, which
// keeps it deterministic under test.
type Countdown struct {
	Duration time.Duration

	start       time.Time
	started     bool
	paused      bool
	pausedAt    time.Time
	pausedTotal time.Duration
}

// NewCountdown returns a stopped countdown for d.
func NewCountdown(d time.Duration) Countdown {
	return Countdown{Duration: d}
}

// Start begins counting at now. Starting twice is a no-op.
func (c *Countdown) Start(now time.Time) {
	if c.started {
		return
	}
	c.start = now
	c.started = true
}

// Started reports whether Start has been called.
func (c *Countdown) Started() bool { return c.started }

// Paused reports whether the countdown is frozen.
func (c *Countdown) Paused() bool { return c.paused }

// Pause freezes elapsed time at now. It returns false when the
// countdown is not running.
func (c *Countdown) Pause(now time.Time) bool {
	if !c.started || c.paused {
		return false
	}
	c.paused = true
	c.pausedAt = now
	return true
}

// Resume adds the paused interval to the paused total and continues
// from the accumulated baseline.
func (c *Countdown) Resume(now time.Time) bool {
	if !c.paused {
		return false
	}
	if d := now.Sub(c.pausedAt); d > 0 {
		c.pausedTotal += d
	}
	c.paused = false
	return true
}

// PausedTotal returns the time spent paused, including a pause in progress.
func (c *Countdown) PausedTotal(now time.Time) time.Duration {
	total := c.pausedTotal
	if c.paused && now.After(c.pausedAt) {
		total += now.Sub(c.pausedAt)
	}
	return total
}

// Elapsed returns visible time spent, excluding paused intervals.
func (c *Countdown) Elapsed(now time.Time) time.Duration {
	if !c.started {
		return 0
	}
	if c.paused {
		now = c.pausedAt
	}
	e := now.Sub(c.start) - c.pausedTotal
	if e < 0 {
		return 0
	}
	return e
}

// Left returns the time until the countdown reaches zero.
func (c *Countdown) Left(now time.Time) time.Duration {
	l := c.Duration - c.Elapsed(now)
	if l < 0 {
		return 0
	}
	return l
}

// Fraction returns the remaining share of the lifetime in [0, 1].
func (c *Countdown) Fraction(now time.Time) float64 {
	return Remaining(c.Elapsed(now), c.Duration)
}

// Done reports whether the countdown has run out.
func (c *Countdown) Done(now time.Time) bool {
	return c.started && c.Left(now) == 0
}

// Remaining computes clamp((duration-elapsed)/duration, 0, 1).
func Remaining(elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	f := float64(duration-elapsed) / float64(duration)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
