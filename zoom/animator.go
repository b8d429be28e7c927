package zoom

import "time"

// Animator moves the view linearly from the extents at the last SetTarget
// call to the target over a fixed duration.
type Animator struct {
	from, to, current Extents
	elapsed, duration time.Duration
}

// NewAnimator returns an animator at rest on e. If duration is 0, defaults to
// DefaultDuration.
func NewAnimator(e Extents, duration time.Duration) *Animator {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Animator{from: e, to: e, current: e, elapsed: duration, duration: duration}
}

// SetTarget restarts the animation from the current extents.
func (a *Animator) SetTarget(target Extents) {
	a.from = a.current
	a.to = target
	a.elapsed = 0
}

// Tick advances the animation by dt and returns the new extents. Once the
// duration has passed the extents equal the target exactly.
func (a *Animator) Tick(dt time.Duration) Extents {
	if dt > 0 {
		a.elapsed += dt
	}
	if a.elapsed >= a.duration {
		a.elapsed = a.duration
		a.current = a.to
		return a.current
	}
	a.current = a.from.Lerp(a.to, float64(a.elapsed)/float64(a.duration))
	return a.current
}

// Current returns the extents as of the last Tick.
func (a *Animator) Current() Extents { return a.current }

// Target returns the extents being approached.
func (a *Animator) Target() Extents { return a.to }

// Animating reports whether the target has not been reached yet.
func (a *Animator) Animating() bool { return a.elapsed < a.duration }
