package maint

import "time"

// window is the run's time budget, derived once at run start.
// The zero end means unbounded: every fit check trivially passes.
type window struct {
	start   time.Time
	end     time.Time
	bounded bool
}

func newWindow(start time.Time, minutes int) window {
	w := window{start: start}
	if minutes > 0 {
		w.end = start.Add(time.Duration(minutes) * time.Minute)
		w.bounded = true
	}
	return w
}

// expired is the global overrun guard, checked between candidates.
func (w window) expired(now time.Time) bool {
	return w.bounded && now.After(w.end)
}

// fits decides Proceed (true) vs Skip (false) for an estimate.
// Boundary-inclusive: landing exactly on the window end is a Skip.
func (w window) fits(now time.Time, estimate time.Duration) bool {
	if !w.bounded {
		return true
	}
	return now.Add(estimate).Before(w.end)
}
