package maint

import (
	"context"
	"time"

	"ftmaint/internal/history"
)

// estimate returns the expected runtime for (db, action) from matching
// history within the trailing window. ok=false means no history exists;
// the caller emits the informational notice and proceeds with zero.
func (r *Runner) estimate(ctx context.Context, db string, action history.Action, since time.Time) (time.Duration, bool, error) {
	avg, ok, err := r.hist.AverageDuration(ctx, db, action, since)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	return time.Duration(avg * float64(time.Minute)), true, nil
}
