package maint

import (
	"context"
	"time"

	"ftmaint/internal/history"
	logx "ftmaint/pkg/logx"
)

// dispatch runs one maintenance action to completion and appends the
// history record on success. Failures are returned to the loop and never
// produce a record; a failed run must not pollute the duration model.
func (r *Runner) dispatch(ctx context.Context, cand Candidate, action history.Action, win window, cfg RunConfig) (time.Duration, error) {
	start := r.clock.Now()

	switch action {
	case history.ActionRebuild:
		if err := r.eng.Rebuild(ctx, cand.Name); err != nil {
			return 0, err
		}
		if err := r.awaitRebuild(ctx, cand.Name, win, cfg.PollInterval); err != nil {
			return 0, err
		}
	default:
		if err := r.eng.Reorganize(ctx, cand.Name); err != nil {
			return 0, err
		}
	}

	finish := r.clock.Now()
	took := finish.Sub(start)
	rec := history.Record{
		DatabaseName:    cand.Name,
		Action:          action,
		StartTime:       start,
		FinishTime:      finish,
		DurationMinutes: took.Minutes(),
	}
	if err := r.hist.Append(ctx, rec); err != nil {
		// The maintenance itself succeeded; losing the record only
		// weakens future estimates.
		r.log.Warn("history append failed", logx.String("db", cand.Name), logx.Err(err))
	}
	return took, nil
}

// awaitRebuild waits for the asynchronous rebuild to finish, polling on a
// fixed cadence. There is no way to cancel a dispatched rebuild: crossing
// the window end only produces a single warning, and waiting continues
// until the server reports completion.
func (r *Runner) awaitRebuild(ctx context.Context, db string, win window, interval time.Duration) error {
	overrunWarned := false
	for {
		busy, err := r.eng.RebuildInProgress(ctx, db)
		if err != nil {
			// Transient poll failures must not abandon a running rebuild.
			r.log.Warn("rebuild progress poll failed", logx.String("db", db), logx.Err(err))
		} else if !busy {
			return nil
		}

		now := r.clock.Now()
		if win.expired(now) && !overrunWarned {
			overrunWarned = true
			r.log.Warn("maintenance window passed during rebuild; search results may be inaccurate until it completes",
				logx.String("db", db),
				logx.Time("window_end", win.end))
		}

		t := r.clock.Timer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
