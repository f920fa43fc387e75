package maint

import (
	"context"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"ftmaint/internal/engine"
	"ftmaint/internal/history"
	logx "ftmaint/pkg/logx"
)

// Runner drives maintenance runs against one server. Execution is
// strictly sequential: one candidate is fully processed before the next
// is considered, because concurrent defragmentation on the same server
// degrades search availability.
type Runner struct {
	eng     engine.Engine
	hist    history.Store
	log     logx.Logger
	clock   clock.Clock
	limiter *rate.Limiter
}

type Option func(*Runner)

// WithClock injects a clock; tests use clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithScanRate throttles per-database inventory queries.
func WithScanRate(perSec int) Option {
	return func(r *Runner) {
		if perSec > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
		}
	}
}

func NewRunner(eng engine.Engine, hist history.Store, log logx.Logger, opts ...Option) *Runner {
	r := &Runner{
		eng:     eng,
		hist:    hist,
		log:     log,
		clock:   clock.New(),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one maintenance run: prune, scan, triage, order, then
// work the queue until the dispatch quota is met, the queue is
// exhausted, or the window elapses.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Stats, error) {
	cfg = cfg.withDefaults()
	start := r.clock.Now()
	stats := &Stats{Started: start}

	// Retention: records older than one year are dead weight for the
	// duration model. A prune failure is not worth failing the run over.
	pruned, err := r.hist.PruneOlderThan(ctx, start.AddDate(-1, 0, 0))
	if err != nil {
		r.log.Warn("history prune failed", logx.Err(err))
	} else if pruned > 0 {
		r.log.Info("history pruned", logx.Int64("removed", pruned))
	}
	stats.Pruned = pruned

	cands, err := r.scan(ctx)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(cands)

	cands, err = r.triage(ctx, cands, cfg)
	if err != nil {
		return stats, err
	}
	queue := buildQueue(cands)
	stats.Queued = len(queue)

	r.log.Info("maintenance run starting",
		logx.Int("scanned", stats.Scanned),
		logx.Int("queued", stats.Queued),
		logx.Int("stop_after", cfg.StopAfter),
		logx.Int("window_minutes", cfg.WindowMinutes),
		logx.Bool("dry_run", cfg.DryRun))

	win := newWindow(start, cfg.WindowMinutes)
	since := start.AddDate(0, -cfg.MonthsForAvg, 0)

	for _, cand := range queue {
		if stats.Dispatched >= cfg.StopAfter {
			break
		}
		if win.expired(r.clock.Now()) {
			stats.Aborted = true
			r.log.Warn("maintenance window elapsed; aborting run",
				logx.Time("window_end", win.end))
			break
		}

		action := cfg.actionFor(cand)
		res := CandidateResult{
			Name:          cand.Name,
			FragmentCount: cand.FragmentCount,
			Action:        action,
		}
		log := r.log.With(
			logx.String("db", cand.Name),
			logx.String("action", string(action)),
			logx.Int("fragments", cand.FragmentCount))

		est, known, err := r.estimate(ctx, cand.Name, action, since)
		if err != nil {
			return stats, err
		}
		if !known {
			// Absence of history is not a skip condition.
			log.Info("no duration history; proceeding with zero estimate")
		}

		if !win.fits(r.clock.Now(), est) {
			// Skips don't consume the quota: the run still attempts the
			// configured number of actual maintenance operations.
			stats.Skipped++
			res.Outcome = OutcomeSkipped
			stats.Results = append(stats.Results, res)
			log.Warn("estimated duration exceeds remaining window; skipping",
				logx.Duration("estimate", est),
				logx.Time("window_end", win.end))
			continue
		}

		if cfg.DryRun {
			stats.Dispatched++
			res.Outcome = OutcomePlanned
			stats.Results = append(stats.Results, res)
			log.Info("dry-run: would dispatch", logx.Duration("estimate", est))
			continue
		}

		stats.Dispatched++
		took, err := r.dispatch(ctx, cand, action, win, cfg)
		if err != nil {
			if ctx.Err() != nil {
				res.Outcome = OutcomeFailed
				res.Err = err
				stats.Failed++
				stats.Results = append(stats.Results, res)
				return stats, ctx.Err()
			}
			// Candidate-local: report and move on to the next entry.
			stats.Failed++
			res.Outcome = OutcomeFailed
			res.Err = err
			stats.Results = append(stats.Results, res)
			log.Error("maintenance failed", logx.Err(err))
			continue
		}
		stats.Succeeded++
		res.Outcome = OutcomeDone
		res.Duration = took
		stats.Results = append(stats.Results, res)
		log.Info("maintenance finished", logx.Duration("took", took))
	}

	stats.Finished = r.clock.Now()
	r.log.Info("maintenance run finished",
		logx.Int("dispatched", stats.Dispatched),
		logx.Int("succeeded", stats.Succeeded),
		logx.Int("failed", stats.Failed),
		logx.Int("skipped", stats.Skipped),
		logx.Bool("aborted", stats.Aborted),
		logx.Duration("took", stats.Finished.Sub(stats.Started)))
	return stats, nil
}
