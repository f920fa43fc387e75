// Package maint implements the catalog maintenance run: inventory,
// triage, priority ordering, duration estimation, window budgeting and
// dispatch. One Runner.Run call is one maintenance run.
package maint

import (
	"time"

	"ftmaint/internal/history"
)

// Candidate is one maintainable database catalog, discovered by the
// inventory scan and discarded when the run ends.
type Candidate struct {
	Name          string
	FragmentCount int
	SizeBytes     int64
}

// RunConfig carries the immutable per-run parameters.
type RunConfig struct {
	// ReorgThreshold is the minimum fragment count worth touching at all.
	ReorgThreshold int
	// RebuildThreshold switches the action from reorganize to rebuild.
	// Must be >= ReorgThreshold.
	RebuildThreshold int
	// StopAfter caps the number of dispatched maintenance operations.
	StopAfter int
	// WindowMinutes bounds the run. 0 = unbounded.
	WindowMinutes int
	// MonthsForAvg is the trailing window for duration estimates.
	MonthsForAvg int
	// MaxSizeGB drops catalogs larger than this. 0 = unlimited.
	MaxSizeGB int

	// PollInterval is the rebuild progress poll cadence.
	PollInterval time.Duration

	// DryRun decides but never dispatches and never writes history.
	DryRun bool
}

func (c RunConfig) withDefaults() RunConfig {
	if c.ReorgThreshold <= 0 {
		c.ReorgThreshold = 10
	}
	if c.RebuildThreshold <= 0 {
		c.RebuildThreshold = 30
	}
	if c.RebuildThreshold < c.ReorgThreshold {
		c.RebuildThreshold = c.ReorgThreshold
	}
	if c.StopAfter <= 0 {
		c.StopAfter = 3
	}
	if c.MonthsForAvg <= 0 {
		c.MonthsForAvg = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	return c
}

// actionFor selects the maintenance action. The triage filter already
// removed candidates below ReorgThreshold, so this is exhaustive.
func (c RunConfig) actionFor(cand Candidate) history.Action {
	if cand.FragmentCount >= c.RebuildThreshold {
		return history.ActionRebuild
	}
	return history.ActionReorganize
}

// Outcome classifies how a queued candidate ended up.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped" // estimate would overrun the window
	OutcomePlanned Outcome = "planned" // dry-run only
)

// CandidateResult is the per-candidate outcome of a run.
type CandidateResult struct {
	Name          string
	FragmentCount int
	Action        history.Action
	Outcome       Outcome
	Duration      time.Duration
	Err           error
}

// Stats summarizes one maintenance run.
type Stats struct {
	Started  time.Time
	Finished time.Time

	Scanned    int // candidates after the inventory scan
	Queued     int // candidates surviving triage
	Dispatched int // maintenance operations attempted
	Succeeded  int
	Failed     int
	Skipped    int // window-budget skips (do not consume the quota)
	Pruned     int64

	// Aborted is set when the global window guard stopped the loop.
	Aborted bool

	Results []CandidateResult
}
