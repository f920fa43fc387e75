package maint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"ftmaint/internal/history"
	logx "ftmaint/pkg/logx"
)

func TestRunSelectsAndOrdersCandidates(t *testing.T) {
	eng := newFakeEngine("DB1", "DB2", "DB3", "NoFT")
	eng.frags["DB1"] = 5
	eng.frags["DB2"] = 15
	eng.frags["DB3"] = 40
	eng.noCatalog["NoFT"] = true

	hist := &fakeHistory{}
	r := NewRunner(eng, hist, logx.Nop(), WithClock(clock.NewMock()))

	stats, err := r.Run(context.Background(), RunConfig{ReorgThreshold: 10, RebuildThreshold: 30, StopAfter: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// NoFT is not applicable, DB1 is below threshold.
	if stats.Scanned != 3 || stats.Queued != 2 {
		t.Fatalf("scanned=%d queued=%d, want 3/2", stats.Scanned, stats.Queued)
	}
	if len(eng.rebuilds) != 1 || eng.rebuilds[0] != "DB3" {
		t.Fatalf("expected DB3 rebuilt, got %v", eng.rebuilds)
	}
	if len(eng.reorgs) != 1 || eng.reorgs[0] != "DB2" {
		t.Fatalf("expected DB2 reorganized, got %v", eng.reorgs)
	}
	// DB3 (worst fragmentation) must be processed first.
	if len(stats.Results) != 2 || stats.Results[0].Name != "DB3" || stats.Results[1].Name != "DB2" {
		t.Fatalf("unexpected order: %+v", stats.Results)
	}
	if len(hist.recorded()) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(hist.recorded()))
	}
}

func TestRunUnboundedWindowAlwaysProceeds(t *testing.T) {
	eng := newFakeEngine("A", "B")
	eng.frags["A"] = 20
	eng.frags["B"] = 25

	mock := clock.NewMock()
	hist := &fakeHistory{}
	// Huge historical durations; with windowMinutes=0 they must not matter.
	now := mock.Now()
	hist.records = append(hist.records,
		history.Record{DatabaseName: "A", Action: history.ActionReorganize, FinishTime: now, DurationMinutes: 100000},
		history.Record{DatabaseName: "B", Action: history.ActionReorganize, FinishTime: now, DurationMinutes: 100000},
	)

	r := NewRunner(eng, hist, logx.Nop(), WithClock(mock))
	stats, err := r.Run(context.Background(), RunConfig{WindowMinutes: 0, StopAfter: 5})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Skipped != 0 || stats.Dispatched != 2 || stats.Succeeded != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunSkipDoesNotConsumeQuota(t *testing.T) {
	eng := newFakeEngine("Slow", "Quick")
	eng.frags["Slow"] = 25
	eng.frags["Quick"] = 20

	mock := clock.NewMock()
	hist := &fakeHistory{}
	// 90 minute estimate against a 60 minute window: Slow must be skipped.
	hist.records = append(hist.records, history.Record{
		DatabaseName: "Slow", Action: history.ActionReorganize,
		FinishTime: mock.Now(), DurationMinutes: 90,
	})

	r := NewRunner(eng, hist, logx.Nop(), WithClock(mock))
	stats, err := r.Run(context.Background(), RunConfig{WindowMinutes: 60, StopAfter: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Skipped != 1 {
		t.Fatalf("expected 1 skip, got %d", stats.Skipped)
	}
	// The skip must not count against StopAfter: Quick still runs.
	if stats.Dispatched != 1 || len(eng.reorgs) != 1 || eng.reorgs[0] != "Quick" {
		t.Fatalf("expected Quick dispatched, got dispatched=%d reorgs=%v", stats.Dispatched, eng.reorgs)
	}
	if stats.Results[0].Outcome != OutcomeSkipped || stats.Results[1].Outcome != OutcomeDone {
		t.Fatalf("unexpected outcomes: %+v", stats.Results)
	}
	// No new record for the skipped candidate (only the seeded one).
	for _, rec := range hist.recorded() {
		if rec.DatabaseName == "Slow" && rec.DurationMinutes != 90 {
			t.Fatalf("skip must not append history: %+v", rec)
		}
		if rec.DatabaseName == "Quick" && rec.Action != history.ActionReorganize {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
}

func TestRunNoHistoryProceedsWithZeroEstimate(t *testing.T) {
	eng := newFakeEngine("Fresh")
	eng.frags["Fresh"] = 12

	r := NewRunner(eng, &fakeHistory{}, logx.Nop(), WithClock(clock.NewMock()))
	stats, err := r.Run(context.Background(), RunConfig{WindowMinutes: 60})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Absence of history is not a skip condition.
	if stats.Skipped != 0 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunDispatchFailureIsCandidateLocal(t *testing.T) {
	eng := newFakeEngine("Bad", "Good")
	eng.frags["Bad"] = 25
	eng.frags["Good"] = 20
	eng.reorgErr["Bad"] = errors.New("catalog is busy")

	hist := &fakeHistory{}
	r := NewRunner(eng, hist, logx.Nop(), WithClock(clock.NewMock()))
	stats, err := r.Run(context.Background(), RunConfig{StopAfter: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	// A failed dispatch must never produce a history record.
	for _, rec := range hist.recorded() {
		if rec.DatabaseName == "Bad" {
			t.Fatalf("failed run polluted history: %+v", rec)
		}
	}
	if len(eng.reorgs) != 1 || eng.reorgs[0] != "Good" {
		t.Fatalf("expected Good to still run, got %v", eng.reorgs)
	}
}

func TestRunGlobalOverrunAborts(t *testing.T) {
	eng := newFakeEngine("First", "Second")
	eng.frags["First"] = 25
	eng.frags["Second"] = 20

	mock := clock.NewMock()
	// The first reorganize blows through the whole window.
	eng.onReorganize = func(string) { mock.Add(90 * time.Minute) }

	r := NewRunner(eng, &fakeHistory{}, logx.Nop(), WithClock(mock))
	stats, err := r.Run(context.Background(), RunConfig{WindowMinutes: 60, StopAfter: 5})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !stats.Aborted {
		t.Fatalf("expected aborted run: %+v", stats)
	}
	if stats.Dispatched != 1 || len(eng.reorgs) != 1 {
		t.Fatalf("second candidate must not be touched after overrun: %+v", stats)
	}
}

func TestRunRebuildPollsUntilComplete(t *testing.T) {
	eng := newFakeEngine("Search")
	eng.frags["Search"] = 50
	eng.busyPolls["Search"] = 3
	eng.pollCh = make(chan struct{})

	mock := clock.NewMock()
	hist := &fakeHistory{}
	r := NewRunner(eng, hist, logx.Nop(), WithClock(mock))

	type result struct {
		stats *Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := r.Run(context.Background(), RunConfig{StopAfter: 1, PollInterval: 30 * time.Second})
		done <- result{stats, err}
	}()

	// Three busy polls, each followed by a 30s wait.
	for i := 0; i < 3; i++ {
		<-eng.pollCh
		// Let the runner reach its poll timer before advancing the clock.
		time.Sleep(10 * time.Millisecond)
		mock.Add(30 * time.Second)
	}
	<-eng.pollCh // final poll reports completion

	res := <-done
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	if res.stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", res.stats)
	}

	recs := hist.recorded()
	if len(recs) != 1 {
		t.Fatalf("expected exactly one history record, got %d", len(recs))
	}
	if recs[0].Action != history.ActionRebuild {
		t.Fatalf("expected a rebuild record, got %+v", recs[0])
	}
	// Three 30s waits: 1.5 recorded minutes.
	if recs[0].DurationMinutes != 1.5 {
		t.Fatalf("expected 1.5 minutes, got %v", recs[0].DurationMinutes)
	}
}

func TestRunDryRunDispatchesNothing(t *testing.T) {
	eng := newFakeEngine("A", "B")
	eng.frags["A"] = 50
	eng.frags["B"] = 20

	hist := &fakeHistory{}
	r := NewRunner(eng, hist, logx.Nop(), WithClock(clock.NewMock()))
	stats, err := r.Run(context.Background(), RunConfig{DryRun: true, StopAfter: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(eng.reorgs) != 0 || len(eng.rebuilds) != 0 {
		t.Fatalf("dry run must not dispatch: %v %v", eng.reorgs, eng.rebuilds)
	}
	if len(hist.recorded()) != 0 {
		t.Fatalf("dry run must not write history")
	}
	if stats.Dispatched != 2 {
		t.Fatalf("dry run still consumes the quota: %+v", stats)
	}
	for _, res := range stats.Results {
		if res.Outcome != OutcomePlanned {
			t.Fatalf("unexpected outcome: %+v", res)
		}
	}
}

func TestRunStopAfterLimitsDispatches(t *testing.T) {
	eng := newFakeEngine("A", "B", "C", "D")
	for i, db := range []string{"A", "B", "C", "D"} {
		eng.frags[db] = 20 + i
	}

	r := NewRunner(eng, &fakeHistory{}, logx.Nop(), WithClock(clock.NewMock()))
	stats, err := r.Run(context.Background(), RunConfig{StopAfter: 2})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Dispatched != 2 || len(eng.reorgs) != 2 {
		t.Fatalf("expected exactly 2 dispatches, got %+v", stats)
	}
	// Highest fragmentation first: D then C.
	if eng.reorgs[0] != "D" || eng.reorgs[1] != "C" {
		t.Fatalf("unexpected dispatch order: %v", eng.reorgs)
	}
}

func TestRunPrunesOldHistory(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 8, 27, 2, 0, 0, 0, time.UTC))

	hist := &fakeHistory{}
	hist.records = append(hist.records,
		history.Record{DatabaseName: "Old", Action: history.ActionReorganize, FinishTime: mock.Now().AddDate(-1, 0, -1), DurationMinutes: 5},
		history.Record{DatabaseName: "New", Action: history.ActionReorganize, FinishTime: mock.Now().Add(-time.Hour), DurationMinutes: 5},
	)

	r := NewRunner(newFakeEngine(), hist, logx.Nop(), WithClock(mock))
	stats, err := r.Run(context.Background(), RunConfig{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Pruned != 1 {
		t.Fatalf("expected 1 pruned record, got %d", stats.Pruned)
	}
	for _, rec := range hist.recorded() {
		if rec.DatabaseName == "Old" {
			t.Fatalf("year-old record survived the prune")
		}
	}
}
