package notify

import (
	"errors"
	"strings"
	"testing"
	"time"

	"ftmaint/internal/history"
	"ftmaint/internal/maint"
)

func TestFormatReport(t *testing.T) {
	start := time.Date(2026, 8, 27, 2, 0, 0, 0, time.UTC)
	stats := &maint.Stats{
		Started:    start,
		Finished:   start.Add(42 * time.Minute),
		Scanned:    6,
		Queued:     4,
		Dispatched: 2,
		Succeeded:  1,
		Failed:     1,
		Skipped:    1,
		Results: []maint.CandidateResult{
			{Name: "Sales", Action: history.ActionRebuild, Outcome: maint.OutcomeDone, Duration: 30 * time.Minute, FragmentCount: 44},
			{Name: "HR", Action: history.ActionReorganize, Outcome: maint.OutcomeFailed, Err: errors.New("catalog busy")},
			{Name: "Archive", Outcome: maint.OutcomeSkipped},
		},
	}

	got := FormatReport("sql01", stats)
	for _, want := range []string{
		"ftmaint run on sql01",
		"dispatched 2, ok 1, failed 1, skipped 1",
		"took 42m0s",
		"Sales: rebuild ok (30m0s, 44 fragments)",
		"HR: reorganize FAILED: catalog busy",
		"Archive: skipped (would overrun window)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestFormatReportAborted(t *testing.T) {
	stats := &maint.Stats{Aborted: true}
	if !strings.Contains(FormatReport("sql01", stats), "window overrun, aborted") {
		t.Fatalf("aborted marker missing")
	}
}
