package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "ftmaint/pkg/logx"
)

func openSQLiteStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteAverageMatchesFilter(t *testing.T) {
	st := openSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	recs := []Record{
		{DatabaseName: "Sales", Action: ActionRebuild, StartTime: now.Add(-2 * time.Hour), FinishTime: now.Add(-time.Hour), DurationMinutes: 60},
		{DatabaseName: "Sales", Action: ActionRebuild, StartTime: now.Add(-time.Hour), FinishTime: now, DurationMinutes: 30},
		{DatabaseName: "Sales", Action: ActionReorganize, StartTime: now.Add(-time.Hour), FinishTime: now, DurationMinutes: 4},
		{DatabaseName: "HR", Action: ActionRebuild, StartTime: now.Add(-time.Hour), FinishTime: now, DurationMinutes: 500},
		// Outside the two-month window below.
		{DatabaseName: "Sales", Action: ActionRebuild, StartTime: now.AddDate(0, -4, 0), FinishTime: now.AddDate(0, -3, 0), DurationMinutes: 999},
	}
	for _, r := range recs {
		if err := st.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	avg, ok, err := st.AverageDuration(ctx, "Sales", ActionRebuild, now.AddDate(0, -2, 0))
	if err != nil || !ok {
		t.Fatalf("average: ok=%v err=%v", ok, err)
	}
	if avg != 45 {
		t.Fatalf("expected avg 45, got %v", avg)
	}

	_, ok, err = st.AverageDuration(ctx, "HR", ActionReorganize, now.AddDate(0, -2, 0))
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if ok {
		t.Fatalf("expected no history for (HR, Reorganize)")
	}
}

func TestSQLitePruneOlderThan(t *testing.T) {
	st := openSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := st.Append(ctx, Record{DatabaseName: "Sales", Action: ActionReorganize, StartTime: now.AddDate(-2, 0, 0), FinishTime: now.AddDate(-1, 0, -1), DurationMinutes: 3}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Append(ctx, Record{DatabaseName: "Sales", Action: ActionReorganize, StartTime: now.Add(-time.Hour), FinishTime: now, DurationMinutes: 3}); err != nil {
		t.Fatalf("append: %v", err)
	}

	removed, err := st.PruneOlderThan(ctx, now.AddDate(-1, 0, 0))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	// The surviving record still averages.
	avg, ok, err := st.AverageDuration(ctx, "Sales", ActionReorganize, now.AddDate(-2, 0, 0))
	if err != nil || !ok || avg != 3 {
		t.Fatalf("average after prune: avg=%v ok=%v err=%v", avg, ok, err)
	}
}
