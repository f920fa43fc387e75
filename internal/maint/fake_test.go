package maint

import (
	"context"
	"sync"
	"time"

	"ftmaint/internal/history"
)

// fakeEngine scripts the server's answers and records what was dispatched.
type fakeEngine struct {
	mu sync.Mutex

	dbs       []string
	noCatalog map[string]bool
	frags     map[string]int
	sizes     map[string]int64

	reorgErr   map[string]error
	rebuildErr map[string]error

	// busyPolls is how many times RebuildInProgress answers true per db.
	busyPolls map[string]int

	reorgs      []string
	rebuilds    []string
	sizeQueries int
	polls       int

	// pollCh, when set, receives after every RebuildInProgress call.
	pollCh chan struct{}

	// onReorganize, when set, runs before a reorganize returns.
	onReorganize func(db string)
}

func newFakeEngine(dbs ...string) *fakeEngine {
	return &fakeEngine{
		dbs:        dbs,
		noCatalog:  map[string]bool{},
		frags:      map[string]int{},
		sizes:      map[string]int64{},
		reorgErr:   map[string]error{},
		rebuildErr: map[string]error{},
		busyPolls:  map[string]int{},
	}
}

func (f *fakeEngine) Databases(context.Context) ([]string, error) {
	return append([]string(nil), f.dbs...), nil
}

func (f *fakeEngine) HasCatalog(_ context.Context, db string) (bool, error) {
	return !f.noCatalog[db], nil
}

func (f *fakeEngine) FragmentCount(_ context.Context, db string) (int, error) {
	return f.frags[db], nil
}

func (f *fakeEngine) CatalogSizeBytes(_ context.Context, db string) (int64, error) {
	f.mu.Lock()
	f.sizeQueries++
	f.mu.Unlock()
	return f.sizes[db], nil
}

func (f *fakeEngine) Reorganize(_ context.Context, db string) error {
	if err := f.reorgErr[db]; err != nil {
		return err
	}
	if f.onReorganize != nil {
		f.onReorganize(db)
	}
	f.mu.Lock()
	f.reorgs = append(f.reorgs, db)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Rebuild(_ context.Context, db string) error {
	if err := f.rebuildErr[db]; err != nil {
		return err
	}
	f.mu.Lock()
	f.rebuilds = append(f.rebuilds, db)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) RebuildInProgress(_ context.Context, db string) (bool, error) {
	f.mu.Lock()
	f.polls++
	busy := f.busyPolls[db] > 0
	if busy {
		f.busyPolls[db]--
	}
	ch := f.pollCh
	f.mu.Unlock()
	if ch != nil {
		ch <- struct{}{}
	}
	return busy, nil
}

// fakeHistory is an in-memory history store.
type fakeHistory struct {
	mu        sync.Mutex
	records   []history.Record
	appendErr error
}

func (h *fakeHistory) Append(_ context.Context, r history.Record) error {
	if h.appendErr != nil {
		return h.appendErr
	}
	h.mu.Lock()
	h.records = append(h.records, r)
	h.mu.Unlock()
	return nil
}

func (h *fakeHistory) AverageDuration(_ context.Context, db string, action history.Action, since time.Time) (float64, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var (
		sum float64
		n   int
	)
	for _, r := range h.records {
		if r.DatabaseName != db || r.Action != action || r.FinishTime.Before(since) {
			continue
		}
		sum += r.DurationMinutes
		n++
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

func (h *fakeHistory) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.records[:0]
	var removed int64
	for _, r := range h.records {
		if r.FinishTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	h.records = kept
	return removed, nil
}

func (h *fakeHistory) Close() error { return nil }

func (h *fakeHistory) recorded() []history.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Record(nil), h.records...)
}
