package maint

import (
	"testing"
	"time"
)

func TestWindowUnbounded(t *testing.T) {
	start := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)
	w := newWindow(start, 0)

	if w.expired(start.Add(1000 * time.Hour)) {
		t.Fatalf("unbounded window must never expire")
	}
	if !w.fits(start, 1000*time.Hour) {
		t.Fatalf("unbounded window must fit any estimate")
	}
}

func TestWindowFitsBoundaries(t *testing.T) {
	start := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)
	w := newWindow(start, 60)

	if !w.fits(start, 59*time.Minute) {
		t.Fatalf("estimate inside the window must fit")
	}
	// Landing exactly on the window end is a skip.
	if w.fits(start, 60*time.Minute) {
		t.Fatalf("estimate reaching the window end must not fit")
	}
	if w.fits(start.Add(30*time.Minute), 45*time.Minute) {
		t.Fatalf("elapsed time must count against the estimate")
	}
}

func TestWindowExpired(t *testing.T) {
	start := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)
	w := newWindow(start, 60)

	if w.expired(start.Add(60 * time.Minute)) {
		t.Fatalf("exactly at the end is not yet expired")
	}
	if !w.expired(start.Add(60*time.Minute + time.Second)) {
		t.Fatalf("past the end must be expired")
	}
}
