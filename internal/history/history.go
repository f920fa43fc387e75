package history

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "ftmaint/pkg/logx"
)

var ErrDisabled = errors.New("history disabled")

// Action identifies the maintenance action a record describes.
type Action string

const (
	ActionReorganize Action = "Reorganize"
	ActionRebuild    Action = "Rebuild"
)

// Record is one completed maintenance run. Append-only; never updated.
type Record struct {
	ID              int64     `json:"id,omitempty"`
	DatabaseName    string    `json:"database_name"`
	Action          Action    `json:"action"`
	StartTime       time.Time `json:"start_time"`
	FinishTime      time.Time `json:"finish_time"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// Store is the persistence API behind duration estimates.
//
// AverageDuration returns ok=false when no record matches; estimate
// callers treat that as "no history", not an error.
type Store interface {
	Append(ctx context.Context, r Record) error
	AverageDuration(ctx context.Context, db string, action Action, since time.Time) (avg float64, ok bool, err error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (removed int64, err error)
	Close() error
}

// Config configures the history store.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file":   dependency-free JSON Lines log
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + cfg.Driver)
	}
}
