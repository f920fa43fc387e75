package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "ftmaint/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(r.DatabaseName) == "" {
		return errors.New("history: database name is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO maintenance_log(database_name, action, start_time, finish_time, finish_unix_ms, duration_minutes)
		 VALUES(?,?,?,?,?,?)`,
		r.DatabaseName, string(r.Action),
		r.StartTime.Format(time.RFC3339Nano), r.FinishTime.Format(time.RFC3339Nano),
		r.FinishTime.UnixMilli(), r.DurationMinutes,
	)
	return err
}

func (s *sqliteStore) AverageDuration(ctx context.Context, db string, action Action, since time.Time) (float64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrDisabled
	}
	var (
		avg sql.NullFloat64
		n   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(duration_minutes), COUNT(*)
		   FROM maintenance_log
		  WHERE database_name = ? AND action = ? AND finish_unix_ms >= ?`,
		db, string(action), since.UnixMilli(),
	).Scan(&avg, &n)
	if err != nil {
		return 0, false, err
	}
	if n == 0 || !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

func (s *sqliteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM maintenance_log WHERE finish_unix_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
