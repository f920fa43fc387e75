package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	logx "ftmaint/pkg/logx"
)

// Config configures the SQL Server engine.
type Config struct {
	// DSN is a go-mssqldb connection string.
	DSN string

	// Include restricts enumeration to these database names (empty = all
	// user databases). Exclude is applied after Include. Both are
	// case-insensitive, matching SQL Server's default collation behavior.
	Include []string
	Exclude []string
}

type mssqlEngine struct {
	db  *sql.DB
	cfg Config
	log logx.Logger
}

// Connect opens the server connection and verifies it.
func Connect(ctx context.Context, cfg Config, log logx.Logger) (Engine, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("engine: dsn is required")
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One maintenance action runs at a time; keep the pool small.
	db.SetMaxOpenConns(2)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("engine: ping: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &mssqlEngine{db: db, cfg: cfg, log: log}, nil
}

// Close releases the connection pool. Not part of Engine; callers that
// own the lifecycle assert for it.
func (e *mssqlEngine) Close() error { return e.db.Close() }

func (e *mssqlEngine) Databases(ctx context.Context) ([]string, error) {
	// database_id > 4 skips master/tempdb/model/msdb.
	rows, err := e.db.QueryContext(ctx,
		`SELECT name FROM sys.databases WHERE database_id > 4 AND state_desc = 'ONLINE' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if matchName(name, e.cfg.Include, e.cfg.Exclude) {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

func (e *mssqlEngine) HasCatalog(ctx context.Context, db string) (bool, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s.sys.fulltext_catalogs`, quoteName(db))
	var n int
	if err := e.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (e *mssqlEngine) FragmentCount(ctx context.Context, db string) (int, error) {
	// Closed fragments (status 4) are what reorganize/rebuild merge away.
	q := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s.sys.fulltext_index_fragments WHERE status = 4`,
		quoteName(db))
	var n int
	if err := e.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (e *mssqlEngine) CatalogSizeBytes(ctx context.Context, db string) (int64, error) {
	q := fmt.Sprintf(
		`SELECT COALESCE(SUM(CAST(data_size AS bigint)), 0) FROM %s.sys.fulltext_index_fragments`,
		quoteName(db))
	var n int64
	if err := e.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (e *mssqlEngine) Reorganize(ctx context.Context, db string) error {
	return e.alterCatalogs(ctx, db, "REORGANIZE")
}

func (e *mssqlEngine) Rebuild(ctx context.Context, db string) error {
	return e.alterCatalogs(ctx, db, "REBUILD")
}

// alterCatalogs runs ALTER FULLTEXT CATALOG <cat> <verb> for every catalog
// in the database. The statement must execute in the database's own
// context, so it goes through the database-qualified sp_executesql with
// the catalog name QUOTENAME'd server-side from a bound parameter.
func (e *mssqlEngine) alterCatalogs(ctx context.Context, db, verb string) error {
	cats, err := e.catalogs(ctx, db)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		return fmt.Errorf("%w: %s", ErrNoCatalog, db)
	}
	exec := fmt.Sprintf(`%s.sys.sp_executesql`, quoteName(db))
	for _, cat := range cats {
		stmt := fmt.Sprintf(
			`DECLARE @s nvarchar(max) = N'ALTER FULLTEXT CATALOG ' + QUOTENAME(@cat) + N' %s'; EXEC %s @s`,
			verb, exec)
		if _, err := e.db.ExecContext(ctx, stmt, sql.Named("cat", cat)); err != nil {
			return fmt.Errorf("alter catalog %s.%s %s: %w", db, cat, strings.ToLower(verb), err)
		}
		e.log.Debug("catalog altered",
			logx.String("db", db), logx.String("catalog", cat), logx.String("verb", verb))
	}
	return nil
}

func (e *mssqlEngine) RebuildInProgress(ctx context.Context, db string) (bool, error) {
	// PopulateStatus 0 = idle; anything else means a population is running.
	q := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s.sys.fulltext_catalogs WHERE FULLTEXTCATALOGPROPERTY(name, 'PopulateStatus') <> 0`,
		quoteName(db))
	var n int
	if err := e.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (e *mssqlEngine) catalogs(ctx context.Context, db string) ([]string, error) {
	q := fmt.Sprintf(`SELECT name FROM %s.sys.fulltext_catalogs ORDER BY name`, quoteName(db))
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// quoteName brackets a SQL Server identifier, escaping closing brackets.
// Identifiers cannot be bound as parameters; this is the one sanctioned
// way to splice them.
func quoteName(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func matchName(name string, include, exclude []string) bool {
	if len(include) > 0 && !containsFold(include, name) {
		return false
	}
	return !containsFold(exclude, name)
}

func containsFold(list []string, name string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}
