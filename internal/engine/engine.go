// Package engine abstracts the server hosting the full-text catalogs.
//
// The scheduler core only sees this interface; the production
// implementation (mssql.go) talks to SQL Server system views.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrNoCatalog marks a database without the full-text feature.
	ErrNoCatalog = errors.New("database has no full-text catalog")
)

// Engine exposes the per-database maintenance capabilities.
//
// All operations take a structured database name; implementations must
// quote identifiers and bind values, never interpolate them.
type Engine interface {
	// Databases enumerates eligible databases, already name-filtered.
	Databases(ctx context.Context) ([]string, error)

	// HasCatalog reports whether the database hosts any full-text catalog.
	HasCatalog(ctx context.Context, db string) (bool, error)

	// FragmentCount returns the current number of closed index fragments
	// across the database's catalogs.
	FragmentCount(ctx context.Context, db string) (int, error)

	// CatalogSizeBytes returns the combined storage footprint of the
	// database's catalogs.
	CatalogSizeBytes(ctx context.Context, db string) (int64, error)

	// Reorganize runs the lightweight defragmentation synchronously.
	Reorganize(ctx context.Context, db string) error

	// Rebuild starts the full catalog reconstruction. The server processes
	// it asynchronously; observe completion via RebuildInProgress.
	Rebuild(ctx context.Context, db string) error

	// RebuildInProgress polls whether any catalog population is still running.
	RebuildInProgress(ctx context.Context, db string) (bool, error)
}
