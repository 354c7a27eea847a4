package otel

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite" // Register the "sqlite" driver.
)

// sqlitePragmas are applied to every database opened by OpenDB. The naming
// stores and the River queue share one file, so writers wait on each other
// instead of failing with SQLITE_BUSY.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the SQLite database at path with SQL tracing and
// connection-pool metrics.
func OpenDB(path string) (*sql.DB, error) {
	attrs := otelsql.WithAttributes(semconv.DBSystemSqlite)

	db, err := otelsql.Open("sqlite", path, attrs)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("database %s: %s: %w", path, pragma, err)
		}
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db, attrs); err != nil {
		db.Close()
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}
	return db, nil
}
