package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/ctinamer/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: StateRepository implements domain.StateRepository.
var _ domain.StateRepository = (*StateRepository)(nil)

const (
	fieldSource   = "source"
	fieldCategory = "category"
)

// StateRepository implements domain.StateRepository using SQLite. Several
// repositories (one per kind) may share a database.
type StateRepository struct {
	db   *sql.DB
	kind domain.Kind
}

// New opens a SQLite database, runs migrations, and returns a ready repository.
func New(dataSourceName string, kind domain.Kind) (*StateRepository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	repo, err := NewFromDB(db, kind)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready repository.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB, kind domain.Kind) (*StateRepository, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &StateRepository{db: db, kind: kind}, nil
}

// Close closes the underlying database connection.
func (r *StateRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (r *StateRepository) DB() *sql.DB {
	return r.db
}

// Migrate applies the embedded schema migrations. Goose logging is
// silenced: it writes to the standard logger, which would land on CLI output.
func Migrate(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

func (r *StateRepository) resource() string {
	return "sqlite store " + string(r.kind)
}

// Load reads the kind's rows back into a state.
func (r *StateRepository) Load(ctx context.Context) (domain.State, error) {
	state := domain.NewState(r.kind)

	err := r.db.QueryRowContext(ctx,
		`SELECT output_file FROM stores WHERE kind = ?`, string(r.kind),
	).Scan(&state.OutputFile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.State{}, domain.ErrStateNotFound
		}
		return domain.State{}, r.readError(err)
	}

	if err := r.loadCounters(ctx, &state); err != nil {
		return domain.State{}, err
	}
	if err := r.loadIssued(ctx, &state); err != nil {
		return domain.State{}, err
	}
	if err := r.loadDescriptions(ctx, &state); err != nil {
		return domain.State{}, err
	}
	if err := r.loadAllowLists(ctx, &state); err != nil {
		return domain.State{}, err
	}

	if err := state.Validate(); err != nil {
		return domain.State{}, &domain.CorruptionError{Resource: r.resource(), Err: err}
	}
	return state, nil
}

func (r *StateRepository) readError(err error) error {
	return &domain.IOError{Op: "read", Resource: r.resource(), Err: err}
}

func (r *StateRepository) loadCounters(ctx context.Context, state *domain.State) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT namespace, source, category, date, count FROM counters WHERE kind = ?`,
		string(r.kind),
	)
	if err != nil {
		return r.readError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var key domain.CounterKey
		var ns string
		var count int
		if err := rows.Scan(&ns, &key.Source, &key.Category, &key.Date, &count); err != nil {
			return r.readError(fmt.Errorf("scanning counter row: %w", err))
		}
		key.Namespace = domain.Namespace(ns)
		state.Counters[key] = count
	}
	if err := rows.Err(); err != nil {
		return r.readError(err)
	}
	return nil
}

func (r *StateRepository) loadIssued(ctx context.Context, state *domain.State) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT namespace, id FROM issued WHERE kind = ? ORDER BY seq`,
		string(r.kind),
	)
	if err != nil {
		return r.readError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var ns, id string
		if err := rows.Scan(&ns, &id); err != nil {
			return r.readError(fmt.Errorf("scanning issued row: %w", err))
		}
		state.Issued = append(state.Issued, domain.Issued{Namespace: domain.Namespace(ns), ID: id})
	}
	if err := rows.Err(); err != nil {
		return r.readError(err)
	}
	return nil
}

func (r *StateRepository) loadDescriptions(ctx context.Context, state *domain.State) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, description FROM descriptions WHERE kind = ?`,
		string(r.kind),
	)
	if err != nil {
		return r.readError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, desc string
		if err := rows.Scan(&id, &desc); err != nil {
			return r.readError(fmt.Errorf("scanning description row: %w", err))
		}
		state.Descriptions[id] = desc
	}
	if err := rows.Err(); err != nil {
		return r.readError(err)
	}
	return nil
}

func (r *StateRepository) loadAllowLists(ctx context.Context, state *domain.State) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT namespace, field, value FROM allow_lists WHERE kind = ?
		 ORDER BY namespace, field, position`,
		string(r.kind),
	)
	if err != nil {
		return r.readError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var ns, field, value string
		if err := rows.Scan(&ns, &field, &value); err != nil {
			return r.readError(fmt.Errorf("scanning allow-list row: %w", err))
		}
		list := state.AllowLists[domain.Namespace(ns)]
		switch field {
		case fieldSource:
			list.Sources = append(list.Sources, value)
		case fieldCategory:
			list.Categories = append(list.Categories, value)
		}
		state.AllowLists[domain.Namespace(ns)] = list
	}
	if err := rows.Err(); err != nil {
		return r.readError(err)
	}
	return nil
}

// Save replaces the kind's rows with state in a single transaction.
func (r *StateRepository) Save(ctx context.Context, state domain.State) error {
	if err := r.save(ctx, state); err != nil {
		return &domain.IOError{Op: "write", Resource: r.resource(), Err: err}
	}
	return nil
}

func (r *StateRepository) save(ctx context.Context, state domain.State) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	kind := string(r.kind)
	for _, table := range []string{"counters", "issued", "descriptions", "allow_lists"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE kind = ?`, kind); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stores (kind, output_file) VALUES (?, ?)
		 ON CONFLICT (kind) DO UPDATE SET output_file = excluded.output_file`,
		kind, state.OutputFile,
	); err != nil {
		return fmt.Errorf("upserting store: %w", err)
	}

	for key, count := range state.Counters {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO counters (kind, namespace, source, category, date, count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			kind, string(key.Namespace), key.Source, key.Category, key.Date, count,
		); err != nil {
			return fmt.Errorf("inserting counter: %w", err)
		}
	}

	for seq, issued := range state.Issued {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO issued (kind, seq, namespace, id) VALUES (?, ?, ?, ?)`,
			kind, seq, string(issued.Namespace), issued.ID,
		); err != nil {
			return fmt.Errorf("inserting issued id: %w", err)
		}
	}

	for id, desc := range state.Descriptions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO descriptions (kind, id, description) VALUES (?, ?, ?)`,
			kind, id, desc,
		); err != nil {
			return fmt.Errorf("inserting description: %w", err)
		}
	}

	for ns, list := range state.AllowLists {
		for field, values := range map[string][]string{fieldSource: list.Sources, fieldCategory: list.Categories} {
			for pos, value := range values {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO allow_lists (kind, namespace, field, position, value) VALUES (?, ?, ?, ?, ?)`,
					kind, string(ns), field, pos, value,
				); err != nil {
					return fmt.Errorf("inserting allow-list value: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
