package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/ctinamer/internal/adapter/file"
	"github.com/neomorfeo/ctinamer/internal/adapter/fsm"
	"github.com/neomorfeo/ctinamer/internal/adapter/otel"
	"github.com/neomorfeo/ctinamer/internal/adapter/sqlite"
	"github.com/neomorfeo/ctinamer/internal/app"
	"github.com/neomorfeo/ctinamer/internal/domain"
)

// session wires the adapters selected by the global flags for one command
// run. Close releases the database when one was opened.
type session struct {
	opts   *RootOptions
	out    *OutputFormatter
	logger *slog.Logger
	db     *sql.DB
}

func newSession(cmd *cobra.Command, opts *RootOptions) *session {
	return &session{
		opts:   opts,
		out:    opts.formatter(cmd),
		logger: opts.logger(cmd),
	}
}

// database opens the shared, instrumented SQLite database on first use.
func (s *session) database() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := otel.OpenDB(s.opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening database "+s.opts.Database, err)
	}
	s.db = db
	return db, nil
}

func (s *session) location(kind domain.Kind) string {
	if kind == domain.KindReport {
		return s.opts.ReportConfig
	}
	return s.opts.PlatformConfig
}

func (s *session) repository(kind domain.Kind) (domain.StateRepository, error) {
	var repo domain.StateRepository
	switch s.opts.Backend {
	case BackendSQLite:
		db, err := s.database()
		if err != nil {
			return nil, err
		}
		r, err := sqlite.NewFromDB(db, kind)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "preparing database", err)
		}
		repo = r
	default:
		r, err := file.New(s.location(kind), kind)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid config location", err)
		}
		repo = r
	}
	return otel.NewTracingRepository(repo, kind), nil
}

// open builds and loads the service for kind. A corrupt store is reported
// as a warning and replaced by defaults; other load failures abort so an
// unreadable store is never overwritten.
func (s *session) open(ctx context.Context, kind domain.Kind, publisher domain.EventPublisher, policy app.PersistPolicy) (*app.NamingService, error) {
	repo, err := s.repository(kind)
	if err != nil {
		return nil, err
	}

	svc := app.NewNamingService(kind,
		repo,
		otel.NewTracingExporter(file.NewExporter()),
		otel.NewTracingPublisher(publisher),
		fsm.New(fsm.WithLogger(s.logger)),
		app.WithLogger(s.logger),
		app.WithPersistPolicy(policy),
	)

	err = svc.Open(ctx)
	var corrupt *domain.CorruptionError
	switch {
	case err == nil:
	case errors.As(err, &corrupt):
		s.out.Warn("%v; starting %s store from defaults", corrupt, kind)
	default:
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("loading %s store", kind), err)
	}

	s.out.VerboseLog("%s store ready (backend %s)", kind, s.opts.Backend)
	return svc, nil
}

func (s *session) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// logPublisher records store events in the structured log. It is used
// whenever no job queue is wired.
type logPublisher struct {
	logger *slog.Logger
}

func (p logPublisher) Publish(ctx context.Context, event domain.Event, change domain.Change) error {
	p.logger.DebugContext(ctx, "store changed",
		"event", event,
		"kind", change.Kind,
		"namespace", change.Namespace,
		"id", change.ID,
	)
	return nil
}
