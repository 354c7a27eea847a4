package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/spf13/cobra"

	handler "github.com/neomorfeo/ctinamer/internal/adapter/http"
	riveradapter "github.com/neomorfeo/ctinamer/internal/adapter/river"
	"github.com/neomorfeo/ctinamer/internal/app"
	"github.com/neomorfeo/ctinamer/internal/domain"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	Persist string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the naming API over HTTP",
		Long: `Serve the naming API over HTTP. Both stores are loaded once and shared by
all requests. OpenAPI docs are served at /docs.

--persist chooses when changes are written:
  sync    after every change, before the response
  async   through a job queue kept in --database
  manual  only on POST /api/v1/stores/{kind}/persist and at shutdown`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", envOrDefault("CTINAMER_ADDR", ":8080"), "listen address")
	cmd.Flags().StringVar(&opts.Persist, "persist", envOrDefault("CTINAMER_PERSIST", string(app.PersistSync)), "persist policy (sync|async|manual)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	policy, err := app.ParsePersistPolicy(opts.Persist)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --persist", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newSession(cmd, opts.RootOptions)
	defer s.Close()
	logger := s.logger

	// --- Adapters (out) ---
	var (
		publisher domain.EventPublisher = logPublisher{logger: logger}
		client    *riveradapter.Client
		worker    *riveradapter.PersistWorker
	)
	if policy == app.PersistAsync {
		db, err := s.database()
		if err != nil {
			return err
		}
		worker = riveradapter.NewPersistWorker(logger)
		client, err = riveradapter.Setup(ctx, db, worker, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "job queue setup failed", err)
		}
		publisher = riveradapter.NewPublisher(client)
	}

	// --- Application ---
	services := handler.Services{}
	for _, kind := range []domain.Kind{domain.KindReport, domain.KindPlatform} {
		svc, err := s.open(ctx, kind, publisher, policy)
		if err != nil {
			return err
		}
		services[kind] = svc
		if worker != nil {
			worker.Register(kind, svc)
		}
	}

	if client != nil {
		if err := client.Start(ctx); err != nil {
			return WrapExitError(ExitCommandError, "starting job queue", err)
		}
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware("ctinamer", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("ctinamer", Version))
	handler.Register(api, services)

	// --- Server ---
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	fmt.Fprintf(s.out.GetErrWriter(), "ctinamer listening on %s (persist: %s)\n", opts.Addr, policy)
	s.out.VerboseLog("API docs: http://localhost%s/docs", opts.Addr)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if client != nil {
		if err := client.Stop(shutdownCtx); err != nil {
			logger.Error("stopping job queue", "error", err)
		}
	}

	// Whatever the policy, the last state reaches storage before exit.
	var persistErr error
	for kind, svc := range services {
		if err := svc.Persist(shutdownCtx); err != nil {
			persistErr = errors.Join(persistErr, fmt.Errorf("persisting %s store: %w", kind, err))
		}
	}

	if serveErr != nil {
		return WrapExitError(ExitCommandError, "server failed", serveErr)
	}
	if persistErr != nil {
		return WrapExitError(ExitCommandError, "final persist failed", persistErr)
	}
	s.out.VerboseLog("stopped")
	return nil
}
