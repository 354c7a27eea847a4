package river

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// QueuePersist holds persist jobs. It runs one worker so writes of the same
// store never overlap.
const QueuePersist = "persist"

// persistTimeout bounds a single store write.
const persistTimeout = 30 * time.Second

// Setup migrates River's tables in db and returns a client with worker
// registered on QueuePersist. The caller starts and stops the client.
func Setup(ctx context.Context, db *sql.DB, worker *PersistWorker, logger *slog.Logger) (*Client, error) {
	driver := riversqlite.New(db)

	// River keeps its own schema next to the store tables; goose never
	// touches it.
	migrator, err := rivermigrate.New(driver, &rivermigrate.Config{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, worker); err != nil {
		return nil, fmt.Errorf("registering persist worker: %w", err)
	}

	client, err := river.NewClient(driver, &river.Config{
		Logger:     logger,
		JobTimeout: persistTimeout,
		Queues: map[string]river.QueueConfig{
			QueuePersist: {MaxWorkers: 1},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}
	return client, nil
}
