package river

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/ctinamer/internal/domain"
)

// Persister writes the current state of a store.
type Persister interface {
	Persist(ctx context.Context) error
}

// PersistWorker processes persist jobs by calling the Persister registered
// for the job's kind. Persisters are registered after construction because
// the services they belong to publish through the same River client.
type PersistWorker struct {
	river.WorkerDefaults[PersistJobArgs]

	logger     *slog.Logger
	mu         sync.RWMutex
	persisters map[domain.Kind]Persister
}

// NewPersistWorker creates a worker with no registered persisters. A nil
// logger means slog.Default().
func NewPersistWorker(logger *slog.Logger) *PersistWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistWorker{logger: logger, persisters: make(map[domain.Kind]Persister)}
}

// Register routes jobs of kind to p.
func (w *PersistWorker) Register(kind domain.Kind, p Persister) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.persisters[kind] = p
}

// Work processes a single persist job. Jobs for an unregistered kind are
// cancelled since no retry can succeed.
func (w *PersistWorker) Work(ctx context.Context, job *river.Job[PersistJobArgs]) error {
	w.mu.RLock()
	p, ok := w.persisters[domain.Kind(job.Args.Store)]
	w.mu.RUnlock()

	if !ok {
		return river.JobCancel(fmt.Errorf("no persister registered for kind %q", job.Args.Store))
	}

	if err := p.Persist(ctx); err != nil {
		w.logger.WarnContext(ctx, "persist job failed",
			"kind", job.Args.Store,
			"event", job.Args.Event,
			"job_id", job.ID,
			"attempt", job.Attempt,
			"error", err,
		)
		return err
	}

	w.logger.InfoContext(ctx, "state persisted",
		"kind", job.Args.Store,
		"event", job.Args.Event,
		"id", job.Args.ID,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
