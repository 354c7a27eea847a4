package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/ctinamer/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// PersistJobArgs asks a worker to write the state of one store kind.
// River serializes it as JSON into its job queue table. Event and ID
// record which mutation caused the job.
type PersistJobArgs struct {
	Store string `json:"kind"`
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (PersistJobArgs) Kind() string { return "state.persist" }

// InsertOpts routes the job to QueuePersist and retries a failed write a
// few times before the job is discarded.
func (PersistJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueuePersist, MaxAttempts: 5}
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing persist jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a persist job for the changed store.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, change domain.Change) error {
	_, err := p.client.Insert(ctx, PersistJobArgs{
		Store: string(change.Kind),
		Event: string(event),
		ID:    change.ID,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing persist job: %w", err)
	}
	return nil
}
