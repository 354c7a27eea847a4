package domain

import "context"

// StateRepository defines the persistence contract for a naming store.
// Load returns ErrStateNotFound when nothing was persisted yet and a
// *CorruptionError when the resource exists but cannot be used.
type StateRepository interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Exporter writes the human-readable rendering of issued IDs to target.
type Exporter interface {
	Export(ctx context.Context, target string, sections []Section) error
}

// Change describes a store mutation handed to an EventPublisher.
type Change struct {
	Kind      Kind
	Namespace Namespace
	ID        string
}

// EventPublisher defines the contract for emitting store events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, change Change) error
}

// LifecycleValidator checks lifecycle transitions.
type LifecycleValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}
