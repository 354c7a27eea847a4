package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neomorfeo/ctinamer/internal/domain"
)

// PersistPolicy decides when a NamingService writes its state.
type PersistPolicy string

const (
	// PersistManual writes state only on an explicit Persist call.
	PersistManual PersistPolicy = "manual"
	// PersistSync writes state after every mutating operation.
	PersistSync PersistPolicy = "sync"
	// PersistAsync leaves writing to the event publisher (a queued job).
	PersistAsync PersistPolicy = "async"
)

// ParsePersistPolicy validates a policy name.
func ParsePersistPolicy(s string) (PersistPolicy, error) {
	switch p := PersistPolicy(s); p {
	case PersistManual, PersistSync, PersistAsync:
		return p, nil
	}
	return "", fmt.Errorf("unknown persist policy %q (use manual, sync or async)", s)
}

// Option configures a NamingService.
type Option func(*NamingService)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *NamingService) { s.logger = logger }
}

// WithPersistPolicy sets when state is written. The default is PersistManual.
func WithPersistPolicy(p PersistPolicy) Option {
	return func(s *NamingService) { s.policy = p }
}

// WithClock sets the clock used for allocations without a date.
func WithClock(now func() time.Time) Option {
	return func(s *NamingService) { s.storeOpts = append(s.storeOpts, domain.WithClock(now)) }
}

// NamingService orchestrates a sequence store with its persistence,
// export, event and lifecycle adapters. Calls are serialized by an internal
// mutex so in-process adapters may share one service.
type NamingService struct {
	mu     sync.Mutex
	kind   domain.Kind
	store  *domain.SequenceStore
	status domain.Status

	repo      domain.StateRepository
	exporter  domain.Exporter
	publisher domain.EventPublisher
	validator domain.LifecycleValidator

	policy    PersistPolicy
	logger    *slog.Logger
	storeOpts []domain.StoreOption
}

// NewNamingService creates an uninitialized service for kind. Open must be
// called before any other operation.
func NewNamingService(
	kind domain.Kind,
	repo domain.StateRepository,
	exporter domain.Exporter,
	publisher domain.EventPublisher,
	validator domain.LifecycleValidator,
	opts ...Option,
) *NamingService {
	s := &NamingService{
		kind:      kind,
		status:    domain.StatusUninitialized,
		repo:      repo,
		exporter:  exporter,
		publisher: publisher,
		validator: validator,
		policy:    PersistManual,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = domain.NewSequenceStore(kind, s.storeOpts...)
	return s
}

// Kind returns the store kind served.
func (s *NamingService) Kind() domain.Kind {
	return s.kind
}

// Status returns the lifecycle state.
func (s *NamingService) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Open loads persisted state and makes the service ready. A missing
// resource yields the empty default store. A corrupt resource also yields
// the default store, and the *domain.CorruptionError is returned so callers
// can warn; the service is ready either way. Calling Open again replaces
// the in-memory state with a fresh load.
func (s *NamingService) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(ctx, domain.EventLoad); err != nil {
		return err
	}
	loadErr := s.load(ctx)
	if err := s.transition(ctx, domain.EventLoaded); err != nil {
		return err
	}
	return loadErr
}

func (s *NamingService) load(ctx context.Context) error {
	state, err := s.repo.Load(ctx)
	if err == nil {
		err = s.restore(state)
	}

	var corrupt *domain.CorruptionError
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "state loaded",
			"kind", s.kind,
			"issued", len(state.Issued),
			"counters", len(state.Counters),
		)
		return nil
	case errors.Is(err, domain.ErrStateNotFound):
		s.store.Reset()
		s.logger.InfoContext(ctx, "no persisted state, using defaults", "kind", s.kind)
		return nil
	case errors.As(err, &corrupt):
		s.store.Reset()
		s.logger.WarnContext(ctx, "persisted state is corrupt, using defaults",
			"kind", s.kind,
			"resource", corrupt.Resource,
			"error", corrupt.Err,
		)
		return err
	default:
		s.store.Reset()
		s.logger.WarnContext(ctx, "loading state failed, using defaults", "kind", s.kind, "error", err)
		return fmt.Errorf("loading %s state: %w", s.kind, err)
	}
}

func (s *NamingService) restore(state domain.State) error {
	if err := s.store.Restore(state); err != nil {
		return &domain.CorruptionError{Resource: string(s.kind) + " state", Err: err}
	}
	return nil
}

func (s *NamingService) transition(ctx context.Context, event domain.Event) error {
	next, err := s.validator.Apply(ctx, s.status, event)
	if err != nil {
		return err
	}
	s.status = next
	return nil
}

func (s *NamingService) ready() error {
	if s.status != domain.StatusReady {
		return domain.ErrStoreNotReady
	}
	return nil
}

// Allocate issues the next ID for req. When the configured persist policy
// fails after a successful allocation, the issued ID is still returned
// together with the error.
func (s *NamingService) Allocate(ctx context.Context, req domain.AllocateRequest) (domain.Issued, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return domain.Issued{}, err
	}

	issued, err := s.store.Allocate(req)
	if err != nil {
		return domain.Issued{}, err
	}

	s.logger.InfoContext(ctx, "id issued", "kind", s.kind, "namespace", issued.Namespace, "id", issued.ID)

	err = s.changed(ctx, domain.EventIDIssued, domain.Change{
		Kind:      s.kind,
		Namespace: issued.Namespace,
		ID:        issued.ID,
	})
	return issued, err
}

// Describe returns the description of an issued ID.
func (s *NamingService) Describe(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return "", err
	}
	return s.store.Describe(id)
}

// List returns every issued ID in issuance order.
func (s *NamingService) List(_ context.Context) ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Entries(), nil
}

// Sections returns issued IDs grouped by namespace.
func (s *NamingService) Sections(_ context.Context) ([]domain.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Sections(), nil
}

// Persist writes the current state to the repository. On failure the
// in-memory state is untouched and remains usable.
func (s *NamingService) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	return s.persist(ctx)
}

func (s *NamingService) persist(ctx context.Context) error {
	if err := s.repo.Save(ctx, s.store.Snapshot()); err != nil {
		return fmt.Errorf("persisting %s state: %w", s.kind, err)
	}
	s.logger.DebugContext(ctx, "state persisted", "kind", s.kind)
	return nil
}

// Export writes the readable rendering to target, or to the configured
// output file when target is empty. It returns the target written.
func (s *NamingService) Export(ctx context.Context, target string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return "", err
	}
	if target == "" {
		target = s.store.OutputFile()
	}
	if err := s.exporter.Export(ctx, target, s.store.Sections()); err != nil {
		return target, fmt.Errorf("exporting %s ids: %w", s.kind, err)
	}
	s.logger.InfoContext(ctx, "ids exported", "kind", s.kind, "target", target)
	return target, nil
}

// OutputFile returns the configured readable export target.
func (s *NamingService) OutputFile(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return "", err
	}
	return s.store.OutputFile(), nil
}

// SetOutputFile changes the readable export target.
func (s *NamingService) SetOutputFile(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.SetOutputFile(name); err != nil {
		return err
	}
	return s.changed(ctx, domain.EventSettingsChanged, domain.Change{Kind: s.kind})
}

// AllowList returns the allow-list configured for ns.
func (s *NamingService) AllowList(_ context.Context, ns domain.Namespace) (domain.AllowList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return domain.AllowList{}, err
	}
	return s.store.AllowList(ns), nil
}

// SetAllowList replaces the allow-list of ns.
func (s *NamingService) SetAllowList(ctx context.Context, ns domain.Namespace, list domain.AllowList) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.SetAllowList(ns, list); err != nil {
		return err
	}
	return s.changed(ctx, domain.EventSettingsChanged, domain.Change{Kind: s.kind, Namespace: ns})
}

// changed publishes a mutation and applies the persist policy.
func (s *NamingService) changed(ctx context.Context, event domain.Event, change domain.Change) error {
	var errs []error
	if err := s.publisher.Publish(ctx, event, change); err != nil {
		errs = append(errs, fmt.Errorf("publishing event %q: %w", event, err))
	}
	if s.policy == PersistSync {
		if err := s.persist(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
