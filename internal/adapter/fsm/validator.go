package fsm

import (
	"context"
	"errors"
	"log/slog"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/ctinamer/internal/domain"
)

var _ domain.LifecycleValidator = (*Validator)(nil)

// events folds domain.Transitions into looplab/fsm descriptors. Transitions
// sharing an event and destination become one descriptor with several
// sources.
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type edge struct {
		event domain.Event
		dst   domain.Status
	}
	sources := make(map[edge][]string)
	var order []edge

	for _, t := range domain.Transitions {
		e := edge{event: t.Event, dst: t.Dst}
		if _, seen := sources[e]; !seen {
			order = append(order, e)
		}
		sources[e] = append(sources[e], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, e := range order {
		out = append(out, loopfsm.EventDesc{Name: string(e.event), Src: sources[e], Dst: string(e.dst)})
	}
	return out
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger logs every accepted transition at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// Validator checks store lifecycle transitions with looplab/fsm. The store
// owns its status, so each Apply runs a throwaway machine seeded with it.
type Validator struct {
	logger *slog.Logger
}

// New creates a lifecycle validator.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Apply returns the status event leads to from current, or a
// *domain.TransitionError.
func (v *Validator) Apply(ctx context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	machine := loopfsm.NewFSM(string(current), events, v.callbacks())

	if err := machine.Event(ctx, string(event)); err != nil {
		var (
			invalid      loopfsm.InvalidEventError
			unknown      loopfsm.UnknownEventError
			noTransition loopfsm.NoTransitionError
		)
		if errors.As(err, &invalid) || errors.As(err, &unknown) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{Event: event, Current: current}
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}

func (v *Validator) callbacks() loopfsm.Callbacks {
	if v.logger == nil {
		return nil
	}
	return loopfsm.Callbacks{
		"enter_state": func(ctx context.Context, e *loopfsm.Event) {
			v.logger.DebugContext(ctx, "store lifecycle", "event", e.Event, "from", e.Src, "to", e.Dst)
		},
	}
}
