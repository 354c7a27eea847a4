package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/ctinamer/internal/domain"
)

const tracerName = "github.com/neomorfeo/ctinamer/internal/adapter/otel"

// TracingRepository wraps a domain.StateRepository with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingRepository struct {
	next   domain.StateRepository
	kind   domain.Kind
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.StateRepository.
var _ domain.StateRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the repository
// of the given kind.
func NewTracingRepository(next domain.StateRepository, kind domain.Kind) *TracingRepository {
	return &TracingRepository{
		next:   next,
		kind:   kind,
		tracer: otel.Tracer(tracerName),
	}
}

// Load traces a state load. A missing state is an expected outcome and is
// recorded as state.found=false rather than as a span error.
func (r *TracingRepository) Load(ctx context.Context) (domain.State, error) {
	ctx, span := r.tracer.Start(ctx, "StateRepository.Load",
		trace.WithAttributes(attribute.String("store.kind", string(r.kind))),
	)
	defer span.End()

	state, err := r.next.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrStateNotFound):
		span.SetAttributes(attribute.Bool("state.found", false))
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetAttributes(
			attribute.Bool("state.found", true),
			attribute.Int("state.issued", len(state.Issued)),
		)
	}
	return state, err
}

func (r *TracingRepository) Save(ctx context.Context, state domain.State) error {
	ctx, span := r.tracer.Start(ctx, "StateRepository.Save",
		trace.WithAttributes(
			attribute.String("store.kind", string(r.kind)),
			attribute.Int("state.issued", len(state.Issued)),
			attribute.Int("state.counters", len(state.Counters)),
		),
	)
	defer span.End()

	err := r.next.Save(ctx, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// TracingExporter wraps a domain.Exporter with OpenTelemetry tracing.
type TracingExporter struct {
	next   domain.Exporter
	tracer trace.Tracer
}

// Compile-time check: TracingExporter implements domain.Exporter.
var _ domain.Exporter = (*TracingExporter)(nil)

// NewTracingExporter creates a tracing decorator around the given exporter.
func NewTracingExporter(next domain.Exporter) *TracingExporter {
	return &TracingExporter{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (e *TracingExporter) Export(ctx context.Context, target string, sections []domain.Section) error {
	entries := 0
	for _, s := range sections {
		entries += len(s.Entries)
	}

	ctx, span := e.tracer.Start(ctx, "Exporter.Export",
		trace.WithAttributes(
			attribute.String("export.target", target),
			attribute.Int("export.sections", len(sections)),
			attribute.Int("export.entries", entries),
		),
	)
	defer span.End()

	err := e.next.Export(ctx, target, sections)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
