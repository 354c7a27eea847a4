package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/ctinamer/internal/domain"
)

var _ domain.EventPublisher = (*TracingPublisher)(nil)

// TracingPublisher traces store events and counts issued IDs per namespace
// before handing events to the next publisher.
type TracingPublisher struct {
	next   domain.EventPublisher
	tracer trace.Tracer
	issued metric.Int64Counter
}

// NewTracingPublisher wraps next. Instruments come from the global meter
// provider, so Setup must run first for the counter to be exported.
func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	meter := otel.Meter(tracerName)
	issued, err := meter.Int64Counter("ctinamer.ids.issued",
		metric.WithDescription("Identifiers issued"),
		metric.WithUnit("{id}"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(tracerName),
		issued: issued,
	}
}

func (p *TracingPublisher) Publish(ctx context.Context, event domain.Event, change domain.Change) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish",
		trace.WithAttributes(
			attribute.String("event.type", string(event)),
			attribute.String("store.kind", string(change.Kind)),
		),
	)
	defer span.End()

	if change.ID != "" {
		span.SetAttributes(
			attribute.String("id.namespace", string(change.Namespace)),
			attribute.String("id.value", change.ID),
		)
	}
	if event == domain.EventIDIssued && p.issued != nil {
		p.issued.Add(ctx, 1, metric.WithAttributes(attribute.String("id.namespace", string(change.Namespace))))
	}

	err := p.next.Publish(ctx, event, change)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
