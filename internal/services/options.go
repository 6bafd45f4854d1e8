package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"agrobulk/internal/domain"
	"agrobulk/internal/events"
	"agrobulk/internal/metrics"
)

// DefaultCollectionWindow is how long a bulk order collects when no deadline
// is given.
const DefaultCollectionWindow = 7 * 24 * time.Hour

var tracer = otel.Tracer("agrobulk/internal/services")

// Options carries the collaborators every service shares.
type Options struct {
	Log    *zap.Logger
	Events events.Publisher
	Now    func() time.Time
	// CollectionWindow overrides DefaultCollectionWindow.
	CollectionWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Events == nil {
		o.Events = events.Nop{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.CollectionWindow <= 0 {
		o.CollectionWindow = DefaultCollectionWindow
	}
	return o
}

func (o Options) now() domain.Timestamp { return domain.At(o.Now()) }

// publish sends e after the caller's transaction has committed. Delivery
// problems are logged and never fail the operation.
func (o Options) publish(ctx context.Context, e events.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = o.Now().UTC()
	}
	if err := o.Events.Publish(ctx, e); err != nil {
		o.Log.Warn("event publish failed",
			zap.String("event_type", e.Type),
			zap.String("aggregate_id", e.AggregateID),
			zap.Error(err),
		)
	}
}

// begin opens a span for operation and returns a func that closes it and
// records the outcome. Call it as `defer end(&err)`.
func begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		kind := Kind(err)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.kind", kind))
			span.SetStatus(codes.Error, kind)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		metrics.Observe(operation, start, kind)
	}
}

// notFound maps a missing row to ErrNotFound and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
