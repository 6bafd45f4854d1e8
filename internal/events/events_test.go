package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_KeysByAggregateAndCarriesTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "finalize")
	defer span.End()

	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)
	e := Event{
		Type:        BulkOrderFinalized,
		AggregateID: "b-1",
		ActorID:     "u-wanjiku",
		OccurredAt:  time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Data:        map[string]int{"quantity": 35},
	}
	require.NoError(t, p.Publish(ctx, e))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "b-1", string(msg.Key))
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, BulkOrderFinalized, headers["event_type"])
	assert.Contains(t, headers["traceparent"], span.SpanContext().TraceID().String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "bulk_order.finalized", got["type"])
	assert.Equal(t, "u-wanjiku", got["actor_id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_ReturnsWriteErrors(t *testing.T) {
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("broker down")})
	err := p.Publish(context.Background(), Event{Type: OrderCreated, AggregateID: "o-1"})
	assert.ErrorContains(t, err, "broker down")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), Event{Type: OrderCreated}))
	require.NoError(t, r.Publish(context.Background(), Event{Type: OrderStatusChanged}))
	assert.Equal(t, []string{OrderCreated, OrderStatusChanged}, r.Types())
	assert.Len(t, r.Events(), 2)
}
