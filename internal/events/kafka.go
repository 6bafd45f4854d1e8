package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	BatchTimeout = 10 * time.Millisecond
	BatchSize    = 100
)

// Writer is the part of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by aggregate id so every event
// of one order lands on the same partition.
type KafkaPublisher struct {
	w Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: BatchTimeout,
		BatchSize:    BatchSize,
		RequiredAcks: kafka.RequireOne,
	}}
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher { return &KafkaPublisher{w: w} }

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}

	// carry the trace context so consumers can continue the span
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := []kafka.Header{{Key: "event_type", Value: []byte(e.Type)}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return p.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(e.AggregateID),
		Value:   payload,
		Headers: headers,
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
