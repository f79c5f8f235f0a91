package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to a Kafka topic instead of the HTTP endpoint.
// Messages are keyed by entity so one entity's events stay ordered.
type KafkaSink struct {
	mu     sync.Mutex
	writer messageWriter
}

// NewKafkaSink creates a synchronous writer for topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireAll,
			Compression:            kafka.Snappy,
			Async:                  false,
			AllowAutoTopicCreation: true,
		},
	}
}

// Send implements Sink.
func (k *KafkaSink) Send(ctx context.Context, event domain.OutboundEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return &domain.DeliveryError{Kind: domain.DeliveryTransport, Transport: "encode", Err: err}
	}
	msg := kafka.Message{
		Key:   []byte(event.Entity),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_kind", Value: []byte(event.EventKind)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}

	k.mu.Lock()
	writer := k.writer
	k.mu.Unlock()
	if writer == nil {
		return &domain.DeliveryError{Kind: domain.DeliveryTransport, Transport: "closed", Err: errors.New("kafka sink closed")}
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &domain.DeliveryError{Kind: domain.DeliveryTimeout, Err: err}
		}
		return &domain.DeliveryError{Kind: domain.DeliveryTransport, Transport: "kafka", Err: err}
	}
	return nil
}

// Close releases the writer.
func (k *KafkaSink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer == nil {
		return nil
	}
	err := k.writer.Close()
	k.writer = nil
	return err
}
