// Package kafka provides an eventstream publisher backed by Apache Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/papercompute/fable/pkg/eventstream"
)

// Publisher publishes engine events to a Kafka topic. Events for the same
// conversation share a partition key so consumers see them in order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// PublishTurn publishes a turn-persisted event keyed by conversation ID.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	key := ""
	if event.Turn != nil {
		key = event.Turn.ConversationID
	}
	return p.publish(ctx, key, event)
}

// PublishCompaction publishes a memory-compacted event keyed by conversation ID.
func (p *Publisher) PublishCompaction(ctx context.Context, event *eventstream.MemoryCompactedEvent) error {
	if event == nil {
		return eventstream.ErrNilCompactionEvent
	}

	return p.publish(ctx, event.ConversationID, event)
}

func (p *Publisher) publish(ctx context.Context, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
