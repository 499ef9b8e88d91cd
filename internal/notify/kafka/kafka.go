// Package kafka publishes assignment events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/dispatch/internal/assignment"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one JSON message per settled assignment, keyed by alert id.
type Publisher struct {
	w messageWriter
}

var _ assignment.Notifier = (*Publisher)(nil)

// NewWriter builds a synchronous writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// New creates a Publisher for topic on brokers.
func New(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	return &Publisher{w: NewWriter(brokers, topic)}, nil
}

// Notify publishes e.
func (p *Publisher) Notify(ctx context.Context, e assignment.Event) error {
	if err := publishJSON(ctx, p.w, e.AlertID, e); err != nil {
		return fmt.Errorf("kafka: publish event %s: %w", e.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func publishJSON(ctx context.Context, w messageWriter, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now().UTC(),
	})
}
