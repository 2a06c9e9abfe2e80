package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOption applies a configuration option to the KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithTopic overrides the destination topic.
func WithTopic(topic string) KafkaOption {
	return func(p *KafkaPublisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithWriter replaces the kafka writer, e.g. with an in-memory recorder.
func WithWriter(w messageWriter) KafkaOption {
	return func(p *KafkaPublisher) {
		if w != nil {
			p.writer = w
		}
	}
}

// KafkaPublisher writes notifications as JSON messages keyed by sheet, so
// every run for one record table lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to brokers.
func NewKafkaPublisher(brokers []string, opts ...KafkaOption) (*KafkaPublisher, error) {
	p := &KafkaPublisher{topic: TopicPointsReconciled}
	for _, opt := range opts {
		opt(p)
	}
	if p.writer == nil {
		if len(brokers) == 0 {
			return nil, ErrNoBrokers
		}
		p.writer = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
	}
	return p, nil
}

// Publish sends ev.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Reconciled) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.topic, err)
	}
	at := ev.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.Sheet),
		Value: payload,
		Time:  at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
