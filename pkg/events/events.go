// Package events publishes contract lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Event types.
const (
	ContractAnalyzed = "contract.analyzed"
	ContractFailed   = "contract.failed"
	ContractDeleted  = "contract.deleted"
)

// Event is the envelope written to the topic. Payload is marshalled as JSON.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Tenant     string    `json:"tenant"`
	ContractID string    `json:"contract_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// New returns an event with a fresh id and timestamp.
func New(eventType, tenant, contractID string, payload any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Tenant:     tenant,
		ContractID: contractID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher emits events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic, creating the writer on first use.
type KafkaPublisher struct {
	mu        sync.Mutex
	brokers   []string
	topic     string
	writer    messageWriter
	newWriter func(brokers []string, topic string) messageWriter
}

// NewPublisher returns a Kafka publisher, or a no-op publisher when no brokers are configured.
func NewPublisher(cfg Config) Publisher {
	if len(cfg.Brokers) == 0 {
		return Noop{}
	}
	return NewKafkaPublisher(cfg)
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	return &KafkaPublisher{
		brokers:   cfg.Brokers,
		topic:     cfg.Topic,
		newWriter: newKafkaWriter,
	}
}

func newKafkaWriter(brokers []string, topic string) messageWriter {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
}

// Publish writes events keyed by contract id so a contract's events stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(events))
	for _, e := range events {
		m, err := toMessage(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}

	if err := p.getOrCreateWriter().WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the underlying writer if one was created.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	if err != nil {
		return fmt.Errorf("closing writer for topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) getOrCreateWriter() messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		p.writer = p.newWriter(p.brokers, p.topic)
	}
	return p.writer
}

func toMessage(e Event) (kafkago.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshal event %s: %w", e.Type, err)
	}
	return kafkago.Message{
		Key:   []byte(e.ContractID),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event-type", Value: []byte(e.Type)},
			{Key: "event-id", Value: []byte(e.ID)},
			{Key: "tenant", Value: []byte(e.Tenant)},
		},
	}, nil
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, ...Event) error { return nil }
func (Noop) Close() error                            { return nil }
