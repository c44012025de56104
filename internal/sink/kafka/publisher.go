// Package kafka publishes field log batches to a Kafka topic. A Publisher's
// Publish method has the field log callback signature and is registered under
// CallbackName.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/domain"
)

// CallbackName is the name the publisher is registered under.
const CallbackName = "kafka.publish"

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// NewClient connects a producer to brokers with topic as its default topic.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// Publisher turns the logs of one entity into one Kafka record.
type Publisher struct {
	producer Producer
	topic    string
	timeout  time.Duration
	log      *zap.Logger
}

type Option func(*Publisher)

func WithLogger(log *zap.Logger) Option {
	return func(p *Publisher) {
		if log != nil {
			p.log = log
		}
	}
}

// WithTimeout bounds each produce call.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Publisher) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

func NewPublisher(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		timeout:  10 * time.Second,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Message is the record value.
type Message struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Version    int64     `json:"version"`
	Changes    []Change  `json:"changes"`
	SentAt     time.Time `json:"sent_at"`
}

// Change is one field log inside a Message.
type Change struct {
	LogID    int64           `json:"log_id"`
	Field    string          `json:"field"`
	OldValue json.RawMessage `json:"old_value"`
	NewValue json.RawMessage `json:"new_value"`
	Related  bool            `json:"related"`
	Created  bool            `json:"created"`
}

// Publish produces one record keyed by entity id, so all changes of an
// entity land on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, entity domain.Entity, logs map[string]domain.FieldLog) error {
	record, err := p.Record(entity, logs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	p.log.Debug("published field logs",
		zap.String("topic", p.topic),
		zap.String("entity_type", entity.EntityType),
		zap.Stringer("entity_id", entity.ID),
		zap.Int("changes", len(logs)),
	)
	return nil
}

// Record builds the record for entity without producing it. Changes are
// ordered by log id.
func (p *Publisher) Record(entity domain.Entity, logs map[string]domain.FieldLog) (*kgo.Record, error) {
	msg := Message{
		EntityType: entity.EntityType,
		EntityID:   entity.ID.String(),
		Version:    entity.Version,
		Changes:    make([]Change, 0, len(logs)),
		SentAt:     time.Now().UTC(),
	}
	for _, entry := range logs {
		msg.Changes = append(msg.Changes, Change{
			LogID:    entry.ID,
			Field:    entry.Field,
			OldValue: entry.OldValue,
			NewValue: entry.NewValue,
			Related:  entry.Related,
			Created:  entry.Created,
		})
	}
	sort.Slice(msg.Changes, func(i, j int) bool { return msg.Changes[i].LogID < msg.Changes[j].LogID })

	value, err := gojson.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode field log message: %w", err)
	}
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.EntityID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "entity_type", Value: []byte(entity.EntityType)},
		},
	}, nil
}
