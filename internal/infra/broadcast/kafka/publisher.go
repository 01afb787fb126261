// Package kafka broadcasts committed theft and red-zone alerts to a Kafka
// topic so county offices and partner systems can subscribe.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"herdbook/pkg/domain"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives alerts when no topic is configured.
const DefaultTopic = "herdbook.alerts"

// Header keys set on every alert message.
const (
	HeaderAlertType = "alert-type"
	HeaderScope     = "alert-scope"
	HeaderAnimalID  = "animal-id"
)

// Config holds producer configuration.
type Config struct {
	Brokers      []string
	Topic        string
	Compression  string // gzip|snappy|lz4|zstd, empty for none
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int
	MaxAttempts  int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements the service AlertPublisher over a kafka.Writer.
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher builds a publisher writing to cfg.Topic.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // one county stays on one partition
		BatchTimeout:           batchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		MaxAttempts:            cfg.MaxAttempts,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compressionCodec(cfg.Compression),
		AllowAutoTopicCreation: true,
	}
	return newPublisher(writer, topic), nil
}

func newPublisher(w messageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string { return p.topic }

// PublishAlerts writes one message per alert, keyed by scope, in a single batch.
func (p *Publisher) PublishAlerts(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, alert := range alerts {
		value, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("encode alert %s: %w", alert.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(alert.Scope),
			Value: value,
			Time:  alert.Timestamp,
			Headers: []kafka.Header{
				{Key: HeaderAlertType, Value: []byte(alert.Type)},
				{Key: HeaderScope, Value: []byte(alert.Scope)},
				{Key: HeaderAnimalID, Value: []byte(alert.AnimalID)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d alerts to %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

// Close flushes pending writes and releases connections.
func (p *Publisher) Close() error { return p.writer.Close() }
