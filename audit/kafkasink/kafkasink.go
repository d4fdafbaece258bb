// Package kafkasink publishes audit events to a Kafka topic as JSON.
//
// Messages are keyed by rotation family (falling back to subject) so every
// event of one token chain lands on the same partition in order.
package kafkasink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/MrEthical07/tokenAuth/internal/audit"
)

// Config describes the target topic.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink is an audit sink backed by a kafka-go Writer. It is driven by the
// audit dispatcher's single worker, so writes are synchronous.
type Sink struct {
	w       messageWriter
	topic   string
	timeout time.Duration
	log     *zap.Logger
}

// New builds a Sink writing to cfg.Topic.
func New(cfg Config) *Sink {
	return newSink(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}, cfg)
}

func newSink(w messageWriter, cfg Config) *Sink {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sink{
		w:       w,
		topic:   cfg.Topic,
		timeout: timeout,
		log:     zap.NewNop(),
	}
}

// WithLogger returns a copy of s that reports write failures to l.
func (s *Sink) WithLogger(l *zap.Logger) *Sink {
	if l == nil {
		return s
	}
	cp := *s
	cp.log = l.With(zap.String("component", "audit.kafka"), zap.String("topic", s.topic))
	return &cp
}

// Emit implements audit.Sink. Failures are logged and the event is lost.
func (s *Sink) Emit(ctx context.Context, event audit.Event) {
	msg, err := message(event)
	if err != nil {
		s.log.Error("audit event marshal failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		s.log.Error("audit event publish failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

// Close flushes and closes the writer.
func (s *Sink) Close() error { return s.w.Close() }

func message(event audit.Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	key := event.Family
	if key == "" {
		key = event.Subject
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}, nil
}
