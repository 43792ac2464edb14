package events

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// MessageReader is the part of kafka.Reader used by the consumer
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer reads the events topic and hands every decoded event to a handler.
// Each process uses its own consumer group so every instance sees every event.
type KafkaConsumer struct {
	reader    MessageReader
	handler   Handler
	log       *logrus.Logger
	processed atomic.Int64
}

// InstanceGroupID returns a consumer group unique to this process
func InstanceGroupID(prefix string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "instance"
	}
	return prefix + "-" + host + "-" + uuid.New().String()[:8]
}

// NewKafkaReader creates a reader that starts at the newest offset
func NewKafkaReader(brokers []string, topic, groupID string, dialer *kafka.Dialer) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		Dialer:      dialer,
	})
}

// NewKafkaConsumer wraps a reader
func NewKafkaConsumer(reader MessageReader, handler Handler, log *logrus.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, handler: handler, log: log}
}

// Run consumes until ctx is cancelled. Undecodable messages are skipped.
func (kc *KafkaConsumer) Run(ctx context.Context) {
	kc.log.Info("📡 Kafka event consumer started")
	for {
		msg, err := kc.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				kc.log.Info("🛑 Kafka event consumer stopped")
				return
			}
			kc.log.WithError(err).Warn("⚠️ Kafka read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := Decode(msg.Value)
		if err != nil {
			kc.log.WithError(err).WithField("offset", msg.Offset).Debug("skipping undecodable message")
			continue
		}
		if err := kc.handler(ctx, event); err != nil {
			kc.log.WithError(err).WithField("event_type", event.Type).Warn("⚠️ event handler failed")
		}
		kc.processed.Add(1)
	}
}

// Processed returns how many events were handed to the handler
func (kc *KafkaConsumer) Processed() int64 {
	return kc.processed.Load()
}

// Close closes the reader
func (kc *KafkaConsumer) Close() error {
	return kc.reader.Close()
}
