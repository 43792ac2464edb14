package events

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MessageWriter is the part of kafka.Writer used by the publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards bus events to a Kafka topic as protobuf Struct messages
type KafkaPublisher struct {
	writer MessageWriter
	log    *logrus.Logger
}

// NewKafkaTransport builds a writer transport with SASL/PLAIN and TLS when credentials are provided
func NewKafkaTransport(username, password, caCert string, log *logrus.Logger) *kafka.Transport {
	transport := &kafka.Transport{DialTimeout: 10 * time.Second}
	if mechanism := saslMechanism(username, password); mechanism != nil {
		transport.SASL = mechanism
		log.WithField("username", username).Info("🔐 Kafka: SASL/PLAIN enabled")
	}
	transport.TLS = tlsConfig(transport.SASL != nil, caCert, log)
	return transport
}

// NewKafkaDialer builds the reader-side equivalent of NewKafkaTransport
func NewKafkaDialer(username, password, caCert string, log *logrus.Logger) *kafka.Dialer {
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	if mechanism := saslMechanism(username, password); mechanism != nil {
		dialer.SASLMechanism = mechanism
	}
	dialer.TLS = tlsConfig(dialer.SASLMechanism != nil, caCert, log)
	return dialer
}

func saslMechanism(username, password string) sasl.Mechanism {
	if username == "" || password == "" {
		return nil
	}
	return plain.Mechanism{Username: username, Password: password}
}

// tlsConfig returns nil when TLS is off. SASL always goes over TLS; a CA certificate also turns TLS on.
func tlsConfig(withSASL bool, caCert string, log *logrus.Logger) *tls.Config {
	if !withSASL && caCert == "" {
		return nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(caCert)) {
			cfg.RootCAs = pool
		} else {
			log.Warn("⚠️ Kafka: could not parse CA certificate, using system roots")
		}
	}
	return cfg
}

// ParseKafkaBrokers splits a comma separated broker list
func ParseKafkaBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(strings.ReplaceAll(brokers, " ", ""), ",") {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

// NewKafkaWriter creates an async writer for the events topic
func NewKafkaWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Transport:              transport,
		Async:                  true,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaPublisher wraps a writer
func NewKafkaPublisher(writer MessageWriter, log *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log}
}

// Attach subscribes the publisher to the given event types on the bus
func (p *KafkaPublisher) Attach(bus Bus, types ...Type) {
	for _, t := range types {
		bus.Subscribe(t, p.Handle)
	}
}

// Handle encodes one event and writes it. Write failures are logged, not returned:
// forwarding must never fail the domain operation that published the event.
func (p *KafkaPublisher) Handle(ctx context.Context, event Event) error {
	value, err := Encode(event)
	if err != nil {
		p.log.WithError(err).WithField("event_type", event.Type).Warn("⚠️ could not encode event for Kafka")
		return nil
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: value,
		Headers: []kafka.Header{
			{Key: "schema_version", Value: []byte(event.Version)},
		},
	}); err != nil {
		p.log.WithError(err).WithField("event_type", event.Type).Warn("⚠️ Kafka write failed")
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Encode marshals an event into a protobuf Struct
func Encode(event Event) ([]byte, error) {
	// payload structs are flattened through JSON so structpb sees plain maps
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	msg, err := structpb.NewStruct(map[string]any{
		"version":     event.Version,
		"type":        string(event.Type),
		"occurred_at": event.OccurredAt.Format(time.RFC3339Nano),
		"payload":     payload,
	})
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return proto.Marshal(msg)
}

// Decode is the inverse of Encode; the payload comes back as generic JSON values
func Decode(data []byte) (Event, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	fields := msg.AsMap()
	event := Event{Payload: fields["payload"]}
	event.Version, _ = fields["version"].(string)
	if t, ok := fields["type"].(string); ok {
		event.Type = Type(t)
	}
	if ts, ok := fields["occurred_at"].(string); ok {
		event.OccurredAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return event, nil
}
