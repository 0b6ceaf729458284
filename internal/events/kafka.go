package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	contracts "hangar/contracts/events"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/requestcontext"
)

var publishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hangar_events_publish_total",
		Help: "Lifecycle events published to the broker, by type and outcome.",
	},
	[]string{"type", "outcome"},
)

// Kafka publishes events to a Kafka-compatible broker. Records are keyed by
// domain so per-domain consumers see lifecycle events in order; batch-level
// events are keyed by batch ID instead.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaOption configures the publisher.
type KafkaOption func(*Kafka)

// WithLogger sets a logger for connection lifecycle reporting.
func WithLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// NewKafka connects to the broker and ensures the topic exists.
//
// Errors: CodeInvalidInput when brokers or topic are missing;
// CodeUnavailable when the broker cannot be reached or the topic cannot be
// created.
func NewKafka(ctx context.Context, brokers []string, topic string, opts ...KafkaOption) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one broker is required")
	}
	if topic == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "connect event broker")
	}
	k := &Kafka{client: client, topic: topic, logger: slog.Default()}
	for _, opt := range opts {
		opt(k)
	}
	if err := k.ensureTopic(ctx); err != nil {
		client.Close()
		return nil, err
	}
	k.logger.InfoContext(ctx, "event publisher connected", "topic", topic, "brokers", len(brokers))
	return k, nil
}

func (k *Kafka) ensureTopic(ctx context.Context) error {
	admin := kadm.NewClient(k.client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, k.topic)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ensure event topic")
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return dErrors.Wrap(resp.Err, dErrors.CodeUnavailable, "ensure event topic")
	}
	return nil
}

// Publish sends one event and waits for broker acknowledgement.
func (k *Kafka) Publish(ctx context.Context, event contracts.Event) error {
	if event.At.IsZero() {
		event.At = requestcontext.Now(ctx)
	}
	value, err := json.Marshal(event)
	if err != nil {
		publishTotal.WithLabelValues(event.Type, "encode_error").Inc()
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode event")
	}
	key := event.Domain
	if key == "" {
		key = event.BatchID
	}
	record := &kgo.Record{Topic: k.topic, Key: []byte(key), Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		publishTotal.WithLabelValues(event.Type, "error").Inc()
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "publish event")
	}
	publishTotal.WithLabelValues(event.Type, "ok").Inc()
	return nil
}

// Close flushes buffered records and releases the connection.
func (k *Kafka) Close() {
	k.client.Close()
}
