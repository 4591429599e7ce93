package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaPublisherLogPrefix = "events:kafka_publisher"

// DefaultKafkaTopic is used when no topic is configured.
const DefaultKafkaTopic = "bridge.invocations.recorded"

// KafkaPublisher writes invocation-recorded events to a Kafka topic, keyed by capability
// so events for one capability stay ordered within a partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the comma-separated broker list.
func NewKafkaPublisher(brokers, topic string, writeTimeout time.Duration) (*KafkaPublisher, error) {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%s - no kafka brokers configured", kafkaPublisherLogPrefix)
	}
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}
	slog.Info(fmt.Sprintf("%s - Publishing recorded events to %s on %s", kafkaPublisherLogPrefix, topic, strings.Join(addrs, ",")))
	return &KafkaPublisher{w: w}, nil
}

// Topic returns the topic events are written to.
func (p *KafkaPublisher) Topic() string { return p.w.Topic }

// PublishRecorded writes event as one message.
func (p *KafkaPublisher) PublishRecorded(ctx context.Context, event *InvocationRecordedEvent) error {
	msg, err := recordedMessage(event)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to write %s: %v", kafkaPublisherLogPrefix, event.ID, err))
		return fmt.Errorf("%s - write failed: %w", kafkaPublisherLogPrefix, err)
	}
	return nil
}

// Close flushes pending writes and releases the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

func recordedMessage(event *InvocationRecordedEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%s - failed to encode event: %w", kafkaPublisherLogPrefix, err)
	}
	ts := time.Now()
	if t, err := time.Parse(time.RFC3339Nano, event.Timestamp); err == nil {
		ts = t
	}
	return kafka.Message{
		Key:   []byte(event.Capability),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
			{Key: "status", Value: []byte(event.Status)},
		},
		Time: ts,
	}, nil
}
