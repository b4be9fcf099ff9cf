// Package kafka publishes conversion events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	EventStudentConverted = "student.converted"
	EventRunCompleted     = "conversion.completed"
)

// Config holds Kafka configuration
type Config struct {
	Brokers         []string
	StudentTopic    string
	RunTopic        string
	WriteTimeout    time.Duration
	AutoCreateTopic bool
}

// ParseBrokers splits a comma-separated broker string
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Writer is the part of *kafka.Writer the producer needs
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes student and run events
type Producer struct {
	studentWriter Writer
	runWriter     Writer
	studentTopic  string
	runTopic      string
	logger        ectologger.Logger
}

func newWriter(cfg Config, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: cfg.AutoCreateTopic,
	}
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	return NewProducerWithWriters(newWriter(cfg, cfg.StudentTopic), newWriter(cfg, cfg.RunTopic), cfg, logger)
}

// NewProducerWithWriters creates a producer over existing writers
func NewProducerWithWriters(studentWriter, runWriter Writer, cfg Config, logger ectologger.Logger) *Producer {
	return &Producer{
		studentWriter: studentWriter,
		runWriter:     runWriter,
		studentTopic:  cfg.StudentTopic,
		runTopic:      cfg.RunTopic,
		logger:        logger,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	for _, w := range []Writer{p.studentWriter, p.runWriter} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishStudentConverted announces one successful conversion pass, keyed by PEN
func (p *Producer) PublishStudentConverted(ctx context.Context, evt models.StudentConvertedEvent) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, p.studentWriter, p.studentTopic, EventStudentConverted, evt.PEN, evt,
		attribute.String("pen", evt.PEN),
		attribute.String("program", evt.Program),
		attribute.Int("pass", evt.Pass),
	)
}

// PublishRunCompleted announces a finished run, keyed by run id
func (p *Producer) PublishRunCompleted(ctx context.Context, evt models.RunCompletedEvent) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, p.runWriter, p.runTopic, EventRunCompleted, evt.RunID, evt,
		attribute.String("run_id", evt.RunID),
		attribute.String("status", evt.Status),
	)
}

func (p *Producer) publish(ctx context.Context, w Writer, topic, eventType, key string, evt any, attrs ...attribute.KeyValue) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.Publish", append(attrs,
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.operation", "publish"),
	)...)
	defer span.End()

	start := time.Now()

	data, err := json.Marshal(evt)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	headers := []kafka.Header{{Key: "type", Value: []byte(eventType)}}
	for k, v := range tracing.TraceHeaders(ctx) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err = w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		tracing.RecordError(span, err)
		metrics.RecordKafkaPublish(topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish %s to Kafka topic %s", eventType, topic)
		return err
	}

	metrics.RecordKafkaPublish(topic, "success", time.Since(start).Seconds())
	p.logger.WithContext(ctx).Debugf("Published %s to Kafka: key=%s trace=%s", eventType, key, tracing.GetTraceID(ctx))
	return nil
}
