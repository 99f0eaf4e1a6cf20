package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"thermoguard/internal/config"
	"thermoguard/internal/logger"
	"thermoguard/internal/metrics"
	"thermoguard/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize message")
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertPublisher publishes dispatched notifications as AlertEvents to a topic.
// It is a notification sink: downstream consumers (mobile push gateways,
// audit trails) read the topic.
type AlertPublisher struct {
	cfg    config.ProducerConfig
	topic  string
	writer messageWriter
	closed atomic.Bool

	// Metrics
	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// NewAlertPublisher creates a publisher writing to topic on brokers.
func NewAlertPublisher(brokers []string, topic string, cfg config.ProducerConfig) (*AlertPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}

	if topic == "" {
		return nil, errors.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // Partition by alert key
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  getCompression(cfg.Compression),
		MaxAttempts:  1, // retries are handled in publishWithRetry
		Async:        false,
	}

	return newAlertPublisher(writer, topic, cfg), nil
}

func newAlertPublisher(w messageWriter, topic string, cfg config.ProducerConfig) *AlertPublisher {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	return &AlertPublisher{cfg: cfg, topic: topic, writer: w}
}

// getCompression returns the kafka compression codec
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

func (p *AlertPublisher) Name() string { return "kafka" }

// Schedule publishes the notification. Implements notify.Sink.
func (p *AlertPublisher) Schedule(ctx context.Context, n models.Notification) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	evt := models.NewAlertEvent(n)
	data, err := json.Marshal(evt)
	if err != nil {
		p.messagesFailed.Add(1)
		return fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	key, _ := n.Data["key"].(string)
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "alert_key", Value: []byte(key)},
			{Key: "event_id", Value: []byte(evt.ID)},
		},
		Time: evt.Emitted,
	}

	if err := p.publishWithRetry(ctx, msg); err != nil {
		p.messagesFailed.Add(1)
		return err
	}

	p.messagesSent.Add(1)
	p.bytesWritten.Add(uint64(len(data)))
	return nil
}

// publishWithRetry publishes a single message with exponential backoff retry
func (p *AlertPublisher) publishWithRetry(ctx context.Context, msg kafka.Message) error {
	log := logger.WithComponent("kafka_publisher")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying alert publish")

			metrics.KafkaPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("topic", p.topic).
			Msg("alert publish attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes the underlying writer
func (p *AlertPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// Stats returns publisher statistics
func (p *AlertPublisher) Stats() PublisherStats {
	return PublisherStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// PublisherStats holds publisher metrics
type PublisherStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}
