package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"thermoguard/internal/logger"
	"thermoguard/internal/metrics"
	"thermoguard/internal/models"
)

// Submitter accepts reading envelopes for evaluation.
type Submitter interface {
	Submit(ctx context.Context, env *models.Envelope) error
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReadingConsumer is the Kafka realtime path: it reads backend change events
// from a topic and submits each row as a reading.
type ReadingConsumer struct {
	reader messageReader
	sink   Submitter
	topic  string
}

// NewReadingConsumer creates a consumer-group reader on topic.
func NewReadingConsumer(brokers []string, topic, groupID string, sink Submitter) (*ReadingConsumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  500 * time.Millisecond,
	})

	return newReadingConsumer(reader, topic, sink), nil
}

func newReadingConsumer(r messageReader, topic string, sink Submitter) *ReadingConsumer {
	return &ReadingConsumer{reader: r, sink: sink, topic: topic}
}

// Start consumes until ctx is cancelled. It returns nil on cancellation.
func (c *ReadingConsumer) Start(ctx context.Context) error {
	log := logger.WithComponent("kafka_consumer").With().Str("topic", c.topic).Logger()
	log.Info().Msg("realtime consumer started")
	defer log.Info().Msg("realtime consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
		}
	}
}

func (c *ReadingConsumer) handle(ctx context.Context, msg kafka.Message) {
	log := logger.WithComponent("kafka_consumer")

	rows, err := models.ParseRows(msg.Value)
	if err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathRealtime), "rejected").Inc()
		log.Warn().Err(err).Int64("offset", msg.Offset).Msg("discarding malformed message")
		return
	}

	now := time.Now()
	for _, row := range rows {
		reading, err := row.ToReading(now)
		if err != nil {
			metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathRealtime), "rejected").Inc()
			log.Warn().Err(err).Int64("row_id", row.ID).Msg("discarding invalid row")
			continue
		}

		if err := c.sink.Submit(ctx, models.NewEnvelope(reading, models.PathRealtime)); err != nil {
			metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathRealtime), "rejected").Inc()
			log.Error().Err(err).Int64("row_id", row.ID).Msg("failed to submit reading")
			continue
		}
		metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathRealtime), "accepted").Inc()
	}
}

// Stop closes the reader. Unblocks a pending FetchMessage.
func (c *ReadingConsumer) Stop() error {
	return c.reader.Close()
}
