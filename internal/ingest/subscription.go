package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"thermoguard/internal/logger"
	"thermoguard/internal/metrics"
	"thermoguard/internal/models"
)

const subscribeTimeout = 10 * time.Second

var errTokenTimeout = errors.New("timed out waiting for broker acknowledgement")

// MQTTSubscriber is the subset of mqtt.Client the subscription needs.
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Subscription is the realtime path over MQTT. Each message carries a backend
// change event, a row, or an array of rows.
type Subscription struct {
	client MQTTSubscriber
	topic  string
	qos    byte
	sink   Submitter

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSubscription(client MQTTSubscriber, topic string, qos byte, sink Submitter) (*Subscription, error) {
	if topic == "" {
		return nil, errors.New("mqtt readings topic cannot be empty")
	}
	return &Subscription{client: client, topic: topic, qos: qos, sink: sink}, nil
}

// Start subscribes to the readings topic. Messages are submitted with a
// context derived from ctx.
func (s *Subscription) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	s.ctx, s.cancel = subCtx, cancel
	s.mu.Unlock()

	// The lock is not held while waiting: paho may deliver messages, which
	// take the lock in onMessage, before the SUBACK completes the token.
	token := s.client.Subscribe(s.topic, s.qos, s.onMessage)
	err := waitToken(token)
	if err != nil {
		s.mu.Lock()
		s.cancel, s.ctx = nil, nil
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}

	log := logger.WithComponent("mqtt_subscription")
	log.Info().Str("topic", s.topic).Msg("realtime subscription started")
	return nil
}

// Stop unsubscribes from the topic. Messages arriving after Stop are dropped.
func (s *Subscription) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if err := waitToken(s.client.Unsubscribe(s.topic)); err != nil {
		return fmt.Errorf("unsubscribe from %s: %w", s.topic, err)
	}

	log := logger.WithComponent("mqtt_subscription")
	log.Info().Str("topic", s.topic).Msg("realtime subscription stopped")
	return nil
}

func waitToken(token mqtt.Token) error {
	if !token.WaitTimeout(subscribeTimeout) {
		return errTokenTimeout
	}
	return token.Error()
}

func (s *Subscription) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.handle(ctx, msg.Payload())
}

func (s *Subscription) handle(ctx context.Context, payload []byte) {
	log := logger.WithComponent("mqtt_subscription")

	rows, err := models.ParseRows(payload)
	if err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathRealtime), "rejected").Inc()
		log.Warn().Err(err).Str("topic", s.topic).Msg("discarding malformed message")
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

		if err := s.sink.Submit(ctx, models.NewEnvelope(reading, models.PathRealtime)); err != nil {
			metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathRealtime), "rejected").Inc()
			log.Error().Err(err).Int64("row_id", row.ID).Msg("failed to submit reading")
			continue
		}
		metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathRealtime), "accepted").Inc()
	}
}
