package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"thermoguard/internal/models"
)

// MQTTPublisher is the subset of mqtt.Client the sink needs.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes AlertEvents as JSON to a topic. The client connection is
// owned by the caller.
type MQTTSink struct {
	client MQTTPublisher
	topic  string
	qos    byte
}

func NewMQTTSink(client MQTTPublisher, topic string, qos byte) (*MQTTSink, error) {
	if topic == "" {
		return nil, errors.New("mqtt alerts topic cannot be empty")
	}
	return &MQTTSink{client: client, topic: topic, qos: qos}, nil
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Schedule(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(models.NewAlertEvent(n))
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}

	token := s.client.Publish(s.topic, s.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish to %s: %w", s.topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MQTTSink) Close() error { return nil }
