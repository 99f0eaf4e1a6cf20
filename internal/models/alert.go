package models

import (
	"time"

	"github.com/google/uuid"
)

// Metric names a measured quantity that can raise alerts.
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricSmoke       Metric = "smoke"
)

// Direction names the side of a threshold a condition is on.
type Direction string

const (
	DirectionLow     Direction = "low"
	DirectionHigh    Direction = "high"
	DirectionPresent Direction = "present"
)

// Condition is an active (metric, direction) alert state derived from a reading.
type Condition struct {
	Metric    Metric
	Direction Direction

	// Value is the reading value that activated the condition
	Value float64

	// Threshold is the configured bound that was crossed
	Threshold float64
}

// Key returns the cooldown key for the condition, e.g. "temperature:low".
func (c Condition) Key() string {
	return AlertKey(c.Metric, c.Direction)
}

// AlertKey builds the cooldown key for a metric and direction.
func AlertKey(m Metric, d Direction) string {
	return string(m) + ":" + string(d)
}

// Notification is the message handed to a dispatcher.
type Notification struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// Record is the last dispatch for one alert key.
type Record struct {
	Metric    Metric    `json:"metric"`
	Direction Direction `json:"direction"`
	SentAt    time.Time `json:"sent_at"`
	Value     float64   `json:"value"`
}

// AlertEvent is the wire form of a dispatched notification on message buses.
type AlertEvent struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Data    map[string]any `json:"data,omitempty"`
	Emitted time.Time      `json:"emitted_at"`
}

// NewAlertEvent stamps a notification with an id and emission time.
func NewAlertEvent(n Notification) *AlertEvent {
	return &AlertEvent{
		ID:      uuid.New().String(),
		Title:   n.Title,
		Body:    n.Body,
		Data:    n.Data,
		Emitted: time.Now().UTC(),
	}
}
