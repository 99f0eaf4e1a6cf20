package models

import (
	"time"

	"github.com/google/uuid"
)

// Path identifies which input path delivered a reading.
type Path string

const (
	PathPoll       Path = "poll"
	PathRealtime   Path = "realtime"
	PathBackground Path = "background"
	PathHTTP       Path = "http"
)

// Envelope wraps a Reading with internal metadata for processing
type Envelope struct {
	ID         string    `json:"id"`
	Reading    *Reading  `json:"reading"`
	Path       Path      `json:"path"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewEnvelope creates a new envelope wrapping a reading
func NewEnvelope(reading *Reading, path Path) *Envelope {
	return &Envelope{
		ID:         uuid.New().String(),
		Reading:    reading,
		Path:       path,
		ReceivedAt: time.Now().UTC(),
	}
}
