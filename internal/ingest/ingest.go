// Package ingest holds the input paths that feed readings to the evaluator:
// the foreground poller, the realtime MQTT subscription and the periodic
// background task.
package ingest

import (
	"context"

	"thermoguard/internal/alerts"
	"thermoguard/internal/models"
)

// Source returns the most recent reading. It returns models.ErrNoReading
// when the source holds no rows.
type Source interface {
	Latest(ctx context.Context) (*models.Reading, error)
}

// Submitter accepts reading envelopes for evaluation.
type Submitter interface {
	Submit(ctx context.Context, env *models.Envelope) error
}

// Evaluator evaluates a reading synchronously.
type Evaluator interface {
	Evaluate(ctx context.Context, reading *models.Reading) []alerts.Outcome
}
