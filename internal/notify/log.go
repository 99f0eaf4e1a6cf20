package notify

import (
	"context"

	"github.com/rs/zerolog"

	"thermoguard/internal/models"
)

// LogSink writes notifications to the structured log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Schedule(ctx context.Context, n models.Notification) error {
	s.log.Warn().
		Str("title", n.Title).
		Interface("data", n.Data).
		Msg(n.Body)
	return nil
}

func (s *LogSink) Close() error { return nil }
