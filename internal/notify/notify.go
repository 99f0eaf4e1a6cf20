// Package notify delivers alert notifications to one or more sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"thermoguard/internal/logger"
	"thermoguard/internal/metrics"
	"thermoguard/internal/models"
)

// ErrDispatcherClosed is returned by Schedule after Close.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Sink is a single delivery channel.
type Sink interface {
	Name() string
	Schedule(ctx context.Context, n models.Notification) error
	Close() error
}

// Fanout delivers each notification to every sink. A notification counts as
// delivered when at least one sink accepts it; it fails only when all fail.
type Fanout struct {
	sinks  []Sink
	closed atomic.Bool
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Schedule implements alerts.Dispatcher.
func (f *Fanout) Schedule(ctx context.Context, n models.Notification) error {
	if f.closed.Load() {
		return ErrDispatcherClosed
	}
	if len(f.sinks) == 0 {
		return errors.New("no notification sinks configured")
	}

	log := logger.WithComponent("notify")

	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Schedule(ctx, n); err != nil {
			metrics.SinkDeliveriesTotal.WithLabelValues(sink.Name(), "failed").Inc()
			log.Warn().Err(err).Str("sink", sink.Name()).Str("title", n.Title).Msg("sink delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.SinkDeliveriesTotal.WithLabelValues(sink.Name(), "success").Inc()
	}

	if len(errs) == len(f.sinks) {
		return errors.Join(errs...)
	}
	return nil
}

// Close closes every sink.
func (f *Fanout) Close() error {
	if f.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
