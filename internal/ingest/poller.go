package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"thermoguard/internal/logger"
	"thermoguard/internal/metrics"
	"thermoguard/internal/models"
)

// Poller is the foreground path: it fetches the latest reading on a fixed
// interval, once immediately at start, and submits it for evaluation.
type Poller struct {
	source   Source
	sink     Submitter
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(source Source, sink Submitter, interval time.Duration) *Poller {
	return &Poller{source: source, sink: sink, interval: interval}
}

// Start launches the polling loop. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	log := logger.WithComponent("poller")
	log.Info().Dur("interval", p.interval).Msg("poller started")
	defer log.Info().Msg("poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs one fetch-and-submit cycle. Fetch errors are logged and
// counted; nothing is submitted in that case.
func (p *Poller) Poll(ctx context.Context) {
	log := logger.WithComponent("poller")

	reading, err := p.source.Latest(ctx)
	switch {
	case errors.Is(err, models.ErrNoReading):
		metrics.SourceFetchTotal.WithLabelValues(string(models.PathPoll), "empty").Inc()
		log.Debug().Msg("no reading available yet")
		return
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		metrics.SourceFetchTotal.WithLabelValues(string(models.PathPoll), "failed").Inc()
		log.Error().Err(err).Msg("failed to fetch latest reading")
		return
	}
	metrics.SourceFetchTotal.WithLabelValues(string(models.PathPoll), "success").Inc()

	if err := p.sink.Submit(ctx, models.NewEnvelope(reading, models.PathPoll)); err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathPoll), "rejected").Inc()
		log.Warn().Err(err).Int64("reading_id", reading.ID).Msg("failed to submit reading")
		return
	}
	metrics.ReadingsReceivedTotal.WithLabelValues(string(models.PathPoll), "accepted").Inc()
}
