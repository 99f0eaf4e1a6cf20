package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"thermoguard/internal/alerts"
	"thermoguard/internal/logger"
	"thermoguard/internal/metrics"
	"thermoguard/internal/models"
)

// Pool errors
var (
	ErrQueueFull  = errors.New("reading queue is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Evaluator is the alert evaluator shared by every input path.
type Evaluator interface {
	Evaluate(ctx context.Context, reading *models.Reading) []alerts.Outcome
}

// OutcomeFunc receives the outcomes of each evaluated envelope.
type OutcomeFunc func(env *models.Envelope, outcomes []alerts.Outcome)

// Pool manages a pool of workers that drain reading envelopes into the evaluator
type Pool struct {
	evaluator   Evaluator
	onOutcomes  OutcomeFunc
	queue       chan *models.Envelope
	workers     int
	evalTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	processed atomic.Uint64
	rejected  atomic.Uint64
	panicked  atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Evaluator   Evaluator
	OnOutcomes  OutcomeFunc
	Workers     int
	QueueSize   int
	EvalTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		evaluator:   cfg.Evaluator,
		onOutcomes:  cfg.OnOutcomes,
		queue:       make(chan *models.Envelope, cfg.QueueSize),
		workers:     cfg.Workers,
		evalTimeout: cfg.EvalTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing envelopes
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("queue_capacity", cap(p.queue)).
		Msg("starting worker pool")

	metrics.WorkerQueueCapacity.Set(float64(cap(p.queue)))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues an envelope without blocking. It returns ErrQueueFull when
// the queue is at capacity and ErrPoolClosed after Stop.
func (p *Pool) Submit(ctx context.Context, env *models.Envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.rejected.Add(1)
		return ErrPoolClosed
	}

	select {
	case p.queue <- env:
		metrics.WorkerQueueSize.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stop stops accepting envelopes, drains the queue and waits for workers.
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	log.Info().Msg("stopping worker pool")
	p.wg.Wait()
	p.cancel()
	log.Info().Msg("worker pool stopped")
}

// worker processes envelopes from the queue until it is closed
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()
	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	for env := range p.queue {
		metrics.WorkerQueueSize.Set(float64(len(p.queue)))
		p.process(env)
	}
}

// process evaluates one envelope. A panic is recovered so the worker survives.
func (p *Pool) process(env *models.Envelope) {
	log := logger.WithComponent("worker")

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("envelope_id", env.ID).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
			p.panicked.Add(1)
		}
	}()

	ctx, cancel := context.WithTimeout(p.ctx, p.evalTimeout)
	defer cancel()

	metrics.EvaluationsTotal.WithLabelValues(string(env.Path)).Inc()
	outcomes := p.evaluator.Evaluate(ctx, env.Reading)
	p.processed.Add(1)

	log.Debug().
		Str("envelope_id", env.ID).
		Str("path", string(env.Path)).
		Float64("temperature", env.Reading.Temperature).
		Int("conditions", len(outcomes)).
		Dur("queued_for", time.Since(env.ReceivedAt)).
		Msg("reading evaluated")

	if p.onOutcomes != nil {
		p.onOutcomes(env, outcomes)
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
		Queued:    len(p.queue),
		Capacity:  cap(p.queue),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Rejected  uint64 `json:"rejected"`
	Panicked  uint64 `json:"panicked"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
}
