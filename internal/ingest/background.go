package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"thermoguard/internal/alerts"
	"thermoguard/internal/logger"
	"thermoguard/internal/metrics"
	"thermoguard/internal/models"
)

// Result is the outcome of one background run.
type Result int

const (
	ResultNewData Result = iota
	ResultNoData
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultNewData:
		return "new_data"
	case ResultNoData:
		return "no_data"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OutcomeFunc receives the outcomes of each background evaluation.
type OutcomeFunc func(env *models.Envelope, outcomes []alerts.Outcome)

// BackgroundTask periodically fetches the latest reading and evaluates it
// synchronously so each run can report a result.
type BackgroundTask struct {
	source     Source
	evaluator  Evaluator
	onOutcomes OutcomeFunc
	interval   time.Duration
	timeout    time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	cancel  context.CancelFunc
}

// NewBackgroundTask builds an unregistered task. onOutcomes may be nil.
func NewBackgroundTask(source Source, evaluator Evaluator, interval time.Duration, onOutcomes OutcomeFunc) *BackgroundTask {
	timeout := interval
	if timeout > time.Minute {
		timeout = time.Minute
	}
	return &BackgroundTask{
		source:     source,
		evaluator:  evaluator,
		onOutcomes: onOutcomes,
		interval:   interval,
		timeout:    timeout,
	}
}

// Register schedules the task. Registering twice is not an error.
func (b *BackgroundTask) Register(ctx context.Context) error {
	log := logger.WithComponent("background_task")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cron != nil {
		log.Info().Msg("background task already registered")
		return nil
	}

	job := cron.New(cron.WithChain(cron.Recover(cronLogger{log: log})))
	expression := fmt.Sprintf("@every %s", b.interval)

	runCtx, cancel := context.WithCancel(ctx)
	id, err := job.AddFunc(expression, func() {
		b.runScheduled(runCtx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule background task %q: %w", expression, err)
	}

	job.Start()
	b.cron, b.entryID, b.cancel = job, id, cancel

	log.Info().Str("schedule", expression).Int("entry_id", int(id)).Msg("background task registered")
	return nil
}

// Unregister removes the schedule and waits for a running job to finish.
func (b *BackgroundTask) Unregister() {
	b.mu.Lock()
	job, cancel := b.cron, b.cancel
	b.cron, b.cancel = nil, nil
	b.mu.Unlock()

	if job == nil {
		return
	}
	cancel()
	<-job.Stop().Done()

	log := logger.WithComponent("background_task")
	log.Info().Msg("background task unregistered")
}

// IsRegistered reports whether the task is scheduled.
func (b *BackgroundTask) IsRegistered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cron != nil
}

// NextRun returns the next scheduled run, or zero when not registered.
func (b *BackgroundTask) NextRun() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cron == nil {
		return time.Time{}
	}
	return b.cron.Entry(b.entryID).Next
}

func (b *BackgroundTask) runScheduled(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	b.RunOnce(ctx)
}

// RunOnce fetches and evaluates the latest reading.
func (b *BackgroundTask) RunOnce(ctx context.Context) Result {
	log := logger.WithComponent("background_task")

	result := b.runSafely(ctx)
	metrics.BackgroundRunsTotal.WithLabelValues(result.String()).Inc()
	log.Debug().Str("result", result.String()).Msg("background run finished")
	return result
}

// runSafely reports a panicking run as failed.
func (b *BackgroundTask) runSafely(ctx context.Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithComponent("background_task")
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("background run panic recovered")
			metrics.PanicsRecovered.WithLabelValues("background").Inc()
			result = ResultFailed
		}
	}()
	return b.run(ctx)
}

func (b *BackgroundTask) run(ctx context.Context) Result {
	log := logger.WithComponent("background_task")

	reading, err := b.source.Latest(ctx)
	if errors.Is(err, models.ErrNoReading) {
		metrics.SourceFetchTotal.WithLabelValues(string(models.PathBackground), "empty").Inc()
		return ResultNoData
	}
	if err != nil {
		metrics.SourceFetchTotal.WithLabelValues(string(models.PathBackground), "failed").Inc()
		log.Error().Err(err).Msg("failed to fetch latest reading in background")
		return ResultFailed
	}
	metrics.SourceFetchTotal.WithLabelValues(string(models.PathBackground), "success").Inc()

	metrics.EvaluationsTotal.WithLabelValues(string(models.PathBackground)).Inc()
	env := models.NewEnvelope(reading, models.PathBackground)
	outcomes := b.evaluator.Evaluate(ctx, reading)
	for _, o := range outcomes {
		log.Info().
			Str("envelope_id", env.ID).
			Str("key", o.Condition.Key()).
			Str("status", string(o.Status)).
			Msg("background evaluation")
	}
	if b.onOutcomes != nil {
		b.onOutcomes(env, outcomes)
	}
	return ResultNewData
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	metrics.PanicsRecovered.WithLabelValues("background").Inc()
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
