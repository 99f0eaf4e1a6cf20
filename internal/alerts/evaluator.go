package alerts

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"thermoguard/internal/logger"
	"thermoguard/internal/metrics"
	"thermoguard/internal/models"
	"thermoguard/internal/state"
)

// Evaluator errors
var (
	ErrDispatchPanic = errors.New("dispatcher panicked")
	ErrStorePanic    = errors.New("cooldown store panicked")
	ErrNoStore       = errors.New("cooldown store is required")
	ErrNoDispatcher  = errors.New("dispatcher is required")
)

// Dispatcher delivers a notification to the user.
type Dispatcher interface {
	Schedule(ctx context.Context, n models.Notification) error
}

// Status is the decision taken for one active condition.
type Status string

const (
	StatusDispatched Status = "dispatched"
	StatusSuppressed Status = "suppressed"
	StatusFailed     Status = "failed"
)

// Outcome reports what happened to one active condition.
type Outcome struct {
	Condition models.Condition
	Status    Status

	// SentAt is set for dispatched outcomes
	SentAt time.Time

	// Err is the dispatch error for failed outcomes
	Err error

	// StoreErr records a cooldown store failure that did not change the
	// decision: a failed read (dispatch went ahead) or a failed write after
	// a successful dispatch.
	StoreErr error
}

// Config holds Evaluator dependencies.
type Config struct {
	Thresholds Thresholds
	Cooldown   time.Duration
	Store      state.Store
	Dispatcher Dispatcher

	// DispatchTimeout bounds a single Schedule call. Zero means no bound
	// beyond the caller's context.
	DispatchTimeout time.Duration

	// Now defaults to time.Now
	Now func() time.Time
}

// Evaluator classifies readings and dispatches notifications subject to a
// per-key cooldown. It is safe for concurrent use; every input path must
// share one Evaluator so the cooldown holds across paths.
type Evaluator struct {
	thresholds      atomic.Pointer[Thresholds]
	cooldown        time.Duration
	store           state.Store
	dispatcher      Dispatcher
	dispatchTimeout time.Duration
	now             func() time.Time
	locks           *keyLocks

	evaluated  atomic.Uint64
	dispatched atomic.Uint64
	suppressed atomic.Uint64
	failed     atomic.Uint64
}

// NewEvaluator validates cfg and builds an Evaluator.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive, got %s", cfg.Cooldown)
	}
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &Evaluator{
		cooldown:        cfg.Cooldown,
		store:           cfg.Store,
		dispatcher:      cfg.Dispatcher,
		dispatchTimeout: cfg.DispatchTimeout,
		now:             cfg.Now,
		locks:           newKeyLocks(),
	}
	th := cfg.Thresholds
	e.thresholds.Store(&th)
	return e, nil
}

// Thresholds returns the thresholds currently in effect.
func (e *Evaluator) Thresholds() Thresholds {
	return *e.thresholds.Load()
}

// SetThresholds replaces the thresholds for subsequent evaluations.
func (e *Evaluator) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	e.thresholds.Store(&t)

	log := logger.WithComponent("evaluator")
	log.Info().
		Float64("temperature_lower", t.TemperatureLower).
		Float64("temperature_upper", t.TemperatureUpper).
		Float64("smoke_limit", t.SmokeLimit).
		Msg("thresholds updated")
	return nil
}

// Cooldown returns the minimum spacing between notifications for one key.
func (e *Evaluator) Cooldown() time.Duration {
	return e.cooldown
}

// Evaluate classifies the reading and decides, for each active condition,
// whether to dispatch now. It never returns an error: failures are reported
// per condition in the outcomes. Conditions are independent; a failure on
// one does not stop the others.
func (e *Evaluator) Evaluate(ctx context.Context, reading *models.Reading) []Outcome {
	e.evaluated.Add(1)
	metrics.LastTemperature.Set(reading.Temperature)

	conds := Classify(reading, e.Thresholds())
	if len(conds) == 0 {
		return nil
	}

	outcomes := make([]Outcome, 0, len(conds))
	for _, cond := range conds {
		out := e.decide(ctx, cond)
		metrics.AlertOutcomesTotal.WithLabelValues(cond.Key(), string(out.Status)).Inc()
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// decide runs the read-decide-write sequence for one condition under the
// key's lock.
func (e *Evaluator) decide(ctx context.Context, cond models.Condition) Outcome {
	key := cond.Key()
	log := logger.WithComponent("evaluator").With().
		Str("key", key).
		Float64("value", cond.Value).
		Float64("threshold", cond.Threshold).
		Logger()

	unlock := e.locks.Lock(key)
	defer unlock()

	out := Outcome{Condition: cond}
	now := e.now()

	rec, err := e.storeGet(ctx, key)
	if err != nil {
		// Fail open on read errors.
		metrics.CooldownStoreErrors.WithLabelValues("get").Inc()
		log.Error().Err(err).Msg("cooldown store read failed, dispatching without cooldown check")
		out.StoreErr = err
	} else if rec != nil && now.Sub(rec.SentAt) < e.cooldown {
		e.suppressed.Add(1)
		out.Status = StatusSuppressed
		log.Debug().
			Time("last_sent_at", rec.SentAt).
			Dur("remaining", e.cooldown-now.Sub(rec.SentAt)).
			Msg("alert suppressed by cooldown")
		return out
	}

	if err := e.dispatch(ctx, FormatNotification(cond)); err != nil {
		e.failed.Add(1)
		out.Status = StatusFailed
		out.Err = err
		log.Error().Err(err).Msg("notification dispatch failed")
		return out
	}

	e.dispatched.Add(1)
	out.Status = StatusDispatched
	out.SentAt = now

	err = e.storeSet(ctx, key, models.Record{
		Metric:    cond.Metric,
		Direction: cond.Direction,
		SentAt:    now,
		Value:     cond.Value,
	})
	if err != nil {
		metrics.CooldownStoreErrors.WithLabelValues("set").Inc()
		log.Warn().Err(err).Msg("cooldown record not saved, next reading may alert again")
		out.StoreErr = err
	}

	log.Info().Msg("alert dispatched")
	return out
}

// storeGet reads the cooldown record. A panicking store is reported as an
// error so the caller fails open.
func (e *Evaluator) storeGet(ctx context.Context, key string) (rec *models.Record, err error) {
	defer e.recoverStore("get", &err)
	return e.store.Get(ctx, key)
}

func (e *Evaluator) storeSet(ctx context.Context, key string, rec models.Record) (err error) {
	defer e.recoverStore("set", &err)
	return e.store.Set(ctx, key, rec)
}

func (e *Evaluator) recoverStore(op string, err *error) {
	if r := recover(); r != nil {
		log := logger.WithComponent("evaluator")
		log.Error().
			Str("op", op).
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("cooldown store panic recovered")
		metrics.PanicsRecovered.WithLabelValues("store").Inc()
		*err = fmt.Errorf("%w: %s: %v", ErrStorePanic, op, r)
	}
}

func (e *Evaluator) dispatch(ctx context.Context, n models.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithComponent("evaluator")
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("dispatcher panic recovered")
			metrics.PanicsRecovered.WithLabelValues("dispatcher").Inc()
			err = fmt.Errorf("%w: %v", ErrDispatchPanic, r)
		}
	}()

	if e.dispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.dispatchTimeout)
		defer cancel()
	}

	start := time.Now()
	err = e.dispatcher.Schedule(ctx, n)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	return err
}

// Dispatched filters outcomes down to the conditions that were notified.
func Dispatched(outcomes []Outcome) []models.Condition {
	var conds []models.Condition
	for _, o := range outcomes {
		if o.Status == StatusDispatched {
			conds = append(conds, o.Condition)
		}
	}
	return conds
}

// Stats returns evaluator counters
func (e *Evaluator) Stats() Stats {
	return Stats{
		Evaluated:  e.evaluated.Load(),
		Dispatched: e.dispatched.Load(),
		Suppressed: e.suppressed.Load(),
		Failed:     e.failed.Load(),
	}
}

// Stats holds evaluator counters
type Stats struct {
	Evaluated  uint64 `json:"evaluated"`
	Dispatched uint64 `json:"dispatched"`
	Suppressed uint64 `json:"suppressed"`
	Failed     uint64 `json:"failed"`
}
