package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermoguard/internal/alerts"
	"thermoguard/internal/models"
)

// MockEvaluator counts evaluations and can block or panic
type MockEvaluator struct {
	evaluated atomic.Uint64
	release   chan struct{}
	panicOn   float64
}

func (m *MockEvaluator) Evaluate(ctx context.Context, reading *models.Reading) []alerts.Outcome {
	if m.release != nil {
		<-m.release
	}
	if m.panicOn != 0 && reading.Temperature == m.panicOn {
		panic("evaluator blew up")
	}
	m.evaluated.Add(1)
	return []alerts.Outcome{{
		Condition: models.Condition{Metric: models.MetricTemperature, Direction: models.DirectionLow, Value: reading.Temperature},
		Status:    alerts.StatusDispatched,
	}}
}

func envelope(temp float64, path models.Path) *models.Envelope {
	return models.NewEnvelope(&models.Reading{Temperature: temp, ObservedAt: time.Now()}, path)
}

func TestWorkerPool_ProcessEnvelopes(t *testing.T) {
	mock := &MockEvaluator{}

	var mu sync.Mutex
	paths := map[models.Path]int{}
	pool := NewPool(Config{
		Evaluator: mock,
		Workers:   2,
		QueueSize: 100,
		OnOutcomes: func(env *models.Envelope, outcomes []alerts.Outcome) {
			mu.Lock()
			paths[env.Path]++
			mu.Unlock()
		},
	})

	pool.Start()

	for i := 0; i < 25; i++ {
		path := models.PathPoll
		if i%2 == 0 {
			path = models.PathRealtime
		}
		require.NoError(t, pool.Submit(context.Background(), envelope(15, path)))
	}

	pool.Stop()

	assert.Equal(t, uint64(25), mock.evaluated.Load())
	assert.Equal(t, uint64(25), pool.Stats().Processed)
	mu.Lock()
	assert.Equal(t, 13, paths[models.PathRealtime])
	assert.Equal(t, 12, paths[models.PathPoll])
	mu.Unlock()
}

func TestWorkerPool_QueueFull(t *testing.T) {
	mock := &MockEvaluator{release: make(chan struct{})}
	pool := NewPool(Config{Evaluator: mock, Workers: 1, QueueSize: 2})
	pool.Start()

	// one envelope is held by the blocked worker, two fill the queue
	require.NoError(t, pool.Submit(context.Background(), envelope(15, models.PathPoll)))
	require.Eventually(t, func() bool { return pool.Stats().Queued == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(context.Background(), envelope(15, models.PathPoll)))
	require.NoError(t, pool.Submit(context.Background(), envelope(15, models.PathPoll)))

	assert.ErrorIs(t, pool.Submit(context.Background(), envelope(15, models.PathPoll)), ErrQueueFull)
	assert.Equal(t, uint64(1), pool.Stats().Rejected)

	close(mock.release)
	pool.Stop()
	assert.Equal(t, uint64(3), mock.evaluated.Load())
}

func TestWorkerPool_GracefulShutdownDrainsQueue(t *testing.T) {
	mock := &MockEvaluator{}
	pool := NewPool(Config{Evaluator: mock, Workers: 2, QueueSize: 100})
	pool.Start()

	for i := 0; i < 7; i++ {
		require.NoError(t, pool.Submit(context.Background(), envelope(15, models.PathBackground)))
	}

	pool.Stop()
	pool.Stop()

	assert.Equal(t, uint64(7), mock.evaluated.Load())
	assert.ErrorIs(t, pool.Submit(context.Background(), envelope(15, models.PathPoll)), ErrPoolClosed)
}

func TestWorkerPool_PanicRecovery(t *testing.T) {
	mock := &MockEvaluator{panicOn: 99}
	pool := NewPool(Config{Evaluator: mock, Workers: 1, QueueSize: 10})
	pool.Start()

	require.NoError(t, pool.Submit(context.Background(), envelope(99, models.PathHTTP)))
	require.NoError(t, pool.Submit(context.Background(), envelope(15, models.PathHTTP)))

	pool.Stop()

	assert.Equal(t, uint64(1), pool.Stats().Panicked)
	assert.Equal(t, uint64(1), mock.evaluated.Load(), "worker keeps running after a panic")
}
