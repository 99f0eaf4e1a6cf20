package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thermoguard/internal/alerts"
	"thermoguard/internal/config"
	"thermoguard/internal/handlers"
	"thermoguard/internal/ingest"
	"thermoguard/internal/kafka"
	"thermoguard/internal/logger"
	"thermoguard/internal/middleware"
	"thermoguard/internal/models"
	"thermoguard/internal/notify"
	"thermoguard/internal/source"
	"thermoguard/internal/state"
	"thermoguard/internal/worker"
)

// Dispatcher is an alert dispatcher the processor owns and closes.
type Dispatcher interface {
	alerts.Dispatcher
	Close() error
}

// Processor wires the input paths, the shared evaluator and the dispatch
// sinks, and owns their lifecycle.
type Processor struct {
	cfg *config.Config

	source     ingest.Source
	store      state.Store
	dispatcher Dispatcher

	pool       *pgxpool.Pool
	mqttClient mqtt.Client
	publisher  *kafka.AlertPublisher

	evaluator    *alerts.Evaluator
	workerPool   *worker.Pool
	poller       *ingest.Poller
	subscription *ingest.Subscription
	consumer     *kafka.ReadingConsumer
	background   *ingest.BackgroundTask
	recent       *recentAlerts

	handler    http.Handler
	httpServer *http.Server

	ready chan struct{}
	wg    sync.WaitGroup
}

// Option customizes a Processor.
type Option func(*Processor)

// WithSource replaces the Postgres data source.
func WithSource(s ingest.Source) Option {
	return func(p *Processor) { p.source = s }
}

// WithStore replaces the configured cooldown store.
func WithStore(s state.Store) Option {
	return func(p *Processor) { p.store = s }
}

// WithDispatcher replaces the configured notification sinks.
func WithDispatcher(d Dispatcher) Option {
	return func(p *Processor) { p.dispatcher = d }
}

// New constructs a Processor with given config.
func New(cfg *config.Config, opts ...Option) *Processor {
	p := &Processor{
		cfg:    cfg,
		recent: newRecentAlerts(50),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ready is closed once every component has started.
func (p *Processor) Ready() <-chan struct{} {
	return p.ready
}

// Handler returns the HTTP handler. It is nil before Ready is closed.
func (p *Processor) Handler() http.Handler {
	return p.handler
}

// Evaluator returns the shared evaluator. It is nil before Ready is closed.
func (p *Processor) Evaluator() *alerts.Evaluator {
	return p.evaluator
}

// Run starts every component and blocks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("processor starting")

	if err := p.init(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize processor")
		p.closeResources()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.start(runCtx); err != nil {
		log.Error().Err(err).Msg("failed to start processor")
		cancel()
		p.shutdown()
		return err
	}
	close(p.ready)

	log.Info().Msg("processor started")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	cancel()
	p.shutdown()
	return nil
}

// init builds every component without starting any goroutine.
func (p *Processor) init(ctx context.Context) error {
	if err := p.initPostgres(ctx); err != nil {
		return err
	}
	if err := p.initMQTT(); err != nil {
		return err
	}
	if err := p.initStore(ctx); err != nil {
		return err
	}
	if err := p.initDispatcher(); err != nil {
		return err
	}

	evaluator, err := alerts.NewEvaluator(alerts.Config{
		Thresholds: alerts.Thresholds{
			TemperatureLower: p.cfg.Alerts.Temperature.Lower,
			TemperatureUpper: p.cfg.Alerts.Temperature.Upper,
			SmokeLimit:       p.cfg.Alerts.Smoke.Threshold,
		},
		Cooldown:        p.cfg.Alerts.Cooldown,
		Store:           p.store,
		Dispatcher:      p.dispatcher,
		DispatchTimeout: p.cfg.Notify.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create evaluator: %w", err)
	}
	p.evaluator = evaluator

	p.workerPool = worker.NewPool(worker.Config{
		Evaluator:  evaluator,
		OnOutcomes: p.recordOutcomes,
		Workers:    p.cfg.Worker.Count,
		QueueSize:  p.cfg.Worker.QueueSize,
	})

	if p.cfg.Poll.Enabled {
		p.poller = ingest.NewPoller(p.source, p.workerPool, p.cfg.Poll.Interval)
	}
	if p.cfg.Background.Enabled {
		p.background = ingest.NewBackgroundTask(p.source, evaluator, p.cfg.Background.Interval, p.recordOutcomes)
	}

	switch p.cfg.Realtime.Transport {
	case "mqtt":
		sub, err := ingest.NewSubscription(p.mqttClient, p.cfg.MQTT.ReadingsTopic, p.cfg.MQTT.QoS, p.workerPool)
		if err != nil {
			return err
		}
		p.subscription = sub
	case "kafka":
		consumer, err := kafka.NewReadingConsumer(p.cfg.Kafka.Brokers, p.cfg.Kafka.ReadingsTopic, p.cfg.Kafka.GroupID, p.workerPool)
		if err != nil {
			return fmt.Errorf("create kafka consumer: %w", err)
		}
		p.consumer = consumer
	}

	p.initHTTP()
	return nil
}

// initPostgres connects the pool when the source or the store needs it.
func (p *Processor) initPostgres(ctx context.Context) error {
	if !p.cfg.UsesPostgres() {
		return nil
	}
	needSource := p.source == nil && p.cfg.ReadsSource()
	needStore := p.store == nil && p.cfg.Store.Backend == "postgres"
	if !needSource && !needStore {
		return nil
	}
	if p.cfg.Postgres.URL == "" {
		return errors.New("postgres.url is required for polling, background fetch and the postgres store")
	}

	pool, err := pgxpool.New(ctx, p.cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("create postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	p.pool = pool

	if needSource {
		p.source = source.NewPostgres(pool)
	}

	log := logger.WithComponent("processor")
	log.Info().Msg("postgres pool initialized")
	return nil
}

func (p *Processor) initMQTT() error {
	if !p.cfg.UsesMQTT() {
		return nil
	}
	// An injected dispatcher replaces the mqtt sink.
	if p.cfg.Realtime.Transport != "mqtt" && p.dispatcher != nil {
		return nil
	}

	log := logger.WithComponent("processor")
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.MQTT.Broker).
		SetClientID(p.cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return fmt.Errorf("connect to mqtt broker %s: timed out", p.cfg.MQTT.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", p.cfg.MQTT.Broker, err)
	}
	p.mqttClient = client

	log.Info().Str("broker", p.cfg.MQTT.Broker).Msg("connected to mqtt broker")
	return nil
}

func (p *Processor) initStore(ctx context.Context) error {
	if p.store != nil {
		return nil
	}

	var err error
	switch p.cfg.Store.Backend {
	case "redis":
		p.store, err = state.NewRedisStore(ctx, state.RedisOptions{
			Addr:     p.cfg.Redis.Addr,
			Password: p.cfg.Redis.Password,
			DB:       p.cfg.Redis.DB,
			Cooldown: p.cfg.Alerts.Cooldown,
		})
	case "postgres":
		p.store, err = state.NewPostgresStore(ctx, p.pool)
	default:
		p.store = state.NewMemoryStore()
	}
	if err != nil {
		return fmt.Errorf("create %s cooldown store: %w", p.cfg.Store.Backend, err)
	}

	log := logger.WithComponent("processor")
	log.Info().Str("backend", p.cfg.Store.Backend).Msg("cooldown store initialized")
	return nil
}

func (p *Processor) initDispatcher() error {
	if p.dispatcher != nil {
		return nil
	}

	var sinks []notify.Sink
	for _, name := range p.cfg.Notify.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, notify.NewLogSink(logger.WithComponent("notification")))
		case "slack":
			sink, err := notify.NewSlackSink(p.cfg.Slack.WebhookURL, p.cfg.Slack.Channel)
			if err != nil {
				return err
			}
			sinks = append(sinks, sink)
		case "mqtt":
			sink, err := notify.NewMQTTSink(p.mqttClient, p.cfg.MQTT.AlertsTopic, p.cfg.MQTT.QoS)
			if err != nil {
				return err
			}
			sinks = append(sinks, sink)
		case "kafka":
			publisher, err := kafka.NewAlertPublisher(p.cfg.Kafka.Brokers, p.cfg.Kafka.AlertsTopic, p.cfg.Kafka.Producer)
			if err != nil {
				return fmt.Errorf("create kafka alert publisher: %w", err)
			}
			p.publisher = publisher
			sinks = append(sinks, publisher)
		default:
			return fmt.Errorf("unknown notify sink %q", name)
		}
	}

	p.dispatcher = notify.NewFanout(sinks...)
	log := logger.WithComponent("processor")
	log.Info().Strs("sinks", p.cfg.Notify.Sinks).Msg("notification sinks initialized")
	return nil
}

// initHTTP builds the handler tree and, when an address is set, the server.
func (p *Processor) initHTTP() {
	mux := http.NewServeMux()

	mux.Handle("/readings", middleware.Chain(
		handlers.NewIngestHandler(handlers.IngestConfig{
			Sink:        p.workerPool,
			MaxBodySize: p.cfg.HTTP.MaxBodySize,
		}),
		middleware.Logging,
		middleware.Recovery,
	))
	mux.Handle("/thresholds", middleware.Chain(
		handlers.NewThresholdsHandler(p.evaluator),
		middleware.Logging,
		middleware.Recovery,
	))
	mux.HandleFunc("/alerts", p.alertsHandler)
	mux.HandleFunc("/health", p.healthHandler)
	mux.HandleFunc("/stats", p.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	p.handler = mux

	if p.cfg.HTTP.Addr == "" {
		return
	}
	p.httpServer = &http.Server{
		Addr:         p.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// start launches the worker pool first, then every input path.
func (p *Processor) start(ctx context.Context) error {
	log := logger.WithComponent("processor")

	p.workerPool.Start()

	if p.poller != nil {
		p.poller.Start(ctx)
	}

	if p.background != nil {
		if err := p.background.Register(ctx); err != nil {
			return err
		}
	}

	if p.subscription != nil {
		if err := p.subscription.Start(ctx); err != nil {
			return err
		}
	}

	if p.consumer != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("kafka realtime consumer stopped with error")
			}
		}()
	}

	if p.httpServer != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			log.Info().Str("addr", p.httpServer.Addr).Msg("starting HTTP server")
			if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server error")
			}
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	return nil
}

// shutdown stops inputs before draining workers, then closes sinks and
// connections.
func (p *Processor) shutdown() {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	if p.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		cancel()
	}

	// 2. Stop input paths
	if p.poller != nil {
		p.poller.Stop()
	}
	if p.subscription != nil {
		if err := p.subscription.Stop(); err != nil {
			log.Error().Err(err).Msg("mqtt unsubscribe error")
		}
	}
	if p.consumer != nil {
		if err := p.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("kafka consumer close error")
		}
	}
	if p.background != nil {
		p.background.Unregister()
	}

	// 3. Drain workers (with timeout)
	done := make(chan struct{})
	go func() {
		p.workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("worker shutdown timeout - forcing exit")
	}

	p.wg.Wait()

	// 4. Close sinks and connections
	p.closeResources()

	log.Info().Msg("processor stopped gracefully")
}

func (p *Processor) closeResources() {
	log := logger.WithComponent("processor")

	if p.dispatcher != nil {
		if err := p.dispatcher.Close(); err != nil {
			log.Error().Err(err).Msg("dispatcher close error")
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			log.Error().Err(err).Msg("cooldown store close error")
		}
	}
	if p.mqttClient != nil {
		p.mqttClient.Disconnect(250)
	}
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Processor) recordOutcomes(env *models.Envelope, outcomes []alerts.Outcome) {
	for _, o := range outcomes {
		if o.Status == alerts.StatusDispatched {
			p.recent.add(o.Condition, env.Path, o.SentAt)
		}
	}
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			workerStats := p.workerPool.Stats()
			evalStats := p.evaluator.Stats()

			log.Info().
				Uint64("evaluated", evalStats.Evaluated).
				Uint64("dispatched", evalStats.Dispatched).
				Uint64("suppressed", evalStats.Suppressed).
				Uint64("failed", evalStats.Failed).
				Uint64("worker_processed", workerStats.Processed).
				Uint64("worker_rejected", workerStats.Rejected).
				Int("queue_size", workerStats.Queued).
				Msg("stats")
		}
	}
}

// HealthResponse reports per-dependency health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Components: map[string]string{},
	}

	if p.pool != nil {
		if err := p.pool.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Components["postgres"] = err.Error()
		} else {
			resp.Components["postgres"] = "ok"
		}
	}
	if p.mqttClient != nil {
		if p.mqttClient.IsConnectionOpen() {
			resp.Components["mqtt"] = "ok"
		} else {
			resp.Status = "unhealthy"
			resp.Components["mqtt"] = "disconnected"
		}
	}
	if p.background != nil {
		if p.background.IsRegistered() {
			resp.Components["background"] = "registered"
		} else {
			resp.Components["background"] = "unregistered"
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// StatsResponse is served by /stats.
type StatsResponse struct {
	Evaluator         alerts.Stats          `json:"evaluator"`
	Worker            worker.Stats          `json:"worker"`
	Publisher         *kafka.PublisherStats `json:"publisher,omitempty"`
	Thresholds        alerts.Thresholds     `json:"thresholds"`
	Cooldown          string                `json:"cooldown"`
	NextBackgroundRun *time.Time            `json:"next_background_run,omitempty"`
}

func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Evaluator:  p.evaluator.Stats(),
		Worker:     p.workerPool.Stats(),
		Thresholds: p.evaluator.Thresholds(),
		Cooldown:   p.evaluator.Cooldown().String(),
	}
	if p.publisher != nil {
		stats := p.publisher.Stats()
		resp.Publisher = &stats
	}
	if p.background != nil {
		if next := p.background.NextRun(); !next.IsZero() {
			resp.NextBackgroundRun = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p *Processor) alertsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, p.recent.list())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
