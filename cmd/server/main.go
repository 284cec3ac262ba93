// Package main boots the chat pipeline, wiring configuration, logger,
// Redis, the document store, every stream worker, the socket hub, and the
// HTTP surface into one supervised process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/alerts"
	"github.com/agency-portal/chat-pipeline/internal/breaker"
	"github.com/agency-portal/chat-pipeline/internal/config"
	"github.com/agency-portal/chat-pipeline/internal/filestore"
	"github.com/agency-portal/chat-pipeline/internal/gateway"
	"github.com/agency-portal/chat-pipeline/internal/httpapi"
	"github.com/agency-portal/chat-pipeline/internal/ingest"
	"github.com/agency-portal/chat-pipeline/internal/logger"
	"github.com/agency-portal/chat-pipeline/internal/metrics"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/internal/presence"
	"github.com/agency-portal/chat-pipeline/internal/room"
	"github.com/agency-portal/chat-pipeline/internal/socket"
	"github.com/agency-portal/chat-pipeline/internal/status"
	"github.com/agency-portal/chat-pipeline/internal/store"
	"github.com/agency-portal/chat-pipeline/internal/streaming"
	"github.com/agency-portal/chat-pipeline/internal/supervisor"
	"github.com/agency-portal/chat-pipeline/internal/workers"
	goredis "github.com/redis/go-redis/v9"
)

// Ambient monitor thresholds the spec leaves to the implementation.
const (
	dlqAlertThreshold       = 100
	streamBacklogThreshold  = 1000
	memoryAlertThresholdMiB = 512
	monitorInterval         = 30 * time.Second
	metricsRefreshInterval  = 10 * time.Second
	redisRetryInterval      = 2 * time.Second
)

// Application owns every long-lived component's lifecycle, mirroring the
// start/shutdown split the syslog consumer's Application uses, fanned out
// across many supervised workers instead of one stream processor.
type Application struct {
	config *config.Config
	logger ports.Logger

	streamClient   *streaming.Client
	presenceClient goredis.UniversalClient

	store      ports.Store
	breaker    ports.CircuitBreaker
	presence   *presence.Registry
	sweeper    *presence.Sweeper
	rooms      *room.Registry
	hub        *socket.Hub
	ingestPath *ingest.Path
	tracker    *status.Tracker
	gatewaySvc *gateway.Service
	alertSink  *alerts.SentrySink
	metrics    *metrics.Registry
	files      *filestore.Disk

	supervisor *supervisor.Supervisor
	httpServer *http.Server

	wg sync.WaitGroup
}

func main() {
	os.Exit(run())
}

// run contains the program logic and returns an exit code, keeping defers
// and shutdown cleanup clear of os.Exit's immediate termination.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logr, err := logger.NewLogrusLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	app := &Application{config: cfg, logger: logr}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		logr.Error("failed to start application", ports.Field{Key: "error", Value: err})
		return 1
	}

	if cfg.App.LogLevel == "debug" {
		app.wg.Add(1)
		go app.logMetrics(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logr.Info("received shutdown signal", ports.Field{Key: "signal", Value: sig.String()})

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logr.Error("failed to shutdown gracefully", ports.Field{Key: "error", Value: err})
		return 1
	}

	logr.Info("application shutdown complete")
	return 0
}

// Start wires every component and launches the supervised workers, the
// socket hub, and the HTTP surface.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting application",
		ports.Field{Key: "name", Value: app.config.App.Name},
		ports.Field{Key: "environment", Value: app.config.App.Environment},
	)

	app.streamClient = streaming.NewClient(streaming.Options{
		Addresses:    app.config.Redis.Addresses,
		Username:     app.config.Redis.Username,
		Password:     app.config.Redis.Password,
		DB:           app.config.Redis.DB,
		PoolSize:     app.config.Redis.PoolSize,
		DialTimeout:  app.config.Redis.DialTimeout,
		ReadTimeout:  app.config.Redis.ReadTimeout,
		WriteTimeout: app.config.Redis.WriteTimeout,
		MaxLens: streaming.BuildMaxLens(
			app.config.Streams.MaxLenWAL, app.config.Streams.MaxLenRetry,
			app.config.Streams.MaxLenDLQ, app.config.Streams.MaxLenEvents,
		),
	}, app.logger)

	if err := app.waitForRedisReady(ctx, app.streamClient.Ping); err != nil {
		return err
	}

	sqliteStore, err := store.Open(app.config.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	storeBreaker := breaker.New("message-store", app.config.Breaker.FailureThreshold, app.config.Breaker.ResetTimeout, app.config.Breaker.HalfOpenMaxCalls)
	app.breaker = storeBreaker
	app.store = store.NewBreakerGuarded(sqliteStore, storeBreaker)

	alertSink, err := alerts.NewSentrySink(app.config.Sentry.DSN, app.config.App.Name, app.config.Sentry.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize alert sink: %w", err)
	}
	app.alertSink = alertSink

	app.rooms = room.New(app.store, app.streamClient)

	app.presenceClient = goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        app.config.Redis.Addresses,
		Username:     app.config.Redis.Username,
		Password:     app.config.Redis.Password,
		DB:           app.config.Redis.DB,
		DialTimeout:  app.config.Redis.DialTimeout,
		ReadTimeout:  app.config.Redis.ReadTimeout,
		WriteTimeout: app.config.Redis.WriteTimeout,
	})
	app.presence = presence.New(app.presenceClient, app.config.Redis.ConsumerName, app.config.Presence.TTL, app.logger, app.rooms.Members)
	app.sweeper = presence.NewSweeper(app.presence, app.config.Presence.SweepInterval, func(identity string) {
		app.logger.Debug("presence entry expired", ports.Field{Key: "identity", Value: identity})
	})

	app.ingestPath = ingest.New(app.streamClient, app.store, app.rooms, app.logger)
	app.tracker = status.New(app.store, app.streamClient, app.logger)
	app.gatewaySvc = gateway.New(app.ingestPath, app.rooms, app.tracker, app.store, app.logger)

	auth := socket.NewAuthenticator(app.config.Auth.JWTSecret, app.config.Auth.JWTIssuer)
	app.hub = socket.NewHub(auth, app.presence, app.rooms, app.gatewaySvc, app.logger)
	app.gatewaySvc.SetNotifier(app.hub)

	files, err := filestore.NewDisk("data/files")
	if err != nil {
		return fmt.Errorf("failed to open file store: %w", err)
	}
	app.files = files

	if app.config.Metrics.Enabled {
		app.metrics = metrics.New(app.config.Metrics.Namespace)
		storeBreaker.OnStateChange(func(_, to string) { app.metrics.SetBreakerOpen(to == "OPEN") })
	}

	app.supervisor = supervisor.New(app.logger, app.alertSink, storeBreaker)
	app.registerWorkers()
	app.supervisor.Start(ctx)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.sweeper.Run(ctx)
	}()

	if app.metrics != nil {
		app.wg.Add(1)
		go app.refreshMetrics(ctx)
	}

	api := httpapi.New(app.ingestPath, app.store, app.streamClient, app.files, app.metrics, app.logger, app.config.File.MaxSizeBytes)
	router := httpapi.NewRouter(api, auth)
	router.Handle("/ws", app.hub)

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		WriteTimeout: app.config.HTTP.WriteTimeout,
	}
	app.wg.Add(1)
	go app.runHTTPServer()

	app.logger.Info("application started successfully", ports.Field{Key: "port", Value: app.config.HTTP.Port})
	return nil
}

// registerWorkers builds and registers every stream worker the Worker
// Supervisor (C9) runs.
func (app *Application) registerWorkers() {
	processID := app.config.Redis.ConsumerName

	app.supervisor.Register("fallback", workers.NewFallbackWorker(processID, app.streamClient, app.store, app.logger))
	app.supervisor.Register("retry", workers.NewRetryWorker(processID, app.streamClient, app.store, app.logger, app.config.Streams.MaxRetryAttempts))
	app.supervisor.Register("wal-recovery", workers.NewWALRecoveryWorker(app.streamClient, app.logger, 0, app.config.Streams.WALTimeout))
	app.supervisor.Register("dlq-monitor", workers.NewDLQMonitor(app.streamClient, app.alertSink, app.logger, monitorInterval, dlqAlertThreshold))
	app.supervisor.Register("message-consumer", workers.NewMessageConsumerWorker(processID, app.streamClient, app.rooms, app.presence, app.hub, app.logger))
	app.supervisor.Register("status-consumer", workers.NewStatusConsumerWorker(processID, app.streamClient, app.hub, app.logger))
	app.supervisor.Register("memory-monitor", workers.NewMemoryMonitor(app.alertSink, app.logger, monitorInterval, memoryAlertThresholdMiB*1024*1024))
	app.supervisor.Register("stream-monitor", workers.NewStreamMonitor(app.streamClient, app.alertSink, app.logger, monitorInterval, streamBacklogThreshold,
		[2]string{streaming.StreamRetryMessages, "retry-workers"},
		[2]string{streaming.StreamEventsMessages, "message-consumers"},
		[2]string{streaming.StreamEventsStatus, "status-consumers"},
	))
}

// refreshMetrics periodically copies the Supervisor's worker stats into the
// Prometheus registry /stats exposes; breaker state is set by the
// OnStateChange listener registered in Start.
func (app *Application) refreshMetrics(ctx context.Context) {
	defer app.wg.Done()
	ticker := time.NewTicker(metricsRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.metrics.SetWorkerStats(app.supervisor.Stats())
		case <-ctx.Done():
			return
		}
	}
}

func (app *Application) runHTTPServer() {
	defer app.wg.Done()
	app.logger.Info("starting http server", ports.Field{Key: "port", Value: app.config.HTTP.Port})

	err := app.httpServer.ListenAndServe()
	if err == nil || err == http.ErrServerClosed {
		return
	}
	app.logger.Error("http server error", ports.Field{Key: "error", Value: err})
}

func (app *Application) waitForRedisReady(ctx context.Context, ping func(context.Context) error) error {
	for {
		pingCtx, cancel := context.WithTimeout(ctx, app.config.Redis.DialTimeout)
		err := ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		app.logger.Error("failed to connect to redis, will retry", ports.Field{Key: "error", Value: err})
		select {
		case <-time.After(redisRetryInterval):
		case <-ctx.Done():
			return fmt.Errorf("context canceled before redis became ready: %w", ctx.Err())
		}
	}
}

// Shutdown stops accepting new work and drains every component in this
// order: HTTP surface, socket connections, supervised workers, alert sink
// flush, then the presence, broker and store clients.
func (app *Application) Shutdown(ctx context.Context) error {
	app.logger.Info("shutting down application")

	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			app.logger.Error("failed to shutdown http server", ports.Field{Key: "error", Value: err})
		}
	}

	if app.hub != nil {
		app.hub.Shutdown(ctx)
	}

	if app.supervisor != nil {
		app.supervisor.Shutdown(ctx)
	}

	if app.alertSink != nil {
		app.alertSink.Flush(2 * time.Second)
	}

	if app.presenceClient != nil {
		if err := app.presenceClient.Close(); err != nil {
			app.logger.Error("failed to close presence redis client", ports.Field{Key: "error", Value: err})
		}
	}

	if app.streamClient != nil {
		if err := app.streamClient.Close(); err != nil {
			app.logger.Error("failed to close stream client", ports.Field{Key: "error", Value: err})
		}
	}

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Error("failed to close store", ports.Field{Key: "error", Value: err})
		}
	}

	app.wg.Wait()
	return nil
}

// logMetrics periodically logs the Supervisor's worker stats when the
// process runs in debug mode.
func (app *Application) logMetrics(ctx context.Context) {
	defer app.wg.Done()
	ticker := time.NewTicker(metricsRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for name, stats := range app.supervisor.Stats() {
				app.logger.Debug("worker stats",
					ports.Field{Key: "worker", Value: name},
					ports.Field{Key: "processed", Value: stats.Processed},
					ports.Field{Key: "failed", Value: stats.Failed},
					ports.Field{Key: "restarts", Value: stats.Restarts},
				)
			}
		case <-ctx.Done():
			return
		}
	}
}
