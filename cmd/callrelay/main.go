package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/callrelay-systems/callrelay/internal/config"
	"github.com/callrelay-systems/callrelay/internal/dedup"
	"github.com/callrelay-systems/callrelay/internal/dlq"
	"github.com/callrelay-systems/callrelay/internal/handlers"
	"github.com/callrelay-systems/callrelay/internal/logging"
	"github.com/callrelay-systems/callrelay/internal/mapping"
	"github.com/callrelay-systems/callrelay/internal/ratelimit"
	"github.com/callrelay-systems/callrelay/internal/realtime"
	"github.com/callrelay-systems/callrelay/internal/server"
	"github.com/callrelay-systems/callrelay/internal/service"
	"github.com/callrelay-systems/callrelay/internal/sheetclient"
	"github.com/callrelay-systems/callrelay/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrationsPath := flag.String("migrations", "migrations", "path to database migrations")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format).
		With(logging.Service("callrelay"))
	logging.SetDefault(logger)

	slog.Info("Starting call relay",
		slog.Int("port", cfg.Server.Port),
		slog.String("sheets_url", cfg.Sheets.URL),
		slog.String("raw_table", cfg.Sheets.RawTable),
		slog.String("dedup_driver", cfg.Database.Driver),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Dedup store
	var store dedup.Store
	switch cfg.Database.Driver {
	case "postgres":
		connString := cfg.Database.Postgres.ConnString()

		slog.Info("Running database migrations")
		m, err := migrate.New("file://"+*migrationsPath, connString)
		if err != nil {
			log.Fatalf("Failed to initialize migrations: %v", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pgStore, err := dedup.NewPostgresStore(ctx, connString)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to dedup store: %v", err)
		}
		store = pgStore
	case "memory":
		log.Println("WARNING: in-memory dedup store loses state on restart")
		store = dedup.NewMemoryStore()
	default:
		log.Fatalf("Unknown database driver: %s (supported: postgres, memory)", cfg.Database.Driver)
	}
	defer store.Close()

	// Rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Redis.Enabled && cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			log.Printf("WARNING: Failed to initialize Redis rate limiter: %v", err)
			log.Println("Continuing without rate limiting")
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			log.Printf("Rate limiting enabled: %d requests per %s", cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
	}
	defer rateLimiter.Close()

	// Dead Letter Queue
	var dlqWriter dlq.Writer
	if cfg.DLQ.Enabled {
		switch cfg.DLQ.Backend {
		case "jetstream", "":
			jsDLQ, err := dlq.NewJetStreamQueue(context.Background(), cfg.DLQ.NatsURL)
			if err != nil {
				log.Fatalf("Failed to initialize JetStream DLQ: %v", err)
			}
			defer jsDLQ.Close()
			dlqWriter = jsDLQ
			log.Printf("Dead Letter Queue enabled (backend: jetstream, nats: %s)", cfg.DLQ.NatsURL)
		case "file":
			fileDLQ, err := dlq.NewFileQueue(cfg.DLQ.Path)
			if err != nil {
				log.Fatalf("Failed to initialize file DLQ: %v", err)
			}
			dlqWriter = fileDLQ
			log.Printf("Dead Letter Queue enabled (backend: file, path: %s)", cfg.DLQ.Path)
			log.Println("WARNING: File-based DLQ does not support multiple relay instances")
		default:
			log.Fatalf("Unknown DLQ backend: %s (supported: jetstream, file)", cfg.DLQ.Backend)
		}
	} else {
		dlqWriter = dlq.NoopWriter{}
		log.Println("Dead Letter Queue disabled")
	}

	// Sheet bridge client
	bridge := sheetclient.New(sheetclient.Config{
		BaseURL: cfg.Sheets.URL,
		Token:   cfg.Sheets.Token,
		Timeout: cfg.Sheets.RemoteTimeout,
	})

	// Accept path
	ingress := service.NewIngress(store, cfg.Webhook.Campaigns, cfg.Ingestion.QueueCapacity, logger)
	if len(cfg.Webhook.Campaigns) > 0 {
		log.Printf("Campaign filtering enabled: %v", cfg.Webhook.Campaigns)
	}

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	batchWriter := writer.New(bridge, dlqWriter, writer.Config{
		Table:            cfg.Sheets.RawTable,
		BatchSize:        cfg.Batch.Size,
		FlushInterval:    cfg.Batch.FlushInterval,
		RetryMaxAttempts: cfg.Batch.RetryMaxAttempts,
		RetryMaxBackoff:  cfg.Batch.RetryMaxBackoff,
	}, logger)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		batchWriter.Run(workerCtx, ingress.Queue())
	}()

	cache := realtime.NewCache()
	refresher := realtime.NewRefresher(cache, bridge, cfg.Sheets.RealtimeTable, cfg.Sheets.RefreshInterval, logger)
	workers.Add(1)
	go func() {
		defer workers.Done()
		refresher.Run(workerCtx)
	}()

	builder := mapping.NewBuilder(bridge, cache, mapping.Config{
		RawTable:    cfg.Sheets.RawTable,
		MapTable:    cfg.Sheets.MapTable,
		CountsTable: cfg.Sheets.CountsTable,
		WindowDays:  cfg.Rebuild.WindowDays,
		Campaigns:   cfg.Webhook.Campaigns,
	}, logger)

	// HTTP surface
	webhookHandler := handlers.NewWebhookHandler(ingress, rateLimiter, cache, store, cfg.Webhook.Secret, logger)
	adminHandler := handlers.NewAdminHandler(builder, cfg.Webhook.AdminSecret, logger)
	router := server.NewRouter(webhookHandler, adminHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Call relay listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown: stop accepting webhooks, let the writer drain
	// the queue, then stop the background workers.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	ingress.CloseQueue()

	select {
	case <-writerDone:
		log.Println("Queue drained")
	case <-time.After(cfg.Server.ShutdownGrace):
		log.Println("WARNING: shutdown grace expired before queue drained")
	}

	stopWorkers()
	workers.Wait()

	log.Println("Server stopped")
}
