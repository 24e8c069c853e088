/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the property ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config file, .env, LEDGER_* environment)
  2. Build the zap logger
  3. Open the store (SQLite applies its schema, PostgreSQL migrates on request)
  4. Connect Redis when the lock or the receipt cache needs it
  5. Build the lock, the event publisher and the engine services
  6. Start the receipt worker and the sweep scheduler if enabled
  7. Start the HTTP server

COMMAND-LINE FLAGS:
  -config  Path to a config file (default: search ./, ./config, /etc/ledger)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the scheduler and the receipt worker
  4. Close publishers, queues, Redis and the database
  5. Exit

EXAMPLES:
  # Local development on SQLite
  ./server

  # PostgreSQL with Redis locks and Kafka events
  LEDGER_DATABASE_DRIVER=postgres \
  LEDGER_DATABASE_DSN="postgres://ledger@localhost/ledger?sslmode=disable" \
  LEDGER_DATABASE_MIGRATE=true \
  LEDGER_LOCK_BACKEND=redis LEDGER_REDIS_ADDR=localhost:6379 \
  LEDGER_EVENTS_SINK=kafka LEDGER_EVENTS_KAFKA_BROKERS=localhost:9092 \
  ./server

SEE ALSO:
  - config/config.go: Every setting and its default
  - api/server.go: Router configuration
  - cmd/sweep: One-shot sweep for an external cron
*/
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/api"
	"github.com/wdeanegpt/property-sub001/cache"
	"github.com/wdeanegpt/property-sub001/config"
	"github.com/wdeanegpt/property-sub001/events"
	"github.com/wdeanegpt/property-sub001/expense"
	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/lock"
	"github.com/wdeanegpt/property-sub001/logger"
	"github.com/wdeanegpt/property-sub001/queue"
	"github.com/wdeanegpt/property-sub001/store/sqlstore"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

// closers run in reverse order on shutdown.
type closers []func() error

func (c *closers) add(name string, fn func() error) {
	*c = append(*c, func() error {
		if err := fn(); err != nil {
			return fmt.Errorf("close %s: %w", name, err)
		}
		return nil
	})
}

func (c closers) closeAll(log *zap.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	var cleanup closers
	defer func() { cleanup.closeAll(log) }()

	// Store
	store, err := openStore(cfg.Database, log)
	if err != nil {
		return err
	}
	cleanup.add("database", store.Close)

	// Redis
	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanup.add("redis", rdb.Close)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	// Lock and events
	var locker ledger.Locker = lock.NewLocal()
	if cfg.Lock.Backend == "redis" {
		locker = lock.NewRedis(rdb, lock.RedisConfig{
			Prefix:     "ledger:lock:",
			TTL:        cfg.Lock.TTL,
			RetryEvery: cfg.Lock.Backoff,
			MaxRetries: cfg.Lock.Retries,
		}, log)
	}
	publisher, err := newPublisher(cfg.Events, log, &cleanup)
	if err != nil {
		return err
	}

	svc := api.NewServices(store, locker, publisher, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var workers sync.WaitGroup

	// Receipt worker
	if cfg.Receipts.Enabled {
		worker, err := newReceiptWorker(cfg.Receipts, store, rdb, log, &cleanup)
		if err != nil {
			return err
		}
		svc.Receipts = worker
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("receipt worker stopped", zap.Error(err))
			}
		}()
	}

	handler := api.NewHandler(svc, log)
	router := api.NewRouter(handler, api.RouterConfig{AllowedOrigins: cfg.CORS.AllowedOrigins})

	// Scheduler
	scheduler := api.NewSweepScheduler(svc.Sweeper, log)
	scheduler.CheckInterval = cfg.Sweep.Interval
	scheduler.Enabled = cfg.Sweep.Enabled
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Driver),
			zap.String("events", cfg.Events.Sink),
			zap.String("lock", cfg.Lock.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		scheduler.Stop()
		cancel()
		workers.Wait()
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	scheduler.Stop()
	cancel()
	workers.Wait()

	log.Info("server stopped")
	return nil
}

// openStore opens the configured database. PostgreSQL migrations run on a
// dedicated connection first since the migrator closes the pool it uses.
func openStore(cfg config.DatabaseConfig, log *zap.Logger) (*sqlstore.Store, error) {
	dialect, err := sqlstore.DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if dialect.Name == sqlstore.Postgres.Name && cfg.Migrate {
		db, err := sql.Open(dialect.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database for migration: %w", err)
		}
		if err := sqlstore.MigratePostgres(db, log); err != nil {
			return nil, err
		}
	}
	return sqlstore.Open(dialect, cfg.DSN, log)
}

func newPublisher(cfg config.EventsConfig, log *zap.Logger, cleanup *closers) (ledger.Publisher, error) {
	switch cfg.Sink {
	case "kafka":
		p := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		cleanup.add("kafka publisher", p.Close)
		return p, nil
	case "pubsub":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := pubsub.NewClient(context.Background(), cfg.PubSubProject)
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		cleanup.add("pubsub client", client.Close)
		p, err := events.NewPubSubPublisher(ctx, client, cfg.PubSubTopic)
		if err != nil {
			return nil, err
		}
		cleanup.add("pubsub publisher", p.Close)
		return p, nil
	case "none":
		return nil, nil
	default:
		return events.NewLogPublisher(log), nil
	}
}

func newReceiptWorker(cfg config.ReceiptsConfig, store ledger.TxStore, rdb *redis.Client, log *zap.Logger, cleanup *closers) (*expense.ReceiptWorker, error) {
	retry := queue.Retry{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.Backoff}

	var q queue.Queue
	if cfg.Queue == "kafka" {
		k, err := queue.NewKafka(queue.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
			Retry:   retry,
		}, log)
		if err != nil {
			return nil, err
		}
		q = k
	} else {
		q = queue.NewMemory(cfg.QueueSize, retry, log)
	}
	cleanup.add("receipt queue", q.Close)

	var processed cache.ProcessedStore
	switch cfg.Cache {
	case "redis":
		processed = cache.NewRedis(rdb, "ledger:receipt:", cfg.CacheTTL)
	case "memory":
		m := cache.NewMemory(cfg.CacheTTL)
		cleanup.add("receipt cache", m.Close)
		processed = m
	}

	extractor := expense.NewHTTPExtractor(cfg.ExtractorEndpoint, cfg.ExtractorTimeout)
	return expense.NewReceiptWorker(store, q, extractor, processed, log), nil
}
