/*
main.go - One-shot late-fee sweep

PURPOSE:
  Runs a single late-fee sweep and exits. For deployments that schedule
  the sweep from an external cron instead of the server's scheduler.
  Rerunning for the same date creates no duplicate charges.

COMMAND-LINE FLAGS:
  -config  Path to a config file (same settings as the server)
  -as-of   Sweep date, YYYY-MM-DD (default: today)

EXIT CODES:
  0  sweep completed, every obligation evaluated
  1  sweep could not run
  2  sweep completed with per-obligation failures

EXAMPLES:
  ./sweep -as-of=2024-03-10
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/billing"
	"github.com/wdeanegpt/property-sub001/config"
	"github.com/wdeanegpt/property-sub001/events"
	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/lock"
	"github.com/wdeanegpt/property-sub001/logger"
	"github.com/wdeanegpt/property-sub001/store/sqlstore"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	asOfFlag := flag.String("as-of", "", "sweep date (YYYY-MM-DD), default today")
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

	asOf := ledger.DateOf(time.Now())
	if *asOfFlag != "" {
		if asOf, err = ledger.ParseDate(*asOfFlag); err != nil {
			log.Error("invalid -as-of", zap.String("value", *asOfFlag), zap.Error(err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := sweep(ctx, cfg, log, asOf)
	if err != nil {
		log.Error("sweep failed", zap.String("as_of", asOf.String()), zap.Error(err))
		os.Exit(1)
	}
	for _, f := range res.Failures {
		log.Warn("obligation not evaluated", zap.String("obligation_id", string(f.ObligationID)), zap.Error(f.Err))
	}
	if len(res.Failures) > 0 {
		os.Exit(2)
	}
}

func sweep(ctx context.Context, cfg *config.Config, log *zap.Logger, asOf ledger.Date) (billing.SweepResult, error) {
	dialect, err := sqlstore.DialectFor(cfg.Database.Driver)
	if err != nil {
		return billing.SweepResult{}, err
	}
	store, err := sqlstore.Open(dialect, cfg.Database.DSN, log)
	if err != nil {
		return billing.SweepResult{}, err
	}
	defer store.Close()

	// A sweep alongside a running server must share its locks.
	var locker ledger.Locker = lock.NewLocal()
	if cfg.Lock.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		locker = lock.NewRedis(rdb, lock.RedisConfig{
			Prefix:     "ledger:lock:",
			TTL:        cfg.Lock.TTL,
			RetryEvery: cfg.Lock.Backoff,
			MaxRetries: cfg.Lock.Retries,
		}, log)
	}

	var publisher ledger.Publisher = events.NewLogPublisher(log)
	if cfg.Events.Sink == "kafka" {
		p := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		defer p.Close()
		publisher = p
	}

	sweeper := billing.NewSweeper(store,
		billing.WithLocker(locker),
		billing.WithPublisher(publisher),
		billing.WithLogger(log))
	return sweeper.Sweep(ctx, asOf)
}
