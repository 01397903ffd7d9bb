// Command appserver is the kernel's process entrypoint: it loads
// configuration, brings up storage and the distributed lock backend, wires
// every kernel service and background worker through internal/app, and runs
// until an interrupt or SIGTERM asks it to shut down gracefully.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"

	"github.com/hustlexp/core/internal/app"
	"github.com/hustlexp/core/internal/config"
	"github.com/hustlexp/core/internal/platform/database"
	"github.com/hustlexp/core/internal/platform/eventbus"
	"github.com/hustlexp/core/internal/platform/migrations"
	"github.com/hustlexp/core/internal/provider/sandbox"
	"github.com/hustlexp/core/internal/storage/memory"
	"github.com/hustlexp/core/internal/storage/postgres"
	"github.com/hustlexp/core/pkg/logger"
)

// shutdownTimeout bounds how long graceful shutdown waits for in-flight
// worker ticks and the reaper's current sweep to finish.
const shutdownTimeout = 30 * time.Second

func main() {
	dsnFlag := flag.String("dsn", "", "Postgres DSN; overrides DATABASE_URL and the config file")
	memoryFlag := flag.Bool("memory", false, "run against in-memory stores and sandbox collaborators instead of Postgres")
	flag.Parse()

	cfg, err := loadConfig(*dsnFlag, *memoryFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	application, cleanup, err := build(cfg, log, *memoryFlag)
	if err != nil {
		log.WithError(err).Error("failed to build application")
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start application")
		os.Exit(1)
	}
	log.WithComponent("appserver").Info("appserver started")

	<-ctx.Done()
	log.WithComponent("appserver").Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("error during shutdown")
	}
}

// loadConfig layers the --dsn flag over config.Load's own
// file-then-environment precedence. In memory mode, a config that fails
// Validate (missing DATABASE_URL/PAYMENT_PROVIDER_KEY) falls back to
// defaults instead of failing, since neither is needed without Postgres or
// a real payment provider.
func loadConfig(dsnFlag string, memoryMode bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		if !memoryMode {
			return nil, err
		}
		cfg = config.New()
	}
	if d := strings.TrimSpace(dsnFlag); d != "" {
		cfg.Database.DSN = d
	}
	return cfg, nil
}

// build constructs the Application and a cleanup function that releases
// whatever external resources build opened, in reverse order, regardless of
// where construction stopped.
func build(cfg *config.Config, log *logger.Logger, memoryMode bool) (*app.Application, func(), error) {
	collab := app.Collaborators{
		Payment: sandbox.NewPaymentProvider(),
		Objects: sandbox.ObjectStore{},
		Push:    sandbox.NewPushGateway(),
	}

	if memoryMode {
		store := memory.New()
		application := app.New(cfg, log, app.Store{
			Users: store, Tasks: store, Money: store, Proofs: store,
			Ledger: store, Outbox: store, Corrections: store, Flags: store, Audit: store,
		}, nil, nil, nil, collab)
		return application, func() {}, nil
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.WithError(err).Warn("cleanup: resource close failed")
			}
		}
	}

	if strings.TrimSpace(cfg.Provider.PaymentProviderKey) == "" {
		log.Warn("no PAYMENT_PROVIDER_KEY configured; using the sandbox payment provider")
	}

	db, err := database.Open(context.Background(), cfg.Database.DSN, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifeSecs) * time.Second,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("open database: %w", err)
	}
	closers = append(closers, db.Close)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(db); err != nil {
			return nil, cleanup, fmt.Errorf("apply migrations: %w", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closers = append(closers, redisClient.Close)

	bus := eventbus.New(cfg.Database.DSN, func(pq.ListenerEventType, error) {})
	closers = append(closers, bus.Close)

	store := postgres.New(db)

	application := app.New(cfg, log, app.Store{
		Users: store, Tasks: store, Money: store, Proofs: store,
		Ledger: store, Outbox: store, Corrections: store, Flags: store, Audit: store,
	}, db, redisClient, bus, collab)

	return application, cleanup, nil
}
