// Package main is the entry point for the indexing daemon.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainscope/chainscope/internal/config"
	"github.com/chainscope/chainscope/internal/database"
	"github.com/chainscope/chainscope/internal/repository"
	"github.com/chainscope/chainscope/internal/rpc"
	"github.com/chainscope/chainscope/internal/scanner"
	"github.com/chainscope/chainscope/internal/scheduler"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting indexer",
		slog.Any("networks", cfg.Indexer.Networks),
		slog.Duration("time_delay", cfg.Indexer.TimeDelay),
	)

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	var redis *database.Redis
	if cfg.Redis.Enabled {
		redis, err = database.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, count cache disabled", slog.String("error", err.Error()))
		} else {
			defer redis.Close()
			logger.Info("Connected to Redis")
		}
	}

	sched := scheduler.New(scheduler.DefaultOptions(), logger)
	defer sched.Close()

	pool := db.Pool()
	deps := scanner.Deps{
		Scheduler: sched,
		States:    rpc.NewEndpointStates(logger),
		Addrs:     repository.NewAddressRepository(pool),
		Counts:    repository.NewCountRepository(pool, redis, logger),
		Density:   repository.NewDensityRepository(pool),
		Optimizer: repository.NewOptimizerRepository(pool),
		Logger:    logger,
	}

	s, err := scanner.New(cfg, deps)
	if err != nil {
		log.Fatalf("Failed to build scanner: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Scanner error: %v", err)
	}

	logger.Info("Indexer stopped gracefully")
}
