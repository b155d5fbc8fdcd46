// Package main is the entry point for the fund refresh daemon.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainscope/chainscope/internal/batchread"
	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/config"
	"github.com/chainscope/chainscope/internal/database"
	"github.com/chainscope/chainscope/internal/funds"
	"github.com/chainscope/chainscope/internal/optimizer"
	"github.com/chainscope/chainscope/internal/prices"
	"github.com/chainscope/chainscope/internal/repository"
	"github.com/chainscope/chainscope/internal/rpc"
	"github.com/chainscope/chainscope/internal/scheduler"
)

// cycleInterval is how often stale holders are re-checked. Staleness itself
// is governed by the configured fund update delay.
const cycleInterval = time.Hour

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	pool := db.Pool()
	addrRepo := repository.NewAddressRepository(pool)
	priceRepo := repository.NewPriceRepository(pool)
	optRepo := repository.NewOptimizerRepository(pool)

	sched := scheduler.New(scheduler.DefaultOptions(), logger)
	defer sched.Close()
	states := rpc.NewEndpointStates(logger)

	priceCache := prices.NewCache(priceRepo)

	networks := cfg.Indexer.Networks
	if len(networks) == 0 {
		networks = chains.Names()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := priceCache.Load(ctx); err != nil {
			logger.Error("price cache load failed", slog.String("error", err.Error()))
		}
		logger.Info("fund update cycle starting", slog.Int("symbols", priceCache.Len()))

		g, gctx := errgroup.WithContext(ctx)
		for _, name := range networks {
			name := name
			g.Go(func() error {
				if err := runNetwork(gctx, name, cfg, sched, states, addrRepo, optRepo, priceCache, logger); err != nil {
					logger.Error("fund update failed",
						slog.String("network", name),
						slog.String("error", err.Error()))
				}
				return nil
			})
		}
		_ = g.Wait()

		select {
		case <-time.After(cycleInterval):
		case <-ctx.Done():
			logger.Info("Fund updater stopped gracefully")
			return
		}
	}
}

func runNetwork(
	ctx context.Context,
	name string,
	cfg *config.Config,
	sched *scheduler.Scheduler,
	states *rpc.EndpointStates,
	addrRepo repository.AddressRepository,
	optRepo repository.OptimizerRepository,
	priceCache *prices.Cache,
	logger *slog.Logger,
) error {
	network, err := chains.Get(name)
	if err != nil {
		return err
	}
	tokens, err := chains.LoadTokens(cfg.Indexer.TokensDir, name)
	if err != nil {
		return err
	}

	url := network.RPCURLs[0]
	if cfg.Provider.UseProxy && cfg.Provider.ProxyURL != "" {
		url = cfg.Provider.ProxyURL + "/" + name
	}
	provider := rpc.NewProviderClient(name, url, states, sched.RPC, logger, rpc.Options{
		CallTimeout: cfg.Indexer.RPCTimeout,
	})

	optimizers := make(map[optimizer.Operation]*optimizer.Optimizer)
	for _, op := range []optimizer.Operation{optimizer.OpNativeBalance, optimizer.OpERC20} {
		session, err := optRepo.Load(ctx, name, string(op))
		if err != nil {
			logger.Warn("optimizer session unavailable, cold starting",
				slog.String("network", name),
				slog.String("operation", string(op)))
		}
		optimizers[op] = optimizer.New(name, op, session)
	}

	engine := batchread.New(network, provider, optimizers, logger)
	updater := funds.NewUpdater(network, engine, priceCache, addrRepo, tokens,
		cfg.Indexer.FundUpdateDelay, cfg.Indexer.FundCapUSD, logger)

	updated, err := updater.Run(ctx)

	for _, opt := range optimizers {
		if saveErr := optRepo.Save(ctx, opt.Snapshot()); saveErr != nil {
			logger.Warn("optimizer snapshot failed", slog.String("error", saveErr.Error()))
		}
	}

	logger.Info("fund update complete",
		slog.String("network", name),
		slog.Int("updated", updated))
	return err
}
