// Package main is the entry point for the one-shot revalidation runs.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/chainscope/chainscope/internal/batchread"
	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/config"
	"github.com/chainscope/chainscope/internal/database"
	"github.com/chainscope/chainscope/internal/deployment"
	"github.com/chainscope/chainscope/internal/explorer"
	"github.com/chainscope/chainscope/internal/optimizer"
	"github.com/chainscope/chainscope/internal/repository"
	"github.com/chainscope/chainscope/internal/revalidate"
	"github.com/chainscope/chainscope/internal/rpc"
	"github.com/chainscope/chainscope/internal/scheduler"
)

func main() {
	// Deferred cleanup lives in run so os.Exit cannot skip it.
	os.Exit(run())
}

func run() int {
	modeFlag := flag.String("mode", "standard", "revalidation mode: standard or recent")
	flag.Parse()

	var mode revalidate.Mode
	switch *modeFlag {
	case "standard":
		mode = revalidate.ModeStandard
	case "recent":
		mode = revalidate.ModeRecent
	default:
		log.Fatalf("Unknown mode %q", *modeFlag)
	}

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
	logger.Info("Connected to PostgreSQL", slog.String("mode", string(mode)))

	pool := db.Pool()
	addrRepo := repository.NewAddressRepository(pool)
	optRepo := repository.NewOptimizerRepository(pool)

	sched := scheduler.New(scheduler.DefaultOptions(), logger)
	defer sched.Close()
	states := rpc.NewEndpointStates(logger)

	networks := cfg.Indexer.Networks
	if len(networks) == 0 {
		networks = chains.Names()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var failed atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range networks {
		name := name
		g.Go(func() error {
			visited, err := runNetwork(gctx, name, mode, cfg, sched, states, addrRepo, optRepo, logger)
			if err != nil {
				logger.Error("revalidation failed",
					slog.String("network", name),
					slog.String("error", err.Error()))
				failed.Store(true)
				return nil
			}
			logger.Info("revalidation complete",
				slog.String("network", name),
				slog.Int("visited", visited))
			return nil
		})
	}
	_ = g.Wait()

	// Revalidation is what fills contract names in, so the distinct-name
	// view is refreshed here rather than on the serving path.
	if err := db.RefreshDistinctContracts(ctx); err != nil {
		logger.Warn("failed to refresh distinct contracts view",
			slog.String("error", err.Error()))
	}

	if failed.Load() {
		return 1
	}
	return 0
}

func runNetwork(
	ctx context.Context,
	name string,
	mode revalidate.Mode,
	cfg *config.Config,
	sched *scheduler.Scheduler,
	states *rpc.EndpointStates,
	addrRepo repository.AddressRepository,
	optRepo repository.OptimizerRepository,
	logger *slog.Logger,
) (int, error) {
	network, err := chains.Get(name)
	if err != nil {
		return 0, err
	}

	opts := rpc.Options{CallTimeout: cfg.Indexer.RPCTimeout}
	nodeClient := rpc.NewClient(name, network.RPCURLs, states, sched.RPC, logger, opts)

	url := network.RPCURLs[0]
	if cfg.Provider.UseProxy && cfg.Provider.ProxyURL != "" {
		url = cfg.Provider.ProxyURL + "/" + name
	}
	provider := rpc.NewProviderClient(name, url, states, sched.RPC, logger, opts)

	exp := explorer.New(network, cfg.Explorer.APIKeys, cfg.Explorer.ProxyURL,
		cfg.Explorer.UseProxy, sched.Explorer, logger)

	optimizers := make(map[optimizer.Operation]*optimizer.Optimizer)
	for _, op := range []optimizer.Operation{optimizer.OpContractCheck, optimizer.OpCodeHash} {
		session, err := optRepo.Load(ctx, name, string(op))
		if err != nil {
			logger.Warn("optimizer session unavailable, cold starting",
				slog.String("network", name),
				slog.String("operation", string(op)))
		}
		optimizers[op] = optimizer.New(name, op, session)
	}

	engine := batchread.New(network, provider, optimizers, logger)
	resolver := deployment.NewResolver(network, exp, nodeClient, logger)
	rv := revalidate.New(network, engine, resolver, exp, addrRepo, cfg.Indexer.RecentDays, logger)

	visited, err := rv.Run(ctx, mode)

	for _, opt := range optimizers {
		if saveErr := optRepo.Save(ctx, opt.Snapshot()); saveErr != nil {
			logger.Warn("optimizer snapshot failed", slog.String("error", saveErr.Error()))
		}
	}
	return visited, err
}
