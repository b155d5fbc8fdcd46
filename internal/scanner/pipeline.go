package scanner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainscope/chainscope/internal/batchread"
	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/config"
	"github.com/chainscope/chainscope/internal/deployment"
	"github.com/chainscope/chainscope/internal/explorer"
	"github.com/chainscope/chainscope/internal/logfetch"
	"github.com/chainscope/chainscope/internal/middleware"
	"github.com/chainscope/chainscope/internal/models"
	"github.com/chainscope/chainscope/internal/optimizer"
	"github.com/chainscope/chainscope/internal/pkg/ulid"
	"github.com/chainscope/chainscope/internal/repository"
	"github.com/chainscope/chainscope/internal/rpc"
	"github.com/chainscope/chainscope/internal/scheduler"
)

// classifyBatchSize bounds how many newly discovered addresses one
// classification pass hands to the batch-read engine.
const classifyBatchSize = 500

// Pipeline runs the discovery-to-enrichment flow for one network.
type Pipeline struct {
	network    chains.Network
	nodeClient *rpc.Client
	provider   *rpc.Client
	fetcher    *logfetch.Fetcher
	engine     *batchread.Engine
	resolver   *deployment.Resolver
	optimizers map[optimizer.Operation]*optimizer.Optimizer

	addrs   repository.AddressRepository
	counts  repository.CountRepository
	optRepo repository.OptimizerRepository
	logger  *slog.Logger
	cfg     config.IndexerConfig

	initialized bool
}

// Deps bundles the process-wide collaborators shared by every pipeline.
type Deps struct {
	Scheduler *scheduler.Scheduler
	States    *rpc.EndpointStates
	Addrs     repository.AddressRepository
	Counts    repository.CountRepository
	Density   repository.DensityRepository
	Optimizer repository.OptimizerRepository
	Logger    *slog.Logger
}

// NewPipeline wires one network's clients, fetcher, engine and resolver.
func NewPipeline(network chains.Network, cfg *config.Config, deps Deps) *Pipeline {
	opts := rpc.Options{
		CallTimeout: cfg.Indexer.RPCTimeout,
		WallCap:     cfg.Indexer.GetLogsTimeout,
	}
	nodeClient := rpc.NewClient(network.Name, network.RPCURLs, deps.States, deps.Scheduler.RPC, deps.Logger, opts)
	provider := rpc.NewProviderClient(network.Name, providerURL(network, cfg.Provider), deps.States, deps.Scheduler.RPC, deps.Logger, opts)

	exp := explorer.New(network, cfg.Explorer.APIKeys, cfg.Explorer.ProxyURL, cfg.Explorer.UseProxy, deps.Scheduler.Explorer, deps.Logger)

	optimizers := make(map[optimizer.Operation]*optimizer.Optimizer)
	engine := batchread.New(network, provider, optimizers, deps.Logger)

	return &Pipeline{
		network:    network,
		nodeClient: nodeClient,
		provider:   provider,
		fetcher:    logfetch.New(network, provider, deps.Density, deps.Logger),
		engine:     engine,
		resolver:   deployment.NewResolver(network, exp, nodeClient, deps.Logger),
		optimizers: optimizers,
		addrs:      deps.Addrs,
		counts:     deps.Counts,
		optRepo:    deps.Optimizer,
		logger:     deps.Logger.With(slog.String("network", network.Name)),
		cfg:        cfg.Indexer,
	}
}

// providerURL resolves the canonical provider endpoint: the local proxy when
// enabled, otherwise the first configured node URL.
func providerURL(network chains.Network, cfg config.ProviderConfig) string {
	if cfg.UseProxy && cfg.ProxyURL != "" {
		return cfg.ProxyURL + "/" + network.Name
	}
	return network.RPCURLs[0]
}

// init loads persisted learner state and probes the provider tier. Runs once
// per process; repeated cycles reuse the warmed state.
func (p *Pipeline) init(ctx context.Context) error {
	if p.initialized {
		return nil
	}
	for _, op := range []optimizer.Operation{
		optimizer.OpContractCheck,
		optimizer.OpCodeHash,
		optimizer.OpNativeBalance,
		optimizer.OpERC20,
	} {
		session, err := p.optRepo.Load(ctx, p.network.Name, string(op))
		if err != nil {
			p.logger.Warn("optimizer session unavailable, cold starting",
				slog.String("operation", string(op)),
				slog.String("error", err.Error()))
		}
		p.optimizers[op] = optimizer.New(p.network.Name, op, session)
	}
	if err := p.fetcher.Init(ctx); err != nil {
		return err
	}
	p.initialized = true
	return nil
}

// RunCycle performs one full scan: fetch Transfer logs over the lookback
// window, record discoveries, classify them, and resolve deployment data for
// new contracts.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	if err := p.init(ctx); err != nil {
		return err
	}

	runID := ulid.New()
	logger := p.logger.With(slog.String("run_id", runID))
	start := time.Now()

	head, err := p.provider.BlockNumber(ctx)
	if err != nil {
		return err
	}
	from := uint64(0)
	if head > p.cfg.LookbackBlocks {
		from = head - p.cfg.LookbackBlocks
	}

	logger.Info("scan cycle starting",
		slog.Uint64("from", from),
		slog.Uint64("to", head),
		slog.Uint64("batch_size", p.fetcher.BatchSize()),
	)

	wd := newWatchdog(p.cfg.GetLogsTimeout, func() {
		middleware.RecordForcedRotation(p.network.Name)
		p.provider.ForceNextRPC()
	})
	defer wd.stop()

	clock := newBlockClock(func(ctx context.Context, number uint64) (int64, error) {
		block, err := p.provider.BlockByNumber(ctx, number)
		if err != nil {
			return 0, err
		}
		if block == nil {
			return 0, nil
		}
		return int64(block.Timestamp), nil
	})

	seen := make(map[string]struct{})
	var discovered []string
	discoveredAt := make(map[string]int64)
	fallback := time.Now().Unix()

	err = p.fetcher.FetchRange(ctx, from, head, [][]common.Hash{{logfetch.TransferTopic}},
		func(logs []types.Log) error {
			wd.reset()
			middleware.RecordLogsFetched(p.network.Name, len(logs))
			if len(logs) == 0 {
				return nil
			}
			// first_seen is the chain timestamp of the window the Transfer
			// appeared in, not the wall clock of this cycle.
			ts := clock.at(ctx, logs[0].BlockNumber, fallback)
			batch := make([]*models.Address, 0, len(logs)*2)
			for _, addr := range touchedAddresses(logs) {
				if _, ok := seen[addr]; ok {
					continue
				}
				seen[addr] = struct{}{}
				discovered = append(discovered, addr)
				discoveredAt[addr] = ts
				batch = append(batch, models.NewAddress(addr, p.network.Name, time.Unix(ts, 0)))
			}
			middleware.RecordDiscoveries(p.network.Name, len(batch))
			return p.addrs.UpsertBatch(ctx, batch)
		})
	if err != nil {
		return err
	}
	wd.stop()

	logger.Info("log fetch complete",
		slog.Int("addresses", len(discovered)),
		slog.Duration("elapsed", time.Since(start)),
	)

	if err := p.classify(ctx, discovered, discoveredAt); err != nil {
		return err
	}

	p.persistLearnerState(ctx)
	if _, err := p.counts.RecountNetwork(ctx, p.network.Name); err != nil {
		logger.Warn("network recount failed", slog.String("error", err.Error()))
	}

	logger.Info("scan cycle complete", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// classify tags each discovery EOA or Contract, attaches code hashes, and
// resolves deployment timestamps for the contracts.
func (p *Pipeline) classify(ctx context.Context, discovered []string, discoveredAt map[string]int64) error {
	for start := 0; start < len(discovered); start += classifyBatchSize {
		end := start + classifyBatchSize
		if end > len(discovered) {
			end = len(discovered)
		}
		if err := p.classifyBatch(ctx, discovered[start:end], discoveredAt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) classifyBatch(ctx context.Context, batch []string, discoveredAt map[string]int64) error {
	addrs := make([]common.Address, len(batch))
	for i, a := range batch {
		addrs[i] = common.HexToAddress(a)
	}

	hashes, unreadable, err := p.engine.CodeHashes(ctx, addrs)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	records := make([]*models.Address, len(batch))
	var contracts []string
	firstSeen := make(map[string]int64)

	for i, a := range batch {
		seenAt := discoveredAt[a]
		if seenAt == 0 {
			seenAt = now
		}
		rec := &models.Address{
			Address:     a,
			Network:     p.network.Name,
			FirstSeen:   seenAt,
			LastUpdated: now,
		}
		hash := hashes[i].Hex()
		switch {
		case unreadable[i]:
			// Failed read: leave the record untagged for the revalidator.
		case hash == (common.Hash{}).Hex() || hash == models.ZeroCodeHash:
			rec.SetTag(models.TagEOA)
		default:
			rec.SetTag(models.TagContract)
			rec.CodeHash = models.StringPtr(hash)
			contracts = append(contracts, a)
			firstSeen[a] = seenAt
		}
		records[i] = rec
	}

	if len(contracts) > 0 {
		creations, err := p.resolver.Resolve(ctx, contracts, firstSeen)
		if err != nil {
			p.logger.Warn("deployment resolution failed, deferring to revalidator",
				slog.String("error", err.Error()))
		} else {
			byAddr := make(map[string]models.ContractCreation, len(creations))
			for _, c := range creations {
				byAddr[c.Address] = c
			}
			for _, rec := range records {
				c, ok := byAddr[rec.Address]
				if !ok {
					continue
				}
				if c.IsEOA {
					rec.SetTag(models.TagEOA)
					rec.CodeHash = nil
					continue
				}
				if c.HasTimestamp() {
					rec.Deployed = models.Int64Ptr(c.DeploymentTimestamp)
				}
			}
		}
	}

	return p.addrs.UpsertBatch(ctx, records)
}

// persistLearnerState snapshots the optimizer sessions and density stats.
// Failures are logged, never fatal; the learners re-learn.
func (p *Pipeline) persistLearnerState(ctx context.Context) {
	for op, opt := range p.optimizers {
		if err := p.optRepo.Save(ctx, opt.Snapshot()); err != nil {
			p.logger.Warn("optimizer snapshot failed",
				slog.String("operation", string(op)),
				slog.String("error", err.Error()))
		}
	}
	if err := p.fetcher.Flush(ctx); err != nil {
		p.logger.Warn("density snapshot failed", slog.String("error", err.Error()))
	}
}

// touchedAddresses extracts the unique from/to of Transfer logs, in first-seen
// order. The zero address (mint and burn counterparty) is skipped.
func touchedAddresses(logs []types.Log) []string {
	var out []string
	seen := make(map[common.Address]struct{}, len(logs)*2)
	for _, l := range logs {
		if len(l.Topics) < 3 {
			continue
		}
		for _, topic := range l.Topics[1:3] {
			addr := common.BytesToAddress(topic.Bytes()[12:])
			if addr == (common.Address{}) {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, strings.ToLower(addr.Hex()))
		}
	}
	return out
}
