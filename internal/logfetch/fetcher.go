// Package logfetch implements the adaptive Transfer-log fetcher. Block-range
// sizing converges on a target duration and target log count per request,
// bounded by the provider tier's hard range cap, and the learned density is
// persisted to accelerate future cold starts.
package logfetch

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/rpc"
)

// TransferTopic is keccak256 of Transfer(address,address,uint256), the topic0
// filter for ERC-20 transfer discovery.
var TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// providerLogCap is the hard per-request log limit (Alchemy returns at most
// 10,000 logs and errors beyond it).
const providerLogCap = 10000

// densitySaveEvery controls how often the single density row is rewritten.
const densitySaveEvery = 25

// rangedErrRe matches provider errors that suggest an acceptable block range,
// e.g. "query returned more than 10000 results. Try with this block range
// [0x3b9aca00, 0x3b9acb00]".
var rangedErrRe = regexp.MustCompile(`\[0x([0-9a-fA-F]+),\s*0x([0-9a-fA-F]+)\]`)

// Fetcher drives adaptive getLogs over one network.
type Fetcher struct {
	network chains.Network
	client  *rpc.Client
	store   DensityStore
	logger  *slog.Logger

	tier    chains.Tier
	profile Profile
	tracker *densityTracker

	batchSize        uint64
	dynamicallyTuned bool
	originalInitial  uint64
	sinceSave        int
}

// New creates a fetcher. Init must run before FetchRange.
func New(network chains.Network, client *rpc.Client, store DensityStore, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		network: network,
		client:  client,
		store:   store,
		logger:  logger.With(slog.String("network", network.Name)),
	}
}

// Init detects the provider tier, resolves the (activity, tier) profile, and
// applies the persisted density override when its confidence suffices.
func (f *Fetcher) Init(ctx context.Context) error {
	f.tier = f.detectTier(ctx)
	f.profile = ProfileFor(f.network.Activity, f.tier)
	f.batchSize = f.profile.InitialBatchSize
	f.originalInitial = f.profile.InitialBatchSize

	stats, err := f.store.Get(ctx, f.network.Name)
	if err != nil {
		f.logger.Warn("density stats unavailable, cold starting",
			slog.String("error", err.Error()))
	}
	f.tracker = newDensityTracker(f.network.Name, f.profile.Name, stats)

	if f.tracker.confident() {
		learned := f.clampRange(f.tracker.learnedBatch())
		if learned > 0 {
			f.batchSize = learned
			f.dynamicallyTuned = true
		}
	}

	f.logger.Info("log fetcher initialized",
		slog.String("tier", string(f.tier)),
		slog.String("profile", f.profile.Name),
		slog.Uint64("initial_batch", f.batchSize),
		slog.Bool("dynamically_tuned", f.dynamicallyTuned),
	)
	return nil
}

// Tier returns the detected provider tier.
func (f *Fetcher) Tier() chains.Tier { return f.tier }

// BatchSize returns the current working block-range size.
func (f *Fetcher) BatchSize() uint64 { return f.batchSize }

// detectTier probes getLogs with descending range sizes: a 2000-block range
// succeeding means premium, 100 blocks means growth, 11 means payg,
// otherwise free.
func (f *Fetcher) detectTier(ctx context.Context) chains.Tier {
	head, err := f.client.BlockNumber(ctx)
	if err != nil || head < 200 {
		return chains.TierFree
	}
	probe := func(blocks uint64) bool {
		_, err := f.client.Logs(ctx, rpc.LogFilter{
			FromBlock: head - blocks + 1,
			ToBlock:   head,
			Topics:    [][]common.Hash{{TransferTopic}},
		})
		return err == nil
	}
	if head >= 2000 && probe(2000) {
		return chains.TierPremium
	}
	if probe(100) {
		return chains.TierGrowth
	}
	if probe(11) {
		return chains.TierPayg
	}
	return chains.TierFree
}

// FetchRange streams all logs matching topics in [from, to] to handle, in
// ascending (blockNumber, logIndex) order per request. handle errors abort
// the fetch.
func (f *Fetcher) FetchRange(ctx context.Context, from, to uint64, topics [][]common.Hash, handle func(logs []types.Log) error) error {
	cursor := from
	for cursor <= to {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		size := f.clampRange(f.batchSize)
		end := cursor + size - 1
		if end > to {
			end = to
		}
		blocks := end - cursor + 1

		start := time.Now()
		logs, err := f.client.Logs(ctx, rpc.LogFilter{
			FromBlock: cursor,
			ToBlock:   end,
			Topics:    topics,
		})
		elapsed := time.Since(start)

		if err != nil {
			if suggested, ok := parseSuggestedRange(err); ok {
				f.batchSize = f.clampRange(suggested)
				f.logger.Debug("provider suggested range",
					slog.Uint64("blocks", f.batchSize))
				continue
			}
			if isRangedError(err) {
				f.shrink(blocks)
				continue
			}
			return err
		}

		if err := handle(logs); err != nil {
			return err
		}

		inBand := elapsed <= f.profile.SlowResponse && len(logs) <= f.profile.TargetLogsPerRequest
		f.tracker.record(blocks, len(logs), inBand)
		f.adjust(blocks, len(logs), elapsed)
		f.maybePersist(ctx)

		cursor = end + 1
	}
	return nil
}

// adjust recomputes the next block range from the observed duration and
// log count.
func (f *Fetcher) adjust(blocks uint64, logCount int, elapsed time.Duration) {
	var factor float64
	switch {
	case logCount >= providerLogCap:
		// At the provider's hard cap the range must come down regardless of
		// how fast the response was.
		factor = f.profile.SlowMultiplier
	case elapsed < f.profile.FastResponse && logCount < f.profile.TargetLogsPerRequest/2:
		factor = f.profile.FastMultiplier
	case elapsed > f.profile.SlowResponse || logCount > f.profile.TargetLogsPerRequest:
		factor = f.profile.SlowMultiplier
	default:
		factor = 1
	}
	next := uint64(math.Round(float64(blocks) * factor))
	f.batchSize = f.clampRange(next)
}

func (f *Fetcher) shrink(blocks uint64) {
	next := uint64(math.Round(float64(blocks) * f.profile.SlowMultiplier))
	f.batchSize = f.clampRange(next)
}

// clampRange bounds a batch size to [min, min(max, tierCap)].
func (f *Fetcher) clampRange(size uint64) uint64 {
	upper := f.profile.MaxBatchSize
	if tc := f.network.TierCap(f.tier); tc > 0 && tc < upper {
		upper = tc
	}
	if size > upper {
		return upper
	}
	if size < f.profile.MinBatchSize {
		return f.profile.MinBatchSize
	}
	return size
}

func (f *Fetcher) maybePersist(ctx context.Context) {
	f.sinceSave++
	if f.sinceSave < densitySaveEvery {
		return
	}
	f.sinceSave = 0
	if err := f.store.Save(ctx, f.tracker.snapshot()); err != nil {
		f.logger.Warn("failed to persist density stats",
			slog.String("error", err.Error()))
	}
}

// Flush persists the density snapshot immediately.
func (f *Fetcher) Flush(ctx context.Context) error {
	return f.store.Save(ctx, f.tracker.snapshot())
}

func isRangedError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "query returned more than") ||
		strings.Contains(msg, "block range") ||
		strings.Contains(msg, "response size exceeded")
}

// parseSuggestedRange extracts the provider's acceptable block range from a
// ranged error message.
func parseSuggestedRange(err error) (uint64, bool) {
	m := rangedErrRe.FindStringSubmatch(err.Error())
	if len(m) != 3 {
		return 0, false
	}
	lo, err1 := strconv.ParseUint(m[1], 16, 64)
	hi, err2 := strconv.ParseUint(m[2], 16, 64)
	if err1 != nil || err2 != nil || hi < lo {
		return 0, false
	}
	return hi - lo + 1, true
}
