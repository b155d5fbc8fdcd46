// Package funds computes aggregate USD holdings per address from native and
// curated ERC-20 balances combined with cached symbol prices.
package funds

import (
	"context"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/middleware"
	"github.com/chainscope/chainscope/internal/models"
	"github.com/chainscope/chainscope/internal/prices"
	"github.com/chainscope/chainscope/internal/repository"
)

const (
	// nativeDecimals applies to every supported chain's gas token.
	nativeDecimals = 18
	// defaultBatchLimit is how many stale holders one cycle pulls at a time.
	defaultBatchLimit = 500
)

// balanceReader is the slice of the batch-read engine the updater needs. The
// missing masks mark holders whose read failed and must not be persisted.
type balanceReader interface {
	NativeBalances(ctx context.Context, addrs []common.Address) ([]*big.Int, []bool, error)
	TokenBalances(ctx context.Context, holders, tokens []common.Address) ([]*big.Int, []bool, error)
}

// Updater refreshes the fund column for stale holders on one network.
type Updater struct {
	network chains.Network
	engine  balanceReader
	prices  *prices.Cache
	repo    repository.AddressRepository
	tokens  []models.TokenInfo
	logger  *slog.Logger

	updateDelay time.Duration
	capUSD      float64
	batchLimit  int
}

// NewUpdater creates a fund updater. tokens is the curated per-network token
// list; its decimals are authoritative and never read from chain.
func NewUpdater(
	network chains.Network,
	engine balanceReader,
	priceCache *prices.Cache,
	repo repository.AddressRepository,
	tokens []models.TokenInfo,
	updateDelay time.Duration,
	capUSD float64,
	logger *slog.Logger,
) *Updater {
	return &Updater{
		network:     network,
		engine:      engine,
		prices:      priceCache,
		repo:        repo,
		tokens:      tokens,
		logger:      logger.With(slog.String("network", network.Name)),
		updateDelay: updateDelay,
		capUSD:      capUSD,
		batchLimit:  defaultBatchLimit,
	}
}

// Run drains the stale-holder queue: every address whose last_fund_updated
// is older than the update delay gets a fresh fund. Returns the number of
// holders refreshed.
func (u *Updater) Run(ctx context.Context) (int, error) {
	staleBefore := time.Now().Add(-u.updateDelay).Unix()
	total := 0

	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		holders, err := u.repo.ListStaleFunds(ctx, u.network.Name, staleBefore, u.batchLimit)
		if err != nil {
			return total, err
		}
		if len(holders) == 0 {
			return total, nil
		}
		updated, err := u.UpdateBatch(ctx, holders)
		if err != nil {
			return total, err
		}
		middleware.RecordFundUpdates(u.network.Name, updated)
		total += updated
		// Skipped holders stay stale and would be re-listed immediately;
		// a batch with no progress ends the cycle instead of spinning.
		if updated == 0 || len(holders) < u.batchLimit {
			return total, nil
		}
	}
}

// UpdateBatch computes and persists funds for one batch of holders. Returns
// how many holders were actually persisted; holders whose balance read came
// back as a sentinel are skipped, not zeroed.
func (u *Updater) UpdateBatch(ctx context.Context, holders []*models.Address) (int, error) {
	addrs := make([]common.Address, len(holders))
	for i, h := range holders {
		addrs[i] = common.HexToAddress(h.Address)
	}

	native, nativeMissing, err := u.engine.NativeBalances(ctx, addrs)
	if err != nil {
		return 0, err
	}

	tokenAddrs := make([]common.Address, len(u.tokens))
	for i, t := range u.tokens {
		tokenAddrs[i] = common.HexToAddress(t.Address)
	}
	var (
		tokenBalances []*big.Int
		tokenMissing  []bool
	)
	if len(tokenAddrs) > 0 {
		tokenBalances, tokenMissing, err = u.engine.TokenBalances(ctx, addrs, tokenAddrs)
		if err != nil {
			return 0, err
		}
	}

	nativePrice, _ := u.prices.Price(u.network.NativeSymbol)

	skipped := 0
	for i, holder := range holders {
		// A sentinel is not a zero balance. Leaving last_fund_updated alone
		// keeps the holder in the stale queue for the next cycle.
		if nativeMissing[i] || (tokenMissing != nil && tokenMissing[i]) {
			skipped++
			continue
		}
		usd := tokenUSD(native[i], nativeDecimals, nativePrice)

		for j, token := range u.tokens {
			price, ok := u.prices.Price(token.Symbol)
			if !ok {
				continue
			}
			value := tokenUSD(tokenBalances[i*len(u.tokens)+j], token.Decimals, price)
			if value > u.capUSD {
				// A holder with a billion-dollar single-token position is a
				// token contract or a mispriced symbol, not a user.
				u.logger.Warn("dropping implausible token value",
					slog.String("address", holder.Address),
					slog.String("symbol", token.Symbol),
					slog.Float64("usd", value),
				)
				continue
			}
			usd += value
		}

		cents := int64(math.Round(usd * 100))
		if cents < 0 {
			cents = 0
		}
		if err := u.repo.UpdateFund(ctx, u.network.Name, holder.Address, cents); err != nil {
			return 0, err
		}
	}
	if skipped > 0 {
		u.logger.Warn("holders skipped after failed balance reads",
			slog.Int("skipped", skipped))
	}
	return len(holders) - skipped, nil
}

// tokenUSD converts a raw balance to USD via the token's decimals and price.
func tokenUSD(balance *big.Int, decimals int, price float64) float64 {
	if balance == nil || balance.Sign() == 0 || price == 0 {
		return 0
	}
	scale := new(big.Float).SetFloat64(math.Pow10(decimals))
	units := new(big.Float).Quo(new(big.Float).SetInt(balance), scale)
	f, _ := units.Float64()
	return f * price
}
