// Package deployment resolves when a contract was deployed, combining the
// explorer's getcontractcreation endpoint with node lookups for the
// inclusion-block timestamp.
package deployment

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/explorer"
	apierrors "github.com/chainscope/chainscope/internal/pkg/errors"
	"github.com/chainscope/chainscope/internal/models"
	"github.com/chainscope/chainscope/internal/rpc"
)

// genesisPrefix marks explorer txHash values for contracts present since
// block zero (e.g. "GENESIS" or "GENESIS_<address>").
const genesisPrefix = "GENESIS"

// Resolver turns contract addresses into deployment timestamps.
type Resolver struct {
	network  chains.Network
	explorer *explorer.Client
	client   *rpc.Client
	logger   *slog.Logger

	// blockTimestamps memoizes block number to timestamp within one run;
	// contracts deployed in the same block share a lookup.
	blockTimestamps map[uint64]int64
}

// NewResolver creates a resolver for one network.
func NewResolver(network chains.Network, exp *explorer.Client, client *rpc.Client, logger *slog.Logger) *Resolver {
	return &Resolver{
		network:         network,
		explorer:        exp,
		client:          client,
		logger:          logger.With(slog.String("network", network.Name)),
		blockTimestamps: make(map[uint64]int64),
	}
}

// Resolve looks up deployment metadata for the given contract addresses.
// firstSeen supplies the per-address fallback timestamp used when the
// explorer has not indexed a contract that does exist on-chain. Addresses
// the explorer omits are probed with eth_getCode; codeless ones come back
// with IsEOA set so the caller can retag them.
func (r *Resolver) Resolve(ctx context.Context, addresses []string, firstSeen map[string]int64) ([]models.ContractCreation, error) {
	out := make([]models.ContractCreation, 0, len(addresses))

	for start := 0; start < len(addresses); start += explorer.CreationBatchSize {
		end := start + explorer.CreationBatchSize
		if end > len(addresses) {
			end = len(addresses)
		}
		batch := addresses[start:end]

		records, err := r.explorer.ContractCreations(ctx, batch)
		if err != nil {
			return nil, err
		}

		byAddress := make(map[string]explorer.CreationRecord, len(records))
		for _, rec := range records {
			byAddress[rec.ContractAddress] = rec
		}

		for _, addr := range batch {
			addr = strings.ToLower(addr)
			rec, found := byAddress[addr]
			if !found {
				creation, err := r.resolveMissing(ctx, addr, firstSeen[addr])
				if err != nil {
					return nil, err
				}
				out = append(out, *creation)
				continue
			}
			creation, err := r.resolveRecord(ctx, addr, rec)
			if err != nil {
				return nil, err
			}
			out = append(out, *creation)
		}
	}
	return out, nil
}

// resolveRecord maps one explorer creation row to a timestamp. Genesis
// contracts take the chain's genesis timestamp; everything else goes
// txHash -> block -> timestamp through the node.
func (r *Resolver) resolveRecord(ctx context.Context, addr string, rec explorer.CreationRecord) (*models.ContractCreation, error) {
	if strings.HasPrefix(strings.ToUpper(rec.TxHash), genesisPrefix) {
		ts, ok := chains.GenesisTimestamp(r.network.ChainID)
		if !ok {
			r.logger.Warn("genesis contract on chain without known genesis timestamp",
				slog.String("address", addr))
			ts = 0
		}
		return &models.ContractCreation{
			Address:             addr,
			TxHash:              rec.TxHash,
			DeploymentTimestamp: ts,
			IsGenesis:           true,
		}, nil
	}

	tx, err := r.client.TransactionByHash(ctx, common.HexToHash(rec.TxHash))
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.BlockNumber == nil {
		return nil, apierrors.Newf(apierrors.KindTransient, "deployment.resolve",
			"creation tx %s not yet included", rec.TxHash)
	}
	blockNum := tx.BlockNumber.ToInt().Uint64()

	ts, err := r.blockTimestamp(ctx, blockNum)
	if err != nil {
		return nil, err
	}
	return &models.ContractCreation{
		Address:             addr,
		TxHash:              rec.TxHash,
		BlockNumber:         blockNum,
		DeploymentTimestamp: ts,
	}, nil
}

// resolveMissing handles addresses the explorer has no creation row for.
// No code on-chain means the address was misclassified and is really an
// EOA; with code present the caller's first_seen becomes the timestamp.
func (r *Resolver) resolveMissing(ctx context.Context, addr string, firstSeen int64) (*models.ContractCreation, error) {
	code, err := r.client.Code(ctx, common.HexToAddress(addr))
	if err != nil {
		return nil, err
	}
	if code == "" || code == "0x" {
		return &models.ContractCreation{Address: addr, IsEOA: true}, nil
	}
	r.logger.Debug("explorer has no creation record, falling back to first_seen",
		slog.String("address", addr))
	return &models.ContractCreation{
		Address:             addr,
		DeploymentTimestamp: firstSeen,
		FallbackFirstSeen:   true,
	}, nil
}

func (r *Resolver) blockTimestamp(ctx context.Context, number uint64) (int64, error) {
	if ts, ok := r.blockTimestamps[number]; ok {
		return ts, nil
	}
	block, err := r.client.BlockByNumber(ctx, number)
	if err != nil {
		return 0, err
	}
	if block == nil {
		return 0, apierrors.Newf(apierrors.KindTransient, "deployment.resolve",
			"block %d not found", number)
	}
	ts := int64(block.Timestamp)
	r.blockTimestamps[number] = ts
	return ts, nil
}
