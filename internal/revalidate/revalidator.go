// Package revalidate repairs incomplete address records: missing
// classification tags, deployment timestamps and verified contract names.
package revalidate

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainscope/chainscope/internal/batchread"
	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/deployment"
	"github.com/chainscope/chainscope/internal/explorer"
	"github.com/chainscope/chainscope/internal/models"
	"github.com/chainscope/chainscope/internal/repository"
)

// Mode selects which records a run visits.
type Mode string

const (
	// ModeStandard visits incomplete records only.
	ModeStandard Mode = "standard"
	// ModeRecent force-refreshes everything first seen in the recent window,
	// already-complete records included.
	ModeRecent Mode = "recent"
)

const defaultBatchLimit = 200

// Revalidator re-checks and repairs address records for one network.
type Revalidator struct {
	network  chains.Network
	engine   *batchread.Engine
	resolver *deployment.Resolver
	explorer *explorer.Client
	repo     repository.AddressRepository
	logger   *slog.Logger

	recentDays int
	batchLimit int
}

// New creates a revalidator.
func New(
	network chains.Network,
	engine *batchread.Engine,
	resolver *deployment.Resolver,
	exp *explorer.Client,
	repo repository.AddressRepository,
	recentDays int,
	logger *slog.Logger,
) *Revalidator {
	return &Revalidator{
		network:    network,
		engine:     engine,
		resolver:   resolver,
		explorer:   exp,
		repo:       repo,
		logger:     logger.With(slog.String("network", network.Name)),
		recentDays: recentDays,
		batchLimit: defaultBatchLimit,
	}
}

// Run processes batches until the selection is drained. Returns the number
// of records visited.
func (r *Revalidator) Run(ctx context.Context, mode Mode) (int, error) {
	since := time.Now().Unix() - int64(r.recentDays)*86400
	visited := 0
	var lastFirst string

	for {
		if ctx.Err() != nil {
			return visited, ctx.Err()
		}

		var (
			batch []*models.Address
			err   error
		)
		switch mode {
		case ModeRecent:
			batch, err = r.repo.ListForRecentRevalidation(ctx, r.network.Name, since, r.batchLimit)
		default:
			batch, err = r.repo.ListForStandardRevalidation(ctx, r.network.Name, r.batchLimit)
		}
		if err != nil {
			return visited, err
		}
		if len(batch) == 0 {
			return visited, nil
		}
		// Records that stay incomplete after a pass would be re-selected
		// forever; stop once a pass makes no progress.
		if batch[0].Address == lastFirst {
			r.logger.Warn("revalidation stalled, stopping",
				slog.String("mode", string(mode)),
				slog.Int("remaining", len(batch)))
			return visited, nil
		}
		lastFirst = batch[0].Address

		if err := r.revalidateBatch(ctx, batch, mode); err != nil {
			return visited, err
		}
		visited += len(batch)
		if mode == ModeRecent && len(batch) < r.batchLimit {
			return visited, nil
		}
	}
}

// revalidateBatch re-runs classification, deployment resolution and name
// lookup for one batch, then merges the results field-preservingly.
func (r *Revalidator) revalidateBatch(ctx context.Context, batch []*models.Address, mode Mode) error {
	addrs := make([]common.Address, len(batch))
	for i, a := range batch {
		addrs[i] = common.HexToAddress(a.Address)
	}

	hashes, unreadable, err := r.engine.CodeHashes(ctx, addrs)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	needDeployment := make([]string, 0)
	firstSeen := make(map[string]int64)

	for i, rec := range batch {
		// A failed read must not reclassify; the record stays incomplete and
		// is re-selected next run.
		if unreadable[i] {
			continue
		}
		rec.LastUpdated = now
		hash := hashes[i].Hex()
		if hash == (common.Hash{}).Hex() || hash == models.ZeroCodeHash {
			rec.SetTag(models.TagEOA)
			continue
		}
		wasContract := rec.IsContract()
		rec.SetTag(models.TagContract)
		rec.CodeHash = models.StringPtr(hash)

		// A tag flip to Contract always needs deployment data; recent mode
		// re-resolves even records that already carry it.
		if rec.Deployed == nil || !wasContract || mode == ModeRecent {
			needDeployment = append(needDeployment, rec.Address)
			firstSeen[rec.Address] = rec.FirstSeen
		}
	}

	if len(needDeployment) > 0 {
		creations, err := r.resolver.Resolve(ctx, needDeployment, firstSeen)
		if err != nil {
			return err
		}
		byAddr := make(map[string]models.ContractCreation, len(creations))
		for _, c := range creations {
			byAddr[c.Address] = c
		}
		for _, rec := range batch {
			c, ok := byAddr[rec.Address]
			if !ok {
				continue
			}
			if c.IsEOA {
				rec.SetTag(models.TagEOA)
				rec.CodeHash = nil
				rec.Deployed = nil
				continue
			}
			if c.HasTimestamp() {
				rec.Deployed = models.Int64Ptr(c.DeploymentTimestamp)
			}
		}
	}

	for _, rec := range batch {
		if !rec.IsContract() {
			continue
		}
		blankName := rec.ContractName == nil || *rec.ContractName == ""
		if !blankName && mode != ModeRecent {
			continue
		}
		if rec.NameChecked && mode != ModeRecent && blankName {
			continue
		}
		if err := r.checkName(ctx, rec, now); err != nil {
			return err
		}
	}

	return r.repo.UpsertBatch(ctx, batch)
}

func (r *Revalidator) checkName(ctx context.Context, rec *models.Address, now int64) error {
	info, err := r.explorer.SourceInfo(ctx, rec.Address)
	if err != nil {
		return err
	}
	rec.NameChecked = true
	rec.NameCheckedAt = models.Int64Ptr(now)

	if info.Verified {
		rec.ContractName = models.StringPtr(info.ContractName)
		rec.SetTag(models.TagVerified)
	} else {
		rec.SetTag(models.TagUnverified)
	}
	if info.IsProxy {
		rec.SetTag(models.TagProxy)
	}
	return nil
}
