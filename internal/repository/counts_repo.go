package repository

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainscope/chainscope/internal/database"
)

// countCacheTTL bounds staleness of the Redis-cached totals.
const countCacheTTL = 5 * time.Minute

// CountRepository serves the optional total counts of address listings. When
// only network filters are active the cached network_counts table is summed
// instead of scanning addresses.
type CountRepository interface {
	TotalForNetworks(ctx context.Context, networks []string) (int64, error)
	RecountNetwork(ctx context.Context, network string) (int64, error)
}

type countRepo struct {
	pool   *pgxpool.Pool
	cache  *database.Redis // may be nil
	logger *slog.Logger
}

// NewCountRepository creates a new count repository. cache may be nil;
// lookups then always hit Postgres.
func NewCountRepository(pool *pgxpool.Pool, cache *database.Redis, logger *slog.Logger) CountRepository {
	return &countRepo{pool: pool, cache: cache, logger: logger}
}

// TotalForNetworks sums the cached per-network counts. An empty networks
// slice means all networks.
func (r *countRepo) TotalForNetworks(ctx context.Context, networks []string) (int64, error) {
	key := "chainscope:counts:" + strings.Join(networks, ",")
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key); err == nil {
			if total, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return total, nil
			}
		}
	}

	var (
		total int64
		err   error
	)
	if len(networks) == 0 {
		err = r.pool.QueryRow(ctx,
			`SELECT COALESCE(SUM(total), 0) FROM network_counts`).Scan(&total)
	} else {
		err = r.pool.QueryRow(ctx,
			`SELECT COALESCE(SUM(total), 0) FROM network_counts WHERE network = ANY($1)`,
			networks).Scan(&total)
	}
	if err != nil {
		return 0, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, strconv.FormatInt(total, 10), countCacheTTL); err != nil {
			r.logger.Debug("count cache write failed", slog.String("error", err.Error()))
		}
	}
	return total, nil
}

// RecountNetwork recomputes one network's address count and stores it in
// network_counts.
func (r *countRepo) RecountNetwork(ctx context.Context, network string) (int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM addresses WHERE network = $1`, network).Scan(&total); err != nil {
		return 0, err
	}
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO network_counts (network, total, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (network) DO UPDATE SET
			total      = excluded.total,
			updated_at = excluded.updated_at`,
		network, total, time.Now().Unix()); err != nil {
		return 0, err
	}
	return total, nil
}
