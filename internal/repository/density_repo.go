package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainscope/chainscope/internal/models"
)

// DensityRepository persists the per-network log density summary. It
// satisfies the log fetcher's DensityStore.
type DensityRepository interface {
	Get(ctx context.Context, network string) (*models.DensityStats, error)
	Save(ctx context.Context, stats *models.DensityStats) error
}

type densityRepo struct {
	pool *pgxpool.Pool
}

// NewDensityRepository creates a new density repository.
func NewDensityRepository(pool *pgxpool.Pool) DensityRepository {
	return &densityRepo{pool: pool}
}

// Get retrieves the density row for one network.
func (r *densityRepo) Get(ctx context.Context, network string) (*models.DensityStats, error) {
	query := `
		SELECT network, avg_logs_per_block, total_blocks, total_logs,
		       sample_count, optimal_batch_size, recommended_profile, last_updated
		FROM network_log_density_stats
		WHERE network = $1`

	var s models.DensityStats
	err := r.pool.QueryRow(ctx, query, network).Scan(
		&s.Network,
		&s.AvgLogsPerBlock,
		&s.TotalBlocks,
		&s.TotalLogs,
		&s.SampleCount,
		&s.OptimalBatchSize,
		&s.RecommendedProfile,
		&s.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Save overwrites the single density row for the network.
func (r *densityRepo) Save(ctx context.Context, stats *models.DensityStats) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO network_log_density_stats
			(network, avg_logs_per_block, total_blocks, total_logs,
			 sample_count, optimal_batch_size, recommended_profile, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (network) DO UPDATE SET
			avg_logs_per_block  = excluded.avg_logs_per_block,
			total_blocks        = excluded.total_blocks,
			total_logs          = excluded.total_logs,
			sample_count        = excluded.sample_count,
			optimal_batch_size  = excluded.optimal_batch_size,
			recommended_profile = excluded.recommended_profile,
			last_updated        = excluded.last_updated`,
		stats.Network,
		stats.AvgLogsPerBlock,
		stats.TotalBlocks,
		stats.TotalLogs,
		stats.SampleCount,
		stats.OptimalBatchSize,
		stats.RecommendedProfile,
		stats.LastUpdated,
	)
	return err
}
