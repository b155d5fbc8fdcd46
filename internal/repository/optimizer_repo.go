package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainscope/chainscope/internal/models"
)

// OptimizerRepository persists chunk optimizer learner state as one JSONB
// document per (network, operation).
type OptimizerRepository interface {
	Load(ctx context.Context, network, operation string) (*models.OptimizerSession, error)
	Save(ctx context.Context, session *models.OptimizerSession) error
}

type optimizerRepo struct {
	pool *pgxpool.Pool
}

// NewOptimizerRepository creates a new optimizer session repository.
func NewOptimizerRepository(pool *pgxpool.Pool) OptimizerRepository {
	return &optimizerRepo{pool: pool}
}

// Load retrieves the stored session for one (network, operation).
func (r *optimizerRepo) Load(ctx context.Context, network, operation string) (*models.OptimizerSession, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT data FROM chunk_optimizer_sessions
		WHERE network = $1 AND operation = $2`,
		network, operation).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session models.OptimizerSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Save overwrites the session document.
func (r *optimizerRepo) Save(ctx context.Context, session *models.OptimizerSession) error {
	if session.UpdatedAt == 0 {
		session.UpdatedAt = time.Now().Unix()
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO chunk_optimizer_sessions (network, operation, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (network, operation) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at`,
		session.Network, session.Operation, raw)
	return err
}
