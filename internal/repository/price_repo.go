package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainscope/chainscope/internal/models"
)

// PriceRepository defines the interface for symbol price operations.
type PriceRepository interface {
	Get(ctx context.Context, symbol string) (*models.SymbolPrice, error)
	GetAll(ctx context.Context) ([]models.SymbolPrice, error)
	UpsertBulk(ctx context.Context, prices []models.SymbolPrice) error
}

type priceRepo struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(pool *pgxpool.Pool) PriceRepository {
	return &priceRepo{pool: pool}
}

// Get retrieves one price by symbol, case-insensitively.
func (r *priceRepo) Get(ctx context.Context, symbol string) (*models.SymbolPrice, error) {
	query := `
		SELECT symbol, price_usd, last_updated
		FROM symbol_prices
		WHERE LOWER(symbol) = LOWER($1)`

	var p models.SymbolPrice
	err := r.pool.QueryRow(ctx, query, symbol).Scan(&p.Symbol, &p.PriceUSD, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetAll retrieves every stored price.
func (r *priceRepo) GetAll(ctx context.Context) ([]models.SymbolPrice, error) {
	rows, err := r.pool.Query(ctx, `SELECT symbol, price_usd, last_updated FROM symbol_prices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SymbolPrice
	for rows.Next() {
		var p models.SymbolPrice
		if err := rows.Scan(&p.Symbol, &p.PriceUSD, &p.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertBulk replaces prices inside one transaction. Any row failure rolls
// back the whole refresh so the table never holds a partial snapshot.
func (r *priceRepo) UpsertBulk(ctx context.Context, prices []models.SymbolPrice) error {
	if len(prices) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().Unix()
	for _, p := range prices {
		ts := p.LastUpdated
		if ts == 0 {
			ts = now
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO symbol_prices (symbol, price_usd, last_updated)
			VALUES ($1, $2, $3)
			ON CONFLICT (symbol) DO UPDATE SET
				price_usd    = excluded.price_usd,
				last_updated = excluded.last_updated`,
			strings.ToUpper(p.Symbol), p.PriceUSD, ts); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
