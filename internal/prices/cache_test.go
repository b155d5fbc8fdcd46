package prices

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/models"
)

type mockPriceRepo struct {
	GetFunc        func(ctx context.Context, symbol string) (*models.SymbolPrice, error)
	GetAllFunc     func(ctx context.Context) ([]models.SymbolPrice, error)
	UpsertBulkFunc func(ctx context.Context, prices []models.SymbolPrice) error
}

func (m *mockPriceRepo) Get(ctx context.Context, symbol string) (*models.SymbolPrice, error) {
	return m.GetFunc(ctx, symbol)
}

func (m *mockPriceRepo) GetAll(ctx context.Context) ([]models.SymbolPrice, error) {
	return m.GetAllFunc(ctx)
}

func (m *mockPriceRepo) UpsertBulk(ctx context.Context, prices []models.SymbolPrice) error {
	return m.UpsertBulkFunc(ctx, prices)
}

func TestCacheLoadAndLookup(t *testing.T) {
	repo := &mockPriceRepo{
		GetAllFunc: func(ctx context.Context) ([]models.SymbolPrice, error) {
			return []models.SymbolPrice{
				{Symbol: "eth", PriceUSD: 3200.5},
				{Symbol: "USDT", PriceUSD: 1.0},
			}, nil
		},
	}
	c := NewCache(repo)
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, 2, c.Len())

	price, ok := c.Price("ETH")
	require.True(t, ok)
	assert.Equal(t, 3200.5, price)

	price, ok = c.Price("usdt")
	require.True(t, ok)
	assert.Equal(t, 1.0, price)

	_, ok = c.Price("DOGE")
	assert.False(t, ok)
}

func TestCacheLoadFailureKeepsContents(t *testing.T) {
	healthy := true
	repo := &mockPriceRepo{
		GetAllFunc: func(ctx context.Context) ([]models.SymbolPrice, error) {
			if !healthy {
				return nil, errors.New("db down")
			}
			return []models.SymbolPrice{{Symbol: "ETH", PriceUSD: 3200}}, nil
		},
	}
	c := NewCache(repo)
	require.NoError(t, c.Load(context.Background()))

	healthy = false
	require.Error(t, c.Load(context.Background()))

	price, ok := c.Price("ETH")
	require.True(t, ok, "failed reload must not wipe the cache")
	assert.Equal(t, 3200.0, price)
}

func TestCacheRefreshRollsBackOnUpsertFailure(t *testing.T) {
	var upserts int
	repo := &mockPriceRepo{
		GetAllFunc: func(ctx context.Context) ([]models.SymbolPrice, error) {
			return nil, nil
		},
		UpsertBulkFunc: func(ctx context.Context, prices []models.SymbolPrice) error {
			upserts++
			return errors.New("constraint violation")
		},
	}
	c := NewCache(repo)

	err := c.Refresh(context.Background(), []models.SymbolPrice{{Symbol: "ETH", PriceUSD: 1}})
	require.Error(t, err)
	assert.Equal(t, 1, upserts)
	assert.Zero(t, c.Len(), "failed refresh must not repopulate the cache")
}

func TestCacheRefreshReloads(t *testing.T) {
	var stored []models.SymbolPrice
	repo := &mockPriceRepo{
		GetAllFunc: func(ctx context.Context) ([]models.SymbolPrice, error) {
			return stored, nil
		},
		UpsertBulkFunc: func(ctx context.Context, prices []models.SymbolPrice) error {
			stored = prices
			return nil
		},
	}
	c := NewCache(repo)

	require.NoError(t, c.Refresh(context.Background(), []models.SymbolPrice{
		{Symbol: "BNB", PriceUSD: 580},
	}))
	price, ok := c.Price("bnb")
	require.True(t, ok)
	assert.Equal(t, 580.0, price)
}
