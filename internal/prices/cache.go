// Package prices provides the in-memory symbol price cache backed by the
// symbol_prices table.
package prices

import (
	"context"
	"strings"
	"sync"

	"github.com/chainscope/chainscope/internal/models"
	"github.com/chainscope/chainscope/internal/repository"
)

// Cache holds symbol prices for enrichment. Lookups are case-insensitive.
type Cache struct {
	repo repository.PriceRepository

	mu     sync.RWMutex
	prices map[string]float64
}

// NewCache creates an empty cache; call Load before lookups.
func NewCache(repo repository.PriceRepository) *Cache {
	return &Cache{
		repo:   repo,
		prices: make(map[string]float64),
	}
}

// Load replaces the cache contents from the database.
func (c *Cache) Load(ctx context.Context) error {
	rows, err := c.repo.GetAll(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]float64, len(rows))
	for _, p := range rows {
		next[strings.ToUpper(p.Symbol)] = p.PriceUSD
	}
	c.mu.Lock()
	c.prices = next
	c.mu.Unlock()
	return nil
}

// Price returns the USD price for a symbol, case-insensitively.
func (c *Cache) Price(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[strings.ToUpper(symbol)]
	return price, ok
}

// Len reports how many symbols are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

// Refresh persists a new price snapshot transactionally, then reloads the
// in-memory map. A failed upsert leaves both the table and the cache as
// they were.
func (c *Cache) Refresh(ctx context.Context, snapshot []models.SymbolPrice) error {
	if err := c.repo.UpsertBulk(ctx, snapshot); err != nil {
		return err
	}
	return c.Load(ctx)
}
