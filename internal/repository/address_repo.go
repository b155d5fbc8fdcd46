// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainscope/chainscope/internal/models"
)

// AddressRepository defines the interface for address aggregate operations.
type AddressRepository interface {
	Upsert(ctx context.Context, addr *models.Address) error
	UpsertBatch(ctx context.Context, addrs []*models.Address) error
	GetByAddress(ctx context.Context, network, address string) (*models.Address, error)
	ListUnclassified(ctx context.Context, network string, limit int) ([]*models.Address, error)
	ListForStandardRevalidation(ctx context.Context, network string, limit int) ([]*models.Address, error)
	ListForRecentRevalidation(ctx context.Context, network string, since int64, limit int) ([]*models.Address, error)
	ListStaleFunds(ctx context.Context, network string, staleBefore int64, limit int) ([]*models.Address, error)
	UpdateFund(ctx context.Context, network, address string, fundCents int64) error
	List(ctx context.Context, params ListParams) ([]*models.Address, error)
}

// SortKey selects the keyset-pagination ordering of List.
type SortKey string

const (
	// SortFund orders by fund DESC, deployed DESC, address ASC.
	SortFund SortKey = "fund"
	// SortFirstSeen orders by first_seen DESC, address ASC.
	SortFirstSeen SortKey = "first_seen"
)

// ListParams filters and paginates address listings.
type ListParams struct {
	Networks []string
	Tags     []string
	Sort     SortKey
	Limit    int
	Cursor   *Cursor
}

const addressColumns = `address, network, first_seen, last_updated, code_hash,
       contract_name, deployed, tags, fund, last_fund_updated,
       name_checked, name_checked_at`

type addressRepo struct {
	pool *pgxpool.Pool
}

// NewAddressRepository creates a new address repository.
func NewAddressRepository(pool *pgxpool.Pool) AddressRepository {
	return &addressRepo{pool: pool}
}

// upsertQuery implements the field-preserving merge. Incoming NULLs never
// erase stored values; tags are replaced only when the payload carries a
// non-empty array; first_seen keeps the earliest observation.
const upsertQuery = `
	INSERT INTO addresses (address, network, first_seen, last_updated, code_hash,
	                       contract_name, deployed, tags, fund, last_fund_updated,
	                       name_checked, name_checked_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (address, network) DO UPDATE SET
		first_seen        = LEAST(addresses.first_seen, excluded.first_seen),
		last_updated      = excluded.last_updated,
		code_hash         = COALESCE(excluded.code_hash, addresses.code_hash),
		contract_name     = COALESCE(excluded.contract_name, addresses.contract_name),
		deployed          = COALESCE(excluded.deployed, addresses.deployed),
		tags              = CASE WHEN excluded.tags IS NULL OR cardinality(excluded.tags) = 0
		                         THEN addresses.tags ELSE excluded.tags END,
		fund              = COALESCE(excluded.fund, addresses.fund),
		last_fund_updated = COALESCE(excluded.last_fund_updated, addresses.last_fund_updated),
		name_checked      = addresses.name_checked OR excluded.name_checked,
		name_checked_at   = COALESCE(excluded.name_checked_at, addresses.name_checked_at)`

// Upsert inserts or merges one address record.
func (r *addressRepo) Upsert(ctx context.Context, addr *models.Address) error {
	_, err := r.pool.Exec(ctx, upsertQuery, upsertArgs(addr)...)
	return err
}

// UpsertBatch merges many records in one round trip. Rows are independent;
// a failure aborts the remainder of the batch.
func (r *addressRepo) UpsertBatch(ctx context.Context, addrs []*models.Address) error {
	if len(addrs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, addr := range addrs {
		batch.Queue(upsertQuery, upsertArgs(addr)...)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range addrs {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func upsertArgs(addr *models.Address) []any {
	if addr.LastUpdated == 0 {
		addr.LastUpdated = time.Now().Unix()
	}
	return []any{
		strings.ToLower(addr.Address),
		addr.Network,
		addr.FirstSeen,
		addr.LastUpdated,
		addr.CodeHash,
		addr.ContractName,
		addr.Deployed,
		addr.Tags,
		addr.Fund,
		addr.LastFundUpdated,
		addr.NameChecked,
		addr.NameCheckedAt,
	}
}

// GetByAddress retrieves one record by (network, address).
func (r *addressRepo) GetByAddress(ctx context.Context, network, address string) (*models.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE network = $1 AND address = $2`

	row := r.pool.QueryRow(ctx, query, network, strings.ToLower(address))
	addr, err := scanAddress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// ListUnclassified returns addresses with neither an EOA nor a Contract tag.
func (r *addressRepo) ListUnclassified(ctx context.Context, network string, limit int) ([]*models.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE network = $1
		  AND NOT (tags @> ARRAY['EOA'] OR tags @> ARRAY['Contract'])
		ORDER BY first_seen ASC
		LIMIT $2`
	return r.queryAddresses(ctx, query, network, limit)
}

// ListForStandardRevalidation returns incomplete records: unclassified ones
// and contracts still missing deployment data, richest and most neglected
// first.
func (r *addressRepo) ListForStandardRevalidation(ctx context.Context, network string, limit int) ([]*models.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE network = $1
		  AND (NOT (tags @> ARRAY['EOA'] OR tags @> ARRAY['Contract'])
		       OR (tags @> ARRAY['Contract'] AND deployed IS NULL))
		ORDER BY fund DESC NULLS LAST, last_updated ASC NULLS FIRST
		LIMIT $2`
	return r.queryAddresses(ctx, query, network, limit)
}

// ListForRecentRevalidation returns every address first seen at or after
// since, already-validated records included.
func (r *addressRepo) ListForRecentRevalidation(ctx context.Context, network string, since int64, limit int) ([]*models.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE network = $1 AND first_seen >= $2
		ORDER BY first_seen DESC, fund DESC NULLS LAST
		LIMIT $3`
	return r.queryAddresses(ctx, query, network, since, limit)
}

// ListStaleFunds returns addresses whose fund has never been computed or was
// last computed before staleBefore.
func (r *addressRepo) ListStaleFunds(ctx context.Context, network string, staleBefore int64, limit int) ([]*models.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE network = $1
		  AND (last_fund_updated IS NULL OR last_fund_updated < $2)
		ORDER BY last_fund_updated ASC NULLS FIRST
		LIMIT $3`
	return r.queryAddresses(ctx, query, network, staleBefore, limit)
}

// UpdateFund writes a freshly computed fund and its timestamp.
func (r *addressRepo) UpdateFund(ctx context.Context, network, address string, fundCents int64) error {
	now := time.Now().Unix()
	_, err := r.pool.Exec(ctx, `
		UPDATE addresses
		SET fund = $1, last_fund_updated = $2, last_updated = $2
		WHERE network = $3 AND address = $4`,
		fundCents, now, network, strings.ToLower(address))
	return err
}

// List returns a keyset-paginated page of addresses.
func (r *addressRepo) List(ctx context.Context, params ListParams) ([]*models.Address, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(params.Networks) > 0 {
		where = append(where, "network = ANY("+arg(params.Networks)+")")
	}
	if len(params.Tags) > 0 {
		where = append(where, "tags @> "+arg(params.Tags))
	}

	var order string
	switch params.Sort {
	case SortFirstSeen:
		if c := params.Cursor; c != nil {
			where = append(where, fmt.Sprintf(
				"(first_seen < %s OR (first_seen = %s AND address > %s))",
				arg(c.FirstSeen), arg(c.FirstSeen), arg(c.Address)))
		}
		order = "first_seen DESC, address ASC"
	case SortFund, "":
		// NULL fund and deployed sort last via the -1 sentinel, which keeps
		// the cursor predicate a plain three-way comparison.
		if c := params.Cursor; c != nil {
			f, d := arg(c.Fund), arg(c.Deployed)
			where = append(where, fmt.Sprintf(`
				(COALESCE(fund, -1) < %s
				 OR (COALESCE(fund, -1) = %s AND COALESCE(deployed, -1) < %s)
				 OR (COALESCE(fund, -1) = %s AND COALESCE(deployed, -1) = %s AND address > %s))`,
				f, f, d, f, d, arg(c.Address)))
		}
		order = "COALESCE(fund, -1) DESC, COALESCE(deployed, -1) DESC, address ASC"
	default:
		return nil, fmt.Errorf("unsupported sort key %q", params.Sort)
	}

	query := "SELECT " + addressColumns + " FROM addresses"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + order
	query += " LIMIT " + arg(params.Limit)

	return r.queryAddresses(ctx, query, args...)
}

func (r *addressRepo) queryAddresses(ctx context.Context, query string, args ...any) ([]*models.Address, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Address
	for rows.Next() {
		addr, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func scanAddress(row pgx.Row) (*models.Address, error) {
	var addr models.Address
	err := row.Scan(
		&addr.Address,
		&addr.Network,
		&addr.FirstSeen,
		&addr.LastUpdated,
		&addr.CodeHash,
		&addr.ContractName,
		&addr.Deployed,
		&addr.Tags,
		&addr.Fund,
		&addr.LastFundUpdated,
		&addr.NameChecked,
		&addr.NameCheckedAt,
	)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
