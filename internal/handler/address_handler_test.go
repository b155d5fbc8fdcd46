package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/models"
	"github.com/chainscope/chainscope/internal/repository"
)

type mockAddressRepo struct {
	repository.AddressRepository

	GetByAddressFunc func(ctx context.Context, network, address string) (*models.Address, error)
	ListFunc         func(ctx context.Context, params repository.ListParams) ([]*models.Address, error)
}

func (m *mockAddressRepo) GetByAddress(ctx context.Context, network, address string) (*models.Address, error) {
	return m.GetByAddressFunc(ctx, network, address)
}

func (m *mockAddressRepo) List(ctx context.Context, params repository.ListParams) ([]*models.Address, error) {
	return m.ListFunc(ctx, params)
}

type mockCountRepo struct {
	TotalForNetworksFunc func(ctx context.Context, networks []string) (int64, error)
}

func (m *mockCountRepo) TotalForNetworks(ctx context.Context, networks []string) (int64, error) {
	return m.TotalForNetworksFunc(ctx, networks)
}

func (m *mockCountRepo) RecountNetwork(ctx context.Context, network string) (int64, error) {
	return 0, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(addrs *mockAddressRepo, counts *mockCountRepo) http.Handler {
	h := NewAddressHandler(addrs, counts, discardLogger())
	r := chi.NewRouter()
	r.Get("/v1/addresses", h.List)
	r.Get("/v1/addresses/{network}/{address}", h.Get)
	r.Get("/v1/networks", h.Networks)
	return r
}

func listBody(t *testing.T, rec *httptest.ResponseRecorder) struct {
	Data []*models.Address `json:"data"`
	Meta *struct {
		Count      int    `json:"count"`
		Total      *int64 `json:"total"`
		NextCursor string `json:"next_cursor"`
	} `json:"meta"`
} {
	t.Helper()
	var body struct {
		Data []*models.Address `json:"data"`
		Meta *struct {
			Count      int    `json:"count"`
			Total      *int64 `json:"total"`
			NextCursor string `json:"next_cursor"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sampleAddresses(n int) []*models.Address {
	out := make([]*models.Address, n)
	for i := range out {
		out[i] = &models.Address{
			Address:   "0x000000000000000000000000000000000000000" + string(rune('a'+i)),
			Network:   "ethereum",
			FirstSeen: int64(1700000000 + i),
			Fund:      models.Int64Ptr(int64(1000 - i)),
		}
	}
	return out
}

func TestListDefaults(t *testing.T) {
	var got repository.ListParams
	addrs := &mockAddressRepo{
		ListFunc: func(ctx context.Context, params repository.ListParams) ([]*models.Address, error) {
			got = params
			return sampleAddresses(2), nil
		},
	}
	router := newRouter(addrs, &mockCountRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/addresses", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.SortFund, got.Sort)
	assert.Equal(t, 50, got.Limit)
	assert.Empty(t, got.Networks)

	body := listBody(t, rec)
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 2, body.Meta.Count)
	assert.Empty(t, body.Meta.NextCursor, "partial page carries no cursor")
	assert.Nil(t, body.Meta.Total)
}

func TestListFullPageEmitsCursor(t *testing.T) {
	rows := sampleAddresses(3)
	addrs := &mockAddressRepo{
		ListFunc: func(ctx context.Context, params repository.ListParams) ([]*models.Address, error) {
			return rows, nil
		},
	}
	router := newRouter(addrs, &mockCountRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/addresses?limit=3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := listBody(t, rec)
	require.NotEmpty(t, body.Meta.NextCursor)

	cursor, err := repository.DecodeCursor(body.Meta.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, rows[2].Address, cursor.Address)
	assert.Equal(t, *rows[2].Fund, cursor.Fund)
}

func TestListParamParsing(t *testing.T) {
	var got repository.ListParams
	addrs := &mockAddressRepo{
		ListFunc: func(ctx context.Context, params repository.ListParams) ([]*models.Address, error) {
			got = params
			return nil, nil
		},
	}
	router := newRouter(addrs, &mockCountRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/addresses?network=ethereum,bsc&network=base&tag=Contract&sort=first_seen&limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ethereum", "bsc", "base"}, got.Networks)
	assert.Equal(t, []string{"Contract"}, got.Tags)
	assert.Equal(t, repository.SortFirstSeen, got.Sort)
	assert.Equal(t, 10, got.Limit)
}

func TestListValidation(t *testing.T) {
	addrs := &mockAddressRepo{
		ListFunc: func(ctx context.Context, params repository.ListParams) ([]*models.Address, error) {
			t.Fatal("repository must not be hit on validation failure")
			return nil, nil
		},
	}
	router := newRouter(addrs, &mockCountRepo{})

	for _, target := range []string{
		"/v1/addresses?sort=balance",
		"/v1/addresses?limit=0",
		"/v1/addresses?limit=headache",
		"/v1/addresses?limit=501",
		"/v1/addresses?cursor=!!!notacursor",
		"/v1/addresses?network=dogechain",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestListIncludeTotal(t *testing.T) {
	addrs := &mockAddressRepo{
		ListFunc: func(ctx context.Context, params repository.ListParams) ([]*models.Address, error) {
			return sampleAddresses(1), nil
		},
	}
	counts := &mockCountRepo{
		TotalForNetworksFunc: func(ctx context.Context, networks []string) (int64, error) {
			return 1234, nil
		},
	}
	router := newRouter(addrs, counts)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/addresses?include_total=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := listBody(t, rec)
	require.NotNil(t, body.Meta.Total)
	assert.Equal(t, int64(1234), *body.Meta.Total)
}

func TestListTotalSkippedWithTagFilter(t *testing.T) {
	addrs := &mockAddressRepo{
		ListFunc: func(ctx context.Context, params repository.ListParams) ([]*models.Address, error) {
			return nil, nil
		},
	}
	counts := &mockCountRepo{
		TotalForNetworksFunc: func(ctx context.Context, networks []string) (int64, error) {
			t.Fatal("cached totals are invalid under tag filters")
			return 0, nil
		},
	}
	router := newRouter(addrs, counts)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/addresses?include_total=true&tag=EOA", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, listBody(t, rec).Meta.Total)
}

func TestGetAddress(t *testing.T) {
	stored := &models.Address{
		Address: "0xdac17f958d2ee523a2206206994597c13d831ec7",
		Network: "ethereum",
		Tags:    []string{"Contract", "Verified"},
	}
	addrs := &mockAddressRepo{
		GetByAddressFunc: func(ctx context.Context, network, address string) (*models.Address, error) {
			assert.Equal(t, "ethereum", network)
			return stored, nil
		},
	}
	router := newRouter(addrs, &mockCountRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/addresses/ethereum/0xdac17f958d2ee523a2206206994597c13d831ec7", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data *models.Address `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, stored.Address, body.Data.Address)
	assert.Equal(t, stored.Tags, body.Data.Tags)
}

func TestGetAddressNotFound(t *testing.T) {
	addrs := &mockAddressRepo{
		GetByAddressFunc: func(ctx context.Context, network, address string) (*models.Address, error) {
			return nil, nil
		},
	}
	router := newRouter(addrs, &mockCountRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/addresses/ethereum/0xdac17f958d2ee523a2206206994597c13d831ec7", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAddressValidation(t *testing.T) {
	router := newRouter(&mockAddressRepo{}, &mockCountRepo{})

	for _, target := range []string{
		"/v1/addresses/dogechain/0xdac17f958d2ee523a2206206994597c13d831ec7",
		"/v1/addresses/ethereum/nothex",
		"/v1/addresses/ethereum/0x1234",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestNetworks(t *testing.T) {
	router := newRouter(&mockAddressRepo{}, &mockCountRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/networks", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			Name    string `json:"name"`
			ChainID uint64 `json:"chain_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data)
	assert.Equal(t, "ethereum", body.Data[0].Name)
	assert.Equal(t, uint64(1), body.Data[0].ChainID)
}
