// Package handler implements the read-only query API over indexed addresses.
package handler

import (
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chainscope/chainscope/internal/chains"
	apierrors "github.com/chainscope/chainscope/internal/pkg/errors"
	"github.com/chainscope/chainscope/internal/pkg/response"
	"github.com/chainscope/chainscope/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// AddressHandler serves address listings and lookups.
type AddressHandler struct {
	addrs  repository.AddressRepository
	counts repository.CountRepository
	logger *slog.Logger
}

// NewAddressHandler creates a new address handler.
func NewAddressHandler(addrs repository.AddressRepository, counts repository.CountRepository, logger *slog.Logger) *AddressHandler {
	return &AddressHandler{addrs: addrs, counts: counts, logger: logger}
}

// List handles GET /v1/addresses with keyset pagination.
//
// Query parameters: network (repeatable or comma separated), tag (repeatable),
// sort (fund | first_seen), limit, cursor, include_total.
func (h *AddressHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := repository.ListParams{
		Networks: splitMulti(q["network"]),
		Tags:     splitMulti(q["tag"]),
		Sort:     repository.SortFund,
		Limit:    defaultPageSize,
	}

	if sort := q.Get("sort"); sort != "" {
		switch repository.SortKey(sort) {
		case repository.SortFund, repository.SortFirstSeen:
			params.Sort = repository.SortKey(sort)
		default:
			response.Error(w, apierrors.NewValidationError("sort", "must be fund or first_seen"))
			return
		}
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxPageSize {
			response.Error(w, apierrors.NewValidationError("limit",
				"must be an integer between 1 and "+strconv.Itoa(maxPageSize)))
			return
		}
		params.Limit = limit
	}

	if raw := q.Get("cursor"); raw != "" {
		cursor, err := repository.DecodeCursor(raw)
		if err != nil {
			response.Error(w, apierrors.NewValidationError("cursor", "malformed cursor"))
			return
		}
		params.Cursor = cursor
	}

	for _, n := range params.Networks {
		if _, err := chains.Get(n); err != nil {
			response.Error(w, apierrors.NewValidationError("network", "unknown network "+n))
			return
		}
	}

	rows, err := h.addrs.List(r.Context(), params)
	if err != nil {
		h.logger.Error("address list failed", slog.String("error", err.Error()))
		response.InternalError(w)
		return
	}

	meta := &response.Meta{Count: len(rows)}
	if len(rows) == params.Limit {
		meta.NextCursor = repository.CursorFor(rows[len(rows)-1], params.Sort).Encode()
	}

	// The cached total is only valid when nothing but network filters apply.
	if q.Get("include_total") == "true" && len(params.Tags) == 0 {
		total, err := h.counts.TotalForNetworks(r.Context(), params.Networks)
		if err != nil {
			h.logger.Warn("total count failed", slog.String("error", err.Error()))
		} else {
			meta.Total = &total
		}
	}

	response.JSONWithMeta(w, http.StatusOK, rows, meta)
}

// Get handles GET /v1/addresses/{network}/{address}.
func (h *AddressHandler) Get(w http.ResponseWriter, r *http.Request) {
	network := chi.URLParam(r, "network")
	address := chi.URLParam(r, "address")

	if _, err := chains.Get(network); err != nil {
		response.Error(w, apierrors.NewValidationError("network", "unknown network "+network))
		return
	}
	if !addressRe.MatchString(address) {
		response.Error(w, apierrors.NewValidationError("address", "must be a 0x-prefixed 40-hex address"))
		return
	}

	addr, err := h.addrs.GetByAddress(r.Context(), network, address)
	if err != nil {
		h.logger.Error("address lookup failed", slog.String("error", err.Error()))
		response.InternalError(w)
		return
	}
	if addr == nil {
		response.NotFound(w)
		return
	}
	response.OK(w, addr)
}

// Networks handles GET /v1/networks.
func (h *AddressHandler) Networks(w http.ResponseWriter, r *http.Request) {
	type networkInfo struct {
		Name         string `json:"name"`
		ChainID      uint64 `json:"chain_id"`
		NativeSymbol string `json:"native_symbol"`
	}
	all := chains.All()
	out := make([]networkInfo, len(all))
	for i, n := range all {
		out[i] = networkInfo{Name: n.Name, ChainID: n.ChainID, NativeSymbol: n.NativeSymbol}
	}
	response.OK(w, out)
}

// splitMulti expands repeated and comma separated query values.
func splitMulti(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
