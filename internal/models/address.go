// Package models defines the data types persisted and exchanged by the indexer.
package models

import (
	"strings"
	"time"
)

// Tag labels an address record. EOA and Contract are mutually exclusive once
// classification settles; the remaining tags only apply to contracts.
type Tag string

const (
	TagEOA        Tag = "EOA"
	TagContract   Tag = "Contract"
	TagVerified   Tag = "Verified"
	TagUnverified Tag = "Unverified"
	TagProxy      Tag = "Proxy"
)

// ZeroCodeHash is keccak256 of empty input, returned by the aggregator for
// addresses without code.
const ZeroCodeHash = "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"

// Address is the primary aggregate, unique by (address, network).
// Optional columns are pointers so that a nil in an upsert payload never
// erases an existing value (the repository merges with COALESCE).
type Address struct {
	Address         string   `json:"address"`
	Network         string   `json:"network"`
	FirstSeen       int64    `json:"first_seen"`
	LastUpdated     int64    `json:"last_updated"`
	CodeHash        *string  `json:"code_hash,omitempty"`
	ContractName    *string  `json:"contract_name,omitempty"`
	Deployed        *int64   `json:"deployed,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Fund            *int64   `json:"fund,omitempty"` // USD cents
	LastFundUpdated *int64   `json:"last_fund_updated,omitempty"`
	NameChecked     bool     `json:"name_checked"`
	NameCheckedAt   *int64   `json:"name_checked_at,omitempty"`
}

// NewAddress builds a discovery-time record with a normalized address.
func NewAddress(addr, network string, seenAt time.Time) *Address {
	ts := seenAt.Unix()
	return &Address{
		Address:     strings.ToLower(addr),
		Network:     network,
		FirstSeen:   ts,
		LastUpdated: ts,
	}
}

// HasTag reports whether the record carries the given tag.
func (a *Address) HasTag(tag Tag) bool {
	for _, t := range a.Tags {
		if t == string(tag) {
			return true
		}
	}
	return false
}

// IsContract reports whether the record is classified as a contract.
func (a *Address) IsContract() bool { return a.HasTag(TagContract) }

// IsClassified reports whether classification has settled either way.
func (a *Address) IsClassified() bool {
	return a.HasTag(TagContract) || a.HasTag(TagEOA)
}

// SetTag adds a tag if absent. Paired tags displace their opposite: a record
// re-classified from EOA to Contract must not keep both, and a contract that
// gets verified loses Unverified.
func (a *Address) SetTag(tag Tag) {
	switch tag {
	case TagContract:
		a.removeTag(TagEOA)
	case TagEOA:
		a.removeTag(TagContract)
	case TagVerified:
		a.removeTag(TagUnverified)
	case TagUnverified:
		if a.HasTag(TagVerified) {
			return
		}
	}
	if !a.HasTag(tag) {
		a.Tags = append(a.Tags, string(tag))
	}
}

func (a *Address) removeTag(tag Tag) {
	out := a.Tags[:0]
	for _, t := range a.Tags {
		if t != string(tag) {
			out = append(out, t)
		}
	}
	a.Tags = out
}

// Ptr helpers for optional columns.

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
