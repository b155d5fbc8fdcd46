package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/models"
)

func TestCursorRoundTrip(t *testing.T) {
	c := &Cursor{Fund: 123456, Deployed: 1600000000, FirstSeen: 1700000000, Address: "0xabc"}

	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64!!")
	assert.Error(t, err)

	// Valid base64url, invalid JSON.
	_, err = DecodeCursor("bm90LWpzb24")
	assert.Error(t, err)
}

func TestCursorForFundSort(t *testing.T) {
	addr := &models.Address{
		Address:   "0xdac17f958d2ee523a2206206994597c13d831ec7",
		FirstSeen: 1700000000,
		Fund:      models.Int64Ptr(500000),
		Deployed:  models.Int64Ptr(1500000000),
	}

	c := CursorFor(addr, SortFund)
	assert.Equal(t, int64(500000), c.Fund)
	assert.Equal(t, int64(1500000000), c.Deployed)
	assert.Zero(t, c.FirstSeen, "fund sort does not carry first_seen")
	assert.Equal(t, addr.Address, c.Address)
}

func TestCursorForNullsUseSentinels(t *testing.T) {
	addr := &models.Address{Address: "0xabc", FirstSeen: 1700000000}

	c := CursorFor(addr, SortFund)
	assert.Equal(t, int64(-1), c.Fund)
	assert.Equal(t, int64(-1), c.Deployed)
}

func TestCursorForFirstSeenSort(t *testing.T) {
	addr := &models.Address{Address: "0xabc", FirstSeen: 1700000000}

	c := CursorFor(addr, SortFirstSeen)
	assert.Equal(t, int64(1700000000), c.FirstSeen)
}
