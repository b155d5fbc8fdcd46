package scanner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/logfetch"
)

func TestBlockClockMemoizesLookups(t *testing.T) {
	var lookups int
	clock := newBlockClock(func(ctx context.Context, number uint64) (int64, error) {
		lookups++
		return 1_700_000_000 + int64(number), nil
	})

	ctx := context.Background()
	assert.Equal(t, int64(1_700_000_100), clock.at(ctx, 100, 5))
	assert.Equal(t, int64(1_700_000_100), clock.at(ctx, 100, 5))
	assert.Equal(t, 1, lookups, "repeat blocks must hit the memo")

	assert.Equal(t, int64(1_700_000_200), clock.at(ctx, 200, 5))
	assert.Equal(t, 2, lookups)
}

func TestBlockClockFallsBackAndRetries(t *testing.T) {
	broken := true
	var lookups int
	clock := newBlockClock(func(ctx context.Context, number uint64) (int64, error) {
		lookups++
		if broken {
			return 0, errors.New("connection reset")
		}
		return 1_700_000_000, nil
	})

	ctx := context.Background()
	assert.Equal(t, int64(42), clock.at(ctx, 7, 42), "failed lookup returns the fallback")

	// The failure must not be memoized: once the node recovers, the real
	// timestamp comes through.
	broken = false
	assert.Equal(t, int64(1_700_000_000), clock.at(ctx, 7, 42))
	assert.Equal(t, 2, lookups)
}

func addrTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func transferLog(from, to common.Address) types.Log {
	return types.Log{
		Topics: []common.Hash{logfetch.TransferTopic, addrTopic(from), addrTopic(to)},
	}
}

func TestTouchedAddresses(t *testing.T) {
	alice := common.HexToAddress("0x" + strings.Repeat("aa", 20))
	bob := common.HexToAddress("0x" + strings.Repeat("bb", 20))
	carol := common.HexToAddress("0x" + strings.Repeat("cc", 20))

	logs := []types.Log{
		transferLog(alice, bob),
		transferLog(bob, carol),
		// Mint: the zero-address counterparty is skipped.
		transferLog(common.Address{}, alice),
		// Anonymous topic shapes are ignored.
		{Topics: []common.Hash{logfetch.TransferTopic}},
	}

	got := touchedAddresses(logs)
	require.Len(t, got, 3)
	assert.Equal(t, strings.ToLower(alice.Hex()), got[0])
	assert.Equal(t, strings.ToLower(bob.Hex()), got[1])
	assert.Equal(t, strings.ToLower(carol.Hex()), got[2])
}
