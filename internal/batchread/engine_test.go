package batchread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/optimizer"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	network := chains.Network{Name: "testnet"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(network, nil, map[optimizer.Operation]*optimizer.Optimizer{}, logger)
}

func makeAddrs(n int) []common.Address {
	addrs := make([]common.Address, n)
	for i := range addrs {
		addrs[i] = common.BigToAddress(common.Big1)
		addrs[i][18] = byte(i >> 8)
		addrs[i][19] = byte(i)
	}
	return addrs
}

func TestChunkOperationPreservesOrderAndLength(t *testing.T) {
	e := testEngine(t)
	addrs := makeAddrs(120)

	var calls int
	results, missing, err := chunkOperation(context.Background(), e, optimizer.OpContractCheck, addrs,
		func(ctx context.Context, chunk []common.Address) ([]string, error) {
			calls++
			out := make([]string, len(chunk))
			for i, a := range chunk {
				out[i] = a.Hex()
			}
			return out, nil
		},
		func(ctx context.Context, addr common.Address) (string, error) {
			t.Fatal("single path must not run when chunks succeed")
			return "", nil
		},
		"MISSING",
	)
	require.NoError(t, err)
	require.Len(t, results, len(addrs))
	require.Len(t, missing, len(addrs))
	for i, a := range addrs {
		assert.Equal(t, a.Hex(), results[i])
		assert.False(t, missing[i])
	}
	assert.Greater(t, calls, 1, "120 addresses must span multiple chunks")
}

func TestChunkOperationShrinksOnFailure(t *testing.T) {
	e := testEngine(t)
	addrs := makeAddrs(60)

	var sizes []int
	results, _, err := chunkOperation(context.Background(), e, optimizer.OpContractCheck, addrs,
		func(ctx context.Context, chunk []common.Address) ([]int, error) {
			sizes = append(sizes, len(chunk))
			if len(chunk) > 30 {
				return nil, errors.New("execution aborted")
			}
			out := make([]int, len(chunk))
			return out, nil
		},
		func(ctx context.Context, addr common.Address) (int, error) {
			return 0, nil
		},
		-1,
	)
	require.NoError(t, err)
	require.Len(t, results, 60)

	// The initial 50-address chunk fails and is retried at half size
	// without skipping any addresses.
	require.GreaterOrEqual(t, len(sizes), 2)
	assert.Equal(t, 50, sizes[0])
	assert.Equal(t, 25, sizes[1])
}

func TestChunkOperationDegradesToSinglesWithSentinel(t *testing.T) {
	e := testEngine(t)
	addrs := makeAddrs(8)
	broken := addrs[3]

	var chunkCalls, singleCalls int
	results, missing, err := chunkOperation(context.Background(), e, optimizer.OpContractCheck, addrs,
		func(ctx context.Context, chunk []common.Address) ([]string, error) {
			chunkCalls++
			return nil, errors.New("execution aborted")
		},
		func(ctx context.Context, addr common.Address) (string, error) {
			singleCalls++
			if addr == broken {
				return "", errors.New("execution aborted")
			}
			return addr.Hex(), nil
		},
		"MISSING",
	)
	require.NoError(t, err)
	require.Len(t, results, len(addrs))
	require.Len(t, missing, len(addrs))

	assert.Equal(t, 3, chunkCalls, "two shrink retries before degrading")
	assert.Equal(t, len(addrs), singleCalls)
	for i, a := range addrs {
		if i == 3 {
			assert.Equal(t, "MISSING", results[i])
			assert.True(t, missing[i], "sentinel slots must be marked missing")
		} else {
			assert.Equal(t, a.Hex(), results[i])
			assert.False(t, missing[i])
		}
	}
}

func TestChunkOperationTreatsShapeMismatchAsFailure(t *testing.T) {
	e := testEngine(t)
	addrs := makeAddrs(4)

	attempt := 0
	results, _, err := chunkOperation(context.Background(), e, optimizer.OpContractCheck, addrs,
		func(ctx context.Context, chunk []common.Address) ([]bool, error) {
			attempt++
			if attempt == 1 {
				// One result short: must not be appended.
				return make([]bool, len(chunk)-1), nil
			}
			out := make([]bool, len(chunk))
			for i := range out {
				out[i] = true
			}
			return out, nil
		},
		func(ctx context.Context, addr common.Address) (bool, error) {
			return false, nil
		},
		false,
	)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, v := range results {
		assert.True(t, v)
	}
}

func TestChunkOperationStopsOnContextCancel(t *testing.T) {
	e := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := chunkOperation(ctx, e, optimizer.OpCodeHash, makeAddrs(10),
		func(ctx context.Context, chunk []common.Address) ([]int, error) {
			t.Fatal("must not call after cancellation")
			return nil, nil
		},
		func(ctx context.Context, addr common.Address) (int, error) { return 0, nil },
		0,
	)
	require.Error(t, err)
}

func TestIsSocketError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("socket hang up"), true},
		{errors.New("read tcp: ECONNRESET"), true},
		{errors.New("connection reset by peer"), true},
		{fmt.Errorf("wrapped: %w", errors.New("i/o timeout")), true},
		{errors.New("execution reverted"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isSocketError(tc.err), "%v", tc.err)
	}
}
