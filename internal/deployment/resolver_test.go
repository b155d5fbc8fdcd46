package deployment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/chains"
	"github.com/chainscope/chainscope/internal/explorer"
	"github.com/chainscope/chainscope/internal/rpc"
	"github.com/chainscope/chainscope/internal/scheduler"
)

var (
	genesisAddr  = "0x" + strings.Repeat("aa", 20)
	deployedAddr = "0x" + strings.Repeat("bb", 20)
	eoaAddr      = "0x" + strings.Repeat("cc", 20)
	unindexed    = "0x" + strings.Repeat("dd", 20)

	creationTx = "0x" + strings.Repeat("11", 32)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// nodeHandler fakes the three node methods the resolver touches.
func nodeHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     string `json:"id"`
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result string
		switch req.Method {
		case "eth_getTransactionByHash":
			result = fmt.Sprintf(`{"hash":%q,"blockNumber":"0x64"}`, creationTx)
		case "eth_getBlockByNumber":
			result = fmt.Sprintf(`{"number":"0x64","hash":%q,"timestamp":"0x6553f100"}`, creationTx)
		case "eth_getCode":
			addr, _ := req.Params[0].(string)
			if strings.EqualFold(addr, eoaAddr) {
				result = `"0x"`
			} else {
				result = `"0x6001600081"`
			}
		default:
			t.Fatalf("unexpected rpc method %s", req.Method)
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%q,"result":%s}`, req.ID, result)
	}
}

func explorerHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "getcontractcreation", r.URL.Query().Get("action"))
		requested := r.URL.Query().Get("contractaddresses")

		var rows []string
		if strings.Contains(requested, genesisAddr) {
			rows = append(rows, fmt.Sprintf(
				`{"contractAddress":%q,"contractCreator":"0x0000000000000000000000000000000000000000","txHash":"GENESIS_%s"}`,
				genesisAddr, genesisAddr))
		}
		if strings.Contains(requested, deployedAddr) {
			rows = append(rows, fmt.Sprintf(
				`{"contractAddress":%q,"contractCreator":"0x0000000000000000000000000000000000000001","txHash":%q}`,
				deployedAddr, creationTx))
		}
		fmt.Fprintf(w, `{"status":"1","message":"OK","result":[%s]}`, strings.Join(rows, ","))
	}
}

func testResolver(t *testing.T) *Resolver {
	return testResolverOn(t, 10)
}

func testResolverOn(t *testing.T, chainID uint64) *Resolver {
	t.Helper()
	node := httptest.NewServer(nodeHandler(t))
	t.Cleanup(node.Close)
	exp := httptest.NewServer(explorerHandler(t))
	t.Cleanup(exp.Close)

	q := scheduler.NewQueue("resolver-test", 2, 0, 0)
	t.Cleanup(q.Close)

	network := chains.Network{
		Name:         "optimism",
		ChainID:      chainID,
		ExplorerMode: chains.ExplorerDedicated,
		ExplorerURL:  exp.URL,
	}
	states := rpc.NewEndpointStates(discardLogger())
	client := rpc.NewProviderClient(network.Name, node.URL, states, q, discardLogger(), rpc.Options{})
	expClient := explorer.New(network, nil, "", false, q, discardLogger())
	return NewResolver(network, expClient, client, discardLogger())
}

func TestResolveGenesisContract(t *testing.T) {
	r := testResolver(t)

	out, err := r.Resolve(context.Background(), []string{genesisAddr}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.True(t, got.IsGenesis)
	assert.Equal(t, genesisAddr, got.Address)

	// The deployment timestamp is the chain's genesis timestamp, not a
	// block lookup.
	want, ok := chains.GenesisTimestamp(10)
	require.True(t, ok)
	assert.Equal(t, want, got.DeploymentTimestamp)
	assert.True(t, got.HasTimestamp())
}

func TestResolveGenesisOnChainWithoutGenesisTime(t *testing.T) {
	r := testResolverOn(t, 999999)

	out, err := r.Resolve(context.Background(), []string{genesisAddr}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	// No configured genesis timestamp: the record stays genesis-flagged but
	// carries no timestamp, so callers leave deployed null.
	got := out[0]
	assert.True(t, got.IsGenesis)
	assert.Zero(t, got.DeploymentTimestamp)
	assert.False(t, got.HasTimestamp())
}

func TestResolveDeploymentViaCreationTx(t *testing.T) {
	r := testResolver(t)

	out, err := r.Resolve(context.Background(), []string{deployedAddr}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.False(t, got.IsGenesis)
	assert.Equal(t, uint64(0x64), got.BlockNumber)
	assert.Equal(t, int64(0x6553f100), got.DeploymentTimestamp)
	assert.Equal(t, creationTx, got.TxHash)
}

func TestResolveMissingRecordClassifiesEOA(t *testing.T) {
	r := testResolver(t)

	out, err := r.Resolve(context.Background(), []string{eoaAddr}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsEOA)
	assert.Zero(t, out[0].DeploymentTimestamp)
}

func TestResolveUnindexedContractFallsBackToFirstSeen(t *testing.T) {
	r := testResolver(t)

	firstSeen := map[string]int64{unindexed: 1700001234}
	out, err := r.Resolve(context.Background(), []string{unindexed}, firstSeen)
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.False(t, got.IsEOA)
	assert.True(t, got.FallbackFirstSeen)
	assert.Equal(t, int64(1700001234), got.DeploymentTimestamp)
}

func TestResolvePreservesInputOrderAcrossMixedBatch(t *testing.T) {
	r := testResolver(t)

	addrs := []string{deployedAddr, eoaAddr, genesisAddr, unindexed}
	out, err := r.Resolve(context.Background(), addrs, map[string]int64{unindexed: 42})
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, deployedAddr, out[0].Address)
	assert.True(t, out[1].IsEOA)
	assert.True(t, out[2].IsGenesis)
	assert.True(t, out[3].FallbackFirstSeen)
}
