package explorer

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/chains"
	apierrors "github.com/chainscope/chainscope/internal/pkg/errors"
	"github.com/chainscope/chainscope/internal/scheduler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	q := scheduler.NewQueue("explorer-test", 2, 0, 0)
	t.Cleanup(q.Close)

	network := chains.Network{
		Name:         "ethereum",
		ChainID:      1,
		ExplorerMode: chains.ExplorerUnified,
		ExplorerURL:  srv.URL,
	}
	return New(network, []string{"key-a", "key-b"}, "", false, q, discardLogger())
}

func TestRequestStatusOne(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "contract", r.URL.Query().Get("module"))
		assert.Equal(t, "1", r.URL.Query().Get("chainid"))
		assert.NotEmpty(t, r.URL.Query().Get("apikey"))
		w.Write([]byte(`{"status":"1","message":"OK","result":[{"x":1}]}`))
	})

	raw, err := c.Request(context.Background(), "contract", "getcontractcreation", Params{
		"contractaddresses": "0xABC",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"x":1}]`, string(raw))
}

func TestRequestNoDataIsNotAFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"No data found","result":[]}`))
	})

	_, err := c.Request(context.Background(), "contract", "getcontractcreation", nil)
	require.Error(t, err)
	assert.True(t, apierrors.IsNoData(err))
}

func TestRequestLowercasesAddressParams(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xdac17f958d2ee523a2206206994597c13d831ec7", r.URL.Query().Get("address"))
		w.Write([]byte(`{"status":"1","message":"OK","result":[]}`))
	})

	_, err := c.Request(context.Background(), "contract", "getsourcecode", Params{
		"address": "0xDAC17F958D2EE523A2206206994597C13D831EC7",
	})
	require.NoError(t, err)
}

func TestRequestRotatesKeyOnRateLimit(t *testing.T) {
	orig := retryBackoff
	retryBackoff = func(int, time.Duration) time.Duration { return 0 }
	t.Cleanup(func() { retryBackoff = orig })

	var keys []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.URL.Query().Get("apikey"))
		if len(keys) == 1 {
			w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
			return
		}
		w.Write([]byte(`{"status":"1","message":"OK","result":"ok"}`))
	})

	raw, err := c.Request(context.Background(), "account", "balance", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(raw))

	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1], "retry must use the next api key")
}

func TestRequestProxyModuleEnvelope(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	})

	raw, err := c.Request(context.Background(), "proxy", "eth_blockNumber", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"0x10"`, string(raw))
}

func TestContractCreations(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xaaa,0xbbb", r.URL.Query().Get("contractaddresses"))
		w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"contractAddress":"0xAAA","contractCreator":"0xcreator","txHash":"0xhash"}
		]}`))
	})

	records, err := c.ContractCreations(context.Background(), []string{"0xAAA", "0xBBB"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "0xaaa", records[0].ContractAddress)
	assert.Equal(t, "0xhash", records[0].TxHash)
}

func TestContractCreationsNoData(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"No data found","result":[]}`))
	})

	records, err := c.ContractCreations(context.Background(), []string{"0xaaa"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSourceInfoVerifiedProxy(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"ContractName":"FiatTokenProxy","Proxy":"1","Implementation":"0xIMPL","ABI":"[...]"}
		]}`))
	})

	info, err := c.SourceInfo(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, info.Verified)
	assert.True(t, info.IsProxy)
	assert.Equal(t, "FiatTokenProxy", info.ContractName)
	assert.Equal(t, "0ximpl", info.Implementation)
}

func TestSourceInfoUnverified(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"ContractName":"","Proxy":"0","Implementation":"","ABI":"Contract source code not verified"}
		]}`))
	})

	info, err := c.SourceInfo(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.False(t, info.Verified)
	assert.False(t, info.IsProxy)
}
