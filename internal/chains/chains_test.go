package chains

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKnownNetwork(t *testing.T) {
	n, err := Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n.ChainID)
	assert.Equal(t, ExplorerUnified, n.ExplorerMode)
	assert.True(t, n.HasBalanceHelper())
	assert.True(t, n.HasContractChecker())
}

func TestGetUnknownNetwork(t *testing.T) {
	_, err := Get("notachain")
	assert.Error(t, err)
}

func TestTierCapFallsBackToFree(t *testing.T) {
	n, err := Get("bsc")
	require.NoError(t, err)

	assert.Equal(t, uint64(10), n.TierCap(TierFree))
	assert.Equal(t, uint64(2000), n.TierCap(TierPayg))
	assert.Equal(t, uint64(10000), n.TierCap(TierGrowth))
	assert.Equal(t, uint64(10), n.TierCap(Tier("enterprise")))
}

func TestRPCOverrideFromEnv(t *testing.T) {
	t.Setenv("GNOSIS_RPC_URL", "https://one.example, https://two.example")

	n, err := Get("gnosis")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://one.example", "https://two.example"}, n.RPCURLs)
}

func TestGenesisTimestamp(t *testing.T) {
	ts, ok := GenesisTimestamp(10)
	require.True(t, ok)
	assert.Equal(t, int64(1636665385), ts)

	_, ok = GenesisTimestamp(999999)
	assert.False(t, ok)
}

func TestLoadTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ethereum.json")
	payload := `[{"address":"0xDAC17F958D2EE523A2206206994597C13D831EC7","symbol":"USDT","decimals":6}]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	tokens, err := LoadTokens(dir, "ethereum")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "0xdac17f958d2ee523a2206206994597c13d831ec7", tokens[0].Address)
	assert.Equal(t, 6, tokens[0].Decimals)
}

func TestLoadTokensMissingFile(t *testing.T) {
	tokens, err := LoadTokens(t.TempDir(), "moonbeam")
	require.NoError(t, err)
	assert.Nil(t, tokens)
}

func TestLoadTokensRejectsImplausibleDecimals(t *testing.T) {
	dir := t.TempDir()
	payload := `[{"address":"0xdac17f958d2ee523a2206206994597c13d831ec7","symbol":"BAD","decimals":77}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bsc.json"), []byte(payload), 0o644))

	_, err := LoadTokens(dir, "bsc")
	assert.Error(t, err)
}
