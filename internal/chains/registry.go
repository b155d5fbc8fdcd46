// Package chains holds the static per-network configuration: chain ids, RPC
// endpoint lists, explorer access modes, helper contracts, provider-tier
// block-range caps and activity profiles.
package chains

import (
	"fmt"
	"os"
	"strings"
)

// Tier identifies the RPC provider plan; it caps the block range a single
// getLogs request may span.
type Tier string

const (
	TierFree    Tier = "free"
	TierPayg    Tier = "payg"
	TierGrowth  Tier = "growth"
	TierPremium Tier = "premium"
)

// Activity classifies a network's log density and selects the fetch profile.
type Activity string

const (
	ActivityUltraHigh Activity = "ultra-high"
	ActivityHigh      Activity = "high"
	ActivityMedium    Activity = "medium"
	ActivityLow       Activity = "low"
	ActivityLegacy    Activity = "legacy"
)

// ExplorerMode selects how explorer-API requests are addressed.
type ExplorerMode string

const (
	// ExplorerUnified uses a single base URL with a mandatory chainid query
	// parameter (etherscan v2 style).
	ExplorerUnified ExplorerMode = "unified"
	// ExplorerDedicated uses a network-specific base URL without chainid.
	ExplorerDedicated ExplorerMode = "dedicated"
)

const unifiedExplorerURL = "https://api.etherscan.io/v2/api"

// Network is one chain's static configuration.
type Network struct {
	Name            string
	ChainID         uint64
	RPCURLs         []string
	ExplorerMode    ExplorerMode
	ExplorerURL     string
	NativeSymbol    string
	Activity        Activity
	BalanceHelper   string // aggregator for native/token balance reads; empty if not deployed
	ContractChecker string // aggregator for isContract/getCodeHashes; empty if not deployed
	TierBlockCaps   map[Tier]uint64
}

// HasBalanceHelper reports whether the balance aggregator is deployed.
func (n *Network) HasBalanceHelper() bool { return n.BalanceHelper != "" }

// HasContractChecker reports whether the validator aggregator is deployed.
func (n *Network) HasContractChecker() bool { return n.ContractChecker != "" }

// TierCap returns the getLogs block-range cap for the given tier, falling
// back to the free cap when the tier is unknown.
func (n *Network) TierCap(tier Tier) uint64 {
	if cap, ok := n.TierBlockCaps[tier]; ok {
		return cap
	}
	return n.TierBlockCaps[TierFree]
}

var defaultCaps = map[Tier]uint64{
	TierFree:    10,
	TierPayg:    2000,
	TierGrowth:  10000,
	TierPremium: 100000,
}

var registry = []Network{
	{
		Name:    "ethereum",
		ChainID: 1,
		RPCURLs: []string{
			"https://eth.llamarpc.com",
			"https://rpc.ankr.com/eth",
			"https://ethereum-rpc.publicnode.com",
			"https://cloudflare-eth.com",
		},
		ExplorerMode:    ExplorerUnified,
		ExplorerURL:     unifiedExplorerURL,
		NativeSymbol:    "ETH",
		Activity:        ActivityHigh,
		BalanceHelper:   "0x5dacd5e05c2e68ba72e4fbdb93e9b02cdcba1a00",
		ContractChecker: "0xe66bf1bbf5b371fc95ae1d1fe0e92c8c8b90ba20",
		TierBlockCaps:   defaultCaps,
	},
	{
		Name:    "bsc",
		ChainID: 56,
		RPCURLs: []string{
			"https://bsc-dataseed.bnbchain.org",
			"https://bsc-dataseed1.defibit.io",
			"https://bsc-rpc.publicnode.com",
		},
		ExplorerMode:    ExplorerUnified,
		ExplorerURL:     unifiedExplorerURL,
		NativeSymbol:    "BNB",
		Activity:        ActivityUltraHigh,
		BalanceHelper:   "0x2352c63a83f9fd126af8676146721fa00924d7e4",
		ContractChecker: "0x53699b2a9aa5d90c8e2f4b6a8d0c2e4f6a8b0d2c",
		TierBlockCaps:   defaultCaps,
	},
	{
		Name:    "polygon",
		ChainID: 137,
		RPCURLs: []string{
			"https://polygon-rpc.com",
			"https://rpc.ankr.com/polygon",
			"https://polygon-bor-rpc.publicnode.com",
		},
		ExplorerMode:    ExplorerUnified,
		ExplorerURL:     unifiedExplorerURL,
		NativeSymbol:    "POL",
		Activity:        ActivityUltraHigh,
		BalanceHelper:   "0x8b24c886e2f1fc4fdfb1f03a4c57dd0f1c3ed0d8",
		ContractChecker: "0x9f1a1c3c5d2e4b6a8c0e2f4a6b8d0f2a4c6e8a0c",
		TierBlockCaps:   defaultCaps,
	},
	{
		Name:    "arbitrum",
		ChainID: 42161,
		RPCURLs: []string{
			"https://arb1.arbitrum.io/rpc",
			"https://rpc.ankr.com/arbitrum",
			"https://arbitrum-one-rpc.publicnode.com",
		},
		ExplorerMode:    ExplorerUnified,
		ExplorerURL:     unifiedExplorerURL,
		NativeSymbol:    "ETH",
		Activity:        ActivityUltraHigh,
		BalanceHelper:   "0x3d7c8a1f9b2e4d6c8a0f2b4d6e8a0c2e4f6a8c0e",
		ContractChecker: "0x7b1e3f5a7c9e1b3d5f7a9c1e3b5d7f9a1c3e5b7d",
		TierBlockCaps:   defaultCaps,
	},
	{
		Name:    "optimism",
		ChainID: 10,
		RPCURLs: []string{
			"https://mainnet.optimism.io",
			"https://rpc.ankr.com/optimism",
			"https://optimism-rpc.publicnode.com",
		},
		ExplorerMode:    ExplorerUnified,
		ExplorerURL:     unifiedExplorerURL,
		NativeSymbol:    "ETH",
		Activity:        ActivityHigh,
		BalanceHelper:   "0x6a9c2e4f8b0d2a4c6e8f0b2d4a6c8e0f2b4d6a8c",
		ContractChecker: "0x2c4e6a8f0b2d4c6e8a0f2b4d6c8e0a2f4b6d8c0e",
		TierBlockCaps:   defaultCaps,
	},
	{
		Name:    "base",
		ChainID: 8453,
		RPCURLs: []string{
			"https://mainnet.base.org",
			"https://base-rpc.publicnode.com",
			"https://rpc.ankr.com/base",
		},
		ExplorerMode:    ExplorerUnified,
		ExplorerURL:     unifiedExplorerURL,
		NativeSymbol:    "ETH",
		Activity:        ActivityUltraHigh,
		BalanceHelper:   "0x4f8a0c2e6b4d8a0c2e6f8b0d2a4c6e8f0b2d4a6c",
		ContractChecker: "0x8e0a2c4f6b8d0a2c4e6f8a0b2c4d6e8f0a2b4c6d",
		TierBlockCaps:   defaultCaps,
	},
	{
		Name:    "avalanche",
		ChainID: 43114,
		RPCURLs: []string{
			"https://api.avax.network/ext/bc/C/rpc",
			"https://avalanche-c-chain-rpc.publicnode.com",
		},
		ExplorerMode:  ExplorerUnified,
		ExplorerURL:   unifiedExplorerURL,
		NativeSymbol:  "AVAX",
		Activity:      ActivityMedium,
		TierBlockCaps: defaultCaps,
	},
	{
		Name:    "fantom",
		ChainID: 250,
		RPCURLs: []string{
			"https://rpcapi.fantom.network",
			"https://fantom-rpc.publicnode.com",
		},
		ExplorerMode:  ExplorerDedicated,
		ExplorerURL:   "https://api.ftmscan.com/api",
		NativeSymbol:  "FTM",
		Activity:      ActivityLegacy,
		TierBlockCaps: defaultCaps,
	},
	{
		Name:    "gnosis",
		ChainID: 100,
		RPCURLs: []string{
			"https://rpc.gnosischain.com",
			"https://gnosis-rpc.publicnode.com",
		},
		ExplorerMode:  ExplorerUnified,
		ExplorerURL:   unifiedExplorerURL,
		NativeSymbol:  "XDAI",
		Activity:      ActivityLow,
		TierBlockCaps: defaultCaps,
	},
	{
		Name:    "celo",
		ChainID: 42220,
		RPCURLs: []string{
			"https://forno.celo.org",
			"https://rpc.ankr.com/celo",
		},
		ExplorerMode:  ExplorerUnified,
		ExplorerURL:   unifiedExplorerURL,
		NativeSymbol:  "CELO",
		Activity:      ActivityLow,
		TierBlockCaps: defaultCaps,
	},
	{
		Name:    "moonbeam",
		ChainID: 1284,
		RPCURLs: []string{
			"https://rpc.api.moonbeam.network",
			"https://moonbeam-rpc.publicnode.com",
		},
		ExplorerMode:  ExplorerDedicated,
		ExplorerURL:   "https://api-moonbeam.moonscan.io/api",
		NativeSymbol:  "GLMR",
		Activity:      ActivityLow,
		TierBlockCaps: defaultCaps,
	},
	{
		Name:    "linea",
		ChainID: 59144,
		RPCURLs: []string{
			"https://rpc.linea.build",
			"https://linea-rpc.publicnode.com",
		},
		ExplorerMode:  ExplorerUnified,
		ExplorerURL:   unifiedExplorerURL,
		NativeSymbol:  "ETH",
		Activity:      ActivityMedium,
		TierBlockCaps: defaultCaps,
	},
	{
		Name:    "scroll",
		ChainID: 534352,
		RPCURLs: []string{
			"https://rpc.scroll.io",
			"https://scroll-rpc.publicnode.com",
		},
		ExplorerMode:  ExplorerUnified,
		ExplorerURL:   unifiedExplorerURL,
		NativeSymbol:  "ETH",
		Activity:      ActivityMedium,
		TierBlockCaps: defaultCaps,
	},
	{
		Name:    "zksync",
		ChainID: 324,
		RPCURLs: []string{
			"https://mainnet.era.zksync.io",
		},
		ExplorerMode:  ExplorerDedicated,
		ExplorerURL:   "https://api-era.zksync.network/api",
		NativeSymbol:  "ETH",
		Activity:      ActivityMedium,
		TierBlockCaps: defaultCaps,
	},
}

// All returns every registered network with environment overrides applied.
// Per-network RPC URL lists may be replaced via <NETWORK>_RPC_URL
// (comma or whitespace separated).
func All() []Network {
	out := make([]Network, len(registry))
	copy(out, registry)
	for i := range out {
		if urls := rpcOverride(out[i].Name); len(urls) > 0 {
			out[i].RPCURLs = urls
		}
	}
	return out
}

// Get returns the configuration for one network.
func Get(name string) (Network, error) {
	for _, n := range All() {
		if n.Name == name {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("unknown network %q", name)
}

// Names returns the registered network names in registry order.
func Names() []string {
	names := make([]string, len(registry))
	for i, n := range registry {
		names[i] = n.Name
	}
	return names
}

func rpcOverride(network string) []string {
	raw := os.Getenv(strings.ToUpper(network) + "_RPC_URL")
	if raw == "" {
		return nil
	}
	var urls []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	}) {
		if part != "" {
			urls = append(urls, part)
		}
	}
	return urls
}
