package models

// ContractCreation is the transient result of resolving a contract's
// deployment metadata through the explorer and the node.
type ContractCreation struct {
	Address             string
	TxHash              string
	BlockNumber         uint64
	DeploymentTimestamp int64
	IsGenesis           bool
	// IsEOA is set when the explorer has no record and the node reports no
	// code: the address was misrouted here and should be tagged EOA.
	IsEOA bool
	// FallbackFirstSeen is set when the contract exists on-chain but the
	// explorer has not indexed it; DeploymentTimestamp then carries first_seen.
	FallbackFirstSeen bool
}

// HasTimestamp reports whether a deployment time was actually resolved. A
// zero timestamp means none was: genesis contracts on chains without a
// configured genesis time must leave the deployed column null.
func (c ContractCreation) HasTimestamp() bool {
	return c.DeploymentTimestamp != 0
}

// TokenInfo describes one curated ERC-20 token. Decimals are authoritative
// from the per-network metadata file, never read from chain.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// SymbolPrice is one row of the symbol_prices table.
type SymbolPrice struct {
	Symbol      string
	PriceUSD    float64
	LastUpdated int64
}
