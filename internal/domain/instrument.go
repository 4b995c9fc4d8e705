package domain

// InstrumentKey identifies one market pair on one chain.
// (ChainID, PairAddress) is the composite key used across all tables.
type InstrumentKey struct {
	ChainID     string // e.g. "solana", "ethereum", "base"
	PairAddress string // pool/pair contract address
}

// InstrumentCandidate represents one market pair at one refresh timestamp.
// Ephemeral: recomputed every refresh, never persisted directly.
type InstrumentCandidate struct {
	Key          InstrumentKey
	LiquidityUSD float64 // pool liquidity in USD, must be >= 0
	VolumeUSD    float64 // trailing volume in USD

	// Derived by the tradability scorer.
	CapacityUSD    float64 // max position size under the liquidity limit
	EstSlippageBps float64 // estimated slippage at full capacity
	Tradable       bool    // EstSlippageBps <= policy threshold
}
