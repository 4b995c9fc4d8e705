// Package scoring computes capacity-aware tradability for instrument
// candidates. Pure transformation: no external state, safe to call
// repeatedly and concurrently on independent inputs.
package scoring

import (
	"fmt"
	"math"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/idhash"
)

// slippageScaleUSDBps calibrates the reciprocal slippage estimator:
// estimated slippage is 1 bps at $10k capacity, 10 bps at $1k, and so
// on. The exact form is internal; the binding contract is monotonicity
// in capacity.
const slippageScaleUSDBps = 10_000.0

// Policy holds the position-size limits applied by Score.
type Policy struct {
	// MaxPositionLiquidityPct is the max position size as a fraction of
	// pool liquidity, e.g. 0.01 for 1%.
	MaxPositionLiquidityPct float64

	// MaxSlippageBpsTradable is the estimated-slippage threshold above
	// which an instrument is non-tradable. Equality is tradable.
	MaxSlippageBpsTradable float64
}

// NegativeLiquidityError is a data-quality error: input rows must carry
// non-negative liquidity. Never silently clamped.
type NegativeLiquidityError struct {
	Key          domain.InstrumentKey
	LiquidityUSD float64
}

func (e *NegativeLiquidityError) Error() string {
	return fmt.Sprintf("negative liquidity %.4f for instrument %s",
		e.LiquidityUSD, idhash.CanonicalInstrumentKey(e.Key))
}

// Score derives CapacityUSD, EstSlippageBps and Tradable for every
// candidate. The input slice is not mutated; a scored copy is returned.
// Returns a NegativeLiquidityError for the first row with negative
// liquidity.
func Score(candidates []domain.InstrumentCandidate, policy Policy) ([]domain.InstrumentCandidate, error) {
	scored := make([]domain.InstrumentCandidate, len(candidates))

	for i, c := range candidates {
		if c.LiquidityUSD < 0 {
			return nil, &NegativeLiquidityError{Key: c.Key, LiquidityUSD: c.LiquidityUSD}
		}

		c.CapacityUSD = policy.MaxPositionLiquidityPct * c.LiquidityUSD
		c.EstSlippageBps = estimateSlippageBps(c.CapacityUSD)
		c.Tradable = c.EstSlippageBps <= policy.MaxSlippageBpsTradable
		scored[i] = c
	}

	return scored, nil
}

// estimateSlippageBps estimates slippage at full capacity. Reciprocal
// in capacity: strictly decreasing, finite and positive for capacity > 0.
// Zero capacity clips to MaxFloat64 instead of dividing by zero.
func estimateSlippageBps(capacityUSD float64) float64 {
	if capacityUSD <= 0 {
		return math.MaxFloat64
	}
	return slippageScaleUSDBps / capacityUSD
}
