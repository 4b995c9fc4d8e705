// Package idhash computes deterministic identifiers.
package idhash

import (
	"fmt"
	"strings"

	"dex-universe-lab/internal/domain"
)

// CanonicalInstrumentKey returns the canonical string form of an
// instrument key: "<chain_id>:<pair_address>" with both parts
// lowercased. Used for stable ordering and as the composite key's
// textual form in logs and diagnostics.
func CanonicalInstrumentKey(key domain.InstrumentKey) string {
	return fmt.Sprintf("%s:%s",
		strings.ToLower(key.ChainID),
		strings.ToLower(key.PairAddress),
	)
}

// ParseInstrumentKey parses the canonical "<chain_id>:<pair_address>"
// form back into an InstrumentKey.
func ParseInstrumentKey(s string) (domain.InstrumentKey, error) {
	chainID, pairAddress, ok := strings.Cut(s, ":")
	if !ok || chainID == "" || pairAddress == "" {
		return domain.InstrumentKey{}, fmt.Errorf("malformed instrument key %q", s)
	}
	return domain.InstrumentKey{ChainID: chainID, PairAddress: pairAddress}, nil
}
