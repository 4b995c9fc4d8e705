// Package snapshot loads market candidate snapshots from JSON files.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"

	"dex-universe-lab/internal/domain"
)

// candidateRecord is the JSON wire form of one snapshot row.
type candidateRecord struct {
	ChainID      string  `json:"chain_id"`
	PairAddress  string  `json:"pair_address"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	VolumeUSD    float64 `json:"volume_usd"`
}

// Snapshot is one market snapshot: all candidates observed at a single
// refresh timestamp.
type Snapshot struct {
	TsUTC      int64                         `json:"ts_utc"`
	Candidates []*domain.InstrumentCandidate `json:"-"`
}

type snapshotFile struct {
	TsUTC      int64             `json:"ts_utc"`
	Candidates []candidateRecord `json:"candidates"`
}

// LoadFile reads a snapshot from a JSON file.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a snapshot from JSON bytes.
func Parse(data []byte) (*Snapshot, error) {
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if file.TsUTC <= 0 {
		return nil, fmt.Errorf("snapshot missing ts_utc")
	}

	snap := &Snapshot{TsUTC: file.TsUTC}
	seen := make(map[domain.InstrumentKey]struct{}, len(file.Candidates))
	for i, rec := range file.Candidates {
		if rec.ChainID == "" || rec.PairAddress == "" {
			return nil, fmt.Errorf("snapshot candidate %d missing instrument key", i)
		}
		key := domain.InstrumentKey{ChainID: rec.ChainID, PairAddress: rec.PairAddress}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("snapshot candidate %d duplicates %s/%s", i, rec.ChainID, rec.PairAddress)
		}
		seen[key] = struct{}{}
		snap.Candidates = append(snap.Candidates, &domain.InstrumentCandidate{
			Key:          key,
			LiquidityUSD: rec.LiquidityUSD,
			VolumeUSD:    rec.VolumeUSD,
		})
	}
	return snap, nil
}
