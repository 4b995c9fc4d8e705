package snapshot

import "dex-universe-lab/internal/domain"

// Fixtures returns a small in-memory snapshot for demonstration runs
// when no market data source is configured.
func Fixtures(tsUTC int64) *Snapshot {
	return &Snapshot{
		TsUTC: tsUTC,
		Candidates: []*domain.InstrumentCandidate{
			{
				Key:          domain.InstrumentKey{ChainID: "solana", PairAddress: "8sLbNZoA1cfnvMJLPfp98ZLAnFSYCFApfJKMbiXNLwxj"},
				LiquidityUSD: 4_200_000,
				VolumeUSD:    11_500_000,
			},
			{
				Key:          domain.InstrumentKey{ChainID: "solana", PairAddress: "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"},
				LiquidityUSD: 1_800_000,
				VolumeUSD:    6_400_000,
			},
			{
				Key:          domain.InstrumentKey{ChainID: "ethereum", PairAddress: "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"},
				LiquidityUSD: 9_600_000,
				VolumeUSD:    32_000_000,
			},
			{
				Key:          domain.InstrumentKey{ChainID: "ethereum", PairAddress: "0x11b815efb8f581194ae79006d24e0d814b7697f6"},
				LiquidityUSD: 650_000,
				VolumeUSD:    2_100_000,
			},
			{
				Key:          domain.InstrumentKey{ChainID: "base", PairAddress: "0xd0b53d9277642d899df5c87a3966a349a798f224"},
				LiquidityUSD: 310_000,
				VolumeUSD:    900_000,
			},
			{
				Key:          domain.InstrumentKey{ChainID: "base", PairAddress: "0x4c36388be6f416a29c8d8eee81c771ce6be14b18"},
				LiquidityUSD: 42_000,
				VolumeUSD:    120_000,
			},
		},
	}
}
