package clickhouse

import (
	"context"
	"fmt"

	"dex-universe-lab/internal/domain"
	"dex-universe-lab/internal/storage"
)

// ChurnHistoryStore implements storage.ChurnHistoryStore using ClickHouse.
type ChurnHistoryStore struct {
	conn *Conn
}

var _ storage.ChurnHistoryStore = (*ChurnHistoryStore)(nil)

// NewChurnHistoryStore creates a new ClickHouse churn history store.
func NewChurnHistoryStore(conn *Conn) *ChurnHistoryStore {
	return &ChurnHistoryStore{conn: conn}
}

// InsertBulk archives churn entries using batch insert.
func (s *ChurnHistoryStore) InsertBulk(ctx context.Context, entries []*domain.ChurnLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e == nil {
			return fmt.Errorf("%w: nil churn entry", storage.ErrInvalidInput)
		}
		if e.Key.ChainID == "" || e.Key.PairAddress == "" {
			return fmt.Errorf("%w: churn entry missing instrument key", storage.ErrInvalidInput)
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO churn_history (ts_utc, action, reason, chain_id, pair_address)
	`)
	if err != nil {
		return fmt.Errorf("prepare churn history batch: %w", err)
	}

	for _, e := range entries {
		if err := batch.Append(
			uint64(e.TsUTC),
			domain.CanonicalChurnAction(e.Action),
			e.Reason,
			e.Key.ChainID,
			e.Key.PairAddress,
		); err != nil {
			return fmt.Errorf("append churn history row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send churn history batch: %w", err)
	}
	return nil
}

// CountByInstrument aggregates churn events per instrument since fromTsUTC,
// most-churned first.
func (s *ChurnHistoryStore) CountByInstrument(ctx context.Context, fromTsUTC int64) ([]*domain.InstrumentChurnCount, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT chain_id, pair_address, count() AS events
		FROM churn_history
		WHERE ts_utc >= ?
		GROUP BY chain_id, pair_address
		ORDER BY events DESC, chain_id ASC, pair_address ASC
	`, uint64(fromTsUTC))
	if err != nil {
		return nil, fmt.Errorf("query churn counts: %w", err)
	}
	defer rows.Close()

	var counts []*domain.InstrumentChurnCount
	for rows.Next() {
		var (
			chainID string
			pair    string
			events  uint64
		)
		if err := rows.Scan(&chainID, &pair, &events); err != nil {
			return nil, fmt.Errorf("scan churn count row: %w", err)
		}
		counts = append(counts, &domain.InstrumentChurnCount{
			Key:    domain.InstrumentKey{ChainID: chainID, PairAddress: pair},
			Events: int64(events),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate churn count rows: %w", err)
	}
	return counts, nil
}
