package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/observability"
	"solana-nft-market/internal/storage"
)

// SettlementEventStore implements storage.SettlementEventStore using ClickHouse.
type SettlementEventStore struct {
	conn *Conn
}

// NewSettlementEventStore creates a new SettlementEventStore.
func NewSettlementEventStore(conn *Conn) *SettlementEventStore {
	return &SettlementEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SettlementEventStore = (*SettlementEventStore)(nil)

// InsertBulk adds multiple events. Fails entire batch on duplicate settlement_id.
// MergeTree does not enforce keys, so duplicates are checked before the insert.
func (s *SettlementEventStore) InsertBulk(ctx context.Context, events []*domain.Settlement) error {
	if len(events) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(events))
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if e == nil || e.SettlementID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.SettlementID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.SettlementID] = struct{}{}
		ids = append(ids, e.SettlementID)
	}

	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM settlement_events
		WHERE settlement_id IN (?)
	`, ids).Scan(&count)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO settlement_events (
			settlement_id, listing, marketplace, mint, maker, taker,
			price, vault_rent, listing_rent, slot, unix_timestamp, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.SettlementID, e.Listing, e.Marketplace, e.Mint, e.Maker, e.Taker,
			e.Price, e.VaultRent, e.ListingRent, e.Slot, e.UnixTimestamp, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	start := time.Now()
	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_settlement_events", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMarketplace retrieves events for a marketplace, ordered by slot ASC.
func (s *SettlementEventStore) GetByMarketplace(ctx context.Context, marketplace string) ([]*domain.Settlement, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT settlement_id, listing, marketplace, mint, maker, taker,
		       price, vault_rent, listing_rent, slot, unix_timestamp, created_at
		FROM settlement_events
		WHERE marketplace = ?
		ORDER BY slot ASC
	`, marketplace)
	if err != nil {
		return nil, fmt.Errorf("query by marketplace: %w", err)
	}
	defer rows.Close()

	return scanSettlementEvents(rows)
}

// VolumeByMarketplace sums settled price per marketplace within [start, end].
func (s *SettlementEventStore) VolumeByMarketplace(ctx context.Context, start, end int64) (map[string]uint64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT marketplace, sum(price)
		FROM settlement_events
		WHERE unix_timestamp >= ? AND unix_timestamp <= ?
		GROUP BY marketplace
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query volume: %w", err)
	}
	defer rows.Close()

	volume := make(map[string]uint64)
	for rows.Next() {
		var (
			marketplace string
			sum         uint64
		)
		if err := rows.Scan(&marketplace, &sum); err != nil {
			return nil, fmt.Errorf("scan volume row: %w", err)
		}
		volume[marketplace] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume rows: %w", err)
	}
	return volume, nil
}

// scanSettlementEvents scans multiple rows.
func scanSettlementEvents(rows chRows) ([]*domain.Settlement, error) {
	var events []*domain.Settlement

	for rows.Next() {
		var e domain.Settlement
		err := rows.Scan(
			&e.SettlementID, &e.Listing, &e.Marketplace, &e.Mint, &e.Maker, &e.Taker,
			&e.Price, &e.VaultRent, &e.ListingRent, &e.Slot, &e.UnixTimestamp, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan settlement event row: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement event rows: %w", err)
	}

	return events, nil
}
