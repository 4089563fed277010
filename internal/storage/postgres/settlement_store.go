package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/observability"
	"solana-nft-market/internal/storage"
)

// SettlementStore is a PostgreSQL implementation of storage.SettlementStore.
type SettlementStore struct {
	pool *Pool
}

// NewSettlementStore creates a new PostgreSQL settlement store.
func NewSettlementStore(pool *Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

const settlementColumns = `
	settlement_id, listing, marketplace, mint, maker, taker,
	price, vault_rent, listing_rent, slot, unix_timestamp, created_at
`

// Insert adds a new settlement. Returns ErrDuplicateKey if settlement_id exists.
func (s *SettlementStore) Insert(ctx context.Context, st *domain.Settlement) error {
	if st == nil || st.SettlementID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settlements (`+settlementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		st.SettlementID, st.Listing, st.Marketplace, st.Mint, st.Maker, st.Taker,
		int64(st.Price), int64(st.VaultRent), int64(st.ListingRent),
		int64(st.Slot), st.UnixTimestamp, st.CreatedAt,
	)
	observability.RecordDBQuery("postgres", "insert_settlement", time.Since(start).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetByID retrieves a settlement by its ID. Returns ErrNotFound if not exists.
func (s *SettlementStore) GetByID(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE settlement_id = $1
	`, settlementID)

	st, err := scanSettlement(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	return st, nil
}

// GetByListing retrieves the settlements of a listing address.
func (s *SettlementStore) GetByListing(ctx context.Context, listing string) ([]*domain.Settlement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE listing = $1
		ORDER BY slot ASC, settlement_id ASC
	`, listing)
	if err != nil {
		return nil, fmt.Errorf("query settlements by listing: %w", err)
	}
	defer rows.Close()

	return scanSettlements(rows)
}

// GetByTimeRange retrieves settlements with unix_timestamp in [start, end].
func (s *SettlementStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Settlement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE unix_timestamp >= $1 AND unix_timestamp <= $2
		ORDER BY slot ASC, settlement_id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query settlements by time range: %w", err)
	}
	defer rows.Close()

	return scanSettlements(rows)
}

// GetAll retrieves every settlement ordered by slot ASC.
func (s *SettlementStore) GetAll(ctx context.Context) ([]*domain.Settlement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		ORDER BY slot ASC, settlement_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	return scanSettlements(rows)
}

// scanSettlement scans a single row into a Settlement.
func scanSettlement(row pgx.Row) (*domain.Settlement, error) {
	var (
		st                                  domain.Settlement
		price, vaultRent, listingRent, slot int64
	)
	err := row.Scan(
		&st.SettlementID, &st.Listing, &st.Marketplace, &st.Mint, &st.Maker, &st.Taker,
		&price, &vaultRent, &listingRent, &slot, &st.UnixTimestamp, &st.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.Price = uint64(price)
	st.VaultRent = uint64(vaultRent)
	st.ListingRent = uint64(listingRent)
	st.Slot = uint64(slot)
	return &st, nil
}

// scanSettlements scans multiple rows.
func scanSettlements(rows pgx.Rows) ([]*domain.Settlement, error) {
	var result []*domain.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

var _ storage.SettlementStore = (*SettlementStore)(nil)
