package storage

import (
	"context"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/solana"
)

// Ledger provides transactional access to ledger_accounts.
type Ledger interface {
	// Begin starts a transaction. Transactions are serialized: Begin blocks until
	// every earlier transaction has committed or rolled back, or ctx is done.
	Begin(ctx context.Context) (LedgerTx, error)
}

// LedgerTx is one atomic unit of ledger work. Writes are invisible to other
// transactions until Commit. Any error path must end in Rollback.
type LedgerTx interface {
	// Clock returns the ledger time this transaction executes at.
	// Slot is one past the last committed slot.
	Clock() domain.Clock

	// Get retrieves an account. Returns ErrNotFound if the address holds no account.
	Get(ctx context.Context, address solana.PublicKey) (*domain.Account, error)

	// GetByOwner retrieves all accounts owned by a program, ordered by address.
	GetByOwner(ctx context.Context, owner solana.PublicKey) ([]*domain.Account, error)

	// Put creates or replaces an account.
	Put(ctx context.Context, account *domain.Account) error

	// Delete removes an account. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, address solana.PublicKey) error

	// Commit makes all writes durable and advances the ledger slot.
	// Returns ErrTxDone if the transaction already ended.
	Commit(ctx context.Context) error

	// Rollback discards all writes. Safe to call after Commit (no-op).
	Rollback(ctx context.Context) error
}

// SettlementStore provides access to settlements storage.
type SettlementStore interface {
	// Insert adds a new settlement. Returns ErrDuplicateKey if settlement_id exists.
	Insert(ctx context.Context, s *domain.Settlement) error

	// GetByID retrieves a settlement by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, settlementID string) (*domain.Settlement, error)

	// GetByListing retrieves the settlements of a listing address.
	// At most one exists, since settlement closes the listing.
	GetByListing(ctx context.Context, listing string) ([]*domain.Settlement, error)

	// GetByTimeRange retrieves settlements with unix_timestamp in [start, end] (inclusive),
	// ordered by slot ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Settlement, error)

	// GetAll retrieves every settlement ordered by slot ASC.
	GetAll(ctx context.Context) ([]*domain.Settlement, error)
}

// SettlementEventStore provides access to settlement_events analytics storage.
type SettlementEventStore interface {
	// InsertBulk adds multiple events. Fails entire batch on duplicate settlement_id.
	InsertBulk(ctx context.Context, events []*domain.Settlement) error

	// GetByMarketplace retrieves events for a marketplace, ordered by slot ASC.
	GetByMarketplace(ctx context.Context, marketplace string) ([]*domain.Settlement, error)

	// VolumeByMarketplace sums settled price per marketplace within [start, end] unix seconds.
	VolumeByMarketplace(ctx context.Context, start, end int64) (map[string]uint64, error)
}
