// Package processor executes marketplace instructions against a ledger.
// Each instruction runs in one ledger transaction: all of its effects commit
// together or none do. Settled bids are then recorded for history and analytics.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/observability"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// Processor coordinates ledger transactions, the marketplace program and
// settlement recording.
type Processor struct {
	ledger      storage.Ledger
	program     *marketplace.Program
	settlements storage.SettlementStore
	events      storage.SettlementEventStore
	logger      *zap.Logger
	now         func() time.Time

	// Signatures of settled bids, kept until they expire.
	usedBids *cache.Cache
}

// Options for creating Processor.
type Options struct {
	// Required
	Ledger  storage.Ledger
	Program *marketplace.Program

	// Optional recorders. Nil disables the corresponding record.
	SettlementStore storage.SettlementStore
	EventStore      storage.SettlementEventStore

	Logger *zap.Logger
	Now    func() time.Time
}

// New creates a new Processor.
func New(opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		ledger:      opts.Ledger,
		program:     opts.Program,
		settlements: opts.SettlementStore,
		events:      opts.EventStore,
		logger:      logger.Named("processor"),
		now:         now,
		usedBids:    cache.New(marketplace.MaxBidValidity, 10*time.Minute),
	}
}

// Program returns the marketplace program the processor executes.
func (p *Processor) Program() *marketplace.Program {
	return p.program
}

// Execute runs fn in a new ledger transaction. The transaction commits if fn
// returns nil and rolls back otherwise. Returns the clock fn ran at.
func (p *Processor) Execute(ctx context.Context, fn func(tx storage.LedgerTx) error) (domain.Clock, error) {
	start := time.Now()

	tx, err := p.ledger.Begin(ctx)
	if err != nil {
		return domain.Clock{}, fmt.Errorf("begin ledger tx: %w", err)
	}
	clock := tx.Clock()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		observability.RecordLedgerTx("rollback", time.Since(start).Seconds())
		return clock, err
	}

	if err := tx.Commit(ctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, storage.ErrTxDone) {
			p.logger.Warn("rollback after failed commit", zap.Error(rbErr))
		}
		observability.RecordLedgerTx("rollback", time.Since(start).Seconds())
		return clock, fmt.Errorf("commit ledger tx: %w", err)
	}
	observability.RecordLedgerTx("commit", time.Since(start).Seconds())
	observability.UpdateLedgerSlot(clock.Slot)
	return clock, nil
}

// View runs fn in a transaction that is always rolled back.
func (p *Processor) View(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	tx, err := p.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)
	return fn(tx)
}

// ListingView is a listing together with its lifecycle state.
type ListingView struct {
	Address solana.PublicKey
	Listing *domain.Listing // nil once settled
	State   domain.ListingState
	Clock   domain.Clock
}

// GetListing reads the listing at address. A listing that no longer exists is
// reported as settled when a settlement for it was recorded, and as not found
// otherwise.
func (p *Processor) GetListing(ctx context.Context, address solana.PublicKey) (*ListingView, error) {
	view := &ListingView{Address: address}
	err := p.View(ctx, func(tx storage.LedgerTx) error {
		view.Clock = tx.Clock()
		l, err := p.program.LoadListing(ctx, tx, address)
		if err != nil {
			return err
		}
		view.Listing = l
		return nil
	})

	switch {
	case err == nil:
		view.State = domain.StateAt(view.Listing, view.Clock)
		return view, nil
	case errors.Is(err, marketplace.ErrAccountNotInitialized) && p.settlements != nil:
		settled, lookupErr := p.settlements.GetByListing(ctx, address.String())
		if lookupErr != nil {
			return nil, fmt.Errorf("get settlements of listing: %w", lookupErr)
		}
		if len(settled) == 0 {
			return nil, err
		}
		view.State = domain.StateAt(nil, view.Clock)
		return view, nil
	default:
		return nil, err
	}
}
