package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// LedgerOptions configures Ledger.
type LedgerOptions struct {
	// Now supplies ledger wall-clock time. Defaults to time.Now.
	Now func() time.Time
	// GenesisSlot is the slot committed before the first transaction.
	GenesisSlot uint64
}

// Ledger is an in-memory implementation of storage.Ledger.
// A single gate serializes transactions; each transaction buffers its writes
// and applies them on Commit.
type Ledger struct {
	gate     chan struct{}
	accounts map[solana.PublicKey]*domain.Account
	slot     uint64
	now      func() time.Time
}

// NewLedger creates an empty in-memory ledger.
func NewLedger(opts LedgerOptions) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		gate:     make(chan struct{}, 1),
		accounts: make(map[solana.PublicKey]*domain.Account),
		slot:     opts.GenesisSlot,
		now:      opts.Now,
	}
}

// Begin waits for exclusive access and starts a transaction.
func (l *Ledger) Begin(ctx context.Context) (storage.LedgerTx, error) {
	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &ledgerTx{
		ledger: l,
		clock: domain.Clock{
			Slot:          l.slot + 1,
			UnixTimestamp: l.now().Unix(),
		},
		writes: make(map[solana.PublicKey]*domain.Account),
	}, nil
}

// ledgerTx buffers writes. A nil entry in writes marks a deletion.
type ledgerTx struct {
	ledger *Ledger
	clock  domain.Clock
	writes map[solana.PublicKey]*domain.Account
	done   bool
}

func (tx *ledgerTx) Clock() domain.Clock {
	return tx.clock
}

func (tx *ledgerTx) lookup(address solana.PublicKey) *domain.Account {
	if acct, ok := tx.writes[address]; ok {
		return acct
	}
	return tx.ledger.accounts[address]
}

func (tx *ledgerTx) Get(_ context.Context, address solana.PublicKey) (*domain.Account, error) {
	if tx.done {
		return nil, storage.ErrTxDone
	}
	acct := tx.lookup(address)
	if acct == nil {
		return nil, storage.ErrNotFound
	}
	return acct.Clone(), nil
}

func (tx *ledgerTx) GetByOwner(_ context.Context, owner solana.PublicKey) ([]*domain.Account, error) {
	if tx.done {
		return nil, storage.ErrTxDone
	}

	seen := make(map[solana.PublicKey]struct{})
	var result []*domain.Account
	collect := func(address solana.PublicKey) {
		if _, ok := seen[address]; ok {
			return
		}
		seen[address] = struct{}{}
		if acct := tx.lookup(address); acct != nil && acct.Owner == owner {
			result = append(result, acct.Clone())
		}
	}
	for address := range tx.writes {
		collect(address)
	}
	for address := range tx.ledger.accounts {
		collect(address)
	}

	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Address[:], result[j].Address[:]) < 0
	})
	return result, nil
}

func (tx *ledgerTx) Put(_ context.Context, account *domain.Account) error {
	if tx.done {
		return storage.ErrTxDone
	}
	if account == nil || account.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	tx.writes[account.Address] = account.Clone()
	return nil
}

func (tx *ledgerTx) Delete(_ context.Context, address solana.PublicKey) error {
	if tx.done {
		return storage.ErrTxDone
	}
	if tx.lookup(address) == nil {
		return storage.ErrNotFound
	}
	tx.writes[address] = nil
	return nil
}

func (tx *ledgerTx) Commit(_ context.Context) error {
	if tx.done {
		return storage.ErrTxDone
	}
	for address, acct := range tx.writes {
		if acct == nil {
			delete(tx.ledger.accounts, address)
			continue
		}
		tx.ledger.accounts[address] = acct
	}
	tx.ledger.slot = tx.clock.Slot
	tx.finish()
	return nil
}

func (tx *ledgerTx) Rollback(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.finish()
	return nil
}

func (tx *ledgerTx) finish() {
	tx.done = true
	tx.writes = nil
	<-tx.ledger.gate
}

var _ storage.Ledger = (*Ledger)(nil)
