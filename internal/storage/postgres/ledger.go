package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// Ledger is a PostgreSQL implementation of storage.Ledger.
// Uses two tables:
//   - ledger_accounts: one row per account
//   - ledger_clock: single row locked FOR UPDATE by every transaction
type Ledger struct {
	pool *Pool
	now  func() time.Time
}

// NewLedger creates a new PostgreSQL ledger. now defaults to time.Now.
func NewLedger(pool *Pool, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{pool: pool, now: now}
}

// Begin opens a database transaction and takes the clock row lock.
func (l *Ledger) Begin(ctx context.Context) (storage.LedgerTx, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin ledger tx: %w", err)
	}

	var slot int64
	err = tx.QueryRow(ctx, `SELECT slot FROM ledger_clock WHERE id = 1 FOR UPDATE`).Scan(&slot)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("lock ledger clock: %w", err)
	}

	return &ledgerTx{
		tx: tx,
		clock: domain.Clock{
			Slot:          uint64(slot) + 1,
			UnixTimestamp: l.now().Unix(),
		},
	}, nil
}

type ledgerTx struct {
	tx    pgx.Tx
	clock domain.Clock
	done  bool
}

func (t *ledgerTx) Clock() domain.Clock {
	return t.clock
}

func (t *ledgerTx) Get(ctx context.Context, address solana.PublicKey) (*domain.Account, error) {
	if t.done {
		return nil, storage.ErrTxDone
	}

	row := t.tx.QueryRow(ctx, `
		SELECT address, lamports, owner, data, executable
		FROM ledger_accounts
		WHERE address = $1
	`, address[:])

	acct, err := scanAccount(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get ledger account: %w", err)
	}
	return acct, nil
}

func (t *ledgerTx) GetByOwner(ctx context.Context, owner solana.PublicKey) ([]*domain.Account, error) {
	if t.done {
		return nil, storage.ErrTxDone
	}

	rows, err := t.tx.Query(ctx, `
		SELECT address, lamports, owner, data, executable
		FROM ledger_accounts
		WHERE owner = $1
		ORDER BY address ASC
	`, owner[:])
	if err != nil {
		return nil, fmt.Errorf("query ledger accounts by owner: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (t *ledgerTx) Put(ctx context.Context, account *domain.Account) error {
	if t.done {
		return storage.ErrTxDone
	}
	if account == nil || account.Address.IsZero() || account.Lamports > math.MaxInt64 {
		return storage.ErrInvalidInput
	}

	data := account.Data
	if data == nil {
		data = []byte{}
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_accounts (address, lamports, owner, data, executable, updated_slot)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE
		SET lamports = EXCLUDED.lamports,
		    owner = EXCLUDED.owner,
		    data = EXCLUDED.data,
		    executable = EXCLUDED.executable,
		    updated_slot = EXCLUDED.updated_slot
	`, account.Address[:], int64(account.Lamports), account.Owner[:], data, account.Executable, int64(t.clock.Slot))
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("put ledger account: %w", storage.ErrInvalidInput)
		}
		return fmt.Errorf("put ledger account: %w", err)
	}
	return nil
}

func (t *ledgerTx) Delete(ctx context.Context, address solana.PublicKey) error {
	if t.done {
		return storage.ErrTxDone
	}

	tag, err := t.tx.Exec(ctx, `DELETE FROM ledger_accounts WHERE address = $1`, address[:])
	if err != nil {
		return fmt.Errorf("delete ledger account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) Commit(ctx context.Context) error {
	if t.done {
		return storage.ErrTxDone
	}
	t.done = true

	if _, err := t.tx.Exec(ctx, `UPDATE ledger_clock SET slot = $1 WHERE id = 1`, int64(t.clock.Slot)); err != nil {
		_ = t.tx.Rollback(ctx)
		return fmt.Errorf("advance ledger clock: %w", err)
	}
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (t *ledgerTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback ledger tx: %w", err)
	}
	return nil
}

// scanAccount scans a single ledger_accounts row.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		address, owner []byte
		lamports       int64
		acct           domain.Account
	)
	if err := row.Scan(&address, &lamports, &owner, &acct.Data, &acct.Executable); err != nil {
		return nil, err
	}

	var err error
	if acct.Address, err = solana.PublicKeyFromBytes(address); err != nil {
		return nil, err
	}
	if acct.Owner, err = solana.PublicKeyFromBytes(owner); err != nil {
		return nil, err
	}
	acct.Lamports = uint64(lamports)
	return &acct, nil
}

var _ storage.Ledger = (*Ledger)(nil)
