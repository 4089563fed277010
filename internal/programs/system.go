// Package programs implements the ledger primitives settlement is built from:
// lamport movement, token-program instructions and associated token accounts.
// Every function runs inside a caller-owned storage.LedgerTx and never commits.
package programs

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// Rent parameters: an account is rent exempt once it holds
// (AccountStorageOverhead + len(data)) * LamportsPerByteYear * ExemptionYears.
const (
	AccountStorageOverhead = 128
	LamportsPerByteYear    = 3480
	ExemptionYears         = 2
)

// RentExemptMinimum returns the deposit required for an account with dataLen bytes.
func RentExemptMinimum(dataLen int) uint64 {
	return uint64(AccountStorageOverhead+dataLen) * LamportsPerByteYear * ExemptionYears
}

// Transfer moves lamports from a system-owned signer to any account.
// A missing destination is created as an empty system account.
func Transfer(ctx context.Context, tx storage.LedgerTx, from solana.Signer, to solana.PublicKey, lamports uint64) error {
	if !from.IsValid() {
		return fmt.Errorf("transfer: %w", ErrMissingSignature)
	}

	src, err := tx.Get(ctx, from.Key())
	if err != nil {
		return fmt.Errorf("transfer: load source %s: %w", from.Key(), err)
	}
	if src.Owner != solana.SystemProgramID || len(src.Data) != 0 {
		return fmt.Errorf("transfer: source %s: %w", from.Key(), ErrOwnerMismatch)
	}
	if src.Lamports < lamports {
		return fmt.Errorf("transfer: source %s has %d, needs %d: %w", from.Key(), src.Lamports, lamports, ErrInsufficientFunds)
	}
	if from.Key() == to {
		return nil
	}

	dst, err := getOrEmpty(ctx, tx, to)
	if err != nil {
		return fmt.Errorf("transfer: load destination %s: %w", to, err)
	}

	src.Lamports -= lamports
	if err := credit(dst, lamports); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}

	if err := tx.Put(ctx, src); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	return tx.Put(ctx, dst)
}

// CreateAccount funds a new account at address with the rent-exempt minimum
// for space bytes and assigns it to owner. The payer must be system owned.
// The new address must sign: a keypair signer or a derived signer.
func CreateAccount(ctx context.Context, tx storage.LedgerTx, payer, account solana.Signer, space int, owner solana.PublicKey) (*domain.Account, error) {
	if !payer.IsValid() || !account.IsValid() {
		return nil, fmt.Errorf("create account: %w", ErrMissingSignature)
	}

	existing, err := tx.Get(ctx, account.Key())
	switch {
	case err == nil && (existing.Lamports > 0 || len(existing.Data) > 0):
		return nil, fmt.Errorf("create account %s: %w", account.Key(), ErrAccountInUse)
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("create account %s: %w", account.Key(), err)
	}

	rent := RentExemptMinimum(space)
	if err := Transfer(ctx, tx, payer, account.Key(), rent); err != nil {
		return nil, fmt.Errorf("create account %s: fund: %w", account.Key(), err)
	}

	acct, err := tx.Get(ctx, account.Key())
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", account.Key(), err)
	}
	acct.Owner = owner
	acct.Data = make([]byte, space)
	if err := tx.Put(ctx, acct); err != nil {
		return nil, fmt.Errorf("create account %s: %w", account.Key(), err)
	}
	return acct, nil
}

// CloseProgramAccount deletes an account owned by programID and credits its
// lamports to destination. Returns the reclaimed lamports.
func CloseProgramAccount(ctx context.Context, tx storage.LedgerTx, programID, address, destination solana.PublicKey) (uint64, error) {
	acct, err := tx.Get(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("close account %s: %w", address, err)
	}
	if acct.Owner != programID {
		return 0, fmt.Errorf("close account %s: %w", address, ErrOwnerMismatch)
	}
	return closeInto(ctx, tx, acct, destination)
}

// Airdrop credits lamports to address out of thin air. Development faucet only.
func Airdrop(ctx context.Context, tx storage.LedgerTx, address solana.PublicKey, lamports uint64) error {
	acct, err := getOrEmpty(ctx, tx, address)
	if err != nil {
		return fmt.Errorf("airdrop %s: %w", address, err)
	}
	if err := credit(acct, lamports); err != nil {
		return fmt.Errorf("airdrop %s: %w", address, err)
	}
	return tx.Put(ctx, acct)
}

// Balance returns the lamports held at address, 0 if no account exists.
func Balance(ctx context.Context, tx storage.LedgerTx, address solana.PublicKey) (uint64, error) {
	acct, err := tx.Get(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

func closeInto(ctx context.Context, tx storage.LedgerTx, acct *domain.Account, destination solana.PublicKey) (uint64, error) {
	if acct.Address == destination {
		return 0, fmt.Errorf("close account %s: destination is the closed account: %w", acct.Address, ErrOwnerMismatch)
	}

	dst, err := getOrEmpty(ctx, tx, destination)
	if err != nil {
		return 0, fmt.Errorf("close account %s: load destination: %w", acct.Address, err)
	}
	reclaimed := acct.Lamports
	if err := credit(dst, reclaimed); err != nil {
		return 0, fmt.Errorf("close account %s: %w", acct.Address, err)
	}

	if err := tx.Delete(ctx, acct.Address); err != nil {
		return 0, fmt.Errorf("close account %s: %w", acct.Address, err)
	}
	if err := tx.Put(ctx, dst); err != nil {
		return 0, fmt.Errorf("close account %s: %w", acct.Address, err)
	}
	return reclaimed, nil
}

func getOrEmpty(ctx context.Context, tx storage.LedgerTx, address solana.PublicKey) (*domain.Account, error) {
	acct, err := tx.Get(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return &domain.Account{Address: address, Owner: solana.SystemProgramID}, nil
	}
	return acct, err
}

func credit(acct *domain.Account, lamports uint64) error {
	sum, carry := bits.Add64(acct.Lamports, lamports, 0)
	if carry != 0 {
		return fmt.Errorf("%s: %w", acct.Address, ErrLamportOverflow)
	}
	acct.Lamports = sum
	return nil
}
