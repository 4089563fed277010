package programs

import (
	"context"
	"fmt"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/layout"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// LoadMint reads and decodes a token-program mint.
func LoadMint(ctx context.Context, tx storage.LedgerTx, address solana.PublicKey) (*domain.Mint, error) {
	acct, err := tx.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("load mint %s: %w", address, err)
	}
	if acct.Owner != solana.TokenProgramID {
		return nil, fmt.Errorf("load mint %s: %w", address, ErrOwnerMismatch)
	}
	mint, err := layout.DecodeMint(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("load mint %s: %w: %v", address, ErrInvalidAccountData, err)
	}
	return mint, nil
}

// LoadTokenAccount reads and decodes a token-program account.
func LoadTokenAccount(ctx context.Context, tx storage.LedgerTx, address solana.PublicKey) (*domain.TokenAccount, *domain.Account, error) {
	acct, err := tx.Get(ctx, address)
	if err != nil {
		return nil, nil, fmt.Errorf("load token account %s: %w", address, err)
	}
	if acct.Owner != solana.TokenProgramID {
		return nil, nil, fmt.Errorf("load token account %s: %w", address, ErrOwnerMismatch)
	}
	ta, err := layout.DecodeTokenAccount(acct.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("load token account %s: %w: %v", address, ErrInvalidAccountData, err)
	}
	return ta, acct, nil
}

// InitializeMint creates a mint at mintSigner's address.
func InitializeMint(ctx context.Context, tx storage.LedgerTx, payer, mintSigner solana.Signer, decimals uint8, authority solana.PublicKey) (*domain.Mint, error) {
	acct, err := CreateAccount(ctx, tx, payer, mintSigner, layout.MintSize, solana.TokenProgramID)
	if err != nil {
		return nil, fmt.Errorf("initialize mint: %w", err)
	}

	mint := &domain.Mint{
		MintAuthority: &authority,
		Decimals:      decimals,
		IsInitialized: true,
	}
	acct.Data = layout.EncodeMint(mint)
	if err := tx.Put(ctx, acct); err != nil {
		return nil, fmt.Errorf("initialize mint: %w", err)
	}
	return mint, nil
}

// InitializeAccount creates a token account for mint at accountSigner's address
// with owner as its transfer authority.
func InitializeAccount(ctx context.Context, tx storage.LedgerTx, payer, accountSigner solana.Signer, mint, owner solana.PublicKey) (*domain.TokenAccount, error) {
	if _, err := LoadMint(ctx, tx, mint); err != nil {
		return nil, fmt.Errorf("initialize token account: %w", err)
	}

	acct, err := CreateAccount(ctx, tx, payer, accountSigner, layout.TokenAccountSize, solana.TokenProgramID)
	if err != nil {
		return nil, fmt.Errorf("initialize token account: %w", err)
	}

	ta := &domain.TokenAccount{
		Mint:  mint,
		Owner: owner,
		State: domain.TokenAccountInitialized,
	}
	acct.Data = layout.EncodeTokenAccount(ta)
	if err := tx.Put(ctx, acct); err != nil {
		return nil, fmt.Errorf("initialize token account: %w", err)
	}
	return ta, nil
}

// MintTo issues amount new units of mint into destination.
func MintTo(ctx context.Context, tx storage.LedgerTx, mintAddr, destination solana.PublicKey, authority solana.Signer, amount uint64) error {
	mintAcct, err := tx.Get(ctx, mintAddr)
	if err != nil {
		return fmt.Errorf("mint to: %w", err)
	}
	mint, err := LoadMint(ctx, tx, mintAddr)
	if err != nil {
		return fmt.Errorf("mint to: %w", err)
	}
	if mint.MintAuthority == nil || !authority.IsValid() || *mint.MintAuthority != authority.Key() {
		return fmt.Errorf("mint to: mint authority: %w", ErrOwnerMismatch)
	}

	dst, dstAcct, err := LoadTokenAccount(ctx, tx, destination)
	if err != nil {
		return fmt.Errorf("mint to: %w", err)
	}
	if dst.Mint != mintAddr {
		return fmt.Errorf("mint to: %w", ErrMintMismatch)
	}
	if dst.Amount+amount < dst.Amount || mint.Supply+amount < mint.Supply {
		return fmt.Errorf("mint to: supply overflow")
	}

	dst.Amount += amount
	mint.Supply += amount

	dstAcct.Data = layout.EncodeTokenAccount(dst)
	mintAcct.Data = layout.EncodeMint(mint)
	if err := tx.Put(ctx, dstAcct); err != nil {
		return fmt.Errorf("mint to: %w", err)
	}
	return tx.Put(ctx, mintAcct)
}

// TokenTransfer moves amount units between token accounts of the same mint.
// authority must be the source account's owner.
func TokenTransfer(ctx context.Context, tx storage.LedgerTx, source, destination solana.PublicKey, authority solana.Signer, amount uint64) error {
	if !authority.IsValid() {
		return fmt.Errorf("token transfer: %w", ErrMissingSignature)
	}

	src, srcAcct, err := LoadTokenAccount(ctx, tx, source)
	if err != nil {
		return fmt.Errorf("token transfer: source: %w", err)
	}
	dst, dstAcct, err := LoadTokenAccount(ctx, tx, destination)
	if err != nil {
		return fmt.Errorf("token transfer: destination: %w", err)
	}

	if src.Owner != authority.Key() {
		return fmt.Errorf("token transfer: source authority %s: %w", authority.Key(), ErrOwnerMismatch)
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("token transfer: %w", ErrMintMismatch)
	}
	if src.State == domain.TokenAccountFrozen || dst.State == domain.TokenAccountFrozen {
		return fmt.Errorf("token transfer: account frozen")
	}
	if src.Amount < amount {
		return fmt.Errorf("token transfer: source holds %d, needs %d: %w", src.Amount, amount, ErrInsufficientFunds)
	}
	if source == destination {
		return nil
	}

	src.Amount -= amount
	dst.Amount += amount

	srcAcct.Data = layout.EncodeTokenAccount(src)
	dstAcct.Data = layout.EncodeTokenAccount(dst)
	if err := tx.Put(ctx, srcAcct); err != nil {
		return fmt.Errorf("token transfer: %w", err)
	}
	return tx.Put(ctx, dstAcct)
}

// CloseTokenAccount closes an empty token account and sends its lamports to
// destination. authority must be the close authority, or the owner if none is set.
// Returns the reclaimed lamports.
func CloseTokenAccount(ctx context.Context, tx storage.LedgerTx, account, destination solana.PublicKey, authority solana.Signer) (uint64, error) {
	if !authority.IsValid() {
		return 0, fmt.Errorf("close token account: %w", ErrMissingSignature)
	}

	ta, acct, err := LoadTokenAccount(ctx, tx, account)
	if err != nil {
		return 0, fmt.Errorf("close token account: %w", err)
	}

	closer := ta.Owner
	if ta.CloseAuthority != nil {
		closer = *ta.CloseAuthority
	}
	if closer != authority.Key() {
		return 0, fmt.Errorf("close token account %s: authority %s: %w", account, authority.Key(), ErrOwnerMismatch)
	}
	if ta.IsNative == nil && ta.Amount != 0 {
		return 0, fmt.Errorf("close token account %s: %w", account, ErrNonEmptyAccount)
	}

	return closeInto(ctx, tx, acct, destination)
}
