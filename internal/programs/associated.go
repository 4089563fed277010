package programs

import (
	"context"
	"errors"
	"fmt"

	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// AssociatedTokenAddress derives the canonical token account of wallet for mint.
// Seeds: [wallet, token_program, mint] under the associated-token program.
func AssociatedTokenAddress(wallet, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{wallet[:], solana.TokenProgramID[:], mint[:]},
		solana.AssociatedTokenProgramID,
	)
}

// CreateAssociatedTokenAccountIdempotent returns the associated token account of
// wallet for mint, creating it with payer funding the deposit if it does not
// exist. An existing account must already be bound to (wallet, mint).
func CreateAssociatedTokenAccountIdempotent(ctx context.Context, tx storage.LedgerTx, payer solana.Signer, wallet, mint solana.PublicKey) (solana.PublicKey, bool, error) {
	address, bump, err := AssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, false, fmt.Errorf("derive associated token account: %w", err)
	}

	ta, _, err := LoadTokenAccount(ctx, tx, address)
	switch {
	case err == nil:
		if ta.Owner != wallet {
			return address, false, fmt.Errorf("associated token account %s: %w", address, ErrOwnerMismatch)
		}
		if ta.Mint != mint {
			return address, false, fmt.Errorf("associated token account %s: %w", address, ErrMintMismatch)
		}
		return address, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return address, false, err
	}

	signer, err := solana.SignAs(solana.AssociatedTokenProgramID, address, wallet[:], solana.TokenProgramID[:], mint[:], []byte{bump})
	if err != nil {
		return address, false, fmt.Errorf("create associated token account: %w", err)
	}
	if _, err := InitializeAccount(ctx, tx, payer, signer, mint, wallet); err != nil {
		return address, false, fmt.Errorf("create associated token account: %w", err)
	}
	return address, true, nil
}
