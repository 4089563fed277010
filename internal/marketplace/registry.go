package marketplace

import (
	"context"
	"errors"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/layout"
	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// loadOwned fetches a program-owned account and maps load failures.
func (p *Program) loadOwned(ctx context.Context, tx storage.LedgerTx, role string, address solana.PublicKey) (*domain.Account, error) {
	acct, err := tx.Get(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAccountNotInitialized.at(role, err)
	}
	if err != nil {
		return nil, err
	}
	if acct.Owner != p.id {
		return nil, ErrAccountOwnedByWrongProgram.at(role, nil)
	}
	return acct, nil
}

// LoadMarketplace reads the marketplace record at address.
func (p *Program) LoadMarketplace(ctx context.Context, tx storage.LedgerTx, address solana.PublicKey) (*domain.Marketplace, error) {
	acct, err := p.loadOwned(ctx, tx, "marketplace", address)
	if err != nil {
		return nil, err
	}
	m, err := layout.DecodeMarketplace(acct.Data)
	if err != nil {
		return nil, ErrAccountDidNotDeserialize.at("marketplace", err)
	}
	return m, nil
}

// LoadWhitelist reads the whitelist record at address.
func (p *Program) LoadWhitelist(ctx context.Context, tx storage.LedgerTx, address solana.PublicKey) (*domain.Whitelist, error) {
	acct, err := p.loadOwned(ctx, tx, "whitelist", address)
	if err != nil {
		return nil, err
	}
	wl, err := layout.DecodeWhitelist(acct.Data)
	if err != nil {
		return nil, ErrAccountDidNotDeserialize.at("whitelist", err)
	}
	return wl, nil
}

// LoadListing reads the listing record at address. A settled listing no
// longer exists and fails with ErrAccountNotInitialized.
func (p *Program) LoadListing(ctx context.Context, tx storage.LedgerTx, address solana.PublicKey) (*domain.Listing, error) {
	acct, err := p.loadOwned(ctx, tx, "listing", address)
	if err != nil {
		return nil, err
	}
	l, err := layout.DecodeListing(acct.Data)
	if err != nil {
		return nil, ErrAccountDidNotDeserialize.at("listing", err)
	}
	return l, nil
}

// loadMint reads a token-program mint in role.
func loadMint(ctx context.Context, tx storage.LedgerTx, role string, address solana.PublicKey) (*domain.Mint, error) {
	mint, err := programs.LoadMint(ctx, tx, address)
	if err != nil {
		return nil, classifyAt(role, err)
	}
	return mint, nil
}

// classifyAt attributes a primitive failure to an account role.
func classifyAt(role string, err error) error {
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	me := Classify(err)
	if me == nil {
		return err
	}
	if errors.Is(err, programs.ErrOwnerMismatch) && me.Code == ErrConstraintOwner.Code {
		// A token-program account that is not owned by the token program.
		return ErrAccountOwnedByWrongProgram.at(role, err)
	}
	return me.at(role, err)
}
