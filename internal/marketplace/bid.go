package marketplace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// Receipt describes the effects of a settled bid.
type Receipt struct {
	Accounts        BidAccounts
	Price           uint64
	VaultRent       uint64 // deposit returned to the maker by closing the vault
	ListingRent     uint64 // deposit returned to the maker by closing the listing
	TakerATACreated bool
	Slot            uint64
	UnixTimestamp   int64
}

// Bid settles the listing at accounts.Listing for taker at the listed price.
//
// All checks run before any transfer. Settlement then pays the maker, moves
// the asset out of the vault, and closes the vault and the listing with their
// deposits returned to the maker. Any error leaves partial writes in tx; the
// caller must roll it back.
func (p *Program) Bid(ctx context.Context, tx storage.LedgerTx, taker solana.Signer, accounts BidAccounts) (*Receipt, error) {
	s := &bidState{
		tx:       tx,
		clock:    tx.Clock(),
		taker:    taker,
		accounts: accounts,
	}

	if err := p.validateBid(ctx, s); err != nil {
		p.logger.Debug("bid rejected",
			zap.Stringer("listing", accounts.Listing),
			zap.Stringer("taker", accounts.Taker),
			zap.Error(err),
		)
		return nil, err
	}

	if err := p.sendSOL(ctx, s); err != nil {
		return nil, err
	}
	if err := p.sendNFT(ctx, s); err != nil {
		return nil, err
	}
	vaultRent, err := p.closeVault(ctx, s)
	if err != nil {
		return nil, err
	}
	listingRent, err := programs.CloseProgramAccount(ctx, tx, p.id, accounts.Listing, accounts.Maker)
	if err != nil {
		return nil, classifyAt("listing", err)
	}

	p.logger.Info("bid settled",
		zap.Stringer("listing", accounts.Listing),
		zap.Stringer("maker", accounts.Maker),
		zap.Stringer("taker", accounts.Taker),
		zap.Uint64("price", s.listing.Price),
		zap.Uint64("slot", s.clock.Slot),
	)

	return &Receipt{
		Accounts:        accounts,
		Price:           s.listing.Price,
		VaultRent:       vaultRent,
		ListingRent:     listingRent,
		TakerATACreated: s.takerATACreated,
		Slot:            s.clock.Slot,
		UnixTimestamp:   s.clock.UnixTimestamp,
	}, nil
}

// sendSOL pays the listed price from taker to maker.
func (p *Program) sendSOL(ctx context.Context, s *bidState) error {
	if err := programs.Transfer(ctx, s.tx, s.taker, s.accounts.Maker, s.listing.Price); err != nil {
		return classifyAt("taker", fmt.Errorf("send sol: %w", err))
	}
	return nil
}

// sendNFT moves the single asset unit from the vault to the taker, signed by
// the vault authority.
func (p *Program) sendNFT(ctx context.Context, s *bidState) error {
	signer, err := p.seeds.VaultSigner(s.accounts.Vault, s.accounts.MakerMint, s.listing.AuthBump)
	if err != nil {
		return ErrConstraintSeeds.at("vault", err)
	}
	if err := programs.TokenTransfer(ctx, s.tx, s.accounts.Vault, s.accounts.TakerATA, signer, 1); err != nil {
		return classifyAt("vault", fmt.Errorf("send nft: %w", err))
	}
	return nil
}

// closeVault closes the emptied vault into the maker.
func (p *Program) closeVault(ctx context.Context, s *bidState) (uint64, error) {
	signer, err := p.seeds.VaultSigner(s.accounts.Vault, s.accounts.MakerMint, s.listing.AuthBump)
	if err != nil {
		return 0, ErrConstraintSeeds.at("vault", err)
	}
	reclaimed, err := programs.CloseTokenAccount(ctx, s.tx, s.accounts.Vault, s.accounts.Maker, signer)
	if err != nil {
		return 0, classifyAt("vault", fmt.Errorf("close vault: %w", err))
	}
	return reclaimed, nil
}
