package marketplace

import (
	"context"
	"fmt"

	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// BidAccounts lists every account a bid touches. Validation checks each one
// against its derivation before anything moves.
type BidAccounts struct {
	Taker          solana.PublicKey
	Maker          solana.PublicKey
	Marketplace    solana.PublicKey
	MakerMint      solana.PublicKey
	CollectionMint solana.PublicKey
	TakerATA       solana.PublicKey
	Vault          solana.PublicKey
	Listing        solana.PublicKey
	Whitelist      solana.PublicKey
	Treasury       solana.PublicKey
}

// DeriveBidAccounts computes the canonical accounts for a bid by taker on
// mint. The maker is not derivable and must come from the listing record.
func (d *Deriver) DeriveBidAccounts(marketplaceName string, collectionMint, mint, maker, taker solana.PublicKey) (BidAccounts, error) {
	mp, _, err := d.Marketplace(marketplaceName)
	if err != nil {
		return BidAccounts{}, fmt.Errorf("derive marketplace: %w", err)
	}
	treasury, _, err := d.Treasury(mp)
	if err != nil {
		return BidAccounts{}, fmt.Errorf("derive treasury: %w", err)
	}
	whitelist, _, err := d.Whitelist(mp, collectionMint)
	if err != nil {
		return BidAccounts{}, fmt.Errorf("derive whitelist: %w", err)
	}
	listing, _, err := d.Listing(whitelist, mint)
	if err != nil {
		return BidAccounts{}, fmt.Errorf("derive listing: %w", err)
	}
	vault, _, err := d.VaultAuthority(mint)
	if err != nil {
		return BidAccounts{}, fmt.Errorf("derive vault: %w", err)
	}
	takerATA, _, err := programs.AssociatedTokenAddress(taker, mint)
	if err != nil {
		return BidAccounts{}, fmt.Errorf("derive taker token account: %w", err)
	}

	return BidAccounts{
		Taker:          taker,
		Maker:          maker,
		Marketplace:    mp,
		MakerMint:      mint,
		CollectionMint: collectionMint,
		TakerATA:       takerATA,
		Vault:          vault,
		Listing:        listing,
		Whitelist:      whitelist,
		Treasury:       treasury,
	}, nil
}

// ResolveBidAccounts derives the bid accounts and fills the maker from the
// listing record currently on the ledger.
func (p *Program) ResolveBidAccounts(ctx context.Context, tx storage.LedgerTx, marketplaceName string, collectionMint, mint, taker solana.PublicKey) (BidAccounts, error) {
	accts, err := p.seeds.DeriveBidAccounts(marketplaceName, collectionMint, mint, solana.PublicKey{}, taker)
	if err != nil {
		return BidAccounts{}, err
	}
	listing, err := p.LoadListing(ctx, tx, accts.Listing)
	if err != nil {
		return BidAccounts{}, err
	}
	accts.Maker = listing.Maker
	return accts, nil
}
