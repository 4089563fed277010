package processor

import (
	"context"

	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// InitializeMarketplace creates a marketplace named name administered by admin.
func (p *Processor) InitializeMarketplace(ctx context.Context, admin solana.Signer, name string, fee uint16) (solana.PublicKey, error) {
	var address solana.PublicKey
	_, err := p.Execute(ctx, func(tx storage.LedgerTx) error {
		var err error
		address, err = p.program.InitializeMarketplace(ctx, tx, admin, name, fee)
		return err
	})
	return address, err
}

// WhitelistCollection allows collectionMint on marketplace.
func (p *Processor) WhitelistCollection(ctx context.Context, admin solana.Signer, marketplaceAddr, collectionMint solana.PublicKey) (solana.PublicKey, error) {
	var address solana.PublicKey
	_, err := p.Execute(ctx, func(tx storage.LedgerTx) error {
		var err error
		address, err = p.program.WhitelistCollection(ctx, tx, admin, marketplaceAddr, collectionMint)
		return err
	})
	return address, err
}

// List creates a listing for maker.
func (p *Processor) List(ctx context.Context, maker solana.Signer, params marketplace.ListParams) (*marketplace.ListResult, error) {
	var res *marketplace.ListResult
	_, err := p.Execute(ctx, func(tx storage.LedgerTx) error {
		var err error
		res, err = p.program.List(ctx, tx, maker, params)
		return err
	})
	return res, err
}

// MintAsset creates a zero-decimal mint at mint, gives owner an associated
// token account for it and issues supply units into it. Returns the token account.
func (p *Processor) MintAsset(ctx context.Context, payer, mint, authority solana.Signer, owner solana.PublicKey, supply uint64) (solana.PublicKey, error) {
	var ata solana.PublicKey
	_, err := p.Execute(ctx, func(tx storage.LedgerTx) error {
		if _, err := programs.InitializeMint(ctx, tx, payer, mint, 0, authority.Key()); err != nil {
			return err
		}
		var err error
		ata, _, err = programs.CreateAssociatedTokenAccountIdempotent(ctx, tx, payer, owner, mint.Key())
		if err != nil {
			return err
		}
		if supply == 0 {
			return nil
		}
		return programs.MintTo(ctx, tx, mint.Key(), ata, authority, supply)
	})
	return ata, err
}

// Airdrop credits lamports to address. Development faucet only.
func (p *Processor) Airdrop(ctx context.Context, address solana.PublicKey, lamports uint64) (uint64, error) {
	var balance uint64
	_, err := p.Execute(ctx, func(tx storage.LedgerTx) error {
		if err := programs.Airdrop(ctx, tx, address, lamports); err != nil {
			return err
		}
		var err error
		balance, err = programs.Balance(ctx, tx, address)
		return err
	})
	return balance, err
}

// Balance returns the committed lamport balance of address.
func (p *Processor) Balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	var balance uint64
	err := p.View(ctx, func(tx storage.LedgerTx) error {
		var err error
		balance, err = programs.Balance(ctx, tx, address)
		return err
	})
	return balance, err
}
