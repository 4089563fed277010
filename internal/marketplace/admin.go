package marketplace

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/layout"
	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// ValidateName fails with ErrInvalidName unless name is 1 to 32 bytes of UTF-8.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > domain.MaxMarketplaceNameLength || !utf8.ValidString(name) {
		return ErrInvalidName.at("marketplace", nil)
	}
	return nil
}

// InitializeMarketplace creates the marketplace record for name with admin as
// its administrator. Returns the marketplace address.
func (p *Program) InitializeMarketplace(ctx context.Context, tx storage.LedgerTx, admin solana.Signer, name string, fee uint16) (solana.PublicKey, error) {
	if !admin.IsValid() {
		return solana.PublicKey{}, ErrConstraintSigner.at("admin", nil)
	}
	if err := ValidateName(name); err != nil {
		return solana.PublicKey{}, err
	}

	address, bump, err := p.seeds.Marketplace(name)
	if err != nil {
		return solana.PublicKey{}, ErrInvalidName.at("marketplace", err)
	}
	_, treasuryBump, err := p.seeds.Treasury(address)
	if err != nil {
		return solana.PublicKey{}, err
	}

	signer, err := solana.SignAs(p.id, address, []byte(MarketplaceSeed), []byte(name), []byte{bump})
	if err != nil {
		return solana.PublicKey{}, err
	}
	m := &domain.Marketplace{
		Admin:        admin.Key(),
		Fee:          fee,
		Bump:         bump,
		TreasuryBump: treasuryBump,
		Name:         name,
	}
	data, err := layout.EncodeMarketplace(m)
	if err != nil {
		return solana.PublicKey{}, ErrInvalidName.at("marketplace", err)
	}
	if err := p.createRecord(ctx, tx, admin, signer, "marketplace", data); err != nil {
		return solana.PublicKey{}, err
	}

	p.logger.Info("marketplace initialized",
		zap.String("name", name),
		zap.Stringer("marketplace", address),
		zap.Stringer("admin", admin.Key()),
		zap.Uint16("fee_bps", fee),
	)
	return address, nil
}

// WhitelistCollection allows listings from collectionMint on marketplace.
// Only the marketplace admin may call it. Returns the whitelist address.
func (p *Program) WhitelistCollection(ctx context.Context, tx storage.LedgerTx, admin solana.Signer, marketplace, collectionMint solana.PublicKey) (solana.PublicKey, error) {
	if !admin.IsValid() {
		return solana.PublicKey{}, ErrConstraintSigner.at("admin", nil)
	}
	m, err := p.LoadMarketplace(ctx, tx, marketplace)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if m.Admin != admin.Key() {
		return solana.PublicKey{}, ErrConstraintHasOne.at("marketplace", nil)
	}
	if _, err := loadMint(ctx, tx, "collection_mint", collectionMint); err != nil {
		return solana.PublicKey{}, err
	}

	address, bump, err := p.seeds.Whitelist(marketplace, collectionMint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	signer, err := solana.SignAs(p.id, address, marketplace[:], collectionMint[:], []byte{bump})
	if err != nil {
		return solana.PublicKey{}, err
	}
	data := layout.EncodeWhitelist(&domain.Whitelist{Bump: bump})
	if err := p.createRecord(ctx, tx, admin, signer, "whitelist", data); err != nil {
		return solana.PublicKey{}, err
	}

	p.logger.Info("collection whitelisted",
		zap.Stringer("marketplace", marketplace),
		zap.Stringer("collection", collectionMint),
		zap.Stringer("whitelist", address),
	)
	return address, nil
}

// ListParams describes a new listing.
type ListParams struct {
	Marketplace    solana.PublicKey
	CollectionMint solana.PublicKey
	Mint           solana.PublicKey
	MakerATA       solana.PublicKey // maker's token account holding Mint
	Price          uint64           // lamports, > 0
	Expiry         int64            // unix seconds, 0 = never
}

// ListResult holds the accounts created by List.
type ListResult struct {
	Listing   solana.PublicKey
	Vault     solana.PublicKey
	Whitelist solana.PublicKey
}

// List deposits one unit of params.Mint into a vault owned by its derived
// authority and creates the listing record.
func (p *Program) List(ctx context.Context, tx storage.LedgerTx, maker solana.Signer, params ListParams) (*ListResult, error) {
	if !maker.IsValid() {
		return nil, ErrConstraintSigner.at("maker", nil)
	}
	if params.Price == 0 {
		return nil, ErrInvalidPrice.at("listing", nil)
	}
	if clock := tx.Clock(); params.Expiry != 0 && params.Expiry <= clock.UnixTimestamp {
		return nil, ErrInvalidExpiry.at("listing", nil)
	}

	m, err := p.LoadMarketplace(ctx, tx, params.Marketplace)
	if err != nil {
		return nil, err
	}
	if !p.seeds.verify(params.Marketplace, m.Bump, []byte(MarketplaceSeed), []byte(m.Name)) {
		return nil, ErrConstraintSeeds.at("marketplace", nil)
	}

	whitelist, _, err := p.seeds.Whitelist(params.Marketplace, params.CollectionMint)
	if err != nil {
		return nil, err
	}
	if _, err := p.LoadWhitelist(ctx, tx, whitelist); err != nil {
		return nil, err
	}
	if _, err := loadMint(ctx, tx, "maker_mint", params.Mint); err != nil {
		return nil, err
	}

	src, _, err := programs.LoadTokenAccount(ctx, tx, params.MakerATA)
	if err != nil {
		return nil, classifyAt("maker_ata", err)
	}
	if src.Mint != params.Mint {
		return nil, ErrConstraintTokenMint.at("maker_ata", nil)
	}
	if src.Owner != maker.Key() {
		return nil, ErrConstraintTokenOwner.at("maker_ata", nil)
	}

	vault, authBump, err := p.seeds.VaultAuthority(params.Mint)
	if err != nil {
		return nil, err
	}
	vaultSigner, err := p.seeds.VaultSigner(vault, params.Mint, authBump)
	if err != nil {
		return nil, err
	}
	if _, err := programs.InitializeAccount(ctx, tx, maker, vaultSigner, params.Mint, vault); err != nil {
		return nil, classifyAt("vault", err)
	}
	if err := programs.TokenTransfer(ctx, tx, params.MakerATA, vault, maker, 1); err != nil {
		return nil, classifyAt("maker_ata", err)
	}

	listing, bump, err := p.seeds.Listing(whitelist, params.Mint)
	if err != nil {
		return nil, err
	}
	listingSigner, err := solana.SignAs(p.id, listing, whitelist[:], params.Mint[:], []byte{bump})
	if err != nil {
		return nil, err
	}
	data := layout.EncodeListing(&domain.Listing{
		Maker:    maker.Key(),
		Mint:     params.Mint,
		Price:    params.Price,
		Bump:     bump,
		AuthBump: authBump,
		Expiry:   params.Expiry,
	})
	if err := p.createRecord(ctx, tx, maker, listingSigner, "listing", data); err != nil {
		return nil, err
	}

	p.logger.Info("listing created",
		zap.Stringer("listing", listing),
		zap.Stringer("maker", maker.Key()),
		zap.Stringer("mint", params.Mint),
		zap.Uint64("price", params.Price),
		zap.Int64("expiry", params.Expiry),
	)
	return &ListResult{Listing: listing, Vault: vault, Whitelist: whitelist}, nil
}

// createRecord allocates a program-owned account sized for data and writes it.
func (p *Program) createRecord(ctx context.Context, tx storage.LedgerTx, payer, account solana.Signer, role string, data []byte) error {
	acct, err := programs.CreateAccount(ctx, tx, payer, account, len(data), p.id)
	if err != nil {
		return classifyAt(role, err)
	}
	acct.Data = data
	return tx.Put(ctx, acct)
}
