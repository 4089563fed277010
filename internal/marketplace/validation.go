package marketplace

import (
	"context"
	"errors"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// Names of the bid validation checks, in pipeline order.
const (
	CheckTakerSigner    = "taker_signer"
	CheckMarketplace    = "marketplace_seeds"
	CheckTreasury       = "treasury_seeds"
	CheckWhitelist      = "whitelist_seeds"
	CheckListing        = "listing_seeds"
	CheckListingMaker   = "listing_has_one_maker"
	CheckVault          = "vault_authority"
	CheckMints          = "mints"
	CheckListingExpiry  = "listing_expiry"
	CheckTakerTokenAcct = "taker_token_account"
)

// bidState accumulates what the checks load so later checks and settlement
// reuse it.
type bidState struct {
	tx       storage.LedgerTx
	clock    domain.Clock
	taker    solana.Signer
	accounts BidAccounts

	marketplace *domain.Marketplace
	whitelist   *domain.Whitelist
	listing     *domain.Listing
	vault       *domain.TokenAccount

	takerATACreated bool
}

type check struct {
	name string
	run  func(ctx context.Context, p *Program, s *bidState) error
}

// bidChecks run in order; the first failure aborts the bid.
var bidChecks = []check{
	{CheckTakerSigner, checkTakerSigner},
	{CheckMarketplace, checkMarketplace},
	{CheckTreasury, checkTreasury},
	{CheckWhitelist, checkWhitelist},
	{CheckListing, checkListing},
	{CheckListingMaker, checkListingMaker},
	{CheckVault, checkVault},
	{CheckMints, checkMints},
	{CheckListingExpiry, checkListingExpiry},
	{CheckTakerTokenAcct, checkTakerTokenAccount},
}

// BidCheckNames returns the validation pipeline in execution order.
func BidCheckNames() []string {
	names := make([]string, len(bidChecks))
	for i, c := range bidChecks {
		names[i] = c.name
	}
	return names
}

func (p *Program) validateBid(ctx context.Context, s *bidState) error {
	for _, c := range bidChecks {
		if err := c.run(ctx, p, s); err != nil {
			var me *Error
			if errors.As(err, &me) {
				cp := *me
				cp.Check = c.name
				return &cp
			}
			return err
		}
	}
	return nil
}

func checkTakerSigner(_ context.Context, _ *Program, s *bidState) error {
	if !s.taker.IsValid() || s.taker.Key() != s.accounts.Taker {
		return ErrConstraintSigner.at("taker", nil)
	}
	return nil
}

func checkMarketplace(ctx context.Context, p *Program, s *bidState) error {
	m, err := p.LoadMarketplace(ctx, s.tx, s.accounts.Marketplace)
	if err != nil {
		return err
	}
	if !p.seeds.verify(s.accounts.Marketplace, m.Bump, []byte(MarketplaceSeed), []byte(m.Name)) {
		return ErrConstraintSeeds.at("marketplace", nil)
	}
	s.marketplace = m
	return nil
}

func checkTreasury(_ context.Context, p *Program, s *bidState) error {
	mp := s.accounts.Marketplace
	if !p.seeds.verify(s.accounts.Treasury, s.marketplace.TreasuryBump, []byte(TreasurySeed), mp[:]) {
		return ErrConstraintSeeds.at("treasury", nil)
	}
	return nil
}

func checkWhitelist(ctx context.Context, p *Program, s *bidState) error {
	wl, err := p.LoadWhitelist(ctx, s.tx, s.accounts.Whitelist)
	if err != nil {
		return err
	}
	mp, collection := s.accounts.Marketplace, s.accounts.CollectionMint
	if !p.seeds.verify(s.accounts.Whitelist, wl.Bump, mp[:], collection[:]) {
		return ErrConstraintSeeds.at("whitelist", nil)
	}
	s.whitelist = wl
	return nil
}

func checkListing(ctx context.Context, p *Program, s *bidState) error {
	l, err := p.LoadListing(ctx, s.tx, s.accounts.Listing)
	if err != nil {
		return err
	}
	wl, mint := s.accounts.Whitelist, s.accounts.MakerMint
	if !p.seeds.verify(s.accounts.Listing, l.Bump, wl[:], mint[:]) {
		return ErrConstraintSeeds.at("listing", nil)
	}
	s.listing = l
	return nil
}

func checkListingMaker(_ context.Context, _ *Program, s *bidState) error {
	if s.listing.Maker != s.accounts.Maker {
		return ErrConstraintHasOne.at("listing", nil)
	}
	return nil
}

// checkVault binds the vault to the listed asset: its address must derive
// from ["auth", mint], it must hold mint, and it must be its own authority.
func checkVault(ctx context.Context, p *Program, s *bidState) error {
	mint := s.accounts.MakerMint
	if !p.seeds.verify(s.accounts.Vault, s.listing.AuthBump, []byte(AuthSeed), mint[:]) {
		return ErrConstraintSeeds.at("vault", nil)
	}
	ta, _, err := programs.LoadTokenAccount(ctx, s.tx, s.accounts.Vault)
	if err != nil {
		return classifyAt("vault", err)
	}
	if ta.Mint != mint {
		return ErrConstraintTokenMint.at("vault", nil)
	}
	if ta.Owner != s.accounts.Vault {
		return ErrConstraintTokenOwner.at("vault", nil)
	}
	s.vault = ta
	return nil
}

func checkMints(ctx context.Context, _ *Program, s *bidState) error {
	if _, err := loadMint(ctx, s.tx, "maker_mint", s.accounts.MakerMint); err != nil {
		return err
	}
	if _, err := loadMint(ctx, s.tx, "collection_mint", s.accounts.CollectionMint); err != nil {
		return err
	}
	return nil
}

func checkListingExpiry(_ context.Context, _ *Program, s *bidState) error {
	if s.listing.IsExpired(s.clock.UnixTimestamp) {
		return ErrExpired.at("listing", nil)
	}
	return nil
}

// checkTakerTokenAccount creates the taker's associated token account for the
// mint if absent. The taker pays the deposit.
func checkTakerTokenAccount(ctx context.Context, _ *Program, s *bidState) error {
	want, _, err := programs.AssociatedTokenAddress(s.accounts.Taker, s.accounts.MakerMint)
	if err != nil {
		return err
	}
	if want != s.accounts.TakerATA {
		return ErrConstraintAssociated.at("taker_ata", nil)
	}

	_, created, err := programs.CreateAssociatedTokenAccountIdempotent(ctx, s.tx, s.taker, s.accounts.Taker, s.accounts.MakerMint)
	if err != nil {
		if errors.Is(err, programs.ErrOwnerMismatch) {
			return ErrConstraintTokenOwner.at("taker_ata", err)
		}
		return classifyAt("taker_ata", err)
	}
	s.takerATACreated = created
	return nil
}
