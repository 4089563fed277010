package layout

import (
	"fmt"

	"solana-nft-market/internal/domain"
)

// Allocated sizes of program records, discriminator included.
const (
	MarketplaceSize = DiscriminatorSize + 32 + 2 + 1 + 1 + 4 + domain.MaxMarketplaceNameLength
	WhitelistSize   = DiscriminatorSize + 1
	ListingSize     = DiscriminatorSize + 32 + 32 + 8 + 1 + 1 + 8 + 8 + 32
	EscrowSize      = DiscriminatorSize + 3*32 + 3*8 + 3*1
)

// Record type tags.
var (
	MarketplaceDiscriminator = Discriminator("Marketplace")
	WhitelistDiscriminator   = Discriminator("Whitelist")
	ListingDiscriminator     = Discriminator("Listing")
	EscrowDiscriminator      = Discriminator("Escrow")
)

// EncodeMarketplace serializes m into a MarketplaceSize buffer.
func EncodeMarketplace(m *domain.Marketplace) ([]byte, error) {
	if len(m.Name) > domain.MaxMarketplaceNameLength {
		return nil, fmt.Errorf("marketplace name is %d bytes, max %d", len(m.Name), domain.MaxMarketplaceNameLength)
	}
	w := newWriter(MarketplaceSize)
	w.bytes(MarketplaceDiscriminator[:])
	w.pubkey(m.Admin)
	w.u16(m.Fee)
	w.u8(m.Bump)
	w.u8(m.TreasuryBump)
	w.str(m.Name)
	return w.buf, nil
}

// DecodeMarketplace parses a Marketplace record.
func DecodeMarketplace(data []byte) (*domain.Marketplace, error) {
	r := newReader(data)
	r.discriminator(MarketplaceDiscriminator, "Marketplace")
	m := &domain.Marketplace{
		Admin:        r.pubkey(),
		Fee:          r.u16(),
		Bump:         r.u8(),
		TreasuryBump: r.u8(),
		Name:         r.str(domain.MaxMarketplaceNameLength),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode marketplace: %w", r.err)
	}
	return m, nil
}

// EncodeWhitelist serializes w into a WhitelistSize buffer.
func EncodeWhitelist(wl *domain.Whitelist) []byte {
	w := newWriter(WhitelistSize)
	w.bytes(WhitelistDiscriminator[:])
	w.u8(wl.Bump)
	return w.buf
}

// DecodeWhitelist parses a Whitelist record.
func DecodeWhitelist(data []byte) (*domain.Whitelist, error) {
	r := newReader(data)
	r.discriminator(WhitelistDiscriminator, "Whitelist")
	wl := &domain.Whitelist{Bump: r.u8()}
	if r.err != nil {
		return nil, fmt.Errorf("decode whitelist: %w", r.err)
	}
	return wl, nil
}

// EncodeListing serializes l into a ListingSize buffer.
func EncodeListing(l *domain.Listing) []byte {
	w := newWriter(ListingSize)
	w.bytes(ListingDiscriminator[:])
	w.pubkey(l.Maker)
	w.pubkey(l.Mint)
	w.u64(l.Price)
	w.u8(l.Bump)
	w.u8(l.AuthBump)
	w.i64(l.Expiry)
	w.u64(l.HighestBid)
	w.pubkey(l.HighestBidder)
	return w.buf
}

// DecodeListing parses a Listing record.
func DecodeListing(data []byte) (*domain.Listing, error) {
	r := newReader(data)
	r.discriminator(ListingDiscriminator, "Listing")
	l := &domain.Listing{
		Maker:         r.pubkey(),
		Mint:          r.pubkey(),
		Price:         r.u64(),
		Bump:          r.u8(),
		AuthBump:      r.u8(),
		Expiry:        r.i64(),
		HighestBid:    r.u64(),
		HighestBidder: r.pubkey(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode listing: %w", r.err)
	}
	return l, nil
}

// EncodeEscrow serializes e into an EscrowSize buffer.
func EncodeEscrow(e *domain.Escrow) []byte {
	w := newWriter(EscrowSize)
	w.bytes(EscrowDiscriminator[:])
	w.pubkey(e.Maker)
	w.pubkey(e.MakerToken)
	w.pubkey(e.TakerToken)
	w.u64(e.OfferAmount)
	w.u64(e.Seed)
	w.u64(e.Expiry)
	w.u8(e.AuthBump)
	w.u8(e.VaultBump)
	w.u8(e.EscrowBump)
	return w.buf
}

// DecodeEscrow parses an Escrow record.
func DecodeEscrow(data []byte) (*domain.Escrow, error) {
	r := newReader(data)
	r.discriminator(EscrowDiscriminator, "Escrow")
	e := &domain.Escrow{
		Maker:       r.pubkey(),
		MakerToken:  r.pubkey(),
		TakerToken:  r.pubkey(),
		OfferAmount: r.u64(),
		Seed:        r.u64(),
		Expiry:      r.u64(),
		AuthBump:    r.u8(),
		VaultBump:   r.u8(),
		EscrowBump:  r.u8(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode escrow: %w", r.err)
	}
	return e, nil
}
