package marketplace

import (
	"context"
	"time"

	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// MaxBidValidity bounds how far past the ledger clock a signed bid may expire.
const MaxBidValidity = 24 * time.Hour

// Checks run on a bid before the account pipeline.
const (
	CheckBidSignature = "bid_signature"
	CheckBidAccounts  = "bid_accounts"
	CheckBidTerms     = "bid_terms"
)

// BidTerms are what a taker signs besides the listing and its own key.
type BidTerms struct {
	Price     uint64 // lamports; must equal the listing price
	ExpiresAt int64  // unix seconds
}

// CheckBidTerms verifies terms against the listing at address and the clock
// of tx. A listing relisted at another price rejects the old signature.
func (p *Program) CheckBidTerms(ctx context.Context, tx storage.LedgerTx, address solana.PublicKey, terms BidTerms) error {
	now := tx.Clock().UnixTimestamp
	if terms.ExpiresAt <= now {
		return ErrExpired.at("bid", nil).WithCheck(CheckBidTerms)
	}
	if terms.ExpiresAt-now > int64(MaxBidValidity/time.Second) {
		return ErrMaxExpiryExceeded.at("bid", nil).WithCheck(CheckBidTerms)
	}

	l, err := p.LoadListing(ctx, tx, address)
	if err != nil {
		return err
	}
	if l.Price != terms.Price {
		return ErrPriceMismatch.at("listing", nil).WithCheck(CheckBidTerms)
	}
	return nil
}
