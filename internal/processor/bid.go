package processor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/idhash"
	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/observability"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// BidMessagePrefix tags the message a taker signs to authorize a bid.
const BidMessagePrefix = "bid"

// BidMessageSize is the length of a bid message.
const BidMessageSize = len(BidMessagePrefix) + 2*solana.PublicKeyLength + 16

// BidMessage returns the bytes a taker signs:
// "bid" || listing || taker || price (u64 LE) || expires_at (i64 LE).
func BidMessage(listing, taker solana.PublicKey, price uint64, expiresAt int64) []byte {
	msg := make([]byte, 0, BidMessageSize)
	msg = append(msg, BidMessagePrefix...)
	msg = append(msg, listing[:]...)
	msg = append(msg, taker[:]...)
	msg = binary.LittleEndian.AppendUint64(msg, price)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(expiresAt))
	return msg
}

// BidRequest is a signed request by Taker to buy the listing of Mint at
// Price, valid until ExpiresAt.
type BidRequest struct {
	MarketplaceName string
	CollectionMint  solana.PublicKey
	Mint            solana.PublicKey
	Taker           solana.PublicKey
	Price           uint64 // lamports
	ExpiresAt       int64  // unix seconds
	Signature       []byte // ed25519 over BidMessage

	// Accounts overrides derivation. Used to submit non-canonical accounts,
	// which validation then rejects.
	Accounts *marketplace.BidAccounts
}

func (r BidRequest) terms() marketplace.BidTerms {
	return marketplace.BidTerms{Price: r.Price, ExpiresAt: r.ExpiresAt}
}

// SubmitBid verifies the taker's signature, settles the bid in one ledger
// transaction and records the settlement.
func (p *Processor) SubmitBid(ctx context.Context, req BidRequest) (*domain.Settlement, error) {
	start := time.Now()
	settlement, err := p.submitBid(ctx, req)

	status := "settled"
	if err != nil {
		status = "rejected"
		me := marketplace.Classify(err)
		if me == nil {
			status = "error"
		} else {
			observability.RecordValidationFailure(me.Check, string(me.Kind))
		}
	}
	observability.RecordBid(status, time.Since(start).Seconds())
	return settlement, err
}

func (p *Processor) submitBid(ctx context.Context, req BidRequest) (*domain.Settlement, error) {
	listing, err := p.bidListing(req)
	if err != nil {
		return nil, err
	}
	if !solana.VerifySignature(req.Taker, BidMessage(listing, req.Taker, req.Price, req.ExpiresAt), req.Signature) {
		p.logger.Debug("bid signature rejected", zap.Stringer("listing", listing), zap.Stringer("taker", req.Taker))
		return nil, marketplace.ErrInvalidSignature.WithCheck(marketplace.CheckBidSignature)
	}
	sigKey := string(req.Signature)
	if id, used := p.usedBids.Get(sigKey); used {
		p.logger.Info("bid signature reused",
			zap.Stringer("listing", listing),
			zap.Stringer("taker", req.Taker),
			zap.String("settlement_id", id.(string)))
		return nil, marketplace.ErrBidAlreadyUsed.WithCheck(marketplace.CheckBidSignature)
	}
	taker := solana.NewKeySigner(req.Taker)

	var receipt *marketplace.Receipt
	_, err = p.Execute(ctx, func(tx storage.LedgerTx) error {
		var accounts marketplace.BidAccounts
		if req.Accounts != nil {
			accounts = *req.Accounts
		} else {
			resolved, err := p.program.ResolveBidAccounts(ctx, tx, req.MarketplaceName, req.CollectionMint, req.Mint, req.Taker)
			if err != nil {
				return err
			}
			accounts = resolved
		}
		if err := p.program.CheckBidTerms(ctx, tx, accounts.Listing, req.terms()); err != nil {
			return err
		}

		r, err := p.program.Bid(ctx, tx, taker, accounts)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		var me *marketplace.Error
		if errors.As(err, &me) {
			p.logger.Info("bid rejected",
				zap.Stringer("listing", listing),
				zap.Stringer("taker", req.Taker),
				zap.String("kind", string(me.Kind)),
				zap.Int("code", me.Code),
				zap.String("check", me.Check),
			)
		} else {
			p.logger.Error("bid failed", zap.Stringer("listing", listing), zap.Error(err))
		}
		return nil, err
	}

	settlement := p.newSettlement(receipt)
	// A signature stays spent until it would have expired anyway.
	ttl := time.Duration(req.ExpiresAt-receipt.UnixTimestamp) * time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	p.usedBids.Set(sigKey, settlement.SettlementID, ttl)

	p.record(ctx, settlement)
	observability.RecordSettlement(settlement.Price, settlement.Reclaimed(), settlement.UnixTimestamp)
	return settlement, nil
}

// bidListing returns the listing address the request's signature must cover.
func (p *Processor) bidListing(req BidRequest) (solana.PublicKey, error) {
	if req.Accounts != nil {
		return req.Accounts.Listing, nil
	}
	if err := marketplace.ValidateName(req.MarketplaceName); err != nil {
		return solana.PublicKey{}, marketplace.Classify(err).WithCheck(marketplace.CheckBidAccounts)
	}
	accts, err := p.program.Seeds().DeriveBidAccounts(req.MarketplaceName, req.CollectionMint, req.Mint, solana.PublicKey{}, req.Taker)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive bid accounts: %w", err)
	}
	return accts.Listing, nil
}

func (p *Processor) newSettlement(r *marketplace.Receipt) *domain.Settlement {
	listing := r.Accounts.Listing.String()
	taker := r.Accounts.Taker.String()
	return &domain.Settlement{
		SettlementID:  idhash.ComputeSettlementID(listing, taker, r.Slot),
		Listing:       listing,
		Marketplace:   r.Accounts.Marketplace.String(),
		Mint:          r.Accounts.MakerMint.String(),
		Maker:         r.Accounts.Maker.String(),
		Taker:         taker,
		Price:         r.Price,
		VaultRent:     r.VaultRent,
		ListingRent:   r.ListingRent,
		Slot:          r.Slot,
		UnixTimestamp: r.UnixTimestamp,
		CreatedAt:     p.now().UnixMilli(),
	}
}

// record stores a committed settlement. The ledger is authoritative, so
// recording failures are logged and do not fail the bid.
func (p *Processor) record(ctx context.Context, s *domain.Settlement) {
	if p.settlements != nil {
		if err := p.settlements.Insert(ctx, s); err != nil {
			p.logger.Error("record settlement", zap.String("settlement_id", s.SettlementID), zap.Error(err))
		}
	}
	if p.events != nil {
		if err := p.events.InsertBulk(ctx, []*domain.Settlement{s}); err != nil {
			p.logger.Error("record settlement event", zap.String("settlement_id", s.SettlementID), zap.Error(err))
		}
	}
	p.logger.Info("settlement recorded",
		zap.String("settlement_id", s.SettlementID),
		zap.String("listing", s.Listing),
		zap.String("maker", s.Maker),
		zap.String("taker", s.Taker),
		zap.Uint64("price", s.Price),
		zap.Uint64("slot", s.Slot),
	)
}
