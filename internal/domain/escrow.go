package domain

import (
	"errors"

	"solana-nft-market/internal/solana"
)

// MaxRelativeExpiry is the exclusive upper bound, in slots, for SetExpiryRelative.
const MaxRelativeExpiry = 100_000

var (
	// ErrEscrowExpired is returned by CheckExpiry once the expiry slot is reached.
	ErrEscrowExpired = errors.New("escrow has expired")

	// ErrMaxExpiryExceeded is returned when a relative expiry is out of range.
	ErrMaxExpiryExceeded = errors.New("max expiry exceeded")
)

// Escrow is a token-for-token swap offer. Only its expiry guard is used here.
type Escrow struct {
	Maker       solana.PublicKey
	MakerToken  solana.PublicKey
	TakerToken  solana.PublicKey
	OfferAmount uint64
	Seed        uint64
	Expiry      uint64 // slot, 0 = never
	AuthBump    uint8
	VaultBump   uint8
	EscrowBump  uint8
}

// CheckExpiry fails once clock.Slot reaches Expiry.
func (e *Escrow) CheckExpiry(clock Clock) error {
	if e.Expiry == 0 {
		return nil
	}
	if e.Expiry <= clock.Slot {
		return ErrEscrowExpired
	}
	return nil
}

// SetExpiryRelative sets Expiry to clock.Slot + slots, or to 0 when slots is 0.
// Expiry is left unchanged on error.
func (e *Escrow) SetExpiryRelative(clock Clock, slots uint64) error {
	if slots >= MaxRelativeExpiry {
		return ErrMaxExpiryExceeded
	}
	if slots == 0 {
		e.SetExpiryAbsolute(0)
		return nil
	}
	e.SetExpiryAbsolute(clock.Slot + slots)
	return nil
}

// SetExpiryAbsolute sets Expiry verbatim.
func (e *Escrow) SetExpiryAbsolute(slot uint64) {
	e.Expiry = slot
}
