package domain

import "solana-nft-market/internal/solana"

// Listing is an NFT held in a vault awaiting a bid at Price.
type Listing struct {
	Maker    solana.PublicKey // seller, receives payment and reclaimed deposits
	Mint     solana.PublicKey // listed asset
	Price    uint64           // reserve price in lamports
	Bump     uint8            // [whitelist, mint]
	AuthBump uint8            // ["auth", mint]
	Expiry   int64            // unix seconds, 0 = never

	// Auction fields are persisted but not enforced.
	HighestBid    uint64
	HighestBidder solana.PublicKey
}

// ListingState is the lifecycle position of a listing.
type ListingState string

const (
	ListingStateOpen    ListingState = "OPEN"
	ListingStateExpired ListingState = "EXPIRED"
	ListingStateSettled ListingState = "SETTLED"
)

// String returns the string representation of ListingState.
func (s ListingState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s ListingState) IsTerminal() bool {
	return s == ListingStateExpired || s == ListingStateSettled
}

// IsExpired reports whether the listing can no longer be settled at unixTimestamp.
func (l *Listing) IsExpired(unixTimestamp int64) bool {
	return l.Expiry != 0 && unixTimestamp >= l.Expiry
}

// StateAt derives the state of a listing. A nil listing has been closed,
// which only settlement does.
func StateAt(l *Listing, clock Clock) ListingState {
	switch {
	case l == nil:
		return ListingStateSettled
	case l.IsExpired(clock.UnixTimestamp):
		return ListingStateExpired
	default:
		return ListingStateOpen
	}
}
