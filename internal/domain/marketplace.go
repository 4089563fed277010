package domain

import "solana-nft-market/internal/solana"

// MaxMarketplaceNameLength bounds Marketplace.Name, which doubles as a derivation seed.
const MaxMarketplaceNameLength = 32

// Marketplace is the global configuration record of one marketplace instance.
type Marketplace struct {
	Admin        solana.PublicKey
	Fee          uint16 // basis points
	Bump         uint8  // ["marketplace", name]
	TreasuryBump uint8  // ["treasury", marketplace]
	Name         string
}

// Whitelist marks a collection as listable on a marketplace.
// Existence of the record is the signal.
type Whitelist struct {
	Bump uint8 // [marketplace, collection_mint]
}
