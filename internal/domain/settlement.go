package domain

// Settlement records one successful bid.
// Corresponds to settlements table in PostgreSQL and settlement_events in ClickHouse.
type Settlement struct {
	SettlementID  string // deterministic hash of listing|taker|slot
	Listing       string // listing address (closed by this settlement)
	Marketplace   string // marketplace address
	Mint          string // asset transferred
	Maker         string // seller
	Taker         string // bidder
	Price         uint64 // lamports paid maker by taker
	VaultRent     uint64 // lamports reclaimed from the vault
	ListingRent   uint64 // lamports reclaimed from the listing record
	Slot          uint64 // ledger slot of the settlement
	UnixTimestamp int64  // ledger time (seconds)
	CreatedAt     int64  // record creation timestamp (ms)
}

// Reclaimed returns the total storage deposit returned to the maker.
func (s *Settlement) Reclaimed() uint64 {
	return s.VaultRent + s.ListingRent
}
