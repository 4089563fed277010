package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report summarizes settlement history.
type Report struct {
	GeneratedAt time.Time
	Start, End  int64 // unix seconds, inclusive; 0 = unbounded

	Summary Summary

	// Sorted by volume DESC, then marketplace address
	Marketplaces []MarketplaceRow

	// Sorted by slot ASC
	Settlements []SettlementRow
}

// Summary contains totals over all settlements in the report.
type Summary struct {
	TotalSettlements int
	Marketplaces     int
	Makers           int
	Takers           int
	VolumeLamports   uint64
	Volume           decimal.Decimal // SOL
	Reclaimed        decimal.Decimal // SOL returned to makers as storage deposits
	FirstSlot        uint64
	LastSlot         uint64
}

// MarketplaceRow aggregates one marketplace.
type MarketplaceRow struct {
	Marketplace    string
	Settlements    int
	VolumeLamports uint64
	Volume         decimal.Decimal
	AveragePrice   decimal.Decimal
}

// SettlementRow is one settlement in display units.
type SettlementRow struct {
	SettlementID  string
	Slot          uint64
	UnixTimestamp int64
	Marketplace   string
	Listing       string
	Mint          string
	Maker         string
	Taker         string
	Price         decimal.Decimal
	Reclaimed     decimal.Decimal
}
