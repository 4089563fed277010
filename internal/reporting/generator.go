package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/storage"
)

// Generator produces reports from stored settlements.
type Generator struct {
	settlementStore storage.SettlementStore
	eventStore      storage.SettlementEventStore // optional, used for volume totals
	now             func() time.Time             // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. eventStore may be nil.
func NewGenerator(settlementStore storage.SettlementStore, eventStore storage.SettlementEventStore) *Generator {
	return &Generator{
		settlementStore: settlementStore,
		eventStore:      eventStore,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report over settlements with unix_timestamp in [start, end].
// end == 0 means no upper bound.
func (g *Generator) Generate(ctx context.Context, start, end int64) (*Report, error) {
	upper := end
	if upper == 0 {
		upper = math.MaxInt64
	}

	settlements, err := g.settlementStore.GetByTimeRange(ctx, start, upper)
	if err != nil {
		return nil, fmt.Errorf("load settlements: %w", err)
	}

	report := &Report{
		GeneratedAt: g.now(),
		Start:       start,
		End:         end,
		Summary:     summarize(settlements),
		Settlements: make([]SettlementRow, 0, len(settlements)),
	}
	for _, s := range settlements {
		report.Settlements = append(report.Settlements, SettlementRow{
			SettlementID:  s.SettlementID,
			Slot:          s.Slot,
			UnixTimestamp: s.UnixTimestamp,
			Marketplace:   s.Marketplace,
			Listing:       s.Listing,
			Mint:          s.Mint,
			Maker:         s.Maker,
			Taker:         s.Taker,
			Price:         LamportsToSOL(s.Price),
			Reclaimed:     LamportsToSOL(s.Reclaimed()),
		})
	}

	rows := marketplaceRows(settlements)
	if g.eventStore != nil {
		// Analytics volume wins over the OLTP sum when both are available
		volumes, err := g.eventStore.VolumeByMarketplace(ctx, start, upper)
		if err != nil {
			return nil, fmt.Errorf("load marketplace volume: %w", err)
		}
		for i := range rows {
			if v, ok := volumes[rows[i].Marketplace]; ok {
				rows[i].setVolume(v)
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].VolumeLamports != rows[j].VolumeLamports {
			return rows[i].VolumeLamports > rows[j].VolumeLamports
		}
		return rows[i].Marketplace < rows[j].Marketplace
	})
	report.Marketplaces = rows

	return report, nil
}

func summarize(settlements []*domain.Settlement) Summary {
	var (
		sum       Summary
		reclaimed uint64
	)
	marketplaces := make(map[string]struct{})
	makers := make(map[string]struct{})
	takers := make(map[string]struct{})

	for i, s := range settlements {
		sum.VolumeLamports += s.Price
		reclaimed += s.Reclaimed()
		marketplaces[s.Marketplace] = struct{}{}
		makers[s.Maker] = struct{}{}
		takers[s.Taker] = struct{}{}
		if i == 0 || s.Slot < sum.FirstSlot {
			sum.FirstSlot = s.Slot
		}
		if s.Slot > sum.LastSlot {
			sum.LastSlot = s.Slot
		}
	}

	sum.TotalSettlements = len(settlements)
	sum.Marketplaces = len(marketplaces)
	sum.Makers = len(makers)
	sum.Takers = len(takers)
	sum.Volume = LamportsToSOL(sum.VolumeLamports)
	sum.Reclaimed = LamportsToSOL(reclaimed)
	return sum
}

func marketplaceRows(settlements []*domain.Settlement) []MarketplaceRow {
	byMarketplace := make(map[string]*MarketplaceRow)
	for _, s := range settlements {
		row, ok := byMarketplace[s.Marketplace]
		if !ok {
			row = &MarketplaceRow{Marketplace: s.Marketplace}
			byMarketplace[s.Marketplace] = row
		}
		row.Settlements++
		row.VolumeLamports += s.Price
	}

	rows := make([]MarketplaceRow, 0, len(byMarketplace))
	for _, row := range byMarketplace {
		row.setVolume(row.VolumeLamports)
		rows = append(rows, *row)
	}
	return rows
}

func (r *MarketplaceRow) setVolume(lamports uint64) {
	r.VolumeLamports = lamports
	r.Volume = LamportsToSOL(lamports)
	r.AveragePrice = decimal.Zero
	if r.Settlements > 0 {
		r.AveragePrice = r.Volume.DivRound(decimal.NewFromInt(int64(r.Settlements)), 9)
	}
}
