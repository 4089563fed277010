package reporting

import (
	"encoding/csv"
	"io"
	"strconv"
)

var settlementHeader = []string{
	"settlement_id", "slot", "unix_timestamp", "marketplace", "listing", "mint",
	"maker", "taker", "price_sol", "reclaimed_sol",
}

// WriteSettlementsCSV writes one row per settlement.
func WriteSettlementsCSV(w io.Writer, rows []SettlementRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(settlementHeader); err != nil {
		return err
	}
	for _, s := range rows {
		record := []string{
			s.SettlementID,
			strconv.FormatUint(s.Slot, 10),
			strconv.FormatInt(s.UnixTimestamp, 10),
			s.Marketplace,
			s.Listing,
			s.Mint,
			s.Maker,
			s.Taker,
			s.Price.StringFixed(9),
			s.Reclaimed.StringFixed(9),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMarketplacesCSV writes one row per marketplace.
func WriteMarketplacesCSV(w io.Writer, rows []MarketplaceRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"marketplace", "settlements", "volume_lamports", "volume_sol", "average_price_sol"}); err != nil {
		return err
	}
	for _, m := range rows {
		record := []string{
			m.Marketplace,
			strconv.Itoa(m.Settlements),
			strconv.FormatUint(m.VolumeLamports, 10),
			m.Volume.StringFixed(9),
			m.AveragePrice.StringFixed(9),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
