package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Settlement Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window: %s\n\n", window(r.Start, r.End)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Settlements | %d |\n", r.Summary.TotalSettlements))
	sb.WriteString(fmt.Sprintf("| Marketplaces | %d |\n", r.Summary.Marketplaces))
	sb.WriteString(fmt.Sprintf("| Makers | %d |\n", r.Summary.Makers))
	sb.WriteString(fmt.Sprintf("| Takers | %d |\n", r.Summary.Takers))
	sb.WriteString(fmt.Sprintf("| Volume (SOL) | %s |\n", r.Summary.Volume.StringFixed(9)))
	sb.WriteString(fmt.Sprintf("| Deposits Reclaimed (SOL) | %s |\n", r.Summary.Reclaimed.StringFixed(9)))
	if r.Summary.TotalSettlements > 0 {
		sb.WriteString(fmt.Sprintf("| Slot Range | %d - %d |\n", r.Summary.FirstSlot, r.Summary.LastSlot))
	}
	sb.WriteString("\n")

	// Marketplaces
	sb.WriteString("## Marketplaces\n\n")
	if len(r.Marketplaces) > 0 {
		sb.WriteString("| Marketplace | Settlements | Volume (SOL) | Avg Price (SOL) |\n")
		sb.WriteString("|-------------|-------------|--------------|-----------------|\n")
		for _, m := range r.Marketplaces {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n",
				m.Marketplace, m.Settlements, m.Volume.StringFixed(9), m.AveragePrice.StringFixed(9)))
		}
	} else {
		sb.WriteString("No settlements in window.\n")
	}
	sb.WriteString("\n")

	// Settlements
	sb.WriteString("## Settlements\n\n")
	if len(r.Settlements) > 0 {
		sb.WriteString("| Slot | Listing | Mint | Maker | Taker | Price (SOL) |\n")
		sb.WriteString("|------|---------|------|-------|-------|-------------|\n")
		for _, s := range r.Settlements {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
				s.Slot, s.Listing, s.Mint, s.Maker, s.Taker, s.Price.StringFixed(9)))
		}
	} else {
		sb.WriteString("No settlements in window.\n")
	}

	return sb.String()
}

func window(start, end int64) string {
	from := "beginning"
	if start > 0 {
		from = time.Unix(start, 0).UTC().Format(time.RFC3339)
	}
	to := "now"
	if end > 0 {
		to = time.Unix(end, 0).UTC().Format(time.RFC3339)
	}
	return from + " to " + to
}
