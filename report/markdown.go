package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RenderMarkdown renders a snapshot as a Markdown document.
func RenderMarkdown(s *Snapshot) string {
	var sb strings.Builder

	sb.WriteString("# Auction House Snapshot\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Stats\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	if st := s.Stats; st != nil {
		sb.WriteString(fmt.Sprintf("| Total Events | %d |\n", st.TotalEvents))
		sb.WriteString(fmt.Sprintf("| Active Listings | %d |\n", st.TotalListings))
		sb.WriteString(fmt.Sprintf("| Transactions | %d |\n", st.TotalTransactions))
		sb.WriteString(fmt.Sprintf("| Unique Items | %d |\n", st.UniqueItems))
		sb.WriteString(fmt.Sprintf("| Events Last Hour | %d |\n", st.EventsLastHour))
		sb.WriteString(fmt.Sprintf("| Data Span (h) | %.2f |\n", st.DataSpanHours))
		sb.WriteString(fmt.Sprintf("| Daily Rollups | %d |\n", st.TotalRollups))
	}
	sb.WriteString("\n")

	sb.WriteString("## Undervalued Listings\n\n")
	if len(s.Undervalued) > 0 {
		sb.WriteString("| Item | Price | Median | Discount | Profit | Seller | Count |\n")
		sb.WriteString("|------|-------|--------|----------|--------|--------|-------|\n")
		for _, u := range s.Undervalued {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.2f%% | %s | %s | %d |\n",
				cell(u.Item), Money(u.Price), Money(u.Median), u.DiscountPct,
				Money(u.ProfitPotential), cell(u.Seller), u.Count))
		}
	} else {
		sb.WriteString("No undervalued listings.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Recommendations\n\n")
	if len(s.Recommendations) > 0 {
		sb.WriteString("| Item | Score | Price | Median | Profit | Confidence | Time Left |\n")
		sb.WriteString("|------|-------|-------|--------|--------|------------|-----------|\n")
		for _, r := range s.Recommendations {
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %s | %s | %s | %.2f | %s |\n",
				cell(r.Item), r.PriorityScore, Money(r.CurrentPrice), Money(r.MedianPrice),
				Money(r.ProfitPotential), r.Confidence, timeLeft(r.TimeLeft)))
		}
	} else {
		sb.WriteString("No recommendations.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Market Overview\n\n")
	if len(s.Market) > 0 {
		sb.WriteString("| Item | Trades | Median | Min | Max | Volatility | Samples |\n")
		sb.WriteString("|------|--------|--------|-----|-----|------------|---------|\n")
		for _, m := range s.Market {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s | %.2f%% | %d |\n",
				cell(m.Item), m.TradeCount, Money(m.Median), Money(m.Min), Money(m.Max),
				m.Volatility, m.SampleSize))
		}
	} else {
		sb.WriteString("No market data.\n")
	}

	return sb.String()
}

// Money formats an in-game price with thousands separators and two decimals.
func Money(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	s := d.StringFixed(2)
	whole, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + frac
}

func timeLeft(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}

// cell keeps pipes in item and seller names from breaking the table.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
