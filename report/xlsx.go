package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes the snapshot as a workbook with one sheet per section.
func WriteXLSX(s *Snapshot, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{"Stats", []any{"Metric", "Value"}, statsRows(s)},
		{"Undervalued", []any{"Item ID", "Item", "Price", "Median", "Discount %", "Profit", "Seller", "Count", "Time Left (ms)"}, undervaluedRows(s)},
		{"Recommendations", []any{"Item ID", "Item", "Score", "Price", "Median", "Profit", "Confidence", "Time Left (ms)"}, recommendationRows(s)},
		{"Market", []any{"Item ID", "Item", "Trades", "Median", "Min", "Max", "Volatility %", "Samples"}, marketRows(s)},
	}

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return fmt.Errorf("new sheet %s: %w", sh.name, err)
		}

		if err := f.SetSheetRow(sh.name, "A1", &sh.header); err != nil {
			return fmt.Errorf("%s header: %w", sh.name, err)
		}
		for r, row := range sh.rows {
			cellRef, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sh.name, cellRef, &row); err != nil {
				return fmt.Errorf("%s row %d: %w", sh.name, r+1, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func statsRows(s *Snapshot) [][]any {
	st := s.Stats
	if st == nil {
		return nil
	}
	return [][]any{
		{"Generated", s.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Total Events", st.TotalEvents},
		{"Active Listings", st.TotalListings},
		{"Transactions", st.TotalTransactions},
		{"Unique Items", st.UniqueItems},
		{"Events Last Hour", st.EventsLastHour},
		{"Data Span (h)", st.DataSpanHours},
		{"Daily Rollups", st.TotalRollups},
	}
}

func undervaluedRows(s *Snapshot) [][]any {
	rows := make([][]any, 0, len(s.Undervalued))
	for _, u := range s.Undervalued {
		rows = append(rows, []any{u.ItemID, u.Item, u.Price, u.Median, u.DiscountPct, u.ProfitPotential, u.Seller, u.Count, u.TimeLeft})
	}
	return rows
}

func recommendationRows(s *Snapshot) [][]any {
	rows := make([][]any, 0, len(s.Recommendations))
	for _, r := range s.Recommendations {
		rows = append(rows, []any{r.ItemID, r.Item, r.PriorityScore, r.CurrentPrice, r.MedianPrice, r.ProfitPotential, r.Confidence, r.TimeLeft})
	}
	return rows
}

func marketRows(s *Snapshot) [][]any {
	rows := make([][]any, 0, len(s.Market))
	for _, m := range s.Market {
		rows = append(rows, []any{m.ItemID, m.Item, m.TradeCount, m.Median, m.Min, m.Max, m.Volatility, m.SampleSize})
	}
	return rows
}
