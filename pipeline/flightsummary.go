package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jszwec/csvutil"

	"tripwatch/store"
)

// FareSummaryRow is one route aggregated over a date window. Exported
// as CSV alongside the biweekly report.
type FareSummaryRow struct {
	Origin       string  `csv:"origin"`
	Destination  string  `csv:"destination"`
	RouteID      string  `csv:"route_id"`
	Quotes       int     `csv:"quotes"`
	Priced       int     `csv:"priced"`
	BestCurrency string  `csv:"best_currency"`
	BestValue    float64 `csv:"best_value"`
	BestDate     string  `csv:"best_date"`
}

// SummarizeFares folds quote rows into one summary row per route. The
// best price is the minimum priced quote in the input; rows with no
// priced quotes keep zero values so gaps stay visible.
func SummarizeFares(quotes []store.FlightQuote) ([]FareSummaryRow, error) {
	byRoute := make(map[string]*FareSummaryRow)
	for _, q := range quotes {
		key := q.Origin + "/" + q.Destination + "/" + q.RouteID
		row := byRoute[key]
		if row == nil {
			row = &FareSummaryRow{Origin: q.Origin, Destination: q.Destination, RouteID: q.RouteID}
			byRoute[key] = row
		}
		row.Quotes++
		if q.Value == nil {
			continue
		}
		row.Priced++
		if row.BestValue == 0 || *q.Value < row.BestValue {
			row.BestValue = *q.Value
			row.BestDate = q.RunDate
			if q.Currency != nil {
				row.BestCurrency = *q.Currency
			} else {
				row.BestCurrency = ""
			}
		}
	}

	rows := make([]FareSummaryRow, 0, len(byRoute))
	for _, row := range byRoute {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Origin != rows[j].Origin {
			return rows[i].Origin < rows[j].Origin
		}
		if rows[i].Destination != rows[j].Destination {
			return rows[i].Destination < rows[j].Destination
		}
		return rows[i].RouteID < rows[j].RouteID
	})
	return rows, nil
}

// WriteFareCSV writes summary rows as CSV, creating parent directories.
func WriteFareCSV(path string, rows []FareSummaryRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal fare summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write fare summary: %w", err)
	}
	return nil
}
