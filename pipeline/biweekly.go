package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"tripwatch/report"
	"tripwatch/sources"
	"tripwatch/store"
)

// windowDays is the biweekly aggregation window, end date inclusive.
const windowDays = 14

// BiweeklyConfig are the aggregation knobs.
type BiweeklyConfig struct {
	// EndDate is the last day of the window, YYYY-MM-DD.
	EndDate    string
	ReportsDir string
}

// Biweekly aggregates the trailing two weeks of persisted signals and
// quotes into a summary report. It only reads the database: no run
// marker, no purging, safe to repeat.
type Biweekly struct {
	Store  *store.Store
	Bundle *sources.Bundle
	Logger *slog.Logger
	Config BiweeklyConfig
}

// highlightCap bounds how many recent items each city section shows.
const highlightCap = 5

// Run builds biweekly_<end>.md and the flights summary CSV for the
// window.
func (b *Biweekly) Run() (*Summary, error) {
	end, err := time.Parse("2006-01-02", b.Config.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", b.Config.EndDate, err)
	}
	from := end.AddDate(0, 0, -(windowDays - 1)).Format("2006-01-02")
	to := b.Config.EndDate

	doc := &report.Document{
		Title: fmt.Sprintf("Biweekly travel summary %s to %s", from, to),
	}

	counts, err := b.Store.CityCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate city counts: %w", err)
	}
	countRows := make([][]string, 0, len(counts))
	for _, c := range counts {
		countRows = append(countRows, []string{c.CityCode, c.Kind, fmt.Sprintf("%d", c.Count)})
	}
	doc.Sections = append(doc.Sections, report.Section{
		Heading: "Signal volume by city",
		Body:    report.Table([]string{"City", "Kind", "Signals"}, countRows),
	})

	for _, kind := range []string{sources.KindNews, sources.KindWeather, sources.KindSafety} {
		signals, err := b.Store.SignalsBetween(kind, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s signals: %w", kind, err)
		}
		byCity := make(map[string][]store.Signal)
		for _, sig := range signals {
			byCity[sig.CityCode] = append(byCity[sig.CityCode], sig)
		}
		for _, dest := range b.Bundle.Destinations {
			citySignals := byCity[dest.Code]
			if len(citySignals) == 0 {
				continue
			}
			// Newest rows last in store order; show the tail.
			if len(citySignals) > highlightCap {
				citySignals = citySignals[len(citySignals)-highlightCap:]
			}
			items := make([]string, 0, len(citySignals))
			for _, sig := range citySignals {
				items = append(items, fmt.Sprintf("%s %s", sig.RunDate, report.Link(sig.Title, sig.URL)))
			}
			doc.Sections = append(doc.Sections, report.Section{
				Heading: fmt.Sprintf("%s (%s) recent %s", dest.Name, dest.Code, kind),
				Body:    report.Bullets(items),
			})
		}
	}

	fareSection, csvPath, err := b.flightsSection(from, to)
	if err != nil {
		return nil, err
	}
	doc.Sections = append(doc.Sections, fareSection)

	path := filepath.Join(b.Config.ReportsDir, "biweekly_"+to+".md")
	if err := report.Write(path, doc); err != nil {
		return nil, err
	}

	b.Logger.Info("biweekly summary written", "from", from, "to", to, "report", path, "csv", csvPath)
	return &Summary{Date: to, ReportPath: path}, nil
}

// flightsSection summarizes the window's fare quotes and writes the
// companion CSV.
func (b *Biweekly) flightsSection(from, to string) (report.Section, string, error) {
	quotes, err := b.Store.QuotesBetween(from, to)
	if err != nil {
		return report.Section{}, "", fmt.Errorf("failed to load quotes: %w", err)
	}

	rows, err := SummarizeFares(quotes)
	if err != nil {
		return report.Section{}, "", err
	}

	csvPath := filepath.Join(b.Config.ReportsDir, "flights_summary_"+to+".csv")
	if err := WriteFareCSV(csvPath, rows); err != nil {
		return report.Section{}, "", err
	}

	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		best := ""
		if row.BestValue > 0 {
			best = fmt.Sprintf("%s %.2f (%s)", row.BestCurrency, row.BestValue, row.BestDate)
		}
		tableRows = append(tableRows, []string{
			row.Origin + "-" + row.Destination, row.RouteID,
			fmt.Sprintf("%d/%d", row.Priced, row.Quotes), best,
		})
	}

	return report.Section{
		Heading: "Fares over the window",
		Body:    report.Table([]string{"Route", "ID", "Priced/Quotes", "Best"}, tableRows),
	}, csvPath, nil
}
