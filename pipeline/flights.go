package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"tripwatch/fare"
	"tripwatch/fetch"
	"tripwatch/report"
	"tripwatch/sources"
	"tripwatch/store"
)

// FlightsConfig are the fare snapshot knobs.
type FlightsConfig struct {
	Date       string
	Provider   string
	RawDir     string
	ReportsDir string
	// MaxRoutes caps how many routes one run attempts; 0 means all.
	MaxRoutes int
	Force     bool
}

// Flights captures provider fare pages for configured routes and
// persists one quote row per attempted route, failures included.
type Flights struct {
	Store   *store.Store
	Fetcher fetch.PageFetcher
	Routes  []sources.Route
	Logger  *slog.Logger
	Config  FlightsConfig
}

// Run executes the fare snapshot. Like the daily run it is
// once-per-date unless forced, and a forced rerun first purges the
// day's quotes for this provider.
func (f *Flights) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Date: f.Config.Date}

	done, err := f.Store.HasRun(store.RunFlights, f.Config.Date)
	if err != nil {
		return nil, f.fatal(summary, fmt.Errorf("failed to check run marker: %w", err))
	}
	if done {
		if !f.Config.Force {
			f.Logger.Info("flights run already recorded, skipping", "date", f.Config.Date)
			summary.Skipped = true
			return summary, nil
		}
		f.Logger.Warn("forced rerun, purging day", "date", f.Config.Date, "provider", f.Config.Provider)
		if err := f.Store.DeleteFlightsRun(f.Config.Date, f.Config.Provider); err != nil {
			return nil, f.fatal(summary, fmt.Errorf("failed to purge forced rerun: %w", err))
		}
	}

	routes := f.Routes
	if f.Config.MaxRoutes > 0 && len(routes) > f.Config.MaxRoutes {
		routes = routes[:f.Config.MaxRoutes]
	}

	for _, route := range routes {
		if err := f.collectRoute(ctx, route, summary); err != nil {
			return nil, f.fatal(summary, err)
		}
	}

	if err := f.Store.RecordRun(store.RunFlights, f.Config.Date); err != nil {
		return nil, f.fatal(summary, fmt.Errorf("failed to record run: %w", err))
	}

	path, err := f.writeDigest()
	if err != nil {
		return nil, f.fatal(summary, err)
	}
	summary.ReportPath = path

	f.Logger.Info("flights run complete",
		"date", f.Config.Date,
		"routes", len(routes),
		"inserted", summary.Inserted,
		"route_errors", summary.SourceErrors)
	return summary, nil
}

// collectRoute fetches one fare page and writes its quote row. Every
// outcome is persisted: a fetch failure becomes a row with empty price
// fields and an explanatory note, so the day's coverage is complete.
func (f *Flights) collectRoute(ctx context.Context, route sources.Route, summary *Summary) error {
	quote := store.FlightQuote{
		RunDate:     f.Config.Date,
		Provider:    f.Config.Provider,
		Origin:      route.Origin,
		Destination: route.Destination,
		RouteID:     route.ID,
		SourceURL:   route.URL,
	}

	resp, err := f.Fetcher.Fetch(ctx, route.URL)
	if err != nil {
		summary.SourceErrors++
		note := "fetch_failed: " + err.Error()
		quote.Notes = &note
		f.Logger.Warn("route fetch failed", "route", route.ID, "error", err)
		if aerr := report.AppendSourceError(f.Config.ReportsDir, f.Config.Date, route.ID, err.Error()); aerr != nil {
			f.Logger.Warn("source error log write failed", "error", aerr)
		}
	} else {
		quote.StatusCode = &resp.Status

		rawPath := filepath.Join(f.Config.RawDir, f.Config.Date, "flights",
			route.Origin, route.Destination, route.ID+".html")
		if err := writeRaw(rawPath, resp.Body); err != nil {
			f.Logger.Warn("raw capture failed", "route", route.ID, "error", err)
		} else {
			quote.RawPath = &rawPath
		}

		result := fare.Extract(resp.Body)
		quote.ParseOK = result.OK
		if result.Note != "" {
			quote.Notes = &result.Note
		}
		if result.OK {
			quote.Value = &result.Value
			if result.Currency != "" {
				quote.Currency = &result.Currency
			}
		}
		if result.Blocked {
			summary.SourceErrors++
			f.Logger.Warn("route blocked", "route", route.ID, "note", result.Note)
		}
	}

	inserted, err := f.Store.InsertFlightQuote(quote)
	if err != nil {
		return fmt.Errorf("failed to persist quote for %s: %w", route.ID, err)
	}
	if inserted {
		summary.Inserted++
	}
	return nil
}

func (f *Flights) fatal(summary *Summary, err error) error {
	if _, aerr := report.WriteHumanAlert(f.Config.ReportsDir, f.Config.Date, store.RunFlights, err.Error()); aerr != nil {
		f.Logger.Error("alert write failed", "error", aerr)
	}
	return err
}

// writeDigest renders flights_<date>.md as one table over the day's
// quote rows.
func (f *Flights) writeDigest() (string, error) {
	quotes, err := f.Store.QuotesForDate(f.Config.Date)
	if err != nil {
		return "", fmt.Errorf("failed to load quotes for digest: %w", err)
	}

	rows := make([][]string, 0, len(quotes))
	for _, q := range quotes {
		price := ""
		if q.Value != nil {
			currency := ""
			if q.Currency != nil {
				currency = *q.Currency + " "
			}
			price = fmt.Sprintf("%s%.2f", currency, *q.Value)
		}
		note := ""
		if q.Notes != nil {
			note = *q.Notes
		}
		rows = append(rows, []string{
			q.Origin + "-" + q.Destination, q.RouteID, price, note,
		})
	}

	doc := &report.Document{
		Title: "Flight fares " + f.Config.Date,
		Sections: []report.Section{{
			Heading: f.Config.Provider,
			Body:    report.Table([]string{"Route", "ID", "From price", "Notes"}, rows),
		}},
	}

	path := filepath.Join(f.Config.ReportsDir, "flights_"+f.Config.Date+".md")
	if err := report.Write(path, doc); err != nil {
		return "", err
	}
	return path, nil
}
