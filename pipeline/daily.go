package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"tripwatch/feed"
	"tripwatch/fetch"
	"tripwatch/report"
	"tripwatch/sources"
	"tripwatch/store"
)

// DailyConfig are the daily snapshot knobs.
type DailyConfig struct {
	Date         string
	RawDir       string
	ReportsDir   string
	MaxPerSource int
	Strict       bool
	Force        bool
}

// Daily collects news, weather, and safety signals for every configured
// destination, persists the relevant ones, and writes the day's digest.
type Daily struct {
	Store    *store.Store
	Fetcher  fetch.PageFetcher
	Bundle   *sources.Bundle
	Keywords sources.Keywords
	Logger   *slog.Logger
	Config   DailyConfig
}

// sectionCaps bound how many items each digest section shows per city.
var sectionCaps = map[string]int{
	sources.KindNews:    5,
	sources.KindWeather: 3,
	sources.KindSafety:  5,
}

// Run executes the daily snapshot. A completed run for the date is
// skipped unless forced, in which case the day's rows are purged first
// so reruns never double-count. Fetch and parse failures are isolated
// per source; persistence failures abort the run and leave a
// NEEDS_HUMAN alert.
func (d *Daily) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Date: d.Config.Date}

	done, err := d.Store.HasRun(store.RunDaily, d.Config.Date)
	if err != nil {
		return nil, d.fatal(summary, fmt.Errorf("failed to check run marker: %w", err))
	}
	if done {
		if !d.Config.Force {
			d.Logger.Info("daily run already recorded, skipping", "date", d.Config.Date)
			summary.Skipped = true
			return summary, nil
		}
		d.Logger.Warn("forced rerun, purging day", "date", d.Config.Date)
		if err := d.Store.DeleteDailyRun(d.Config.Date); err != nil {
			return nil, d.fatal(summary, fmt.Errorf("failed to purge forced rerun: %w", err))
		}
	}

	for _, kind := range []string{sources.KindNews, sources.KindWeather, sources.KindSafety} {
		for _, src := range d.Bundle.ByKind(kind) {
			if src.Type == sources.TypeTodo {
				continue
			}
			if err := d.collectSource(ctx, kind, src, summary); err != nil {
				return nil, d.fatal(summary, err)
			}
		}
	}

	if err := d.Store.RecordRun(store.RunDaily, d.Config.Date); err != nil {
		return nil, d.fatal(summary, fmt.Errorf("failed to record run: %w", err))
	}

	path, err := d.writeDigest()
	if err != nil {
		return nil, d.fatal(summary, err)
	}
	summary.ReportPath = path

	d.Logger.Info("daily run complete",
		"date", d.Config.Date,
		"inserted", summary.Inserted,
		"source_errors", summary.SourceErrors)
	return summary, nil
}

// collectSource fetches one configured source, expanding OPML indexes
// into child feeds, and persists the relevant items. Returns an error
// only for persistence failures; network and parse problems are logged
// to the source error file and counted.
func (d *Daily) collectSource(ctx context.Context, kind string, src sources.Source, summary *Summary) error {
	resp, err := d.Fetcher.Fetch(ctx, src.URL)
	if err != nil {
		d.sourceError(summary, src.ID, err)
		return nil
	}

	if src.Type == sources.TypeOPML {
		urls, err := feed.ParseOPML(resp.Body)
		if err != nil {
			d.sourceError(summary, src.ID, fmt.Errorf("opml parse: %w", err))
			return nil
		}
		for _, childURL := range urls {
			child := sources.Source{
				ID:      childSourceID(src.ID, childURL),
				Country: src.Country,
				Type:    sources.TypeRSS,
				URL:     childURL,
			}
			childResp, err := d.Fetcher.Fetch(ctx, childURL)
			if err != nil {
				d.sourceError(summary, child.ID, err)
				continue
			}
			if err := d.persistFeed(kind, child, childResp.Body, summary); err != nil {
				return err
			}
		}
		return nil
	}

	return d.persistFeed(kind, src, resp.Body, summary)
}

// persistFeed parses feed bytes, attributes items to each in-scope
// destination via the keyword policy, captures the raw bytes per city,
// and commits the resulting signals in one transaction per source.
func (d *Daily) persistFeed(kind string, src sources.Source, body []byte, summary *Summary) error {
	items, err := feed.ParseAny(body)
	if err != nil {
		d.sourceError(summary, src.ID, fmt.Errorf("feed parse: %w", err))
		return nil
	}
	items = d.capItems(items)
	if len(items) == 0 {
		d.Logger.Debug("source yielded no items", "source", src.ID)
	}

	var signals []store.Signal
	for _, dest := range d.Bundle.Destinations {
		if !src.AppliesTo(dest) {
			continue
		}

		rawPath := filepath.Join(d.Config.RawDir, d.Config.Date, kind, dest.Code, src.ID+".xml")
		if err := writeRaw(rawPath, body); err != nil {
			d.Logger.Warn("raw capture failed", "source", src.ID, "error", err)
		}

		kept := 0
		for _, item := range items {
			url := item.URL
			if url == "" {
				url = src.URL
			}
			if !d.Keywords.Match(dest.Code, kind, item.Title, url, d.Config.Strict) {
				continue
			}
			signals = append(signals, store.Signal{
				RunDate:     d.Config.Date,
				CityCode:    dest.Code,
				CityName:    dest.Name,
				SourceID:    src.ID,
				Title:       item.Title,
				URL:         url,
				PublishedAt: item.Published,
			})
			kept++
		}
		d.Logger.Debug("source collected", "source", src.ID, "city", dest.Code, "kept", kept)
	}

	if err := d.Store.InsertSignals(kind, signals); err != nil {
		return fmt.Errorf("failed to persist %s signals from %s: %w", kind, src.ID, err)
	}
	summary.Inserted += len(signals)
	return nil
}

// capItems applies the per-source examination cap.
func (d *Daily) capItems(items []feed.Item) []feed.Item {
	if d.Config.MaxPerSource > 0 && len(items) > d.Config.MaxPerSource {
		return items[:d.Config.MaxPerSource]
	}
	return items
}

func (d *Daily) sourceError(summary *Summary, sourceID string, err error) {
	summary.SourceErrors++
	d.Logger.Warn("source failed", "source", sourceID, "error", err)
	if aerr := report.AppendSourceError(d.Config.ReportsDir, d.Config.Date, sourceID, err.Error()); aerr != nil {
		d.Logger.Warn("source error log write failed", "error", aerr)
	}
}

// fatal writes the operator alert for an aborted run and passes the
// error through.
func (d *Daily) fatal(summary *Summary, err error) error {
	if _, aerr := report.WriteHumanAlert(d.Config.ReportsDir, d.Config.Date, store.RunDaily, err.Error()); aerr != nil {
		d.Logger.Error("alert write failed", "error", aerr)
	}
	return err
}

// writeDigest renders daily_<date>.md: one section per city and kind,
// newest first up to the section cap.
func (d *Daily) writeDigest() (string, error) {
	doc := &report.Document{Title: "Daily travel signals " + d.Config.Date}

	byCityKind := make(map[string]map[string][]store.Signal)
	for _, kind := range []string{sources.KindNews, sources.KindWeather, sources.KindSafety} {
		signals, err := d.Store.SignalsForDate(kind, d.Config.Date)
		if err != nil {
			return "", fmt.Errorf("failed to load signals for digest: %w", err)
		}
		for _, sig := range signals {
			if byCityKind[sig.CityCode] == nil {
				byCityKind[sig.CityCode] = make(map[string][]store.Signal)
			}
			byCityKind[sig.CityCode][kind] = append(byCityKind[sig.CityCode][kind], sig)
		}
	}

	for _, dest := range d.Bundle.Destinations {
		for _, kind := range []string{sources.KindNews, sources.KindWeather, sources.KindSafety} {
			signals := byCityKind[dest.Code][kind]
			sort.SliceStable(signals, func(i, j int) bool {
				return signalTime(signals[i]).After(signalTime(signals[j]))
			})
			if limit := sectionCaps[kind]; len(signals) > limit {
				signals = signals[:limit]
			}
			items := make([]string, 0, len(signals))
			for _, sig := range signals {
				items = append(items, report.Link(sig.Title, sig.URL))
			}
			doc.Sections = append(doc.Sections, report.Section{
				Heading: fmt.Sprintf("%s (%s) %s", dest.Name, dest.Code, kind),
				Body:    report.Bullets(items),
			})
		}
	}

	path := filepath.Join(d.Config.ReportsDir, "daily_"+d.Config.Date+".md")
	if err := report.Write(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// signalTime orders digest entries: publication time when the feed
// carried one, insertion time otherwise.
func signalTime(sig store.Signal) time.Time {
	if sig.PublishedAt != nil {
		return *sig.PublishedAt
	}
	return sig.CreatedAt
}
