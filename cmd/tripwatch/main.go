// Command tripwatch runs the travel-signal pipelines: the daily feed
// snapshot, the flights fare snapshot, and the biweekly aggregation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"tripwatch/config"
	"tripwatch/fetch"
	"tripwatch/pipeline"
	"tripwatch/report"
	"tripwatch/sources"
	"tripwatch/store"
)

var opts config.Options

// runBiweekly labels the aggregation in alert artifacts; it records no
// marker in the runs table.
const runBiweekly = "biweekly"

type dailyCommand struct{}
type flightsCommand struct{}
type biweeklyCommand struct{}

func main() {
	// A .env in the working directory seeds the environment before flag
	// parsing; absence is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("daily", "Daily signal snapshot",
		"Collect news, weather, and safety feeds for every destination and write the daily digest.",
		&dailyCommand{})
	parser.AddCommand("flights", "Flight fare snapshot",
		"Capture provider fare pages for configured routes and persist one quote per route.",
		&flightsCommand{})
	parser.AddCommand("biweekly", "Biweekly summary",
		"Aggregate the trailing two weeks of persisted signals and fares into a summary report.",
		&biweeklyCommand{})

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}
}

func (c *dailyCommand) Execute(args []string) error {
	logger := config.NewLogger(opts.Debug)
	date, err := opts.RunDate()
	if err != nil {
		return err
	}

	bundle, keywords, err := loadConfiguration(logger, date, store.RunDaily)
	if err != nil {
		return err
	}

	db, err := openStore(logger, date, store.RunDaily)
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := fetch.NewClient(fetch.Options{
		CacheDir:          filepath.Join(opts.DataDir, "cache"),
		RequestsPerSecond: opts.RequestsPerSecond,
		Timeout:           opts.Timeout(),
		MaxAttempts:       opts.MaxAttempts,
		UserAgent:         opts.UserAgent,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	daily := &pipeline.Daily{
		Store:    db,
		Fetcher:  client,
		Bundle:   bundle,
		Keywords: keywords,
		Logger:   logger,
		Config: pipeline.DailyConfig{
			Date:         date,
			RawDir:       filepath.Join(opts.DataDir, "raw"),
			ReportsDir:   opts.ReportsDir,
			MaxPerSource: opts.MaxPerSource,
			Strict:       opts.StrictCityMatch(),
			Force:        opts.Force,
		},
	}

	summary, err := daily.Run(context.Background())
	if err != nil {
		logger.Error("daily run aborted", "error", err)
		return err
	}
	if !summary.Skipped {
		fmt.Println(summary.ReportPath)
	}
	return nil
}

func (c *flightsCommand) Execute(args []string) error {
	logger := config.NewLogger(opts.Debug)
	date, err := opts.RunDate()
	if err != nil {
		return err
	}

	routes, err := sources.LoadRoutes(opts.RoutesPath)
	if err != nil {
		return fatalConfig(logger, date, store.RunFlights, err)
	}

	db, err := openStore(logger, date, store.RunFlights)
	if err != nil {
		return err
	}
	defer db.Close()

	var fetcher fetch.PageFetcher
	if opts.RenderFarePages {
		fetcher = fetch.NewRenderer(fetch.RenderOptions{
			Timeout: opts.Timeout(),
			Logger:  logger,
		})
	} else {
		client, err := fetch.NewClient(fetch.Options{
			CacheDir:          filepath.Join(opts.DataDir, "cache"),
			RequestsPerSecond: opts.RequestsPerSecond,
			Timeout:           opts.Timeout(),
			MaxAttempts:       opts.MaxAttempts,
			UserAgent:         opts.UserAgent,
			Logger:            logger,
		})
		if err != nil {
			return err
		}
		fetcher = client
	}

	flights := &pipeline.Flights{
		Store:   db,
		Fetcher: fetcher,
		Routes:  routes,
		Logger:  logger,
		Config: pipeline.FlightsConfig{
			Date:       date,
			Provider:   opts.Provider,
			RawDir:     filepath.Join(opts.DataDir, "raw"),
			ReportsDir: opts.ReportsDir,
			MaxRoutes:  opts.MaxRoutes,
			Force:      opts.Force,
		},
	}

	summary, err := flights.Run(context.Background())
	if err != nil {
		logger.Error("flights run aborted", "error", err)
		return err
	}
	if !summary.Skipped {
		fmt.Println(summary.ReportPath)
	}
	return nil
}

func (c *biweeklyCommand) Execute(args []string) error {
	logger := config.NewLogger(opts.Debug)
	date, err := opts.RunDate()
	if err != nil {
		return err
	}

	bundle, err := loadDestinations()
	if err != nil {
		return fatalConfig(logger, date, runBiweekly, err)
	}

	db, err := openStore(logger, date, runBiweekly)
	if err != nil {
		return err
	}
	defer db.Close()

	biweekly := &pipeline.Biweekly{
		Store:  db,
		Bundle: bundle,
		Logger: logger,
		Config: pipeline.BiweeklyConfig{
			EndDate:    date,
			ReportsDir: opts.ReportsDir,
		},
	}

	summary, err := biweekly.Run()
	if err != nil {
		logger.Error("biweekly run failed", "error", err)
		if _, aerr := report.WriteHumanAlert(opts.ReportsDir, date, runBiweekly, err.Error()); aerr != nil {
			logger.Error("alert write failed", "error", aerr)
		}
		return err
	}
	fmt.Println(summary.ReportPath)
	return nil
}

// loadConfiguration reads sources and keywords, applies the city
// allow-list, and escalates configuration problems to a human alert
// since a scheduled run cannot fix its own config.
func loadConfiguration(logger *slog.Logger, date, runKind string) (*sources.Bundle, sources.Keywords, error) {
	bundle, err := sources.Load(opts.SourcesPath)
	if err != nil {
		return nil, nil, fatalConfig(logger, date, runKind, err)
	}
	keywords, err := sources.LoadKeywords(opts.KeywordsPath)
	if err != nil {
		return nil, nil, fatalConfig(logger, date, runKind, err)
	}

	kept, unknown := sources.FilterDestinations(bundle.Destinations, opts.LimitCities)
	for _, token := range unknown {
		logger.Warn("unknown destination in allow-list", "token", token)
	}
	bundle.Destinations = kept
	if len(bundle.Destinations) == 0 {
		return nil, nil, fatalConfig(logger, date, runKind,
			fmt.Errorf("no destinations selected"))
	}

	return bundle, keywords, nil
}

func loadDestinations() (*sources.Bundle, error) {
	bundle, err := sources.Load(opts.SourcesPath)
	if err != nil {
		return nil, err
	}
	kept, _ := sources.FilterDestinations(bundle.Destinations, opts.LimitCities)
	bundle.Destinations = kept
	return bundle, nil
}

func openStore(logger *slog.Logger, date, runKind string) (*store.Store, error) {
	db, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, fatalConfig(logger, date, runKind, err)
	}
	return db, nil
}

// fatalConfig writes the operator alert for failures that happen before
// a pipeline can take over alerting itself.
func fatalConfig(logger *slog.Logger, date, runKind string, err error) error {
	logger.Error("startup failed", "error", err)
	if _, aerr := report.WriteHumanAlert(opts.ReportsDir, date, runKind, err.Error()); aerr != nil {
		logger.Error("alert write failed", "error", aerr)
	}
	return err
}
