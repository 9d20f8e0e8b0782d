// Package config holds the shared run options. Values come from flags
// with environment-variable fallbacks; a .env file in the working
// directory is loaded before parsing.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Options are the knobs shared by every pipeline. Parsed once at
// startup by the go-flags parser in the command entrypoint.
type Options struct {
	SourcesPath  string `long:"sources" env:"TRIPWATCH_SOURCES" default:"data/sources.yaml" description:"Sources configuration file"`
	KeywordsPath string `long:"keywords" env:"TRIPWATCH_KEYWORDS" default:"data/city_keywords.yaml" description:"Per-city relevance keywords file"`
	RoutesPath   string `long:"routes" env:"TRIPWATCH_ROUTES" default:"data/flight_routes.json" description:"Flight routes file"`
	DataDir      string `long:"data-dir" env:"TRIPWATCH_DATA_DIR" default:"data" description:"Root directory for raw captures and cache"`
	ReportsDir   string `long:"reports-dir" env:"TRIPWATCH_REPORTS_DIR" default:"reports" description:"Directory for markdown reports and alerts"`
	DBPath       string `long:"db" env:"TRIPWATCH_DB" default:"data/db/tripwatch.sqlite" description:"SQLite database path"`

	RequestsPerSecond float64 `long:"rps" env:"TRIPWATCH_RPS" default:"0.2" description:"Global request rate limit"`
	TimeoutSeconds    int     `long:"timeout" env:"TRIPWATCH_TIMEOUT" default:"25" description:"Per-request timeout in seconds"`
	MaxAttempts       int     `long:"max-attempts" env:"TRIPWATCH_MAX_ATTEMPTS" default:"3" description:"Fetch attempts per URL"`
	UserAgent         string  `long:"user-agent" env:"TRIPWATCH_USER_AGENT" default:"tripwatch/0.1" description:"User agent for plain HTTP fetches"`

	MaxPerSource int    `long:"max-per-source" env:"TRIPWATCH_MAX_PER_SOURCE" default:"20" description:"Items examined per source per city"`
	LimitCities  string `long:"cities" env:"TRIPWATCH_LIMIT_CITIES" description:"Comma-separated destination allow-list (code, name, or alias)"`
	CityMatch    string `long:"city-match" env:"TRIPWATCH_CITY_MATCH" default:"strict" choice:"strict" choice:"permissive" description:"Keyword policy for cities with no configured keywords"`

	Provider        string `long:"provider" env:"TRIPWATCH_PROVIDER" default:"tripcom" description:"Fare page provider label"`
	MaxRoutes       int    `long:"max-routes" env:"TRIPWATCH_MAX_ROUTES" default:"0" description:"Route cap for a flights run (0 = all)"`
	RenderFarePages bool   `long:"render" env:"TRIPWATCH_RENDER" description:"Render fare pages in a headless browser instead of plain GET"`

	Force bool   `long:"force" description:"Rerun even when the day's run marker exists (purges that day's rows first)"`
	Date  string `long:"date" description:"Run date override, YYYY-MM-DD (defaults to today)"`
	Debug bool   `long:"debug" env:"TRIPWATCH_DEBUG" description:"Enable debug logging"`
}

// RunDate returns the effective run date, validating an override.
func (o *Options) RunDate() (string, error) {
	if o.Date == "" {
		return time.Now().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", o.Date); err != nil {
		return "", fmt.Errorf("invalid --date %q: %w", o.Date, err)
	}
	return o.Date, nil
}

// Timeout returns the per-request timeout as a duration.
func (o *Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// StrictCityMatch reports whether the fail-closed keyword policy is in
// effect.
func (o *Options) StrictCityMatch() bool {
	return o.CityMatch != "permissive"
}

// NewLogger builds the process logger. Text handler on stderr, debug
// level when requested.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
