package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripwatch/sources"
)

func newFlights(t *testing.T, routes []sources.Route, cfg FlightsConfig) *Flights {
	t.Helper()
	if cfg.Date == "" {
		cfg.Date = "2026-08-20"
	}
	if cfg.Provider == "" {
		cfg.Provider = "tripcom"
	}
	if cfg.RawDir == "" {
		cfg.RawDir = filepath.Join(t.TempDir(), "raw")
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = filepath.Join(t.TempDir(), "reports")
	}
	return &Flights{
		Store:   newTestStore(t),
		Fetcher: newTestFetcher(t),
		Routes:  routes,
		Logger:  testLogger(),
		Config:  cfg,
	}
}

func farePage(currency string, amount float64) string {
	return fmt.Sprintf(`<html><script type="application/json">{"currency":%q,"price":%g}</script></html>`, currency, amount)
}

func TestFlights_PersistsPricedQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, farePage("TWD", 2300))
	}))
	defer server.Close()

	routes := []sources.Route{{ID: "tpe-bkk", Origin: "TPE", Destination: "BKK", URL: server.URL}}
	flights := newFlights(t, routes, FlightsConfig{})

	summary, err := flights.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.FileExists(t, summary.ReportPath)

	quotes, err := flights.Store.QuotesForDate("2026-08-20")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].ParseOK)
	assert.Equal(t, "TWD", *quotes[0].Currency)
	assert.Equal(t, 2300.0, *quotes[0].Value)
	require.NotNil(t, quotes[0].RawPath)
	assert.FileExists(t, *quotes[0].RawPath)
}

func TestFlights_RunOncePerDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, farePage("TWD", 2300))
	}))
	defer server.Close()

	routes := []sources.Route{{ID: "tpe-bkk", Origin: "TPE", Destination: "BKK", URL: server.URL}}
	flights := newFlights(t, routes, FlightsConfig{})

	_, err := flights.Run(context.Background())
	require.NoError(t, err)

	summary, err := flights.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Skipped)

	flights.Config.Force = true
	summary, err = flights.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Skipped)

	quotes, err := flights.Store.QuotesForDate("2026-08-20")
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
}

func TestFlights_FailedRouteStillGetsARow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	routes := []sources.Route{{ID: "tpe-sin", Origin: "TPE", Destination: "SIN", URL: server.URL}}
	flights := newFlights(t, routes, FlightsConfig{})

	summary, err := flights.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SourceErrors)

	quotes, err := flights.Store.QuotesForDate("2026-08-20")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.False(t, quotes[0].ParseOK)
	assert.Nil(t, quotes[0].Value)
	require.NotNil(t, quotes[0].Notes)
	assert.Contains(t, *quotes[0].Notes, "fetch_failed")

	data, err := os.ReadFile(filepath.Join(flights.Config.ReportsDir, "source_errors_2026-08-20.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "tpe-sin")
}

func TestFlights_BlockedPageRecordedWithoutPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>Please complete the CAPTCHA. Fares from $99.</body></html>`)
	}))
	defer server.Close()

	routes := []sources.Route{{ID: "tpe-bkk", Origin: "TPE", Destination: "BKK", URL: server.URL}}
	flights := newFlights(t, routes, FlightsConfig{})

	summary, err := flights.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SourceErrors)

	quotes, err := flights.Store.QuotesForDate("2026-08-20")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.False(t, quotes[0].ParseOK)
	assert.Nil(t, quotes[0].Value)
	assert.Contains(t, *quotes[0].Notes, "blocked:")
}

func TestFlights_MaxRoutesCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, farePage("SGD", 150))
	}))
	defer server.Close()

	routes := []sources.Route{
		{ID: "r1", Origin: "TPE", Destination: "BKK", URL: server.URL},
		{ID: "r2", Origin: "TPE", Destination: "SIN", URL: server.URL},
		{ID: "r3", Origin: "TPE", Destination: "KUL", URL: server.URL},
	}
	flights := newFlights(t, routes, FlightsConfig{MaxRoutes: 2})

	summary, err := flights.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted)
}
