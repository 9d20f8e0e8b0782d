package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run kinds recorded in the runs table.
const (
	RunDaily   = "daily"
	RunFlights = "flights"
)

// Signal is one relevance-filtered item attributed to a city.
type Signal struct {
	RunDate     string
	CityCode    string
	CityName    string
	SourceID    string
	Title       string
	URL         string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// FlightQuote is one route outcome for a flights run. A quote row is
// written for every attempted route, including failures, so the day's
// coverage is visible from the table alone.
type FlightQuote struct {
	RunDate     string
	Provider    string
	Origin      string
	Destination string
	RouteID     string
	SourceURL   string
	StatusCode  *int
	ParseOK     bool
	Currency    *string
	Value       *float64
	RawPath     *string
	Notes       *string
	CreatedAt   time.Time
}

// CityCount is a per-city signal tally for one kind.
type CityCount struct {
	CityCode string
	Kind     string
	Count    int
}

var signalTables = map[string]string{
	"news":    "signals_news",
	"weather": "signals_weather",
	"safety":  "signals_safety",
}

func signalTable(kind string) (string, error) {
	table, ok := signalTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown signal kind %q", kind)
	}
	return table, nil
}

// HasRun reports whether a run of the given kind already completed for
// the date.
func (s *Store) HasRun(kind, date string) (bool, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM runs WHERE run_kind = ? AND run_date = ?`, kind, date,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query run marker: %w", err)
	}
	return true, nil
}

// RunRecordedAt returns when the marker for kind and date was recorded.
func (s *Store) RunRecordedAt(kind, date string) (time.Time, error) {
	var createdAt string
	err := s.db.QueryRow(
		`SELECT created_at FROM runs WHERE run_kind = ? AND run_date = ?`, kind, date,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("no %s run recorded for %s", kind, date)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query run marker: %w", err)
	}
	return parseTime(createdAt), nil
}

// RecordRun writes the completion marker for a run. Recording the same
// kind and date twice is a no-op.
func (s *Store) RecordRun(kind, date string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO runs (id, run_kind, run_date, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), kind, date, *formatTime(&now),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// DeleteDailyRun removes the daily run marker for a date together with
// that date's signal rows, in one transaction. Used by forced reruns so
// a repeated day never double-counts.
func (s *Store) DeleteDailyRun(date string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range signalTables {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_date = ?`, date); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(
		`DELETE FROM runs WHERE run_kind = ? AND run_date = ?`, RunDaily, date,
	); err != nil {
		return fmt.Errorf("failed to delete run marker: %w", err)
	}

	return tx.Commit()
}

// DeleteFlightsRun removes the flights run marker for a date together
// with that date's quotes for the provider.
func (s *Store) DeleteFlightsRun(date, provider string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM flights_quotes WHERE run_date = ? AND provider = ?`, date, provider,
	); err != nil {
		return fmt.Errorf("failed to purge quotes: %w", err)
	}
	if _, err := tx.Exec(
		`DELETE FROM runs WHERE run_kind = ? AND run_date = ?`, RunFlights, date,
	); err != nil {
		return fmt.Errorf("failed to delete run marker: %w", err)
	}

	return tx.Commit()
}

// InsertSignals appends a batch of signals of one kind in a single
// transaction. Callers invoke this once per source so each source's
// rows commit as a unit.
func (s *Store) InsertSignals(kind string, signals []Signal) error {
	if len(signals) == 0 {
		return nil
	}
	table, err := signalTable(kind)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO ` + table + ` (
			run_date, city_code, city_name, source_id, title, url,
			published_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sig := range signals {
		createdAt := sig.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := stmt.Exec(
			sig.RunDate, sig.CityCode, sig.CityName, sig.SourceID,
			sig.Title, sig.URL,
			formatTime(sig.PublishedAt), *formatTime(&createdAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert signal: %w", err)
		}
	}

	return tx.Commit()
}

// InsertFlightQuote writes one quote row, ignoring duplicates of the
// same (run_date, provider, origin, destination, route_id). Returns
// whether a row was actually inserted.
func (s *Store) InsertFlightQuote(q FlightQuote) (bool, error) {
	createdAt := q.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO flights_quotes (
			run_date, provider, origin, destination, route_id, source_url,
			status_code, parse_ok, min_price_currency, min_price_value,
			raw_path, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		q.RunDate, q.Provider, q.Origin, q.Destination, q.RouteID, q.SourceURL,
		q.StatusCode, q.ParseOK, q.Currency, q.Value,
		q.RawPath, q.Notes, *formatTime(&createdAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert quote: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// SignalsForDate returns one kind's signals for a date, ordered by city
// then insertion.
func (s *Store) SignalsForDate(kind, date string) ([]Signal, error) {
	table, err := signalTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT run_date, city_code, city_name, source_id, title, url,
		       published_at, created_at
		FROM `+table+`
		WHERE run_date = ?
		ORDER BY city_code, id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// SignalsBetween returns one kind's signals with run_date in
// [from, to], both inclusive. Read-only aggregation for period reports.
func (s *Store) SignalsBetween(kind, from, to string) ([]Signal, error) {
	table, err := signalTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT run_date, city_code, city_name, source_id, title, url,
		       published_at, created_at
		FROM `+table+`
		WHERE run_date >= ? AND run_date <= ?
		ORDER BY city_code, run_date, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

func scanSignals(rows *sql.Rows) ([]Signal, error) {
	var signals []Signal
	for rows.Next() {
		var sig Signal
		var publishedAt sql.NullString
		var createdAt string

		err := rows.Scan(
			&sig.RunDate, &sig.CityCode, &sig.CityName, &sig.SourceID,
			&sig.Title, &sig.URL, &publishedAt, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}

		if publishedAt.Valid {
			t := parseTime(publishedAt.String)
			sig.PublishedAt = &t
		}
		sig.CreatedAt = parseTime(createdAt)
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// CityCounts tallies signals per city and kind over a date range, both
// bounds inclusive.
func (s *Store) CityCounts(from, to string) ([]CityCount, error) {
	rows, err := s.db.Query(`
		SELECT city_code, 'news' AS kind, COUNT(*) FROM signals_news
			WHERE run_date >= ? AND run_date <= ? GROUP BY city_code
		UNION ALL
		SELECT city_code, 'weather', COUNT(*) FROM signals_weather
			WHERE run_date >= ? AND run_date <= ? GROUP BY city_code
		UNION ALL
		SELECT city_code, 'safety', COUNT(*) FROM signals_safety
			WHERE run_date >= ? AND run_date <= ? GROUP BY city_code
		ORDER BY city_code, kind
	`, from, to, from, to, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query city counts: %w", err)
	}
	defer rows.Close()

	var counts []CityCount
	for rows.Next() {
		var c CityCount
		if err := rows.Scan(&c.CityCode, &c.Kind, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan city count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// QuotesForDate returns all quote rows for a date ordered by route.
func (s *Store) QuotesForDate(date string) ([]FlightQuote, error) {
	rows, err := s.db.Query(`
		SELECT run_date, provider, origin, destination, route_id, source_url,
		       status_code, parse_ok, min_price_currency, min_price_value,
		       raw_path, notes, created_at
		FROM flights_quotes
		WHERE run_date = ?
		ORDER BY origin, destination, route_id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	return scanQuotes(rows)
}

// QuotesBetween returns quote rows with run_date in [from, to], both
// inclusive.
func (s *Store) QuotesBetween(from, to string) ([]FlightQuote, error) {
	rows, err := s.db.Query(`
		SELECT run_date, provider, origin, destination, route_id, source_url,
		       status_code, parse_ok, min_price_currency, min_price_value,
		       raw_path, notes, created_at
		FROM flights_quotes
		WHERE run_date >= ? AND run_date <= ?
		ORDER BY origin, destination, route_id, run_date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	return scanQuotes(rows)
}

func scanQuotes(rows *sql.Rows) ([]FlightQuote, error) {
	var quotes []FlightQuote
	for rows.Next() {
		var q FlightQuote
		var statusCode sql.NullInt64
		var currency, rawPath, notes sql.NullString
		var value sql.NullFloat64
		var createdAt string

		err := rows.Scan(
			&q.RunDate, &q.Provider, &q.Origin, &q.Destination, &q.RouteID,
			&q.SourceURL, &statusCode, &q.ParseOK, &currency, &value,
			&rawPath, &notes, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}

		if statusCode.Valid {
			n := int(statusCode.Int64)
			q.StatusCode = &n
		}
		if currency.Valid {
			q.Currency = &currency.String
		}
		if value.Valid {
			q.Value = &value.Float64
		}
		if rawPath.Valid {
			q.RawPath = &rawPath.String
		}
		if notes.Valid {
			q.Notes = &notes.String
		}
		q.CreatedAt = parseTime(createdAt)
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}
