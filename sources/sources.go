// Package sources loads the static configuration that drives a run:
// destination cities, per-kind source descriptors, per-city relevance
// keywords, and flight routes. No network or database access happens
// here.
package sources

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Signal kinds. These double as the source-descriptor groups and the
// keyword-file sections.
const (
	KindNews    = "news"
	KindWeather = "weather"
	KindSafety  = "safety"
)

// Source content types.
const (
	TypeRSS      = "rss"
	TypeAtom     = "atom"
	TypeOPML     = "opml"
	TypeFarePage = "html_fare_page"
	// TypeTodo marks placeholder entries kept in the config file but
	// skipped by every pipeline.
	TypeTodo = "todo"
)

// Destination is one configured city. Immutable reference data, loaded
// once per run; never persisted.
type Destination struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Country string   `yaml:"country"`
	Aliases []string `yaml:"aliases"`
}

// Matches reports whether token identifies this destination by code
// (case-insensitive), display name, or alias.
func (d Destination) Matches(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	if strings.EqualFold(token, d.Code) || token == d.Name {
		return true
	}
	for _, alias := range d.Aliases {
		if token == alias {
			return true
		}
	}
	return false
}

// Source describes one configured feed or page. Country scopes the
// source to destinations in that country; empty means it applies to all.
type Source struct {
	ID      string   `yaml:"id"`
	Country string   `yaml:"country"`
	Type    string   `yaml:"type"`
	URL     string   `yaml:"url"`
	Tags    []string `yaml:"tags"`
}

// AppliesTo reports whether this source is in scope for dest.
func (s Source) AppliesTo(dest Destination) bool {
	return s.Country == "" || s.Country == dest.Country
}

// Bundle is the full sources configuration.
type Bundle struct {
	Destinations []Destination
	News         []Source
	Weather      []Source
	Safety       []Source
}

// ByKind returns the source list for a signal kind.
func (b *Bundle) ByKind(kind string) []Source {
	switch kind {
	case KindNews:
		return b.News
	case KindWeather:
		return b.Weather
	case KindSafety:
		return b.Safety
	}
	return nil
}

type sourcesFile struct {
	Destinations []Destination `yaml:"destinations"`
	Sources      struct {
		News    []Source `yaml:"news"`
		Weather []Source `yaml:"weather"`
		Safety  []Source `yaml:"safety"`
	} `yaml:"sources"`
}

// Load reads the sources file. A missing or unparseable file is a
// configuration error; individual entries missing an id or URL are
// dropped rather than aborting the load.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	bundle := &Bundle{
		News:    validSources(file.Sources.News),
		Weather: validSources(file.Sources.Weather),
		Safety:  validSources(file.Sources.Safety),
	}
	for _, dest := range file.Destinations {
		dest.Code = strings.ToUpper(strings.TrimSpace(dest.Code))
		if dest.Code == "" {
			continue
		}
		bundle.Destinations = append(bundle.Destinations, dest)
	}
	return bundle, nil
}

func validSources(raw []Source) []Source {
	out := make([]Source, 0, len(raw))
	for _, s := range raw {
		if s.ID == "" || s.URL == "" {
			continue
		}
		if s.Type == "" {
			s.Type = TypeRSS
		}
		s.Type = strings.ToLower(s.Type)
		out = append(out, s)
	}
	return out
}

// FilterDestinations restricts destinations to an operator allow-list of
// comma-separated tokens, matched by code, display name, or alias.
// Unknown tokens are reported back so the caller can warn; an empty
// allow-list means no restriction.
func FilterDestinations(destinations []Destination, allowList string) (kept []Destination, unknown []string) {
	tokens := splitList(allowList)
	if len(tokens) == 0 {
		return destinations, nil
	}

	seen := make(map[string]struct{})
	for _, token := range tokens {
		matched := false
		for _, dest := range destinations {
			if !dest.Matches(token) {
				continue
			}
			matched = true
			if _, dup := seen[dest.Code]; !dup {
				seen[dest.Code] = struct{}{}
				kept = append(kept, dest)
			}
			break
		}
		if !matched {
			unknown = append(unknown, token)
		}
	}
	return kept, unknown
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
