package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Route is one origin/destination pair with a provider fare-page URL.
type Route struct {
	ID          string
	Origin      string
	Destination string
	URL         string
}

type rawRoute struct {
	RouteID     string `json:"route_id"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	URL         string `json:"url"`
}

// LoadRoutes reads the flights routes file: JSON, either a bare list or
// wrapped in a "routes" key. Entries missing an identifier, endpoint
// codes, or a URL are dropped. A missing or unparseable file is a
// configuration error.
func LoadRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	var raw []rawRoute
	var wrapped struct {
		Routes []rawRoute `json:"routes"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Routes != nil {
		raw = wrapped.Routes
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}

	routes := make([]Route, 0, len(raw))
	for _, r := range raw {
		id := firstNonEmpty(r.RouteID, r.ID, r.Name)
		origin := strings.ToUpper(strings.TrimSpace(r.Origin))
		dest := strings.ToUpper(strings.TrimSpace(r.Destination))
		url := strings.TrimSpace(r.URL)
		if id == "" || origin == "" || dest == "" || url == "" {
			continue
		}
		routes = append(routes, Route{ID: id, Origin: origin, Destination: dest, URL: url})
	}
	return routes, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
