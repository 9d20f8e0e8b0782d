package sources

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keywords maps destination code -> signal kind -> keyword strings used
// for relevance filtering. Matching is case-sensitive substring, which
// keeps CJK place names exact.
type Keywords map[string]map[string][]string

// LoadKeywords reads the optional per-city keyword file. A missing file
// yields an empty map; a malformed one is a configuration error.
func LoadKeywords(path string) (Keywords, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Keywords{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}

	var kw Keywords
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return nil, fmt.Errorf("failed to parse keywords file: %w", err)
	}
	if kw == nil {
		kw = Keywords{}
	}
	return kw, nil
}

// For returns the keyword list for a city and kind, nil when none are
// configured.
func (k Keywords) For(cityCode, kind string) []string {
	return k[strings.ToUpper(cityCode)][kind]
}

// Match reports whether an item belongs to the city under the given
// policy. With keywords configured, the title or URL must contain at
// least one of them. With none configured, strict mode fails closed
// (drop everything for that city and kind) while permissive mode keeps
// everything.
func (k Keywords) Match(cityCode, kind, title, url string, strict bool) bool {
	keywords := k.For(cityCode, kind)
	if len(keywords) == 0 {
		return !strict
	}
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(title, keyword) || strings.Contains(url, keyword) {
			return true
		}
	}
	return false
}
