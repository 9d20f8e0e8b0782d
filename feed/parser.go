// Package feed converts raw fetched bytes into normalized feed items.
// All parsers here are pure: no network, no storage.
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Item is one normalized entry from a feed. Published is nil when no
// date field parsed; items are never stored as-is, the orchestrator
// projects them into signal rows.
type Item struct {
	Title     string
	URL       string
	Published *time.Time
}

// Parse parses RSS 2.0 or Atom bytes. The gofeed library detects the
// format, normalizes title/link, and parses pubDate (RFC 822 style) and
// published/updated (ISO 8601) into PublishedParsed/UpdatedParsed;
// unparsable dates come back nil rather than failing the item. Items
// missing a non-empty title or link are dropped silently.
func Parse(data []byte) ([]Item, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		title := strings.TrimSpace(entry.Title)
		link := strings.TrimSpace(entry.Link)
		if title == "" || link == "" {
			continue
		}

		var published *time.Time
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed
		}

		items = append(items, Item{Title: title, URL: link, Published: published})
	}
	return items, nil
}

// ParseAny dispatches on the document's root element: CAP alerts go to
// ParseCAP, everything else is treated as RSS/Atom.
func ParseAny(data []byte) ([]Item, error) {
	if rootName(data) == "alert" {
		return ParseCAP(data)
	}
	return Parse(data)
}

// rootName returns the lowercased local name of the first start element,
// or "" when the bytes are not XML at all.
func rootName(data []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err != nil {
			return ""
		}
		if start, ok := token.(xml.StartElement); ok {
			return strings.ToLower(start.Name.Local)
		}
	}
}
