package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Official weather and safety agencies publish Common Alerting Protocol
// documents; some of the configured safety sources serve CAP instead of
// RSS, so the pipeline auto-detects it via ParseAny.

type capAlert struct {
	XMLName xml.Name  `xml:"alert"`
	Sent    string    `xml:"sent"`
	Infos   []capInfo `xml:"info"`
}

type capInfo struct {
	Event    string `xml:"event"`
	Headline string `xml:"headline"`
	Web      string `xml:"web"`
}

// ParseCAP converts a CAP alert document into one item per <info> block.
// The item title prefers headline over event; the alert-level <sent>
// timestamp applies to every item. Items may carry an empty URL here;
// the orchestrator substitutes the source URL before persisting.
func ParseCAP(data []byte) ([]Item, error) {
	var alert capAlert
	if err := xml.Unmarshal(data, &alert); err != nil {
		return nil, fmt.Errorf("failed to parse cap alert: %w", err)
	}

	sent := parseCAPTime(alert.Sent)

	items := make([]Item, 0, len(alert.Infos))
	for _, info := range alert.Infos {
		title := strings.TrimSpace(info.Headline)
		if title == "" {
			title = strings.TrimSpace(info.Event)
		}
		if title == "" {
			title = "CAP Alert"
		}
		items = append(items, Item{
			Title:     title,
			URL:       strings.TrimSpace(info.Web),
			Published: sent,
		})
	}
	return items, nil
}

func parseCAPTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
