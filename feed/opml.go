package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ParseOPML extracts every outline node's feed URL from an OPML
// feed-list, deduplicated in first-seen order. The result is a flat list
// of child feed URLs; callers fetch and parse each one as a feed.
//
// The attribute is matched case-insensitively (xmlUrl / xmlurl both occur
// in the wild), which is why this walks tokens instead of unmarshalling
// into a struct.
func ParseOPML(data []byte) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	seen := make(map[string]struct{})
	var urls []string

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse opml: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok || !strings.EqualFold(start.Name.Local, "outline") {
			continue
		}
		for _, attr := range start.Attr {
			if !strings.EqualFold(attr.Name.Local, "xmlurl") {
				continue
			}
			url := strings.TrimSpace(attr.Value)
			if url == "" {
				continue
			}
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}
			urls = append(urls, url)
		}
	}

	return urls, nil
}
