package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParse_MinimalRSS verifies the round trip for a minimal well-formed
// RSS document.
func TestParse_MinimalRSS(t *testing.T) {
	doc := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Feed</title>
    <item>
      <title>Example</title>
      <link>https://example.test/a</link>
    </item>
  </channel>
</rss>`

	items, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Example", items[0].Title)
	assert.Equal(t, "https://example.test/a", items[0].URL)
	assert.Nil(t, items[0].Published)
}

// TestParse_RSSPubDate verifies RFC 822 style pubDate parsing.
func TestParse_RSSPubDate(t *testing.T) {
	doc := `<rss version="2.0"><channel><title>F</title>
<item><title>A</title><link>https://example.test/a</link>
<pubDate>Mon, 02 Jan 2006 15:04:05 +0800</pubDate></item>
</channel></rss>`

	items, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Published)
	assert.Equal(t, 2006, items[0].Published.Year())
}

// TestParse_Atom verifies namespace-aware Atom entries with href links
// and the published/updated fallback.
func TestParse_Atom(t *testing.T) {
	doc := `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Feed</title>
  <entry>
    <title>Entry One</title>
    <link href="https://example.test/one"/>
    <updated>2024-03-01T10:00:00+08:00</updated>
  </entry>
</feed>`

	items, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Entry One", items[0].Title)
	assert.Equal(t, "https://example.test/one", items[0].URL)
	require.NotNil(t, items[0].Published)
	assert.Equal(t, time.March, items[0].Published.Month())
}

// TestParse_DropsItemsMissingTitleOrLink verifies the silent drop rule.
func TestParse_DropsItemsMissingTitleOrLink(t *testing.T) {
	doc := `<rss version="2.0"><channel><title>F</title>
<item><title>Has Title Only</title></item>
<item><link>https://example.test/no-title</link></item>
<item><title>Kept</title><link>https://example.test/kept</link></item>
</channel></rss>`

	items, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Kept", items[0].Title)
}

// TestParse_UnparsableDateYieldsNil verifies a garbage date does not fail
// the item.
func TestParse_UnparsableDateYieldsNil(t *testing.T) {
	doc := `<rss version="2.0"><channel><title>F</title>
<item><title>A</title><link>https://example.test/a</link>
<pubDate>not a date</pubDate></item>
</channel></rss>`

	items, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Published)
}

// TestParse_MalformedXML verifies malformed input is an error, which the
// orchestrator records as zero items for the source.
func TestParse_MalformedXML(t *testing.T) {
	_, err := Parse([]byte("this is not xml"))
	assert.Error(t, err)
}

// TestParseAny_DispatchesCAP verifies root-element dispatch.
func TestParseAny_DispatchesCAP(t *testing.T) {
	doc := `<?xml version="1.0"?>
<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
  <sent>2024-05-01T08:00:00+08:00</sent>
  <info>
    <event>Heavy Rain</event>
    <headline>Taipei rainfall alert</headline>
    <web>https://alerts.example.test/rain</web>
  </info>
</alert>`

	items, err := ParseAny([]byte(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Taipei rainfall alert", items[0].Title)
	assert.Equal(t, "https://alerts.example.test/rain", items[0].URL)
	require.NotNil(t, items[0].Published)
	assert.Equal(t, time.May, items[0].Published.Month())
}
