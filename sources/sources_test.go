package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ParsesBundle(t *testing.T) {
	path := writeFile(t, "sources.yaml", `
destinations:
  - code: tpe
    name: Taipei
    country: TW
    aliases: ["台北"]
  - code: BKK
    name: Bangkok
    country: TH
sources:
  news:
    - id: tw-cna
      country: TW
      type: rss
      url: https://example.test/cna.rss
    - id: broken-no-url
      type: rss
  weather:
    - id: global-weather
      url: https://example.test/weather.opml
      type: OPML
  safety:
    - id: cap-alerts
      country: TH
      url: https://example.test/alerts.xml
`)

	bundle, err := Load(path)
	require.NoError(t, err)

	require.Len(t, bundle.Destinations, 2)
	assert.Equal(t, "TPE", bundle.Destinations[0].Code)
	assert.Equal(t, "Taipei", bundle.Destinations[0].Name)

	require.Len(t, bundle.News, 1)
	assert.Equal(t, "tw-cna", bundle.News[0].ID)

	require.Len(t, bundle.Weather, 1)
	assert.Equal(t, TypeOPML, bundle.Weather[0].Type)

	require.Len(t, bundle.Safety, 1)
	assert.Equal(t, TypeRSS, bundle.Safety[0].Type)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSourceAppliesTo(t *testing.T) {
	tpe := Destination{Code: "TPE", Country: "TW"}
	bkk := Destination{Code: "BKK", Country: "TH"}

	scoped := Source{ID: "tw-only", Country: "TW"}
	global := Source{ID: "everywhere"}

	assert.True(t, scoped.AppliesTo(tpe))
	assert.False(t, scoped.AppliesTo(bkk))
	assert.True(t, global.AppliesTo(tpe))
	assert.True(t, global.AppliesTo(bkk))
}

func TestDestinationMatches(t *testing.T) {
	dest := Destination{Code: "TPE", Name: "Taipei", Aliases: []string{"台北"}}

	assert.True(t, dest.Matches("tpe"))
	assert.True(t, dest.Matches("Taipei"))
	assert.True(t, dest.Matches("台北"))
	assert.False(t, dest.Matches("taipei")) // names match exactly
	assert.False(t, dest.Matches(""))
}

func TestFilterDestinations(t *testing.T) {
	dests := []Destination{
		{Code: "TPE", Name: "Taipei"},
		{Code: "BKK", Name: "Bangkok"},
		{Code: "SIN", Name: "Singapore"},
	}

	kept, unknown := FilterDestinations(dests, "bkk, Singapore, XXX, bkk")
	require.Len(t, kept, 2)
	assert.Equal(t, "BKK", kept[0].Code)
	assert.Equal(t, "SIN", kept[1].Code)
	assert.Equal(t, []string{"XXX"}, unknown)
}

func TestFilterDestinations_EmptyAllowList(t *testing.T) {
	dests := []Destination{{Code: "TPE"}}
	kept, unknown := FilterDestinations(dests, "  ")
	assert.Equal(t, dests, kept)
	assert.Empty(t, unknown)
}

func TestBundleByKind(t *testing.T) {
	bundle := &Bundle{News: []Source{{ID: "n"}}, Weather: []Source{{ID: "w"}}}
	assert.Equal(t, "n", bundle.ByKind(KindNews)[0].ID)
	assert.Equal(t, "w", bundle.ByKind(KindWeather)[0].ID)
	assert.Nil(t, bundle.ByKind("bogus"))
}
