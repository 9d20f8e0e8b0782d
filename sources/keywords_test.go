package sources

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeywords_MissingFileIsEmpty(t *testing.T) {
	kw, err := LoadKeywords(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, kw)
}

func TestLoadKeywords_Malformed(t *testing.T) {
	path := writeFile(t, "kw.yaml", "::: not yaml :::\n\t")
	_, err := LoadKeywords(path)
	assert.Error(t, err)
}

func TestKeywordsMatch_Substring(t *testing.T) {
	path := writeFile(t, "kw.yaml", `
TPE:
  news: ["Taipei", "台北"]
`)
	kw, err := LoadKeywords(path)
	require.NoError(t, err)

	assert.True(t, kw.Match("TPE", KindNews, "Storm hits Taipei metro", "", true))
	assert.True(t, kw.Match("tpe", KindNews, "", "https://example.test/台北/rain", true))
	assert.False(t, kw.Match("TPE", KindNews, "Storm hits taipei metro", "", true)) // case-sensitive
	assert.False(t, kw.Match("TPE", KindNews, "Unrelated headline", "", true))
}

// With no keywords configured, strict mode drops everything for that city
// and kind while permissive mode keeps everything.
func TestKeywordsMatch_EmptyListPolicy(t *testing.T) {
	kw := Keywords{}

	assert.False(t, kw.Match("BKK", KindNews, "Anything", "", true))
	assert.True(t, kw.Match("BKK", KindNews, "Anything", "", false))
}

func TestKeywordsFor(t *testing.T) {
	kw := Keywords{"TPE": {"news": {"Taipei"}}}
	assert.Equal(t, []string{"Taipei"}, kw.For("tpe", KindNews))
	assert.Nil(t, kw.For("TPE", KindWeather))
	assert.Nil(t, kw.For("BKK", KindNews))
}
