package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, rps float64, maxAttempts int) *Client {
	t.Helper()
	client, err := NewClient(Options{
		CacheDir:          filepath.Join(t.TempDir(), "http"),
		RequestsPerSecond: rps,
		Timeout:           5 * time.Second,
		MaxAttempts:       maxAttempts,
	})
	require.NoError(t, err)
	return client
}

// TestGet_CachesBodyAndValidators verifies a 2xx response writes both
// cache artifacts.
func TestGet_CachesBodyAndValidators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Etag", `"v1"`)
		w.Write([]byte("<rss></rss>"))
	}))
	defer server.Close()

	client := newTestClient(t, 1000, 1)
	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.False(t, resp.FromCache)
	assert.Equal(t, []byte("<rss></rss>"), resp.Body)

	entries, err := os.ReadDir(client.cache.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one meta file and one body file")
}

// TestGet_ConditionalReuse verifies a 304 answer returns the previously
// cached body with FromCache set.
func TestGet_ConditionalReuse(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Etag", `"v1"`)
		w.Write([]byte("original body"))
	}))
	defer server.Close()

	client := newTestClient(t, 1000, 1)

	first, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, http.StatusNotModified, second.Status)
	assert.Equal(t, first.Body, second.Body, "304 must reuse the cached body verbatim")
	assert.Equal(t, 2, requests)
}

// TestGet_RetriesThenFails verifies the attempt count in the terminal
// error and that every attempt actually reached the server.
func TestGet_RetriesThenFails(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, 1000, 2)

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), server.URL)
	assert.Equal(t, 2, requests)
}

// TestGet_RetryRecovers verifies a transient failure is retried into a
// success.
func TestGet_RetryRecovers(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := newTestClient(t, 1000, 3)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp.Body)
	assert.Equal(t, 2, requests)
}

// TestGet_RateGateSpacesRequests verifies successive calls are spaced by
// at least 1/rps.
func TestGet_RateGateSpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := newTestClient(t, 20, 1) // 50ms minimum interval

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond,
		"three calls at 20 rps need two 50ms gaps")
}

// TestGet_OrphanedValidatorsAreACacheMiss verifies a surviving meta file
// whose body file is gone does not wedge the URL: the next request goes
// out unconditionally and succeeds even against a 304-answering server.
func TestGet_OrphanedValidatorsAreACacheMiss(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Etag", `"v1"`)
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	client := newTestClient(t, 1000, 2)

	_, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)

	entries, err := os.ReadDir(client.cache.dir)
	require.NoError(t, err)
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".body.bin") {
			require.NoError(t, os.Remove(filepath.Join(client.cache.dir, entry.Name())))
		}
	}

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), resp.Body)
	assert.False(t, resp.FromCache)
	assert.Equal(t, 2, requests, "second fetch must be unconditional, not a retried 304")
}

// TestGet_MissingCacheOnlyRefetches verifies deleting the cache directory
// contents does not affect correctness.
func TestGet_MissingCacheOnlyRefetches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	client := newTestClient(t, 1000, 1)

	_, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)

	entries, err := os.ReadDir(client.cache.dir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NoError(t, os.Remove(filepath.Join(client.cache.dir, entry.Name())))
	}

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), resp.Body)
	assert.False(t, resp.FromCache)
}
