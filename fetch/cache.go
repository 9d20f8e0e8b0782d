package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// cacheEntry holds the conditional-request validators for one URL.
type cacheEntry struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	FetchedAt    int64  `json:"fetched_at"`
}

// cache stores two sibling files per URL under dir: <key>.meta.json with
// the validators and <key>.body.bin with the response body. Entries are
// an optimization only; a missing or corrupt entry just causes a refetch.
type cache struct {
	dir string
}

func newCache(dir string) (*cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &cache{dir: dir}, nil
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *cache) metaPath(url string) string {
	return filepath.Join(c.dir, cacheKey(url)+".meta.json")
}

func (c *cache) bodyPath(url string) string {
	return filepath.Join(c.dir, cacheKey(url)+".body.bin")
}

// load returns the stored validators for url, or a zero entry when none
// exist or the metadata is unreadable.
func (c *cache) load(url string) cacheEntry {
	data, err := os.ReadFile(c.metaPath(url))
	if err != nil {
		return cacheEntry{}
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return cacheEntry{}
	}
	// Validators without a readable body would turn a 304 answer into a
	// dead end; treat the orphaned pair as a miss so the next request is
	// unconditional.
	if _, err := os.Stat(c.bodyPath(url)); err != nil {
		return cacheEntry{}
	}
	return entry
}

// body returns the cached response body for url.
func (c *cache) body(url string) ([]byte, error) {
	return os.ReadFile(c.bodyPath(url))
}

// save replaces the entry for url. Each file is a single whole-file
// write, so concurrent unrelated runs race harmlessly (last writer wins).
func (c *cache) save(url string, entry cacheEntry, body []byte) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache metadata: %w", err)
	}
	if err := os.WriteFile(c.metaPath(url), data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(c.bodyPath(url), body, 0o644)
}
