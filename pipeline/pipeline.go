// Package pipeline contains the run orchestrators: the daily signal
// snapshot, the flights fare snapshot, and the biweekly read-only
// aggregation. Each orchestrator isolates per-source failures, records
// a run marker on success, and treats persistence failures as fatal.
package pipeline

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Summary is what a run reports back to the caller.
type Summary struct {
	Date         string
	Skipped      bool
	Inserted     int
	SourceErrors int
	ReportPath   string
}

// childSourceID derives the stable identifier for a feed discovered
// inside an OPML source: the parent id plus a short hash of the child
// URL, so reruns attribute the same feed the same way.
func childSourceID(parentID, url string) string {
	sum := md5.Sum([]byte(url))
	return parentID + "__" + hex.EncodeToString(sum[:])[:8]
}

// writeRaw captures response bytes under the raw tree, creating parent
// directories. Capture failures are reported but never abort a run.
func writeRaw(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create raw capture directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write raw capture: %w", err)
	}
	return nil
}
