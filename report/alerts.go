package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteHumanAlert writes NEEDS_HUMAN_<date>.md, the marker an operator
// looks for after an aborted run. Overwrites any earlier alert for the
// same date so the file always describes the latest failure.
func WriteHumanAlert(dir, date, runKind, reason string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("NEEDS_HUMAN_%s.md", date))
	var b strings.Builder
	fmt.Fprintf(&b, "# Needs human attention (%s)\n\n", date)
	fmt.Fprintf(&b, "- Run: %s\n", runKind)
	fmt.Fprintf(&b, "- Written: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "\n%s\n", reason)
	b.WriteString("\nFix the cause above, then rerun with --force if the run was partially recorded.\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write alert: %w", err)
	}
	return path, nil
}

// AppendSourceError appends one line to source_errors_<date>.md so
// partial-failure detail survives across sources within a run.
func AppendSourceError(dir, date, sourceID, detail string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("source_errors_%s.md", date))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open source error log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("- `%s` %s: %s\n",
		time.Now().UTC().Format(time.RFC3339), sourceID, detail)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append source error: %w", err)
	}
	return nil
}
