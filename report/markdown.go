// Package report assembles markdown digests and operator alert files.
// Writing reports is plain string assembly onto the filesystem; the
// database stays the system of record.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Section is one heading with pre-rendered markdown body.
type Section struct {
	Heading string
	Body    string
}

// Document is a complete report.
type Document struct {
	Title    string
	Sections []Section
}

// Render returns the document as markdown text.
func (d *Document) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", d.Title)
	for _, section := range d.Sections {
		b.WriteString("\n## ")
		b.WriteString(section.Heading)
		b.WriteString("\n\n")
		body := strings.TrimRight(section.Body, "\n")
		if body == "" {
			body = "_No entries._"
		}
		b.WriteString(body)
		b.WriteString("\n")
	}
	return b.String()
}

// Write renders the document to path, creating parent directories.
func Write(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(doc.Render()), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Bullets renders items as a markdown list.
func Bullets(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return b.String()
}

// Link renders a markdown link, falling back to plain text when the
// item carries no URL.
func Link(title, url string) string {
	if url == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, url)
}

// Table renders a markdown table. Pipe characters inside cells are
// escaped so they cannot break the row structure.
func Table(header []string, rows [][]string) string {
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for _, cell := range cells {
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(cell, "|", "\\|"))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(header)
	b.WriteString("|")
	for range header {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}
