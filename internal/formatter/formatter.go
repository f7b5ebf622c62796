// package formatter renders story listings as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/storydesk/internal/shared"
	"github.com/desertthunder/storydesk/internal/stories"
)

// Formats accepted by [Write].
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// ParseFormat validates an export format name. An empty name selects JSON.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV, FormatMarkdown, FormatText:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// Extension returns the file extension for format.
func Extension(format string) string {
	switch format {
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatText:
		return ".txt"
	default:
		return ".json"
	}
}

// ExportToCSV converts books to CSV with columns: ID, Slug, Title, Tags, Chapters, Rating, Read Time, Summary
func ExportToCSV(books []stories.Book) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Slug", "Title", "Tags", "Chapters", "Rating", "Read Time", "Summary"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, b := range books {
		record := []string{
			b.ID,
			b.Slug,
			b.Title,
			strings.Join(b.Tags, "; "),
			strconv.Itoa(b.ContentCount),
			b.Rating(),
			b.ReadTimeLabel(),
			b.Summary,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders books as a Markdown document headed by the author's name
func ExportToMarkdown(author string, books []stories.Book) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Stories by %s\n\n", author)
	fmt.Fprintf(&buf, "**Stories**: %d\n\n", len(books))

	for _, b := range books {
		fmt.Fprintf(&buf, "## %s\n\n", b.Title)
		if b.Image != "" {
			fmt.Fprintf(&buf, "![Cover](%s)\n\n", b.Image)
		}
		if len(b.Tags) > 0 {
			fmt.Fprintf(&buf, "**Tags**: %s\n", strings.Join(b.Tags, ", "))
		}
		fmt.Fprintf(&buf, "**Rating**: %s | **%s** | **Chapters**: %d\n\n", b.Rating(), b.ReadTimeLabel(), b.ContentCount)
		if b.Summary != "" {
			fmt.Fprintf(&buf, "%s\n\n", b.ShortSummary())
		}
		for i, title := range b.ContentTitles {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, title)
		}
		if len(b.ContentTitles) > 0 {
			buf.WriteString("\n")
		}
	}

	return buf.Bytes(), nil
}

// ExportToText renders books as plain text
func ExportToText(author string, books []stories.Book) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Author: %s\n", author)
	fmt.Fprintf(&buf, "Stories: %d\n\n", len(books))

	for i, b := range books {
		fmt.Fprintf(&buf, "%d. %s (%s, %s)\n", i+1, b.Title, b.ReadTimeLabel(), b.Rating())
	}

	return buf.Bytes(), nil
}

// ExportToJSON renders books as indented JSON
func ExportToJSON(books []stories.Book) ([]byte, error) {
	data, err := json.MarshalIndent(books, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Render converts books to format.
func Render(format, author string, books []stories.Book) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(books)
	case FormatMarkdown:
		return ExportToMarkdown(author, books)
	case FormatText:
		return ExportToText(author, books)
	default:
		return ExportToJSON(books)
	}
}

// Write renders books to path, creating parent directories as needed.
func Write(format, author string, books []stories.Book, path string) (string, error) {
	data, err := Render(format, author, books)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s export: %w", format, err)
	}
	return path, nil
}
