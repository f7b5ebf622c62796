package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/storydesk/internal/shared"
	"github.com/desertthunder/storydesk/internal/stories"
	th "github.com/desertthunder/storydesk/internal/testing"
)

type mockFetcher struct {
	mu      sync.Mutex
	pages   int
	perPage int
	fail    map[int]error
	calls   []int
}

func (m *mockFetcher) FetchPage(ctx context.Context, author string, page int) (stories.Page, error) {
	m.mu.Lock()
	m.calls = append(m.calls, page)
	m.mu.Unlock()

	if err, ok := m.fail[page]; ok {
		return stories.Page{}, err
	}
	books := make([]stories.Book, m.perPage)
	for i := range books {
		books[i] = stories.Book{Slug: fmt.Sprintf("p%d-b%d", page, i), Title: fmt.Sprintf("Book %d.%d", page, i)}
	}
	return stories.Page{Books: books, Pages: m.pages, Page: page}, nil
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("All Pages In Order", func(t *testing.T) {
		dir := t.TempDir()
		fetcher := &mockFetcher{pages: 5, perPage: 2}
		progress := make(chan ProgressUpdate, 100)

		result, err := NewExporter(fetcher).Export(ctx, progress, "ada", ExportOpts{
			Format: "json", OutputDir: dir, NumWorkers: 3, RateLimit: 1000,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.TotalPages != 5 || result.TotalStories != 10 || result.FailedPages != 0 {
			t.Errorf("unexpected result %+v", result)
		}
		if len(fetcher.calls) != 5 {
			t.Errorf("expected 5 page fetches, got %v", fetcher.calls)
		}

		th.AssertFileExists(t, result.OutputFile)
		var books []stories.Book
		if err := json.Unmarshal([]byte(th.MustReadFile(t, result.OutputFile)), &books); err != nil {
			t.Fatalf("invalid export: %v", err)
		}
		for i, b := range books {
			want := fmt.Sprintf("p%d-b%d", i/2+1, i%2)
			if b.Slug != want {
				t.Errorf("book %d: expected %s, got %s", i, want, b.Slug)
			}
		}

		close(progress)
		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) == 0 || phases[0] != FetchFirstPage || phases[len(phases)-1] != WriteExport {
			t.Errorf("unexpected progress phases %v", phases)
		}
	})

	t.Run("Failed Pages Are Recorded", func(t *testing.T) {
		dir := t.TempDir()
		fetcher := &mockFetcher{pages: 3, perPage: 1, fail: map[int]error{2: shared.ErrAPIRequest}}

		result, err := NewExporter(fetcher).Export(ctx, nil, "ada", ExportOpts{Format: "csv", OutputDir: dir, RateLimit: 1000})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.FailedPages != 1 || result.TotalStories != 2 {
			t.Errorf("unexpected result %+v", result)
		}
		if !errors.Is(result.Err(), shared.ErrAPIRequest) {
			t.Errorf("expected page error, got %v", result.Err())
		}
		if !strings.HasSuffix(result.OutputFile, "ada_stories.csv") {
			t.Errorf("unexpected output file %s", result.OutputFile)
		}

		manifest := th.MustReadFile(t, filepath.Join(dir, "export_manifest.json"))
		if !strings.Contains(manifest, `"failed_pages": 1`) || !strings.Contains(manifest, shared.ErrAPIRequest.Error()) {
			t.Errorf("manifest missing failure: %s", manifest)
		}
	})

	t.Run("First Page Failure Aborts", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		fetcher := &mockFetcher{pages: 3, fail: map[int]error{1: shared.ErrServiceUnavailable}}

		if _, err := NewExporter(fetcher).Export(ctx, nil, "ada", ExportOpts{OutputDir: dir}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Error("no output directory expected")
		}
	})

	t.Run("Single Empty Page", func(t *testing.T) {
		dir := t.TempDir()
		result, err := NewExporter(&mockFetcher{}).Export(ctx, nil, "a/b", ExportOpts{Format: "txt", OutputDir: dir})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TotalPages != 1 || result.TotalStories != 0 {
			t.Errorf("unexpected result %+v", result)
		}
		if filepath.Base(result.OutputFile) != "a_b_stories.txt" {
			t.Errorf("unexpected output file %s", result.OutputFile)
		}
	})

	t.Run("Invalid Format", func(t *testing.T) {
		if _, err := NewExporter(&mockFetcher{}).Export(ctx, nil, "ada", ExportOpts{Format: "xml"}); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("No Fetcher", func(t *testing.T) {
		if _, err := NewExporter(nil).Export(ctx, nil, "ada", ExportOpts{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		fetcher := &mockFetcher{pages: 4, perPage: 1}

		result, err := NewExporter(fetcher).Export(cctx, nil, "ada", ExportOpts{OutputDir: t.TempDir(), RateLimit: 1})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if result == nil || result.OutputFile != "" {
			t.Errorf("expected partial result without output, got %+v", result)
		}
	})
}

func TestPhaseString(t *testing.T) {
	for phase, want := range map[Phase]string{
		FetchFirstPage: "fetch_first_page",
		FetchPages:     "fetch_pages",
		WriteExport:    "write_export",
		Phase(99):      "",
	} {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}
