package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/storydesk/internal/formatter"
	"github.com/desertthunder/storydesk/internal/shared"
	"github.com/desertthunder/storydesk/internal/stories"
)

// PageFetcher fetches one listing page without side effects on the listing cache.
type PageFetcher interface {
	FetchPage(ctx context.Context, author string, page int) (stories.Page, error)
}

// ExportOpts contains configuration for an export.
type ExportOpts struct {
	Format     string  // Export format: json, csv, markdown, txt
	OutputDir  string  // Output directory (default: stories_export_{epoch})
	NumWorkers int     // Concurrent page fetchers (default: 4, max: 10)
	RateLimit  float64 // Page requests per second (default: 5)
}

// PageResult is the outcome of fetching one page.
type PageResult struct {
	Page  int    `json:"page"`
	Count int    `json:"count"`
	Error error  `json:"-"`
	Cause string `json:"error,omitempty"`

	books []stories.Book
}

// ExportResult summarises an export.
type ExportResult struct {
	Author       string       `json:"author"`
	Format       string       `json:"format"`
	TotalPages   int          `json:"total_pages"`
	FailedPages  int          `json:"failed_pages"`
	TotalStories int          `json:"total_stories"`
	OutputFile   string       `json:"output_file"`
	ManifestPath string       `json:"-"`
	Pages        []PageResult `json:"pages"`
	ExportedAt   time.Time    `json:"exported_at"`
}

// Exporter runs listing exports.
type Exporter struct {
	fetcher PageFetcher
}

// NewExporter creates an [Exporter].
func NewExporter(fetcher PageFetcher) *Exporter {
	return &Exporter{fetcher: fetcher}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Exporter) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Export fetches every page of author's stories and writes them to a single file.
//
// A failure on the first page aborts the export. Failures on later pages are recorded in the result and the
// manifest, and the remaining books are still written.
func (e *Exporter) Export(ctx context.Context, prog chan<- ProgressUpdate, author string, opts ExportOpts) (*ExportResult, error) {
	if e.fetcher == nil {
		return nil, fmt.Errorf("%w: story service not initialized", shared.ErrServiceUnavailable)
	}

	format, err := formatter.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("stories_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	e.sendProgress(prog, firstPageUpdate(author))
	first, err := e.fetcher.FetchPage(ctx, author, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	total := max(first.Pages, 1)
	result := &ExportResult{
		Author:     author,
		Format:     format,
		TotalPages: total,
		Pages:      []PageResult{{Page: 1, Count: len(first.Books), books: first.Books}},
	}
	e.sendProgress(prog, pageFetchedUpdate(1, total, result.Pages[0]))

	if total > 1 {
		result.Pages = append(result.Pages, e.fetchRemaining(ctx, prog, author, total, opts)...)
	}

	sort.Slice(result.Pages, func(i, j int) bool { return result.Pages[i].Page < result.Pages[j].Page })

	var books []stories.Book
	for i := range result.Pages {
		p := &result.Pages[i]
		if p.Error != nil {
			result.FailedPages++
			p.Cause = p.Error.Error()
			continue
		}
		books = append(books, p.books...)
	}
	result.TotalStories = len(books)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return result, fmt.Errorf("failed to create output directory: %w", err)
	}

	e.sendProgress(prog, writingUpdate(format, len(books)))
	name := fmt.Sprintf("%s_stories%s", sanitize(author), formatter.Extension(format))
	out, err := formatter.Write(format, author, books, filepath.Join(opts.OutputDir, name))
	if err != nil {
		return result, err
	}
	result.OutputFile = out
	result.ExportedAt = time.Now().UTC()

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := writeManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// fetchRemaining fetches pages 2..total with a worker pool sharing one rate limiter.
func (e *Exporter) fetchRemaining(ctx context.Context, prog chan<- ProgressUpdate, author string, total int, opts ExportOpts) []PageResult {
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan int, total-1)
	results := make(chan PageResult, total-1)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.pageWorker(ctx, &wg, limiter, author, jobs, results)
	}

	for page := 2; page <= total; page++ {
		jobs <- page
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]PageResult, 0, total-1)
	completed := 1
	for res := range results {
		completed++
		out = append(out, res)
		if res.Error != nil {
			e.sendProgress(prog, pageFailedUpdate(completed, total, res))
		} else {
			e.sendProgress(prog, pageFetchedUpdate(completed, total, res))
		}
	}
	return out
}

// pageWorker fetches pages from jobs until it is closed or ctx is done.
func (e *Exporter) pageWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	author string,
	jobs <-chan int,
	results chan<- PageResult,
) {
	defer wg.Done()

	for page := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			results <- PageResult{Page: page, Error: err}
			continue
		}

		p, err := e.fetcher.FetchPage(ctx, author, page)
		if err != nil {
			results <- PageResult{Page: page, Error: err}
			continue
		}
		results <- PageResult{Page: page, Count: len(p.Books), books: p.Books}
	}
}

func writeManifest(result *ExportResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "author"
	}
	return name
}

// Err joins the errors of every failed page, or returns nil.
func (r *ExportResult) Err() error {
	var errs []error
	for _, p := range r.Pages {
		if p.Error != nil {
			errs = append(errs, fmt.Errorf("page %d: %w", p.Page, p.Error))
		}
	}
	return errors.Join(errs...)
}
