// Package stories lists the signed-in author's books and submits new and edited books.
package stories

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/storydesk/internal/drafts"
	"github.com/desertthunder/storydesk/internal/gateway"
	"github.com/desertthunder/storydesk/internal/shared"
)

// Backend paths and cache keys.
const (
	PathAllStories = "/story/getAllStories/"
	PathAddStory   = "/story/addstory"
	CacheKey       = "authorBooks"
)

const (
	DefaultPageSize = 10
	summaryLimit    = 250
)

// Submission messages.
const (
	MsgUploadFailed = "Upload failed"
	MsgUploaded     = "Story uploaded"
	MsgUpdated      = "Story updated"
)

// Book is one of the author's stories as listed by the backend.
type Book struct {
	ID            string   `json:"_id"`
	Slug          string   `json:"slug"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Image         string   `json:"image"`
	AverageRating *float64 `json:"averageRating"`
	ReadTime      []int    `json:"readTime"`
	Tags          []string `json:"tags"`
	ContentCount  int      `json:"contentCount"`
	ContentTitles []string `json:"contentTitles"`
}

// ShortSummary truncates the summary for listings.
func (b Book) ShortSummary() string {
	r := []rune(b.Summary)
	if len(r) <= summaryLimit {
		return b.Summary
	}
	return string(r[:summaryLimit]) + "..."
}

// Rating formats the average rating with one decimal, or "N/A".
func (b Book) Rating() string {
	if b.AverageRating == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*b.AverageRating, 'f', 1, 64)
}

// ReadTimeLabel formats the book's total read time.
func (b Book) ReadTimeLabel() string {
	return ReadTime(b.ReadTime)
}

// Snapshot is the server state the draft editor reconciles against.
func (b Book) Snapshot() drafts.ServerBook {
	return drafts.ServerBook{
		Slug:          b.Slug,
		Title:         b.Title,
		Summary:       b.Summary,
		Tags:          b.Tags,
		ContentTitles: b.ContentTitles,
		ContentCount:  b.ContentCount,
	}
}

// ReadTime sums per-chapter read times in minutes and formats them as "N min read" or "H hour(s) M min read".
func ReadTime(minutes []int) string {
	total := 0
	for _, m := range minutes {
		total += m
	}

	hours, rest := total/60, total%60
	if hours == 0 {
		return fmt.Sprintf("%d min read", total)
	}

	unit := "hour"
	if hours > 1 {
		unit = "hours"
	}
	if rest == 0 {
		return fmt.Sprintf("%d %s read", hours, unit)
	}
	return fmt.Sprintf("%d %s %d min read", hours, unit, rest)
}

// Page is one page of the author listing.
type Page struct {
	Books []Book `json:"data"`
	Pages int    `json:"pages"`
	Page  int    `json:"-"`
}

// API is the part of [gateway.Gateway] stories use.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*gateway.Response, error)
	SendForm(ctx context.Context, method, path string, form *gateway.Form) (*gateway.Response, error)
}

// KeyValueStore caches the last listing.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Options configures a [Service].
type Options struct {
	API      API
	KV       KeyValueStore
	Drafts   *drafts.Store
	Tags     []string
	PageSize int
	Logger   *log.Logger
}

// Service lists and submits stories.
type Service struct {
	api      API
	kv       KeyValueStore
	drafts   *drafts.Store
	tags     []string
	pageSize int
	logger   *log.Logger
}

// NewService creates a [Service].
func NewService(opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Service{
		api:      opts.API,
		kv:       opts.KV,
		drafts:   opts.Drafts,
		tags:     opts.Tags,
		pageSize: opts.PageSize,
		logger:   opts.Logger.With("component", "stories"),
	}
}

// PageSize returns the listing page size.
func (s *Service) PageSize() int {
	return s.pageSize
}

// ListAuthorStories fetches one page of author's stories across the configured tags and caches its books.
func (s *Service) ListAuthorStories(ctx context.Context, author string, page int) (Page, error) {
	p, err := s.FetchPage(ctx, author, page)
	if err != nil {
		return Page{}, err
	}
	s.cache(ctx, p.Books)
	return p, nil
}

// FetchPage fetches one page of author's stories without touching the listing cache.
func (s *Service) FetchPage(ctx context.Context, author string, page int) (Page, error) {
	if author == "" {
		return Page{}, fmt.Errorf("%w: author", shared.ErrMissingArgument)
	}
	if page < 1 {
		page = 1
	}

	query := url.Values{}
	query.Set("author", author)
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(s.pageSize))

	resp, err := s.api.Get(ctx, s.listPath(), query)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list stories: %w", err)
	}

	var p Page
	if err := resp.Decode(&p); err != nil {
		return Page{}, err
	}
	if p.Books == nil {
		p.Books = []Book{}
	}
	p.Page = page
	return p, nil
}

func (s *Service) listPath() string {
	escaped := make([]string, len(s.tags))
	for i, t := range s.tags {
		escaped[i] = url.PathEscape(t)
	}
	return PathAllStories + strings.Join(escaped, "+")
}

func (s *Service) cache(ctx context.Context, books []Book) {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(books)
	if err != nil {
		s.logger.Warn("failed to encode listing cache", "error", err)
		return
	}
	if err := s.kv.Set(ctx, CacheKey, raw); err != nil {
		s.logger.Warn("failed to write listing cache", "error", err)
	}
}

// CachedAuthorStories returns the books of the last listing, or nil. A corrupt cache is ignored.
func (s *Service) CachedAuthorStories(ctx context.Context) []Book {
	if s.kv == nil {
		return nil
	}
	raw, err := s.kv.Get(ctx, CacheKey)
	if err != nil || raw == nil {
		return nil
	}
	var books []Book
	if err := json.Unmarshal(raw, &books); err != nil {
		s.logger.Warn("ignoring corrupt listing cache", "error", err)
		return nil
	}
	return books
}

// FindCached returns the cached book with slug.
func (s *Service) FindCached(ctx context.Context, slug string) (Book, error) {
	for _, b := range s.CachedAuthorStories(ctx) {
		if b.Slug == slug {
			return b, nil
		}
	}
	return Book{}, fmt.Errorf("%w: %s", shared.ErrStoryNotFound, slug)
}

// Result is the outcome of a submission.
type Result struct {
	Success    bool
	StatusCode int
	Message    string
}

// AddStory submits the new-book draft and clears it on success.
func (s *Service) AddStory(ctx context.Context, d drafts.Draft) (Result, error) {
	d.Mode = drafts.ModeCreate
	sub, err := drafts.Prepare(d)
	if err != nil {
		return Result{}, err
	}

	resp, err := s.submit(ctx, http.MethodPost, PathAddStory, sub, false)
	if err != nil {
		return s.rejected(err, "errorMessage")
	}

	if s.drafts != nil {
		if err := s.drafts.ClearDraft(ctx, drafts.CreateScope); err != nil {
			s.logger.Warn("failed to clear draft after upload", "error", err)
		}
	}
	s.logger.Info("story uploaded", "title", sub.Title)
	return Result{Success: true, StatusCode: resp.StatusCode, Message: MsgUploaded}, nil
}

// EditStory submits an edit draft of slug and clears it and its chapter edits on success.
func (s *Service) EditStory(ctx context.Context, slug string, d drafts.Draft) (Result, error) {
	if slug == "" {
		return Result{}, fmt.Errorf("%w: slug", shared.ErrMissingArgument)
	}
	if d.Mode == drafts.ModeCreate {
		return Result{}, fmt.Errorf("%w: draft of %s has no edit mode", shared.ErrInvalidInput, slug)
	}

	sub, err := drafts.Prepare(d)
	if err != nil {
		return Result{}, err
	}

	resp, err := s.submit(ctx, http.MethodPatch, "/story/"+url.PathEscape(slug)+"/edit", sub, true)
	if err != nil {
		return s.rejected(err, "error")
	}

	if s.drafts != nil {
		if err := s.drafts.ClearDraft(ctx, drafts.BookScope(slug)); err != nil {
			s.logger.Warn("failed to clear draft after edit", "slug", slug, "error", err)
		}
	}
	s.logger.Info("story updated", "slug", slug, "partial", sub.Partial, "chapters", sub.Chapters)
	return Result{Success: true, StatusCode: resp.StatusCode, Message: MsgUpdated}, nil
}

func (s *Service) submit(ctx context.Context, method, path string, sub drafts.Submission, edit bool) (*gateway.Response, error) {
	var form *gateway.Form
	var err error

	if sub.Image != "" {
		f, openErr := os.Open(sub.Image)
		if openErr != nil {
			return nil, fmt.Errorf("%w: failed to open image: %v", shared.ErrInvalidInput, openErr)
		}
		defer f.Close()
		form, err = sub.Form(f, filepath.Base(sub.Image), edit)
	} else {
		form, err = sub.Form(nil, "", edit)
	}
	if err != nil {
		return nil, err
	}

	return s.api.SendForm(ctx, method, path, form)
}

// rejected turns a backend refusal into a failed [Result]; other errors are returned.
func (s *Service) rejected(err error, field string) (Result, error) {
	gerr, ok := gateway.AsError(err)
	if !ok || (gerr.Kind != gateway.KindRejected && gerr.Kind != gateway.KindUnauthorized) {
		return Result{}, err
	}

	msg := MsgUploadFailed
	var body map[string]any
	if json.Unmarshal(gerr.Body, &body) == nil {
		if v, ok := body[field].(string); ok && v != "" {
			msg = v
		}
	}
	s.logger.Warn("submission rejected", "status", gerr.StatusCode, "message", msg)
	return Result{StatusCode: gerr.StatusCode, Message: msg}, nil
}
