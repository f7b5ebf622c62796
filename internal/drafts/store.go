package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// KeyValueStore is the durable store drafts are cached in.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Store loads and saves drafts.
type Store struct {
	kv          KeyValueStore
	allowedTags []string
	logger      *log.Logger
}

// NewStore creates a [Store]. allowedTags restricts the tag vocabulary when non-empty.
func NewStore(kv KeyValueStore, allowedTags []string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{kv: kv, allowedTags: allowedTags, logger: logger.With("component", "drafts")}
}

// AllowedTags returns the configured tag vocabulary.
func (s *Store) AllowedTags() []string {
	return s.allowedTags
}

// LoadDraft returns the draft cached under scope, or the empty single-chapter draft.
//
// A corrupt entry is discarded and the empty draft is returned.
func (s *Store) LoadDraft(ctx context.Context, scope string) Draft {
	raw, err := s.kv.Get(ctx, scope)
	if err != nil {
		s.logger.Warn("failed to read draft", "scope", scope, "error", err)
		return NewDraft()
	}
	if raw == nil {
		return NewDraft()
	}

	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		s.logger.Warn("discarding corrupt draft", "scope", scope, "error", err)
		if err := s.kv.Delete(ctx, scope); err != nil {
			s.logger.Error("failed to delete corrupt draft", "scope", scope, "error", err)
		}
		return NewDraft()
	}
	if d.Mode == ModeCreate && len(d.Chapters) == 0 {
		d.Chapters = NewDraft().Chapters
	}
	return d
}

// HasDraft reports whether a draft is cached under scope.
func (s *Store) HasDraft(ctx context.Context, scope string) bool {
	raw, err := s.kv.Get(ctx, scope)
	return err == nil && raw != nil
}

// SaveDraft overwrites the draft cached under scope.
func (s *Store) SaveDraft(ctx context.Context, scope string, d Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if err := s.kv.Set(ctx, scope, raw); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// ClearDraft removes the draft under scope and, for book scopes, every cached chapter edit of that book.
// Clearing a missing draft is not an error.
func (s *Store) ClearDraft(ctx context.Context, scope string) error {
	var errs []error
	if err := s.kv.Delete(ctx, scope); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear draft: %w", err))
	}
	if slug, ok := strings.CutPrefix(scope, bookScopePrefix); ok {
		if err := s.clearChapterEdits(ctx, slug); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// clearChapterEdits deletes EditedContent-<slug>-<n> keys. A plain prefix match would also catch slugs that
// extend this one.
func (s *Store) clearChapterEdits(ctx context.Context, slug string) error {
	prefix := editedContentKey + slug + "-"
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to list chapter edits: %w", err)
	}

	var errs []error
	for _, key := range keys {
		if _, err := strconv.Atoi(strings.TrimPrefix(key, prefix)); err != nil {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear chapter edit %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// SaveChapterEdit caches the content of an existing book's chapter.
func (s *Store) SaveChapterEdit(ctx context.Context, slug string, index int, content string) error {
	if err := s.kv.Set(ctx, EditKey(slug, index), []byte(content)); err != nil {
		return fmt.Errorf("failed to cache chapter edit: %w", err)
	}
	return nil
}

// LoadChapterEdit returns the cached content of an existing book's chapter.
func (s *Store) LoadChapterEdit(ctx context.Context, slug string, index int) (string, bool) {
	raw, err := s.kv.Get(ctx, EditKey(slug, index))
	if err != nil {
		s.logger.Warn("failed to read chapter edit", "slug", slug, "index", index, "error", err)
		return "", false
	}
	if raw == nil {
		return "", false
	}
	return string(raw), true
}

// Editor is an open draft whose every mutation is saved.
type Editor struct {
	store *Store
	scope string
	Draft Draft
}

// OpenCreate opens the new-book draft.
func (s *Store) OpenCreate(ctx context.Context) *Editor {
	return &Editor{store: s, scope: CreateScope, Draft: s.LoadDraft(ctx, CreateScope)}
}

// OpenEdit opens the draft of an existing book reconciled for mode, and saves the result.
func (s *Store) OpenEdit(ctx context.Context, server ServerBook, mode Mode) (*Editor, error) {
	scope := BookScope(server.Slug)

	var local Draft
	if s.HasDraft(ctx, scope) {
		local = s.LoadDraft(ctx, scope)
	}
	lookup := func(i int) (string, bool) { return s.LoadChapterEdit(ctx, server.Slug, i) }

	e := &Editor{store: s, scope: scope, Draft: Reconcile(server, local, mode, lookup)}
	if err := e.save(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// OpenCached opens whatever draft is cached under scope without reconciling it.
func (s *Store) OpenCached(ctx context.Context, scope string) *Editor {
	return &Editor{store: s, scope: scope, Draft: s.LoadDraft(ctx, scope)}
}

// Scope returns the key the draft is cached under.
func (e *Editor) Scope() string {
	return e.scope
}

func (e *Editor) save(ctx context.Context) error {
	return e.store.SaveDraft(ctx, e.scope, e.Draft)
}

// SetTitle sets the book title.
func (e *Editor) SetTitle(ctx context.Context, title string) error {
	e.Draft.Metadata.Title = strings.TrimSpace(title)
	return e.save(ctx)
}

// SetSummary sets the book summary.
func (e *Editor) SetSummary(ctx context.Context, summary string) error {
	e.Draft.Metadata.Summary = strings.TrimSpace(summary)
	return e.save(ctx)
}

// SetImage sets the path of the cover image to upload.
func (e *Editor) SetImage(ctx context.Context, path string) error {
	e.Draft.Metadata.Image = strings.TrimSpace(path)
	return e.save(ctx)
}

// AddTag adds a tag from the store's vocabulary.
func (e *Editor) AddTag(ctx context.Context, tag string) error {
	if err := e.Draft.AddTag(tag, e.store.allowedTags); err != nil {
		return err
	}
	return e.save(ctx)
}

// RemoveTag removes a tag.
func (e *Editor) RemoveTag(ctx context.Context, tag string) error {
	e.Draft.RemoveTag(tag)
	return e.save(ctx)
}

// AddContentTitle adds a content title.
func (e *Editor) AddContentTitle(ctx context.Context, title string) error {
	if err := e.Draft.AddContentTitle(title); err != nil {
		return err
	}
	return e.save(ctx)
}

// RemoveContentTitle removes a content title.
func (e *Editor) RemoveContentTitle(ctx context.Context, title string) error {
	e.Draft.RemoveContentTitle(title)
	return e.save(ctx)
}

// AddChapter appends a chapter.
func (e *Editor) AddChapter(ctx context.Context) (Chapter, error) {
	c, err := e.Draft.AddChapter()
	if err != nil {
		return Chapter{}, err
	}
	return c, e.save(ctx)
}

// EditChapter replaces a chapter's content. For existing books the edit is also cached under the chapter's
// original index.
func (e *Editor) EditChapter(ctx context.Context, index int, content string) error {
	if err := e.Draft.EditChapter(index, content); err != nil {
		return err
	}
	if c, ok := e.Draft.Chapter(index); ok && e.Draft.Slug != "" {
		if err := e.store.SaveChapterEdit(ctx, e.Draft.Slug, c.OriginalIndex, content); err != nil {
			return err
		}
	}
	return e.save(ctx)
}

// DeleteChapter removes a chapter.
func (e *Editor) DeleteChapter(ctx context.Context, index int) error {
	if err := e.Draft.DeleteChapter(index); err != nil {
		return err
	}
	return e.save(ctx)
}

// Clear removes the cached draft.
func (e *Editor) Clear(ctx context.Context) error {
	return e.store.ClearDraft(ctx, e.scope)
}
