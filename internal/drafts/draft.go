// Package drafts caches multi-chapter book drafts locally and turns them into submissions.
//
// A draft lives under a scope key: [CreateScope] for a new book and [BookScope] for an existing one. Every
// mutation made through an [Editor] re-serialises the whole draft. Chapter content is opaque text.
package drafts

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/desertthunder/storydesk/internal/shared"
)

// Scope keys and per-chapter edit cache prefix.
const (
	CreateScope      = "currentBookDraft"
	bookScopePrefix  = "bookDraft-"
	editedContentKey = "EditedContent-"
)

// Thresholds for a chapter to be submitted.
const (
	MinEditWords     = 100
	MinCreationChars = 1500
	MaxTags          = 3
)

// Placeholders.
const (
	PrefacePlaceholder    = "Write your preface here..."
	NewPrefacePlaceholder = "Write your new preface here..."
)

// BookScope is the draft key of an existing book.
func BookScope(slug string) string {
	return bookScopePrefix + slug
}

// EditKey is the per-chapter edit cache key of an existing book's chapter.
func EditKey(slug string, index int) string {
	return fmt.Sprintf("%s%s-%d", editedContentKey, slug, index)
}

// Mode selects which chapters of an existing book a draft edits.
type Mode string

const (
	// ModeCreate is a new book.
	ModeCreate Mode = ""
	// ModeFull replaces the whole book, starting from one fresh preface.
	ModeFull Mode = "full"
	// ModeChapter edits existing chapters in place.
	ModeChapter Mode = "chapter"
	// ModeAdd appends chapters after the existing ones.
	ModeAdd Mode = "add"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFull, ModeChapter, ModeAdd:
		return m, nil
	default:
		return "", fmt.Errorf("%w: edit mode must be full, chapter or add, got %q", shared.ErrInvalidArgument, s)
	}
}

// Chapter is one unit of book content.
type Chapter struct {
	Index         int    `json:"index"`
	Content       string `json:"content"`
	IsEdited      bool   `json:"isEdited"`
	OriginalIndex int    `json:"originalIndex"`
	Placeholder   string `json:"placeholder"`
}

// Words returns the number of whitespace separated words in the content.
func (c Chapter) Words() int {
	return WordCount(c.Content)
}

// ValidEdit reports whether the chapter is edited and long enough to submit as an edit.
func (c Chapter) ValidEdit() bool {
	return c.IsEdited && c.Words() >= MinEditWords
}

// Metadata is the book-level part of a draft.
type Metadata struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	Image         string   `json:"image,omitempty"`
	ContentTitles []string `json:"contentTitles"`
}

// Draft is a cached book draft.
//
// Chapter indices are contiguous from Base. Base is zero except for [ModeAdd] drafts, where it is the server's
// chapter count.
type Draft struct {
	Mode     Mode      `json:"mode,omitempty"`
	Slug     string    `json:"slug,omitempty"`
	Base     int       `json:"base,omitempty"`
	Metadata Metadata  `json:"metadata"`
	Chapters []Chapter `json:"chapters"`
}

// NewDraft returns the empty single-chapter draft of a new book.
func NewDraft() Draft {
	return Draft{Chapters: []Chapter{newChapter(0, PrefacePlaceholder)}}
}

func newChapter(index int, placeholder string) Chapter {
	if placeholder == "" {
		placeholder = fmt.Sprintf("Write content for Chapter %d here...", index)
	}
	return Chapter{Index: index, IsEdited: true, OriginalIndex: index, Placeholder: placeholder}
}

// Chapter returns the chapter with the given index.
func (d *Draft) Chapter(index int) (Chapter, bool) {
	for _, c := range d.Chapters {
		if c.Index == index {
			return c, true
		}
	}
	return Chapter{}, false
}

// AddChapter appends a chapter at the next index with an original index no other chapter holds. Chapters
// cannot be added in [ModeChapter].
func (d *Draft) AddChapter() (Chapter, error) {
	if d.Mode == ModeChapter {
		return Chapter{}, fmt.Errorf("%w: chapters cannot be added in chapter mode", shared.ErrInvalidInput)
	}
	c := newChapter(d.Base+len(d.Chapters), "")
	for _, existing := range d.Chapters {
		c.OriginalIndex = max(c.OriginalIndex, existing.OriginalIndex+1)
	}
	d.Chapters = append(d.Chapters, c)
	return c, nil
}

// EditChapter replaces a chapter's content and marks it edited.
func (d *Draft) EditChapter(index int, content string) error {
	for i := range d.Chapters {
		if d.Chapters[i].Index == index {
			d.Chapters[i].Content = content
			d.Chapters[i].IsEdited = true
			return nil
		}
	}
	return fmt.Errorf("%w: no chapter %d", shared.ErrInvalidArgument, index)
}

// DeleteChapter removes a chapter and renumbers the rest contiguously. Original indices are kept. Existing
// chapters cannot be deleted in [ModeChapter].
func (d *Draft) DeleteChapter(index int) error {
	if d.Mode == ModeChapter {
		return fmt.Errorf("%w: chapters cannot be deleted in chapter mode", shared.ErrInvalidInput)
	}
	pos := slices.IndexFunc(d.Chapters, func(c Chapter) bool { return c.Index == index })
	if pos < 0 {
		return fmt.Errorf("%w: no chapter %d", shared.ErrInvalidArgument, index)
	}

	d.Chapters = slices.Delete(d.Chapters, pos, pos+1)
	for i := range d.Chapters {
		d.Chapters[i].Index = d.Base + i
	}
	return nil
}

// AddTag appends a trimmed tag.
//
// allowed restricts the vocabulary when non-empty; comparison is case-insensitive and the allowed spelling is
// kept. Duplicates are ignored.
func (d *Draft) AddTag(tag string, allowed []string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("%w: tag is empty", shared.ErrInvalidArgument)
	}
	if len(allowed) > 0 {
		i := slices.IndexFunc(allowed, func(a string) bool { return strings.EqualFold(a, tag) })
		if i < 0 {
			return fmt.Errorf("%w: tag %q is not one of %s", shared.ErrInvalidArgument, tag, strings.Join(allowed, ", "))
		}
		tag = allowed[i]
	}
	if slices.Contains(d.Metadata.Tags, tag) {
		return nil
	}
	if len(d.Metadata.Tags) >= MaxTags {
		return &ValidationError{Field: "tags", Message: "A maximum of three tags is allowed. Please remove some tags before adding more."}
	}
	d.Metadata.Tags = append(d.Metadata.Tags, tag)
	return nil
}

// RemoveTag removes a tag if present.
func (d *Draft) RemoveTag(tag string) {
	d.Metadata.Tags = slices.DeleteFunc(d.Metadata.Tags, func(t string) bool { return t == strings.TrimSpace(tag) })
}

// AddContentTitle appends a trimmed, unique content title.
func (d *Draft) AddContentTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: content title is empty", shared.ErrInvalidArgument)
	}
	if !slices.Contains(d.Metadata.ContentTitles, title) {
		d.Metadata.ContentTitles = append(d.Metadata.ContentTitles, title)
	}
	return nil
}

// RemoveContentTitle removes a content title if present.
func (d *Draft) RemoveContentTitle(title string) {
	d.Metadata.ContentTitles = slices.DeleteFunc(d.Metadata.ContentTitles, func(t string) bool {
		return t == strings.TrimSpace(title)
	})
}

// ValidEdits returns the chapters that would be submitted as edits.
func (d *Draft) ValidEdits() []Chapter {
	var out []Chapter
	for _, c := range d.Chapters {
		if c.ValidEdit() {
			out = append(out, c)
		}
	}
	return out
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// CharCount counts characters, not bytes.
func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}
