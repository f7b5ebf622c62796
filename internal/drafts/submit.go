package drafts

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/desertthunder/storydesk/internal/gateway"
	"github.com/desertthunder/storydesk/internal/shared"
)

// ValidationError is a user-facing reason a draft cannot be submitted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return shared.ErrInvalidInput }

// Validate checks a draft before submission.
//
// Every mode needs a summary and one to three unique tags. Creating a book additionally needs an image and at
// least [MinCreationChars] characters in every chapter. Checks run in that order and the first failure is
// returned.
func Validate(d Draft) error {
	if d.Mode == ModeCreate && d.Metadata.Image == "" {
		return &ValidationError{Field: "image", Message: "Image is required."}
	}
	if d.Metadata.Summary == "" {
		return &ValidationError{Field: "summary", Message: "Summary is required."}
	}
	if len(d.Metadata.Tags) < 1 {
		return &ValidationError{Field: "tags", Message: "At least one tag is required."}
	}
	if len(d.Metadata.Tags) > MaxTags {
		return &ValidationError{Field: "tags", Message: "A maximum of three tags is allowed."}
	}
	if hasDuplicates(d.Metadata.Tags) {
		return &ValidationError{Field: "tags", Message: "Tags must be unique."}
	}
	if d.Mode == ModeCreate {
		for _, c := range d.Chapters {
			if CharCount(c.Content) < MinCreationChars {
				return &ValidationError{Field: "content", Message: "Each content element must have at least 1500 characters."}
			}
		}
	}
	return nil
}

func hasDuplicates(values []string) bool {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return len(slices.Compact(sorted)) != len(values)
}

// Submission is a validated draft ready to send.
type Submission struct {
	Title         string
	ContentTitles []string
	Summary       string
	Tags          []string
	Image         string
	Content       []string
	// Partial is set for chapter and add edits; Chapters then lists the original index of each content entry.
	Partial  bool
	Chapters []int
}

// Prepare validates d and selects the chapters to submit.
//
// A new book submits every chapter. Edits submit only valid edits: edited chapters of at least [MinEditWords]
// words. Shorter edited chapters stay in the draft but are left out.
func Prepare(d Draft) (Submission, error) {
	if err := Validate(d); err != nil {
		return Submission{}, err
	}

	sub := Submission{
		Title:         d.Metadata.Title,
		ContentTitles: nonNil(d.Metadata.ContentTitles),
		Summary:       d.Metadata.Summary,
		Tags:          nonNil(d.Metadata.Tags),
		Image:         d.Metadata.Image,
		Content:       []string{},
	}

	if d.Mode == ModeCreate {
		for _, c := range d.Chapters {
			sub.Content = append(sub.Content, c.Content)
		}
		return sub, nil
	}

	sub.Partial = d.Mode != ModeFull
	sub.Chapters = []int{}
	for _, c := range d.ValidEdits() {
		sub.Content = append(sub.Content, c.Content)
		sub.Chapters = append(sub.Chapters, c.OriginalIndex)
	}
	return sub, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Form builds the multipart body of sub. image may be nil when no new cover is uploaded.
//
// edit selects the edit form, which carries the partial flag and, when partial, the edited chapter list.
func (sub Submission) Form(image io.Reader, filename string, edit bool) (*gateway.Form, error) {
	contentTitles, err := json.Marshal(sub.ContentTitles)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content titles: %w", err)
	}
	tags, err := json.Marshal(sub.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	content, err := json.Marshal(sub.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}

	form := gateway.NewForm().
		AddField("title", sub.Title).
		AddField("contentTitles", string(contentTitles)).
		AddField("summary", sub.Summary).
		AddField("tags", string(tags))
	if image != nil {
		form.AddFile("image", filename, image)
	}
	form.AddField("content", string(content))

	if !edit {
		return form, nil
	}

	form.AddField("partial", strconv.FormatBool(sub.Partial))
	if sub.Partial {
		chapters, err := json.Marshal(sub.Chapters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode chapter list: %w", err)
		}
		form.AddField("chapter", string(chapters))
	}
	return form, nil
}
