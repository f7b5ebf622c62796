package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/storydesk/internal/drafts"
	"github.com/desertthunder/storydesk/internal/shared"
)

// openEditor opens the draft named by --slug: the new story draft when empty, otherwise the cached draft of
// that story, reconciled in chapter mode when none is cached yet.
func (r *Runner) openEditor(ctx context.Context, cmd *cli.Command) (*drafts.Editor, error) {
	slug := strings.TrimSpace(cmd.String("slug"))
	if slug == "" {
		return r.drafts.OpenCreate(ctx), nil
	}

	if scope := drafts.BookScope(slug); r.drafts.HasDraft(ctx, scope) {
		return r.drafts.OpenCached(ctx, scope), nil
	}
	return r.openEdit(ctx, slug, drafts.ModeChapter)
}

func (r *Runner) openEdit(ctx context.Context, slug string, mode drafts.Mode) (*drafts.Editor, error) {
	book, err := r.stories.FindCached(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'storydesk stories list' to refresh the listing)", err)
	}
	return r.drafts.OpenEdit(ctx, book.Snapshot(), mode)
}

func chapterIndex(cmd *cli.Command) (int, error) {
	raw := strings.TrimSpace(cmd.StringArg("index"))
	if raw == "" {
		return 0, fmt.Errorf("%w: chapter index", shared.ErrMissingArgument)
	}
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: chapter index %q", shared.ErrInvalidArgument, raw)
	}
	return i, nil
}

// DraftShow prints a draft.
func (r *Runner) DraftShow(ctx context.Context, cmd *cli.Command) error {
	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(e.Draft, cmd.Bool("pretty"))
	}
	return r.writeDraft(e)
}

func (r *Runner) writeDraft(e *drafts.Editor) error {
	d := e.Draft
	mode := string(d.Mode)
	if d.Mode == drafts.ModeCreate {
		mode = "create"
	}

	r.writePlainHeader(fmt.Sprintf("Draft %s (%s)", e.Scope(), mode))
	r.writePlain("Title: %s\n", d.Metadata.Title)
	r.writePlain("Summary: %s\n", d.Metadata.Summary)
	r.writePlain("Tags: %s\n", strings.Join(d.Metadata.Tags, ", "))
	if d.Metadata.Image != "" {
		r.writePlain("Image: %s\n", d.Metadata.Image)
	}
	if len(d.Metadata.ContentTitles) > 0 {
		r.writePlain("Chapter titles: %s\n", strings.Join(d.Metadata.ContentTitles, " | "))
	}

	r.writePlainln("Chapters:")
	for _, c := range d.Chapters {
		status := "unchanged"
		switch {
		case d.Mode == drafts.ModeCreate:
			chars := drafts.CharCount(c.Content)
			status = fmt.Sprintf("%d/%d chars", chars, drafts.MinCreationChars)
		case c.IsEdited:
			mark := "✗"
			if c.ValidEdit() {
				mark = "✓"
			}
			status = fmt.Sprintf("%s %d/%d words", mark, c.Words(), drafts.MinEditWords)
		}

		preview := strings.Join(strings.Fields(c.Content), " ")
		if preview == "" {
			preview = c.Placeholder
		}
		if len([]rune(preview)) > 60 {
			preview = string([]rune(preview)[:60]) + "..."
		}
		r.writePlain("  [%d] %s • %s\n", c.Index, status, preview)
	}
	return nil
}

// DraftMode reconciles the draft of an existing story for the given edit mode.
func (r *Runner) DraftMode(ctx context.Context, cmd *cli.Command) error {
	mode, err := drafts.ParseMode(cmd.StringArg("mode"))
	if err != nil {
		return err
	}

	e, err := r.openEdit(ctx, strings.TrimSpace(cmd.String("slug")), mode)
	if err != nil {
		return err
	}
	r.logger.Info("draft opened", "scope", e.Scope(), "mode", mode, "chapters", len(e.Draft.Chapters))
	return r.writeDraft(e)
}

// DraftMeta sets the draft's title, summary and image.
func (r *Runner) DraftMeta(ctx context.Context, cmd *cli.Command) error {
	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.IsSet("title") {
		if err := e.SetTitle(ctx, cmd.String("title")); err != nil {
			return err
		}
	}

	if path := cmd.String("summary-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: failed to read summary: %v", shared.ErrInvalidArgument, err)
		}
		if err := e.SetSummary(ctx, string(data)); err != nil {
			return err
		}
	} else if cmd.IsSet("summary") {
		if err := e.SetSummary(ctx, cmd.String("summary")); err != nil {
			return err
		}
	}

	if cmd.IsSet("image") {
		path := cmd.String("image")
		if path != "" {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("%w: image %s: %v", shared.ErrInvalidArgument, path, err)
			}
		}
		if err := e.SetImage(ctx, path); err != nil {
			return err
		}
	}

	return r.writePlain("✓ Draft updated\n")
}

// DraftTagAdd adds a tag.
func (r *Runner) DraftTagAdd(ctx context.Context, cmd *cli.Command) error {
	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}
	if err := e.AddTag(ctx, cmd.StringArg("tag")); err != nil {
		return err
	}
	return r.writePlain("Tags: %s\n", strings.Join(e.Draft.Metadata.Tags, ", "))
}

// DraftTagRemove removes a tag.
func (r *Runner) DraftTagRemove(ctx context.Context, cmd *cli.Command) error {
	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}
	if err := e.RemoveTag(ctx, cmd.StringArg("tag")); err != nil {
		return err
	}
	return r.writePlain("Tags: %s\n", strings.Join(e.Draft.Metadata.Tags, ", "))
}

// DraftTitleAdd adds a chapter title.
func (r *Runner) DraftTitleAdd(ctx context.Context, cmd *cli.Command) error {
	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}
	if err := e.AddContentTitle(ctx, cmd.StringArg("title")); err != nil {
		return err
	}
	return r.writePlain("Chapter titles: %s\n", strings.Join(e.Draft.Metadata.ContentTitles, " | "))
}

// DraftTitleRemove removes a chapter title.
func (r *Runner) DraftTitleRemove(ctx context.Context, cmd *cli.Command) error {
	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}
	if err := e.RemoveContentTitle(ctx, cmd.StringArg("title")); err != nil {
		return err
	}
	return r.writePlain("Chapter titles: %s\n", strings.Join(e.Draft.Metadata.ContentTitles, " | "))
}

// DraftChapterAdd appends a chapter.
func (r *Runner) DraftChapterAdd(ctx context.Context, cmd *cli.Command) error {
	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}
	c, err := e.AddChapter(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Added chapter %d\n", c.Index)
}

// DraftChapterEdit replaces a chapter's content from --content, --file or stdin.
func (r *Runner) DraftChapterEdit(ctx context.Context, cmd *cli.Command) error {
	index, err := chapterIndex(cmd)
	if err != nil {
		return err
	}

	var content string
	switch path := cmd.String("file"); {
	case path == "-":
		data, err := io.ReadAll(r.input)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		content = string(data)
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: failed to read chapter: %v", shared.ErrInvalidArgument, err)
		}
		content = string(data)
	case cmd.IsSet("content"):
		content = cmd.String("content")
	default:
		return fmt.Errorf("%w: --content or --file", shared.ErrMissingArgument)
	}

	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}
	if err := e.EditChapter(ctx, index, content); err != nil {
		return err
	}

	if e.Draft.Mode == drafts.ModeCreate {
		return r.writePlain("✓ Chapter %d saved (%d chars)\n", index, drafts.CharCount(content))
	}
	return r.writePlain("✓ Chapter %d saved (%d words)\n", index, drafts.WordCount(content))
}

// DraftChapterDelete removes a chapter.
func (r *Runner) DraftChapterDelete(ctx context.Context, cmd *cli.Command) error {
	index, err := chapterIndex(cmd)
	if err != nil {
		return err
	}
	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}
	if err := e.DeleteChapter(ctx, index); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted chapter %d, %d remaining\n", index, len(e.Draft.Chapters))
}

// DraftSubmit uploads a new story or an edit of an existing one.
func (r *Runner) DraftSubmit(ctx context.Context, cmd *cli.Command) error {
	e, err := r.openEditor(ctx, cmd)
	if err != nil {
		return err
	}

	if err := drafts.Validate(e.Draft); err != nil {
		var verr *drafts.ValidationError
		if errors.As(err, &verr) {
			r.writePlain("✗ %s\n", verr.Message)
		}
		return err
	}

	if _, err := r.requireUser(ctx); err != nil {
		return err
	}

	slug := strings.TrimSpace(cmd.String("slug"))
	if slug == "" {
		r.logger.Info("uploading story", "title", e.Draft.Metadata.Title, "chapters", len(e.Draft.Chapters))
	} else {
		r.logger.Info("updating story", "slug", slug, "mode", e.Draft.Mode)
	}

	submit := func() (string, bool, error) {
		if slug == "" {
			res, err := r.stories.AddStory(ctx, e.Draft)
			return res.Message, res.Success, err
		}
		res, err := r.stories.EditStory(ctx, slug, e.Draft)
		return res.Message, res.Success, err
	}

	msg, ok, err := submit()
	if err != nil {
		return err
	}
	if !ok {
		r.writePlain("✗ %s\n", msg)
		return fmt.Errorf("%w: %s", shared.ErrAPIRequest, msg)
	}
	return r.writePlain("✓ %s\n", msg)
}

// DraftClear discards a draft.
func (r *Runner) DraftClear(ctx context.Context, cmd *cli.Command) error {
	scope := drafts.CreateScope
	if slug := strings.TrimSpace(cmd.String("slug")); slug != "" {
		scope = drafts.BookScope(slug)
	}
	if err := r.drafts.ClearDraft(ctx, scope); err != nil {
		return err
	}
	return r.writePlain("✓ Draft %s cleared\n", scope)
}
