package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/storydesk/internal/stories"
	"github.com/desertthunder/storydesk/internal/tasks"
)

type listOutput struct {
	Author string         `json:"author,omitempty"`
	Page   int            `json:"page"`
	Pages  int            `json:"pages"`
	Books  []stories.Book `json:"data"`
}

// resolveAuthor returns the --author flag or the logged in user's username.
func (r *Runner) resolveAuthor(ctx context.Context, cmd *cli.Command) (string, error) {
	if author := strings.TrimSpace(cmd.String("author")); author != "" {
		return author, nil
	}
	user, err := r.requireUser(ctx)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// StoriesList prints one page of the author's stories, or the cached listing.
func (r *Runner) StoriesList(ctx context.Context, cmd *cli.Command) error {
	var out listOutput

	if cmd.Bool("cached") {
		books := r.stories.CachedAuthorStories(ctx)
		out = listOutput{Page: 1, Pages: 1, Books: books}
	} else {
		author, err := r.resolveAuthor(ctx, cmd)
		if err != nil {
			return err
		}

		page, err := r.stories.ListAuthorStories(ctx, author, int(cmd.Int("page")))
		if err != nil {
			return fmt.Errorf("failed to list stories: %w", err)
		}
		out = listOutput{Author: author, Page: page.Page, Pages: page.Pages, Books: page.Books}
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	title := "Cached stories"
	if out.Author != "" {
		title = fmt.Sprintf("Stories by %s (page %d of %d)", out.Author, out.Page, max(out.Pages, 1))
	}
	r.writePlainHeader(title)

	if len(out.Books) == 0 {
		return r.writePlain("No stories found\n")
	}
	for _, b := range out.Books {
		r.writePlain("• %s [%s]\n", b.Title, b.Slug)
		r.writePlain("  ★ %s • %s • %d chapters", b.Rating(), b.ReadTimeLabel(), b.ContentCount)
		if len(b.Tags) > 0 {
			r.writePlain(" • %s", strings.Join(b.Tags, ", "))
		}
		r.writePlain("\n")
	}
	return nil
}

// StoriesExport fetches every listing page and writes the export with a manifest.
func (r *Runner) StoriesExport(ctx context.Context, cmd *cli.Command) error {
	author, err := r.resolveAuthor(ctx, cmd)
	if err != nil {
		return err
	}

	opts := tasks.ExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate-limit"),
	}

	r.logger.Info("starting export", "author", author, "format", opts.Format)

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase)
		}
	}()

	result, err := r.exporter.Export(ctx, progress, author, opts)
	close(progress)
	<-done

	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	r.writePlainHeader("Export Complete")
	r.writePlain("Author: %s\n", result.Author)
	r.writePlain("Format: %s\n", result.Format)
	r.writePlain("Stories: %d\n", result.TotalStories)
	r.writePlain("Pages: %d/%d\n", result.TotalPages-result.FailedPages, result.TotalPages)
	r.writePlain("Output: %s\n", result.OutputFile)
	r.writePlain("Manifest: %s\n", result.ManifestPath)

	if result.FailedPages > 0 {
		r.writePlainln("⚠ %d page(s) failed:", result.FailedPages)
		for _, p := range result.Pages {
			if p.Error != nil {
				r.writePlain("  • page %d: %v\n", p.Page, p.Error)
			}
		}
	}
	return nil
}
