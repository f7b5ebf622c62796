package drafts

import "fmt"

// ServerBook is the server's view of an existing book, as far as drafts need it.
type ServerBook struct {
	Slug          string
	Title         string
	Summary       string
	Tags          []string
	ContentTitles []string
	ContentCount  int
}

// EditLookup returns the cached edit of an existing chapter.
type EditLookup func(index int) (string, bool)

// Reconcile merges the server snapshot of a book with the locally cached draft for the given mode.
//
//   - [ModeFull]: exactly one fresh preface chapter.
//   - [ModeChapter]: one chapter per existing index, content hydrated from lookup and then from the local draft.
//   - [ModeAdd]: only local chapters at or beyond the server's chapter count, renumbered from that count.
//
// Local metadata wins over the server's when the local draft belongs to the same book.
func Reconcile(server ServerBook, local Draft, mode Mode, lookup EditLookup) Draft {
	same := local.Slug == server.Slug
	d := Draft{
		Mode: mode,
		Slug: server.Slug,
		Metadata: Metadata{
			Title:         server.Title,
			Summary:       server.Summary,
			Tags:          append([]string(nil), server.Tags...),
			ContentTitles: append([]string(nil), server.ContentTitles...),
		},
	}
	if same {
		d.Metadata = mergeMetadata(d.Metadata, local.Metadata)
	}

	switch mode {
	case ModeFull:
		d.Chapters = []Chapter{newChapter(0, NewPrefacePlaceholder)}

	case ModeChapter:
		d.Chapters = make([]Chapter, 0, server.ContentCount)
		for i := range server.ContentCount {
			c := Chapter{Index: i, OriginalIndex: i, Placeholder: existingPlaceholder(i)}
			if lookup != nil {
				if content, ok := lookup(i); ok {
					c.Content, c.IsEdited = content, true
				}
			}
			if !c.IsEdited && same && local.Mode == ModeChapter {
				if lc, ok := local.Chapter(i); ok {
					c.Content, c.IsEdited = lc.Content, lc.IsEdited
				}
			}
			d.Chapters = append(d.Chapters, c)
		}

	case ModeAdd:
		d.Base = server.ContentCount
		if same && local.Mode == ModeAdd {
			for _, lc := range local.Chapters {
				if lc.OriginalIndex < server.ContentCount {
					continue
				}
				lc.Index = d.Base + len(d.Chapters)
				d.Chapters = append(d.Chapters, lc)
			}
		}
	}
	return d
}

func existingPlaceholder(index int) string {
	if index == 0 {
		return PrefacePlaceholder
	}
	return fmt.Sprintf("Existing content of Chapter %d: Adding new content here will overwrite the current chapter.", index)
}

func mergeMetadata(base, local Metadata) Metadata {
	if local.Title != "" {
		base.Title = local.Title
	}
	if local.Summary != "" {
		base.Summary = local.Summary
	}
	if len(local.Tags) > 0 {
		base.Tags = local.Tags
	}
	if len(local.ContentTitles) > 0 {
		base.ContentTitles = local.ContentTitles
	}
	base.Image = local.Image
	return base
}
