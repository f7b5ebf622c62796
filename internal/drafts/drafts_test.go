package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/storydesk/internal/repositories"
	"github.com/desertthunder/storydesk/internal/shared"
	tu "github.com/desertthunder/storydesk/internal/testing"
)

func setupStore(t *testing.T, allowed ...string) (*Store, *repositories.KVRepository) {
	t.Helper()
	kv := repositories.NewKVRepository(tu.MustOpenDB(t))
	return NewStore(kv, allowed, nil), kv
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestLoadSaveDraft(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing Draft Is Empty", func(t *testing.T) {
		store, _ := setupStore(t)
		d := store.LoadDraft(ctx, CreateScope)
		require.Len(t, d.Chapters, 1)
		assert.Equal(t, PrefacePlaceholder, d.Chapters[0].Placeholder)
		assert.Equal(t, 0, d.Chapters[0].Index)
	})

	t.Run("Round Trip", func(t *testing.T) {
		store, _ := setupStore(t)
		for n := 1; n <= 50; n++ {
			d := NewDraft()
			d.Metadata = Metadata{Title: "T", Summary: "S", Tags: []string{"Drama"}, ContentTitles: []string{"One"}}
			for i := 1; i < n; i++ {
				_, err := d.AddChapter()
				require.NoError(t, err)
			}
			for i := range n {
				require.NoError(t, d.EditChapter(i, fmt.Sprintf("chapter %d of %d", i, n)))
			}

			require.NoError(t, store.SaveDraft(ctx, CreateScope, d))
			loaded := store.LoadDraft(ctx, CreateScope)
			require.Equal(t, d, loaded, "round trip with %d chapters", n)
		}
	})

	t.Run("Corrupt Draft Is Discarded", func(t *testing.T) {
		store, kv := setupStore(t)
		require.NoError(t, kv.Set(ctx, CreateScope, []byte("{not json")))

		d := store.LoadDraft(ctx, CreateScope)
		assert.Equal(t, NewDraft(), d)

		raw, err := kv.Get(ctx, CreateScope)
		require.NoError(t, err)
		assert.Nil(t, raw, "corrupt entry should be deleted")
	})

	t.Run("Clear Is Idempotent", func(t *testing.T) {
		store, _ := setupStore(t)
		require.NoError(t, store.ClearDraft(ctx, CreateScope))
		require.NoError(t, store.ClearDraft(ctx, CreateScope))
	})

	t.Run("Clear Book Scope Removes Chapter Edits", func(t *testing.T) {
		store, kv := setupStore(t)
		require.NoError(t, store.SaveDraft(ctx, BookScope("dune"), Draft{Mode: ModeChapter, Slug: "dune"}))
		require.NoError(t, store.SaveChapterEdit(ctx, "dune", 0, "a"))
		require.NoError(t, store.SaveChapterEdit(ctx, "dune", 12, "b"))
		require.NoError(t, store.SaveChapterEdit(ctx, "dune-messiah", 0, "c"))

		require.NoError(t, store.ClearDraft(ctx, BookScope("dune")))

		keys, err := kv.Keys(ctx, "EditedContent-")
		require.NoError(t, err)
		assert.Equal(t, []string{"EditedContent-dune-messiah-0"}, keys)
		assert.False(t, store.HasDraft(ctx, BookScope("dune")))
	})
}

func TestChapterOperations(t *testing.T) {
	t.Run("Add Uses Next Index", func(t *testing.T) {
		d := NewDraft()
		c, err := d.AddChapter()
		require.NoError(t, err)
		assert.Equal(t, 1, c.Index)
		assert.Equal(t, 1, c.OriginalIndex)
		assert.Equal(t, "Write content for Chapter 1 here...", c.Placeholder)
		assert.True(t, c.IsEdited)
	})

	t.Run("Delete Renumbers", func(t *testing.T) {
		d := NewDraft()
		for range 3 {
			_, err := d.AddChapter()
			require.NoError(t, err)
		}
		require.NoError(t, d.DeleteChapter(1))

		require.Len(t, d.Chapters, 3)
		for i, c := range d.Chapters {
			assert.Equal(t, i, c.Index)
		}
		assert.Equal(t, []int{0, 2, 3}, []int{d.Chapters[0].OriginalIndex, d.Chapters[1].OriginalIndex, d.Chapters[2].OriginalIndex})
	})

	t.Run("Add After Delete Keeps Original Indices Unique", func(t *testing.T) {
		d := NewDraft()
		for range 2 {
			_, err := d.AddChapter()
			require.NoError(t, err)
		}
		require.NoError(t, d.DeleteChapter(0))

		c, err := d.AddChapter()
		require.NoError(t, err)
		assert.Equal(t, 2, c.Index)
		assert.Equal(t, 3, c.OriginalIndex)
	})

	t.Run("Delete Unknown", func(t *testing.T) {
		d := NewDraft()
		assert.ErrorIs(t, d.DeleteChapter(7), shared.ErrInvalidArgument)
	})

	t.Run("Chapter Mode Cannot Add", func(t *testing.T) {
		d := Draft{Mode: ModeChapter}
		_, err := d.AddChapter()
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("Chapter Mode Cannot Delete", func(t *testing.T) {
		d := Draft{Mode: ModeChapter, Chapters: []Chapter{{Index: 0}, {Index: 1, OriginalIndex: 1}}}
		assert.ErrorIs(t, d.DeleteChapter(0), shared.ErrInvalidInput)
		assert.Len(t, d.Chapters, 2)
	})

	t.Run("Edit Marks Edited", func(t *testing.T) {
		d := Draft{Mode: ModeChapter, Chapters: []Chapter{{Index: 0}}}
		require.NoError(t, d.EditChapter(0, "new"))
		assert.True(t, d.Chapters[0].IsEdited)
		assert.Equal(t, "new", d.Chapters[0].Content)
	})
}

func TestTags(t *testing.T) {
	t.Run("Trimmed Unique Max Three", func(t *testing.T) {
		d := NewDraft()
		require.NoError(t, d.AddTag(" Drama ", nil))
		require.NoError(t, d.AddTag("Drama", nil))
		require.NoError(t, d.AddTag("Horror", nil))
		require.NoError(t, d.AddTag("Romance", nil))
		assert.Equal(t, []string{"Drama", "Horror", "Romance"}, d.Metadata.Tags)

		var verr *ValidationError
		require.ErrorAs(t, d.AddTag("Poetry", nil), &verr)
		assert.Contains(t, verr.Message, "A maximum of three tags is allowed")

		d.RemoveTag("Horror")
		assert.Equal(t, []string{"Drama", "Romance"}, d.Metadata.Tags)
	})

	t.Run("Allowed Vocabulary", func(t *testing.T) {
		d := NewDraft()
		allowed := []string{"Drama", "Sci-Fi"}
		require.NoError(t, d.AddTag("sci-fi", allowed))
		assert.Equal(t, []string{"Sci-Fi"}, d.Metadata.Tags)
		assert.ErrorIs(t, d.AddTag("Cooking", allowed), shared.ErrInvalidArgument)
	})

	t.Run("Content Titles", func(t *testing.T) {
		d := NewDraft()
		require.NoError(t, d.AddContentTitle(" Prologue "))
		require.NoError(t, d.AddContentTitle("Prologue"))
		assert.Equal(t, []string{"Prologue"}, d.Metadata.ContentTitles)
		assert.Error(t, d.AddContentTitle("  "))
		d.RemoveContentTitle("Prologue")
		assert.Empty(t, d.Metadata.ContentTitles)
	})
}

func TestReconcile(t *testing.T) {
	server := ServerBook{
		Slug:          "dune",
		Title:         "Dune",
		Summary:       "Spice",
		Tags:          []string{"Sci-Fi"},
		ContentTitles: []string{"Preface", "One", "Two"},
		ContentCount:  3,
	}

	t.Run("Full", func(t *testing.T) {
		local := Draft{Mode: ModeFull, Slug: "dune", Chapters: []Chapter{{Index: 0}, {Index: 1}}}
		d := Reconcile(server, local, ModeFull, nil)

		require.Len(t, d.Chapters, 1)
		assert.Equal(t, NewPrefacePlaceholder, d.Chapters[0].Placeholder)
		assert.True(t, d.Chapters[0].IsEdited)
		assert.Empty(t, d.Chapters[0].Content)
		assert.Equal(t, "Dune", d.Metadata.Title)
	})

	t.Run("Chapter", func(t *testing.T) {
		lookup := func(i int) (string, bool) {
			if i == 1 {
				return "cached", true
			}
			return "", false
		}
		d := Reconcile(server, Draft{}, ModeChapter, lookup)

		require.Len(t, d.Chapters, 3)
		for i, c := range d.Chapters {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, i, c.OriginalIndex)
			assert.Less(t, c.OriginalIndex, server.ContentCount)
		}
		assert.Equal(t, PrefacePlaceholder, d.Chapters[0].Placeholder)
		assert.Contains(t, d.Chapters[2].Placeholder, "Existing content of Chapter 2")
		assert.False(t, d.Chapters[0].IsEdited)
		assert.True(t, d.Chapters[1].IsEdited)
		assert.Equal(t, "cached", d.Chapters[1].Content)
	})

	t.Run("Add", func(t *testing.T) {
		local := Draft{Mode: ModeAdd, Slug: "dune", Base: 3, Chapters: []Chapter{
			{Index: 3, OriginalIndex: 1, Content: "stale"},
			{Index: 4, OriginalIndex: 4, Content: "four", IsEdited: true},
			{Index: 5, OriginalIndex: 5, Content: "five", IsEdited: true},
		}}
		d := Reconcile(server, local, ModeAdd, nil)

		require.Len(t, d.Chapters, 2)
		assert.Equal(t, 3, d.Base)
		for i, c := range d.Chapters {
			assert.Equal(t, server.ContentCount+i, c.Index)
			assert.GreaterOrEqual(t, c.OriginalIndex, server.ContentCount)
		}

		c, err := d.AddChapter()
		require.NoError(t, err)
		assert.Equal(t, 5, c.Index)
	})

	t.Run("Local Metadata Wins For Same Book", func(t *testing.T) {
		local := Draft{Slug: "dune", Metadata: Metadata{Summary: "Edited", Image: "cover.png"}}
		d := Reconcile(server, local, ModeFull, nil)
		assert.Equal(t, "Edited", d.Metadata.Summary)
		assert.Equal(t, "Dune", d.Metadata.Title)
		assert.Equal(t, "cover.png", d.Metadata.Image)

		other := Reconcile(server, Draft{Slug: "emma", Metadata: Metadata{Summary: "Other"}}, ModeFull, nil)
		assert.Equal(t, "Spice", other.Metadata.Summary)
	})
}

func TestOpenEdit(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)
	server := ServerBook{Slug: "dune", Title: "Dune", Summary: "Spice", Tags: []string{"Sci-Fi"}, ContentCount: 2}

	e, err := store.OpenEdit(ctx, server, ModeChapter)
	require.NoError(t, err)
	require.NoError(t, e.EditChapter(ctx, 1, words(120)))

	content, ok := store.LoadChapterEdit(ctx, "dune", 1)
	require.True(t, ok)
	assert.Equal(t, words(120), content)

	reopened, err := store.OpenEdit(ctx, server, ModeChapter)
	require.NoError(t, err)
	assert.True(t, reopened.Draft.Chapters[1].IsEdited)
	assert.Equal(t, words(120), reopened.Draft.Chapters[1].Content)

	require.NoError(t, reopened.Clear(ctx))
	_, ok = store.LoadChapterEdit(ctx, "dune", 1)
	assert.False(t, ok)
}

func TestChapterEditCacheKey(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)
	server := ServerBook{Slug: "dune", Title: "Dune", Summary: "Spice", Tags: []string{"Sci-Fi"}, ContentCount: 3}

	t.Run("Chapter Mode Keeps Server Indices", func(t *testing.T) {
		e, err := store.OpenEdit(ctx, server, ModeChapter)
		require.NoError(t, err)
		require.ErrorIs(t, e.DeleteChapter(ctx, 1), shared.ErrInvalidInput)
		require.NoError(t, e.EditChapter(ctx, 2, "new text for server chapter two"))

		reopened, err := store.OpenEdit(ctx, server, ModeChapter)
		require.NoError(t, err)
		require.Len(t, reopened.Draft.Chapters, 3)
		assert.False(t, reopened.Draft.Chapters[1].IsEdited)
		assert.Empty(t, reopened.Draft.Chapters[1].Content)
		assert.Equal(t, 2, reopened.Draft.Chapters[2].OriginalIndex)
		assert.Equal(t, "new text for server chapter two", reopened.Draft.Chapters[2].Content)
		require.NoError(t, reopened.Clear(ctx))
	})

	t.Run("Renumbered Chapter Uses Original Index", func(t *testing.T) {
		e, err := store.OpenEdit(ctx, server, ModeAdd)
		require.NoError(t, err)
		for range 3 {
			_, err := e.AddChapter(ctx)
			require.NoError(t, err)
		}
		first := e.Draft.Chapters[0].Index
		require.NoError(t, e.DeleteChapter(ctx, first))
		require.NoError(t, e.EditChapter(ctx, first, "moved up"))

		orig := e.Draft.Chapters[0].OriginalIndex
		require.NotEqual(t, first, orig)
		content, ok := store.LoadChapterEdit(ctx, "dune", orig)
		require.True(t, ok)
		assert.Equal(t, "moved up", content)
		_, ok = store.LoadChapterEdit(ctx, "dune", first)
		assert.False(t, ok)
	})
}

func TestValidEdits(t *testing.T) {
	d := Draft{Mode: ModeChapter, Chapters: []Chapter{
		{Index: 0, OriginalIndex: 0, Content: words(80), IsEdited: true},
		{Index: 1, OriginalIndex: 1, Content: words(120), IsEdited: true},
		{Index: 2, OriginalIndex: 2, Content: words(200)},
	}}

	edits := d.ValidEdits()
	require.Len(t, edits, 1)
	assert.Equal(t, 1, edits[0].OriginalIndex)
	assert.Equal(t, 100, WordCount(words(100)))
	assert.Equal(t, 0, WordCount("   "))
}

func TestValidate(t *testing.T) {
	valid := func() Draft {
		d := NewDraft()
		d.Metadata = Metadata{Title: "T", Summary: "S", Tags: []string{"Drama"}, Image: "cover.png"}
		d.Chapters[0].Content = strings.Repeat("a", MinCreationChars)
		return d
	}

	t.Run("Valid Creation", func(t *testing.T) {
		require.NoError(t, Validate(valid()))
	})

	tests := []struct {
		name    string
		mutate  func(*Draft)
		message string
	}{
		{"image first", func(d *Draft) { d.Metadata.Image = ""; d.Metadata.Summary = "" }, "Image is required."},
		{"summary", func(d *Draft) { d.Metadata.Summary = "" }, "Summary is required."},
		{"no tags", func(d *Draft) { d.Metadata.Tags = nil }, "At least one tag is required."},
		{"too many tags", func(d *Draft) { d.Metadata.Tags = []string{"a", "b", "c", "d"} }, "A maximum of three tags is allowed."},
		{"duplicate tags", func(d *Draft) { d.Metadata.Tags = []string{"a", "a"} }, "Tags must be unique."},
		{"short chapter", func(d *Draft) { d.Chapters[0].Content = strings.Repeat("a", MinCreationChars-1) }, "Each content element must have at least 1500 characters."},
		{"short later chapter", func(d *Draft) { d.Chapters = append(d.Chapters, Chapter{Index: 1, Content: "short"}) }, "Each content element must have at least 1500 characters."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(&d)
			err := Validate(d)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.message, verr.Message)
			assert.True(t, errors.Is(err, shared.ErrInvalidInput))
		})
	}

	t.Run("Edits Skip Creation Checks", func(t *testing.T) {
		d := Draft{Mode: ModeChapter, Metadata: Metadata{Summary: "S", Tags: []string{"Drama"}}, Chapters: []Chapter{{Content: "x"}}}
		require.NoError(t, Validate(d))
	})
}

func TestPrepare(t *testing.T) {
	t.Run("Partial Edit", func(t *testing.T) {
		d := Draft{Mode: ModeChapter, Slug: "dune", Metadata: Metadata{Title: "Dune", Summary: "S", Tags: []string{"Sci-Fi"}}, Chapters: []Chapter{
			{Index: 0, OriginalIndex: 0, Content: words(80), IsEdited: true},
			{Index: 1, OriginalIndex: 1},
			{Index: 2, OriginalIndex: 2, Content: words(120), IsEdited: true},
		}}

		sub, err := Prepare(d)
		require.NoError(t, err)
		assert.True(t, sub.Partial)
		assert.Equal(t, []int{2}, sub.Chapters)
		assert.Equal(t, []string{words(120)}, sub.Content)
		assert.Equal(t, []string{}, sub.ContentTitles)

		form, err := sub.Form(nil, "", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"title", "contentTitles", "summary", "tags", "content", "partial", "chapter"}, form.Fields())
		v, _ := form.Value("chapter")
		assert.Equal(t, "[2]", v)
		v, _ = form.Value("partial")
		assert.Equal(t, "true", v)
	})

	t.Run("Full Edit", func(t *testing.T) {
		d := Draft{Mode: ModeFull, Metadata: Metadata{Summary: "S", Tags: []string{"Drama"}}, Chapters: []Chapter{
			{Index: 0, Content: words(150), IsEdited: true},
		}}
		sub, err := Prepare(d)
		require.NoError(t, err)
		assert.False(t, sub.Partial)

		form, err := sub.Form(strings.NewReader("img"), "cover.png", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"title", "contentTitles", "summary", "tags", "image", "content", "partial"}, form.Fields())
	})

	t.Run("Creation Sends Every Chapter", func(t *testing.T) {
		long := strings.Repeat("a", MinCreationChars)
		d := Draft{Metadata: Metadata{Title: "T", Summary: "S", Tags: []string{"Drama"}, Image: "c.png"}, Chapters: []Chapter{
			{Index: 0, Content: long}, {Index: 1, Content: long},
		}}
		sub, err := Prepare(d)
		require.NoError(t, err)
		assert.Len(t, sub.Content, 2)

		form, err := sub.Form(strings.NewReader("img"), "c.png", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"title", "contentTitles", "summary", "tags", "image", "content"}, form.Fields())
		tags, _ := form.Value("tags")
		assert.JSONEq(t, `["Drama"]`, tags)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := Prepare(Draft{Mode: ModeAdd})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Chapter ")
	require.NoError(t, err)
	assert.Equal(t, ModeChapter, m)

	_, err = ParseMode("create")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}
