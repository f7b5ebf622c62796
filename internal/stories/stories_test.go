package stories

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/storydesk/internal/drafts"
	"github.com/desertthunder/storydesk/internal/gateway"
	"github.com/desertthunder/storydesk/internal/repositories"
	"github.com/desertthunder/storydesk/internal/shared"
	tu "github.com/desertthunder/storydesk/internal/testing"
)

func newService(t *testing.T, handler http.HandlerFunc) (*Service, *repositories.KVRepository, *drafts.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	kv := repositories.NewKVRepository(tu.MustOpenDB(t))
	store := drafts.NewStore(kv, nil, nil)
	svc := NewService(Options{
		API:    gateway.New(gateway.Options{BaseURL: server.URL}),
		KV:     kv,
		Drafts: store,
		Tags:   []string{"Sci-Fi", "Drama", "Short Story"},
	})
	return svc, kv, store
}

func TestReadTime(t *testing.T) {
	tests := []struct {
		minutes []int
		want    string
	}{
		{nil, "0 min read"},
		{[]int{5, 7}, "12 min read"},
		{[]int{30, 30}, "1 hour read"},
		{[]int{45, 30}, "1 hour 15 min read"},
		{[]int{60, 60, 5}, "2 hours 5 min read"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ReadTime(tt.minutes); got != tt.want {
				t.Errorf("ReadTime(%v) = %q, want %q", tt.minutes, got, tt.want)
			}
		})
	}
}

func TestBook(t *testing.T) {
	t.Run("Short Summary", func(t *testing.T) {
		b := Book{Summary: strings.Repeat("é", 300)}
		got := b.ShortSummary()
		if !strings.HasSuffix(got, "...") || len([]rune(got)) != 253 {
			t.Errorf("unexpected truncation: %d runes", len([]rune(got)))
		}
		if (Book{Summary: "short"}).ShortSummary() != "short" {
			t.Error("short summaries must not be truncated")
		}
	})

	t.Run("Rating", func(t *testing.T) {
		r := 4.5
		if got := (Book{AverageRating: &r}).Rating(); got != "4.5" {
			t.Errorf("unexpected rating %s", got)
		}
		if (Book{}).Rating() != "N/A" {
			t.Error("expected N/A without a rating")
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		b := Book{Slug: "dune", Title: "Dune", ContentCount: 4}
		snap := b.Snapshot()
		if snap.Slug != "dune" || snap.ContentCount != 4 || snap.Title != "Dune" {
			t.Errorf("unexpected snapshot %+v", snap)
		}
	})
}

func TestListAuthorStories(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		svc, _, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.EscapedPath(); got != "/story/getAllStories/Sci-Fi+Drama+Short%20Story" {
				t.Errorf("unexpected path %s", got)
			}
			q := r.URL.Query()
			if q.Get("author") != "ada" || q.Get("page") != "2" || q.Get("limit") != "10" {
				t.Errorf("unexpected query %v", q)
			}
			tu.WriteJSON(t, w, http.StatusOK, map[string]any{
				"data": []map[string]any{
					{"_id": "1", "slug": "dune", "title": "Dune", "readTime": []int{10, 20}, "contentCount": 3, "averageRating": 4.5},
					{"_id": "2", "slug": "emma", "title": "Emma"},
				},
				"pages": 3,
			})
		})

		page, err := svc.ListAuthorStories(ctx, "ada", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Pages != 3 || page.Page != 2 || len(page.Books) != 2 {
			t.Errorf("unexpected page %+v", page)
		}
		if page.Books[0].ReadTimeLabel() != "30 min read" {
			t.Errorf("unexpected read time %s", page.Books[0].ReadTimeLabel())
		}

		cached := svc.CachedAuthorStories(ctx)
		if len(cached) != 2 || cached[0].Slug != "dune" {
			t.Errorf("expected listing to be cached, got %+v", cached)
		}

		book, err := svc.FindCached(ctx, "dune")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if book.ContentCount != 3 {
			t.Errorf("expected content count 3, got %d", book.ContentCount)
		}
	})

	t.Run("Missing Author", func(t *testing.T) {
		svc, _, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		if _, err := svc.ListAuthorStories(ctx, "", 1); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Failure Keeps Cache", func(t *testing.T) {
		svc, kv, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		if err := kv.Set(ctx, CacheKey, []byte(`[{"slug":"old"}]`)); err != nil {
			t.Fatalf("failed to seed cache: %v", err)
		}

		if _, err := svc.ListAuthorStories(ctx, "ada", 1); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if cached := svc.CachedAuthorStories(ctx); len(cached) != 1 || cached[0].Slug != "old" {
			t.Errorf("expected previous cache, got %+v", cached)
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		svc, _, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {})
		if _, err := svc.FindCached(ctx, "nope"); !errors.Is(err, shared.ErrStoryNotFound) {
			t.Errorf("expected ErrStoryNotFound, got %v", err)
		}
	})

	t.Run("Corrupt Cache", func(t *testing.T) {
		svc, kv, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {})
		if err := kv.Set(ctx, CacheKey, []byte("nope")); err != nil {
			t.Fatalf("failed to seed cache: %v", err)
		}
		if svc.CachedAuthorStories(ctx) != nil {
			t.Error("expected corrupt cache to be ignored")
		}
	})
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cover.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}

func TestAddStory(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("a", drafts.MinCreationChars)

	t.Run("Success Clears Draft", func(t *testing.T) {
		svc, _, store := newService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != PathAddStory {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("failed to parse form: %v", err)
				return
			}
			if r.FormValue("title") != "Dune" || r.FormValue("tags") != `["Sci-Fi"]` {
				t.Errorf("unexpected fields %v", r.MultipartForm.Value)
			}
			if r.FormValue("partial") != "" {
				t.Error("creation must not send partial")
			}
			file, header, err := r.FormFile("image")
			if err != nil {
				t.Errorf("expected image part: %v", err)
				return
			}
			defer file.Close()
			data, _ := io.ReadAll(file)
			if header.Filename != "cover.png" || string(data) != "png-bytes" {
				t.Errorf("unexpected image %s %q", header.Filename, data)
			}
			w.WriteHeader(http.StatusCreated)
		})

		e := store.OpenCreate(ctx)
		for _, step := range []error{
			e.SetTitle(ctx, "Dune"),
			e.SetSummary(ctx, "Spice"),
			e.AddTag(ctx, "Sci-Fi"),
			e.SetImage(ctx, writeImage(t)),
			e.EditChapter(ctx, 0, long),
		} {
			if step != nil {
				t.Fatalf("failed to prepare draft: %v", step)
			}
		}

		result, err := svc.AddStory(ctx, e.Draft)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Success || result.StatusCode != http.StatusCreated {
			t.Errorf("unexpected result %+v", result)
		}
		if store.HasDraft(ctx, drafts.CreateScope) {
			t.Error("expected draft to be cleared after upload")
		}
	})

	t.Run("Validation Sends Nothing", func(t *testing.T) {
		svc, _, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		_, err := svc.AddStory(ctx, drafts.NewDraft())
		var verr *drafts.ValidationError
		if !errors.As(err, &verr) || verr.Message != "Image is required." {
			t.Errorf("expected image validation error, got %v", err)
		}
	})

	t.Run("Rejected Keeps Draft", func(t *testing.T) {
		svc, _, store := newService(t, func(w http.ResponseWriter, r *http.Request) {
			tu.WriteJSON(t, w, http.StatusBadRequest, map[string]string{"errorMessage": "Title taken"})
		})

		d := drafts.Draft{
			Metadata: drafts.Metadata{Title: "Dune", Summary: "S", Tags: []string{"Drama"}, Image: writeImage(t)},
			Chapters: []drafts.Chapter{{Content: long}},
		}
		if err := store.SaveDraft(ctx, drafts.CreateScope, d); err != nil {
			t.Fatalf("failed to save draft: %v", err)
		}

		result, err := svc.AddStory(ctx, d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Success || result.Message != "Title taken" {
			t.Errorf("unexpected result %+v", result)
		}
		if !store.HasDraft(ctx, drafts.CreateScope) {
			t.Error("draft must survive a rejected upload")
		}
	})

	t.Run("Missing Image File", func(t *testing.T) {
		svc, _, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		d := drafts.Draft{
			Metadata: drafts.Metadata{Summary: "S", Tags: []string{"Drama"}, Image: filepath.Join(t.TempDir(), "missing.png")},
			Chapters: []drafts.Chapter{{Content: long}},
		}
		if _, err := svc.AddStory(ctx, d); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestEditStory(t *testing.T) {
	ctx := context.Background()
	words := strings.TrimSpace(strings.Repeat("word ", 120))

	t.Run("Partial Edit", func(t *testing.T) {
		svc, _, store := newService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPatch || r.URL.Path != "/story/dune/edit" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("failed to parse form: %v", err)
				return
			}
			if r.FormValue("partial") != "true" || r.FormValue("chapter") != "[1]" {
				t.Errorf("unexpected fields %v", r.MultipartForm.Value)
			}
			if _, _, err := r.FormFile("image"); err == nil {
				t.Error("no image part expected")
			}
			w.WriteHeader(http.StatusOK)
		})

		server := drafts.ServerBook{Slug: "dune", Title: "Dune", Summary: "Spice", Tags: []string{"Sci-Fi"}, ContentCount: 2}
		e, err := store.OpenEdit(ctx, server, drafts.ModeChapter)
		if err != nil {
			t.Fatalf("failed to open draft: %v", err)
		}
		if err := e.EditChapter(ctx, 1, words); err != nil {
			t.Fatalf("failed to edit chapter: %v", err)
		}

		result, err := svc.EditStory(ctx, "dune", e.Draft)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Success {
			t.Errorf("unexpected result %+v", result)
		}
		if _, ok := store.LoadChapterEdit(ctx, "dune", 1); ok {
			t.Error("expected chapter edits to be cleared")
		}
		if store.HasDraft(ctx, drafts.BookScope("dune")) {
			t.Error("expected book draft to be cleared")
		}
	})

	t.Run("Rejected Uses Error Field", func(t *testing.T) {
		svc, _, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
			tu.WriteJSON(t, w, http.StatusForbidden, map[string]string{"error": "Not your story"})
		})
		d := drafts.Draft{Mode: drafts.ModeFull, Slug: "dune", Metadata: drafts.Metadata{Summary: "S", Tags: []string{"Drama"}}}

		result, err := svc.EditStory(ctx, "dune", d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Success || result.Message != "Not your story" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("Transport Error Is Returned", func(t *testing.T) {
		svc := NewService(Options{API: gateway.New(gateway.Options{BaseURL: "http://127.0.0.1:1"})})
		d := drafts.Draft{Mode: drafts.ModeFull, Metadata: drafts.Metadata{Summary: "S", Tags: []string{"Drama"}}}
		if _, err := svc.EditStory(ctx, "dune", d); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Requires Edit Mode", func(t *testing.T) {
		svc := NewService(Options{})
		if _, err := svc.EditStory(ctx, "dune", drafts.NewDraft()); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
