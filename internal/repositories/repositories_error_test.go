package repositories

import (
	"context"
	"testing"
	"time"
)

func TestKVRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			repo := NewKVRepository(setupTestDB(t))

			value, err := repo.Get(ctx, "missing")
			if err != nil {
				t.Fatalf("expected no error for absent key, got %v", err)
			}
			if value != nil {
				t.Errorf("expected nil value, got %q", value)
			}
		})

		t.Run("ClosedDatabase", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewKVRepository(db)
			db.Close()

			if _, err := repo.GetString(ctx, "k"); err == nil {
				t.Fatal("expected error on closed database")
			}
		})
	})

	t.Run("SetString", func(t *testing.T) {
		t.Run("ClosedDatabase", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewKVRepository(db)
			db.Close()

			if err := repo.SetString(ctx, "k", "v"); err == nil {
				t.Fatal("expected error on closed database")
			}
		})
	})

	t.Run("Keys", func(t *testing.T) {
		t.Run("Empty", func(t *testing.T) {
			repo := NewKVRepository(setupTestDB(t))

			keys, err := repo.Keys(ctx, "nothing-")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(keys) != 0 {
				t.Errorf("expected no keys, got %v", keys)
			}
		})

		t.Run("ClosedDatabase", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewKVRepository(db)
			db.Close()

			if _, err := repo.Keys(ctx, ""); err == nil {
				t.Fatal("expected error on closed database")
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("Absent", func(t *testing.T) {
			repo := NewKVRepository(setupTestDB(t))

			if err := repo.Delete(ctx, "missing"); err != nil {
				t.Fatalf("expected deleting an absent key to succeed, got %v", err)
			}
		})
	})
}

func TestCookieRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)
	cookie := StoredCookie{Host: "api.example.com", Name: "authToken", Value: "t", ExpiresAt: &expires}

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewCookieRepository(db)
		db.Close()

		if err := repo.Save(ctx, cookie); err == nil {
			t.Error("expected Save error on closed database")
		}
		if _, err := repo.Load(ctx, cookie.Host); err == nil {
			t.Error("expected Load error on closed database")
		}
		if err := repo.Delete(ctx, cookie.Host, cookie.Name); err == nil {
			t.Error("expected Delete error on closed database")
		}
		if err := repo.Clear(ctx, cookie.Host); err == nil {
			t.Error("expected Clear error on closed database")
		}
	})

	t.Run("Load", func(t *testing.T) {
		t.Run("UnknownHost", func(t *testing.T) {
			repo := NewCookieRepository(setupTestDB(t))
			if err := repo.Save(ctx, cookie); err != nil {
				t.Fatalf("failed to save cookie: %v", err)
			}

			cookies, err := repo.Load(ctx, "other.example.com")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(cookies) != 0 {
				t.Errorf("expected no cookies for another host, got %v", cookies)
			}
		})
	})
}
