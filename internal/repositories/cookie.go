package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StoredCookie is a cookie persisted for a single host.
type StoredCookie struct {
	Host      string
	Name      string
	Value     string
	Path      string
	ExpiresAt *time.Time
}

// Expired reports whether the cookie has an expiry at or before now.
func (c StoredCookie) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// CookieRepository persists cookies so the cookie credential surface survives restarts.
type CookieRepository struct {
	db *sql.DB
}

// NewCookieRepository creates a new [CookieRepository] with the given database connection
func NewCookieRepository(db *sql.DB) *CookieRepository {
	return &CookieRepository{db: db}
}

// Save upserts a cookie keyed by host, name and path.
func (r *CookieRepository) Save(ctx context.Context, c StoredCookie) error {
	if c.Path == "" {
		c.Path = "/"
	}

	var expires sql.NullTime
	if c.ExpiresAt != nil {
		expires = sql.NullTime{Time: c.ExpiresAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO cookies (host, name, value, path, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(host, name, path) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, c.Host, c.Name, c.Value, c.Path, expires); err != nil {
		return fmt.Errorf("failed to save cookie %s for %s: %w", c.Name, c.Host, err)
	}
	return nil
}

// Delete removes the named cookie for host on every path.
func (r *CookieRepository) Delete(ctx context.Context, host, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cookies WHERE host = ? AND name = ?`, host, name); err != nil {
		return fmt.Errorf("failed to delete cookie %s for %s: %w", name, host, err)
	}
	return nil
}

// Load returns the unexpired cookies stored for host ordered by name.
func (r *CookieRepository) Load(ctx context.Context, host string) ([]StoredCookie, error) {
	query := `
		SELECT host, name, value, path, expires_at
		FROM cookies
		WHERE host = ?
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, host)
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var cookies []StoredCookie
	for rows.Next() {
		var (
			c       StoredCookie
			expires sql.NullTime
		)
		if err := rows.Scan(&c.Host, &c.Name, &c.Value, &c.Path, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan cookie: %w", err)
		}
		if expires.Valid {
			t := expires.Time
			c.ExpiresAt = &t
		}
		if c.Expired(now) {
			continue
		}
		cookies = append(cookies, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cookies: %w", err)
	}
	return cookies, nil
}

// Clear removes every cookie stored for host.
func (r *CookieRepository) Clear(ctx context.Context, host string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cookies WHERE host = ?`, host); err != nil {
		return fmt.Errorf("failed to clear cookies for %s: %w", host, err)
	}
	return nil
}
