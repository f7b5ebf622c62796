package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/storydesk/internal/repositories"
)

// CookieStore is the subset of the cookie repository the cookie surface needs.
type CookieStore interface {
	Save(ctx context.Context, c repositories.StoredCookie) error
	Delete(ctx context.Context, host, name string) error
	Load(ctx context.Context, host string) ([]repositories.StoredCookie, error)
	Clear(ctx context.Context, host string) error
}

// CookieSurface is an [http.CookieJar] for the backend origin whose cookies are mirrored to a [CookieStore].
//
// The gateway's HTTP client uses it as its jar, so cookies the backend sets are sent back on every request and
// survive restarts. The credential itself is the cookie named [TokenKey].
type CookieSurface struct {
	mu     sync.Mutex
	jar    *cookiejar.Jar
	origin *url.URL
	store  CookieStore
	logger *log.Logger
}

// NewCookieSurface creates a [CookieSurface] for baseURL and hydrates it from store.
func NewCookieSurface(ctx context.Context, baseURL string, store CookieStore, logger *log.Logger) (*CookieSurface, error) {
	origin, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if origin.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}
	origin = &url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: "/"}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if logger == nil {
		logger = log.Default()
	}

	c := &CookieSurface{jar: jar, origin: origin, store: store, logger: logger}

	stored, err := store.Load(ctx, origin.Hostname())
	if err != nil {
		return nil, fmt.Errorf("failed to load cookies: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(stored))
	for _, sc := range stored {
		cookie := &http.Cookie{Name: sc.Name, Value: sc.Value, Path: sc.Path}
		if sc.ExpiresAt != nil {
			cookie.Expires = *sc.ExpiresAt
		}
		cookies = append(cookies, cookie)
	}
	jar.SetCookies(origin, cookies)

	return c, nil
}

func (c *CookieSurface) Name() string { return "cookie" }

// SetCookies implements [http.CookieJar]. Cookies for the backend origin are persisted.
func (c *CookieSurface) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.jar.SetCookies(u, cookies)
	if u.Hostname() != c.origin.Hostname() {
		return
	}
	if err := c.persist(context.Background(), cookies); err != nil {
		c.logger.Warn("failed to persist cookies", "host", u.Hostname(), "error", err)
	}
}

// Cookies implements [http.CookieJar].
func (c *CookieSurface) Cookies(u *url.URL) []*http.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jar.Cookies(u)
}

func (c *CookieSurface) persist(ctx context.Context, cookies []*http.Cookie) error {
	now := time.Now()
	host := c.origin.Hostname()

	var errs []error
	for _, cookie := range cookies {
		expired := cookie.MaxAge < 0 || (!cookie.Expires.IsZero() && !cookie.Expires.After(now))
		if expired {
			if err := c.store.Delete(ctx, host, cookie.Name); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		sc := repositories.StoredCookie{Host: host, Name: cookie.Name, Value: cookie.Value, Path: cookie.Path}
		switch {
		case cookie.MaxAge > 0:
			exp := now.Add(time.Duration(cookie.MaxAge) * time.Second)
			sc.ExpiresAt = &exp
		case !cookie.Expires.IsZero():
			exp := cookie.Expires
			sc.ExpiresAt = &exp
		}
		if err := c.store.Save(ctx, sc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CookieSurface) Set(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cookie := &http.Cookie{Name: TokenKey, Value: token, Path: "/"}
	c.jar.SetCookies(c.origin, []*http.Cookie{cookie})
	return c.persist(ctx, []*http.Cookie{cookie})
}

func (c *CookieSurface) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cookie := range c.jar.Cookies(c.origin) {
		if cookie.Name == TokenKey {
			return cookie.Value, nil
		}
	}
	return "", nil
}

func (c *CookieSurface) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expire([]string{TokenKey})
	return c.store.Delete(ctx, c.origin.Hostname(), TokenKey)
}

// ClearAll expires every cookie held for the backend origin, not just the credential.
func (c *CookieSurface) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	for _, cookie := range c.jar.Cookies(c.origin) {
		names = append(names, cookie.Name)
	}
	c.expire(names)
	return c.store.Clear(ctx, c.origin.Hostname())
}

func (c *CookieSurface) expire(names []string) {
	if len(names) == 0 {
		return
	}
	expired := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		expired = append(expired, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
	c.jar.SetCookies(c.origin, expired)
}
