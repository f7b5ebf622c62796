// Package credentials persists the bearer token across two surfaces: the durable key/value store and a
// cookie held in a persisted [http.CookieJar].
//
// A [Store] composes the surfaces: writes go to every surface, reads return the first match (durable first),
// and clears wipe every surface regardless of what is present.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
)

// TokenKey is the name the credential is stored under on every surface.
const TokenKey = "authToken"

// Surface is one place a credential can live.
type Surface interface {
	Name() string
	Set(ctx context.Context, token string) error
	// Get returns "" when no credential is stored.
	Get(ctx context.Context) (string, error)
	// Clear is idempotent.
	Clear(ctx context.Context) error
}

// Store composes credential surfaces with a first-match-wins read strategy.
type Store struct {
	mu       sync.Mutex
	surfaces []Surface
	logger   *log.Logger
	now      func() time.Time
}

// NewStore creates a [Store] reading surfaces in the given order.
func NewStore(logger *log.Logger, surfaces ...Surface) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{surfaces: surfaces, logger: logger, now: time.Now}
}

// Set writes token to every surface.
func (s *Store) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, surface := range s.surfaces {
		if err := surface.Set(ctx, token); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", surface.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Get returns the first credential found, checking surfaces in order.
//
// A JWT whose exp claim has passed is treated as absent and every surface is cleared. Tokens that are not JWTs
// are returned unchanged. A surface that fails to read is skipped; the error is only returned when no surface
// produced a credential.
func (s *Store) Get(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, surface := range s.surfaces {
		token, err := surface.Get(ctx)
		if err != nil {
			s.logger.Warn("credential surface read failed", "surface", surface.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", surface.Name(), err))
			continue
		}
		if token == "" {
			continue
		}

		if exp, ok := ExpiresAt(token); ok && !exp.After(s.now()) {
			s.logger.Info("stored credential expired, clearing", "surface", surface.Name(), "expired_at", exp)
			if err := s.clearLocked(ctx); err != nil {
				s.logger.Error("failed to clear expired credential", "error", err)
			}
			return "", nil
		}
		return token, nil
	}

	if err := errors.Join(errs...); err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return "", nil
}

// Clear removes the credential from every surface. Clearing an absent credential is not an error.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	var errs []error
	for _, surface := range s.surfaces {
		if err := surface.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", surface.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Present reports whether any surface holds a credential.
func (s *Store) Present(ctx context.Context) bool {
	token, err := s.Get(ctx)
	return err == nil && token != ""
}

// ExpiresAt reads the exp claim of token without verifying its signature.
//
// ok is false for opaque tokens and JWTs without an exp claim.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
