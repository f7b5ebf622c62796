// Package guard gates protected views behind a single verification call per mount.
package guard

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/storydesk/internal/gateway"
	"github.com/desertthunder/storydesk/internal/session"
	"github.com/desertthunder/storydesk/internal/shared"
)

// ReasonSessionExpired accompanies a redirect caused by a 401.
const ReasonSessionExpired = "Session expired. Please log in again."

// View is what the host should render.
type View int

const (
	ViewBlank View = iota
	ViewProtected
	ViewLogin
)

func (v View) String() string {
	switch v {
	case ViewBlank:
		return "blank"
	case ViewProtected:
		return "protected"
	case ViewLogin:
		return "login"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a guard check.
//
// Redirect asks the host to navigate to its login route with Reason; a login view without a redirect is rendered
// in place of the protected view.
type Decision struct {
	View     View
	Redirect bool
	Reason   string
	User     session.User
}

// Session is the part of [session.Manager] the guard drives.
type Session interface {
	WhoAmI(ctx context.Context) (session.User, error)
	SetActiveUser(user session.User)
	MarkUnauthenticated()
}

// Guard verifies the session before a protected view is shown.
type Guard struct {
	mu       sync.Mutex
	current  Decision
	session  Session
	logger   *log.Logger
	mounting bool
}

// New creates a [Guard]. Until the first check completes its decision is [ViewBlank].
func New(s Session, logger *log.Logger) *Guard {
	if logger == nil {
		logger = log.Default()
	}
	return &Guard{session: s, logger: logger.With("component", "guard")}
}

// Current returns the latest decision. It is [ViewBlank] while a check is in flight.
func (g *Guard) Current() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Check performs one verification call and records the resulting decision.
//
// A check started while another is in flight returns [shared.ErrOperationInFlight] without a request.
func (g *Guard) Check(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	if g.mounting {
		g.mu.Unlock()
		return Decision{}, shared.ErrOperationInFlight
	}
	g.mounting = true
	g.current = Decision{View: ViewBlank}
	g.mu.Unlock()

	d := g.decide(ctx)

	g.mu.Lock()
	g.current = d
	g.mounting = false
	g.mu.Unlock()
	return d, nil
}

func (g *Guard) decide(ctx context.Context) Decision {
	user, err := g.session.WhoAmI(ctx)
	if err == nil {
		g.session.SetActiveUser(user)
		return Decision{View: ViewProtected, User: user}
	}

	if gerr, ok := gateway.AsError(err); ok && gerr.Kind == gateway.KindUnauthorized {
		g.logger.Info("session expired, redirecting to login")
		g.session.MarkUnauthenticated()
		return Decision{View: ViewLogin, Redirect: true, Reason: ReasonSessionExpired}
	}

	if errors.Is(err, context.Canceled) {
		g.logger.Debug("guard check cancelled")
	} else {
		g.logger.Warn("guard check failed", "error", err)
	}
	return Decision{View: ViewLogin}
}
