// Package session owns the authentication lifecycle: login, logout, passive verification and the active user.
//
// A [Manager] is constructed once and passed to everything that needs the session. Its state moves between
// [StateVerifying], [StateAuthenticated] and [StateUnauthenticated]. The manager's lock is never held across a
// network call; a login attempted while another auth operation is in flight is rejected with
// [shared.ErrOperationInFlight].
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/storydesk/internal/device"
	"github.com/desertthunder/storydesk/internal/events"
	"github.com/desertthunder/storydesk/internal/gateway"
	"github.com/desertthunder/storydesk/internal/shared"
)

// Backend paths used by the session.
const (
	PathLogin              = "/user/login"
	PathWhoAmI             = "/user/private"
	PathUnusualSignIn      = "/user/unUsualSignIn"
	PathResendVerification = "/user/resendVerificationToken"
)

// IdentityKey is the durable store key holding the last identity used to log in.
const IdentityKey = "userIdentity"

// State is the session state.
type State int

const (
	StateVerifying State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// User is the active user as returned by the backend.
type User struct {
	ID       string `json:"_id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	Photo    string `json:"photo"`
}

// IsZero reports whether u is the empty user.
func (u User) IsZero() bool {
	return u == User{}
}

// API is the subset of [gateway.Gateway] the session uses.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*gateway.Response, error)
	PostJSON(ctx context.Context, path string, payload any) (*gateway.Response, error)
	PatchJSON(ctx context.Context, path string, payload any) (*gateway.Response, error)
}

// CredentialStore is the credential store as seen by the session.
type CredentialStore interface {
	Set(ctx context.Context, token string) error
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// CookieClearer wipes every cookie held for the backend, not just the credential.
type CookieClearer interface {
	ClearAll(ctx context.Context) error
}

// KeyValueStore persists the last identity.
type KeyValueStore interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
}

// DeviceCollector gathers device context for login payloads.
type DeviceCollector interface {
	Collect(ctx context.Context) device.Context
}

// Options configures a [Manager].
type Options struct {
	API         API
	Credentials CredentialStore
	Cookies     CookieClearer
	KV          KeyValueStore
	Device      DeviceCollector
	Bus         *events.Bus
	AdminRole   string
	Logger      *log.Logger
}

// Manager orchestrates login, logout and passive verification.
type Manager struct {
	mu       sync.Mutex
	state    State
	user     User
	inFlight int

	api       API
	creds     CredentialStore
	cookies   CookieClearer
	kv        KeyValueStore
	device    DeviceCollector
	bus       *events.Bus
	adminRole string
	logger    *log.Logger

	unsubscribe func()
}

// NewManager creates a [Manager] in [StateVerifying] and subscribes it to the bus's unauthorized events.
func NewManager(opts Options) (*Manager, error) {
	if opts.API == nil || opts.Credentials == nil {
		return nil, fmt.Errorf("%w: session requires an API and a credential store", shared.ErrMissingConfig)
	}
	if opts.AdminRole == "" {
		opts.AdminRole = "admin"
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	m := &Manager{
		state:     StateVerifying,
		api:       opts.API,
		creds:     opts.Credentials,
		cookies:   opts.Cookies,
		kv:        opts.KV,
		device:    opts.Device,
		bus:       opts.Bus,
		adminRole: opts.AdminRole,
		logger:    opts.Logger.With("component", "session"),
	}

	if m.bus != nil {
		unsubscribe, err := m.bus.OnUnauthorized(m.onUnauthorized)
		if err != nil {
			return nil, err
		}
		m.unsubscribe = unsubscribe
	}
	return m, nil
}

// Close detaches the manager from the event bus.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveUser returns the active user, or the zero [User] when unauthenticated.
func (m *Manager) ActiveUser() User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// IsLoading reports whether an auth operation is in flight.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight > 0
}

// AdminRole returns the role a user needs to use this client.
func (m *Manager) AdminRole() string {
	return m.adminRole
}

// begin marks an operation in flight. When exclusive, it fails if anything else is in flight.
func (m *Manager) begin(exclusive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exclusive && m.inFlight > 0 {
		return shared.ErrOperationInFlight
	}
	m.inFlight++
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}

func (m *Manager) transition(state State, user User) {
	m.mu.Lock()
	changed := m.state != state || m.user != user
	m.state = state
	m.user = user
	m.mu.Unlock()

	if changed && m.bus != nil {
		m.bus.PublishSessionChanged(events.SessionChanged{State: state.String(), Username: user.Username, Role: user.Role})
	}
}

// SetActiveUser marks the session authenticated as user.
func (m *Manager) SetActiveUser(user User) {
	m.transition(StateAuthenticated, user)
}

// MarkUnauthenticated resets the active user without touching stored credentials.
func (m *Manager) MarkUnauthenticated() {
	m.transition(StateUnauthenticated, User{})
}

func (m *Manager) onUnauthorized(e events.Unauthorized) {
	m.logger.Info("session invalidated by unauthorized response", "method", e.Method, "path", e.Path)
	m.MarkUnauthenticated()
}

// Logout clears the credential from every surface, clears every other backend cookie and resets the active
// user. It never fails; internal errors are logged.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.creds.Clear(ctx); err != nil {
		m.logger.Error("logout: failed to clear credential", "error", err)
	}
	if m.cookies != nil {
		if err := m.cookies.ClearAll(ctx); err != nil {
			m.logger.Error("logout: failed to clear cookies", "error", err)
		}
	}

	m.MarkUnauthenticated()
	if m.bus != nil {
		m.bus.PublishCredentialsCleared(events.CredentialsCleared{Reason: "logout"})
	}
}

// CheckAuthStatus performs passive verification of a stored credential.
//
// When a credential is present it asks the backend who it belongs to; success makes the session authenticated,
// anything else clears the credential. The resulting state is returned; errors are never surfaced.
func (m *Manager) CheckAuthStatus(ctx context.Context) State {
	_ = m.begin(false)
	defer m.end()

	token, err := m.creds.Get(ctx)
	if err != nil {
		m.logger.Warn("could not read stored credential", "error", err)
	}
	if token == "" {
		m.MarkUnauthenticated()
		return StateUnauthenticated
	}

	user, err := m.whoAmI(ctx)
	if err != nil {
		m.logger.Info("passive verification failed", "error", err)
		if err := m.creds.Clear(ctx); err != nil {
			m.logger.Error("failed to clear credential", "error", err)
		}
		m.MarkUnauthenticated()
		return StateUnauthenticated
	}

	m.SetActiveUser(user)
	return StateAuthenticated
}

// WhoAmI asks the backend for the user the current credential belongs to.
func (m *Manager) WhoAmI(ctx context.Context) (User, error) {
	return m.whoAmI(ctx)
}

func (m *Manager) whoAmI(ctx context.Context) (User, error) {
	resp, err := m.api.Get(ctx, PathWhoAmI, nil)
	if err != nil {
		return User{}, err
	}

	var body struct {
		User *User `json:"user"`
	}
	if err := resp.Decode(&body); err != nil {
		return User{}, err
	}
	if body.User == nil || body.User.IsZero() {
		return User{}, fmt.Errorf("%w: no user data received", shared.ErrNotAuthenticated)
	}
	return *body.User, nil
}

// rememberIdentity stores identity for the verification resend flow.
func (m *Manager) rememberIdentity(ctx context.Context, identity string) {
	if m.kv == nil || identity == "" {
		return
	}
	if err := m.kv.SetString(ctx, IdentityKey, identity); err != nil {
		m.logger.Warn("failed to store identity", "error", err)
	}
}

// LastIdentity returns the identity used for the most recent login attempt.
func (m *Manager) LastIdentity(ctx context.Context) string {
	if m.kv == nil {
		return ""
	}
	identity, err := m.kv.GetString(ctx, IdentityKey)
	if err != nil {
		m.logger.Warn("failed to read identity", "error", err)
	}
	return identity
}

func (m *Manager) collect(ctx context.Context) device.Context {
	if m.device == nil {
		return device.Context{}
	}
	return m.device.Collect(ctx)
}

// decodeBody reads the fields every auth response may carry.
func decodeBody(body []byte) authResponse {
	var r authResponse
	if len(body) > 0 {
		_ = json.Unmarshal(body, &r)
	}
	return r
}

type authResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage"`
	Role         string `json:"role"`
	Token        string `json:"token"`
	User         *User  `json:"user"`
}

func (r authResponse) message() string {
	if r.Message != "" {
		return r.Message
	}
	return r.ErrorMessage
}
