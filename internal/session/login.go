package session

import (
	"context"
	"net/http"

	"github.com/desertthunder/storydesk/internal/device"
	"github.com/desertthunder/storydesk/internal/gateway"
)

// Login messages.
const (
	MsgLoginSuccessful = "Login successful"
	MsgLoginFailed     = "Login failed"
	MsgNotAdmin        = "Oops! this portal is only for admins"
	MsgLoginError      = "An error occurred during login"
	MsgNoResponse      = "No response from server. Please check your connection."
)

// FailureKind distinguishes why an auth operation failed.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureRequest means the request was never sent: it could not be built or a local check failed.
	FailureRequest
	// FailureTransport means no response was received.
	FailureTransport
	// FailureRejected means the backend responded and refused.
	FailureRejected
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureRequest:
		return "request"
	case FailureTransport:
		return "transport"
	case FailureRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// LoginPayload is the body of a login request.
type LoginPayload struct {
	Identity   string          `json:"identity"`
	Password   string          `json:"password"`
	Location   device.Location `json:"location"`
	IPAddress  *string         `json:"ipAddress"`
	DeviceInfo device.Info     `json:"deviceInfo"`
}

// LoginResult is the structured outcome of [Manager.Login].
type LoginResult struct {
	Success    bool
	Role       string
	Status     string
	StatusCode int
	Message    string
	Failure    FailureKind
}

// NotAdmin reports whether the account is valid but lacks the admin role.
func (r LoginResult) NotAdmin() bool {
	return !r.Success && r.Message == MsgNotAdmin
}

// Login authenticates identity with password.
//
// Success requires HTTP 200, the admin role and a non-empty token; the token is then stored and the returned
// user becomes active. Every other outcome logs out and is reported in the result, never as an error. The only
// error is [shared.ErrOperationInFlight] when another auth operation is running.
func (m *Manager) Login(ctx context.Context, identity, password string) (LoginResult, error) {
	if err := m.begin(true); err != nil {
		return LoginResult{}, err
	}
	defer m.end()

	m.rememberIdentity(ctx, identity)

	dctx := m.collect(ctx)
	payload := LoginPayload{
		Identity:   identity,
		Password:   password,
		Location:   dctx.Location,
		IPAddress:  dctx.IPAddress,
		DeviceInfo: dctx.Info,
	}

	resp, err := m.api.PostJSON(ctx, PathLogin, payload)
	if err != nil {
		result := loginFailure(err)
		m.logger.Warn("login failed", "identity", identity, "failure", result.Failure, "status", result.Status, "code", result.StatusCode)
		m.Logout(ctx)
		return result, nil
	}

	body := decodeBody(resp.Body)
	statusCode := resp.StatusCode

	if statusCode == http.StatusOK && body.Role == m.adminRole && body.Token != "" {
		if err := m.creds.Set(ctx, body.Token); err != nil {
			m.logger.Error("failed to store credential", "error", err)
			m.Logout(ctx)
			return LoginResult{Status: "error", StatusCode: statusCode, Message: MsgLoginError, Failure: FailureRequest}, nil
		}

		user := User{Role: body.Role}
		if body.User != nil {
			user = *body.User
			if user.Role == "" {
				user.Role = body.Role
			}
		}
		m.SetActiveUser(user)
		m.logger.Info("logged in", "username", user.Username, "role", user.Role)

		msg := body.message()
		if msg == "" {
			msg = MsgLoginSuccessful
		}
		return LoginResult{Success: true, Role: body.Role, Status: body.Status, StatusCode: http.StatusOK, Message: msg}, nil
	}

	m.Logout(ctx)

	status := body.Status
	if status == "" {
		status = "failed"
	}
	msg := body.message()
	switch {
	case statusCode == http.StatusOK && body.Role != m.adminRole:
		msg = MsgNotAdmin
	case msg == "":
		msg = MsgLoginFailed
	}

	m.logger.Warn("login refused", "identity", identity, "status", status, "role", body.Role)
	return LoginResult{Role: body.Role, Status: status, StatusCode: statusCode, Message: msg, Failure: FailureRejected}, nil
}

// loginFailure classifies a gateway error into a [LoginResult].
func loginFailure(err error) LoginResult {
	gerr, ok := gateway.AsError(err)
	if !ok {
		return LoginResult{Status: "error", Message: err.Error(), Failure: FailureRequest}
	}

	switch gerr.Kind {
	case gateway.KindTransport:
		return LoginResult{Status: "error", Message: MsgNoResponse, Failure: FailureTransport}
	case gateway.KindRejected, gateway.KindUnauthorized:
		status := gerr.Status()
		if status == "" {
			status = "error"
		}
		return LoginResult{
			Status:     status,
			StatusCode: gerr.StatusCode,
			Message:    gerr.Message(MsgLoginError),
			Failure:    FailureRejected,
		}
	default:
		return LoginResult{Status: "error", Message: gerr.Error(), Failure: FailureRequest}
	}
}
