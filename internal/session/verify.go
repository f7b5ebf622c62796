package session

import (
	"context"
	"net/http"

	"github.com/desertthunder/storydesk/internal/device"
	"github.com/desertthunder/storydesk/internal/gateway"
)

// Verification messages.
const (
	MsgEnterAllDigits        = "Please enter all 6 digits"
	MsgVerificationSucceeded = "Verification successful"
	MsgVerificationFailed    = "Verification failed"
	MsgCodeResent            = "New verification code sent to your email"
	MsgResendFailed          = "Failed to resend code"
	MsgNoIdentity            = "No identity to send a verification code to. Log in first."
)

// CodeLength is the number of digits in an unusual sign-in verification code.
const CodeLength = 6

// Outcome is the structured result of a verification operation.
type Outcome struct {
	Success    bool
	StatusCode int
	Message    string
	Failure    FailureKind
}

// VerifyPayload is the body of an unusual sign-in verification.
type VerifyPayload struct {
	Token      string          `json:"token"`
	Location   device.Location `json:"location"`
	IPAddress  *string         `json:"ipAddress"`
	DeviceInfo device.Info     `json:"deviceInfo"`
}

// ResendPayload is the body of a verification code resend.
type ResendPayload struct {
	Email string `json:"email"`
}

// ValidCode reports whether code is exactly [CodeLength] ASCII digits.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// VerifyUnusualSignIn confirms an anomalous login with the emailed one-time code.
//
// The code is checked locally before any request. When the backend answers with a token the session becomes
// authenticated only for an admin account; otherwise it logs out.
func (m *Manager) VerifyUnusualSignIn(ctx context.Context, code string) (Outcome, error) {
	if !ValidCode(code) {
		return Outcome{Message: MsgEnterAllDigits, Failure: FailureRequest}, nil
	}

	if err := m.begin(true); err != nil {
		return Outcome{}, err
	}
	defer m.end()

	dctx := m.collect(ctx)
	payload := VerifyPayload{
		Token:      code,
		Location:   dctx.Location,
		IPAddress:  dctx.IPAddress,
		DeviceInfo: dctx.Info,
	}

	resp, err := m.api.PatchJSON(ctx, PathUnusualSignIn, payload)
	if err != nil {
		return outcomeFailure(err, MsgVerificationFailed), nil
	}
	if resp.StatusCode != http.StatusOK {
		return Outcome{StatusCode: resp.StatusCode, Message: MsgVerificationFailed, Failure: FailureRejected}, nil
	}

	body := decodeBody(resp.Body)
	if body.Token != "" {
		if outcome, ok := m.adoptVerifiedToken(ctx, body); !ok {
			outcome.StatusCode = resp.StatusCode
			return outcome, nil
		}
	}

	m.logger.Info("unusual sign-in verified")
	return Outcome{Success: true, StatusCode: resp.StatusCode, Message: MsgVerificationSucceeded}, nil
}

// adoptVerifiedToken stores a token issued by verification and activates its user under the same admin-only rule
// as [Manager.Login]. A response without a user is resolved through the private profile. Any failure logs out.
func (m *Manager) adoptVerifiedToken(ctx context.Context, body authResponse) (Outcome, bool) {
	role := body.Role
	if body.User != nil && body.User.Role != "" {
		role = body.User.Role
	}
	if role != "" && role != m.adminRole {
		m.logger.Warn("verified account is not an admin", "role", role)
		m.Logout(ctx)
		return Outcome{Message: MsgNotAdmin, Failure: FailureRejected}, false
	}

	if err := m.creds.Set(ctx, body.Token); err != nil {
		m.logger.Error("failed to store credential after verification", "error", err)
		m.Logout(ctx)
		return Outcome{Message: MsgVerificationFailed, Failure: FailureRequest}, false
	}

	var user User
	if body.User != nil && !body.User.IsZero() {
		user = *body.User
	} else {
		u, err := m.whoAmI(ctx)
		if err != nil {
			m.logger.Warn("no user for verified token", "error", err)
			m.Logout(ctx)
			return Outcome{Message: MsgVerificationFailed, Failure: FailureRejected}, false
		}
		user = u
	}
	if user.Role == "" {
		user.Role = role
	}
	if user.Role != m.adminRole {
		m.logger.Warn("verified account is not an admin", "role", user.Role)
		m.Logout(ctx)
		return Outcome{Message: MsgNotAdmin, Failure: FailureRejected}, false
	}

	m.SetActiveUser(user)
	return Outcome{}, true
}

// ResendVerificationToken asks the backend to email a new code to identity, defaulting to the identity of the
// last login attempt.
func (m *Manager) ResendVerificationToken(ctx context.Context, identity string) Outcome {
	if identity == "" {
		identity = m.LastIdentity(ctx)
	}
	if identity == "" {
		return Outcome{Message: MsgNoIdentity, Failure: FailureRequest}
	}

	resp, err := m.api.PostJSON(ctx, PathResendVerification, ResendPayload{Email: identity})
	if err != nil {
		return outcomeFailure(err, MsgResendFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return Outcome{StatusCode: resp.StatusCode, Message: MsgResendFailed, Failure: FailureRejected}
	}
	return Outcome{Success: true, StatusCode: resp.StatusCode, Message: MsgCodeResent}
}

func outcomeFailure(err error, fallback string) Outcome {
	gerr, ok := gateway.AsError(err)
	if !ok {
		return Outcome{Message: err.Error(), Failure: FailureRequest}
	}

	switch gerr.Kind {
	case gateway.KindTransport:
		return Outcome{Message: MsgNoResponse, Failure: FailureTransport}
	case gateway.KindRejected, gateway.KindUnauthorized:
		return Outcome{StatusCode: gerr.StatusCode, Message: gerr.Message(fallback), Failure: FailureRejected}
	default:
		return Outcome{Message: gerr.Error(), Failure: FailureRequest}
	}
}
