package session

import (
	"fmt"
	"time"
)

// Notice lifetimes.
const (
	NoticeTTL           = 6 * time.Second
	UnexpectedNoticeTTL = 4500 * time.Millisecond
	ResendNoticeTTL     = 5 * time.Second
)

// Guidance tells the presentation layer what to do after a login attempt.
type Guidance int

const (
	GuidanceProceed Guidance = iota
	GuidanceNotAdmin
	GuidanceCompleteSignup
	GuidanceVerifyEmail
	GuidanceUnusualSignIn
	GuidanceTemporaryUser
	GuidanceGeneric
)

func (g Guidance) String() string {
	switch g {
	case GuidanceProceed:
		return "proceed"
	case GuidanceNotAdmin:
		return "not admin"
	case GuidanceCompleteSignup:
		return "complete signup"
	case GuidanceVerifyEmail:
		return "verify email"
	case GuidanceUnusualSignIn:
		return "unusual sign-in"
	case GuidanceTemporaryUser:
		return "temporary user"
	default:
		return "generic"
	}
}

// Notice is a time-boxed user-visible message.
type Notice struct {
	Text     string
	IsError  bool
	TTL      time.Duration
	Guidance Guidance
}

// GuidanceFor maps a login result to the notice shown to the user.
//
// [GuidanceUnusualSignIn] asks the host to move to the verification flow.
func GuidanceFor(r LoginResult) Notice {
	if r.Success {
		return Notice{Text: "Login successful!", TTL: NoticeTTL, Guidance: GuidanceProceed}
	}
	if r.NotAdmin() {
		return Notice{Text: "You need administrative access to do this", IsError: true, TTL: NoticeTTL, Guidance: GuidanceNotAdmin}
	}

	n := Notice{IsError: true, TTL: NoticeTTL}
	switch r.Status {
	case "not found":
		n.Text, n.Guidance = "Please check your email to complete your account creation.", GuidanceCompleteSignup
	case "unverified email":
		n.Text, n.Guidance = "You have not verified your email. Please check your inbox for the verification email.", GuidanceVerifyEmail
	case "unauthorized":
		n.Text, n.Guidance = "Unusual sign-in detected. Please check your email for verification.", GuidanceUnusualSignIn
	case "temporary user":
		n.Text, n.Guidance = "Download the mobile app and complete sign-up.", GuidanceTemporaryUser
	default:
		n.Text, n.Guidance = r.Message, GuidanceGeneric
		if n.Text == "" {
			n.Text = MsgLoginError
		}
	}
	return n
}

// UnexpectedNotice reports an error that escaped the structured result.
func UnexpectedNotice(err error) Notice {
	return Notice{Text: fmt.Sprintf("Something went wrong: %v", err), IsError: true, TTL: UnexpectedNoticeTTL, Guidance: GuidanceGeneric}
}

// OutcomeNotice maps a verification outcome to a notice.
func OutcomeNotice(o Outcome, ttl time.Duration) Notice {
	return Notice{Text: o.Message, IsError: !o.Success, TTL: ttl}
}
