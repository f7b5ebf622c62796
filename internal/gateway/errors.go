package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/storydesk/internal/shared"
)

// ErrorKind classifies why a request did not produce a usable response.
type ErrorKind int

const (
	// KindRequest means the request could not be built or was refused locally.
	KindRequest ErrorKind = iota
	// KindTransport means no response was received.
	KindTransport
	// KindRejected means the backend answered with a non-2xx status.
	KindRejected
	// KindUnauthorized is a rejection with status 401. Stored credentials have already been cleared.
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTransport:
		return shared.ErrServiceUnavailable
	case KindRejected:
		return shared.ErrAPIRequest
	case KindUnauthorized:
		return shared.ErrNotAuthenticated
	default:
		return shared.ErrInvalidInput
	}
}

// Error is returned by every [Gateway] call that fails.
type Error struct {
	Kind       ErrorKind
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRejected, KindUnauthorized:
		return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.Path, e.Message("request rejected"), e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s %s: %s error: %v", e.Method, e.Path, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s %s: %s error", e.Method, e.Path, e.Kind)
	}
}

// Unwrap exposes both the kind's sentinel from the shared package and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Message extracts a human readable message from the response body, checking errorMessage, message and error in
// that order. fallback is returned when none is present.
func (e *Error) Message(fallback string) string {
	if msg := bodyMessage(e.Body); msg != "" {
		return msg
	}
	return fallback
}

// Status returns the body's status field, or "".
func (e *Error) Status() string {
	return bodyString(e.Body, "status")
}

// AsError reports whether err is a gateway [*Error] and returns it.
func AsError(err error) (*Error, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

func bodyMessage(body []byte) string {
	for _, key := range []string{"errorMessage", "message", "error"} {
		if msg := bodyString(body, key); msg != "" {
			return msg
		}
	}
	return ""
}

func bodyString(body []byte, key string) string {
	if len(body) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}
