package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/desertthunder/storydesk/internal/credentials"
	"github.com/desertthunder/storydesk/internal/session"
	"github.com/desertthunder/storydesk/internal/shared"
)

type loginOutput struct {
	Success    bool   `json:"success"`
	Role       string `json:"role,omitempty"`
	Status     string `json:"status,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
	Guidance   string `json:"guidance"`
}

type statusOutput struct {
	State     string        `json:"state"`
	User      *session.User `json:"user,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

// AuthLogin logs in and prints the guidance for the result.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	identity := strings.TrimSpace(cmd.String("identity"))
	if identity == "" {
		var err error
		if identity, err = r.prompt("Email or username: "); err != nil {
			return err
		}
	}
	if identity == "" {
		return fmt.Errorf("%w: identity", shared.ErrMissingArgument)
	}

	password := cmd.String("password")
	if password == "" {
		var err error
		if password, err = r.password(); err != nil {
			return err
		}
	}
	if password == "" {
		return fmt.Errorf("%w: password", shared.ErrMissingArgument)
	}

	r.logger.Info("logging in", "identity", identity)
	result, err := r.session.Login(ctx, identity, password)
	if err != nil {
		return err
	}
	notice := session.GuidanceFor(result)

	if cmd.Bool("json") {
		if err := r.writeJSON(loginOutput{
			Success:    result.Success,
			Role:       result.Role,
			Status:     result.Status,
			StatusCode: result.StatusCode,
			Message:    notice.Text,
			Guidance:   notice.Guidance.String(),
		}, cmd.Bool("pretty")); err != nil {
			return err
		}
	} else if result.Success {
		user := r.session.ActiveUser()
		r.writePlain("✓ %s\n", notice.Text)
		r.writePlain("Logged in as %s (%s)\n", user.Username, user.Role)
	} else {
		r.writePlain("✗ %s\n", notice.Text)
		switch notice.Guidance {
		case session.GuidanceUnusualSignIn:
			r.writePlain("Run 'storydesk auth verify <code>' with the 6-digit code, or 'storydesk auth resend' for a new one.\n")
		case session.GuidanceNotAdmin:
			r.writePlain("Role %q cannot use this portal; %q is required.\n", result.Role, r.session.AdminRole())
		}
	}

	if !result.Success {
		return fmt.Errorf("%w: %s", shared.ErrAuthFailed, result.Message)
	}
	return nil
}

// AuthLogout clears every credential surface.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	r.session.Logout(ctx)
	return r.writePlain("✓ Logged out\n")
}

// AuthStatus performs passive verification of the stored credential.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("checking auth status")

	token, _ := r.creds.Get(ctx)
	state := r.session.CheckAuthStatus(ctx)

	out := statusOutput{State: state.String()}
	if state == session.StateAuthenticated {
		user := r.session.ActiveUser()
		out.User = &user
		if exp, ok := credentials.ExpiresAt(token); ok {
			out.ExpiresAt = &exp
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	if out.User == nil {
		return r.writePlain("✗ Not authenticated\n")
	}
	r.writePlain("✓ Authenticated\n")
	r.writePlain("User: %s\n", out.User.Username)
	r.writePlain("Role: %s\n", out.User.Role)
	if out.ExpiresAt != nil {
		r.writePlain("Token expires: %s\n", out.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

// AuthVerify confirms an unusual sign-in.
func (r *Runner) AuthVerify(ctx context.Context, cmd *cli.Command) error {
	code := strings.TrimSpace(cmd.StringArg("code"))
	if code == "" {
		var err error
		if code, err = r.prompt("Verification code: "); err != nil {
			return err
		}
	}

	outcome, err := r.session.VerifyUnusualSignIn(ctx, code)
	if err != nil {
		return err
	}
	return r.writeOutcome(outcome, shared.ErrVerificationFailed)
}

// AuthResend emails a new verification code.
func (r *Runner) AuthResend(ctx context.Context, cmd *cli.Command) error {
	outcome := r.session.ResendVerificationToken(ctx, strings.TrimSpace(cmd.String("identity")))
	return r.writeOutcome(outcome, shared.ErrAPIRequest)
}

func (r *Runner) writeOutcome(o session.Outcome, sentinel error) error {
	if o.Success {
		return r.writePlain("✓ %s\n", o.Message)
	}
	r.writePlain("✗ %s\n", o.Message)
	return fmt.Errorf("%w: %s", sentinel, o.Message)
}

// prompt reads one line of input.
func (r *Runner) prompt(label string) (string, error) {
	r.writePlain("%s", label)
	line, err := r.input.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("%w: failed to read input: %v", shared.ErrMissingArgument, err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func (r *Runner) promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return r.prompt("Password: ")
	}

	r.writePlain("Password: ")
	raw, err := term.ReadPassword(fd)
	r.writePlain("\n")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}
