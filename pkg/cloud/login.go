package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// MinTokenLifetime is how long a token must remain valid to be reused.
const MinTokenLifetime = time.Hour

const maxLoginAttempts = 3

// Prompter asks the user for login details.
type Prompter interface {
	Input(message, defaultValue string) (string, error)
	Password(message string) (string, error)
}

// Credentials are the outcome of a successful login.
type Credentials struct {
	Username string
	Token    string
}

// VerifyToken checks that c's token is accepted and stays valid for at least
// MinTokenLifetime after now. Tokens without expiry pass.
func VerifyToken(ctx context.Context, c *Client, now time.Time) error {
	info, err := c.CurrentToken(ctx)
	if err != nil {
		return err
	}
	if info.ExpiresAt != nil && info.ExpiresAt.Sub(now) < MinTokenLifetime {
		return fmt.Errorf("token expired or near to expire (expires at %s)", info.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// Login asks for credentials and exchanges them for a token, asking for a
// one-time password when the account requires one. username is offered as
// the default account.
func Login(ctx context.Context, c *Client, p Prompter, username string) (*Credentials, error) {
	var lastErr error
	for attempt := 1; attempt <= maxLoginAttempts; attempt++ {
		user, err := p.Input("Please enter your email address:", username)
		if err != nil {
			return nil, errors.WithKind(err, errors.KindLogin, "Login cancelled")
		}
		password, err := p.Password(fmt.Sprintf("Using account %s\nPlease enter your password:", user))
		if err != nil {
			return nil, errors.WithKind(err, errors.KindLogin, "Login cancelled")
		}

		tok, err := c.PasswordGrant(ctx, user, password)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "mfa_required" {
			otp, perr := p.Input("Please enter a login code:", "")
			if perr != nil {
				return nil, errors.WithKind(perr, errors.KindLogin, "Login cancelled")
			}
			tok, err = c.OTPGrant(ctx, apiErr.MFAToken, otp)
		}
		if err == nil {
			slog.Info("login_succeeded", "username", user, "attempt", attempt)
			return &Credentials{Username: user, Token: tok.AccessToken}, nil
		}

		slog.Warn("login_failed", "username", user, "attempt", attempt, "error", err)
		lastErr = err
		username = user
	}
	return nil, errors.WithKind(lastErr, errors.KindLogin,
		fmt.Sprintf("Unable to log in: %v", lastErr))
}
