// Package identity is the session provider the studio signs users in through.
//
// The studio only consumes the Provider interface: session lookup, credential and
// third-party sign-in, sign-out, and a subscription to session-change events.
// Local is the built-in implementation backed by an AccountStore.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventUserUpdated    EventKind = "USER_UPDATED"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Session is an authenticated identity.
type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Event is a session-change notification. Session is nil when the session ended.
type Event struct {
	Kind    EventKind
	Session *Session
}

type Listener func(ctx context.Context, ev Event)

type Provider interface {
	Session(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	OAuthURL(state string) (string, error)
	CompleteOAuth(ctx context.Context, code string) (*Session, error)
	SignOut(ctx context.Context) error
	Subscribe(fn Listener) (unsubscribe func())
}

// Error codes surfaced to the sign-in dialog.
const (
	CodeAuth               = "AUTH_ERR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeOAuthInit          = "OAUTH_INIT_FAIL"
	CodeOAuthExchange      = "OAUTH_EXCHANGE_FAIL"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrOAuthDisabled      = errors.New("third-party sign-in is not configured")
	ErrInvalidInput       = errors.New("invalid sign-up details")
)

// Error is an authentication failure carrying a diagnostic code.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func authError(code, message string, err error) error {
	return &Error{Code: code, Message: message, Err: err}
}

// Account is a stored credential record.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Provider     string
}

// AccountStore persists accounts. Find methods return nil, nil when nothing matches.
type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
}

// TokenStore keeps the current access token across restarts. An empty token means no session.
type TokenStore interface {
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
}
