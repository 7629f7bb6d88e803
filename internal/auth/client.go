package auth

import (
	"context"
	"errors"
	"log"
	"strings"
)

const (
	msgLoginFailed  = "Login fehlgeschlagen"
	msgLogoutFailed = "Logout fehlgeschlagen"
)

// Provider is the auth backend the client talks to.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	GetSession(ctx context.Context, token string) (*Session, error)
	OnAuthStateChange(fn Handler) *Subscription
}

// AuthState is what the dashboard knows about the current visitor.
type AuthState struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
	Loading bool     `json:"loading"`
	Error   *string  `json:"error"`
}

// StateOf maps a session lookup to an AuthState. A missing or invalid
// session is a signed-out state, not an error.
func StateOf(session *Session, err error) AuthState {
	if err != nil || session == nil {
		return AuthState{}
	}
	user := session.User
	return AuthState{User: &user, Session: session}
}

// Client wraps a Provider with the dashboard's error messages.
type Client struct {
	provider Provider
}

func NewClient(p Provider) *Client {
	return &Client{provider: p}
}

// SignIn returns the signed-in state, or a signed-out state carrying the
// error message.
func (c *Client) SignIn(ctx context.Context, email, password string) (AuthState, error) {
	session, err := c.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		msg := errorMessage(err, msgLoginFailed)
		return AuthState{Error: &msg}, err
	}
	return StateOf(session, nil), nil
}

// SignOut ends the session behind token. Failures are logged and reported in
// the returned state; the previous state is kept so the user stays signed in.
func (c *Client) SignOut(ctx context.Context, token string, prev AuthState) AuthState {
	if err := c.provider.SignOut(ctx, token); err != nil {
		log.Printf("Sign out error: %v", err)
		msg := errorMessage(err, msgLogoutFailed)
		prev.Loading = false
		prev.Error = &msg
		return prev
	}
	return AuthState{}
}

func (c *Client) GetSession(ctx context.Context, token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	return c.provider.GetSession(ctx, token)
}

// State resolves token to the current AuthState.
func (c *Client) State(ctx context.Context, token string) AuthState {
	return StateOf(c.GetSession(ctx, token))
}

func (c *Client) OnAuthStateChange(fn Handler) *Subscription {
	return c.provider.OnAuthStateChange(fn)
}

// errorMessage shows the text of known auth errors. Anything else, such as
// a database failure, is reported as fallback.
func errorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	for _, known := range []error{ErrInvalidCreds, ErrInvalidToken, ErrSessionRevoked, ErrUserExists} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return fallback
}
