package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists     = errors.New("user already exists")
	ErrInvalidCreds   = errors.New("invalid login credentials")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrSessionRevoked = errors.New("session has been signed out")
)

// Service is the password auth provider backed by the users and
// auth_sessions tables.
type Service struct {
	db  *pgxpool.Pool
	ttl time.Duration
	hub *Hub
}

func NewService(db *pgxpool.Pool, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{db: db, ttl: ttl, hub: NewHub()}
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}
	role := req.Role
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	// check if user exists
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", email).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	var name *string
	if req.Name != "" {
		name = &req.Name
	}

	var user User
	err = s.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, name, role, created_at
	`, email, string(hash), name, role).Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}
	return &user, nil
}

// SignInWithPassword checks the credentials, opens a server-side session
// and announces SIGNED_IN.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var user User
	err := s.db.QueryRow(ctx, "SELECT id, email, name, role, password_hash, created_at FROM users WHERE email = $1", normalizeEmail(email)).Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.PasswordHash, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCreds
	}
	user.PasswordHash = ""

	session := &Session{User: user}
	err = s.db.QueryRow(ctx, `
		INSERT INTO auth_sessions (user_id, expires_at)
		VALUES ($1, $2)
		RETURNING id, expires_at
	`, user.ID, time.Now().Add(s.ttl)).Scan(&session.ID, &session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	session.AccessToken, err = generateToken(user.ID, session.ID, user.Role, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	s.hub.Publish(EventSignedIn, session)
	return session, nil
}

// GetSession resolves a token to its live session.
func (s *Service) GetSession(ctx context.Context, token string) (*Session, error) {
	claims, err := parseToken(token)
	if err != nil {
		return nil, err
	}

	session := &Session{ID: claims.SessionID, AccessToken: token}
	var revokedAt *time.Time
	err = s.db.QueryRow(ctx, `
		SELECT s.expires_at, s.revoked_at, u.id, u.email, u.name, u.role, u.created_at
		FROM auth_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1 AND s.user_id = $2
	`, claims.SessionID, claims.UserID).Scan(
		&session.ExpiresAt, &revokedAt, &session.User.ID, &session.User.Email, &session.User.Name, &session.User.Role, &session.User.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if revokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return session, nil
}

// SignOut revokes the session behind token and announces SIGNED_OUT.
func (s *Service) SignOut(ctx context.Context, token string) error {
	session, err := s.GetSession(ctx, token)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE auth_sessions SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`, session.ID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.hub.Publish(EventSignedOut, session)
	return nil
}

func (s *Service) OnAuthStateChange(fn Handler) *Subscription {
	return s.hub.Subscribe(fn)
}

// PurgeExpiredSessions deletes sessions that expired or were revoked before cutoff.
func (s *Service) PurgeExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM auth_sessions
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
