// Package identity is the authentication collaborator: accounts, cookie
// sessions, and password resets. It never decides authorization; roles live
// on the user documents and are the sync layer's concern.
package identity

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type Account struct {
	UID         string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

type Session struct {
	Token     string
	UID       string
	ExpiresAt time.Time
}

type Service struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Register creates an account for a self-enrolling user and returns its UID.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (string, error) {
	return s.createAccount(ctx, email, password, displayName)
}

// Provision creates an account on behalf of an administrator. It is the
// explicit provisioning capability: it runs entirely server-side against the
// accounts table and can never disturb the acting admin's own session.
func (s *Service) Provision(ctx context.Context, email, password, displayName string) (string, error) {
	return s.createAccount(ctx, email, password, displayName)
}

func (s *Service) createAccount(ctx context.Context, email, password, displayName string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	uid := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO accounts (uid, email, display_name, password_hash) VALUES (?, ?, ?, ?)",
		uid, email, displayName, string(hash),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("insert account: %w", err)
	}
	return uid, nil
}

// Authenticate checks the email/password pair and returns the account.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	var a Account
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT uid, email, display_name, password_hash, created_at FROM accounts WHERE email = ?",
		email,
	).Scan(&a.UID, &a.Email, &a.DisplayName, &hash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &a, nil
}

// GetAccount returns the account for a UID, or nil when it does not exist.
func (s *Service) GetAccount(ctx context.Context, uid string) (*Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx,
		"SELECT uid, email, display_name, created_at FROM accounts WHERE uid = ?", uid,
	).Scan(&a.UID, &a.Email, &a.DisplayName, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &a, nil
}

// DeleteAccount removes an account and, through cascade, its sessions.
func (s *Service) DeleteAccount(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE uid = ?", uid)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// CreateSession mints an opaque session token for the UID.
func (s *Service) CreateSession(ctx context.Context, uid string, ttl time.Duration) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	sess := &Session{Token: token, UID: uid, ExpiresAt: time.Now().Add(ttl)}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sessions (token, uid, expires_at) VALUES (?, ?, ?)",
		sess.Token, sess.UID, sess.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetSession resolves a token to a live session, or nil when the token is
// unknown or expired.
func (s *Service) GetSession(ctx context.Context, token string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		"SELECT token, uid, expires_at FROM sessions WHERE token = ?", token,
	).Scan(&sess.Token, &sess.UID, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, nil
	}
	return &sess, nil
}

// DeleteSession signs the holder of the token out.
func (s *Service) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanupExpired removes expired sessions and reset tokens. Run periodically.
func (s *Service) CleanupExpired(ctx context.Context) error {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", now); err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM reset_tokens WHERE expires_at < ?", now); err != nil {
		return fmt.Errorf("cleanup reset tokens: %w", err)
	}
	return nil
}

// CreateResetToken mints a password-reset token for the account with the
// given email. Unknown emails return ErrInvalidCredentials so the handler can
// decide what to disclose.
func (s *Service) CreateResetToken(ctx context.Context, email string, ttl time.Duration) (string, error) {
	var uid string
	err := s.db.QueryRowContext(ctx, "SELECT uid FROM accounts WHERE email = ?", email).Scan(&uid)
	if err == sql.ErrNoRows {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("query account: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO reset_tokens (token, uid, expires_at) VALUES (?, ?, ?)",
		token, uid, time.Now().Add(ttl),
	)
	if err != nil {
		return "", fmt.Errorf("insert reset token: %w", err)
	}
	return token, nil
}

// ResetPassword consumes a reset token and sets a new password. A token can
// be used once; expired or used tokens fail with ErrInvalidToken.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	var uid string
	var expiresAt time.Time
	var usedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT uid, expires_at, used_at FROM reset_tokens WHERE token = ?", token,
	).Scan(&uid, &expiresAt, &usedAt)
	if err == sql.ErrNoRows {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("query reset token: %w", err)
	}
	if usedAt.Valid || time.Now().After(expiresAt) {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE accounts SET password_hash = ? WHERE uid = ?", string(hash), uid); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE reset_tokens SET used_at = ? WHERE token = ?", time.Now(), token); err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	return tx.Commit()
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures in the error text;
	// there is no exported sentinel to compare against.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
