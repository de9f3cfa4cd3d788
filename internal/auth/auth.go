// Package auth is the session collaborator: it creates accounts with their
// portfolio, issues time-bounded tokens, and resolves request credentials
// to users. The trading engine only ever reads the expiration status.
package auth

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockx/market-engine/internal/model"
	"github.com/stockx/market-engine/internal/store"
)

const sessionHours = 24

// startingBalance is the fixed cash balance every new account receives.
var startingBalance = decimal.NewFromInt(100_000)

var (
	// ErrSessionNotFound is returned for an unknown or missing token.
	ErrSessionNotFound = errors.New("auth: session not found")

	// ErrSessionExpired is returned when the token's account has expired.
	ErrSessionExpired = errors.New("auth: session expired")

	// ErrUsernameTaken is returned when the username already exists.
	ErrUsernameTaken = errors.New("auth: username already exists")

	// ErrInvalidUsername is returned for an empty or malformed username.
	ErrInvalidUsername = errors.New("auth: invalid username")
)

// Service manages accounts and session tokens.
type Service struct {
	store store.Store
}

// NewService creates an auth service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// UserResponse is the public representation of an account, including its
// session token (returned only at creation).
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateUser registers an account with a fresh 24-hour session token and
// its portfolio seeded with the starting balance.
func (s *Service) CreateUser(ctx context.Context, username string) (*UserResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUsername
	}

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:        uuid.New().String(),
		Username:  username,
		Token:     generateToken(username),
		ExpiresAt: now.Add(sessionHours * time.Hour),
		CreatedAt: now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	portfolio := &model.Portfolio{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Balance:   startingBalance,
		CreatedAt: now,
	}
	if err := s.store.CreatePortfolio(ctx, portfolio); err != nil {
		return nil, err
	}

	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Token:     user.Token,
		ExpiresAt: user.ExpiresAt,
	}, nil
}

// ResolveToken maps a session token to its user, rejecting expired sessions.
func (s *Service) ResolveToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	user, err := s.store.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if user.Expired() {
		return nil, ErrSessionExpired
	}
	return user, nil
}

// generateToken derives an opaque 128-hex-char session token from the
// username, the current time, and a random component.
func generateToken(username string) string {
	key := fmt.Sprintf("%d%s%s", time.Now().UnixNano(), username, uuid.NewString())
	sum := sha512.Sum512([]byte(key))
	return hex.EncodeToString(sum[:])
}
