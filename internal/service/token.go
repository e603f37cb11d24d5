package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"mailseller-api/internal/hotstore"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// TokenPrefix marks long-lived API tokens.
	TokenPrefix = "msk_"

	// SessionPrefix marks short-lived session tokens.
	SessionPrefix = "mss_"

	// SessionTTL is the session lifetime (1 hour).
	SessionTTL = 1 * time.Hour
)

// TokenService manages the two credentials a user can hold: a
// persistent API token (rotated on demand, mirrored to the durable
// store by reconciliation) and TTL-bound sessions exchanged for it.
type TokenService struct {
	hot hotstore.Store
	log *logrus.Logger
}

// NewTokenService creates a new token service.
func NewTokenService(hot hotstore.Store, log *logrus.Logger) *TokenService {
	return &TokenService{hot: hot, log: log}
}

// RotateToken issues a fresh API token for the user and publishes it,
// invalidating the previous one in the same step. It also serves as
// first-time issuance for users without a token.
func (s *TokenService) RotateToken(ctx context.Context, userID int64) (string, error) {
	token, err := generateToken(TokenPrefix)
	if err != nil {
		return "", err
	}

	if err := s.hot.SetToken(ctx, userID, token); err != nil {
		return "", errors.Wrap(err, "failed to publish token")
	}

	s.log.WithField("user_id", userID).Info("[TokenService] Rotated API token")
	return token, nil
}

// ResolveToken maps an API token to its user.
func (s *TokenService) ResolveToken(ctx context.Context, token string) (int64, error) {
	if len(token) < len(TokenPrefix) || token[:len(TokenPrefix)] != TokenPrefix {
		return 0, ErrInvalidToken
	}

	userID, err := s.hot.ResolveToken(ctx, token)
	if errors.Is(err, hotstore.ErrNotFound) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to resolve token")
	}
	return userID, nil
}

// CreateSession exchanges a valid API token for a TTL-bound session
// token, so clients can avoid sending the long-lived credential on
// every request.
func (s *TokenService) CreateSession(ctx context.Context, apiToken string) (string, error) {
	userID, err := s.ResolveToken(ctx, apiToken)
	if err != nil {
		return "", err
	}

	session, err := generateToken(SessionPrefix)
	if err != nil {
		return "", err
	}

	if err := s.hot.SetSession(ctx, session, userID, SessionTTL); err != nil {
		return "", errors.Wrap(err, "failed to store session")
	}

	s.log.WithField("user_id", userID).Debug("[TokenService] Created session")
	return session, nil
}

// ResolveSession maps a session token to its user.
func (s *TokenService) ResolveSession(ctx context.Context, session string) (int64, error) {
	if len(session) < len(SessionPrefix) || session[:len(SessionPrefix)] != SessionPrefix {
		return 0, ErrInvalidToken
	}

	userID, err := s.hot.ResolveSession(ctx, session)
	if errors.Is(err, hotstore.ErrNotFound) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to resolve session")
	}
	return userID, nil
}

// RevokeSession drops a session before its TTL runs out.
func (s *TokenService) RevokeSession(ctx context.Context, session string) error {
	return s.hot.DeleteSession(ctx, session)
}

func generateToken(prefix string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate token")
	}
	return prefix + hex.EncodeToString(buf), nil
}
