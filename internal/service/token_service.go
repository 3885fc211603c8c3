package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"magiclink-auth/internal/model"
	"magiclink-auth/pkg/apierror"
)

const tokenSecretBytes = 32 // 256 bits of entropy

type userStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
}

type tokenStore interface {
	Store(ctx context.Context, token model.Token) error
	FindBySecret(ctx context.Context, secret string) (model.Token, error)
	DeleteAllForUser(ctx context.Context, userID string) error
	DeleteAllForUserExcept(ctx context.Context, userID string, keepTokenID string) error
}

// TokenService owns the token lifecycle: Issued → Valid → {Expired,
// Revoked}. It is the only component that writes token rows.
type TokenService struct {
	users           userStore
	tokens          tokenStore
	jwtSecret       []byte
	sessionDuration time.Duration
	rotationPolicy  string
}

func NewTokenService(users userStore, tokens tokenStore, jwtSecret string, sessionDuration time.Duration, rotationPolicy string) (*TokenService, error) {
	if jwtSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if sessionDuration <= 0 {
		return nil, errors.New("session duration must be positive")
	}
	if rotationPolicy != model.RotationAdditive && rotationPolicy != model.RotationReplace {
		return nil, fmt.Errorf("unknown rotation policy %q", rotationPolicy)
	}

	return &TokenService{
		users:           users,
		tokens:          tokens,
		jwtSecret:       []byte(jwtSecret),
		sessionDuration: sessionDuration,
		rotationPolicy:  rotationPolicy,
	}, nil
}

// Issue persists one token row for the user and returns a signed value
// safe to embed in a URL or cookie. The stored secret is the opaque
// credential; the JWT envelope carries it plus a redundant expiry.
func (s *TokenService) Issue(ctx context.Context, user model.User) (string, time.Time, error) {
	token, signed, err := s.issue(ctx, user)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, token.ExpiresAt, nil
}

// Verify resolves a presented value to its user. Every failure collapses
// to a single unauthenticated error; the reason stays in debug logs only.
func (s *TokenService) Verify(ctx context.Context, presented string) (model.User, error) {
	secret, err := s.extractSecret(presented)
	if err != nil {
		slog.Debug("token verification failed", "reason", "envelope", "error", err)
		return model.User{}, apierror.Unauthenticated()
	}

	token, err := s.tokens.FindBySecret(ctx, secret)
	if errors.Is(err, model.ErrTokenNotFound) {
		slog.Debug("token verification failed", "reason", "not_found")
		return model.User{}, apierror.Unauthenticated()
	}
	if err != nil {
		return model.User{}, apierror.Internal(err)
	}

	if token.Expired(time.Now().UTC()) {
		slog.Debug("token verification failed", "reason", "expired", "token_id", token.ID)
		return model.User{}, apierror.Unauthenticated()
	}

	user, err := s.users.FindByID(ctx, token.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		slog.Debug("token verification failed", "reason", "user_gone", "token_id", token.ID)
		return model.User{}, apierror.Unauthenticated()
	}
	if err != nil {
		return model.User{}, apierror.Internal(err)
	}

	return user, nil
}

// Rotate issues a fresh token after a successful verification. Under the
// additive policy the verified token stays valid until its own expiry;
// under replace every other token for the user is revoked.
func (s *TokenService) Rotate(ctx context.Context, user model.User) (string, time.Time, error) {
	token, signed, err := s.issue(ctx, user)
	if err != nil {
		return "", time.Time{}, err
	}

	if s.rotationPolicy == model.RotationReplace {
		if err := s.tokens.DeleteAllForUserExcept(ctx, user.ID, token.ID); err != nil {
			return "", time.Time{}, apierror.Internal(err)
		}
	}

	return signed, token.ExpiresAt, nil
}

// RevokeAll deletes every token row for the user. Cookie clearing is the
// caller's responsibility.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	if err := s.tokens.DeleteAllForUser(ctx, userID); err != nil {
		return apierror.Internal(err)
	}
	return nil
}

func (s *TokenService) issue(ctx context.Context, user model.User) (model.Token, string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return model.Token{}, "", apierror.Internal(fmt.Errorf("generate token secret: %w", err))
	}

	now := time.Now().UTC()
	token := model.Token{
		ID:        uuid.NewString(),
		Secret:    hex.EncodeToString(buf),
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionDuration),
	}

	if err := s.tokens.Store(ctx, token); err != nil {
		return model.Token{}, "", apierror.Internal(err)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user.ID,
		"tkn": token.Secret,
		"iat": now.Unix(),
		"exp": token.ExpiresAt.Unix(),
	}).SignedString(s.jwtSecret)
	if err != nil {
		return model.Token{}, "", apierror.Internal(fmt.Errorf("sign token: %w", err))
	}

	return token, signed, nil
}

func (s *TokenService) extractSecret(presented string) (string, error) {
	parsed, err := jwt.Parse(presented, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("token is not valid")
		}
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims shape")
	}

	secret, _ := claims["tkn"].(string)
	if secret == "" {
		return "", errors.New("missing token secret claim")
	}

	return secret, nil
}
