package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"magiclink-auth/internal/database"
	"magiclink-auth/internal/model"
)

type TokenRepository struct {
	db database.Querier
}

func NewTokenRepository(db database.Querier) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Store(ctx context.Context, token model.Token) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tokens (id, secret, user_id, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.Secret, token.UserID, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (r *TokenRepository) FindBySecret(ctx context.Context, secret string) (model.Token, error) {
	var t model.Token
	err := r.db.QueryRow(ctx,
		`SELECT id, secret, user_id, issued_at, expires_at
		 FROM tokens WHERE secret = $1`, secret).
		Scan(&t.ID, &t.Secret, &t.UserID, &t.IssuedAt, &t.ExpiresAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Token{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("find token: %w", err)
	}
	return t, nil
}

func (r *TokenRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user tokens: %w", err)
	}
	return nil
}

// DeleteAllForUserExcept supports the replace-on-rotate policy: every
// token for the user other than the newly issued one is revoked.
func (r *TokenRepository) DeleteAllForUserExcept(ctx context.Context, userID string, keepTokenID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM tokens WHERE user_id = $1 AND id <> $2`, userID, keepTokenID)
	if err != nil {
		return fmt.Errorf("delete user tokens except current: %w", err)
	}
	return nil
}

func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
