package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gearflow/booking"
)

// ErrTokenInvalid signals an unknown, expired, or already-consumed login token.
var ErrTokenInvalid = errors.New("auth: token invalid")

// TokenTTL is how long a magic-link token stays redeemable.
const TokenTTL = 15 * time.Minute

// TokenStore issues and redeems single-use login tokens.
type TokenStore interface {
	IssueToken(ctx context.Context, userID, email string) (string, error)
	ConsumeToken(ctx context.Context, token string) (string, error)
}

// PGTokenStore keeps login tokens in PostgreSQL so any instance can redeem a
// token issued by another. Delivery rides the outbox; the mailer relay picks
// the message up after commit.
type PGTokenStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewTokenStore(pool *pgxpool.Pool) *PGTokenStore {
	return &PGTokenStore{pool: pool, ttl: TokenTTL}
}

// IssueToken writes a fresh token and enqueues its delivery in one transaction.
func (s *PGTokenStore) IssueToken(ctx context.Context, userID, email string) (string, error) {
	token := uuid.NewString() + uuid.NewString()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("auth: begin token tx: %w", err)
	}
	defer tx.Rollback(ctx)

	expiresAt := time.Now().Add(s.ttl)
	if _, err := tx.Exec(ctx, `
		INSERT INTO login_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt); err != nil {
		return "", fmt.Errorf("auth: insert token: %w", err)
	}

	if err := booking.EnqueueOutbox(ctx, tx, "auth.magic_link", map[string]any{
		"email":      email,
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("auth: commit token: %w", err)
	}
	return token, nil
}

// ConsumeToken redeems a token exactly once. The conditional delete is the
// whole single-use guarantee: two concurrent redemptions race on the row and
// only one gets it back.
func (s *PGTokenStore) ConsumeToken(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx, `
		DELETE FROM login_tokens
		WHERE token = $1 AND expires_at > now()
		RETURNING user_id
	`, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTokenInvalid
		}
		return "", fmt.Errorf("auth: consume token: %w", err)
	}
	return userID, nil
}

// PurgeExpired removes lapsed tokens. Consume already refuses them; this just
// keeps the table small.
func (s *PGTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM login_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("auth: purge tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
