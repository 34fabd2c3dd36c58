package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/swg-labs/smssend-api/internal/models"
)

// ErrAlreadyRotated marks a refresh token that was revoked between lookup
// and rotation. Exactly one of two concurrent rotations wins; the loser
// sees this.
var ErrAlreadyRotated = errors.New("refresh token already rotated")

const refreshColumns = `id, user_id, token_hash, replaced_by_hash, expires_at, revoked_at, ip, user_agent, created_at`

// TokenRepository persists the three opaque-token families: refresh
// sessions, email verification tokens, and password reset codes.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// CreateRefreshToken inserts a new refresh session row.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, ip, user_agent, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :ip, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshTokenByHash returns the session row for a token digest.
func (r *TokenRepository) FindRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	query := `SELECT ` + refreshColumns + ` FROM refresh_tokens WHERE token_hash = $1 LIMIT 1`
	var token models.RefreshToken
	if err := r.db.GetContext(ctx, &token, query, hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &token, nil
}

// RotateRefreshToken revokes the old session and inserts its successor in
// one transaction. The revoke is conditional on revoked_at still being
// NULL, so a replayed or concurrent rotation fails with ErrAlreadyRotated
// and no new session is created.
func (r *TokenRepository) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const revoke = `UPDATE refresh_tokens SET revoked_at = $2, replaced_by_hash = $3
		WHERE token_hash = $1 AND revoked_at IS NULL`
	res, err := tx.ExecContext(ctx, revoke, oldHash, next.CreatedAt, next.TokenHash)
	if err != nil {
		return fmt.Errorf("revoke rotated token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke rotated token: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyRotated
	}

	const insert = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, ip, user_agent, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :ip, :user_agent, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, next); err != nil {
		return fmt.Errorf("insert rotated token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

// RevokeRefreshTokenByHash marks one session revoked. Returns false when
// the token was unknown or already revoked; logout treats both as done.
func (r *TokenRepository) RevokeRefreshTokenByHash(ctx context.Context, hash string, ts time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, hash, ts)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return affected > 0, nil
}

// RevokeAllRefreshTokens closes every open session for the user. Called
// after a successful password reset.
func (r *TokenRepository) RevokeAllRefreshTokens(ctx context.Context, userID string, ts time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, ts); err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return nil
}

// CreateEmailVerificationToken inserts a verification token row.
func (r *TokenRepository) CreateEmailVerificationToken(ctx context.Context, token *models.EmailVerificationToken) error {
	const query = `INSERT INTO email_verification_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create email verification token: %w", err)
	}
	return nil
}

// DeleteUnusedEmailVerificationTokens removes a user's pending
// verification tokens; issuing a new one supersedes the old.
func (r *TokenRepository) DeleteUnusedEmailVerificationTokens(ctx context.Context, userID string) error {
	const query = `DELETE FROM email_verification_tokens WHERE user_id = $1 AND used_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("delete unused email verification tokens: %w", err)
	}
	return nil
}

// FindEmailVerificationTokenByHash returns the row for a token digest.
func (r *TokenRepository) FindEmailVerificationTokenByHash(ctx context.Context, hash string) (*models.EmailVerificationToken, error) {
	const query = `SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM email_verification_tokens WHERE token_hash = $1 LIMIT 1`
	var token models.EmailVerificationToken
	if err := r.db.GetContext(ctx, &token, query, hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find email verification token: %w", err)
	}
	return &token, nil
}

// MarkEmailVerificationTokenUsed stamps used_at once.
func (r *TokenRepository) MarkEmailVerificationTokenUsed(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE email_verification_tokens SET used_at = COALESCE(used_at, $2) WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("mark email verification token used: %w", err)
	}
	return nil
}

// CreatePasswordResetToken inserts a reset-code digest row.
func (r *TokenRepository) CreatePasswordResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	const query = `INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create password reset token: %w", err)
	}
	return nil
}

// DeleteUnusedPasswordResetTokens keeps at most one live code per user.
func (r *TokenRepository) DeleteUnusedPasswordResetTokens(ctx context.Context, userID string) error {
	const query = `DELETE FROM password_reset_tokens WHERE user_id = $1 AND used_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("delete unused password reset tokens: %w", err)
	}
	return nil
}

// FindActivePasswordResetToken returns the unused, unexpired code row for
// a user and digest.
func (r *TokenRepository) FindActivePasswordResetToken(ctx context.Context, userID, hash string, now time.Time) (*models.PasswordResetToken, error) {
	const query = `SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE user_id = $1 AND token_hash = $2 AND used_at IS NULL AND expires_at > $3
		LIMIT 1`
	var token models.PasswordResetToken
	if err := r.db.GetContext(ctx, &token, query, userID, hash, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find password reset token: %w", err)
	}
	return &token, nil
}

// MarkPasswordResetTokenUsed stamps used_at, making the code one-time.
// The update is conditional on used_at still being NULL, so of two
// concurrent resets presenting the same code only one consumes it;
// returns false for the loser.
func (r *TokenRepository) MarkPasswordResetTokenUsed(ctx context.Context, id string, ts time.Time) (bool, error) {
	const query = `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, ts)
	if err != nil {
		return false, fmt.Errorf("mark password reset token used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark password reset token used: %w", err)
	}
	return affected > 0, nil
}
