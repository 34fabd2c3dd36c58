package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/swg-labs/smssend-api/internal/models"
)

// SmsRepository persists per-order SMS dispatch log rows.
type SmsRepository struct {
	db *sqlx.DB
}

// NewSmsRepository creates a new instance of SmsRepository.
func NewSmsRepository(db *sqlx.DB) *SmsRepository {
	return &SmsRepository{db: db}
}

// Create inserts a new dispatch log row, initially QUEUED.
func (r *SmsRepository) Create(ctx context.Context, log *models.SmsLog) error {
	const query = `INSERT INTO sms_logs (id, user_id, order_id, phone, status, created_at)
		VALUES (:id, :user_id, :order_id, :phone, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create sms log: %w", err)
	}
	return nil
}

// MarkSent records the provider message id after a successful send.
func (r *SmsRepository) MarkSent(ctx context.Context, id, messageID string) error {
	const query = `UPDATE sms_logs SET status = $2, message_id = $3, error_message = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.SmsStatusSent, messageID); err != nil {
		return fmt.Errorf("mark sms sent: %w", err)
	}
	return nil
}

// MarkFailed records the provider error after retries are exhausted.
func (r *SmsRepository) MarkFailed(ctx context.Context, id, errorMessage string) error {
	const query = `UPDATE sms_logs SET status = $2, error_message = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.SmsStatusFailed, errorMessage); err != nil {
		return fmt.Errorf("mark sms failed: %w", err)
	}
	return nil
}

// ListForUser returns a user's dispatch history, newest first.
func (r *SmsRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.SmsLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT id, user_id, order_id, phone, message_id, status, error_message, created_at
		FROM sms_logs WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var logs []models.SmsLog
	if err := r.db.SelectContext(ctx, &logs, query, userID); err != nil {
		return nil, fmt.Errorf("list sms logs: %w", err)
	}
	return logs, nil
}
