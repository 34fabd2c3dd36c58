package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/swg-labs/smssend-api/internal/models"
)

// AuditRepository appends audit trail rows. Writes are best-effort:
// callers log failures and continue, the primary flow never depends on
// the audit sink.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new instance of AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends one audit record.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	const query = `INSERT INTO audit_logs (id, user_id, action, ip, user_agent, details, created_at)
		VALUES (:id, :user_id, :action, :ip, :user_agent, :details, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
