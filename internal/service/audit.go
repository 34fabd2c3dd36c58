package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
)

type auditRecorder interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

const maxAuditDetailBytes = 2048

// recordAudit appends one audit row. Failures are logged and swallowed:
// the audit trail never breaks the flow it observes.
func recordAudit(ctx context.Context, audit auditRecorder, logger *zap.Logger, userID *string, action string, meta models.ClientMeta, details map[string]interface{}) {
	if audit == nil {
		return
	}

	var payload []byte
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err == nil && len(raw) <= maxAuditDetailBytes {
			payload = raw
		}
	}

	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Details:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := audit.Create(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
