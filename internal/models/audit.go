package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionRegister          = "REGISTER"
	AuditActionRegisterDuplicate = "REGISTER_DUPLICATE"
	AuditActionLoginSuccess      = "LOGIN_SUCCESS"
	AuditActionLoginFail         = "LOGIN_FAIL"
	AuditActionLoginLocked       = "LOGIN_LOCKED"
	AuditActionRefresh           = "REFRESH"
	AuditActionRefreshReplay     = "REFRESH_REPLAY"
	AuditActionLogout            = "LOGOUT"
	AuditActionEmailVerified     = "EMAIL_VERIFIED"
	AuditActionVerifyResend      = "VERIFY_RESEND"
	AuditActionResetRequest      = "PWD_RESET_REQUEST"
	AuditActionResetConfirm      = "PWD_RESET_CONFIRM"
	AuditActionResetConfirmFail  = "PWD_RESET_CONFIRM_FAIL"
	AuditActionOrdersImport      = "ORDERS_IMPORT"
	AuditActionOrdersExport      = "ORDERS_EXPORT"
	AuditActionSmsDispatch       = "SMS_DISPATCH"
	AuditActionCheckout          = "BILLING_CHECKOUT"
	AuditActionSettingsUpdate    = "SETTINGS_UPDATE"
)

// AuditLog represents an append-only audit trail record. Details is a
// small JSON payload; writers must keep it bounded.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	IP        string    `db:"ip" json:"ip"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	Details   []byte    `db:"details" json:"details,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
