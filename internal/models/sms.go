package models

import "time"

// SmsStatus values recorded on dispatch log rows.
const (
	SmsStatusQueued = "QUEUED"
	SmsStatusSent   = "SENT"
	SmsStatusFailed = "FAILED"
)

// SmsLog records one review-request SMS dispatched for an order.
type SmsLog struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	OrderID      string    `db:"order_id" json:"order_id"`
	Phone        string    `db:"phone" json:"phone"`
	MessageID    *string   `db:"message_id" json:"message_id,omitempty"`
	Status       string    `db:"status" json:"status"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SmsDispatchRequest asks for review-request messages for a set of orders.
type SmsDispatchRequest struct {
	OrderIDs []string `json:"order_ids" validate:"required,min=1,dive,required"`
	Message  string   `json:"message" validate:"required,max=480"`
}

// SmsDispatchResult reports what was queued.
type SmsDispatchResult struct {
	Queued  int `json:"queued"`
	Skipped int `json:"skipped"`
}

// SmsSettingsRequest updates the per-user sender configuration. An empty
// token falls back to the platform credentials.
type SmsSettingsRequest struct {
	Token       string `json:"token" validate:"omitempty,max=255"`
	Sender      string `json:"sender" validate:"omitempty,max=32"`
	CompanyName string `json:"company_name" validate:"omitempty,max=255"`
}

// SmsSettings is the masked view returned to clients.
type SmsSettings struct {
	TokenSet    bool   `json:"token_set"`
	Sender      string `json:"sender,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}
