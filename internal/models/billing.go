package models

import "time"

// CheckoutRequest starts a hosted checkout session for an SMS credit pack.
type CheckoutRequest struct {
	Pack string `json:"pack" validate:"required,oneof=starter standard pro"`
}

// CheckoutSession is the provider redirect handed back to the client.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Invoice describes a generated invoice PDF available for download.
type Invoice struct {
	Number    string    `json:"number"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Total     float64   `json:"total"`
	Currency  string    `json:"currency"`
}
