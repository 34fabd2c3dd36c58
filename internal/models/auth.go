package models

import "time"

// ClientMeta carries request metadata captured at the handler layer.
type ClientMeta struct {
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RegisterRequest holds the full registration payload. The company pair
// must be both set or both empty; the address block is required.
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`

	FirstName string `json:"first_name" validate:"required,max=128"`
	LastName  string `json:"last_name" validate:"required,max=128"`

	CompanyName string `json:"company_name" validate:"omitempty,max=255"`
	CompanyCUI  string `json:"company_cui" validate:"omitempty,max=32"`

	Street     string `json:"street" validate:"required,max=255"`
	StreetNo   string `json:"street_no" validate:"required,max=32"`
	Locality   string `json:"locality" validate:"required,max=128"`
	County     string `json:"county" validate:"required,max=128"`
	PostalCode string `json:"postal_code" validate:"required,max=32"`
	Country    string `json:"country" validate:"required,max=64"`

	PolicyVersion  string `json:"policy_version" validate:"required,max=16"`
	PolicyAccepted bool   `json:"policy_accepted" validate:"required"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenPair is the outcome of login and refresh rotation. The refresh
// token never appears in response bodies; handlers move it into an
// HttpOnly cookie and blank it before serialization.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"-"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	User         UserInfo  `json:"user"`
}

// VerifyEmailRequest confirms an email verification token.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// ResendVerificationRequest asks for a fresh verification email.
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPasswordRequest initiates the reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the reset flow with the mailed code.
type ResetPasswordRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Code            string `json:"code" validate:"required,min=6,max=32"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// GenericAccepted is the anti-enumeration acknowledgement returned by
// register, resend-verification, and forgot-password.
type GenericAccepted struct {
	Message string `json:"message"`
}
