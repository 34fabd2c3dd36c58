package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

// User represents an application user stored in the users table.
// The company pair (name + CUI) is either both set or both empty,
// enforced by a CHECK constraint.
type User struct {
	ID              string `db:"id" json:"id"`
	Email           string `db:"email" json:"email"`
	EmailNormalized string `db:"email_normalized" json:"-"`
	PasswordHash    string `db:"password_hash" json:"-"`

	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`

	CompanyName *string `db:"company_name" json:"company_name,omitempty"`
	CompanyCUI  *string `db:"company_cui" json:"company_cui,omitempty"`

	Street     string `db:"street" json:"street"`
	StreetNo   string `db:"street_no" json:"street_no"`
	Locality   string `db:"locality" json:"locality"`
	County     string `db:"county" json:"county"`
	PostalCode string `db:"postal_code" json:"postal_code"`
	Country    string `db:"country" json:"country"`

	Role            UserRole   `db:"role" json:"role"`
	Active          bool       `db:"is_active" json:"is_active"`
	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"email_verified_at,omitempty"`

	FailedLoginCount int        `db:"failed_login_count" json:"-"`
	LockedUntil      *time.Time `db:"locked_until" json:"-"`

	PolicyVersion    *string    `db:"policy_version" json:"policy_version,omitempty"`
	PolicyAcceptedAt *time.Time `db:"policy_accepted_at" json:"policy_accepted_at,omitempty"`

	SMSAPIToken    *string `db:"smsapi_token" json:"-"`
	SMSAPISender   *string `db:"smsapi_sender" json:"smsapi_sender,omitempty"`
	SMSCompanyName *string `db:"sms_company_name" json:"sms_company_name,omitempty"`

	BillingCustomerID *string `db:"billing_customer_id" json:"-"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	LastLoginAt *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

// Verified reports whether the account finished email verification.
func (u *User) Verified() bool {
	return u.EmailVerifiedAt != nil
}

// Locked reports whether the account lockout is still in effect.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Role      UserRole `json:"role"`
	Verified  bool     `json:"verified"`
}

// Info maps the persisted user onto the response shape.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Verified:  u.Verified(),
	}
}
