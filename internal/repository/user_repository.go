package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/swg-labs/smssend-api/internal/models"
)

// ErrDuplicate marks a unique-constraint violation. Callers decide how to
// surface it; registration maps it to the generic accepted message.
var ErrDuplicate = errors.New("duplicate record")

const userColumns = `id, email, email_normalized, password_hash, first_name, last_name,
	company_name, company_cui, street, street_no, locality, county, postal_code, country,
	role, is_active, email_verified_at, failed_login_count, locked_until,
	policy_version, policy_accepted_at, smsapi_token, smsapi_sender, sms_company_name,
	billing_customer_id, created_at, last_login_at`

// UserRepository provides database access for account management.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user row. Unique violations on the normalized
// email surface as ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (
		id, email, email_normalized, password_hash, first_name, last_name,
		company_name, company_cui, street, street_no, locality, county, postal_code, country,
		role, is_active, policy_version, policy_accepted_at, created_at
	) VALUES (
		:id, :email, :email_normalized, :password_hash, :first_name, :last_name,
		:company_name, :company_cui, :street, :street_no, :locality, :county, :postal_code, :country,
		:role, :is_active, :policy_version, :policy_accepted_at, :created_at
	)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByNormalizedEmail returns a user by its canonical email.
func (r *UserRepository) FindByNormalizedEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email_normalized = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// RecordLoginFailure bumps the failure counter and, when the new count
// reaches the threshold, sets locked_until in the same statement. One
// UPDATE so concurrent failures cannot double-count or miss the lock.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, threshold int, lockedUntil time.Time) (int, *time.Time, error) {
	const query = `UPDATE users SET
		failed_login_count = failed_login_count + 1,
		locked_until = CASE WHEN failed_login_count + 1 >= $2 THEN $3 ELSE locked_until END
	WHERE id = $1
	RETURNING failed_login_count, locked_until`

	var (
		count  int
		locked *time.Time
	)
	if err := r.db.QueryRowContext(ctx, query, id, threshold, lockedUntil).Scan(&count, &locked); err != nil {
		return 0, nil, fmt.Errorf("record login failure: %w", err)
	}
	return count, locked, nil
}

// ClearLockout resets the failure counter and lock after a successful
// login or password reset.
func (r *UserRepository) ClearLockout(ctx context.Context, id string) error {
	const query = `UPDATE users SET failed_login_count = 0, locked_until = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login_at timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// MarkEmailVerified stamps email_verified_at once; repeated calls leave
// the original timestamp in place.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET email_verified_at = COALESCE(email_verified_at, $2) WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// UpdateSmsSettings stores the per-user sender configuration.
func (r *UserRepository) UpdateSmsSettings(ctx context.Context, id string, token, sender, companyName *string) error {
	const query = `UPDATE users SET smsapi_token = $2, smsapi_sender = $3, sms_company_name = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, token, sender, companyName); err != nil {
		return fmt.Errorf("update sms settings: %w", err)
	}
	return nil
}

// SetBillingCustomerID persists the provider customer handle created on
// the first checkout.
func (r *UserRepository) SetBillingCustomerID(ctx context.Context, id, customerID string) error {
	const query = `UPDATE users SET billing_customer_id = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, customerID); err != nil {
		return fmt.Errorf("set billing customer id: %w", err)
	}
	return nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(email_normalized LIKE $%d OR LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"email":         true,
		"created_at":    true,
		"last_login_at": true,
		"last_name":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT "+userColumns+" %s ORDER BY %s %s LIMIT %d OFFSET %d", baseQuery, sortBy, sortOrder, pageSize, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}
