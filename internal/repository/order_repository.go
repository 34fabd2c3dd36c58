package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/swg-labs/smssend-api/internal/models"
)

const orderColumns = `id, user_id, order_number, order_date, awb_number, product_name, product_code,
	pnk, serial_numbers, quantity, unit_price_without_vat, total_price_with_vat, currency, vat,
	order_status, payment_method, delivery_method, payment_status, customer_name, phone_number,
	delivery_name, delivery_phone, delivery_address, billing_name, billing_address, created_at`

// OrderRepository provides database access for imported orders.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new instance of OrderRepository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateBatch inserts imported orders in a single transaction.
func (r *OrderRepository) CreateBatch(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `INSERT INTO orders (
		id, user_id, order_number, order_date, awb_number, product_name, product_code,
		pnk, quantity, total_price_with_vat, currency, order_status, customer_name,
		phone_number, delivery_phone, created_at
	) VALUES (
		:id, :user_id, :order_number, :order_date, :awb_number, :product_name, :product_code,
		:pnk, :quantity, :total_price_with_vat, :currency, :order_status, :customer_name,
		:phone_number, :delivery_phone, :created_at
	)`
	for i := range orders {
		if _, err := tx.NamedExecContext(ctx, query, &orders[i]); err != nil {
			return fmt.Errorf("insert order %s: %w", orders[i].OrderNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order import: %w", err)
	}
	return nil
}

// ExistingOrderNumbers returns which of the given order numbers the user
// already has, for import dedup.
func (r *OrderRepository) ExistingOrderNumbers(ctx context.Context, userID string, numbers []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(numbers))
	if len(numbers) == 0 {
		return existing, nil
	}

	query, args, err := sqlx.In(`SELECT order_number FROM orders WHERE user_id = ? AND order_number IN (?)`, userID, numbers)
	if err != nil {
		return nil, fmt.Errorf("build order dedup query: %w", err)
	}
	query = r.db.Rebind(query)

	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("query existing order numbers: %w", err)
	}
	for _, n := range found {
		existing[n] = true
	}
	return existing, nil
}

// FindByID returns one order scoped to its owner.
func (r *OrderRepository) FindByID(ctx context.Context, userID, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2 LIMIT 1`
	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find order by id: %w", err)
	}
	return &order, nil
}

// List returns a user's orders based on filters with total count.
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	baseQuery := `FROM orders WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	var conditions []string

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("order_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(order_number LIKE $%d OR LOWER(customer_name) LIKE $%d OR awb_number LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"order_number": true,
		"order_date":   true,
		"created_at":   true,
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

	listQuery := fmt.Sprintf("SELECT "+orderColumns+" %s ORDER BY %s %s LIMIT %d OFFSET %d", baseQuery, sortBy, sortOrder, pageSize, offset)
	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	return orders, total, nil
}

// ListAllForUser returns every order for a user, for CSV export.
func (r *OrderRepository) ListAllForUser(ctx context.Context, userID string) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, userID); err != nil {
		return nil, fmt.Errorf("list all orders: %w", err)
	}
	return orders, nil
}

// FindByIDs returns the subset of the given orders owned by the user.
func (r *OrderRepository) FindByIDs(ctx context.Context, userID string, ids []string) ([]models.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+orderColumns+` FROM orders WHERE user_id = ? AND id IN (?)`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("build order lookup query: %w", err)
	}
	query = r.db.Rebind(query)

	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("find orders by ids: %w", err)
	}
	return orders, nil
}
