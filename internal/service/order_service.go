package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/export"
	"github.com/swg-labs/smssend-api/pkg/storage"
)

type orderRepository interface {
	CreateBatch(ctx context.Context, orders []models.Order) error
	ExistingOrderNumbers(ctx context.Context, userID string, numbers []string) (map[string]bool, error)
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error)
	ListAllForUser(ctx context.Context, userID string) ([]models.Order, error)
}

type orderCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// orderPage is the cached shape of one listing page.
type orderPage struct {
	Orders []models.Order `json:"orders"`
	Total  int            `json:"total"`
}

// Accepted on top of ISO dates because marketplace exports are not
// consistent about their timestamp format.
var orderDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006",
}

// OrderService imports, lists, and exports a user's marketplace orders.
type OrderService struct {
	orders    orderRepository
	cache     orderCache
	audit     auditRecorder
	storage   fileStorage
	csv       csvRenderer
	signer    *storage.SignedURLSigner
	metrics   cacheMetrics
	validator *validator.Validate
	logger    *zap.Logger
	config    config.OrdersConfig
	apiPrefix string
}

// NewOrderService constructs an OrderService.
func NewOrderService(
	orders orderRepository,
	cache orderCache,
	audit auditRecorder,
	store fileStorage,
	signer *storage.SignedURLSigner,
	metrics cacheMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.OrdersConfig,
	apiPrefix string,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &OrderService{
		orders:    orders,
		cache:     cache,
		audit:     audit,
		storage:   store,
		csv:       export.NewCSVExporter(),
		signer:    signer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
		apiPrefix: apiPrefix,
	}
}

// Import stores a batch of pre-parsed order rows. Rows whose order number
// already exists for the user are skipped, so re-uploading the same
// spreadsheet is harmless.
func (s *OrderService) Import(ctx context.Context, userID string, req models.OrderImportRequest, meta models.ClientMeta) (*models.OrderImportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}

	numbers := make([]string, 0, len(req.Rows))
	for _, row := range req.Rows {
		numbers = append(numbers, strings.TrimSpace(row.OrderNumber))
	}

	existing, err := s.orders.ExistingOrderNumbers(ctx, userID, numbers)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing orders")
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(req.Rows))
	batch := make([]models.Order, 0, len(req.Rows))
	skipped := 0

	for _, row := range req.Rows {
		number := strings.TrimSpace(row.OrderNumber)
		if number == "" || existing[number] || seen[number] {
			skipped++
			continue
		}
		seen[number] = true
		batch = append(batch, s.buildOrder(userID, number, row, now))
	}

	if len(batch) > 0 {
		if err := s.orders.CreateBatch(ctx, batch); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store orders")
		}
		s.invalidateListings(ctx, userID)
	}

	recordAudit(ctx, s.audit, s.logger, &userID, models.AuditActionOrdersImport, meta, map[string]interface{}{
		"imported": len(batch),
		"skipped":  skipped,
	})

	return &models.OrderImportResult{Imported: len(batch), Skipped: skipped}, nil
}

// List returns one page of the user's orders, served from Redis when a
// fresh copy exists.
func (s *OrderService) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int, error) {
	key := s.listingKey(filter)
	start := time.Now()

	var cached orderPage
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(true, time.Since(start))
		}
		return cached.Orders, cached.Total, nil
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("order listing cache read failed", zap.String("key", key), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(false, time.Since(start))
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orders")
	}

	if err := s.cache.Set(ctx, key, orderPage{Orders: orders, Total: total}, s.config.CacheTTL); err != nil {
		s.logger.Warn("order listing cache write failed", zap.String("key", key), zap.Error(err))
	}

	return orders, total, nil
}

// Export renders every order the user owns into a CSV file and returns a
// signed, expiring download link.
func (s *OrderService) Export(ctx context.Context, userID string, meta models.ClientMeta) (*models.OrderExport, error) {
	orders, err := s.orders.ListAllForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load orders")
	}

	dataset := buildOrderDataset(orders)
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("orders-%s-%s.csv", userID, time.Now().UTC().Format("20060102-150405"))
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(userID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	prefix := strings.TrimRight(s.apiPrefix, "/")
	if prefix == "" {
		prefix = "/api"
	}

	recordAudit(ctx, s.audit, s.logger, &userID, models.AuditActionOrdersExport, meta, map[string]interface{}{"rows": len(orders)})

	return &models.OrderExport{
		FileName:  filename,
		URL:       fmt.Sprintf("%s/orders/export/%s", prefix, token),
		ExpiresAt: expiresAt,
		Rows:      len(orders),
	}, nil
}

// ResolveExport turns a signed download token back into a stored file
// path, refusing tokens minted for another user.
func (s *OrderService) ResolveExport(userID, token string) (string, error) {
	ownerID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || ownerID != userID {
		return "", appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired download link")
	}
	return relPath, nil
}

func (s *OrderService) buildOrder(userID, number string, row models.OrderImportRow, now time.Time) models.Order {
	order := models.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		OrderNumber: number,
		CreatedAt:   now,
	}

	if row.OrderDate != nil {
		if ts, ok := parseOrderDate(*row.OrderDate); ok {
			order.OrderDate = &ts
		}
	}
	order.AWBNumber = optional(row.AWBNumber)
	order.ProductName = optional(row.ProductName)
	order.ProductCode = optional(row.ProductCode)
	order.PNK = optional(row.PNK)
	order.Quantity = row.Quantity
	order.TotalPriceVAT = row.TotalPrice
	order.Currency = optional(row.Currency)
	order.OrderStatus = optional(row.OrderStatus)
	order.CustomerName = optional(row.CustomerName)
	order.PhoneNumber = optional(row.PhoneNumber)
	order.DeliveryPhone = optional(row.DeliveryPhone)

	return order
}

func (s *OrderService) listingKey(filter models.OrderFilter) string {
	return fmt.Sprintf("orders:user:%s:p%d:n%d:q%s:st%s:sb%s:%s",
		filter.UserID, filter.Page, filter.PageSize, filter.Search, filter.Status, filter.SortBy, filter.SortOrder)
}

func (s *OrderService) invalidateListings(ctx context.Context, userID string) {
	pattern := fmt.Sprintf("orders:user:%s:*", userID)
	if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("order listing cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

func buildOrderDataset(orders []models.Order) export.Dataset {
	rows := make([]map[string]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, map[string]string{
			"Order Number":   o.OrderNumber,
			"Order Date":     formatTimePtr(o.OrderDate),
			"AWB":            deref(o.AWBNumber),
			"Product":        deref(o.ProductName),
			"Product Code":   deref(o.ProductCode),
			"Quantity":       formatFloatPtr(o.Quantity),
			"Total (VAT)":    formatFloatPtr(o.TotalPriceVAT),
			"Currency":       deref(o.Currency),
			"Status":         deref(o.OrderStatus),
			"Customer":       deref(o.CustomerName),
			"Phone":          deref(o.PhoneNumber),
			"Delivery Phone": deref(o.DeliveryPhone),
		})
	}
	return export.Dataset{
		Headers: []string{
			"Order Number", "Order Date", "AWB", "Product", "Product Code",
			"Quantity", "Total (VAT)", "Currency", "Status", "Customer",
			"Phone", "Delivery Phone",
		},
		Rows: rows,
	}
}

func parseOrderDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range orderDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.Format("2006-01-02 15:04:05")
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}
