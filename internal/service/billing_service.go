package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/export"
	"github.com/swg-labs/smssend-api/pkg/storage"
)

// CreditPack describes one purchasable SMS bundle.
type CreditPack struct {
	Name     string
	Messages int
	Price    float64
}

// creditPacks is the fixed catalogue; prices are in the configured
// currency.
var creditPacks = map[string]CreditPack{
	"starter":  {Name: "Starter", Messages: 500, Price: 19},
	"standard": {Name: "Standard", Messages: 2000, Price: 59},
	"pro":      {Name: "Pro", Messages: 10000, Price: 199},
}

// CheckoutProvider is the payment gateway. The production implementation
// talks to a hosted checkout API over HTTP.
type CheckoutProvider interface {
	EnsureCustomer(ctx context.Context, email, name string) (string, error)
	CreateSession(ctx context.Context, customerID, packName string, amount float64, currency, successURL, cancelURL string) (*models.CheckoutSession, error)
}

type billingUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetBillingCustomerID(ctx context.Context, id, customerID string) error
}

type pdfInvoiceRenderer interface {
	RenderInvoice(meta export.InvoiceMeta, items export.Dataset) ([]byte, error)
}

// BillingService sells SMS credit packs through a hosted checkout and
// renders invoice PDFs.
type BillingService struct {
	users     billingUserRepository
	audit     auditRecorder
	provider  CheckoutProvider
	pdf       pdfInvoiceRenderer
	storage   fileStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	config    config.BillingConfig
	apiPrefix string
}

// NewBillingService constructs a BillingService.
func NewBillingService(
	users billingUserRepository,
	audit auditRecorder,
	provider CheckoutProvider,
	store fileStorage,
	signer *storage.SignedURLSigner,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.BillingConfig,
	apiPrefix string,
) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &BillingService{
		users:     users,
		audit:     audit,
		provider:  provider,
		pdf:       export.NewPDFExporter(),
		storage:   store,
		signer:    signer,
		validator: validate,
		logger:    logger,
		config:    cfg,
		apiPrefix: apiPrefix,
	}
}

// Checkout opens a hosted checkout session for the requested pack. The
// provider customer id is created on first purchase and reused after.
func (s *BillingService) Checkout(ctx context.Context, userID string, req models.CheckoutRequest, meta models.ClientMeta) (*models.CheckoutSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}

	pack, ok := creditPacks[req.Pack]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown pack")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	customerID := ""
	if user.BillingCustomerID != nil {
		customerID = *user.BillingCustomerID
	}
	if customerID == "" {
		customerID, err = s.provider.EnsureCustomer(ctx, user.Email, user.FirstName+" "+user.LastName)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "payment provider unavailable")
		}
		if err := s.users.SetBillingCustomerID(ctx, userID, customerID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store customer id")
		}
	}

	session, err := s.provider.CreateSession(ctx, customerID, req.Pack, pack.Price, s.config.Currency, s.config.SuccessURL, s.config.CancelURL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamUnavailable.Code, appErrors.ErrUpstreamUnavailable.Status, "payment provider unavailable")
	}

	recordAudit(ctx, s.audit, s.logger, &userID, models.AuditActionCheckout, meta, map[string]interface{}{
		"pack":       req.Pack,
		"session_id": session.SessionID,
	})

	return session, nil
}

// GenerateInvoice renders an invoice PDF for a purchased pack and
// returns a signed, expiring download link.
func (s *BillingService) GenerateInvoice(ctx context.Context, userID, packName string) (*models.Invoice, error) {
	pack, ok := creditPacks[packName]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown pack")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	now := time.Now().UTC()
	number := fmt.Sprintf("INV-%s-%s", now.Format("20060102"), strings.ToUpper(userID[:8]))

	meta := export.InvoiceMeta{
		Number:    number,
		IssuedAt:  now.Format("2006-01-02"),
		Customer:  invoiceCustomerLines(user),
		TotalLine: fmt.Sprintf("Total: %.2f %s", pack.Price, s.config.Currency),
	}
	items := export.Dataset{
		Headers: []string{"Item", "Messages", "Price"},
		Rows: []map[string]string{
			{
				"Item":     fmt.Sprintf("SMS credit pack %q", pack.Name),
				"Messages": fmt.Sprintf("%d", pack.Messages),
				"Price":    fmt.Sprintf("%.2f %s", pack.Price, s.config.Currency),
			},
		},
	}

	payload, err := s.pdf.RenderInvoice(meta, items)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice")
	}

	filename := fmt.Sprintf("%s.pdf", strings.ToLower(number))
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store invoice")
	}

	token, expiresAt, err := s.signer.Generate(userID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	prefix := strings.TrimRight(s.apiPrefix, "/")
	if prefix == "" {
		prefix = "/api"
	}

	return &models.Invoice{
		Number:    number,
		FileName:  filename,
		URL:       fmt.Sprintf("%s/billing/invoices/%s", prefix, token),
		ExpiresAt: expiresAt,
		Total:     pack.Price,
		Currency:  s.config.Currency,
	}, nil
}

// ResolveInvoice turns a signed download token back into a stored file
// path, refusing tokens minted for another user.
func (s *BillingService) ResolveInvoice(userID, token string) (string, error) {
	ownerID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || ownerID != userID {
		return "", appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "invalid or expired download link")
	}
	return relPath, nil
}

func invoiceCustomerLines(user *models.User) []string {
	lines := []string{user.FirstName + " " + user.LastName}
	if user.CompanyName != nil && *user.CompanyName != "" {
		line := *user.CompanyName
		if user.CompanyCUI != nil && *user.CompanyCUI != "" {
			line += " (CUI " + *user.CompanyCUI + ")"
		}
		lines = append(lines, line)
	}
	street := strings.TrimSpace(user.Street + " " + user.StreetNo)
	if street != "" {
		lines = append(lines, street)
	}
	locality := strings.TrimSpace(strings.Trim(user.Locality+", "+user.County, ", "))
	if locality != "" {
		lines = append(lines, locality)
	}
	return lines
}
