package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/jobs"
)

// SmsSender hands one message to the SMS gateway and returns the
// provider message id.
type SmsSender interface {
	Send(ctx context.Context, token, sender, phone, message string) (string, error)
}

type smsOrderRepository interface {
	FindByIDs(ctx context.Context, userID string, ids []string) ([]models.Order, error)
}

type smsLogRepository interface {
	Create(ctx context.Context, log *models.SmsLog) error
	MarkSent(ctx context.Context, id, messageID string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	ListForUser(ctx context.Context, userID string, limit int) ([]models.SmsLog, error)
}

type smsUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateSmsSettings(ctx context.Context, id string, token, sender, companyName *string) error
}

type smsDispatchQueue interface {
	Enqueue(job jobs.Job) error
}

type smsMetrics interface {
	ObserveSmsDispatch(result string)
}

// smsJob is the payload carried through the dispatch queue.
type smsJob struct {
	LogID   string
	Phone   string
	Message string
	Token   string
	Sender  string
}

// SmsService queues review-request messages for imported orders and
// manages per-user sender settings.
type SmsService struct {
	orders    smsOrderRepository
	logs      smsLogRepository
	users     smsUserRepository
	audit     auditRecorder
	queue     smsDispatchQueue
	sender    SmsSender
	metrics   smsMetrics
	validator *validator.Validate
	logger    *zap.Logger
	config    config.SMSConfig
}

// NewSmsService constructs an SmsService. Call BindQueue before Dispatch.
func NewSmsService(
	orders smsOrderRepository,
	logs smsLogRepository,
	users smsUserRepository,
	audit auditRecorder,
	sender SmsSender,
	metrics smsMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.SMSConfig,
) *SmsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SmsService{
		orders:    orders,
		logs:      logs,
		users:     users,
		audit:     audit,
		sender:    sender,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
	}
}

// BindQueue attaches the dispatch queue. Separate from the constructor
// because the queue handler needs the service.
func (s *SmsService) BindQueue(queue smsDispatchQueue) {
	s.queue = queue
}

// Dispatch queues one message per selected order. Orders without any
// phone number are skipped, as are orders the user does not own.
func (s *SmsService) Dispatch(ctx context.Context, userID string, req models.SmsDispatchRequest, meta models.ClientMeta) (*models.SmsDispatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dispatch payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "dispatch queue not running")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	token, senderName := s.credentialsFor(user)
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no SMS credentials configured")
	}

	orders, err := s.orders.FindByIDs(ctx, userID, req.OrderIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch orders")
	}

	now := time.Now().UTC()
	queued := 0
	skipped := len(req.OrderIDs) - len(orders)

	for _, order := range orders {
		phone := dispatchPhone(order)
		if phone == "" {
			skipped++
			continue
		}

		entry := &models.SmsLog{
			ID:        uuid.NewString(),
			UserID:    userID,
			OrderID:   order.ID,
			Phone:     phone,
			Status:    models.SmsStatusQueued,
			CreatedAt: now,
		}
		if err := s.logs.Create(ctx, entry); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record dispatch")
		}

		job := jobs.Job{
			ID:   entry.ID,
			Type: "sms.dispatch",
			Payload: smsJob{
				LogID:   entry.ID,
				Phone:   phone,
				Message: renderMessage(req.Message, order),
				Token:   token,
				Sender:  senderName,
			},
			Enqueued: now,
		}
		if err := s.queue.Enqueue(job); err != nil {
			if markErr := s.logs.MarkFailed(ctx, entry.ID, "queue full"); markErr != nil {
				s.logger.Warn("failed to mark dispatch failed", zap.String("log_id", entry.ID), zap.Error(markErr))
			}
			skipped++
			continue
		}
		queued++
	}

	recordAudit(ctx, s.audit, s.logger, &userID, models.AuditActionSmsDispatch, meta, map[string]interface{}{
		"queued":  queued,
		"skipped": skipped,
	})

	return &models.SmsDispatchResult{Queued: queued, Skipped: skipped}, nil
}

// HandleDispatchJob is the queue handler delivering one queued message.
func (s *SmsService) HandleDispatchJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(smsJob)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	messageID, err := s.sender.Send(ctx, payload.Token, payload.Sender, payload.Phone, payload.Message)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveSmsDispatch("failed")
		}
		if markErr := s.logs.MarkFailed(ctx, payload.LogID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark dispatch failed", zap.String("log_id", payload.LogID), zap.Error(markErr))
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.ObserveSmsDispatch("sent")
	}
	if err := s.logs.MarkSent(ctx, payload.LogID, messageID); err != nil {
		s.logger.Warn("failed to mark dispatch sent", zap.String("log_id", payload.LogID), zap.Error(err))
	}
	return nil
}

// History returns the user's most recent dispatch log rows.
func (s *SmsService) History(ctx context.Context, userID string, limit int) ([]models.SmsLog, error) {
	logs, err := s.logs.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dispatch history")
	}
	return logs, nil
}

// GetSettings returns the masked per-user sender configuration. The
// stored token is never echoed back.
func (s *SmsService) GetSettings(ctx context.Context, userID string) (*models.SmsSettings, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	settings := &models.SmsSettings{
		TokenSet: user.SMSAPIToken != nil && *user.SMSAPIToken != "",
	}
	if user.SMSAPISender != nil {
		settings.Sender = *user.SMSAPISender
	}
	if user.SMSCompanyName != nil {
		settings.CompanyName = *user.SMSCompanyName
	}
	return settings, nil
}

// UpdateSettings replaces the per-user sender configuration. Clearing
// the token falls back to the platform credentials.
func (s *SmsService) UpdateSettings(ctx context.Context, userID string, req models.SmsSettingsRequest, meta models.ClientMeta) (*models.SmsSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}

	token := optional(req.Token)
	sender := optional(req.Sender)
	company := optional(req.CompanyName)

	if err := s.users.UpdateSmsSettings(ctx, userID, token, sender, company); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update settings")
	}

	recordAudit(ctx, s.audit, s.logger, &userID, models.AuditActionSettingsUpdate, meta, map[string]interface{}{
		"token_set": token != nil,
	})

	return &models.SmsSettings{
		TokenSet:    token != nil,
		Sender:      req.Sender,
		CompanyName: req.CompanyName,
	}, nil
}

func (s *SmsService) credentialsFor(user *models.User) (token, sender string) {
	token = s.config.Token
	sender = s.config.Sender
	if user.SMSAPIToken != nil && *user.SMSAPIToken != "" {
		token = *user.SMSAPIToken
		sender = ""
	}
	if user.SMSAPISender != nil && *user.SMSAPISender != "" {
		sender = *user.SMSAPISender
	}
	return token, sender
}

// dispatchPhone prefers the delivery contact over the billing one.
func dispatchPhone(order models.Order) string {
	if order.DeliveryPhone != nil && strings.TrimSpace(*order.DeliveryPhone) != "" {
		return strings.TrimSpace(*order.DeliveryPhone)
	}
	if order.PhoneNumber != nil && strings.TrimSpace(*order.PhoneNumber) != "" {
		return strings.TrimSpace(*order.PhoneNumber)
	}
	return ""
}

// renderMessage fills the placeholders users may embed in their
// template.
func renderMessage(template string, order models.Order) string {
	msg := template
	msg = strings.ReplaceAll(msg, "{order_number}", order.OrderNumber)
	name := ""
	if order.CustomerName != nil {
		name = *order.CustomerName
	}
	msg = strings.ReplaceAll(msg, "{customer_name}", name)
	product := ""
	if order.ProductName != nil {
		product = *order.ProductName
	}
	msg = strings.ReplaceAll(msg, "{product_name}", product)
	return msg
}
