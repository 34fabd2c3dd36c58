package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swg-labs/smssend-api/internal/models"
	"github.com/swg-labs/smssend-api/pkg/config"
	appErrors "github.com/swg-labs/smssend-api/pkg/errors"
	"github.com/swg-labs/smssend-api/pkg/jobs"
)

type mockSmsOrderStore struct {
	orders []models.Order
}

func (m *mockSmsOrderStore) FindByIDs(ctx context.Context, userID string, ids []string) ([]models.Order, error) {
	out := make([]models.Order, 0, len(ids))
	for _, order := range m.orders {
		for _, id := range ids {
			if order.ID == id && order.UserID == userID {
				out = append(out, order)
			}
		}
	}
	return out, nil
}

type mockSmsLogStore struct {
	created []models.SmsLog
	sent    map[string]string
	failed  map[string]string
}

func newMockSmsLogStore() *mockSmsLogStore {
	return &mockSmsLogStore{sent: make(map[string]string), failed: make(map[string]string)}
}

func (m *mockSmsLogStore) Create(ctx context.Context, log *models.SmsLog) error {
	m.created = append(m.created, *log)
	return nil
}

func (m *mockSmsLogStore) MarkSent(ctx context.Context, id, messageID string) error {
	m.sent[id] = messageID
	return nil
}

func (m *mockSmsLogStore) MarkFailed(ctx context.Context, id, errorMessage string) error {
	m.failed[id] = errorMessage
	return nil
}

func (m *mockSmsLogStore) ListForUser(ctx context.Context, userID string, limit int) ([]models.SmsLog, error) {
	return m.created, nil
}

type mockSmsUserStore struct {
	user    *models.User
	token   *string
	sender  *string
	company *string
}

func (m *mockSmsUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	return m.user, nil
}

func (m *mockSmsUserStore) UpdateSmsSettings(ctx context.Context, id string, token, sender, companyName *string) error {
	m.token, m.sender, m.company = token, sender, companyName
	return nil
}

type mockSender struct {
	calls []struct {
		token, sender, phone, message string
	}
	err error
}

func (m *mockSender) Send(ctx context.Context, token, sender, phone, message string) (string, error) {
	m.calls = append(m.calls, struct{ token, sender, phone, message string }{token, sender, phone, message})
	if m.err != nil {
		return "", m.err
	}
	return "msg-1", nil
}

// inlineQueue runs each job synchronously through the handler.
type inlineQueue struct {
	handler jobs.Handler
	full    bool
}

func (q *inlineQueue) Enqueue(job jobs.Job) error {
	if q.full {
		return errors.New("queue full")
	}
	// Delivery failures stay inside the handler, as with the real queue.
	_ = q.handler(context.Background(), job)
	return nil
}

func strPtr(v string) *string { return &v }

func newSmsService(orders *mockSmsOrderStore, logs *mockSmsLogStore, users *mockSmsUserStore, sender *mockSender) (*SmsService, *inlineQueue) {
	cfg := config.SMSConfig{Token: "platform-token", Sender: "smssend"}
	svc := NewSmsService(orders, logs, users, &mockAudit{}, sender, nil, nil, zap.NewNop(), cfg)
	queue := &inlineQueue{handler: svc.HandleDispatchJob}
	svc.BindQueue(queue)
	return svc, queue
}

func smsTestOrders() []models.Order {
	return []models.Order{
		{ID: "o-1", UserID: "user-1", OrderNumber: "ORD-1", DeliveryPhone: strPtr("+40711111111"), CustomerName: strPtr("Ana")},
		{ID: "o-2", UserID: "user-1", OrderNumber: "ORD-2", PhoneNumber: strPtr("+40722222222")},
		{ID: "o-3", UserID: "user-1", OrderNumber: "ORD-3"},
		{ID: "o-4", UserID: "someone-else", OrderNumber: "ORD-4", PhoneNumber: strPtr("+40733333333")},
	}
}

func TestSmsServiceDispatchQueuesAndSends(t *testing.T) {
	orders := &mockSmsOrderStore{orders: smsTestOrders()}
	logs := newMockSmsLogStore()
	users := &mockSmsUserStore{user: &models.User{ID: "user-1"}}
	sender := &mockSender{}
	svc, _ := newSmsService(orders, logs, users, sender)

	res, err := svc.Dispatch(context.Background(), "user-1", models.SmsDispatchRequest{
		OrderIDs: []string{"o-1", "o-2", "o-3", "o-4"},
		Message:  "Hi {customer_name}, please review order {order_number}.",
	}, models.ClientMeta{})
	require.NoError(t, err)

	// o-3 has no phone, o-4 belongs to another user.
	assert.Equal(t, 2, res.Queued)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, logs.created, 2)
	assert.Len(t, logs.sent, 2)
	assert.Empty(t, logs.failed)

	require.Len(t, sender.calls, 2)
	assert.Equal(t, "platform-token", sender.calls[0].token)
	assert.Equal(t, "+40711111111", sender.calls[0].phone)
	assert.Equal(t, "Hi Ana, please review order ORD-1.", sender.calls[0].message)
	assert.Equal(t, "Hi , please review order ORD-2.", sender.calls[1].message)
}

func TestSmsServiceDispatchPrefersUserCredentials(t *testing.T) {
	orders := &mockSmsOrderStore{orders: smsTestOrders()}
	logs := newMockSmsLogStore()
	users := &mockSmsUserStore{user: &models.User{ID: "user-1", SMSAPIToken: strPtr("own-token"), SMSAPISender: strPtr("acme")}}
	sender := &mockSender{}
	svc, _ := newSmsService(orders, logs, users, sender)

	_, err := svc.Dispatch(context.Background(), "user-1", models.SmsDispatchRequest{OrderIDs: []string{"o-1"}, Message: "review please"}, models.ClientMeta{})
	require.NoError(t, err)

	require.Len(t, sender.calls, 1)
	assert.Equal(t, "own-token", sender.calls[0].token)
	assert.Equal(t, "acme", sender.calls[0].sender)
}

func TestSmsServiceGatewayFailureMarksLogFailed(t *testing.T) {
	orders := &mockSmsOrderStore{orders: smsTestOrders()}
	logs := newMockSmsLogStore()
	users := &mockSmsUserStore{user: &models.User{ID: "user-1"}}
	sender := &mockSender{err: errors.New("gateway timeout")}
	svc, _ := newSmsService(orders, logs, users, sender)

	res, err := svc.Dispatch(context.Background(), "user-1", models.SmsDispatchRequest{OrderIDs: []string{"o-1"}, Message: "review please"}, models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	require.Len(t, logs.created, 1)
	assert.Equal(t, "gateway timeout", logs.failed[logs.created[0].ID])
}

func TestSmsServiceSettingsAreMasked(t *testing.T) {
	users := &mockSmsUserStore{user: &models.User{ID: "user-1", SMSAPIToken: strPtr("secret-token"), SMSAPISender: strPtr("acme")}}
	svc, _ := newSmsService(&mockSmsOrderStore{}, newMockSmsLogStore(), users, &mockSender{})

	settings, err := svc.GetSettings(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, settings.TokenSet)
	assert.Equal(t, "acme", settings.Sender)

	updated, err := svc.UpdateSettings(context.Background(), "user-1", models.SmsSettingsRequest{Sender: "newname"}, models.ClientMeta{})
	require.NoError(t, err)
	assert.False(t, updated.TokenSet)
	assert.Nil(t, users.token)
	require.NotNil(t, users.sender)
	assert.Equal(t, "newname", *users.sender)
}

func TestSmsServiceDispatchWithoutCredentials(t *testing.T) {
	users := &mockSmsUserStore{user: &models.User{ID: "user-1"}}
	cfg := config.SMSConfig{}
	svc := NewSmsService(&mockSmsOrderStore{}, newMockSmsLogStore(), users, &mockAudit{}, &mockSender{}, nil, nil, zap.NewNop(), cfg)
	svc.BindQueue(&inlineQueue{handler: svc.HandleDispatchJob})

	_, err := svc.Dispatch(context.Background(), "user-1", models.SmsDispatchRequest{OrderIDs: []string{"o-1"}, Message: "review please"}, models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
