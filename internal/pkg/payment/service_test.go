package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielKrause/ShopWerk/app/models"
)

func newTestService(t *testing.T) (*Service, *fakeRepository, *MockProvider) {
	t.Helper()
	repo := newFakeRepository()
	provider := NewMockProvider("whsec_test")
	return NewService(repo, provider), repo, provider
}

func seedOrder(repo *fakeRepository) *models.Order {
	order := repo.addOrder(&models.Order{
		OrderNumber:   "a4c7e0ce-0000-4000-8000-000000000001",
		CustomerID:    1,
		Email:         "kunde@example.com",
		TotalCents:    4990,
		Currency:      "eur",
		Status:        models.OrderStatusNew,
		PaymentStatus: models.PaymentStatusUnpaid,
	})
	repo.addDraft(&models.CheckoutDraft{
		CustomerID: order.CustomerID,
		Email:      order.Email,
		OrderID:    &order.ID,
		Active:     models.DraftActive(),
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	return order
}

func eventPayload(t *testing.T, eventID, eventType string, object interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": eventType,
		"data": map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func sessionObject(session *Session, order *models.Order, attemptID uint) map[string]interface{} {
	return map[string]interface{}{
		"id":             session.ID,
		"payment_intent": session.PaymentIntentID,
		"metadata": map[string]string{
			"order_id":           fmt.Sprint(order.ID),
			"payment_attempt_id": fmt.Sprint(attemptID),
		},
	}
}

func TestStartPaymentOpensSessionAndPersistsJoinKeys(t *testing.T) {
	svc, repo, _ := newTestService(t)
	order := seedOrder(repo)

	session, err := svc.StartPayment(context.Background(), order, "https://shop/payment/result", "https://shop/checkout", nil)
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)

	stored, _ := repo.OrderByID(order.ID)
	assert.Equal(t, session.ID, stored.StripeCheckoutSessionID)
	assert.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)

	attempt, _ := repo.AttemptBySessionID(ProviderMock, session.ID)
	require.NotNil(t, attempt)
	assert.Equal(t, models.AttemptStatusPending, attempt.Status)
	assert.Equal(t, order.TotalCents, attempt.AmountCents)
}

func TestStartPaymentReusesOpenSession(t *testing.T) {
	svc, repo, _ := newTestService(t)
	order := seedOrder(repo)

	first, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)

	second, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestStartPaymentRejectsPaidOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	order := seedOrder(repo)
	order.PaymentStatus = models.PaymentStatusPaid

	_, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestHandleWebhookSessionCompleted(t *testing.T) {
	svc, repo, provider := newTestService(t)
	order := seedOrder(repo)

	session, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	attempt, _ := repo.AttemptBySessionID(ProviderMock, session.ID)
	provider.CompleteSession(session.ID)

	payload := eventPayload(t, "evt_complete_1", "checkout.session.completed", sessionObject(session, order, attempt.ID))
	header := provider.SignPayload(payload, time.Now())

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))

	stored, _ := repo.OrderByID(order.ID)
	assert.Equal(t, models.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, session.PaymentIntentID, stored.StripePaymentIntentID)

	attempt, _ = repo.AttemptByID(attempt.ID)
	assert.Equal(t, models.AttemptStatusSucceeded, attempt.Status)
	require.NotNil(t, attempt.FinalizedAt)

	for _, draft := range repo.drafts {
		assert.NotNil(t, draft.UsedAt)
		assert.Nil(t, draft.Active)
	}

	event, _ := repo.GetWebhookEvent(ProviderMock, "evt_complete_1")
	require.NotNil(t, event)
	assert.True(t, event.OK)
}

func TestHandleWebhookRedeliveryIsIdempotent(t *testing.T) {
	svc, repo, provider := newTestService(t)
	order := seedOrder(repo)

	session, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	attempt, _ := repo.AttemptBySessionID(ProviderMock, session.ID)

	payload := eventPayload(t, "evt_dup_1", "checkout.session.completed", sessionObject(session, order, attempt.ID))
	header := provider.SignPayload(payload, time.Now())

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	paidCallsAfterFirst := repo.orderPaidCalls

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, paidCallsAfterFirst, repo.orderPaidCalls, "redelivery must not reprocess")
}

func TestHandleWebhookExpiryAfterSuccessIsHarmless(t *testing.T) {
	svc, repo, provider := newTestService(t)
	order := seedOrder(repo)

	session, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	attempt, _ := repo.AttemptBySessionID(ProviderMock, session.ID)

	completed := eventPayload(t, "evt_order_1", "checkout.session.completed", sessionObject(session, order, attempt.ID))
	require.NoError(t, svc.HandleWebhook(context.Background(), completed, provider.SignPayload(completed, time.Now())))

	expired := eventPayload(t, "evt_order_2", "checkout.session.expired", sessionObject(session, order, attempt.ID))
	require.NoError(t, svc.HandleWebhook(context.Background(), expired, provider.SignPayload(expired, time.Now())))

	stored, _ := repo.OrderByID(order.ID)
	assert.Equal(t, models.PaymentStatusPaid, stored.PaymentStatus)

	attempt, _ = repo.AttemptByID(attempt.ID)
	assert.Equal(t, models.AttemptStatusSucceeded, attempt.Status)
}

func TestHandleWebhookInvalidSignatureWritesNothing(t *testing.T) {
	svc, repo, _ := newTestService(t)
	order := seedOrder(repo)

	payload := eventPayload(t, "evt_forged_1", "checkout.session.completed", map[string]interface{}{
		"id":       "cs_forged",
		"metadata": map[string]string{"order_id": fmt.Sprint(order.ID)},
	})

	err := svc.HandleWebhook(context.Background(), payload, "t=123,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	event, _ := repo.GetWebhookEvent(ProviderMock, "evt_forged_1")
	assert.Nil(t, event, "rejected events must not reach the ledger")

	stored, _ := repo.OrderByID(order.ID)
	assert.Equal(t, models.PaymentStatusUnpaid, stored.PaymentStatus)
}

func TestHandleWebhookIntentFailed(t *testing.T) {
	svc, repo, provider := newTestService(t)
	order := seedOrder(repo)

	session, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	attempt, _ := repo.AttemptBySessionID(ProviderMock, session.ID)

	payload := eventPayload(t, "evt_failed_1", "payment_intent.payment_failed", map[string]interface{}{
		"id": session.PaymentIntentID,
		"last_payment_error": map[string]string{
			"code":    "card_declined",
			"message": "Your card was declined.",
		},
	})
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, provider.SignPayload(payload, time.Now())))

	attempt, _ = repo.AttemptByID(attempt.ID)
	assert.Equal(t, models.AttemptStatusFailed, attempt.Status)
	assert.Equal(t, "card_declined", attempt.FailureCode)
	assert.Equal(t, "Your card was declined.", attempt.FailureMessage)

	stored, _ := repo.OrderByID(order.ID)
	assert.Equal(t, models.PaymentStatusFailed, stored.PaymentStatus)
}

func TestHandleWebhookStoresRawPayloadOnAttempt(t *testing.T) {
	svc, repo, provider := newTestService(t)
	order := seedOrder(repo)

	session, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	attempt, _ := repo.AttemptBySessionID(ProviderMock, session.ID)
	provider.CompleteSession(session.ID)

	payload := eventPayload(t, "evt_payload_1", "checkout.session.completed", sessionObject(session, order, attempt.ID))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, provider.SignPayload(payload, time.Now())))

	attempt, _ = repo.AttemptByID(attempt.ID)
	require.NotEmpty(t, attempt.RawPayloadJSON, "the deciding provider object must be kept for audits")
	assert.Contains(t, attempt.RawPayloadJSON, session.ID)

	var object map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(attempt.RawPayloadJSON), &object))
}

func TestHandleWebhookIntentFailedStoresRawPayload(t *testing.T) {
	svc, repo, provider := newTestService(t)
	order := seedOrder(repo)

	session, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	attempt, _ := repo.AttemptBySessionID(ProviderMock, session.ID)

	payload := eventPayload(t, "evt_payload_2", "payment_intent.payment_failed", map[string]interface{}{
		"id": session.PaymentIntentID,
		"last_payment_error": map[string]string{
			"code":    "card_declined",
			"message": "Your card was declined.",
		},
	})
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, provider.SignPayload(payload, time.Now())))

	attempt, _ = repo.AttemptByID(attempt.ID)
	require.NotEmpty(t, attempt.RawPayloadJSON)
	assert.Contains(t, attempt.RawPayloadJSON, "card_declined")
}

func TestHandleWebhookUnknownTypeIsAcknowledged(t *testing.T) {
	svc, repo, provider := newTestService(t)

	payload := eventPayload(t, "evt_other_1", "customer.subscription.updated", map[string]interface{}{"id": "sub_1"})
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, provider.SignPayload(payload, time.Now())))

	event, _ := repo.GetWebhookEvent(ProviderMock, "evt_other_1")
	require.NotNil(t, event)
	assert.True(t, event.OK)
}

func TestResolveRemoteResultPendingWhileOpen(t *testing.T) {
	svc, repo, _ := newTestService(t)
	order := seedOrder(repo)

	_, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	order, _ = repo.OrderByID(order.ID)

	result, err := svc.ResolveRemoteResult(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, ResultPending, result)
}

func TestResolveRemoteResultSelfHealsPaidOrder(t *testing.T) {
	svc, repo, provider := newTestService(t)
	order := seedOrder(repo)

	session, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	provider.CompleteSession(session.ID)

	order, _ = repo.OrderByID(order.ID)
	result, err := svc.ResolveRemoteResult(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, ResultPaid, result)

	stored, _ := repo.OrderByID(order.ID)
	assert.Equal(t, models.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, session.PaymentIntentID, stored.StripePaymentIntentID)

	attempt, _ := repo.AttemptBySessionID(ProviderMock, session.ID)
	assert.Equal(t, models.AttemptStatusSucceeded, attempt.Status)
}

func TestResolveRemoteResultExpiredSession(t *testing.T) {
	svc, repo, provider := newTestService(t)
	order := seedOrder(repo)

	session, err := svc.StartPayment(context.Background(), order, "https://shop/ok", "https://shop/back", nil)
	require.NoError(t, err)
	provider.ExpireSession(session.ID)

	order, _ = repo.OrderByID(order.ID)
	result, err := svc.ResolveRemoteResult(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, ResultExpired, result)

	attempt, _ := repo.AttemptBySessionID(ProviderMock, session.ID)
	assert.Equal(t, models.AttemptStatusExpired, attempt.Status)
	assert.Equal(t, expiredSessionMessage, attempt.FailureMessage)

	stored, _ := repo.OrderByID(order.ID)
	assert.Equal(t, models.PaymentStatusExpired, stored.PaymentStatus)
}

func TestResolveRemoteResultWithoutSession(t *testing.T) {
	svc, repo, _ := newTestService(t)
	order := seedOrder(repo)

	_, err := svc.ResolveRemoteResult(context.Background(), order)
	assert.ErrorIs(t, err, ErrNoSession)
}

// unreachableProvider simulates provider downtime on every read.
type unreachableProvider struct {
	*MockProvider
}

func (p *unreachableProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	return nil, &ProviderError{Kind: ErrKindTransient, Code: "connection_error", Message: "provider unreachable"}
}

func TestResolveRemoteResultTransientErrorReadsAsPending(t *testing.T) {
	repo := newFakeRepository()
	mock := NewMockProvider("whsec_test")
	svc := NewService(repo, &unreachableProvider{MockProvider: mock})
	order := seedOrder(repo)
	order.StripeCheckoutSessionID = "cs_mock_unreachable"

	result, err := svc.ResolveRemoteResult(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, ResultPending, result, "infrastructure trouble must not read as payment failure")

	stored, _ := repo.OrderByID(order.ID)
	assert.NotEqual(t, models.PaymentStatusFailed, stored.PaymentStatus)
}
