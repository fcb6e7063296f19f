package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockProvider is an in-memory provider for development and tests. Sessions
// open in status "open"/"unpaid" and are driven to their outcome with the
// Complete/Expire/Fail helpers. Webhook signatures use the same scheme as the
// real provider so the webhook handler is exercised unchanged.
type MockProvider struct {
	mu       sync.Mutex
	secret   string
	sessions map[string]*Session
	intents  map[string]*Intent
}

func NewMockProvider(webhookSecret string) *MockProvider {
	return &MockProvider{
		secret:   webhookSecret,
		sessions: make(map[string]*Session),
		intents:  make(map[string]*Intent),
	}
}

func (m *MockProvider) Name() string {
	return ProviderMock
}

func (m *MockProvider) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	id := "cs_mock_" + uuid.NewString()
	intentID := "pi_mock_" + uuid.NewString()

	session := &Session{
		ID:              id,
		Status:          "open",
		PaymentStatus:   "unpaid",
		URL:             "/payment/mock/" + id,
		SuccessURL:      params.SuccessURL,
		CancelURL:       params.CancelURL,
		PaymentIntentID: intentID,
		OrderID:         params.OrderID,
		AttemptID:       params.AttemptID,
	}
	m.sessions[id] = session
	m.intents[intentID] = &Intent{ID: intentID, Status: "requires_payment_method"}

	copied := *session
	return &copied, nil
}

func (m *MockProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, &ProviderError{Kind: ErrKindRequest, Code: "resource_missing", Message: fmt.Sprintf("no such checkout session: %s", sessionID)}
	}
	copied := *session
	return &copied, nil
}

func (m *MockProvider) GetPaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[intentID]
	if !ok {
		return nil, &ProviderError{Kind: ErrKindRequest, Code: "resource_missing", Message: fmt.Sprintf("no such payment intent: %s", intentID)}
	}
	copied := *intent
	return &copied, nil
}

func (m *MockProvider) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	return VerifyStripeSignature(payload, signatureHeader, m.secret, signatureTolerance, time.Now())
}

// SignPayload builds a header that VerifyWebhookSignature accepts.
func (m *MockProvider) SignPayload(payload []byte, at time.Time) string {
	return BuildStripeSignatureHeader(payload, m.secret, at)
}

// CompleteSession drives a session to complete/paid and its intent to
// succeeded.
func (m *MockProvider) CompleteSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	session.Status = "complete"
	session.PaymentStatus = "paid"
	if intent, ok := m.intents[session.PaymentIntentID]; ok {
		intent.Status = "succeeded"
	}
	return true
}

// ExpireSession drives an unpaid session to expired.
func (m *MockProvider) ExpireSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || session.PaymentStatus == "paid" {
		return false
	}
	session.Status = "expired"
	if intent, ok := m.intents[session.PaymentIntentID]; ok {
		intent.Status = "canceled"
	}
	return true
}

// FailIntent records a payment failure on the session's intent while leaving
// the session open for another try.
func (m *MockProvider) FailIntent(sessionID, code, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	intent, ok := m.intents[session.PaymentIntentID]
	if !ok {
		return false
	}
	intent.Status = "requires_payment_method"
	intent.LastErrorCode = code
	intent.LastErrorMessage = message
	return true
}
