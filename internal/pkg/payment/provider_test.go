package payment

import (
	"context"
	"testing"
)

func TestProviderFromEnvSharesMockBackend(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "mock")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "provider-test-secret")

	first := ProviderFromEnv()
	second := ProviderFromEnv()
	if first != second {
		t.Fatalf("ProviderFromEnv returned different instances: %p vs %p", first, second)
	}

	mock, ok := first.(*MockProvider)
	if !ok {
		t.Fatalf("expected mock provider, got %T", first)
	}

	// A session opened through one handle must be visible through the other,
	// otherwise the shopper's next request cannot reconcile the payment.
	session, err := mock.CreateCheckoutSession(context.Background(), SessionParams{
		OrderID:   7,
		AttemptID: 3,
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	got, err := second.GetCheckoutSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetCheckoutSession via second handle: %v", err)
	}
	if got.ID != session.ID || got.OrderID != 7 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.URL != "/payment/mock/"+session.ID {
		t.Fatalf("unexpected mock page URL: %s", got.URL)
	}
}
