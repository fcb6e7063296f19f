package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/DanielKrause/ShopWerk/internal/pkg/env"
)

// Provider is the narrow capability surface the core needs from a payment
// provider. The real Stripe client and the deterministic mock both implement
// it; selection happens via configuration.
type Provider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*Intent, error)
	VerifyWebhookSignature(payload []byte, signatureHeader string) bool
}

var (
	providerOnce   sync.Once
	sharedProvider Provider
)

// ProviderFromEnv returns the configured provider backend. The configuration
// is read once and the same instance is shared process-wide: the mock keeps
// its sessions in memory, so every request must talk to the same backend.
func ProviderFromEnv() Provider {
	providerOnce.Do(func() {
		switch strings.ToLower(env.GetEnv("PAYMENT_PROVIDER", ProviderStripe)) {
		case ProviderMock:
			sharedProvider = NewMockProvider(env.GetEnv("PAYMENT_WEBHOOK_SECRET", "mock-secret"))
		default:
			sharedProvider = NewStripeClientFromEnv()
		}
	})
	return sharedProvider
}
