package checkout

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/ratelimit"
	"github.com/DanielKrause/ShopWerk/internal/pkg/token"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_SECRET", "checkout-test-secret")
	os.Exit(m.Run())
}

// fakeMailer records sends and can be told to fail.
type fakeMailer struct {
	sent []string
	fail error
}

func (f *fakeMailer) Send(to, subject, htmlBody string) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, to)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepository, *fakeMailer) {
	t.Helper()
	repo := newFakeRepository()
	mailer := &fakeMailer{}
	svc := NewService(repo, mailer, ratelimit.NewMemoryStore(), "https://shop.example")
	return svc, repo, mailer
}

func validInput() DraftInput {
	return DraftInput{
		Email:      "Kunde@Example.com ",
		FirstName:  "Erika",
		LastName:   "Mustermann",
		Street:     "Musterstraße 1",
		City:       "Berlin",
		PostalCode: "10115",
		Country:    "DE",
		Lines: []models.CartSnapshotLine{
			{VariantID: 101, Quantity: 2, UnitPriceCents: 1995},
		},
	}
}

func TestCreateOrRefreshDraft(t *testing.T) {
	svc, repo, _ := newTestService(t)

	draft, customer, err := svc.CreateOrRefreshDraft(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "kunde@example.com", customer.Email)
	assert.Equal(t, customer.Email, draft.Email)
	assert.NotZero(t, draft.AddressID)
	assert.True(t, draft.ExpiresAt.After(time.Now()))

	// A second submission refreshes the same draft instead of stacking a new
	// one.
	again, _, err := svc.CreateOrRefreshDraft(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, draft.ID, again.ID)
	assert.Len(t, repo.drafts, 1)
}

func TestCreateOrRefreshDraftValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	in := validInput()
	in.Email = "not-an-email"
	_, _, err := svc.CreateOrRefreshDraft(context.Background(), in)
	assert.Error(t, err)

	in = validInput()
	in.Country = "Deutschland"
	_, _, err = svc.CreateOrRefreshDraft(context.Background(), in)
	assert.Error(t, err)
}

func TestDraftRefreshWithChangedEmailDropsConfirmation(t *testing.T) {
	svc, _, _ := newTestService(t)

	draft, _, err := svc.CreateOrRefreshDraft(context.Background(), validInput())
	require.NoError(t, err)

	now := time.Now()
	draft.EmailConfirmedAt = &now

	// Same email: the stamp survives the refresh.
	same, _, err := svc.CreateOrRefreshDraft(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotNil(t, same.EmailConfirmedAt)

	// Changed email: the stamp is dropped, confirmation starts over.
	in := validInput()
	in.Email = "andere@example.com"
	changed, _, err := svc.CreateOrRefreshDraft(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, changed.ID)
	assert.Nil(t, changed.EmailConfirmedAt)
}

func TestSendConfirmationEmailRateLimit(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	draft, _, err := svc.CreateOrRefreshDraft(ctx, validInput())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.SendConfirmationEmail(ctx, draft))
	}
	assert.Len(t, mailer.sent, 3)

	err = svc.SendConfirmationEmail(ctx, draft)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, mailer.sent, 3)
}

func TestSendConfirmationEmailFailureKeepsQuota(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	draft, _, err := svc.CreateOrRefreshDraft(ctx, validInput())
	require.NoError(t, err)

	mailer.fail = errors.New("smtp down")
	for i := 0; i < 5; i++ {
		require.Error(t, svc.SendConfirmationEmail(ctx, draft))
	}

	// Failed sends never reached the shopper, so the full quota remains.
	mailer.fail = nil
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.SendConfirmationEmail(ctx, draft))
	}
}

func TestConfirmEmail(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	draft, _, err := svc.CreateOrRefreshDraft(ctx, validInput())
	require.NoError(t, err)

	value, err := token.IssueCheckoutEmail(token.CheckoutEmailClaims{
		Email:   draft.Email,
		DraftID: draft.ID,
	})
	require.NoError(t, err)

	confirmed, err := svc.ConfirmEmail(ctx, value)
	require.NoError(t, err)
	require.NotNil(t, confirmed.EmailConfirmedAt)

	ok, err := repo.IsEmailConfirmed(draft.Email)
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-clicking a still-valid link stays harmless.
	_, err = svc.ConfirmEmail(ctx, value)
	assert.NoError(t, err)
}

func TestConfirmEmailRejectsGarbageAndMismatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ConfirmEmail(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Token for a draft whose email has since changed.
	draft, _, err := svc.CreateOrRefreshDraft(ctx, validInput())
	require.NoError(t, err)
	value, err := token.IssueCheckoutEmail(token.CheckoutEmailClaims{
		Email:   "alt@example.com",
		DraftID: draft.ID,
	})
	require.NoError(t, err)

	_, err = svc.ConfirmEmail(ctx, value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIsEmailConfirmedTrustsMatchingAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user := &models.User{Email: "kunde@example.com"}
	ok, err := svc.IsEmailConfirmed(ctx, "Kunde@Example.com", user)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsEmailConfirmed(ctx, "fremd@example.com", user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreCartFromDraftDropsStaleVariants(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	live := repo.addVariant(models.ProductVariant{Name: "Tasse blau", PriceCents: 1495, Currency: "eur", Active: true})
	gone := repo.addVariant(models.ProductVariant{Name: "Tasse rot", PriceCents: 1495, Currency: "eur", Active: false})

	draft := &models.CheckoutDraft{}
	require.NoError(t, draft.SetSnapshotLines([]models.CartSnapshotLine{
		{VariantID: live.ID, Quantity: 2, UnitPriceCents: 999}, // stale snapshot price
		{VariantID: gone.ID, Quantity: 1, UnitPriceCents: 1495},
	}))

	lines, err := svc.RestoreCartFromDraft(ctx, draft)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, live.ID, lines[0].VariantID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, int64(1495), lines[0].UnitPriceCents, "pricing comes from the live catalog, not the snapshot")
}

func confirmedDraft(t *testing.T, svc *Service) *models.CheckoutDraft {
	t.Helper()
	draft, _, err := svc.CreateOrRefreshDraft(context.Background(), validInput())
	require.NoError(t, err)
	now := time.Now()
	draft.EmailConfirmedAt = &now
	return draft
}

func cartLines() []CartLine {
	return []CartLine{
		{VariantID: 101, Name: "Tasse blau", Quantity: 2, UnitPriceCents: 1995, Currency: "eur"},
		{VariantID: 102, Name: "Teller", Quantity: 1, UnitPriceCents: 1000, Currency: "eur"},
	}
}

func TestCreateOrderFromDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	draft := confirmedDraft(t, svc)

	order, err := svc.CreateOrderFromDraft(ctx, draft.ID, cartLines())
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderNumber)
	assert.Equal(t, int64(4990), order.TotalCents)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Len(t, order.Items, 2)
}

func TestCreateOrderFromDraftIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	draft := confirmedDraft(t, svc)

	first, err := svc.CreateOrderFromDraft(ctx, draft.ID, cartLines())
	require.NoError(t, err)

	second, err := svc.CreateOrderFromDraft(ctx, draft.ID, cartLines())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "a draft materializes exactly one order")
}

func TestCreateOrderFromDraftGuards(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateOrderFromDraft(ctx, 9999, cartLines())
	assert.ErrorIs(t, err, ErrDraftNotFound)

	// Unconfirmed email.
	draft, _, err := svc.CreateOrRefreshDraft(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.CreateOrderFromDraft(ctx, draft.ID, cartLines())
	assert.ErrorIs(t, err, ErrEmailNotConfirmed)

	// Empty cart.
	now := time.Now()
	draft.EmailConfirmedAt = &now
	_, err = svc.CreateOrderFromDraft(ctx, draft.ID, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)

	// Expired draft.
	repo.drafts[draft.ID].ExpiresAt = time.Now().Add(-time.Minute)
	_, err = svc.CreateOrderFromDraft(ctx, draft.ID, cartLines())
	assert.ErrorIs(t, err, ErrDraftExpired)
}
