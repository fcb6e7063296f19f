package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/mail"
	"github.com/DanielKrause/ShopWerk/internal/pkg/ratelimit"
	"github.com/DanielKrause/ShopWerk/internal/pkg/token"
)

const (
	// At most 3 confirmation mails per normalized email per rolling hour.
	maxConfirmationMails   = 3
	confirmationMailWindow = time.Hour
)

// Service implements the draft store, the order materializer and the email
// confirmation gate.
type Service struct {
	repo     Repository
	mailer   mail.Sender
	counters ratelimit.CounterStore
	baseURL  string
	validate *validator.Validate
	now      func() time.Time
}

// NewService wires the checkout service from its collaborators.
func NewService(repo Repository, mailer mail.Sender, counters ratelimit.CounterStore, baseURL string) *Service {
	return &Service{
		repo:     repo,
		mailer:   mailer,
		counters: counters,
		baseURL:  baseURL,
		validate: validator.New(),
		now:      time.Now,
	}
}

// CreateOrRefreshDraft upserts the customer's single active draft from one
// details submission. Every refresh extends the expiry window.
func (s *Service) CreateOrRefreshDraft(ctx context.Context, in DraftInput) (*models.CheckoutDraft, *models.Customer, error) {
	_ = ctx
	if err := s.validate.Struct(in); err != nil {
		return nil, nil, err
	}

	customer, err := s.repo.GetOrCreateCustomer(in.Email)
	if err != nil {
		return nil, nil, err
	}
	customer.ApplyContact(in.FirstName, in.LastName, in.Phone)
	if in.UserID != nil && customer.UserID == nil {
		customer.UserID = in.UserID
	}
	if err := s.repo.SaveCustomer(customer); err != nil {
		return nil, nil, err
	}

	address := &models.Address{
		Street:      in.Street,
		Unit:        in.Unit,
		City:        in.City,
		Subdivision: in.Subdivision,
		PostalCode:  in.PostalCode,
		Country:     in.Country,
	}
	if err := s.repo.GetOrCreateAddress(address); err != nil {
		return nil, nil, err
	}

	draft := &models.CheckoutDraft{
		CustomerID: customer.ID,
		Email:      customer.Email,
		AddressID:  address.ID,
		Note:       in.Note,
		ExpiresAt:  s.now().Add(models.DraftTTL),
	}
	if err := draft.SetSnapshotLines(in.Lines); err != nil {
		return nil, nil, err
	}
	if err := s.repo.UpsertActiveDraft(draft); err != nil {
		return nil, nil, err
	}
	return draft, customer, nil
}

// DraftByID returns a draft or ErrDraftNotFound.
func (s *Service) DraftByID(ctx context.Context, id uint) (*models.CheckoutDraft, error) {
	_ = ctx
	draft, err := s.repo.DraftByID(id)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, ErrDraftNotFound
	}
	return draft, nil
}

// LatestDraftForCustomer is the guest-resume fallback when no token is
// present.
func (s *Service) LatestDraftForCustomer(ctx context.Context, customerID uint) (*models.CheckoutDraft, error) {
	_ = ctx
	return s.repo.LatestDraftForCustomer(customerID)
}

// RestoreCartFromDraft rehydrates live cart lines from the stored snapshot,
// silently dropping variants that no longer exist. Quantities come from the
// snapshot; names and prices from the live catalog.
func (s *Service) RestoreCartFromDraft(ctx context.Context, draft *models.CheckoutDraft) ([]CartLine, error) {
	_ = ctx
	snapshot, err := draft.SnapshotLines()
	if err != nil {
		return nil, fmt.Errorf("decode cart snapshot: %w", err)
	}

	ids := make([]uint, 0, len(snapshot))
	for _, line := range snapshot {
		ids = append(ids, line.VariantID)
	}
	variants, err := s.repo.VariantsByIDs(ids)
	if err != nil {
		return nil, err
	}

	lines := make([]CartLine, 0, len(snapshot))
	for _, line := range snapshot {
		variant, ok := variants[line.VariantID]
		if !ok {
			continue
		}
		lines = append(lines, CartLine{
			VariantID:      variant.ID,
			Name:           variant.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: variant.PriceCents,
			Currency:       variant.Currency,
		})
	}
	return lines, nil
}

// SendConfirmationEmail mails the checkout confirmation link, enforcing the
// per-address rate limit. The counter is incremented only after a successful
// send so a mail-provider outage does not consume the shopper's quota.
func (s *Service) SendConfirmationEmail(ctx context.Context, draft *models.CheckoutDraft) error {
	email := models.NormalizeEmail(draft.Email)
	key := "checkout:confirm:" + email

	count, err := s.counters.Count(ctx, key)
	if err != nil {
		return err
	}
	if count >= maxConfirmationMails {
		return ErrRateLimited
	}

	value, err := token.IssueCheckoutEmail(token.CheckoutEmailClaims{
		Email:   email,
		DraftID: draft.ID,
	})
	if err != nil {
		return err
	}
	link := s.baseURL + "/checkout/confirm?token=" + value

	subject, body := mail.BuildCheckoutConfirmation(link)
	if err := s.mailer.Send(email, subject, body); err != nil {
		return fmt.Errorf("send confirmation mail: %w", err)
	}

	if _, err := s.counters.Incr(ctx, key, confirmationMailWindow); err != nil {
		return err
	}
	return nil
}

// ConfirmEmail verifies a confirmation token, marks the email confirmed
// process-wide and stamps the draft. Re-clicking a still-valid link is
// harmless.
func (s *Service) ConfirmEmail(ctx context.Context, value string) (*models.CheckoutDraft, error) {
	_ = ctx
	claims, ok := token.ParseCheckoutEmail(value)
	if !ok {
		return nil, ErrInvalidToken
	}

	draft, err := s.repo.DraftByID(claims.DraftID)
	if err != nil {
		return nil, err
	}
	if draft == nil || models.NormalizeEmail(draft.Email) != claims.Email {
		return nil, ErrInvalidToken
	}

	now := s.now()
	if err := s.repo.MarkEmailConfirmed(claims.Email, now); err != nil {
		return nil, err
	}
	if err := s.repo.StampDraftEmailConfirmed(draft.ID, now); err != nil {
		return nil, err
	}
	if draft.EmailConfirmedAt == nil {
		draft.EmailConfirmedAt = &now
	}
	return draft, nil
}

// ConfirmKnownEmail stamps a draft whose address is already known to be
// owned by the shopper (account match or prior confirmation), skipping the
// mail round trip.
func (s *Service) ConfirmKnownEmail(ctx context.Context, draft *models.CheckoutDraft) (*models.CheckoutDraft, error) {
	_ = ctx
	now := s.now()
	if err := s.repo.MarkEmailConfirmed(models.NormalizeEmail(draft.Email), now); err != nil {
		return nil, err
	}
	if err := s.repo.StampDraftEmailConfirmed(draft.ID, now); err != nil {
		return nil, err
	}
	if draft.EmailConfirmedAt == nil {
		draft.EmailConfirmedAt = &now
	}
	return draft, nil
}

// IsEmailConfirmed reports whether checkout may progress for this email. An
// authenticated user whose account email matches is trusted without
// consulting the confirmation table.
func (s *Service) IsEmailConfirmed(ctx context.Context, email string, user *models.User) (bool, error) {
	_ = ctx
	normalized := models.NormalizeEmail(email)
	if user != nil && models.NormalizeEmail(user.Email) == normalized {
		return true, nil
	}
	return s.repo.IsEmailConfirmed(normalized)
}

// CreateOrderFromDraft materializes the order exactly once per draft. The
// draft row is locked for the duration; a draft that already links an order
// returns that order unchanged. Prices come from the live cart lines, not
// the snapshot.
func (s *Service) CreateOrderFromDraft(ctx context.Context, draftID uint, lines []CartLine) (*models.Order, error) {
	_ = ctx
	now := s.now()

	order, _, err := s.repo.CreateOrderFromDraft(draftID, func(draft *models.CheckoutDraft) (*models.Order, []models.OrderItem, error) {
		if !draft.IsValid(now) {
			return nil, nil, ErrDraftExpired
		}
		if draft.EmailConfirmedAt == nil {
			return nil, nil, ErrEmailNotConfirmed
		}
		if len(lines) == 0 {
			return nil, nil, ErrEmptyCart
		}

		currency := lines[0].Currency
		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, models.OrderItem{
				VariantID:      line.VariantID,
				Name:           line.Name,
				Quantity:       line.Quantity,
				UnitPriceCents: line.UnitPriceCents,
			})
		}

		order := &models.Order{
			OrderNumber:   uuid.NewString(),
			CustomerID:    draft.CustomerID,
			Email:         draft.Email,
			AddressID:     draft.AddressID,
			Note:          draft.Note,
			TotalCents:    TotalCents(lines),
			Currency:      currency,
			Status:        models.OrderStatusNew,
			PaymentStatus: models.PaymentStatusUnpaid,
		}
		return order, items, nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// OrderByID loads an order, nil when absent.
func (s *Service) OrderByID(ctx context.Context, id uint) (*models.Order, error) {
	_ = ctx
	return s.repo.OrderByID(id)
}

// OrderItems loads an order's immutable line items.
func (s *Service) OrderItems(ctx context.Context, orderID uint) ([]models.OrderItem, error) {
	_ = ctx
	return s.repo.OrderItems(orderID)
}
