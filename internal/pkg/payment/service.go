package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/DanielKrause/ShopWerk/app/models"
)

const expiredSessionMessage = "session expired before payment completed"

// Service drives payments for orders: opening provider sessions, receiving
// webhooks and reconciling against the provider on demand. Webhooks and the
// pull path converge on the same conditional writes, so whichever arrives
// first wins and the other becomes a no-op.
type Service struct {
	repo     Repository
	provider Provider
	now      func() time.Time
}

// NewService wires the payment service from its collaborators.
func NewService(repo Repository, provider Provider) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		now:      time.Now,
	}
}

// Provider exposes the configured backend, mainly for the mock dev pages.
func (s *Service) Provider() Provider {
	return s.provider
}

// StartPayment opens (or reuses) a provider session for an order. A live
// attempt whose session is still open is returned as-is so double-clicking
// "pay now" does not pile up sessions.
func (s *Service) StartPayment(ctx context.Context, order *models.Order, successURL, cancelURL string, lineItems []SessionLineItem) (*Session, error) {
	if order == nil {
		return nil, errors.New("order is required")
	}
	if order.IsPaid() {
		return nil, ErrAlreadyPaid
	}

	live, err := s.repo.LiveAttemptForOrder(order.ID)
	if err != nil {
		return nil, err
	}
	if live != nil && live.ProviderSessionID != "" {
		session, err := s.provider.GetCheckoutSession(ctx, live.ProviderSessionID)
		if err == nil && session.Status == "open" {
			return session, nil
		}
		if err == nil && session.Status == "expired" {
			if err := s.repo.MarkAttemptStatusIfNotSucceeded(live.ID, models.AttemptStatusExpired, "", expiredSessionMessage, s.now()); err != nil {
				return nil, err
			}
		}
		// Transient lookup trouble or a dead session: fall through and open
		// a fresh attempt.
	}

	attempt := &models.PaymentAttempt{
		OrderID:     order.ID,
		Provider:    s.provider.Name(),
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Status:      models.AttemptStatusCreated,
	}
	if err := s.repo.CreateAttempt(attempt); err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, SessionParams{
		OrderID:       order.ID,
		AttemptID:     attempt.ID,
		OrderNumber:   order.OrderNumber,
		AmountCents:   order.TotalCents,
		Currency:      order.Currency,
		CustomerEmail: order.Email,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		LineItems:     lineItems,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetAttemptSession(attempt.ID, session.ID, session.PaymentIntentID, session.ClientSecret); err != nil {
		return nil, err
	}
	// The session id on the order is the join key for webhooks and the pull
	// path; it must be durable before the shopper is redirected.
	if err := s.repo.SetOrderSessionID(order.ID, session.ID); err != nil {
		return nil, err
	}
	if err := s.repo.SetOrderPaymentStatusIfNotPaid(order.ID, models.PaymentStatusPending); err != nil {
		return nil, err
	}
	return session, nil
}

// ResolveRemoteResult asks the provider for the current state of the order's
// payment and reconciles local state against it. It never waits for a
// webhook: the shopper returning from the provider gets a truthful answer
// even when the webhook is delayed or lost.
func (s *Service) ResolveRemoteResult(ctx context.Context, order *models.Order) (PaymentResult, error) {
	if order == nil {
		return ResultUnknown, errors.New("order is required")
	}
	if order.IsPaid() {
		return ResultPaid, nil
	}
	if order.StripeCheckoutSessionID == "" {
		return ResultUnknown, ErrNoSession
	}

	session, err := s.provider.GetCheckoutSession(ctx, order.StripeCheckoutSessionID)
	if err != nil {
		return resultForProviderError(err)
	}

	switch {
	case session.PaymentStatus == "paid":
		// Paid is paid no matter what the session status says; self-heal the
		// local record when the webhook has not arrived yet.
		if err := s.applyPaid(order.ID, session.ID, session.PaymentIntentID); err != nil {
			return ResultUnknown, err
		}
		return ResultPaid, nil
	case session.Status == "open":
		return ResultPending, nil
	case session.Status == "expired":
		if err := s.markExpired(order.ID, session.ID); err != nil {
			return ResultUnknown, err
		}
		return ResultExpired, nil
	}

	// complete + unpaid: the session alone is inconclusive, ask the intent.
	intentID := session.PaymentIntentID
	if intentID == "" {
		intentID = order.StripePaymentIntentID
	}
	if intentID == "" {
		return ResultPending, nil
	}

	intent, err := s.provider.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return resultForProviderError(err)
	}
	return s.resolveFromIntent(order, session, intent)
}

func (s *Service) resolveFromIntent(order *models.Order, session *Session, intent *Intent) (PaymentResult, error) {
	switch intent.Status {
	case "succeeded":
		if err := s.applyPaid(order.ID, session.ID, intent.ID); err != nil {
			return ResultUnknown, err
		}
		return ResultPaid, nil
	case "canceled":
		if err := s.repo.SetOrderPaymentStatusIfNotPaid(order.ID, models.PaymentStatusCanceled); err != nil {
			return ResultUnknown, err
		}
		return ResultCanceled, nil
	case "processing", "requires_capture":
		return ResultPending, nil
	case "requires_payment_method", "requires_confirmation", "requires_action":
		if err := s.repo.SetOrderPaymentStatusIfNotPaid(order.ID, models.PaymentStatusFailed); err != nil {
			return ResultUnknown, err
		}
		if attempt, err := s.repo.AttemptBySessionID(s.provider.Name(), session.ID); err == nil && attempt != nil {
			_ = s.repo.MarkAttemptStatusIfNotSucceeded(attempt.ID, models.AttemptStatusFailed, intent.LastErrorCode, intent.LastErrorMessage, s.now())
		}
		return ResultFailed, nil
	default:
		return ResultPending, nil
	}
}

func resultForProviderError(err error) (PaymentResult, error) {
	switch KindOf(err) {
	case ErrKindTransient:
		// The provider is unreachable, not the payment failed. Show pending
		// and let the shopper refresh.
		return ResultPending, nil
	case ErrKindConfig:
		log.Printf("payment configuration error: %v", err)
		return ResultUnknown, nil
	default:
		return ResultUnknown, err
	}
}

// applyPaid performs the full success transition: order to paid, intent id
// stamped first-writer-wins, the winning attempt to succeeded and the source
// draft retired. Every write is conditional, so replays are harmless.
func (s *Service) applyPaid(orderID uint, sessionID, intentID string) error {
	now := s.now()

	if _, err := s.repo.MarkOrderPaid(orderID, now); err != nil {
		return err
	}
	if intentID != "" {
		stored, err := s.repo.StampOrderIntentID(orderID, intentID)
		if err != nil {
			return err
		}
		if stored != "" && stored != intentID {
			log.Printf("Warning: order %d already has payment intent %s, ignoring %s", orderID, stored, intentID)
		}
	}

	attempt, err := s.repo.AttemptBySessionID(s.provider.Name(), sessionID)
	if err != nil {
		return err
	}
	if attempt != nil {
		if err := s.repo.MarkAttemptSucceeded(attempt.ID, intentID, now); err != nil {
			return err
		}
	}
	return s.repo.MarkDraftUsedByOrder(orderID, now)
}

func (s *Service) markExpired(orderID uint, sessionID string) error {
	now := s.now()
	if attempt, err := s.repo.AttemptBySessionID(s.provider.Name(), sessionID); err == nil && attempt != nil {
		if err := s.repo.MarkAttemptStatusIfNotSucceeded(attempt.ID, models.AttemptStatusExpired, "", expiredSessionMessage, now); err != nil {
			return err
		}
	}
	return s.repo.SetOrderPaymentStatusIfNotPaid(orderID, models.PaymentStatusExpired)
}

// webhookEnvelope is the part of a provider event the dispatcher needs.
type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type webhookSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

type webhookIntent struct {
	ID               string            `json:"id"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// HandleWebhook verifies, records and processes one inbound provider event.
// Nothing is written before the signature verifies. Redelivery of an event
// that already processed cleanly is acknowledged without side effects; a
// previously failed event is retried.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if !s.provider.VerifyWebhookSignature(payload, signatureHeader) {
		return ErrInvalidSignature
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	if envelope.ID == "" {
		return errors.New("webhook payload has no event id")
	}

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Provider:        s.provider.Name(),
		ProviderEventID: envelope.ID,
		EventType:       envelope.Type,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		return err
	}
	if !created && stored != nil && stored.OK {
		return nil
	}

	processErr := s.dispatch(ctx, &envelope)
	now := s.now()
	if processErr != nil {
		if stored != nil {
			_ = s.repo.FinishWebhookEvent(stored.ID, false, processErr.Error(), now)
		}
		return processErr
	}
	if stored != nil {
		if err := s.repo.FinishWebhookEvent(stored.ID, true, "", now); err != nil {
			return err
		}
	}
	return nil
}

// dispatch handles the closed set of event types. Unknown types are
// acknowledged so the provider stops redelivering them.
func (s *Service) dispatch(ctx context.Context, envelope *webhookEnvelope) error {
	_ = ctx
	switch envelope.Type {
	case "checkout.session.completed":
		return s.handleSessionCompleted(envelope.Data.Object)
	case "checkout.session.expired":
		return s.handleSessionExpired(envelope.Data.Object)
	case "payment_intent.payment_failed":
		return s.handleIntentFailed(envelope.Data.Object)
	default:
		return nil
	}
}

func (s *Service) handleSessionCompleted(object json.RawMessage) error {
	var session webhookSession
	if err := json.Unmarshal(object, &session); err != nil {
		return fmt.Errorf("decode session object: %w", err)
	}

	orderID, attempt, err := s.resolveSessionTarget(&session)
	if err != nil {
		return err
	}
	if orderID == 0 {
		// An event for a session this shop never created. Acknowledge it
		// instead of forcing endless redelivery.
		log.Printf("Warning: completed session %s matches no local order", session.ID)
		return nil
	}

	now := s.now()
	if _, err := s.repo.MarkOrderPaid(orderID, now); err != nil {
		return err
	}
	if session.PaymentIntent != "" {
		stored, err := s.repo.StampOrderIntentID(orderID, session.PaymentIntent)
		if err != nil {
			return err
		}
		if stored != "" && stored != session.PaymentIntent {
			log.Printf("Warning: order %d already has payment intent %s, ignoring %s", orderID, stored, session.PaymentIntent)
		}
	}
	if attempt != nil {
		if err := s.repo.MarkAttemptSucceeded(attempt.ID, session.PaymentIntent, now); err != nil {
			return err
		}
		if err := s.repo.SetAttemptPayload(attempt.ID, string(object)); err != nil {
			return err
		}
	}
	return s.repo.MarkDraftUsedByOrder(orderID, now)
}

// handleSessionExpired finalizes the attempt only. The order stays as-is: an
// expiry racing a success must never downgrade anything, and the shopper can
// simply start a new attempt.
func (s *Service) handleSessionExpired(object json.RawMessage) error {
	var session webhookSession
	if err := json.Unmarshal(object, &session); err != nil {
		return fmt.Errorf("decode session object: %w", err)
	}

	attempt, err := s.resolveSessionAttempt(&session)
	if err != nil {
		return err
	}
	if attempt == nil {
		return nil
	}
	if err := s.repo.MarkAttemptStatusIfNotSucceeded(attempt.ID, models.AttemptStatusExpired, "", expiredSessionMessage, s.now()); err != nil {
		return err
	}
	return s.repo.SetAttemptPayload(attempt.ID, string(object))
}

func (s *Service) handleIntentFailed(object json.RawMessage) error {
	var intent webhookIntent
	if err := json.Unmarshal(object, &intent); err != nil {
		return fmt.Errorf("decode intent object: %w", err)
	}

	attempt, err := s.repo.AttemptByIntentID(s.provider.Name(), intent.ID)
	if err != nil {
		return err
	}

	var orderID uint
	if attempt != nil {
		orderID = attempt.OrderID
	} else if id, ok := parseUintField(intent.Metadata["order_id"]); ok {
		orderID = id
	}

	code, message := "", ""
	if intent.LastPaymentError != nil {
		code = intent.LastPaymentError.Code
		message = intent.LastPaymentError.Message
	}

	now := s.now()
	if attempt != nil {
		if err := s.repo.MarkAttemptStatusIfNotSucceeded(attempt.ID, models.AttemptStatusFailed, code, message, now); err != nil {
			return err
		}
		if err := s.repo.SetAttemptPayload(attempt.ID, string(object)); err != nil {
			return err
		}
	}
	if orderID != 0 {
		if err := s.repo.SetOrderPaymentStatusIfNotPaid(orderID, models.PaymentStatusFailed); err != nil {
			return err
		}
	}
	return nil
}

// resolveSessionAttempt finds the attempt an event belongs to: the attempt id
// carried in metadata first, then the session id join.
func (s *Service) resolveSessionAttempt(session *webhookSession) (*models.PaymentAttempt, error) {
	if id, ok := parseUintField(session.Metadata["payment_attempt_id"]); ok {
		attempt, err := s.repo.AttemptByID(id)
		if err != nil {
			return nil, err
		}
		if attempt != nil {
			return attempt, nil
		}
	}
	return s.repo.AttemptBySessionID(s.provider.Name(), session.ID)
}

// resolveSessionTarget additionally resolves the order, falling back from
// metadata through the attempt to the session id stored on the order.
func (s *Service) resolveSessionTarget(session *webhookSession) (uint, *models.PaymentAttempt, error) {
	attempt, err := s.resolveSessionAttempt(session)
	if err != nil {
		return 0, nil, err
	}

	if id, ok := parseUintField(session.Metadata["order_id"]); ok {
		return id, attempt, nil
	}
	if attempt != nil {
		return attempt.OrderID, attempt, nil
	}

	order, err := s.repo.OrderBySessionID(session.ID)
	if err != nil {
		return 0, nil, err
	}
	if order != nil {
		return order.ID, attempt, nil
	}
	return 0, attempt, nil
}

func parseUintField(raw string) (uint, bool) {
	if raw == "" {
		return 0, false
	}
	var v uint
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil || v == 0 {
		return 0, false
	}
	return v, true
}
