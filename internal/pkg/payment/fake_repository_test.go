package payment

import (
	"sync"
	"time"

	"github.com/DanielKrause/ShopWerk/app/models"
)

// fakeRepository is an in-memory Repository with the same conditional-update
// semantics as the GORM implementation.
type fakeRepository struct {
	mu       sync.Mutex
	nextID   uint
	attempts map[uint]*models.PaymentAttempt
	orders   map[uint]*models.Order
	drafts   map[uint]*models.CheckoutDraft
	events   map[string]*models.WebhookEvent

	orderPaidCalls int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		nextID:   1,
		attempts: make(map[uint]*models.PaymentAttempt),
		orders:   make(map[uint]*models.Order),
		drafts:   make(map[uint]*models.CheckoutDraft),
		events:   make(map[string]*models.WebhookEvent),
	}
}

func (f *fakeRepository) allocID() uint {
	id := f.nextID
	f.nextID++
	return id
}

func (f *fakeRepository) addOrder(order *models.Order) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order.ID == 0 {
		order.ID = f.allocID()
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.PaymentStatusUnpaid
	}
	f.orders[order.ID] = order
	return order
}

func (f *fakeRepository) addDraft(draft *models.CheckoutDraft) *models.CheckoutDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	if draft.ID == 0 {
		draft.ID = f.allocID()
	}
	f.drafts[draft.ID] = draft
	return draft
}

func (f *fakeRepository) CreateAttempt(attempt *models.PaymentAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt.ID = f.allocID()
	f.attempts[attempt.ID] = attempt
	return nil
}

func (f *fakeRepository) AttemptByID(id uint) (*models.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id], nil
}

func (f *fakeRepository) AttemptBySessionID(provider, sessionID string) (*models.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sessionID == "" {
		return nil, nil
	}
	var found *models.PaymentAttempt
	for _, a := range f.attempts {
		if a.Provider == provider && a.ProviderSessionID == sessionID {
			if found == nil || a.ID > found.ID {
				found = a
			}
		}
	}
	return found, nil
}

func (f *fakeRepository) AttemptByIntentID(provider, intentID string) (*models.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if intentID == "" {
		return nil, nil
	}
	var found *models.PaymentAttempt
	for _, a := range f.attempts {
		if a.Provider == provider && a.ProviderIntentID == intentID {
			if found == nil || a.ID > found.ID {
				found = a
			}
		}
	}
	return found, nil
}

func (f *fakeRepository) LiveAttemptForOrder(orderID uint) (*models.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *models.PaymentAttempt
	for _, a := range f.attempts {
		if a.OrderID != orderID {
			continue
		}
		if a.Status != models.AttemptStatusCreated && a.Status != models.AttemptStatusPending {
			continue
		}
		if found == nil || a.ID > found.ID {
			found = a
		}
	}
	return found, nil
}

func (f *fakeRepository) SetAttemptSession(attemptID uint, sessionID, intentID, clientSecret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.attempts[attemptID]; ok {
		a.ProviderSessionID = sessionID
		a.ProviderIntentID = intentID
		a.ClientSecret = clientSecret
		a.Status = models.AttemptStatusPending
	}
	return nil
}

func (f *fakeRepository) MarkAttemptStatusIfNotSucceeded(attemptID uint, status, failureCode, failureMessage string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[attemptID]
	if !ok || a.Status == models.AttemptStatusSucceeded {
		return nil
	}
	a.Status = status
	a.FailureCode = failureCode
	a.FailureMessage = failureMessage
	a.FinalizedAt = &at
	return nil
}

func (f *fakeRepository) MarkAttemptSucceeded(attemptID uint, intentID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[attemptID]
	if !ok || a.Status == models.AttemptStatusSucceeded {
		return nil
	}
	a.Status = models.AttemptStatusSucceeded
	if intentID != "" {
		a.ProviderIntentID = intentID
	}
	a.FinalizedAt = &at
	return nil
}

func (f *fakeRepository) SetAttemptPayload(attemptID uint, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payload == "" {
		return nil
	}
	if a, ok := f.attempts[attemptID]; ok {
		a.RawPayloadJSON = payload
	}
	return nil
}

func (f *fakeRepository) OrderByID(id uint) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id], nil
}

func (f *fakeRepository) OrderBySessionID(sessionID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.StripeCheckoutSessionID == sessionID && sessionID != "" {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) SetOrderSessionID(orderID uint, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		o.StripeCheckoutSessionID = sessionID
	}
	return nil
}

func (f *fakeRepository) StampOrderIntentID(orderID uint, intentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return "", nil
	}
	if o.StripePaymentIntentID == "" {
		o.StripePaymentIntentID = intentID
	}
	return o.StripePaymentIntentID, nil
}

func (f *fakeRepository) MarkOrderPaid(orderID uint, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderPaidCalls++
	o, ok := f.orders[orderID]
	if !ok || o.PaymentStatus == models.PaymentStatusPaid {
		return false, nil
	}
	o.PaymentStatus = models.PaymentStatusPaid
	o.UpdatedAt = at
	return true, nil
}

func (f *fakeRepository) SetOrderPaymentStatusIfNotPaid(orderID uint, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok && o.PaymentStatus != models.PaymentStatusPaid {
		o.PaymentStatus = status
	}
	return nil
}

func (f *fakeRepository) MarkDraftUsedByOrder(orderID uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.drafts {
		if d.OrderID != nil && *d.OrderID == orderID && d.UsedAt == nil {
			d.UsedAt = &at
			d.Active = nil
		}
	}
	return nil
}

func (f *fakeRepository) GetWebhookEvent(provider, eventID string) (*models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[provider+"/"+eventID], nil
}

func (f *fakeRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := f.events[key]; ok {
		return false, existing, nil
	}
	event.ID = f.allocID()
	f.events[key] = event
	return true, event, nil
}

func (f *fakeRepository) FinishWebhookEvent(id uint, ok bool, processingError string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			e.OK = ok
			e.ProcessedAt = &at
			e.ProcessingError = processingError
		}
	}
	return nil
}
