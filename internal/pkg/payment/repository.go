package payment

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DanielKrause/ShopWerk/app/models"
)

// Repository provides the DB operations of the payment core. All state
// transitions toward or around the terminal paid/succeeded states are
// conditional updates so racing writers and stale webhooks cannot downgrade a
// completed payment.
type Repository interface {
	CreateAttempt(attempt *models.PaymentAttempt) error
	AttemptByID(id uint) (*models.PaymentAttempt, error)
	AttemptBySessionID(provider, sessionID string) (*models.PaymentAttempt, error)
	AttemptByIntentID(provider, intentID string) (*models.PaymentAttempt, error)
	LiveAttemptForOrder(orderID uint) (*models.PaymentAttempt, error)
	SetAttemptSession(attemptID uint, sessionID, intentID, clientSecret string) error
	MarkAttemptStatusIfNotSucceeded(attemptID uint, status, failureCode, failureMessage string, at time.Time) error
	MarkAttemptSucceeded(attemptID uint, intentID string, at time.Time) error
	// SetAttemptPayload stores the raw provider object that decided the
	// attempt's outcome, for audits and support cases.
	SetAttemptPayload(attemptID uint, payload string) error

	OrderByID(id uint) (*models.Order, error)
	OrderBySessionID(sessionID string) (*models.Order, error)
	SetOrderSessionID(orderID uint, sessionID string) error
	// StampOrderIntentID writes the intent id only while the column is still
	// empty and returns the value stored afterwards. First writer wins.
	StampOrderIntentID(orderID uint, intentID string) (string, error)
	// MarkOrderPaid flips payment status to paid unless it already is. The
	// bool reports whether this call performed the transition.
	MarkOrderPaid(orderID uint, at time.Time) (bool, error)
	SetOrderPaymentStatusIfNotPaid(orderID uint, status string) error
	MarkDraftUsedByOrder(orderID uint, at time.Time) error

	GetWebhookEvent(provider, eventID string) (*models.WebhookEvent, error)
	// CreateWebhookEventIfNotExists inserts the ledger row unless the
	// (provider, event id) pair already exists. It reports whether this call
	// created the row and returns the stored row either way.
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	FinishWebhookEvent(id uint, ok bool, processingError string, at time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateAttempt(attempt *models.PaymentAttempt) error {
	return r.db.Create(attempt).Error
}

func (r *gormRepository) AttemptByID(id uint) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.First(&attempt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *gormRepository) AttemptBySessionID(provider, sessionID string) (*models.PaymentAttempt, error) {
	if sessionID == "" {
		return nil, nil
	}
	var attempt models.PaymentAttempt
	err := r.db.Where("provider = ? AND provider_session_id = ?", provider, sessionID).
		Order("id DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *gormRepository) AttemptByIntentID(provider, intentID string) (*models.PaymentAttempt, error) {
	if intentID == "" {
		return nil, nil
	}
	var attempt models.PaymentAttempt
	err := r.db.Where("provider = ? AND provider_intent_id = ?", provider, intentID).
		Order("id DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *gormRepository) LiveAttemptForOrder(orderID uint) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.Where("order_id = ? AND status IN ?", orderID,
		[]string{models.AttemptStatusCreated, models.AttemptStatusPending}).
		Order("id DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *gormRepository) SetAttemptSession(attemptID uint, sessionID, intentID, clientSecret string) error {
	return r.db.Model(&models.PaymentAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{
			"provider_session_id": sessionID,
			"provider_intent_id":  intentID,
			"client_secret":       clientSecret,
			"status":              models.AttemptStatusPending,
		}).Error
}

func (r *gormRepository) MarkAttemptStatusIfNotSucceeded(attemptID uint, status, failureCode, failureMessage string, at time.Time) error {
	return r.db.Model(&models.PaymentAttempt{}).
		Where("id = ? AND status <> ?", attemptID, models.AttemptStatusSucceeded).
		Updates(map[string]interface{}{
			"status":          status,
			"failure_code":    failureCode,
			"failure_message": failureMessage,
			"finalized_at":    at,
		}).Error
}

func (r *gormRepository) MarkAttemptSucceeded(attemptID uint, intentID string, at time.Time) error {
	updates := map[string]interface{}{
		"status":       models.AttemptStatusSucceeded,
		"finalized_at": at,
	}
	if intentID != "" {
		updates["provider_intent_id"] = intentID
	}
	return r.db.Model(&models.PaymentAttempt{}).
		Where("id = ? AND status <> ?", attemptID, models.AttemptStatusSucceeded).
		Updates(updates).Error
}

func (r *gormRepository) SetAttemptPayload(attemptID uint, payload string) error {
	if payload == "" {
		return nil
	}
	return r.db.Model(&models.PaymentAttempt{}).
		Where("id = ?", attemptID).
		Update("raw_payload_json", payload).Error
}

func (r *gormRepository) OrderByID(id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) OrderBySessionID(sessionID string) (*models.Order, error) {
	if sessionID == "" {
		return nil, nil
	}
	var order models.Order
	err := r.db.Where("stripe_checkout_session_id = ?", sessionID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) SetOrderSessionID(orderID uint, sessionID string) error {
	return r.db.Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("stripe_checkout_session_id", sessionID).Error
}

func (r *gormRepository) StampOrderIntentID(orderID uint, intentID string) (string, error) {
	if intentID == "" {
		return "", nil
	}
	err := r.db.Model(&models.Order{}).
		Where("id = ? AND stripe_payment_intent_id = ''", orderID).
		Update("stripe_payment_intent_id", intentID).Error
	if err != nil {
		return "", err
	}

	var order models.Order
	if err := r.db.Select("stripe_payment_intent_id").First(&order, orderID).Error; err != nil {
		return "", err
	}
	return order.StripePaymentIntentID, nil
}

func (r *gormRepository) MarkOrderPaid(orderID uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, models.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusPaid,
			"updated_at":     at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) SetOrderPaymentStatusIfNotPaid(orderID uint, status string) error {
	return r.db.Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, models.PaymentStatusPaid).
		Update("payment_status", status).Error
}

func (r *gormRepository) MarkDraftUsedByOrder(orderID uint, at time.Time) error {
	return r.db.Model(&models.CheckoutDraft{}).
		Where("order_id = ? AND used_at IS NULL", orderID).
		Updates(map[string]interface{}{
			"used_at": at,
			"active":  nil,
		}).Error
}

func (r *gormRepository) GetWebhookEvent(provider, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.Where("provider = ? AND provider_event_id = ?", provider, eventID).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, nil, res.Error
	}

	created := res.RowsAffected > 0
	stored, err := r.GetWebhookEvent(event.Provider, event.ProviderEventID)
	if err != nil {
		return created, nil, err
	}
	return created, stored, nil
}

func (r *gormRepository) FinishWebhookEvent(id uint, ok bool, processingError string, at time.Time) error {
	return r.db.Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"ok":               ok,
			"processed_at":     at,
			"processing_error": processingError,
		}).Error
}
