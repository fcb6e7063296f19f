package models

import "time"

// Attempt status machine: created -> pending -> succeeded|failed|expired.
// Succeeded is terminal so an out-of-order expiry webhook can never downgrade
// a completed payment.
const (
	AttemptStatusCreated   = "created"
	AttemptStatusPending   = "pending"
	AttemptStatusSucceeded = "succeeded"
	AttemptStatusFailed    = "failed"
	AttemptStatusExpired   = "expired"
)

// PaymentAttempt is one provider-side attempt to collect payment for an
// order. An order may accumulate several over time (retries after expiry or
// failure); only the most recent pending one is live.
type PaymentAttempt struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	OrderID           uint       `gorm:"not null;index" json:"order_id"`
	Provider          string     `gorm:"type:varchar(20);not null" json:"provider"`
	AmountCents       int64      `gorm:"not null" json:"amount_cents"`
	Currency          string     `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	ProviderSessionID string     `gorm:"type:varchar(191);not null;default:'';index" json:"-"`
	ProviderIntentID  string     `gorm:"type:varchar(191);not null;default:'';index" json:"-"`
	ClientSecret      string     `gorm:"type:varchar(255);not null;default:''" json:"-"`
	Status            string     `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`
	RawPayloadJSON    string     `gorm:"type:longtext" json:"-"`
	FailureCode       string     `gorm:"type:varchar(100);not null;default:''" json:"failure_code"`
	FailureMessage    string     `gorm:"type:text" json:"failure_message"`
	FinalizedAt       *time.Time `gorm:"type:timestamp;default:null" json:"finalized_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFinal reports whether the attempt reached a terminal or dead state.
func (a *PaymentAttempt) IsFinal() bool {
	switch a.Status {
	case AttemptStatusSucceeded, AttemptStatusFailed, AttemptStatusExpired:
		return true
	default:
		return false
	}
}
