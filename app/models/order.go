package models

import "time"

const (
	OrderStatusNew       = "new"
	OrderStatusPicking   = "picking"
	OrderStatusShipped   = "shipped"
	OrderStatusCompleted = "completed"
	OrderStatusCanceled  = "canceled"
)

// Payment status machine: unpaid -> pending -> paid|failed|expired|canceled.
// Paid is terminal; every writer racing a success must use a conditional
// update, never a blind overwrite.
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusExpired  = "expired"
	PaymentStatusCanceled = "canceled"
)

// Order is the commercial record materialized exactly once from a confirmed
// checkout draft. Fulfillment status and payment status are independent
// state machines.
type Order struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	OrderNumber             string    `gorm:"uniqueIndex;type:varchar(36);not null" json:"order_number"`
	CustomerID              uint      `gorm:"not null;index" json:"customer_id"`
	Email                   string    `gorm:"type:varchar(200);not null;index" json:"email"`
	AddressID               uint      `gorm:"not null" json:"address_id"`
	Note                    string    `gorm:"type:text" json:"note"`
	TotalCents              int64     `gorm:"not null" json:"total_cents"`
	Currency                string    `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	Status                  string    `gorm:"type:varchar(20);not null;default:'new';index" json:"status"`
	PaymentStatus           string    `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"payment_status"`
	StripeCheckoutSessionID string    `gorm:"type:varchar(191);not null;default:'';index" json:"-"`
	StripePaymentIntentID   string    `gorm:"type:varchar(191);not null;default:''" json:"-"`
	CreatedAt               time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Items []OrderItem `json:"items,omitempty"`
}

// IsPaid reports whether the order reached the terminal paid state.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}
