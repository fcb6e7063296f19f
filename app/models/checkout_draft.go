package models

import (
	"encoding/json"
	"time"
)

// DraftTTL is how long a checkout draft stays resumable. Every detail edit
// refreshes the window.
const DraftTTL = time.Hour

// CartSnapshotLine is one entry of the immutable cart snapshot serialized
// into a draft at details-submission time. The snapshot restores cart
// contents after a redirect; it is never used for pricing.
type CartSnapshotLine struct {
	VariantID      uint  `json:"variant_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

// CheckoutDraft is the working state of one checkout attempt.
//
// At most one live draft may exist per customer: Active is 1 while the draft
// is unconsumed and set to NULL together with UsedAt once an order acted on
// it. MySQL unique indexes ignore NULL, so the (customer_id, active) index
// admits any number of used drafts but only one live one.
type CheckoutDraft struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	CustomerID       uint       `gorm:"not null;uniqueIndex:ux_checkout_drafts_customer_active,priority:1;index" json:"customer_id"`
	Active           *uint8     `gorm:"uniqueIndex:ux_checkout_drafts_customer_active,priority:2" json:"-"`
	Email            string     `gorm:"type:varchar(200);not null" json:"email"`
	AddressID        uint       `gorm:"not null" json:"address_id"`
	Note             string     `gorm:"type:text" json:"note"`
	CartJSON         string     `gorm:"type:longtext;not null" json:"-"`
	EmailConfirmedAt *time.Time `gorm:"type:timestamp;default:null" json:"email_confirmed_at,omitempty"`
	OrderID          *uint      `gorm:"index" json:"order_id,omitempty"`
	UsedAt           *time.Time `gorm:"type:timestamp;default:null" json:"used_at,omitempty"`
	ExpiresAt        time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValid reports whether the draft can still be resumed or consumed.
func (d *CheckoutDraft) IsValid(now time.Time) bool {
	return d.UsedAt == nil && d.ExpiresAt.After(now)
}

// SnapshotLines decodes the stored cart snapshot.
func (d *CheckoutDraft) SnapshotLines() ([]CartSnapshotLine, error) {
	if d.CartJSON == "" {
		return nil, nil
	}
	var lines []CartSnapshotLine
	if err := json.Unmarshal([]byte(d.CartJSON), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// SetSnapshotLines serializes the cart snapshot into the draft.
func (d *CheckoutDraft) SetSnapshotLines(lines []CartSnapshotLine) error {
	raw, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	d.CartJSON = string(raw)
	return nil
}

// DraftActive is the sentinel stored in Active for live drafts.
func DraftActive() *uint8 {
	one := uint8(1)
	return &one
}
