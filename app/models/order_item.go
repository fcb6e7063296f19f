package models

import "time"

// OrderItem is a line item with the unit price captured at order-creation
// time. Items are created in bulk inside the materializing transaction and
// never mutated afterwards.
type OrderItem struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrderID        uint      `gorm:"not null;index" json:"order_id"`
	VariantID      uint      `gorm:"not null;index" json:"variant_id"`
	Name           string    `gorm:"type:varchar(200);not null" json:"name"`
	Quantity       int       `gorm:"not null" json:"quantity"`
	UnitPriceCents int64     `gorm:"not null" json:"unit_price_cents"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SubtotalCents is unit price times quantity.
func (i *OrderItem) SubtotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}
