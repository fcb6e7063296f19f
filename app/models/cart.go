package models

import "time"

// Cart is the live shopping cart, owned by a browser session via Token and
// optionally claimed by a customer after login. Prices are never stored on
// cart items; lines reprice from the live variant on every read.
type Cart struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Token      string    `gorm:"uniqueIndex;type:varchar(64);not null" json:"-"`
	CustomerID *uint     `gorm:"index" json:"customer_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Items []CartItem `json:"items,omitempty"`
}

type CartItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CartID    uint      `gorm:"not null;index:ux_cart_items_cart_variant,unique,priority:1" json:"cart_id"`
	VariantID uint      `gorm:"not null;index:ux_cart_items_cart_variant,unique,priority:2" json:"variant_id"`
	Quantity  int       `gorm:"not null" json:"quantity" validate:"gt=0"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
