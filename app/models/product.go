package models

import "time"

// Product groups sellable variants. Catalog management is deliberately thin;
// the shop only needs listing and live price lookups at checkout time.
type Product struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(200);not null" json:"name" validate:"required,max=200"`
	Slug        string    `gorm:"uniqueIndex;type:varchar(200);not null" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	Active      bool      `gorm:"default:true;index" json:"active"`
	ViewCount   int64     `gorm:"not null;default:0" json:"view_count"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Variants []ProductVariant `json:"variants,omitempty"`
}

// ProductVariant is the unit carts and orders reference. Prices are integer
// minor units (cents).
type ProductVariant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	SKU        string    `gorm:"uniqueIndex;type:varchar(100);not null" json:"sku"`
	Name       string    `gorm:"type:varchar(200);not null" json:"name"`
	PriceCents int64     `gorm:"not null" json:"price_cents" validate:"gte=0"`
	Currency   string    `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	Active     bool      `gorm:"default:true;index" json:"active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
