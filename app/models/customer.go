package models

import (
	"strings"
	"time"
)

// Customer is the shopper identity used by checkout, keyed by normalized
// email. A customer may exist without a user account (guest checkout) and is
// linked to one once the shopper authenticates with the same address.
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email"`
	FirstName string    `gorm:"type:varchar(150)" json:"first_name"`
	LastName  string    `gorm:"type:varchar(150)" json:"last_name"`
	Phone     string    `gorm:"type:varchar(50)" json:"phone"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizeEmail trims and casefolds an email address. Every table keyed by
// email stores the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ApplyContact overwrites name/phone fields only when a new value is
// provided, so a later submission with blanks never erases known data.
func (c *Customer) ApplyContact(firstName, lastName, phone string) {
	if v := strings.TrimSpace(firstName); v != "" {
		c.FirstName = v
	}
	if v := strings.TrimSpace(lastName); v != "" {
		c.LastName = v
	}
	if v := strings.TrimSpace(phone); v != "" {
		c.Phone = v
	}
}
