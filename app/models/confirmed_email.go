package models

import "time"

// ConfirmedEmail marks that a normalized email completed verification at
// least once. Marking is idempotent; the row is never deleted.
type ConfirmedEmail struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Email       string    `gorm:"uniqueIndex;type:varchar(200);not null" json:"email"`
	ConfirmedAt time.Time `gorm:"not null" json:"confirmed_at"`
}
