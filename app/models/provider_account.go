package models

import "time"

// ProviderAccount links a shop account to one external OAuth identity. The
// (provider, provider user id) pair is unique; a user may carry several rows,
// one per provider.
type ProviderAccount struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"index" json:"user_id"`
	Provider       string     `gorm:"index:provider_uid,unique;type:varchar(50)" json:"provider"`
	ProviderUserID string     `gorm:"index:provider_uid,unique;type:varchar(191)" json:"provider_user_id"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	ExpiresAt      *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ApplyTokens overwrites the stored token set with the one from a fresh
// provider callback. A zero expiry means the provider issued a non-expiring
// token and clears the column.
func (p *ProviderAccount) ApplyTokens(accessToken, refreshToken string, expiresAt time.Time) {
	p.AccessToken = accessToken
	p.RefreshToken = refreshToken
	if expiresAt.IsZero() {
		p.ExpiresAt = nil
		return
	}
	t := expiresAt
	p.ExpiresAt = &t
}
