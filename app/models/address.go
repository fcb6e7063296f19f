package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Address is a shipping address, content-addressed by a fingerprint over its
// normalized components so structurally identical addresses deduplicate via
// get-or-create.
type Address struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Fingerprint string    `gorm:"uniqueIndex;type:varchar(64);not null" json:"-"`
	Street      string    `gorm:"type:varchar(200);not null" json:"street" validate:"required"`
	Unit        string    `gorm:"type:varchar(100)" json:"unit"`
	City        string    `gorm:"type:varchar(150);not null" json:"city" validate:"required"`
	Subdivision string    `gorm:"type:varchar(150)" json:"subdivision"`
	PostalCode  string    `gorm:"type:varchar(32);not null" json:"postal_code" validate:"required"`
	Country     string    `gorm:"type:varchar(2);not null" json:"country" validate:"required,len=2"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func normalizeAddressPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Normalize canonicalizes all components in place and recomputes the
// fingerprint. Country codes are stored upper-case.
func (a *Address) Normalize() {
	a.Street = strings.TrimSpace(a.Street)
	a.Unit = strings.TrimSpace(a.Unit)
	a.City = strings.TrimSpace(a.City)
	a.Subdivision = strings.TrimSpace(a.Subdivision)
	a.PostalCode = strings.ToUpper(strings.Join(strings.Fields(a.PostalCode), ""))
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.Fingerprint = a.ComputeFingerprint()
}

// ComputeFingerprint hashes the normalized components. Field order is part of
// the stored format and must not change.
func (a *Address) ComputeFingerprint() string {
	parts := []string{
		normalizeAddressPart(a.Street),
		normalizeAddressPart(a.Unit),
		normalizeAddressPart(a.City),
		normalizeAddressPart(a.Subdivision),
		normalizeAddressPart(a.PostalCode),
		normalizeAddressPart(a.Country),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
