package models

import (
	"testing"
	"time"
)

func TestApplyTokensSetsExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	pa := ProviderAccount{}
	pa.ApplyTokens("access-1", "refresh-1", exp)

	if pa.AccessToken != "access-1" || pa.RefreshToken != "refresh-1" {
		t.Fatalf("tokens not applied: %+v", pa)
	}
	if pa.ExpiresAt == nil || !pa.ExpiresAt.Equal(exp) {
		t.Fatalf("expected expiry %v, got %v", exp, pa.ExpiresAt)
	}
}

func TestApplyTokensClearsExpiryForNonExpiringToken(t *testing.T) {
	old := time.Now()
	pa := ProviderAccount{ExpiresAt: &old}
	pa.ApplyTokens("access-2", "", time.Time{})

	if pa.ExpiresAt != nil {
		t.Fatalf("expected cleared expiry, got %v", pa.ExpiresAt)
	}
}
