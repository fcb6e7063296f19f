package payment

import (
	"testing"
	"time"
)

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	header := BuildStripeSignatureHeader(payload, secret, now)

	if !VerifyStripeSignature(payload, header, secret, signatureTolerance, now) {
		t.Fatalf("expected valid header to verify")
	}
	if VerifyStripeSignature([]byte(`{"id":"evt_2"}`), header, secret, signatureTolerance, now) {
		t.Fatalf("tampered payload must not verify")
	}
	if VerifyStripeSignature(payload, header, "other-secret", signatureTolerance, now) {
		t.Fatalf("wrong secret must not verify")
	}
	if VerifyStripeSignature(payload, header, secret, signatureTolerance, now.Add(6*time.Minute)) {
		t.Fatalf("stale timestamp must not verify")
	}
	if VerifyStripeSignature(payload, "", secret, signatureTolerance, now) {
		t.Fatalf("empty header must not verify")
	}
	if VerifyStripeSignature(payload, "t=abc,v1=def", secret, signatureTolerance, now) {
		t.Fatalf("malformed header must not verify")
	}
}

func TestVerifyStripeSignatureMultipleCandidates(t *testing.T) {
	payload := []byte(`{"id":"evt_3"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	timestamp := "1700000000"
	good := SignStripePayload(payload, timestamp, secret)
	header := "t=" + timestamp + ",v1=deadbeef,v1=" + good

	if !VerifyStripeSignature(payload, header, secret, signatureTolerance, now) {
		t.Fatalf("any matching v1 candidate should verify")
	}
}
