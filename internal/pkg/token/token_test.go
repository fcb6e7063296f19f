package token

import (
	"os"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_SECRET", "unit-test-secret")
	os.Exit(m.Run())
}

func TestGuestCheckoutRoundTrip(t *testing.T) {
	claims := GuestCheckoutClaims{CustomerID: 7, DraftID: 21, OrderID: 3}

	value, err := IssueGuestCheckout(claims)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	got, ok := ParseGuestCheckout(value)
	if !ok {
		t.Fatalf("expected token to verify")
	}
	if got != claims {
		t.Fatalf("claims mismatch: got %+v want %+v", got, claims)
	}
}

func TestPurposeIsolation(t *testing.T) {
	// A receipt token must not verify as a guest-checkout token even though
	// both payloads decode structurally.
	value, err := IssueOrderReceipt(OrderReceiptClaims{OrderID: 5, Email: "a@b.de"})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, ok := ParseGuestCheckout(value); ok {
		t.Fatalf("expected cross-purpose verification to fail")
	}
}

func TestTamperedTokenFails(t *testing.T) {
	value, err := IssueCheckoutEmail(CheckoutEmailClaims{Email: "a@b.de", DraftID: 4})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	tampered := value[:len(value)-2] + "xx"
	if _, ok := ParseCheckoutEmail(tampered); ok {
		t.Fatalf("expected tampered token to fail")
	}
	if _, ok := ParseCheckoutEmail(""); ok {
		t.Fatalf("expected empty token to fail")
	}
}

func TestZeroIDsRejected(t *testing.T) {
	value, err := IssueGuestCheckout(GuestCheckoutClaims{CustomerID: 0, DraftID: 9})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, ok := ParseGuestCheckout(value); ok {
		t.Fatalf("expected zero customer id to be rejected")
	}
}

func TestExpiredTokenFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping expiry sleep in short mode")
	}

	appSecret := []byte("unit-test-secret")
	codec := codecFor(appSecret, PurposeCheckoutEmail, time.Second)
	value, err := codec.Encode(string(PurposeCheckoutEmail), CheckoutEmailClaims{Email: "a@b.de", DraftID: 2})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	time.Sleep(2500 * time.Millisecond)

	var claims CheckoutEmailClaims
	if codec.Decode(string(PurposeCheckoutEmail), value, &claims) == nil {
		t.Fatalf("expected expired token to fail")
	}
}
