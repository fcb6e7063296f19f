package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/DanielKrause/ShopWerk/internal/pkg/env"
)

// Purpose selects the salt a token is signed under. A token issued for one
// purpose never verifies under another.
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposeEmailChange   Purpose = "email-change"
	PurposeCheckoutEmail Purpose = "checkout-email"
	PurposeGuestCheckout Purpose = "guest-checkout"
	PurposeOrderReceipt  Purpose = "order-receipt"
)

var maxAges = map[Purpose]time.Duration{
	PurposeSignup:        48 * time.Hour,
	PurposeEmailChange:   24 * time.Hour,
	PurposeCheckoutEmail: time.Hour,
	PurposeGuestCheckout: 24 * time.Hour,
	PurposeOrderReceipt:  7 * 24 * time.Hour,
}

// SignupClaims confirm a freshly registered account.
type SignupClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
}

// EmailChangeClaims confirm a pending account email change.
type EmailChangeClaims struct {
	UserID   uint   `json:"user_id"`
	NewEmail string `json:"new_email"`
}

// CheckoutEmailClaims gate checkout progression on email ownership.
type CheckoutEmailClaims struct {
	Email   string `json:"email"`
	DraftID uint   `json:"draft_id"`
}

// GuestCheckoutClaims let an unauthenticated browser resume its checkout
// after a payment-provider redirect without a server-side session.
type GuestCheckoutClaims struct {
	CustomerID uint `json:"customer_id"`
	DraftID    uint `json:"draft_id"`
	OrderID    uint `json:"order_id"`
}

// OrderReceiptClaims grant read access to one order's payment result view.
type OrderReceiptClaims struct {
	OrderID uint   `json:"order_id"`
	Email   string `json:"email"`
}

func secret() []byte {
	return []byte(env.GetEnv("APP_SECRET", ""))
}

// keyFor derives a per-purpose signing key so leaking one purpose's codec
// never compromises another.
func keyFor(appSecret []byte, purpose Purpose) []byte {
	mac := hmac.New(sha256.New, appSecret)
	mac.Write([]byte("token:" + purpose))
	return mac.Sum(nil)
}

func codecFor(appSecret []byte, purpose Purpose, maxAge time.Duration) *securecookie.SecureCookie {
	sc := securecookie.New(keyFor(appSecret, purpose), nil)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(maxAge / time.Second))
	return sc
}

func encode(appSecret []byte, purpose Purpose, claims interface{}) (string, error) {
	return codecFor(appSecret, purpose, maxAges[purpose]).Encode(string(purpose), claims)
}

// decode verifies signature and age. All failure modes collapse into a bare
// false so callers cannot distinguish tamper from expiry.
func decode(appSecret []byte, purpose Purpose, value string, dst interface{}) bool {
	if value == "" || len(appSecret) == 0 {
		return false
	}
	return codecFor(appSecret, purpose, maxAges[purpose]).Decode(string(purpose), value, dst) == nil
}

func IssueSignup(claims SignupClaims) (string, error) {
	return encode(secret(), PurposeSignup, claims)
}

func ParseSignup(value string) (SignupClaims, bool) {
	var claims SignupClaims
	if !decode(secret(), PurposeSignup, value, &claims) || claims.UserID == 0 {
		return SignupClaims{}, false
	}
	return claims, true
}

func IssueEmailChange(claims EmailChangeClaims) (string, error) {
	return encode(secret(), PurposeEmailChange, claims)
}

func ParseEmailChange(value string) (EmailChangeClaims, bool) {
	var claims EmailChangeClaims
	if !decode(secret(), PurposeEmailChange, value, &claims) || claims.UserID == 0 || claims.NewEmail == "" {
		return EmailChangeClaims{}, false
	}
	return claims, true
}

func IssueCheckoutEmail(claims CheckoutEmailClaims) (string, error) {
	return encode(secret(), PurposeCheckoutEmail, claims)
}

func ParseCheckoutEmail(value string) (CheckoutEmailClaims, bool) {
	var claims CheckoutEmailClaims
	if !decode(secret(), PurposeCheckoutEmail, value, &claims) || claims.DraftID == 0 || claims.Email == "" {
		return CheckoutEmailClaims{}, false
	}
	return claims, true
}

func IssueGuestCheckout(claims GuestCheckoutClaims) (string, error) {
	return encode(secret(), PurposeGuestCheckout, claims)
}

func ParseGuestCheckout(value string) (GuestCheckoutClaims, bool) {
	var claims GuestCheckoutClaims
	if !decode(secret(), PurposeGuestCheckout, value, &claims) || claims.CustomerID == 0 || claims.DraftID == 0 {
		return GuestCheckoutClaims{}, false
	}
	return claims, true
}

func IssueOrderReceipt(claims OrderReceiptClaims) (string, error) {
	return encode(secret(), PurposeOrderReceipt, claims)
}

func ParseOrderReceipt(value string) (OrderReceiptClaims, bool) {
	var claims OrderReceiptClaims
	if !decode(secret(), PurposeOrderReceipt, value, &claims) || claims.OrderID == 0 {
		return OrderReceiptClaims{}, false
	}
	return claims, true
}
