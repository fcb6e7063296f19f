package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// signatureTolerance bounds how old a signed webhook timestamp may be.
const signatureTolerance = 5 * time.Minute

// VerifyStripeSignature checks a Stripe-style signature header of the form
// "t=<unix>,v1=<hex hmac>". The signed message is "<t>.<payload>" keyed with
// the webhook secret. Any v1 candidate matching within the tolerance window
// verifies; everything else fails closed.
func VerifyStripeSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			timestamp = pair[1]
		case "v1":
			candidates = append(candidates, pair[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return false
	}

	expected := SignStripePayload(payload, timestamp, secret)
	for _, candidate := range candidates {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return true
		}
	}
	return false
}

// SignStripePayload computes the hex signature over "<timestamp>.<payload>".
func SignStripePayload(payload []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildStripeSignatureHeader produces a valid header for a payload, used by
// the mock provider and by tests to exercise the webhook path end to end.
func BuildStripeSignatureHeader(payload []byte, secret string, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return "t=" + timestamp + ",v1=" + SignStripePayload(payload, timestamp, secret)
}
