package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DanielKrause/ShopWerk/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient talks to the Stripe REST API directly. Only the four
// operations of the Provider interface are implemented; nothing else of the
// provider surface is depended on.
type StripeClient struct {
	SecretKey     string
	WebhookSecret string
	APIBaseURL    string

	HTTPClient *http.Client
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		APIBaseURL:    strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (c *StripeClient) Name() string {
	return ProviderStripe
}

type stripeSession struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	URL           string            `json:"url"`
	ClientSecret  string            `json:"client_secret"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeIntent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	form.Set("client_reference_id", params.OrderNumber)
	form.Set("metadata[order_id]", strconv.FormatUint(uint64(params.OrderID), 10))
	form.Set("metadata[payment_attempt_id]", strconv.FormatUint(uint64(params.AttemptID), 10))

	for i, item := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
		form.Set(prefix+"[price_data][currency]", item.Currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitAmountCents, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
	}

	body, err := c.do(ctx, http.MethodPost, "/checkout/sessions", form)
	if err != nil {
		return nil, err
	}

	var s stripeSession
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, errors.New("stripe returned a session without id")
	}
	return sessionFromStripe(&s), nil
}

func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}

	body, err := c.do(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}

	var s stripeSession
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, err
	}
	return sessionFromStripe(&s), nil
}

func (c *StripeClient) GetPaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, errors.New("payment intent id is required")
	}

	body, err := c.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(intentID), nil)
	if err != nil {
		return nil, err
	}

	var pi stripeIntent
	if err := json.Unmarshal(body, &pi); err != nil {
		return nil, err
	}

	intent := &Intent{ID: pi.ID, Status: pi.Status}
	if pi.LastPaymentError != nil {
		intent.LastErrorCode = pi.LastPaymentError.Code
		intent.LastErrorMessage = pi.LastPaymentError.Message
	}
	return intent, nil
}

func (c *StripeClient) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	return VerifyStripeSignature(payload, signatureHeader, c.WebhookSecret, signatureTolerance, time.Now())
}

func sessionFromStripe(s *stripeSession) *Session {
	out := &Session{
		ID:              s.ID,
		Status:          s.Status,
		PaymentStatus:   s.PaymentStatus,
		URL:             s.URL,
		ClientSecret:    s.ClientSecret,
		PaymentIntentID: s.PaymentIntent,
	}
	if v, err := strconv.ParseUint(s.Metadata["order_id"], 10, 64); err == nil {
		out.OrderID = uint(v)
	}
	if v, err := strconv.ParseUint(s.Metadata["payment_attempt_id"], 10, 64); err == nil {
		out.AttemptID = uint(v)
	}
	return out
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, &ProviderError{Kind: ErrKindConfig, Code: "missing_api_key", Message: "STRIPE_SECRET_KEY is not configured"}
	}

	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Kind: ErrKindTransient, Code: "connection_error", Message: "stripe request failed", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	var errBody stripeErrorBody
	_ = json.Unmarshal(body, &errBody)
	return nil, classifyStripeError(resp.StatusCode, errBody.Error.Type, errBody.Error.Code, errBody.Error.Message)
}

// classifyStripeError maps HTTP status and Stripe error types onto the local
// taxonomy: infrastructure trouble is retryable, credential trouble is an
// operator problem, everything else is a plain request failure carrying the
// provider's code and message verbatim.
func classifyStripeError(status int, errType, code, message string) *ProviderError {
	kind := ErrKindRequest
	switch {
	case status == http.StatusTooManyRequests || errType == "rate_limit_error":
		kind = ErrKindTransient
	case status >= 500 || errType == "api_error" || errType == "api_connection_error":
		kind = ErrKindTransient
	case status == http.StatusUnauthorized || status == http.StatusForbidden || errType == "authentication_error":
		kind = ErrKindConfig
	}

	if code == "" {
		code = errType
	}
	if code == "" {
		code = "http_" + strconv.Itoa(status)
	}
	if message == "" {
		message = fmt.Sprintf("stripe request failed with status %d", status)
	}
	return &ProviderError{Kind: kind, Code: code, Message: message}
}
