package payment

import (
	"errors"
	"fmt"
)

const (
	ProviderStripe = "stripe"
	ProviderMock   = "mock"
)

// PaymentResult is the provider-agnostic answer of the pull-reconciliation
// path.
type PaymentResult string

const (
	ResultPaid     PaymentResult = "paid"
	ResultPending  PaymentResult = "pending"
	ResultFailed   PaymentResult = "failed"
	ResultCanceled PaymentResult = "canceled"
	ResultExpired  PaymentResult = "expired"
	ResultUnknown  PaymentResult = "unknown"
)

var (
	ErrInvalidSignature = errors.New("webhook signature did not verify")
	ErrAlreadyPaid      = errors.New("order is already paid")
	ErrNoSession        = errors.New("order has no payment session")
)

// ErrorKind classifies provider call failures. Transient infrastructure
// problems must never be interpreted as payment failure, and configuration
// problems must alert operators instead of the shopper.
type ErrorKind int

const (
	ErrKindRequest ErrorKind = iota
	ErrKindTransient
	ErrKindConfig
)

// ProviderError wraps a failed provider call with its classification.
type ProviderError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification, defaulting to a plain request error.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindRequest
}

// SessionLineItem describes one display line of the hosted payment page.
type SessionLineItem struct {
	Name            string
	Quantity        int
	UnitAmountCents int64
	Currency        string
}

// SessionParams carries everything needed to open a payable session for an
// order. The attempt id travels in provider metadata so webhooks can resolve
// the attempt without relying on the session id join alone.
type SessionParams struct {
	OrderID       uint
	AttemptID     uint
	OrderNumber   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	LineItems     []SessionLineItem
}

// Session is the provider checkout session snapshot the core depends on.
type Session struct {
	ID              string
	Status          string // open | complete | expired
	PaymentStatus   string // paid | unpaid | no_payment_required
	URL             string
	SuccessURL      string
	CancelURL       string
	ClientSecret    string
	PaymentIntentID string
	OrderID         uint
	AttemptID       uint
}

// Intent is the provider payment-intent snapshot used when the session pair
// is inconclusive.
type Intent struct {
	ID               string
	Status           string
	LastErrorCode    string
	LastErrorMessage string
}
