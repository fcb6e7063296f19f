package checkout

import (
	"errors"

	"github.com/DanielKrause/ShopWerk/app/models"
)

// Sentinel errors. Rate-limit and expiry conditions are surfaced distinctly
// from validation problems so controllers can render "try later" instead of
// a form error.
var (
	ErrRateLimited       = errors.New("too many confirmation mails for this address, try again later")
	ErrDraftNotFound     = errors.New("checkout draft not found")
	ErrDraftExpired      = errors.New("checkout draft expired or already used")
	ErrEmailNotConfirmed = errors.New("checkout email is not confirmed yet")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidToken      = errors.New("invalid or expired token")
)

// DraftInput carries one checkout-details submission.
type DraftInput struct {
	Email     string `validate:"required,email"`
	FirstName string
	LastName  string
	Phone     string

	Street      string `validate:"required"`
	Unit        string
	City        string `validate:"required"`
	Subdivision string
	PostalCode  string `validate:"required"`
	Country     string `validate:"required,len=2"`

	Note   string
	UserID *uint

	Lines []models.CartSnapshotLine
}

// CartLine is a live cart line at a well-defined read moment: quantity from
// the cart, name and unit price from the current variant.
type CartLine struct {
	VariantID      uint
	Name           string
	Quantity       int
	UnitPriceCents int64
	Currency       string
}

// SubtotalCents is unit price times quantity.
func (l CartLine) SubtotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// TotalCents sums line subtotals. Tax and shipping are zero for now.
func TotalCents(lines []CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.SubtotalCents()
	}
	return total
}
