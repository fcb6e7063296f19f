package controllers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/DanielKrause/ShopWerk/internal/pkg/payment"
)

// mockProvider returns the configured backend as a mock, nil when the real
// provider is active. The mock pages must never exist against Stripe.
func mockProvider() *payment.MockProvider {
	provider, _ := newPaymentService().Provider().(*payment.MockProvider)
	return provider
}

// HandleMockPayment renders the stand-in for the provider's hosted payment
// page when PAYMENT_PROVIDER=mock.
func HandleMockPayment(c *fiber.Ctx) error {
	provider := mockProvider()
	if provider == nil {
		return fiber.ErrNotFound
	}

	session, err := provider.GetCheckoutSession(context.Background(), c.Params("session_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Zahlungssitzung nicht gefunden")
	}

	order, err := newCheckoutService().OrderByID(context.Background(), session.OrderID)
	if err != nil || order == nil {
		return fiber.NewError(fiber.StatusNotFound, "Bestellung nicht gefunden")
	}

	return c.Render("payment/mock", fiber.Map{
		"Title":      "Testzahlung",
		"IsLoggedIn": isLoggedIn(c),
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
		"Session":    session,
		"Order":      order,
	}, "layouts/main")
}

// HandleMockPaymentAction drives a mock session to an outcome and redirects
// the way the hosted page would.
func HandleMockPaymentAction(c *fiber.Ctx) error {
	provider := mockProvider()
	if provider == nil {
		return fiber.ErrNotFound
	}

	sessionID := c.Params("session_id")
	session, err := provider.GetCheckoutSession(context.Background(), sessionID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Zahlungssitzung nicht gefunden")
	}
	fallback := "/order/" + strconv.FormatUint(uint64(session.OrderID), 10) + "/result"

	switch c.Params("action") {
	case "complete":
		if !provider.CompleteSession(sessionID) {
			return fiber.NewError(fiber.StatusConflict, "Sitzung kann nicht abgeschlossen werden")
		}
		if session.SuccessURL != "" {
			return c.Redirect(session.SuccessURL, fiber.StatusSeeOther)
		}
		return c.Redirect(fallback, fiber.StatusSeeOther)

	case "fail":
		provider.FailIntent(sessionID, "card_declined", "Your card was declined.")
		fm := fiber.Map{"type": "error", "message": "Testkarte wurde abgelehnt"}
		return flash.WithError(c, fm).Redirect("/payment/mock/" + sessionID)

	case "expire":
		provider.ExpireSession(sessionID)
		if session.CancelURL != "" {
			return c.Redirect(session.CancelURL, fiber.StatusSeeOther)
		}
		return c.Redirect(fallback, fiber.StatusSeeOther)

	case "cancel":
		if session.CancelURL != "" {
			return c.Redirect(session.CancelURL, fiber.StatusSeeOther)
		}
		return c.Redirect(fallback, fiber.StatusSeeOther)

	default:
		return fiber.ErrNotFound
	}
}
