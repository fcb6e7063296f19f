package controllers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/cache"
	"github.com/DanielKrause/ShopWerk/internal/pkg/database"
	"github.com/DanielKrause/ShopWerk/internal/pkg/env"
	"github.com/DanielKrause/ShopWerk/internal/pkg/mail"
	"github.com/DanielKrause/ShopWerk/internal/pkg/payment"
	"github.com/DanielKrause/ShopWerk/internal/pkg/ratelimit"
	"github.com/DanielKrause/ShopWerk/internal/pkg/session"
	"github.com/DanielKrause/ShopWerk/internal/pkg/statistics"
	"github.com/DanielKrause/ShopWerk/internal/pkg/token"
	"github.com/DanielKrause/ShopWerk/internal/pkg/usercontext"
)

const receiptResendWindow = 30 * time.Second

// orderFromParams loads the order addressed by :id, nil when absent.
func orderFromParams(c *fiber.Ctx) (*models.Order, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, nil
	}
	return newCheckoutService().OrderByID(context.Background(), uint(id))
}

// mayAccessOrder decides whether this request may see the order: the session
// that created it, the authenticated owner, or a bearer of a valid receipt
// token for exactly this order.
func mayAccessOrder(c *fiber.Ctx, order *models.Order) bool {
	if raw := session.GetSessionValue(c, lastOrderIDKey); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && uint(id) == order.ID {
			return true
		}
	}
	if isLoggedIn(c) {
		if customer := customerForUser(usercontext.GetUserID(c)); customer != nil && customer.ID == order.CustomerID {
			return true
		}
	}
	if claims, ok := token.ParseOrderReceipt(c.Query("token")); ok {
		if claims.OrderID == order.ID && models.NormalizeEmail(claims.Email) == models.NormalizeEmail(order.Email) {
			return true
		}
	}
	return false
}

// HandleOrderPay opens or continues the payment session and redirects the
// shopper to the provider's hosted page.
func HandleOrderPay(c *fiber.Ctx) error {
	order, err := orderFromParams(c)
	if err != nil || order == nil {
		return fiber.NewError(fiber.StatusNotFound, "Bestellung nicht gefunden")
	}
	if !mayAccessOrder(c, order) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}

	orderPath := "/order/" + strconv.FormatUint(uint64(order.ID), 10)
	if order.IsPaid() {
		return c.Redirect(orderPath+"/result", fiber.StatusSeeOther)
	}

	receipt, err := token.IssueOrderReceipt(token.OrderReceiptClaims{OrderID: order.ID, Email: order.Email})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Zahlung konnte nicht gestartet werden")
	}
	guest, err := token.IssueGuestCheckout(token.GuestCheckoutClaims{
		CustomerID: order.CustomerID,
		DraftID:    draftIDForOrder(order.ID),
		OrderID:    order.ID,
	})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Zahlung konnte nicht gestartet werden")
	}

	base := env.PublicBaseURL()
	successURL := base + orderPath + "/result?token=" + receipt
	cancelURL := base + "/checkout/resume?token=" + guest

	items, err := newCheckoutService().OrderItems(context.Background(), order.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Zahlung konnte nicht gestartet werden")
	}
	lineItems := make([]payment.SessionLineItem, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, payment.SessionLineItem{
			Name:            item.Name,
			Quantity:        item.Quantity,
			UnitAmountCents: item.UnitPriceCents,
			Currency:        order.Currency,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	psession, err := newPaymentService().StartPayment(ctx, order, successURL, cancelURL, lineItems)
	if err != nil {
		if errors.Is(err, payment.ErrAlreadyPaid) {
			return c.Redirect(orderPath+"/result", fiber.StatusSeeOther)
		}
		log.Printf("Error starting payment for order %d: %v", order.ID, err)
		fm := fiber.Map{"type": "error", "message": "Die Zahlung konnte nicht gestartet werden, bitte versuche es erneut"}
		return flash.WithError(c, fm).Redirect(orderPath + "/result")
	}
	return c.Redirect(psession.URL, fiber.StatusSeeOther)
}

// draftIDForOrder finds the draft that produced an order, 0 when unknown.
func draftIDForOrder(orderID uint) uint {
	var draft models.CheckoutDraft
	if err := database.GetDB().Where("order_id = ?", orderID).First(&draft).Error; err != nil {
		return 0
	}
	return draft.ID
}

// HandleOrderResult shows the payment outcome. It never waits for a webhook:
// the provider is consulted directly and local state self-heals.
func HandleOrderResult(c *fiber.Ctx) error {
	order, err := orderFromParams(c)
	if err != nil || order == nil {
		return fiber.NewError(fiber.StatusNotFound, "Bestellung nicht gefunden")
	}
	if !mayAccessOrder(c, order) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := newPaymentService().ResolveRemoteResult(ctx, order)
	if err != nil {
		if errors.Is(err, payment.ErrNoSession) {
			result = payment.ResultUnknown
		} else {
			log.Printf("Error resolving payment result for order %d: %v", order.ID, err)
			result = payment.ResultUnknown
		}
	}
	// Re-read after reconciliation may have updated the row.
	order, err = newCheckoutService().OrderByID(context.Background(), order.ID)
	if err != nil || order == nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Bestellung konnte nicht geladen werden")
	}
	items, _ := newCheckoutService().OrderItems(context.Background(), order.ID)

	return c.Render("payment/result", fiber.Map{
		"Title":      "Bestellstatus",
		"IsLoggedIn": isLoggedIn(c),
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
		"Order":      order,
		"Items":      items,
		"Result":     string(result),
		"Token":      c.Query("token"),
	}, "layouts/main")
}

// HandleReceiptResend mails the receipt again, at most once per 30 seconds
// per order.
func HandleReceiptResend(c *fiber.Ctx) error {
	order, err := orderFromParams(c)
	if err != nil || order == nil {
		return fiber.NewError(fiber.StatusNotFound, "Bestellung nicht gefunden")
	}
	if !mayAccessOrder(c, order) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	resultPath := "/order/" + strconv.FormatUint(uint64(order.ID), 10) + "/result"
	fm := fiber.Map{"type": "error"}

	counters := ratelimit.NewRedisStore(cache.GetClient())
	key := "receipt:resend:" + strconv.FormatUint(uint64(order.ID), 10)
	ctx := context.Background()

	count, err := counters.Count(ctx, key)
	if err == nil && count >= 1 {
		fm["message"] = "Die Quittung wurde gerade erst versendet, bitte warte kurz."
		return flash.WithError(c, fm).Redirect(resultPath)
	}

	items, err := newCheckoutService().OrderItems(ctx, order.ID)
	if err != nil {
		fm["message"] = "Die Quittung konnte nicht versendet werden"
		return flash.WithError(c, fm).Redirect(resultPath)
	}
	receipt, err := token.IssueOrderReceipt(token.OrderReceiptClaims{OrderID: order.ID, Email: order.Email})
	if err != nil {
		fm["message"] = "Die Quittung konnte nicht versendet werden"
		return flash.WithError(c, fm).Redirect(resultPath)
	}
	link := env.PublicBaseURL() + resultPath + "?token=" + receipt

	subject, body := mail.BuildOrderReceipt(order, items, link)
	if err := mail.SendMail(order.Email, subject, body); err != nil {
		fm["message"] = "Die Quittung konnte nicht versendet werden"
		return flash.WithError(c, fm).Redirect(resultPath)
	}
	_, _ = counters.Incr(ctx, key, receiptResendWindow)

	fm = fiber.Map{"type": "success", "message": "Quittung wurde an " + order.Email + " versendet"}
	return flash.WithSuccess(c, fm).Redirect(resultPath)
}

// HandleStripeWebhook ingests provider events. The raw body is passed through
// untouched because the signature covers the exact bytes.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := newPaymentService().HandleWebhook(ctx, rawBody, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Printf("Error processing webhook: %v", err)
		// 5xx makes the provider redeliver; the ledger row is marked failed.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	go statistics.UpdateCacheIfNeeded()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
