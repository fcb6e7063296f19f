package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/checkout"
	"github.com/DanielKrause/ShopWerk/internal/pkg/session"
	"github.com/DanielKrause/ShopWerk/internal/pkg/token"
	"github.com/DanielKrause/ShopWerk/internal/pkg/usercontext"
)

const lastOrderIDKey = "last_order_id"

func sessionDraftID(c *fiber.Ctx) uint {
	raw := session.GetSessionValue(c, checkoutDraftID)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func rememberDraft(c *fiber.Ctx, draftID uint) {
	_ = session.SetSessionValue(c, checkoutDraftID, strconv.FormatUint(uint64(draftID), 10))
}

// HandleCheckoutDetails shows and accepts the contact/address form. A POST
// upserts the customer's single active draft and routes into the email gate.
func HandleCheckoutDetails(c *fiber.Ctx) error {
	cart, err := cartForSession(c, false)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Warenkorb konnte nicht geladen werden")
	}
	lines, err := currentCartLines(cart)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Warenkorb konnte nicht geladen werden")
	}
	if len(lines) == 0 {
		fm := fiber.Map{"type": "error", "message": "Dein Warenkorb ist leer"}
		return flash.WithError(c, fm).Redirect("/cart")
	}

	if c.Method() == fiber.MethodPost {
		return handleCheckoutDetailsPost(c, lines)
	}

	email := ""
	if user := currentUser(c); user != nil {
		email = user.Email
	}
	return c.Render("checkout/details", fiber.Map{
		"Title":      "Kasse",
		"IsLoggedIn": isLoggedIn(c),
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
		"Cart":       buildCartView(lines),
		"Email":      email,
	}, "layouts/main")
}

func handleCheckoutDetailsPost(c *fiber.Ctx, lines []checkout.CartLine) error {
	svc := newCheckoutService()
	fm := fiber.Map{"type": "error"}

	in := checkout.DraftInput{
		Email:       c.FormValue("email"),
		FirstName:   c.FormValue("first_name"),
		LastName:    c.FormValue("last_name"),
		Phone:       c.FormValue("phone"),
		Street:      c.FormValue("street"),
		Unit:        c.FormValue("unit"),
		City:        c.FormValue("city"),
		Subdivision: c.FormValue("subdivision"),
		PostalCode:  c.FormValue("postal_code"),
		Country:     c.FormValue("country"),
		Note:        c.FormValue("note"),
		Lines:       snapshotFromLines(lines),
	}
	if userCtx := usercontext.GetUserContext(c); userCtx.IsLoggedIn {
		id := userCtx.UserID
		in.UserID = &id
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	draft, _, err := svc.CreateOrRefreshDraft(ctx, in)
	if err != nil {
		fm["message"] = "Bitte prüfe deine Angaben"
		return flash.WithError(c, fm).Redirect("/checkout/details")
	}
	rememberDraft(c, draft.ID)

	confirmed, err := svc.IsEmailConfirmed(ctx, draft.Email, currentUser(c))
	if err != nil {
		fm["message"] = "Etwas ist schiefgelaufen, bitte versuche es erneut"
		return flash.WithError(c, fm).Redirect("/checkout/details")
	}
	if confirmed {
		// Account owners and already-confirmed addresses skip the mail round
		// trip; stamp the draft directly.
		if draft.EmailConfirmedAt == nil {
			if _, err := svc.ConfirmKnownEmail(ctx, draft); err != nil {
				fm["message"] = "Etwas ist schiefgelaufen, bitte versuche es erneut"
				return flash.WithError(c, fm).Redirect("/checkout/details")
			}
		}
		return c.Redirect("/checkout/review", fiber.StatusSeeOther)
	}

	if err := svc.SendConfirmationEmail(ctx, draft); err != nil {
		if errors.Is(err, checkout.ErrRateLimited) {
			fm["message"] = "Zu viele Bestätigungsmails. Bitte warte eine Stunde oder nutze einen bereits versendeten Link."
			return flash.WithError(c, fm).Redirect("/checkout/awaiting")
		}
		fm["message"] = "Die Bestätigungsmail konnte nicht versendet werden"
		return flash.WithError(c, fm).Redirect("/checkout/details")
	}
	return c.Redirect("/checkout/awaiting", fiber.StatusSeeOther)
}

// HandleCheckoutAwaiting shows the "check your inbox" page.
func HandleCheckoutAwaiting(c *fiber.Ctx) error {
	draftID := sessionDraftID(c)
	if draftID == 0 {
		return c.Redirect("/cart", fiber.StatusSeeOther)
	}
	svc := newCheckoutService()
	draft, err := svc.DraftByID(context.Background(), draftID)
	if err != nil {
		return c.Redirect("/cart", fiber.StatusSeeOther)
	}
	return c.Render("checkout/awaiting", fiber.Map{
		"Title":      "E-Mail bestätigen",
		"IsLoggedIn": isLoggedIn(c),
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
		"Email":      draft.Email,
	}, "layouts/main")
}

// HandleCheckoutConfirm is the confirmation-link target.
func HandleCheckoutConfirm(c *fiber.Ctx) error {
	svc := newCheckoutService()
	fm := fiber.Map{"type": "error"}

	draft, err := svc.ConfirmEmail(context.Background(), c.Query("token"))
	if err != nil {
		fm["message"] = "Der Bestätigungslink ist ungültig oder abgelaufen"
		return flash.WithError(c, fm).Redirect("/checkout/details")
	}
	rememberDraft(c, draft.ID)

	fm = fiber.Map{"type": "success", "message": "E-Mail-Adresse bestätigt"}
	return flash.WithSuccess(c, fm).Redirect("/checkout/review")
}

// HandleCheckoutResend re-sends the confirmation mail, rate limited.
func HandleCheckoutResend(c *fiber.Ctx) error {
	svc := newCheckoutService()
	fm := fiber.Map{"type": "error"}

	draftID := sessionDraftID(c)
	if draftID == 0 {
		fm["message"] = "Keine laufende Bestellung gefunden"
		return flash.WithError(c, fm).Redirect("/cart")
	}
	draft, err := svc.DraftByID(context.Background(), draftID)
	if err != nil {
		fm["message"] = "Keine laufende Bestellung gefunden"
		return flash.WithError(c, fm).Redirect("/cart")
	}

	if err := svc.SendConfirmationEmail(context.Background(), draft); err != nil {
		if errors.Is(err, checkout.ErrRateLimited) {
			fm["message"] = "Zu viele Bestätigungsmails. Bitte warte eine Stunde."
		} else {
			fm["message"] = "Die Bestätigungsmail konnte nicht versendet werden"
		}
		return flash.WithError(c, fm).Redirect("/checkout/awaiting")
	}

	fm = fiber.Map{"type": "success", "message": "Bestätigungsmail wurde erneut versendet"}
	return flash.WithSuccess(c, fm).Redirect("/checkout/awaiting")
}

// HandleCheckoutReview shows the final review with live prices.
func HandleCheckoutReview(c *fiber.Ctx) error {
	svc := newCheckoutService()

	draftID := sessionDraftID(c)
	if draftID == 0 {
		return c.Redirect("/cart", fiber.StatusSeeOther)
	}
	draft, err := svc.DraftByID(context.Background(), draftID)
	if err != nil {
		return c.Redirect("/cart", fiber.StatusSeeOther)
	}
	if !draft.IsValid(time.Now()) {
		fm := fiber.Map{"type": "error", "message": "Die Bestellung ist abgelaufen, bitte beginne erneut"}
		return flash.WithError(c, fm).Redirect("/checkout/details")
	}
	if draft.EmailConfirmedAt == nil {
		return c.Redirect("/checkout/awaiting", fiber.StatusSeeOther)
	}

	cart, err := cartForSession(c, false)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Warenkorb konnte nicht geladen werden")
	}
	lines, err := currentCartLines(cart)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Warenkorb konnte nicht geladen werden")
	}
	if len(lines) == 0 {
		// Session cart got lost (new browser after the mail link); rebuild it
		// from the draft snapshot with live prices.
		lines, err = svc.RestoreCartFromDraft(context.Background(), draft)
		if err != nil || len(lines) == 0 {
			fm := fiber.Map{"type": "error", "message": "Dein Warenkorb ist leer"}
			return flash.WithError(c, fm).Redirect("/cart")
		}
	}

	return c.Render("checkout/review", fiber.Map{
		"Title":      "Bestellung prüfen",
		"IsLoggedIn": isLoggedIn(c),
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
		"Draft":      draft,
		"Cart":       buildCartView(lines),
	}, "layouts/main")
}

// HandleCheckoutOrder materializes the order from the session draft. Safe to
// submit twice: the draft's idempotency key routes to the existing order.
func HandleCheckoutOrder(c *fiber.Ctx) error {
	svc := newCheckoutService()
	fm := fiber.Map{"type": "error"}

	draftID := sessionDraftID(c)
	if draftID == 0 {
		fm["message"] = "Keine laufende Bestellung gefunden"
		return flash.WithError(c, fm).Redirect("/cart")
	}
	draft, err := svc.DraftByID(context.Background(), draftID)
	if err != nil {
		fm["message"] = "Keine laufende Bestellung gefunden"
		return flash.WithError(c, fm).Redirect("/cart")
	}

	cart, err := cartForSession(c, false)
	if err != nil {
		fm["message"] = "Warenkorb konnte nicht geladen werden"
		return flash.WithError(c, fm).Redirect("/cart")
	}
	lines, err := currentCartLines(cart)
	if err != nil {
		fm["message"] = "Warenkorb konnte nicht geladen werden"
		return flash.WithError(c, fm).Redirect("/cart")
	}
	if len(lines) == 0 {
		lines, err = svc.RestoreCartFromDraft(context.Background(), draft)
		if err != nil {
			fm["message"] = "Warenkorb konnte nicht geladen werden"
			return flash.WithError(c, fm).Redirect("/cart")
		}
	}

	order, err := svc.CreateOrderFromDraft(context.Background(), draftID, lines)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrDraftExpired):
			// An expired draft sends the shopper back to the details step, not
			// the cart, so the entered data can simply be submitted again.
			fm["message"] = "Die Bestellung ist abgelaufen, bitte beginne erneut"
			return flash.WithError(c, fm).Redirect("/checkout/details")
		case errors.Is(err, checkout.ErrEmailNotConfirmed):
			return c.Redirect("/checkout/awaiting", fiber.StatusSeeOther)
		case errors.Is(err, checkout.ErrEmptyCart):
			fm["message"] = "Dein Warenkorb ist leer"
		default:
			fm["message"] = "Die Bestellung konnte nicht angelegt werden"
		}
		return flash.WithError(c, fm).Redirect("/cart")
	}

	_ = clearCart(cart)
	_ = session.SetSessionValue(c, lastOrderIDKey, strconv.FormatUint(uint64(order.ID), 10))

	return c.Redirect("/order/"+strconv.FormatUint(uint64(order.ID), 10)+"/pay", fiber.StatusSeeOther)
}

// HandleCheckoutResume re-enters a checkout after the browser lost its way:
// payment-provider redirects, mail links on another device, expired tabs.
// Priority: guest token, then session draft, then the account's latest draft.
func HandleCheckoutResume(c *fiber.Ctx) error {
	svc := newCheckoutService()

	var draft *models.CheckoutDraft
	if claims, ok := token.ParseGuestCheckout(c.Query("token")); ok {
		if d, err := svc.DraftByID(context.Background(), claims.DraftID); err == nil && d.CustomerID == claims.CustomerID {
			// A token minted before order creation carries order id 0; any
			// other mismatch means the token belongs to a different run.
			if claims.OrderID == 0 || (d.OrderID != nil && *d.OrderID == claims.OrderID) {
				draft = d
				rememberDraft(c, d.ID)
			}
		}
	}
	if draft == nil {
		if draftID := sessionDraftID(c); draftID != 0 {
			if d, err := svc.DraftByID(context.Background(), draftID); err == nil {
				draft = d
			}
		}
	}
	if draft == nil && isLoggedIn(c) {
		if customer := customerForUser(usercontext.GetUserID(c)); customer != nil {
			if d, err := svc.LatestDraftForCustomer(context.Background(), customer.ID); err == nil && d != nil {
				draft = d
				rememberDraft(c, d.ID)
			}
		}
	}
	if draft == nil {
		return c.Redirect("/cart", fiber.StatusSeeOther)
	}

	// A draft that already produced an order routes to its payment state.
	if draft.OrderID != nil {
		id := strconv.FormatUint(uint64(*draft.OrderID), 10)
		_ = session.SetSessionValue(c, lastOrderIDKey, id)
		return c.Redirect("/order/"+id+"/result", fiber.StatusSeeOther)
	}
	if !draft.IsValid(time.Now()) {
		fm := fiber.Map{"type": "error", "message": "Die Bestellung ist abgelaufen, bitte beginne erneut"}
		return flash.WithError(c, fm).Redirect("/checkout/details")
	}
	if draft.EmailConfirmedAt == nil {
		return c.Redirect("/checkout/awaiting", fiber.StatusSeeOther)
	}
	return c.Redirect("/checkout/review", fiber.StatusSeeOther)
}
