package controllers

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/cache"
	"github.com/DanielKrause/ShopWerk/internal/pkg/checkout"
	"github.com/DanielKrause/ShopWerk/internal/pkg/database"
	"github.com/DanielKrause/ShopWerk/internal/pkg/env"
	"github.com/DanielKrause/ShopWerk/internal/pkg/mail"
	"github.com/DanielKrause/ShopWerk/internal/pkg/payment"
	"github.com/DanielKrause/ShopWerk/internal/pkg/ratelimit"
	"github.com/DanielKrause/ShopWerk/internal/pkg/session"
	"github.com/DanielKrause/ShopWerk/internal/pkg/usercontext"
)

// Session keys used by the shop controllers.
const (
	AUTH_KEY       string = "authenticated"
	USER_ID        string = "user_id"
	USER_NAME      string = "username"
	USER_EMAIL     string = "user_email"
	USER_IS_ADMIN  string = "isAdmin"
	FROM_PROTECTED string = "from_protected"

	cartTokenKey    = "cart_token"
	checkoutDraftID = "checkout_draft_id"
)

func isLoggedIn(c *fiber.Ctx) bool {
	return usercontext.IsLoggedIn(c)
}

func csrfToken(c *fiber.Ctx) string {
	if v, ok := c.Locals("csrf").(string); ok {
		return v
	}
	return ""
}

// currentUser loads the logged-in user's row, nil for guests.
func currentUser(c *fiber.Ctx) *models.User {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return nil
	}
	var user models.User
	if err := database.GetDB().First(&user, userCtx.UserID).Error; err != nil {
		return nil
	}
	return &user
}

// newCheckoutService wires the checkout service the way every controller
// needs it: GORM repository, SMTP mailer, Redis-backed counters.
func newCheckoutService() *checkout.Service {
	return checkout.NewService(
		checkout.NewRepository(database.GetDB()),
		mail.NewSMTPSender(),
		ratelimit.NewRedisStore(cache.GetClient()),
		env.PublicBaseURL(),
	)
}

func newPaymentService() *payment.Service {
	return payment.NewService(
		payment.NewRepository(database.GetDB()),
		payment.ProviderFromEnv(),
	)
}

// cartForSession returns the session's cart, creating it on first use. The
// cart is keyed by an opaque token stored in the session so it survives
// login/logout.
func cartForSession(c *fiber.Ctx, create bool) (*models.Cart, error) {
	db := database.GetDB()
	token := session.GetSessionValue(c, cartTokenKey)

	if token != "" {
		var cart models.Cart
		err := db.Where("token = ?", token).First(&cart).Error
		if err == nil {
			return &cart, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}
	if !create {
		return nil, nil
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	cart := models.Cart{Token: hex.EncodeToString(buf)}
	if userID := usercontext.GetUserID(c); userID != 0 {
		if customer := customerForUser(userID); customer != nil {
			cart.CustomerID = &customer.ID
		}
	}
	if err := db.Create(&cart).Error; err != nil {
		return nil, err
	}
	if err := session.SetSessionValue(c, cartTokenKey, cart.Token); err != nil {
		return nil, err
	}
	return &cart, nil
}

func customerForUser(userID uint) *models.Customer {
	var customer models.Customer
	if err := database.GetDB().Where("user_id = ?", userID).First(&customer).Error; err != nil {
		return nil
	}
	return &customer
}

// currentCartLines reprices the cart from the live catalog. Items whose
// variant disappeared or was deactivated are skipped.
func currentCartLines(cart *models.Cart) ([]checkout.CartLine, error) {
	if cart == nil {
		return nil, nil
	}
	db := database.GetDB()

	var items []models.CartItem
	if err := db.Where("cart_id = ?", cart.ID).Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.VariantID)
	}
	var variants []models.ProductVariant
	if err := db.Where("id IN ? AND active = ?", ids, true).Find(&variants).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.ProductVariant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}

	lines := make([]checkout.CartLine, 0, len(items))
	for _, item := range items {
		variant, ok := byID[item.VariantID]
		if !ok {
			continue
		}
		lines = append(lines, checkout.CartLine{
			VariantID:      variant.ID,
			Name:           variant.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: variant.PriceCents,
			Currency:       variant.Currency,
		})
	}
	return lines, nil
}

func clearCart(cart *models.Cart) error {
	if cart == nil {
		return nil
	}
	return database.GetDB().Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error
}

// snapshotFromLines converts live cart lines into the immutable draft
// snapshot format.
func snapshotFromLines(lines []checkout.CartLine) []models.CartSnapshotLine {
	snapshot := make([]models.CartSnapshotLine, 0, len(lines))
	for _, line := range lines {
		snapshot = append(snapshot, models.CartSnapshotLine{
			VariantID:      line.VariantID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}
	return snapshot
}

// cartView is the render model shared by the cart page and the fragment.
type cartView struct {
	Lines      []checkout.CartLine
	TotalCents int64
	Currency   string
}

func buildCartView(lines []checkout.CartLine) cartView {
	view := cartView{Lines: lines, TotalCents: checkout.TotalCents(lines), Currency: "eur"}
	if len(lines) > 0 {
		view.Currency = lines[0].Currency
	}
	return view
}
