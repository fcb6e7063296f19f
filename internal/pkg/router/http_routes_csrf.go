package router

import (
	"strings"
	"time"

	"github.com/DanielKrause/ShopWerk/app/controllers"
	"github.com/DanielKrause/ShopWerk/internal/pkg/env"
	"github.com/DanielKrause/ShopWerk/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/webhooks/")
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))

	// Shop
	group.Get("/", loggedInMiddleware, controllers.HandleStart)
	group.Get("/product/:slug", loggedInMiddleware, controllers.HandleProduct)

	// Cart
	group.Get("/cart", loggedInMiddleware, controllers.HandleCartView)
	group.Get("/cart/fragment", loggedInMiddleware, controllers.HandleCartFragment)
	group.Post("/cart/add", loggedInMiddleware, controllers.HandleCartAdd)
	group.Post("/cart/update", loggedInMiddleware, controllers.HandleCartUpdate)
	group.Post("/cart/remove/:variant_id", loggedInMiddleware, controllers.HandleCartRemove)
	group.Post("/cart/clear", loggedInMiddleware, controllers.HandleCartClear)

	// Checkout
	group.Get("/checkout/details", loggedInMiddleware, controllers.HandleCheckoutDetails)
	group.Post("/checkout/details", loggedInMiddleware, controllers.HandleCheckoutDetails)
	group.Get("/checkout/awaiting", loggedInMiddleware, controllers.HandleCheckoutAwaiting)
	group.Post("/checkout/confirm/resend", loggedInMiddleware, controllers.HandleCheckoutResend)
	group.Get("/checkout/review", loggedInMiddleware, controllers.HandleCheckoutReview)
	group.Post("/checkout/order", loggedInMiddleware, controllers.HandleCheckoutOrder)

	// Payment
	group.Get("/order/:id/pay", loggedInMiddleware, controllers.HandleOrderPay)
	group.Post("/order/:id/pay", loggedInMiddleware, controllers.HandleOrderPay)
	group.Get("/order/:id/result", loggedInMiddleware, controllers.HandleOrderResult)
	group.Post("/order/:id/receipt/resend", loggedInMiddleware, controllers.HandleReceiptResend)

	// Mock provider pages (404 against the real provider)
	group.Get("/payment/mock/:session_id", loggedInMiddleware, controllers.HandleMockPayment)
	group.Post("/payment/mock/:session_id/:action", loggedInMiddleware, controllers.HandleMockPaymentAction)

	// Auth
	group.Get("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Post("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Get("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	group.Post("/register", loggedInMiddleware, controllers.HandleAuthRegister)

	// Account
	group.Get("/user/settings", middleware.RequireAuth, controllers.HandleUserSettings)
	group.Post("/user/settings/email-change", middleware.RequireAuth, controllers.HandleUserEmailChange)
	group.Post("/user/settings/email-change/cancel", middleware.RequireAuth, controllers.HandleUserEmailChangeCancel)
}
