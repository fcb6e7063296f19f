package router

import (
	"github.com/DanielKrause/ShopWerk/app/controllers"
	"github.com/DanielKrause/ShopWerk/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Mail link targets, usable without a session
	app.Get("/activate", loggedInMiddleware, controllers.HandleAuthActivate)
	app.Get("/checkout/confirm", loggedInMiddleware, controllers.HandleCheckoutConfirm)
	app.Get("/checkout/resume", loggedInMiddleware, controllers.HandleCheckoutResume)
	app.Get("/user/settings/verify-email-change", controllers.HandleUserEmailChangeVerify)

	// Auth
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get("/auth/:provider", controllers.HandleOAuthBegin)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Payment provider webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
}
