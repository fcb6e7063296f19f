package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
	"gorm.io/gorm"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/database"
	"github.com/DanielKrause/ShopWerk/internal/pkg/env"
	"github.com/DanielKrause/ShopWerk/internal/pkg/mail"
	"github.com/DanielKrause/ShopWerk/internal/pkg/session"
	"github.com/DanielKrause/ShopWerk/internal/pkg/token"
	"github.com/DanielKrause/ShopWerk/internal/pkg/usercontext"
)

// HandleUserSettings shows the account page with the pending email change
// and the shopper's orders.
func HandleUserSettings(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	var orders []models.Order
	if customer := customerForUser(user.ID); customer != nil {
		_ = database.GetDB().
			Where("customer_id = ?", customer.ID).
			Order("created_at DESC").
			Limit(20).
			Find(&orders).Error
	}

	return c.Render("user/settings", fiber.Map{
		"Title":      "Konto",
		"IsLoggedIn": true,
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
		"User":       user,
		"Orders":     orders,
	}, "layouts/main")
}

// HandleUserEmailChange starts an email change: the new address must be
// confirmed via mail before it takes effect.
func HandleUserEmailChange(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	fm := fiber.Map{"type": "error"}

	newEmail := models.NormalizeEmail(c.FormValue("new_email"))
	if newEmail == "" || newEmail == models.NormalizeEmail(user.Email) {
		fm["message"] = "Bitte gib eine neue E-Mail-Adresse an"
		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	var existing models.User
	err := database.GetDB().Where("email = ?", newEmail).First(&existing).Error
	if err == nil {
		fm["message"] = "Diese E-Mail-Adresse wird bereits verwendet"
		return flash.WithError(c, fm).Redirect("/user/settings")
	}
	if err != gorm.ErrRecordNotFound {
		fm["message"] = "Etwas ist schiefgelaufen, bitte versuche es erneut"
		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	value, err := token.IssueEmailChange(token.EmailChangeClaims{UserID: user.ID, NewEmail: newEmail})
	if err != nil {
		fm["message"] = "Etwas ist schiefgelaufen, bitte versuche es erneut"
		return flash.WithError(c, fm).Redirect("/user/settings")
	}
	link := env.PublicBaseURL() + "/user/settings/verify-email-change?token=" + value

	subject, body := mail.BuildEmailChangeConfirmation(link)
	if err := mail.SendMail(newEmail, subject, body); err != nil {
		fm["message"] = "Die Bestätigungsmail konnte nicht versendet werden"
		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	now := time.Now()
	user.PendingEmail = newEmail
	user.EmailChangeSentAt = &now
	if err := database.GetDB().Save(user).Error; err != nil {
		fm["message"] = "Etwas ist schiefgelaufen, bitte versuche es erneut"
		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	fm = fiber.Map{"type": "success", "message": "Bestätigungsmail an " + newEmail + " versendet"}
	return flash.WithSuccess(c, fm).Redirect("/user/settings")
}

// HandleUserEmailChangeVerify is the email-change mail link target. The link
// works without a session so it can be opened on any device.
func HandleUserEmailChangeVerify(c *fiber.Ctx) error {
	fm := fiber.Map{"type": "error"}

	claims, ok := token.ParseEmailChange(c.Query("token"))
	if !ok {
		fm["message"] = "Der Bestätigungslink ist ungültig oder abgelaufen"
		return flash.WithError(c, fm).Redirect("/login")
	}

	var user models.User
	if err := database.GetDB().First(&user, claims.UserID).Error; err != nil {
		fm["message"] = "Der Bestätigungslink ist ungültig oder abgelaufen"
		return flash.WithError(c, fm).Redirect("/login")
	}
	// The token must match the change that is actually pending.
	if models.NormalizeEmail(user.PendingEmail) != models.NormalizeEmail(claims.NewEmail) {
		fm["message"] = "Der Bestätigungslink ist ungültig oder abgelaufen"
		return flash.WithError(c, fm).Redirect("/login")
	}

	user.Email = models.NormalizeEmail(claims.NewEmail)
	user.ClearEmailChangeRequest()
	if err := database.GetDB().Save(&user).Error; err != nil {
		fm["message"] = "Die Adresse konnte nicht geändert werden"
		return flash.WithError(c, fm).Redirect("/login")
	}
	// Keep the session header in sync when the owner is logged in here.
	if usercontext.GetUserID(c) == user.ID {
		_ = session.SetSessionValue(c, USER_EMAIL, user.Email)
	}

	fm = fiber.Map{"type": "success", "message": "Deine E-Mail-Adresse wurde geändert."}
	return flash.WithSuccess(c, fm).Redirect("/user/settings")
}

// HandleUserEmailChangeCancel discards a pending email change.
func HandleUserEmailChangeCancel(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	user.ClearEmailChangeRequest()
	if err := database.GetDB().Save(user).Error; err != nil {
		fm := fiber.Map{"type": "error", "message": "Etwas ist schiefgelaufen, bitte versuche es erneut"}
		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	fm := fiber.Map{"type": "success", "message": "E-Mail-Änderung abgebrochen"}
	return flash.WithSuccess(c, fm).Redirect("/user/settings")
}
