package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/database"
	"github.com/DanielKrause/ShopWerk/internal/pkg/env"
	"github.com/DanielKrause/ShopWerk/internal/pkg/hcaptcha"
	"github.com/DanielKrause/ShopWerk/internal/pkg/mail"
	"github.com/DanielKrause/ShopWerk/internal/pkg/session"
	"github.com/DanielKrause/ShopWerk/internal/pkg/statistics"
	"github.com/DanielKrause/ShopWerk/internal/pkg/token"
)

// loginUser writes the user into the session. Shared by password login and
// the OAuth callback.
func loginUser(c *fiber.Ctx, user *models.User) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}
	sess.Set(AUTH_KEY, true)
	sess.Set(USER_ID, user.ID)
	sess.Set(USER_NAME, user.Name)
	sess.Set(USER_EMAIL, user.Email)
	sess.Set(USER_IS_ADMIN, user.Role == models.ROLE_ADMIN)
	if err := sess.Save(); err != nil {
		return err
	}
	database.GetDB().Model(user).Update("last_login_at", time.Now())
	return nil
}

func HandleAuthLogin(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		var user models.User
		fm := fiber.Map{"type": "error"}

		// notice: in production you should not inform the user
		// with detailed messages about login failures
		result := database.GetDB().Where("email = ?", models.NormalizeEmail(c.FormValue("email"))).First(&user)
		if result.Error != nil {
			fm["message"] = "There is a problem with the login process"
			return flash.WithError(c, fm).Redirect("/login")
		}
		if !user.CheckPassword(c.FormValue("password")) {
			fm["message"] = "There is a problem with the login process"
			return flash.WithError(c, fm).Redirect("/login")
		}
		if !user.IsActive() {
			fm["message"] = "Bitte aktiviere zuerst dein Konto über den Link in der Mail"
			return flash.WithError(c, fm).Redirect("/login")
		}

		if err := loginUser(c, &user); err != nil {
			fm["message"] = fmt.Sprintf("something went wrong: %s", err)
			return flash.WithError(c, fm).Redirect("/login")
		}

		fm = fiber.Map{"type": "success", "message": "Glückwunsch du bist drin! Viel Spaß!"}
		return flash.WithSuccess(c, fm).Redirect("/")
	}

	return c.Render("auth/login", fiber.Map{
		"Title":      "Einloggen",
		"IsLoggedIn": isLoggedIn(c),
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
	}, "layouts/main")
}

func HandleAuthLogout(c *fiber.Ctx) error {
	fm := fiber.Map{"type": "error"}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		fm["message"] = "logged out (no sess)"
		return flash.WithError(c, fm).Redirect("/login")
	}
	if err := sess.Destroy(); err != nil {
		fm["message"] = fmt.Sprintf("something went wrong: %s", err)
		return flash.WithError(c, fm).Redirect("/login")
	}

	c.Locals(FROM_PROTECTED, false)

	fm = fiber.Map{"type": "success", "message": "Bye bye! Auf Wiedersehen."}
	return flash.WithSuccess(c, fm).Redirect("/login")
}

func HandleAuthRegister(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		fm := fiber.Map{"type": "error"}

		valid, err := hcaptcha.Verify(c.FormValue("h-captcha-response"))
		if err != nil || !valid {
			errorMsg := "Captcha validation failed. Please try again."
			if err != nil && env.IsDev() {
				errorMsg = fmt.Sprintf("Captcha validation failed: %v", err)
			}
			fm["message"] = errorMsg
			return flash.WithError(c, fm).Redirect("/register")
		}

		user, err := models.CreateUser(c.FormValue("username"), c.FormValue("email"), c.FormValue("password"))
		if err != nil {
			fm["message"] = fmt.Sprintf("something went wrong: %s", err)
			return flash.WithError(c, fm).Redirect("/register")
		}
		if err := database.GetDB().Create(user).Error; err != nil {
			fm["message"] = fmt.Sprintf("something went wrong: %s", err)
			return flash.WithError(c, fm).Redirect("/register")
		}

		if err := sendActivationMail(user); err != nil {
			fm["message"] = "Die Aktivierungsmail konnte nicht versendet werden"
			return flash.WithError(c, fm).Redirect("/register")
		}

		go statistics.UpdateCacheIfNeeded()

		fm = fiber.Map{"type": "success", "message": "Mega! Bitte bestätige deine E-Mail-Adresse über den Link in der Mail."}
		return flash.WithSuccess(c, fm).Redirect("/login")
	}

	return c.Render("auth/register", fiber.Map{
		"Title":           "Registrieren",
		"IsLoggedIn":      isLoggedIn(c),
		"Flash":           flash.Get(c),
		"Csrf":            csrfToken(c),
		"HcaptchaSitekey": env.GetEnv("HCAPTCHA_SITEKEY", ""),
	}, "layouts/main")
}

func sendActivationMail(user *models.User) error {
	value, err := token.IssueSignup(token.SignupClaims{UserID: user.ID, Email: user.Email})
	if err != nil {
		return err
	}
	link := env.PublicBaseURL() + "/activate?token=" + value
	subject, body := mail.BuildAccountActivation(link)
	if err := mail.SendMail(user.Email, subject, body); err != nil {
		return err
	}
	now := time.Now()
	return database.GetDB().Model(user).Update("activation_sent_at", now).Error
}

// HandleAuthActivate is the signup-mail link target.
func HandleAuthActivate(c *fiber.Ctx) error {
	fm := fiber.Map{"type": "error"}

	claims, ok := token.ParseSignup(c.Query("token"))
	if !ok {
		fm["message"] = "Der Aktivierungslink ist ungültig oder abgelaufen"
		return flash.WithError(c, fm).Redirect("/login")
	}

	var user models.User
	if err := database.GetDB().First(&user, claims.UserID).Error; err != nil {
		fm["message"] = "Der Aktivierungslink ist ungültig oder abgelaufen"
		return flash.WithError(c, fm).Redirect("/login")
	}
	if models.NormalizeEmail(user.Email) != models.NormalizeEmail(claims.Email) {
		fm["message"] = "Der Aktivierungslink ist ungültig oder abgelaufen"
		return flash.WithError(c, fm).Redirect("/login")
	}

	if user.Status == models.STATUS_INACTIVE {
		if err := database.GetDB().Model(&user).Update("status", models.STATUS_ACTIVE).Error; err != nil {
			fm["message"] = "Das Konto konnte nicht aktiviert werden"
			return flash.WithError(c, fm).Redirect("/login")
		}
	}

	fm = fiber.Map{"type": "success", "message": "Dein Konto ist aktiviert, du kannst dich jetzt einloggen."}
	return flash.WithSuccess(c, fm).Redirect("/login")
}
