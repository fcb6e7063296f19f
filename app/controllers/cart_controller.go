package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/database"
)

// HandleCartView renders the cart page.
func HandleCartView(c *fiber.Ctx) error {
	cart, err := cartForSession(c, false)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Warenkorb konnte nicht geladen werden")
	}
	lines, err := currentCartLines(cart)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Warenkorb konnte nicht geladen werden")
	}

	return c.Render("cart/index", fiber.Map{
		"Title":      "Warenkorb",
		"IsLoggedIn": isLoggedIn(c),
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
		"Cart":       buildCartView(lines),
	}, "layouts/main")
}

// HandleCartFragment renders the cart as an HTMX fragment for the header.
func HandleCartFragment(c *fiber.Ctx) error {
	cart, err := cartForSession(c, false)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Warenkorb konnte nicht geladen werden")
	}
	lines, err := currentCartLines(cart)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Warenkorb konnte nicht geladen werden")
	}
	return c.Render("cart/fragment", fiber.Map{"Cart": buildCartView(lines)})
}

// HandleCartAdd puts a variant into the cart, merging with an existing line.
func HandleCartAdd(c *fiber.Ctx) error {
	fm := fiber.Map{"type": "error"}

	variantID, err := strconv.ParseUint(c.FormValue("variant_id"), 10, 64)
	if err != nil || variantID == 0 {
		fm["message"] = "Ungültige Variante"
		return flash.WithError(c, fm).Redirect("/")
	}
	quantity, err := strconv.Atoi(c.FormValue("quantity", "1"))
	if err != nil || quantity <= 0 {
		quantity = 1
	}

	var variant models.ProductVariant
	if err := database.GetDB().Where("id = ? AND active = ?", variantID, true).First(&variant).Error; err != nil {
		fm["message"] = "Artikel ist nicht mehr verfügbar"
		return flash.WithError(c, fm).Redirect("/")
	}

	cart, err := cartForSession(c, true)
	if err != nil {
		fm["message"] = "Warenkorb konnte nicht angelegt werden"
		return flash.WithError(c, fm).Redirect("/")
	}

	// One row per (cart, variant); re-adding increments the quantity.
	err = database.GetDB().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cart_id"}, {Name: "variant_id"}},
		DoUpdates: []clause.Assignment{{Column: clause.Column{Name: "quantity"}, Value: gorm.Expr("quantity + VALUES(quantity)")}},
	}).Create(&models.CartItem{
		CartID:    cart.ID,
		VariantID: variant.ID,
		Quantity:  quantity,
	}).Error
	if err != nil {
		fm["message"] = "Artikel konnte nicht hinzugefügt werden"
		return flash.WithError(c, fm).Redirect("/")
	}

	fm = fiber.Map{"type": "success", "message": variant.Name + " wurde in den Warenkorb gelegt"}
	return flash.WithSuccess(c, fm).Redirect("/cart")
}

// HandleCartUpdate sets the quantity of one line; zero removes it.
func HandleCartUpdate(c *fiber.Ctx) error {
	fm := fiber.Map{"type": "error"}

	cart, err := cartForSession(c, false)
	if err != nil || cart == nil {
		fm["message"] = "Kein Warenkorb vorhanden"
		return flash.WithError(c, fm).Redirect("/cart")
	}

	variantID, err := strconv.ParseUint(c.FormValue("variant_id"), 10, 64)
	if err != nil || variantID == 0 {
		fm["message"] = "Ungültige Variante"
		return flash.WithError(c, fm).Redirect("/cart")
	}
	quantity, err := strconv.Atoi(c.FormValue("quantity"))
	if err != nil || quantity < 0 {
		fm["message"] = "Ungültige Menge"
		return flash.WithError(c, fm).Redirect("/cart")
	}

	db := database.GetDB()
	if quantity == 0 {
		err = db.Where("cart_id = ? AND variant_id = ?", cart.ID, variantID).Delete(&models.CartItem{}).Error
	} else {
		err = db.Model(&models.CartItem{}).
			Where("cart_id = ? AND variant_id = ?", cart.ID, variantID).
			Update("quantity", quantity).Error
	}
	if err != nil {
		fm["message"] = "Warenkorb konnte nicht aktualisiert werden"
		return flash.WithError(c, fm).Redirect("/cart")
	}
	return c.Redirect("/cart", fiber.StatusSeeOther)
}

// HandleCartRemove deletes one line.
func HandleCartRemove(c *fiber.Ctx) error {
	cart, err := cartForSession(c, false)
	if err != nil || cart == nil {
		return c.Redirect("/cart", fiber.StatusSeeOther)
	}
	variantID, err := strconv.ParseUint(c.Params("variant_id"), 10, 64)
	if err != nil {
		return c.Redirect("/cart", fiber.StatusSeeOther)
	}
	_ = database.GetDB().Where("cart_id = ? AND variant_id = ?", cart.ID, variantID).Delete(&models.CartItem{}).Error
	return c.Redirect("/cart", fiber.StatusSeeOther)
}

// HandleCartClear empties the cart.
func HandleCartClear(c *fiber.Ctx) error {
	cart, err := cartForSession(c, false)
	if err == nil && cart != nil {
		_ = clearCart(cart)
	}
	return c.Redirect("/cart", fiber.StatusSeeOther)
}
