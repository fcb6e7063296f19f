package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/database"
	"github.com/DanielKrause/ShopWerk/internal/pkg/metrics/counter"
	"github.com/DanielKrause/ShopWerk/internal/pkg/statistics"
)

// HandleStart renders the product listing.
func HandleStart(c *fiber.Ctx) error {
	var products []models.Product
	err := database.GetDB().
		Preload("Variants", "active = ?", true).
		Where("active = ?", true).
		Order("name").
		Find(&products).Error
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Produkte konnten nicht geladen werden")
	}

	return c.Render("shop/index", fiber.Map{
		"Title":      "Shop",
		"IsLoggedIn": isLoggedIn(c),
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
		"Products":   products,
		"Stats":      statistics.GetStatistics(),
	}, "layouts/main")
}

// HandleProduct renders one product page and counts the view.
func HandleProduct(c *fiber.Ctx) error {
	slug := c.Params("slug")

	var product models.Product
	err := database.GetDB().
		Preload("Variants", "active = ?", true).
		Where("slug = ? AND active = ?", slug, true).
		First(&product).Error
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Produkt nicht gefunden")
	}

	if err := counter.AddProductView(product.ID); err != nil {
		log.Printf("Error counting product view: %v", err)
	}

	return c.Render("shop/product", fiber.Map{
		"Title":      product.Name,
		"IsLoggedIn": isLoggedIn(c),
		"Flash":      flash.Get(c),
		"Csrf":       csrfToken(c),
		"Product":    product,
	}, "layouts/main")
}
