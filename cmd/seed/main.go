package main

import (
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/database"
	"github.com/DanielKrause/ShopWerk/internal/pkg/env"
)

// Befüllt den Katalog mit Beispieldaten für die lokale Entwicklung.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	db := database.GetDB()

	products := []struct {
		product  models.Product
		variants []models.ProductVariant
	}{
		{
			product: models.Product{Name: "Kaffeebohnen Hausröstung", Slug: "kaffeebohnen-hausroestung", Description: "Dunkle Röstung aus Arabica-Bohnen.", Active: true},
			variants: []models.ProductVariant{
				{SKU: "KAFFEE-250", Name: "250g Packung", PriceCents: 890, Currency: "eur", Active: true},
				{SKU: "KAFFEE-1000", Name: "1kg Packung", PriceCents: 2990, Currency: "eur", Active: true},
			},
		},
		{
			product: models.Product{Name: "Emaille-Tasse", Slug: "emaille-tasse", Description: "Robuste Tasse mit Logo, 300ml.", Active: true},
			variants: []models.ProductVariant{
				{SKU: "TASSE-BLAU", Name: "Blau", PriceCents: 1490, Currency: "eur", Active: true},
				{SKU: "TASSE-GRUEN", Name: "Grün", PriceCents: 1490, Currency: "eur", Active: true},
			},
		},
		{
			product: models.Product{Name: "Handfilter Set", Slug: "handfilter-set", Description: "Keramikfilter mit 40 Papierfiltern.", Active: true},
			variants: []models.ProductVariant{
				{SKU: "FILTER-SET", Name: "Standard", PriceCents: 2450, Currency: "eur", Active: true},
			},
		},
	}

	for _, entry := range products {
		p := entry.product
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "active"}),
		}).Create(&p).Error
		if err != nil {
			log.Fatalf("Fehler beim Anlegen von Produkt %s: %v", p.Slug, err)
		}
		if p.ID == 0 {
			if err := db.Where("slug = ?", p.Slug).First(&p).Error; err != nil {
				log.Fatalf("Produkt %s nicht gefunden: %v", p.Slug, err)
			}
		}
		for _, v := range entry.variants {
			v.ProductID = p.ID
			err := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "sku"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "price_cents", "currency", "active"}),
			}).Create(&v).Error
			if err != nil {
				log.Fatalf("Fehler beim Anlegen von Variante %s: %v", v.SKU, err)
			}
		}
		log.Printf("Produkt %s mit %d Varianten angelegt", p.Name, len(entry.variants))
	}

	seedAdmin(db)
	log.Println("Seed abgeschlossen")
}

func seedAdmin(db *gorm.DB) {
	email := env.GetEnv("ADMIN_EMAIL", "admin@example.com")

	var existing models.User
	if err := db.Where("email = ?", models.NormalizeEmail(email)).First(&existing).Error; err == nil {
		return
	}

	user, err := models.CreateUser("Administrator", email, env.GetEnv("ADMIN_PASSWORD", "changeme123"))
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des Admin-Kontos: %v", err)
	}
	user.Role = models.ROLE_ADMIN
	user.Status = models.STATUS_ACTIVE
	if err := db.Create(user).Error; err != nil {
		log.Fatalf("Fehler beim Speichern des Admin-Kontos: %v", err)
	}
	log.Printf("Admin-Konto %s angelegt", email)
}
