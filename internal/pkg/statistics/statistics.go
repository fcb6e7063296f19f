package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/DanielKrause/ShopWerk/app/models"
	"github.com/DanielKrause/ShopWerk/internal/pkg/cache"
	"github.com/DanielKrause/ShopWerk/internal/pkg/database"
)

const (
	CacheKeyOrdersTotal  = "statistics:orders:total"
	CacheKeyOrdersDaily  = "statistics:orders:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyCustomers    = "statistics:customers:total"
	CacheKeyRevenueCents = "statistics:revenue:cents"
	CacheExpiration      = 30 * time.Minute
)

// StatisticsData enthaelt die Statistikdaten fuer die Startseite
type StatisticsData struct {
	TodayOrders    int
	TotalOrders    int
	TotalCustomers int
	RevenueCents   int64
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache prueft, ob der Cache aktualisiert werden sollte
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded aktualisiert den Cache, wenn noetig
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		log.Println("Aktualisiere Statistik-Cache...")
		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Fehler beim Aktualisieren des Statistik-Caches: %v", err)
		} else {
			log.Println("Statistik-Cache erfolgreich aktualisiert")
			lastCacheUpdate = time.Now()
		}
	}
}

// UpdateStatisticsCache zaehlt Bestellungen, Kunden und Umsatz und legt die
// Werte in Redis ab
func UpdateStatisticsCache() error {
	db := database.GetDB()
	rdb := cache.GetClient()
	ctx := cache.GetContext()

	var totalOrders int64
	if err := db.Model(&models.Order{}).Count(&totalOrders).Error; err != nil {
		log.Printf("Error counting total orders: %v", err)
		return err
	}

	today := time.Now().Format("2006-01-02")
	var todayOrders int64
	if err := db.Model(&models.Order{}).
		Where("DATE(created_at) = ?", today).
		Count(&todayOrders).Error; err != nil {
		log.Printf("Error counting today's orders: %v", err)
		return err
	}

	var totalCustomers int64
	if err := db.Model(&models.Customer{}).Count(&totalCustomers).Error; err != nil {
		log.Printf("Error counting total customers: %v", err)
		return err
	}

	// Umsatz = Summe bezahlter Bestellungen
	var revenueCents int64
	if err := db.Model(&models.Order{}).
		Where("payment_status = ?", models.PaymentStatusPaid).
		Select("COALESCE(SUM(total_cents), 0)").
		Scan(&revenueCents).Error; err != nil {
		log.Printf("Error summing revenue: %v", err)
		return err
	}

	if err := rdb.Set(ctx, CacheKeyOrdersTotal, totalOrders, CacheExpiration).Err(); err != nil {
		log.Printf("Error caching total orders: %v", err)
		return err
	}
	if err := rdb.Set(ctx, fmt.Sprintf(CacheKeyOrdersDaily, today), todayOrders, CacheExpiration).Err(); err != nil {
		log.Printf("Error caching today's orders: %v", err)
		return err
	}
	if err := rdb.Set(ctx, CacheKeyCustomers, totalCustomers, CacheExpiration).Err(); err != nil {
		log.Printf("Error caching total customers: %v", err)
		return err
	}
	if err := rdb.Set(ctx, CacheKeyRevenueCents, revenueCents, CacheExpiration).Err(); err != nil {
		log.Printf("Error caching revenue: %v", err)
		return err
	}

	log.Printf("Statistics updated in cache: Total Orders: %d, Today's Orders: %d, Total Customers: %d",
		totalOrders, todayOrders, totalCustomers)
	return nil
}

// GetStatistics liest die Statistikdaten aus dem Cache, bei einem Miss wird
// der Cache aktualisiert
func GetStatistics() StatisticsData {
	rdb := cache.GetClient()
	ctx := cache.GetContext()
	data := StatisticsData{}

	total, err := rdb.Get(ctx, CacheKeyOrdersTotal).Result()
	if err != nil {
		UpdateCacheIfNeeded()
		total, _ = rdb.Get(ctx, CacheKeyOrdersTotal).Result()
	}
	if v, err := strconv.Atoi(total); err == nil {
		data.TotalOrders = v
	}

	today := time.Now().Format("2006-01-02")
	if v, err := rdb.Get(ctx, fmt.Sprintf(CacheKeyOrdersDaily, today)).Int(); err == nil {
		data.TodayOrders = v
	}
	if v, err := rdb.Get(ctx, CacheKeyCustomers).Int(); err == nil {
		data.TotalCustomers = v
	}
	if v, err := rdb.Get(ctx, CacheKeyRevenueCents).Int64(); err == nil {
		data.RevenueCents = v
	}

	return data
}
