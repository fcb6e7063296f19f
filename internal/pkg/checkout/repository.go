package checkout

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DanielKrause/ShopWerk/app/models"
)

// BuildOrderFunc assembles the order and its items from the locked draft.
// It runs inside the materializing transaction; returning an error aborts
// without persisting anything.
type BuildOrderFunc func(draft *models.CheckoutDraft) (*models.Order, []models.OrderItem, error)

// Repository provides DB operations used by the checkout service.
type Repository interface {
	GetOrCreateCustomer(email string) (*models.Customer, error)
	SaveCustomer(customer *models.Customer) error
	GetOrCreateAddress(address *models.Address) error

	UpsertActiveDraft(draft *models.CheckoutDraft) error
	LatestDraftForCustomer(customerID uint) (*models.CheckoutDraft, error)
	DraftByID(id uint) (*models.CheckoutDraft, error)
	StampDraftEmailConfirmed(draftID uint, at time.Time) error

	MarkEmailConfirmed(email string, at time.Time) error
	IsEmailConfirmed(email string) (bool, error)

	VariantsByIDs(ids []uint) (map[uint]models.ProductVariant, error)

	// CreateOrderFromDraft locks the draft row, returns the already-linked
	// order when the idempotency key is set, and otherwise persists the
	// order built by fn plus its items and the draft link in one
	// transaction. The bool reports whether a new order was created.
	CreateOrderFromDraft(draftID uint, fn BuildOrderFunc) (*models.Order, bool, error)

	OrderByID(id uint) (*models.Order, error)
	OrderItems(orderID uint) ([]models.OrderItem, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a checkout repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetOrCreateCustomer(email string) (*models.Customer, error) {
	customer := &models.Customer{Email: models.NormalizeEmail(email)}
	err := r.db.Where("email = ?", customer.Email).FirstOrCreate(customer).Error
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (r *gormRepository) SaveCustomer(customer *models.Customer) error {
	return r.db.Save(customer).Error
}

func (r *gormRepository) GetOrCreateAddress(address *models.Address) error {
	address.Normalize()
	return r.db.Where("fingerprint = ?", address.Fingerprint).FirstOrCreate(address).Error
}

// draftUpdateAssignments are the columns a refresh overwrites in place. The
// confirmation stamp survives only while the contact email is unchanged.
func draftUpdateAssignments() []clause.Assignment {
	return []clause.Assignment{
		{Column: clause.Column{Name: "email_confirmed_at"}, Value: gorm.Expr("IF(email = VALUES(email), email_confirmed_at, NULL)")},
		{Column: clause.Column{Name: "email"}, Value: gorm.Expr("VALUES(email)")},
		{Column: clause.Column{Name: "address_id"}, Value: gorm.Expr("VALUES(address_id)")},
		{Column: clause.Column{Name: "note"}, Value: gorm.Expr("VALUES(note)")},
		{Column: clause.Column{Name: "cart_json"}, Value: gorm.Expr("VALUES(cart_json)")},
		{Column: clause.Column{Name: "expires_at"}, Value: gorm.Expr("VALUES(expires_at)")},
		{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("VALUES(updated_at)")},
	}
}

func (r *gormRepository) UpsertActiveDraft(draft *models.CheckoutDraft) error {
	draft.Active = models.DraftActive()

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "customer_id"},
			{Name: "active"},
		},
		DoUpdates: draftUpdateAssignments(),
	}).Create(draft).Error
	if err != nil {
		// A concurrent submission can still race the insert. Retry once by
		// re-reading the winner under a row lock and applying the refresh.
		if retryErr := r.refreshDraftLocked(draft); retryErr != nil {
			return err
		}
		return nil
	}

	// Ensure ID and server-side fields are populated after upsert.
	return r.db.Where("customer_id = ? AND active = 1", draft.CustomerID).First(draft).Error
}

func (r *gormRepository) refreshDraftLocked(draft *models.CheckoutDraft) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var current models.CheckoutDraft
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("customer_id = ? AND active = 1", draft.CustomerID).
			First(&current).Error
		if err != nil {
			return err
		}

		if current.Email != draft.Email {
			current.EmailConfirmedAt = nil
		}
		current.Email = draft.Email
		current.AddressID = draft.AddressID
		current.Note = draft.Note
		current.CartJSON = draft.CartJSON
		current.ExpiresAt = draft.ExpiresAt
		if err := tx.Save(&current).Error; err != nil {
			return err
		}
		*draft = current
		return nil
	})
}

func (r *gormRepository) LatestDraftForCustomer(customerID uint) (*models.CheckoutDraft, error) {
	var draft models.CheckoutDraft
	err := r.db.Where("customer_id = ?", customerID).
		Order("created_at DESC").
		First(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *gormRepository) DraftByID(id uint) (*models.CheckoutDraft, error) {
	var draft models.CheckoutDraft
	err := r.db.First(&draft, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *gormRepository) StampDraftEmailConfirmed(draftID uint, at time.Time) error {
	return r.db.Model(&models.CheckoutDraft{}).
		Where("id = ? AND email_confirmed_at IS NULL", draftID).
		Update("email_confirmed_at", at).Error
}

func (r *gormRepository) MarkEmailConfirmed(email string, at time.Time) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&models.ConfirmedEmail{
		Email:       models.NormalizeEmail(email),
		ConfirmedAt: at,
	}).Error
}

func (r *gormRepository) IsEmailConfirmed(email string) (bool, error) {
	var count int64
	err := r.db.Model(&models.ConfirmedEmail{}).
		Where("email = ?", models.NormalizeEmail(email)).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) VariantsByIDs(ids []uint) (map[uint]models.ProductVariant, error) {
	result := make(map[uint]models.ProductVariant, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var variants []models.ProductVariant
	if err := r.db.Where("id IN ? AND active = ?", ids, true).Find(&variants).Error; err != nil {
		return nil, err
	}
	for _, v := range variants {
		result[v.ID] = v
	}
	return result, nil
}

func (r *gormRepository) CreateOrderFromDraft(draftID uint, fn BuildOrderFunc) (*models.Order, bool, error) {
	var order *models.Order
	created := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var draft models.CheckoutDraft
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&draft, draftID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDraftNotFound
		}
		if err != nil {
			return err
		}

		// Idempotency key: a draft that already materialized an order routes
		// to it instead of creating a duplicate.
		if draft.OrderID != nil {
			var existing models.Order
			if err := tx.First(&existing, *draft.OrderID).Error; err != nil {
				return err
			}
			order = &existing
			return nil
		}

		newOrder, items, err := fn(&draft)
		if err != nil {
			return err
		}

		if err := tx.Create(newOrder).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = newOrder.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.CheckoutDraft{}).
			Where("id = ?", draft.ID).
			Update("order_id", newOrder.ID).Error; err != nil {
			return err
		}

		newOrder.Items = items
		order = newOrder
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, created, nil
}

func (r *gormRepository) OrderByID(id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) OrderItems(orderID uint) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.Where("order_id = ?", orderID).Order("id").Find(&items).Error
	return items, err
}
