package checkout

import (
	"sync"
	"time"

	"github.com/DanielKrause/ShopWerk/app/models"
)

// fakeRepository is an in-memory Repository mirroring the transactional
// semantics of the GORM implementation, including the one-active-draft upsert
// and the order idempotency key.
type fakeRepository struct {
	mu        sync.Mutex
	nextID    uint
	customers map[uint]*models.Customer
	addresses map[string]*models.Address
	drafts    map[uint]*models.CheckoutDraft
	confirmed map[string]time.Time
	variants  map[uint]models.ProductVariant
	orders    map[uint]*models.Order
	items     map[uint][]models.OrderItem
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		nextID:    1,
		customers: make(map[uint]*models.Customer),
		addresses: make(map[string]*models.Address),
		drafts:    make(map[uint]*models.CheckoutDraft),
		confirmed: make(map[string]time.Time),
		variants:  make(map[uint]models.ProductVariant),
		orders:    make(map[uint]*models.Order),
		items:     make(map[uint][]models.OrderItem),
	}
}

func (f *fakeRepository) allocID() uint {
	id := f.nextID
	f.nextID++
	return id
}

func (f *fakeRepository) addVariant(v models.ProductVariant) models.ProductVariant {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.ID == 0 {
		v.ID = f.allocID()
	}
	f.variants[v.ID] = v
	return v
}

func (f *fakeRepository) GetOrCreateCustomer(email string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	normalized := models.NormalizeEmail(email)
	for _, c := range f.customers {
		if c.Email == normalized {
			return c, nil
		}
	}
	c := &models.Customer{ID: f.allocID(), Email: normalized}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeRepository) SaveCustomer(customer *models.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[customer.ID] = customer
	return nil
}

func (f *fakeRepository) GetOrCreateAddress(address *models.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	address.Normalize()
	if existing, ok := f.addresses[address.Fingerprint]; ok {
		*address = *existing
		return nil
	}
	address.ID = f.allocID()
	f.addresses[address.Fingerprint] = address
	return nil
}

func (f *fakeRepository) UpsertActiveDraft(draft *models.CheckoutDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft.Active = models.DraftActive()
	for _, d := range f.drafts {
		if d.CustomerID == draft.CustomerID && d.Active != nil {
			if d.Email != draft.Email {
				d.EmailConfirmedAt = nil
			}
			d.Email = draft.Email
			d.AddressID = draft.AddressID
			d.Note = draft.Note
			d.CartJSON = draft.CartJSON
			d.ExpiresAt = draft.ExpiresAt
			*draft = *d
			return nil
		}
	}
	draft.ID = f.allocID()
	f.drafts[draft.ID] = draft
	return nil
}

func (f *fakeRepository) LatestDraftForCustomer(customerID uint) (*models.CheckoutDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.CheckoutDraft
	for _, d := range f.drafts {
		if d.CustomerID == customerID && (latest == nil || d.ID > latest.ID) {
			latest = d
		}
	}
	return latest, nil
}

func (f *fakeRepository) DraftByID(id uint) (*models.CheckoutDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drafts[id], nil
}

func (f *fakeRepository) StampDraftEmailConfirmed(draftID uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.drafts[draftID]; ok && d.EmailConfirmedAt == nil {
		d.EmailConfirmedAt = &at
	}
	return nil
}

func (f *fakeRepository) MarkEmailConfirmed(email string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	normalized := models.NormalizeEmail(email)
	if _, ok := f.confirmed[normalized]; !ok {
		f.confirmed[normalized] = at
	}
	return nil
}

func (f *fakeRepository) IsEmailConfirmed(email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.confirmed[models.NormalizeEmail(email)]
	return ok, nil
}

func (f *fakeRepository) VariantsByIDs(ids []uint) (map[uint]models.ProductVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[uint]models.ProductVariant, len(ids))
	for _, id := range ids {
		if v, ok := f.variants[id]; ok && v.Active {
			result[id] = v
		}
	}
	return result, nil
}

func (f *fakeRepository) CreateOrderFromDraft(draftID uint, fn BuildOrderFunc) (*models.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	draft, ok := f.drafts[draftID]
	if !ok {
		return nil, false, ErrDraftNotFound
	}
	if draft.OrderID != nil {
		return f.orders[*draft.OrderID], false, nil
	}

	order, items, err := fn(draft)
	if err != nil {
		return nil, false, err
	}
	order.ID = f.allocID()
	for i := range items {
		items[i].OrderID = order.ID
	}
	order.Items = items
	f.orders[order.ID] = order
	f.items[order.ID] = items
	draft.OrderID = &order.ID
	return order, true, nil
}

func (f *fakeRepository) OrderByID(id uint) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id], nil
}

func (f *fakeRepository) OrderItems(orderID uint) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[orderID], nil
}
