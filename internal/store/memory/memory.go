package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	categories    map[string]domain.Category
	products      map[string]domain.Product
	suppliers     map[string]domain.Supplier
	sales         map[string]domain.Sale
	returns       map[string]domain.Return
	purchases     map[string]domain.Purchase
	animals       map[string]domain.Animal
	consultations map[string]domain.Consultation
	numbers       map[string]struct{}
	settings      *domain.BusinessSettings
	auditLogs     []domain.AuditLog
}

func New() *Store {
	return &Store{
		users:         make(map[string]domain.User),
		categories:    make(map[string]domain.Category),
		products:      make(map[string]domain.Product),
		suppliers:     make(map[string]domain.Supplier),
		sales:         make(map[string]domain.Sale),
		returns:       make(map[string]domain.Return),
		purchases:     make(map[string]domain.Purchase),
		animals:       make(map[string]domain.Animal),
		consultations: make(map[string]domain.Consultation),
		numbers:       make(map[string]struct{}),
		auditLogs:     make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded returns a store with a small clinic catalog for local runs.
// Users are not seeded; the server bootstraps the first admin.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	categories := []domain.Category{
		{ID: "cat_alimentos", Name: "Alimentos", Description: "Concentrados y snacks"},
		{ID: "cat_medicamentos", Name: "Medicamentos", Description: "Antiparasitarios, antibióticos y vacunas"},
		{ID: "cat_accesorios", Name: "Accesorios", Description: "Collares, juguetes y camas"},
		{ID: "cat_higiene", Name: "Higiene", Description: "Shampoo, arena y cuidado"},
	}
	for _, c := range categories {
		c.Active = true
		c.CreatedAt = now
		s.categories[c.ID] = c
	}

	products := []domain.Product{
		{ID: "prd_dogchow", Barcode: "7702084000011", Name: "Dog Chow Adulto 2kg", SalePrice: money.FromCents(4500000), CostPrice: money.FromCents(3600000), Stock: 24, StockMin: 5, CategoryID: "cat_alimentos"},
		{ID: "prd_catchow", Barcode: "7702084000028", Name: "Cat Chow Gatitos 1kg", SalePrice: money.FromCents(2800000), CostPrice: money.FromCents(2150000), Stock: 18, StockMin: 4, CategoryID: "cat_alimentos"},
		{ID: "prd_nexgard", Barcode: "7501234500017", Name: "NexGard Perro 10-25kg", SalePrice: money.FromCents(6200000), CostPrice: money.FromCents(4800000), Stock: 12, StockMin: 3, CategoryID: "cat_medicamentos"},
		{ID: "prd_drontal", Barcode: "7501234500024", Name: "Drontal Plus Antiparasitario", SalePrice: money.FromCents(1850000), CostPrice: money.FromCents(1300000), Stock: 30, StockMin: 6, CategoryID: "cat_medicamentos"},
		{ID: "prd_vacuna", Barcode: "7501234500031", Name: "Vacuna Antirrábica", SalePrice: money.FromCents(3500000), CostPrice: money.FromCents(2000000), Stock: 15, StockMin: 5, CategoryID: "cat_medicamentos"},
		{ID: "prd_collar", Barcode: "7709876500012", Name: "Collar Antipulgas Gato", SalePrice: money.FromCents(2200000), CostPrice: money.FromCents(1400000), Stock: 3, StockMin: 4, CategoryID: "cat_accesorios"},
		{ID: "prd_pelota", Barcode: "7709876500029", Name: "Pelota de Caucho", SalePrice: money.FromCents(900000), CostPrice: money.FromCents(450000), Stock: 40, StockMin: 5, CategoryID: "cat_accesorios"},
		{ID: "prd_shampoo", Barcode: "7704455600013", Name: "Shampoo Hipoalergénico 250ml", SalePrice: money.FromCents(2600000), CostPrice: money.FromCents(1700000), Stock: 10, StockMin: 3, CategoryID: "cat_higiene"},
		{ID: "prd_arena", Barcode: "7704455600020", Name: "Arena Sanitaria 4kg", SalePrice: money.FromCents(2100000), CostPrice: money.FromCents(1500000), Stock: 0, StockMin: 4, CategoryID: "cat_higiene"},
	}
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	supplier := domain.Supplier{ID: "sup_distrivet", Name: "Distrivet S.A.S", Phone: "6015550101", Active: true, CreatedAt: now}
	s.suppliers[supplier.ID] = supplier
	return s
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return nil, fmt.Errorf("%w: username %s already exists", store.ErrConflict, user.Username)
		}
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	username = strings.ToLower(strings.TrimSpace(username))
	for _, user := range s.users {
		if user.Username == username {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	user.Username = existing.Username
	user.CreatedAt = existing.CreatedAt
	s.users[user.ID] = user
	updated := user
	return &updated, nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *Store) CountActiveAdmins(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, user := range s.users {
		if user.Active && user.Role == domain.RoleAdmin {
			count++
		}
	}
	return count, nil
}

func (s *Store) TouchLastAccess(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.LastAccess = &at
	s.users[userID] = user
	return nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if s.categoryNameTakenLocked(category.Name, "") {
		return nil, fmt.Errorf("%w: category %s already exists", store.ErrConflict, category.Name)
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	category.Active = true
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &category, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.categories[category.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.categoryNameTakenLocked(category.Name, category.ID) {
		return nil, fmt.Errorf("%w: category %s already exists", store.ErrConflict, category.Name)
	}
	category.CreatedAt = existing.CreatedAt
	s.categories[category.ID] = category
	updated := category
	return &updated, nil
}

func (s *Store) categoryNameTakenLocked(name string, exceptID string) bool {
	folded := store.Fold(name)
	for id, c := range s.categories {
		if id != exceptID && store.Fold(c.Name) == folded {
			return true
		}
	}
	return false
}

func (s *Store) ListCategories(_ context.Context, activeOnly bool) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if activeOnly && !c.Active {
			continue
		}
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CountActiveProductsInCategory(_ context.Context, categoryID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.products {
		if p.Active && p.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Barcode == "" || product.Name == "" || product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if s.barcodeTakenLocked(product.Barcode, "") {
		return nil, fmt.Errorf("%w: barcode %s already exists", store.ErrConflict, product.Barcode)
	}
	if product.CategoryID != "" {
		if _, ok := s.categories[product.CategoryID]; !ok {
			return nil, fmt.Errorf("%w: category %s", store.ErrNotFound, product.CategoryID)
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true
	s.products[product.ID] = product
	return s.productViewLocked(product), nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.productViewLocked(product), nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	barcode = strings.TrimSpace(barcode)
	for _, p := range s.products {
		if p.Active && p.Barcode == barcode {
			return s.productViewLocked(p), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = *s.productViewLocked(p)
		}
	}
	return result, nil
}

// UpdateProduct keeps the stored stock; only ledger operations move it.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.barcodeTakenLocked(product.Barcode, product.ID) {
		return nil, fmt.Errorf("%w: barcode %s already exists", store.ErrConflict, product.Barcode)
	}
	if product.CategoryID != "" {
		if _, ok := s.categories[product.CategoryID]; !ok {
			return nil, fmt.Errorf("%w: category %s", store.ErrNotFound, product.CategoryID)
		}
	}
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return s.productViewLocked(product), nil
}

func (s *Store) barcodeTakenLocked(barcode string, exceptID string) bool {
	for id, p := range s.products {
		if id != exceptID && p.Barcode == barcode {
			return true
		}
	}
	return false
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !filter.IncludeInactive && !p.Active {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		products = append(products, *s.productViewLocked(p))
	}
	sortProductsByName(products)
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, search domain.ProductSearch) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := make([]string, 0, len(search.Terms))
	for _, term := range search.Terms {
		if folded := store.Fold(term); folded != "" {
			terms = append(terms, folded)
		}
	}

	products := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if search.InStockOnly && p.Stock <= 0 {
			continue
		}
		if search.CategoryID != "" && p.CategoryID != search.CategoryID {
			continue
		}
		if len(terms) > 0 && !matchesAny(terms, p.Name, p.Description, p.Barcode) {
			continue
		}
		products = append(products, *s.productViewLocked(p))
	}
	sortProductsByName(products)
	if search.Limit > 0 && len(products) > search.Limit {
		products = products[:search.Limit]
	}
	return products, nil
}

func (s *Store) ListLowStock(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if p.LowStock() {
			products = append(products, *s.productViewLocked(p))
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) productViewLocked(p domain.Product) *domain.Product {
	if c, ok := s.categories[p.CategoryID]; ok {
		p.CategoryName = c.Name
	}
	return &p
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if s.supplierNameTakenLocked(supplier.Name, "") {
		return nil, fmt.Errorf("%w: supplier %s already exists", store.ErrConflict, supplier.Name)
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	supplier.Active = true
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	supplier.PurchaseCount = s.purchaseCountLocked(id)
	return &supplier, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.suppliers[supplier.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if supplier.Active && s.supplierNameTakenLocked(supplier.Name, supplier.ID) {
		return nil, fmt.Errorf("%w: supplier %s already exists", store.ErrConflict, supplier.Name)
	}
	supplier.CreatedAt = existing.CreatedAt
	s.suppliers[supplier.ID] = supplier
	updated := supplier
	updated.PurchaseCount = s.purchaseCountLocked(supplier.ID)
	return &updated, nil
}

func (s *Store) supplierNameTakenLocked(name string, exceptID string) bool {
	folded := store.Fold(name)
	for id, sup := range s.suppliers {
		if id != exceptID && sup.Active && store.Fold(sup.Name) == folded {
			return true
		}
	}
	return false
}

func (s *Store) purchaseCountLocked(supplierID string) int {
	count := 0
	for _, p := range s.purchases {
		if p.SupplierID == supplierID {
			count++
		}
	}
	return count
}

func (s *Store) ListSuppliers(_ context.Context, activeOnly bool) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, supplier := range s.suppliers {
		if activeOnly && !supplier.Active {
			continue
		}
		supplier.PurchaseCount = s.purchaseCountLocked(supplier.ID)
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.BusinessSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, store.ErrNotFound
	}
	settings := *s.settings
	return &settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.BusinessSettings) (*domain.BusinessSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now().UTC()
	s.settings = &settings
	saved := settings
	return &saved, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// inRange treats zero bounds as open; to is exclusive.
func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func matchesAny(terms []string, fields ...string) bool {
	folded := make([]string, len(fields))
	for i, f := range fields {
		folded[i] = store.Fold(f)
	}
	for _, term := range terms {
		for _, f := range folded {
			if strings.Contains(f, term) {
				return true
			}
		}
	}
	return false
}

func sortProductsByName(products []domain.Product) {
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
