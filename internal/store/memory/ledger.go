package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

func (s *Store) CreateSale(_ context.Context, in store.NewSale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, err := s.applySaleLocked(in)
	if err != nil {
		return nil, err
	}
	return s.saleViewLocked(sale), nil
}

// applySaleLocked validates every line before touching stock, so a failing
// line leaves the ledger untouched.
func (s *Store) applySaleLocked(in store.NewSale) (domain.Sale, error) {
	if len(in.Lines) == 0 || in.Number == "" {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	if _, taken := s.numbers[in.Number]; taken {
		return domain.Sale{}, store.ErrDuplicateNumber
	}

	needed := make(map[string]int, len(in.Lines))
	for _, line := range in.Lines {
		if line.Quantity < 1 {
			return domain.Sale{}, store.ErrInvalidTransaction
		}
		product, ok := s.products[line.ProductID]
		if !ok || !product.Active {
			return domain.Sale{}, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		needed[line.ProductID] += line.Quantity
		if product.Stock < needed[line.ProductID] {
			return domain.Sale{}, fmt.Errorf("%w: %s (available %d)", store.ErrInsufficientStock, product.Name, product.Stock)
		}
	}

	if in.ID == "" {
		in.ID = xid.New("sale")
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	sale := domain.Sale{
		ID:            in.ID,
		Number:        in.Number,
		PaymentMethod: in.PaymentMethod,
		Notes:         in.Notes,
		UserID:        in.UserID,
		CreatedAt:     in.CreatedAt,
		Items:         make([]domain.SaleItem, 0, len(in.Lines)),
	}
	for _, line := range in.Lines {
		product := s.products[line.ProductID]
		price := product.SalePrice
		if line.PriceOverride != nil {
			price = *line.PriceOverride
		}
		item := domain.SaleItem{
			ID:          xid.New("si"),
			SaleID:      sale.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   price,
			UnitCost:    product.CostPrice,
			Subtotal:    price.Mul(line.Quantity),
		}
		sale.Total += item.Subtotal
		sale.Items = append(sale.Items, item)

		product.Stock -= line.Quantity
		product.UpdatedAt = sale.CreatedAt
		s.products[product.ID] = product
	}

	s.numbers[sale.Number] = struct{}{}
	s.sales[sale.ID] = cloneSale(sale)
	return sale, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.saleViewLocked(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.salesBetweenLocked(filter.From, filter.To, filter.UserID)
	slices.SortFunc(matched, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PerPage
	if filter.Page < 1 || filter.PerPage < 1 {
		start = 0
	}
	if start >= total {
		return []domain.Sale{}, total, nil
	}
	end := total
	if filter.PerPage > 0 && start+filter.PerPage < total {
		end = start + filter.PerPage
	}
	return matched[start:end], total, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time, userID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.salesBetweenLocked(from, to, userID)
	slices.SortFunc(matched, func(a, b domain.Sale) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return matched, nil
}

func (s *Store) salesBetweenLocked(from time.Time, to time.Time, userID string) []domain.Sale {
	matched := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if userID != "" && sale.UserID != userID {
			continue
		}
		if !inRange(sale.CreatedAt, from, to) {
			continue
		}
		matched = append(matched, *s.saleViewLocked(sale))
	}
	return matched
}

func (s *Store) saleViewLocked(sale domain.Sale) *domain.Sale {
	view := cloneSale(sale)
	if user, ok := s.users[sale.UserID]; ok {
		view.Username = user.Username
	}
	return &view
}

func (s *Store) CreateReturn(_ context.Context, in store.NewReturn) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(in.Lines) == 0 || in.Number == "" {
		return nil, store.ErrInvalidTransaction
	}
	sale, ok := s.sales[in.SaleID]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, in.SaleID)
	}
	if _, taken := s.numbers[in.Number]; taken {
		return nil, store.ErrDuplicateNumber
	}

	itemsByID := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		itemsByID[item.ID] = item
	}
	returned := s.returnedQtyLocked(sale.ID)
	requested := make(map[string]int, len(in.Lines))
	for _, line := range in.Lines {
		item, ok := itemsByID[line.SaleItemID]
		if !ok || line.Quantity < 1 {
			return nil, fmt.Errorf("%w: sale line %s", store.ErrInvalidTransaction, line.SaleItemID)
		}
		requested[item.ID] += line.Quantity
		available := item.Quantity - returned[item.ID]
		if requested[item.ID] > available {
			return nil, fmt.Errorf("%w: %s (returnable %d)", store.ErrOverReturn, item.ProductName, available)
		}
	}

	if in.ID == "" {
		in.ID = xid.New("ret")
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	ret := domain.Return{
		ID:            in.ID,
		Number:        in.Number,
		SaleID:        sale.ID,
		Reason:        in.Reason,
		UserID:        in.UserID,
		CreatedAt:     in.CreatedAt,
		PaymentMethod: sale.PaymentMethod,
		Items:         make([]domain.ReturnItem, 0, len(in.Lines)),
	}
	for _, line := range in.Lines {
		item := itemsByID[line.SaleItemID]
		ri := domain.ReturnItem{
			ID:          xid.New("ri"),
			ReturnID:    ret.ID,
			SaleItemID:  item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   item.UnitPrice,
			UnitCost:    item.UnitCost,
			Subtotal:    item.UnitPrice.Mul(line.Quantity),
		}
		ret.Total += ri.Subtotal
		ret.Items = append(ret.Items, ri)

		if product, ok := s.products[item.ProductID]; ok {
			product.Stock += line.Quantity
			product.UpdatedAt = ret.CreatedAt
			s.products[product.ID] = product
		}
	}

	s.numbers[ret.Number] = struct{}{}
	s.returns[ret.ID] = cloneReturn(ret)
	return s.returnViewLocked(ret), nil
}

func (s *Store) returnedQtyLocked(saleID string) map[string]int {
	result := make(map[string]int)
	for _, ret := range s.returns {
		if ret.SaleID != saleID {
			continue
		}
		for _, item := range ret.Items {
			result[item.SaleItemID] += item.Quantity
		}
	}
	return result
}

func (s *Store) ListReturnsBySale(_ context.Context, saleID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, 4)
	for _, ret := range s.returns {
		if ret.SaleID == saleID {
			result = append(result, *s.returnViewLocked(ret))
		}
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) ListReturnsBetween(_ context.Context, from time.Time, to time.Time, userID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, 16)
	for _, ret := range s.returns {
		if userID != "" && ret.UserID != userID {
			continue
		}
		if !inRange(ret.CreatedAt, from, to) {
			continue
		}
		result = append(result, *s.returnViewLocked(ret))
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) GetReturnedQtyBySale(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.returnedQtyLocked(saleID), nil
}

func (s *Store) ReturnTotalsBySale(_ context.Context, saleIDs []string) (map[string]money.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(saleIDs))
	for _, id := range saleIDs {
		wanted[id] = struct{}{}
	}
	result := make(map[string]money.Amount, len(saleIDs))
	for _, ret := range s.returns {
		if _, ok := wanted[ret.SaleID]; ok {
			result[ret.SaleID] += ret.Total
		}
	}
	return result, nil
}

func (s *Store) returnViewLocked(ret domain.Return) *domain.Return {
	view := cloneReturn(ret)
	if user, ok := s.users[ret.UserID]; ok {
		view.Username = user.Username
	}
	return &view
}

func (s *Store) CreatePurchase(_ context.Context, in store.NewPurchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(in.Lines) == 0 || in.Number == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, taken := s.numbers[in.Number]; taken {
		return nil, store.ErrDuplicateNumber
	}
	supplierName := ""
	if in.SupplierID != "" {
		supplier, ok := s.suppliers[in.SupplierID]
		if !ok || !supplier.Active {
			return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, in.SupplierID)
		}
		supplierName = supplier.Name
	}

	total := money.Amount(0)
	for _, line := range in.Lines {
		if line.Quantity < 1 || line.UnitCost.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
		product, ok := s.products[line.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		total += line.UnitCost.Mul(line.Quantity)
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: purchase total must be positive", store.ErrInvalidTransaction)
	}

	if in.ID == "" {
		in.ID = xid.New("pur")
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Now().UTC()
	}
	purchase := domain.Purchase{
		ID:           in.ID,
		Number:       in.Number,
		SupplierID:   in.SupplierID,
		SupplierName: supplierName,
		Total:        total,
		Notes:        in.Notes,
		UserID:       in.UserID,
		ReceivedAt:   in.ReceivedAt,
		Items:        make([]domain.PurchaseItem, 0, len(in.Lines)),
	}
	for _, line := range in.Lines {
		product := s.products[line.ProductID]
		purchase.Items = append(purchase.Items, domain.PurchaseItem{
			ID:          xid.New("pi"),
			PurchaseID:  purchase.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Barcode:     product.Barcode,
			Quantity:    line.Quantity,
			UnitCost:    line.UnitCost,
			Subtotal:    line.UnitCost.Mul(line.Quantity),
		})
		product.Stock += line.Quantity
		product.UpdatedAt = purchase.ReceivedAt
		s.products[product.ID] = product
	}

	s.numbers[purchase.Number] = struct{}{}
	s.purchases[purchase.ID] = clonePurchase(purchase)
	return &purchase, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.purchases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	view := clonePurchase(purchase)
	return &view, nil
}

func (s *Store) ListPurchases(_ context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, len(s.purchases))
	for _, purchase := range s.purchases {
		if filter.SupplierID != "" && purchase.SupplierID != filter.SupplierID {
			continue
		}
		if !inRange(purchase.ReceivedAt, filter.From, filter.To) {
			continue
		}
		view := clonePurchase(purchase)
		if !filter.WithItems {
			view.Items = nil
		}
		result = append(result, view)
	}
	slices.SortFunc(result, func(a, b domain.Purchase) int {
		return b.ReceivedAt.Compare(a.ReceivedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CreateAnimal(_ context.Context, animal domain.Animal) (*domain.Animal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if animal.Name == "" || animal.Species == "" || animal.OwnerName == "" {
		return nil, store.ErrInvalidTransaction
	}
	if animal.ID == "" {
		animal.ID = xid.New("ani")
	}
	if animal.CreatedAt.IsZero() {
		animal.CreatedAt = time.Now().UTC()
	}
	animal.Active = true
	s.animals[animal.ID] = animal
	created := animal
	return &created, nil
}

func (s *Store) GetAnimal(_ context.Context, id string) (*domain.Animal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	animal, ok := s.animals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &animal, nil
}

func (s *Store) UpdateAnimal(_ context.Context, animal domain.Animal) (*domain.Animal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.animals[animal.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	animal.CreatedAt = existing.CreatedAt
	s.animals[animal.ID] = animal
	updated := animal
	return &updated, nil
}

func (s *Store) ListAnimals(_ context.Context, filter domain.AnimalFilter) ([]domain.Animal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := store.Fold(filter.Query)
	species := store.Fold(filter.Species)
	result := make([]domain.Animal, 0, 16)
	for _, animal := range s.animals {
		if !filter.IncludeInactive && !animal.Active {
			continue
		}
		if species != "" && store.Fold(animal.Species) != species {
			continue
		}
		if query != "" && !matchesAny([]string{query}, animal.Name, animal.OwnerName) {
			continue
		}
		result = append(result, animal)
	}
	slices.SortFunc(result, func(a, b domain.Animal) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListSpecies(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	species := make([]string, 0, 8)
	for _, animal := range s.animals {
		if !animal.Active {
			continue
		}
		if _, ok := seen[animal.Species]; ok {
			continue
		}
		seen[animal.Species] = struct{}{}
		species = append(species, animal.Species)
	}
	slices.Sort(species)
	return species, nil
}

func (s *Store) CreateConsultation(_ context.Context, in store.NewConsultation) (*domain.Consultation, *domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	consultation := in.Consultation
	animal, ok := s.animals[consultation.AnimalID]
	if !ok || !animal.Active {
		return nil, nil, fmt.Errorf("%w: animal %s", store.ErrNotFound, consultation.AnimalID)
	}
	if strings.TrimSpace(consultation.Reason) == "" {
		return nil, nil, store.ErrInvalidTransaction
	}
	if consultation.ID == "" {
		consultation.ID = xid.New("con")
	}
	now := time.Now().UTC()
	if consultation.CreatedAt.IsZero() {
		consultation.CreatedAt = now
	}
	if consultation.ConsultedAt.IsZero() {
		consultation.ConsultedAt = consultation.CreatedAt
	}
	items := make([]domain.ConsultationItem, 0, len(consultation.Items))
	for _, item := range consultation.Items {
		product, ok := s.products[item.ProductID]
		if !ok || !product.Active {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if item.Quantity < 1 {
			return nil, nil, store.ErrInvalidTransaction
		}
		item.ID = xid.New("ci")
		item.ConsultationID = consultation.ID
		item.ProductName = product.Name
		items = append(items, item)
	}
	consultation.Items = items

	var created *domain.Sale
	if in.Sale != nil {
		sale, err := s.applySaleLocked(*in.Sale)
		if err != nil {
			return nil, nil, err
		}
		consultation.SaleID = sale.ID
		created = s.saleViewLocked(sale)
	}

	s.consultations[consultation.ID] = cloneConsultation(consultation)
	return s.consultationViewLocked(consultation), created, nil
}

func (s *Store) GetConsultation(_ context.Context, id string) (*domain.Consultation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	consultation, ok := s.consultations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.consultationViewLocked(consultation), nil
}

func (s *Store) GetConsultationBySale(_ context.Context, saleID string) (*domain.Consultation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, consultation := range s.consultations {
		if saleID != "" && consultation.SaleID == saleID {
			return s.consultationViewLocked(consultation), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListConsultationsByAnimal(_ context.Context, animalID string) ([]domain.Consultation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Consultation, 0, 8)
	for _, consultation := range s.consultations {
		if consultation.AnimalID == animalID {
			result = append(result, *s.consultationViewLocked(consultation))
		}
	}
	sortConsultationsNewestFirst(result)
	return result, nil
}

func (s *Store) BillConsultation(_ context.Context, consultationID string, in store.NewSale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	consultation, ok := s.consultations[consultationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if consultation.SaleID != "" {
		return nil, fmt.Errorf("%w: consultation already billed", store.ErrConflict)
	}
	sale, err := s.applySaleLocked(in)
	if err != nil {
		return nil, err
	}
	consultation.SaleID = sale.ID
	s.consultations[consultation.ID] = consultation
	return s.saleViewLocked(sale), nil
}

func (s *Store) ListPendingConsultations(_ context.Context, query string, limit int) ([]domain.Consultation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folded := store.Fold(query)
	result := make([]domain.Consultation, 0, 8)
	for _, consultation := range s.consultations {
		if consultation.SaleID != "" || len(consultation.Items) == 0 {
			continue
		}
		view := s.consultationViewLocked(consultation)
		if folded != "" && consultation.ID != query && !matchesAny([]string{folded}, view.AnimalName, view.OwnerName) {
			continue
		}
		result = append(result, *view)
	}
	sortConsultationsNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) consultationViewLocked(consultation domain.Consultation) *domain.Consultation {
	view := cloneConsultation(consultation)
	if animal, ok := s.animals[consultation.AnimalID]; ok {
		view.AnimalName = animal.Name
		view.OwnerName = animal.OwnerName
	}
	return &view
}

func sortConsultationsNewestFirst(list []domain.Consultation) {
	slices.SortFunc(list, func(a, b domain.Consultation) int {
		if c := b.ConsultedAt.Compare(a.ConsultedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func cloneReturn(src domain.Return) domain.Return {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func clonePurchase(src domain.Purchase) domain.Purchase {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func cloneConsultation(src domain.Consultation) domain.Consultation {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}
