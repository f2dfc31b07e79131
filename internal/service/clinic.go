package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

func normalizeAnimal(req domain.AnimalRequest) (domain.Animal, error) {
	animal := domain.Animal{
		Name:       strings.TrimSpace(req.Name),
		Species:    strings.TrimSpace(req.Species),
		Breed:      strings.TrimSpace(req.Breed),
		AgeYears:   req.AgeYears,
		AgeMonths:  req.AgeMonths,
		OwnerName:  strings.TrimSpace(req.OwnerName),
		OwnerPhone: strings.TrimSpace(req.OwnerPhone),
		Notes:      strings.TrimSpace(req.Notes),
	}
	if animal.Name == "" || animal.Species == "" || animal.OwnerName == "" {
		return domain.Animal{}, invalid("name, species and owner are required")
	}
	if animal.AgeYears < 0 || animal.AgeMonths < 0 || animal.AgeMonths > 11 {
		return domain.Animal{}, invalid("age must be non-negative with months between 0 and 11")
	}
	return animal, nil
}

func (s *Service) CreateAnimal(ctx context.Context, req domain.AnimalRequest) (domain.Animal, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Animal{}, err
	}
	animal, err := normalizeAnimal(req)
	if err != nil {
		return domain.Animal{}, err
	}
	animal.ID = xid.New("ani")
	animal.Active = true
	animal.CreatedAt = s.now().UTC()

	created, err := s.repo.CreateAnimal(ctx, animal)
	if err != nil {
		return domain.Animal{}, err
	}

	s.logAudit(ctx, "animal_create", "animal", created.ID, fmt.Sprintf("name=%s,species=%s,owner=%s", created.Name, created.Species, created.OwnerName))
	return *created, nil
}

func (s *Service) UpdateAnimal(ctx context.Context, id string, req domain.AnimalRequest) (domain.Animal, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Animal{}, err
	}
	existing, err := s.repo.GetAnimal(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Animal{}, err
	}
	animal, err := normalizeAnimal(req)
	if err != nil {
		return domain.Animal{}, err
	}
	animal.ID = existing.ID
	animal.Active = existing.Active
	animal.CreatedAt = existing.CreatedAt

	saved, err := s.repo.UpdateAnimal(ctx, animal)
	if err != nil {
		return domain.Animal{}, err
	}

	s.logAudit(ctx, "animal_update", "animal", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeactivateAnimal(ctx context.Context, id string) error {
	if _, err := requireActor(ctx); err != nil {
		return err
	}
	animal, err := s.repo.GetAnimal(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	animal.Active = false
	if _, err := s.repo.UpdateAnimal(ctx, *animal); err != nil {
		return err
	}
	s.logAudit(ctx, "animal_deactivate", "animal", animal.ID, "name="+animal.Name)
	return nil
}

func (s *Service) ClinicalHistory(ctx context.Context, id string) (domain.ClinicalHistory, error) {
	animal, err := s.repo.GetAnimal(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ClinicalHistory{}, err
	}
	consultations, err := s.repo.ListConsultationsByAnimal(ctx, animal.ID)
	if err != nil {
		return domain.ClinicalHistory{}, err
	}
	return domain.ClinicalHistory{
		Animal:        *animal,
		AgeDisplay:    animal.AgeDisplay(),
		Consultations: consultations,
	}, nil
}

func (s *Service) ListAnimals(ctx context.Context, filter domain.AnimalFilter) ([]domain.Animal, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Species = strings.TrimSpace(filter.Species)
	return s.repo.ListAnimals(ctx, filter)
}

// SearchAnimals is the quick search used while registering a consultation.
func (s *Service) SearchAnimals(ctx context.Context, query string) ([]domain.Animal, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < 2 {
		return []domain.Animal{}, nil
	}
	return s.repo.ListAnimals(ctx, domain.AnimalFilter{Query: query, Limit: quickSearchLimit})
}

func (s *Service) ListSpecies(ctx context.Context) ([]string, error) {
	return s.repo.ListSpecies(ctx)
}

// CreateConsultation records a consultation. With a payment method, the
// prescribed items are sold in the same transaction; if the sale fails the
// consultation is not recorded either.
// consultedAtLayouts are the ISO forms accepted for a consultation date.
// Layouts without a zone are read in the business location.
var consultedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseConsultedAt returns the zero time for an empty value.
func (s *Service) parseConsultedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range consultedAtLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, s.location); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, invalid("consulted_at %q is not an ISO date or datetime", raw)
}

func (s *Service) CreateConsultation(ctx context.Context, animalID string, req domain.ConsultationRequest) (domain.ConsultationResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ConsultationResponse{}, err
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.ConsultationResponse{}, invalid("reason is required")
	}
	if err := checkLineCount(len(req.Items)); err != nil {
		return domain.ConsultationResponse{}, err
	}
	items := make([]domain.ConsultationItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return domain.ConsultationResponse{}, invalid("product_id is required")
		}
		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}
		if err := checkLineQuantity(quantity); err != nil {
			return domain.ConsultationResponse{}, err
		}
		items = append(items, domain.ConsultationItem{
			ProductID: productID,
			Quantity:  quantity,
			Notes:     strings.TrimSpace(item.Notes),
		})
	}

	now := s.now().UTC()
	consultedAt, err := s.parseConsultedAt(req.ConsultedAt)
	if err != nil {
		return domain.ConsultationResponse{}, err
	}
	if consultedAt.IsZero() {
		consultedAt = now
	}
	consultation := domain.Consultation{
		ID:           xid.New("con"),
		AnimalID:     strings.TrimSpace(animalID),
		ConsultedAt:  consultedAt,
		Reason:       reason,
		Diagnosis:    strings.TrimSpace(req.Diagnosis),
		Treatment:    strings.TrimSpace(req.Treatment),
		Observations: strings.TrimSpace(req.Observations),
		UserID:       actor.UserID,
		CreatedAt:    now,
		Items:        items,
	}

	if strings.TrimSpace(req.PaymentMethod) == "" {
		created, _, err := s.repo.CreateConsultation(ctx, store.NewConsultation{Consultation: consultation})
		if err != nil {
			return domain.ConsultationResponse{}, err
		}
		s.logAudit(ctx, "consultation_create", "consultation", created.ID, fmt.Sprintf("animal=%s,items=%d", created.AnimalID, len(created.Items)))
		return domain.ConsultationResponse{Consultation: *created}, nil
	}

	method, err := normalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.ConsultationResponse{}, err
	}
	if len(items) == 0 {
		return domain.ConsultationResponse{}, invalid("a consultation without items cannot be billed")
	}
	lines := consultationSaleLines(items)

	var sale *domain.Sale
	created, err := withDocumentNumber(s, SalePrefix, func(number string, at time.Time) (*domain.Consultation, error) {
		c, sl, err := s.repo.CreateConsultation(ctx, store.NewConsultation{
			Consultation: consultation,
			Sale: &store.NewSale{
				ID:            xid.New("sale"),
				Number:        number,
				PaymentMethod: method,
				Notes:         "Consulta " + consultation.ID,
				UserID:        actor.UserID,
				CreatedAt:     at,
				Lines:         lines,
			},
		})
		sale = sl
		return c, err
	})
	if err != nil {
		return domain.ConsultationResponse{}, err
	}

	s.logAudit(ctx, "consultation_create", "consultation", created.ID, fmt.Sprintf("animal=%s,items=%d,sale=%s", created.AnimalID, len(created.Items), created.SaleID))
	s.logAudit(ctx, "sale_create", "sale", sale.ID, fmt.Sprintf("number=%s,total=%s,method=%s,consultation=%s", sale.Number, sale.Total, sale.PaymentMethod, created.ID))
	return domain.ConsultationResponse{Consultation: *created, Sale: sale}, nil
}

func (s *Service) GetConsultation(ctx context.Context, id string) (domain.Consultation, error) {
	consultation, err := s.repo.GetConsultation(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Consultation{}, err
	}
	return *consultation, nil
}

// BillConsultation sells the prescribed items of an existing consultation
// at current prices. A consultation is billed at most once.
func (s *Service) BillConsultation(ctx context.Context, id string, req domain.ConsultationBillRequest) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	method, err := normalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Sale{}, err
	}
	consultation, err := s.repo.GetConsultation(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	if consultation.SaleID != "" {
		return domain.Sale{}, fmt.Errorf("%w: consultation already billed", store.ErrConflict)
	}
	if len(consultation.Items) == 0 {
		return domain.Sale{}, invalid("consultation has no items to bill")
	}
	lines := consultationSaleLines(consultation.Items)

	sale, err := withDocumentNumber(s, SalePrefix, func(number string, at time.Time) (*domain.Sale, error) {
		return s.repo.BillConsultation(ctx, consultation.ID, store.NewSale{
			ID:            xid.New("sale"),
			Number:        number,
			PaymentMethod: method,
			Notes:         "Consulta " + consultation.ID,
			UserID:        actor.UserID,
			CreatedAt:     at,
			Lines:         lines,
		})
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", sale.ID, fmt.Sprintf("number=%s,total=%s,method=%s,consultation=%s", sale.Number, sale.Total, sale.PaymentMethod, consultation.ID))
	return *sale, nil
}

func consultationSaleLines(items []domain.ConsultationItem) []store.SaleLine {
	index := make(map[string]int, len(items))
	lines := make([]store.SaleLine, 0, len(items))
	for _, item := range items {
		if pos, ok := index[item.ProductID]; ok {
			lines[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, store.SaleLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func (s *Service) PendingConsultations(ctx context.Context, query string) ([]domain.PendingConsultation, error) {
	list, err := s.repo.ListPendingConsultations(ctx, strings.TrimSpace(query), quickSearchLimit)
	if err != nil {
		return nil, err
	}
	pending := make([]domain.PendingConsultation, 0, len(list))
	for _, c := range list {
		pending = append(pending, domain.PendingConsultation{
			ID:          c.ID,
			ConsultedAt: c.ConsultedAt,
			AnimalName:  c.AnimalName,
			OwnerName:   c.OwnerName,
			Reason:      c.Reason,
			ItemCount:   len(c.Items),
			Items:       c.Items,
		})
	}
	return pending, nil
}

// ConsultationCart previews the sale for a consultation: only active items
// whose stock covers the prescribed quantity, at current prices.
func (s *Service) ConsultationCart(ctx context.Context, id string) (domain.CartPreview, error) {
	consultation, err := s.repo.GetConsultation(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.CartPreview{}, err
	}
	if consultation.SaleID != "" {
		return domain.CartPreview{}, fmt.Errorf("%w: consultation already billed", store.ErrConflict)
	}

	lines := consultationSaleLines(consultation.Items)
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.CartPreview{}, err
	}

	preview := domain.CartPreview{
		ConsultationID: consultation.ID,
		AnimalName:     consultation.AnimalName,
		Items:          make([]domain.CartLine, 0, len(lines)),
	}
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.Active || product.Stock < line.Quantity {
			continue
		}
		subtotal := product.SalePrice.Mul(line.Quantity)
		preview.Items = append(preview.Items, domain.CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			Barcode:   product.Barcode,
			UnitPrice: product.SalePrice,
			Quantity:  line.Quantity,
			Subtotal:  subtotal,
			Stock:     product.Stock,
		})
		preview.Total += subtotal
	}
	return preview, nil
}
