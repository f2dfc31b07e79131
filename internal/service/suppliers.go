package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
	"vetpos/backend/internal/xid"
)

func (s *Service) ListSuppliers(ctx context.Context, includeInactive bool) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx, !includeInactive)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierRequest) (domain.Supplier, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Supplier{}, invalid("supplier name is required")
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Notes:     strings.TrimSpace(req.Notes),
		Active:    true,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	existing, err := s.repo.GetSupplier(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Supplier{}, err
	}

	updated := *existing
	if name := trimPtr(req.Name); name != nil {
		if *name == "" {
			return domain.Supplier{}, invalid("supplier name must not be empty")
		}
		updated.Name = *name
	}
	if phone := trimPtr(req.Phone); phone != nil {
		updated.Phone = *phone
	}
	if email := trimPtr(req.Email); email != nil {
		updated.Email = *email
	}
	if notes := trimPtr(req.Notes); notes != nil {
		updated.Notes = *notes
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateSupplier(ctx, updated)
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_update", "supplier", saved.ID, fmt.Sprintf("name=%s,active=%t", saved.Name, saved.Active))
	return *saved, nil
}

func (s *Service) DeactivateSupplier(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateSupplier(ctx, id, domain.SupplierUpdateRequest{Active: &inactive})
	return err
}

// SupplierProducts summarizes everything bought from a supplier, grouped by
// product, most recently purchased first.
func (s *Service) SupplierProducts(ctx context.Context, supplierID string) (domain.SupplierProductsResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.SupplierProductsResponse{}, err
	}

	supplier, err := s.repo.GetSupplier(ctx, strings.TrimSpace(supplierID))
	if err != nil {
		return domain.SupplierProductsResponse{}, err
	}
	purchases, err := s.repo.ListPurchases(ctx, domain.PurchaseFilter{SupplierID: supplier.ID, WithItems: true})
	if err != nil {
		return domain.SupplierProductsResponse{}, err
	}

	byProduct := make(map[string]*domain.SupplierProduct)
	seenPurchase := make(map[string]map[string]struct{})
	resp := domain.SupplierProductsResponse{Supplier: *supplier}
	for _, purchase := range purchases {
		for _, item := range purchase.Items {
			entry, ok := byProduct[item.ProductID]
			if !ok {
				entry = &domain.SupplierProduct{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
					Barcode:     item.Barcode,
					MinUnitCost: item.UnitCost,
					MaxUnitCost: item.UnitCost,
				}
				byProduct[item.ProductID] = entry
				seenPurchase[item.ProductID] = make(map[string]struct{})
			}
			entry.TotalQuantity += item.Quantity
			entry.TotalSpent += item.Subtotal
			entry.MinUnitCost = min(entry.MinUnitCost, item.UnitCost)
			entry.MaxUnitCost = max(entry.MaxUnitCost, item.UnitCost)
			if purchase.ReceivedAt.After(entry.LastPurchaseAt) {
				entry.LastPurchaseAt = purchase.ReceivedAt
			}
			if _, counted := seenPurchase[item.ProductID][purchase.ID]; !counted {
				seenPurchase[item.ProductID][purchase.ID] = struct{}{}
				entry.PurchaseCount++
			}
			entry.Entries = append(entry.Entries, domain.SupplierPurchaseEntry{
				PurchaseID: purchase.ID,
				Number:     purchase.Number,
				ReceivedAt: purchase.ReceivedAt,
				Quantity:   item.Quantity,
				UnitCost:   item.UnitCost,
				Subtotal:   item.Subtotal,
			})

			resp.TotalSpent += item.Subtotal
			resp.TotalQuantity += item.Quantity
		}
	}

	resp.Products = make([]domain.SupplierProduct, 0, len(byProduct))
	for _, entry := range byProduct {
		if entry.TotalQuantity > 0 {
			entry.AvgUnitCost = money.FromCents(entry.TotalSpent.Cents() / int64(entry.TotalQuantity))
		}
		resp.Products = append(resp.Products, *entry)
	}
	slices.SortFunc(resp.Products, func(a, b domain.SupplierProduct) int {
		if c := b.LastPurchaseAt.Compare(a.LastPurchaseAt); c != 0 {
			return c
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return resp, nil
}
