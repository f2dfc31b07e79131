package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

const quickSearchLimit = 20

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if filter.IncludeInactive {
		if _, err := requireAdmin(ctx); err != nil {
			return nil, err
		}
	}
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// LookupBarcode finds an active product by barcode. With forSale set, a
// product without stock is refused so the cashier cannot add it to a cart.
func (s *Service) LookupBarcode(ctx context.Context, barcode string, forSale bool) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, invalid("barcode is required")
	}
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	if forSale && product.Stock <= 0 {
		return domain.Product{}, fmt.Errorf("%w: %s has no stock", store.ErrInsufficientStock, product.Name)
	}
	return *product, nil
}

// SearchProducts is the cashier quick search: active, in stock, accent
// insensitive. Queries shorter than two characters return nothing.
func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < 2 {
		return []domain.Product{}, nil
	}
	return s.repo.SearchProducts(ctx, domain.ProductSearch{
		Terms:       []string{query},
		InStockOnly: true,
		Limit:       quickSearchLimit,
	})
}

func (s *Service) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStock(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.CategoryID = strings.TrimSpace(req.CategoryID)

	if req.Barcode == "" || req.Name == "" {
		return domain.Product{}, invalid("barcode and name are required")
	}
	if req.SalePrice <= 0 {
		return domain.Product{}, invalid("sale price must be positive")
	}
	if req.CostPrice.IsNegative() || req.Stock < 0 || req.StockMin < 0 {
		return domain.Product{}, invalid("cost price, stock and minimum stock must not be negative")
	}
	if err := s.ensureActiveCategory(ctx, req.CategoryID); err != nil {
		return domain.Product{}, err
	}

	now := s.now().UTC()
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:          xid.New("prd"),
		Barcode:     req.Barcode,
		Name:        req.Name,
		Description: req.Description,
		SalePrice:   req.SalePrice,
		CostPrice:   req.CostPrice,
		Stock:       req.Stock,
		StockMin:    req.StockMin,
		CategoryID:  req.CategoryID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("barcode=%s,price=%s,stock=%d", created.Barcode, created.SalePrice, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if barcode := trimPtr(req.Barcode); barcode != nil {
		if *barcode == "" {
			return domain.Product{}, invalid("barcode must not be empty")
		}
		updated.Barcode = *barcode
	}
	if name := trimPtr(req.Name); name != nil {
		if *name == "" {
			return domain.Product{}, invalid("name must not be empty")
		}
		updated.Name = *name
	}
	if description := trimPtr(req.Description); description != nil {
		updated.Description = *description
	}
	if req.SalePrice != nil {
		if *req.SalePrice <= 0 {
			return domain.Product{}, invalid("sale price must be positive")
		}
		updated.SalePrice = *req.SalePrice
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Product{}, invalid("cost price must not be negative")
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.StockMin != nil {
		if *req.StockMin < 0 {
			return domain.Product{}, invalid("minimum stock must not be negative")
		}
		updated.StockMin = *req.StockMin
	}
	if categoryID := trimPtr(req.CategoryID); categoryID != nil {
		if *categoryID != existing.CategoryID {
			if err := s.ensureActiveCategory(ctx, *categoryID); err != nil {
				return domain.Product{}, err
			}
		}
		updated.CategoryID = *categoryID
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	detail := fmt.Sprintf("active=%t,price=%s,cost=%s", saved.Active, saved.SalePrice, saved.CostPrice)
	if existing.SalePrice != saved.SalePrice {
		detail += fmt.Sprintf(",old_price=%s", existing.SalePrice)
	}
	s.logAudit(ctx, "product_update", "product", saved.ID, detail)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateProduct(ctx, id, domain.ProductUpdateRequest{Active: &inactive})
	return err
}

func (s *Service) ensureActiveCategory(ctx context.Context, categoryID string) error {
	if categoryID == "" {
		return nil
	}
	category, err := s.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if !category.Active {
		return fmt.Errorf("%w: category %s", store.ErrNotFound, categoryID)
	}
	return nil
}

func (s *Service) ListCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx, activeOnly)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, invalid("category name is required")
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:          xid.New("cat"),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Active:      true,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	existing, err := s.repo.GetCategory(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Category{}, err
	}

	updated := *existing
	if name := trimPtr(req.Name); name != nil {
		if *name == "" {
			return domain.Category{}, invalid("category name must not be empty")
		}
		updated.Name = *name
	}
	if description := trimPtr(req.Description); description != nil {
		updated.Description = *description
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if existing.Active && !updated.Active {
		inUse, err := s.repo.CountActiveProductsInCategory(ctx, existing.ID)
		if err != nil {
			return domain.Category{}, err
		}
		if inUse > 0 {
			return domain.Category{}, fmt.Errorf("%w: category %s has %d active products", store.ErrConflict, existing.Name, inUse)
		}
	}

	saved, err := s.repo.UpdateCategory(ctx, updated)
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_update", "category", saved.ID, fmt.Sprintf("name=%s,active=%t", saved.Name, saved.Active))
	return *saved, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateCategory(ctx, id, domain.CategoryUpdateRequest{Active: &inactive})
	return err
}
