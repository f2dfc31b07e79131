package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

const (
	SalePrefix     = "VTA"
	ReturnPrefix   = "DEV"
	PurchasePrefix = "COM"

	defaultPerPage = 20
	maxPerPage     = 100
)

func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	method, err := normalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Sale{}, err
	}
	lines, err := normalizeSaleLines(req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	if hasPriceOverride(lines) && actor.Role != domain.RoleAdmin {
		return domain.Sale{}, fmt.Errorf("%w: manual price override", ErrForbidden)
	}

	sale, err := withDocumentNumber(s, SalePrefix, func(number string, at time.Time) (*domain.Sale, error) {
		return s.repo.CreateSale(ctx, store.NewSale{
			ID:            xid.New("sale"),
			Number:        number,
			PaymentMethod: method,
			Notes:         strings.TrimSpace(req.Notes),
			UserID:        actor.UserID,
			CreatedAt:     at,
			Lines:         lines,
		})
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", sale.ID, fmt.Sprintf("number=%s,total=%s,method=%s,lines=%d", sale.Number, sale.Total, sale.PaymentMethod, len(sale.Items)))
	return *sale, nil
}

// normalizeSaleLines merges repeated products into one line. Repeated lines
// must agree on any explicit unit price.
func normalizeSaleLines(items []domain.SaleLineRequest) ([]store.SaleLine, error) {
	if len(items) == 0 {
		return nil, invalid("cart is empty")
	}
	if err := checkLineCount(len(items)); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(items))
	lines := make([]store.SaleLine, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, invalid("product_id is required")
		}
		if err := checkLineQuantity(item.Quantity); err != nil {
			return nil, err
		}
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			return nil, invalid("unit price must not be negative")
		}

		pos, seen := index[productID]
		if !seen {
			index[productID] = len(lines)
			lines = append(lines, store.SaleLine{ProductID: productID, Quantity: item.Quantity, PriceOverride: item.UnitPrice})
			continue
		}
		existing := &lines[pos]
		if !samePrice(existing.PriceOverride, item.UnitPrice) {
			return nil, invalid("product %s appears with different prices", productID)
		}
		existing.Quantity += item.Quantity
		if err := checkLineQuantity(existing.Quantity); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func samePrice(a *money.Amount, b *money.Amount) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func hasPriceOverride(lines []store.SaleLine) bool {
	for _, line := range lines {
		if line.PriceOverride != nil {
			return true
		}
	}
	return false
}

func normalizePaymentMethod(method string) (string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return "", invalid("payment method is required")
	}
	if !domain.IsPaymentMethod(method) {
		return "", invalid("unsupported payment method %q", method)
	}
	return method, nil
}

type SaleQuery struct {
	From    string
	To      string
	UserID  string
	Page    int
	PerPage int
}

func (s *Service) ListSales(ctx context.Context, query SaleQuery) (domain.SaleListResponse, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.SaleListResponse{}, err
	}
	from, to, err := s.dayRange(query.From, query.To)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	page := max(query.Page, 1)
	perPage := query.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	perPage = min(perPage, maxPerPage)

	sales, total, err := s.repo.ListSales(ctx, domain.SaleFilter{
		From:    from,
		To:      to,
		UserID:  strings.TrimSpace(query.UserID),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		return domain.SaleListResponse{}, err
	}

	ids := make([]string, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
	}
	returned, err := s.repo.ReturnTotalsBySale(ctx, ids)
	if err != nil {
		return domain.SaleListResponse{}, err
	}

	summaries := make([]domain.SaleSummary, 0, len(sales))
	for _, sale := range sales {
		itemCount := 0
		for _, item := range sale.Items {
			itemCount += item.Quantity
		}
		summaries = append(summaries, domain.SaleSummary{
			Sale:          sale,
			ReturnedTotal: returned[sale.ID],
			NetTotal:      sale.Total - returned[sale.ID],
			ItemCount:     itemCount,
		})
	}

	pages := 0
	if total > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return domain.SaleListResponse{
		Sales:   summaries,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
	}, nil
}

// GetSaleDetail returns the sale with what is still returnable per line.
func (s *Service) GetSaleDetail(ctx context.Context, id string) (domain.SaleDetail, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.SaleDetail{}, err
	}
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SaleDetail{}, err
	}
	returnedQty, err := s.repo.GetReturnedQtyBySale(ctx, sale.ID)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	returns, err := s.repo.ListReturnsBySale(ctx, sale.ID)
	if err != nil {
		return domain.SaleDetail{}, err
	}

	detail := domain.SaleDetail{
		Sale:    *sale,
		Lines:   make([]domain.SaleDetailLine, 0, len(sale.Items)),
		Returns: returns,
	}
	for _, item := range sale.Items {
		returnedLine := returnedQty[item.ID]
		detail.Lines = append(detail.Lines, domain.SaleDetailLine{
			SaleItem:           item,
			ReturnedQuantity:   returnedLine,
			ReturnableQuantity: max(item.Quantity-returnedLine, 0),
		})
	}
	for _, ret := range returns {
		detail.ReturnedTotal += ret.Total
	}
	detail.NetTotal = sale.Total - detail.ReturnedTotal
	return detail, nil
}
