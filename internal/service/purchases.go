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

var weekdayNames = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}

// CreatePurchase receives goods into stock. Purchases have no return flow.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (domain.Purchase, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Purchase{}, err
	}
	if len(req.Items) == 0 {
		return domain.Purchase{}, invalid("purchase has no lines")
	}
	if err := checkLineCount(len(req.Items)); err != nil {
		return domain.Purchase{}, err
	}

	lines := make([]store.PurchaseLine, 0, len(req.Items))
	total := money.Amount(0)
	for _, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return domain.Purchase{}, invalid("product_id is required")
		}
		if err := checkLineQuantity(item.Quantity); err != nil {
			return domain.Purchase{}, err
		}
		if item.UnitCost.IsNegative() {
			return domain.Purchase{}, invalid("unit cost must not be negative")
		}
		total += item.UnitCost.Mul(item.Quantity)
		lines = append(lines, store.PurchaseLine{ProductID: productID, Quantity: item.Quantity, UnitCost: item.UnitCost})
	}
	if total <= 0 {
		return domain.Purchase{}, invalid("purchase total must be positive")
	}

	purchase, err := withDocumentNumber(s, PurchasePrefix, func(number string, at time.Time) (*domain.Purchase, error) {
		return s.repo.CreatePurchase(ctx, store.NewPurchase{
			ID:         xid.New("pur"),
			Number:     number,
			SupplierID: strings.TrimSpace(req.SupplierID),
			Notes:      strings.TrimSpace(req.Notes),
			UserID:     actor.UserID,
			ReceivedAt: at,
			Lines:      lines,
		})
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.logAudit(ctx, "purchase_create", "purchase", purchase.ID, fmt.Sprintf("number=%s,supplier=%s,total=%s", purchase.Number, purchase.SupplierID, purchase.Total))
	return *purchase, nil
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	purchase, err := s.repo.GetPurchase(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

type PurchaseQuery struct {
	From       string
	To         string
	SupplierID string
	Limit      int
}

func (s *Service) ListPurchases(ctx context.Context, query PurchaseQuery) ([]domain.Purchase, error) {
	from, to, err := s.dayRange(query.From, query.To)
	if err != nil {
		return nil, err
	}
	limit := query.Limit
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListPurchases(ctx, domain.PurchaseFilter{
		From:       from,
		To:         to,
		SupplierID: strings.TrimSpace(query.SupplierID),
		Limit:      limit,
		WithItems:  true,
	})
}

// PurchaseStats counts receptions by weekday and by hour in business-local
// time. Empty bounds cover all purchases.
func (s *Service) PurchaseStats(ctx context.Context, from string, to string) (domain.PurchaseStats, error) {
	start, end, err := s.dayRange(from, to)
	if err != nil {
		return domain.PurchaseStats{}, err
	}
	purchases, err := s.repo.ListPurchases(ctx, domain.PurchaseFilter{From: start, To: end})
	if err != nil {
		return domain.PurchaseStats{}, err
	}
	return s.purchaseStats(purchases), nil
}

func (s *Service) purchaseStats(purchases []domain.Purchase) domain.PurchaseStats {
	stats := domain.PurchaseStats{
		ByWeekday: make(map[string]int),
		ByHour:    make(map[string]int),
	}
	for _, purchase := range purchases {
		local := purchase.ReceivedAt.In(s.location)
		stats.Count++
		stats.Total += purchase.Total
		stats.ByWeekday[weekdayNames[local.Weekday()]]++
		stats.ByHour[fmt.Sprintf("%02d:00", local.Hour())]++
	}
	return stats
}
