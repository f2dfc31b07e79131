package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

// CreateReturn puts sold units back on the shelf. The store re-checks the
// returnable quantity of every line inside its transaction, so two
// concurrent returns cannot both take the last unit.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnRequest) (domain.Return, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Return{}, err
	}

	saleID := strings.TrimSpace(req.SaleID)
	if saleID == "" {
		return domain.Return{}, invalid("sale_id is required")
	}
	if len(req.Items) == 0 {
		return domain.Return{}, invalid("no lines to return")
	}

	index := make(map[string]int, len(req.Items))
	lines := make([]store.ReturnLine, 0, len(req.Items))
	for _, item := range req.Items {
		saleItemID := strings.TrimSpace(item.SaleItemID)
		if saleItemID == "" {
			return domain.Return{}, invalid("sale_item_id is required")
		}
		if item.Quantity < 1 {
			return domain.Return{}, invalid("quantity must be at least 1")
		}
		if pos, ok := index[saleItemID]; ok {
			lines[pos].Quantity += item.Quantity
			continue
		}
		index[saleItemID] = len(lines)
		lines = append(lines, store.ReturnLine{SaleItemID: saleItemID, Quantity: item.Quantity})
	}

	ret, err := withDocumentNumber(s, ReturnPrefix, func(number string, at time.Time) (*domain.Return, error) {
		return s.repo.CreateReturn(ctx, store.NewReturn{
			ID:        xid.New("ret"),
			Number:    number,
			SaleID:    saleID,
			Reason:    strings.TrimSpace(req.Reason),
			UserID:    actor.UserID,
			CreatedAt: at,
			Lines:     lines,
		})
	})
	if err != nil {
		return domain.Return{}, err
	}

	s.logAudit(ctx, "return_create", "return", ret.ID, fmt.Sprintf("number=%s,sale=%s,total=%s", ret.Number, ret.SaleID, ret.Total))
	return *ret, nil
}
