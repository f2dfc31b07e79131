package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
	"vetpos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("VETPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set VETPOS_TEST_DATABASE_URL to run postgres integration test")
	}
	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSaleAndReturnMoveStock(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	product, err := s.CreateProduct(ctx, domain.Product{
		Barcode:   fmt.Sprintf("IT-%d", stamp),
		Name:      "Producto integración",
		SalePrice: money.MustParse("5.00"),
		CostPrice: money.MustParse("3.00"),
		Stock:     10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM return_items WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM returns WHERE number LIKE $1`, fmt.Sprintf("DEV-IT-%d%%", stamp))
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE number LIKE $1`, fmt.Sprintf("VTA-IT-%d%%", stamp))
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})

	sale, err := s.CreateSale(ctx, store.NewSale{
		Number:        fmt.Sprintf("VTA-IT-%d-1", stamp),
		PaymentMethod: domain.PaymentCash,
		Lines:         []store.SaleLine{{ProductID: product.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.Total != money.MustParse("15.00") {
		t.Fatalf("expected total 15.00, got %s", sale.Total)
	}

	_, err = s.CreateSale(ctx, store.NewSale{
		Number:        fmt.Sprintf("VTA-IT-%d-1", stamp),
		PaymentMethod: domain.PaymentCash,
		Lines:         []store.SaleLine{{ProductID: product.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrDuplicateNumber) {
		t.Fatalf("expected duplicate number, got %v", err)
	}

	_, err = s.CreateSale(ctx, store.NewSale{
		Number:        fmt.Sprintf("VTA-IT-%d-2", stamp),
		PaymentMethod: domain.PaymentCash,
		Lines:         []store.SaleLine{{ProductID: product.ID, Quantity: 8}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	ret, err := s.CreateReturn(ctx, store.NewReturn{
		Number: fmt.Sprintf("DEV-IT-%d-1", stamp),
		SaleID: sale.ID,
		Lines:  []store.ReturnLine{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if ret.Total != money.MustParse("10.00") {
		t.Fatalf("expected return total 10.00, got %s", ret.Total)
	}

	_, err = s.CreateReturn(ctx, store.NewReturn{
		Number: fmt.Sprintf("DEV-IT-%d-2", stamp),
		SaleID: sale.ID,
		Lines:  []store.ReturnLine{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected over-return, got %v", err)
	}

	reloaded, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if reloaded.Stock != 9 {
		t.Fatalf("expected stock 9, got %d", reloaded.Stock)
	}
}
