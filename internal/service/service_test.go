package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"vetpos/backend/internal/assistant"
	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts Options) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return New(repo, opts), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "usr_admin", Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "usr_caja", Username: "caja", Role: domain.RoleCashier})
}

func createTestProduct(t *testing.T, svc *Service, barcode string, price string, stock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Barcode:   barcode,
		Name:      "Producto " + barcode,
		SalePrice: money.MustParse(price),
		CostPrice: money.MustParse("2.00"),
		Stock:     stock,
		StockMin:  1,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func TestSaleAndReturnMoveStock(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	product := createTestProduct(t, svc, "1001", "5.00", 10)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 3}},
		PaymentMethod: "Efectivo",
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if sale.Total != money.MustParse("15.00") {
		t.Fatalf("expected total 15.00, got %s", sale.Total)
	}
	if sale.PaymentMethod != domain.PaymentCash {
		t.Fatalf("expected normalized payment method, got %q", sale.PaymentMethod)
	}
	if !strings.HasPrefix(sale.Number, "VTA-20260310-") {
		t.Fatalf("unexpected sale number %q", sale.Number)
	}
	after, _ := svc.GetProduct(adminCtx(), product.ID)
	if after.Stock != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", after.Stock)
	}

	ret, err := svc.CreateReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnLineRequest{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
		Reason: "empaque dañado",
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if ret.Total != money.MustParse("10.00") {
		t.Fatalf("expected return total 10.00, got %s", ret.Total)
	}
	after, _ = svc.GetProduct(adminCtx(), product.ID)
	if after.Stock != 9 {
		t.Fatalf("expected stock 9 after return, got %d", after.Stock)
	}

	detail, err := svc.GetSaleDetail(cashierCtx(), sale.ID)
	if err != nil {
		t.Fatalf("sale detail failed: %v", err)
	}
	if detail.NetTotal != money.MustParse("5.00") || detail.Lines[0].ReturnableQuantity != 1 {
		t.Fatalf("unexpected detail: net=%s returnable=%d", detail.NetTotal, detail.Lines[0].ReturnableQuantity)
	}
}

func TestReturnCannotExceedSoldQuantity(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	product := createTestProduct(t, svc, "1002", "5.00", 10)
	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 2}},
		PaymentMethod: domain.PaymentNequi,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	_, err = svc.CreateReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnLineRequest{{SaleItemID: sale.Items[0].ID, Quantity: 3}},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected over-return error, got %v", err)
	}

	full := domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnLineRequest{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
	}
	if _, err := svc.CreateReturn(adminCtx(), full); err != nil {
		t.Fatalf("full return failed: %v", err)
	}
	if _, err := svc.CreateReturn(adminCtx(), full); !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected repeated return to fail, got %v", err)
	}
}

func TestReturnRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	_, err := svc.CreateReturn(cashierCtx(), domain.ReturnRequest{SaleID: "sale_x"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSaleIsAllOrNothing(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	plenty := createTestProduct(t, svc, "1003", "5.00", 10)
	scarce := createTestProduct(t, svc, "1004", "8.00", 1)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: plenty.ID, Quantity: 2},
			{ProductID: scarce.ID, Quantity: 2},
		},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	got, _ := svc.GetProduct(adminCtx(), plenty.ID)
	if got.Stock != 10 {
		t.Fatalf("expected untouched stock 10, got %d", got.Stock)
	}
}

func TestSaleMergesRepeatedLines(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	product := createTestProduct(t, svc, "1005", "5.00", 4)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 3},
			{ProductID: product.ID, Quantity: 2},
		},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected merged quantity to exceed stock, got %v", err)
	}
}

func TestSaleValidation(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	product := createTestProduct(t, svc, "1006", "5.00", 4)

	cases := []struct {
		name string
		req  domain.SaleRequest
	}{
		{"empty cart", domain.SaleRequest{PaymentMethod: domain.PaymentCash}},
		{"zero quantity", domain.SaleRequest{Items: []domain.SaleLineRequest{{ProductID: product.ID}}, PaymentMethod: domain.PaymentCash}},
		{"unknown method", domain.SaleRequest{Items: []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1}}, PaymentMethod: "bitcoin"}},
		{"missing method", domain.SaleRequest{Items: []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1}}}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateSale(cashierCtx(), tc.req); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("%s: expected invalid transaction, got %v", tc.name, err)
		}
	}

	if _, err := svc.CreateSale(context.Background(), cases[0].req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated without actor, got %v", err)
	}
}

func TestPriceOverrideIsAdminOnly(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	product := createTestProduct(t, svc, "1007", "5.00", 10)
	override := money.MustParse("4.00")
	req := domain.SaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 2, UnitPrice: &override}},
		PaymentMethod: domain.PaymentDaviplata,
	}

	if _, err := svc.CreateSale(cashierCtx(), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier override to be forbidden, got %v", err)
	}
	sale, err := svc.CreateSale(adminCtx(), req)
	if err != nil {
		t.Fatalf("admin override failed: %v", err)
	}
	if sale.Total != money.MustParse("8.00") {
		t.Fatalf("expected override total 8.00, got %s", sale.Total)
	}
}

func TestDocumentNumberCollisionIsRetried(t *testing.T) {
	issued := []string{"VTA-20260310-0001", "VTA-20260310-0001", "VTA-20260310-0002"}
	calls := 0
	svc, _ := newTestService(t, Options{Numbers: func(prefix string, _ time.Time) string {
		number := issued[min(calls, len(issued)-1)]
		calls++
		return number
	}})
	product := createTestProduct(t, svc, "1008", "5.00", 10)
	req := domain.SaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	}

	first, err := svc.CreateSale(cashierCtx(), req)
	if err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	second, err := svc.CreateSale(cashierCtx(), req)
	if err != nil {
		t.Fatalf("second sale failed: %v", err)
	}
	if first.Number == second.Number || second.Number != "VTA-20260310-0002" {
		t.Fatalf("expected retried number, got %s and %s", first.Number, second.Number)
	}
	got, _ := svc.GetProduct(adminCtx(), product.ID)
	if got.Stock != 8 {
		t.Fatalf("collision must not move stock twice, stock=%d", got.Stock)
	}
}

func TestDocumentNumberGivesUpAfterAttempts(t *testing.T) {
	svc, _ := newTestService(t, Options{Numbers: func(string, time.Time) string { return "VTA-FIXED" }})
	product := createTestProduct(t, svc, "1009", "5.00", 10)
	req := domain.SaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	}
	if _, err := svc.CreateSale(cashierCtx(), req); err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	if _, err := svc.CreateSale(cashierCtx(), req); !errors.Is(err, store.ErrDuplicateNumber) {
		t.Fatalf("expected duplicate number after retries, got %v", err)
	}
}

func TestStatisticsNetsReturns(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	product := createTestProduct(t, svc, "1010", "5.00", 10)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 4}},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if _, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: "prd_pelota", Quantity: 1}},
		PaymentMethod: domain.PaymentNequi,
	}); err != nil {
		t.Fatalf("second sale failed: %v", err)
	}
	if _, err := svc.CreateReturn(adminCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnLineRequest{{SaleItemID: sale.Items[0].ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	stats, err := svc.Statistics(adminCtx(), StatisticsQuery{From: "2026-03-10", To: "2026-03-10"})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.SalesCount != 2 || stats.ReturnsCount != 1 {
		t.Fatalf("unexpected counts: sales=%d returns=%d", stats.SalesCount, stats.ReturnsCount)
	}
	if stats.GrossSales != money.MustParse("9020.00") {
		t.Fatalf("unexpected gross %s", stats.GrossSales)
	}
	if stats.Revenue != money.MustParse("9015.00") {
		t.Fatalf("expected revenue net of returns, got %s", stats.Revenue)
	}
	// (5-2)*3 for the test product plus 9000-4500 for the ball.
	if stats.Profit != money.MustParse("4509.00") {
		t.Fatalf("unexpected profit %s", stats.Profit)
	}
	if stats.ByPayment[0].Method != domain.PaymentCash || stats.ByPayment[0].Net != money.MustParse("15.00") {
		t.Fatalf("unexpected cash breakdown %+v", stats.ByPayment[0])
	}
	if len(stats.Daily) != 1 || stats.Daily[0].Net != stats.Revenue {
		t.Fatalf("unexpected daily totals %+v", stats.Daily)
	}
	if stats.TopProducts[0].ProductID != product.ID || stats.TopProducts[0].Quantity != 4 {
		t.Fatalf("unexpected top product %+v", stats.TopProducts[0])
	}
	// Returns count against the admin who processed them.
	if len(stats.Employees) != 2 || stats.Employees[0].UserID != "usr_caja" || stats.Employees[1].Returns != money.MustParse("5.00") {
		t.Fatalf("unexpected employees %+v", stats.Employees)
	}

	if _, err := svc.Statistics(cashierCtx(), StatisticsQuery{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier to be denied statistics, got %v", err)
	}
}

func TestStatisticsDefaultsToLastWeek(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	stats, err := svc.Statistics(adminCtx(), StatisticsQuery{})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.From != "2026-03-04" || stats.To != "2026-03-10" || len(stats.Daily) != 7 {
		t.Fatalf("unexpected default range %s..%s (%d days)", stats.From, stats.To, len(stats.Daily))
	}
	if _, err := svc.Statistics(adminCtx(), StatisticsQuery{From: "2026-03-10", To: "2026-03-01"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected inverted range to be rejected, got %v", err)
	}
}

func TestPurchaseAddsStock(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	purchase, err := svc.CreatePurchase(cashierCtx(), domain.PurchaseRequest{
		SupplierID: "sup_distrivet",
		Items: []domain.PurchaseLineRequest{
			{ProductID: "prd_arena", Quantity: 6, UnitCost: money.MustParse("15000.00")},
		},
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if purchase.Total != money.MustParse("90000.00") || !strings.HasPrefix(purchase.Number, "COM-") {
		t.Fatalf("unexpected purchase %s %s", purchase.Number, purchase.Total)
	}
	arena, _ := svc.GetProduct(adminCtx(), "prd_arena")
	if arena.Stock != 6 {
		t.Fatalf("expected stock 6, got %d", arena.Stock)
	}

	report, err := svc.SupplierProducts(adminCtx(), "sup_distrivet")
	if err != nil {
		t.Fatalf("supplier products failed: %v", err)
	}
	if len(report.Products) != 1 || report.Products[0].AvgUnitCost != money.MustParse("15000.00") {
		t.Fatalf("unexpected supplier report %+v", report.Products)
	}
}

func TestLastAdminCannotBeDemoted(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	created, err := svc.BootstrapAdmin(context.Background(), "clinica2026")
	if err != nil || !created {
		t.Fatalf("bootstrap failed: created=%t err=%v", created, err)
	}
	admin, err := svc.Authenticate(context.Background(), "ADMIN", "clinica2026")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	other := WithActor(context.Background(), domain.Actor{UserID: "usr_other", Username: "otro", Role: domain.RoleAdmin})
	cashier := domain.RoleCashier
	if _, err := svc.UpdateUser(other, admin.ID, domain.UserUpdateRequest{Role: &cashier}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected last admin guard, got %v", err)
	}

	self := WithActor(context.Background(), domain.Actor{UserID: admin.ID, Username: admin.Username, Role: domain.RoleAdmin})
	if _, err := svc.DeactivateUser(self, admin.ID); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected self deactivation to be rejected, got %v", err)
	}

	again, err := svc.BootstrapAdmin(context.Background(), "clinica2026")
	if err != nil || again {
		t.Fatalf("bootstrap must be a no-op once users exist: created=%t err=%v", again, err)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	if _, err := svc.BootstrapAdmin(context.Background(), "clinica2026"); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nadie", "clinica2026"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	user, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{Username: "Caja1", Password: "1234"})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Username != "caja1" || user.Role != domain.RoleCashier {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := svc.DeactivateUser(adminCtx(), user.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "caja1", "1234"); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected inactive account, got %v", err)
	}
}

func TestValidateBootstrapPassword(t *testing.T) {
	for _, weak := range []string{"", "abc123", "password1", "soloLetras", "12345678"} {
		if err := ValidateBootstrapPassword(weak); err == nil {
			t.Fatalf("expected %q to be rejected", weak)
		}
	}
	if err := ValidateBootstrapPassword("clinica2026"); err != nil {
		t.Fatalf("expected strong password to pass: %v", err)
	}
}

func TestConsultationWithPaymentCreatesSale(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	animal, err := svc.CreateAnimal(cashierCtx(), domain.AnimalRequest{
		Name: "Luna", Species: "Perro", AgeYears: 3, OwnerName: "Marta Gómez",
	})
	if err != nil {
		t.Fatalf("create animal failed: %v", err)
	}

	resp, err := svc.CreateConsultation(cashierCtx(), animal.ID, domain.ConsultationRequest{
		Reason:        "Control anual",
		Items:         []domain.ConsultationItemRequest{{ProductID: "prd_vacuna"}, {ProductID: "prd_drontal", Quantity: 2}},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("consultation failed: %v", err)
	}
	if resp.Sale == nil || resp.Consultation.SaleID != resp.Sale.ID {
		t.Fatalf("expected linked sale, got %+v", resp)
	}
	if resp.Sale.Total != money.MustParse("72000.00") {
		t.Fatalf("unexpected consultation sale total %s", resp.Sale.Total)
	}
	vacuna, _ := svc.GetProduct(adminCtx(), "prd_vacuna")
	if vacuna.Stock != 14 {
		t.Fatalf("expected vaccine stock 14, got %d", vacuna.Stock)
	}

	if _, err := svc.BillConsultation(cashierCtx(), resp.Consultation.ID, domain.ConsultationBillRequest{PaymentMethod: domain.PaymentCash}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second billing to conflict, got %v", err)
	}

	invoice, err := svc.Invoice(cashierCtx(), resp.Sale.ID)
	if err != nil {
		t.Fatalf("invoice failed: %v", err)
	}
	if invoice.Animal == nil || invoice.Animal.Name != "Luna" || invoice.Consultation == nil {
		t.Fatalf("expected patient on invoice, got %+v", invoice)
	}
	if invoice.Business.Name != domain.DefaultBusinessName {
		t.Fatalf("expected default business name, got %q", invoice.Business.Name)
	}

	history, err := svc.ClinicalHistory(cashierCtx(), animal.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if history.AgeDisplay != "3 años" || len(history.Consultations) != 1 {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestConsultationSaleFailureRollsBack(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	animal, err := svc.CreateAnimal(cashierCtx(), domain.AnimalRequest{Name: "Michi", Species: "Gato", OwnerName: "Ana"})
	if err != nil {
		t.Fatalf("create animal failed: %v", err)
	}

	_, err = svc.CreateConsultation(cashierCtx(), animal.ID, domain.ConsultationRequest{
		Reason:        "Baño",
		Items:         []domain.ConsultationItemRequest{{ProductID: "prd_arena", Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	history, err := svc.ClinicalHistory(cashierCtx(), animal.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history.Consultations) != 0 {
		t.Fatalf("consultation must not be recorded when its sale fails")
	}
}

func TestPendingConsultationBilledLater(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	animal, err := svc.CreateAnimal(cashierCtx(), domain.AnimalRequest{Name: "Rocky", Species: "Perro", OwnerName: "Luis"})
	if err != nil {
		t.Fatalf("create animal failed: %v", err)
	}
	resp, err := svc.CreateConsultation(cashierCtx(), animal.ID, domain.ConsultationRequest{
		Reason: "Pulgas",
		Items:  []domain.ConsultationItemRequest{{ProductID: "prd_nexgard", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("consultation failed: %v", err)
	}
	if resp.Sale != nil {
		t.Fatalf("consultation without payment must not sell")
	}

	pending, err := svc.PendingConsultations(cashierCtx(), "")
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending consultation, got %d (%v)", len(pending), err)
	}
	cart, err := svc.ConsultationCart(cashierCtx(), resp.Consultation.ID)
	if err != nil {
		t.Fatalf("cart failed: %v", err)
	}
	if cart.Total != money.MustParse("62000.00") || len(cart.Items) != 1 {
		t.Fatalf("unexpected cart %+v", cart)
	}

	sale, err := svc.BillConsultation(cashierCtx(), resp.Consultation.ID, domain.ConsultationBillRequest{PaymentMethod: domain.PaymentNequi})
	if err != nil {
		t.Fatalf("billing failed: %v", err)
	}
	if sale.Total != cart.Total {
		t.Fatalf("expected billed total %s, got %s", cart.Total, sale.Total)
	}
	pending, _ = svc.PendingConsultations(cashierCtx(), "")
	if len(pending) != 0 {
		t.Fatalf("billed consultation must leave the pending list")
	}
}

func TestCategoryWithActiveProductsCannotBeDeactivated(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	inactive := false
	_, err := svc.UpdateCategory(adminCtx(), "cat_alimentos", domain.CategoryUpdateRequest{Active: &inactive})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLookupBarcodeForSaleNeedsStock(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	if _, err := svc.LookupBarcode(cashierCtx(), "7704455600020", true); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected out-of-stock lookup to fail, got %v", err)
	}
	product, err := svc.LookupBarcode(cashierCtx(), "7704455600020", false)
	if err != nil || product.ID != "prd_arena" {
		t.Fatalf("expected plain lookup to find product, got %+v (%v)", product, err)
	}
}

func TestReceiptAndDrawerCommands(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	if _, err := svc.UpdateSettings(adminCtx(), domain.SettingsRequest{Name: "Vet Patitas", TaxID: "900123"}); err != nil {
		t.Fatalf("settings failed: %v", err)
	}
	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: "prd_pelota", Quantity: 2}},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	receipt, err := svc.BuildReceipt(cashierCtx(), sale.ID)
	if err != nil {
		t.Fatalf("receipt failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(receipt.EscposBase64)
	if err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if raw[0] != 0x1b || raw[1] != 0x40 {
		t.Fatalf("receipt must start with printer init, got % x", raw[:2])
	}
	if tail := raw[len(raw)-4:]; fmt.Sprintf("% x", tail) != "1d 56 41 10" {
		t.Fatalf("receipt must end with partial cut, got % x", tail)
	}
	if !strings.Contains(receipt.PreviewText, "Vet Patitas") || !strings.Contains(receipt.PreviewText, "$18000.00") {
		t.Fatalf("unexpected preview:\n%s", receipt.PreviewText)
	}
	if receipt.FileName != "recibo-"+sale.Number+".bin" {
		t.Fatalf("unexpected file name %q", receipt.FileName)
	}

	drawer, err := svc.OpenCashDrawer(cashierCtx(), domain.CashDrawerOpenRequest{})
	if err != nil {
		t.Fatalf("drawer failed: %v", err)
	}
	if drawer.CommandBase64 != base64.StdEncoding.EncodeToString([]byte{0x1b, 0x70, 0x00, 0x19, 0xfa}) {
		t.Fatalf("unexpected drawer command %q", drawer.CommandBase64)
	}
}

func TestAssistantUnavailableWithoutEngine(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	_, err := svc.AssistantChat(cashierCtx(), domain.AssistantRequest{Message: "hola"})
	if !errors.Is(err, assistant.ErrUnavailable) {
		t.Fatalf("expected unavailable assistant, got %v", err)
	}
}

func TestAuditLogRecordsSales(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	if _, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		Items:         []domain.SaleLineRequest{{ProductID: "prd_pelota", Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), "2026-03-10", 0)
	if err != nil {
		t.Fatalf("audit logs failed: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "sale_create" && entry.ActorUsername == "caja" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sale_create audit entry, got %+v", logs)
	}
	if _, err := svc.ListAuditLogs(cashierCtx(), "", 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier to be denied audit logs, got %v", err)
	}
}

func TestDocumentSizeLimits(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	product := createTestProduct(t, svc, "1020", "5.00", 10)

	tooMany := make([]domain.SaleLineRequest, maxDocumentLines+1)
	for i := range tooMany {
		tooMany[i] = domain.SaleLineRequest{ProductID: fmt.Sprintf("prd_%d", i), Quantity: 1}
	}
	cases := []struct {
		name string
		req  domain.SaleRequest
	}{
		{"quantity over limit", domain.SaleRequest{Items: []domain.SaleLineRequest{{ProductID: product.ID, Quantity: maxLineQuantity + 1}}, PaymentMethod: domain.PaymentCash}},
		{"merged quantity over limit", domain.SaleRequest{Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: maxLineQuantity},
			{ProductID: product.ID, Quantity: 1},
		}, PaymentMethod: domain.PaymentCash}},
		{"too many lines", domain.SaleRequest{Items: tooMany, PaymentMethod: domain.PaymentCash}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateSale(cashierCtx(), tc.req); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("%s: expected invalid transaction, got %v", tc.name, err)
		}
	}

	// The largest accepted purchase line must not wrap the total.
	purchase, err := svc.CreatePurchase(cashierCtx(), domain.PurchaseRequest{
		Items: []domain.PurchaseLineRequest{
			{ProductID: product.ID, Quantity: maxLineQuantity, UnitCost: money.FromCents(money.MaxCents)},
			{ProductID: "prd_arena", Quantity: maxLineQuantity, UnitCost: money.FromCents(money.MaxCents)},
		},
	})
	if err != nil {
		t.Fatalf("large purchase failed: %v", err)
	}
	want := money.FromCents(2 * maxLineQuantity * money.MaxCents)
	if purchase.Total != want || purchase.Total.IsNegative() {
		t.Fatalf("expected total %s, got %s", want, purchase.Total)
	}

	if _, err := svc.CreatePurchase(cashierCtx(), domain.PurchaseRequest{
		Items: []domain.PurchaseLineRequest{{ProductID: product.ID, Quantity: maxLineQuantity + 1, UnitCost: money.MustParse("1.00")}},
	}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected purchase quantity over limit to be rejected, got %v", err)
	}
}

func TestProfitFollowsCostBasis(t *testing.T) {
	cases := []struct {
		basis string
		want  string
	}{
		// Cost raised from 2.00 to 4.00 after selling 2 units at 5.00.
		{domain.CostBasisCurrent, "2.00"},
		{domain.CostBasisHistorical, "6.00"},
	}
	for _, tc := range cases {
		svc, _ := newTestService(t, Options{CostBasis: tc.basis})
		product := createTestProduct(t, svc, "1030", "5.00", 10)

		if _, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
			Items:         []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 2}},
			PaymentMethod: domain.PaymentCash,
		}); err != nil {
			t.Fatalf("%s: sale failed: %v", tc.basis, err)
		}
		newCost := money.MustParse("4.00")
		if _, err := svc.UpdateProduct(adminCtx(), product.ID, domain.ProductUpdateRequest{CostPrice: &newCost}); err != nil {
			t.Fatalf("%s: update cost failed: %v", tc.basis, err)
		}

		stats, err := svc.Statistics(adminCtx(), StatisticsQuery{From: "2026-03-10", To: "2026-03-10"})
		if err != nil {
			t.Fatalf("%s: statistics failed: %v", tc.basis, err)
		}
		if stats.CostBasis != tc.basis {
			t.Fatalf("expected cost basis %s, got %s", tc.basis, stats.CostBasis)
		}
		if stats.Profit != money.MustParse(tc.want) {
			t.Fatalf("%s: expected profit %s, got %s", tc.basis, tc.want, stats.Profit)
		}
	}
}

func TestConsultationDateForms(t *testing.T) {
	bogota, err := time.LoadLocation("America/Bogota")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	svc, _ := newTestService(t, Options{Location: bogota})
	animal, err := svc.CreateAnimal(cashierCtx(), domain.AnimalRequest{Name: "Milo", Species: "Gato", OwnerName: "Ana"})
	if err != nil {
		t.Fatalf("create animal failed: %v", err)
	}

	cases := []struct {
		in   string
		want time.Time
	}{
		{"", fixedNow},
		{"2026-03-10", time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)},
		{"2026-03-10T10:30", time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)},
		{"2026-03-10T10:30:45", time.Date(2026, 3, 10, 15, 30, 45, 0, time.UTC)},
		{"2026-03-10 10:30", time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)},
		{"2026-03-10T10:30:00Z", time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)},
		{"2026-03-10T10:30:00-03:00", time.Date(2026, 3, 10, 13, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		resp, err := svc.CreateConsultation(cashierCtx(), animal.ID, domain.ConsultationRequest{Reason: "Revisión", ConsultedAt: tc.in})
		if err != nil {
			t.Fatalf("%q: consultation failed: %v", tc.in, err)
		}
		if !resp.Consultation.ConsultedAt.Equal(tc.want) {
			t.Fatalf("%q: expected %s, got %s", tc.in, tc.want, resp.Consultation.ConsultedAt)
		}
	}

	for _, bad := range []string{"10/03/2026", "ayer", "2026-13-01"} {
		if _, err := svc.CreateConsultation(cashierCtx(), animal.ID, domain.ConsultationRequest{Reason: "Revisión", ConsultedAt: bad}); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("%q: expected invalid date, got %v", bad, err)
		}
	}
}

func TestPasswordLengthLimit(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	long := strings.Repeat("a", maxPasswordBytes+1)

	if _, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{Username: "larga", Password: long}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected long password to be invalid on create, got %v", err)
	}
	user, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{Username: "justa", Password: strings.Repeat("a", maxPasswordBytes)})
	if err != nil {
		t.Fatalf("expected a 72-byte password to be accepted: %v", err)
	}
	if _, err := svc.UpdateUser(adminCtx(), user.ID, domain.UserUpdateRequest{Password: &long}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected long password to be invalid on update, got %v", err)
	}
	if err := ValidateBootstrapPassword(strings.Repeat("ab1", 30)); err == nil {
		t.Fatalf("expected long bootstrap password to be rejected")
	}
}
