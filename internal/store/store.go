package store

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrOverReturn         = errors.New("return exceeds sold quantity")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
	ErrDuplicateNumber    = errors.New("duplicate document number")
)

// SaleLine is one cart line. PriceOverride replaces the product sale price
// for this line only.
type SaleLine struct {
	ProductID     string
	Quantity      int
	PriceOverride *money.Amount
}

// NewSale is a sale ready to be persisted. Prices, cost snapshots and the
// total are resolved by the store inside the transaction.
type NewSale struct {
	ID            string
	Number        string
	PaymentMethod string
	Notes         string
	UserID        string
	CreatedAt     time.Time
	Lines         []SaleLine
}

type ReturnLine struct {
	SaleItemID string
	Quantity   int
}

type NewReturn struct {
	ID        string
	Number    string
	SaleID    string
	Reason    string
	UserID    string
	CreatedAt time.Time
	Lines     []ReturnLine
}

type PurchaseLine struct {
	ProductID string
	Quantity  int
	UnitCost  money.Amount
}

type NewPurchase struct {
	ID         string
	Number     string
	SupplierID string
	Notes      string
	UserID     string
	ReceivedAt time.Time
	Lines      []PurchaseLine
}

// NewConsultation optionally carries a sale billed in the same transaction.
type NewConsultation struct {
	Consultation domain.Consultation
	Sale         *NewSale
}

type Repository interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	CountUsers(ctx context.Context) (int, error)
	CountActiveAdmins(ctx context.Context) (int, error)
	TouchLastAccess(ctx context.Context, userID string, at time.Time) error

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error)
	CountActiveProductsInCategory(ctx context.Context, categoryID string) (int, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	SearchProducts(ctx context.Context, search domain.ProductSearch) ([]domain.Product, error)
	ListLowStock(ctx context.Context) ([]domain.Product, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, activeOnly bool) ([]domain.Supplier, error)

	CreateSale(ctx context.Context, sale NewSale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time, userID string) ([]domain.Sale, error)

	CreateReturn(ctx context.Context, ret NewReturn) (*domain.Return, error)
	ListReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error)
	ListReturnsBetween(ctx context.Context, from time.Time, to time.Time, userID string) ([]domain.Return, error)
	GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error)
	ReturnTotalsBySale(ctx context.Context, saleIDs []string) (map[string]money.Amount, error)

	CreatePurchase(ctx context.Context, purchase NewPurchase) (*domain.Purchase, error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error)

	CreateAnimal(ctx context.Context, animal domain.Animal) (*domain.Animal, error)
	GetAnimal(ctx context.Context, id string) (*domain.Animal, error)
	UpdateAnimal(ctx context.Context, animal domain.Animal) (*domain.Animal, error)
	ListAnimals(ctx context.Context, filter domain.AnimalFilter) ([]domain.Animal, error)
	ListSpecies(ctx context.Context) ([]string, error)

	CreateConsultation(ctx context.Context, input NewConsultation) (*domain.Consultation, *domain.Sale, error)
	GetConsultation(ctx context.Context, id string) (*domain.Consultation, error)
	GetConsultationBySale(ctx context.Context, saleID string) (*domain.Consultation, error)
	ListConsultationsByAnimal(ctx context.Context, animalID string) ([]domain.Consultation, error)
	BillConsultation(ctx context.Context, consultationID string, sale NewSale) (*domain.Sale, error)
	ListPendingConsultations(ctx context.Context, query string, limit int) ([]domain.Consultation, error)

	GetSettings(ctx context.Context) (*domain.BusinessSettings, error)
	SaveSettings(ctx context.Context, settings domain.BusinessSettings) (*domain.BusinessSettings, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

// Fold lower-cases s and strips diacritics so "Vacunación" matches "vacunacion".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
