package domain

import (
	"fmt"
	"time"

	"vetpos/backend/internal/money"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	PaymentCash      = "efectivo"
	PaymentNequi     = "nequi"
	PaymentDaviplata = "daviplata"
)

var PaymentMethods = []string{PaymentCash, PaymentNequi, PaymentDaviplata}

func IsPaymentMethod(method string) bool {
	for _, m := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

const (
	CostBasisCurrent    = "current"
	CostBasisHistorical = "historical"
)

type Actor struct {
	UserID   string
	Username string
	Role     string
}

type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	FullName     string     `db:"full_name" json:"full_name"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	LastAccess   *time.Time `db:"last_access" json:"last_access,omitempty"`
}

type Category struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Product struct {
	ID           string       `db:"id" json:"id"`
	Barcode      string       `db:"barcode" json:"barcode"`
	Name         string       `db:"name" json:"name"`
	Description  string       `db:"description" json:"description"`
	SalePrice    money.Amount `db:"sale_price_cents" json:"sale_price"`
	CostPrice    money.Amount `db:"cost_price_cents" json:"cost_price"`
	Stock        int          `db:"stock" json:"stock"`
	StockMin     int          `db:"stock_min" json:"stock_min"`
	CategoryID   string       `db:"category_id" json:"category_id,omitempty"`
	CategoryName string       `db:"category_name" json:"category_name,omitempty"`
	Active       bool         `db:"active" json:"active"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

func (p Product) LowStock() bool {
	return p.Active && p.Stock <= p.StockMin
}

type Sale struct {
	ID            string       `db:"id" json:"id"`
	Number        string       `db:"number" json:"number"`
	Total         money.Amount `db:"total_cents" json:"total"`
	PaymentMethod string       `db:"payment_method" json:"payment_method"`
	Notes         string       `db:"notes" json:"notes"`
	UserID        string       `db:"user_id" json:"user_id,omitempty"`
	Username      string       `db:"username" json:"username,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	Items         []SaleItem   `db:"-" json:"items,omitempty"`
}

type SaleItem struct {
	ID          string       `db:"id" json:"id"`
	SaleID      string       `db:"sale_id" json:"sale_id"`
	ProductID   string       `db:"product_id" json:"product_id"`
	ProductName string       `db:"product_name" json:"product_name"`
	Quantity    int          `db:"quantity" json:"quantity"`
	UnitPrice   money.Amount `db:"unit_price_cents" json:"unit_price"`
	UnitCost    money.Amount `db:"unit_cost_cents" json:"-"`
	Subtotal    money.Amount `db:"subtotal_cents" json:"subtotal"`
}

type Return struct {
	ID        string       `db:"id" json:"id"`
	Number    string       `db:"number" json:"number"`
	SaleID    string       `db:"sale_id" json:"sale_id"`
	Total     money.Amount `db:"total_cents" json:"total"`
	Reason    string       `db:"reason" json:"reason"`
	UserID    string       `db:"user_id" json:"user_id,omitempty"`
	Username  string       `db:"username" json:"username,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	Items     []ReturnItem `db:"-" json:"items,omitempty"`

	// Payment method of the original sale, filled for reporting.
	PaymentMethod string `db:"payment_method" json:"-"`
}

type ReturnItem struct {
	ID          string       `db:"id" json:"id"`
	ReturnID    string       `db:"return_id" json:"return_id"`
	SaleItemID  string       `db:"sale_item_id" json:"sale_item_id"`
	ProductID   string       `db:"product_id" json:"product_id"`
	ProductName string       `db:"product_name" json:"product_name"`
	Quantity    int          `db:"quantity" json:"quantity"`
	UnitPrice   money.Amount `db:"unit_price_cents" json:"unit_price"`
	UnitCost    money.Amount `db:"unit_cost_cents" json:"-"`
	Subtotal    money.Amount `db:"subtotal_cents" json:"subtotal"`
}

type Purchase struct {
	ID           string         `db:"id" json:"id"`
	Number       string         `db:"number" json:"number"`
	SupplierID   string         `db:"supplier_id" json:"supplier_id,omitempty"`
	SupplierName string         `db:"supplier_name" json:"supplier_name,omitempty"`
	Total        money.Amount   `db:"total_cents" json:"total"`
	Notes        string         `db:"notes" json:"notes"`
	UserID       string         `db:"user_id" json:"user_id,omitempty"`
	ReceivedAt   time.Time      `db:"received_at" json:"received_at"`
	Items        []PurchaseItem `db:"-" json:"items,omitempty"`
}

type PurchaseItem struct {
	ID          string       `db:"id" json:"id"`
	PurchaseID  string       `db:"purchase_id" json:"purchase_id"`
	ProductID   string       `db:"product_id" json:"product_id"`
	ProductName string       `db:"product_name" json:"product_name"`
	Barcode     string       `db:"barcode" json:"barcode,omitempty"`
	Quantity    int          `db:"quantity" json:"quantity"`
	UnitCost    money.Amount `db:"unit_cost_cents" json:"unit_cost"`
	Subtotal    money.Amount `db:"subtotal_cents" json:"subtotal"`
}

type Supplier struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Phone         string    `db:"phone" json:"phone,omitempty"`
	Email         string    `db:"email" json:"email,omitempty"`
	Notes         string    `db:"notes" json:"notes,omitempty"`
	Active        bool      `db:"active" json:"active"`
	PurchaseCount int       `db:"purchase_count" json:"purchase_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type Animal struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Species    string    `db:"species" json:"species"`
	Breed      string    `db:"breed" json:"breed,omitempty"`
	AgeYears   int       `db:"age_years" json:"age_years"`
	AgeMonths  int       `db:"age_months" json:"age_months"`
	OwnerName  string    `db:"owner_name" json:"owner_name"`
	OwnerPhone string    `db:"owner_phone" json:"owner_phone,omitempty"`
	Notes      string    `db:"notes" json:"notes,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AgeDisplay renders the age the way the front desk reads it.
func (a Animal) AgeDisplay() string {
	parts := make([]string, 0, 2)
	if a.AgeYears > 0 {
		unit := "años"
		if a.AgeYears == 1 {
			unit = "año"
		}
		parts = append(parts, fmt.Sprintf("%d %s", a.AgeYears, unit))
	}
	if a.AgeMonths > 0 {
		unit := "meses"
		if a.AgeMonths == 1 {
			unit = "mes"
		}
		parts = append(parts, fmt.Sprintf("%d %s", a.AgeMonths, unit))
	}
	switch len(parts) {
	case 0:
		return "No especificada"
	case 1:
		return parts[0]
	default:
		return parts[0] + ", " + parts[1]
	}
}

type Consultation struct {
	ID           string             `db:"id" json:"id"`
	AnimalID     string             `db:"animal_id" json:"animal_id"`
	AnimalName   string             `db:"animal_name" json:"animal_name,omitempty"`
	OwnerName    string             `db:"owner_name" json:"owner_name,omitempty"`
	ConsultedAt  time.Time          `db:"consulted_at" json:"consulted_at"`
	Reason       string             `db:"reason" json:"reason"`
	Diagnosis    string             `db:"diagnosis" json:"diagnosis,omitempty"`
	Treatment    string             `db:"treatment" json:"treatment,omitempty"`
	Observations string             `db:"observations" json:"observations,omitempty"`
	SaleID       string             `db:"sale_id" json:"sale_id,omitempty"`
	UserID       string             `db:"user_id" json:"user_id,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	Items        []ConsultationItem `db:"-" json:"items"`
}

type ConsultationItem struct {
	ID             string `db:"id" json:"id"`
	ConsultationID string `db:"consultation_id" json:"consultation_id"`
	ProductID      string `db:"product_id" json:"product_id"`
	ProductName    string `db:"product_name" json:"product_name"`
	Quantity       int    `db:"quantity" json:"quantity"`
	Notes          string `db:"notes" json:"notes,omitempty"`
}

type BusinessSettings struct {
	Name      string    `db:"name" json:"name"`
	TaxID     string    `db:"tax_id" json:"tax_id"`
	Address   string    `db:"address" json:"address"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	LogoPath  string    `db:"logo_path" json:"logo_path"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const DefaultBusinessName = "Veterinaria"

func DefaultSettings() BusinessSettings {
	return BusinessSettings{Name: DefaultBusinessName}
}

type AuditLog struct {
	ID            string    `db:"id" json:"id"`
	ActorUsername string    `db:"actor_username" json:"actor_username"`
	ActorRole     string    `db:"actor_role" json:"actor_role"`
	Action        string    `db:"action" json:"action"`
	EntityType    string    `db:"entity_type" json:"entity_type"`
	EntityID      string    `db:"entity_id" json:"entity_id"`
	Detail        string    `db:"detail" json:"detail"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
